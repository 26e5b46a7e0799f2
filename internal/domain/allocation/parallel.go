package allocation

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/farmtrace/internal/domain/models"
)

// ComputeAll costs several independent lineages concurrently, at most limit at
// a time (no limit when limit <= 0). Results are keyed by root id.
//
// Cancellation is only observed between lineages; a lineage that started
// always runs to completion, and the caller receives ctx.Err().
func (e *Engine) ComputeAll(ctx context.Context, roots []*models.BatchNode, ledger models.CostLedger, templates models.StageTemplates, limit int) (map[string]map[string]models.CostMetrics, error) {
	results := make([]map[string]models.CostMetrics, len(roots))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, root := range roots {
		i, root := i, root
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.Compute(root, ledger, templates)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]map[string]models.CostMetrics, len(roots))
	for i, root := range roots {
		if root == nil {
			continue
		}
		out[root.ID] = results[i]
	}
	return out, nil
}
