// Package costing loads lineages and ledgers from storage, runs the
// allocation engine over them and produces cost reports.
package costing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmtrace/internal/domain/allocation"
	"github.com/mamadbah2/farmtrace/internal/domain/models"
	"github.com/mamadbah2/farmtrace/internal/metrics"
	"github.com/mamadbah2/farmtrace/internal/service/reporting"
)

// ErrEmptyRootID is returned when a lineage is requested without a root id.
var ErrEmptyRootID = errors.New("root batch id is required")

const templatesCacheKey = "stage_templates"

// BatchSource reads persisted batch records.
type BatchSource interface {
	LoadLineage(ctx context.Context, rootID string) ([]models.BatchRecord, error)
	ListRootIDs(ctx context.Context) ([]string, error)
}

// TemplateSource reads stage templates.
type TemplateSource interface {
	LoadStageTemplates(ctx context.Context) (models.StageTemplates, error)
}

// LedgerStore reads and writes per-node cost entries.
type LedgerStore interface {
	LoadLedger(ctx context.Context, nodeIDs []string) (models.CostLedger, error)
	SaveCostEntry(ctx context.Context, nodeID string, entry models.CostEntry) error
}

// ReportStore persists report snapshots.
type ReportStore interface {
	SaveCostReport(ctx context.Context, report models.CostReport) error
}

// Dependencies groups the storage ports of the service.
type Dependencies struct {
	Batches   BatchSource
	Templates TemplateSource
	Ledger    LedgerStore
	Reports   ReportStore
}

// Options tunes the service. Zero values fall back to defaults.
type Options struct {
	Engine      *allocation.Engine
	TemplateTTL time.Duration
	Parallelism int
	Metrics     *metrics.Recorder
}

// Service computes lineage costs.
type Service struct {
	deps        Dependencies
	engine      *allocation.Engine
	templates   *cache.Cache
	parallelism int
	metrics     *metrics.Recorder
	logger      *zap.Logger
	now         func() time.Time
}

// NewService wires a costing service.
func NewService(deps Dependencies, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := opts.Engine
	if engine == nil {
		engine = allocation.New()
	}

	s := &Service{
		deps:        deps,
		engine:      engine,
		parallelism: opts.Parallelism,
		metrics:     opts.Metrics,
		logger:      logger,
		now:         time.Now,
	}
	if opts.TemplateTTL > 0 {
		// No janitor: expired entries are replaced on the next load.
		s.templates = cache.New(opts.TemplateTTL, 0)
	}
	return s
}

// CostLineage computes the cost report of the lineage rooted at rootID. The
// report is not persisted.
func (s *Service) CostLineage(ctx context.Context, rootID string) (*models.CostReport, error) {
	if rootID == "" {
		return nil, ErrEmptyRootID
	}

	start := s.now()
	report, err := s.costLineage(ctx, rootID)
	outcome := metrics.OutcomeSuccess
	computed, incomplete := 0, 0
	if err != nil {
		outcome = metrics.OutcomeFailure
	} else {
		computed, incomplete = len(report.Lines), len(report.IncompleteNodes)
	}
	s.metrics.ObserveLineage(outcome, s.now().Sub(start), computed, incomplete)

	return report, err
}

func (s *Service) costLineage(ctx context.Context, rootID string) (*models.CostReport, error) {
	root, err := s.loadTree(ctx, rootID)
	if err != nil {
		return nil, err
	}

	ledger, err := s.deps.Ledger.LoadLedger(ctx, models.NodeIDs(root))
	if err != nil {
		return nil, fmt.Errorf("load ledger for %s: %w", rootID, err)
	}

	templates, err := s.stageTemplates(ctx)
	if err != nil {
		return nil, err
	}

	report := reporting.BuildReport(root, s.engine.Compute(root, ledger, templates), s.now())
	s.logIncomplete(report)
	return report, nil
}

// SaveCostEntry records the direct costs of one batch node.
func (s *Service) SaveCostEntry(ctx context.Context, nodeID string, entry models.CostEntry) error {
	if nodeID == "" {
		return errors.New("batch id is required")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	if err := s.deps.Ledger.SaveCostEntry(ctx, nodeID, entry); err != nil {
		return fmt.Errorf("save cost entry for %s: %w", nodeID, err)
	}
	s.logger.Info("cost entry saved", zap.String("node_id", nodeID), zap.Float64("total", entry.Total()))
	return nil
}

// RunAll costs every root lineage against a single ledger snapshot and
// persists the reports. Lineages that fail to load or save are reported in the
// returned error; the reports of the others are still returned.
func (s *Service) RunAll(ctx context.Context) ([]*models.CostReport, error) {
	rootIDs, err := s.deps.Batches.ListRootIDs(ctx)
	if err != nil {
		s.metrics.ObserveRun(metrics.OutcomeFailure, 0)
		return nil, fmt.Errorf("list root batches: %w", err)
	}

	var result *multierror.Error
	failed := 0

	roots := make([]*models.BatchNode, 0, len(rootIDs))
	var nodeIDs []string
	for _, rootID := range rootIDs {
		root, err := s.loadTree(ctx, rootID)
		if err != nil {
			result = multierror.Append(result, err)
			failed++
			continue
		}
		roots = append(roots, root)
		nodeIDs = append(nodeIDs, models.NodeIDs(root)...)
	}

	reports, err := s.computeAndSave(ctx, roots, nodeIDs)
	if err != nil {
		result = multierror.Append(result, err)
	}
	failed += len(roots) - len(reports)

	outcome := metrics.OutcomeSuccess
	if result.ErrorOrNil() != nil {
		outcome = metrics.OutcomeFailure
	}
	s.metrics.ObserveRun(outcome, failed)

	s.logger.Info("costing run finished",
		zap.Int("lineages", len(rootIDs)),
		zap.Int("reports", len(reports)),
		zap.Int("failed", failed),
	)
	return reports, result.ErrorOrNil()
}

func (s *Service) computeAndSave(ctx context.Context, roots []*models.BatchNode, nodeIDs []string) ([]*models.CostReport, error) {
	if len(roots) == 0 {
		return nil, nil
	}

	ledger, err := s.deps.Ledger.LoadLedger(ctx, nodeIDs)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	templates, err := s.stageTemplates(ctx)
	if err != nil {
		return nil, err
	}

	all, err := s.engine.ComputeAll(ctx, roots, ledger, templates, s.parallelism)
	if err != nil {
		return nil, fmt.Errorf("compute lineages: %w", err)
	}

	var result *multierror.Error
	reports := make([]*models.CostReport, 0, len(roots))
	for _, root := range roots {
		report := reporting.BuildReport(root, all[root.ID], s.now())
		s.logIncomplete(report)
		s.metrics.ObserveNodes(len(report.Lines), len(report.IncompleteNodes))

		if s.deps.Reports != nil {
			if err := s.deps.Reports.SaveCostReport(ctx, *report); err != nil {
				result = multierror.Append(result, fmt.Errorf("save report for %s: %w", root.ID, err))
				continue
			}
		}
		reports = append(reports, report)
	}
	return reports, result.ErrorOrNil()
}

func (s *Service) loadTree(ctx context.Context, rootID string) (*models.BatchNode, error) {
	records, err := s.deps.Batches.LoadLineage(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("load lineage %s: %w", rootID, err)
	}
	return models.AssembleTree(records, rootID)
}

func (s *Service) stageTemplates(ctx context.Context) (models.StageTemplates, error) {
	if s.templates != nil {
		if cached, ok := s.templates.Get(templatesCacheKey); ok {
			return cached.(models.StageTemplates), nil
		}
	}

	templates, err := s.deps.Templates.LoadStageTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stage templates: %w", err)
	}

	if s.templates != nil {
		s.templates.Set(templatesCacheKey, templates, cache.DefaultExpiration)
	}
	return templates, nil
}

func (s *Service) logIncomplete(report *models.CostReport) {
	if len(report.IncompleteNodes) == 0 {
		return
	}
	s.logger.Warn("lineage has stages without output weight",
		zap.String("root_id", report.RootID),
		zap.Strings("node_ids", report.IncompleteNodes),
	)
}
