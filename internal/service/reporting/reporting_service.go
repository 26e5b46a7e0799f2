// Package reporting turns computed cost metrics into reports and the text,
// message and spreadsheet renderings sent to farm managers.
package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mamadbah2/farmtrace/internal/domain/allocation"
	"github.com/mamadbah2/farmtrace/internal/domain/models"
)

const (
	dateLayout  = "2006-01-02"
	sheetPlaces = 4
)

// BuildReport snapshots the metrics of one lineage in pre-order.
//
// The final figures come from the leaves: their output weights are summed and
// the final cost per kg is the accumulated cost of those leaves over that
// weight. Leaves without a positive output contribute nothing and are listed,
// with every other such node, as incomplete.
func BuildReport(root *models.BatchNode, metrics map[string]models.CostMetrics, now time.Time) *models.CostReport {
	report := &models.CostReport{
		ID:          uuid.NewString(),
		GeneratedAt: now.UTC(),
	}
	if root == nil {
		return report
	}
	report.RootID = root.ID

	var leafCost float64
	for _, nc := range allocation.Ordered(root, metrics) {
		leaf := len(nc.Node.Children) == 0
		report.Lines = append(report.Lines, models.CostLine{
			NodeID:  nc.Node.ID,
			StageID: nc.Node.StageID,
			Depth:   nc.Depth,
			Leaf:    leaf,
			Metrics: nc.Metrics,
		})

		report.TotalDirectCost += nc.Metrics.ProcessCost
		if nc.Metrics.OutputWeight <= 0 {
			report.IncompleteNodes = append(report.IncompleteNodes, nc.Node.ID)
			continue
		}
		if leaf {
			report.FinalOutputKg += nc.Metrics.OutputWeight
			leafCost += nc.Metrics.AccumulatedCost
		}
	}

	if report.FinalOutputKg > 0 {
		report.FinalCostPerKg = leafCost / report.FinalOutputKg
	}
	return report
}

// RenderTree prints the report as an indented tree, one stage per line.
func RenderTree(report *models.CostReport) string {
	if report == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Lineage %s (%s)\n", report.RootID, report.GeneratedAt.Format(dateLayout))
	for _, line := range report.Lines {
		m := line.Metrics
		fmt.Fprintf(&b, "%s%s [%s] in %s kg -> out %s kg | cost %s | %s/kg\n",
			strings.Repeat("  ", line.Depth),
			line.NodeID,
			line.StageID,
			amount(m.InputWeight),
			amount(m.OutputWeight),
			amount(m.AccumulatedCost),
			amount(m.CostPerKg),
		)
	}
	fmt.Fprintf(&b, "Final: %s kg at %s/kg (direct costs %s)",
		amount(report.FinalOutputKg), amount(report.FinalCostPerKg), amount(report.TotalDirectCost))
	if len(report.IncompleteNodes) > 0 {
		fmt.Fprintf(&b, "\nMissing output weight: %s", strings.Join(report.IncompleteNodes, ", "))
	}
	return b.String()
}

// RenderSummary is the short form used in chat replies and notifications.
func RenderSummary(report *models.CostReport) string {
	if report == nil {
		return ""
	}

	summary := fmt.Sprintf("Lineage %s: %d stages, %s kg final output at %s/kg, direct costs %s.",
		report.RootID,
		len(report.Lines),
		amount(report.FinalOutputKg),
		amount(report.FinalCostPerKg),
		amount(report.TotalDirectCost),
	)
	if n := len(report.IncompleteNodes); n > 0 {
		summary += fmt.Sprintf(" %d stage(s) still missing an output weight.", n)
	}
	return summary
}

// SheetRows flattens the report into spreadsheet rows: generated at, report
// id, root, node, stage, depth, input kg, output kg, accumulated cost, cost per kg.
func SheetRows(report *models.CostReport) [][]interface{} {
	if report == nil {
		return nil
	}

	generated := report.GeneratedAt.Format(time.RFC3339)
	rows := make([][]interface{}, 0, len(report.Lines))
	for _, line := range report.Lines {
		m := line.Metrics
		rows = append(rows, []interface{}{
			generated,
			report.ID,
			report.RootID,
			line.NodeID,
			line.StageID,
			line.Depth,
			rounded(m.InputWeight),
			rounded(m.OutputWeight),
			rounded(m.AccumulatedCost),
			rounded(m.CostPerKg),
		})
	}
	return rows
}

func amount(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func rounded(v float64) float64 {
	return decimal.NewFromFloat(v).Round(sheetPlaces).InexactFloat64()
}
