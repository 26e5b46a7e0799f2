package allocation

import (
	"fmt"
	"strings"

	"github.com/mamadbah2/farmtrace/internal/domain/models"
)

// FieldSelection decides which declared stage fields count as the quantity.
type FieldSelection int

const (
	// SelectFirstDeclared uses entradas[0] and salidas[0] only.
	SelectFirstDeclared FieldSelection = iota
	// SelectSumDeclared adds up every resolvable declared field, for stages
	// such as blending that consume several inputs.
	SelectSumDeclared
)

// String implements fmt.Stringer.
func (s FieldSelection) String() string {
	switch s {
	case SelectSumDeclared:
		return "sum"
	default:
		return "first"
	}
}

// ParseFieldSelection maps "first" and "sum" to a FieldSelection. Empty means first.
func ParseFieldSelection(value string) (FieldSelection, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "first":
		return SelectFirstDeclared, nil
	case "sum":
		return SelectSumDeclared, nil
	default:
		return SelectFirstDeclared, fmt.Errorf("unknown field selection %q", value)
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithFieldSelection sets the quantity field selection strategy.
func WithFieldSelection(selection FieldSelection) Option {
	return func(e *Engine) {
		e.selection = selection
	}
}

// Engine allocates costs over batch trees. It holds no per-run state and is
// safe for concurrent use.
type Engine struct {
	selection FieldSelection
}

// New builds an Engine. Without options it uses SelectFirstDeclared.
func New(opts ...Option) *Engine {
	e := &Engine{selection: SelectFirstDeclared}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Selection reports the configured field selection strategy.
func (e *Engine) Selection() FieldSelection {
	return e.selection
}

// ComputeCosts runs the default engine over the lineage rooted at root.
func ComputeCosts(root *models.BatchNode, ledger models.CostLedger, templates models.StageTemplates) map[string]models.CostMetrics {
	return New().Compute(root, ledger, templates)
}

// Compute walks the tree depth-first, parent before children, and returns the
// metrics of every node keyed by node id.
//
// A node's inherited cost is its parent's cost per kg times the node's input
// weight; the root inherits nothing. A node id met a second time is skipped,
// so malformed trees cannot recurse forever.
func (e *Engine) Compute(root *models.BatchNode, ledger models.CostLedger, templates models.StageTemplates) map[string]models.CostMetrics {
	result := make(map[string]models.CostMetrics)
	if root == nil {
		return result
	}
	e.visit(root, nil, ledger, templates, result)
	return result
}

func (e *Engine) visit(node *models.BatchNode, parent *models.CostMetrics, ledger models.CostLedger, templates models.StageTemplates, result map[string]models.CostMetrics) {
	if node == nil {
		return
	}
	if _, seen := result[node.ID]; seen {
		return
	}

	var fields models.StageFields
	if stage, ok := FindStage(templates, node.TemplateID, node.StageID); ok {
		fields = stage.CamposJSON
	}

	input, ok := e.quantity(node.Data, fields.Entradas)
	if !ok {
		input = 0
		if parent != nil {
			input = parent.OutputWeight
		}
	}

	output, _ := e.quantity(node.Data, fields.Salidas)

	metrics := models.CostMetrics{
		InputWeight:  input,
		OutputWeight: output,
		ProcessCost:  ledger.Entry(node.ID).Total(),
	}
	if parent != nil {
		metrics.InheritedCost = parent.CostPerKg * input
	}
	metrics.AccumulatedCost = metrics.InheritedCost + metrics.ProcessCost
	if output > 0 {
		metrics.CostPerKg = metrics.AccumulatedCost / output
	}

	result[node.ID] = metrics

	for _, child := range node.Children {
		e.visit(child, &metrics, ledger, templates, result)
	}
}

func (e *Engine) quantity(data map[string]interface{}, fields []models.FieldSpec) (float64, bool) {
	if len(fields) == 0 {
		return 0, false
	}

	if e.selection != SelectSumDeclared {
		return ResolveFieldValue(data, fields[0].Name)
	}

	var (
		total    float64
		resolved bool
	)
	for _, field := range fields {
		if v, ok := ResolveFieldValue(data, field.Name); ok {
			total += v
			resolved = true
		}
	}
	return total, resolved
}

// NodeCost pairs a node with its computed metrics and its depth in the tree.
type NodeCost struct {
	Node    *models.BatchNode
	Depth   int
	Metrics models.CostMetrics
}

// Ordered lists the computed nodes of the tree in pre-order, the order a
// presenter renders them in. Nodes missing from metrics are left out.
func Ordered(root *models.BatchNode, metrics map[string]models.CostMetrics) []NodeCost {
	var out []NodeCost
	seen := make(map[string]struct{}, len(metrics))

	models.Walk(root, func(node *models.BatchNode, depth int) bool {
		if _, dup := seen[node.ID]; dup {
			return false
		}
		seen[node.ID] = struct{}{}

		m, ok := metrics[node.ID]
		if !ok {
			return false
		}
		out = append(out, NodeCost{Node: node, Depth: depth, Metrics: m})
		return true
	})

	return out
}
