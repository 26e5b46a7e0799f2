package models

import "time"

// CostLine is the costing outcome of one node inside a report, in pre-order.
type CostLine struct {
	NodeID  string      `bson:"node_id" json:"node_id"`
	StageID string      `bson:"stage_id" json:"stage_id"`
	Depth   int         `bson:"depth" json:"depth"`
	Leaf    bool        `bson:"leaf" json:"leaf"`
	Metrics CostMetrics `bson:"metrics" json:"metrics"`
}

// CostReport is a persisted snapshot of one lineage costing run.
type CostReport struct {
	ID              string     `bson:"_id" json:"id"`
	RootID          string     `bson:"root_id" json:"root_id"`
	GeneratedAt     time.Time  `bson:"generated_at" json:"generated_at"`
	Lines           []CostLine `bson:"lines" json:"lines"`
	TotalDirectCost float64    `bson:"total_direct_cost" json:"total_direct_cost"`
	FinalOutputKg   float64    `bson:"final_output_kg" json:"final_output_kg"`
	FinalCostPerKg  float64    `bson:"final_cost_per_kg" json:"final_cost_per_kg"`
	IncompleteNodes []string   `bson:"incomplete_nodes,omitempty" json:"incomplete_nodes,omitempty"`
}
