package models

import (
	"errors"
	"fmt"
	"math"

	"github.com/mitchellh/mapstructure"
)

// ErrNonFiniteCost is returned when a cost line decodes to NaN or an infinity.
var ErrNonFiniteCost = errors.New("cost must be a finite number")

// CostEntry holds the direct costs entered for one batch node. Absent fields are zero.
type CostEntry struct {
	CostoAdquisicion float64 `json:"costoAdquisicion" bson:"costo_adquisicion"`
	CostoManoDeObra  float64 `json:"costoManoDeObra" bson:"costo_mano_de_obra"`
	CostoInsumos     float64 `json:"costoInsumos" bson:"costo_insumos"`
	CostoOperativos  float64 `json:"costoOperativos" bson:"costo_operativos"`
}

// Total returns the sum of the four direct cost lines.
func (e CostEntry) Total() float64 {
	return e.CostoAdquisicion + e.CostoManoDeObra + e.CostoInsumos + e.CostoOperativos
}

// Validate rejects entries carrying NaN or infinite cost lines.
func (e CostEntry) Validate() error {
	lines := []struct {
		name  string
		value float64
	}{
		{"costoAdquisicion", e.CostoAdquisicion},
		{"costoManoDeObra", e.CostoManoDeObra},
		{"costoInsumos", e.CostoInsumos},
		{"costoOperativos", e.CostoOperativos},
	}
	for _, line := range lines {
		if math.IsNaN(line.value) || math.IsInf(line.value, 0) {
			return fmt.Errorf("%s: %w", line.name, ErrNonFiniteCost)
		}
	}
	return nil
}

// DecodeCostEntry converts a loosely typed form payload into a CostEntry.
// Numeric strings are accepted, empty strings count as zero and unknown keys are ignored.
func DecodeCostEntry(form map[string]interface{}) (CostEntry, error) {
	var entry CostEntry
	if len(form) == 0 {
		return entry, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &entry,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return CostEntry{}, fmt.Errorf("create cost entry decoder: %w", err)
	}

	if err := decoder.Decode(form); err != nil {
		return CostEntry{}, fmt.Errorf("decode cost entry: %w", err)
	}
	if err := entry.Validate(); err != nil {
		return CostEntry{}, fmt.Errorf("decode cost entry: %w", err)
	}
	return entry, nil
}

// CostLedger maps a batch node id to its direct cost entry.
type CostLedger map[string]CostEntry

// Entry returns the cost entry of a node, or the zero entry when none was
// recorded. Non-finite entries already in storage also read as zero.
func (l CostLedger) Entry(nodeID string) CostEntry {
	if l == nil {
		return CostEntry{}
	}
	entry := l[nodeID]
	if entry.Validate() != nil {
		return CostEntry{}
	}
	return entry
}

// Set stores the entry for a node.
func (l CostLedger) Set(nodeID string, entry CostEntry) {
	l[nodeID] = entry
}

// CostMetrics is the computed costing outcome of one batch node.
//
// AccumulatedCost always equals InheritedCost + ProcessCost, and CostPerKg is
// zero whenever OutputWeight is not positive.
type CostMetrics struct {
	InputWeight     float64 `json:"inputWeight" bson:"input_weight"`
	OutputWeight    float64 `json:"outputWeight" bson:"output_weight"`
	InheritedCost   float64 `json:"inheritedCost" bson:"inherited_cost"`
	ProcessCost     float64 `json:"processCost" bson:"process_cost"`
	AccumulatedCost float64 `json:"accumulatedCost" bson:"accumulated_cost"`
	CostPerKg       float64 `json:"costPerKg" bson:"cost_per_kg"`
}
