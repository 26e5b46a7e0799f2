package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// FieldSpec declares one data field of a stage form.
type FieldSpec struct {
	Label string `json:"label" yaml:"label" bson:"label"`
	Name  string `json:"name" yaml:"name" bson:"name"`
	Type  string `json:"type" yaml:"type" bson:"type"`
}

// StageFields groups the declared inputs, outputs and free variables of a stage.
// By convention the first declared input and output are the quantity fields.
type StageFields struct {
	Entradas  []FieldSpec `json:"entradas" yaml:"entradas" bson:"entradas"`
	Salidas   []FieldSpec `json:"salidas" yaml:"salidas" bson:"salidas"`
	Variables []FieldSpec `json:"variables" yaml:"variables" bson:"variables"`
}

// UnmarshalJSON accepts the fields either as an object or as a string holding
// the JSON object, which is how campos_json columns are usually persisted.
func (f *StageFields) UnmarshalJSON(data []byte) error {
	type plain StageFields

	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decode campos_json string: %w", err)
		}
		if raw == "" {
			*f = StageFields{}
			return nil
		}
		data = []byte(raw)
	}

	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("decode campos_json: %w", err)
	}
	*f = StageFields(decoded)
	return nil
}

// InputFieldName returns the name of the first declared input field, or "".
func (f StageFields) InputFieldName() string {
	if len(f.Entradas) == 0 {
		return ""
	}
	return f.Entradas[0].Name
}

// OutputFieldName returns the name of the first declared output field, or "".
func (f StageFields) OutputFieldName() string {
	if len(f.Salidas) == 0 {
		return ""
	}
	return f.Salidas[0].Name
}

// StageDefinition is one stage of a product template.
type StageDefinition struct {
	ID          string      `json:"id" yaml:"id" bson:"id"`
	NombreEtapa string      `json:"nombre_etapa" yaml:"nombre_etapa" bson:"nombre_etapa"`
	Orden       int         `json:"orden" yaml:"orden" bson:"orden"`
	CamposJSON  StageFields `json:"campos_json" yaml:"campos_json" bson:"campos_json"`
}

// StageTemplates maps a template id to its ordered stage list.
type StageTemplates map[string][]StageDefinition

// SortByOrder orders every template's stages by Orden.
func (t StageTemplates) SortByOrder() {
	for id := range t {
		stages := t[id]
		sort.SliceStable(stages, func(i, j int) bool { return stages[i].Orden < stages[j].Orden })
	}
}
