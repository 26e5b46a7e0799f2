// Package filestore reads costing inputs from local YAML or JSON files: stage
// templates kept under version control and exported lineages for offline runs.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mamadbah2/farmtrace/internal/domain/models"
)

type templatesFile struct {
	Version   int                   `yaml:"version" json:"version"`
	Templates models.StageTemplates `yaml:"templates" json:"templates"`
}

// LoadStageTemplates reads a versioned stage template file.
func LoadStageTemplates(path string) (models.StageTemplates, error) {
	var file templatesFile
	if err := decodeFile(path, &file); err != nil {
		return nil, err
	}

	if file.Version != 1 {
		return nil, fmt.Errorf("unsupported stage templates version: %d", file.Version)
	}

	if file.Templates == nil {
		file.Templates = models.StageTemplates{}
	}
	file.Templates.SortByOrder()
	return file.Templates, nil
}

// LoadLineage reads a nested batch tree.
func LoadLineage(path string) (*models.BatchNode, error) {
	var root models.BatchNode
	if err := decodeFile(path, &root); err != nil {
		return nil, err
	}
	if root.ID == "" {
		return nil, fmt.Errorf("lineage file %s: root batch has no id", path)
	}
	return &root, nil
}

// LoadLedger reads a {nodeID: {costoAdquisicion, ...}} mapping. Values may be
// numbers or numeric strings, as exported by the entry forms.
func LoadLedger(path string) (models.CostLedger, error) {
	var raw map[string]map[string]interface{}
	if err := decodeFile(path, &raw); err != nil {
		return nil, err
	}

	ledger := make(models.CostLedger, len(raw))
	for nodeID, form := range raw {
		entry, err := models.DecodeCostEntry(form)
		if err != nil {
			return nil, fmt.Errorf("ledger entry %s: %w", nodeID, err)
		}
		ledger.Set(nodeID, entry)
	}
	return ledger, nil
}

// TemplateSource serves stage templates from a file.
type TemplateSource struct {
	path string
}

// NewTemplateSource builds a TemplateSource reading path on every load.
func NewTemplateSource(path string) *TemplateSource {
	return &TemplateSource{path: path}
}

// LoadStageTemplates implements the costing service template source.
func (s *TemplateSource) LoadStageTemplates(_ context.Context) (models.StageTemplates, error) {
	return LoadStageTemplates(s.path)
}

func decodeFile(path string, out interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(b, out); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(b, out); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	return nil
}
