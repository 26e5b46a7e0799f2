package allocation

import "github.com/mamadbah2/farmtrace/internal/domain/models"

// FindStage returns the stage stageID of template templateID. A miss means
// the node's quantity fields are unknown and its weights fall back to defaults.
func FindStage(templates models.StageTemplates, templateID, stageID string) (models.StageDefinition, bool) {
	for _, stage := range templates[templateID] {
		if stage.ID == stageID {
			return stage, true
		}
	}
	return models.StageDefinition{}, false
}
