package engine

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aegisstack/aegis-fusion/internal/models"
)

// rulePack is the on-disk format for recommendation overrides. Statuses
// absent from the pack keep their built-in guidance.
type rulePack struct {
	Recommendations map[models.AssessmentStatus][]string `yaml:"recommendations"`
}

// Recommender maps a situation assessment onto commander guidance. Guidance
// is keyed by assessment status and can be overridden by a YAML rule pack.
type Recommender struct {
	logger *slog.Logger
	rules  map[models.AssessmentStatus][]string
}

// NewRecommender creates a Recommender with the built-in guidance table.
func NewRecommender(logger *slog.Logger) *Recommender {
	return &Recommender{
		logger: logger,
		rules: map[models.AssessmentStatus][]string{
			models.AssessmentCritical: {
				"Adopt immediate defensive posture across all units",
				"Request fire support and QRF reinforcement",
				"Consider repositioning units away from high-threat clusters",
			},
			models.AssessmentElevated: {
				"Increase patrol frequency and sensor coverage",
				"Place QRF on standby",
				"Re-task ISR assets onto unresolved threat clusters",
			},
			models.AssessmentModerate: {
				"Maintain current posture with heightened observation",
				"Verify communications with all forward units",
			},
			models.AssessmentLow: {
				"Continue routine operations",
			},
		},
	}
}

// LoadRules replaces the built-in guidance for the statuses present in the
// YAML pack at path.
func (r *Recommender) LoadRules(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rule pack: %w", err)
	}
	var pack rulePack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return fmt.Errorf("parse rule pack: %w", err)
	}
	for status, lines := range pack.Recommendations {
		if len(lines) == 0 {
			continue
		}
		r.rules[status] = lines
	}
	if r.logger != nil {
		r.logger.Info("recommendation rules loaded", "path", path, "statuses", len(pack.Recommendations))
	}
	return nil
}

// Recommend returns the guidance lines for the assessment. When units are
// at risk a fratricide warning is appended after the status guidance.
func (r *Recommender) Recommend(assessment *models.SituationAssessment) []string {
	if assessment == nil {
		return nil
	}
	base := r.rules[assessment.Status]
	recs := make([]string, 0, len(base)+1)
	recs = append(recs, base...)
	if assessment.UnitsAtRisk > 0 {
		recs = append(recs, fmt.Sprintf(
			"WARNING: %d friendly unit(s) within %.0f km of high or critical threats",
			assessment.UnitsAtRisk, atRiskRadiusKm))
	}
	return recs
}
