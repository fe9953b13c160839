package engine

import (
	"fmt"
	"log/slog"

	"github.com/aegisstack/aegis-fusion/internal/geo"
	"github.com/aegisstack/aegis-fusion/internal/models"
)

// atRiskRadiusKm is the distance inside which a severe threat places a
// friendly unit at risk.
const atRiskRadiusKm = 5.0

// Assessor condenses the fused threat picture and friendly-force laydown
// into a single situation assessment.
type Assessor struct {
	logger *slog.Logger
}

// NewAssessor creates an Assessor.
func NewAssessor(logger *slog.Logger) *Assessor {
	return &Assessor{logger: logger}
}

// Assess scores the overall situation. A unit is at risk when its nearest
// fused threat lies within 5 km and is high or critical. The status ladder
// is evaluated top down: critical when the average threat score reaches 3
// or more than 30% of units are at risk, elevated when the average reaches
// 2.5 or any unit is at risk, moderate when the average reaches 2, low
// otherwise.
func (a *Assessor) Assess(threats []models.FusedThreat, units []models.FriendlyUnit) (*models.SituationAssessment, error) {
	totalScore := 0
	for _, t := range threats {
		totalScore += t.Level.Score()
	}
	n := len(threats)
	if n < 1 {
		n = 1
	}
	avg := float64(totalScore) / float64(n)

	var atRisk []models.AtRiskUnit
	activeUnits := 0
	for _, u := range units {
		if !u.Active {
			continue
		}
		activeUnits++
		var (
			nearest     *models.FusedThreat
			nearestDist float64
		)
		for i := range threats {
			dist, err := geo.Distance(u.Position, threats[i].Position)
			if err != nil {
				return nil, fmt.Errorf("unit %s: %w", u.UnitID, err)
			}
			if nearest == nil || dist < nearestDist {
				nearest = &threats[i]
				nearestDist = dist
			}
		}
		if nearest == nil || nearestDist >= atRiskRadiusKm {
			continue
		}
		if nearest.Level != models.LevelHigh && nearest.Level != models.LevelCritical {
			continue
		}
		atRisk = append(atRisk, models.AtRiskUnit{
			UnitID:           u.UnitID,
			Name:             u.DisplayName(),
			ThreatDistanceKm: nearestDist,
			ThreatType:       nearest.Type,
			ThreatLevel:      nearest.Level,
		})
	}

	// The at-risk fraction counts only the units eligible for the at-risk
	// scan, so inactive entries cannot dilute it.
	status := models.AssessmentLow
	switch {
	case avg >= 3 || float64(len(atRisk)) > 0.3*float64(activeUnits):
		status = models.AssessmentCritical
	case avg >= 2.5 || len(atRisk) > 0:
		status = models.AssessmentElevated
	case avg >= 2:
		status = models.AssessmentModerate
	}

	assessment := &models.SituationAssessment{
		Status:         status,
		AvgThreatLevel: avg,
		ThreatCount:    len(threats),
		UnitsAtRisk:    len(atRisk),
		AtRiskUnits:    atRisk,
		Summary: fmt.Sprintf("%d active threats (avg level %.1f), %d of %d friendly units at risk, situation %s",
			len(threats), avg, len(atRisk), activeUnits, status),
	}

	if a.logger != nil {
		a.logger.Info("situation assessed",
			"status", string(status), "threats", len(threats), "units_at_risk", len(atRisk))
	}
	return assessment, nil
}
