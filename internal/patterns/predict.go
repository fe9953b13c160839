package patterns

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/aegisstack/aegis-fusion/internal/models"
)

// Predictor extrapolates mined patterns into forward-looking threat
// predictions. Heuristic ranking only, not a calibrated model.
type Predictor struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewPredictor creates a Predictor.
func NewPredictor(logger *slog.Logger) *Predictor {
	return &Predictor{logger: logger, now: time.Now}
}

// Predict emits one prediction per geographic cluster, positioned at the
// cluster centroid and timed at the midpoint of the horizon. Probability
// and confidence both carry the cluster's derived confidence. Temporal and
// escalation patterns shape no predictions of their own.
func (p *Predictor) Predict(patterns []Pattern, horizonHours int) []models.PredictedThreat {
	now := p.now().UTC()
	predictedAt := now.Add(time.Duration(horizonHours) * time.Hour / 2)

	var preds []models.PredictedThreat
	for _, pat := range patterns {
		if pat.Kind != KindGeographicCluster || pat.Center == nil {
			continue
		}
		preds = append(preds, models.PredictedThreat{
			Type:          pat.DominantType,
			Position:      *pat.Center,
			Probability:   pat.Confidence,
			Confidence:    pat.Confidence,
			PredictedTime: predictedAt,
			Reasoning: fmt.Sprintf("Recurring cluster of %d %s threats near this location",
				pat.ThreatCount, pat.DominantType),
		})
	}

	if p.logger != nil {
		p.logger.Debug("threat prediction complete",
			"patterns", len(patterns), "predictions", len(preds), "horizon_hours", horizonHours)
	}
	return preds
}
