package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/aegisstack/aegis-fusion/internal/geo"
	"github.com/aegisstack/aegis-fusion/internal/models"
)

// Pipeline chains fusion, assessment and recommendation into the composite
// tactical picture served to clients and pushed over the broadcast hub.
type Pipeline struct {
	correlator  *Correlator
	assessor    *Assessor
	recommender *Recommender
	logger      *slog.Logger
}

// NewPipeline wires the stage engines together.
func NewPipeline(correlator *Correlator, assessor *Assessor, recommender *Recommender, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		correlator:  correlator,
		assessor:    assessor,
		recommender: recommender,
		logger:      logger,
	}
}

// BuildPicture fuses raw detections, assesses the result against the
// friendly laydown and attaches commander guidance. bounds, when non-nil,
// is recorded on the picture; callers pre-filter inputs to the area.
func (p *Pipeline) BuildPicture(detections []models.ThreatDetection, units []models.FriendlyUnit, bounds *geo.Bounds, radiusKm, windowHours float64) (*models.TacticalPicture, error) {
	fused, err := p.correlator.Fuse(detections, radiusKm, windowHours)
	if err != nil {
		return nil, fmt.Errorf("fuse detections: %w", err)
	}

	assessment, err := p.assessor.Assess(fused, units)
	if err != nil {
		return nil, fmt.Errorf("assess situation: %w", err)
	}

	picture := &models.TacticalPicture{
		Timestamp:       time.Now().UTC(),
		AreaBounds:      bounds,
		Threats:         summarizeThreats(fused),
		FriendlyForces:  summarizeForces(units),
		Assessment:      *assessment,
		Recommendations: p.recommender.Recommend(assessment),
	}

	if p.logger != nil {
		p.logger.Info("tactical picture built",
			"threats", picture.Threats.Total,
			"forces", picture.FriendlyForces.Total,
			"status", string(assessment.Status))
	}
	return picture, nil
}

func summarizeThreats(fused []models.FusedThreat) models.ThreatSummary {
	s := models.ThreatSummary{
		Total:   len(fused),
		ByType:  make(map[models.ThreatType]int),
		ByLevel: make(map[models.ThreatLevel]int),
		Data:    fused,
	}
	for _, f := range fused {
		s.ByType[f.Type]++
		s.ByLevel[f.Level]++
	}
	return s
}

func summarizeForces(units []models.FriendlyUnit) models.ForceSummary {
	s := models.ForceSummary{
		Total:    len(units),
		ByStatus: make(map[models.UnitStatus]int),
		Data:     units,
	}
	for _, u := range units {
		s.ByStatus[u.Status]++
	}
	return s
}
