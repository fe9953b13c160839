package engine

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/aegisstack/aegis-fusion/internal/geo"
	"github.com/aegisstack/aegis-fusion/internal/models"
)

// assumedSpeedKmh is the planning speed used for ETA estimates when a unit
// reports no speed of its own.
const assumedSpeedKmh = 30.0

// DeploymentOptimizer ranks available units by suitability for moving on an
// objective.
type DeploymentOptimizer struct {
	logger *slog.Logger
}

// NewDeploymentOptimizer creates a DeploymentOptimizer.
func NewDeploymentOptimizer(logger *slog.Logger) *DeploymentOptimizer {
	return &DeploymentOptimizer{logger: logger}
}

// Optimize ranks active units by distance to the objective, closest first,
// and returns one recommendation per unit with a direct two-point route.
// Ties keep the input order. An empty unit list yields no recommendations.
func (o *DeploymentOptimizer) Optimize(units []models.FriendlyUnit, objective geo.Point) ([]models.DeploymentRecommendation, error) {
	if err := objective.Validate(); err != nil {
		return nil, err
	}

	var recs []models.DeploymentRecommendation
	for _, u := range units {
		if !u.Active {
			continue
		}
		dist, err := geo.Distance(u.Position, objective)
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", u.UnitID, err)
		}
		bearing, err := geo.Bearing(u.Position, objective)
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", u.UnitID, err)
		}

		eta := dist / assumedSpeedKmh
		recs = append(recs, models.DeploymentRecommendation{
			UnitID:     u.UnitID,
			Name:       u.Name,
			Callsign:   u.Callsign,
			Origin:     u.Position,
			DistanceKm: dist,
			ETAHours:   eta,
			BearingDeg: bearing,
			Route:      []geo.Point{u.Position, objective},
			Reasoning: fmt.Sprintf("%s is %.1f km from the objective, ETA %.1f h at %.0f km/h",
				u.DisplayName(), dist, eta, assumedSpeedKmh),
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].DistanceKm < recs[j].DistanceKm
	})
	for i := range recs {
		recs[i].Priority = i + 1
	}

	if o.logger != nil {
		o.logger.Debug("deployment optimized", "candidates", len(recs))
	}
	return recs, nil
}
