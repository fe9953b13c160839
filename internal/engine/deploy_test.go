package engine

import (
	"testing"

	"github.com/aegisstack/aegis-fusion/internal/geo"
	"github.com/aegisstack/aegis-fusion/internal/models"
)

func TestOptimizeRanksByDistance(t *testing.T) {
	objective := geo.Point{Lat: 34.0522, Lon: -118.2437}
	units := []models.FriendlyUnit{
		unit("far", 34.30, -118.24),
		unit("near", 34.06, -118.24),
		unit("mid", 34.15, -118.24),
	}

	recs, err := NewDeploymentOptimizer(nil).Optimize(units, objective)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d recommendations, want 3", len(recs))
	}
	order := []string{"near", "mid", "far"}
	for i, want := range order {
		if recs[i].UnitID != want {
			t.Errorf("rank %d = %s, want %s", i+1, recs[i].UnitID, want)
		}
		if recs[i].Priority != i+1 {
			t.Errorf("priority = %d, want %d", recs[i].Priority, i+1)
		}
	}
}

func TestOptimizeETAAndRoute(t *testing.T) {
	objective := geo.Point{Lat: 34.0522, Lon: -118.2437}
	u := unit("alpha", 34.32, -118.2437) // ~30km north

	recs, err := NewDeploymentOptimizer(nil).Optimize([]models.FriendlyUnit{u}, objective)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	r := recs[0]
	if r.DistanceKm < 28 || r.DistanceKm > 32 {
		t.Errorf("distance = %v km, want ~30", r.DistanceKm)
	}
	// ~30km at the 30 km/h planning speed.
	if r.ETAHours < 0.9 || r.ETAHours > 1.1 {
		t.Errorf("eta = %v h, want ~1", r.ETAHours)
	}
	// Objective is due south.
	if r.BearingDeg < 170 || r.BearingDeg > 190 {
		t.Errorf("bearing = %v, want ~180", r.BearingDeg)
	}
	if len(r.Route) != 2 || r.Route[0] != u.Position || r.Route[1] != objective {
		t.Errorf("route = %+v", r.Route)
	}
	if r.Reasoning == "" {
		t.Error("recommendation should carry reasoning")
	}
}

func TestOptimizeSkipsInactive(t *testing.T) {
	u := unit("alpha", 34.06, -118.24)
	u.Active = false
	recs, err := NewDeploymentOptimizer(nil).Optimize([]models.FriendlyUnit{u}, geo.Point{Lat: 34.05, Lon: -118.24})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d recommendations, want 0", len(recs))
	}
}

func TestOptimizeEmptyAvailability(t *testing.T) {
	recs, err := NewDeploymentOptimizer(nil).Optimize(nil, geo.Point{Lat: 34.05, Lon: -118.24})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d recommendations, want 0", len(recs))
	}
}

func TestOptimizeInvalidObjective(t *testing.T) {
	if _, err := NewDeploymentOptimizer(nil).Optimize(nil, geo.Point{Lat: 91, Lon: 0}); err == nil {
		t.Fatal("expected error for invalid objective")
	}
}
