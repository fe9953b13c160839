package engine

import (
	"testing"
	"time"

	"github.com/aegisstack/aegis-fusion/internal/geo"
	"github.com/aegisstack/aegis-fusion/internal/models"
)

func newTestPipeline() *Pipeline {
	return NewPipeline(NewCorrelator(nil), NewAssessor(nil), NewRecommender(nil), nil)
}

func TestBuildPicture(t *testing.T) {
	now := time.Now().UTC()
	dets := []models.ThreatDetection{
		detection(1, 34.0522, -118.2437, 0.8, models.SourceDrone, models.LevelHigh, now),
		detection(2, 34.0525, -118.2437, 0.7, models.SourceSensor, models.LevelMedium, now),
		detection(3, 34.1500, -118.4000, 0.6, models.SourceSatellite, models.LevelLow, now),
	}
	units := []models.FriendlyUnit{
		unit("alpha", 34.0560, -118.2437),
		unit("bravo", 34.9000, -118.9000),
	}

	pic, err := newTestPipeline().BuildPicture(dets, units, nil, 0.5, 1.0)
	if err != nil {
		t.Fatalf("BuildPicture: %v", err)
	}
	if pic.Threats.Total != 2 {
		t.Errorf("fused threats = %d, want 2", pic.Threats.Total)
	}
	if pic.Threats.ByLevel[models.LevelHigh] != 1 {
		t.Errorf("by_level = %v", pic.Threats.ByLevel)
	}
	if pic.FriendlyForces.Total != 2 || pic.FriendlyForces.ByStatus[models.StatusGreen] != 2 {
		t.Errorf("forces = %+v", pic.FriendlyForces)
	}
	// alpha sits under a high fused threat.
	if pic.Assessment.UnitsAtRisk != 1 {
		t.Errorf("units at risk = %d, want 1", pic.Assessment.UnitsAtRisk)
	}
	if len(pic.Recommendations) == 0 {
		t.Error("picture should carry recommendations")
	}
	if pic.Timestamp.IsZero() {
		t.Error("picture should be timestamped")
	}
}

func TestBuildPictureEmptyInputs(t *testing.T) {
	pic, err := newTestPipeline().BuildPicture(nil, nil, nil, 0.5, 1.0)
	if err != nil {
		t.Fatalf("BuildPicture: %v", err)
	}
	if pic.Threats.Total != 0 || pic.FriendlyForces.Total != 0 {
		t.Errorf("picture = %+v", pic)
	}
	if pic.Assessment.Status != models.AssessmentLow {
		t.Errorf("status = %s, want low", pic.Assessment.Status)
	}
}

func TestBuildPictureCarriesBounds(t *testing.T) {
	bounds := &geo.Bounds{North: 35, South: 34, East: -118, West: -119}
	pic, err := newTestPipeline().BuildPicture(nil, nil, bounds, 0.5, 1.0)
	if err != nil {
		t.Fatalf("BuildPicture: %v", err)
	}
	if pic.AreaBounds == nil || *pic.AreaBounds != *bounds {
		t.Errorf("bounds = %+v", pic.AreaBounds)
	}
}

func TestBuildPicturePropagatesFusionError(t *testing.T) {
	dets := []models.ThreatDetection{
		detection(1, 34.05, -118.24, 0.8, models.SourceDrone, models.LevelHigh, time.Time{}),
	}
	if _, err := newTestPipeline().BuildPicture(dets, nil, nil, 0.5, 1.0); err == nil {
		t.Fatal("expected fusion error to propagate")
	}
}
