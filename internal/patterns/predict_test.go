package patterns

import (
	"testing"
	"time"

	"github.com/aegisstack/aegis-fusion/internal/geo"
	"github.com/aegisstack/aegis-fusion/internal/models"
)

func TestPredictFromClusters(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	p := NewPredictor(nil)
	p.now = func() time.Time { return now }

	center := geo.Point{Lat: 34.05, Lon: -118.24}
	patterns := []Pattern{
		{
			Kind:         KindGeographicCluster,
			Confidence:   0.5,
			ThreatCount:  5,
			Center:       &center,
			DominantType: models.ThreatArtillery,
		},
		{Kind: KindTemporal, Confidence: 0.8, PeakHour: 3},
		{Kind: KindEscalation, Confidence: 0.9},
	}

	preds := p.Predict(patterns, 24)
	if len(preds) != 1 {
		t.Fatalf("predictions = %d, want 1 (clusters only)", len(preds))
	}
	pred := preds[0]
	if pred.Position != center || pred.Type != models.ThreatArtillery {
		t.Errorf("prediction = %+v", pred)
	}
	if pred.Probability != 0.5 || pred.Confidence != 0.5 {
		t.Errorf("probability/confidence = %v/%v, want cluster confidence", pred.Probability, pred.Confidence)
	}
	// Midpoint of a 24h horizon.
	if want := now.Add(12 * time.Hour); !pred.PredictedTime.Equal(want) {
		t.Errorf("predicted time = %v, want %v", pred.PredictedTime, want)
	}
	if pred.Reasoning == "" {
		t.Error("prediction should carry reasoning")
	}
}

func TestPredictNoPatterns(t *testing.T) {
	if preds := NewPredictor(nil).Predict(nil, 24); len(preds) != 0 {
		t.Errorf("predictions = %v, want none", preds)
	}
}
