// Package patterns mines historical threat detections for spatial hot
// spots, time-of-day concentrations and escalation trends, and projects
// them into advisory threat predictions.
package patterns

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/aegisstack/aegis-fusion/internal/geo"
	"github.com/aegisstack/aegis-fusion/internal/models"
)

// Kind discriminates mined pattern variants.
type Kind string

const (
	KindGeographicCluster Kind = "geographic_cluster"
	KindTemporal          Kind = "temporal"
	KindTypeFrequency     Kind = "threat_frequency"
	KindEscalation        Kind = "escalation"
)

// Pattern is a single mined regularity. Only the fields relevant to its
// Kind are populated.
type Pattern struct {
	ID           string                        `json:"id"`
	Kind         Kind                          `json:"kind"`
	Description  string                        `json:"description"`
	Confidence   float64                       `json:"confidence"`
	ThreatCount  int                           `json:"threat_count"`
	Center       *geo.Point                    `json:"center,omitempty"`
	RadiusKm     float64                       `json:"radius_km,omitempty"`
	DominantType models.ThreatType             `json:"dominant_type,omitempty"`
	PeakHour     int                           `json:"peak_hour,omitempty"`
	EarlyMean    float64                       `json:"early_mean,omitempty"`
	RecentMean   float64                       `json:"recent_mean,omitempty"`
	Frequencies  map[models.ThreatType]float64 `json:"frequencies,omitempty"`
}

// Mining thresholds.
const (
	defaultMinClusterSize  = 3
	defaultClusterRadiusKm = 1.0
	minTemporalSamples     = 5
	peakHourFraction       = 0.30
	minEscalationSamples   = 10
	escalationRatio        = 1.2
)

// Miner extracts patterns from historical detections. Stateless; safe for
// concurrent use.
type Miner struct {
	logger *slog.Logger
}

// NewMiner creates a Miner.
func NewMiner(logger *slog.Logger) *Miner {
	return &Miner{logger: logger}
}

// Mine runs every detector over the detections and collects the results.
func (m *Miner) Mine(threats []models.ThreatDetection) ([]Pattern, error) {
	patterns, err := m.FindClusters(threats, defaultMinClusterSize, defaultClusterRadiusKm)
	if err != nil {
		return nil, err
	}
	if p := m.TemporalPattern(threats); p != nil {
		patterns = append(patterns, *p)
	}
	if p := m.TypeFrequency(threats); p != nil {
		patterns = append(patterns, *p)
	}
	if p := m.EscalationPattern(threats); p != nil {
		patterns = append(patterns, *p)
	}
	if m.logger != nil {
		m.logger.Debug("pattern mining complete",
			"threats", len(threats), "patterns", len(patterns))
	}
	return patterns, nil
}

// FindClusters groups detections into spatial hot spots. Grouping is
// seed-anchored: membership is tested against the cluster's first member
// only, with no time gate. Clusters below minSize are discarded. The
// cluster confidence grows with size and saturates at 0.9.
func (m *Miner) FindClusters(threats []models.ThreatDetection, minSize int, radiusKm float64) ([]Pattern, error) {
	consumed := make([]bool, len(threats))
	var patterns []Pattern

	for i := range threats {
		if consumed[i] {
			continue
		}
		consumed[i] = true
		members := []models.ThreatDetection{threats[i]}

		for j := i + 1; j < len(threats); j++ {
			if consumed[j] {
				continue
			}
			dist, err := geo.Distance(threats[i].Position, threats[j].Position)
			if err != nil {
				return nil, fmt.Errorf("threat %d: %w", threats[j].ID, err)
			}
			if dist > radiusKm {
				continue
			}
			consumed[j] = true
			members = append(members, threats[j])
		}

		if len(members) < minSize {
			continue
		}

		var latSum, lonSum float64
		typeCounts := make(map[models.ThreatType]int)
		for _, t := range members {
			latSum += t.Position.Lat
			lonSum += t.Position.Lon
			typeCounts[t.Type]++
		}
		center := geo.Point{
			Lat: latSum / float64(len(members)),
			Lon: lonSum / float64(len(members)),
		}
		dominant := dominantType(typeCounts)

		confidence := float64(len(members)) / 10
		if confidence > 0.9 {
			confidence = 0.9
		}

		patterns = append(patterns, Pattern{
			ID:           uuid.NewString(),
			Kind:         KindGeographicCluster,
			Confidence:   confidence,
			ThreatCount:  len(members),
			Center:       &center,
			RadiusKm:     radiusKm,
			DominantType: dominant,
			Description: fmt.Sprintf("Cluster of %d %s threats within %.1f km",
				len(members), dominant, radiusKm),
		})
	}
	return patterns, nil
}

// TemporalPattern reports the peak activity hour when one hour-of-day
// bucket holds at least 30% of all detections. Needs at least five samples;
// returns nil when no bucket dominates.
func (m *Miner) TemporalPattern(threats []models.ThreatDetection) *Pattern {
	if len(threats) < minTemporalSamples {
		return nil
	}

	var hours [24]int
	for _, t := range threats {
		hours[t.DetectedAt.UTC().Hour()]++
	}
	peakHour, peakCount := 0, 0
	for h, c := range hours {
		if c > peakCount {
			peakHour, peakCount = h, c
		}
	}

	frac := float64(peakCount) / float64(len(threats))
	if frac < peakHourFraction {
		return nil
	}
	confidence := frac
	if confidence > 0.8 {
		confidence = 0.8
	}

	return &Pattern{
		ID:          uuid.NewString(),
		Kind:        KindTemporal,
		Confidence:  confidence,
		ThreatCount: len(threats),
		PeakHour:    peakHour,
		Description: fmt.Sprintf("%.0f%% of threat activity concentrated around %02d:00Z",
			frac*100, peakHour),
	}
}

// TypeFrequency reports the share of each threat type across the input.
// Always present when the input is non-empty; the confidence is the
// dominant type's share.
func (m *Miner) TypeFrequency(threats []models.ThreatDetection) *Pattern {
	if len(threats) == 0 {
		return nil
	}

	counts := make(map[models.ThreatType]int)
	for _, t := range threats {
		counts[t.Type]++
	}
	freqs := make(map[models.ThreatType]float64, len(counts))
	for tt, c := range counts {
		freqs[tt] = float64(c) / float64(len(threats))
	}
	dominant := dominantType(counts)

	return &Pattern{
		ID:           uuid.NewString(),
		Kind:         KindTypeFrequency,
		Confidence:   freqs[dominant],
		ThreatCount:  len(threats),
		DominantType: dominant,
		Frequencies:  freqs,
		Description: fmt.Sprintf("%s threats account for %.0f%% of recent activity",
			dominant, freqs[dominant]*100),
	}
}

// EscalationPattern reports a rising threat trend. Detections are sorted by
// time and bisected; escalation is flagged when the recent half's mean
// level score exceeds 1.2x the early half's. Needs at least ten samples.
func (m *Miner) EscalationPattern(threats []models.ThreatDetection) *Pattern {
	if len(threats) < minEscalationSamples {
		return nil
	}

	ordered := make([]models.ThreatDetection, len(threats))
	copy(ordered, threats)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].DetectedAt.Before(ordered[j].DetectedAt)
	})

	mid := len(ordered) / 2
	earlyMean := meanLevelScore(ordered[:mid])
	recentMean := meanLevelScore(ordered[mid:])
	if recentMean <= escalationRatio*earlyMean {
		return nil
	}

	confidence := (recentMean - earlyMean) / 2
	if confidence > 0.9 {
		confidence = 0.9
	}

	return &Pattern{
		ID:          uuid.NewString(),
		Kind:        KindEscalation,
		Confidence:  confidence,
		ThreatCount: len(threats),
		EarlyMean:   earlyMean,
		RecentMean:  recentMean,
		Description: fmt.Sprintf("Threat severity rising, mean level %.1f up from %.1f",
			recentMean, earlyMean),
	}
}

func meanLevelScore(threats []models.ThreatDetection) float64 {
	if len(threats) == 0 {
		return 0
	}
	sum := 0
	for _, t := range threats {
		sum += t.Level.Score()
	}
	return float64(sum) / float64(len(threats))
}

func dominantType(counts map[models.ThreatType]int) models.ThreatType {
	best := models.ThreatUnknown
	bestCount := -1
	// Deterministic tie-break by name.
	types := make([]models.ThreatType, 0, len(counts))
	for tt := range counts {
		types = append(types, tt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, tt := range types {
		if counts[tt] > bestCount {
			best, bestCount = tt, counts[tt]
		}
	}
	return best
}
