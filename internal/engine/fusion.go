// Package engine hosts the tactical computation cores: multi-source threat
// fusion, blue-force proximity analysis, deployment optimization and
// situation assessment. Engines are stateless; callers inject inputs and
// receive value results, so a single instance is safe for concurrent use.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/aegisstack/aegis-fusion/internal/geo"
	"github.com/aegisstack/aegis-fusion/internal/models"
	"github.com/aegisstack/aegis-fusion/internal/utils"
)

// ErrInvalidDetectedAt indicates a detection with no usable timestamp.
// Fusion is time-windowed, so every input must carry a detection time.
var ErrInvalidDetectedAt = errors.New("detection has zero detected_at timestamp")

// Correlator groups threat detections from independent sources into fused
// threats when they are close in both space and time.
type Correlator struct {
	logger *slog.Logger
}

// NewCorrelator creates a Correlator.
func NewCorrelator(logger *slog.Logger) *Correlator {
	return &Correlator{logger: logger}
}

// Fuse correlates detections within radiusKm and windowHours of each other.
// Correlation is seed-anchored: detections are processed in ascending
// detection-time order, and each unconsumed detection seeds a group that
// absorbs every later unconsumed detection of the same threat type within
// the radius and window of the seed. Every detection ends up in exactly one fused threat; a detection
// with no neighbours yields a singleton.
func (c *Correlator) Fuse(detections []models.ThreatDetection, radiusKm, windowHours float64) ([]models.FusedThreat, error) {
	for i := range detections {
		if detections[i].DetectedAt.IsZero() {
			return nil, fmt.Errorf("detection %d: %w", detections[i].ID, ErrInvalidDetectedAt)
		}
		if err := detections[i].Position.Validate(); err != nil {
			return nil, fmt.Errorf("detection %d: %w", detections[i].ID, err)
		}
	}

	ordered := make([]models.ThreatDetection, len(detections))
	copy(ordered, detections)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].DetectedAt.Before(ordered[j].DetectedAt)
	})

	consumed := make([]bool, len(ordered))
	var fused []models.FusedThreat

	for i := range ordered {
		if consumed[i] {
			continue
		}
		consumed[i] = true
		group := []models.ThreatDetection{ordered[i]}

		for j := i + 1; j < len(ordered); j++ {
			if consumed[j] {
				continue
			}
			if ordered[j].Type != ordered[i].Type {
				continue
			}
			dist, err := geo.Distance(ordered[i].Position, ordered[j].Position)
			if err != nil {
				return nil, err
			}
			if dist > radiusKm {
				continue
			}
			if utils.HoursBetween(ordered[i].DetectedAt, ordered[j].DetectedAt) > windowHours {
				continue
			}
			consumed[j] = true
			group = append(group, ordered[j])
		}

		fused = append(fused, c.merge(group))
	}

	if c.logger != nil {
		c.logger.Debug("fused detections",
			"detections", len(detections), "threats", len(fused))
	}
	return fused, nil
}

// merge collapses a correlation group into one fused threat. The group is
// never empty and keeps ascending detection-time order.
func (c *Correlator) merge(group []models.ThreatDetection) models.FusedThreat {
	best := group[0]
	maxConf := group[0].Confidence
	level := group[0].Level
	for _, d := range group[1:] {
		level = models.MaxLevel(level, d.Level)
		if d.Confidence > maxConf {
			maxConf = d.Confidence
			best = d
		}
	}

	confidence := maxConf + 0.1*float64(len(group)-1)
	if confidence > 1.0 {
		confidence = 1.0
	}

	var (
		latSum, lonSum, weightSum float64
		sources                   []models.ThreatSource
		seenSource                = map[models.ThreatSource]bool{}
		descs                     []string
		seenDesc                  = map[string]bool{}
		memberIDs                 = make([]int64, 0, len(group))
	)
	for _, d := range group {
		w := d.Source.Weight() * d.Confidence
		latSum += d.Position.Lat * w
		lonSum += d.Position.Lon * w
		weightSum += w
		if !seenSource[d.Source] {
			seenSource[d.Source] = true
			sources = append(sources, d.Source)
		}
		if d.Description != "" && !seenDesc[d.Description] {
			seenDesc[d.Description] = true
			descs = append(descs, d.Description)
		}
		memberIDs = append(memberIDs, d.ID)
	}

	pos := best.Position
	if weightSum > 0 {
		pos = geo.Point{Lat: latSum / weightSum, Lon: lonSum / weightSum}
	}

	return models.FusedThreat{
		ID:               uuid.NewString(),
		Type:             best.Type,
		Level:            level,
		Confidence:       confidence,
		Position:         pos,
		Description:      strings.Join(descs, " | "),
		Sources:          sources,
		CorrelationCount: len(group),
		DetectedAt:       group[0].DetectedAt,
		MemberIDs:        memberIDs,
	}
}
