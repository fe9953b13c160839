package models

import (
	"time"

	"github.com/aegisstack/aegis-fusion/internal/geo"
)

// ThreatType enumerates the kinds of threats the system tracks.
type ThreatType string

const (
	ThreatVehicle   ThreatType = "vehicle"
	ThreatPersonnel ThreatType = "personnel"
	ThreatWeapon    ThreatType = "weapon"
	ThreatIED       ThreatType = "ied"
	ThreatArtillery ThreatType = "artillery"
	ThreatAircraft  ThreatType = "aircraft"
	ThreatUnknown   ThreatType = "unknown"
)

// Valid reports whether t is one of the closed set of threat types.
func (t ThreatType) Valid() bool {
	switch t {
	case ThreatVehicle, ThreatPersonnel, ThreatWeapon, ThreatIED, ThreatArtillery, ThreatAircraft, ThreatUnknown:
		return true
	}
	return false
}

// ThreatLevel is the totally ordered severity of a threat.
type ThreatLevel string

const (
	LevelLow      ThreatLevel = "low"
	LevelMedium   ThreatLevel = "medium"
	LevelHigh     ThreatLevel = "high"
	LevelCritical ThreatLevel = "critical"
)

// Score maps the level to its numeric rank (1-4). Unrecognized values score
// as medium, matching how unknown levels were historically averaged.
func (l ThreatLevel) Score() int {
	switch l {
	case LevelLow:
		return 1
	case LevelMedium:
		return 2
	case LevelHigh:
		return 3
	case LevelCritical:
		return 4
	}
	return 2
}

// Valid reports whether l is a known level.
func (l ThreatLevel) Valid() bool {
	switch l {
	case LevelLow, LevelMedium, LevelHigh, LevelCritical:
		return true
	}
	return false
}

// MaxLevel returns the higher of two levels.
func MaxLevel(a, b ThreatLevel) ThreatLevel {
	if b.Score() > a.Score() {
		return b
	}
	return a
}

// ThreatSource enumerates intelligence sources. Each carries a fixed
// reliability weight used by the fusion centroid.
type ThreatSource string

const (
	SourceSatellite ThreatSource = "satellite"
	SourceDrone     ThreatSource = "drone"
	SourceSensor    ThreatSource = "sensor"
	SourceRadio     ThreatSource = "radio"
	SourceManual    ThreatSource = "manual"
)

// Weight returns the source reliability factor. Unknown sources fall back
// to the manual-report weight.
func (s ThreatSource) Weight() float64 {
	switch s {
	case SourceSatellite:
		return 0.8
	case SourceDrone:
		return 0.9
	case SourceSensor:
		return 0.7
	case SourceRadio:
		return 0.6
	case SourceManual:
		return 0.5
	}
	return 0.5
}

// Valid reports whether s is a known source.
func (s ThreatSource) Valid() bool {
	switch s {
	case SourceSatellite, SourceDrone, SourceSensor, SourceRadio, SourceManual:
		return true
	}
	return false
}

// ThreatDetection is a single raw detection as ingested from an analysis
// result or manual report. The engines read these; mutation (verify,
// deactivate) happens through the store.
type ThreatDetection struct {
	ID            int64        `json:"id"`
	Type          ThreatType   `json:"threat_type"`
	Level         ThreatLevel  `json:"threat_level"`
	Confidence    float64      `json:"confidence"`
	Position      geo.Point    `json:"position"`
	GridReference string       `json:"grid_reference,omitempty"`
	Description   string       `json:"description,omitempty"`
	Source        ThreatSource `json:"source"`
	DetectedAt    time.Time    `json:"detected_at"`
	Verified      bool         `json:"verified"`
	Active        bool         `json:"active"`
}

// FusedThreat is a derived aggregate of one or more correlated detections.
// It is never persisted; every tactical picture recomputes it from current
// detections.
type FusedThreat struct {
	ID               string         `json:"id"`
	Type             ThreatType     `json:"threat_type"`
	Level            ThreatLevel    `json:"threat_level"`
	Confidence       float64        `json:"confidence"`
	Position         geo.Point      `json:"position"`
	Description      string         `json:"description,omitempty"`
	Sources          []ThreatSource `json:"sources"`
	CorrelationCount int            `json:"correlation_count"`
	DetectedAt       time.Time      `json:"detected_at"`
	MemberIDs        []int64        `json:"member_ids"`
}

// PredictedThreat is a forward-looking projection from pattern analysis.
// Advisory only; probability is a heuristic ranking, not a calibrated model.
type PredictedThreat struct {
	Type          ThreatType `json:"threat_type"`
	Position      geo.Point  `json:"position"`
	Probability   float64    `json:"probability"`
	Confidence    float64    `json:"confidence"`
	Reasoning     string     `json:"reasoning"`
	PredictedTime time.Time  `json:"predicted_time"`
}
