package models

import (
	"time"

	"github.com/aegisstack/aegis-fusion/internal/geo"
)

// AssessmentStatus is the overall tactical posture, ordered low < moderate <
// elevated < critical.
type AssessmentStatus string

const (
	AssessmentLow      AssessmentStatus = "low"
	AssessmentModerate AssessmentStatus = "moderate"
	AssessmentElevated AssessmentStatus = "elevated"
	AssessmentCritical AssessmentStatus = "critical"
)

// AtRiskUnit records a friendly unit inside the danger radius of a high or
// critical fused threat.
type AtRiskUnit struct {
	UnitID           string      `json:"unit_id"`
	Name             string      `json:"unit_name"`
	ThreatDistanceKm float64     `json:"threat_distance_km"`
	ThreatType       ThreatType  `json:"threat_type"`
	ThreatLevel      ThreatLevel `json:"threat_level"`
}

// SituationAssessment is a derived snapshot of the overall situation.
// It has no identity of its own and is recomputed on demand.
type SituationAssessment struct {
	Status         AssessmentStatus `json:"status"`
	AvgThreatLevel float64          `json:"avg_threat_level"`
	ThreatCount    int              `json:"threat_count"`
	UnitsAtRisk    int              `json:"units_at_risk"`
	AtRiskUnits    []AtRiskUnit     `json:"at_risk_units"`
	Summary        string           `json:"summary"`
}

// ThreatSummary aggregates fused threats for the tactical picture.
type ThreatSummary struct {
	Total   int                 `json:"total"`
	ByType  map[ThreatType]int  `json:"by_type"`
	ByLevel map[ThreatLevel]int `json:"by_level"`
	Data    []FusedThreat       `json:"data"`
}

// ForceSummary aggregates friendly units for the tactical picture.
type ForceSummary struct {
	Total    int                `json:"total"`
	ByStatus map[UnitStatus]int `json:"by_status"`
	Data     []FriendlyUnit     `json:"data"`
}

// TacticalPicture is the fused one-page view pushed to subscribers.
type TacticalPicture struct {
	Timestamp       time.Time           `json:"timestamp"`
	AreaBounds      *geo.Bounds         `json:"area_bounds,omitempty"`
	Threats         ThreatSummary       `json:"threats"`
	FriendlyForces  ForceSummary        `json:"friendly_forces"`
	Assessment      SituationAssessment `json:"situation_assessment"`
	Recommendations []string            `json:"recommendations"`
}
