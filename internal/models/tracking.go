package models

import (
	"time"

	"github.com/aegisstack/aegis-fusion/internal/geo"
)

// UnitType enumerates friendly unit categories.
type UnitType string

const (
	UnitInfantry      UnitType = "infantry"
	UnitArmor         UnitType = "armor"
	UnitAviation      UnitType = "aviation"
	UnitArtillery     UnitType = "artillery"
	UnitLogistics     UnitType = "logistics"
	UnitCommand       UnitType = "command"
	UnitSpecialForces UnitType = "special_forces"
	UnitOther         UnitType = "other"
)

// UnitStatus is the ordered readiness tier of a unit: green > amber > red >
// black.
type UnitStatus string

const (
	StatusGreen UnitStatus = "green"
	StatusAmber UnitStatus = "amber"
	StatusRed   UnitStatus = "red"
	StatusBlack UnitStatus = "black"
)

// Valid reports whether s is a known readiness status.
func (s UnitStatus) Valid() bool {
	switch s {
	case StatusGreen, StatusAmber, StatusRed, StatusBlack:
		return true
	}
	return false
}

// FriendlyUnit is a tracked friendly force element. Position fields are
// mutated in place on each update; history is the store's concern, not the
// engine's.
type FriendlyUnit struct {
	UnitID         string     `json:"unit_id"`
	Name           string     `json:"unit_name"`
	Type           UnitType   `json:"unit_type,omitempty"`
	Callsign       string     `json:"callsign,omitempty"`
	Position       geo.Point  `json:"position"`
	Altitude       *float64   `json:"altitude,omitempty"`
	HeadingDeg     *float64   `json:"heading,omitempty"`
	SpeedMS        *float64   `json:"speed,omitempty"`
	Status         UnitStatus `json:"status"`
	PersonnelCount *int       `json:"personnel_count,omitempty"`
	LastContact    time.Time  `json:"last_contact"`
	Active         bool       `json:"active"`
}

// DisplayName prefers the callsign over the unit name for operator-facing
// alert text.
func (u FriendlyUnit) DisplayName() string {
	if u.Callsign != "" {
		return u.Callsign
	}
	return u.Name
}

// AlertSeverity grades proximity alerts.
type AlertSeverity string

const (
	AlertLow    AlertSeverity = "low"
	AlertMedium AlertSeverity = "medium"
	AlertHigh   AlertSeverity = "high"
)

// ProximityAlert is a derived pair relation between two spatial entities.
// Unit2ID is "target" when the alert is against a checked point rather than
// a second unit.
type ProximityAlert struct {
	ID             string        `json:"id"`
	AlertType      string        `json:"alert_type"`
	Unit1ID        string        `json:"unit1_id"`
	Unit2ID        string        `json:"unit2_id"`
	DistanceMeters float64       `json:"distance"`
	TimeToClosest  *float64      `json:"time_to_closest,omitempty"`
	Severity       AlertSeverity `json:"severity"`
	Message        string        `json:"message"`
}

// NearbyUnit is a unit annotated with its distance from a checked point.
type NearbyUnit struct {
	UnitID         string     `json:"unit_id"`
	Name           string     `json:"unit_name"`
	Callsign       string     `json:"callsign,omitempty"`
	DistanceMeters float64    `json:"distance_meters"`
	Position       geo.Point  `json:"position"`
	Status         UnitStatus `json:"status"`
}

// AreaSafetyResult is the outcome of a blue-on-blue check around a point.
// MinDistance is nil when no unit was inside the check radius.
type AreaSafetyResult struct {
	Safe             bool             `json:"safe"`
	NearbyUnits      []NearbyUnit     `json:"nearby_units"`
	MinDistance      *float64         `json:"minimum_distance"`
	Alerts           []ProximityAlert `json:"alerts"`
	CheckRadiusM     float64          `json:"check_radius_meters"`
}

// DeploymentRecommendation ranks a unit for a deployment objective.
// The route is straight-line only: origin and objective waypoints.
type DeploymentRecommendation struct {
	UnitID       string      `json:"unit_id"`
	Name         string      `json:"unit_name"`
	Callsign     string      `json:"callsign,omitempty"`
	Origin       geo.Point   `json:"current_position"`
	DistanceKm   float64     `json:"distance_km"`
	ETAHours     float64     `json:"estimated_time_hours"`
	BearingDeg   float64     `json:"bearing"`
	Route        []geo.Point `json:"recommended_route"`
	Priority     int         `json:"priority"`
	Reasoning    string      `json:"reasoning"`
}
