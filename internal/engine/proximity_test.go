package engine

import (
	"testing"

	"github.com/aegisstack/aegis-fusion/internal/geo"
	"github.com/aegisstack/aegis-fusion/internal/models"
)

func ptr(v float64) *float64 { return &v }

func unit(id string, lat, lon float64) models.FriendlyUnit {
	return models.FriendlyUnit{
		UnitID:   id,
		Name:     "Unit " + id,
		Type:     models.UnitInfantry,
		Position: geo.Point{Lat: lat, Lon: lon},
		Status:   models.StatusGreen,
		Active:   true,
	}
}

func TestCheckAreaSafetyClear(t *testing.T) {
	m := NewProximityMonitor(nil)
	units := []models.FriendlyUnit{
		unit("alpha", 34.20, -118.50), // far away
	}
	res, err := m.CheckAreaSafety(geo.Point{Lat: 34.05, Lon: -118.24}, 2000, units)
	if err != nil {
		t.Fatalf("CheckAreaSafety: %v", err)
	}
	if !res.Safe {
		t.Error("area should be safe")
	}
	if len(res.NearbyUnits) != 0 || res.MinDistance != nil {
		t.Errorf("unexpected nearby units: %+v", res)
	}
}

func TestCheckAreaSafetyDangerClose(t *testing.T) {
	m := NewProximityMonitor(nil)
	center := geo.Point{Lat: 34.0522, Lon: -118.2437}
	units := []models.FriendlyUnit{
		unit("alpha", 34.0530, -118.2437), // ~90m north
	}
	res, err := m.CheckAreaSafety(center, 2000, units)
	if err != nil {
		t.Fatalf("CheckAreaSafety: %v", err)
	}
	if res.Safe {
		t.Error("area should not be safe with a unit danger close")
	}
	if len(res.Alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(res.Alerts))
	}
	if res.Alerts[0].Severity != models.AlertHigh || res.Alerts[0].AlertType != "danger_close" {
		t.Errorf("alert = %+v", res.Alerts[0])
	}
	if res.MinDistance == nil || *res.MinDistance > 200 {
		t.Errorf("min distance = %v", res.MinDistance)
	}
}

func TestCheckAreaSafetyWarningOnlyStaysSafe(t *testing.T) {
	m := NewProximityMonitor(nil)
	center := geo.Point{Lat: 34.0522, Lon: -118.2437}
	units := []models.FriendlyUnit{
		unit("alpha", 34.0660, -118.2437), // ~1.5km north, warning band
	}
	res, err := m.CheckAreaSafety(center, 2000, units)
	if err != nil {
		t.Fatalf("CheckAreaSafety: %v", err)
	}
	if !res.Safe {
		t.Error("warning-band unit alone should not make the area unsafe")
	}
	if len(res.Alerts) != 1 || res.Alerts[0].Severity != models.AlertLow {
		t.Errorf("alerts = %+v", res.Alerts)
	}
}

func TestCheckAreaSafetyIgnoresInactiveUnits(t *testing.T) {
	m := NewProximityMonitor(nil)
	u := unit("alpha", 34.0530, -118.2437)
	u.Active = false
	res, err := m.CheckAreaSafety(geo.Point{Lat: 34.0522, Lon: -118.2437}, 2000, []models.FriendlyUnit{u})
	if err != nil {
		t.Fatalf("CheckAreaSafety: %v", err)
	}
	if !res.Safe || len(res.NearbyUnits) != 0 {
		t.Errorf("inactive unit should be ignored: %+v", res)
	}
}

func TestDetectProximityAlertsPairwise(t *testing.T) {
	m := NewProximityMonitor(nil)
	units := []models.FriendlyUnit{
		unit("alpha", 34.0522, -118.2437),
		unit("bravo", 34.0560, -118.2437), // ~420m from alpha
		unit("charlie", 34.2000, -118.5000),
	}
	alerts, err := m.DetectProximityAlerts(units, 1000)
	if err != nil {
		t.Fatalf("DetectProximityAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	a := alerts[0]
	if a.Unit1ID != "alpha" || a.Unit2ID != "bravo" {
		t.Errorf("alert pair = %s/%s", a.Unit1ID, a.Unit2ID)
	}
	if a.Severity != models.AlertHigh {
		t.Errorf("severity = %s, want high", a.Severity)
	}
	if a.TimeToClosest != nil {
		t.Error("stationary units should have no closest-approach time")
	}
}

func TestDetectProximityAlertsClosestApproach(t *testing.T) {
	m := NewProximityMonitor(nil)
	// bravo is ~890m due east of alpha and the units drive at each other.
	alpha := unit("alpha", 34.0522, -118.2437)
	alpha.HeadingDeg = ptr(90.0)
	alpha.SpeedMS = ptr(1.0)
	bravo := unit("bravo", 34.0522, -118.2340)
	bravo.HeadingDeg = ptr(270.0)
	bravo.SpeedMS = ptr(9.0)

	alerts, err := m.DetectProximityAlerts([]models.FriendlyUnit{alpha, bravo}, 1000)
	if err != nil {
		t.Fatalf("DetectProximityAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].TimeToClosest == nil {
		t.Fatal("closing units should report time to closest approach")
	}
	// Closing speed 10 m/s over ~890m.
	if got := *alerts[0].TimeToClosest; got < 80 || got > 100 {
		t.Errorf("time to closest = %v s, want ~89", got)
	}
}

func TestDetectProximityAlertsDiverging(t *testing.T) {
	m := NewProximityMonitor(nil)
	alpha := unit("alpha", 34.0522, -118.2437)
	alpha.HeadingDeg = ptr(270.0)
	alpha.SpeedMS = ptr(5.0)
	bravo := unit("bravo", 34.0522, -118.2340)
	bravo.HeadingDeg = ptr(90.0)
	bravo.SpeedMS = ptr(5.0)

	alerts, err := m.DetectProximityAlerts([]models.FriendlyUnit{alpha, bravo}, 1000)
	if err != nil {
		t.Fatalf("DetectProximityAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].TimeToClosest != nil {
		t.Error("diverging units should have no closest-approach time")
	}
}

func TestDetectProximityAlertsZeroHeadingSkipsApproach(t *testing.T) {
	m := NewProximityMonitor(nil)
	// Heading 0 reads as unset in tracker reports, so no estimate even on a
	// head-on course.
	alpha := unit("alpha", 34.0522, -118.2437)
	alpha.HeadingDeg = ptr(0.0)
	alpha.SpeedMS = ptr(5.0)
	bravo := unit("bravo", 34.0572, -118.2437)
	bravo.HeadingDeg = ptr(180.0)
	bravo.SpeedMS = ptr(5.0)

	alerts, err := m.DetectProximityAlerts([]models.FriendlyUnit{alpha, bravo}, 1000)
	if err != nil {
		t.Fatalf("DetectProximityAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].TimeToClosest != nil {
		t.Errorf("time to closest = %v, want nil for zero heading", *alerts[0].TimeToClosest)
	}
}
