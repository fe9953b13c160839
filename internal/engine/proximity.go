package engine

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/aegisstack/aegis-fusion/internal/geo"
	"github.com/aegisstack/aegis-fusion/internal/models"
)

// Proximity severity bands in meters.
const (
	dangerCloseMeters = 500.0
	alertMeters       = 1000.0
	warningMeters     = 2000.0
)

// ProximityMonitor evaluates blue-force separation and flags units at risk
// of fratricide or collision.
type ProximityMonitor struct {
	logger *slog.Logger
}

// NewProximityMonitor creates a ProximityMonitor.
func NewProximityMonitor(logger *slog.Logger) *ProximityMonitor {
	return &ProximityMonitor{logger: logger}
}

// CheckAreaSafety reports whether an area of operations centred on point is
// clear of friendly units. The area is safe when no unit raises a medium or
// high severity alert; warning-band units alone do not make it unsafe.
func (m *ProximityMonitor) CheckAreaSafety(center geo.Point, radiusMeters float64, units []models.FriendlyUnit) (*models.AreaSafetyResult, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}

	result := &models.AreaSafetyResult{
		Safe:         true,
		CheckRadiusM: radiusMeters,
	}

	for _, u := range units {
		if !u.Active {
			continue
		}
		dist, err := geo.DistanceMeters(center, u.Position)
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", u.UnitID, err)
		}
		if dist > radiusMeters {
			continue
		}

		result.NearbyUnits = append(result.NearbyUnits, models.NearbyUnit{
			UnitID:         u.UnitID,
			Name:           u.Name,
			Callsign:       u.Callsign,
			DistanceMeters: dist,
			Position:       u.Position,
			Status:         u.Status,
		})
		if result.MinDistance == nil || dist < *result.MinDistance {
			d := dist
			result.MinDistance = &d
		}

		severity, alertType := classifySeparation(dist)
		if severity == "" {
			continue
		}
		result.Alerts = append(result.Alerts, models.ProximityAlert{
			ID:             uuid.NewString(),
			AlertType:      alertType,
			Unit1ID:        u.UnitID,
			DistanceMeters: dist,
			Severity:       severity,
			Message: fmt.Sprintf("Friendly unit %s within %.0fm of target area",
				u.DisplayName(), dist),
		})
		if severity == models.AlertHigh || severity == models.AlertMedium {
			result.Safe = false
		}
	}

	if m.logger != nil && !result.Safe {
		m.logger.Warn("area safety check failed",
			"nearby_units", len(result.NearbyUnits), "alerts", len(result.Alerts))
	}
	return result, nil
}

// DetectProximityAlerts compares every pair of active units and raises an
// alert when their separation falls below thresholdMeters. When both units
// report heading and speed the alert carries the projected time to closest
// point of approach.
func (m *ProximityMonitor) DetectProximityAlerts(units []models.FriendlyUnit, thresholdMeters float64) ([]models.ProximityAlert, error) {
	var alerts []models.ProximityAlert

	for i := 0; i < len(units); i++ {
		if !units[i].Active {
			continue
		}
		for j := i + 1; j < len(units); j++ {
			if !units[j].Active {
				continue
			}
			dist, err := geo.DistanceMeters(units[i].Position, units[j].Position)
			if err != nil {
				return nil, fmt.Errorf("units %s/%s: %w", units[i].UnitID, units[j].UnitID, err)
			}
			if dist >= thresholdMeters {
				continue
			}

			severity, alertType := classifySeparation(dist)
			if severity == "" {
				severity = models.AlertLow
				alertType = "proximity_warning"
			}

			alert := models.ProximityAlert{
				ID:             uuid.NewString(),
				AlertType:      alertType,
				Unit1ID:        units[i].UnitID,
				Unit2ID:        units[j].UnitID,
				DistanceMeters: dist,
				Severity:       severity,
				Message: fmt.Sprintf("%s and %s are %.0fm apart",
					units[i].DisplayName(), units[j].DisplayName(), dist),
			}
			if tca, ok, err := timeToClosestApproach(units[i], units[j], dist); err != nil {
				return nil, err
			} else if ok {
				t := tca
				alert.TimeToClosest = &t
			}
			alerts = append(alerts, alert)
		}
	}

	if m.logger != nil && len(alerts) > 0 {
		m.logger.Info("proximity alerts raised", "count", len(alerts))
	}
	return alerts, nil
}

// classifySeparation maps a separation distance onto a severity band.
// Distances beyond the warning band return empty strings.
func classifySeparation(distMeters float64) (models.AlertSeverity, string) {
	switch {
	case distMeters < dangerCloseMeters:
		return models.AlertHigh, "danger_close"
	case distMeters < alertMeters:
		return models.AlertMedium, "proximity_alert"
	case distMeters < warningMeters:
		return models.AlertLow, "proximity_warning"
	default:
		return "", ""
	}
}

// timeToClosestApproach projects both units on a local flat plane and solves
// for the time, in seconds, at which their separation is minimal. It returns
// ok=false when either unit lacks a nonzero heading and speed, or when the
// units are not closing. A heading of exactly 0 is indistinguishable from an
// unset one in tracker reports, so it is treated as absent.
func timeToClosestApproach(u1, u2 models.FriendlyUnit, distMeters float64) (float64, bool, error) {
	if u1.HeadingDeg == nil || u1.SpeedMS == nil || u2.HeadingDeg == nil || u2.SpeedMS == nil {
		return 0, false, nil
	}
	if *u1.SpeedMS == 0 || *u2.SpeedMS == 0 || *u1.HeadingDeg == 0 || *u2.HeadingDeg == 0 {
		return 0, false, nil
	}

	bearing, err := geo.Bearing(u1.Position, u2.Position)
	if err != nil {
		return 0, false, err
	}
	bRad := bearing * math.Pi / 180

	// Relative position of unit 2 as seen from unit 1.
	dx := distMeters * math.Sin(bRad)
	dy := distMeters * math.Cos(bRad)

	h1 := *u1.HeadingDeg * math.Pi / 180
	h2 := *u2.HeadingDeg * math.Pi / 180
	vrelX := *u2.SpeedMS*math.Sin(h2) - *u1.SpeedMS*math.Sin(h1)
	vrelY := *u2.SpeedMS*math.Cos(h2) - *u1.SpeedMS*math.Cos(h1)

	denom := vrelX*vrelX + vrelY*vrelY
	if denom == 0 {
		return 0, false, nil
	}
	t := -(dx*vrelX + dy*vrelY) / denom
	if t <= 0 {
		return 0, false, nil
	}
	return t, true, nil
}
