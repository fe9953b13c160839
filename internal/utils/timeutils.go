package utils

import (
	"fmt"
	"time"
)

// ParseRFC3339 returns a time from the provided string or an error.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// HoursBetween returns the absolute gap between two timestamps in hours.
// Used by the fusion window check, which cares about magnitude only.
func HoursBetween(a, b time.Time) float64 {
	if b.Before(a) {
		a, b = b, a
	}
	return b.Sub(a).Hours()
}
