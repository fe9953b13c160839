// Package geo provides the great-circle math the fusion and proximity
// engines are built on. All functions treat the Earth as a sphere of
// radius 6371 km, which is accurate to ~0.5% for tactical distances.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used by the Haversine formula.
const EarthRadiusKm = 6371.0

// ErrInvalidCoordinate signals a latitude or longitude outside its domain.
var ErrInvalidCoordinate = errors.New("coordinate out of range")

// ErrInvalidBounds signals a degenerate area rectangle.
var ErrInvalidBounds = errors.New("invalid area bounds")

// Point is a WGS-84 position.
type Point struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Validate rejects out-of-domain coordinates. Values are never clamped.
func (p Point) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinate, p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinate, p.Lon)
	}
	return nil
}

// Bounds is an axis-aligned lat/lon rectangle. The antimeridian is not
// handled: east and west are compared directly.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Validate enforces north > south and east != west on top of coordinate
// domain checks.
func (b Bounds) Validate() error {
	if err := (Point{Lat: b.North, Lon: b.East}).Validate(); err != nil {
		return err
	}
	if err := (Point{Lat: b.South, Lon: b.West}).Validate(); err != nil {
		return err
	}
	if b.North <= b.South {
		return fmt.Errorf("%w: north %v <= south %v", ErrInvalidBounds, b.North, b.South)
	}
	if b.East == b.West {
		return fmt.Errorf("%w: east == west (%v)", ErrInvalidBounds, b.East)
	}
	return nil
}

// Contains reports whether the point lies inside the rectangle (inclusive).
func (b Bounds) Contains(p Point) bool {
	return p.Lat >= b.South && p.Lat <= b.North && p.Lon >= b.West && p.Lon <= b.East
}

// Distance returns the Haversine great-circle distance between two points
// in kilometers. It is symmetric and zero iff the points coincide.
func Distance(p1, p2 Point) (float64, error) {
	if err := p1.Validate(); err != nil {
		return 0, err
	}
	if err := p2.Validate(); err != nil {
		return 0, err
	}

	lat1 := radians(p1.Lat)
	lat2 := radians(p2.Lat)
	dLat := radians(p2.Lat - p1.Lat)
	dLon := radians(p2.Lon - p1.Lon)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c, nil
}

// DistanceMeters is Distance scaled to meters, for the proximity tiers.
func DistanceMeters(p1, p2 Point) (float64, error) {
	km, err := Distance(p1, p2)
	if err != nil {
		return 0, err
	}
	return km * 1000, nil
}

// Bearing returns the initial bearing from p1 toward p2 in degrees,
// normalized to [0, 360). It is not symmetric.
func Bearing(p1, p2 Point) (float64, error) {
	if err := p1.Validate(); err != nil {
		return 0, err
	}
	if err := p2.Validate(); err != nil {
		return 0, err
	}

	lat1 := radians(p1.Lat)
	lat2 := radians(p2.Lat)
	dLon := radians(p2.Lon - p1.Lon)

	x := math.Sin(dLon) * math.Cos(lat2)
	y := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	deg := math.Atan2(x, y) * 180 / math.Pi
	return math.Mod(deg+360, 360), nil
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
