// Package geo provides coordinate types and great-circle distance helpers used to
// place events relative to the user.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// Coordinate validation errors.
var (
	ErrLatitudeOutOfRange  = errors.New("latitude must be between -90 and 90")
	ErrLongitudeOutOfRange = errors.New("longitude must be between -180 and 180")
	ErrNotFinite           = errors.New("coordinate must be finite")
)

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate reports whether the coordinate lies inside the valid latitude and
// longitude ranges.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return ErrNotFinite
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w (got %f)", ErrLatitudeOutOfRange, c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w (got %f)", ErrLongitudeOutOfRange, c.Lng)
	}
	return nil
}

// Valid is shorthand for Validate() == nil.
func (c Coordinate) Valid() bool {
	return c.Validate() == nil
}

// Cell returns the geohash cell containing the coordinate at DefaultPrecision.
func (c Coordinate) Cell() string {
	return Encode(c.Lat, c.Lng, DefaultPrecision)
}
