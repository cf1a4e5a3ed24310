package geo

import (
	"math"
	"strconv"
	"strings"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// DistanceMeters computes the great-circle distance between a and b using the
// haversine formula. The result is always >= 0 for finite input.
func DistanceMeters(a, b Coordinate) float64 {
	lat1 := degreesToRadians(a.Lat)
	lat2 := degreesToRadians(b.Lat)
	deltaLat := degreesToRadians(b.Lat - a.Lat)
	deltaLng := degreesToRadians(b.Lng - a.Lng)

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)

	// Rounding can push h marginally outside [0, 1] for antipodal points.
	h = math.Min(1, math.Max(0, h))

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// FormatDistance renders a distance for display: "850 m" below one kilometre,
// "1,2 km" (one decimal, comma separator) above. Non-finite input yields "".
func FormatDistance(meters float64) string {
	if math.IsNaN(meters) || math.IsInf(meters, 0) {
		return ""
	}

	if meters < 1000 {
		return strconv.FormatFloat(math.Round(meters), 'f', 0, 64) + " m"
	}

	km := strconv.FormatFloat(meters/1000, 'f', 1, 64)
	return strings.Replace(km, ".", ",", 1) + " km"
}

func degreesToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}
