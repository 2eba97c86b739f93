package calculator

import (
	"math"

	"lead-allocation/internal/models"
)

const (
	earthRadius   = 6371000.0 // meters
	earthRadiusKm = 6371.0
)

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Haversine computes the distance between two points in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	return earthRadius * centralAngle(lat1, lon1, lat2, lon2)
}

// DistanceKm is the great-circle distance between a and b in kilometers.
// Inputs are not range checked.
func DistanceKm(a, b models.GeoPoint) float64 {
	return earthRadiusKm * centralAngle(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

func centralAngle(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push h just past 1 near antipodes
	h = math.Min(1, math.Max(0, h))
	return 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
