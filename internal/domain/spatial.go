package domain

import (
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean radius of the spherical-earth approximation.
const EarthRadiusMeters = 6_371_000.0

// DistanceMeters returns the great-circle distance between two points using
// the haversine formula. It is symmetric and zero for identical inputs.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	// s2 multiplies the cosines in argument order, so a fixed order keeps the
	// result bit-for-bit symmetric.
	if lat1 > lat2 || (lat1 == lat2 && lng1 > lng2) {
		lat1, lng1, lat2, lng2 = lat2, lng2, lat1, lng1
	}
	a := s2.LatLngFromDegrees(lat1, lng1)
	b := s2.LatLngFromDegrees(lat2, lng2)
	return a.Distance(b).Radians() * EarthRadiusMeters
}

// IsValidCoordinate is a range check only; it says nothing about land or
// service areas.
func IsValidCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Nearest picks the candidate closest to (lat, lng) within radiusMeters.
// Equal distances go to the most recently verified record, then to the
// lowest place id.
func Nearest(candidates []CanonicalLocation, lat, lng, radiusMeters float64) (CanonicalLocation, bool) {
	var (
		best     CanonicalLocation
		bestDist float64
		found    bool
	)
	for _, c := range candidates {
		d := DistanceMeters(lat, lng, c.Latitude, c.Longitude)
		if d > radiusMeters {
			continue
		}
		switch {
		case !found, d < bestDist:
		case d == bestDist && c.VerifiedAt.After(best.VerifiedAt):
		case d == bestDist && c.VerifiedAt.Equal(best.VerifiedAt) && c.PlaceID < best.PlaceID:
		default:
			continue
		}
		best, bestDist, found = c, d, true
	}
	return best, found
}

// MetersToLatDegrees converts a north-south distance to degrees of latitude.
func MetersToLatDegrees(m float64) float64 {
	return m / EarthRadiusMeters * 180 / math.Pi
}

// MetersToLngDegrees converts an east-west distance at lat to degrees of
// longitude. Near the poles the span is capped at the whole circle.
func MetersToLngDegrees(m, lat float64) float64 {
	cos := math.Cos(lat * math.Pi / 180)
	if cos < 1e-6 {
		return 360
	}
	return math.Min(360, MetersToLatDegrees(m)/cos)
}
