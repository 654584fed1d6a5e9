package domain

import (
	"strings"
	"time"
)

// Provider location types, using Google's vocabulary. Other providers map
// their precision hints onto these.
const (
	LocationTypeRooftop           = "ROOFTOP"
	LocationTypeRangeInterpolated = "RANGE_INTERPOLATED"
	LocationTypeGeometricCenter   = "GEOMETRIC_CENTER"
	LocationTypeApproximate       = "APPROXIMATE"
)

var confidenceByLocationType = map[string]Confidence{
	LocationTypeRooftop:           ConfidenceHigh,
	LocationTypeRangeInterpolated: ConfidenceMedium,
	LocationTypeGeometricCenter:   ConfidenceMedium,
	LocationTypeApproximate:       ConfidenceLow,
}

// ttlDaysByConfidence: imprecise results are re-verified more often.
var ttlDaysByConfidence = map[Confidence]int{
	ConfidenceHigh:   90,
	ConfidenceMedium: 60,
	ConfidenceLow:    30,
}

// ConfidenceOf maps a provider location type to a confidence tier.
// Unknown types are low.
func ConfidenceOf(locationType string) Confidence {
	if c, ok := confidenceByLocationType[strings.ToUpper(strings.TrimSpace(locationType))]; ok {
		return c
	}
	return ConfidenceLow
}

// TTLDays returns how many days a record of the given confidence stays fresh.
func TTLDays(c Confidence) int {
	if d, ok := ttlDaysByConfidence[c]; ok {
		return d
	}
	return ttlDaysByConfidence[ConfidenceLow]
}

// TTL is TTLDays as a duration.
func TTL(c Confidence) time.Duration {
	return time.Duration(TTLDays(c)) * 24 * time.Hour
}
