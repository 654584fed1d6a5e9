package domain

import (
	"math"
	"time"
)

// Confidence is a coarse precision tier derived from the provider's location type.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// MatchType records how an alias came to be bound to a place.
type MatchType string

const (
	// MatchExact is the literal query that triggered resolution.
	MatchExact MatchType = "exact"
	// MatchAlias is a generated variant (abbreviation, nickname).
	MatchAlias MatchType = "alias"
)

// LatLng is a WGS-84 coordinate pair in decimal degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Viewport is the provider's recommended bounding box for displaying a place.
// The cache stores it verbatim and never interprets it.
type Viewport struct {
	NorthEast LatLng `json:"northeast"`
	SouthWest LatLng `json:"southwest"`
}

// CanonicalLocation is the authoritative record for one real-world place.
type CanonicalLocation struct {
	PlaceID          string
	FormattedAddress string
	NormalizedHash   string
	Latitude         float64
	Longitude        float64
	Viewport         *Viewport
	LocationType     string
	Confidence       Confidence
	Source           string
	VerifiedAt       time.Time
	ExpiresAt        time.Time
	NeedsReview      bool
	UsageCount       int64
}

// Alias maps one normalized query, within a locale, to a canonical place.
type Alias struct {
	NormalizedQuery string
	Locale          string
	OriginalQuery   string
	PlaceID         string
	MatchType       MatchType
	UsageCount      int64
}

// ProviderResult is a single candidate returned by a Provider.
type ProviderResult struct {
	PlaceID          string
	FormattedAddress string
	Latitude         float64
	Longitude        float64
	LocationType     string
	Viewport         *Viewport
}

// LocationResult is what callers of the cache receive.
type LocationResult struct {
	PlaceID          string     `json:"place_id"`
	FormattedAddress string     `json:"formatted_address"`
	Latitude         float64    `json:"latitude"`
	Longitude        float64    `json:"longitude"`
	LocationType     string     `json:"location_type,omitempty"`
	Confidence       Confidence `json:"confidence"`
	Source           string     `json:"source"`
	Viewport         *Viewport  `json:"viewport,omitempty"`
	CacheHit         bool       `json:"cache_hit"`
}

// GeocodeOptions narrows or biases a forward lookup.
type GeocodeOptions struct {
	BiasLat       *float64
	BiasLng       *float64
	CountryFilter string
}

// HasBias reports whether both bias coordinates are set and valid.
func (o GeocodeOptions) HasBias() bool {
	return o.BiasLat != nil && o.BiasLng != nil && IsValidCoordinate(*o.BiasLat, *o.BiasLng)
}

// coordinateScale fixes stored coordinates at 8 decimal places (~1.1 mm).
const coordinateScale = 1e8

// RoundCoordinate rounds a degree value to the stored precision.
func RoundCoordinate(deg float64) float64 {
	return math.Round(deg*coordinateScale) / coordinateScale
}

// NewCanonicalLocation builds the record persisted for a provider result.
// Confidence, expiry, hash and review flag are all derived here so that
// ExpiresAt always equals VerifiedAt + TTL(Confidence).
func NewCanonicalLocation(r ProviderResult, source string, verifiedAt time.Time) CanonicalLocation {
	confidence := ConfidenceOf(r.LocationType)
	return CanonicalLocation{
		PlaceID:          r.PlaceID,
		FormattedAddress: r.FormattedAddress,
		NormalizedHash:   Hash(r.FormattedAddress),
		Latitude:         RoundCoordinate(r.Latitude),
		Longitude:        RoundCoordinate(r.Longitude),
		Viewport:         r.Viewport,
		LocationType:     r.LocationType,
		Confidence:       confidence,
		Source:           source,
		VerifiedAt:       verifiedAt,
		ExpiresAt:        verifiedAt.Add(TTL(confidence)),
		NeedsReview:      confidence == ConfidenceLow,
		UsageCount:       1,
	}
}

// Fresh reports whether the record may still be served at now.
func (l CanonicalLocation) Fresh(now time.Time) bool {
	return l.ExpiresAt.After(now)
}

// HashValid re-derives the address hash and compares it with the stored one.
// A mismatch means the record was corrupted or edited by hand.
func (l CanonicalLocation) HashValid() bool {
	return l.NormalizedHash == Hash(l.FormattedAddress)
}

// ExpiryConsistent reports whether ExpiresAt still matches VerifiedAt + TTL(Confidence).
func (l CanonicalLocation) ExpiryConsistent() bool {
	return l.ExpiresAt.Equal(l.VerifiedAt.Add(TTL(l.Confidence)))
}

// Result converts the record into the caller-facing shape.
func (l CanonicalLocation) Result(cacheHit bool) LocationResult {
	return LocationResult{
		PlaceID:          l.PlaceID,
		FormattedAddress: l.FormattedAddress,
		Latitude:         l.Latitude,
		Longitude:        l.Longitude,
		LocationType:     l.LocationType,
		Confidence:       l.Confidence,
		Source:           l.Source,
		Viewport:         l.Viewport,
		CacheHit:         cacheHit,
	}
}
