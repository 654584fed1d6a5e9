// Package domain models canonical locations and the rules that keep the
// geocoding cache consistent.
//
// # Records
//
// A canonical location is the single authoritative record for one real-world
// place, keyed by the provider-issued place id. An alias maps one normalized
// query, within a locale, to a place id. Many aliases may point at the same
// place; an alias never moves to a different place once bound.
//
//	"DLF Mall of India"  ─┐
//	"dlf mall"           ─┼─▶ alias index ─▶ place id ─▶ canonical location
//	"mall of india"      ─┘
//
// # Normalization
//
// Queries are compared after [Normalize]: lower-cased, compatibility forms
// folded (NFKC), punctuation collapsed to single spaces. Accents and other
// combining marks stay; "café" and "cafe" are different queries.
//
//	"DLF Mall, of-India!"  →  "dlf mall of india"
//	"ＤＬＦ Mall"            →  "dlf mall"
//
// [Hash] digests the normalized form of a formatted address. Two provider
// responses with the same hash describe the same place for merge purposes.
// The stored hash is re-derived on read; a mismatch marks a tampered record.
//
// Reverse lookups are keyed by [CoordinateQuery], which spells out the
// hemisphere so that the sign survives normalization:
//
//	(28.6315, -77.2167)  →  "28.631500n 77.216700w"
//
// # Confidence and expiry
//
// Confidence is derived from the provider's location type and decides how
// long a record may be served before re-verification:
//
//	ROOFTOP                              high    90 days
//	RANGE_INTERPOLATED, GEOMETRIC_CENTER medium  60 days
//	APPROXIMATE, anything else           low     30 days
//
// ExpiresAt is always VerifiedAt + TTL(Confidence); both come from
// [NewCanonicalLocation]. Low-confidence records are flagged NeedsReview.
//
// # Coordinates
//
// Coordinates are stored at 8 decimal places (about 1.1 mm). Distances use
// the haversine formula on a sphere of radius 6,371 km. Reverse lookups are
// served from the cache when a record lies within 50 m, roughly the accuracy
// of consumer GPS.
package domain
