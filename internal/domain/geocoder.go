package domain

import (
	"context"
	"errors"
)

// ErrAliasConflict is returned when an alias key is already bound to a different place.
var ErrAliasConflict = errors.New("alias already bound to a different place")

// Provider resolves text or coordinates against an external place-lookup API.
// A false second return means "no result": not found, provider down, bad
// status and invalid geometry are all reported the same way.
type Provider interface {
	// Name identifies the provider; it becomes the Source of stored records.
	Name() string

	// ForwardLookup resolves a free-text query to at most one place.
	ForwardLookup(ctx context.Context, query string, opts GeocodeOptions) (ProviderResult, bool)

	// ReverseLookup resolves coordinates to at most one place.
	ReverseLookup(ctx context.Context, lat, lng float64) (ProviderResult, bool)
}

// AliasIndex maps normalized queries to canonical place identifiers.
type AliasIndex interface {
	// Find returns the alias bound to normalizedQuery within locale.
	Find(ctx context.Context, locale, normalizedQuery string) (Alias, bool, error)

	// Upsert inserts the alias or ignores it when the same binding exists.
	// Binding an existing key to a different place returns ErrAliasConflict.
	Upsert(ctx context.Context, alias Alias) error

	// IncrementUsage atomically bumps the usage counter of a bound alias.
	IncrementUsage(ctx context.Context, locale, normalizedQuery, placeID string) error
}

// LocationStore holds canonical location records keyed by place id.
type LocationStore interface {
	Get(ctx context.Context, placeID string) (CanonicalLocation, bool, error)

	// Upsert replaces the record for loc.PlaceID. A new record starts with a
	// usage count of 1; an existing one keeps its count plus one. The stored
	// record is returned.
	Upsert(ctx context.Context, loc CanonicalLocation) (CanonicalLocation, error)

	// FindByProximity returns the nearest record within radiusMeters.
	FindByProximity(ctx context.Context, lat, lng, radiusMeters float64) (CanonicalLocation, bool, error)

	IncrementUsage(ctx context.Context, placeID string) error
}
