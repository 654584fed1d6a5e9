// Package memory is an in-process implementation of the alias index and the
// canonical location store, used by tests and single-instance runs.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/geo/s2"
	gocache "github.com/patrickmn/go-cache"

	"github.com/sachanni/salonhub-geocache/internal/domain"
)

const (
	// cellLevel cells are a few km across, so a cell and its neighbours
	// always cover radii up to maxIndexedRadius.
	cellLevel        = 12
	maxIndexedRadius = 1000.0
)

// Store keeps records and aliases in a go-cache instance without expiry.
// go-cache's Add gives insert-or-ignore for aliases and IncrementInt64 gives
// atomic usage counters.
type Store struct {
	items *gocache.Cache

	mu    sync.RWMutex // serializes location writes and guards cells
	cells map[s2.CellID]map[string]struct{}
}

// New creates an empty store.
func New() *Store {
	return &Store{
		items: gocache.New(gocache.NoExpiration, 0),
		cells: make(map[s2.CellID]map[string]struct{}),
	}
}

func locationKey(placeID string) string { return "loc:" + placeID }

func aliasKey(locale, normalizedQuery string) string {
	return "alias:" + locale + "|" + normalizedQuery
}

func usageKey(key string) string { return "usage:" + key }

// Get returns the record stored under placeID.
func (s *Store) Get(_ context.Context, placeID string) (domain.CanonicalLocation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(placeID)
}

func (s *Store) getLocked(placeID string) (domain.CanonicalLocation, bool, error) {
	key := locationKey(placeID)
	v, ok := s.items.Get(key)
	if !ok {
		return domain.CanonicalLocation{}, false, nil
	}
	loc := v.(domain.CanonicalLocation)
	loc.UsageCount = s.usage(key)
	return loc, true, nil
}

// Upsert replaces the record for loc.PlaceID, preserving and bumping its usage count.
func (s *Store) Upsert(_ context.Context, loc domain.CanonicalLocation) (domain.CanonicalLocation, error) {
	if loc.PlaceID == "" {
		return domain.CanonicalLocation{}, errors.New("upsert location: empty place id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := locationKey(loc.PlaceID)
	if prev, ok := s.items.Get(key); ok {
		s.unindex(prev.(domain.CanonicalLocation))
		if _, err := s.items.IncrementInt64(usageKey(key), 1); err != nil {
			return domain.CanonicalLocation{}, fmt.Errorf("upsert location %s: %w", loc.PlaceID, err)
		}
	} else {
		s.items.Set(usageKey(key), int64(1), gocache.NoExpiration)
	}

	loc.UsageCount = 0
	s.items.Set(key, loc, gocache.NoExpiration)
	s.index(loc)

	stored, _, err := s.getLocked(loc.PlaceID)
	return stored, err
}

// IncrementUsage bumps the record's usage counter.
func (s *Store) IncrementUsage(_ context.Context, placeID string) error {
	if _, err := s.items.IncrementInt64(usageKey(locationKey(placeID)), 1); err != nil {
		return fmt.Errorf("increment usage %s: %w", placeID, err)
	}
	return nil
}

// FindByProximity returns the nearest record within radiusMeters.
func (s *Store) FindByProximity(_ context.Context, lat, lng, radiusMeters float64) (domain.CanonicalLocation, bool, error) {
	if !domain.IsValidCoordinate(lat, lng) {
		return domain.CanonicalLocation{}, false, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []domain.CanonicalLocation
	if radiusMeters > maxIndexedRadius {
		for _, item := range s.items.Items() {
			if loc, ok := item.Object.(domain.CanonicalLocation); ok {
				candidates = append(candidates, loc)
			}
		}
	} else {
		cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lng)).Parent(cellLevel)
		for _, c := range cellAndNeighbors(cell) {
			for placeID := range s.cells[c] {
				if v, ok := s.items.Get(locationKey(placeID)); ok {
					candidates = append(candidates, v.(domain.CanonicalLocation))
				}
			}
		}
	}

	best, ok := domain.Nearest(candidates, lat, lng, radiusMeters)
	if !ok {
		return domain.CanonicalLocation{}, false, nil
	}
	best.UsageCount = s.usage(locationKey(best.PlaceID))
	return best, true, nil
}

// Find returns the alias bound to normalizedQuery within locale.
func (s *Store) Find(_ context.Context, locale, normalizedQuery string) (domain.Alias, bool, error) {
	key := aliasKey(locale, normalizedQuery)
	v, ok := s.items.Get(key)
	if !ok {
		return domain.Alias{}, false, nil
	}
	a := v.(domain.Alias)
	a.UsageCount = s.usage(key)
	return a, true, nil
}

// UpsertAlias binds an alias unless the key is already taken. Re-binding to the
// same place is a no-op; binding to another place returns ErrAliasConflict.
func (s *Store) UpsertAlias(_ context.Context, alias domain.Alias) error {
	key := aliasKey(alias.Locale, alias.NormalizedQuery)
	alias.UsageCount = 0

	// Counter first: once the alias is visible its counter must exist. Add
	// fails only when an earlier bind created it, and that count is kept.
	_ = s.items.Add(usageKey(key), int64(0), gocache.NoExpiration)
	if err := s.items.Add(key, alias, gocache.NoExpiration); err == nil {
		return nil
	}

	existing, ok := s.items.Get(key)
	if !ok {
		return fmt.Errorf("upsert alias %q: binding vanished", alias.NormalizedQuery)
	}
	if existing.(domain.Alias).PlaceID != alias.PlaceID {
		return fmt.Errorf("upsert alias %q: %w", alias.NormalizedQuery, domain.ErrAliasConflict)
	}
	return nil
}

// IncrementAliasUsage bumps the alias counter when it is bound to placeID.
func (s *Store) IncrementAliasUsage(_ context.Context, locale, normalizedQuery, placeID string) error {
	key := aliasKey(locale, normalizedQuery)
	v, ok := s.items.Get(key)
	if !ok || v.(domain.Alias).PlaceID != placeID {
		return fmt.Errorf("increment alias usage %q: not bound to %s", normalizedQuery, placeID)
	}
	if _, err := s.items.IncrementInt64(usageKey(key), 1); err != nil {
		return fmt.Errorf("increment alias usage %q: %w", normalizedQuery, err)
	}
	return nil
}

// EachLocation calls fn for every stored record.
func (s *Store) EachLocation(ctx context.Context, fn func(domain.CanonicalLocation) error) error {
	for key, item := range s.items.Items() {
		loc, ok := item.Object.(domain.CanonicalLocation)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		loc.UsageCount = s.usage(key)
		if err := fn(loc); err != nil {
			return err
		}
	}
	return nil
}

// EachAlias calls fn for every stored alias.
func (s *Store) EachAlias(ctx context.Context, fn func(domain.Alias) error) error {
	for key, item := range s.items.Items() {
		a, ok := item.Object.(domain.Alias)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		a.UsageCount = s.usage(key)
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}

// Aliases exposes the alias index half of the store under the
// domain.AliasIndex method names.
func (s *Store) Aliases() domain.AliasIndex {
	return aliasIndex{s}
}

type aliasIndex struct{ s *Store }

func (a aliasIndex) Find(ctx context.Context, locale, normalizedQuery string) (domain.Alias, bool, error) {
	return a.s.Find(ctx, locale, normalizedQuery)
}

func (a aliasIndex) Upsert(ctx context.Context, alias domain.Alias) error {
	return a.s.UpsertAlias(ctx, alias)
}

func (a aliasIndex) IncrementUsage(ctx context.Context, locale, normalizedQuery, placeID string) error {
	return a.s.IncrementAliasUsage(ctx, locale, normalizedQuery, placeID)
}

func (s *Store) usage(key string) int64 {
	v, ok := s.items.Get(usageKey(key))
	if !ok {
		return 0
	}
	n, _ := v.(int64)
	return n
}

func (s *Store) index(loc domain.CanonicalLocation) {
	cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(loc.Latitude, loc.Longitude)).Parent(cellLevel)
	ids, ok := s.cells[cell]
	if !ok {
		ids = make(map[string]struct{})
		s.cells[cell] = ids
	}
	ids[loc.PlaceID] = struct{}{}
}

func (s *Store) unindex(loc domain.CanonicalLocation) {
	cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(loc.Latitude, loc.Longitude)).Parent(cellLevel)
	if ids, ok := s.cells[cell]; ok {
		delete(ids, loc.PlaceID)
		if len(ids) == 0 {
			delete(s.cells, cell)
		}
	}
}

// cellAndNeighbors returns the cell, its four edge neighbours and the
// corner cells reachable through them.
func cellAndNeighbors(cell s2.CellID) []s2.CellID {
	seen := map[s2.CellID]bool{cell: true}
	cells := []s2.CellID{cell}
	edges := cell.EdgeNeighbors()
	for _, e := range edges {
		if !seen[e] {
			seen[e] = true
			cells = append(cells, e)
		}
	}
	for _, e := range edges {
		for _, corner := range e.EdgeNeighbors() {
			if !seen[corner] {
				seen[corner] = true
				cells = append(cells, corner)
			}
		}
	}
	return cells
}
