// Package geocache resolves addresses and coordinates to canonical locations,
// serving from the alias index and location store when it can and filling
// from the provider when it must.
package geocache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/sachanni/salonhub-geocache/internal/domain"
	"github.com/sachanni/salonhub-geocache/internal/observability"
)

// DefaultProximityRadiusMeters is how close a cached record must be to serve a reverse lookup.
const DefaultProximityRadiusMeters = 50.0

const (
	methodForward = "forward"
	methodReverse = "reverse"
)

// Service is the cache orchestrator. It holds no records between calls; the
// only shared state is the registry of in-flight provider fills.
type Service struct {
	provider  domain.Provider
	aliases   domain.AliasIndex
	locations domain.LocationStore

	dict   *domain.AliasDictionary
	locale string
	radius float64
	clock  clockwork.Clock

	logger  *slog.Logger
	metrics *observability.Metrics

	flights singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for freshness checks and verification times.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLocale sets the locale aliases are read and written under.
func WithLocale(locale string) Option {
	return func(s *Service) { s.locale = locale }
}

// WithDictionary replaces the built-in alias dictionary.
func WithDictionary(d *domain.AliasDictionary) Option {
	return func(s *Service) { s.dict = d }
}

// WithProximityRadius sets the reverse lookup radius in meters.
func WithProximityRadius(m float64) Option {
	return func(s *Service) { s.radius = m }
}

// New creates a Service.
func New(provider domain.Provider, aliases domain.AliasIndex, locations domain.LocationStore, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Service {
	s := &Service{
		provider:  provider,
		aliases:   aliases,
		locations: locations,
		locale:    "en",
		radius:    DefaultProximityRadiusMeters,
		clock:     clockwork.NewRealClock(),
		logger:    logger,
		metrics:   metrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dict == nil {
		s.dict = domain.DefaultAliasDictionary()
	}
	return s
}

// Geocode resolves free text to a location. The bool is false when the query
// is unusable or nothing could be resolved; the caller never sees an error.
func (s *Service) Geocode(ctx context.Context, address string, opts domain.GeocodeOptions) (domain.LocationResult, bool) {
	q := domain.Normalize(address)
	if !domain.QueryUsable(q) {
		s.metrics.GeocodeRequests.WithLabelValues(methodForward, "rejected").Inc()
		return domain.LocationResult{}, false
	}

	res, result := s.lookupAlias(ctx, q)
	s.metrics.CacheLookups.WithLabelValues(methodForward, result).Inc()
	if result == lookupHit {
		s.metrics.GeocodeRequests.WithLabelValues(methodForward, "hit").Inc()
		return res, true
	}

	key := flightKey(methodForward, s.locale, q, opts)
	res, ok := s.fill(ctx, methodForward, key, func(ctx context.Context) (domain.LocationResult, bool) {
		// Another caller may have filled this query while we were queued.
		if res, result := s.lookupAlias(ctx, q); result == lookupHit {
			s.metrics.CacheLookups.WithLabelValues(methodForward, result).Inc()
			return res, true
		}

		r, ok := s.provider.ForwardLookup(ctx, address, opts)
		if !ok {
			return domain.LocationResult{}, false
		}
		loc, report := s.save(ctx, r, q, address)
		s.logSave(report)
		return loc.Result(false), true
	})
	s.countOutcome(methodForward, res, ok)
	return res, ok
}

// ReverseGeocode resolves coordinates, preferring a fresh cached record within
// the proximity radius.
func (s *Service) ReverseGeocode(ctx context.Context, lat, lng float64) (domain.LocationResult, bool) {
	if !domain.IsValidCoordinate(lat, lng) {
		s.metrics.GeocodeRequests.WithLabelValues(methodReverse, "rejected").Inc()
		return domain.LocationResult{}, false
	}

	res, result := s.lookupNearby(ctx, lat, lng)
	s.metrics.CacheLookups.WithLabelValues(methodReverse, result).Inc()
	if result == lookupHit {
		s.metrics.GeocodeRequests.WithLabelValues(methodReverse, "hit").Inc()
		return res, true
	}

	coordQuery := domain.CoordinateQuery(lat, lng)
	q := domain.Normalize(coordQuery)
	key := flightKey(methodReverse, s.locale, q, domain.GeocodeOptions{})
	res, ok := s.fill(ctx, methodReverse, key, func(ctx context.Context) (domain.LocationResult, bool) {
		if res, result := s.lookupNearby(ctx, lat, lng); result == lookupHit {
			s.metrics.CacheLookups.WithLabelValues(methodReverse, result).Inc()
			return res, true
		}

		r, ok := s.provider.ReverseLookup(ctx, lat, lng)
		if !ok {
			return domain.LocationResult{}, false
		}
		loc, report := s.save(ctx, r, q, coordQuery)
		s.logSave(report)
		return loc.Result(false), true
	})
	s.countOutcome(methodReverse, res, ok)
	return res, ok
}

type fillResult struct {
	res domain.LocationResult
	ok  bool
}

// fill runs fn once per key across concurrent callers. The shared call is
// detached from any single caller's cancellation; each caller stops waiting
// when its own ctx is done.
func (s *Service) fill(ctx context.Context, method, key string, fn func(context.Context) (domain.LocationResult, bool)) (domain.LocationResult, bool) {
	detached := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(key, func() (any, error) {
		res, ok := fn(detached)
		return fillResult{res: res, ok: ok}, nil
	})

	select {
	case <-ctx.Done():
		s.logger.Debug("caller stopped waiting for fill", "method", method, "error", ctx.Err())
		return domain.LocationResult{}, false
	case r := <-ch:
		if r.Shared {
			s.metrics.CoalescedFills.WithLabelValues(method).Inc()
		}
		fr := r.Val.(fillResult)
		return fr.res, fr.ok
	}
}

// Lookup outcomes, also used as the cache_lookups result label.
const (
	lookupHit     = "hit"
	lookupMiss    = "miss"
	lookupExpired = "expired"
	lookupDefect  = "defect"
)

// lookupAlias serves a fresh, intact record bound to q. Every other outcome,
// store errors included, is a miss of some kind.
func (s *Service) lookupAlias(ctx context.Context, q string) (domain.LocationResult, string) {
	alias, ok, err := s.aliases.Find(ctx, s.locale, q)
	if err != nil {
		s.logger.Warn("alias lookup failed", "normalized_query", q, "error", err)
		return domain.LocationResult{}, lookupMiss
	}
	if !ok {
		return domain.LocationResult{}, lookupMiss
	}

	loc, ok, err := s.locations.Get(ctx, alias.PlaceID)
	switch {
	case err != nil:
		s.logger.Warn("location read failed", "place_id", alias.PlaceID, "error", err)
		return domain.LocationResult{}, lookupMiss
	case !ok:
		s.logger.Warn("integrity defect: dangling alias",
			"normalized_query", q, "locale", s.locale, "place_id", alias.PlaceID)
		return domain.LocationResult{}, lookupDefect
	case !loc.HashValid():
		s.logger.Warn("integrity defect: hash mismatch",
			"place_id", loc.PlaceID, "normalized_hash", loc.NormalizedHash)
		return domain.LocationResult{}, lookupDefect
	case !loc.Fresh(s.clock.Now()):
		return domain.LocationResult{}, lookupExpired
	}

	if err := s.aliases.IncrementUsage(ctx, s.locale, q, loc.PlaceID); err != nil {
		s.logger.Warn("alias usage increment failed", "normalized_query", q, "error", err)
	}
	if err := s.locations.IncrementUsage(ctx, loc.PlaceID); err != nil {
		s.logger.Warn("location usage increment failed", "place_id", loc.PlaceID, "error", err)
	}
	return loc.Result(true), lookupHit
}

func (s *Service) lookupNearby(ctx context.Context, lat, lng float64) (domain.LocationResult, string) {
	loc, ok, err := s.locations.FindByProximity(ctx, lat, lng, s.radius)
	switch {
	case err != nil:
		s.logger.Warn("proximity lookup failed", "lat", lat, "lng", lng, "error", err)
		return domain.LocationResult{}, lookupMiss
	case !ok:
		return domain.LocationResult{}, lookupMiss
	case !loc.HashValid():
		s.logger.Warn("integrity defect: hash mismatch",
			"place_id", loc.PlaceID, "normalized_hash", loc.NormalizedHash)
		return domain.LocationResult{}, lookupDefect
	case !loc.Fresh(s.clock.Now()):
		return domain.LocationResult{}, lookupExpired
	}

	if err := s.locations.IncrementUsage(ctx, loc.PlaceID); err != nil {
		s.logger.Warn("location usage increment failed", "place_id", loc.PlaceID, "error", err)
	}
	return loc.Result(true), lookupHit
}

func (s *Service) countOutcome(method string, res domain.LocationResult, ok bool) {
	switch {
	case !ok:
		s.metrics.GeocodeRequests.WithLabelValues(method, "empty").Inc()
	case res.CacheHit:
		s.metrics.GeocodeRequests.WithLabelValues(method, "hit").Inc()
	default:
		s.metrics.GeocodeRequests.WithLabelValues(method, "filled").Inc()
	}
}

// flightKey identifies identical fills. Options are part of the key because
// they can change what the provider returns.
func flightKey(method, locale, q string, opts domain.GeocodeOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%s", method, locale, q, strings.ToUpper(strings.TrimSpace(opts.CountryFilter)))
	if opts.HasBias() {
		b.WriteString("|")
		b.WriteString(strconv.FormatFloat(*opts.BiasLat, 'f', -1, 64))
		b.WriteString(",")
		b.WriteString(strconv.FormatFloat(*opts.BiasLng, 'f', -1, 64))
	}
	return b.String()
}
