package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/sachanni/salonhub-geocache/internal/domain"
)

// Geocoder is the part of geocache.Service the warmer drives.
type Geocoder interface {
	Geocode(ctx context.Context, address string, opts domain.GeocodeOptions) (domain.LocationResult, bool)
}

// Resolver implements RequestResolver on top of the geocoding cache.
type Resolver struct {
	geocoder Geocoder
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewResolver creates a Resolver. A nil clock uses the real clock.
func NewResolver(geocoder Geocoder, clock clockwork.Clock, logger *slog.Logger) *Resolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Resolver{geocoder: geocoder, clock: clock, logger: logger}
}

// Decode parses and validates a GeocodeRequest. The message key stands in for
// a missing request id.
func (r *Resolver) Decode(raw domain.RawMessage) (domain.GeocodeRequest, error) {
	return parseRequest(raw)
}

// Resolve runs the request through the cache. A query with no result is
// still a ResolvedQuery, with Found false.
func (r *Resolver) Resolve(ctx context.Context, req domain.GeocodeRequest) domain.ResolvedQuery {
	loc, ok := r.geocoder.Geocode(ctx, req.Query, req.Options())
	out := domain.ResolvedQuery{
		RequestID:  req.RequestID,
		Query:      req.Query,
		Found:      ok,
		ResolvedAt: r.clock.Now().UTC(),
	}
	if ok {
		out.Location = &loc
	}

	r.logger.Debug("resolved query",
		"request_id", req.RequestID,
		"found", ok,
		"cache_hit", ok && loc.CacheHit,
	)
	return out
}

func parseRequest(raw domain.RawMessage) (domain.GeocodeRequest, error) {
	var req domain.GeocodeRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return domain.GeocodeRequest{}, fmt.Errorf("decode geocode request: %w", err)
	}
	if req.RequestID == "" {
		req.RequestID = string(raw.Key)
	}
	if req.RequestID == "" {
		return domain.GeocodeRequest{}, errors.New("geocode request has no request id")
	}
	if strings.TrimSpace(req.Query) == "" {
		return domain.GeocodeRequest{}, fmt.Errorf("geocode request %s: empty query", req.RequestID)
	}
	if (req.BiasLat == nil) != (req.BiasLng == nil) {
		return domain.GeocodeRequest{}, fmt.Errorf("geocode request %s: bias needs both bias_lat and bias_lng", req.RequestID)
	}
	if req.BiasLat != nil && !domain.IsValidCoordinate(*req.BiasLat, *req.BiasLng) {
		return domain.GeocodeRequest{}, fmt.Errorf("geocode request %s: invalid bias coordinates", req.RequestID)
	}
	return req, nil
}
