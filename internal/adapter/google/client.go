// Package google adapts the Google Geocoding API to domain.Provider.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sachanni/salonhub-geocache/internal/domain"
	"github.com/sachanni/salonhub-geocache/internal/observability"
)

const (
	providerName   = "google"
	defaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

	// biasRadiusMeters is the half-width of the bounds box sent for a bias point.
	biasRadiusMeters = 20_000
)

var errZeroResults = errors.New("zero results")

// Client implements domain.Provider using the Google Geocoding API.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Google geocoding client. A nil limiter disables rate limiting.
func NewClient(apiKey string, timeout time.Duration, limiter *rate.Limiter, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		limiter: limiter,
		metrics: metrics,
		logger:  logger,
	}
}

// Name returns "google".
func (c *Client) Name() string { return providerName }

// ForwardLookup resolves free text. A country filter becomes a components
// restriction and a bias point becomes a bounds box.
func (c *Client) ForwardLookup(ctx context.Context, query string, opts domain.GeocodeOptions) (domain.ProviderResult, bool) {
	params := url.Values{
		"address": {query},
		"key":     {c.apiKey},
	}
	if cc := strings.TrimSpace(opts.CountryFilter); cc != "" {
		params.Set("components", "country:"+strings.ToUpper(cc))
	}
	if opts.HasBias() {
		params.Set("bounds", biasBounds(*opts.BiasLat, *opts.BiasLng))
	}
	return c.lookup(ctx, params, "forward")
}

// ReverseLookup resolves coordinates.
func (c *Client) ReverseLookup(ctx context.Context, lat, lng float64) (domain.ProviderResult, bool) {
	if !domain.IsValidCoordinate(lat, lng) {
		return domain.ProviderResult{}, false
	}
	params := url.Values{
		"latlng": {fmt.Sprintf("%.8f,%.8f", lat, lng)},
		"key":    {c.apiKey},
	}
	return c.lookup(ctx, params, "reverse")
}

func (c *Client) lookup(ctx context.Context, params url.Values, method string) (domain.ProviderResult, bool) {
	start := time.Now()
	result, err := c.doRequest(ctx, c.baseURL+"?"+params.Encode(), method)
	c.metrics.ProviderDuration.WithLabelValues(providerName, method).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, errZeroResults):
		c.metrics.ProviderRequests.WithLabelValues(providerName, method, "empty").Inc()
		c.logger.Debug("google returned no results", "method", method)
		return domain.ProviderResult{}, false
	case err != nil:
		c.metrics.ProviderRequests.WithLabelValues(providerName, method, "error").Inc()
		c.logger.Warn("google lookup failed", "method", method, "error", err)
		return domain.ProviderResult{}, false
	}
	c.metrics.ProviderRequests.WithLabelValues(providerName, method, "success").Inc()
	return result, true
}

func (c *Client) doRequest(ctx context.Context, fullURL, method string) (domain.ProviderResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.ProviderResult{}, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.ProviderResult{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ProviderResult{}, fmt.Errorf("%s geocode request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.ProviderResult{}, fmt.Errorf("google API error: status %d: %s", resp.StatusCode, body)
	}

	var gr response
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return domain.ProviderResult{}, fmt.Errorf("decode response: %w", err)
	}

	switch gr.Status {
	case "OK":
	case "ZERO_RESULTS":
		return domain.ProviderResult{}, errZeroResults
	default:
		return domain.ProviderResult{}, fmt.Errorf("google API status %s: %s", gr.Status, gr.ErrorMessage)
	}
	if len(gr.Results) == 0 {
		return domain.ProviderResult{}, errZeroResults
	}

	return gr.Results[0].toProviderResult()
}

func biasBounds(lat, lng float64) string {
	dLat := domain.MetersToLatDegrees(biasRadiusMeters)
	dLng := domain.MetersToLngDegrees(biasRadiusMeters, lat)
	clampLat := func(v float64) float64 { return max(-90, min(90, v)) }
	clampLng := func(v float64) float64 { return max(-180, min(180, v)) }
	return fmt.Sprintf("%.6f,%.6f|%.6f,%.6f",
		clampLat(lat-dLat), clampLng(lng-dLng),
		clampLat(lat+dLat), clampLng(lng+dLng),
	)
}

// Google Geocoding API response types.

type response struct {
	Status       string   `json:"status"`
	ErrorMessage string   `json:"error_message,omitempty"`
	Results      []result `json:"results"`
}

type result struct {
	PlaceID          string   `json:"place_id"`
	FormattedAddress string   `json:"formatted_address"`
	Geometry         geometry `json:"geometry"`
}

type geometry struct {
	Location     *latLng   `json:"location"`
	LocationType string    `json:"location_type"`
	Viewport     *viewport `json:"viewport,omitempty"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type viewport struct {
	NorthEast latLng `json:"northeast"`
	SouthWest latLng `json:"southwest"`
}

func (r result) toProviderResult() (domain.ProviderResult, error) {
	if r.PlaceID == "" {
		return domain.ProviderResult{}, errors.New("result has no place_id")
	}
	loc := r.Geometry.Location
	if loc == nil || !domain.IsValidCoordinate(loc.Lat, loc.Lng) {
		return domain.ProviderResult{}, fmt.Errorf("result %s has invalid geometry", r.PlaceID)
	}

	out := domain.ProviderResult{
		PlaceID:          r.PlaceID,
		FormattedAddress: r.FormattedAddress,
		Latitude:         loc.Lat,
		Longitude:        loc.Lng,
		LocationType:     r.Geometry.LocationType,
	}
	if vp := r.Geometry.Viewport; vp != nil {
		out.Viewport = &domain.Viewport{
			NorthEast: domain.LatLng{Lat: vp.NorthEast.Lat, Lng: vp.NorthEast.Lng},
			SouthWest: domain.LatLng{Lat: vp.SouthWest.Lat, Lng: vp.SouthWest.Lng},
		}
	}
	return out, nil
}
