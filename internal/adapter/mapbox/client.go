package mapbox

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

const providerName = "mapbox"

var errNoFeatures = errors.New("no features")

// Client implements domain.Provider using the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client. A nil limiter disables rate limiting.
func NewClient(token string, timeout time.Duration, limiter *rate.Limiter, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.mapbox.com/geocoding/v5/mapbox.places",
		limiter: limiter,
		metrics: metrics,
		logger:  logger,
	}
}

// Name returns "mapbox".
func (c *Client) Name() string { return providerName }

// ForwardLookup converts free text to the best matching feature.
func (c *Client) ForwardLookup(ctx context.Context, query string, opts domain.GeocodeOptions) (domain.ProviderResult, bool) {
	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(query))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
	}
	if cc := strings.TrimSpace(opts.CountryFilter); cc != "" {
		params.Set("country", strings.ToLower(cc))
	}
	if opts.HasBias() {
		// Mapbox uses lon,lat order.
		params.Set("proximity", fmt.Sprintf("%.6f,%.6f", *opts.BiasLng, *opts.BiasLat))
	}

	return c.lookup(ctx, u+"?"+params.Encode(), "forward")
}

// ReverseLookup converts coordinates to the most specific feature.
func (c *Client) ReverseLookup(ctx context.Context, lat, lng float64) (domain.ProviderResult, bool) {
	if !domain.IsValidCoordinate(lat, lng) {
		return domain.ProviderResult{}, false
	}
	// Mapbox uses lon,lat order.
	coord := fmt.Sprintf("%.6f,%.6f", lng, lat)
	u := fmt.Sprintf("%s/%s.json", c.baseURL, coord)
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
	}

	return c.lookup(ctx, u+"?"+params.Encode(), "reverse")
}

func (c *Client) lookup(ctx context.Context, fullURL, method string) (domain.ProviderResult, bool) {
	start := time.Now()
	result, err := c.doRequest(ctx, fullURL, method)
	c.metrics.ProviderDuration.WithLabelValues(providerName, method).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, errNoFeatures):
		c.metrics.ProviderRequests.WithLabelValues(providerName, method, "empty").Inc()
		c.logger.Debug("mapbox returned no features", "method", method)
		return domain.ProviderResult{}, false
	case err != nil:
		c.metrics.ProviderRequests.WithLabelValues(providerName, method, "error").Inc()
		c.logger.Warn("mapbox lookup failed", "method", method, "error", err)
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
		return domain.ProviderResult{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return domain.ProviderResult{}, fmt.Errorf("decode response: %w", err)
	}

	if len(mapboxResp.Features) == 0 {
		return domain.ProviderResult{}, errNoFeatures
	}
	return mapboxResp.Features[0].toProviderResult()
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID         string     `json:"id"`
	Center     []float64  `json:"center"` // [lon, lat]
	PlaceName  string     `json:"place_name"`
	PlaceType  []string   `json:"place_type"`
	BBox       []float64  `json:"bbox,omitempty"` // [minLon, minLat, maxLon, maxLat]
	Properties properties `json:"properties"`
}

type properties struct {
	Accuracy string `json:"accuracy,omitempty"`
}

func (f feature) toProviderResult() (domain.ProviderResult, error) {
	if f.ID == "" {
		return domain.ProviderResult{}, errors.New("feature has no id")
	}
	if len(f.Center) != 2 || !domain.IsValidCoordinate(f.Center[1], f.Center[0]) {
		return domain.ProviderResult{}, fmt.Errorf("feature %s has invalid center", f.ID)
	}

	out := domain.ProviderResult{
		PlaceID:          f.ID,
		FormattedAddress: f.PlaceName,
		Latitude:         f.Center[1],
		Longitude:        f.Center[0],
		LocationType:     f.locationType(),
	}
	if len(f.BBox) == 4 {
		out.Viewport = &domain.Viewport{
			NorthEast: domain.LatLng{Lat: f.BBox[3], Lng: f.BBox[2]},
			SouthWest: domain.LatLng{Lat: f.BBox[1], Lng: f.BBox[0]},
		}
	}
	return out, nil
}

// locationType maps Mapbox accuracy and place types onto the location
// types used for confidence.
func (f feature) locationType() string {
	switch f.Properties.Accuracy {
	case "rooftop", "parcel", "point":
		return domain.LocationTypeRooftop
	case "interpolated":
		return domain.LocationTypeRangeInterpolated
	case "street", "intersection":
		return domain.LocationTypeGeometricCenter
	case "approximate":
		return domain.LocationTypeApproximate
	}
	for _, t := range f.PlaceType {
		switch t {
		case "address", "poi":
			return domain.LocationTypeGeometricCenter
		}
	}
	return domain.LocationTypeApproximate
}
