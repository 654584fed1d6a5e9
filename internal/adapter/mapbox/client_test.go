package mapbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sachanni/salonhub-geocache/internal/domain"
	"github.com/sachanni/salonhub-geocache/internal/observability"
)

const (
	testToken         = "test-token"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func testClient(baseURL string) *Client {
	c := NewClient(testToken, 5*time.Second, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), testMetrics())
	c.baseURL = baseURL
	return c
}

func TestClient_ForwardLookup_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "Select Citywalk")
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, testToken, r.URL.Query().Get("access_token"))
		assert.Empty(t, r.URL.Query().Get("country"))
		assert.Empty(t, r.URL.Query().Get("proximity"))

		resp := response{
			Features: []feature{
				{
					ID:         "poi.8589934592",
					Center:     []float64{77.2197, 28.5286},
					PlaceName:  "Select Citywalk, Saket, New Delhi, Delhi 110017, India",
					PlaceType:  []string{"poi"},
					BBox:       []float64{77.2185, 28.5275, 77.2209, 28.5297},
					Properties: properties{Accuracy: "rooftop"},
				},
			},
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	result, ok := c.ForwardLookup(context.Background(), "Select Citywalk", domain.GeocodeOptions{})
	require.True(t, ok)

	assert.Equal(t, "poi.8589934592", result.PlaceID)
	assert.Equal(t, 28.5286, result.Latitude)
	assert.Equal(t, 77.2197, result.Longitude)
	assert.Equal(t, "Select Citywalk, Saket, New Delhi, Delhi 110017, India", result.FormattedAddress)
	assert.Equal(t, domain.LocationTypeRooftop, result.LocationType)
	require.NotNil(t, result.Viewport)
	assert.Equal(t, domain.LatLng{Lat: 28.5297, Lng: 77.2209}, result.Viewport.NorthEast)
	assert.Equal(t, domain.LatLng{Lat: 28.5275, Lng: 77.2185}, result.Viewport.SouthWest)
}

func TestClient_ForwardLookup_Options(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "in", r.URL.Query().Get("country"))
		assert.Equal(t, "77.320000,28.570000", r.URL.Query().Get("proximity"))
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{Features: []feature{}}))
	}))
	defer srv.Close()

	lat, lng := 28.57, 77.32
	c := testClient(srv.URL)
	_, ok := c.ForwardLookup(context.Background(), "mall", domain.GeocodeOptions{BiasLat: &lat, BiasLng: &lng, CountryFilter: "IN"})
	assert.False(t, ok)
}

func TestClient_ReverseLookup_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "77.216700,28.631500")
		resp := response{
			Features: []feature{
				{
					ID:        "address.42",
					Center:    []float64{77.2167, 28.6315},
					PlaceName: "Connaught Place, New Delhi, Delhi 110001, India",
					PlaceType: []string{"address"},
				},
			},
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	result, ok := c.ReverseLookup(context.Background(), 28.6315, 77.2167)
	require.True(t, ok)

	assert.Equal(t, "address.42", result.PlaceID)
	assert.Equal(t, domain.LocationTypeGeometricCenter, result.LocationType)
	assert.Nil(t, result.Viewport)
}

func TestClient_ForwardLookup_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{Features: []feature{}}))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, ok := c.ForwardLookup(context.Background(), "NONEXISTENT", domain.GeocodeOptions{})
	assert.False(t, ok)
}

func TestClient_ForwardLookup_InvalidFeature(t *testing.T) {
	tests := []struct {
		name string
		f    feature
	}{
		{"missing id", feature{Center: []float64{77.2, 28.6}}},
		{"missing center", feature{ID: "poi.1"}},
		{"out of range center", feature{ID: "poi.1", Center: []float64{277.2, 28.6}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set(headerContentType, contentTypeJSON)
				require.NoError(t, json.NewEncoder(w).Encode(response{Features: []feature{tt.f}}))
			}))
			defer srv.Close()

			_, ok := testClient(srv.URL).ForwardLookup(context.Background(), "x marks", domain.GeocodeOptions{})
			assert.False(t, ok)
		})
	}
}

func TestClient_ForwardLookup_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Not Authorized"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.token = "bad-token"

	_, ok := c.ForwardLookup(context.Background(), "Select Citywalk", domain.GeocodeOptions{})
	assert.False(t, ok)

	_, err := c.doRequest(context.Background(), srv.URL+"/x.json", "forward")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClient_ForwardLookup_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}

	_, ok := c.ForwardLookup(context.Background(), "Select Citywalk", domain.GeocodeOptions{})
	assert.False(t, ok)
}

func TestFeature_LocationType(t *testing.T) {
	tests := []struct {
		accuracy  string
		placeType []string
		want      string
	}{
		{"rooftop", nil, domain.LocationTypeRooftop},
		{"parcel", nil, domain.LocationTypeRooftop},
		{"point", []string{"address"}, domain.LocationTypeRooftop},
		{"interpolated", []string{"address"}, domain.LocationTypeRangeInterpolated},
		{"street", nil, domain.LocationTypeGeometricCenter},
		{"approximate", []string{"address"}, domain.LocationTypeApproximate},
		{"", []string{"poi"}, domain.LocationTypeGeometricCenter},
		{"", []string{"place"}, domain.LocationTypeApproximate},
		{"", nil, domain.LocationTypeApproximate},
	}
	for _, tt := range tests {
		f := feature{PlaceType: tt.placeType, Properties: properties{Accuracy: tt.accuracy}}
		assert.Equal(t, tt.want, f.locationType(), "accuracy=%q place_type=%v", tt.accuracy, tt.placeType)
	}
}
