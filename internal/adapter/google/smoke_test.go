//go:build google

package google

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sachanni/salonhub-geocache/internal/domain"
	"github.com/sachanni/salonhub-geocache/internal/observability"
)

// These tests hit the real Google Geocoding API and require GOOGLE_MAPS_API_KEY.
// Run with: go test -tags=google ./internal/adapter/google/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	key := os.Getenv("GOOGLE_MAPS_API_KEY")
	if key == "" {
		t.Fatal("GOOGLE_MAPS_API_KEY must be set to run smoke tests")
	}
	return NewClient(key, 10*time.Second, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
}

func TestSmoke_ForwardLookup(t *testing.T) {
	c := smokeClient(t)

	got, ok := c.ForwardLookup(context.Background(), "DLF Mall of India, Noida", domain.GeocodeOptions{CountryFilter: "IN"})
	require.True(t, ok)
	assert.NotEmpty(t, got.PlaceID)
	assert.InDelta(t, 28.567, got.Latitude, 0.01)
	assert.InDelta(t, 77.321, got.Longitude, 0.01)
	t.Logf("%s %s (%s)", got.PlaceID, got.FormattedAddress, got.LocationType)
}

func TestSmoke_ReverseLookup(t *testing.T) {
	c := smokeClient(t)

	got, ok := c.ReverseLookup(context.Background(), 28.6315, 77.2167)
	require.True(t, ok)
	assert.Contains(t, got.FormattedAddress, "Delhi")
}
