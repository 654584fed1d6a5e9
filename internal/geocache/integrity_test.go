package geocache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sachanni/salonhub-geocache/internal/domain"
	"github.com/sachanni/salonhub-geocache/internal/store/memory"
)

func TestCheckIntegrity_Clean(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.provider.forward["dlf mall of india"] = mallOfIndia()

	_, ok := f.svc.Geocode(ctx, "DLF Mall of India", domain.GeocodeOptions{})
	require.True(t, ok)

	report, err := CheckIntegrity(ctx, f.store)
	require.NoError(t, err)
	assert.True(t, report.Clean(), "%+v", report.Issues)
	assert.Equal(t, 1, report.Locations)
	assert.Equal(t, 6, report.Aliases, "exact alias plus five generated variants")
}

func TestCheckIntegrity_ReportsDefects(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	tampered := domain.NewCanonicalLocation(mallOfIndia(), "fake", epoch)
	tampered.FormattedAddress = "Edited By Hand"
	_, err := s.Upsert(ctx, tampered)
	require.NoError(t, err)

	skewed := domain.NewCanonicalLocation(connaughtPlace(), "fake", epoch)
	skewed.ExpiresAt = skewed.ExpiresAt.Add(365 * 24 * time.Hour)
	_, err = s.Upsert(ctx, skewed)
	require.NoError(t, err)

	promoted := domain.NewCanonicalLocation(domain.ProviderResult{
		PlaceID: "P3", FormattedAddress: "Sector 62, Noida", Latitude: 28.62, Longitude: 77.36,
		LocationType: domain.LocationTypeApproximate,
	}, "fake", epoch)
	promoted.Confidence = domain.ConfidenceHigh
	_, err = s.Upsert(ctx, promoted)
	require.NoError(t, err)

	require.NoError(t, s.Aliases().Upsert(ctx, domain.Alias{NormalizedQuery: "dlf mall", Locale: "en", PlaceID: "ChIJ_moi"}))
	require.NoError(t, s.Aliases().Upsert(ctx, domain.Alias{NormalizedQuery: "ghost town", Locale: "en", PlaceID: "ChIJ_ghost"}))

	report, err := CheckIntegrity(ctx, s)
	require.NoError(t, err)
	assert.False(t, report.Clean())
	assert.Equal(t, 3, report.Locations)
	assert.Equal(t, 2, report.Aliases)

	kinds := map[IssueKind][]string{}
	for _, is := range report.Issues {
		kinds[is.Kind] = append(kinds[is.Kind], is.PlaceID)
	}
	assert.Equal(t, []string{"ChIJ_moi"}, kinds[IssueHashMismatch])
	assert.Equal(t, []string{"ChIJ_ghost"}, kinds[IssueDanglingAlias])
	assert.ElementsMatch(t, []string{"ChIJ_cp", "P3"}, kinds[IssueExpiryMismatch],
		"P3's expiry no longer matches its promoted confidence")
	assert.Equal(t, []string{"P3"}, kinds[IssueConfidenceMismatch])

	// Sorted by kind for stable output.
	assert.Equal(t, IssueConfidenceMismatch, report.Issues[0].Kind)

	_, ok, err := s.Aliases().Find(ctx, "en", "ghost town")
	require.NoError(t, err)
	assert.True(t, ok, "the checker never repairs")
}

type failingScanner struct{ err error }

func (f failingScanner) EachLocation(context.Context, func(domain.CanonicalLocation) error) error {
	return f.err
}

func (f failingScanner) EachAlias(context.Context, func(domain.Alias) error) error { return nil }

func TestCheckIntegrity_ScanError(t *testing.T) {
	_, err := CheckIntegrity(context.Background(), failingScanner{err: errStoreDown})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errStoreDown))
}
