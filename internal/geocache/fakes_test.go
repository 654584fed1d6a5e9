package geocache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sachanni/salonhub-geocache/internal/domain"
	"github.com/sachanni/salonhub-geocache/internal/observability"
	"github.com/sachanni/salonhub-geocache/internal/store/memory"
)

var (
	epoch = time.Date(2024, 11, 1, 10, 0, 0, 0, time.UTC)

	errStoreDown = errors.New("store down")
)

// fakeProvider answers from fixed tables and counts calls. When gate is set,
// every lookup signals started and then waits for the gate to close.
type fakeProvider struct {
	forward map[string]domain.ProviderResult // keyed by normalized query
	reverse map[string]domain.ProviderResult // keyed by domain.CoordinateQuery

	forwardCalls atomic.Int32
	reverseCalls atomic.Int32

	started chan struct{}
	gate    chan struct{}

	mu       sync.Mutex
	lastOpts domain.GeocodeOptions
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		forward: map[string]domain.ProviderResult{},
		reverse: map[string]domain.ProviderResult{},
	}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) wait() {
	if p.gate == nil {
		return
	}
	p.started <- struct{}{}
	<-p.gate
}

func (p *fakeProvider) ForwardLookup(_ context.Context, query string, opts domain.GeocodeOptions) (domain.ProviderResult, bool) {
	p.forwardCalls.Add(1)
	p.mu.Lock()
	p.lastOpts = opts
	p.mu.Unlock()
	p.wait()
	r, ok := p.forward[domain.Normalize(query)]
	return r, ok
}

func (p *fakeProvider) ReverseLookup(_ context.Context, lat, lng float64) (domain.ProviderResult, bool) {
	p.reverseCalls.Add(1)
	p.wait()
	r, ok := p.reverse[domain.CoordinateQuery(lat, lng)]
	return r, ok
}

// flakyLocations fails selected operations of an otherwise working store.
type flakyLocations struct {
	domain.LocationStore
	getErr    error
	upsertErr error
	proxErr   error
}

func (f *flakyLocations) Get(ctx context.Context, placeID string) (domain.CanonicalLocation, bool, error) {
	if f.getErr != nil {
		return domain.CanonicalLocation{}, false, f.getErr
	}
	return f.LocationStore.Get(ctx, placeID)
}

func (f *flakyLocations) Upsert(ctx context.Context, loc domain.CanonicalLocation) (domain.CanonicalLocation, error) {
	if f.upsertErr != nil {
		return domain.CanonicalLocation{}, f.upsertErr
	}
	return f.LocationStore.Upsert(ctx, loc)
}

func (f *flakyLocations) FindByProximity(ctx context.Context, lat, lng, r float64) (domain.CanonicalLocation, bool, error) {
	if f.proxErr != nil {
		return domain.CanonicalLocation{}, false, f.proxErr
	}
	return f.LocationStore.FindByProximity(ctx, lat, lng, r)
}

// flakyAliases fails every write and, optionally, every read.
type flakyAliases struct {
	domain.AliasIndex
	findErr   error
	upsertErr error
}

func (f *flakyAliases) Find(ctx context.Context, locale, q string) (domain.Alias, bool, error) {
	if f.findErr != nil {
		return domain.Alias{}, false, f.findErr
	}
	return f.AliasIndex.Find(ctx, locale, q)
}

func (f *flakyAliases) Upsert(ctx context.Context, a domain.Alias) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.AliasIndex.Upsert(ctx, a)
}

type fixture struct {
	provider *fakeProvider
	store    *memory.Store
	clock    *clockwork.FakeClock
	metrics  *observability.Metrics
	svc      *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		provider: newFakeProvider(),
		store:    memory.New(),
		clock:    clockwork.NewFakeClockAt(epoch),
		metrics:  observability.NewMetricsForTesting(),
	}
	f.svc = f.build(f.store, f.store.Aliases(), opts...)
	return f
}

func (f *fixture) build(locations domain.LocationStore, aliases domain.AliasIndex, opts ...Option) *Service {
	opts = append([]Option{WithClock(f.clock)}, opts...)
	return New(f.provider, aliases, locations, slog.New(slog.NewTextHandler(io.Discard, nil)), f.metrics, opts...)
}

func mallOfIndia() domain.ProviderResult {
	return domain.ProviderResult{
		PlaceID:          "ChIJ_moi",
		FormattedAddress: "DLF Mall of India, Sector 18, Noida, Uttar Pradesh 201301, India",
		Latitude:         28.567234,
		Longitude:        77.321098,
		LocationType:     domain.LocationTypeRooftop,
		Viewport: &domain.Viewport{
			NorthEast: domain.LatLng{Lat: 28.5686, Lng: 77.3225},
			SouthWest: domain.LatLng{Lat: 28.5659, Lng: 77.3198},
		},
	}
}

func connaughtPlace() domain.ProviderResult {
	return domain.ProviderResult{
		PlaceID:          "ChIJ_cp",
		FormattedAddress: "Connaught Place, New Delhi, Delhi 110001, India",
		Latitude:         28.63152,
		Longitude:        77.21671,
		LocationType:     domain.LocationTypeGeometricCenter,
	}
}
