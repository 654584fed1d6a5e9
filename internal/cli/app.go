package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/time/rate"

	"github.com/sachanni/salonhub-geocache/internal/adapter/google"
	"github.com/sachanni/salonhub-geocache/internal/adapter/mapbox"
	"github.com/sachanni/salonhub-geocache/internal/config"
	"github.com/sachanni/salonhub-geocache/internal/domain"
	"github.com/sachanni/salonhub-geocache/internal/geocache"
	"github.com/sachanni/salonhub-geocache/internal/observability"
	"github.com/sachanni/salonhub-geocache/internal/store/memory"
	"github.com/sachanni/salonhub-geocache/internal/store/sqlstore"
)

// cacheStore is what both store backends provide.
type cacheStore interface {
	domain.LocationStore
	geocache.IntegrityScanner
	Aliases() domain.AliasIndex
}

// stores is an opened backend plus its lifecycle hooks.
type stores struct {
	cacheStore
	ping  func(ctx context.Context) error
	close func() error
}

func newProvider(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (domain.Provider, error) {
	if err := cfg.RequireProviderCredentials(); err != nil {
		return nil, err
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.ProviderRateLimit), cfg.ProviderBurst)
	switch cfg.Provider {
	case config.ProviderMapbox:
		return mapbox.NewClient(cfg.MapboxToken, cfg.ProviderTimeout, limiter, logger, metrics), nil
	default:
		return google.NewClient(cfg.GoogleAPIKey, cfg.ProviderTimeout, limiter, logger, metrics), nil
	}
}

func (a *app) provider() (domain.Provider, error) {
	return a.opts.NewProvider(a.cfg, a.logger, a.metrics)
}

func (a *app) openStores() (*stores, error) {
	if a.cfg.DatabaseURL == "" {
		a.logger.Warn("DATABASE_URL not set, cached records last only for this process")
		return &stores{
			cacheStore: memory.New(),
			ping:       func(context.Context) error { return nil },
			close:      func() error { return nil },
		}, nil
	}

	s, err := sqlstore.Open(a.cfg.DatabaseURL, a.logger, sqlstore.Options{MaxOpenConns: a.cfg.DBMaxOpenConns})
	if err != nil {
		return nil, err
	}
	return &stores{cacheStore: s, ping: s.Ping, close: s.Close}, nil
}

func (a *app) dictionary() (*domain.AliasDictionary, error) {
	if a.aliasDictPath == "" {
		return domain.DefaultAliasDictionary(), nil
	}
	data, err := os.ReadFile(a.aliasDictPath)
	if err != nil {
		return nil, fmt.Errorf("read alias dictionary: %w", err)
	}
	return domain.LoadAliasDictionary(data)
}

// service opens the stores and builds the cache around the configured
// provider. The caller closes the returned stores.
func (a *app) service() (*geocache.Service, *stores, error) {
	provider, err := a.provider()
	if err != nil {
		return nil, nil, err
	}
	dict, err := a.dictionary()
	if err != nil {
		return nil, nil, err
	}
	st, err := a.openStores()
	if err != nil {
		return nil, nil, err
	}

	svc := geocache.New(provider, st.Aliases(), st, a.logger, a.metrics,
		geocache.WithLocale(a.cfg.Locale),
		geocache.WithDictionary(dict),
		geocache.WithProximityRadius(a.cfg.ProximityRadiusMeters),
	)
	return svc, st, nil
}

func (a *app) closeStores(st *stores) {
	if err := st.close(); err != nil {
		a.logger.Error("store close error", "error", err)
	}
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.opts.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
