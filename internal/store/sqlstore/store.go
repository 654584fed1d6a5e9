// Package sqlstore persists canonical locations and aliases through GORM.
// PostgreSQL is the production backend; SQLite serves tests and local runs.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sachanni/salonhub-geocache/internal/domain"
)

const eachBatchSize = 500

// locationUpdateColumns are overwritten when a provider result replaces a record.
var locationUpdateColumns = []string{
	"formatted_address", "normalized_hash", "latitude", "longitude", "viewport",
	"location_type", "confidence", "source", "verified_at", "expires_at", "needs_review",
}

// Store implements domain.LocationStore directly and domain.AliasIndex via Aliases.
type Store struct {
	db *gorm.DB
}

// Options tunes the connection pool.
type Options struct {
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	SlowThreshold   time.Duration
}

// Open connects to dsn. "sqlite://path", "file:..." and ":memory:" select
// SQLite; anything else is handed to the PostgreSQL driver.
func Open(dsn string, logger *slog.Logger, opts Options) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("open store: empty dsn")
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 20
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 30 * time.Minute
	}
	if opts.SlowThreshold <= 0 {
		opts.SlowThreshold = 200 * time.Millisecond
	}

	lg := gormlogger.New(
		slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		gormlogger.Config{
			SlowThreshold:             opts.SlowThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(dialector(dsn), &gorm.Config{Logger: lg})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	return &Store{db: db}, nil
}

func dialector(dsn string) gorm.Dialector {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:":
		return sqlite.Open(dsn)
	default:
		return postgres.Open(dsn)
	}
}

// Migrate creates or updates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&locationRow{}, &aliasRow{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get returns the record stored under placeID.
func (s *Store) Get(ctx context.Context, placeID string) (domain.CanonicalLocation, bool, error) {
	var row locationRow
	err := s.db.WithContext(ctx).Where("place_id = ?", placeID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.CanonicalLocation{}, false, nil
	}
	if err != nil {
		return domain.CanonicalLocation{}, false, fmt.Errorf("get location %s: %w", placeID, err)
	}
	loc, err := row.toDomain()
	if err != nil {
		return domain.CanonicalLocation{}, false, err
	}
	return loc, true, nil
}

// Upsert inserts loc or replaces the existing row in one statement,
// incrementing usage_count on replacement.
func (s *Store) Upsert(ctx context.Context, loc domain.CanonicalLocation) (domain.CanonicalLocation, error) {
	if loc.PlaceID == "" {
		return domain.CanonicalLocation{}, errors.New("upsert location: empty place id")
	}
	row, err := toLocationRow(loc)
	if err != nil {
		return domain.CanonicalLocation{}, err
	}

	updates := append(clause.AssignmentColumns(locationUpdateColumns), clause.Assignment{
		Column: clause.Column{Name: "usage_count"},
		Value:  gorm.Expr("canonical_locations.usage_count + 1"),
	})
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "place_id"}},
		DoUpdates: updates,
	}).Create(&row).Error
	if err != nil {
		return domain.CanonicalLocation{}, fmt.Errorf("upsert location %s: %w", loc.PlaceID, err)
	}

	stored, ok, err := s.Get(ctx, loc.PlaceID)
	if err != nil {
		return domain.CanonicalLocation{}, err
	}
	if !ok {
		return domain.CanonicalLocation{}, fmt.Errorf("upsert location %s: row missing after write", loc.PlaceID)
	}
	return stored, nil
}

// IncrementUsage bumps the record's usage counter.
func (s *Store) IncrementUsage(ctx context.Context, placeID string) error {
	res := s.db.WithContext(ctx).Model(&locationRow{}).
		Where("place_id = ?", placeID).
		UpdateColumn("usage_count", gorm.Expr("usage_count + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("increment usage %s: %w", placeID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("increment usage %s: no such location", placeID)
	}
	return nil
}

// FindByProximity prefilters with a bounding box and ranks the survivors
// by great-circle distance.
func (s *Store) FindByProximity(ctx context.Context, lat, lng, radiusMeters float64) (domain.CanonicalLocation, bool, error) {
	if !domain.IsValidCoordinate(lat, lng) || radiusMeters < 0 {
		return domain.CanonicalLocation{}, false, nil
	}

	dLat := domain.MetersToLatDegrees(radiusMeters)
	dLng := domain.MetersToLngDegrees(radiusMeters, lat)

	q := s.db.WithContext(ctx).Where("latitude BETWEEN ? AND ?", lat-dLat, lat+dLat)
	// Boxes crossing the antimeridian fall back to a latitude band.
	if lng-dLng >= -180 && lng+dLng <= 180 {
		q = q.Where("longitude BETWEEN ? AND ?", lng-dLng, lng+dLng)
	}

	var rows []locationRow
	if err := q.Find(&rows).Error; err != nil {
		return domain.CanonicalLocation{}, false, fmt.Errorf("find by proximity: %w", err)
	}

	candidates := make([]domain.CanonicalLocation, 0, len(rows))
	for _, r := range rows {
		loc, err := r.toDomain()
		if err != nil {
			return domain.CanonicalLocation{}, false, err
		}
		candidates = append(candidates, loc)
	}
	best, ok := domain.Nearest(candidates, lat, lng, radiusMeters)
	return best, ok, nil
}

// EachLocation calls fn for every stored record, in batches.
func (s *Store) EachLocation(ctx context.Context, fn func(domain.CanonicalLocation) error) error {
	var rows []locationRow
	res := s.db.WithContext(ctx).FindInBatches(&rows, eachBatchSize, func(_ *gorm.DB, _ int) error {
		for _, r := range rows {
			loc, err := r.toDomain()
			if err != nil {
				return err
			}
			if err := fn(loc); err != nil {
				return err
			}
		}
		return nil
	})
	return res.Error
}

// EachAlias calls fn for every stored alias. The composite key rules out
// FindInBatches, so pages are read by offset; each page is fully loaded
// before fn runs.
func (s *Store) EachAlias(ctx context.Context, fn func(domain.Alias) error) error {
	for offset := 0; ; offset += eachBatchSize {
		var rows []aliasRow
		err := s.db.WithContext(ctx).
			Order("locale").Order("normalized_query").
			Limit(eachBatchSize).Offset(offset).
			Find(&rows).Error
		if err != nil {
			return fmt.Errorf("each alias: %w", err)
		}
		for _, r := range rows {
			if err := fn(r.toDomain()); err != nil {
				return err
			}
		}
		if len(rows) < eachBatchSize {
			return nil
		}
	}
}

// Aliases returns the alias index backed by the same connection.
func (s *Store) Aliases() domain.AliasIndex {
	return &aliasIndex{db: s.db}
}

type aliasIndex struct {
	db *gorm.DB
}

func (a *aliasIndex) Find(ctx context.Context, locale, normalizedQuery string) (domain.Alias, bool, error) {
	var row aliasRow
	err := a.db.WithContext(ctx).
		Where("normalized_query = ? AND locale = ?", normalizedQuery, locale).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Alias{}, false, nil
	}
	if err != nil {
		return domain.Alias{}, false, fmt.Errorf("find alias %q: %w", normalizedQuery, err)
	}
	return row.toDomain(), true, nil
}

// Upsert inserts with ON CONFLICT DO NOTHING, then inspects the surviving
// row to tell an idempotent re-bind from a conflict.
func (a *aliasIndex) Upsert(ctx context.Context, alias domain.Alias) error {
	row := toAliasRow(alias)
	res := a.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return fmt.Errorf("upsert alias %q: %w", alias.NormalizedQuery, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	existing, ok, err := a.Find(ctx, alias.Locale, alias.NormalizedQuery)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("upsert alias %q: binding vanished", alias.NormalizedQuery)
	}
	if existing.PlaceID != alias.PlaceID {
		return fmt.Errorf("upsert alias %q: %w", alias.NormalizedQuery, domain.ErrAliasConflict)
	}
	return nil
}

func (a *aliasIndex) IncrementUsage(ctx context.Context, locale, normalizedQuery, placeID string) error {
	res := a.db.WithContext(ctx).Model(&aliasRow{}).
		Where("normalized_query = ? AND locale = ? AND place_id = ?", normalizedQuery, locale, placeID).
		UpdateColumn("usage_count", gorm.Expr("usage_count + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("increment alias usage %q: %w", normalizedQuery, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("increment alias usage %q: not bound to %s", normalizedQuery, placeID)
	}
	return nil
}
