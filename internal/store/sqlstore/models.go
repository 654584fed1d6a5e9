package sqlstore

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/sachanni/salonhub-geocache/internal/domain"
)

type locationRow struct {
	PlaceID          string         `gorm:"primaryKey;size:255"`
	FormattedAddress string         `gorm:"not null"`
	NormalizedHash   string         `gorm:"size:32;not null;index"`
	Latitude         float64        `gorm:"type:decimal(10,8);not null;index:idx_canonical_locations_coords"`
	Longitude        float64        `gorm:"type:decimal(11,8);not null;index:idx_canonical_locations_coords"`
	Viewport         datatypes.JSON
	LocationType     string         `gorm:"size:32"`
	Confidence       string         `gorm:"size:8;not null"`
	Source           string         `gorm:"size:32;not null"`
	VerifiedAt       time.Time      `gorm:"not null"`
	ExpiresAt        time.Time      `gorm:"not null;index"`
	NeedsReview      bool           `gorm:"not null"`
	UsageCount       int64          `gorm:"not null"`
}

func (locationRow) TableName() string { return "canonical_locations" }

type aliasRow struct {
	NormalizedQuery string `gorm:"primaryKey;size:512"`
	Locale          string `gorm:"primaryKey;size:16"`
	OriginalQuery   string
	PlaceID         string `gorm:"size:255;not null;index"`
	MatchType       string `gorm:"size:8;not null"`
	UsageCount      int64  `gorm:"not null"`
	CreatedAt       time.Time
}

func (aliasRow) TableName() string { return "location_aliases" }

func toLocationRow(loc domain.CanonicalLocation) (locationRow, error) {
	row := locationRow{
		PlaceID:          loc.PlaceID,
		FormattedAddress: loc.FormattedAddress,
		NormalizedHash:   loc.NormalizedHash,
		Latitude:         loc.Latitude,
		Longitude:        loc.Longitude,
		LocationType:     loc.LocationType,
		Confidence:       string(loc.Confidence),
		Source:           loc.Source,
		VerifiedAt:       loc.VerifiedAt.UTC(),
		ExpiresAt:        loc.ExpiresAt.UTC(),
		NeedsReview:      loc.NeedsReview,
		UsageCount:       1,
	}
	if loc.Viewport != nil {
		b, err := json.Marshal(loc.Viewport)
		if err != nil {
			return locationRow{}, fmt.Errorf("marshal viewport: %w", err)
		}
		row.Viewport = datatypes.JSON(b)
	}
	return row, nil
}

func (r locationRow) toDomain() (domain.CanonicalLocation, error) {
	loc := domain.CanonicalLocation{
		PlaceID:          r.PlaceID,
		FormattedAddress: r.FormattedAddress,
		NormalizedHash:   r.NormalizedHash,
		Latitude:         r.Latitude,
		Longitude:        r.Longitude,
		LocationType:     r.LocationType,
		Confidence:       domain.Confidence(r.Confidence),
		Source:           r.Source,
		VerifiedAt:       r.VerifiedAt.UTC(),
		ExpiresAt:        r.ExpiresAt.UTC(),
		NeedsReview:      r.NeedsReview,
		UsageCount:       r.UsageCount,
	}
	if len(r.Viewport) > 0 && string(r.Viewport) != "null" {
		var vp domain.Viewport
		if err := json.Unmarshal(r.Viewport, &vp); err != nil {
			return domain.CanonicalLocation{}, fmt.Errorf("unmarshal viewport for %s: %w", r.PlaceID, err)
		}
		loc.Viewport = &vp
	}
	return loc, nil
}

func toAliasRow(a domain.Alias) aliasRow {
	return aliasRow{
		NormalizedQuery: a.NormalizedQuery,
		Locale:          a.Locale,
		OriginalQuery:   a.OriginalQuery,
		PlaceID:         a.PlaceID,
		MatchType:       string(a.MatchType),
	}
}

func (r aliasRow) toDomain() domain.Alias {
	return domain.Alias{
		NormalizedQuery: r.NormalizedQuery,
		Locale:          r.Locale,
		OriginalQuery:   r.OriginalQuery,
		PlaceID:         r.PlaceID,
		MatchType:       domain.MatchType(r.MatchType),
		UsageCount:      r.UsageCount,
	}
}
