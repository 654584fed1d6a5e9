package geocache

import (
	"context"
	"errors"

	"github.com/sachanni/salonhub-geocache/internal/domain"
)

// SaveReport describes what the best-effort write-through managed to persist.
// It is separate from the lookup result, which is returned regardless.
type SaveReport struct {
	PlaceID       string
	LocationErr   error
	ExactAliasErr error

	VariantsBound      int
	VariantsConflicted int
	VariantsFailed     int
}

// Clean reports whether every write succeeded. Variant conflicts are expected
// and do not make a report unclean.
func (r SaveReport) Clean() bool {
	return r.LocationErr == nil && r.ExactAliasErr == nil && r.VariantsFailed == 0
}

// save persists a provider result: the canonical record, the exact alias for
// the query that triggered it, and generated variants of the formatted
// address. It returns the record to serve, stored or not.
func (s *Service) save(ctx context.Context, r domain.ProviderResult, q, original string) (domain.CanonicalLocation, SaveReport) {
	report := SaveReport{PlaceID: r.PlaceID}
	loc := domain.NewCanonicalLocation(r, s.provider.Name(), s.clock.Now())

	stored, err := s.locations.Upsert(ctx, loc)
	if err != nil {
		// Aliases written now would dangle.
		report.LocationErr = err
		return loc, report
	}

	report.ExactAliasErr = s.aliases.Upsert(ctx, domain.Alias{
		NormalizedQuery: q,
		Locale:          s.locale,
		OriginalQuery:   original,
		PlaceID:         stored.PlaceID,
		MatchType:       domain.MatchExact,
	})

	if s.dict.Locale != s.locale {
		return stored, report
	}
	for _, v := range s.dict.Variants(stored.FormattedAddress) {
		if v == q {
			continue
		}
		err := s.aliases.Upsert(ctx, domain.Alias{
			NormalizedQuery: v,
			Locale:          s.locale,
			OriginalQuery:   original,
			PlaceID:         stored.PlaceID,
			MatchType:       domain.MatchAlias,
		})
		switch {
		case err == nil:
			report.VariantsBound++
		case errors.Is(err, domain.ErrAliasConflict):
			report.VariantsConflicted++
		default:
			report.VariantsFailed++
		}
	}
	return stored, report
}

func (s *Service) logSave(r SaveReport) {
	if r.LocationErr != nil {
		s.metrics.SaveFailures.WithLabelValues("location").Inc()
		s.logger.Error("location upsert failed, result served uncached",
			"place_id", r.PlaceID, "error", r.LocationErr)
		return
	}
	if r.ExactAliasErr != nil {
		s.metrics.SaveFailures.WithLabelValues("exact_alias").Inc()
		s.logger.Warn("exact alias upsert failed", "place_id", r.PlaceID, "error", r.ExactAliasErr)
	}
	if r.VariantsFailed > 0 {
		s.metrics.SaveFailures.WithLabelValues("variant_alias").Add(float64(r.VariantsFailed))
		s.logger.Warn("variant alias upserts failed",
			"place_id", r.PlaceID, "failed", r.VariantsFailed, "bound", r.VariantsBound)
	}
	if r.Clean() {
		s.logger.Debug("saved resolution",
			"place_id", r.PlaceID,
			"variants_bound", r.VariantsBound,
			"variants_conflicted", r.VariantsConflicted,
		)
	}
}
