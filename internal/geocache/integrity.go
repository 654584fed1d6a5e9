package geocache

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/sachanni/salonhub-geocache/internal/domain"
)

// IntegrityScanner iterates every stored record and alias.
type IntegrityScanner interface {
	EachLocation(ctx context.Context, fn func(domain.CanonicalLocation) error) error
	EachAlias(ctx context.Context, fn func(domain.Alias) error) error
}

// IssueKind classifies an integrity defect.
type IssueKind string

const (
	IssueHashMismatch       IssueKind = "hash_mismatch"
	IssueDanglingAlias      IssueKind = "dangling_alias"
	IssueExpiryMismatch     IssueKind = "expiry_mismatch"
	IssueConfidenceMismatch IssueKind = "confidence_mismatch"
)

// IntegrityIssue is one defect found by CheckIntegrity.
type IntegrityIssue struct {
	Kind            IssueKind `json:"kind"`
	PlaceID         string    `json:"place_id"`
	NormalizedQuery string    `json:"normalized_query,omitempty"`
	Locale          string    `json:"locale,omitempty"`
	Detail          string    `json:"detail"`
}

// IntegrityReport summarizes a scan.
type IntegrityReport struct {
	Locations int              `json:"locations"`
	Aliases   int              `json:"aliases"`
	Issues    []IntegrityIssue `json:"issues"`
}

// Clean reports whether the scan found no defects.
func (r IntegrityReport) Clean() bool { return len(r.Issues) == 0 }

// CheckIntegrity scans the store for records whose hash or expiry no longer
// matches their own fields and for aliases pointing at missing records.
// It only reports; nothing is repaired.
func CheckIntegrity(ctx context.Context, scanner IntegrityScanner) (IntegrityReport, error) {
	var report IntegrityReport
	places := make(map[string]struct{})

	err := scanner.EachLocation(ctx, func(loc domain.CanonicalLocation) error {
		report.Locations++
		places[loc.PlaceID] = struct{}{}

		if !loc.HashValid() {
			report.Issues = append(report.Issues, IntegrityIssue{
				Kind:    IssueHashMismatch,
				PlaceID: loc.PlaceID,
				Detail:  fmt.Sprintf("stored %s, derived %s", loc.NormalizedHash, domain.Hash(loc.FormattedAddress)),
			})
		}
		if want := domain.ConfidenceOf(loc.LocationType); loc.Confidence != want {
			report.Issues = append(report.Issues, IntegrityIssue{
				Kind:    IssueConfidenceMismatch,
				PlaceID: loc.PlaceID,
				Detail:  fmt.Sprintf("location type %q implies %s, stored %s", loc.LocationType, want, loc.Confidence),
			})
		}
		if !loc.ExpiryConsistent() {
			report.Issues = append(report.Issues, IntegrityIssue{
				Kind:    IssueExpiryMismatch,
				PlaceID: loc.PlaceID,
				Detail: fmt.Sprintf("expires %s, verified %s + %d days",
					loc.ExpiresAt.Format(time.RFC3339),
					loc.VerifiedAt.Format(time.RFC3339),
					domain.TTLDays(loc.Confidence)),
			})
		}
		return nil
	})
	if err != nil {
		return IntegrityReport{}, fmt.Errorf("scan locations: %w", err)
	}

	err = scanner.EachAlias(ctx, func(a domain.Alias) error {
		report.Aliases++
		if _, ok := places[a.PlaceID]; !ok {
			report.Issues = append(report.Issues, IntegrityIssue{
				Kind:            IssueDanglingAlias,
				PlaceID:         a.PlaceID,
				NormalizedQuery: a.NormalizedQuery,
				Locale:          a.Locale,
				Detail:          "alias points at a missing record",
			})
		}
		return nil
	})
	if err != nil {
		return IntegrityReport{}, fmt.Errorf("scan aliases: %w", err)
	}

	slices.SortFunc(report.Issues, func(a, b IntegrityIssue) int {
		return cmp.Or(
			cmp.Compare(a.Kind, b.Kind),
			cmp.Compare(a.PlaceID, b.PlaceID),
			cmp.Compare(a.Locale, b.Locale),
			cmp.Compare(a.NormalizedQuery, b.NormalizedQuery),
		)
	})
	return report, nil
}
