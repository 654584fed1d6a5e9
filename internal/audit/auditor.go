// Package audit re-resolves curated places against the provider and reports
// how far the provider's answer has drifted from trusted coordinates.
package audit

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sachanni/salonhub-geocache/internal/domain"
	"github.com/sachanni/salonhub-geocache/internal/observability"
)

// DefaultDelay spaces provider requests during a run.
const DefaultDelay = 200 * time.Millisecond

// Publisher forwards findings that need attention.
type Publisher interface {
	PublishDrift(ctx context.Context, findings []domain.DriftFinding) error
}

// Auditor runs drift audits. It is an offline tool; it never touches the cache.
type Auditor struct {
	provider  domain.Provider
	clock     clockwork.Clock
	delay     time.Duration
	threshold float64
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithClock sets the clock used for delays and timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(a *Auditor) { a.clock = c }
}

// WithDelay sets the pause between provider requests.
func WithDelay(d time.Duration) Option {
	return func(a *Auditor) { a.delay = d }
}

// WithThreshold sets the largest distance still classified as accurate.
func WithThreshold(m float64) Option {
	return func(a *Auditor) { a.threshold = m }
}

// WithPublisher publishes warnings and errors after each run.
func WithPublisher(p Publisher) Option {
	return func(a *Auditor) { a.publisher = p }
}

// New creates an Auditor.
func New(provider domain.Provider, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Auditor {
	a := &Auditor{
		provider:  provider,
		clock:     clockwork.NewRealClock(),
		delay:     DefaultDelay,
		threshold: domain.DefaultDriftThresholdMeters,
		logger:    logger,
		metrics:   metrics,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run audits entries one at a time, in order. The error is non-nil only when
// ctx ends the run early; the partial report is still returned.
func (a *Auditor) Run(ctx context.Context, entries []domain.TrustedLocation) (domain.DriftReport, error) {
	report := domain.DriftReport{
		StartedAt: a.clock.Now(),
		Findings:  make([]domain.DriftFinding, 0, len(entries)),
	}
	a.logger.Info("drift audit started", "entries", len(entries), "threshold_meters", a.threshold)

	for i, entry := range entries {
		if i > 0 && a.delay > 0 {
			select {
			case <-ctx.Done():
				return a.finish(report), ctx.Err()
			case <-a.clock.After(a.delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return a.finish(report), err
		}

		f := a.check(ctx, entry)
		a.metrics.DriftResults.WithLabelValues(string(f.Status)).Inc()
		report.Findings = append(report.Findings, f)
	}

	report = a.finish(report)
	a.logger.Info("drift audit finished",
		"total", report.Summary.Total,
		"accurate", report.Summary.Accurate,
		"warnings", report.Summary.Warnings,
		"errors", report.Summary.Errors,
	)
	a.publish(ctx, report)
	return report, nil
}

func (a *Auditor) check(ctx context.Context, entry domain.TrustedLocation) domain.DriftFinding {
	f := domain.DriftFinding{
		Name:             entry.Name,
		TrustedLatitude:  entry.Latitude,
		TrustedLongitude: entry.Longitude,
	}

	r, ok := a.provider.ForwardLookup(ctx, entry.Name, domain.GeocodeOptions{})
	f.CheckedAt = a.clock.Now()
	if !ok {
		f.Status = domain.DriftError
		a.logger.Warn("drift audit lookup failed", "name", entry.Name)
		return f
	}

	f.PlaceID = r.PlaceID
	f.FormattedAddress = r.FormattedAddress
	f.ResolvedLatitude = r.Latitude
	f.ResolvedLongitude = r.Longitude
	f.DistanceMeters = domain.DistanceMeters(entry.Latitude, entry.Longitude, r.Latitude, r.Longitude)
	f.Status = domain.ClassifyDrift(f.DistanceMeters, a.threshold)

	if f.Status == domain.DriftWarning {
		a.logger.Warn("coordinate drift",
			"name", entry.Name,
			"place_id", r.PlaceID,
			"distance_meters", f.DistanceMeters,
		)
	}
	return f
}

func (a *Auditor) finish(report domain.DriftReport) domain.DriftReport {
	report.Summary = domain.DriftSummary{Total: len(report.Findings)}
	report.Warnings = nil
	for _, f := range report.Findings {
		switch f.Status {
		case domain.DriftAccurate:
			report.Summary.Accurate++
		case domain.DriftWarning:
			report.Summary.Warnings++
			report.Warnings = append(report.Warnings, f)
		case domain.DriftError:
			report.Summary.Errors++
		}
	}
	slices.SortStableFunc(report.Warnings, func(x, y domain.DriftFinding) int {
		return cmp.Or(
			cmp.Compare(y.DistanceMeters, x.DistanceMeters),
			cmp.Compare(x.Name, y.Name),
		)
	})
	report.FinishedAt = a.clock.Now()
	return report
}

func (a *Auditor) publish(ctx context.Context, report domain.DriftReport) {
	if a.publisher == nil {
		return
	}
	var flagged []domain.DriftFinding
	flagged = append(flagged, report.Warnings...)
	for _, f := range report.Findings {
		if f.Status == domain.DriftError {
			flagged = append(flagged, f)
		}
	}
	if len(flagged) == 0 {
		return
	}
	if err := a.publisher.PublishDrift(ctx, flagged); err != nil {
		a.logger.Error("publish drift findings failed", "count", len(flagged), "error", err)
	}
}
