package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sachanni/salonhub-geocache/internal/domain"
	"github.com/sachanni/salonhub-geocache/internal/observability"
)

// BatchExtractor reads up to batchSize raw messages from the query topic.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error)
}

// RequestResolver decodes geocode requests and resolves them through the
// cache. A Decode error marks the message as malformed; it is skipped and
// committed.
type RequestResolver interface {
	Decode(raw domain.RawMessage) (domain.GeocodeRequest, error)
	Resolve(ctx context.Context, req domain.GeocodeRequest) domain.ResolvedQuery
}

// BatchLoader publishes resolved queries to the result topic.
type BatchLoader interface {
	LoadBatch(ctx context.Context, results []domain.ResolvedQuery) error
}

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Pipeline is the cache warmer. It drains the query topic through the
// geocoding cache so that later lookups are hits, publishing one
// ResolvedQuery per well-formed request.
type Pipeline struct {
	extractor BatchExtractor
	resolver  RequestResolver
	loader    BatchLoader
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	batchSize int
}

// New creates a Pipeline.
func New(e BatchExtractor, r RequestResolver, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor: e,
		resolver:  r,
		loader:    l,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness reports ready once a batch of results has been published.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("warmer has not resolved any queries yet")
	}
	return nil
}

// Run warms the cache batch by batch until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("warmer started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for ctx.Err() == nil {
		raws, err := p.extractor.ExtractBatch(ctx, p.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.Error("extract batch failed", "error", err)
			if !p.wait(ctx, &backoff) {
				break
			}
			continue
		}
		if len(raws) == 0 {
			continue
		}
		backoff = initialBackoff

		if err := p.warm(ctx, raws); err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.Error("publish results failed, batch will be redelivered", "error", err, "messages", len(raws))
			if !p.wait(ctx, &backoff) {
				break
			}
		}
	}

	p.logger.Info("warmer stopping", "reason", context.Cause(ctx))
	return nil
}

// warm resolves one extracted batch, publishes the results and commits the
// batch. Offsets stay uncommitted when publishing fails or the context ends
// mid-batch, so the requests are redelivered.
func (p *Pipeline) warm(ctx context.Context, raws []domain.RawMessage) error {
	start := time.Now()
	p.metrics.MessagesConsumed.Add(float64(len(raws)))
	p.metrics.BatchSize.Observe(float64(len(raws)))

	b := p.decode(ctx, raws)
	p.resolve(ctx, b)
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(b.results) > 0 {
		if err := p.loader.LoadBatch(ctx, b.results); err != nil {
			return err
		}
		p.metrics.MessagesProduced.Add(float64(len(b.results)))
	}
	for _, raw := range b.accepted {
		p.commit(ctx, raw)
	}

	b.tally.record(p.metrics)
	p.logger.Info("batch warmed",
		"messages", len(raws),
		"malformed", b.tally.malformed,
		"distinct_queries", len(b.groups),
		"duplicates", b.tally.duplicates,
		"hits", b.tally.hits,
		"filled", b.tally.filled,
		"not_found", b.tally.notFound,
	)

	if len(b.results) > 0 {
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		p.ready.Store(true)
	}
	return nil
}

// decode parses every message, committing malformed ones straight away, and
// groups the rest by query so each distinct query is resolved once.
func (p *Pipeline) decode(ctx context.Context, raws []domain.RawMessage) *batch {
	b := newBatch(len(raws))
	for _, raw := range raws {
		req, err := p.resolver.Decode(raw)
		if err != nil {
			p.logger.Warn("malformed geocode request, skipping",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			b.tally.malformed++
			p.commit(ctx, raw)
			continue
		}
		b.add(raw, req)
	}
	return b
}

func (p *Pipeline) resolve(ctx context.Context, b *batch) {
	for _, g := range b.groups {
		if ctx.Err() != nil {
			return
		}
		first := p.resolver.Resolve(ctx, g.requests[0])
		b.tally.count(first)
		b.results = append(b.results, first)
		for _, req := range g.requests[1:] {
			b.tally.duplicates++
			b.results = append(b.results, answerDuplicate(first, req))
		}
	}
}

// wait sleeps for the current backoff and doubles it. It returns false when
// the context ends first.
func (p *Pipeline) wait(ctx context.Context, backoff *time.Duration) bool {
	timer := time.NewTimer(*backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	*backoff = min(*backoff*2, maxBackoff)
	return true
}

func (p *Pipeline) commit(ctx context.Context, raw domain.RawMessage) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
