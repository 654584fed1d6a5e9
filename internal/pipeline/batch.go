package pipeline

import (
	"fmt"
	"strings"

	"github.com/sachanni/salonhub-geocache/internal/domain"
	"github.com/sachanni/salonhub-geocache/internal/observability"
)

// batch holds one extracted batch while it is being warmed.
type batch struct {
	accepted []domain.RawMessage
	groups   []*queryGroup
	byKey    map[string]*queryGroup
	results  []domain.ResolvedQuery
	tally    tally
}

// queryGroup collects requests that would resolve to the same lookup, in
// arrival order.
type queryGroup struct {
	requests []domain.GeocodeRequest
}

func newBatch(size int) *batch {
	return &batch{
		accepted: make([]domain.RawMessage, 0, size),
		byKey:    make(map[string]*queryGroup, size),
		results:  make([]domain.ResolvedQuery, 0, size),
	}
}

func (b *batch) add(raw domain.RawMessage, req domain.GeocodeRequest) {
	b.accepted = append(b.accepted, raw)
	key := queryKey(req)
	g, ok := b.byKey[key]
	if !ok {
		g = &queryGroup{}
		b.byKey[key] = g
		b.groups = append(b.groups, g)
	}
	g.requests = append(g.requests, req)
}

// queryKey identifies requests the cache would answer identically: same
// normalized query, country filter and bias.
func queryKey(req domain.GeocodeRequest) string {
	var sb strings.Builder
	sb.WriteString(domain.Normalize(req.Query))
	sb.WriteByte('|')
	sb.WriteString(strings.ToUpper(strings.TrimSpace(req.Country)))
	if opts := req.Options(); opts.HasBias() {
		fmt.Fprintf(&sb, "|%.6f,%.6f", *opts.BiasLat, *opts.BiasLng)
	}
	return sb.String()
}

// answerDuplicate reuses the first request's answer for a later identical
// request. A found location is reported as a cache hit, which is what a
// second lookup would have returned.
func answerDuplicate(first domain.ResolvedQuery, req domain.GeocodeRequest) domain.ResolvedQuery {
	out := first
	out.RequestID = req.RequestID
	out.Query = req.Query
	if first.Location != nil {
		loc := *first.Location
		loc.CacheHit = true
		out.Location = &loc
	}
	return out
}

type tally struct {
	malformed  int
	duplicates int
	hits       int
	filled     int
	notFound   int
}

func (t *tally) count(r domain.ResolvedQuery) {
	switch {
	case !r.Found:
		t.notFound++
	case r.Location != nil && r.Location.CacheHit:
		t.hits++
	default:
		t.filled++
	}
}

func (t tally) record(m *observability.Metrics) {
	m.MalformedMessages.Add(float64(t.malformed))
	m.DuplicateQueries.Add(float64(t.duplicates))
	m.WarmedQueries.WithLabelValues("hit").Add(float64(t.hits))
	m.WarmedQueries.WithLabelValues("filled").Add(float64(t.filled))
	m.WarmedQueries.WithLabelValues("not_found").Add(float64(t.notFound))
}
