package domain

import (
	"context"
	"time"
)

// RawMessage is an unprocessed message from the warmer's query topic.
type RawMessage struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// GeocodeRequest is the JSON payload a producer publishes to ask the warmer
// to resolve (and thereby cache) a query.
type GeocodeRequest struct {
	RequestID string   `json:"request_id"`
	Query     string   `json:"query"`
	Country   string   `json:"country,omitempty"`
	BiasLat   *float64 `json:"bias_lat,omitempty"`
	BiasLng   *float64 `json:"bias_lng,omitempty"`
}

// Options converts the request into lookup options.
func (r GeocodeRequest) Options() GeocodeOptions {
	return GeocodeOptions{BiasLat: r.BiasLat, BiasLng: r.BiasLng, CountryFilter: r.Country}
}

// ResolvedQuery is published for every request the warmer processes.
type ResolvedQuery struct {
	RequestID  string          `json:"request_id"`
	Query      string          `json:"query"`
	Found      bool            `json:"found"`
	Location   *LocationResult `json:"location,omitempty"`
	ResolvedAt time.Time       `json:"resolved_at"`
}
