package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "geocache"

// Metrics holds the Prometheus counters, histograms, and gauges for the cache,
// the provider adapters, the drift auditor and the warmer pipeline.
type Metrics struct {
	// Cache metrics.
	GeocodeRequests *prometheus.CounterVec // labels: method={forward,reverse}, outcome={hit,filled,empty,rejected}
	CacheLookups    *prometheus.CounterVec // labels: method={forward,reverse}, result={hit,miss,expired,defect}
	CoalescedFills  *prometheus.CounterVec // labels: method={forward,reverse}
	SaveFailures    *prometheus.CounterVec // labels: stage={location,exact_alias,variant_alias}

	// Provider metrics.
	ProviderRequests *prometheus.CounterVec   // labels: provider, method, outcome={success,error,empty}
	ProviderDuration *prometheus.HistogramVec // labels: provider, method

	// Audit metrics.
	DriftResults *prometheus.CounterVec // labels: status={accurate,warning,error}

	// Warmer metrics.
	MessagesConsumed        prometheus.Counter
	MessagesProduced        prometheus.Counter
	MalformedMessages       prometheus.Counter
	WarmedQueries           *prometheus.CounterVec // labels: outcome={hit,filled,not_found}
	DuplicateQueries        prometheus.Counter
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      help("Geocode calls by method and outcome."),
		}, []string{"method", "outcome"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      help("Cache lookups by method and result."),
		}, []string{"method", "result"}),
		CoalescedFills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coalesced_fills_total",
			Help:      help("Callers that shared another caller's in-flight provider fill."),
		}, []string{"method"}),
		SaveFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "save_failures_total",
			Help:      help("Best-effort persistence failures by stage."),
		}, []string{"stage"}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      help("Provider API requests by provider, method and outcome."),
		}, []string{"provider", "method", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      help("Provider API request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"provider", "method"}),
		DriftResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drift_results_total",
			Help:      help("Drift audit findings by status."),
		}, []string{"status"}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warmer_messages_consumed_total",
			Help:      help("Total geocode requests read from the query topic."),
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warmer_messages_produced_total",
			Help:      help("Total resolved queries written to the result topic."),
		}),
		MalformedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warmer_malformed_messages_total",
			Help:      help("Total malformed geocode requests skipped."),
		}),
		WarmedQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warmer_queries_total",
			Help:      help("Distinct queries resolved by the warmer, by outcome."),
		}, []string{"outcome"}),
		DuplicateQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warmer_duplicate_queries_total",
			Help:      help("Requests answered from an identical query earlier in the same batch."),
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "warmer_running",
			Help:      help("1 when the warmer is active, 0 when shut down."),
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "warmer_batch_size",
			Help:      help("Number of messages per batch extracted from Kafka."),
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "warmer_batch_processing_duration_seconds",
			Help:      help("Duration of a complete batch extract-resolve-load cycle."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.GeocodeRequests,
		m.CacheLookups,
		m.CoalescedFills,
		m.SaveFailures,
		m.ProviderRequests,
		m.ProviderDuration,
		m.DriftResults,
		m.MessagesConsumed,
		m.MessagesProduced,
		m.MalformedMessages,
		m.WarmedQueries,
		m.DuplicateQueries,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics(false)
	reg := prometheus.NewRegistry()
	reg.MustRegister(m.collectors()...)
	return m
}
