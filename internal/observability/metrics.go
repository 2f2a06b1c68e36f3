package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "macro_ingest"

// Metrics holds the Prometheus counters, histograms, and gauges for retrieval and ingestion.
type Metrics struct {
	// Retrieval metrics.
	FetchRequests    *prometheus.CounterVec   // labels: endpoint, outcome={success,rejected,exhausted,invalid,canceled}
	FetchAttempts    *prometheus.CounterVec   // labels: endpoint
	FetchAPIDuration *prometheus.HistogramVec // labels: endpoint
	MetadataCache    *prometheus.CounterVec   // labels: result={hit,miss}

	// Ingestion metrics.
	SeriesIngested       prometheus.Counter
	ObservationsIngested prometheus.Counter
	IngestErrors         prometheus.Counter
	IngestRunning        prometheus.Gauge
	IngestRunDuration    prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FetchRequests,
		m.FetchAttempts,
		m.FetchAPIDuration,
		m.MetadataCache,
		m.SeriesIngested,
		m.ObservationsIngested,
		m.IngestErrors,
		m.IngestRunning,
		m.IngestRunDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Provider fetch operations by endpoint and final outcome.",
		}, []string{"endpoint", "outcome"}),
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Individual HTTP attempts made against the provider, including retries.",
		}, []string{"endpoint"}),
		FetchAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_api_duration_seconds",
			Help:      "Provider API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		MetadataCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_cache_total",
			Help:      "Metadata cache lookups by result.",
		}, []string{"result"}),
		SeriesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "series_ingested_total",
			Help:      "Series fully ingested and saved.",
		}),
		ObservationsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_ingested_total",
			Help:      "Observations saved across all series.",
		}),
		IngestErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_errors_total",
			Help:      "Series that failed to ingest during a run.",
		}),
		IngestRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_running",
			Help:      "1 while the ingest loop is active, 0 when shut down.",
		}),
		IngestRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_run_duration_seconds",
			Help:      "Duration of a complete ingest pass over the tracked series.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
	}
}
