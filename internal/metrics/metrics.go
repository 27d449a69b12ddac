// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FeedFetches counts upstream feed fetches.
	// Labels:
	//   - source: "datex2", "dgt3"
	//   - outcome: "success", "failure", "rejected"
	FeedFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balizas_feed_fetches_total",
			Help: "Total number of upstream feed fetch attempts",
		},
		[]string{"source", "outcome"},
	)

	// FeedFetchDuration measures upstream fetch latency
	FeedFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "balizas_feed_fetch_duration_seconds",
			Help:    "Duration of upstream feed fetches in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source"},
	)

	// FeedFallbacks counts snapshots served from example data
	FeedFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balizas_feed_fallbacks_total",
			Help: "Total number of times example data replaced the live feed",
		},
		[]string{"reason"},
	)

	// FeedRecords is the number of beacons in the last normalized snapshot
	FeedRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "balizas_feed_records",
			Help: "Number of beacons in the last normalized snapshot",
		},
	)

	// CircuitBreakerState tracks breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "balizas_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// UpsertOutcomes counts reconciliation results.
	// Labels:
	//   - outcome: "new", "status_change", "info_update", "touch", "error"
	UpsertOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balizas_upsert_outcomes_total",
			Help: "Total number of beacon upserts by outcome",
		},
		[]string{"outcome"},
	)

	// DegradedReads counts analytics reads answered with empty shapes
	DegradedReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balizas_analytics_degraded_total",
			Help: "Total number of analytics reads served empty because storage was unavailable",
		},
		[]string{"view"},
	)

	// NotifyFailures counts change events that could not be published
	NotifyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balizas_notify_failures_total",
			Help: "Total number of change events that failed to publish",
		},
		[]string{"sink"},
	)

	// HTTPRequestDuration measures API latency
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "balizas_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveFetch records a fetch attempt
func ObserveFetch(source, outcome string, started time.Time) {
	FeedFetches.WithLabelValues(source, outcome).Inc()
	FeedFetchDuration.WithLabelValues(source).Observe(time.Since(started).Seconds())
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
