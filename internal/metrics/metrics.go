// Package metrics exposes Prometheus collectors for the ingestion service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sourceRequestsTotal        *prometheus.CounterVec
	cacheHitsTotal             *prometheus.CounterVec
	rateLimitDelaySeconds      prometheus.Histogram
	quotaRejectionsTotal       prometheus.Counter
	rowsTotal                  *prometheus.CounterVec
	runsTotal                  *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	breakerStateChangesTotal   *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		sourceRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_source_requests_total",
				Help: "Outbound requests to external sources, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		cacheHitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_cache_hits_total",
				Help: "Responses served from the response cache, labeled by source.",
			},
			[]string{"source"},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_rate_limit_delay_seconds",
				Help:    "Time callers spent waiting for the minimum request spacing.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2},
			},
		)

		quotaRejectionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_quota_rejections_total",
				Help: "Requests rejected because the hourly quota was exhausted.",
			},
		)

		rowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_rows_total",
				Help: "Rows handled by the merge engine, labeled by entity and outcome.",
			},
			[]string{"entity", "outcome"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_runs_total",
				Help: "Orchestration runs, labeled by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
			},
			[]string{"method", "route"},
		)

		breakerStateChangesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_breaker_state_changes_total",
				Help: "Circuit breaker transitions, labeled by source and new state.",
			},
			[]string{"source", "state"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSourceRequest counts one outbound request.
func ObserveSourceRequest(source, outcome string) {
	Init()
	sourceRequestsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveCacheHit counts a response served without touching the network.
func ObserveCacheHit(source string) {
	Init()
	cacheHitsTotal.WithLabelValues(source).Inc()
}

// ObserveRateLimitDelay records the spacing wait imposed on a request.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	rateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveQuotaRejection counts a fail-fast quota rejection.
func ObserveQuotaRejection() {
	Init()
	quotaRejectionsTotal.Inc()
}

// ObserveRows adds n rows for entity with the given outcome
// (inserted, updated, unchanged, skipped).
func ObserveRows(entity, outcome string, n int) {
	if n <= 0 {
		return
	}
	Init()
	rowsTotal.WithLabelValues(entity, outcome).Add(float64(n))
}

// ObserveRun counts a finished orchestration run.
func ObserveRun(operation string, err error) {
	Init()
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	runsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveBreakerState counts a circuit breaker transition.
func ObserveBreakerState(source, state string) {
	Init()
	breakerStateChangesTotal.WithLabelValues(source, state).Inc()
}
