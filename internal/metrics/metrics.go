// Package metrics exposes process-level Prometheus collectors for the lookup
// pipeline and the progress API.
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
	lookupsInFlight            prometheus.Gauge
	pendingResults             prometheus.Gauge
	lookupFailuresTotal        *prometheus.CounterVec
	dispatchWaitSeconds        prometheus.Histogram
	archiveFailuresTotal       prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		lookupsInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "reverse411_lookups_in_flight",
				Help: "Number of lookups currently running in the worker pool.",
			},
		)

		pendingResults = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "reverse411_pending_results",
				Help: "Completed lookups waiting for the writer.",
			},
		)

		lookupFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reverse411_lookup_failures_total",
				Help: "Lookups that ended in fetch_failed, labeled by reason.",
			},
			[]string{"reason"},
		)

		dispatchWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reverse411_dispatch_wait_seconds",
				Help:    "Time the dispatcher spent waiting on spacing or wave intervals.",
				Buckets: []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
		)

		archiveFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "reverse411_archive_failures_total",
				Help: "Raw page archive writes that failed.",
			},
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
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// IncInFlight increments the in-flight lookups gauge.
func IncInFlight() {
	Init()
	lookupsInFlight.Inc()
}

// DecInFlight decrements the in-flight lookups gauge.
func DecInFlight() {
	Init()
	lookupsInFlight.Dec()
}

// SetPending records the PendingResults depth.
func SetPending(n int) {
	Init()
	pendingResults.Set(float64(n))
}

// ObserveLookupFailure counts a fetch_failed outcome.
func ObserveLookupFailure(reason string) {
	Init()
	lookupFailuresTotal.WithLabelValues(reason).Inc()
}

// ObserveDispatchWait records a dispatcher wait.
func ObserveDispatchWait(d time.Duration) {
	Init()
	dispatchWaitSeconds.Observe(d.Seconds())
}

// ObserveArchiveFailure counts a failed archive write.
func ObserveArchiveFailure() {
	Init()
	archiveFailuresTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
