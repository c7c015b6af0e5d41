package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// Provider call rate by endpoint (weather, geocode, air_pollution). Watch for: error vs success ratio.
	ProviderCallsTotal *prometheus.CounterVec

	// Provider latency per call. Watch for: p95 > 2s (upstream degradation), p99 near the 10s timeout.
	ProviderDuration *prometheus.HistogramVec

	// Store operation rate by op and status. Watch for: error spikes = Mongo trouble.
	StoreOperationsTotal *prometheus.CounterVec

	// Refresh outcomes by mode (one, all, stale) and outcome (refreshed, skipped, failed).
	RefreshRecordsTotal *prometheus.CounterVec

	// Cache hits on the pass-through hot cache. Hit rate = hits/(hits+misses).
	CacheHitsTotal *prometheus.CounterVec

	// Duplicate adds rejected by the proximity check.
	DuplicateCitiesRejectedTotal prometheus.Counter

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Requests rejected for missing/malformed credentials.
	UnauthorizedRequestsTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	ProviderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providerCallsTotal",
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"endpoint", "status"},
	)
	ProviderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "providerDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	StoreOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeOperationsTotal",
			Help: "Total number of record store operations",
		},
		[]string{"op", "status"},
	)
	RefreshRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refreshRecordsTotal",
			Help: "Per-record refresh outcomes by mode",
		},
		[]string{"mode", "outcome"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of pass-through cache hits",
		},
		[]string{"cacheType"},
	)
	DuplicateCitiesRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "duplicateCitiesRejectedTotal",
			Help: "Add-city requests rejected because a record within epsilon already exists",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	UnauthorizedRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "unauthorizedRequestsTotal",
			Help: "Requests rejected for missing or malformed credentials (401)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		ProviderCallsTotal, ProviderDuration,
		StoreOperationsTotal, RefreshRecordsTotal,
		CacheHitsTotal,
		DuplicateCitiesRejectedTotal, RateLimitDeniedTotal, UnauthorizedRequestsTotal,
	)
}

// RecordStoreOperation records one store call with a success/error status label.
func RecordStoreOperation(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StoreOperationsTotal.WithLabelValues(op, status).Inc()
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
