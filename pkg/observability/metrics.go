package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Ingestion metrics
	IngestEventsTotal    *prometheus.CounterVec
	IngestRejectedTotal  *prometheus.CounterVec
	IngestAppendDuration prometheus.Histogram
	RateLimitedTotal     prometheus.Counter

	// Aggregation metrics
	AggregateQueriesTotal       *prometheus.CounterVec
	AggregateQueryDuration      *prometheus.HistogramVec
	AggregateBackendErrorsTotal *prometheus.CounterVec
	AggregateWarmRunsTotal      *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
	CacheErrorsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsOpen      prometheus.Gauge
	DBConnectionsInUse     prometheus.Gauge
	DBConnectionsIdle      prometheus.Gauge
	DBConnectionsWaitCount prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heartbeat_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "heartbeat_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "heartbeat_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(16, 4, 8),
			},
			[]string{"method", "route"},
		),

		IngestEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heartbeat_ingest_events_total",
				Help: "Total number of heartbeat events appended to the log",
			},
			[]string{"environment"},
		),
		IngestRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heartbeat_ingest_rejected_total",
				Help: "Total number of heartbeat signals rejected",
			},
			[]string{"reason"},
		),
		IngestAppendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "heartbeat_ingest_append_duration_seconds",
				Help:    "Event log append duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "heartbeat_ingest_rate_limited_total",
				Help: "Total number of heartbeat requests refused by the rate limiter",
			},
		),

		AggregateQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heartbeat_aggregate_queries_total",
				Help: "Total number of aggregate queries by shape and source",
			},
			[]string{"query", "source"},
		),
		AggregateQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "heartbeat_aggregate_query_duration_seconds",
				Help:    "Aggregate backend query duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"query"},
		),
		AggregateBackendErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heartbeat_aggregate_backend_errors_total",
				Help: "Aggregate queries answered with an empty result because the backend failed",
			},
			[]string{"query"},
		),
		AggregateWarmRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heartbeat_aggregate_warm_runs_total",
				Help: "Total number of cache warm runs",
			},
			[]string{"status"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heartbeat_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"tier"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heartbeat_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"tier"},
		),
		CacheErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heartbeat_cache_errors_total",
				Help: "Total number of cache errors",
			},
			[]string{"tier", "operation"},
		),

		DBConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "heartbeat_db_connections_open",
				Help: "Number of open database connections",
			},
		),
		DBConnectionsInUse: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "heartbeat_db_connections_in_use",
				Help: "Number of database connections in use",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "heartbeat_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "heartbeat_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.IngestEventsTotal,
		m.IngestRejectedTotal,
		m.IngestAppendDuration,
		m.RateLimitedTotal,
		m.AggregateQueriesTotal,
		m.AggregateQueryDuration,
		m.AggregateBackendErrorsTotal,
		m.AggregateWarmRunsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheErrorsTotal,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
	)

	return m
}

// RecordDBStats copies pool statistics into the database gauges.
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel prefers the mux route template so path variables such as
// app ids do not explode label cardinality.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
