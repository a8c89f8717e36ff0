// Package metrics provides Prometheus metrics collection.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements the MetricsCollector port using Prometheus.
type Collector struct {
	tileRequests        *prometheus.CounterVec
	tileDuration        prometheus.Histogram
	sourcesLoaded       prometheus.Gauge
	extractedBytes      prometheus.Counter
	fetchOperations     *prometheus.CounterVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector creates a new Prometheus metrics collector.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "tilehaven"
	}

	return &Collector{
		tileRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tile_requests_total",
				Help:      "Total number of tile lookups by outcome",
			},
			[]string{"status"},
		),

		tileDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tile_lookup_duration_seconds",
				Help:      "Tile lookup duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
		),

		sourcesLoaded: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sources_loaded",
				Help:      "Number of registered tile archive sources",
			},
		),

		extractedBytes: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extracted_bytes_total",
				Help:      "Total bytes written by region extractions",
			},
		),

		fetchOperations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_operations_total",
				Help:      "Total number of system archive fetches",
			},
			[]string{"scheme", "status"},
		),

		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// IncTileRequest increments the tile lookup counter.
func (c *Collector) IncTileRequest(status string) {
	c.tileRequests.WithLabelValues(status).Inc()
}

// ObserveTileDuration records tile lookup duration.
func (c *Collector) ObserveTileDuration(duration time.Duration) {
	c.tileDuration.Observe(duration.Seconds())
}

// SetSourcesLoaded sets the number of registered archive sources.
func (c *Collector) SetSourcesLoaded(count int) {
	c.sourcesLoaded.Set(float64(count))
}

// AddExtractedBytes accumulates bytes written by region extractions.
func (c *Collector) AddExtractedBytes(n uint64) {
	c.extractedBytes.Add(float64(n))
}

// IncFetchOperations increments the system-archive fetch counter.
func (c *Collector) IncFetchOperations(scheme string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	c.fetchOperations.WithLabelValues(scheme, status).Inc()
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns HTTP middleware for metrics collection.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		path := normalizePath(r.URL.Path)
		status := statusToString(wrapped.statusCode)

		c.httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		c.httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration.Seconds())
	})
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// normalizePath collapses tile coordinates into one label value so the
// metrics stay low-cardinality.
func normalizePath(path string) string {
	const tilePrefix = "/tileserver/data/default/"
	if len(path) > len(tilePrefix) && path[:len(tilePrefix)] == tilePrefix {
		return tilePrefix + "{z}/{x}/{y}"
	}
	const fontPrefix = "/tileserver/fonts/"
	if len(path) > len(fontPrefix) && path[:len(fontPrefix)] == fontPrefix {
		return fontPrefix + "{fontstack}/{range}"
	}
	return path
}

// statusToString converts HTTP status code to string category.
func statusToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
