package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Conversion metrics.
var (
	conversionAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "conversion_attempts_total",
		Help: "Total model invocation attempts, including retried ones.",
	})

	conversionOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversion_outcomes_total",
			Help: "Terminal conversion outcomes by class.",
		},
		[]string{"outcome"},
	)

	conversionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "conversion_duration_seconds",
		Help:    "Wall time from first attempt to terminal outcome.",
		Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		conversionAttemptsTotal, conversionOutcomesTotal, conversionDuration,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAttempt counts a single model invocation.
func ObserveAttempt() {
	conversionAttemptsTotal.Inc()
}

// ObserveConversion records a terminal outcome and its duration.
func ObserveConversion(outcome string, d time.Duration) {
	conversionOutcomesTotal.WithLabelValues(outcome).Inc()
	conversionDuration.Observe(d.Seconds())
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses per-artifact path segments so metric label
// cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if strings.HasPrefix(path, "/v1/files/") {
		rest := strings.TrimPrefix(path, "/v1/files/")
		if rest != "" && !strings.Contains(rest, "/") {
			return "/v1/files/:id"
		}
	}
	return path
}

// statusWriter mirrors the response code for labeling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
