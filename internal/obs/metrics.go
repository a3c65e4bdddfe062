package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics shared by every route.
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

	rfqsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rfqs_created_total",
		Help: "RFQ records created since process start.",
	})

	statusChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfq_status_changes_total",
			Help: "RFQ status transitions, labeled by the new status.",
		},
		[]string{"status"},
	)

	loginFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "login_failures_total",
		Help: "Rejected login attempts (bad credentials).",
	})
)

// Init registers metrics in the default registry. Call once from main.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		rfqsCreatedTotal,
		statusChangesTotal,
		loginFailuresTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRFQCreated bumps the creation counter.
func ObserveRFQCreated() { rfqsCreatedTotal.Inc() }

// ObserveStatusChange records a status transition.
func ObserveStatusChange(newStatus string) {
	statusChangesTotal.WithLabelValues(newStatus).Inc()
}

// ObserveLoginFailure records a rejected login.
func ObserveLoginFailure() { loginFailuresTotal.Inc() }

// Instrument wraps a handler with request count/latency/in-flight metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
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

// statusWriter captures the response code written downstream.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE handlers stream through the instrumented writer.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
