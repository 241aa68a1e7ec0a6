package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Complaint engine metrics
	complaintsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complaints_created_total",
			Help: "Total number of complaints filed",
		},
		[]string{"category"},
	)

	complaintsStatusChanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complaints_status_changed_total",
			Help: "Total number of complaint status changes",
		},
		[]string{"from_status", "to_status"},
	)

	complaintsAssigned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complaints_assigned_total",
			Help: "Total number of complaint assignments",
		},
		[]string{"category", "reassignment"},
	)

	resolutionHours = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "complaint_resolution_hours",
			Help:    "Hours from filing to resolution",
			Buckets: []float64{1, 4, 8, 24, 48, 72, 168, 336, 720},
		},
		[]string{"category"},
	)

	optimisticRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_optimistic_retries_total",
			Help: "Total number of compare-and-swap retries",
		},
		[]string{"record"},
	)

	optimisticConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_optimistic_conflicts_total",
			Help: "Total number of mutations abandoned after exhausting retries",
		},
		[]string{"record"},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of lifecycle events published",
		},
		[]string{"backend", "event_type", "status"},
	)

	// Database metrics
	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := routePattern(r)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routePattern labels requests by their chi route template so ids and
// complaint codes do not explode label cardinality
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// --- Business metric helpers ---

// RecordComplaintCreated records a new complaint
func RecordComplaintCreated(category string) {
	complaintsCreated.WithLabelValues(category).Inc()
}

// RecordStatusChange records a complaint status change
func RecordStatusChange(fromStatus, toStatus string) {
	complaintsStatusChanged.WithLabelValues(fromStatus, toStatus).Inc()
}

// RecordAssignment records an assignment or reassignment
func RecordAssignment(category string, reassignment bool) {
	complaintsAssigned.WithLabelValues(category, strconv.FormatBool(reassignment)).Inc()
}

// RecordResolution records the resolution time of a complaint
func RecordResolution(category string, hours int) {
	resolutionHours.WithLabelValues(category).Observe(float64(hours))
}

// RecordOptimisticRetry records a lost compare-and-swap that will be retried
func RecordOptimisticRetry(record string) {
	optimisticRetries.WithLabelValues(record).Inc()
}

// RecordOptimisticConflict records a mutation abandoned after all retries
func RecordOptimisticConflict(record string) {
	optimisticConflicts.WithLabelValues(record).Inc()
}

// RecordEventPublished records an event publish attempt
func RecordEventPublished(backend, eventType string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	eventsPublished.WithLabelValues(backend, eventType, status).Inc()
}

// RecordDBConnections records active database connections
func RecordDBConnections(count int) {
	dbConnectionsActive.Set(float64(count))
}
