package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec
	RoleCacheTotal      *prometheus.CounterVec

	// Invitation metrics
	InvitationTransitionsTotal *prometheus.CounterVec
	InvitationsExpiredTotal    prometheus.Counter
	InvitationSweepsTotal      *prometheus.CounterVec

	// Audit metrics
	AuditEventsDroppedTotal prometheus.Counter

	// Rate limiting
	RateLimitedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_authz_decisions_total",
				Help: "Authorization decisions by outcome and permission",
			},
			[]string{"decision", "permission"},
		),
		RoleCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_role_cache_total",
				Help: "Role cache lookups by result",
			},
			[]string{"result"},
		),
		InvitationTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_invitation_transitions_total",
				Help: "Invitation lifecycle transitions",
			},
			[]string{"transition"},
		),
		InvitationsExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_invitations_expired_total",
				Help: "Invitations expired by the sweeper",
			},
		),
		InvitationSweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_invitation_sweeps_total",
				Help: "Expiry sweep runs by outcome",
			},
			[]string{"status"},
		),
		AuditEventsDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_audit_events_dropped_total",
				Help: "Audit events dropped because the dispatcher queue was full",
			},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"limiter"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.RoleCacheTotal,
		m.InvitationTransitionsTotal,
		m.InvitationsExpiredTotal,
		m.InvitationSweepsTotal,
		m.AuditEventsDroppedTotal,
		m.RateLimitedTotal,
	)

	return m
}

// RegisterDBStats exports connection pool statistics for db.
func RegisterDBStats(registry prometheus.Registerer, db *sql.DB) {
	registry.MustRegister(collectors.NewDBStatsCollector(db, "warden"))
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

// HTTPMetricsMiddleware instruments HTTP requests. Requests are labelled by
// mux route template so path parameters do not explode cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
