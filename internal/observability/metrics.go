package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/achievehub/achievehub/internal/audit"
	"github.com/achievehub/achievehub/internal/shared"
)

// Metrics collects the Prometheus metrics of the service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	decisions       *prometheus.CounterVec
	batchFailures   *prometheus.CounterVec
	rbacDenials     *prometheus.CounterVec
}

// NewMetrics initialises the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "achievehub_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "achievehub_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "achievehub_approval_decisions_total",
		Help: "Committed review decisions by outcome.",
	}, []string{"decision"})
	batchFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "achievehub_approval_batch_failures_total",
		Help: "Batch approval items that failed, by error kind.",
	}, []string{"kind"})
	denials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "achievehub_rbac_denials_total",
		Help: "Requests denied by the permission guard.",
	}, []string{"route"})
	registry.MustRegister(requests, duration, decisions, batchFailures, denials)
	for _, d := range []audit.Decision{audit.DecisionApproved, audit.DecisionRejected} {
		decisions.WithLabelValues(string(d))
	}
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		decisions:       decisions,
		batchFailures:   batchFailures,
		rbacDenials:     denials,
	}
}

// Handler returns the http.Handler for /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		if recorder.status == http.StatusForbidden {
			m.rbacDenials.WithLabelValues(route).Inc()
		}
	})
}

// ObserveDecision counts a committed review decision.
func (m *Metrics) ObserveDecision(decision audit.Decision) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(decision)).Inc()
}

// ObserveBatchFailure counts a failed batch approval item.
func (m *Metrics) ObserveBatchFailure(kind shared.Kind) {
	if m == nil {
		return
	}
	m.batchFailures.WithLabelValues(string(kind)).Inc()
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
