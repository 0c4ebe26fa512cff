// Package metrics provides Prometheus instrumentation for statement processing.
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
	// ProviderFetches counts calls to the rate provider by series kind and outcome
	// (found, absent, error).
	ProviderFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lotledger_provider_fetches_total",
		Help: "Rate provider lookups by kind and outcome",
	}, []string{"kind", "outcome"})

	// RateCacheLookups counts resolver cache lookups by tier (memory, store) and result.
	RateCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lotledger_rate_cache_lookups_total",
		Help: "Rate cache lookups by tier and result",
	}, []string{"tier", "result"})

	// FallbackWalkDays observes how many days past the requested date a value was found.
	FallbackWalkDays = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lotledger_fallback_walk_days",
		Help:    "Days walked forward before a rate or index value was found",
		Buckets: []float64{0, 1, 2, 3, 4, 5, 7, 10},
	}, []string{"kind"})

	// UnresolvedLookups counts lookups that found no value inside the fallback window.
	UnresolvedLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lotledger_unresolved_lookups_total",
		Help: "Rate or index lookups left unresolved after the fallback walk",
	}, []string{"kind", "degraded"})

	// StatementsProcessed counts statements by result.
	StatementsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lotledger_statements_processed_total",
		Help: "Statements processed by result",
	}, []string{"result"})

	// DisposalsEmitted counts matched disposals by category and review state.
	DisposalsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lotledger_disposals_total",
		Help: "Matched disposals emitted",
	}, []string{"category", "needs_review"})

	// StatementDuration tracks end-to-end processing time of one statement.
	StatementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lotledger_statement_duration_seconds",
		Help:    "Statement processing duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lotledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lotledger_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "route"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics. Routes are labelled with the chi route
// pattern to keep label cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
