// Package metrics provides Prometheus instrumentation for the debt-bridge
// automation service.
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
	// CanExecResults counts canExec answers by reason. Condition reasons
	// are collapsed to "ConditionNotOk" to bound cardinality.
	CanExecResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debtbridge_can_exec_total",
		Help: "canExec results by reason",
	}, []string{"reason"})

	// Executions counts exec attempts by outcome and error code.
	Executions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debtbridge_executions_total",
		Help: "Exec attempts by outcome",
	}, []string{"outcome", "code"})

	// ExecutionCost tracks metered cost units per successful execution.
	ExecutionCost = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "debtbridge_execution_cost_units",
		Help:    "Cost units charged per successful execution",
		Buckets: []float64{250_000, 500_000, 1_000_000, 1_500_000, 2_000_000, 2_500_000, 3_000_000, 4_000_000},
	})

	// ExecLatency tracks exec wall time.
	ExecLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "debtbridge_exec_latency_seconds",
		Help:    "Exec latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// ProviderFunds tracks each provider's ledger balance in native units.
	ProviderFunds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "debtbridge_provider_funds",
		Help: "Provider ledger balance in native units",
	}, []string{"provider"})

	// SubmittedReceipts counts receipts created by submissions and chaining.
	SubmittedReceipts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "debtbridge_receipts_submitted_total",
		Help: "Receipts submitted",
	})

	// RouteSelections counts quotes by selected liquidity source.
	RouteSelections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debtbridge_route_selections_total",
		Help: "Liquidity source selections",
	}, []string{"source"})

	// RateLimited counts requests rejected by the rate limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "debtbridge_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "debtbridge_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debtbridge_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "debtbridge_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Label with the chi route pattern; raw paths carry receipt ids.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
