// Package metrics wraps github.com/prometheus/client_golang behind a
// narrow Sink interface so the request pipeline never imports
// Prometheus types directly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sink is the metric-emission surface the pipeline and its subsystems
// depend on.
type Sink interface {
	ObserveRequest(method, path, status string, duration time.Duration)
	ObserveBackend(backend string, duration time.Duration)
	ObserveCache(result string)
	ObserveAuth(result string)
	ObserveRateLimit(scope, result string)
	SetCircuitState(backend string, state int)
	SetConcurrencyInFlight(inFlight, capacity int)
	ObserveConcurrencyRejected()
}

// CircuitState gauge values, one per internal/breaker.State.
const (
	CircuitClosed   = 0
	CircuitHalfOpen = 1
	CircuitOpen     = 2
)

// Registry is the concrete Prometheus-backed Sink, registered against
// its own prometheus.Registry so GET /metrics never leaks Go runtime
// collectors the specification does not document.
type Registry struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	backendDuration *prometheus.HistogramVec
	cacheResult     *prometheus.CounterVec
	authResult      *prometheus.CounterVec
	rateLimitResult *prometheus.CounterVec
	circuitState    *prometheus.GaugeVec

	concurrencyInFlight *prometheus.GaugeVec
	concurrencyRejected prometheus.Counter

	registry *prometheus.Registry
}

// New creates a Registry with all gateway series registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		registry: reg,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total requests handled by the gateway, by method, path, and status.",
		}, []string{"method", "path", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "End-to-end request duration observed at the pipeline boundary.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		backendDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_backend_duration_seconds",
			Help:    "Backend round-trip duration, by backend URL.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend"}),
		cacheResult: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_cache_result_total",
			Help: "Cache lookups, by result (hit/miss).",
		}, []string{"result"}),
		authResult: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_auth_result_total",
			Help: "Authentication attempts, by result.",
		}, []string{"result"}),
		rateLimitResult: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_ratelimit_result_total",
			Help: "Rate-limit decisions, by scope and result.",
		}, []string{"scope", "result"}),
		circuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_circuit_state",
			Help: "Per-backend circuit breaker state: 0=closed, 1=half-open, 2=open.",
		}, []string{"backend"}),
		concurrencyInFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_concurrency_slots",
			Help: "Connection gate occupancy against server.max_connections, by kind (in_flight/capacity).",
		}, []string{"kind"}),
		concurrencyRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_concurrency_rejected_total",
			Help: "Requests rejected because the connection gate had no free slot before the acquire timeout.",
		}),
	}
}

// Registerer exposes the underlying prometheus.Registry for the /metrics
// handler.
func (r *Registry) Registerer() *prometheus.Registry {
	return r.registry
}

func (r *Registry) ObserveRequest(method, path, status string, duration time.Duration) {
	r.requestsTotal.WithLabelValues(method, path, status).Inc()
	r.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (r *Registry) ObserveBackend(backend string, duration time.Duration) {
	r.backendDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

func (r *Registry) ObserveCache(result string) {
	r.cacheResult.WithLabelValues(result).Inc()
}

func (r *Registry) ObserveAuth(result string) {
	r.authResult.WithLabelValues(result).Inc()
}

func (r *Registry) ObserveRateLimit(scope, result string) {
	r.rateLimitResult.WithLabelValues(scope, result).Inc()
}

func (r *Registry) SetCircuitState(backend string, state int) {
	r.circuitState.WithLabelValues(backend).Set(float64(state))
}

func (r *Registry) SetConcurrencyInFlight(inFlight, capacity int) {
	r.concurrencyInFlight.WithLabelValues("in_flight").Set(float64(inFlight))
	r.concurrencyInFlight.WithLabelValues("capacity").Set(float64(capacity))
}

func (r *Registry) ObserveConcurrencyRejected() {
	r.concurrencyRejected.Inc()
}
