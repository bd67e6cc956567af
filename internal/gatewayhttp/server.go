// Package gatewayhttp assembles the gateway's single net/http.Server:
// the built-in endpoints (health, metrics, admin) registered ahead of
// the catch-all request pipeline, wrapped in the connection-count guard
// that bounds total concurrent traffic.
package gatewayhttp

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"middleware-gateway/internal/admin"
	"middleware-gateway/internal/healthcheck"
	"middleware-gateway/internal/metrics"
	"middleware-gateway/internal/pipeline"
	"middleware-gateway/internal/ratelimit"
)

// Version is stamped at build time via -ldflags; it defaults to "dev"
// for local builds.
var Version = "dev"

// Options wires every gateway subsystem into the built HTTP server.
type Options struct {
	Pipeline       *pipeline.Handler
	Admin          *admin.Handler
	AdminEnabled   bool
	Metrics        *metrics.Registry
	HealthChecker  *healthcheck.Checker
	MaxConnections int
	AcquireTimeout time.Duration
}

// healthResponse mirrors the documented GET /health response body.
type healthResponse struct {
	Status     string                     `json:"status"`
	Service    string                     `json:"service"`
	Version    string                     `json:"version"`
	Timestamp  int64                      `json:"timestamp"`
	Components map[string]json.RawMessage `json:"components"`
}

func healthHandler(checker *healthcheck.Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		components := make(map[string]json.RawMessage)

		if checker != nil {
			if !checker.Healthy() {
				status = "degraded"
			}
			for backend, s := range checker.Snapshot() {
				payload, _ := json.Marshal(map[string]any{
					"healthy":    s.Healthy,
					"checked_at": s.CheckedAt,
				})
				components[backend] = payload
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(healthResponse{
			Status:     status,
			Service:    "api-gateway",
			Version:    Version,
			Timestamp:  time.Now().Unix(),
			Components: components,
		})
	}
}

// New builds the top-level handler: built-in endpoints registered ahead
// of the pipeline's catch-all, with the whole mux wrapped in the
// server-wide connection cap.
func New(opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler(opts.HealthChecker))

	if opts.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Metrics.Registerer(), promhttp.HandlerOpts{}))
	}

	if opts.AdminEnabled && opts.Admin != nil {
		opts.Admin.Register(mux)
	}

	mux.Handle("/", opts.Pipeline)

	// opts.Metrics is a concrete *metrics.Registry; only hand it to the
	// ConcurrencyOptions.Metrics interface field when it is actually set,
	// otherwise a nil *Registry wrapped in a non-nil metrics.Sink would
	// pass every "!= nil" check in the middleware and panic on first use.
	concurrencyOpts := ratelimit.ConcurrencyOptions{
		Max:            opts.MaxConnections,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: opts.AcquireTimeout,
	}
	if opts.Metrics != nil {
		concurrencyOpts.Metrics = opts.Metrics
	}

	var h http.Handler = mux
	h = ratelimit.ConcurrencyMiddleware(concurrencyOpts)(h)

	return h
}
