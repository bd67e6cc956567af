// Package healthcheck runs a periodic background probe of every backend
// known to the route table, feeding liveness state that the built-in
// /health endpoint reports and that operators use to reason about a
// backend's circuit-breaker state independent of live traffic.
package healthcheck

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"middleware-gateway/internal/breaker"
	"middleware-gateway/internal/metrics"
	"middleware-gateway/internal/proxy"
	"middleware-gateway/internal/router"
)

// Status is a point-in-time liveness reading for one backend.
type Status struct {
	Healthy   bool
	CheckedAt time.Time
}

// Checker owns the ticker goroutine and the last-known status of every
// backend it has probed.
type Checker struct {
	routes   *router.Registry
	breakers *breaker.Registry
	interval time.Duration
	logger   *slog.Logger
	metrics  metrics.Sink

	mu     sync.RWMutex
	status map[string]Status
}

// New creates a Checker. interval defaults to 10 seconds when <= 0,
// matching the specification's documented default. Circuit-state gauges
// are published only once WithMetrics has installed a sink.
func New(routes *router.Registry, breakers *breaker.Registry, interval time.Duration, logger *slog.Logger) *Checker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		routes:   routes,
		breakers: breakers,
		interval: interval,
		logger:   logger,
		status:   make(map[string]Status),
	}
}

// WithMetrics installs a metrics.Sink that receives a circuit-state
// gauge update for every backend on each probe tick.
func (c *Checker) WithMetrics(sink metrics.Sink) *Checker {
	c.metrics = sink
	return c
}

var breakerStateGauge = map[breaker.State]int{
	breaker.StateClosed:   metrics.CircuitClosed,
	breaker.StateHalfOpen: metrics.CircuitHalfOpen,
	breaker.StateOpen:     metrics.CircuitOpen,
}

// backendURLs deduplicates every backend referenced by the current route
// table.
func (c *Checker) backendURLs() []string {
	table := c.routes.Current()
	seen := make(map[string]struct{})
	var urls []string
	for _, r := range table.Routes() {
		for _, b := range r.Backends {
			if _, ok := seen[b]; ok {
				continue
			}
			seen[b] = struct{}{}
			urls = append(urls, b)
		}
	}
	return urls
}

func (c *Checker) probeOnce(ctx context.Context) {
	for _, backendURL := range c.backendURLs() {
		healthy := proxy.HealthCheck(ctx, backendURL)
		c.mu.Lock()
		c.status[backendURL] = Status{Healthy: healthy, CheckedAt: time.Now()}
		c.mu.Unlock()

		if !healthy {
			c.logger.Warn("backend health check failed", "backend", backendURL)
		}

		if c.metrics != nil {
			state := c.breakers.Get(backendURL).Snapshot().State
			c.metrics.SetCircuitState(backendURL, breakerStateGauge[state])
		}
	}
}

// Run blocks, probing every known backend on each tick until ctx is
// canceled. Callers typically launch it with `go checker.Run(ctx)`.
func (c *Checker) Run(ctx context.Context) {
	c.probeOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.probeOnce(ctx)
		}
	}
}

// Snapshot returns the last-known status of every probed backend.
func (c *Checker) Snapshot() map[string]Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Status, len(c.status))
	for k, v := range c.status {
		out[k] = v
	}
	return out
}

// Healthy reports whether every known backend was reachable on its last
// check. An unprobed system (no backends yet, or no probe run) reports
// healthy.
func (c *Checker) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.status {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// BreakerStates returns the current breaker snapshot for every backend
// the registry has ever seen, keyed by backend URL.
func (c *Checker) BreakerStates() map[string]breaker.Snapshot {
	return c.breakers.Snapshots()
}
