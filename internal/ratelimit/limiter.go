package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"middleware-gateway/internal/ratelimit/application"
	"middleware-gateway/internal/ratelimit/domain"
	"middleware-gateway/internal/ratelimit/infra"

	"github.com/redis/go-redis/v9"
)

// statsSetter is implemented by backends that can record decisions to a
// domain.StatsStore.
type statsSetter interface {
	SetStats(domain.StatsStore)
}

// Limiter is the public rate-limiter façade named by the specification:
// AllowRequest, Remaining, ResetKey, and the three Set*Limit installers.
type Limiter struct {
	backend domain.GatewayLimiter
	janitor interface{ StartJanitor(infra.DoneContext) }
}

// Backend abstracts the in-process vs. shared-store choice so New can
// swap implementations without the caller changing.
type Backend interface {
	domain.GatewayLimiter
	SetGlobalLimit(requests, windowSec int)
	SetPerIPLimit(requests, windowSec int)
	SetEndpointLimit(pattern string, requests, windowSec int)
}

// New creates a Limiter backed by in-process token buckets. cleanupEvery
// and idleTTL control the background GC (defaults: 300s / 600s if zero).
func New(cleanupEvery, idleTTL time.Duration) *Limiter {
	if cleanupEvery <= 0 {
		cleanupEvery = 300 * time.Second
	}
	if idleTTL <= 0 {
		idleTTL = 600 * time.Second
	}
	svc := application.NewGatewayService(cleanupEvery, idleTTL)
	return &Limiter{backend: svc, janitor: svc}
}

// NewRedis creates a Limiter backed by a shared Redis sliding-window
// store, used when the gateway is configured with a shared rate-limit
// backend so every instance behind that Redis enforces one combined
// limit. prefix namespaces the Redis keys.
func NewRedis(rdb *redis.Client, prefix string, logger *slog.Logger) *Limiter {
	return NewWithBackend(application.NewRedisGatewayService(rdb, prefix, logger))
}

// NewWithBackend wraps an arbitrary Backend (e.g. the Redis-backed shared
// limiter) behind the same façade.
func NewWithBackend(b Backend) *Limiter {
	l := &Limiter{backend: b}
	if j, ok := any(b).(interface{ StartJanitor(infra.DoneContext) }); ok {
		l.janitor = j
	}
	return l
}

func (l *Limiter) asBackend() Backend {
	b, _ := l.backend.(Backend)
	return b
}

// SetGlobalLimit installs the single global bucket, not expected to be
// called concurrently with live traffic.
func (l *Limiter) SetGlobalLimit(requests, windowSec int) {
	if b := l.asBackend(); b != nil {
		b.SetGlobalLimit(requests, windowSec)
	}
}

// SetPerIPLimit installs the per-IP scope.
func (l *Limiter) SetPerIPLimit(requests, windowSec int) {
	if b := l.asBackend(); b != nil {
		b.SetPerIPLimit(requests, windowSec)
	}
}

// SetEndpointLimit installs the scope for one endpoint pattern.
func (l *Limiter) SetEndpointLimit(pattern string, requests, windowSec int) {
	if b := l.asBackend(); b != nil {
		b.SetEndpointLimit(pattern, requests, windowSec)
	}
}

// AllowRequest admits or rejects a request against every configured
// scope. cost defaults to 1 when <= 0.
func (l *Limiter) AllowRequest(ctx context.Context, ip, endpoint string, cost int) (admitted bool, retryAfterSec int) {
	dec := l.backend.AllowRequest(ctx, ip, endpoint, cost)
	return dec.Allowed, dec.RetryAfterSec
}

// Remaining reports the minimum tokens available across configured
// scopes.
func (l *Limiter) Remaining(ctx context.Context, ip, endpoint string) int {
	return l.backend.Remaining(ctx, ip, endpoint)
}

// ResetKey removes the per-IP bucket for ip.
func (l *Limiter) ResetKey(ip string) {
	l.backend.ResetKey(ip)
}

// SetStats installs a StatsStore that every rate-limit decision is
// recorded to, when the underlying backend supports it.
func (l *Limiter) SetStats(store domain.StatsStore) {
	if s, ok := l.backend.(statsSetter); ok {
		s.SetStats(store)
	}
}

// StartJanitor starts the background GC goroutine(s) for the configured
// backend. Stop by cancelling ctx.
func (l *Limiter) StartJanitor(ctx infra.DoneContext) {
	if l.janitor != nil {
		l.janitor.StartJanitor(ctx)
	}
}
