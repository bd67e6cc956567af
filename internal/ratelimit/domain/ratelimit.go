// Package domain defines contracts and domain types for rate limiting and
// concurrency control.
//
// This package has no dependency on net/http or on any concrete
// implementation. That keeps unit tests pure and decouples business rules
// from infrastructure detail.
package domain

import "context"

// Key identifies a single bucket within one scope: an IP, an
// "ip:endpoint-pattern" pair, or the fixed key of the global scope.
type Key string

// Scope names one of the three keyspaces a request is checked against.
type Scope string

const (
	ScopeGlobal   Scope = "global"
	ScopePerIP    Scope = "per_ip"
	ScopeEndpoint Scope = "endpoint"
)

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed bool
	// RetryAfterSec is meaningful only when Allowed is false.
	RetryAfterSec int
	// Scope names which keyspace rejected the request. Empty when Allowed.
	Scope Scope
}

// Limiter represents something that can decide whether a single action is
// permitted right now. A concrete implementation might be a token bucket,
// leaky bucket, etc. The infra layer may use libraries such as
// golang.org/x/time/rate.
type Limiter interface {
	Allow() bool
}

// LimiterStore obtains a Limiter by key (e.g. IP, API key, user).
// Implementations may cache, expire, or lazily create entries.
type LimiterStore interface {
	Get(Key) Limiter
}

// GatewayLimiter is the multi-scope rate limiter consumed by the request
// pipeline. Every configured scope (global, per-IP, per-endpoint) must
// admit a request; admission is all-or-nothing across scopes — a
// rejection in one scope must not consume tokens from another.
//
// GatewayLimiter never returns an error: infrastructure failures (e.g. a
// shared store being unreachable) fail open and are reported only through
// logging performed by the implementation.
type GatewayLimiter interface {
	AllowRequest(ctx context.Context, ip, endpoint string, cost int) Decision
	Remaining(ctx context.Context, ip, endpoint string) int
	ResetKey(ip string)
}
