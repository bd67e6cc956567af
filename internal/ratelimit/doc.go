// Package ratelimit implements the gateway's multi-scope rate limiter and
// its connection-concurrency guard.
//
// Layers:
//
//   - domain: contracts and types (no net/http, no infra dependency)
//   - application: the three-scope all-or-nothing admission algorithm
//   - infra: concrete backends (in-process x/time/rate token buckets, a
//     semaphore-based concurrency pool)
//   - ratelimit (this package): the public façade (Limiter) and the
//     ConcurrencyMiddleware wired into the gateway's HTTP server
//
// Request flow through the pipeline:
//
//  1. The client IP is resolved (X-Forwarded-For / X-Real-IP / RemoteAddr)
//  2. Limiter.AllowRequest checks global, per-IP, and per-endpoint scopes
//     in that order; a rejection in any scope cancels reservations already
//     held in earlier scopes, so no scope's tokens are spent on an
//     overall-rejected request
//  3. A rejection yields HTTP 429 with a Retry-After header; concurrency
//     rejection (ConcurrencyMiddleware) yields HTTP 503
//  4. An admitted request proceeds to the next pipeline stage
//
// Limits are set at startup from the loaded gateway configuration
// (server.max_connections for the concurrency guard, rate_limits.* for the
// three rate-limit scopes) rather than from environment variables.
package ratelimit
