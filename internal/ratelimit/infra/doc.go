// Package infra contains concrete implementations (infrastructure) for the
// contracts defined in the domain package.
//
// Examples:
//   - Store: per-key token bucket built on golang.org/x/time/rate
//   - RedisStore: shared sliding-window rate limiting backed by Redis
//   - connectionGate: a channel-based semaphore with occupancy accounting,
//     used to bound total concurrent connections
package infra
