package domain

import (
	"context"
	"time"
)

// StatsEvent represents one rate-limit decision event.
//
// It is deliberately HTTP-agnostic: Method/Path are plain strings and could
// describe a web, gRPC, or other transport.
//
// Watch cardinality: storing Key/Path without bound can explode the number
// of series/keys in a backend like Redis or Prometheus.
type StatsEvent struct {
	Key     Key
	Allowed bool
	Scope   Scope

	Method string
	Path   string

	At time.Time
}

// StatsStore is the persistence strategy for rate-limit statistics.
//
// Implementations may store to Redis, Postgres, memory, etc. Callers must
// treat a Record error as best-effort and never fail the request over it.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// Counters tallies allowed vs. denied rate-limit decisions.
type Counters struct {
	Allowed int64
	Denied  int64
}

// StatsReader is implemented by a StatsStore that can also be queried back,
// for the admin surface's read-only stats endpoint. Not every StatsStore
// needs to support this — a write-only sink is still a valid StatsStore.
type StatsReader interface {
	Total(ctx context.Context) (Counters, error)
	ByRoute(ctx context.Context) (map[string]Counters, error)
}
