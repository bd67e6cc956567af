package infra

import (
	"context"
	"testing"

	"middleware-gateway/internal/ratelimit/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStatsStore(t *testing.T, opts ...RedisStatsOption) *RedisStatsStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return NewRedisStatsStore(rdb, opts...)
}

func TestRedisStatsStore_TotalTalliesAcrossRecords(t *testing.T) {
	s := newTestRedisStatsStore(t)
	ctx := context.Background()

	if err := s.Record(ctx, domain.StatsEvent{Key: "1.1.1.1", Allowed: true, Method: "GET", Path: "/x"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Record(ctx, domain.StatsEvent{Key: "1.1.1.1", Allowed: false, Method: "GET", Path: "/x"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	total, err := s.Total(ctx)
	if err != nil {
		t.Fatalf("Total: %v", err)
	}
	if total.Allowed != 1 || total.Denied != 1 {
		t.Fatalf("expected allowed=1 denied=1, got %+v", total)
	}
}

func TestRedisStatsStore_ByRouteSplitsOnLastColonNotFirst(t *testing.T) {
	s := newTestRedisStatsStore(t)
	ctx := context.Background()

	// A path containing a colon (e.g. a port-style segment) must not be
	// split at the wrong place when recovering the allowed/denied suffix.
	if err := s.Record(ctx, domain.StatsEvent{Key: "1.1.1.1", Allowed: true, Method: "GET", Path: "/host:8080/status"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	byRoute, err := s.ByRoute(ctx)
	if err != nil {
		t.Fatalf("ByRoute: %v", err)
	}
	c, ok := byRoute["GET /host:8080/status"]
	if !ok {
		t.Fatalf("expected route key %q, got %+v", "GET /host:8080/status", byRoute)
	}
	if c.Allowed != 1 {
		t.Fatalf("expected allowed=1, got %+v", c)
	}
}

func TestRedisStatsStore_TotalOnEmptyStoreReturnsZero(t *testing.T) {
	s := newTestRedisStatsStore(t)
	total, err := s.Total(context.Background())
	if err != nil {
		t.Fatalf("Total: %v", err)
	}
	if total.Allowed != 0 || total.Denied != 0 {
		t.Fatalf("expected zero counters, got %+v", total)
	}
}
