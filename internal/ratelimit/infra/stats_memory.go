package infra

import (
	"context"
	"sync"

	"middleware-gateway/internal/ratelimit/domain"
)

// MemoryStatsStore is a simple in-memory implementation, useful for tests,
// local development, and as the stats backend when no shared store is
// configured.
//
// It never expires entries and is not suitable for a multi-instance
// deployment (each instance sees only its own traffic).
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   domain.Counters
	byRoute map[string]domain.Counters
	byKey   map[string]domain.Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute: make(map[string]domain.Counters),
		byKey:   make(map[string]domain.Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	key := string(ev.Key)
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Allowed {
		s.total.Allowed++
		c := s.byRoute[route]
		c.Allowed++
		s.byRoute[route] = c
		if s.trackKeys {
			k := s.byKey[key]
			k.Allowed++
			s.byKey[key] = k
		}
		return nil
	}

	s.total.Denied++
	c := s.byRoute[route]
	c.Denied++
	s.byRoute[route] = c
	if s.trackKeys {
		k := s.byKey[key]
		k.Denied++
		s.byKey[key] = k
	}
	return nil
}

// Total implements domain.StatsReader.
func (s *MemoryStatsStore) Total(_ context.Context) (domain.Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total, nil
}

// ByRoute implements domain.StatsReader.
func (s *MemoryStatsStore) ByRoute(_ context.Context) (map[string]domain.Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.Counters, len(s.byRoute))
	for k, v := range s.byRoute {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStatsStore) ByKey() map[string]domain.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.Counters, len(s.byKey))
	for k, v := range s.byKey {
		out[k] = v
	}
	return out
}
