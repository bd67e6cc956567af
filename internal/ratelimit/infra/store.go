package infra

import (
	"math"
	"sync"
	"time"

	"middleware-gateway/internal/ratelimit/domain"

	"golang.org/x/time/rate"
)

// Store is a token-bucket implementation (golang.org/x/time/rate) scoped to
// a single rate-limit dimension (global, per-IP, or one endpoint pattern),
// with lazy per-key creation and periodic idle eviction.
//
// Refill is fractional: x/time/rate tracks tokens as a float64 internally,
// so a low configured rate (e.g. 2 requests per 60 seconds) never starves —
// unlike a naive integer-truncated refill_rate = requests/window.
type Store struct {
	mu           sync.Mutex
	entries      map[string]*storeEntry
	rps          rate.Limit
	burst        int
	windowSec    int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type storeEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type StoreOption func(*Store)

func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.cleanupEvery = d }
}

// NewStore creates a Store for one rate-limit scope. requests/windowSec
// derive the refill rate (requests/windowSec tokens per second); burst
// equals requests, matching the bucket capacity spec: capacity=requests.
func NewStore(requests int, windowSec int, opts ...StoreOption) *Store {
	rps := 0.0
	if windowSec > 0 {
		rps = float64(requests) / float64(windowSec)
	}
	s := &Store{
		entries:      make(map[string]*storeEntry),
		rps:          rate.Limit(rps),
		burst:        requests,
		windowSec:    windowSec,
		idleTTL:      600 * time.Second,
		cleanupEvery: 300 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) RPS() float64            { return float64(s.rps) }
func (s *Store) Burst() int              { return s.burst }
func (s *Store) WindowSec() int          { return s.windowSec }
func (s *Store) CleanupEvery() time.Duration { return s.cleanupEvery }

// RetryAfterSec is ceil(1/refill_rate), falling back to the configured
// window when the rate is zero (a misconfigured scope).
func (s *Store) RetryAfterSec() int {
	if s.rps <= 0 {
		if s.windowSec > 0 {
			return s.windowSec
		}
		return 1
	}
	return int(math.Ceil(1.0 / float64(s.rps)))
}

// Get implements domain.LimiterStore.
func (s *Store) Get(key domain.Key) domain.Limiter {
	return s.GetString(string(key))
}

func (s *Store) GetString(key string) *rate.Limiter {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &storeEntry{lim: lim, lastSeen: now}
	return lim
}

// Reset removes the bucket for key; the next access recreates it at full
// capacity.
func (s *Store) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Remaining reports the current integer token count for key without
// creating an entry if none exists (a missing bucket is reported at full
// capacity, since it would be created full on first access).
func (s *Store) Remaining(key string) int {
	now := time.Now()

	s.mu.Lock()
	ent, ok := s.entries[key]
	s.mu.Unlock()

	if !ok {
		return s.burst
	}
	return int(ent.lim.TokensAt(now))
}

func (s *Store) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor starts a goroutine that evicts idle keys periodically. Stop
// it by cancelling ctx.
func (s *Store) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext is the minimal surface needed to accept a context.Context
// without importing "context" here, so this package stays a plain
// infrastructure adapter.
type DoneContext interface {
	Done() <-chan struct{}
}
