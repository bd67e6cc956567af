package breaker

import (
	"sync"
	"time"
)

// Registry finds-or-creates the Breaker for a backend URL. A single
// shared Registry must back all requests to a backend so its failure
// state actually accumulates — a per-request breaker never trips.
type Registry struct {
	mu               sync.RWMutex
	breakers         map[string]*Breaker
	failureThreshold int
	recoveryTimeout  time.Duration
}

// NewRegistry creates a Registry that constructs new Breakers with the
// given failure threshold and recovery timeout.
func NewRegistry(failureThreshold int, recoveryTimeout time.Duration) *Registry {
	return &Registry{
		breakers:         make(map[string]*Breaker),
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
	}
}

// Get returns the Breaker for backendURL, creating it on first
// reference.
func (r *Registry) Get(backendURL string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[backendURL]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[backendURL]; ok {
		return b
	}
	b = New(r.failureThreshold, r.recoveryTimeout)
	r.breakers[backendURL] = b
	return b
}

// Snapshots returns a point-in-time view of every known backend's
// breaker state, keyed by backend URL.
func (r *Registry) Snapshots() map[string]Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Snapshot, len(r.breakers))
	for url, b := range r.breakers {
		out[url] = b.Snapshot()
	}
	return out
}
