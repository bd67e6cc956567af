package domain

import "context"

// ConnectionGate bounds the number of requests the gateway admits into its
// handler chain at once, enforcing server.max_connections.
//
// Acquire blocks until a slot is available or ctx is done. On success it
// returns a release function that must be called exactly once. InFlight and
// Capacity expose the gate's current occupancy for the admin/metrics
// surface — they must be safe to call concurrently with Acquire.
type ConnectionGate interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	InFlight() int
	Capacity() int
}
