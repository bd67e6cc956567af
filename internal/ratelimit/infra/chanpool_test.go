package infra

import (
	"context"
	"testing"
)

func TestConnectionGate_InFlightTracksAcquireAndRelease(t *testing.T) {
	g := NewConnectionGate(2)
	if got := g.Capacity(); got != 2 {
		t.Fatalf("expected capacity 2, got %d", got)
	}
	if got := g.InFlight(); got != 0 {
		t.Fatalf("expected 0 in flight before any acquire, got %d", got)
	}

	release, ok := g.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected acquire to succeed")
	}
	if got := g.InFlight(); got != 1 {
		t.Fatalf("expected 1 in flight after acquire, got %d", got)
	}

	release()
	if got := g.InFlight(); got != 0 {
		t.Fatalf("expected 0 in flight after release, got %d", got)
	}
}

func TestConnectionGate_AcquireBlocksThenFailsWhenContextDone(t *testing.T) {
	g := NewConnectionGate(1)
	_, ok := g.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected first acquire to succeed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok = g.Acquire(ctx)
	if ok {
		t.Fatalf("expected second acquire against an already-done context to fail")
	}
	if got := g.InFlight(); got != 1 {
		t.Fatalf("expected the failed acquire to leave in-flight count unchanged, got %d", got)
	}
}
