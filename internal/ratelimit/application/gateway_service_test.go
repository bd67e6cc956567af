package application

import (
	"context"
	"testing"
	"time"

	"middleware-gateway/internal/ratelimit/domain"
)

func TestGatewayService_PerIPLimitRejectsThirdCallThenRefills(t *testing.T) {
	s := NewGatewayService(0, 0)
	s.SetPerIPLimit(2, 1) // 2 requests per second

	ctx := context.Background()
	if dec := s.AllowRequest(ctx, "1.1.1.1", "/x", 1); !dec.Allowed {
		t.Fatalf("expected first request allowed")
	}
	if dec := s.AllowRequest(ctx, "1.1.1.1", "/x", 1); !dec.Allowed {
		t.Fatalf("expected second request allowed")
	}
	dec := s.AllowRequest(ctx, "1.1.1.1", "/x", 1)
	if dec.Allowed {
		t.Fatalf("expected third immediate request rejected")
	}
	if dec.Scope != domain.ScopePerIP {
		t.Fatalf("expected rejection scope per_ip, got %q", dec.Scope)
	}
	if dec.RetryAfterSec < 1 {
		t.Fatalf("expected retry-after >= 1s, got %d", dec.RetryAfterSec)
	}

	time.Sleep(1100 * time.Millisecond)
	if dec := s.AllowRequest(ctx, "1.1.1.1", "/x", 1); !dec.Allowed {
		t.Fatalf("expected request allowed again after refill")
	}
}

func TestGatewayService_SeparateIPsHaveIndependentBuckets(t *testing.T) {
	s := NewGatewayService(0, 0)
	s.SetPerIPLimit(1, 60)

	ctx := context.Background()
	if dec := s.AllowRequest(ctx, "1.1.1.1", "/x", 1); !dec.Allowed {
		t.Fatalf("expected first IP's request allowed")
	}
	if dec := s.AllowRequest(ctx, "1.1.1.1", "/x", 1); dec.Allowed {
		t.Fatalf("expected first IP's second request rejected")
	}
	if dec := s.AllowRequest(ctx, "2.2.2.2", "/x", 1); !dec.Allowed {
		t.Fatalf("expected second IP's own bucket to be independent")
	}
}

func TestGatewayService_EndpointOverrideAppliesOnTopOfPerIP(t *testing.T) {
	s := NewGatewayService(0, 0)
	s.SetPerIPLimit(100, 60)
	s.SetEndpointLimit("/login", 1, 60)

	ctx := context.Background()
	if dec := s.AllowRequest(ctx, "1.1.1.1", "/login", 1); !dec.Allowed {
		t.Fatalf("expected first /login request allowed")
	}
	dec := s.AllowRequest(ctx, "1.1.1.1", "/login", 1)
	if dec.Allowed {
		t.Fatalf("expected second /login request rejected by endpoint scope")
	}
	if dec.Scope != domain.ScopeEndpoint {
		t.Fatalf("expected rejection scope endpoint, got %q", dec.Scope)
	}

	// A different endpoint under the same IP is unaffected.
	if dec := s.AllowRequest(ctx, "1.1.1.1", "/other", 1); !dec.Allowed {
		t.Fatalf("expected request to unrelated endpoint allowed")
	}
}

func TestGatewayService_AllOrNothingDoesNotConsumeEarlierScopesOnLaterRejection(t *testing.T) {
	s := NewGatewayService(0, 0)
	s.SetGlobalLimit(100, 60)
	s.SetPerIPLimit(100, 60)
	s.SetEndpointLimit("/tight", 1, 60)

	ctx := context.Background()
	if dec := s.AllowRequest(ctx, "1.1.1.1", "/tight", 1); !dec.Allowed {
		t.Fatalf("expected first request through the tight endpoint allowed")
	}

	before := s.Remaining(ctx, "1.1.1.1", "/other")

	dec := s.AllowRequest(ctx, "1.1.1.1", "/tight", 1)
	if dec.Allowed {
		t.Fatalf("expected second request against exhausted endpoint scope rejected")
	}

	after := s.Remaining(ctx, "1.1.1.1", "/other")
	if before != after {
		t.Fatalf("expected global/per-IP remaining unaffected by endpoint rejection: before=%d after=%d", before, after)
	}
}

func TestGatewayService_ResetKeyRestoresPerIPCapacity(t *testing.T) {
	s := NewGatewayService(0, 0)
	s.SetPerIPLimit(1, 60)

	ctx := context.Background()
	s.AllowRequest(ctx, "1.1.1.1", "/x", 1)
	if dec := s.AllowRequest(ctx, "1.1.1.1", "/x", 1); dec.Allowed {
		t.Fatalf("expected bucket exhausted before reset")
	}

	s.ResetKey("1.1.1.1")

	if dec := s.AllowRequest(ctx, "1.1.1.1", "/x", 1); !dec.Allowed {
		t.Fatalf("expected request allowed after ResetKey")
	}
}

func TestGatewayService_UnconfiguredScopesAlwaysAllow(t *testing.T) {
	s := NewGatewayService(0, 0)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if dec := s.AllowRequest(ctx, "1.1.1.1", "/x", 1); !dec.Allowed {
			t.Fatalf("expected request %d allowed with no scopes configured", i)
		}
	}
}
