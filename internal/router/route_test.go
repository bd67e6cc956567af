package router

import "testing"

func TestRoute_WildcardMatchesBaseAndSubpaths(t *testing.T) {
	r, err := NewRoute("/api/users/*", []string{"http://b:3000"}, LoadBalancingSingle, 0, false, "", "")
	if err != nil {
		t.Fatalf("NewRoute: %v", err)
	}
	if !r.Matches("/api/users") {
		t.Fatalf("expected base path to match")
	}
	if !r.Matches("/api/users/123/profile") {
		t.Fatalf("expected subpath to match")
	}
	if r.Matches("/api/products") {
		t.Fatalf("expected unrelated path to not match")
	}
}

func TestRoute_StripPrefixRewritesPath(t *testing.T) {
	r, err := NewRoute("/api/users/*", []string{"http://b:3000"}, LoadBalancingSingle, 0, false, "/api", "")
	if err != nil {
		t.Fatalf("NewRoute: %v", err)
	}
	if got := r.RewritePath("/api/users/123"); got != "/users/123" {
		t.Fatalf("expected /users/123, got %q", got)
	}
}

func TestRoute_StripPrefixThatConsumesEntirePathPrependsSlash(t *testing.T) {
	r, err := NewRoute("/api/*", []string{"http://b:3000"}, LoadBalancingSingle, 0, false, "/api", "")
	if err != nil {
		t.Fatalf("NewRoute: %v", err)
	}
	if got := r.RewritePath("/api"); got != "/" {
		t.Fatalf("expected /, got %q", got)
	}
}

func TestRoute_RoundRobinDistributesAcrossAllBackends(t *testing.T) {
	backends := []string{"a", "b", "c"}
	r, err := NewRoute("/x", backends, LoadBalancingRoundRobin, 0, false, "", "")
	if err != nil {
		t.Fatalf("NewRoute: %v", err)
	}

	seq := make([]string, 6)
	for i := range seq {
		seq[i] = r.SelectBackend()
	}
	for i := 0; i < 3; i++ {
		if seq[i] != seq[i+3] {
			t.Fatalf("expected seq[%d]==seq[%d], got %q vs %q", i, i+3, seq[i], seq[i+3])
		}
	}
}

func TestNewRoute_RejectsEmptyBackendsWithoutInternalHandler(t *testing.T) {
	if _, err := NewRoute("/x", nil, LoadBalancingSingle, 0, false, "", ""); err == nil {
		t.Fatalf("expected error for empty backends and no internal handler")
	}
}

func TestNewRoute_AllowsEmptyBackendsWithInternalHandler(t *testing.T) {
	if _, err := NewRoute("/health", nil, LoadBalancingSingle, 0, false, "", "health"); err != nil {
		t.Fatalf("expected internal handler route to be valid: %v", err)
	}
}
