package router

import "testing"

func TestRouteTable_FirstDeclaredMatchWins(t *testing.T) {
	specific, err := NewRoute("/api/users/admin", []string{"http://admin:1"}, LoadBalancingSingle, 0, false, "", "")
	if err != nil {
		t.Fatalf("NewRoute: %v", err)
	}
	general, err := NewRoute("/api/users/*", []string{"http://users:1"}, LoadBalancingSingle, 0, false, "", "")
	if err != nil {
		t.Fatalf("NewRoute: %v", err)
	}

	table := NewRouteTable([]*Route{specific, general})

	m := table.Match("/api/users/admin")
	if m == nil || m.Route != specific {
		t.Fatalf("expected the more specific, earlier-declared route to win")
	}

	m2 := table.Match("/api/users/123")
	if m2 == nil || m2.Route != general {
		t.Fatalf("expected fallthrough to the general route")
	}
}

func TestRouteTable_NoMatchReturnsNil(t *testing.T) {
	table := NewRouteTable(nil)
	if table.Match("/anything") != nil {
		t.Fatalf("expected nil match against empty table")
	}
}
