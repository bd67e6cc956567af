package router

// Match is the outcome of a successful RouteTable.Match: the matched
// route, the backend chosen for this call (empty for internal-handler
// routes), and the incoming path rewritten per the route's strip-prefix
// rule.
type Match struct {
	Route          *Route
	Backend        string
	RewrittenPath  string
}

// RouteTable is an ordered, immutable sequence of routes. The only
// mutable state is each route's own round-robin cursor.
type RouteTable struct {
	routes []*Route
}

// NewRouteTable wraps routes in declaration order.
func NewRouteTable(routes []*Route) *RouteTable {
	return &RouteTable{routes: routes}
}

// Match iterates routes in declaration order and returns the first whose
// compiled pattern matches path, or nil if none match. Backend selection
// and path rewriting happen as part of a successful match so that
// round-robin cursors only advance on real matches.
func (t *RouteTable) Match(path string) *Match {
	if t == nil {
		return nil
	}
	for _, r := range t.routes {
		if !r.Matches(path) {
			continue
		}
		return &Match{
			Route:         r,
			Backend:       r.SelectBackend(),
			RewrittenPath: r.RewritePath(path),
		}
	}
	return nil
}

// Routes returns the underlying route slice. Callers must not mutate it.
func (t *RouteTable) Routes() []*Route {
	if t == nil {
		return nil
	}
	return t.routes
}
