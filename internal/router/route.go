// Package router compiles route patterns, matches incoming request paths
// against them, and picks a backend according to the route's
// load-balancing policy.
package router

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync/atomic"
)

// LoadBalancing selects how a route with multiple backends distributes
// requests across them.
type LoadBalancing string

const (
	LoadBalancingRoundRobin LoadBalancing = "round-robin"
	LoadBalancingRandom     LoadBalancing = "random"
	LoadBalancingSingle     LoadBalancing = "single"
)

// Route is one entry of the route table, immutable after load except for
// its round-robin cursor.
type Route struct {
	Pattern        string
	Matcher        *regexp.Regexp
	Backends       []string
	LoadBalancing  LoadBalancing
	TimeoutMs      int
	RequireAuth    bool
	StripPrefix    string
	InternalHandler string

	cursor uint64
}

// compilePattern turns a route pattern with at most one terminal `*`
// wildcard into an anchored regular expression.
//
//   - regex metacharacters in the literal portion are escaped;
//   - a trailing "/*" becomes "(/.*)?" so "/api/users/*" matches both
//     "/api/users" and "/api/users/123";
//   - any other "*" becomes ".*";
//   - the result is anchored to the full path.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	var out strings.Builder
	out.WriteByte('^')

	rest := pattern
	if strings.HasSuffix(rest, "/*") {
		out.WriteString(regexp.QuoteMeta(rest[:len(rest)-2]))
		out.WriteString("(/.*)?")
	} else {
		for {
			idx := strings.IndexByte(rest, '*')
			if idx < 0 {
				out.WriteString(regexp.QuoteMeta(rest))
				break
			}
			out.WriteString(regexp.QuoteMeta(rest[:idx]))
			out.WriteString(".*")
			rest = rest[idx+1:]
		}
	}
	out.WriteByte('$')

	return regexp.Compile(out.String())
}

// NewRoute compiles pattern and validates the invariant that a route
// without an internal handler must have at least one backend.
func NewRoute(pattern string, backends []string, lb LoadBalancing, timeoutMs int, requireAuth bool, stripPrefix, internalHandler string) (*Route, error) {
	matcher, err := compilePattern(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", pattern, err)
	}
	if internalHandler == "" && len(backends) == 0 {
		return nil, fmt.Errorf("route %q: backends must be non-empty when internal handler is empty", pattern)
	}
	if lb == "" {
		lb = LoadBalancingSingle
	}
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}
	return &Route{
		Pattern:         pattern,
		Matcher:         matcher,
		Backends:        backends,
		LoadBalancing:   lb,
		TimeoutMs:       timeoutMs,
		RequireAuth:     requireAuth,
		StripPrefix:     stripPrefix,
		InternalHandler: internalHandler,
	}, nil
}

// Matches reports whether path matches this route's compiled pattern.
func (r *Route) Matches(path string) bool {
	return r.Matcher.MatchString(path)
}

// SelectBackend picks a backend URL per the route's load-balancing
// policy. Returns "" if the route has no backends (an internal-handler
// route).
func (r *Route) SelectBackend() string {
	n := len(r.Backends)
	if n == 0 {
		return ""
	}
	switch r.LoadBalancing {
	case LoadBalancingRoundRobin:
		idx := atomic.AddUint64(&r.cursor, 1) - 1
		return r.Backends[idx%uint64(n)]
	case LoadBalancingRandom:
		return r.Backends[rand.Intn(n)]
	default:
		return r.Backends[0]
	}
}

// RewritePath applies the route's strip-prefix rule. If the route has no
// StripPrefix, or path does not start with it, path is returned
// unchanged.
func (r *Route) RewritePath(path string) string {
	if r.StripPrefix == "" || !strings.HasPrefix(path, r.StripPrefix) {
		return path
	}
	rewritten := strings.TrimPrefix(path, r.StripPrefix)
	if rewritten == "" || rewritten[0] != '/' {
		rewritten = "/" + rewritten
	}
	return rewritten
}
