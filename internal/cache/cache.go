// Package cache implements the gateway's response cache: a keyed,
// TTL-bounded store of successful GET responses, backed either by local
// memory (dgraph-io/ristretto) or a shared Redis instance.
package cache

import (
	"net/url"
	"sort"
	"strings"
	"time"
)

// Response is a cached HTTP response.
type Response struct {
	Body        []byte
	ContentType string
	StatusCode  int
	CachedAt    time.Time
}

// Cache is the interface the pipeline consumes; Get/Set/Invalidate work
// the same whether the backend is local or shared.
type Cache interface {
	Get(key string) (Response, bool)
	Set(key string, resp Response, ttl time.Duration)
	Invalidate(key string)
	InvalidatePattern(glob string) int
	Stats() (keys int, approxBytes int64)
}

// Key builds the cache key for method+path+query, sorting the query
// string so that "?a=1&b=2" and "?b=2&a=1" hit the same entry.
func Key(method, path, rawQuery string) string {
	var b strings.Builder
	b.WriteString(method)
	b.WriteByte(':')
	b.WriteString(path)

	if rawQuery == "" {
		return b.String()
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil || len(values) == 0 {
		return b.String()
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('?')
	for i, k := range keys {
		vs := values[k]
		sort.Strings(vs)
		for j, v := range vs {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	return b.String()
}

// matchesGlob is intentionally NOT a general glob engine: the
// specification's only documented pattern shape is a single trailing
// "*" (e.g. "GET:/api/users/*"), so a prefix check covers every real
// invalidation call without pulling in a matching library.
func matchesGlob(glob, key string) bool {
	if idx := strings.IndexByte(glob, '*'); idx >= 0 {
		return strings.HasPrefix(key, glob[:idx])
	}
	return glob == key
}
