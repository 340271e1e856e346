package directive

import (
	"context"
	"slices"
	"sync"

	"github.com/jonwraymond/rendercache/cache"
)

// requestCache memoizes cacheable results for the duration of one request.
type requestCache struct {
	mu       sync.Mutex
	entries  map[cache.Key]requestEntry
	disabled bool
}

type requestEntry struct {
	value   []byte
	tags    []cache.Tag
	profile cache.Profile
}

type requestCacheKey struct{}

// WithRequestCache attaches a per-request memoization layer to ctx. Repeated
// cacheable calls with the same key inside one request then run at most once
// and never hit the Store twice.
func WithRequestCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestCacheKey{}, &requestCache{entries: make(map[cache.Key]requestEntry)})
}

func requestCacheFrom(ctx context.Context) *requestCache {
	rc, _ := ctx.Value(requestCacheKey{}).(*requestCache)
	return rc
}

func (rc *requestCache) get(key cache.Key) (requestEntry, bool) {
	if rc == nil {
		return requestEntry{}, false
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.disabled {
		return requestEntry{}, false
	}
	e, ok := rc.entries[key]
	return e, ok
}

func (rc *requestCache) put(key cache.Key, e *cache.Entry) {
	if rc == nil || e == nil {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.disabled {
		return
	}
	rc.entries[key] = requestEntry{value: slices.Clone(e.Value), tags: slices.Clone(e.Tags), profile: e.Profile}
}

// ForceRefreshCurrentRequest discards the per-request cache for the rest of
// the request, so reads after a mutation go to the Store. It must be called
// from request-handling code, not from a cacheable body.
func ForceRefreshCurrentRequest(ctx context.Context) error {
	if InScope(ctx) {
		return ErrInsideCacheScope
	}
	rc := requestCacheFrom(ctx)
	if rc == nil {
		return nil
	}
	rc.mu.Lock()
	rc.entries = make(map[cache.Key]requestEntry)
	rc.disabled = true
	rc.mu.Unlock()
	return nil
}
