// Package query serves the unified hazard feed: composite realtime
// responses over configurable lookback windows, derived waterlogged areas,
// on-demand convergence recomputation, half-degree dedup, and a TTL cache
// in front of the store.
package query

import (
	"fmt"
	"sync"
	"time"
)

// cacheEntry holds one materialized response.
type cacheEntry struct {
	value     any
	fetchedAt time.Time
}

// ttlCache keys responses on (kind, window). Entries past the TTL are
// refetched; the stale value is served only when the refetch fails.
type ttlCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{ttl: ttl, entries: make(map[string]cacheEntry), now: time.Now}
}

func cacheKey(kind string, window time.Duration) string {
	return fmt.Sprintf("%s|%s", kind, window)
}

// do returns the cached value for key when fresh, otherwise runs fetch.
// On fetch failure a stale entry is returned instead of the error.
func (c *ttlCache) do(key string, fetch func() (any, error)) (any, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	fresh := ok && c.now().Sub(e.fetchedAt) < c.ttl
	c.mu.Unlock()

	if fresh {
		return e.value, nil
	}

	v, err := fetch()
	if err != nil {
		if ok {
			return e.value, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{value: v, fetchedAt: c.now()}
	c.mu.Unlock()
	return v, nil
}

// invalidate drops every entry. Called after a monitor cycle persists new
// detections so the next query sees them.
func (c *ttlCache) invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
