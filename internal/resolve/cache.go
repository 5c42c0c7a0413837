package resolve

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"motorcortex/internal/logging"
)

const (
	defaultCacheTTL  = 15 * time.Minute
	defaultCacheSize = 100
)

type cacheEntry struct {
	result   Result
	storedAt time.Time
}

// Cache remembers recent resolution results keyed by the raw query string.
// Entries age out after the TTL and the least recently used entry is evicted
// once the cache is full. Failed resolutions are cached too, so a query that
// just timed out does not hammer the browser again.
type Cache struct {
	mu  sync.Mutex
	ttl time.Duration
	lru *lru.Cache[string, cacheEntry]

	// now is swapped out by tests to control entry ages.
	now func() time.Time
}

// NewCache builds a cache with the given capacity and TTL. Non-positive
// values fall back to 100 entries and 15 minutes.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	l, _ := lru.New[string, cacheEntry](size)
	return &Cache{ttl: ttl, lru: l, now: time.Now}
}

// Get returns the cached result for query if one exists and is still fresh.
// A hit refreshes the entry's recency; an expired entry is dropped on sight.
func (c *Cache) Get(query string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Peek(query)
	if !ok {
		return Result{}, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.lru.Remove(query)
		logging.CacheDebug("dropped expired entry for %q", query)
		return Result{}, false
	}
	c.lru.Get(query)
	return entry.result, true
}

// Put stores a result for query. Expired entries are pruned first so stale
// slots are reclaimed before anything still fresh gets evicted. Storing an
// existing key updates it in place and refreshes its recency.
func (c *Cache) Put(query string, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, key := range c.lru.Keys() {
		entry, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if now.Sub(entry.storedAt) > c.ttl {
			c.lru.Remove(key)
		}
	}
	c.lru.Add(query, cacheEntry{result: result, storedAt: now})
}

// Len reports the number of entries currently held, including entries that
// have expired but not yet been pruned.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}
