package resolve

import (
	"testing"
	"time"
)

// testCache returns a cache whose clock is the returned pointer; advance it
// to age entries.
func testCache(size int, ttl time.Duration) (*Cache, *time.Time) {
	c := NewCache(size, ttl)
	now := time.Unix(1700000000, 0)
	cur := &now
	c.now = func() time.Time { return *cur }
	return c, cur
}

func okResult(url string) Result {
	return Result{Status: StatusOK, ResolvedURL: url}
}

func TestCache_GetPromotesRecency(t *testing.T) {
	c, _ := testCache(3, time.Minute)

	c.Put("a", okResult("https://a.com"))
	c.Put("b", okResult("https://b.com"))
	c.Put("c", okResult("https://c.com"))

	// Touch a so b becomes the oldest.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit for a")
	}

	c.Put("d", okResult("https://d.com"))

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("%s should still be cached", key)
		}
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c, now := testCache(10, time.Minute)

	c.Put("query", okResult("https://example.com"))

	*now = now.Add(59 * time.Second)
	if _, ok := c.Get("query"); !ok {
		t.Fatal("entry should still be fresh at 59s")
	}

	*now = now.Add(2 * time.Minute)
	if _, ok := c.Get("query"); ok {
		t.Fatal("entry should have expired")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be dropped on read, len=%d", c.Len())
	}
}

func TestCache_PutPrunesExpired(t *testing.T) {
	c, now := testCache(10, time.Minute)

	c.Put("old", okResult("https://old.com"))
	*now = now.Add(2 * time.Minute)
	c.Put("new", okResult("https://new.com"))

	if c.Len() != 1 {
		t.Errorf("expired entry should be pruned on write, len=%d", c.Len())
	}
	if _, ok := c.Get("old"); ok {
		t.Error("old entry should be gone")
	}
	if _, ok := c.Get("new"); !ok {
		t.Error("new entry should be present")
	}
}

func TestCache_PutUpdatesExisting(t *testing.T) {
	c, _ := testCache(2, time.Minute)

	c.Put("q", okResult("https://first.com"))
	c.Put("other", okResult("https://other.com"))
	c.Put("q", okResult("https://second.com"))
	c.Put("third", okResult("https://third.com"))

	// Re-putting q refreshed it, so "other" was the eviction victim.
	if _, ok := c.Get("other"); ok {
		t.Error("other should have been evicted")
	}
	got, ok := c.Get("q")
	if !ok {
		t.Fatal("q should still be cached")
	}
	if got.ResolvedURL != "https://second.com" {
		t.Errorf("ResolvedURL = %q, want updated value", got.ResolvedURL)
	}
}

func TestCache_LenCountsExpiredUntilPruned(t *testing.T) {
	c, now := testCache(10, time.Minute)

	c.Put("a", okResult("https://a.com"))
	c.Put("b", okResult("https://b.com"))
	*now = now.Add(2 * time.Minute)

	if c.Len() != 2 {
		t.Errorf("len should include expired entries until pruned, got %d", c.Len())
	}
}

func TestCache_Purge(t *testing.T) {
	c, _ := testCache(10, time.Minute)
	c.Put("a", okResult("https://a.com"))
	c.Purge()
	if c.Len() != 0 {
		t.Errorf("len after purge = %d", c.Len())
	}
}

func TestCache_DefaultsOnNonPositiveArgs(t *testing.T) {
	c := NewCache(0, 0)
	c.Put("a", okResult("https://a.com"))
	if _, ok := c.Get("a"); !ok {
		t.Error("cache with defaulted size/ttl should round-trip")
	}
}
