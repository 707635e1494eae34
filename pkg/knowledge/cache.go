package knowledge

import (
	"sync"
	"time"
)

// cacheEntry holds a cached scrape with a timestamp for TTL expiration.
type cacheEntry struct {
	result    ScrapeResult
	fetchedAt time.Time
}

// scrapeCache is a thread-safe in-memory cache with TTL expiration.
// Expired entries are cleaned up lazily on get — no background goroutine.
type scrapeCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

func newScrapeCache(ttl time.Duration) *scrapeCache {
	return &scrapeCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
	}
}

func (c *scrapeCache) get(url string) (ScrapeResult, bool) {
	c.mu.RLock()
	entry, ok := c.entries[url]
	c.mu.RUnlock()

	if !ok {
		return ScrapeResult{}, false
	}

	if time.Since(entry.fetchedAt) > c.ttl {
		// Expired — clean up lazily. Re-check under the write lock: a
		// concurrent set may have replaced the entry with a fresh one.
		c.mu.Lock()
		if current, ok := c.entries[url]; ok && time.Since(current.fetchedAt) > c.ttl {
			delete(c.entries, url)
		}
		c.mu.Unlock()
		return ScrapeResult{}, false
	}

	return entry.result, true
}

func (c *scrapeCache) set(url string, result ScrapeResult) {
	c.mu.Lock()
	c.entries[url] = &cacheEntry{result: result, fetchedAt: time.Now()}
	c.mu.Unlock()
}
