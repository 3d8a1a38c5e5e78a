package articles

import (
	"sync"
	"time"

	"github.com/bissquit/sendly/internal/domain"
)

type cacheKey struct {
	topic    string
	perTopic int
}

type cacheEntry struct {
	articles  []domain.Article
	expiresAt time.Time
}

// cache is a process-local TTL cache of per-topic results.
type cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[cacheKey]cacheEntry
}

func newCache(ttl time.Duration) *cache {
	return &cache{
		ttl:     ttl,
		entries: make(map[cacheKey]cacheEntry),
	}
}

func (c *cache) get(key cacheKey, now time.Time) ([]domain.Article, bool) {
	if c.ttl <= 0 {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !now.Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return append([]domain.Article(nil), entry.articles...), true
}

func (c *cache) set(key cacheKey, articles []domain.Article, now time.Time) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		articles:  append([]domain.Article(nil), articles...),
		expiresAt: now.Add(c.ttl),
	}
}
