package cache

import (
	"sync"
	"time"
)

// Cache is a small TTL map for expensive read models (stats, trend rows).
// Entries expire lazily on read; there is no background sweeper because the
// handful of keys we hold never grows with traffic.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		// re-check: a writer may have refreshed the entry meanwhile
		if cur, ok := c.entries[key]; ok && time.Now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return e.value, true
}

func (c *Cache) Set(key string, val any) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: val, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Fetch returns the cached value for key, computing and storing it on a
// miss. Compute errors are returned without poisoning the cache; concurrent
// misses may compute more than once, last write wins.
func (c *Cache) Fetch(key string, compute func() (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := compute()

	if err != nil {
		return nil, err
	}

	c.Set(key, v)
	return v, nil
}
