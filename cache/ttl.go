package cache

import (
	"sync"
	"time"
)

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache bounds entries by both size (LRU eviction on overflow, via the
// embedded LRU) and age (TTL expiry checked on read). This is the primary
// memory cache described in §4.1: "bounded size (default 5000, LRU on
// overflow)" plus "TTL (default 24h)".
type TTLCache[K comparable, V any] struct {
	mu  sync.Mutex
	lru *LRU[K, ttlEntry[V]]
	ttl time.Duration
	now func() time.Time
}

// NewTTLCache builds a cache bounded to maxEntries with the given ttl. A
// ttl of zero disables expiry (pure LRU).
func NewTTLCache[K comparable, V any](name string, maxEntries int, ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		lru: NewLRU[K, ttlEntry[V]](name, maxEntries),
		ttl: ttl,
		now: time.Now,
	}
}

// Get returns the cached value if present and unexpired. An expired entry
// is evicted and reported as a miss.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lru.Peek(key)
	if !ok {
		var zero V
		recordHitMiss(c.lru.name, false)
		return zero, false
	}
	if c.ttl > 0 && c.now().After(entry.expiresAt) {
		c.lru.Remove(key)
		var zero V
		recordHitMiss(c.lru.name, false)
		return zero, false
	}
	// touch LRU recency
	c.lru.Add(key, entry)
	recordHitMiss(c.lru.name, true)
	return entry.value, true
}

// Set stores value for key with a fresh TTL.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp := c.now().Add(c.ttl)
	if c.ttl <= 0 {
		exp = c.now().Add(100 * 365 * 24 * time.Hour)
	}
	c.lru.Add(key, ttlEntry[V]{value: value, expiresAt: exp})
}

// Remove evicts key if present.
func (c *TTLCache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Len returns the current entry count (including not-yet-swept expired
// entries).
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge clears the cache.
func (c *TTLCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}
