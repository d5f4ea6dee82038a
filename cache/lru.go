// Package cache implements spec §2 component B: bounded in-memory caches
// with time or size eviction, inflight de-duplication, and micro-batching.
// The size-bounded layer is hashicorp/golang-lru/v2 throughout, matching
// how the pack's DJ-assistant repo (Enteee-DJAlgoRhythm) and the
// knowledge-base repo (cognicore-io-korel) both reach for it instead of a
// hand-rolled map+list.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU is a thin, size-bounded cache. It exists as a named wrapper (rather
// than using *lru.Cache[K,V] directly everywhere) so callers get a single
// import and so we can attach metrics without reaching into the
// hashicorp type.
type LRU[K comparable, V any] struct {
	inner *lru.Cache[K, V]
	name  string
}

// NewLRU builds an LRU cache bounded to size entries.
func NewLRU[K comparable, V any](name string, size int) *LRU[K, V] {
	if size <= 0 {
		size = 1
	}
	c, _ := lru.New[K, V](size)
	return &LRU[K, V]{inner: c, name: name}
}

func (c *LRU[K, V]) Get(key K) (V, bool) {
	v, ok := c.inner.Get(key)
	recordHitMiss(c.name, ok)
	return v, ok
}

func (c *LRU[K, V]) Peek(key K) (V, bool) {
	return c.inner.Peek(key)
}

func (c *LRU[K, V]) Add(key K, value V) (evicted bool) {
	return c.inner.Add(key, value)
}

func (c *LRU[K, V]) Remove(key K) { c.inner.Remove(key) }

func (c *LRU[K, V]) Len() int { return c.inner.Len() }

func (c *LRU[K, V]) Purge() { c.inner.Purge() }

func (c *LRU[K, V]) Contains(key K) bool { return c.inner.Contains(key) }

// Keys returns the cache's keys in least-recently-used to
// most-recently-used order.
func (c *LRU[K, V]) Keys() []K { return c.inner.Keys() }
