// Package cache provides the process-local LRU caches used by the pipeline.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dgallion1/mindmapd/internal/metrics"
)

// Cache is a bounded LRU map whose entries expire a fixed TTL after insertion.
// Reads refresh recency but never extend the TTL. Safe for concurrent use.
type Cache[K comparable, V any] struct {
	name string
	lru  *expirable.LRU[K, V]
}

// New creates a cache holding at most maxSize entries for ttl each.
// name labels the cache in metrics.
func New[K comparable, V any](name string, maxSize int, ttl time.Duration) *Cache[K, V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache[K, V]{
		name: name,
		lru:  expirable.NewLRU[K, V](maxSize, nil, ttl),
	}
}

// Get returns the value for key. Expired entries report a miss and are removed.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		c.lru.Remove(key)
		metrics.CacheLookups.WithLabelValues(c.name, "miss").Inc()
		return v, false
	}
	metrics.CacheLookups.WithLabelValues(c.name, "hit").Inc()
	return v, true
}

// Set stores value under key, evicting the least recently used entry when full.
// Overwriting a key resets its TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.lru.Add(key, value)
}

// Remove deletes key if present.
func (c *Cache[K, V]) Remove(key K) {
	c.lru.Remove(key)
}

// Len returns the number of stored entries, including ones that expired but
// were not yet purged.
func (c *Cache[K, V]) Len() int {
	return c.lru.Len()
}
