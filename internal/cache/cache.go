// Package cache is a read-through query cache: expirable LRU for freshness
// plus single-flight so concurrent identical lookups compute once.
package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL matches how fresh API reads need to be.
	DefaultTTL = 60 * time.Second
	// DefaultSize bounds memory per cache.
	DefaultSize = 1024
)

// Cache caches computed values by string key.
type Cache[V any] struct {
	lru   *lru.LRU[string, V]
	group singleflight.Group
}

// New builds a cache with the given entry cap and TTL; zero values fall back
// to the defaults.
func New[V any](size int, ttl time.Duration) *Cache[V] {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{
		lru: lru.NewLRU[string, V](size, nil, ttl),
	}
}

// GetOrCompute returns the cached value for key or computes and caches it.
// Concurrent callers for the same key share one computation; failed
// computations are not cached.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.lru.Get(key); ok {
			return v, nil
		}
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.lru.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

// Invalidate drops the key.
func (c *Cache[V]) Invalidate(key string) {
	c.lru.Remove(key)
}

// Purge drops everything.
func (c *Cache[V]) Purge() {
	c.lru.Purge()
}
