package amocrm

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// maxFillDuration bounds a shared fetch, which outlives any single caller.
const maxFillDuration = 30 * time.Second

// FetchFunc loads the value for a cache key, typically a base URL.
type FetchFunc[T any] func(ctx context.Context, key string) (T, error)

// Cache is a concurrent-safe TTL cache that loads missing or expired
// entries through its fetch func. Concurrent misses for the same key share
// one fetch. Entries are replaced whole and never invalidated explicitly.
type Cache[T any] struct {
	ttl   time.Duration
	fetch FetchFunc[T]
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry[T]
	group   singleflight.Group
}

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// NewCache creates a Cache. A ttl <= 0 disables caching; every Get fetches.
// A nil now defaults to time.Now.
func NewCache[T any](ttl time.Duration, fetch FetchFunc[T], now func() time.Time) *Cache[T] {
	if now == nil {
		now = time.Now
	}
	return &Cache[T]{
		ttl:     ttl,
		fetch:   fetch,
		now:     now,
		entries: make(map[string]cacheEntry[T]),
	}
}

// Get returns the cached value for key, fetching it on a miss or after expiry.
// Failed fetches are not cached. A concurrent fill is shared by every caller,
// so it runs detached from ctx; each caller stops waiting when its own ctx
// is done.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, error) {
	var zero T
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), maxFillDuration)
		defer cancel()

		v, err := c.fetch(fillCtx, key)
		if err != nil {
			return nil, err
		}
		c.store(key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func (c *Cache[T]) lookup(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || !c.now().Before(entry.expiresAt) {
		var zero T
		return zero, false
	}
	return entry.value, true
}

func (c *Cache[T]) store(key string, v T) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry[T]{value: v, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}
