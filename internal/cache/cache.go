// Package cache provides a bounded in-memory TTL cache with compute-on-miss.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/rankready/pkg/metrics"
)

const (
	defaultMaxEntries     = 1024
	defaultComputeTimeout = 2 * time.Minute
)

type item[V any] struct {
	value     V
	expiresAt time.Time
	seq       uint64
}

// Option applies a configuration option to the Cache.
type Option func(*options)

type options struct {
	maxEntries     int
	computeTimeout time.Duration
	now            func() time.Time
}

// WithMaxEntries bounds the number of live entries.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxEntries = n
		}
	}
}

// WithComputeTimeout bounds a shared computation. It runs detached from any
// single caller, so this is the only deadline it observes.
func WithComputeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.computeTimeout = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Cache maps string keys to values of type V. A zero ttl never expires.
type Cache[V any] struct {
	mu    sync.RWMutex
	items map[string]item[V]
	seq   uint64
	opts  options
	group singleflight.Group
}

// New creates an empty cache.
func New[V any](opts ...Option) *Cache[V] {
	o := options{maxEntries: defaultMaxEntries, computeTimeout: defaultComputeTimeout, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{items: make(map[string]item[V]), opts: o}
}

// Get returns the live value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[key]
	if !ok || c.expired(it) {
		var zero V
		return zero, false
	}
	return it.value, true
}

// Set stores value under key, evicting when the cache is full.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists && len(c.items) >= c.opts.maxEntries {
		c.evict()
	}
	c.seq++
	it := item[V]{value: value, seq: c.seq}
	if ttl > 0 {
		it.expiresAt = c.opts.now().Add(ttl)
	}
	c.items[key] = it
	metrics.UpdateCacheEntries(len(c.items))
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	metrics.UpdateCacheEntries(len(c.items))
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// GetOrCompute returns the cached value for key or stores the result of fn.
// Concurrent callers for the same key share one call. Errors are not cached.
// fn runs on a context that keeps ctx's values but not its cancellation, so
// a caller that gives up returns ctx.Err() while the others still get the
// result and the cache is still filled.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		metrics.RecordCacheLookup(true)
		return v, nil
	}
	metrics.RecordCacheLookup(false)

	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.computeTimeout)
		defer cancel()
		v, err := fn(cctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, v, ttl)
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil //nolint:forcetypeassert // only V is stored in the group
	}
}

func (c *Cache[V]) expired(it item[V]) bool {
	return !it.expiresAt.IsZero() && c.opts.now().After(it.expiresAt)
}

// evict drops expired entries, then the oldest insertion if still full.
// Callers hold the write lock.
func (c *Cache[V]) evict() {
	for k, it := range c.items {
		if c.expired(it) {
			delete(c.items, k)
		}
	}
	if len(c.items) < c.opts.maxEntries {
		return
	}
	var (
		oldestKey string
		oldestSeq uint64
		found     bool
	)
	for k, it := range c.items {
		if !found || it.seq < oldestSeq {
			oldestKey, oldestSeq, found = k, it.seq, true
		}
	}
	if found {
		delete(c.items, oldestKey)
	}
}
