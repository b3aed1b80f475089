// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache provides a concurrent in-memory cache with optional TTL
// expiry, LRU eviction and a load function for misses.
package cache

import (
	"context"
	"sync"
	"time"
)

// entry wraps a value with access time for LRU eviction and TTL expiry
type entry[V any] struct {
	value      V
	lastAccess time.Time
}

// Cache is a concurrent cache.
//
// Usage:
//
//	c := cache.New[string, *Revision](
//	    cache.WithMaxSize[string, *Revision](10000),
//	    cache.WithExpiry[string, *Revision](time.Hour),
//	)
//	defer c.Stop()
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[V]

	// Optional load function for cache misses
	loadFunc func(ctx context.Context, key K) (V, error)

	// Max size (0 = unlimited)
	maxSize int

	// TTL since last access (0 = no expiry)
	expiry time.Duration

	cleanupTimer *time.Timer
	stopOnce     sync.Once
	stopped      chan struct{} // closed by Stop, guarded by mu
}

// Option configures a Cache
type Option[K comparable, V any] func(*Cache[K, V])

// WithMaxSize sets the maximum number of entries. When capacity is reached
// the least recently accessed entry is evicted.
func WithMaxSize[K comparable, V any](maxSize int) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.maxSize = maxSize
	}
}

// WithExpiry sets the TTL for cache entries, measured from the last access.
// Expired entries are not returned and are removed by a background timer.
func WithExpiry[K comparable, V any](expiry time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.expiry = expiry
	}
}

// WithLoadFunc sets a function GetOrLoad calls on misses.
func WithLoadFunc[K comparable, V any](loadFunc func(ctx context.Context, key K) (V, error)) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.loadFunc = loadFunc
	}
}

// New creates a new Cache with the given options.
func New[K comparable, V any](opts ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{
		entries: make(map[K]*entry[V]),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.expiry > 0 {
		c.startCleanup()
	}
	return c
}

func (c *Cache[K, V]) startCleanup() {
	c.cleanupTimer = time.AfterFunc(c.expiry, func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.cleanupLocked()
		select {
		case <-c.stopped:
		default:
			c.cleanupTimer.Reset(c.expiry)
		}
	})
}

func (c *Cache[K, V]) cleanupLocked() {
	now := time.Now()
	for k, e := range c.entries {
		if c.expiredLocked(e, now) {
			delete(c.entries, k)
		}
	}
}

func (c *Cache[K, V]) expiredLocked(e *entry[V], now time.Time) bool {
	return c.expiry > 0 && now.Sub(e.lastAccess) > c.expiry
}

// Stop stops the cleanup timer. Call this when the cache is no longer needed.
func (c *Cache[K, V]) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		close(c.stopped)
		if c.cleanupTimer != nil {
			c.cleanupTimer.Stop()
		}
	})
}

// Get returns the value of key if present and not expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	e, ok := c.entries[key]
	if !ok || c.expiredLocked(e, now) {
		var zero V
		return zero, false
	}
	e.lastAccess = now
	return e.value, true
}

// GetOrLoad returns the cached value of key, loading and caching it on a
// miss. Load errors are returned and not cached. Without a load function a
// miss returns the zero value.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K) (V, error) {
	if val, ok := c.Get(key); ok {
		CacheRequests.WithLabelValues("hit").Inc()
		return val, nil
	}
	CacheRequests.WithLabelValues("miss").Inc()

	if c.loadFunc == nil {
		var zero V
		return zero, nil
	}

	val, err := c.loadFunc(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, val)
	return val, nil
}

// Set adds or updates a value.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.entries[key] = &entry[V]{value: value, lastAccess: time.Now()}
}

func (c *Cache[K, V]) evictOldestLocked() {
	var (
		oldestKey K
		oldest    time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.lastAccess.Before(oldest) {
			oldestKey, oldest, found = k, e.lastAccess, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
		CacheEvictions.Inc()
	}
}

// Delete removes a key from the cache.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Size returns the number of entries, expired ones included until cleanup.
func (c *Cache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
