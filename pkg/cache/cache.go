// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache provides a small TTL cache for API responses.
//
// Scout polls the same GitHub and PyPI endpoints on every run; a short
// TTL keeps repeat invocations inside a session from burning rate
// limit. Entries are keyed by URL and expire individually.
package cache

import (
	"sync"
	"time"
)

const (
	// DefaultTTL is the freshness window applied by New.
	DefaultTTL = 5 * time.Minute

	// DefaultMaxEntries bounds the cache; the oldest entry is evicted
	// when a Set would exceed it.
	DefaultMaxEntries = 256
)

type entry[V any] struct {
	value   V
	fetched time.Time
}

// Cache is a concurrency-safe map of string keys to values with
// per-entry expiry and an upper bound on stored entries. The zero
// value is not usable; construct with New.
type Cache[V any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	entries    map[string]entry[V]
}

// New returns a Cache with the given TTL. A non-positive ttl falls
// back to DefaultTTL.
func New[V any](ttl time.Duration) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{
		ttl:        ttl,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
		entries:    make(map[string]entry[V]),
	}
}

// Get returns the cached value for key if it is still fresh.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.fetched) >= c.ttl {
		var zero V
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, resetting its freshness window. When
// the cache is full the oldest entry is evicted first.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = entry[V]{value: value, fetched: c.now()}
}

func (c *Cache[V]) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.fetched.Before(oldest) {
			oldestKey, oldest = k, e.fetched
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// GetOrCompute returns the cached value for key, calling compute on a
// miss and caching the result. Errors from compute are returned
// uncached so a later call retries.
func (c *Cache[V]) GetOrCompute(key string, compute func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, v)
	return v, nil
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// Len reports the number of stored entries, fresh or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
