// Package cache holds the TTL-bounded tiers used by asset resolution. Entries
// expire lazily: a stale entry is dropped when it is read, never by a sweeper.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Entry is a cached value with its write time.
type Entry[T any] struct {
	Value     T
	Timestamp time.Time
}

// TTL is a concurrency-safe key/value cache with a fixed time-to-live.
type TTL[T any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]Entry[T]
}

// NewTTL creates a cache whose entries live for ttl.
func NewTTL[T any](ttl time.Duration, now func() time.Time) *TTL[T] {
	if now == nil {
		now = time.Now
	}
	return &TTL[T]{ttl: ttl, now: now, entries: make(map[string]Entry[T])}
}

// TTL returns the configured lifetime.
func (c *TTL[T]) TTL() time.Duration { return c.ttl }

// Get returns the live value for key, evicting it when stale.
func (c *TTL[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.now().Sub(e.Timestamp) >= c.ttl {
		delete(c.entries, key)
		return zero, false
	}
	return e.Value, true
}

// Set stores value under key with the current time.
func (c *TTL[T]) Set(key string, value T) {
	c.mu.Lock()
	c.entries[key] = Entry[T]{Value: value, Timestamp: c.now()}
	c.mu.Unlock()
}

// Delete removes key.
func (c *TTL[T]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// DeletePrefix removes every key starting with prefix and returns the count.
func (c *TTL[T]) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Clear drops every entry.
func (c *TTL[T]) Clear() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}

// Len counts stored entries, stale ones included.
func (c *TTL[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
