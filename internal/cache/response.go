// Package cache holds the two memoization stores of a driver: the response
// cache, keyed by request cache key, and the view cache, keyed by target
// region and template. Neither store expires or bounds its entries; they
// live until cleared.
package cache

import (
	"context"
	"sort"
	"sync"
)

// ReplayFunc is the continuation run when an entry is served instead of a
// live fetch. T is the caller's per-invocation state.
type ReplayFunc[T any] func(ctx context.Context, inv T)

// ResponseEntry is a stored successful fetch.
type ResponseEntry[T any] struct {
	// Response is the decoded response body.
	Response any
	// Data is the merged template data the response rendered with.
	Data     map[string]any
	OnReplay ReplayFunc[T]
}

// ResponseCache maps cache keys to entries.
type ResponseCache[T any] struct {
	mu      sync.RWMutex
	entries map[string]ResponseEntry[T]
}

// NewResponseCache creates an empty cache.
func NewResponseCache[T any]() *ResponseCache[T] {
	return &ResponseCache[T]{entries: make(map[string]ResponseEntry[T])}
}

// Get returns the entry for key.
func (c *ResponseCache[T]) Get(key string) (ResponseEntry[T], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	return e, ok
}

// Set stores an entry; a later Set for the same key wins.
func (c *ResponseCache[T]) Set(key string, e ResponseEntry[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = e
}

// Delete removes key and reports whether it was present.
func (c *ResponseCache[T]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// Clear removes every entry.
func (c *ResponseCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]ResponseEntry[T])
}

// Len returns the number of entries.
func (c *ResponseCache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Keys returns the stored keys in order.
func (c *ResponseCache[T]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
