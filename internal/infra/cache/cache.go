// Package cache provides a simple in-memory TTL cache with sliding expiry
// and eviction callbacks. Sessions and reachability probes live here.
package cache

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// Option configures an InMemory cache.
type Option[T any] func(*InMemory[T])

// WithOnEvict registers fn to run for every entry removed by expiry, Delete
// or Close. fn runs outside the cache lock.
func WithOnEvict[T any](fn func(key string, value T)) Option[T] {
	return func(c *InMemory[T]) { c.onEvict = fn }
}

// WithCleanupInterval overrides how often expired entries are swept.
// Defaults to the TTL. A non-positive interval disables the sweeper; expired
// entries are then only dropped when read or overwritten.
func WithCleanupInterval[T any](d time.Duration) Option[T] {
	return func(c *InMemory[T]) { c.sweep = d }
}

// InMemory is a thread-safe in-memory cache with TTL.
type InMemory[T any] struct {
	mu      sync.RWMutex
	items   map[string]entry[T]
	ttl     time.Duration
	sweep   time.Duration
	onEvict func(string, T)
	stop    chan struct{}
	once    sync.Once
}

// New creates a new in-memory cache with the given TTL. A non-positive TTL
// disables caching: Set hands the value straight to the evict callback.
func New[T any](ttl time.Duration, opts ...Option[T]) *InMemory[T] {
	c := &InMemory[T]{
		items: make(map[string]entry[T]),
		ttl:   ttl,
		sweep: ttl,
		stop:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ttl > 0 && c.sweep > 0 {
		go c.cleanup()
	}
	return c
}

// Get retrieves a value from the cache. Returns false if not found or expired.
func (c *InMemory[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok || time.Now().After(e.expiresAt) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Touch returns the value like Get and pushes its expiry a full TTL ahead.
// An expired entry found here is evicted.
func (c *InMemory[T]) Touch(key string) (T, bool) {
	var zero T

	c.mu.Lock()
	e, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.items, key)
		c.mu.Unlock()
		c.evict(key, e.value)
		return zero, false
	}
	e.expiresAt = time.Now().Add(c.ttl)
	c.items[key] = e
	c.mu.Unlock()
	return e.value, true
}

// Set stores a value in the cache with the configured TTL. An expired entry
// it replaces is evicted; a live one is overwritten silently.
func (c *InMemory[T]) Set(key string, value T) {
	if c.ttl <= 0 {
		c.evict(key, value)
		return
	}

	now := time.Now()
	c.mu.Lock()
	old, existed := c.items[key]
	c.items[key] = entry[T]{
		value:     value,
		expiresAt: now.Add(c.ttl),
	}
	c.mu.Unlock()

	if existed && now.After(old.expiresAt) {
		c.evict(key, old.value)
	}
}

func (c *InMemory[T]) evict(key string, value T) {
	if c.onEvict != nil {
		c.onEvict(key, value)
	}
}

// Delete removes a value from the cache.
func (c *InMemory[T]) Delete(key string) {
	c.mu.Lock()
	e, ok := c.items[key]
	delete(c.items, key)
	c.mu.Unlock()

	if ok {
		c.evict(key, e.value)
	}
}

// Len reports the number of stored entries, expired or not.
func (c *InMemory[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the sweeper and evicts everything.
func (c *InMemory[T]) Close() {
	c.once.Do(func() {
		close(c.stop)

		c.mu.Lock()
		items := c.items
		c.items = make(map[string]entry[T])
		c.mu.Unlock()

		if c.onEvict != nil {
			for k, e := range items {
				c.onEvict(k, e.value)
			}
		}
	})
}

// cleanup periodically removes expired entries.
func (c *InMemory[T]) cleanup() {
	ticker := time.NewTicker(c.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *InMemory[T]) evictExpired() {
	c.mu.Lock()
	now := time.Now()
	var evicted map[string]T
	for k, v := range c.items {
		if now.After(v.expiresAt) {
			if evicted == nil {
				evicted = make(map[string]T)
			}
			evicted[k] = v.value
			delete(c.items, k)
		}
	}
	c.mu.Unlock()

	if c.onEvict != nil {
		for k, v := range evicted {
			c.onEvict(k, v)
		}
	}
}
