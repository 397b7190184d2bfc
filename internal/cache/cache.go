// Package cache implements a generic, thread-safe LRU cache whose entries
// also expire after a fixed TTL. It backs work-item fetches and GitHub App
// installation tokens.
//
// A hash map gives O(1) lookup; a doubly linked list with sentinels keeps
// recency order for O(1) eviction.
package cache

import (
	"sync"
	"time"
)

type entry[K comparable, V any] struct {
	key       K
	val       V
	expiresAt time.Time
	prev      *entry[K, V]
	next      *entry[K, V]
}

// TTL is an LRU cache with per-entry expiry.
type TTL[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	items    map[K]*entry[K, V]
	head     *entry[K, V] // most recently used (sentinel)
	tail     *entry[K, V] // least recently used (sentinel)
}

// New creates a cache holding at most capacity entries, each living for ttl.
// Panics if capacity < 1.
func New[K comparable, V any](capacity int, ttl time.Duration) *TTL[K, V] {
	if capacity < 1 {
		panic("cache: capacity must be >= 1")
	}
	head := &entry[K, V]{}
	tail := &entry[K, V]{}
	head.next = tail
	tail.prev = head
	return &TTL[K, V]{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		items:    make(map[K]*entry[K, V], capacity),
		head:     head,
		tail:     tail,
	}
}

// Get returns a live value and marks it most recently used. Expired entries
// are dropped on access.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		c.unlink(e)
		delete(c.items, key)
		return zero, false
	}
	c.unlink(e)
	c.pushFront(e)
	return e.val, true
}

// Set stores val under key with the cache's default TTL.
func (c *TTL[K, V]) Set(key K, val V) {
	c.SetWithTTL(key, val, c.ttl)
}

// SetWithTTL stores val under key with an explicit TTL, evicting the least
// recently used entry when full.
func (c *TTL[K, V]) SetWithTTL(key K, val V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(ttl)
	if e, ok := c.items[key]; ok {
		e.val = val
		e.expiresAt = expires
		c.unlink(e)
		c.pushFront(e)
		return
	}

	if len(c.items) >= c.capacity {
		victim := c.tail.prev
		c.unlink(victim)
		delete(c.items, victim.key)
	}

	e := &entry[K, V]{key: key, val: val, expiresAt: expires}
	c.items[key] = e
	c.pushFront(e)
}

// Delete removes key. Returns true if it was present.
func (c *TTL[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return false
	}
	c.unlink(e)
	delete(c.items, key)
	return true
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Purge drops every entry.
func (c *TTL[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head.next = c.tail
	c.tail.prev = c.head
	c.items = make(map[K]*entry[K, V], c.capacity)
}

// caller must hold c.mu
func (c *TTL[K, V]) unlink(e *entry[K, V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev = nil
	e.next = nil
}

// caller must hold c.mu
func (c *TTL[K, V]) pushFront(e *entry[K, V]) {
	e.next = c.head.next
	e.prev = c.head
	c.head.next.prev = e
	c.head.next = e
}
