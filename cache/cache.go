// Package cache provides a content-aware LRU response cache with TTL.
//
// An entry is valid only while it is younger than the TTL and its stored
// content fingerprint still matches the current source content. Content
// drift is a silent miss, never stale data. The cache is pure: it performs
// no I/O, and callers invoke the remote layer on miss and write back.
//
// Information Hiding:
// - Recency bookkeeping (list + map) hidden
// - Fingerprint algorithm hidden behind Fingerprint
package cache

import (
	"container/list"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint returns the content hash used to detect source drift.
func Fingerprint(content string) string {
	return strconv.FormatUint(xxhash.Sum64String(content), 16)
}

// entry is one memoized remote-call result.
type entry struct {
	key         string
	value       string
	contentHash string
	storedAt    time.Time
	accessCount int
}

// Stats reports cache effectiveness for diagnostics.
type Stats struct {
	Entries   int
	Hits      int64
	Misses    int64
	Evictions int64
}

// Cache is an LRU cache with TTL and content-hash validation. Safe for
// concurrent use. Capacity and TTL differ per instance; the quiz cache and
// the health cache are two instances of this one type.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time

	order   *list.List // front = most recently used
	entries map[string]*list.Element

	hits      int64
	misses    int64
	evictions int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the clock, for TTL tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache with the given capacity and TTL.
func New(capacity int, ttl time.Duration, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = 50
	}
	c := &Cache{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key if the entry is fresh and was
// derived from currentContent. Expired or drifted entries are evicted and
// reported as a miss. A hit refreshes recency and bumps the access count.
func (c *Cache) Get(key, currentContent string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return "", false
	}

	e := elem.Value.(*entry)
	if c.ttl > 0 && c.now().Sub(e.storedAt) >= c.ttl {
		c.removeLocked(elem)
		c.misses++
		return "", false
	}
	if e.contentHash != Fingerprint(currentContent) {
		c.removeLocked(elem)
		c.misses++
		return "", false
	}

	c.order.MoveToFront(elem)
	e.accessCount++
	c.hits++
	return e.value, true
}

// Set stores value derived from sourceContent under key, evicting the
// least-recently-used entry first when at capacity.
func (c *Cache) Set(key, value, sourceContent string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		e := elem.Value.(*entry)
		e.value = value
		e.contentHash = Fingerprint(sourceContent)
		e.storedAt = c.now()
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeLocked(oldest)
			c.evictions++
		}
	}

	elem := c.order.PushFront(&entry{
		key:         key,
		value:       value,
		contentHash: Fingerprint(sourceContent),
		storedAt:    c.now(),
	})
	c.entries[key] = elem
}

// Delete removes an entry if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}
}

// Len returns the current number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// AccessCount returns the diagnostic access counter for key, or zero.
// Not used in eviction decisions.
func (c *Cache) AccessCount(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		return elem.Value.(*entry).accessCount
	}
	return 0
}

// Stats returns a snapshot of cache effectiveness counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   c.order.Len(),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	c.order.Remove(elem)
	delete(c.entries, e.key)
}
