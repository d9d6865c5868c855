// Package memory implements the bounded, TTL-limited response cache that sits
// in front of the chat generation handler.
//
// Entries are evicted in insertion order (FIFO) once the cache is full, and
// expire lazily: an entry older than the TTL is dropped the next time it is
// read. There is no background sweep, so Len counts expired entries that
// have not been read since.
package memory

import (
	"encoding/base64"
	"sync"
	"sync/atomic"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/prepai/prepai/pkg/models"
)

const (
	// DefaultCapacity is the entry limit used when New is given a non-positive capacity.
	DefaultCapacity = 1000
	// DefaultTTL is the entry lifetime used when New is given a non-positive TTL.
	DefaultTTL = 5 * time.Minute
)

type entry struct {
	value      any
	insertedAt time.Time
}

// Cache is a fixed-capacity memoization map keyed by (message, model, language).
// It is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  *orderedmap.OrderedMap[string, entry]
	capacity int
	ttl      time.Duration
	now      func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	expired   atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, mainly so tests can move time forward.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache holding at most capacity entries for up to ttl each.
func New(capacity int, ttl time.Duration, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &Cache{
		entries:  orderedmap.New[string, entry](),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DeriveKey builds the cache key for a request. The message is base64-encoded
// so that delimiter characters inside it cannot collide with the other segments.
func DeriveKey(message, model, language string) string {
	return model + ":" + language + ":" + base64.StdEncoding.EncodeToString([]byte(message))
}

// Get returns the cached value for the triple. An entry older than the TTL is
// removed and reported as a miss. Reads never change eviction order.
func (c *Cache) Get(message, model, language string) (any, bool) {
	key := DeriveKey(message, model, language)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if c.now().Sub(e.insertedAt) > c.ttl {
		c.entries.Delete(key)
		c.expired.Add(1)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return e.value, true
}

// Set stores value for the triple. When the cache is full the earliest
// inserted entry is evicted first, whether or not it has expired or been
// read, and even when the triple is already present. Overwriting a key keeps
// its place in eviction order.
func (c *Cache) Set(message, model, language string, value any) {
	key := DeriveKey(message, model, language)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries.Len() >= c.capacity {
		if oldest := c.entries.Oldest(); oldest != nil {
			c.entries.Delete(oldest.Key)
			c.evictions.Add(1)
		}
	}
	c.entries.Set(key, entry{value: value, insertedAt: c.now()})
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = orderedmap.New[string, entry]()
}

// Len returns the number of stored entries, including expired ones not yet read.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Stats returns cache occupancy and hit/miss counters.
func (c *Cache) Stats() models.CacheStats {
	return models.CacheStats{
		Entries:   c.Len(),
		Capacity:  c.capacity,
		TTL:       c.ttl,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Expired:   c.expired.Load(),
	}
}
