// Package cache implements the bounded, TTL-aware store the document model
// uses to skip redundant lookups.
//
// It is an approximate LRU: reads refresh an entry's access time, but
// pruning only happens after a write pushes the entry count past the
// configured size. Pruning runs on its own goroutine so the writer never
// pays for it; until it runs, the cache may briefly hold more than Size
// entries. Expired entries are dropped lazily when read.
package cache

import (
	"sort"
	"sync"
	"time"
)

// Default limits used when a Config leaves them unset.
const (
	DefaultSize = 1000
	DefaultTTL  = 5 * time.Minute
)

// Metrics receives cache events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	Hit()
	Miss()
	Eviction()
	Expire()
}

// NoopMetrics discards every event.
type NoopMetrics struct{}

func (NoopMetrics) Hit()      {}
func (NoopMetrics) Miss()     {}
func (NoopMetrics) Eviction() {}
func (NoopMetrics) Expire()   {}

// Config configures a Cache.
type Config struct {
	// Size is the entry count above which pruning is scheduled.
	Size int
	// TTL is the age after which an entry reads as absent. Age is measured
	// from the last write or read.
	TTL time.Duration
}

// entry is intentionally mutable for its access bookkeeping; all access
// happens under the cache mutex.
type entry struct {
	value any
	atime time.Time
	// seq orders accesses that share a timestamp.
	seq uint64
}

// Cache is a get/set/del store keyed by string.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	size    int
	ttl     time.Duration
	seq     uint64
	pruning bool
	pending sync.WaitGroup

	metrics Metrics
	now     func() time.Time
}

// Option configures optional cache collaborators.
type Option func(*Cache)

// WithMetrics reports hits, misses, evictions and expirations to m.
func WithMetrics(m Metrics) Option {
	return func(c *Cache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a cache. Zero Config fields fall back to DefaultSize and
// DefaultTTL.
func New(cfg Config, opts ...Option) *Cache {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	c := &Cache{
		entries: make(map[string]*entry),
		size:    cfg.Size,
		ttl:     cfg.TTL,
		metrics: NoopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value stored under key. An entry older than the TTL is
// evicted and reported as absent. A hit refreshes the entry's access time.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.metrics.Miss()
		return nil, false
	}
	now := c.now()
	if now.Sub(e.atime) > c.ttl {
		delete(c.entries, key)
		c.metrics.Expire()
		c.metrics.Miss()
		return nil, false
	}
	c.touch(e, now)
	c.metrics.Hit()
	return e.value, true
}

// Set stores value under key. When the entry count exceeds the configured
// size, pruning is scheduled on a separate goroutine.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.touch(e, c.now())
		return
	}
	e := &entry{value: value}
	c.touch(e, c.now())
	c.entries[key] = e

	if len(c.entries) > c.size && !c.pruning {
		c.pruning = true
		c.pending.Add(1)
		go c.prune()
	}
}

// Del removes key.
func (c *Cache) Del(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Reset removes every entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Size returns the configured capacity.
func (c *Cache) Size() int { return c.size }

// TTL returns the configured time to live.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Wait blocks until every scheduled prune has finished.
func (c *Cache) Wait() {
	c.pending.Wait()
}

func (c *Cache) touch(e *entry, now time.Time) {
	c.seq++
	e.atime = now
	e.seq = c.seq
}

// prune deletes the least recently accessed entries until the cache is
// back at capacity.
func (c *Cache) prune() {
	defer c.pending.Done()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruning = false

	over := len(c.entries) - c.size
	if over <= 0 {
		return
	}

	type aged struct {
		key string
		seq uint64
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, seq: e.seq})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	for _, a := range all[:over] {
		delete(c.entries, a.key)
		c.metrics.Eviction()
	}
}
