// Copyright © 2024 The pikelsp authors

package bridge

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a snapshot of a cache's cumulative counters. Counters only
// reset on Clear.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
	MaxSize   int   `json:"maxSize"`
	CostBytes int64 `json:"costBytes,omitempty"`
}

// CacheConfig configures one cache tier.
type CacheConfig[V any] struct {
	// MaxEntries bounds the live entry count. Must be > 0.
	MaxEntries int
	// MaxCost, when > 0 and Cost is set, additionally bounds the summed
	// cost of live entries (the program cache uses estimated bytes).
	// Cost-triggered eviction still removes entries in LRU order.
	MaxCost int64
	Cost    func(V) int64
	// TTL, when > 0, expires entries that old on access.
	TTL time.Duration
}

type cacheEntry[K comparable, V any] struct {
	key    K
	value  V
	cost   int64
	stored time.Time
}

// Cache is a strict LRU cache. Get promotes, Put inserts at the
// most-recently-used end and evicts from the least-recently-used end
// when a bound would be exceeded. Safe for concurrent use.
type Cache[K comparable, V any] struct {
	cfg CacheConfig[V]

	mu    sync.Mutex
	items map[K]*list.Element
	order *list.List // front = most recent
	cost  int64
	now   func() time.Time // overridable for TTL tests

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewCache creates a cache tier. A non-positive MaxEntries falls back
// to 64.
func NewCache[K comparable, V any](cfg CacheConfig[V]) *Cache[K, V] {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 64
	}
	return &Cache[K, V]{
		cfg:   cfg,
		items: make(map[K]*list.Element, cfg.MaxEntries),
		order: list.New(),
		now:   time.Now,
	}
}

// Get returns the value for key, promoting it to most-recently-used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*cacheEntry[K, V])
		if c.cfg.TTL > 0 && c.now().Sub(ent.stored) > c.cfg.TTL {
			c.remove(elem)
		} else {
			c.order.MoveToFront(elem)
			c.hits.Add(1)
			return ent.value, true
		}
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// Put inserts or overwrites key, evicting least-recently-used entries
// until both the entry and cost bounds hold.
func (c *Cache[K, V]) Put(key K, value V) {
	var cost int64
	if c.cfg.Cost != nil {
		cost = c.cfg.Cost(value)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*cacheEntry[K, V])
		c.cost += cost - ent.cost
		ent.value = value
		ent.cost = cost
		ent.stored = c.now()
		c.order.MoveToFront(elem)
		c.shrink()
		return
	}

	for c.order.Len() >= c.cfg.MaxEntries {
		c.evictOldest()
	}
	elem := c.order.PushFront(&cacheEntry[K, V]{
		key:    key,
		value:  value,
		cost:   cost,
		stored: c.now(),
	})
	c.items[key] = elem
	c.cost += cost
	c.shrink()
}

// shrink enforces the cost ceiling. Caller holds the lock.
func (c *Cache[K, V]) shrink() {
	if c.cfg.MaxCost <= 0 {
		return
	}
	// Never evict the entry just promoted; a single oversized value is
	// allowed to stand alone rather than thrash.
	for c.cost > c.cfg.MaxCost && c.order.Len() > 1 {
		c.evictOldest()
	}
}

// Invalidate removes key. Returns false if it was absent.
func (c *Cache[K, V]) Invalidate(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.remove(elem)
	return true
}

// Clear removes all entries and resets counters.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*list.Element, c.cfg.MaxEntries)
	c.order.Init()
	c.cost = 0
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
}

// Len returns the live entry count.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// GetStats snapshots the counters.
func (c *Cache[K, V]) GetStats() Stats {
	c.mu.Lock()
	size := c.order.Len()
	cost := c.cost
	c.mu.Unlock()
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      size,
		MaxSize:   c.cfg.MaxEntries,
		CostBytes: cost,
	}
}

func (c *Cache[K, V]) evictOldest() {
	if elem := c.order.Back(); elem != nil {
		c.remove(elem)
		c.evictions.Add(1)
	}
}

func (c *Cache[K, V]) remove(elem *list.Element) {
	ent := elem.Value.(*cacheEntry[K, V])
	c.order.Remove(elem)
	delete(c.items, ent.key)
	c.cost -= ent.cost
}
