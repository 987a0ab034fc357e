// Package cache provides the engine's result cache: fingerprint-keyed
// entries with a mandatory time-to-live, a capacity-bounded LRU, and an
// expiry-ordered sweep index so expired entries are reclaimed eagerly
// instead of lingering until their key is touched again.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/btree"

	"github.com/vexasearch/vexa/resource"
)

// DefaultCapacity bounds the entry count when no capacity is configured.
const DefaultCapacity = 4096

// Cache is a TTL+LRU cache keyed by 64-bit fingerprints.
// Safe for concurrent use.
type Cache[V any] struct {
	mu     sync.Mutex
	ttl    time.Duration
	cap    int
	items  map[uint64]*list.Element
	evict  *list.List                // front = most recently used
	expiry *btree.BTreeG[expiryItem] // ordered by (expiresAt, key)
	rc     *resource.Controller
	sizeOf func(V) int64
	now    func() time.Time

	// gen counts invalidations. A value computed before an invalidation
	// carries an older generation and SetIfCurrent discards it.
	gen int64

	hits   atomic.Int64
	misses atomic.Int64
}

type entry[V any] struct {
	key       uint64
	value     V
	expiresAt time.Time
	size      int64
}

type expiryItem struct {
	at  int64 // unix nanos
	key uint64
}

func lessExpiry(a, b expiryItem) bool {
	if a.at != b.at {
		return a.at < b.at
	}
	return a.key < b.key
}

// Options configures a Cache.
type Options[V any] struct {
	// Capacity bounds the number of entries; the least recently used
	// entry is evicted when full. Defaults to DefaultCapacity.
	Capacity int

	// Controller, when set, accounts entry memory against the shared
	// budget; entries the budget rejects are simply not cached.
	Controller *resource.Controller

	// SizeOf estimates an entry's memory footprint for the controller.
	SizeOf func(V) int64

	// Now overrides the clock (tests).
	Now func() time.Time
}

// New creates a cache whose entries expire ttl after insertion.
func New[V any](ttl time.Duration, optFns ...func(o *Options[V])) *Cache[V] {
	opts := Options[V]{Capacity: DefaultCapacity}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Cache[V]{
		ttl:    ttl,
		cap:    opts.Capacity,
		items:  make(map[uint64]*list.Element),
		evict:  list.New(),
		expiry: btree.NewG(8, lessExpiry),
		rc:     opts.Controller,
		sizeOf: opts.SizeOf,
		now:    opts.Now,
	}
}

// Get returns the value for key if present and not expired.
// An expired entry is removed and reported as a miss.
func (c *Cache[V]) Get(key uint64) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return zero, false
	}

	ent := el.Value.(*entry[V])
	if !c.now().Before(ent.expiresAt) {
		c.removeElement(el)
		c.misses.Add(1)
		return zero, false
	}

	c.evict.MoveToFront(el)
	c.hits.Add(1)
	return ent.value, true
}

// Set stores a value under key, replacing any previous entry.
// If the memory budget rejects the entry it is not cached.
func (c *Cache[V]) Set(key uint64, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setLocked(key, value)
}

// Generation returns a token to pass to SetIfCurrent. Observe it before
// computing a value; any invalidation in between makes the token stale.
func (c *Cache[V]) Generation() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.gen
}

// SetIfCurrent stores a value only if no invalidation happened since gen
// was observed. The comparison and the store are one critical section, so
// a value computed before a Purge can never land after it.
func (c *Cache[V]) SetIfCurrent(key uint64, value V, gen int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return false
	}
	c.setLocked(key, value)
	return true
}

// Invalidate advances the generation without removing entries. Cached
// entries keep serving until they expire; values computed against an
// earlier generation are discarded by SetIfCurrent.
func (c *Cache[V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
}

func (c *Cache[V]) setLocked(key uint64, value V) {
	c.sweepLocked()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}

	var size int64
	if c.sizeOf != nil {
		size = c.sizeOf(value)
	}
	if c.rc != nil && !c.rc.TryAcquireMemory(size) {
		return
	}

	for c.evict.Len() >= c.cap {
		back := c.evict.Back()
		if back == nil {
			break
		}
		c.removeElement(back)
	}

	ent := &entry[V]{
		key:       key,
		value:     value,
		expiresAt: c.now().Add(c.ttl),
		size:      size,
	}
	c.items[key] = c.evict.PushFront(ent)
	c.expiry.ReplaceOrInsert(expiryItem{at: ent.expiresAt.UnixNano(), key: key})
}

// Purge removes every entry. Called after index mutations under the
// full-flush invalidation policy.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	if c.rc != nil {
		for _, el := range c.items {
			c.rc.ReleaseMemory(el.Value.(*entry[V]).size)
		}
	}
	c.items = make(map[uint64]*list.Element)
	c.evict.Init()
	c.expiry.Clear(false)
}

// Len returns the number of live entries, sweeping expired ones first.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked()
	return len(c.items)
}

// Stats returns the hit/miss counters.
func (c *Cache[V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// TTL returns the configured time-to-live.
func (c *Cache[V]) TTL() time.Duration { return c.ttl }

// sweepLocked drops entries whose expiry has passed, cheapest-first via
// the expiry btree.
func (c *Cache[V]) sweepLocked() {
	nowNanos := c.now().UnixNano()
	for {
		min, ok := c.expiry.Min()
		if !ok || min.at > nowNanos {
			return
		}
		c.expiry.DeleteMin()
		if el, live := c.items[min.key]; live {
			ent := el.Value.(*entry[V])
			if ent.expiresAt.UnixNano() == min.at {
				c.removeLocked(el, false)
			}
		}
	}
}

func (c *Cache[V]) removeElement(el *list.Element) {
	c.removeLocked(el, true)
}

func (c *Cache[V]) removeLocked(el *list.Element, dropExpiry bool) {
	ent := el.Value.(*entry[V])
	delete(c.items, ent.key)
	c.evict.Remove(el)
	if dropExpiry {
		c.expiry.Delete(expiryItem{at: ent.expiresAt.UnixNano(), key: ent.key})
	}
	if c.rc != nil {
		c.rc.ReleaseMemory(ent.size)
	}
}
