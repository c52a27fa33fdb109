// Package pagecache implements the refcount+TTL cache that the page
// factory (pkg/pagestore) uses to keep mapped pages alive while they are in
// use and reclaim them shortly after they are not.
//
// Unlike a capacity-bounded LRU, an entry is only evictable once its
// refcount has dropped to zero AND its TTL has expired since the last
// access. This is load-bearing: a caller holding a [mmapfile.View] into a
// page must never have that page's mapping pulled out from under it.
package pagecache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Closeable is the minimal contract a cached value must satisfy.
type Closeable interface {
	Close() error
}

type entry[V Closeable] struct {
	value      V
	refcount   atomic.Int64
	lastAccess atomic.Int64 // unix nanoseconds
	ttl        time.Duration
}

func (e *entry[V]) evictable(now time.Time) bool {
	if e.refcount.Load() > 0 {
		return false
	}

	last := time.Unix(0, e.lastAccess.Load())

	return now.Sub(last) > e.ttl
}

// Cache is a keyed, refcounted, TTL-swept cache of closeable values.
//
// A single RWMutex protects the map; Get and Release only need the read
// lock because they touch nothing but atomic counters inside an entry. Put,
// Remove, RemoveAll and the mark-and-sweep pass that Put triggers require
// the write lock. Closing evicted values happens off the lock, on a shared
// worker pool, so a slow or blocking Close never stalls a concurrent Get.
type Cache[K comparable, V Closeable] struct {
	mu      sync.RWMutex
	entries map[K]*entry[V]
	closer  *Closer
	log     *logrus.Entry
}

// New returns an empty cache that hands closed-evicted values to closer.
func New[K comparable, V Closeable](closer *Closer, log *logrus.Entry) *Cache[K, V] {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Cache[K, V]{
		entries: make(map[K]*entry[V]),
		closer:  closer,
		log:     log,
	}
}

// Put inserts v under k with the given TTL and an initial refcount of 1.
// Before inserting, Put runs a mark-and-sweep pass; any other entries that
// pass is found evictable are closed asynchronously.
func (c *Cache[K, V]) Put(k K, v V, ttl time.Duration) {
	c.mu.Lock()

	evicted := c.sweepLocked(now())

	e := &entry[V]{ttl: ttl}
	e.refcount.Store(1)
	e.lastAccess.Store(now().UnixNano())
	e.value = v
	c.entries[k] = e

	c.mu.Unlock()

	c.closeAsync(evicted)
}

// Get returns the value stored under k and bumps its refcount and last
// access time. The zero value and false are returned on a miss; Get never
// reinserts on miss.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[k]
	if !ok {
		var zero V

		return zero, false
	}

	e.lastAccess.Store(now().UnixNano())
	e.refcount.Add(1)

	return e.value, true
}

// Release decrements the refcount for k. It does not evict immediately;
// eviction happens lazily on the next Put's mark-and-sweep pass.
func (c *Cache[K, V]) Release(k K) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.entries[k]; ok {
		e.refcount.Add(-1)
	}
}

// Remove synchronously removes and closes the value stored under k, if
// any. A close failure is logged and otherwise swallowed, since by the
// time Close runs the cache has already forgotten the entry.
func (c *Cache[K, V]) Remove(k K) {
	c.mu.Lock()
	e, ok := c.entries[k]
	if ok {
		delete(c.entries, k)
	}
	c.mu.Unlock()

	if ok {
		c.closeOne(e.value)
	}
}

// RemoveAll synchronously closes every live value and empties the cache.
func (c *Cache[K, V]) RemoveAll() {
	c.mu.Lock()
	values := make([]V, 0, len(c.entries))
	for _, e := range c.entries {
		values = append(values, e.value)
	}

	c.entries = make(map[K]*entry[V])
	c.mu.Unlock()

	for _, v := range values {
		c.closeOne(v)
	}
}

// Values returns a snapshot of every live value. It does not touch
// refcounts.
func (c *Cache[K, V]) Values() []V {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]V, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.value)
	}

	return out
}

// Size returns the number of live entries.
func (c *Cache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// sweepLocked must be called with c.mu held for write. It removes every
// evictable entry from the map and returns their values for async closure.
func (c *Cache[K, V]) sweepLocked(now time.Time) []V {
	var evicted []V

	for k, e := range c.entries {
		if e.evictable(now) {
			evicted = append(evicted, e.value)
			delete(c.entries, k)
		}
	}

	return evicted
}

func (c *Cache[K, V]) closeAsync(values []V) {
	for _, v := range values {
		v := v

		c.closer.submit(func() { c.closeOne(v) })
	}
}

func (c *Cache[K, V]) closeOne(v V) {
	if err := v.Close(); err != nil {
		c.log.WithError(err).Warn("pagecache: swallowed error closing evicted value")
	}
}

// now is a var so tests can stub it without a global flag plumbed through
// every call site.
var now = time.Now
