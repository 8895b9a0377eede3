// Package ttlcache is the TTL cache behind the engine's read hot paths
// (collector lookups, API key validation). Reads are lock-free; expired
// entries are served stale while exactly one reader wins the refresh.
package ttlcache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Cache maps string keys to values of type V with a fixed TTL. Storing the
// zero value (nil for pointer types) records a negative entry, so misses
// against a backing store are cached too.
type Cache[V any] struct {
	store sync.Map // map[string]*entry[V]
	ttl   time.Duration
}

type entry[V any] struct {
	value      V
	expiresAt  time.Time
	refreshing atomic.Bool
}

// Result is the outcome of a lookup.
type Result[V any] struct {
	Value        V
	Hit          bool // a value was found, fresh or stale
	NeedsRefresh bool // expired; the caller that sees true owns the refresh
}

// New creates a cache with the given TTL.
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{ttl: ttl}
}

// Get performs a non-blocking lookup. Expired entries come back with the
// stale value and NeedsRefresh=true for exactly one caller (CAS on the
// entry's refreshing flag); everyone else keeps serving the stale value
// until the winner calls Set.
func (c *Cache[V]) Get(key string) Result[V] {
	val, ok := c.store.Load(key)
	if !ok {
		return Result[V]{}
	}

	e := val.(*entry[V])
	if time.Now().Before(e.expiresAt) {
		return Result[V]{Value: e.value, Hit: true}
	}

	return Result[V]{
		Value:        e.value,
		Hit:          true,
		NeedsRefresh: e.refreshing.CompareAndSwap(false, true),
	}
}

// Set stores a value under a fresh TTL, clearing any refresh claim.
func (c *Cache[V]) Set(key string, value V) {
	c.store.Store(key, &entry[V]{value: value, expiresAt: time.Now().Add(c.ttl)})
}

// Delete removes an entry.
func (c *Cache[V]) Delete(key string) {
	c.store.Delete(key)
}
