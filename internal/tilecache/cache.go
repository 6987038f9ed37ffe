// Package tilecache implements the Audience-Keyed Cache (C4): a concurrent
// map from audience.Key to a TTL-tagged, serialized tile-list payload.
package tilecache

import (
	"math/rand"
	"sync"
	"time"

	"github.com/contile/contile/internal/audience"
)

// Entry is a single cached, serialized tile-list response.
type Entry struct {
	Payload   []byte
	CreatedAt time.Time
	TTL       time.Duration
}

// IsExpired reports whether now is past CreatedAt+TTL. Jitter, if non-zero,
// perturbs the effective TTL by up to ±jitter*TTL so that the fixed,
// closed audience-key space doesn't expire in lockstep (§ jitter, Part D).
func (e Entry) IsExpired(now time.Time, jitter float64) bool {
	effectiveTTL := e.TTL
	if jitter > 0 {
		delta := time.Duration(float64(e.TTL) * jitter * (rand.Float64()*2 - 1))
		effectiveTTL += delta
	}
	return now.Sub(e.CreatedAt) > effectiveTTL
}

// Cache is the concurrent audience-key → Entry map. Reads of distinct keys
// never serialize on each other; writes replace an entry atomically under
// a single mutex. Per §4.4, expired entries are never removed on their own
// — Get returns them and lets the caller decide whether to serve-stale and
// trigger a refresh.
type Cache struct {
	mu      sync.RWMutex
	entries map[audience.Key]Entry
}

func New() *Cache {
	return &Cache{entries: make(map[audience.Key]Entry)}
}

// Get returns the entry for key and whether one exists. The returned Entry
// is a value copy; a concurrent Insert cannot invalidate it (I3/§5).
func (c *Cache) Get(key audience.Key) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Insert atomically replaces any prior entry for key (I3).
func (c *Cache) Insert(key audience.Key, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
}

// Keys returns an independent, point-in-time snapshot of the current key
// set, for the Refresh Loop (C5) to iterate over without holding the lock
// during upstream calls.
func (c *Cache) Keys() []audience.Key {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]audience.Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Size reports the current number of cached audience keys.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
