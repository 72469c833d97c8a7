package core

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache memoizes packument lookups by package name for the lifetime of the
// owning Service. Entries are never evicted and never refreshed: a settled
// value, including a failure-derived fallback, answers every later request
// for the same name. Concurrent first requests for one name are collapsed
// into a single fetch.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Packument
	flight  singleflight.Group
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Packument)}
}

// Get returns the cached packument for name, if any.
func (c *Cache) Get(name string) (*Packument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.entries[name]
	return p, ok
}

// Fetch returns the cached packument for name, running fetch at most once
// across concurrent callers when the name is not cached yet. fetch must not
// fail; failure handling (fallback substitution) is the caller's concern.
func (c *Cache) Fetch(name string, fetch func() *Packument) *Packument {
	if p, ok := c.Get(name); ok {
		return p
	}

	v, _, _ := c.flight.Do(name, func() (any, error) {
		if p, ok := c.Get(name); ok {
			return p, nil
		}
		p := fetch()
		c.mu.Lock()
		c.entries[name] = p
		c.mu.Unlock()
		return p, nil
	})
	return v.(*Packument)
}

// Reset drops all entries. The reference behavior has no eviction at all;
// this exists for long-lived embedders that need a refresh escape hatch.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Packument)
}
