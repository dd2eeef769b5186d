// Package cache memoizes computed artifacts for the duration of one audit run.
//
// Every computation is identified by a Key made of a Kind and a Handle. The
// Handle is the identity of the input it was derived from, usually the
// *trace.Trace pointer, so two traces never share an entry even when their
// contents are equal. The first caller for a key runs the computation; any
// concurrent or later caller waits for and receives the same value or error.
// Entries are never evicted: a Cache lives exactly as long as its run.
package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Kind names a computation.
type Kind string

// Key identifies one memoized computation. Handle must be comparable.
type Key struct {
	Kind   Kind
	Handle any
}

// Stats counts lookups.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// Cache is safe for concurrent use. The zero value is not usable; call New.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	once sync.Once
	val  any
	err  error
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[Key]*entry)}
}

// GetOrCompute returns the value for key, running fn at most once per key.
// A failing fn is memoized as well. A panic in fn is converted to an error.
func GetOrCompute[T any](c *Cache, key Key, fn func() (T, error)) (T, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	c.mu.Unlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}

	e.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				e.err = fmt.Errorf("cache: %s: panic: %v", key.Kind, r)
			}
		}()
		e.val, e.err = fn()
	})

	var zero T
	if e.err != nil {
		return zero, e.err
	}
	v, ok := e.val.(T)
	if !ok && e.val != nil {
		return zero, fmt.Errorf("cache: %s: cached %T, requested %T", key.Kind, e.val, zero)
	}
	return v, nil
}

// Stats returns a snapshot of the lookup counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: n}
}
