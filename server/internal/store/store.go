package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/obsidianstack/threadwork/pkg/types"
)

// Entry is a report together with the time it was received.
type Entry struct {
	Report    *types.Report
	UpdatedAt time.Time
}

// Store is a thread-safe in-memory report store, keyed by page URL.
// A background goroutine (Run) periodically evicts entries that have not
// been updated within the configured TTL.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Put stores or replaces the report for r.PageURL().
// Callers must not modify r after calling Put.
func (s *Store) Put(r *types.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[r.PageURL()] = &Entry{
		Report:    r,
		UpdatedAt: s.now(),
	}
}

// Get returns the Entry for the given page URL and whether one was found.
// The entry may be stale if TTL has elapsed.
func (s *Store) Get(pageURL string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[pageURL]
	return e, ok
}

// Find returns the live entry whose report has the given run ID.
func (s *Store) Find(id string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.data {
		if e.Report.ID == id && s.live(e, s.now()) {
			return e, true
		}
	}
	return nil, false
}

// List returns all entries whose UpdatedAt is within the TTL, sorted by page URL.
// Stale entries that have not yet been evicted are excluded.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	out := make([]*Entry, 0, len(s.data))
	for _, e := range s.data {
		if s.live(e, now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Report.PageURL() < out[j].Report.PageURL()
	})
	return out
}

// Count returns the total number of entries currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes entries whose UpdatedAt is older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for url, e := range s.data {
		if !s.live(e, now) {
			delete(s.data, url)
			removed++
		}
	}
	return removed
}

func (s *Store) live(e *Entry, now time.Time) bool {
	return s.ttl <= 0 || e.UpdatedAt.After(now.Add(-s.ttl))
}

// Run starts the background TTL eviction loop. It ticks at half the TTL interval
// (minimum 1 second) so entries are evicted promptly. Run blocks until ctx is
// cancelled. With a zero TTL there is nothing to evict and Run just waits.
func (s *Store) Run(ctx context.Context) {
	if s.ttl <= 0 {
		<-ctx.Done()
		return
	}
	interval := max(s.ttl/2, time.Second)
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale reports", "count", n)
			}
		}
	}
}
