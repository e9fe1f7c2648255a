// Package rostercache keeps recently fetched course rosters as ready-built
// indexes and remembers each caller's current course.
package rostercache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gzhole/rostershield/internal/roster"
)

// DefaultTTL is how long a fetched roster is served before it is fetched again.
const DefaultTTL = 5 * time.Minute

// Fetcher loads the roster of one course from the backing store.
type Fetcher interface {
	FetchRoster(ctx context.Context, ownerID string, courseID int64) ([]roster.Entry, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, ownerID string, courseID int64) ([]roster.Entry, error)

func (f FetcherFunc) FetchRoster(ctx context.Context, ownerID string, courseID int64) ([]roster.Entry, error) {
	return f(ctx, ownerID, courseID)
}

type cacheKey struct {
	ownerID  string
	courseID int64
}

type entry struct {
	index     *roster.Index
	fetchedAt time.Time
}

// Cache maps (owner, course) to an immutable roster index snapshot.
// It is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]*entry

	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time
	observe func(hit bool)
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithObserver is called on every GetRoster with whether it was a cache hit.
func WithObserver(fn func(hit bool)) Option {
	return func(c *Cache) { c.observe = fn }
}

// New creates an empty cache backed by fetcher.
func New(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[cacheKey]*entry),
		fetcher: fetcher,
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// GetRoster returns the cached index for (ownerID, courseID) while it is
// younger than the TTL, otherwise fetches, stores and returns a fresh one.
// A failed fetch is returned as is and nothing is cached.
func (c *Cache) GetRoster(ctx context.Context, ownerID string, courseID int64) (*roster.Index, error) {
	key := cacheKey{ownerID: ownerID, courseID: courseID}

	if idx := c.getFresh(key); idx != nil {
		c.record(true)
		return idx, nil
	}
	c.record(false)

	entries, err := c.fetcher.FetchRoster(ctx, ownerID, courseID)
	if err != nil {
		return nil, fmt.Errorf("fetch roster for course %d: %w", courseID, err)
	}

	idx := roster.NewIndex(entries)
	c.mu.Lock()
	c.entries[key] = &entry{index: idx, fetchedAt: c.now()}
	c.mu.Unlock()
	return idx, nil
}

func (c *Cache) getFresh(key cacheKey) *roster.Index {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[key]; ok {
		if c.now().Sub(e.fetchedAt) < c.ttl {
			return e.index
		}
	}
	return nil
}

func (c *Cache) record(hit bool) {
	if c.observe != nil {
		c.observe(hit)
	}
}

// Invalidate drops the cached roster for (ownerID, courseID). The next
// GetRoster fetches again.
func (c *Cache) Invalidate(ownerID string, courseID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{ownerID: ownerID, courseID: courseID})
}

// Len returns the number of cached rosters, fresh or stale.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
