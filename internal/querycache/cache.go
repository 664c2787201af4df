// Package querycache is the client-side cache of read results that the sync
// controller invalidates. Concurrent reads of the same key share one fetch.
package querycache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Fetcher loads the current value for a key.
type Fetcher func(ctx context.Context) (any, error)

type entry struct {
	value     any
	fetchedAt time.Time
}

// Cache stores query results keyed by request path.
//
// Invalidation removes matching entries at once. A fetch that was already
// running when its key (or any prefix of it) was invalidated still answers its
// waiters but is not stored.
type Cache struct {
	entries *lru.Cache[string, entry]
	group   singleflight.Group

	mu  sync.Mutex
	gen uint64

	// generation of the last InvalidateAll
	all uint64

	// prefix -> generation of its last invalidation; only kept while an
	// older fetch is still running
	invalidated map[string]uint64

	inflight map[uint64]flight
	nextID   uint64
}

type flight struct {
	key     string
	started uint64
}

// New creates a cache holding at most size entries.
func New(size int) (*Cache, error) {
	entries, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("querycache: %w", err)
	}
	return &Cache{
		entries:     entries,
		invalidated: make(map[string]uint64),
		inflight:    make(map[uint64]flight),
	}, nil
}

// Get returns the cached value for key or fetches it. Callers racing on the
// same key while a fetch is in flight receive that fetch's result. The shared
// fetch is detached from any single caller's cancellation; each caller stops
// waiting when its own ctx ends.
func (c *Cache) Get(ctx context.Context, key string, fetch Fetcher) (any, error) {
	if e, ok := c.entries.Get(key); ok {
		return e.value, nil
	}
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		id := c.begin(key)
		v, err := fetch(fetchCtx)
		c.finish(id, v, err)
		return v, err
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// Peek returns a cached value without fetching.
func (c *Cache) Peek(key string) (any, bool) {
	e, ok := c.entries.Peek(key)
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Invalidate drops key and every key nested under it. "/api/rooms" also
// covers "/api/rooms/4" and "/api/rooms?branchId=7", including fetches of
// those keys that are still running: later Gets start a fresh fetch.
func (c *Cache) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for _, key := range keys {
		for _, cached := range c.entries.Keys() {
			if covers(key, cached) {
				c.entries.Remove(cached)
			}
		}
		for _, f := range c.inflight {
			if covers(key, f.key) {
				c.group.Forget(f.key)
				c.invalidated[key] = c.gen
			}
		}
	}
}

// InvalidateAll drops every entry and detaches running fetches.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.all = c.gen
	for _, f := range c.inflight {
		c.group.Forget(f.key)
	}
	c.entries.Purge()
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) begin(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.inflight[c.nextID] = flight{key: key, started: c.gen}
	return c.nextID
}

func (c *Cache) finish(id uint64, v any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.inflight[id]
	delete(c.inflight, id)
	if err == nil && !c.staleLocked(f.key, f.started) {
		c.entries.Add(f.key, entry{value: v, fetchedAt: time.Now()})
	}
	c.pruneLocked()
}

func (c *Cache) staleLocked(key string, started uint64) bool {
	if c.all > started {
		return true
	}
	for prefix, gen := range c.invalidated {
		if gen > started && covers(prefix, key) {
			return true
		}
	}
	return false
}

// pruneLocked forgets invalidations no running fetch predates.
func (c *Cache) pruneLocked() {
	if len(c.inflight) == 0 {
		clear(c.invalidated)
		return
	}
	oldest := c.gen
	for _, f := range c.inflight {
		oldest = min(oldest, f.started)
	}
	for prefix, gen := range c.invalidated {
		if gen <= oldest {
			delete(c.invalidated, prefix)
		}
	}
}

// covers reports whether invalidating prefix reaches key.
func covers(prefix, key string) bool {
	if key == prefix {
		return true
	}
	if len(key) <= len(prefix) || !strings.HasPrefix(key, prefix) {
		return false
	}
	switch key[len(prefix)] {
	case '/', '?':
		return true
	}
	return false
}
