// Package cache stores the most recent ranking snapshot so repeated top-N
// and stats queries skip the graph solve until the next mutation.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/Aaditya1273/TrustGraphV7/internal/ranking"
)

// SnapshotCache holds at most one ranking snapshot.
type SnapshotCache interface {
	// Get returns the cached snapshot, or ok=false on a miss.
	Get(ctx context.Context) (snap *ranking.Snapshot, ok bool, err error)
	Set(ctx context.Context, snap *ranking.Snapshot) error
	Invalidate(ctx context.Context) error
}

// MemoryCache is an in-process SnapshotCache with an optional TTL.
type MemoryCache struct {
	mu      sync.RWMutex
	snap    *ranking.Snapshot
	expires time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache returns a cache whose entries expire after ttl. A zero ttl
// keeps entries until invalidated.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context) (*ranking.Snapshot, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return nil, false, nil
	}
	if c.ttl > 0 && !c.now().Before(c.expires) {
		return nil, false, nil
	}
	return c.snap, true, nil
}

func (c *MemoryCache) Set(_ context.Context, snap *ranking.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap
	c.expires = c.now().Add(c.ttl)
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = nil
	return nil
}
