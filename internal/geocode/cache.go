package geocode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arshansani/ISS-Tracker/internal/metrics"
)

const (
	defaultCacheTTL = 6 * time.Hour
	maxCacheEntries = 4096
)

type cacheEntry struct {
	name    string
	updated time.Time
}

// Cached wraps a Resolver with an in-memory TTL cache. Coordinates are
// bucketed to one decimal (~11 km); finer detail is meaningless for a
// vehicle moving at 7.7 km/s. Empty names are cached too so ocean
// positions do not trigger a lookup per request.
type Cached struct {
	next Resolver
	ttl  time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewCached wraps next with a cache. A non-positive TTL uses the default.
func NewCached(next Resolver, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cached{
		next:    next,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Resolve implements Resolver.
func (c *Cached) Resolve(ctx context.Context, lat, lon float64) (string, error) {
	key := fmt.Sprintf("%.1f,%.1f", lat, lon)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Since(e.updated) <= c.ttl {
		metrics.IncGeocodeLookup("cached")
		return e.name, nil
	}

	name, err := c.next.Resolve(ctx, lat, lon)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if len(c.entries) >= maxCacheEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = cacheEntry{name: name, updated: time.Now()}
	c.mu.Unlock()

	return name, nil
}

func (c *Cached) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for k, e := range c.entries {
		if oldestKey == "" || e.updated.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.updated
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
