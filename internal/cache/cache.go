// Package cache stores static rasters (basemap, legend) across requests.
// These depend only on session geometry and precipitation kind, never on
// time, so a TTL cache is safe. Radar tiles and capability documents are
// never cached.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache is the raster cache interface. Get returns cached bytes if
// present and not expired; Set stores bytes with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// InMemoryCache implements Cache with a mutex-guarded map. Expired
// entries are removed on access. Safe for concurrent use; imagery
// requests hit it from many goroutines at once.
type InMemoryCache struct {
	mu   sync.RWMutex
	data map[string]rasterEntry
}

type rasterEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewInMemoryCache creates an empty in-memory raster cache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{data: make(map[string]rasterEntry)}
}

// Get returns the cached raster for key if present and not expired.
func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; another goroutine may have refreshed it.
		if e, ok := c.data[key]; ok && time.Now().After(e.expiresAt) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores a raster with the given TTL.
func (c *InMemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = rasterEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}
