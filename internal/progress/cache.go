// Package progress keeps the live state of running downloads and pushes it to
// subscribers while at least one download is active.
package progress

import (
	"sync"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// Cache holds one progress entry per running download. It is never persisted.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]domain.ProgressEntry
}

// NewCache creates an empty progress cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]domain.ProgressEntry)}
}

// Set stores the latest progress of a download.
func (c *Cache) Set(entry domain.ProgressEntry) {
	c.mu.Lock()
	c.entries[entry.APIID] = entry
	c.mu.Unlock()
}

// Delete removes the progress of a download.
func (c *Cache) Delete(apiID string) {
	c.mu.Lock()
	delete(c.entries, apiID)
	c.mu.Unlock()
}

// Get returns the progress of one download.
func (c *Cache) Get(apiID string) (domain.ProgressEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[apiID]
	return e, ok
}

// Snapshot returns a copy of all entries keyed by API ID.
func (c *Cache) Snapshot() map[string]domain.ProgressEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := make(map[string]domain.ProgressEntry, len(c.entries))
	for k, v := range c.entries {
		snap[k] = v
	}
	return snap
}

// Len returns the number of tracked downloads.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
