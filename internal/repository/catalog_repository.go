package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// InMemoryCatalogRepository implements CatalogRepository using in-memory storage.
type InMemoryCatalogRepository struct {
	mu       sync.RWMutex
	channels map[string]domain.ChannelCatalog
}

// NewInMemoryCatalogRepository creates a new in-memory catalog repository.
func NewInMemoryCatalogRepository() *InMemoryCatalogRepository {
	return &InMemoryCatalogRepository{channels: make(map[string]domain.ChannelCatalog)}
}

// Replace swaps the whole stored catalog. Channels missing from catalogs
// are dropped.
func (r *InMemoryCatalogRepository) Replace(ctx context.Context, catalogs []domain.ChannelCatalog) error {
	channels := make(map[string]domain.ChannelCatalog, len(catalogs))
	for _, c := range catalogs {
		c.Items = append([]domain.CatalogEntry(nil), c.Items...)
		channels[c.Channel] = c
	}

	r.mu.Lock()
	r.channels = channels
	r.mu.Unlock()
	return nil
}

// List returns the catalog of every channel ordered by channel key.
func (r *InMemoryCatalogRepository) List(ctx context.Context) ([]domain.ChannelCatalog, error) {
	r.mu.RLock()
	result := make([]domain.ChannelCatalog, 0, len(r.channels))
	for _, c := range r.channels {
		c.Items = append([]domain.CatalogEntry(nil), c.Items...)
		result = append(result, c)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Channel < result[j].Channel })
	return result, nil
}

// FindItem returns one item of a channel.
func (r *InMemoryCatalogRepository) FindItem(ctx context.Context, channel, apiID string) (*domain.CatalogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.channels[channel]
	if !ok {
		return nil, domain.ErrNotFound
	}
	item, ok := c.Find(apiID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	found := *item
	return &found, nil
}

// InMemoryEPGCacheRepository implements EPGCacheRepository using in-memory storage.
type InMemoryEPGCacheRepository struct {
	mu      sync.RWMutex
	entries map[string]domain.EPGCache
	now     func() time.Time
}

// NewInMemoryEPGCacheRepository creates a new in-memory EPG cache.
func NewInMemoryEPGCacheRepository() *InMemoryEPGCacheRepository {
	return &InMemoryEPGCacheRepository{
		entries: make(map[string]domain.EPGCache),
		now:     time.Now,
	}
}

// Get returns the cached data for a channel.
func (r *InMemoryEPGCacheRepository) Get(ctx context.Context, channel string) (*domain.EPGCache, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[channel]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}

// Put stores data for a channel.
func (r *InMemoryEPGCacheRepository) Put(ctx context.Context, channel string, data json.RawMessage) error {
	if channel == "" || len(data) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[channel] = domain.EPGCache{
		Channel:   channel,
		Data:      append(json.RawMessage(nil), data...),
		UpdatedAt: r.now(),
	}
	return nil
}

// Clear removes every cache entry.
func (r *InMemoryEPGCacheRepository) Clear(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.entries)
	r.entries = make(map[string]domain.EPGCache)
	return n, nil
}

// NewInMemoryStore returns a Store backed entirely by memory.
func NewInMemoryStore() *Store {
	return &Store{
		Catalog:  NewInMemoryCatalogRepository(),
		EPGCache: NewInMemoryEPGCacheRepository(),
		Schedule: NewInMemoryScheduleRepository(),
		Finished: NewInMemoryFinishedRepository(),
		Ignore:   NewInMemoryIgnoreRepository(),
		Settings: NewInMemorySettingsRepository(),
	}
}
