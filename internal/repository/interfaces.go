package repository

import (
	"context"
	"encoding/json"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// CatalogRepository stores the items discovered by the last metadata refresh.
type CatalogRepository interface {
	// Replace swaps the whole stored catalog; channels not given are dropped.
	Replace(ctx context.Context, catalogs []domain.ChannelCatalog) error

	// List returns the catalog of every channel.
	List(ctx context.Context) ([]domain.ChannelCatalog, error)

	// FindItem returns one item, or domain.ErrNotFound.
	FindItem(ctx context.Context, channel, apiID string) (*domain.CatalogEntry, error)
}

// EPGCacheRepository caches raw per-channel guide data between refreshes.
type EPGCacheRepository interface {
	// Get returns the cached data for a channel, or domain.ErrNotFound.
	Get(ctx context.Context, channel string) (*domain.EPGCache, error)

	// Put stores data for a channel. Empty data is ignored.
	Put(ctx context.Context, channel string, data json.RawMessage) error

	// Clear removes every cache entry and returns how many were removed.
	Clear(ctx context.Context) (int, error)
}

// ScheduleRepository manages scheduled downloads. Every method that changes
// an entry is a serialized read-modify-write on that entry.
type ScheduleRepository interface {
	// Upsert inserts or replaces the entry keyed by its API ID. Replacing
	// an entry keeps its in-progress flag so a running transfer stays
	// counted.
	Upsert(ctx context.Context, entry *domain.ScheduleEntry) error

	// Get retrieves an entry, or domain.ErrNotFound.
	Get(ctx context.Context, apiID string) (*domain.ScheduleEntry, error)

	// List returns all entries ordered by next due date, then API ID.
	List(ctx context.Context) ([]*domain.ScheduleEntry, error)

	// Delete removes an entry. Removing an absent entry is not an error.
	Delete(ctx context.Context, apiID string) error

	// SetInProgress flips the in-progress flag of an existing entry.
	SetInProgress(ctx context.Context, apiID string, inProgress bool) error

	// RecordFailure increments the fail count, releases the entry and marks
	// it failed once no schedule date is left. It returns the updated entry.
	RecordFailure(ctx context.Context, apiID string) (*domain.ScheduleEntry, error)

	// CountInProgress returns the number of entries currently downloading.
	CountInProgress(ctx context.Context) (int, error)

	// ResetInProgress clears every in-progress flag and returns how many were set.
	ResetInProgress(ctx context.Context) (int, error)
}

// FinishedRepository records completed downloads.
type FinishedRepository interface {
	// Upsert inserts or replaces the entry keyed by its API ID.
	Upsert(ctx context.Context, entry *domain.FinishedEntry) error

	// List returns entries marked done, oldest completion first.
	List(ctx context.Context) ([]*domain.FinishedEntry, error)

	// Delete removes an entry. Removing an absent entry is not an error.
	Delete(ctx context.Context, apiID string) error
}

// IgnoreRepository stores catalog items hidden by the user.
type IgnoreRepository interface {
	// Upsert inserts or replaces the entry keyed by its API ID.
	Upsert(ctx context.Context, entry *domain.IgnoreEntry) error

	// List returns all entries ordered by title.
	List(ctx context.Context) ([]*domain.IgnoreEntry, error)

	// Delete removes an entry. Removing an absent entry is not an error.
	Delete(ctx context.Context, apiID string) error
}

// SettingsRepository persists the user settings document.
type SettingsRepository interface {
	// Load returns the stored settings merged over the defaults.
	Load(ctx context.Context) (domain.Settings, error)

	// Save replaces the stored settings.
	Save(ctx context.Context, settings domain.Settings) error
}

// Store bundles every collection the application persists.
type Store struct {
	Catalog  CatalogRepository
	EPGCache EPGCacheRepository
	Schedule ScheduleRepository
	Finished FinishedRepository
	Ignore   IgnoreRepository
	Settings SettingsRepository
}

// QueueStats contains schedule statistics.
type QueueStats struct {
	Scheduled  int `json:"scheduled"`
	InProgress int `json:"in_progress"`
	Failed     int `json:"failed"`
}

// Stats computes schedule statistics from a repository.
func Stats(ctx context.Context, repo ScheduleRepository) (*QueueStats, error) {
	entries, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}
	stats := &QueueStats{}
	for _, e := range entries {
		switch {
		case e.Failed:
			stats.Failed++
		case e.InProgress:
			stats.InProgress++
		default:
			stats.Scheduled++
		}
	}
	return stats, nil
}
