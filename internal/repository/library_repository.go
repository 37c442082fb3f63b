package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// InMemoryFinishedRepository implements FinishedRepository using in-memory storage.
type InMemoryFinishedRepository struct {
	mu      sync.RWMutex
	entries map[string]domain.FinishedEntry
}

// NewInMemoryFinishedRepository creates a new in-memory finished repository.
func NewInMemoryFinishedRepository() *InMemoryFinishedRepository {
	return &InMemoryFinishedRepository{entries: make(map[string]domain.FinishedEntry)}
}

// Upsert inserts or replaces the entry keyed by its API ID.
func (r *InMemoryFinishedRepository) Upsert(ctx context.Context, entry *domain.FinishedEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[entry.APIID] = *entry
	return nil
}

// List returns entries marked done, oldest completion first.
func (r *InMemoryFinishedRepository) List(ctx context.Context) ([]*domain.FinishedEntry, error) {
	r.mu.RLock()
	result := make([]*domain.FinishedEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if !e.Done {
			continue
		}
		e := e
		result = append(result, &e)
	}
	r.mu.RUnlock()

	sortFinished(result)
	return result, nil
}

// Delete removes an entry.
func (r *InMemoryFinishedRepository) Delete(ctx context.Context, apiID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, apiID)
	return nil
}

func sortFinished(entries []*domain.FinishedEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CompletedAt.Equal(entries[j].CompletedAt) {
			return entries[i].CompletedAt.Before(entries[j].CompletedAt)
		}
		return entries[i].APIID < entries[j].APIID
	})
}

// InMemoryIgnoreRepository implements IgnoreRepository using in-memory storage.
type InMemoryIgnoreRepository struct {
	mu      sync.RWMutex
	entries map[string]domain.IgnoreEntry
}

// NewInMemoryIgnoreRepository creates a new in-memory ignore repository.
func NewInMemoryIgnoreRepository() *InMemoryIgnoreRepository {
	return &InMemoryIgnoreRepository{entries: make(map[string]domain.IgnoreEntry)}
}

// Upsert inserts or replaces the entry keyed by its API ID.
func (r *InMemoryIgnoreRepository) Upsert(ctx context.Context, entry *domain.IgnoreEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[entry.APIID] = *entry
	return nil
}

// List returns all entries ordered by title.
func (r *InMemoryIgnoreRepository) List(ctx context.Context) ([]*domain.IgnoreEntry, error) {
	r.mu.RLock()
	result := make([]*domain.IgnoreEntry, 0, len(r.entries))
	for _, e := range r.entries {
		e := e
		result = append(result, &e)
	}
	r.mu.RUnlock()

	sortIgnored(result)
	return result, nil
}

// Delete removes an entry.
func (r *InMemoryIgnoreRepository) Delete(ctx context.Context, apiID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, apiID)
	return nil
}

func sortIgnored(entries []*domain.IgnoreEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		ti, tj := strings.ToLower(entries[i].Title), strings.ToLower(entries[j].Title)
		if ti != tj {
			return ti < tj
		}
		return entries[i].APIID < entries[j].APIID
	})
}
