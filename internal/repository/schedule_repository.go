package repository

import (
	"context"
	"sync"
	"time"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// InMemoryScheduleRepository implements ScheduleRepository using in-memory storage.
type InMemoryScheduleRepository struct {
	mu      sync.RWMutex
	entries map[string]*domain.ScheduleEntry
}

// NewInMemoryScheduleRepository creates a new in-memory schedule repository.
func NewInMemoryScheduleRepository() *InMemoryScheduleRepository {
	return &InMemoryScheduleRepository{
		entries: make(map[string]*domain.ScheduleEntry),
	}
}

func cloneSchedule(e *domain.ScheduleEntry) *domain.ScheduleEntry {
	c := *e
	c.ScheduleDates = append([]time.Time(nil), e.ScheduleDates...)
	return &c
}

// Upsert inserts or replaces the entry keyed by its API ID. An existing
// entry keeps its in-progress flag.
func (r *InMemoryScheduleRepository) Upsert(ctx context.Context, entry *domain.ScheduleEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := cloneSchedule(entry)
	if old, ok := r.entries[entry.APIID]; ok {
		c.InProgress = old.InProgress
	}
	r.entries[entry.APIID] = c
	return nil
}

// Get retrieves an entry by API ID.
func (r *InMemoryScheduleRepository) Get(ctx context.Context, apiID string) (*domain.ScheduleEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[apiID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneSchedule(e), nil
}

// List returns all entries ordered by next due date, then API ID.
func (r *InMemoryScheduleRepository) List(ctx context.Context) ([]*domain.ScheduleEntry, error) {
	r.mu.RLock()
	result := make([]*domain.ScheduleEntry, 0, len(r.entries))
	for _, e := range r.entries {
		result = append(result, cloneSchedule(e))
	}
	r.mu.RUnlock()

	domain.SortByNextDue(result)
	return result, nil
}

// Delete removes an entry.
func (r *InMemoryScheduleRepository) Delete(ctx context.Context, apiID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, apiID)
	return nil
}

// SetInProgress flips the in-progress flag of an existing entry.
func (r *InMemoryScheduleRepository) SetInProgress(ctx context.Context, apiID string, inProgress bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[apiID]
	if !ok {
		return domain.ErrNotFound
	}
	e.InProgress = inProgress
	return nil
}

// RecordFailure applies the failure path to an entry.
func (r *InMemoryScheduleRepository) RecordFailure(ctx context.Context, apiID string) (*domain.ScheduleEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[apiID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	e.MarkFailedAttempt()
	return cloneSchedule(e), nil
}

// CountInProgress returns the number of entries currently downloading.
func (r *InMemoryScheduleRepository) CountInProgress(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		if e.InProgress {
			n++
		}
	}
	return n, nil
}

// ResetInProgress clears every in-progress flag.
func (r *InMemoryScheduleRepository) ResetInProgress(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.entries {
		if e.InProgress {
			e.InProgress = false
			n++
		}
	}
	return n, nil
}
