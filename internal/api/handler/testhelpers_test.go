package handler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeScheduler is a test implementation of Scheduler.
type fakeScheduler struct {
	mu        sync.Mutex
	catalog   map[string]string // apiID -> title
	entries   []*domain.ScheduleEntry
	removed   []string
	listErr   error
	removeErr error
}

func (f *fakeScheduler) Schedule(ctx context.Context, apiID, channel string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	title, ok := f.catalog[apiID]
	if !ok {
		return "", domain.ErrNotFound
	}
	f.entries = append(f.entries, &domain.ScheduleEntry{APIID: apiID, Channel: channel, Title: title})
	return title, nil
}

func (f *fakeScheduler) Remove(ctx context.Context, apiID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, apiID)
	return nil
}

func (f *fakeScheduler) List(ctx context.Context) ([]*domain.ScheduleEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries, f.listErr
}

// countingTrigger records dispatcher triggers.
type countingTrigger struct {
	n int
}

func (t *countingTrigger) Trigger() { t.n++ }

// fakeLibrary is a test implementation of Library.
type fakeLibrary struct {
	finished []*domain.FinishedEntry
	ignored  []*domain.IgnoreEntry
	added    []domain.IgnoreEntry
	removed  []string
	err      error
}

func (f *fakeLibrary) ListFinished(ctx context.Context) ([]*domain.FinishedEntry, error) {
	return f.finished, f.err
}

func (f *fakeLibrary) RemoveFinished(ctx context.Context, apiID string) error {
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, apiID)
	return nil
}

func (f *fakeLibrary) ListIgnored(ctx context.Context) ([]*domain.IgnoreEntry, error) {
	return f.ignored, f.err
}

func (f *fakeLibrary) AddIgnore(ctx context.Context, entry domain.IgnoreEntry) error {
	if f.err != nil {
		return f.err
	}
	f.added = append(f.added, entry)
	return nil
}

func (f *fakeLibrary) RemoveIgnore(ctx context.Context, apiID string) error {
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, apiID)
	return nil
}

// fakeSettings keeps settings in memory and validates updates like the
// settings service.
type fakeSettings struct {
	settings domain.Settings
	getErr   error
	updates  int
}

func (f *fakeSettings) Get(ctx context.Context) (domain.Settings, error) {
	return f.settings, f.getErr
}

func (f *fakeSettings) Update(ctx context.Context, settings domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	f.settings = settings
	f.updates++
	return nil
}

// fakeCatalog is a test implementation of Catalog.
type fakeCatalog struct {
	catalogs []domain.ChannelCatalog
	running  bool
	last     time.Time
	starts   int
}

func (f *fakeCatalog) List(ctx context.Context) ([]domain.ChannelCatalog, error) {
	return f.catalogs, nil
}

func (f *fakeCatalog) StartForcedRefresh(ctx context.Context) error {
	if f.running {
		return domain.ErrRefreshInProgress
	}
	f.running = true
	f.starts++
	return nil
}

func (f *fakeCatalog) Running() bool { return f.running }

func (f *fakeCatalog) LastRefresh() time.Time { return f.last }
