package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iconidentify/mediagrabba/internal/domain"
	"github.com/iconidentify/mediagrabba/internal/repository"
)

// CatalogSource discovers the downloadable items of the given channels.
// It may return partial results together with an error.
type CatalogSource interface {
	Fetch(ctx context.Context, channels []string) ([]domain.ChannelCatalog, error)
}

// CatalogService runs metadata refreshes. Only one refresh runs at a time;
// a refresh that exceeds the timeout releases the guard but is not cancelled.
type CatalogService struct {
	source   CatalogSource
	store    *repository.Store
	notifier *Notifier
	timeout  time.Duration
	logger   *slog.Logger

	mu          sync.Mutex
	running     bool
	generation  uint64
	timer       *time.Timer
	lastRefresh time.Time
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(source CatalogSource, store *repository.Store, notifier *Notifier, timeout time.Duration, logger *slog.Logger) *CatalogService {
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &CatalogService{
		source:   source,
		store:    store,
		notifier: notifier,
		timeout:  timeout,
		logger:   logger,
	}
}

// Refresh fetches the catalog of all active channels and stores it. A forced
// refresh clears the guide cache first so every channel is fetched again.
func (s *CatalogService) Refresh(ctx context.Context, forced bool) error {
	gen, ok := s.begin()
	if !ok {
		s.logger.Info("skip metadata refresh, one is already running")
		return domain.ErrRefreshInProgress
	}
	return s.run(ctx, forced, gen)
}

// StartForcedRefresh starts a forced refresh in the background.
func (s *CatalogService) StartForcedRefresh(ctx context.Context) error {
	gen, ok := s.begin()
	if !ok {
		return domain.ErrRefreshInProgress
	}
	go s.run(context.WithoutCancel(ctx), true, gen)
	return nil
}

// Running reports whether a refresh holds the guard.
func (s *CatalogService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastRefresh returns the completion time of the last refresh that stored data.
func (s *CatalogService) LastRefresh() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefresh
}

// List returns the stored catalog without the items on the ignore list.
func (s *CatalogService) List(ctx context.Context) ([]domain.ChannelCatalog, error) {
	catalogs, err := s.store.Catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	ignored, err := s.store.Ignore.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ignore list: %w", err)
	}
	if len(ignored) == 0 {
		return catalogs, nil
	}

	skip := make(map[string]bool, len(ignored))
	for _, e := range ignored {
		skip[e.APIID] = true
	}
	for i := range catalogs {
		items := catalogs[i].Items[:0]
		for _, item := range catalogs[i].Items {
			if !skip[item.APIID] {
				items = append(items, item)
			}
		}
		catalogs[i].Items = items
	}
	return catalogs, nil
}

func (s *CatalogService) begin() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return 0, false
	}
	s.running = true
	s.generation++
	gen := s.generation
	s.timer = time.AfterFunc(s.timeout, func() { s.expire(gen) })
	return gen, true
}

func (s *CatalogService) finish(gen uint64, stored bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stored {
		s.lastRefresh = time.Now()
	}
	if s.generation == gen && s.running {
		s.running = false
		s.timer.Stop()
	}
}

func (s *CatalogService) expire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation == gen && s.running {
		s.running = false
		s.logger.Error("metadata refresh released", "error", domain.ErrRefreshTimeout, "timeout", s.timeout)
	}
}

func (s *CatalogService) run(ctx context.Context, forced bool, gen uint64) error {
	stored := false
	defer func() { s.finish(gen, stored) }()

	logger := s.logger.With("op", "refresh catalog", "forced", forced)

	if forced {
		s.notifier.Banner(domain.EventSeveritySuccess, "Refresh", "Forced metadata refresh started, this takes a moment.")
		n, err := s.store.EPGCache.Clear(ctx)
		if err != nil {
			logger.Error("clear guide cache", "error", err)
		} else {
			logger.Info("guide cache cleared", "entries", n)
		}
	}

	settings, err := s.store.Settings.Load(ctx)
	if err != nil {
		logger.Warn("load settings, using defaults", "error", err)
	}
	channels := settings.ActiveChannels()

	logger.Info("refreshing metadata", "channels", len(channels))
	start := time.Now()

	catalogs, fetchErr := s.source.Fetch(ctx, channels)
	if fetchErr != nil {
		logger.Warn("metadata source reported errors", "error", fetchErr)
	}

	// A refresh with any data supersedes the whole stored catalog.
	now := time.Now()
	items := 0
	for i := range catalogs {
		if catalogs[i].UpdatedAt.IsZero() {
			catalogs[i].UpdatedAt = now
		}
		items += len(catalogs[i].Items)
	}

	if items == 0 {
		logger.Info("metadata source returned no data, keeping stored catalog")
	} else {
		if err := s.store.Catalog.Replace(ctx, catalogs); err != nil {
			return fmt.Errorf("store catalog: %w", err)
		}
		stored = true
		logger.Info("metadata refreshed", "channels", len(catalogs), "items", items, "duration", time.Since(start))
		s.notifier.CatalogChanged(ctx)
	}

	if fetchErr != nil {
		return fmt.Errorf("fetch catalog: %w", fetchErr)
	}
	return nil
}
