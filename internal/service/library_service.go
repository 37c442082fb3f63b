package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iconidentify/mediagrabba/internal/domain"
	"github.com/iconidentify/mediagrabba/internal/repository"
)

// LibraryService manages the finished list and the ignore list.
type LibraryService struct {
	catalog  repository.CatalogRepository
	finished repository.FinishedRepository
	ignore   repository.IgnoreRepository
	notifier *Notifier
	logger   *slog.Logger
}

// NewLibraryService creates a new library service.
func NewLibraryService(store *repository.Store, notifier *Notifier, logger *slog.Logger) *LibraryService {
	return &LibraryService{
		catalog:  store.Catalog,
		finished: store.Finished,
		ignore:   store.Ignore,
		notifier: notifier,
		logger:   logger,
	}
}

// ListFinished returns completed downloads, oldest first.
func (s *LibraryService) ListFinished(ctx context.Context) ([]*domain.FinishedEntry, error) {
	return s.finished.List(ctx)
}

// RemoveFinished deletes an entry from the finished list.
func (s *LibraryService) RemoveFinished(ctx context.Context, apiID string) error {
	err := s.finished.Delete(ctx, apiID)
	if err != nil {
		s.logger.Error("delete finished entry", "api_id", apiID, "error", err)
		err = fmt.Errorf("delete finished entry %s: %w", apiID, err)
	}
	s.notifier.FinishedChanged(ctx, err)
	return err
}

// ListIgnored returns the ignore list ordered by title.
func (s *LibraryService) ListIgnored(ctx context.Context) ([]*domain.IgnoreEntry, error) {
	return s.ignore.List(ctx)
}

// AddIgnore hides a catalog item. A missing title is looked up in the catalog.
func (s *LibraryService) AddIgnore(ctx context.Context, entry domain.IgnoreEntry) error {
	if entry.APIID == "" {
		return fmt.Errorf("add ignore entry: %w", domain.ErrNotFound)
	}
	if entry.Title == "" {
		item, err := s.catalog.FindItem(ctx, entry.Channel, entry.APIID)
		switch {
		case err == nil:
			entry.Title = item.Title
		case !errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("find catalog item: %w", err)
		}
	}

	if err := s.ignore.Upsert(ctx, &entry); err != nil {
		return fmt.Errorf("add ignore entry: %w", err)
	}
	s.logger.Info("item ignored", "api_id", entry.APIID, "channel", entry.Channel)
	s.notifier.IgnoreChanged(ctx, nil)
	return nil
}

// RemoveIgnore deletes an entry from the ignore list.
func (s *LibraryService) RemoveIgnore(ctx context.Context, apiID string) error {
	err := s.ignore.Delete(ctx, apiID)
	if err != nil {
		s.logger.Error("delete ignore entry", "api_id", apiID, "error", err)
		err = fmt.Errorf("delete ignore entry %s: %w", apiID, err)
	}
	s.notifier.IgnoreChanged(ctx, err)
	return err
}
