package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iconidentify/mediagrabba/internal/domain"
	"github.com/iconidentify/mediagrabba/internal/repository"
)

// First attempt for rated content: ten minutes past the evening watershed.
const (
	fsk16Hour, fsk16Minute = 22, 10
	fsk18Hour, fsk18Minute = 23, 10
)

// ComputeScheduleDates returns the four attempt dates for a catalog item.
//
// Items available "until" a date are online already: the first attempt is now,
// or today's watershed time in loc for FSK16/FSK18 content, followed by one
// hour, two hours and two days later. Items available "from" a date are tried
// two and three hours after publication and again one day later.
func ComputeScheduleDates(entry domain.CatalogEntry, now time.Time, loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.Local
	}

	if entry.Availability.Kind == domain.AvailableFrom {
		start := entry.Availability.Date.In(loc)
		return []time.Time{
			start.Add(2 * time.Hour),
			start.Add(3 * time.Hour),
			start.Add(2*time.Hour).AddDate(0, 0, 1),
			start.Add(3*time.Hour).AddDate(0, 0, 1),
		}
	}

	first := now.In(loc)
	y, m, d := first.Date()
	switch {
	case entry.HasRestriction(domain.RatingFSK16):
		first = time.Date(y, m, d, fsk16Hour, fsk16Minute, 0, 0, loc)
	case entry.HasRestriction(domain.RatingFSK18):
		first = time.Date(y, m, d, fsk18Hour, fsk18Minute, 0, 0, loc)
	}

	return []time.Time{
		first,
		first.Add(time.Hour),
		first.Add(2 * time.Hour),
		first.AddDate(0, 0, 2),
	}
}

// ScheduleService is the scheduling engine. It turns catalog items into
// schedule entries and owns every transition of an entry's attempt state.
type ScheduleService struct {
	catalog  repository.CatalogRepository
	schedule repository.ScheduleRepository
	recorder *Recorder
	notifier *Notifier
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// NewScheduleService creates a new schedule service.
func NewScheduleService(
	store *repository.Store,
	recorder *Recorder,
	notifier *Notifier,
	loc *time.Location,
	logger *slog.Logger,
) *ScheduleService {
	return &ScheduleService{
		catalog:  store.Catalog,
		schedule: store.Schedule,
		recorder: recorder,
		notifier: notifier,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
	}
}

// Schedule plans the download of a catalog item. Scheduling an item again
// replaces its entry and restarts its attempt timeline.
func (s *ScheduleService) Schedule(ctx context.Context, apiID, channel string) (string, error) {
	logger := s.logger.With("api_id", apiID, "channel", channel, "op", "schedule")

	item, err := s.catalog.FindItem(ctx, channel, apiID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("item not in catalog")
			return "", fmt.Errorf("find catalog item %s/%s: %w", channel, apiID, domain.ErrNotFound)
		}
		return "", fmt.Errorf("find catalog item: %w", err)
	}

	entry := &domain.ScheduleEntry{
		APIID:         apiID,
		Channel:       channel,
		Title:         item.Title,
		DownloadURL:   item.DownloadURL,
		ScheduleDates: ComputeScheduleDates(*item, s.now(), s.loc),
	}
	if err := s.schedule.Upsert(ctx, entry); err != nil {
		return "", fmt.Errorf("save schedule entry: %w", err)
	}

	logger.Info("download scheduled", "title", item.Title, "first_attempt", entry.ScheduleDates[0])

	s.notifier.ScheduleChanged(ctx, nil)
	s.notifier.Banner(domain.EventSeveritySuccess, "Scheduled", fmt.Sprintf("%q has been scheduled for download.", item.Title))
	return item.Title, nil
}

// Remove deletes an entry from the schedule.
func (s *ScheduleService) Remove(ctx context.Context, apiID string) error {
	return s.recorder.RecordRemoval(ctx, apiID)
}

// List returns the schedule ordered by next due date.
func (s *ScheduleService) List(ctx context.Context) ([]*domain.ScheduleEntry, error) {
	return s.schedule.List(ctx)
}

// MarkInProgress claims an entry for a running download.
func (s *ScheduleService) MarkInProgress(ctx context.Context, apiID string) error {
	if err := s.schedule.SetInProgress(ctx, apiID, true); err != nil {
		return fmt.Errorf("mark in progress: %w", err)
	}
	s.notifier.ScheduleChanged(ctx, nil)
	return nil
}

// Release clears the in-progress flag without counting a failed attempt.
func (s *ScheduleService) Release(ctx context.Context, apiID string) error {
	if err := s.schedule.SetInProgress(ctx, apiID, false); err != nil {
		return fmt.Errorf("release entry: %w", err)
	}
	s.notifier.ScheduleChanged(ctx, nil)
	return nil
}

// RecordFailure applies the failure path: the attempt counter moves to the
// next schedule date and the entry is released. Once no date is left the
// entry is marked failed and stays listed without being dispatched again.
func (s *ScheduleService) RecordFailure(ctx context.Context, apiID string) (*domain.ScheduleEntry, error) {
	entry, err := s.schedule.RecordFailure(ctx, apiID)
	if err != nil {
		return nil, fmt.Errorf("record failure: %w", err)
	}

	logger := s.logger.With("api_id", apiID, "channel", entry.Channel, "op", "record failure")
	if entry.Failed {
		logger.Warn("download failed permanently", "fail_count", entry.FailCount)
	} else {
		logger.Info("download attempt failed", "fail_count", entry.FailCount, "next_attempt", entry.NextDue())
	}

	s.notifier.ScheduleChanged(ctx, nil)
	return entry, nil
}

// ResetInProgress clears in-progress flags left over from a previous run.
// It must run before the dispatcher starts.
func (s *ScheduleService) ResetInProgress(ctx context.Context) (int, error) {
	n, err := s.schedule.ResetInProgress(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset in progress: %w", err)
	}
	if n > 0 {
		s.logger.Info("reset lingering in-progress entries", "count", n)
	}
	return n, nil
}
