package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iconidentify/mediagrabba/internal/domain"
	"github.com/iconidentify/mediagrabba/internal/repository"
)

// Recorder records the outcome of downloads and publishes the affected lists.
type Recorder struct {
	schedule repository.ScheduleRepository
	finished repository.FinishedRepository
	notifier *Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewRecorder creates a new result recorder.
func NewRecorder(store *repository.Store, notifier *Notifier, logger *slog.Logger) *Recorder {
	return &Recorder{
		schedule: store.Schedule,
		finished: store.Finished,
		notifier: notifier,
		now:      time.Now,
		logger:   logger,
	}
}

// RecordSuccess adds a completed download to the finished list.
func (r *Recorder) RecordSuccess(ctx context.Context, apiID, title, channel string) error {
	entry := &domain.FinishedEntry{
		APIID:       apiID,
		Title:       title,
		Channel:     channel,
		Done:        true,
		CompletedAt: r.now(),
	}
	if err := r.finished.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("record finished download: %w", err)
	}

	r.logger.Info("download finished", "api_id", apiID, "channel", channel, "title", title)
	r.notifier.FinishedChanged(ctx, nil)
	return nil
}

// RecordRemoval deletes a schedule entry. The schedule is published either
// way; a deletion error travels in the event payload.
func (r *Recorder) RecordRemoval(ctx context.Context, apiID string) error {
	err := r.schedule.Delete(ctx, apiID)
	if err != nil {
		r.logger.Error("delete schedule entry", "api_id", apiID, "op", "remove", "error", err)
		err = fmt.Errorf("delete schedule entry %s: %w", apiID, err)
	}
	r.notifier.ScheduleChanged(ctx, err)
	return err
}
