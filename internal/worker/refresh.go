package worker

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// Refresher runs a catalog refresh.
type Refresher interface {
	Refresh(ctx context.Context, forced bool) error
}

// RefreshAnnouncer publishes the time of the next scheduled refresh.
type RefreshAnnouncer interface {
	NextRefresh(at time.Time)
}

// RefreshConfig holds the daily refresh window.
type RefreshConfig struct {
	Location *time.Location
	HourFrom int
	HourTo   int
	// OnStart runs one refresh right after Start.
	OnStart bool
}

// RefreshScheduler runs the catalog refresh once a day at a random time
// inside the configured window. The time is drawn again for every day.
type RefreshScheduler struct {
	cfg       RefreshConfig
	refresher Refresher
	announcer RefreshAnnouncer
	logger    *slog.Logger
	now       func() time.Time
	intN      func(n int) int

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRefreshScheduler creates a new refresh scheduler.
func NewRefreshScheduler(cfg RefreshConfig, refresher Refresher, announcer RefreshAnnouncer, logger *slog.Logger) *RefreshScheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.HourTo < cfg.HourFrom {
		cfg.HourTo = cfg.HourFrom
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &RefreshScheduler{
		cfg:       cfg,
		refresher: refresher,
		announcer: announcer,
		logger:    logger,
		now:       time.Now,
		intN:      rand.IntN,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// NextRun returns the next refresh time after t: a random hour within the
// window, minute 0-54 and second 0-59 in the configured location.
func (s *RefreshScheduler) NextRun(t time.Time) time.Time {
	local := t.In(s.cfg.Location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.cfg.Location)

	for {
		next := time.Date(day.Year(), day.Month(), day.Day(),
			s.cfg.HourFrom+s.intN(s.cfg.HourTo-s.cfg.HourFrom+1),
			s.intN(55),
			s.intN(60),
			0, s.cfg.Location)
		if next.After(t) {
			return next
		}
		day = day.AddDate(0, 0, 1)
	}
}

// Start launches the refresh loop.
func (s *RefreshScheduler) Start() {
	s.logger.Info("starting metadata refresh scheduler",
		"window_from", s.cfg.HourFrom, "window_to", s.cfg.HourTo, "timezone", s.cfg.Location.String())

	s.wg.Add(1)
	go s.loop()
}

// Stop ends the refresh loop. A refresh in flight is cancelled.
func (s *RefreshScheduler) Stop(timeout time.Duration) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (s *RefreshScheduler) loop() {
	defer s.wg.Done()

	if s.cfg.OnStart {
		s.refresh()
	}

	for {
		next := s.NextRun(s.now())
		s.logger.Info("next metadata refresh scheduled", "at", next)
		s.announcer.NextRefresh(next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.refresh()
		}
	}
}

func (s *RefreshScheduler) refresh() {
	err := s.refresher.Refresh(s.ctx, false)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrRefreshInProgress):
		s.logger.Info("scheduled refresh skipped, one is already running")
	case s.ctx.Err() != nil:
	default:
		s.logger.Error("scheduled metadata refresh failed", "op", "refresh", "error", err)
	}
}
