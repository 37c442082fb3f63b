package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// ErrShutdownTimeout is returned when background loops don't stop within timeout.
var ErrShutdownTimeout = errors.New("worker shutdown timed out")

// Launcher starts a download. The entry must count as in progress when
// Launch returns; the transfer itself runs in the background.
type Launcher interface {
	Launch(ctx context.Context, entry *domain.ScheduleEntry) error
}

// ScheduleSource lists scheduled downloads.
type ScheduleSource interface {
	List(ctx context.Context) ([]*domain.ScheduleEntry, error)
	CountInProgress(ctx context.Context) (int, error)
}

// SettingsProvider returns the current user settings.
type SettingsProvider interface {
	Get(ctx context.Context) (domain.Settings, error)
}

// Config holds dispatcher configuration.
type Config struct {
	Interval    time.Duration
	LaunchDelay time.Duration
	// StartJitter bounds the random delay before the first sweep.
	StartJitter time.Duration
}

// Dispatcher periodically starts due downloads while respecting the
// concurrency cap from the settings.
type Dispatcher struct {
	cfg      Config
	schedule ScheduleSource
	settings SettingsProvider
	launcher Launcher
	logger   *slog.Logger
	now      func() time.Time

	trigger chan struct{}
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewDispatcher creates a new download dispatcher.
func NewDispatcher(
	cfg Config,
	schedule ScheduleSource,
	settings SettingsProvider,
	launcher Launcher,
	logger *slog.Logger,
) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.LaunchDelay < 0 {
		cfg.LaunchDelay = 0
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		cfg:      cfg,
		schedule: schedule,
		settings: settings,
		launcher: launcher,
		logger:   logger,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Context is cancelled when the dispatcher stops. Downloads started by the
// dispatcher run under it.
func (d *Dispatcher) Context() context.Context {
	return d.ctx
}

// Start launches the dispatch loop.
func (d *Dispatcher) Start() {
	delay := d.startDelay()
	d.logger.Info("starting dispatcher", "interval", d.cfg.Interval, "first_sweep_in", delay)

	d.wg.Add(1)
	go d.loop(delay)
}

// Stop cancels the dispatch loop and every download it started, then waits
// for the loop to return.
func (d *Dispatcher) Stop(timeout time.Duration) error {
	d.logger.Info("stopping dispatcher")
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("dispatcher stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

// Trigger requests a sweep as soon as possible without waiting for the next
// tick. Requests made while one is pending are merged.
func (d *Dispatcher) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) startDelay() time.Duration {
	if d.cfg.StartJitter <= time.Second {
		return d.cfg.StartJitter
	}
	return time.Second + rand.N(d.cfg.StartJitter-time.Second)
}

func (d *Dispatcher) loop(delay time.Duration) {
	defer d.wg.Done()

	first := time.NewTimer(delay)
	defer first.Stop()

	select {
	case <-d.ctx.Done():
		return
	case <-first.C:
	case <-d.trigger:
	}
	d.sweep()

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.sweep()
		case <-d.trigger:
			d.sweep()
		}
	}
}

func (d *Dispatcher) sweep() {
	if _, err := d.Sweep(d.ctx); err != nil && d.ctx.Err() == nil {
		d.logger.Error("dispatch sweep failed", "op", "sweep", "error", err)
	}
}

// Sweep starts every due download until the concurrency cap is reached and
// returns how many were started. Entries are visited in next-due order; the
// cap is re-read before each entry so settings changes apply immediately.
func (d *Dispatcher) Sweep(ctx context.Context) (int, error) {
	d.logger.Debug("checking for scheduled downloads")

	entries, err := d.schedule.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list schedule: %w", err)
	}
	domain.SortByNextDue(entries)

	now := d.now()
	launched := 0
	for _, entry := range entries {
		if entry.InProgress || entry.Failed {
			continue
		}

		full, err := d.atCapacity(ctx)
		if err != nil {
			return launched, err
		}
		if full {
			return launched, nil
		}

		if !entry.IsDue(now) {
			continue
		}

		logger := d.logger.With("api_id", entry.APIID, "channel", entry.Channel, "op", "dispatch")
		logger.Info("starting scheduled download", "url", entry.DownloadURL, "attempt", entry.FailCount+1)
		if err := d.launcher.Launch(ctx, entry); err != nil {
			logger.Error("launch download", "error", err)
			continue
		}
		launched++

		if d.cfg.LaunchDelay > 0 {
			select {
			case <-ctx.Done():
				return launched, ctx.Err()
			case <-time.After(d.cfg.LaunchDelay):
			}
		}
	}
	return launched, nil
}

func (d *Dispatcher) atCapacity(ctx context.Context) (bool, error) {
	settings, err := d.settings.Get(ctx)
	if err != nil {
		return false, fmt.Errorf("load settings: %w", err)
	}
	limit := settings.ConcurrencyCap()
	if limit <= 0 {
		return false, nil
	}

	running, err := d.schedule.CountInProgress(ctx)
	if err != nil {
		return false, fmt.Errorf("count in progress: %w", err)
	}
	if running >= limit {
		d.logger.Debug("maximum concurrent downloads reached", "max_downloads", limit, "in_progress", running)
		return true, nil
	}
	return false, nil
}
