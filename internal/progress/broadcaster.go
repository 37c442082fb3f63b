package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// InProgressCounter reports how many downloads are marked in progress.
type InProgressCounter interface {
	CountInProgress(ctx context.Context) (int, error)
}

// Config configures the broadcaster.
type Config struct {
	// Tick is the publish interval while running.
	Tick time.Duration
	// SettleDelay is how long MaybeStop waits before checking for running downloads.
	SettleDelay time.Duration
}

// Broadcaster periodically publishes the progress snapshot while downloads run.
type Broadcaster struct {
	cfg       Config
	cache     *Cache
	publisher domain.Publisher
	counter   InProgressCounter
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	starts  uint64 // bumped by every Start, running or not
	stop    chan struct{}
	done    chan struct{}
}

// NewBroadcaster creates a stopped broadcaster.
func NewBroadcaster(cfg Config, cache *Cache, publisher domain.Publisher, counter InProgressCounter, logger *slog.Logger) *Broadcaster {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	return &Broadcaster{
		cfg:       cfg,
		cache:     cache,
		publisher: publisher,
		counter:   counter,
		logger:    logger,
	}
}

// Start begins publishing. Calling Start while running does nothing.
func (b *Broadcaster) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.starts++
	if b.running {
		return
	}
	b.running = true
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	go b.loop(b.stop, b.done)

	b.logger.Debug("progress broadcaster started")
}

// Running reports whether the broadcaster is publishing.
func (b *Broadcaster) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// MaybeStop stops the broadcaster after the settle delay if no download is
// marked in progress by then. A Start between the count and the stop keeps
// it running. It returns immediately.
func (b *Broadcaster) MaybeStop() {
	time.AfterFunc(b.cfg.SettleDelay, func() {
		b.mu.Lock()
		starts := b.starts
		b.mu.Unlock()

		n, err := b.counter.CountInProgress(context.Background())
		if err != nil {
			b.logger.Warn("count downloads in progress", "error", err)
			return
		}
		if n > 0 {
			return
		}
		b.stopIf(func() bool { return b.starts == starts })
	})
}

// Stop halts publishing and waits for the loop to exit.
func (b *Broadcaster) Stop() {
	b.stopIf(func() bool { return true })
}

// stopIf stops the loop when ok, evaluated under the lock, holds.
func (b *Broadcaster) stopIf(ok func() bool) {
	b.mu.Lock()
	if !b.running || !ok() {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.stop)
	done := b.done
	b.mu.Unlock()

	<-done
	b.logger.Debug("progress broadcaster stopped")
}

func (b *Broadcaster) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(b.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			// Final snapshot so subscribers drop finished entries.
			b.publish()
			return
		case <-ticker.C:
			b.publish()
		}
	}
}

func (b *Broadcaster) publish() {
	b.publisher.Publish(domain.EventProgressUpdate, b.cache.Snapshot())
}
