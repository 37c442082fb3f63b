package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/iconidentify/mediagrabba/internal/domain"
	"github.com/iconidentify/mediagrabba/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticSettings struct {
	maxDownloads int
}

func (s staticSettings) Get(ctx context.Context) (domain.Settings, error) {
	settings := domain.DefaultSettings()
	settings.MaxDownloads = s.maxDownloads
	return settings, nil
}

// claimingLauncher marks entries in progress like the real executor does.
type claimingLauncher struct {
	repo     repository.ScheduleRepository
	failFor  string
	mu       sync.Mutex
	launched []string
	notify   chan string
}

func (l *claimingLauncher) Launch(ctx context.Context, entry *domain.ScheduleEntry) error {
	if entry.APIID == l.failFor {
		return errors.New("launch refused")
	}
	if err := l.repo.SetInProgress(ctx, entry.APIID, true); err != nil {
		return err
	}
	l.mu.Lock()
	l.launched = append(l.launched, entry.APIID)
	l.mu.Unlock()
	if l.notify != nil {
		l.notify <- entry.APIID
	}
	return nil
}

func (l *claimingLauncher) ids() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.launched)
}

var sweepNow = time.Date(2024, 1, 10, 20, 0, 0, 0, time.UTC)

func addEntry(t *testing.T, repo repository.ScheduleRepository, apiID string, due time.Time, modify func(e *domain.ScheduleEntry)) {
	t.Helper()
	entry := &domain.ScheduleEntry{
		APIID:         apiID,
		Channel:       "zdf",
		Title:         apiID,
		DownloadURL:   "https://example.org/" + apiID,
		ScheduleDates: []time.Time{due, due.Add(time.Hour), due.Add(2 * time.Hour), due.AddDate(0, 0, 2)},
	}
	if modify != nil {
		modify(entry)
	}
	if err := repo.Upsert(context.Background(), entry); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
}

func newTestDispatcher(repo repository.ScheduleRepository, maxDownloads int, launcher Launcher) *Dispatcher {
	d := NewDispatcher(Config{Interval: time.Hour}, repo, staticSettings{maxDownloads: maxDownloads}, launcher, testLogger())
	d.now = func() time.Time { return sweepNow }
	return d
}

func TestDispatcher_Sweep_RespectsCap(t *testing.T) {
	repo := repository.NewInMemoryScheduleRepository()
	addEntry(t, repo, "A", sweepNow.Add(-2*time.Hour), nil)
	addEntry(t, repo, "B", sweepNow.Add(-time.Hour), nil)
	launcher := &claimingLauncher{repo: repo}

	n, err := newTestDispatcher(repo, 1, launcher).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if n != 1 || !slices.Equal(launcher.ids(), []string{"A"}) {
		t.Errorf("launched %v, want [A]", launcher.ids())
	}
}

func TestDispatcher_Sweep_UnlimitedCap(t *testing.T) {
	for _, limit := range []int{0, -1} {
		repo := repository.NewInMemoryScheduleRepository()
		addEntry(t, repo, "A", sweepNow.Add(-3*time.Hour), nil)
		addEntry(t, repo, "B", sweepNow.Add(-2*time.Hour), nil)
		addEntry(t, repo, "C", sweepNow.Add(-time.Hour), nil)
		launcher := &claimingLauncher{repo: repo}

		if _, err := newTestDispatcher(repo, limit, launcher).Sweep(context.Background()); err != nil {
			t.Fatalf("Sweep failed: %v", err)
		}
		if got := launcher.ids(); !slices.Equal(got, []string{"A", "B", "C"}) {
			t.Errorf("cap %d: launched %v, want all", limit, got)
		}
	}
}

func TestDispatcher_Sweep_RunningEntriesCountTowardsCap(t *testing.T) {
	repo := repository.NewInMemoryScheduleRepository()
	addEntry(t, repo, "X", sweepNow.Add(-5*time.Hour), func(e *domain.ScheduleEntry) { e.InProgress = true })
	addEntry(t, repo, "A", sweepNow.Add(-2*time.Hour), nil)
	addEntry(t, repo, "B", sweepNow.Add(-time.Hour), nil)
	launcher := &claimingLauncher{repo: repo}

	if _, err := newTestDispatcher(repo, 2, launcher).Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if got := launcher.ids(); !slices.Equal(got, []string{"A"}) {
		t.Errorf("launched %v, want [A]", got)
	}
}

func TestDispatcher_Sweep_SkipsIneligibleEntries(t *testing.T) {
	repo := repository.NewInMemoryScheduleRepository()
	addEntry(t, repo, "failed", sweepNow.Add(-4*time.Hour), func(e *domain.ScheduleEntry) {
		e.FailCount = 4
		e.Failed = true
	})
	addEntry(t, repo, "future", sweepNow.Add(time.Hour), nil)
	addEntry(t, repo, "retry", sweepNow.Add(-3*time.Hour), func(e *domain.ScheduleEntry) {
		// second date is still in the future
		e.FailCount = 1
		e.ScheduleDates[1] = sweepNow.Add(30 * time.Minute)
	})
	addEntry(t, repo, "due", sweepNow.Add(-time.Minute), nil)
	launcher := &claimingLauncher{repo: repo}

	if _, err := newTestDispatcher(repo, 3, launcher).Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if got := launcher.ids(); !slices.Equal(got, []string{"due"}) {
		t.Errorf("launched %v, want [due]", got)
	}
}

func TestDispatcher_Sweep_LaunchErrorContinues(t *testing.T) {
	repo := repository.NewInMemoryScheduleRepository()
	addEntry(t, repo, "A", sweepNow.Add(-2*time.Hour), nil)
	addEntry(t, repo, "B", sweepNow.Add(-time.Hour), nil)
	launcher := &claimingLauncher{repo: repo, failFor: "A"}

	n, err := newTestDispatcher(repo, 3, launcher).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if n != 1 || !slices.Equal(launcher.ids(), []string{"B"}) {
		t.Errorf("launched %v, want [B]", launcher.ids())
	}
}

func TestDispatcher_Sweep_LaunchDelayHonoursCancel(t *testing.T) {
	repo := repository.NewInMemoryScheduleRepository()
	addEntry(t, repo, "A", sweepNow.Add(-2*time.Hour), nil)
	addEntry(t, repo, "B", sweepNow.Add(-time.Hour), nil)
	launcher := &claimingLauncher{repo: repo}

	d := newTestDispatcher(repo, 0, launcher)
	d.cfg.LaunchDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	n, err := d.Sweep(ctx)
	if !errors.Is(err, context.DeadlineExceeded) || n != 1 {
		t.Errorf("Sweep = %d, %v; want 1 launch and a deadline error", n, err)
	}
}

func TestDispatcher_TriggerAndStop(t *testing.T) {
	repo := repository.NewInMemoryScheduleRepository()
	addEntry(t, repo, "A", sweepNow.Add(-time.Hour), nil)
	launcher := &claimingLauncher{repo: repo, notify: make(chan string, 1)}

	d := newTestDispatcher(repo, 3, launcher)
	d.cfg.StartJitter = time.Hour
	d.Start()
	d.Trigger()

	select {
	case id := <-launcher.notify:
		if id != "A" {
			t.Errorf("launched %q, want A", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not start a sweep")
	}

	if err := d.Stop(time.Second); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if d.Context().Err() == nil {
		t.Error("dispatcher context should be cancelled after Stop")
	}
}

func TestDispatcher_StartDelay(t *testing.T) {
	d := NewDispatcher(Config{StartJitter: 59 * time.Second}, nil, nil, nil, testLogger())
	for i := 0; i < 100; i++ {
		if delay := d.startDelay(); delay < time.Second || delay >= 59*time.Second {
			t.Fatalf("startDelay = %v, want within [1s, 59s)", delay)
		}
	}

	d = NewDispatcher(Config{}, nil, nil, nil, testLogger())
	if delay := d.startDelay(); delay != 0 {
		t.Errorf("startDelay without jitter = %v, want 0", delay)
	}
}
