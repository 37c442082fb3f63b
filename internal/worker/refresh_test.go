package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

type fakeRefresher struct {
	mu     sync.Mutex
	calls  int
	forced []bool
	err    error
	done   chan struct{}
}

func (f *fakeRefresher) Refresh(ctx context.Context, forced bool) error {
	f.mu.Lock()
	f.calls++
	f.forced = append(f.forced, forced)
	f.mu.Unlock()
	if f.done != nil {
		select {
		case f.done <- struct{}{}:
		default:
		}
	}
	return f.err
}

type recordingAnnouncer struct {
	mu   sync.Mutex
	next []time.Time
	seen chan struct{}
}

func (a *recordingAnnouncer) NextRefresh(at time.Time) {
	a.mu.Lock()
	a.next = append(a.next, at)
	a.mu.Unlock()
	select {
	case a.seen <- struct{}{}:
	default:
	}
}

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestRefreshScheduler_NextRun(t *testing.T) {
	loc := berlin(t)
	s := NewRefreshScheduler(RefreshConfig{Location: loc, HourFrom: 2, HourTo: 4}, &fakeRefresher{}, &recordingAnnouncer{}, testLogger())

	s.intN = func(n int) int { return 0 }
	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"before window", time.Date(2024, 1, 10, 1, 0, 0, 0, loc), time.Date(2024, 1, 10, 2, 0, 0, 0, loc)},
		{"after window", time.Date(2024, 1, 10, 3, 0, 0, 0, loc), time.Date(2024, 1, 11, 2, 0, 0, 0, loc)},
		{"evening", time.Date(2024, 1, 10, 20, 0, 0, 0, loc), time.Date(2024, 1, 11, 2, 0, 0, 0, loc)},
		{"utc input", time.Date(2024, 1, 10, 0, 30, 0, 0, time.UTC), time.Date(2024, 1, 10, 2, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.NextRun(tt.at); !got.Equal(tt.want) {
				t.Errorf("NextRun(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}

	s.intN = func(n int) int { return n - 1 }
	got := s.NextRun(time.Date(2024, 1, 10, 1, 0, 0, 0, loc))
	if want := time.Date(2024, 1, 10, 4, 54, 59, 0, loc); !got.Equal(want) {
		t.Errorf("latest NextRun = %v, want %v", got, want)
	}
}

func TestRefreshScheduler_NextRunStaysInWindow(t *testing.T) {
	loc := berlin(t)
	s := NewRefreshScheduler(RefreshConfig{Location: loc, HourFrom: 2, HourTo: 4}, &fakeRefresher{}, &recordingAnnouncer{}, testLogger())
	at := time.Date(2024, 3, 30, 12, 0, 0, 0, loc)

	for i := 0; i < 200; i++ {
		next := s.NextRun(at).In(loc)
		if !next.After(at) || next.Sub(at) > 48*time.Hour {
			t.Fatalf("NextRun(%v) = %v out of range", at, next)
		}
		if next.Hour() < 2 || next.Hour() > 4 || next.Minute() > 54 {
			t.Fatalf("NextRun = %v outside the refresh window", next)
		}
	}
}

func TestRefreshScheduler_StartRefreshesAndAnnounces(t *testing.T) {
	refresher := &fakeRefresher{done: make(chan struct{}, 1), err: domain.ErrRefreshInProgress}
	announcer := &recordingAnnouncer{seen: make(chan struct{}, 1)}
	s := NewRefreshScheduler(RefreshConfig{Location: time.UTC, HourFrom: 2, HourTo: 4, OnStart: true}, refresher, announcer, testLogger())

	s.Start()
	for name, ch := range map[string]chan struct{}{"refresh": refresher.done, "announcement": announcer.seen} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("no %s after Start", name)
		}
	}
	if err := s.Stop(time.Second); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	refresher.mu.Lock()
	defer refresher.mu.Unlock()
	if refresher.calls != 1 || refresher.forced[0] {
		t.Errorf("refresh calls = %d forced = %v, want one unforced", refresher.calls, refresher.forced)
	}
	announcer.mu.Lock()
	defer announcer.mu.Unlock()
	if len(announcer.next) != 1 || !announcer.next[0].After(time.Now()) {
		t.Errorf("announced %v, want one future time", announcer.next)
	}
}
