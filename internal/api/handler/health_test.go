package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iconidentify/mediagrabba/internal/domain"
	"github.com/iconidentify/mediagrabba/internal/repository"
)

// brokenSchedule fails every List call.
type brokenSchedule struct {
	repository.ScheduleRepository
}

func (brokenSchedule) List(ctx context.Context) ([]*domain.ScheduleEntry, error) {
	return nil, errors.New("database unavailable")
}

func TestHealthHandler_Live(t *testing.T) {
	handler := NewHealthHandler(repository.NewInMemoryScheduleRepository(), t.TempDir())

	w := httptest.NewRecorder()
	handler.Live(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want %q", resp.Status, "ok")
	}
	if resp.Timestamp == "" {
		t.Error("timestamp should not be empty")
	}
}

func TestHealthHandler_Ready_Success(t *testing.T) {
	repo := repository.NewInMemoryScheduleRepository()
	ctx := context.Background()
	now := time.Now()
	dates := []time.Time{now, now, now, now}
	for _, e := range []*domain.ScheduleEntry{
		{APIID: "a", ScheduleDates: dates},
		{APIID: "b", ScheduleDates: dates, InProgress: true},
		{APIID: "c", ScheduleDates: dates, FailCount: 4, Failed: true},
	} {
		if err := repo.Upsert(ctx, e); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	handler := NewHealthHandler(repo, t.TempDir())

	w := httptest.NewRecorder()
	handler.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Queue == nil {
		t.Fatal("queue stats should not be nil")
	}
	if resp.Queue.Scheduled != 1 || resp.Queue.InProgress != 1 || resp.Queue.Failed != 1 {
		t.Errorf("queue = %+v, want 1/1/1", resp.Queue)
	}
}

func TestHealthHandler_Ready_Error(t *testing.T) {
	handler := NewHealthHandler(brokenSchedule{}, t.TempDir())

	w := httptest.NewRecorder()
	handler.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "error" {
		t.Errorf("status = %q, want %q", resp.Status, "error")
	}
}

func TestHealthHandler_Stats(t *testing.T) {
	dir := t.TempDir()
	handler := NewHealthHandler(repository.NewInMemoryScheduleRepository(), dir)

	w := httptest.NewRecorder()
	handler.Stats(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var stats SystemStats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if stats.DownloadPath != dir {
		t.Errorf("download path = %q, want %q", stats.DownloadPath, dir)
	}
	if stats.NumCPU == 0 {
		t.Error("num_cpu should be set")
	}
	if stats.DiskTotalBytes == 0 || stats.DiskFreeHuman == "" {
		t.Errorf("disk stats missing for the download volume: %+v", stats)
	}
	if stats.DiskUsedBytes+stats.DiskFreeBytes != stats.DiskTotalBytes {
		t.Errorf("used %d + free %d != total %d", stats.DiskUsedBytes, stats.DiskFreeBytes, stats.DiskTotalBytes)
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{42 * time.Minute, "42m"},
		{3*time.Hour + 5*time.Minute, "3h 5m"},
		{50*time.Hour + 30*time.Minute, "2d 2h 30m"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.d); got != tt.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
