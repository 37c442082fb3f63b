package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

func scheduleRouter(h *ScheduleHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/schedule", h.List)
	r.Post("/schedule", h.Create)
	r.Delete("/schedule/{apiID}", h.Delete)
	return r
}

func TestScheduleHandler_Create(t *testing.T) {
	svc := &fakeScheduler{catalog: map[string]string{"zdf-1": "Tatort"}}
	trigger := &countingTrigger{}
	router := scheduleRouter(NewScheduleHandler(svc, trigger, testLogger()))

	req := httptest.NewRequest(http.MethodPost, "/schedule", strings.NewReader(`{"api_id":" zdf-1 ","channel":"ZDF"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp ScheduleResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Title != "Tatort" || resp.APIID != "zdf-1" {
		t.Errorf("response = %+v, want Tatort/zdf-1", resp)
	}
	if trigger.n != 1 {
		t.Errorf("triggers = %d, want 1", trigger.n)
	}
}

func TestScheduleHandler_Create_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{"api_id":`, http.StatusBadRequest},
		{"missing channel", `{"api_id":"zdf-1"}`, http.StatusBadRequest},
		{"missing api id", `{"channel":"ZDF"}`, http.StatusBadRequest},
		{"unknown item", `{"api_id":"nope","channel":"ZDF"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger := &countingTrigger{}
			router := scheduleRouter(NewScheduleHandler(&fakeScheduler{}, trigger, testLogger()))

			req := httptest.NewRequest(http.MethodPost, "/schedule", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if trigger.n != 0 {
				t.Error("failed requests should not trigger a sweep")
			}
		})
	}
}

func TestScheduleHandler_List(t *testing.T) {
	first := time.Date(2024, 1, 10, 20, 0, 0, 0, time.UTC)
	svc := &fakeScheduler{entries: []*domain.ScheduleEntry{
		{
			APIID:         "a",
			Channel:       "ZDF",
			Title:         "A",
			ScheduleDates: []time.Time{first, first.Add(time.Hour), first.Add(2 * time.Hour), first.AddDate(0, 0, 2)},
			FailCount:     1,
		},
		{
			APIID:         "b",
			Channel:       "Arte",
			Title:         "B",
			ScheduleDates: []time.Time{first, first.Add(time.Hour), first.Add(2 * time.Hour), first.AddDate(0, 0, 2)},
			FailCount:     4,
			Failed:        true,
		},
	}}
	router := scheduleRouter(NewScheduleHandler(svc, nil, testLogger()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/schedule", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp []struct {
		APIID       string    `json:"api_id"`
		Failed      bool      `json:"failed"`
		NextAttempt time.Time `json:"next_attempt"`
		Attempt     int       `json:"attempt"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("entries = %d, want 2", len(resp))
	}
	if !resp[0].NextAttempt.Equal(first.Add(time.Hour)) || resp[0].Attempt != 2 {
		t.Errorf("entry a = %+v, want second attempt at %v", resp[0], first.Add(time.Hour))
	}
	if !resp[1].Failed || resp[1].Attempt != 4 {
		t.Errorf("entry b = %+v, want failed after four attempts", resp[1])
	}
}

func TestScheduleHandler_List_Empty(t *testing.T) {
	router := scheduleRouter(NewScheduleHandler(&fakeScheduler{}, nil, testLogger()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/schedule", nil))

	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestScheduleHandler_Delete(t *testing.T) {
	svc := &fakeScheduler{}
	router := scheduleRouter(NewScheduleHandler(svc, nil, testLogger()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/schedule/zdf-1", nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if len(svc.removed) != 1 || svc.removed[0] != "zdf-1" {
		t.Errorf("removed = %v, want [zdf-1]", svc.removed)
	}
}

func TestScheduleHandler_Delete_Error(t *testing.T) {
	svc := &fakeScheduler{removeErr: errors.New("disk I/O error")}
	router := scheduleRouter(NewScheduleHandler(svc, nil, testLogger()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/schedule/zdf-1", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
