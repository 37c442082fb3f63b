package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/iconidentify/mediagrabba/internal/api/handler"
	"github.com/iconidentify/mediagrabba/internal/progress"
	"github.com/iconidentify/mediagrabba/internal/repository"
	"github.com/iconidentify/mediagrabba/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRouter(t *testing.T, apiKey string) http.Handler {
	t.Helper()
	logger := testLogger()
	store := repository.NewInMemoryStore()
	events := service.NewEventService(service.DefaultEventServiceConfig(), logger)
	notifier := service.NewNotifier(store, events, logger)
	recorder := service.NewRecorder(store, notifier, logger)
	schedule := service.NewScheduleService(store, recorder, notifier, nil, logger)
	catalog := service.NewCatalogService(nil, store, notifier, 0, logger)

	return NewRouter(Handlers{
		Health:   handler.NewHealthHandler(store.Schedule, t.TempDir()),
		Schedule: handler.NewScheduleHandler(schedule, nil, logger),
		Library:  handler.NewLibraryHandler(service.NewLibraryService(store, notifier, logger), logger),
		Settings: handler.NewSettingsHandler(service.NewSettingsService(store.Settings, notifier, nil, logger), logger),
		Catalog:  handler.NewCatalogHandler(catalog, logger),
		Progress: handler.NewProgressHandler(progress.NewCache()),
		Events:   handler.NewEventHandler(events, logger),
	}, Options{APIKey: apiKey}, logger)
}

func TestRouter_Routes(t *testing.T) {
	router := testRouter(t, "")

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "//ready", http.StatusOK},
		{http.MethodGet, "/api/v1/schedule", http.StatusOK},
		{http.MethodDelete, "/api/v1/schedule/unknown", http.StatusNoContent},
		{http.MethodGet, "/api/v1/finished", http.StatusOK},
		{http.MethodGet, "/api/v1/ignore", http.StatusOK},
		{http.MethodGet, "/api/v1/settings", http.StatusOK},
		{http.MethodGet, "/api/v1/catalog", http.StatusOK},
		{http.MethodGet, "/api/v1/progress", http.StatusOK},
		{http.MethodGet, "/api/v1/progress/unknown", http.StatusNotFound},
		{http.MethodGet, "/api/v1/events/recent", http.StatusOK},
		{http.MethodGet, "/api/v1/events/stats", http.StatusOK},
		{http.MethodGet, "/api/v1/stats", http.StatusOK},
		{http.MethodGet, "/api/v1/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRouter_APIKey(t *testing.T) {
	router := testRouter(t, "secret")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/schedule", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("without key status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/schedule", nil)
	req.Header.Set("X-API-Key", "secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("with key status = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health should stay open, status = %d", w.Code)
	}
}
