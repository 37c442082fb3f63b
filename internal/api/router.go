package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/mediagrabba/internal/api/handler"
	mw "github.com/iconidentify/mediagrabba/internal/api/middleware"
)

// Handlers bundles the HTTP handlers served by the router.
type Handlers struct {
	Health   *handler.HealthHandler
	Schedule *handler.ScheduleHandler
	Library  *handler.LibraryHandler
	Settings *handler.SettingsHandler
	Catalog  *handler.CatalogHandler
	Progress *handler.ProgressHandler
	Events   *handler.EventHandler
}

// Options holds the access settings of the router.
type Options struct {
	// APIKey protects /api/v1. The API is open when it is empty.
	APIKey string
	// AllowedOrigins restricts CORS. Empty allows every origin.
	AllowedOrigins []string
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(h Handlers, opts Options, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.CORS(opts.AllowedOrigins))

	// Health endpoints (no auth)
	r.Get("/health", h.Health.Live)
	r.Get("/ready", h.Health.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(mw.APIKeyAuth(opts.APIKey))
		}

		// The event stream outlives the request timeout.
		r.Get("/events/stream", h.Events.Stream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(time.Minute))

			r.Get("/stats", h.Health.Stats)

			r.Get("/schedule", h.Schedule.List)
			r.Post("/schedule", h.Schedule.Create)
			r.Delete("/schedule/{apiID}", h.Schedule.Delete)

			r.Get("/finished", h.Library.ListFinished)
			r.Delete("/finished/{apiID}", h.Library.RemoveFinished)

			r.Get("/ignore", h.Library.ListIgnored)
			r.Post("/ignore", h.Library.AddIgnore)
			r.Delete("/ignore/{apiID}", h.Library.RemoveIgnore)

			r.Get("/settings", h.Settings.Get)
			r.Put("/settings", h.Settings.Update)

			r.Get("/catalog", h.Catalog.List)
			r.Post("/catalog/refresh", h.Catalog.Refresh)

			r.Get("/progress", h.Progress.List)
			r.Get("/progress/{apiID}", h.Progress.Get)

			r.Get("/events/recent", h.Events.Recent)
			r.Get("/events/stats", h.Events.Stats)
		})
	})

	return r
}
