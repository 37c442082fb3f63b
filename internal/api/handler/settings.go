package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// SettingsStore reads and replaces the user settings.
type SettingsStore interface {
	Get(ctx context.Context) (domain.Settings, error)
	Update(ctx context.Context, settings domain.Settings) error
}

// SettingsHandler handles settings HTTP requests.
type SettingsHandler struct {
	svc    SettingsStore
	logger *slog.Logger
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(svc SettingsStore, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{
		svc:    svc,
		logger: logger,
	}
}

// Get handles GET /api/v1/settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.Get(r.Context())
	if err != nil {
		h.logger.Error("failed to load settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// Update handles PUT /api/v1/settings. Fields missing from the body keep
// their current value.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.Get(r.Context())
	if err != nil {
		h.logger.Error("failed to load settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	if err := decodeJSON(w, r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.Update(r.Context(), settings); err != nil {
		if errors.Is(err, domain.ErrInvalidSettings) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to update settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}

	updated, err := h.svc.Get(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, settings)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
