package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// Library manages the finished list and the ignore list.
type Library interface {
	ListFinished(ctx context.Context) ([]*domain.FinishedEntry, error)
	RemoveFinished(ctx context.Context, apiID string) error
	ListIgnored(ctx context.Context) ([]*domain.IgnoreEntry, error)
	AddIgnore(ctx context.Context, entry domain.IgnoreEntry) error
	RemoveIgnore(ctx context.Context, apiID string) error
}

// LibraryHandler handles finished list and ignore list HTTP requests.
type LibraryHandler struct {
	svc    Library
	logger *slog.Logger
}

// NewLibraryHandler creates a new library handler.
func NewLibraryHandler(svc Library, logger *slog.Logger) *LibraryHandler {
	return &LibraryHandler{
		svc:    svc,
		logger: logger,
	}
}

// ListFinished handles GET /api/v1/finished.
func (h *LibraryHandler) ListFinished(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListFinished(r.Context())
	if err != nil {
		h.logger.Error("failed to list finished downloads", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list finished downloads")
		return
	}
	if entries == nil {
		entries = []*domain.FinishedEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// RemoveFinished handles DELETE /api/v1/finished/{apiID}.
func (h *LibraryHandler) RemoveFinished(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveFinished(r.Context(), chi.URLParam(r, "apiID")); err != nil {
		writeError(w, statusFor(err), "failed to remove finished entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListIgnored handles GET /api/v1/ignore.
func (h *LibraryHandler) ListIgnored(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListIgnored(r.Context())
	if err != nil {
		h.logger.Error("failed to list ignore list", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list ignore list")
		return
	}
	if entries == nil {
		entries = []*domain.IgnoreEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// AddIgnore handles POST /api/v1/ignore.
func (h *LibraryHandler) AddIgnore(w http.ResponseWriter, r *http.Request) {
	var entry domain.IgnoreEntry
	if err := decodeJSON(w, r, &entry); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	entry.APIID = strings.TrimSpace(entry.APIID)
	if entry.APIID == "" {
		writeError(w, http.StatusBadRequest, "api_id is required")
		return
	}

	if err := h.svc.AddIgnore(r.Context(), entry); err != nil {
		h.logger.Error("failed to ignore item", "api_id", entry.APIID, "channel", entry.Channel, "error", err)
		writeError(w, statusFor(err), "failed to add ignore entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveIgnore handles DELETE /api/v1/ignore/{apiID}.
func (h *LibraryHandler) RemoveIgnore(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveIgnore(r.Context(), chi.URLParam(r, "apiID")); err != nil {
		writeError(w, statusFor(err), "failed to remove ignore entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
