package handler

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// ProgressSource provides the live state of running transfers.
type ProgressSource interface {
	Snapshot() map[string]domain.ProgressEntry
	Get(apiID string) (domain.ProgressEntry, bool)
}

// ProgressHandler handles download progress HTTP requests.
type ProgressHandler struct {
	cache ProgressSource
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(cache ProgressSource) *ProgressHandler {
	return &ProgressHandler{cache: cache}
}

// List handles GET /api/v1/progress. Entries are ordered by API ID.
func (h *ProgressHandler) List(w http.ResponseWriter, r *http.Request) {
	snapshot := h.cache.Snapshot()
	entries := make([]domain.ProgressEntry, 0, len(snapshot))
	for _, e := range snapshot {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].APIID < entries[j].APIID })
	writeJSON(w, http.StatusOK, entries)
}

// Get handles GET /api/v1/progress/{apiID}.
func (h *ProgressHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.cache.Get(chi.URLParam(r, "apiID"))
	if !ok {
		writeError(w, http.StatusNotFound, "no running download")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
