package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// Catalog exposes the stored catalog and the refresh trigger.
type Catalog interface {
	List(ctx context.Context) ([]domain.ChannelCatalog, error)
	StartForcedRefresh(ctx context.Context) error
	Running() bool
	LastRefresh() time.Time
}

// CatalogHandler handles catalog HTTP requests.
type CatalogHandler struct {
	svc    Catalog
	logger *slog.Logger
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(svc Catalog, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		svc:    svc,
		logger: logger,
	}
}

// CatalogResponse is the JSON response for the catalog listing.
type CatalogResponse struct {
	Channels    []domain.ChannelCatalog `json:"channels"`
	Refreshing  bool                    `json:"refreshing"`
	LastRefresh *time.Time              `json:"last_refresh,omitempty"`
}

// RefreshResponse is returned when a forced refresh was accepted.
type RefreshResponse struct {
	Status string `json:"status"`
}

// List handles GET /api/v1/catalog. The optional channel query parameter
// restricts the response to one channel.
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	catalogs, err := h.svc.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list catalog", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list catalog")
		return
	}

	if channel := r.URL.Query().Get("channel"); channel != "" {
		key := domain.ChannelKey(channel)
		filtered := catalogs[:0]
		for _, c := range catalogs {
			if domain.ChannelKey(c.Channel) == key {
				filtered = append(filtered, c)
			}
		}
		catalogs = filtered
	}
	if catalogs == nil {
		catalogs = []domain.ChannelCatalog{}
	}

	resp := CatalogResponse{
		Channels:   catalogs,
		Refreshing: h.svc.Running(),
	}
	if last := h.svc.LastRefresh(); !last.IsZero() {
		resp.LastRefresh = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

// Refresh handles POST /api/v1/catalog/refresh.
func (h *CatalogHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.StartForcedRefresh(r.Context()); err != nil {
		if errors.Is(err, domain.ErrRefreshInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("failed to start metadata refresh", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start metadata refresh")
		return
	}
	writeJSON(w, http.StatusAccepted, RefreshResponse{Status: "refreshing"})
}
