package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// Scheduler is the scheduling engine as seen by the HTTP API.
type Scheduler interface {
	Schedule(ctx context.Context, apiID, channel string) (string, error)
	Remove(ctx context.Context, apiID string) error
	List(ctx context.Context) ([]*domain.ScheduleEntry, error)
}

// SweepTrigger requests an immediate dispatcher sweep.
type SweepTrigger interface {
	Trigger()
}

// ScheduleHandler handles schedule HTTP requests.
type ScheduleHandler struct {
	svc     Scheduler
	trigger SweepTrigger
	logger  *slog.Logger
}

// NewScheduleHandler creates a new schedule handler. trigger may be nil.
func NewScheduleHandler(svc Scheduler, trigger SweepTrigger, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		svc:     svc,
		trigger: trigger,
		logger:  logger,
	}
}

// ScheduleRequest is the JSON request body for scheduling a catalog item.
type ScheduleRequest struct {
	APIID   string `json:"api_id"`
	Channel string `json:"channel"`
}

// ScheduleResponse is returned after an item was scheduled.
type ScheduleResponse struct {
	APIID   string `json:"api_id"`
	Channel string `json:"channel"`
	Title   string `json:"title"`
}

// ScheduleEntryResponse represents a schedule entry in API responses.
type ScheduleEntryResponse struct {
	*domain.ScheduleEntry
	NextAttempt time.Time `json:"next_attempt"`
	Attempt     int       `json:"attempt"`
}

// List handles GET /api/v1/schedule.
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list schedule", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list schedule")
		return
	}

	resp := make([]ScheduleEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, ScheduleEntryResponse{
			ScheduleEntry: e,
			NextAttempt:   e.NextDue(),
			Attempt:       min(e.FailCount+1, len(e.ScheduleDates)),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create handles POST /api/v1/schedule.
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.APIID = strings.TrimSpace(req.APIID)
	req.Channel = strings.TrimSpace(req.Channel)
	if req.APIID == "" || req.Channel == "" {
		writeError(w, http.StatusBadRequest, "api_id and channel are required")
		return
	}

	title, err := h.svc.Schedule(r.Context(), req.APIID, req.Channel)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("failed to schedule download", "api_id", req.APIID, "channel", req.Channel, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}

	if h.trigger != nil {
		h.trigger.Trigger()
	}
	writeJSON(w, http.StatusCreated, ScheduleResponse{APIID: req.APIID, Channel: req.Channel, Title: title})
}

// Delete handles DELETE /api/v1/schedule/{apiID}.
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	apiID := chi.URLParam(r, "apiID")
	if err := h.svc.Remove(r.Context(), apiID); err != nil {
		h.logger.Error("failed to unschedule download", "api_id", apiID, "error", err)
		writeError(w, statusFor(err), "failed to remove schedule entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
