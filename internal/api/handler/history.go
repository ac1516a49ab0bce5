package handler

import (
	"net/http"
	"strconv"

	"github.com/fgeck/gofleet-homelab/internal/models"
	"github.com/fgeck/gofleet-homelab/internal/storage"
	"github.com/go-chi/chi/v5"
)

// maxJobLimit caps a single page of job history.
const maxJobLimit = 1000

// HistoryHandler handles job history and checkpoint endpoints.
type HistoryHandler struct {
	store storage.Storage
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(store storage.Storage) *HistoryHandler {
	return &HistoryHandler{store: store}
}

// ListJobs lists recorded jobs, newest first.
func (h *HistoryHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := storage.DefaultJobLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxJobLimit {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	jobs, err := h.store.ListJobs(r.Context(), limit)
	if err != nil {
		handleError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}

	respondJSON(w, http.StatusOK, jobs)
}

// GetCheckpoint returns the stored checkpoint of one host.
func (h *HistoryHandler) GetCheckpoint(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	cp, err := h.store.GetCheckpoint(r.Context(), address)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cp)
}
