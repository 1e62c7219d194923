package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"statscards/internal/httpkit"
)

// GetStatus reports the state of one job by its id.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.queue.GetStatus(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, 200, status)
}

// GetQueueStats reports job counts per state.
func (h *Handler) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.GetQueueStats(r.Context())
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, 200, stats)
}
