package handlers

import (
	"net/http"

	"statscards/internal/httpkit"
)

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httpkit.WriteJSON(w, 200, map[string]any{"ok": true})
}
