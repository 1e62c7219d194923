package handlers

import (
	"net/http"

	"statscards/internal/httpkit"
	"statscards/internal/variants"
)

// ListVariants returns the renderable variant ids grouped by card family.
func (h *Handler) ListVariants(w http.ResponseWriter, r *http.Request) {
	httpkit.WriteJSON(w, 200, map[string]any{
		"variants": variants.Grouped(),
		"count":    len(variants.All),
	})
}
