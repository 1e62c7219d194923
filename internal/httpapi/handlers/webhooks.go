package handlers

import (
	"io"
	"net/http"

	"statscards/internal/httpkit"
	"statscards/internal/pkg/errors"
)

const maxWebhookBody = 1 << 20

// PostWebhook receives GitHub App deliveries. Signature verification
// happens upstream at the gateway; this handler trusts the event header
// and dispatches on it.
func (h *Handler) PostWebhook(w http.ResponseWriter, r *http.Request) {
	event := r.Header.Get("X-GitHub-Event")
	if event == "" {
		httpkit.WriteErr(w, 400, string(errors.CodeValidation), "missing X-GitHub-Event header", nil)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httpkit.WriteErr(w, 400, string(errors.CodeValidation), "failed to read body", nil)
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), event, payload); err != nil {
		h.log.Error("webhook dispatch failed",
			"event", event,
			"delivery", r.Header.Get("X-GitHub-Delivery"),
			"error", err.Error(),
		)
		httpkit.WriteError(w, err)
		return
	}

	httpkit.WriteJSON(w, 200, map[string]any{"ok": true})
}
