package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"statscards/internal/httpkit"
	"statscards/internal/imagestore"
	"statscards/internal/pkg/errors"
	"statscards/internal/queue"
	"statscards/internal/variants"
)

// GetImage serves the rendered card for subject+variant. A missing artifact
// is not an error: authorized subjects get a render enqueued and a 202 back,
// so embedding the URL in a README is enough to bootstrap the card.
//
// ?refresh=true enqueues a re-render but still serves whatever exists, so
// the card never goes blank while refreshing.
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	variant := chi.URLParam(r, "variant")
	refresh := r.URL.Query().Get("refresh") == "true"

	subject, ok := normalizeSubject(chi.URLParam(r, "subject"))
	if !ok {
		httpkit.WriteErr(w, 400, string(errors.CodeValidation), "subject must be 1-39 characters", map[string]any{"field": "subject"})
		return
	}
	if !variants.IsValid(variant) {
		httpkit.WriteError(w, errors.InvalidVariant(variant))
		return
	}

	// Cached public URL short-circuits the store round trip entirely.
	if !refresh {
		if url, err := h.urlCache.Get(ctx, subject, variant); err == nil && url != "" {
			http.Redirect(w, r, url, http.StatusFound)
			return
		}
	}

	key := imagestore.ImageKey(subject, variant)
	exists, err := h.store.Exists(ctx, key)
	if err != nil {
		h.log.Error("artifact lookup failed", "key", key, "error", err.Error())
		httpkit.WriteErr(w, 500, string(errors.CodeInternal), "artifact lookup failed", nil)
		return
	}

	if refresh || !exists {
		enqueued, err := h.enqueueRender(ctx, subject, variant)
		if err != nil {
			if !exists {
				// Nothing to serve and nothing queued. Image consumers
				// cannot render a JSON error, so unauthorized subjects are
				// sent to the install page instead.
				if errors.IsCode(err, errors.CodeAuthorizationRequired) && h.installURL != "" {
					http.Redirect(w, r, h.installURL, http.StatusFound)
					return
				}
				httpkit.WriteError(w, err)
				return
			}
			h.log.Warn("refresh enqueue failed", "subject", subject, "variant", variant, "error", err.Error())
		}
		if !exists {
			httpkit.WriteJSON(w, 202, map[string]any{
				"status": "rendering",
				"jobId":  queue.JobID(subject, variant),
				"queued": enqueued,
			})
			return
		}
	}

	// Serve by redirecting to the public object URL and remember it for
	// the next hour. The store serves the bytes; this API only addresses
	// them.
	url := h.store.PublicURL(key)
	if err := h.urlCache.Set(ctx, subject, variant, url); err != nil {
		h.log.Warn("failed to prime url cache", "key", key, "error", err.Error())
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// enqueueRender gates on the installation directory, then enqueues at
// normal priority. Returns whether a new job was created.
func (h *Handler) enqueueRender(ctx context.Context, subject, variant string) (bool, error) {
	installationID, err := h.installs.Get(ctx, subject)
	if err != nil {
		return false, errors.Wrap(err, "httpapi.enqueue", "failed to look up installation")
	}
	if installationID == 0 {
		return false, errors.AuthorizationRequired(subject, h.installURL)
	}

	job := queue.NewJob(subject, variant, queue.PriorityNormal, installationID, queue.TriggeredByAPI)
	_, created, err := h.queue.Enqueue(ctx, job)
	return created, err
}
