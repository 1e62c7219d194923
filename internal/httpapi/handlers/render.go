package handlers

import (
	"net/http"

	"statscards/internal/httpkit"
	"statscards/internal/pkg/errors"
	"statscards/internal/queue"
	"statscards/internal/variants"
)

type RenderRequest struct {
	Subject  string `json:"subject"`
	Variant  string `json:"variant"`
	Priority string `json:"priority,omitempty"`
}

// PostRender enqueues a single render. Responds 202 with the job handle;
// a deduplicated request returns the in-flight job's handle unchanged.
func (h *Handler) PostRender(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RenderRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteErr(w, 400, string(errors.CodeValidation), "invalid json body", nil)
		return
	}
	subject, ok := normalizeSubject(req.Subject)
	if !ok {
		httpkit.WriteErr(w, 400, string(errors.CodeValidation), "subject must be 1-39 characters", map[string]any{"field": "subject"})
		return
	}
	if !variants.IsValid(req.Variant) {
		httpkit.WriteError(w, errors.InvalidVariant(req.Variant))
		return
	}

	installationID, err := h.installs.Get(ctx, subject)
	if err != nil {
		httpkit.WriteError(w, errors.Wrap(err, "httpapi.render", "failed to look up installation"))
		return
	}
	if installationID == 0 {
		httpkit.WriteError(w, errors.AuthorizationRequired(subject, h.installURL))
		return
	}

	job := queue.NewJob(subject, req.Variant, queue.Priority(req.Priority), installationID, queue.TriggeredByAPI)
	id, created, err := h.queue.Enqueue(ctx, job)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}

	httpkit.WriteJSON(w, 202, map[string]any{
		"jobId":   id,
		"created": created,
	})
}

type BulkRenderRequest struct {
	Subject  string   `json:"subject"`
	Theme    string   `json:"theme,omitempty"`
	Variants []string `json:"variants,omitempty"`
	Priority string   `json:"priority,omitempty"`
}

// PostRenderBulk enqueues several variants for one subject. Either an
// explicit variant list or a theme selector; an empty request means all
// variants.
func (h *Handler) PostRenderBulk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BulkRenderRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteErr(w, 400, string(errors.CodeValidation), "invalid json body", nil)
		return
	}
	subject, ok := normalizeSubject(req.Subject)
	if !ok {
		httpkit.WriteErr(w, 400, string(errors.CodeValidation), "subject must be 1-39 characters", map[string]any{"field": "subject"})
		return
	}

	ids := req.Variants
	if len(ids) == 0 {
		ids = variants.ByTheme(req.Theme)
	}
	for _, v := range ids {
		if !variants.IsValid(v) {
			httpkit.WriteError(w, errors.InvalidVariant(v))
			return
		}
	}

	installationID, err := h.installs.Get(ctx, subject)
	if err != nil {
		httpkit.WriteError(w, errors.Wrap(err, "httpapi.renderBulk", "failed to look up installation"))
		return
	}
	if installationID == 0 {
		httpkit.WriteError(w, errors.AuthorizationRequired(subject, h.installURL))
		return
	}

	jobIDs, err := h.queue.EnqueueBulk(ctx, subject, ids, queue.BulkOptions{
		Priority:       queue.Priority(req.Priority),
		InstallationID: installationID,
		TriggeredBy:    queue.TriggeredByAPI,
	})
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}

	httpkit.WriteJSON(w, 202, map[string]any{
		"jobIds": jobIDs,
		"count":  len(jobIDs),
	})
}
