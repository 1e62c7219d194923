// Package engine drives the headless composition renderer that turns user
// stats into short MP4 clips. The renderer runs as a sidecar service sharing
// a scratch volume with the worker.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"statscards/internal/pkg/errors"
	"statscards/internal/stats"
)

// RenderRequest describes one composition render.
type RenderRequest struct {
	// ServeURL points at the bundled composition assets.
	ServeURL string `json:"serveUrl"`
	// Variant is the composition id to render.
	Variant string `json:"compositionId"`
	Subject string `json:"subject"`
	// Stats are passed to the composition as input props.
	Stats *stats.UserStats `json:"stats"`
	// Scale multiplies the composition's base resolution. Zero means 1.
	Scale float64 `json:"scale,omitempty"`
	// OutputPath is where the renderer writes the MP4, on the shared volume.
	OutputPath string `json:"outputPath"`
}

// RenderOutput carries metadata about a finished render.
type RenderOutput struct {
	DurationFrames int `json:"durationInFrames"`
	FPS            int `json:"fps"`
}

// Composer produces composition bundles and renders them to video.
type Composer interface {
	// Bundle prepares the composition assets and returns a serve URL.
	Bundle(ctx context.Context) (string, error)
	// Render renders one variant to req.OutputPath.
	Render(ctx context.Context, req RenderRequest) (*RenderOutput, error)
}

// HTTPComposer talks to the renderer sidecar over HTTP.
type HTTPComposer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPComposer returns a composer bound to the sidecar at baseURL. The
// client timeout is generous; per-job deadlines come from the caller's
// context.
func NewHTTPComposer(baseURL string) *HTTPComposer {
	return &HTTPComposer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Minute},
	}
}

func (c *HTTPComposer) Bundle(ctx context.Context) (string, error) {
	var out struct {
		ServeURL string `json:"serveUrl"`
	}
	if err := c.post(ctx, "/bundle", struct{}{}, &out); err != nil {
		return "", errors.WrapWithCode(err, errors.CodeRenderEngine, "engine.Bundle", "failed to bundle composition")
	}
	if out.ServeURL == "" {
		return "", errors.New(errors.CodeRenderEngine, "bundle returned empty serve URL")
	}
	return out.ServeURL, nil
}

func (c *HTTPComposer) Render(ctx context.Context, req RenderRequest) (*RenderOutput, error) {
	var out RenderOutput
	if err := c.post(ctx, "/render", req, &out); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeRenderEngine, "engine.Render",
			fmt.Sprintf("failed to render %s for %s", req.Variant, req.Subject))
	}
	return &out, nil
}

func (c *HTTPComposer) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("composer http %d: %s", res.StatusCode, bytes.TrimSpace(msg))
	}
	return json.NewDecoder(res.Body).Decode(out)
}
