// Package pipeline runs one render job end to end: authorization check,
// stats fetch, composition render, WebP transcode, object upload.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"statscards/internal/engine"
	"statscards/internal/imagestore"
	"statscards/internal/installs"
	"statscards/internal/pkg/errors"
	"statscards/internal/pkg/logger"
	"statscards/internal/queue"
	"statscards/internal/stats"
	"statscards/internal/urlcache"
)

// Transcoder converts a rendered video into the final image artifact. The
// implementation owns cleanup of the input file.
type Transcoder interface {
	VideoToWebP(ctx context.Context, inputPath string) (string, error)
}

// Progress checkpoints reported back to the queue as stages finish.
const (
	progressStatsFetched = 30
	progressRendered     = 90
)

// ProgressFunc receives stage checkpoints. Reporting failures are not the
// pipeline's problem; implementations should swallow them.
type ProgressFunc func(progress int)

type Deps struct {
	Installs   *installs.Directory
	Stats      stats.Provider
	Bundle     *engine.BundleCache
	Composer   engine.Composer
	Transcoder Transcoder
	Store      imagestore.Store
	URLCache   *urlcache.Cache
	TempDir    string
	// RenderTimeout bounds the composition render stage only, not the
	// whole job.
	RenderTimeout time.Duration
	Scale         float64
	// InstallURL is surfaced in authorization-required errors so callers
	// can point the subject at the app install page.
	InstallURL string
	Log        *logger.Logger
}

// Pipeline renders jobs. Safe for concurrent use.
type Pipeline struct {
	installs      *installs.Directory
	stats         stats.Provider
	bundle        *engine.BundleCache
	composer      engine.Composer
	transcoder    Transcoder
	store         imagestore.Store
	urlCache      *urlcache.Cache
	tempDir       string
	renderTimeout time.Duration
	scale         float64
	installURL    string
	log           *logger.Logger
}

func New(d Deps) *Pipeline {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	if d.RenderTimeout == 0 {
		d.RenderTimeout = time.Minute
	}
	return &Pipeline{
		installs:      d.Installs,
		stats:         d.Stats,
		bundle:        d.Bundle,
		composer:      d.Composer,
		transcoder:    d.Transcoder,
		store:         d.Store,
		urlCache:      d.URLCache,
		tempDir:       d.TempDir,
		renderTimeout: d.RenderTimeout,
		scale:         d.Scale,
		installURL:    d.InstallURL,
		log:           log.WithComponent("pipeline"),
	}
}

// Run executes one job. On success the artifact is uploaded and publicly
// addressable before Run returns; the returned result carries its key and
// URL. Errors come back coded so the caller can decide retryability.
func (p *Pipeline) Run(ctx context.Context, job queue.RenderJob, report ProgressFunc) (*queue.RenderResult, error) {
	log := p.log.WithJobID(job.ID).WithSubject(job.Subject)
	start := time.Now()
	if report == nil {
		report = func(int) {}
	}

	// 1. Authorization gate. No installation means the subject never
	// authorized us; rendering would leak stats we have no grant for.
	installationID := job.InstallationID
	if installationID == 0 {
		id, err := p.installs.Get(ctx, job.Subject)
		if err != nil {
			return nil, errors.Wrap(err, "pipeline.auth", "failed to look up installation")
		}
		installationID = id
	}
	if installationID == 0 {
		return nil, errors.AuthorizationRequired(job.Subject, p.installURL)
	}

	// 2. Fetch stats.
	log.Debug("fetching user stats", "installation_id", installationID)
	userStats, err := p.stats.FetchUserStats(ctx, installationID, job.Subject)
	if err != nil {
		return nil, err
	}
	report(progressStatsFetched)

	// 3. Render the composition to MP4 under its own deadline.
	videoPath, err := p.render(ctx, job, userStats)
	if err != nil {
		return nil, err
	}
	report(progressRendered)

	// 4. Transcode MP4 to animated WebP. The transcoder owns removal of
	// the input video.
	imagePath, err := p.transcoder.VideoToWebP(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	defer os.Remove(imagePath)

	// 5. Upload. Success is only recorded once the object is in place.
	key, url, err := p.upload(ctx, job, imagePath)
	if err != nil {
		return nil, err
	}

	if p.urlCache != nil {
		if err := p.urlCache.Set(ctx, job.Subject, job.Variant, url); err != nil {
			log.Warn("failed to prime url cache", "error", err)
		}
	}

	log.Info("render finished",
		"variant", job.Variant,
		"image_key", key,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &queue.RenderResult{
		Success:    true,
		ImageKey:   key,
		ImageURL:   url,
		RenderedAt: time.Now().Unix(),
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

func (p *Pipeline) render(ctx context.Context, job queue.RenderJob, userStats *stats.UserStats) (string, error) {
	serveURL, err := p.bundle.ServeURL(ctx)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(p.tempDir, 0o755); err != nil {
		return "", errors.WrapWithCode(err, errors.CodeRenderEngine, "pipeline.render", "failed to create temp dir")
	}
	outputPath := filepath.Join(p.tempDir, fmt.Sprintf("%d-%s.mp4", time.Now().UnixNano(), uuid.NewString()))

	renderCtx, cancel := context.WithTimeout(ctx, p.renderTimeout)
	defer cancel()

	_, err = p.composer.Render(renderCtx, engine.RenderRequest{
		ServeURL:   serveURL,
		Variant:    job.Variant,
		Subject:    job.Subject,
		Stats:      userStats,
		Scale:      p.scale,
		OutputPath: outputPath,
	})
	if err != nil {
		os.Remove(outputPath)
		if renderCtx.Err() == context.DeadlineExceeded {
			return "", errors.Newf(errors.CodeRenderTimeout, "render of %s exceeded %s", job.Variant, p.renderTimeout)
		}
		return "", err
	}
	return outputPath, nil
}

func (p *Pipeline) upload(ctx context.Context, job queue.RenderJob, imagePath string) (string, string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", "", errors.WrapWithCode(err, errors.CodeUploadFailed, "pipeline.upload", "failed to read rendered image")
	}

	key := imagestore.ImageKey(job.Subject, job.Variant)
	metadata := map[string]string{
		"subject":     job.Subject,
		"variant":     job.Variant,
		"theme":       job.Theme,
		"rendered-at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := p.store.Put(ctx, key, data, metadata); err != nil {
		return "", "", errors.WrapWithCode(err, errors.CodeUploadFailed, "pipeline.upload",
			fmt.Sprintf("failed to upload %s", key))
	}
	return key, p.store.PublicURL(key), nil
}
