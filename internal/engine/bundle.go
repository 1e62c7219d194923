package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"statscards/internal/pkg/logger"
)

// BundleCache memoizes the composition bundle's serve URL so concurrent
// renders share one bundling pass instead of each triggering their own.
type BundleCache struct {
	composer Composer
	prebuilt string
	log      *logger.Logger

	group singleflight.Group

	mu       sync.RWMutex
	serveURL string
}

// NewBundleCache wraps composer. If prebuiltDir is non-empty, bundling is
// skipped entirely and the directory is served as-is.
func NewBundleCache(composer Composer, prebuiltDir string, log *logger.Logger) *BundleCache {
	return &BundleCache{
		composer: composer,
		prebuilt: prebuiltDir,
		log:      log.WithComponent("bundle"),
	}
}

// ServeURL returns the cached serve URL, bundling at most once no matter
// how many renders ask concurrently.
func (b *BundleCache) ServeURL(ctx context.Context) (string, error) {
	if b.prebuilt != "" {
		return b.prebuilt, nil
	}

	b.mu.RLock()
	cached := b.serveURL
	b.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	url, err, _ := b.group.Do("bundle", func() (any, error) {
		b.mu.RLock()
		cached := b.serveURL
		b.mu.RUnlock()
		if cached != "" {
			return cached, nil
		}

		b.log.Info("bundling composition")
		url, err := b.composer.Bundle(ctx)
		if err != nil {
			return "", err
		}

		b.mu.Lock()
		b.serveURL = url
		b.mu.Unlock()
		b.log.Info("composition bundled", "serve_url", url)
		return url, nil
	})
	if err != nil {
		return "", err
	}
	return url.(string), nil
}

// Invalidate drops the cached bundle so the next render rebuilds it.
func (b *BundleCache) Invalidate() {
	b.mu.Lock()
	b.serveURL = ""
	b.mu.Unlock()
}
