package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"statscards/internal/config"
	"statscards/internal/engine"
	"statscards/internal/imagestore"
	"statscards/internal/installs"
	"statscards/internal/pipeline"
	"statscards/internal/pkg/logger"
	"statscards/internal/queue"
	"statscards/internal/stats"
	"statscards/internal/transcode"
	"statscards/internal/urlcache"
	"statscards/internal/worker"
)

func main() {
	log := logger.New(logger.Config{
		Level:       logger.DefaultConfig().Level,
		Format:      logger.DefaultConfig().Format,
		ServiceName: "statscards-worker",
	})

	log.Info("starting statscards worker", "version", "0.1.0")

	cfg, err := config.Load()
	if err != nil {
		log.LogFatal("failed to load configuration", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}

	log.Info("initializing artifact store", "provider", cfg.Storage.Provider)
	store, err := imagestore.NewProvider(imagestore.FactoryOptions{
		Provider:      cfg.Storage.Provider,
		LocalRoot:     cfg.Storage.LocalRoot,
		PublicBaseURL: cfg.PublicURL,
		Minio: imagestore.MinioOptions{
			Endpoint:      cfg.Minio.MinioAddr(),
			AccessKey:     cfg.Minio.AccessKey,
			SecretKey:     cfg.Minio.SecretKey,
			Bucket:        cfg.Minio.Bucket,
			UseSSL:        cfg.Minio.UseSSL,
			PublicBaseURL: cfg.PublicURL,
		},
	})
	if err != nil {
		log.LogFatal("failed to initialize artifact store", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.LogFatal("failed to ensure bucket", err)
	}

	provider, err := stats.NewGitHubProvider(cfg.GitHub.AppID, []byte(cfg.GitHub.PrivateKeyPEM), cfg.GitHub.APIBaseURL)
	if err != nil {
		log.LogFatal("failed to initialize GitHub provider", err)
	}

	composer := engine.NewHTTPComposer(cfg.Render.ComposerURL)
	bundle := engine.NewBundleCache(composer, cfg.Render.PrebuiltBundleDir, log)
	q := queue.New(rdb, cfg.Redis.QueueName, log, queue.Options{})

	// Warm the bundle ahead of the first job; failures here are not fatal,
	// the first render retries the build.
	go func() {
		if _, err := bundle.ServeURL(ctx); err != nil && ctx.Err() == nil {
			log.Warn("bundle pre-warm failed", "error", err.Error())
		}
	}()

	p := pipeline.New(pipeline.Deps{
		Installs:      installs.NewDirectory(rdb),
		Stats:         provider,
		Bundle:        bundle,
		Composer:      composer,
		Transcoder:    transcode.New(cfg.Render.FFmpegPath, cfg.Render.TempDir, cfg.Render.WebPQuality, log),
		Store:         store,
		URLCache:      urlcache.New(rdb),
		TempDir:       cfg.Render.TempDir,
		RenderTimeout: cfg.Render.RenderTimeout(),
		Scale:         cfg.Render.Scale,
		InstallURL:    cfg.GitHub.InstallURL,
		Log:           log,
	})

	err = worker.Run(ctx, worker.Deps{
		Queue:         q,
		Pipeline:      p,
		Concurrency:   cfg.Render.Concurrency,
		RatePerMinute: cfg.Render.RatePerMinute,
		Log:           log,
	})
	if err != nil && err != context.Canceled {
		log.LogFatal("worker stopped unexpectedly", err)
	}
	log.Info("worker stopped")
}
