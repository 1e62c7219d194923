package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"statscards/internal/config"
	"statscards/internal/httpapi"
	"statscards/internal/imagestore"
	"statscards/internal/installs"
	"statscards/internal/pkg/logger"
	"statscards/internal/pkg/shutdown"
	"statscards/internal/queue"
	"statscards/internal/urlcache"
	"statscards/internal/webhooks"
)

func main() {
	log := logger.New(logger.Config{
		Level:       logger.DefaultConfig().Level,
		Format:      logger.DefaultConfig().Format,
		ServiceName: "statscards-api",
	})

	log.Info("starting statscards API", "version", "0.1.0")

	cfg, err := config.Load()
	if err != nil {
		log.LogFatal("failed to load configuration", err)
	}

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	// Redis backs the queue, the installation directory, and the URL cache.
	log.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	shutdownMgr.Register("redis", func(ctx context.Context) error {
		return rdb.Close()
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}
	log.Info("Redis connected")

	log.Info("initializing artifact store", "provider", cfg.Storage.Provider)
	store, err := imagestore.NewProvider(storeOptions(cfg))
	if err != nil {
		log.LogFatal("failed to initialize artifact store", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.LogFatal("failed to ensure bucket", err)
	}
	log.Info("artifact store ready")

	q := queue.New(rdb, cfg.Redis.QueueName, log, queue.Options{})
	directory := installs.NewDirectory(rdb)
	cache := urlcache.New(rdb)

	router := httpapi.NewRouter(httpapi.Deps{
		Queue:    q,
		Store:    store,
		URLCache: cache,
		Installs: directory,
		Dispatcher: webhooks.NewDispatcher(webhooks.Deps{
			Installs: directory,
			Queue:    q,
			Store:    store,
			URLCache: cache,
			Log:      log,
		}),
		InstallURL: cfg.GitHub.InstallURL,
		Log:        log,
	})

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	shutdownMgr.Wait()
}

func storeOptions(cfg *config.Config) imagestore.FactoryOptions {
	return imagestore.FactoryOptions{
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
	}
}
