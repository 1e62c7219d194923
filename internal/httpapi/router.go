package httpapi

import (
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"statscards/internal/httpapi/handlers"
	"statscards/internal/httpkit"
	"statscards/internal/pkg/logger"
	"statscards/internal/pkg/middleware"
)

type Deps = handlers.Deps

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))

	allowedOrigins := envCSV("CORS_ALLOWED_ORIGINS", []string{"*"})
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAgeSeconds:    600,
	}))

	h := handlers.New(d)

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/image/{subject}/{variant}", h.GetImage)
		r.Post("/render", h.PostRender)
		r.Post("/render/bulk", h.PostRenderBulk)
		r.Get("/status/{jobId}", h.GetStatus)
		r.Get("/queue", h.GetQueueStats)
		r.Get("/variants", h.ListVariants)
	})

	r.Post("/webhooks/github", h.PostWebhook)

	return r
}

func envCSV(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
