// Package handlers implements the public HTTP surface: artifact serving,
// render requests, job status, and the GitHub webhook receiver.
package handlers

import (
	"strings"

	"statscards/internal/imagestore"
	"statscards/internal/installs"
	"statscards/internal/pkg/logger"
	"statscards/internal/queue"
	"statscards/internal/urlcache"
	"statscards/internal/webhooks"
)

type Deps struct {
	Queue      *queue.Queue
	Store      imagestore.Store
	URLCache   *urlcache.Cache
	Installs   *installs.Directory
	Dispatcher *webhooks.Dispatcher
	// InstallURL is where unauthorized subjects are sent to install the
	// app.
	InstallURL string
	Log        *logger.Logger
}

type Handler struct {
	queue      *queue.Queue
	store      imagestore.Store
	urlCache   *urlcache.Cache
	installs   *installs.Directory
	dispatcher *webhooks.Dispatcher
	installURL string
	log        *logger.Logger
}

// subjectMaxLen is GitHub's username length cap. Longer values cannot name
// a real subject, so they are rejected before reaching job ids and object
// keys.
const subjectMaxLen = 39

// normalizeSubject lowercases and trims a subject, reporting whether it is
// within bounds.
func normalizeSubject(raw string) (string, bool) {
	subject := strings.ToLower(strings.TrimSpace(raw))
	if subject == "" || len(subject) > subjectMaxLen {
		return "", false
	}
	return subject, true
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		queue:      d.Queue,
		store:      d.Store,
		urlCache:   d.URLCache,
		installs:   d.Installs,
		dispatcher: d.Dispatcher,
		installURL: d.InstallURL,
		log:        log.WithComponent("httpapi"),
	}
}
