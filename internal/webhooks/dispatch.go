// Package webhooks reacts to GitHub App installation lifecycle events,
// keeping the installation directory and rendered artifacts in sync with
// what subjects have actually authorized.
package webhooks

import (
	"context"
	"encoding/json"
	"strings"

	"statscards/internal/imagestore"
	"statscards/internal/installs"
	"statscards/internal/pkg/errors"
	"statscards/internal/pkg/logger"
	"statscards/internal/queue"
	"statscards/internal/urlcache"
	"statscards/internal/variants"
)

// InstallationEvent is the subset of GitHub's installation payload we act
// on.
type InstallationEvent struct {
	Action       string `json:"action"`
	Installation struct {
		ID      int64 `json:"id"`
		Account struct {
			Login string `json:"login"`
		} `json:"account"`
	} `json:"installation"`
}

type Deps struct {
	Installs *installs.Directory
	Queue    *queue.Queue
	Store    imagestore.Store
	URLCache *urlcache.Cache
	Log      *logger.Logger
}

// Dispatcher routes webhook deliveries to their handlers.
type Dispatcher struct {
	installs *installs.Directory
	queue    *queue.Queue
	store    imagestore.Store
	urlCache *urlcache.Cache
	log      *logger.Logger

	handlers map[string]func(ctx context.Context, payload []byte) error
}

func NewDispatcher(d Deps) *Dispatcher {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	disp := &Dispatcher{
		installs: d.Installs,
		queue:    d.Queue,
		store:    d.Store,
		urlCache: d.URLCache,
		log:      log.WithComponent("webhooks"),
	}
	disp.handlers = map[string]func(ctx context.Context, payload []byte) error{
		"installation": disp.handleInstallation,
	}
	return disp
}

// Dispatch handles one delivery. Unrecognized events are acknowledged and
// ignored so GitHub does not retry them.
func (d *Dispatcher) Dispatch(ctx context.Context, event string, payload []byte) error {
	handler, ok := d.handlers[event]
	if !ok {
		d.log.Debug("ignoring webhook event", "event", event)
		return nil
	}
	return handler(ctx, payload)
}

func (d *Dispatcher) handleInstallation(ctx context.Context, payload []byte) error {
	var ev InstallationEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "webhooks.installation", "malformed installation payload")
	}
	subject := strings.ToLower(ev.Installation.Account.Login)
	if subject == "" {
		return errors.New(errors.CodeValidation, "installation payload missing account login")
	}

	log := d.log.WithSubject(subject)
	switch ev.Action {
	case "created", "unsuspend", "new_permissions_accepted":
		return d.activate(ctx, subject, ev.Installation.ID, log)
	case "deleted", "suspend":
		return d.deactivate(ctx, subject, log)
	default:
		log.Debug("ignoring installation action", "action", ev.Action)
		return nil
	}
}

// activate records the installation grant and warms every variant at high
// priority.
func (d *Dispatcher) activate(ctx context.Context, subject string, installationID int64, log *logger.Logger) error {
	if err := d.installs.Set(ctx, subject, installationID); err != nil {
		return errors.Wrap(err, "webhooks.activate", "failed to record installation")
	}
	log.Info("installation recorded", "installation_id", installationID)

	ids, err := d.queue.EnqueueBulk(ctx, subject, variants.All, queue.BulkOptions{
		Priority:       queue.PriorityHigh,
		InstallationID: installationID,
		TriggeredBy:    queue.TriggeredByWebhook,
	})
	if err != nil {
		// The grant is recorded; renders can still happen on demand.
		log.Error("failed to enqueue warmup renders", "error", err.Error(), "enqueued", len(ids))
		return nil
	}
	log.Info("warmup renders enqueued", "count", len(ids))
	return nil
}

// deactivate removes the grant and every artifact derived from it. Cleanup
// failures are logged and swallowed: once the directory entry is gone the
// subject is no longer served, and orphaned objects are harmless.
func (d *Dispatcher) deactivate(ctx context.Context, subject string, log *logger.Logger) error {
	if err := d.installs.Delete(ctx, subject); err != nil {
		return errors.Wrap(err, "webhooks.deactivate", "failed to remove installation")
	}
	log.Info("installation removed")

	keys, err := d.store.ListByPrefix(ctx, imagestore.SubjectPrefix(subject))
	if err != nil {
		log.Error("failed to list artifacts for cleanup", "error", err.Error())
	} else if len(keys) > 0 {
		if err := d.store.DeleteMany(ctx, keys); err != nil {
			log.Error("failed to delete artifacts", "error", err.Error(), "count", len(keys))
		} else {
			log.Info("artifacts deleted", "count", len(keys))
		}
	}

	if err := d.urlCache.InvalidateSubject(ctx, subject); err != nil {
		log.Error("failed to invalidate url cache", "error", err.Error())
	}
	return nil
}
