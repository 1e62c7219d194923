package webhooks

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"statscards/internal/imagestore"
	"statscards/internal/installs"
	"statscards/internal/pkg/errors"
	"statscards/internal/pkg/logger"
	"statscards/internal/queue"
	"statscards/internal/urlcache"
	"statscards/internal/variants"
)

type env struct {
	dispatcher *Dispatcher
	installs   *installs.Directory
	queue      *queue.Queue
	store      imagestore.Store
	cache      *urlcache.Cache
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := logger.New(logger.Config{Level: "error", Format: "text"})
	e := &env{
		installs: installs.NewDirectory(rdb),
		queue:    queue.New(rdb, "render-jobs", log, queue.Options{}),
		store:    imagestore.NewLocalFS(t.TempDir(), "http://localhost:9000/github-stats"),
		cache:    urlcache.New(rdb),
	}
	e.dispatcher = NewDispatcher(Deps{
		Installs: e.installs,
		Queue:    e.queue,
		Store:    e.store,
		URLCache: e.cache,
		Log:      log,
	})
	return e
}

func installationPayload(action, login string, id int64) []byte {
	return []byte(fmt.Sprintf(`{
		"action": %q,
		"installation": {"id": %d, "account": {"login": %q}}
	}`, action, id, login))
}

func TestInstallationCreated(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	err := e.dispatcher.Dispatch(ctx, "installation", installationPayload("created", "OctoCat", 555))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	id, err := e.installs.Get(ctx, "octocat")
	if err != nil {
		t.Fatalf("installs.Get: %v", err)
	}
	if id != 555 {
		t.Errorf("installation id = %d, want 555", id)
	}

	// One warmup job per variant, at high priority.
	stats, err := e.queue.GetQueueStats(ctx)
	if err != nil {
		t.Fatalf("GetQueueStats: %v", err)
	}
	if stats.Waiting != int64(len(variants.All)) {
		t.Errorf("waiting = %d, want %d", stats.Waiting, len(variants.All))
	}
	dq, err := e.queue.Dequeue(ctx)
	if err != nil || dq == nil {
		t.Fatalf("Dequeue: %v, %v", dq, err)
	}
	if dq.Job.Priority != queue.PriorityHigh {
		t.Errorf("warmup priority = %s, want high", dq.Job.Priority)
	}
	if dq.Job.InstallationID != 555 {
		t.Errorf("warmup installation id = %d, want 555", dq.Job.InstallationID)
	}
	if dq.Job.TriggeredBy != queue.TriggeredByWebhook {
		t.Errorf("warmup trigger = %s, want webhook", dq.Job.TriggeredBy)
	}
}

func TestInstallationDeleted(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	if err := e.installs.Set(ctx, "octocat", 555); err != nil {
		t.Fatalf("installs.Set: %v", err)
	}
	for _, variant := range []string{"readme-dark-gemini", "top-languages-light"} {
		key := imagestore.ImageKey("octocat", variant)
		if err := e.store.Put(ctx, key, []byte("RIFFWEBP"), nil); err != nil {
			t.Fatalf("store.Put: %v", err)
		}
		if err := e.cache.Set(ctx, "octocat", variant, "http://x/"+key); err != nil {
			t.Fatalf("cache.Set: %v", err)
		}
	}

	err := e.dispatcher.Dispatch(ctx, "installation", installationPayload("deleted", "OctoCat", 555))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if id, _ := e.installs.Get(ctx, "octocat"); id != 0 {
		t.Errorf("installation still present: %d", id)
	}
	keys, err := e.store.ListByPrefix(ctx, imagestore.SubjectPrefix("octocat"))
	if err != nil {
		t.Fatalf("ListByPrefix: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("artifacts survived uninstall: %v", keys)
	}
	if url, _ := e.cache.Get(ctx, "octocat", "readme-dark-gemini"); url != "" {
		t.Errorf("url cache survived uninstall: %q", url)
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	e := newEnv(t)
	if err := e.dispatcher.Dispatch(context.Background(), "push", []byte(`{}`)); err != nil {
		t.Errorf("unknown events must be acknowledged, got %v", err)
	}
}

func TestUnknownActionIgnored(t *testing.T) {
	e := newEnv(t)
	err := e.dispatcher.Dispatch(context.Background(), "installation", installationPayload("renamed", "octocat", 1))
	if err != nil {
		t.Errorf("unknown actions must be acknowledged, got %v", err)
	}
}

func TestMalformedPayload(t *testing.T) {
	e := newEnv(t)
	err := e.dispatcher.Dispatch(context.Background(), "installation", []byte(`{not json`))
	if !errors.IsCode(err, errors.CodeValidation) {
		t.Errorf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestMissingLogin(t *testing.T) {
	e := newEnv(t)
	err := e.dispatcher.Dispatch(context.Background(), "installation", []byte(`{"action":"created","installation":{"id":1}}`))
	if !errors.IsCode(err, errors.CodeValidation) {
		t.Errorf("expected VALIDATION_ERROR, got %v", err)
	}
}
