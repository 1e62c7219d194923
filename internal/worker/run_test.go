package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"statscards/internal/pipeline"
	"statscards/internal/pkg/errors"
	"statscards/internal/pkg/logger"
	"statscards/internal/queue"
)

type fakeRunner struct {
	runs atomic.Int32
	err  error
}

func (f *fakeRunner) Run(ctx context.Context, job queue.RenderJob, report pipeline.ProgressFunc) (*queue.RenderResult, error) {
	f.runs.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if report != nil {
		report(30)
		report(90)
	}
	return &queue.RenderResult{
		Success:  true,
		ImageKey: "images/" + job.Subject + "/" + job.Variant + ".webp",
	}, nil
}

func testDeps(t *testing.T, runner JobRunner) (Deps, *queue.Queue) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := logger.New(logger.Config{Level: "error", Format: "text"})
	q := queue.New(rdb, "render-jobs", log, queue.Options{})
	return Deps{
		Queue:       q,
		Pipeline:    runner,
		Concurrency: 2,
		Log:         log,
	}, q
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestRunProcessesJobs(t *testing.T) {
	runner := &fakeRunner{}
	d, q := testDeps(t, runner)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, subject := range []string{"alice", "bob", "carol"} {
		job := queue.NewJob(subject, "readme-dark-gemini", queue.PriorityNormal, 1, queue.TriggeredByAPI)
		if _, _, err := q.Enqueue(ctx, job); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	done := make(chan error, 1)
	go func() { done <- Run(ctx, d) }()

	waitFor(t, 5*time.Second, func() bool {
		s, err := q.GetQueueStats(context.Background())
		return err == nil && s.Completed == 3
	})

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
	if got := runner.runs.Load(); got != 3 {
		t.Errorf("pipeline ran %d times, want 3", got)
	}
}

func TestRunRecordsNonRetryableFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.AuthorizationRequired("alice", "")}
	d, q := testDeps(t, runner)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job := queue.NewJob("alice", "readme-dark-gemini", queue.PriorityNormal, 0, queue.TriggeredByAPI)
	if _, _, err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- Run(ctx, d) }()

	// Non-retryable errors go terminal on the first attempt.
	waitFor(t, 5*time.Second, func() bool {
		status, err := q.GetStatus(context.Background(), job.ID)
		return err == nil && status.State == queue.StateFailed
	})

	cancel()
	<-done
	if got := runner.runs.Load(); got != 1 {
		t.Errorf("pipeline ran %d times, want 1 (no retries)", got)
	}
}

func TestRunRetriesRetryableFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New(errors.CodeStatsFetchFailed, "rate limited")}
	d, q := testDeps(t, runner)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job := queue.NewJob("alice", "readme-dark-gemini", queue.PriorityNormal, 1, queue.TriggeredByAPI)
	if _, _, err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- Run(ctx, d) }()

	// First failure schedules a retry rather than going terminal.
	waitFor(t, 5*time.Second, func() bool {
		s, err := q.GetQueueStats(context.Background())
		return err == nil && s.Delayed == 1
	})

	cancel()
	<-done
}

func TestRunRateLimitIgnoresEmptyPolls(t *testing.T) {
	runner := &fakeRunner{}
	d, q := testDeps(t, runner)
	d.Concurrency = 1
	d.RatePerMinute = 1
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Run(ctx, d) }()

	// Idle polls must not spend the single token per minute: a job
	// enqueued after an idle stretch still starts promptly.
	time.Sleep(1200 * time.Millisecond)
	job := queue.NewJob("alice", "readme-dark-gemini", queue.PriorityNormal, 1, queue.TriggeredByAPI)
	if _, _, err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		s, err := q.GetQueueStats(context.Background())
		return err == nil && s.Completed == 1
	})

	cancel()
	<-done
}

func TestRunResumesPausedQueue(t *testing.T) {
	runner := &fakeRunner{}
	d, q := testDeps(t, runner)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	job := queue.NewJob("alice", "readme-dark-gemini", queue.PriorityNormal, 1, queue.TriggeredByAPI)
	if _, _, err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- Run(ctx, d) }()

	waitFor(t, 5*time.Second, func() bool {
		s, err := q.GetQueueStats(context.Background())
		return err == nil && s.Completed == 1
	})

	cancel()
	<-done
}
