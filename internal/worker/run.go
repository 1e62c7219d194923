package worker

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"statscards/internal/pkg/errors"
	"statscards/internal/pkg/logger"
	"statscards/internal/queue"
)

const (
	pollInterval      = time.Second
	heartbeatInterval = 15 * time.Second
	reclaimInterval   = 30 * time.Second
	cleanInterval     = 10 * time.Minute
	statsInterval     = 10 * time.Second
)

// Run drives the worker pool until ctx is canceled. It always returns
// ctx.Err(); individual job failures are recorded on the queue, not
// propagated.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	if d.Concurrency <= 0 {
		d.Concurrency = 1
	}

	// The paused flag survives restarts; a fresh worker should drain.
	if paused, err := d.Queue.IsPaused(ctx); err == nil && paused {
		log.Warn("queue was paused, resuming")
		if err := d.Queue.Resume(ctx); err != nil {
			log.Error("failed to resume queue", "error", err.Error())
		}
	}

	var limiter *rate.Limiter
	if d.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(d.RatePerMinute)), 1)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		maintenanceLoop(ctx, d, log)
	}()

	log.Info("worker pool starting", "concurrency", d.Concurrency, "rate_per_minute", d.RatePerMinute)
	for i := 0; i < d.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			workerLoop(ctx, d, limiter, log.WithWorker(slot))
		}(i)
	}

	wg.Wait()
	log.Info("worker pool stopped")
	return ctx.Err()
}

func workerLoop(ctx context.Context, d Deps, limiter *rate.Limiter, log *logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		dq, err := d.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("dequeue error, retrying", "error", err.Error())
			sleep(ctx, pollInterval)
			continue
		}
		if dq == nil {
			sleep(ctx, pollInterval)
			continue
		}

		// The limiter paces render starts; empty polls must not spend
		// the budget.
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				// The popped job comes back through the stall reaper.
				return
			}
		}

		processJob(ctx, d, *dq, log)
	}
}

func processJob(ctx context.Context, d Deps, dq queue.DequeuedJob, log *logger.Logger) {
	job := dq.Job
	jobCtx := logger.ContextWithJobID(ctx, job.ID)
	jobLog := log.WithJobID(job.ID).WithSubject(job.Subject)

	jobLog.Info("processing job", "variant", job.Variant, "attempt", dq.Attempts+1)
	start := time.Now()

	// Heartbeat while the render runs so the reaper leaves us alone.
	hbCtx, stopHeartbeat := context.WithCancel(jobCtx)
	defer stopHeartbeat()
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := d.Queue.Heartbeat(hbCtx, job.ID); err != nil && hbCtx.Err() == nil {
					jobLog.Warn("heartbeat failed", "error", err.Error())
				}
			}
		}
	}()

	result, err := d.Pipeline.Run(jobCtx, job, func(progress int) {
		_ = d.Queue.UpdateProgress(jobCtx, job.ID, progress)
	})
	stopHeartbeat()
	elapsed := time.Since(start)

	if err != nil {
		failure := queue.RenderResult{
			Success:    false,
			Error:      err.Error(),
			RenderedAt: time.Now().Unix(),
			DurationMs: elapsed.Milliseconds(),
		}
		// Queue bookkeeping must survive job-context cancellation.
		state, failErr := d.Queue.Fail(context.WithoutCancel(ctx), job.ID, failure, errors.Retryable(err))
		if failErr != nil {
			jobLog.Error("failed to record job failure", "error", failErr.Error())
			return
		}
		jobLog.Warn("job failed",
			"state", string(state),
			"error", err.Error(),
			"duration_ms", elapsed.Milliseconds(),
		)
		return
	}

	if err := d.Queue.Complete(context.WithoutCancel(ctx), job.ID, *result); err != nil {
		jobLog.Error("failed to record job completion", "error", err.Error())
		return
	}
	jobLog.Info("job completed", "image_key", result.ImageKey, "duration_ms", elapsed.Milliseconds())
}

// maintenanceLoop reclaims stalled jobs, prunes terminal ones, and logs
// queue depth.
func maintenanceLoop(ctx context.Context, d Deps, log *logger.Logger) {
	reclaim := time.NewTicker(reclaimInterval)
	defer reclaim.Stop()
	clean := time.NewTicker(cleanInterval)
	defer clean.Stop()
	stats := time.NewTicker(statsInterval)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reclaim.C:
			if _, err := d.Queue.ReclaimStalled(ctx); err != nil && ctx.Err() == nil {
				log.Warn("reclaim failed", "error", err.Error())
			}
		case <-clean.C:
			if err := d.Queue.Clean(ctx); err != nil && ctx.Err() == nil {
				log.Warn("clean failed", "error", err.Error())
			}
		case <-stats.C:
			s, err := d.Queue.GetQueueStats(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("stats failed", "error", err.Error())
				}
				continue
			}
			log.Info("queue depth",
				"waiting", s.Waiting,
				"active", s.Active,
				"delayed", s.Delayed,
				"completed", s.Completed,
				"failed", s.Failed,
			)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
