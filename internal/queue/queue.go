package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"statscards/internal/pkg/errors"
	"statscards/internal/pkg/logger"
)

const (
	// DefaultMaxAttempts bounds retries: a job that keeps failing reaches
	// terminal failed after this many total attempts.
	DefaultMaxAttempts = 3
	// DefaultBackoffBase is the first retry delay; subsequent delays double.
	DefaultBackoffBase = 5 * time.Second
	// DefaultStallTimeout is how long an active job may go without a
	// heartbeat before the reaper hands it back to waiting.
	DefaultStallTimeout = 90 * time.Second

	completedRetention = 24 * time.Hour
	completedMaxCount  = 1000
	failedRetention    = 7 * 24 * time.Hour
)

// Queue is the Redis-backed render job queue.
type Queue struct {
	rdb  *redis.Client
	name string
	log  *logger.Logger

	maxAttempts  int
	backoffBase  time.Duration
	stallTimeout time.Duration
}

// Options tune queue behavior; zero values take defaults.
type Options struct {
	MaxAttempts  int
	BackoffBase  time.Duration
	StallTimeout time.Duration
}

// New returns a queue bound to the named key space.
func New(rdb *redis.Client, name string, log *logger.Logger, opts Options) *Queue {
	if log == nil {
		log = logger.NewDefault()
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.StallTimeout == 0 {
		opts.StallTimeout = DefaultStallTimeout
	}
	return &Queue{
		rdb:          rdb,
		name:         name,
		log:          log.WithComponent("queue"),
		maxAttempts:  opts.MaxAttempts,
		backoffBase:  opts.BackoffBase,
		stallTimeout: opts.StallTimeout,
	}
}

func (q *Queue) jobKeyPrefix() string { return q.name + ":job:" }

func (q *Queue) jobKey(id string) string { return q.jobKeyPrefix() + id }

func (q *Queue) waitingKey() string { return q.name + ":waiting" }

func (q *Queue) delayedKey() string { return q.name + ":delayed" }

func (q *Queue) activeKey() string { return q.name + ":active" }

func (q *Queue) completedKey() string { return q.name + ":completed" }

func (q *Queue) failedKey() string { return q.name + ":failed" }

func (q *Queue) seqKey() string { return q.name + ":seq" }

func (q *Queue) pausedKey() string { return q.name + ":paused" }

// Enqueue inserts a job unless one with the same dedup id is already
// waiting, active or delayed. It returns the job id and whether a new job
// was created; when created is false the in-flight job is untouched (no
// priority or data update is applied).
func (q *Queue) Enqueue(ctx context.Context, job RenderJob) (string, bool, error) {
	if job.ID == "" {
		job.ID = JobID(job.Subject, job.Variant)
	}

	data, err := json.Marshal(job)
	if err != nil {
		return "", false, fmt.Errorf("marshal job: %w", err)
	}

	res, err := enqueueScript.Run(ctx, q.rdb,
		[]string{q.jobKey(job.ID), q.waitingKey(), q.completedKey(), q.failedKey(), q.seqKey()},
		job.ID, string(data), job.Priority.Value(), q.maxAttempts, time.Now().UnixMilli(),
	).Int64()
	if err != nil {
		return "", false, fmt.Errorf("enqueue %s: %w", job.ID, err)
	}

	created := res == 1
	if created {
		q.log.Info("job enqueued", "job_id", job.ID, "priority", string(job.Priority))
	} else {
		q.log.Debug("job deduplicated", "job_id", job.ID)
	}
	return job.ID, created, nil
}

// BulkOptions carry shared settings for EnqueueBulk.
type BulkOptions struct {
	Priority       Priority
	InstallationID int64
	TriggeredBy    TriggeredBy
}

// EnqueueBulk enqueues one job per variant. Variants already in flight come
// back deduplicated; that is normal operation, not an error.
func (q *Queue) EnqueueBulk(ctx context.Context, subject string, variantIDs []string, opts BulkOptions) ([]string, error) {
	if opts.TriggeredBy == "" {
		opts.TriggeredBy = TriggeredByAPI
	}

	ids := make([]string, 0, len(variantIDs))
	for _, variant := range variantIDs {
		job := NewJob(subject, variant, opts.Priority, opts.InstallationID, opts.TriggeredBy)
		id, _, err := q.Enqueue(ctx, job)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Dequeue pops the best waiting job, promoting due delayed jobs first.
// Returns nil when nothing is ready or the queue is paused. The queue
// backend guarantees no two workers own the same job id concurrently.
func (q *Queue) Dequeue(ctx context.Context) (*DequeuedJob, error) {
	now := time.Now()
	res, err := dequeueScript.Run(ctx, q.rdb,
		[]string{q.waitingKey(), q.delayedKey(), q.activeKey(), q.pausedKey()},
		q.jobKeyPrefix(), now.UnixMilli(), now.Add(q.stallTimeout).UnixMilli(),
	).Slice()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	if len(res) < 3 {
		return nil, fmt.Errorf("dequeue: unexpected script reply %v", res)
	}

	data, _ := res[1].(string)
	var job RenderJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job data: %w", err)
	}

	attempts := 0
	switch v := res[2].(type) {
	case string:
		attempts, _ = strconv.Atoi(v)
	case int64:
		attempts = int(v)
	}

	return &DequeuedJob{Job: job, Attempts: attempts}, nil
}

// UpdateProgress sets the progress percentage on an active job.
func (q *Queue) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return q.rdb.HSet(ctx, q.jobKey(jobID), "progress", progress).Err()
}

// Heartbeat extends the stall deadline of an active job.
func (q *Queue) Heartbeat(ctx context.Context, jobID string) error {
	return heartbeatScript.Run(ctx, q.rdb,
		[]string{q.activeKey()},
		jobID, time.Now().Add(q.stallTimeout).UnixMilli(),
	).Err()
}

// Complete records a successful terminal result. Callers must only invoke
// this after the artifact upload has finished.
func (q *Queue) Complete(ctx context.Context, jobID string, result RenderResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	err = completeScript.Run(ctx, q.rdb,
		[]string{q.jobKey(jobID), q.activeKey(), q.completedKey()},
		jobID, string(data), time.Now().UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("complete %s: %w", jobID, err)
	}
	q.log.Info("job completed", "job_id", jobID)
	return nil
}

// Fail records a failed attempt. Retryable failures under the attempt
// limit are re-scheduled with exponential backoff; the rest become
// terminal failed with the last error retained.
func (q *Queue) Fail(ctx context.Context, jobID string, result RenderResult, retryable bool) (State, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}

	retryFlag := "0"
	if retryable {
		retryFlag = "1"
	}

	res, err := failScript.Run(ctx, q.rdb,
		[]string{q.jobKey(jobID), q.activeKey(), q.delayedKey(), q.failedKey()},
		jobID, result.Error, time.Now().UnixMilli(), q.backoffBase.Milliseconds(), retryFlag, string(data),
	).Slice()
	if err != nil {
		return "", fmt.Errorf("fail %s: %w", jobID, err)
	}
	if len(res) < 3 {
		return "", fmt.Errorf("fail: unexpected script reply %v", res)
	}

	state := State(res[0].(string))
	if state == StateDelayed {
		q.log.Warn("job scheduled for retry",
			"job_id", jobID,
			"attempts", res[1],
			"delay_ms", res[2],
			"error", result.Error,
		)
	} else {
		q.log.Error("job failed terminally",
			"job_id", jobID,
			"attempts", res[1],
			"error", result.Error,
		)
	}
	return state, nil
}

// GetStatus returns the projection for one job id. Pruned or unknown ids
// yield a JOB_NOT_FOUND error; callers treat that as "unknown, assume
// stale".
func (q *Queue) GetStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	fields, err := q.rdb.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("status %s: %w", jobID, err)
	}
	if len(fields) == 0 {
		return nil, errors.JobNotFound(jobID)
	}

	status := &JobStatus{
		JobID: jobID,
		State: State(fields["state"]),
	}
	status.Progress, _ = strconv.Atoi(fields["progress"])
	status.FailedReason = fields["failed_reason"]

	if raw := fields["result"]; raw != "" {
		var result RenderResult
		if err := json.Unmarshal([]byte(raw), &result); err == nil {
			status.Result = &result
		}
	}
	return status, nil
}

// GetQueueStats returns counts by state.
func (q *Queue) GetQueueStats(ctx context.Context) (*Stats, error) {
	pipe := q.rdb.Pipeline()
	waiting := pipe.ZCard(ctx, q.waitingKey())
	active := pipe.ZCard(ctx, q.activeKey())
	completed := pipe.ZCard(ctx, q.completedKey())
	failed := pipe.ZCard(ctx, q.failedKey())
	delayed := pipe.ZCard(ctx, q.delayedKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return &Stats{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Delayed:   delayed.Val(),
	}, nil
}

// ReclaimStalled hands expired active jobs back to the waiting set. Run
// periodically by workers so jobs owned by a dead process are not lost.
func (q *Queue) ReclaimStalled(ctx context.Context) (int64, error) {
	n, err := reclaimScript.Run(ctx, q.rdb,
		[]string{q.activeKey(), q.waitingKey()},
		q.jobKeyPrefix(), time.Now().UnixMilli(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("reclaim stalled: %w", err)
	}
	if n > 0 {
		q.log.Warn("reclaimed stalled jobs", "count", n)
	}
	return n, nil
}

// Clean applies the retention policy: completed jobs pruned after 24h or
// beyond the last 1000, failed jobs after 7 days. Advisory cleanup, not a
// correctness guarantee.
func (q *Queue) Clean(ctx context.Context) error {
	now := time.Now()

	if err := q.pruneByAge(ctx, q.completedKey(), now.Add(-completedRetention)); err != nil {
		return err
	}
	if err := q.pruneByCount(ctx, q.completedKey(), completedMaxCount); err != nil {
		return err
	}
	return q.pruneByAge(ctx, q.failedKey(), now.Add(-failedRetention))
}

func (q *Queue) pruneByAge(ctx context.Context, setKey string, cutoff time.Time) error {
	ids, err := q.rdb.ZRangeByScore(ctx, setKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return fmt.Errorf("prune by age: %w", err)
	}
	return q.removeJobs(ctx, setKey, ids)
}

func (q *Queue) pruneByCount(ctx context.Context, setKey string, keep int64) error {
	total, err := q.rdb.ZCard(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("prune by count: %w", err)
	}
	if total <= keep {
		return nil
	}
	// Oldest entries sort first; drop everything beyond the newest `keep`.
	ids, err := q.rdb.ZRange(ctx, setKey, 0, total-keep-1).Result()
	if err != nil {
		return fmt.Errorf("prune by count: %w", err)
	}
	return q.removeJobs(ctx, setKey, ids)
}

func (q *Queue) removeJobs(ctx context.Context, setKey string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pipe := q.rdb.Pipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, setKey, id)
		pipe.Del(ctx, q.jobKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove jobs: %w", err)
	}
	q.log.Debug("pruned jobs", "set", setKey, "count", len(ids))
	return nil
}

// Pause stops workers from dequeuing; waiting jobs stay queued.
func (q *Queue) Pause(ctx context.Context) error {
	return q.rdb.Set(ctx, q.pausedKey(), "1", 0).Err()
}

// Resume re-enables dequeuing.
func (q *Queue) Resume(ctx context.Context) error {
	return q.rdb.Del(ctx, q.pausedKey()).Err()
}

// IsPaused reports whether the paused flag is set. The flag lives in Redis
// and survives restarts, so workers check it on startup.
func (q *Queue) IsPaused(ctx context.Context) (bool, error) {
	n, err := q.rdb.Exists(ctx, q.pausedKey()).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
