package worker

import (
	"context"

	"statscards/internal/pipeline"
	"statscards/internal/pkg/logger"
	"statscards/internal/queue"
)

// JobRunner executes one render job. *pipeline.Pipeline is the production
// implementation.
type JobRunner interface {
	Run(ctx context.Context, job queue.RenderJob, report pipeline.ProgressFunc) (*queue.RenderResult, error)
}

type Deps struct {
	Queue    *queue.Queue
	Pipeline JobRunner
	// Concurrency is the number of jobs processed in parallel.
	Concurrency int
	// RatePerMinute caps dequeues across all workers combined. Zero
	// disables the limiter.
	RatePerMinute int
	Log           *logger.Logger
}
