// Package queue implements the deduplicating, priority-ordered render job
// queue on Redis. All dedup and state-transition logic runs as atomic Lua
// scripts so multiple worker processes stay correct against one shared
// backend.
package queue

import (
	"fmt"
	"time"

	"statscards/internal/variants"
)

// State is the queue-tracked lifecycle of a job.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateDelayed   State = "delayed"
)

// Terminal reports whether no further transitions happen from this state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Priority is a scheduling hint. Lower mapped value is served first.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Value maps a priority to its queue ordering weight.
func (p Priority) Value() int {
	switch p {
	case PriorityHigh:
		return 1
	case PriorityLow:
		return 10
	default:
		return 5
	}
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// TriggeredBy records job provenance. Informational only, no behavioral
// branching.
type TriggeredBy string

const (
	TriggeredByWebhook  TriggeredBy = "webhook"
	TriggeredByAPI      TriggeredBy = "api"
	TriggeredBySchedule TriggeredBy = "schedule"
)

// RenderJob is one request to produce one artifact.
type RenderJob struct {
	ID             string      `json:"id"`
	Subject        string      `json:"subject"`
	Variant        string      `json:"variant"`
	Theme          string      `json:"theme"`
	Priority       Priority    `json:"priority"`
	InstallationID int64       `json:"installationId,omitempty"`
	TriggeredBy    TriggeredBy `json:"triggeredBy"`
	RequestedAt    time.Time   `json:"requestedAt"`
}

// JobID is the deterministic dedup key: at most one non-terminal job exists
// per (subject, variant).
func JobID(subject, variant string) string {
	return fmt.Sprintf("render:%s:%s", subject, variant)
}

// NewJob builds a job with the id and theme derived from its inputs.
func NewJob(subject, variant string, priority Priority, installationID int64, trigger TriggeredBy) RenderJob {
	if !priority.Valid() {
		priority = PriorityNormal
	}
	return RenderJob{
		ID:             JobID(subject, variant),
		Subject:        subject,
		Variant:        variant,
		Theme:          string(variants.ThemeOf(variant)),
		Priority:       priority,
		InstallationID: installationID,
		TriggeredBy:    trigger,
		RequestedAt:    time.Now().UTC(),
	}
}

// RenderResult is the terminal payload attached to a job. Success implies
// the object exists at ImageKey by the time the result is recorded.
type RenderResult struct {
	Success    bool   `json:"success"`
	ImageKey   string `json:"imageKey,omitempty"`
	ImageURL   string `json:"imageUrl,omitempty"`
	Error      string `json:"error,omitempty"`
	RenderedAt int64  `json:"renderedAt"`
	DurationMs int64  `json:"durationMs"`
}

// JobStatus is the read-only projection served to status pollers.
type JobStatus struct {
	JobID        string        `json:"jobId"`
	State        State         `json:"state"`
	Progress     int           `json:"progress"`
	Result       *RenderResult `json:"result,omitempty"`
	FailedReason string        `json:"failedReason,omitempty"`
}

// Stats are the per-state queue counts.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

// DequeuedJob is a job owned by exactly one worker.
type DequeuedJob struct {
	Job RenderJob
	// Attempts counts failures so far; 0 on the first run.
	Attempts int
}
