// Package queue is the worker runtime: a pool of pollers that claim due
// jobs from the durable queue, dispatch them to per-type handlers, and
// apply the retry/dead-letter policy.
package queue

import (
	"context"
	"time"

	"github.com/medops-br/triagebot/pkg/models"
)

// Handler processes one claimed job. A nil return marks the job done; an
// error schedules a retry or, once the attempt budget is spent,
// dead-letters the job and runs the failure finalizer.
type Handler func(ctx context.Context, job models.Job) error

// JobQueue is the slice of the durable queue the pool drives.
type JobQueue interface {
	ClaimDue(ctx context.Context, limit int) ([]models.Job, error)
	MarkDone(ctx context.Context, jobID int64) error
	ScheduleRetry(ctx context.Context, jobID int64, runAfter time.Time, lastError string) (*models.Job, error)
	MarkDead(ctx context.Context, jobID int64, lastError string) (*models.Job, error)
}

// Finalizer reacts to a dead-lettered job (case → FAILED plus the final
// failure reply).
type Finalizer interface {
	FinalizeDeadJob(ctx context.Context, job models.Job) error
}
