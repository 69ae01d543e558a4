package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medops-br/triagebot/pkg/models"
)

const jobColumns = `job_id, case_id, job_type, status, run_after, attempts,
	max_attempts, last_error, payload, created_at, updated_at`

// JobQueue is the durable database-backed work queue. Claims use
// FOR UPDATE SKIP LOCKED so concurrent workers never double-claim a job.
type JobQueue struct {
	db Querier
}

// NewJobQueue creates a pool-bound job queue.
func NewJobQueue(db Querier) *JobQueue {
	if db == nil {
		panic("NewJobQueue: db must not be nil")
	}
	return &JobQueue{db: db}
}

// WithTx returns a copy of the queue bound to the given transaction, so a
// job enqueue can commit atomically with the state change that caused it.
func (q *JobQueue) WithTx(tx pgx.Tx) *JobQueue {
	return &JobQueue{db: tx}
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(
		&j.JobID, &j.CaseID, &j.JobType, &j.Status, &j.RunAfter, &j.Attempts,
		&j.MaxAttempts, &j.LastError, &j.Payload, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Enqueue inserts a queued job. A nil payload is stored as an empty object
// and a zero RunAfter means runnable immediately.
func (q *JobQueue) Enqueue(ctx context.Context, req models.EnqueueJobRequest) (*models.Job, error) {
	if req.JobType == "" {
		return nil, NewValidationError("job_type", "job type is required")
	}
	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = models.DefaultMaxAttempts
	}
	runAfter := time.Now().UTC()
	if req.RunAfter != nil {
		runAfter = *req.RunAfter
	}

	row := q.db.QueryRow(ctx, `
		INSERT INTO jobs (case_id, job_type, status, run_after, max_attempts, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+jobColumns,
		req.CaseID, req.JobType, models.JobStatusQueued, runAfter, maxAttempts, payload,
	)
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job, nil
}

// ClaimDue atomically flips up to limit due jobs from queued to running and
// returns them. The inner SELECT skips rows other workers hold locked, so
// two concurrent claims always come back disjoint.
func (q *JobQueue) ClaimDue(ctx context.Context, limit int) ([]models.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := q.db.Query(ctx, `
		UPDATE jobs SET status = $1, updated_at = now()
		WHERE job_id IN (
			SELECT job_id FROM jobs
			WHERE status = $2 AND run_after <= now()
			ORDER BY run_after, job_id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		models.JobStatusRunning, models.JobStatusQueued, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claimed job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// MarkDone finalizes a successfully handled job.
func (q *JobQueue) MarkDone(ctx context.Context, jobID int64) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE jobs SET status = $2, updated_at = now()
		WHERE job_id = $1 AND status NOT IN ($3, $4)`,
		jobID, models.JobStatusDone, models.JobStatusDone, models.JobStatusDead,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job done: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return q.terminalMismatch(ctx, jobID)
	}
	return nil
}

// MarkFailed finalizes a job that must not retry, without dead-lettering it.
func (q *JobQueue) MarkFailed(ctx context.Context, jobID int64, lastError string) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE jobs SET status = $2, last_error = $3, updated_at = now()
		WHERE job_id = $1 AND status NOT IN ($4, $5)`,
		jobID, models.JobStatusFailed, lastError, models.JobStatusDone, models.JobStatusDead,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return q.terminalMismatch(ctx, jobID)
	}
	return nil
}

// MarkDead dead-letters a job whose retry budget ran out. The final failed
// attempt is counted here so the dead row reflects the total tries.
func (q *JobQueue) MarkDead(ctx context.Context, jobID int64, lastError string) (*models.Job, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE jobs
		SET status = $2, attempts = attempts + 1, last_error = $3, updated_at = now()
		WHERE job_id = $1 AND status NOT IN ($4, $5)
		RETURNING `+jobColumns,
		jobID, models.JobStatusDead, lastError, models.JobStatusDone, models.JobStatusDead,
	)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, q.terminalMismatch(ctx, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark job dead: %w", err)
	}
	return job, nil
}

// ScheduleRetry re-queues a failed attempt: bumps the attempt counter,
// records the error, and pushes run_after out by the backoff delay.
func (q *JobQueue) ScheduleRetry(ctx context.Context, jobID int64, runAfter time.Time, lastError string) (*models.Job, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE jobs
		SET status = $2, attempts = attempts + 1, run_after = $3, last_error = $4, updated_at = now()
		WHERE job_id = $1 AND status NOT IN ($5, $6)
		RETURNING `+jobColumns,
		jobID, models.JobStatusQueued, runAfter, lastError, models.JobStatusDone, models.JobStatusDead,
	)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, q.terminalMismatch(ctx, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to schedule retry: %w", err)
	}
	return job, nil
}

// terminalMismatch distinguishes a missing job from one already finalized,
// since done and dead rows must never change status again.
func (q *JobQueue) terminalMismatch(ctx context.Context, jobID int64) error {
	var status models.JobStatus
	err := q.db.QueryRow(ctx, `SELECT status FROM jobs WHERE job_id = $1`, jobID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: job %d", ErrNotFound, jobID)
	}
	if err != nil {
		return fmt.Errorf("failed to check job status: %w", err)
	}
	return fmt.Errorf("%w: job %d is %s", ErrWrongState, jobID, status)
}

// HasActiveJob reports whether the case already has a queued or running job
// of the given type. The recovery scan and decision flow use this to avoid
// enqueueing duplicates.
func (q *JobQueue) HasActiveJob(ctx context.Context, caseID uuid.UUID, jobType string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM jobs
			WHERE case_id = $1 AND job_type = $2 AND status IN ($3, $4)
		)`,
		caseID, jobType, models.JobStatusQueued, models.JobStatusRunning,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check active jobs: %w", err)
	}
	return exists, nil
}

// ResetOrphanedRunning flips every running job back to queued. Called once
// at startup: any job still marked running was orphaned by a previous
// process that died mid-handler.
func (q *JobQueue) ResetOrphanedRunning(ctx context.Context) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE jobs SET status = $1, updated_at = now() WHERE status = $2`,
		models.JobStatusQueued, models.JobStatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset orphaned jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Get loads one job by id.
func (q *JobQueue) Get(ctx context.Context, jobID int64) (*models.Job, error) {
	row := q.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: job %d", ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	return job, nil
}

// CountByStatus returns the queue depth per status for metrics export.
func (q *JobQueue) CountByStatus(ctx context.Context) (map[models.JobStatus]int64, error) {
	rows, err := q.db.Query(ctx, `SELECT status, count(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int64)
	for rows.Next() {
		var (
			status models.JobStatus
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// ListDead returns dead-lettered jobs, newest first, for the admin surface.
func (q *JobQueue) ListDead(ctx context.Context, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.db.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = $1 ORDER BY updated_at DESC LIMIT $2`,
		models.JobStatusDead, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}
