package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medops-br/triagebot/pkg/config"
	"github.com/medops-br/triagebot/pkg/models"
	"github.com/medops-br/triagebot/pkg/timeutil"
)

// fakeQueue hands out its jobs once and records every outcome call.
type fakeQueue struct {
	mu   sync.Mutex
	jobs []models.Job

	done    []int64
	retries []retryCall
	dead    []deadCall
}

type retryCall struct {
	jobID    int64
	runAfter time.Time
	lastErr  string
}

type deadCall struct {
	jobID   int64
	lastErr string
}

func (q *fakeQueue) ClaimDue(ctx context.Context, limit int) ([]models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, nil
	}
	if limit > len(q.jobs) {
		limit = len(q.jobs)
	}
	claimed := q.jobs[:limit]
	q.jobs = q.jobs[limit:]
	return claimed, nil
}

func (q *fakeQueue) MarkDone(ctx context.Context, jobID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.done = append(q.done, jobID)
	return nil
}

func (q *fakeQueue) ScheduleRetry(ctx context.Context, jobID int64, runAfter time.Time, lastError string) (*models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retries = append(q.retries, retryCall{jobID: jobID, runAfter: runAfter, lastErr: lastError})
	return &models.Job{JobID: jobID, Status: models.JobStatusFailed, LastError: &lastError}, nil
}

func (q *fakeQueue) MarkDead(ctx context.Context, jobID int64, lastError string) (*models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, deadCall{jobID: jobID, lastErr: lastError})
	return &models.Job{JobID: jobID, Status: models.JobStatusDead, LastError: &lastError}, nil
}

// fakeFinalizer records the dead jobs handed to it.
type fakeFinalizer struct {
	mu   sync.Mutex
	seen []models.Job
}

func (f *fakeFinalizer) FinalizeDeadJob(ctx context.Context, job models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, job)
	return nil
}

// fixedClock returns a pinned instant and never actually sleeps.
type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func (c fixedClock) Sleep(ctx context.Context, d time.Duration) error { return nil }

func newTestPool(q JobQueue, handlers map[string]Handler, finalizer Finalizer, clock timeutil.Clock) *Pool {
	return NewPool(q, handlers, finalizer, config.DefaultQueueConfig(), clock, nil)
}

func TestProcessMarksDoneOnSuccess(t *testing.T) {
	ctx := context.Background()
	q := &fakeQueue{}
	var handled []int64
	handlers := map[string]Handler{
		models.JobTypeProcessPdfCase: func(ctx context.Context, job models.Job) error {
			handled = append(handled, job.JobID)
			return nil
		},
	}
	pool := newTestPool(q, handlers, nil, fixedClock{now: time.Now()})

	pool.process(ctx, models.Job{JobID: 7, JobType: models.JobTypeProcessPdfCase, MaxAttempts: 5})

	assert.Equal(t, []int64{7}, handled)
	assert.Equal(t, []int64{7}, q.done)
	assert.Empty(t, q.retries)
	assert.Empty(t, q.dead)
}

func TestProcessSchedulesRetryWithBackoff(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)
	q := &fakeQueue{}
	handlers := map[string]Handler{
		models.JobTypeProcessPdfCase: func(ctx context.Context, job models.Job) error {
			return errors.New("download: media gone")
		},
	}
	pool := newTestPool(q, handlers, nil, fixedClock{now: now})

	pool.process(ctx, models.Job{JobID: 3, JobType: models.JobTypeProcessPdfCase, Attempts: 1, MaxAttempts: 5})

	require.Len(t, q.retries, 1)
	call := q.retries[0]
	assert.Equal(t, int64(3), call.jobID)
	assert.Equal(t, "download: media gone", call.lastErr)

	// The next attempt is number 2, so the delay follows its fixed base
	// plus the deterministic jitter.
	wantDelay, err := timeutil.RetryDelay(2)
	require.NoError(t, err)
	assert.Equal(t, now.Add(wantDelay), call.runAfter)
	assert.Empty(t, q.done)
	assert.Empty(t, q.dead)
}

func TestProcessDeadLettersOnLastAttempt(t *testing.T) {
	ctx := context.Background()
	q := &fakeQueue{}
	finalizer := &fakeFinalizer{}
	handlers := map[string]Handler{
		models.JobTypePostRoom2Widget: func(ctx context.Context, job models.Job) error {
			return errors.New("llm2: provider unavailable")
		},
	}
	pool := newTestPool(q, handlers, finalizer, fixedClock{now: time.Now()})

	caseID := uuid.New()
	pool.process(ctx, models.Job{
		JobID:       9,
		CaseID:      &caseID,
		JobType:     models.JobTypePostRoom2Widget,
		Attempts:    4,
		MaxAttempts: 5,
	})

	require.Len(t, q.dead, 1)
	assert.Equal(t, int64(9), q.dead[0].jobID)
	assert.Equal(t, "llm2: provider unavailable", q.dead[0].lastErr)
	assert.Empty(t, q.retries)

	require.Len(t, finalizer.seen, 1)
	assert.Equal(t, int64(9), finalizer.seen[0].JobID)
	require.NotNil(t, finalizer.seen[0].LastError)
	assert.Equal(t, "llm2: provider unavailable", *finalizer.seen[0].LastError)
}

func TestProcessUnknownJobTypeFailsTheJob(t *testing.T) {
	ctx := context.Background()
	q := &fakeQueue{}
	pool := newTestPool(q, map[string]Handler{}, nil, fixedClock{now: time.Now()})

	pool.process(ctx, models.Job{JobID: 11, JobType: "reticulate_splines", MaxAttempts: 5})

	require.Len(t, q.retries, 1)
	assert.Contains(t, q.retries[0].lastErr, "Unknown job type")
}

func TestProcessRecoversHandlerPanic(t *testing.T) {
	ctx := context.Background()
	q := &fakeQueue{}
	handlers := map[string]Handler{
		models.JobTypeExecuteCleanup: func(ctx context.Context, job models.Job) error {
			panic("nil snapshot")
		},
	}
	pool := newTestPool(q, handlers, nil, fixedClock{now: time.Now()})

	pool.process(ctx, models.Job{JobID: 13, JobType: models.JobTypeExecuteCleanup, MaxAttempts: 5})

	require.Len(t, q.retries, 1)
	assert.Equal(t, int64(13), q.retries[0].jobID)
	assert.Contains(t, q.retries[0].lastErr, "handler panic")
	assert.Contains(t, q.retries[0].lastErr, "nil snapshot")
	assert.Empty(t, q.done)
	assert.Empty(t, q.dead)
}

func TestPoolStartStop(t *testing.T) {
	q := &fakeQueue{jobs: []models.Job{
		{JobID: 1, JobType: models.JobTypeProcessPdfCase, MaxAttempts: 5},
		{JobID: 2, JobType: models.JobTypeProcessPdfCase, MaxAttempts: 5},
	}}
	handled := make(chan int64, 2)
	handlers := map[string]Handler{
		models.JobTypeProcessPdfCase: func(ctx context.Context, job models.Job) error {
			handled <- job.JobID
			return nil
		},
	}
	pool := newTestPool(q, handlers, nil, timeutil.RealClock{})

	pool.Start(context.Background())
	seen := map[int64]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-handled:
			seen[id] = true
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for jobs to be handled")
		}
	}
	pool.Stop()
	pool.Stop() // idempotent

	assert.True(t, seen[1])
	assert.True(t, seen[2])
}

func TestDeriveFailureCause(t *testing.T) {
	tests := []struct {
		lastError string
		want      string
	}{
		{"download: media gone", "download"},
		{"extract: not a pdf", "extract"},
		{"record_extract: no candidates", "record_extract"},
		{"llm1: schema validation failed", "llm1"},
		{"llm2: provider unavailable", "llm2"},
		{"context deadline exceeded", "other"},
		{"", "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DeriveFailureCause(tt.lastError), "last error %q", tt.lastError)
	}
}
