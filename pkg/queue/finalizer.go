package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/medops-br/triagebot/pkg/models"
	"github.com/medops-br/triagebot/pkg/services"
)

// failureCauses are matched against the dead job's last error, most
// specific first so "record_extract" is never shadowed by "extract".
var failureCauses = []string{"download", "record_extract", "extract", "llm1", "llm2"}

// maxFailureDetails bounds the details echoed into the Room-1 failure reply.
const maxFailureDetails = 300

// DeriveFailureCause categorizes a dead job's last error by substring.
func DeriveFailureCause(lastError string) string {
	lowered := strings.ToLower(lastError)
	for _, cause := range failureCauses {
		if strings.Contains(lowered, cause) {
			return cause
		}
	}
	return "other"
}

// CaseFailureFinalizer moves the owning case to FAILED when a job is
// dead-lettered and queues the Room-1 failure reply.
type CaseFailureFinalizer struct {
	db     services.Querier
	cases  *services.CaseStore
	jobs   *services.JobQueue
	audit  *services.AuditStore
	logger *slog.Logger
}

// NewCaseFailureFinalizer creates the finalizer over the shared pool.
func NewCaseFailureFinalizer(db services.Querier, cases *services.CaseStore, jobs *services.JobQueue, audit *services.AuditStore) *CaseFailureFinalizer {
	if db == nil || cases == nil || jobs == nil || audit == nil {
		panic("NewCaseFailureFinalizer: dependencies must not be nil")
	}
	return &CaseFailureFinalizer{
		db:     db,
		cases:  cases,
		jobs:   jobs,
		audit:  audit,
		logger: slog.With("component", "queue"),
	}
}

// FinalizeDeadJob transitions the case to FAILED and enqueues the final
// failure reply carrying the categorized cause and bounded details.
func (f *CaseFailureFinalizer) FinalizeDeadJob(ctx context.Context, job models.Job) error {
	if job.CaseID == nil {
		f.logger.Warn("Dead job has no case, skipping finalization",
			"job_id", job.JobID, "job_type", job.JobType)
		return nil
	}
	caseID := *job.CaseID

	lastError := "unknown error"
	if job.LastError != nil && *job.LastError != "" {
		lastError = *job.LastError
	}
	cause := DeriveFailureCause(lastError)
	details := lastError
	if runes := []rune(details); len(runes) > maxFailureDetails {
		details = string(runes[:maxFailureDetails])
	}

	return services.InTx(ctx, f.db, func(tx pgx.Tx) error {
		cases := f.cases.WithTx(tx)
		jobs := f.jobs.WithTx(tx)
		audit := f.audit.WithTx(tx)

		if _, err := cases.Transition(ctx, caseID, models.CaseStatusFailed); err != nil {
			return fmt.Errorf("transition case to FAILED: %w", err)
		}
		if _, err := audit.Append(ctx, models.AppendAuditEventRequest{
			CaseID:    &caseID,
			ActorType: models.ActorSystem,
			EventType: models.AuditCaseFailedMaxRetries,
			Payload: map[string]any{
				"job_type":   job.JobType,
				"attempts":   job.Attempts,
				"last_error": lastError,
			},
		}); err != nil {
			return fmt.Errorf("append failure audit: %w", err)
		}

		active, err := jobs.HasActiveJob(ctx, caseID, models.JobTypePostRoom1FinalFailure)
		if err != nil {
			return fmt.Errorf("check active failure job: %w", err)
		}
		if active {
			return nil
		}
		if _, err := jobs.Enqueue(ctx, models.EnqueueJobRequest{
			JobType: models.JobTypePostRoom1FinalFailure,
			CaseID:  &caseID,
			Payload: map[string]any{"cause": cause, "details": details},
		}); err != nil {
			return fmt.Errorf("enqueue failure reply job: %w", err)
		}
		if _, err := audit.Append(ctx, models.AppendAuditEventRequest{
			CaseID:    &caseID,
			ActorType: models.ActorSystem,
			EventType: models.AuditJobEnqueuedPostRoom1Failure,
			Payload:   map[string]any{"cause": cause},
		}); err != nil {
			return fmt.Errorf("append enqueue audit: %w", err)
		}
		return nil
	})
}
