package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/medops-br/triagebot/pkg/models"
)

// RecoveryService re-arms the pipeline after a restart: orphaned running
// jobs go back to queued, and every non-terminal case without an active
// continuation job gets one. Runs once, before the worker pool starts.
type RecoveryService struct {
	cases  *CaseStore
	jobs   *JobQueue
	audit  *AuditStore
	logger *slog.Logger
}

// NewRecoveryService creates the startup recovery pass.
func NewRecoveryService(cases *CaseStore, jobs *JobQueue, audit *AuditStore) *RecoveryService {
	if cases == nil || jobs == nil || audit == nil {
		panic("NewRecoveryService: all dependencies must be non-nil")
	}
	return &RecoveryService{
		cases:  cases,
		jobs:   jobs,
		audit:  audit,
		logger: slog.With("component", "recovery"),
	}
}

// Run resets orphaned jobs and enqueues missing continuation jobs.
// Returns how many cases were scanned and how many jobs were enqueued.
func (s *RecoveryService) Run(ctx context.Context) (scanned, enqueued int, err error) {
	reset, err := s.jobs.ResetOrphanedRunning(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("reset orphaned jobs: %w", err)
	}
	if reset > 0 {
		s.logger.InfoContext(ctx, "Reset orphaned running jobs", "count", reset)
	}

	cases, err := s.cases.ListNonTerminal(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list non-terminal cases: %w", err)
	}

	for i := range cases {
		c := &cases[i]
		scanned++
		jobType, payload := continuationJob(c)
		if jobType == "" {
			continue
		}
		active, err := s.jobs.HasActiveJob(ctx, c.CaseID, jobType)
		if err != nil {
			return scanned, enqueued, err
		}
		if active {
			continue
		}
		if _, err := s.jobs.Enqueue(ctx, models.EnqueueJobRequest{
			JobType: jobType,
			CaseID:  &c.CaseID,
			Payload: payload,
		}); err != nil {
			return scanned, enqueued, fmt.Errorf("enqueue recovery %s: %w", jobType, err)
		}
		if _, err := s.audit.Append(ctx, models.AppendAuditEventRequest{
			CaseID:    &c.CaseID,
			ActorType: models.ActorSystem,
			EventType: models.AuditRecoveryJobEnqueued,
			Payload:   map[string]any{"status": string(c.Status), "job_type": jobType},
		}); err != nil {
			return scanned, enqueued, err
		}
		enqueued++
		s.logger.InfoContext(ctx, "Recovery job enqueued",
			"case_id", c.CaseID, "status", c.Status, "job_type", jobType)
	}
	return scanned, enqueued, nil
}

// continuationJob maps a stranded case status to the job that resumes it.
// An empty job type means the case is waiting on a human and needs nothing.
func continuationJob(c *models.Case) (jobType string, payload map[string]any) {
	switch c.Status {
	case models.CaseStatusNew, models.CaseStatusPdfExtracted:
		return models.JobTypeProcessPdfCase, nil
	case models.CaseStatusLlmSuggest, models.CaseStatusR2PostWidget:
		// The widget handler finishes the suggestion stage itself when it
		// finds a case still in LLM_SUGGEST.
		return models.JobTypePostRoom2Widget, nil
	case models.CaseStatusDoctorAccepted, models.CaseStatusR3PostRequest:
		return models.JobTypePostRoom3Request, nil
	case models.CaseStatusDoctorDenied:
		return models.JobTypePostRoom1FinalDenialTriage, nil
	case models.CaseStatusApptConfirmed:
		return models.JobTypePostRoom1FinalAppt, nil
	case models.CaseStatusApptDenied:
		return models.JobTypePostRoom1FinalApptDenied, nil
	case models.CaseStatusFailed:
		return models.JobTypePostRoom1FinalFailure, map[string]any{
			"cause":   "other",
			"details": "recovery enqueued missing failure finalization job",
		}
	case models.CaseStatusWaitR1CleanupThumbs:
		// Only when the thumbs already landed but cleanup never finished.
		if c.CleanupTriggeredAt != nil && c.CleanupCompletedAt == nil {
			return models.JobTypeExecuteCleanup, nil
		}
		return "", nil
	case models.CaseStatusCleanupRunning:
		return models.JobTypeExecuteCleanup, nil
	default:
		return "", nil
	}
}
