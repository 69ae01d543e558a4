package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus tracks a queued unit of work through its lifecycle.
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
	JobStatusDead    JobStatus = "dead"
)

// Job type vocabulary. Payload keys are lower_snake JSON.
const (
	JobTypeProcessPdfCase             = "process_pdf_case"
	JobTypePostRoom2Widget            = "post_room2_widget"
	JobTypePostRoom3Request           = "post_room3_request"
	JobTypePostRoom1FinalDenialTriage = "post_room1_final_denial_triage"
	JobTypePostRoom1FinalAppt         = "post_room1_final_appt"
	JobTypePostRoom1FinalApptDenied   = "post_room1_final_appt_denied"
	JobTypePostRoom1FinalFailure      = "post_room1_final_failure"
	JobTypeExecuteCleanup             = "execute_cleanup"
	JobTypePostRoom4Summary           = "post_room4_summary"
)

// DefaultMaxAttempts is applied when an enqueue request does not set one.
const DefaultMaxAttempts = 5

// Job is one durable queue row.
type Job struct {
	JobID       int64          `json:"job_id"`
	CaseID      *uuid.UUID     `json:"case_id,omitempty"`
	JobType     string         `json:"job_type"`
	Status      JobStatus      `json:"status"`
	RunAfter    time.Time      `json:"run_after"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	LastError   *string        `json:"last_error,omitempty"`
	Payload     map[string]any `json:"payload"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// EnqueueJobRequest contains fields for inserting a queued job.
type EnqueueJobRequest struct {
	JobType     string         `json:"job_type"`
	CaseID      *uuid.UUID     `json:"case_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	RunAfter    *time.Time     `json:"run_after,omitempty"`
	MaxAttempts int            `json:"max_attempts,omitempty"`
}
