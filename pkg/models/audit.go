package models

import (
	"time"

	"github.com/google/uuid"
)

// ActorType identifies who caused an audit event.
type ActorType string

const (
	ActorSystem ActorType = "system"
	ActorHuman  ActorType = "human"
	ActorBot    ActorType = "bot"
)

// Audit event types written by the orchestration services.
const (
	AuditCaseCreated                 = "CASE_CREATED"
	AuditCaseStatusChanged           = "CASE_STATUS_CHANGED"
	AuditPdfExtracted                = "PDF_EXTRACTED"
	AuditRecordNumberExtracted       = "RECORD_NUMBER_EXTRACTED"
	AuditLlm1Completed               = "LLM1_COMPLETED"
	AuditLlm2Completed               = "LLM2_COMPLETED"
	AuditRoom2WidgetPosted           = "ROOM2_WIDGET_POSTED"
	AuditRoom2ReplyRejected          = "ROOM2_REPLY_REJECTED"
	AuditDoctorDecisionRecorded      = "DOCTOR_DECISION_RECORDED"
	AuditRoom3RequestPosted          = "ROOM3_REQUEST_POSTED"
	AuditRoom3ReplyRejected          = "ROOM3_REPLY_REJECTED"
	AuditAppointmentRecorded         = "APPOINTMENT_RECORDED"
	AuditRoom1FinalPosted            = "ROOM1_FINAL_POSTED"
	AuditCleanupTriggered            = "CLEANUP_TRIGGERED"
	AuditMatrixEventRedacted         = "MATRIX_EVENT_REDACTED"
	AuditMatrixEventRedactionFailed  = "MATRIX_EVENT_REDACTION_FAILED"
	AuditCleanupCompleted            = "CLEANUP_COMPLETED"
	AuditCaseFailedMaxRetries        = "CASE_FAILED_MAX_RETRIES"
	AuditJobEnqueuedPostRoom1Failure = "JOB_ENQUEUED_POST_ROOM1_FAILURE"
	AuditRecoveryJobEnqueued         = "RECOVERY_JOB_ENQUEUED"
	AuditRoom4SummaryPosted          = "ROOM4_SUMMARY_POSTED"
)

// AuditEvent is one append-only case audit record.
type AuditEvent struct {
	ID            int64          `json:"id"`
	CaseID        *uuid.UUID     `json:"case_id,omitempty"`
	ActorType     ActorType      `json:"actor_type"`
	EventType     string         `json:"event_type"`
	Payload       map[string]any `json:"payload"`
	RoomID        *string        `json:"room_id,omitempty"`
	MatrixEventID *string        `json:"matrix_event_id,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// AppendAuditEventRequest contains fields for appending an audit event.
type AppendAuditEventRequest struct {
	CaseID        *uuid.UUID     `json:"case_id,omitempty"`
	ActorType     ActorType      `json:"actor_type"`
	EventType     string         `json:"event_type"`
	Payload       map[string]any `json:"payload,omitempty"`
	RoomID        *string        `json:"room_id,omitempty"`
	MatrixEventID *string        `json:"matrix_event_id,omitempty"`
}
