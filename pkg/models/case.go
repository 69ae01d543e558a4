package models

import (
	"time"

	"github.com/google/uuid"
)

// CaseStatus tracks a case through the triage state machine.
type CaseStatus string

const (
	CaseStatusNew                 CaseStatus = "NEW"
	CaseStatusPdfExtracted        CaseStatus = "PDF_EXTRACTED"
	CaseStatusLlmSuggest          CaseStatus = "LLM_SUGGEST"
	CaseStatusR2PostWidget        CaseStatus = "R2_POST_WIDGET"
	CaseStatusWaitDoctor          CaseStatus = "WAIT_DOCTOR"
	CaseStatusDoctorAccepted      CaseStatus = "DOCTOR_ACCEPTED"
	CaseStatusDoctorDenied        CaseStatus = "DOCTOR_DENIED"
	CaseStatusR3PostRequest       CaseStatus = "R3_POST_REQUEST"
	CaseStatusWaitScheduler       CaseStatus = "WAIT_SCHEDULER"
	CaseStatusApptConfirmed       CaseStatus = "APPT_CONFIRMED"
	CaseStatusApptDenied          CaseStatus = "APPT_DENIED"
	CaseStatusWaitR1CleanupThumbs CaseStatus = "WAIT_R1_CLEANUP_THUMBS"
	CaseStatusCleanupRunning      CaseStatus = "CLEANUP_RUNNING"
	CaseStatusCleaned             CaseStatus = "CLEANED"
	CaseStatusFailed              CaseStatus = "FAILED"
)

// caseTransitions lists the allowed forward edges of the state machine.
// Every non-terminal status may additionally move to FAILED, and FAILED
// re-enters the cleanup path once its final reply is posted.
var caseTransitions = map[CaseStatus][]CaseStatus{
	CaseStatusNew:                 {CaseStatusPdfExtracted},
	CaseStatusPdfExtracted:        {CaseStatusLlmSuggest},
	CaseStatusLlmSuggest:          {CaseStatusR2PostWidget},
	CaseStatusR2PostWidget:        {CaseStatusWaitDoctor},
	CaseStatusWaitDoctor:          {CaseStatusDoctorAccepted, CaseStatusDoctorDenied},
	CaseStatusDoctorAccepted:      {CaseStatusR3PostRequest},
	CaseStatusDoctorDenied:        {CaseStatusWaitR1CleanupThumbs},
	CaseStatusR3PostRequest:       {CaseStatusWaitScheduler},
	CaseStatusWaitScheduler:       {CaseStatusApptConfirmed, CaseStatusApptDenied},
	CaseStatusApptConfirmed:       {CaseStatusWaitR1CleanupThumbs},
	CaseStatusApptDenied:          {CaseStatusWaitR1CleanupThumbs},
	CaseStatusWaitR1CleanupThumbs: {CaseStatusCleanupRunning},
	CaseStatusCleanupRunning:      {CaseStatusCleaned},
	CaseStatusFailed:              {CaseStatusWaitR1CleanupThumbs},
	CaseStatusCleaned:             {},
}

// IsTerminal reports whether no further work is expected for the status.
// FAILED is terminal only until its final failure reply has been posted.
func (s CaseStatus) IsTerminal() bool {
	return s == CaseStatusCleaned
}

// CanTransitionTo reports whether the state machine allows moving to next.
// Writing the current status again is always allowed so that retried
// handlers stay idempotent.
func (s CaseStatus) CanTransitionTo(next CaseStatus) bool {
	if s == next {
		return true
	}
	if next == CaseStatusFailed {
		return s != CaseStatusCleaned
	}
	for _, allowed := range caseTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether the value is a known case status.
func (s CaseStatus) Valid() bool {
	_, ok := caseTransitions[s]
	return ok
}

// Decision is the doctor's triage verdict.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionDeny   Decision = "deny"
)

// SupportFlag is the doctor's requested procedural support level.
type SupportFlag string

const (
	SupportNone           SupportFlag = "none"
	SupportAnesthesist    SupportFlag = "anesthesist"
	SupportAnesthesistICU SupportFlag = "anesthesist_icu"
)

// AppointmentStatus is the scheduler's outcome for an accepted case.
type AppointmentStatus string

const (
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentDenied    AppointmentStatus = "denied"
)

// Case is the root aggregate of the triage workflow.
type Case struct {
	CaseID                  uuid.UUID          `json:"case_id"`
	Status                  CaseStatus         `json:"status"`
	Room1OriginRoomID       string             `json:"room1_origin_room_id"`
	Room1OriginEventID      string             `json:"room1_origin_event_id"`
	Room1SenderUserID       string             `json:"room1_sender_user_id"`
	AgencyRecordNumber      *string            `json:"agency_record_number,omitempty"`
	AgencyRecordExtractedAt *time.Time         `json:"agency_record_extracted_at,omitempty"`
	PdfMxcURL               *string            `json:"pdf_mxc_url,omitempty"`
	ExtractedText           *string            `json:"extracted_text,omitempty"`
	StructuredData          map[string]any     `json:"structured_data,omitempty"`
	SummaryText             *string            `json:"summary_text,omitempty"`
	SuggestedAction         map[string]any     `json:"suggested_action,omitempty"`
	DoctorDecision          *Decision          `json:"doctor_decision,omitempty"`
	DoctorSupportFlag       *SupportFlag       `json:"doctor_support_flag,omitempty"`
	DoctorReason            *string            `json:"doctor_reason,omitempty"`
	DoctorUserID            *string            `json:"doctor_user_id,omitempty"`
	DoctorDecidedAt         *time.Time         `json:"doctor_decided_at,omitempty"`
	AppointmentStatus       *AppointmentStatus `json:"appointment_status,omitempty"`
	AppointmentAt           *time.Time         `json:"appointment_at,omitempty"`
	AppointmentLocation     *string            `json:"appointment_location,omitempty"`
	AppointmentInstructions *string            `json:"appointment_instructions,omitempty"`
	AppointmentReason       *string            `json:"appointment_reason,omitempty"`
	CleanupTriggeredAt      *time.Time         `json:"cleanup_triggered_at,omitempty"`
	CleanupCompletedAt      *time.Time         `json:"cleanup_completed_at,omitempty"`
	CreatedAt               time.Time          `json:"created_at"`
	UpdatedAt               time.Time          `json:"updated_at"`
}

// CreateCaseRequest contains fields for creating a case from a Room-1 event.
type CreateCaseRequest struct {
	CaseID             uuid.UUID `json:"case_id"`
	Room1OriginRoomID  string    `json:"room1_origin_room_id"`
	Room1OriginEventID string    `json:"room1_origin_event_id"`
	Room1SenderUserID  string    `json:"room1_sender_user_id"`
}

// Room2WidgetSnapshot carries the case fields needed to build the Room-2
// widget payload.
type Room2WidgetSnapshot struct {
	CaseID             uuid.UUID      `json:"case_id"`
	Status             CaseStatus     `json:"status"`
	AgencyRecordNumber *string        `json:"agency_record_number,omitempty"`
	StructuredData     map[string]any `json:"structured_data,omitempty"`
	SummaryText        *string        `json:"summary_text,omitempty"`
	SuggestedAction    map[string]any `json:"suggested_action,omitempty"`
}

// PriorCaseSummary is the prior-case block embedded into the widget payload.
type PriorCaseSummary struct {
	PriorCaseID uuid.UUID `json:"prior_case_id"`
	DecidedAt   time.Time `json:"decided_at"`
	Decision    string    `json:"decision"`
	Reason      *string   `json:"reason,omitempty"`
}

// PriorCaseContext bundles prior-case enrichment for the widget payload.
type PriorCaseContext struct {
	PriorCase          *PriorCaseSummary `json:"prior_case,omitempty"`
	PriorDenialCount7d *int              `json:"prior_denial_count_7d,omitempty"`
}
