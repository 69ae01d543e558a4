package models

import (
	"time"

	"github.com/google/uuid"
)

// CaseListFilters contains filtering options for the monitoring case list.
// Activity bounds are UTC instants resolved from the caller's local dates.
type CaseListFilters struct {
	Status       *CaseStatus `json:"status,omitempty"`
	ActivityFrom *time.Time  `json:"activity_from,omitempty"`
	ActivityTo   *time.Time  `json:"activity_to,omitempty"`
	Page         int         `json:"page"`
	PageSize     int         `json:"page_size"`
}

// CaseListItem is one row of the monitoring case list.
type CaseListItem struct {
	CaseID             uuid.UUID          `json:"case_id"`
	Status             CaseStatus         `json:"status"`
	AgencyRecordNumber *string            `json:"agency_record_number,omitempty"`
	PatientName        *string            `json:"patient_name,omitempty"`
	PatientAge         *string            `json:"patient_age,omitempty"`
	DoctorDecision     *Decision          `json:"doctor_decision,omitempty"`
	AppointmentStatus  *AppointmentStatus `json:"appointment_status,omitempty"`
	AppointmentAt      *time.Time         `json:"appointment_at,omitempty"`
	CleanupCompletedAt *time.Time         `json:"cleanup_completed_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// CaseListPage is one page of monitoring results.
type CaseListPage struct {
	Items      []CaseListItem `json:"items"`
	TotalCount int            `json:"total_count"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
}

// TimelineEntry is one item of the unified chronological case timeline,
// merged from audit events, LLM interactions, and chat transcripts.
type TimelineEntry struct {
	OccurredAt time.Time      `json:"occurred_at"`
	Source     string         `json:"source"`
	EntryType  string         `json:"entry_type"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// CaseDetail is the monitoring view of one case.
type CaseDetail struct {
	Case     Case            `json:"case"`
	Timeline []TimelineEntry `json:"timeline"`
}
