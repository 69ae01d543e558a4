package models

import "time"

// DispatchStatus tracks one Room-4 summary delivery attempt.
type DispatchStatus string

const (
	DispatchPending DispatchStatus = "pending"
	DispatchSent    DispatchStatus = "sent"
	DispatchFailed  DispatchStatus = "failed"
)

// SummaryWindowCounts are the per-window case tallies posted to Room-4.
// Each is a distinct-case count derived from the audit trail.
type SummaryWindowCounts struct {
	AppointmentsConfirmed int `json:"appointments_confirmed"`
	AppointmentsDenied    int `json:"appointments_denied"`
	TriageDenials         int `json:"triage_denials"`
	Failures              int `json:"failures"`
	Cleaned               int `json:"cleaned"`
}

// SupervisorSummaryDispatch guards Room-4 idempotency: at most one row per
// (room_id, window_start, window_end), at most one of them ever sent.
type SupervisorSummaryDispatch struct {
	ID            int64          `json:"id"`
	RoomID        string         `json:"room_id"`
	WindowStart   time.Time      `json:"window_start"`
	WindowEnd     time.Time      `json:"window_end"`
	Status        DispatchStatus `json:"status"`
	SentAt        *time.Time     `json:"sent_at,omitempty"`
	MatrixEventID *string        `json:"matrix_event_id,omitempty"`
	LastError     *string        `json:"last_error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
