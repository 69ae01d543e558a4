package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medops-br/triagebot/pkg/models"
)

// AuditStore appends to and reads the case audit trail. The table is
// append-only at the database level, so there are no update methods.
type AuditStore struct {
	db Querier
}

// NewAuditStore creates a pool-bound audit store.
func NewAuditStore(db Querier) *AuditStore {
	if db == nil {
		panic("NewAuditStore: db must not be nil")
	}
	return &AuditStore{db: db}
}

// WithTx returns a copy of the store bound to the given transaction.
func (s *AuditStore) WithTx(tx pgx.Tx) *AuditStore {
	return &AuditStore{db: tx}
}

// Append writes one audit event.
func (s *AuditStore) Append(ctx context.Context, req models.AppendAuditEventRequest) (*models.AuditEvent, error) {
	if req.EventType == "" {
		return nil, NewValidationError("event_type", "event type is required")
	}
	actorType := req.ActorType
	if actorType == "" {
		actorType = models.ActorSystem
	}
	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	var e models.AuditEvent
	err := s.db.QueryRow(ctx, `
		INSERT INTO case_events (case_id, actor_type, event_type, payload, room_id, matrix_event_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, case_id, actor_type, event_type, payload, room_id, matrix_event_id, occurred_at`,
		req.CaseID, actorType, req.EventType, payload, req.RoomID, req.MatrixEventID,
	).Scan(&e.ID, &e.CaseID, &e.ActorType, &e.EventType, &e.Payload, &e.RoomID, &e.MatrixEventID, &e.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append audit event: %w", err)
	}
	return &e, nil
}

// ListForCase returns the case's audit trail in insertion order.
func (s *AuditStore) ListForCase(ctx context.Context, caseID uuid.UUID) ([]models.AuditEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, case_id, actor_type, event_type, payload, room_id, matrix_event_id, occurred_at
		FROM case_events WHERE case_id = $1 ORDER BY id`,
		caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		if err := rows.Scan(&e.ID, &e.CaseID, &e.ActorType, &e.EventType, &e.Payload, &e.RoomID, &e.MatrixEventID, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// SummaryCounts tallies the Room-4 window from the audit trail. Audit rows
// never move once written, so the counts are stable under replays, unlike
// anything keyed off cases.updated_at. The window is half-open [start, end)
// to keep consecutive windows from double counting a boundary event.
func (s *AuditStore) SummaryCounts(ctx context.Context, windowStart, windowEnd time.Time) (*models.SummaryWindowCounts, error) {
	var counts models.SummaryWindowCounts
	err := s.db.QueryRow(ctx, `
		SELECT
			count(DISTINCT case_id) FILTER (WHERE event_type = $3 AND payload->>'appointment_status' = 'confirmed'),
			count(DISTINCT case_id) FILTER (WHERE event_type = $3 AND payload->>'appointment_status' = 'denied'),
			count(DISTINCT case_id) FILTER (WHERE event_type = $4 AND payload->>'decision' = 'deny'),
			count(DISTINCT case_id) FILTER (WHERE event_type = $5),
			count(DISTINCT case_id) FILTER (WHERE event_type = $6)
		FROM case_events
		WHERE occurred_at >= $1 AND occurred_at < $2`,
		windowStart, windowEnd,
		models.AuditAppointmentRecorded,
		models.AuditDoctorDecisionRecorded,
		models.AuditCaseFailedMaxRetries,
		models.AuditCleanupCompleted,
	).Scan(
		&counts.AppointmentsConfirmed,
		&counts.AppointmentsDenied,
		&counts.TriageDenials,
		&counts.Failures,
		&counts.Cleaned,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute summary counts: %w", err)
	}
	return &counts, nil
}
