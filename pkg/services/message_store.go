package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medops-br/triagebot/pkg/models"
)

// MessageStore maps chat events to cases. Cleanup walks these rows to know
// what to redact, and reply routing walks them backwards to find the case.
type MessageStore struct {
	db Querier
}

// NewMessageStore creates a pool-bound message store.
func NewMessageStore(db Querier) *MessageStore {
	if db == nil {
		panic("NewMessageStore: db must not be nil")
	}
	return &MessageStore{db: db}
}

// WithTx returns a copy of the store bound to the given transaction.
func (s *MessageStore) WithTx(tx pgx.Tx) *MessageStore {
	return &MessageStore{db: tx}
}

// Add records one chat event reference. Re-recording the same (room, event,
// kind) returns ErrAlreadyExists so replayed jobs stay idempotent.
func (s *MessageStore) Add(ctx context.Context, req models.AddCaseMessageRequest) (*models.CaseMessage, error) {
	if req.RoomID == "" || req.EventID == "" {
		return nil, NewValidationError("event_id", "room and event ids are required")
	}
	if req.Kind == "" {
		return nil, NewValidationError("kind", "message kind is required")
	}

	var m models.CaseMessage
	err := s.db.QueryRow(ctx, `
		INSERT INTO case_messages (case_id, room_id, event_id, kind, sender_user_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ON CONSTRAINT uq_case_messages_room_event_kind DO NOTHING
		RETURNING id, case_id, room_id, event_id, kind, sender_user_id, created_at`,
		req.CaseID, req.RoomID, req.EventID, req.Kind, req.SenderUserID,
	).Scan(&m.ID, &m.CaseID, &m.RoomID, &m.EventID, &m.Kind, &m.SenderUserID, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: message %s/%s kind %s", ErrAlreadyExists, req.RoomID, req.EventID, req.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add case message: %w", err)
	}
	return &m, nil
}

// ListForCase returns every tracked event for the case in insertion order.
func (s *MessageStore) ListForCase(ctx context.Context, caseID uuid.UUID) ([]models.CaseMessage, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, case_id, room_id, event_id, kind, sender_user_id, created_at
		FROM case_messages WHERE case_id = $1 ORDER BY id`,
		caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list case messages: %w", err)
	}
	defer rows.Close()

	var messages []models.CaseMessage
	for rows.Next() {
		var m models.CaseMessage
		if err := rows.Scan(&m.ID, &m.CaseID, &m.RoomID, &m.EventID, &m.Kind, &m.SenderUserID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan case message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// FindCaseByEvent resolves which case a chat event belongs to, optionally
// narrowed to specific kinds. Reply routing uses this to match a threaded
// reply back to the widget or request message it answers.
func (s *MessageStore) FindCaseByEvent(ctx context.Context, roomID, eventID string, kinds ...string) (uuid.UUID, error) {
	query := `SELECT case_id FROM case_messages WHERE room_id = $1 AND event_id = $2`
	args := []any{roomID, eventID}
	if len(kinds) > 0 {
		query += ` AND kind = ANY($3)`
		args = append(args, kinds)
	}
	query += ` ORDER BY id LIMIT 1`

	var caseID uuid.UUID
	err := s.db.QueryRow(ctx, query, args...).Scan(&caseID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("%w: no case for event %s/%s", ErrNotFound, roomID, eventID)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to resolve case by event: %w", err)
	}
	return caseID, nil
}
