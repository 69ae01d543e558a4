package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/medops-br/triagebot/pkg/models"
)

const dispatchColumns = `id, room_id, window_start, window_end, status, sent_at,
	matrix_event_id, last_error, created_at, updated_at`

// DispatchStore guards Room-4 summary idempotency. Each reporting window
// gets at most one row, and compare-and-set transitions make sure at most
// one delivery ever reaches sent.
type DispatchStore struct {
	db Querier
}

// NewDispatchStore creates a pool-bound dispatch store.
func NewDispatchStore(db Querier) *DispatchStore {
	if db == nil {
		panic("NewDispatchStore: db must not be nil")
	}
	return &DispatchStore{db: db}
}

// WithTx returns a copy of the store bound to the given transaction.
func (s *DispatchStore) WithTx(tx pgx.Tx) *DispatchStore {
	return &DispatchStore{db: tx}
}

func scanDispatch(row pgx.Row) (*models.SupervisorSummaryDispatch, error) {
	var d models.SupervisorSummaryDispatch
	err := row.Scan(&d.ID, &d.RoomID, &d.WindowStart, &d.WindowEnd, &d.Status, &d.SentAt,
		&d.MatrixEventID, &d.LastError, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ClaimWindow tries to take ownership of a reporting window. A fresh window
// inserts a pending row. A window that failed before is reclaimed by a
// compare-and-set from failed back to pending. A window that is pending or
// sent belongs to someone else: claimed=false.
func (s *DispatchStore) ClaimWindow(ctx context.Context, roomID string, windowStart, windowEnd time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO supervisor_summary_dispatches (room_id, window_start, window_end, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT uq_supervisor_summary_dispatches_room_window DO NOTHING`,
		roomID, windowStart, windowEnd, models.DispatchPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert dispatch row: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	tag, err = s.db.Exec(ctx, `
		UPDATE supervisor_summary_dispatches
		SET status = $4, last_error = NULL, updated_at = now()
		WHERE room_id = $1 AND window_start = $2 AND window_end = $3 AND status = $5`,
		roomID, windowStart, windowEnd, models.DispatchPending, models.DispatchFailed,
	)
	if err != nil {
		return false, fmt.Errorf("failed to reclaim dispatch row: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkSent finalizes a delivery: compare-and-set pending to sent, recording
// when and which chat event carried it. Returns false when the row was not
// pending anymore, meaning another worker already delivered the window.
func (s *DispatchStore) MarkSent(ctx context.Context, roomID string, windowStart, windowEnd time.Time, matrixEventID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE supervisor_summary_dispatches
		SET status = $4, sent_at = now(), matrix_event_id = $5, last_error = NULL, updated_at = now()
		WHERE room_id = $1 AND window_start = $2 AND window_end = $3 AND status = $6`,
		roomID, windowStart, windowEnd, models.DispatchSent, matrixEventID, models.DispatchPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark dispatch sent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed records a delivery failure: compare-and-set pending to failed
// so a later scheduler run can reclaim the window.
func (s *DispatchStore) MarkFailed(ctx context.Context, roomID string, windowStart, windowEnd time.Time, lastError string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE supervisor_summary_dispatches
		SET status = $4, last_error = $5, updated_at = now()
		WHERE room_id = $1 AND window_start = $2 AND window_end = $3 AND status = $6`,
		roomID, windowStart, windowEnd, models.DispatchFailed, lastError, models.DispatchPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark dispatch failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get loads the dispatch row for one window.
func (s *DispatchStore) Get(ctx context.Context, roomID string, windowStart, windowEnd time.Time) (*models.SupervisorSummaryDispatch, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+dispatchColumns+` FROM supervisor_summary_dispatches
		WHERE room_id = $1 AND window_start = $2 AND window_end = $3`,
		roomID, windowStart, windowEnd,
	)
	d, err := scanDispatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: dispatch for window %s", ErrNotFound, windowStart.Format(time.RFC3339))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dispatch: %w", err)
	}
	return d, nil
}
