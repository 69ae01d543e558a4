package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medops-br/triagebot/pkg/models"
)

// AuthStore persists bearer tokens and the auth event log. Tokens are only
// ever handled as SHA-256 hashes here; the raw value never touches the
// database.
type AuthStore struct {
	db Querier
}

// NewAuthStore creates a pool-bound auth store.
func NewAuthStore(db Querier) *AuthStore {
	if db == nil {
		panic("NewAuthStore: db must not be nil")
	}
	return &AuthStore{db: db}
}

// WithTx returns a copy of the store bound to the given transaction.
func (s *AuthStore) WithTx(tx pgx.Tx) *AuthStore {
	return &AuthStore{db: tx}
}

// InsertToken stores a freshly issued token hash.
func (s *AuthStore) InsertToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) (*models.AuthToken, error) {
	if tokenHash == "" {
		return nil, NewValidationError("token_hash", "token hash is required")
	}
	var t models.AuthToken
	err := s.db.QueryRow(ctx, `
		INSERT INTO auth_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, token_hash, expires_at, revoked_at, created_at`,
		userID, tokenHash, expiresAt,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert auth token: %w", err)
	}
	return &t, nil
}

// ResolveToken maps a token hash to its user, enforcing expiry, revocation
// and the user's active flag in one query. A blocked or removed user's
// outstanding tokens stop resolving immediately.
func (s *AuthStore) ResolveToken(ctx context.Context, tokenHash string) (*models.User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT u.user_id, u.email, u.password_hash, u.role, u.account_status, u.is_active, u.created_at, u.updated_at
		FROM auth_tokens t
		JOIN users u ON u.user_id = t.user_id
		WHERE t.token_hash = $1
			AND t.expires_at > now()
			AND t.revoked_at IS NULL
			AND u.is_active`,
		tokenHash,
	)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: token", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve auth token: %w", err)
	}
	return u, nil
}

// RevokeToken invalidates one token hash, for logout.
func (s *AuthStore) RevokeToken(ctx context.Context, tokenHash string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE auth_tokens SET revoked_at = now()
		WHERE token_hash = $1 AND revoked_at IS NULL`,
		tokenHash,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke auth token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: token", ErrNotFound)
	}
	return nil
}

// RevokeTokensForUser invalidates every live token the user holds.
func (s *AuthStore) RevokeTokensForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE auth_tokens SET revoked_at = now()
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > now()`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// AppendEvent writes one auth event record.
func (s *AuthStore) AppendEvent(ctx context.Context, req models.AppendAuthEventRequest) (*models.AuthEvent, error) {
	if req.EventType == "" {
		return nil, NewValidationError("event_type", "event type is required")
	}
	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	var e models.AuthEvent
	err := s.db.QueryRow(ctx, `
		INSERT INTO auth_events (user_id, event_type, ip_address, user_agent, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, event_type, ip_address, user_agent, payload, occurred_at`,
		req.UserID, req.EventType, req.IPAddress, req.UserAgent, payload,
	).Scan(&e.ID, &e.UserID, &e.EventType, &e.IPAddress, &e.UserAgent, &e.Payload, &e.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append auth event: %w", err)
	}
	return &e, nil
}

// ListEventsForUser returns a user's auth trail, newest first.
func (s *AuthStore) ListEventsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.AuthEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, event_type, ip_address, user_agent, payload, occurred_at
		FROM auth_events WHERE user_id = $1
		ORDER BY id DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list auth events: %w", err)
	}
	defer rows.Close()

	var events []models.AuthEvent
	for rows.Next() {
		var e models.AuthEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &e.IPAddress, &e.UserAgent, &e.Payload, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan auth event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
