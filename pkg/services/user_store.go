package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/medops-br/triagebot/pkg/models"
)

const userColumns = `user_id, email, password_hash, role, account_status, is_active, created_at, updated_at`

// UserStore persists operator identities.
type UserStore struct {
	db Querier
}

// NewUserStore creates a pool-bound user store.
func NewUserStore(db Querier) *UserStore {
	if db == nil {
		panic("NewUserStore: db must not be nil")
	}
	return &UserStore{db: db}
}

// WithTx returns a copy of the store bound to the given transaction.
func (s *UserStore) WithTx(tx pgx.Tx) *UserStore {
	return &UserStore{db: tx}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.UserID, &u.Email, &u.PasswordHash, &u.Role, &u.AccountStatus, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a user. Emails are stored lowercased and must be unique.
func (s *UserStore) Create(ctx context.Context, req models.CreateUserRequest) (*models.User, error) {
	if req.Email == "" {
		return nil, NewValidationError("email", "email is required")
	}
	if req.PasswordHash == "" {
		return nil, NewValidationError("password_hash", "password hash is required")
	}
	if !req.Role.Valid() {
		return nil, NewValidationError("role", fmt.Sprintf("unknown role: %s", req.Role))
	}
	userID := req.UserID
	if userID == uuid.Nil {
		userID = uuid.New()
	}
	status := req.AccountStatus
	if status == "" {
		status = models.AccountActive
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO users (user_id, email, password_hash, role, account_status, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		userID, strings.ToLower(req.Email), req.PasswordHash, req.Role, status, status == models.AccountActive,
	)
	u, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_users_email" {
			return nil, fmt.Errorf("%w: user %s", ErrAlreadyExists, req.Email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// Get loads one user by id.
func (s *UserStore) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

// GetByEmail loads one user by email, case-insensitively.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user by email: %w", err)
	}
	return u, nil
}

// List returns every user ordered by email.
func (s *UserStore) List(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// SetAccountStatus updates the lifecycle status. is_active follows it: only
// active accounts may log in, and token resolution re-checks the flag so
// blocking a user kills their live sessions too.
func (s *UserStore) SetAccountStatus(ctx context.Context, userID uuid.UUID, status models.AccountStatus) (*models.User, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE users
		SET account_status = $2, is_active = $3, updated_at = now()
		WHERE user_id = $1
		RETURNING `+userColumns,
		userID, status, status == models.AccountActive,
	)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set account status: %w", err)
	}
	return u, nil
}

// SetPasswordHash replaces the stored credential.
func (s *UserStore) SetPasswordHash(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE user_id = $1`,
		userID, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("failed to set password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	return nil
}

// CountActiveAdmins returns how many active admin accounts exist. Guards
// the last-admin protection on block/remove/demote.
func (s *UserStore) CountActiveAdmins(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM users WHERE role = $1 AND account_status = $2`,
		models.RoleAdmin, models.AccountActive,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active admins: %w", err)
	}
	return count, nil
}
