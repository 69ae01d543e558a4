package models

import (
	"time"

	"github.com/google/uuid"
)

// Role grants operator permissions. Admins can mutate, readers only observe.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleReader Role = "reader"
)

// Valid reports whether the value is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleReader
}

// AccountStatus tracks the user lifecycle.
type AccountStatus string

const (
	AccountActive  AccountStatus = "active"
	AccountBlocked AccountStatus = "blocked"
	AccountRemoved AccountStatus = "removed"
)

// User is one operator identity.
type User struct {
	UserID        uuid.UUID     `json:"user_id"`
	Email         string        `json:"email"`
	PasswordHash  string        `json:"-"`
	Role          Role          `json:"role"`
	AccountStatus AccountStatus `json:"account_status"`
	IsActive      bool          `json:"is_active"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// CreateUserRequest contains fields for inserting a user row.
type CreateUserRequest struct {
	UserID        uuid.UUID     `json:"user_id"`
	Email         string        `json:"email"`
	PasswordHash  string        `json:"-"`
	Role          Role          `json:"role"`
	AccountStatus AccountStatus `json:"account_status"`
}

// Auth event types written by the login and admin surfaces.
const (
	AuthEventLoginSuccess           = "login_success"
	AuthEventLoginFailure           = "login_failure"
	AuthEventLogout                 = "logout"
	AuthEventUserCreated            = "user_created"
	AuthEventUserStatusChanged      = "user_status_changed"
	AuthEventUserPasswordReset      = "user_password_reset"
	AuthEventPromptVersionActivated = "prompt_version_activated"
	AuthEventPromptVersionCreated   = "prompt_version_created"
)

// AuthToken is one opaque bearer token, stored only as its SHA-256 hash.
type AuthToken struct {
	ID        int64      `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// AuthEvent is one append-only authentication or admin-action audit record.
type AuthEvent struct {
	ID         int64          `json:"id"`
	UserID     *uuid.UUID     `json:"user_id,omitempty"`
	EventType  string         `json:"event_type"`
	IPAddress  *string        `json:"ip_address,omitempty"`
	UserAgent  *string        `json:"user_agent,omitempty"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// AppendAuthEventRequest contains fields for appending an auth event.
type AppendAuthEventRequest struct {
	UserID    *uuid.UUID     `json:"user_id,omitempty"`
	EventType string         `json:"event_type"`
	IPAddress *string        `json:"ip_address,omitempty"`
	UserAgent *string        `json:"user_agent,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}
