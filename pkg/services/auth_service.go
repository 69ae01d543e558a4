package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medops-br/triagebot/pkg/auth"
	"github.com/medops-br/triagebot/pkg/config"
	"github.com/medops-br/triagebot/pkg/models"
	"github.com/medops-br/triagebot/pkg/timeutil"
)

// tokenTTL is how long an issued bearer token stays valid.
const tokenTTL = 8 * time.Hour

// AuthService issues and resolves opaque bearer tokens. Tokens are stored
// only as SHA-256 hashes; login attempts land in auth_events either way.
type AuthService struct {
	users  *UserStore
	tokens *AuthStore
	clock  timeutil.Clock
	logger *slog.Logger
}

// NewAuthService creates the authentication service.
func NewAuthService(users *UserStore, tokens *AuthStore, clock timeutil.Clock) *AuthService {
	if users == nil || tokens == nil {
		panic("NewAuthService: all dependencies must be non-nil")
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &AuthService{
		users:  users,
		tokens: tokens,
		clock:  clock,
		logger: slog.With("component", "auth_service"),
	}
}

// LoginResult is the issued session.
type LoginResult struct {
	Token     string      `json:"token"`
	Role      models.Role `json:"role"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Login verifies the credentials and issues a fresh token. Wrong email
// and wrong password are indistinguishable to the caller; an inactive
// account is reported as such only after the password checks out.
func (s *AuthService) Login(ctx context.Context, email, password string, ip, userAgent *string) (*LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, NewValidationError("credentials", "email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.recordLoginEvent(ctx, nil, models.AuthEventLoginFailure, ip, userAgent,
				map[string]any{"email": email, "reason": "unknown_email"})
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		s.recordLoginEvent(ctx, &user.UserID, models.AuthEventLoginFailure, ip, userAgent,
			map[string]any{"reason": "wrong_password"})
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		s.recordLoginEvent(ctx, &user.UserID, models.AuthEventLoginFailure, ip, userAgent,
			map[string]any{"reason": "account_inactive"})
		return nil, ErrAccountInactive
	}

	token, hash, err := auth.NewToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	expiresAt := s.clock.Now().Add(tokenTTL)
	if _, err := s.tokens.InsertToken(ctx, user.UserID, hash, expiresAt); err != nil {
		return nil, err
	}
	s.recordLoginEvent(ctx, &user.UserID, models.AuthEventLoginSuccess, ip, userAgent, nil)

	return &LoginResult{Token: token, Role: user.Role, ExpiresAt: expiresAt}, nil
}

// Authenticate resolves a presented bearer token to its active user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.tokens.ResolveToken(ctx, auth.HashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}
	return user, nil
}

// BootstrapAdmin creates the configured admin account when it does not
// exist yet. Missing configuration is a silent no-op.
func (s *AuthService) BootstrapAdmin(ctx context.Context, cfg config.BootstrapAdmin) error {
	if cfg.Email == "" || cfg.Password == "" {
		return nil
	}
	email := strings.TrimSpace(strings.ToLower(cfg.Email))
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	hash, err := auth.HashPassword(cfg.Password)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}
	user, err := s.users.Create(ctx, models.CreateUserRequest{
		Email:         email,
		PasswordHash:  hash,
		Role:          models.RoleAdmin,
		AccountStatus: models.AccountActive,
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil
		}
		return err
	}
	if _, err := s.tokens.AppendEvent(ctx, models.AppendAuthEventRequest{
		UserID:    &user.UserID,
		EventType: models.AuthEventUserCreated,
		Payload:   map[string]any{"email": email, "role": string(models.RoleAdmin), "bootstrap": true},
	}); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Bootstrap admin created", "email", email)
	return nil
}

func (s *AuthService) recordLoginEvent(ctx context.Context, userID *uuid.UUID, eventType string, ip, userAgent *string, payload map[string]any) {
	if _, err := s.tokens.AppendEvent(ctx, models.AppendAuthEventRequest{
		UserID:    userID,
		EventType: eventType,
		IPAddress: ip,
		UserAgent: userAgent,
		Payload:   payload,
	}); err != nil {
		s.logger.ErrorContext(ctx, "Failed to record auth event",
			"event_type", eventType, "error", err)
	}
}
