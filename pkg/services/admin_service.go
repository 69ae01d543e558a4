package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/medops-br/triagebot/pkg/auth"
	"github.com/medops-br/triagebot/pkg/models"
)

// AdminService carries the operator surfaces: prompt version management,
// user account management and the dead-letter view. Every mutation lands
// in auth_events with the acting admin attached.
type AdminService struct {
	users  *UserStore
	events *AuthStore
	prompt *PromptStore
	jobs   *JobQueue
	logger *slog.Logger
}

// NewAdminService creates the admin use-cases.
func NewAdminService(users *UserStore, events *AuthStore, prompt *PromptStore, jobs *JobQueue) *AdminService {
	if users == nil || events == nil || prompt == nil || jobs == nil {
		panic("NewAdminService: all dependencies must be non-nil")
	}
	return &AdminService{
		users:  users,
		events: events,
		prompt: prompt,
		jobs:   jobs,
		logger: slog.With("component", "admin_service"),
	}
}

// ListDeadJobs returns the newest dead-lettered jobs for operator triage.
func (s *AdminService) ListDeadJobs(ctx context.Context, limit int) ([]models.Job, error) {
	return s.jobs.ListDead(ctx, limit)
}

// ListPromptVersions returns every prompt version with its active flag.
func (s *AdminService) ListPromptVersions(ctx context.Context) ([]models.PromptVersionInfo, error) {
	return s.prompt.ListVersions(ctx)
}

// GetPromptVersion returns one version including its content.
func (s *AdminService) GetPromptVersion(ctx context.Context, name string, version int) (*models.PromptTemplate, error) {
	return s.prompt.GetVersion(ctx, name, version)
}

// ActivatePromptVersion makes the given version the active one for its
// name, deactivating the current.
func (s *AdminService) ActivatePromptVersion(ctx context.Context, name string, version int, actor *models.User) (*models.PromptTemplate, error) {
	activated, err := s.prompt.Activate(ctx, name, version, actor.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := s.events.AppendEvent(ctx, models.AppendAuthEventRequest{
		UserID:    &actor.UserID,
		EventType: models.AuthEventPromptVersionActivated,
		Payload:   map[string]any{"name": name, "version": version},
	}); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Prompt version activated",
		"name", name, "version", version, "actor", actor.Email)
	return activated, nil
}

// CreatePromptVersion derives a new version from an existing one. Content
// is immutable once written; a new version is the only mutation.
func (s *AdminService) CreatePromptVersion(ctx context.Context, name string, sourceVersion int, content string, actor *models.User) (*models.PromptTemplate, error) {
	if content == "" {
		return nil, NewValidationError("content", "prompt content is required")
	}
	// The source must exist even though its content is replaced; this
	// keeps version numbers anchored to a reviewed ancestor.
	if _, err := s.prompt.GetVersion(ctx, name, sourceVersion); err != nil {
		return nil, err
	}
	created, err := s.prompt.CreateVersion(ctx, name, content, actor.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := s.events.AppendEvent(ctx, models.AppendAuthEventRequest{
		UserID:    &actor.UserID,
		EventType: models.AuthEventPromptVersionCreated,
		Payload: map[string]any{
			"name":           name,
			"version":        created.Version,
			"source_version": sourceVersion,
		},
	}); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Prompt version created",
		"name", name, "version", created.Version, "actor", actor.Email)
	return created, nil
}

// ListUsers returns every account.
func (s *AdminService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.users.List(ctx)
}

// CreateUser adds an account with a bcrypt-hashed password.
func (s *AdminService) CreateUser(ctx context.Context, email, password string, role models.Role, actor *models.User) (*models.User, error) {
	if password == "" {
		return nil, NewValidationError("password", "password is required")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	created, err := s.users.Create(ctx, models.CreateUserRequest{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.events.AppendEvent(ctx, models.AppendAuthEventRequest{
		UserID:    &actor.UserID,
		EventType: models.AuthEventUserCreated,
		Payload:   map[string]any{"target_user_id": created.UserID.String(), "email": created.Email, "role": string(role)},
	}); err != nil {
		return nil, err
	}
	return created, nil
}

// BlockUser deactivates an account and revokes its tokens.
func (s *AdminService) BlockUser(ctx context.Context, targetID uuid.UUID, actor *models.User) (*models.User, error) {
	return s.setAccountStatus(ctx, targetID, models.AccountBlocked, actor)
}

// ActivateUser reinstates a blocked account.
func (s *AdminService) ActivateUser(ctx context.Context, targetID uuid.UUID, actor *models.User) (*models.User, error) {
	return s.setAccountStatus(ctx, targetID, models.AccountActive, actor)
}

// RemoveUser retires an account permanently and revokes its tokens.
func (s *AdminService) RemoveUser(ctx context.Context, targetID uuid.UUID, actor *models.User) (*models.User, error) {
	return s.setAccountStatus(ctx, targetID, models.AccountRemoved, actor)
}

func (s *AdminService) setAccountStatus(ctx context.Context, targetID uuid.UUID, status models.AccountStatus, actor *models.User) (*models.User, error) {
	if status != models.AccountActive {
		if targetID == actor.UserID {
			return nil, NewValidationError("user_id", "cannot block or remove your own account")
		}
		target, err := s.users.Get(ctx, targetID)
		if err != nil {
			return nil, err
		}
		if target.Role == models.RoleAdmin && target.IsActive {
			count, err := s.users.CountActiveAdmins(ctx)
			if err != nil {
				return nil, err
			}
			if count <= 1 {
				return nil, NewValidationError("user_id", "cannot deactivate the last active admin")
			}
		}
	}

	updated, err := s.users.SetAccountStatus(ctx, targetID, status)
	if err != nil {
		return nil, err
	}
	if status != models.AccountActive {
		if _, err := s.events.RevokeTokensForUser(ctx, targetID); err != nil {
			return nil, err
		}
	}
	if _, err := s.events.AppendEvent(ctx, models.AppendAuthEventRequest{
		UserID:    &actor.UserID,
		EventType: models.AuthEventUserStatusChanged,
		Payload:   map[string]any{"target_user_id": targetID.String(), "account_status": string(status)},
	}); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "User account status changed",
		"target_user_id", targetID, "account_status", status, "actor", actor.Email)
	return updated, nil
}
