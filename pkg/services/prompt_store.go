package services

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medops-br/triagebot/pkg/models"
)

const promptColumns = `id, name, version, content, is_active, updated_by_user_id, created_at`

// PromptStore manages versioned prompt templates. Content is immutable:
// changing a prompt means creating a new version and activating it.
type PromptStore struct {
	db Querier
}

// NewPromptStore creates a pool-bound prompt store.
func NewPromptStore(db Querier) *PromptStore {
	if db == nil {
		panic("NewPromptStore: db must not be nil")
	}
	return &PromptStore{db: db}
}

// WithTx returns a copy of the store bound to the given transaction.
func (s *PromptStore) WithTx(tx pgx.Tx) *PromptStore {
	return &PromptStore{db: tx}
}

func scanPrompt(row pgx.Row) (*models.PromptTemplate, error) {
	var p models.PromptTemplate
	err := row.Scan(&p.ID, &p.Name, &p.Version, &p.Content, &p.IsActive, &p.UpdatedByUserID, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetActive returns the active version for the given prompt name.
func (s *PromptStore) GetActive(ctx context.Context, name string) (*models.PromptTemplate, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+promptColumns+` FROM prompt_templates
		WHERE name = $1 AND is_active
		ORDER BY version DESC LIMIT 1`,
		name,
	)
	p, err := scanPrompt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrMissingActivePrompt, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active prompt: %w", err)
	}
	return p, nil
}

// ActivePromptPair resolves the active system and user templates for a
// pipeline stage. Implements the llm.PromptProvider port.
func (s *PromptStore) ActivePromptPair(ctx context.Context, systemName, userName string) (models.PromptTemplate, models.PromptTemplate, error) {
	system, err := s.GetActive(ctx, systemName)
	if err != nil {
		return models.PromptTemplate{}, models.PromptTemplate{}, err
	}
	user, err := s.GetActive(ctx, userName)
	if err != nil {
		return models.PromptTemplate{}, models.PromptTemplate{}, err
	}
	return *system, *user, nil
}

// GetVersion returns one specific prompt version.
func (s *PromptStore) GetVersion(ctx context.Context, name string, version int) (*models.PromptTemplate, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+promptColumns+` FROM prompt_templates WHERE name = $1 AND version = $2`,
		name, version,
	)
	p, err := scanPrompt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: prompt %s v%d", ErrNotFound, name, version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt version: %w", err)
	}
	return p, nil
}

// ListVersions returns the version metadata for every known prompt name,
// ordered by name then newest version first.
func (s *PromptStore) ListVersions(ctx context.Context) ([]models.PromptVersionInfo, error) {
	rows, err := s.db.Query(ctx, `
		SELECT name, version, is_active FROM prompt_templates
		ORDER BY name, version DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompt versions: %w", err)
	}
	defer rows.Close()

	var versions []models.PromptVersionInfo
	for rows.Next() {
		var v models.PromptVersionInfo
		if err := rows.Scan(&v.Name, &v.Version, &v.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan prompt version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Activate makes the given version the single active one for its name.
// The whole swap runs in one transaction so the partial unique index on
// active names never sees two actives.
func (s *PromptStore) Activate(ctx context.Context, name string, version int, updatedBy uuid.UUID) (*models.PromptTemplate, error) {
	if !slices.Contains(models.KnownPromptNames, name) {
		return nil, NewValidationError("name", fmt.Sprintf("unknown prompt name: %s", name))
	}

	var activated *models.PromptTemplate
	err := InTx(ctx, s.db, func(tx pgx.Tx) error {
		txStore := s.WithTx(tx)

		if _, err := txStore.GetVersion(ctx, name, version); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE prompt_templates SET is_active = false, updated_by_user_id = $2
			WHERE name = $1 AND is_active`,
			name, updatedBy,
		); err != nil {
			return fmt.Errorf("failed to deactivate current prompt: %w", err)
		}

		row := tx.QueryRow(ctx, `
			UPDATE prompt_templates SET is_active = true, updated_by_user_id = $3
			WHERE name = $1 AND version = $2
			RETURNING `+promptColumns,
			name, version, updatedBy,
		)
		p, err := scanPrompt(row)
		if err != nil {
			return fmt.Errorf("failed to activate prompt: %w", err)
		}
		activated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return activated, nil
}

// CreateVersion appends a new inactive version for an existing prompt name.
// The new version number is max(existing)+1; activation is a separate step.
func (s *PromptStore) CreateVersion(ctx context.Context, name, content string, updatedBy uuid.UUID) (*models.PromptTemplate, error) {
	if content == "" {
		return nil, NewValidationError("content", "prompt content is required")
	}

	var created *models.PromptTemplate
	err := InTx(ctx, s.db, func(tx pgx.Tx) error {
		var maxVersion *int
		if err := tx.QueryRow(ctx,
			`SELECT max(version) FROM prompt_templates WHERE name = $1`, name,
		).Scan(&maxVersion); err != nil {
			return fmt.Errorf("failed to resolve latest prompt version: %w", err)
		}
		if maxVersion == nil {
			return fmt.Errorf("%w: prompt %s", ErrNotFound, name)
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO prompt_templates (name, version, content, is_active, updated_by_user_id)
			VALUES ($1, $2, $3, false, $4)
			RETURNING `+promptColumns,
			name, *maxVersion+1, content, updatedBy,
		)
		p, err := scanPrompt(row)
		if err != nil {
			return fmt.Errorf("failed to create prompt version: %w", err)
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
