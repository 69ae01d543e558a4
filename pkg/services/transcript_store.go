package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medops-br/triagebot/pkg/models"
)

// TranscriptStore appends to the three append-only transcript tables:
// extracted report text, LLM interactions, and chat message bodies.
type TranscriptStore struct {
	db Querier
}

// NewTranscriptStore creates a pool-bound transcript store.
func NewTranscriptStore(db Querier) *TranscriptStore {
	if db == nil {
		panic("NewTranscriptStore: db must not be nil")
	}
	return &TranscriptStore{db: db}
}

// WithTx returns a copy of the store bound to the given transaction.
func (s *TranscriptStore) WithTx(tx pgx.Tx) *TranscriptStore {
	return &TranscriptStore{db: tx}
}

// AppendReport records the cleaned text extracted from a report PDF.
func (s *TranscriptStore) AppendReport(ctx context.Context, caseID uuid.UUID, source, content string) (*models.CaseReportTranscript, error) {
	if source == "" {
		source = "pdf"
	}
	var t models.CaseReportTranscript
	err := s.db.QueryRow(ctx, `
		INSERT INTO case_report_transcripts (case_id, source, content)
		VALUES ($1, $2, $3)
		RETURNING id, case_id, source, content, captured_at`,
		caseID, source, content,
	).Scan(&t.ID, &t.CaseID, &t.Source, &t.Content, &t.CapturedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append report transcript: %w", err)
	}
	return &t, nil
}

// AppendLlmInteraction records one pipeline stage call with the prompt
// versions that produced it.
func (s *TranscriptStore) AppendLlmInteraction(ctx context.Context, req models.AppendLlmInteractionRequest) (*models.CaseLlmInteraction, error) {
	if req.Stage != models.StageLLM1 && req.Stage != models.StageLLM2 {
		return nil, NewValidationError("stage", fmt.Sprintf("unknown llm stage: %s", req.Stage))
	}
	input := req.InputPayload
	if input == nil {
		input = map[string]any{}
	}
	output := req.OutputPayload
	if output == nil {
		output = map[string]any{}
	}

	var t models.CaseLlmInteraction
	err := s.db.QueryRow(ctx, `
		INSERT INTO case_llm_interactions (case_id, stage, input_payload, output_payload,
			system_prompt_name, system_prompt_version, user_prompt_name, user_prompt_version, model_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, case_id, stage, input_payload, output_payload,
			system_prompt_name, system_prompt_version, user_prompt_name, user_prompt_version,
			model_name, captured_at`,
		req.CaseID, req.Stage, input, output,
		req.SystemPromptName, req.SystemPromptVersion, req.UserPromptName, req.UserPromptVersion, req.ModelName,
	).Scan(&t.ID, &t.CaseID, &t.Stage, &t.InputPayload, &t.OutputPayload,
		&t.SystemPromptName, &t.SystemPromptVersion, &t.UserPromptName, &t.UserPromptVersion,
		&t.ModelName, &t.CapturedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append llm interaction: %w", err)
	}
	return &t, nil
}

// AppendMatrixMessage records the body of one chat event tied to a case.
func (s *TranscriptStore) AppendMatrixMessage(ctx context.Context, req models.AppendMatrixTranscriptRequest) (*models.CaseMatrixMessageTranscript, error) {
	if req.Direction != models.TranscriptInbound && req.Direction != models.TranscriptOutbound {
		return nil, NewValidationError("direction", fmt.Sprintf("unknown transcript direction: %s", req.Direction))
	}
	var t models.CaseMatrixMessageTranscript
	err := s.db.QueryRow(ctx, `
		INSERT INTO case_matrix_message_transcripts (case_id, room_id, event_id, direction, body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, case_id, room_id, event_id, direction, body, captured_at`,
		req.CaseID, req.RoomID, req.EventID, req.Direction, req.Body,
	).Scan(&t.ID, &t.CaseID, &t.RoomID, &t.EventID, &t.Direction, &t.Body, &t.CapturedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append matrix transcript: %w", err)
	}
	return &t, nil
}

// ListLlmForCase returns the case's LLM interactions in capture order.
func (s *TranscriptStore) ListLlmForCase(ctx context.Context, caseID uuid.UUID) ([]models.CaseLlmInteraction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, case_id, stage, input_payload, output_payload,
			system_prompt_name, system_prompt_version, user_prompt_name, user_prompt_version,
			model_name, captured_at
		FROM case_llm_interactions WHERE case_id = $1 ORDER BY id`,
		caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list llm interactions: %w", err)
	}
	defer rows.Close()

	var interactions []models.CaseLlmInteraction
	for rows.Next() {
		var t models.CaseLlmInteraction
		if err := rows.Scan(&t.ID, &t.CaseID, &t.Stage, &t.InputPayload, &t.OutputPayload,
			&t.SystemPromptName, &t.SystemPromptVersion, &t.UserPromptName, &t.UserPromptVersion,
			&t.ModelName, &t.CapturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan llm interaction: %w", err)
		}
		interactions = append(interactions, t)
	}
	return interactions, rows.Err()
}

// ListMatrixForCase returns the case's chat transcript in capture order.
func (s *TranscriptStore) ListMatrixForCase(ctx context.Context, caseID uuid.UUID) ([]models.CaseMatrixMessageTranscript, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, case_id, room_id, event_id, direction, body, captured_at
		FROM case_matrix_message_transcripts WHERE case_id = $1 ORDER BY id`,
		caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list matrix transcripts: %w", err)
	}
	defer rows.Close()

	var transcripts []models.CaseMatrixMessageTranscript
	for rows.Next() {
		var t models.CaseMatrixMessageTranscript
		if err := rows.Scan(&t.ID, &t.CaseID, &t.RoomID, &t.EventID, &t.Direction, &t.Body, &t.CapturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan matrix transcript: %w", err)
		}
		transcripts = append(transcripts, t)
	}
	return transcripts, rows.Err()
}
