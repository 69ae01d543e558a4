package models

import (
	"time"

	"github.com/google/uuid"
)

// LlmStage labels which pipeline stage produced an interaction transcript.
type LlmStage string

const (
	StageLLM1 LlmStage = "LLM1"
	StageLLM2 LlmStage = "LLM2"
)

// TranscriptDirection marks whether a chat transcript row was received or sent.
type TranscriptDirection string

const (
	TranscriptInbound  TranscriptDirection = "inbound"
	TranscriptOutbound TranscriptDirection = "outbound"
)

// CaseReportTranscript is the append-only record of an extracted report.
type CaseReportTranscript struct {
	ID         int64     `json:"id"`
	CaseID     uuid.UUID `json:"case_id"`
	Source     string    `json:"source"`
	Content    string    `json:"content"`
	CapturedAt time.Time `json:"captured_at"`
}

// CaseLlmInteraction is the append-only record of one LLM call.
type CaseLlmInteraction struct {
	ID                  int64          `json:"id"`
	CaseID              uuid.UUID      `json:"case_id"`
	Stage               LlmStage       `json:"stage"`
	InputPayload        map[string]any `json:"input_payload"`
	OutputPayload       map[string]any `json:"output_payload,omitempty"`
	SystemPromptName    string         `json:"system_prompt_name"`
	SystemPromptVersion int            `json:"system_prompt_version"`
	UserPromptName      string         `json:"user_prompt_name"`
	UserPromptVersion   int            `json:"user_prompt_version"`
	ModelName           string         `json:"model_name"`
	CapturedAt          time.Time      `json:"captured_at"`
}

// AppendLlmInteractionRequest contains fields for one interaction row.
type AppendLlmInteractionRequest struct {
	CaseID              uuid.UUID      `json:"case_id"`
	Stage               LlmStage       `json:"stage"`
	InputPayload        map[string]any `json:"input_payload"`
	OutputPayload       map[string]any `json:"output_payload,omitempty"`
	SystemPromptName    string         `json:"system_prompt_name"`
	SystemPromptVersion int            `json:"system_prompt_version"`
	UserPromptName      string         `json:"user_prompt_name"`
	UserPromptVersion   int            `json:"user_prompt_version"`
	ModelName           string         `json:"model_name"`
}

// CaseMatrixMessageTranscript is the append-only record of one chat event body.
type CaseMatrixMessageTranscript struct {
	ID         int64               `json:"id"`
	CaseID     uuid.UUID           `json:"case_id"`
	RoomID     string              `json:"room_id"`
	EventID    string              `json:"event_id"`
	Direction  TranscriptDirection `json:"direction"`
	Body       string              `json:"body"`
	CapturedAt time.Time           `json:"captured_at"`
}

// AppendMatrixTranscriptRequest contains fields for one chat transcript row.
type AppendMatrixTranscriptRequest struct {
	CaseID    uuid.UUID           `json:"case_id"`
	RoomID    string              `json:"room_id"`
	EventID   string              `json:"event_id"`
	Direction TranscriptDirection `json:"direction"`
	Body      string              `json:"body"`
}
