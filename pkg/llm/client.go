// Package llm implements the two-stage triage pipeline: structured
// extraction (LLM1) and policy-aware suggestion (LLM2), both validated
// against embedded JSON schemas before anything is persisted.
package llm

import (
	"context"
	"fmt"

	"github.com/medops-br/triagebot/pkg/models"
)

// Stage identifies which pipeline stage a completion serves.
type Stage string

const (
	StageLlm1 Stage = "llm1"
	StageLlm2 Stage = "llm2"
)

// CompletionInput carries the rendered prompts for one model call.
type CompletionInput struct {
	SystemPrompt string
	UserPrompt   string
	Stage        Stage
}

// CompletionResult is the raw model output plus the model that produced it.
type CompletionResult struct {
	Content string
	Model   string
}

// Client is the completion port implemented by the provider-backed and
// deterministic clients.
type Client interface {
	Complete(ctx context.Context, in CompletionInput) (CompletionResult, error)
}

// PromptProvider resolves the active system+user prompt pair for a stage.
type PromptProvider interface {
	ActivePromptPair(ctx context.Context, systemName, userName string) (system, user models.PromptTemplate, err error)
}

// StageError is a retriable pipeline failure tagged with the stage that
// caused it. The cause label ends up on the retried job for later
// categorization.
type StageError struct {
	Cause   Stage
	Details string
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Cause, e.Details)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, details string, err error) *StageError {
	return &StageError{Cause: stage, Details: details, Err: err}
}
