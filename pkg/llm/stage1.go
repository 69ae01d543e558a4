package llm

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medops-br/triagebot/pkg/models"
)

// Stage1Input is the cleaned report text plus the case identifiers the
// response must echo back.
type Stage1Input struct {
	CaseID             uuid.UUID
	AgencyRecordNumber string
	CleanedText        string
}

// Stage1Result carries the validated extraction artifacts for persistence.
type Stage1Result struct {
	StructuredData  map[string]any
	SummaryOneLiner string
	Interaction     models.AppendLlmInteractionRequest
}

// Stage1 runs the extraction stage against the completion client.
type Stage1 struct {
	Client  Client
	Prompts PromptProvider
}

// Run loads the active llm1 prompt pair, calls the model and validates the
// response. Every failure is a retriable StageError tagged llm1.
func (s *Stage1) Run(ctx context.Context, in Stage1Input) (*Stage1Result, error) {
	system, user, err := s.Prompts.ActivePromptPair(ctx, models.PromptLlm1System, models.PromptLlm1User)
	if err != nil {
		return nil, stageErr(StageLlm1, fmt.Sprintf("active prompt pair unavailable: %v", err), err)
	}

	userPrompt := renderStage1UserPrompt(user.Content, in)
	completion, err := s.Client.Complete(ctx, CompletionInput{
		SystemPrompt: system.Content,
		UserPrompt:   userPrompt,
		Stage:        StageLlm1,
	})
	if err != nil {
		return nil, stageErr(StageLlm1, fmt.Sprintf("completion failed: %v", err), err)
	}

	decoded, err := DecodeObject(completion.Content)
	if err != nil {
		return nil, stageErr(StageLlm1, "LLM1 returned non-JSON payload", err)
	}
	if err := ValidatePayload(StageLlm1, decoded); err != nil {
		return nil, stageErr(StageLlm1, fmt.Sprintf("LLM1 schema validation failed: %v", err), err)
	}
	if got, _ := decoded["agency_record_number"].(string); got != in.AgencyRecordNumber {
		return nil, stageErr(StageLlm1, "LLM1 agency_record_number mismatch", nil)
	}

	return &Stage1Result{
		StructuredData:  decoded,
		SummaryOneLiner: summaryOneLiner(decoded),
		Interaction: models.AppendLlmInteractionRequest{
			CaseID: in.CaseID,
			Stage:  models.StageLLM1,
			InputPayload: map[string]any{
				"system_prompt": system.Content,
				"user_prompt":   userPrompt,
			},
			OutputPayload:       decoded,
			SystemPromptName:    system.Name,
			SystemPromptVersion: system.Version,
			UserPromptName:      user.Name,
			UserPromptVersion:   user.Version,
			ModelName:           completion.Model,
		},
	}, nil
}

func renderStage1UserPrompt(template string, in Stage1Input) string {
	return fmt.Sprintf(
		"%s\n\n"+
			"case_id: %s\n"+
			"agency_record_number: %s\n\n"+
			"Report text (cleaned):\n%s\n\n"+
			"Return JSON schema_version 1.1 matching the extraction contract.\n"+
			"All narrative/text outputs must be in Brazilian Portuguese (pt-BR).",
		template, in.CaseID, in.AgencyRecordNumber, in.CleanedText)
}

func summaryOneLiner(structured map[string]any) string {
	summary, _ := structured["summary"].(map[string]any)
	oneLiner, _ := summary["one_liner"].(string)
	return oneLiner
}
