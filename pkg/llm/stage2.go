package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/medops-br/triagebot/pkg/models"
	"github.com/medops-br/triagebot/pkg/policy"
)

// Stage2Input is the validated LLM1 artifact plus optional prior-case
// context for the suggestion stage.
type Stage2Input struct {
	CaseID             uuid.UUID
	AgencyRecordNumber string
	StructuredData     map[string]any
	PriorCase          map[string]any
}

// Stage2Result carries the policy-reconciled suggestion for persistence.
// SuggestedAction is the validated response with the reconciled suggestion,
// policy_alignment and contradictions merged in.
type Stage2Result struct {
	SuggestedAction map[string]any
	Contradictions  []policy.Contradiction
	Interaction     models.AppendLlmInteractionRequest
}

// Stage2 runs the suggestion stage and applies the deterministic policy
// rules to the model's output.
type Stage2 struct {
	Client  Client
	Prompts PromptProvider
}

// Run validates the LLM1 input, calls the model and reconciles the
// response. Narrative fields that come back with English residue trigger
// one in-call retry before failing. Every failure is a retriable
// StageError tagged llm2.
func (s *Stage2) Run(ctx context.Context, in Stage2Input) (*Stage2Result, error) {
	if err := ValidatePayload(StageLlm1, in.StructuredData); err != nil {
		return nil, stageErr(StageLlm2, fmt.Sprintf("LLM1 payload invalid for LLM2 input: %v", err), err)
	}

	system, user, err := s.Prompts.ActivePromptPair(ctx, models.PromptLlm2System, models.PromptLlm2User)
	if err != nil {
		return nil, stageErr(StageLlm2, fmt.Sprintf("active prompt pair unavailable: %v", err), err)
	}

	userPrompt, err := renderStage2UserPrompt(user.Content, in)
	if err != nil {
		return nil, stageErr(StageLlm2, fmt.Sprintf("render user prompt: %v", err), err)
	}
	completionInput := CompletionInput{
		SystemPrompt: system.Content,
		UserPrompt:   userPrompt,
		Stage:        StageLlm2,
	}

	validated, completion, err := s.completeValidated(ctx, completionInput, in)
	if err != nil {
		return nil, err
	}

	// One retry with the same prompts when narrative fields carry English
	// residue; a second hit fails the stage.
	if terms := narrativeForbiddenTerms(validated); len(terms) > 0 {
		validated, completion, err = s.completeValidated(ctx, completionInput, in)
		if err != nil {
			return nil, err
		}
		if terms := narrativeForbiddenTerms(validated); len(terms) > 0 {
			return nil, stageErr(StageLlm2,
				fmt.Sprintf("non-ptbr narrative terms: %s", strings.Join(terms, ", ")), nil)
		}
	}

	result := policy.Reconcile(precheckFromStructured(in.StructuredData), suggestionFrom(validated), alignmentFrom(validated))

	suggestedAction := make(map[string]any, len(validated)+1)
	for k, v := range validated {
		suggestedAction[k] = v
	}
	suggestedAction["suggestion"] = string(result.Suggestion)
	suggestedAction["policy_alignment"] = map[string]any{
		"excluded_request": result.Alignment.ExcludedRequest,
		"labs_ok":          string(result.Alignment.LabsOK),
		"ecg_ok":           string(result.Alignment.EcgOK),
		"pediatric_flag":   result.Alignment.PediatricFlag,
		"notes":            notesValue(result.Alignment.Notes),
	}
	suggestedAction["contradictions"] = contradictionList(result.Contradictions)

	return &Stage2Result{
		SuggestedAction: suggestedAction,
		Contradictions:  result.Contradictions,
		Interaction: models.AppendLlmInteractionRequest{
			CaseID: in.CaseID,
			Stage:  models.StageLLM2,
			InputPayload: map[string]any{
				"system_prompt": system.Content,
				"user_prompt":   userPrompt,
			},
			OutputPayload:       suggestedAction,
			SystemPromptName:    system.Name,
			SystemPromptVersion: system.Version,
			UserPromptName:      user.Name,
			UserPromptVersion:   user.Version,
			ModelName:           completion.Model,
		},
	}, nil
}

// completeValidated performs one model call and enforces the schema and
// identifier equality invariants on its response.
func (s *Stage2) completeValidated(ctx context.Context, completionInput CompletionInput, in Stage2Input) (map[string]any, CompletionResult, error) {
	completion, err := s.Client.Complete(ctx, completionInput)
	if err != nil {
		return nil, CompletionResult{}, stageErr(StageLlm2, fmt.Sprintf("completion failed: %v", err), err)
	}
	decoded, err := DecodeObject(completion.Content)
	if err != nil {
		return nil, CompletionResult{}, stageErr(StageLlm2, "LLM2 returned non-JSON payload", err)
	}
	if err := ValidatePayload(StageLlm2, decoded); err != nil {
		return nil, CompletionResult{}, stageErr(StageLlm2, fmt.Sprintf("LLM2 schema validation failed: %v", err), err)
	}
	if got, _ := decoded["case_id"].(string); got != in.CaseID.String() {
		return nil, CompletionResult{}, stageErr(StageLlm2, "LLM2 case_id mismatch", nil)
	}
	if got, _ := decoded["agency_record_number"].(string); got != in.AgencyRecordNumber {
		return nil, CompletionResult{}, stageErr(StageLlm2, "LLM2 agency_record_number mismatch", nil)
	}
	return decoded, completion, nil
}

func renderStage2UserPrompt(template string, in Stage2Input) (string, error) {
	llm1JSON, err := json.Marshal(in.StructuredData)
	if err != nil {
		return "", fmt.Errorf("encode llm1 payload: %w", err)
	}
	var priorJSON []byte
	if in.PriorCase != nil {
		priorJSON, err = json.Marshal(in.PriorCase)
	} else {
		priorJSON = []byte("null")
	}
	if err != nil {
		return "", fmt.Errorf("encode prior case: %w", err)
	}
	return fmt.Sprintf(
		"%s\n\n"+
			"case_id: %s\n"+
			"agency_record_number: %s\n\n"+
			"Extracted data (LLM1 JSON):\n%s\n\n"+
			"Prior decision (if any):\n%s\n\n"+
			"Return JSON schema_version 1.1 with policy_alignment and confidence.\n"+
			"All narrative/text outputs must be in Brazilian Portuguese (pt-BR).",
		template, in.CaseID, in.AgencyRecordNumber, llm1JSON, priorJSON), nil
}

// narrativeForbiddenTerms scans the free-text fields of a validated LLM2
// payload for English residue.
func narrativeForbiddenTerms(validated map[string]any) []string {
	var texts []string
	if rationale, ok := validated["rationale"].(map[string]any); ok {
		if reason, ok := rationale["short_reason"].(string); ok {
			texts = append(texts, reason)
		}
		if details, ok := rationale["details"].([]any); ok {
			for _, d := range details {
				if s, ok := d.(string); ok {
					texts = append(texts, s)
				}
			}
		}
	}
	if alignment, ok := validated["policy_alignment"].(map[string]any); ok {
		if notes, ok := alignment["notes"].(string); ok {
			texts = append(texts, notes)
		}
	}
	return CollectForbiddenTerms(texts...)
}

func precheckFromStructured(structured map[string]any) policy.Precheck {
	precheck, _ := structured["policy_precheck"].(map[string]any)
	eda, _ := structured["eda"].(map[string]any)
	indication, _ := eda["indication_category"].(string)
	return policy.Precheck{
		ExcludedFromEdaFlow: boolField(precheck, "excluded_from_eda_flow"),
		IndicationCategory:  indication,
		LabsRequired:        boolField(precheck, "labs_required"),
		LabsPass:            policy.PrecheckValue(stringField(precheck, "labs_pass")),
		EcgRequired:         boolField(precheck, "ecg_required"),
		EcgPresent:          policy.PrecheckValue(stringField(precheck, "ecg_present")),
		PediatricFlag:       boolField(precheck, "pediatric_flag"),
	}
}

func suggestionFrom(validated map[string]any) policy.Suggestion {
	return policy.Suggestion(stringField(validated, "suggestion"))
}

func alignmentFrom(validated map[string]any) policy.Alignment {
	alignment, _ := validated["policy_alignment"].(map[string]any)
	var notes *string
	if s, ok := alignment["notes"].(string); ok {
		notes = &s
	}
	return policy.Alignment{
		ExcludedRequest: boolField(alignment, "excluded_request"),
		LabsOK:          policy.AlignmentValue(stringField(alignment, "labs_ok")),
		EcgOK:           policy.AlignmentValue(stringField(alignment, "ecg_ok")),
		PediatricFlag:   boolField(alignment, "pediatric_flag"),
		Notes:           notes,
	}
}

func contradictionList(contradictions []policy.Contradiction) []any {
	out := make([]any, len(contradictions))
	for i, c := range contradictions {
		out[i] = map[string]any{
			"rule":             c.Rule,
			"field":            c.Field,
			"previous_value":   c.PreviousValue,
			"reconciled_value": c.ReconciledValue,
		}
	}
	return out
}

func notesValue(notes *string) any {
	if notes == nil {
		return nil
	}
	return *notes
}

func boolField(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}
