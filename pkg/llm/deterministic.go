package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

var (
	deterministicCaseIDPattern = regexp.MustCompile(`case_id:\s*([0-9a-fA-F-]{36})`)
	deterministicRecordPattern = regexp.MustCompile(`agency_record_number:\s*([0-9]{5,})`)
)

// DeterministicClient returns fixed schema-valid pt-BR payloads without
// calling a provider, echoing back the case_id and agency_record_number it
// finds in the user prompt. It backs the offline runtime validation mode.
type DeterministicClient struct{}

func (DeterministicClient) Complete(_ context.Context, in CompletionInput) (CompletionResult, error) {
	var (
		payload map[string]any
		err     error
	)
	if in.Stage == StageLlm2 {
		payload, err = deterministicLlm2Payload(in.UserPrompt)
	} else {
		payload, err = deterministicLlm1Payload(in.UserPrompt)
	}
	if err != nil {
		return CompletionResult{}, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("encode deterministic payload: %w", err)
	}
	return CompletionResult{Content: string(raw), Model: "deterministic"}, nil
}

func deterministicLlm1Payload(userPrompt string) (map[string]any, error) {
	recordNumber, err := promptRecordNumber(userPrompt)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"schema_version":       SchemaVersion,
		"language":             "pt-BR",
		"agency_record_number": recordNumber,
		"patient": map[string]any{
			"name": "Paciente", "age": 50, "sex": "F", "document_id": nil,
		},
		"eda": map[string]any{
			"indication_category":    "dyspepsia",
			"exclusion_type":         "none",
			"is_pediatric":           false,
			"foreign_body_suspected": false,
			"requested_procedure":    map[string]any{"name": "EDA", "urgency": "eletivo"},
			"labs": map[string]any{
				"hb_g_dl":           11.0,
				"platelets_per_mm3": 180000,
				"inr":               1.1,
				"source_text_hint":  "deterministico",
			},
			"ecg": map[string]any{
				"report_present":   "yes",
				"abnormal_flag":    "no",
				"source_text_hint": "deterministico",
			},
			"asa": map[string]any{"class": "II", "confidence": "media", "rationale": "deterministico"},
			"cardiovascular_risk": map[string]any{
				"level": "low", "confidence": "media", "rationale": "deterministico",
			},
		},
		"policy_precheck": map[string]any{
			"excluded_from_eda_flow": false,
			"exclusion_reason":       nil,
			"labs_required":          true,
			"labs_pass":              "yes",
			"labs_failed_items":      []any{},
			"ecg_required":           true,
			"ecg_present":            "yes",
			"pediatric_flag":         false,
			"notes":                  "deterministico",
		},
		"summary": map[string]any{
			"one_liner": "Resumo deterministico para validacao de runtime",
			"bullet_points": []any{
				"deterministico passo 1",
				"deterministico passo 2",
				"deterministico passo 3",
			},
		},
		"extraction_quality": map[string]any{
			"confidence": "media", "missing_fields": []any{}, "notes": nil,
		},
	}, nil
}

func deterministicLlm2Payload(userPrompt string) (map[string]any, error) {
	caseID, err := promptCaseID(userPrompt)
	if err != nil {
		return nil, err
	}
	recordNumber, err := promptRecordNumber(userPrompt)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"schema_version":         SchemaVersion,
		"language":               "pt-BR",
		"case_id":                caseID,
		"agency_record_number":   recordNumber,
		"suggestion":             "accept",
		"support_recommendation": "none",
		"rationale": map[string]any{
			"short_reason":           "Deterministico: criterios minimos atendidos",
			"details":                []any{"deterministico detalhe 1", "deterministico detalhe 2"},
			"missing_info_questions": []any{},
		},
		"policy_alignment": map[string]any{
			"excluded_request": false,
			"labs_ok":          "yes",
			"ecg_ok":           "yes",
			"pediatric_flag":   false,
			"notes":            "deterministico",
		},
		"confidence": "media",
	}, nil
}

func promptCaseID(userPrompt string) (string, error) {
	m := deterministicCaseIDPattern.FindStringSubmatch(userPrompt)
	if m == nil {
		return "", errors.New("deterministic llm2 prompt missing case_id")
	}
	return m[1], nil
}

func promptRecordNumber(userPrompt string) (string, error) {
	m := deterministicRecordPattern.FindStringSubmatch(userPrompt)
	if m == nil {
		return "", errors.New("deterministic llm prompt missing agency_record_number")
	}
	return m[1], nil
}
