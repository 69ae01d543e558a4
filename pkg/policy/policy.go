// Package policy applies deterministic hard rules to LLM2 triage
// suggestions so the final recommendation never contradicts the LLM1
// precheck facts.
package policy

// AlignmentValue reports how a reconciled requirement relates to the case.
type AlignmentValue string

const (
	AlignmentYes         AlignmentValue = "yes"
	AlignmentNo          AlignmentValue = "no"
	AlignmentUnknown     AlignmentValue = "unknown"
	AlignmentNotRequired AlignmentValue = "not_required"
)

// PrecheckValue is the LLM1 self-reported status of a requirement.
type PrecheckValue string

const (
	PrecheckYes     PrecheckValue = "yes"
	PrecheckNo      PrecheckValue = "no"
	PrecheckUnknown PrecheckValue = "unknown"
)

// Suggestion is the triage verdict under reconciliation.
type Suggestion string

const (
	SuggestionAccept Suggestion = "accept"
	SuggestionDeny   Suggestion = "deny"
)

// IndicationForeignBody exempts a case from labs and ECG requirements.
const IndicationForeignBody = "foreign_body"

// Precheck carries the normalized LLM1 precheck inputs the rules consume.
type Precheck struct {
	ExcludedFromEdaFlow bool
	IndicationCategory  string
	LabsRequired        bool
	LabsPass            PrecheckValue
	EcgRequired         bool
	EcgPresent          PrecheckValue
	PediatricFlag       bool
}

// Alignment is the LLM2 policy_alignment block, before or after
// reconciliation. PediatricFlag and Notes always pass through unchanged.
type Alignment struct {
	ExcludedRequest bool
	LabsOK          AlignmentValue
	EcgOK           AlignmentValue
	PediatricFlag   bool
	Notes           *string
}

// Contradiction records one field a rule overrode.
type Contradiction struct {
	Rule            string `json:"rule"`
	Field           string `json:"field"`
	PreviousValue   any    `json:"previous_value"`
	ReconciledValue any    `json:"reconciled_value"`
}

// Result is the reconciled output plus the audit trail of overrides.
type Result struct {
	Suggestion     Suggestion
	Alignment      Alignment
	Contradictions []Contradiction
}

// Reconcile applies the hard rules in order: an excluded request forces a
// denial outright; a foreign-body indication waives labs and ECG; otherwise
// a required-but-not-passed labs or ECG check forces a denial. Rules emit a
// Contradiction only for fields whose value actually changed.
func Reconcile(precheck Precheck, suggestion Suggestion, alignment Alignment) Result {
	out := alignment
	current := suggestion
	var contradictions []Contradiction

	record := func(rule, field string, previous, updated any) {
		if previous == updated {
			return
		}
		contradictions = append(contradictions, Contradiction{
			Rule:            rule,
			Field:           field,
			PreviousValue:   previous,
			ReconciledValue: updated,
		})
	}

	switch {
	case precheck.ExcludedFromEdaFlow:
		record("excluded_request_forces_deny", "suggestion",
			string(current), string(SuggestionDeny))
		current = SuggestionDeny

		record("excluded_request_forces_alignment", "policy_alignment.excluded_request",
			out.ExcludedRequest, true)
		out.ExcludedRequest = true

	case precheck.IndicationCategory == IndicationForeignBody:
		record("foreign_body_overrides_labs", "policy_alignment.labs_ok",
			string(out.LabsOK), string(AlignmentNotRequired))
		out.LabsOK = AlignmentNotRequired

		record("foreign_body_overrides_ecg", "policy_alignment.ecg_ok",
			string(out.EcgOK), string(AlignmentNotRequired))
		out.EcgOK = AlignmentNotRequired

	default:
		if precheck.LabsRequired && precheck.LabsPass != PrecheckYes {
			target := requiredAlignment(precheck.LabsPass)
			record("required_labs_must_align", "policy_alignment.labs_ok",
				string(out.LabsOK), string(target))
			out.LabsOK = target

			record("required_labs_missing_or_failed_forces_deny", "suggestion",
				string(current), string(SuggestionDeny))
			current = SuggestionDeny
		}

		if precheck.EcgRequired && precheck.EcgPresent != PrecheckYes {
			target := requiredAlignment(precheck.EcgPresent)
			record("required_ecg_must_align", "policy_alignment.ecg_ok",
				string(out.EcgOK), string(target))
			out.EcgOK = target

			record("required_ecg_missing_forces_deny", "suggestion",
				string(current), string(SuggestionDeny))
			current = SuggestionDeny
		}
	}

	return Result{
		Suggestion:     current,
		Alignment:      out,
		Contradictions: contradictions,
	}
}

func requiredAlignment(value PrecheckValue) AlignmentValue {
	if value == PrecheckNo {
		return AlignmentNo
	}
	return AlignmentUnknown
}
