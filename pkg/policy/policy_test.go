package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func basePrecheck() Precheck {
	return Precheck{
		ExcludedFromEdaFlow: false,
		IndicationCategory:  "dyspepsia",
		LabsRequired:        true,
		LabsPass:            PrecheckYes,
		EcgRequired:         true,
		EcgPresent:          PrecheckYes,
		PediatricFlag:       false,
	}
}

func baseAlignment() Alignment {
	return Alignment{
		ExcludedRequest: false,
		LabsOK:          AlignmentYes,
		EcgOK:           AlignmentYes,
		PediatricFlag:   false,
		Notes:           nil,
	}
}

func TestReconcile(t *testing.T) {
	t.Run("consistent input passes through untouched", func(t *testing.T) {
		result := Reconcile(basePrecheck(), SuggestionAccept, baseAlignment())

		assert.Equal(t, SuggestionAccept, result.Suggestion)
		assert.Equal(t, baseAlignment(), result.Alignment)
		assert.Empty(t, result.Contradictions)
	})

	t.Run("excluded request forces deny", func(t *testing.T) {
		precheck := basePrecheck()
		precheck.ExcludedFromEdaFlow = true

		result := Reconcile(precheck, SuggestionAccept, baseAlignment())

		assert.Equal(t, SuggestionDeny, result.Suggestion)
		assert.True(t, result.Alignment.ExcludedRequest)
		require.Len(t, result.Contradictions, 2)
		assert.Equal(t, "excluded_request_forces_deny", result.Contradictions[0].Rule)
		assert.Equal(t, "suggestion", result.Contradictions[0].Field)
		assert.Equal(t, "accept", result.Contradictions[0].PreviousValue)
		assert.Equal(t, "deny", result.Contradictions[0].ReconciledValue)
		assert.Equal(t, "excluded_request_forces_alignment", result.Contradictions[1].Rule)
		assert.Equal(t, "policy_alignment.excluded_request", result.Contradictions[1].Field)
	})

	t.Run("exclusion skips labs and ecg rules", func(t *testing.T) {
		precheck := basePrecheck()
		precheck.ExcludedFromEdaFlow = true
		precheck.LabsPass = PrecheckNo
		precheck.EcgPresent = PrecheckNo
		alignment := baseAlignment()

		result := Reconcile(precheck, SuggestionDeny, alignment)

		assert.Equal(t, AlignmentYes, result.Alignment.LabsOK)
		assert.Equal(t, AlignmentYes, result.Alignment.EcgOK)
	})

	t.Run("foreign body waives labs and ecg", func(t *testing.T) {
		precheck := basePrecheck()
		precheck.IndicationCategory = IndicationForeignBody
		precheck.LabsPass = PrecheckNo
		precheck.EcgPresent = PrecheckNo

		result := Reconcile(precheck, SuggestionAccept, baseAlignment())

		assert.Equal(t, SuggestionAccept, result.Suggestion)
		assert.Equal(t, AlignmentNotRequired, result.Alignment.LabsOK)
		assert.Equal(t, AlignmentNotRequired, result.Alignment.EcgOK)
		require.Len(t, result.Contradictions, 2)
		assert.Equal(t, "foreign_body_overrides_labs", result.Contradictions[0].Rule)
		assert.Equal(t, "foreign_body_overrides_ecg", result.Contradictions[1].Rule)
	})

	t.Run("failed labs force deny with no alignment", func(t *testing.T) {
		precheck := basePrecheck()
		precheck.LabsPass = PrecheckNo

		result := Reconcile(precheck, SuggestionAccept, baseAlignment())

		assert.Equal(t, SuggestionDeny, result.Suggestion)
		assert.Equal(t, AlignmentNo, result.Alignment.LabsOK)
		require.Len(t, result.Contradictions, 2)
		assert.Equal(t, "required_labs_must_align", result.Contradictions[0].Rule)
		assert.Equal(t, "required_labs_missing_or_failed_forces_deny", result.Contradictions[1].Rule)
	})

	t.Run("unknown labs map to unknown alignment", func(t *testing.T) {
		precheck := basePrecheck()
		precheck.LabsPass = PrecheckUnknown

		result := Reconcile(precheck, SuggestionAccept, baseAlignment())

		assert.Equal(t, SuggestionDeny, result.Suggestion)
		assert.Equal(t, AlignmentUnknown, result.Alignment.LabsOK)
	})

	t.Run("missing ecg forces deny", func(t *testing.T) {
		precheck := basePrecheck()
		precheck.EcgPresent = PrecheckUnknown

		result := Reconcile(precheck, SuggestionAccept, baseAlignment())

		assert.Equal(t, SuggestionDeny, result.Suggestion)
		assert.Equal(t, AlignmentUnknown, result.Alignment.EcgOK)
		require.Len(t, result.Contradictions, 2)
		assert.Equal(t, "required_ecg_must_align", result.Contradictions[0].Rule)
		assert.Equal(t, "required_ecg_missing_forces_deny", result.Contradictions[1].Rule)
	})

	t.Run("not required checks never fire", func(t *testing.T) {
		precheck := basePrecheck()
		precheck.LabsRequired = false
		precheck.LabsPass = PrecheckNo
		precheck.EcgRequired = false
		precheck.EcgPresent = PrecheckNo

		result := Reconcile(precheck, SuggestionAccept, baseAlignment())

		assert.Equal(t, SuggestionAccept, result.Suggestion)
		assert.Empty(t, result.Contradictions)
	})

	t.Run("pediatric flag and notes pass through", func(t *testing.T) {
		notes := "paciente pediátrico encaminhado"
		alignment := baseAlignment()
		alignment.PediatricFlag = true
		alignment.Notes = &notes
		precheck := basePrecheck()
		precheck.LabsPass = PrecheckNo

		result := Reconcile(precheck, SuggestionAccept, alignment)

		assert.True(t, result.Alignment.PediatricFlag)
		require.NotNil(t, result.Alignment.Notes)
		assert.Equal(t, notes, *result.Alignment.Notes)
	})

	t.Run("identical inputs produce identical results", func(t *testing.T) {
		precheck := basePrecheck()
		precheck.ExcludedFromEdaFlow = true
		precheck.LabsPass = PrecheckNo

		first := Reconcile(precheck, SuggestionAccept, baseAlignment())
		second := Reconcile(precheck, SuggestionAccept, baseAlignment())

		assert.Equal(t, first, second)
	})

	t.Run("already denied suggestion yields no suggestion contradiction", func(t *testing.T) {
		precheck := basePrecheck()
		precheck.ExcludedFromEdaFlow = true

		result := Reconcile(precheck, SuggestionDeny, baseAlignment())

		assert.Equal(t, SuggestionDeny, result.Suggestion)
		for _, c := range result.Contradictions {
			assert.NotEqual(t, "suggestion", c.Field)
		}
	})
}
