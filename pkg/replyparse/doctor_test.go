package replyparse

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medops-br/triagebot/pkg/models"
)

func requireParseCode(t *testing.T, err error, code string) {
	t.Helper()
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, code, perr.Code)
}

func TestParseDoctorDecision_PortugueseTemplate(t *testing.T) {
	caseID := uuid.New()
	body := fmt.Sprintf("decisao: aceitar\nsuporte: nenhum\nmotivo: (opcional)\ncaso: %s", caseID)

	parsed, err := ParseDoctorDecision(body, &caseID)

	require.NoError(t, err)
	assert.Equal(t, caseID, parsed.CaseID)
	assert.Equal(t, models.DecisionAccept, parsed.Decision)
	assert.Equal(t, models.SupportNone, parsed.SupportFlag)
	assert.Nil(t, parsed.Reason)
}

func TestParseDoctorDecision_EnglishKeys(t *testing.T) {
	caseID := uuid.New()
	body := fmt.Sprintf(
		"decision: accept\nsupport_flag: anesthesist_icu\nreason: paciente instável\ncase_id: %s",
		caseID)

	parsed, err := ParseDoctorDecision(body, nil)

	require.NoError(t, err)
	assert.Equal(t, caseID, parsed.CaseID)
	assert.Equal(t, models.SupportAnesthesistICU, parsed.SupportFlag)
	require.NotNil(t, parsed.Reason)
	assert.Equal(t, "paciente instável", *parsed.Reason)
}

func TestParseDoctorDecision_DiacriticsAndCase(t *testing.T) {
	caseID := uuid.New()
	body := fmt.Sprintf("Decisão: Aceitar\nSuporte: Anestesista\nMotivo: vazio\nCaso: %s", caseID)

	parsed, err := ParseDoctorDecision(body, &caseID)

	require.NoError(t, err)
	assert.Equal(t, models.DecisionAccept, parsed.Decision)
	assert.Equal(t, models.SupportAnesthesist, parsed.SupportFlag)
	assert.Nil(t, parsed.Reason)
}

func TestParseDoctorDecision_FullWidthColonAndFences(t *testing.T) {
	caseID := uuid.New()
	body := fmt.Sprintf("```\ndecisao： negar\nsuporte: nenhum\nmotivo: -\ncaso: %s\n```", caseID)

	parsed, err := ParseDoctorDecision(body, &caseID)

	require.NoError(t, err)
	assert.Equal(t, models.DecisionDeny, parsed.Decision)
	assert.Nil(t, parsed.Reason)
}

func TestParseDoctorDecision_DenyWithTrailingPeriod(t *testing.T) {
	caseID := uuid.New()
	body := fmt.Sprintf("decisao: negar.\nsuporte: nenhum\nmotivo: sem indicação\ncaso: %s", caseID)

	parsed, err := ParseDoctorDecision(body, &caseID)

	require.NoError(t, err)
	assert.Equal(t, models.DecisionDeny, parsed.Decision)
	require.NotNil(t, parsed.Reason)
	assert.Equal(t, "sem indicação", *parsed.Reason)
}

func TestParseDoctorDecision_DenyRequiresSupportNone(t *testing.T) {
	caseID := uuid.New()
	body := fmt.Sprintf("decisao: negar\nsuporte: anestesista\nmotivo: \ncaso: %s", caseID)

	_, err := ParseDoctorDecision(body, &caseID)

	requireParseCode(t, err, CodeInvalidSupportForDecision)
}

func TestParseDoctorDecision_Failures(t *testing.T) {
	caseID := uuid.New()
	otherID := uuid.New()
	valid := func(overrideLine int, line string) string {
		lines := []string{
			"decisao: aceitar",
			"suporte: nenhum",
			"motivo: ok",
			fmt.Sprintf("caso: %s", caseID),
		}
		if overrideLine >= 0 {
			lines[overrideLine] = line
		}
		out := ""
		for _, l := range lines {
			if l == "" {
				continue
			}
			out += l + "\n"
		}
		return out
	}

	tests := []struct {
		name string
		body string
		code string
	}{
		{"empty body", "  \n\n", CodeEmptyMessage},
		{"line without colon", valid(0, "aceitar"), CodeInvalidLineFormat},
		{"unknown key", valid(2, "observacao: ok"), "unknown_field"},
		{"duplicate key", valid(-1, "") + "decisao: negar\n", CodeDuplicateField},
		{"missing decision line", valid(0, ""), "missing_decision_line"},
		{"missing support line", valid(1, ""), "missing_support_flag_line"},
		{"missing reason line", valid(2, ""), "missing_reason_line"},
		{"missing case line", valid(3, ""), "missing_case_id_line"},
		{"bad decision value", valid(0, "decisao: talvez"), CodeInvalidDecisionValue},
		{"bad support value", valid(1, "suporte: enfermeira"), CodeInvalidSupportFlagValue},
		{"bad case uuid", valid(3, "caso: not-a-uuid"), CodeInvalidCaseLine},
		{"case mismatch", valid(3, fmt.Sprintf("caso: %s", otherID)), CodeCaseIDMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDoctorDecision(tc.body, &caseID)
			requireParseCode(t, err, tc.code)
		})
	}
}

func TestParseDoctorDecision_EmptyReasonMarkers(t *testing.T) {
	caseID := uuid.New()
	for _, marker := range []string{"", "(opcional)", "opcional", "(vazio)", "vazio", "-", "n/a", "NA"} {
		body := fmt.Sprintf("decisao: aceitar\nsuporte: nenhum\nmotivo: %s\ncaso: %s", marker, caseID)
		parsed, err := ParseDoctorDecision(body, &caseID)
		require.NoError(t, err, "marker %q", marker)
		assert.Nil(t, parsed.Reason, "marker %q", marker)
	}
}
