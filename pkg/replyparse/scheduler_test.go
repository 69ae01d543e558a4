package replyparse

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medops-br/triagebot/pkg/models"
)

func TestParseSchedulerReply_ConfirmedTemplate(t *testing.T) {
	caseID := uuid.New()
	body := fmt.Sprintf("16-02-2026 14:30 BRT\nlocation: Sala 2\ninstructions: Jejum 8h\ncase: %s\n", caseID)

	parsed, err := ParseSchedulerReply(body, caseID)

	require.NoError(t, err)
	assert.Equal(t, models.AppointmentConfirmed, parsed.AppointmentStatus)
	assert.Equal(t, caseID, parsed.CaseID)
	require.NotNil(t, parsed.Location)
	assert.Equal(t, "Sala 2", *parsed.Location)
	require.NotNil(t, parsed.Instructions)
	assert.Equal(t, "Jejum 8h", *parsed.Instructions)
	require.NotNil(t, parsed.AppointmentAt)
	assert.Equal(t, time.Date(2026, 2, 16, 17, 30, 0, 0, time.UTC), parsed.AppointmentAt.UTC())
}

func TestParseSchedulerReply_DeniedTemplate(t *testing.T) {
	caseID := uuid.New()
	body := fmt.Sprintf("denied\nreason: sem agenda\ncase: %s\n", caseID)

	parsed, err := ParseSchedulerReply(body, caseID)

	require.NoError(t, err)
	assert.Equal(t, models.AppointmentDenied, parsed.AppointmentStatus)
	require.NotNil(t, parsed.Reason)
	assert.Equal(t, "sem agenda", *parsed.Reason)
	assert.Nil(t, parsed.AppointmentAt)
	assert.Nil(t, parsed.Location)
	assert.Nil(t, parsed.Instructions)
}

func TestParseSchedulerReply_ConfirmedWithHeader(t *testing.T) {
	caseID := uuid.New()
	body := fmt.Sprintf("Confirmed:\n22-02-2026 15:30 BRT\nlocation: CHD HGRS\ninstructions: jejum de 06 horas\ncase: %s\n", caseID)

	parsed, err := ParseSchedulerReply(body, caseID)

	require.NoError(t, err)
	assert.Equal(t, models.AppointmentConfirmed, parsed.AppointmentStatus)
	require.NotNil(t, parsed.Location)
	assert.Equal(t, "CHD HGRS", *parsed.Location)
	require.NotNil(t, parsed.AppointmentAt)
}

func TestParseSchedulerReply_DeniedWithHeader(t *testing.T) {
	caseID := uuid.New()
	body := fmt.Sprintf("Denied:\ndenied\nreason: sem agenda na data\ncase: %s\n", caseID)

	parsed, err := ParseSchedulerReply(body, caseID)

	require.NoError(t, err)
	assert.Equal(t, models.AppointmentDenied, parsed.AppointmentStatus)
	require.NotNil(t, parsed.Reason)
	assert.Equal(t, "sem agenda na data", *parsed.Reason)
}

func TestParseSchedulerReply_PortugueseConfirmed(t *testing.T) {
	caseID := uuid.New()
	body := fmt.Sprintf("Confirmado:\n22-02-2026 15:30 BRT\nlocal: CHD HGRS\ninstruções: jejum de 06 horas\ncaso: %s\n", caseID)

	parsed, err := ParseSchedulerReply(body, caseID)

	require.NoError(t, err)
	assert.Equal(t, models.AppointmentConfirmed, parsed.AppointmentStatus)
	require.NotNil(t, parsed.Instructions)
	assert.Equal(t, "jejum de 06 horas", *parsed.Instructions)
}

func TestParseSchedulerReply_PortugueseDenied(t *testing.T) {
	caseID := uuid.New()
	body := fmt.Sprintf("Negado:\nnegado\nmotivo: sem agenda na data\ncaso: %s\n", caseID)

	parsed, err := ParseSchedulerReply(body, caseID)

	require.NoError(t, err)
	assert.Equal(t, models.AppointmentDenied, parsed.AppointmentStatus)
	require.NotNil(t, parsed.Reason)
	assert.Equal(t, "sem agenda na data", *parsed.Reason)
}

func TestParseSchedulerReply_SlashDatetimeWithoutSuffix(t *testing.T) {
	caseID := uuid.New()
	body := fmt.Sprintf("22/02/2026 15:30\nlocal: Sala 1\ninstrucoes: jejum\ncaso: %s\n", caseID)

	parsed, err := ParseSchedulerReply(body, caseID)

	require.NoError(t, err)
	require.NotNil(t, parsed.AppointmentAt)
	assert.Equal(t, time.Date(2026, 2, 22, 18, 30, 0, 0, time.UTC), parsed.AppointmentAt.UTC())
}

func TestParseSchedulerReply_Failures(t *testing.T) {
	caseID := uuid.New()
	otherID := uuid.New()

	tests := []struct {
		name string
		body string
		code string
	}{
		{"empty body", "\n  \n", CodeEmptyMessage},
		{"missing case line", "denied\nreason: x\n", CodeMissingCaseLine},
		{"invalid case uuid", "denied\ncase: nope\n", CodeInvalidCaseLine},
		{"case mismatch", fmt.Sprintf("denied\ncase: %s\n", otherID), CodeCaseIDMismatch},
		{"bad datetime", fmt.Sprintf("tomorrow 10am\nlocation: x\ninstructions: y\ncase: %s\n", caseID), CodeInvalidConfirmedDatetime},
		{"header without datetime", fmt.Sprintf("Confirmado:\ncaso: %s\n", caseID), CodeInvalidConfirmedDatetime},
		{"missing location", fmt.Sprintf("16-02-2026 14:30 BRT\ninstructions: y\ncase: %s\n", caseID), CodeMissingLocationLine},
		{"missing instructions", fmt.Sprintf("16-02-2026 14:30 BRT\nlocation: x\ncase: %s\n", caseID), CodeMissingInstructionsLine},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSchedulerReply(tc.body, caseID)
			requireParseCode(t, err, tc.code)
		})
	}
}
