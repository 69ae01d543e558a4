package recordnum

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedMillis(v int64) func() int64 {
	return func() int64 { return v }
}

func TestExtract_CodeLabel(t *testing.T) {
	result := extract("Paciente chegou. Código: 4775652 encaminhado.", fixedMillis(0))

	assert.Equal(t, "4775652", result.AgencyRecordNumber)
	assert.NotContains(t, result.CleanedText, "4775652")
	assert.Contains(t, result.CleanedText, "Paciente chegou.")
}

func TestExtract_ReportHeaderFlow(t *testing.T) {
	result := extract("RELATÓRIO DE OCORRÊNCIAS 4775652 paciente dados", fixedMillis(0))

	assert.Equal(t, "4775652", result.AgencyRecordNumber)
	assert.NotContains(t, result.CleanedText, "4775652")
}

func TestExtract_RemovesEveryOccurrence(t *testing.T) {
	text := "Código: 4775652\nResumo 4775652 clínico\nRodapé 4775652"
	result := extract(text, fixedMillis(0))

	assert.Equal(t, "4775652", result.AgencyRecordNumber)
	assert.NotContains(t, result.CleanedText, "4775652")
}

func TestExtract_PreservesLineBreaks(t *testing.T) {
	text := "RELATÓRIO DE OCORRÊNCIAS 4775652\nLinha clínica 1 4775652\nLinha clínica 2"
	result := extract(text, fixedMillis(0))

	assert.Equal(t, "4775652", result.AgencyRecordNumber)
	assert.GreaterOrEqual(t, strings.Count(result.CleanedText, "\n"), 2)
	assert.Contains(t, result.CleanedText, "Linha clínica 1")
	assert.Contains(t, result.CleanedText, "Linha clínica 2")
}

func TestExtract_StripsWatermarkBlocksAndResiduals(t *testing.T) {
	text := strings.Join([]string{
		"RELATÓRIO DE OCORRÊNCIAS 4762341",
		"63625 63625 63625 63625 63625",
		"63625 63625 63625 63625 63625",
		"Nome Social:",
		"63625",
		"Motivo da Solicitação: Endoscopia Digestiva Alta - EDA",
	}, "\n")

	result := extract(text, fixedMillis(0))

	require.Equal(t, "4762341", result.AgencyRecordNumber)
	assert.NotContains(t, result.CleanedText, "63625")
	assert.NotContains(t, result.CleanedText, "4762341")
	assert.Contains(t, result.CleanedText, "Nome Social:")
	assert.Contains(t, result.CleanedText, "Motivo da Solicitação: Endoscopia Digestiva Alta - EDA")
}

func TestExtract_KeepsResidualBeforeFirstWatermarkBlock(t *testing.T) {
	text := strings.Join([]string{
		"63625",
		"63625 63625 63625 63625",
		"Linha clínica",
	}, "\n")

	result := extract(text, fixedMillis(99))

	assert.Contains(t, result.CleanedText, "63625")
	assert.NotContains(t, result.CleanedText, "63625 63625")
}

func TestExtract_PrefersRegistrationPatternOverRepeatedToken(t *testing.T) {
	text := "RELATÓRIO DE OCORRÊNCIAS: 4775652 dados 40371 40371 40371"
	result := extract(text, fixedMillis(0))

	assert.Equal(t, "4775652", result.AgencyRecordNumber)
}

func TestExtract_EarliestMatchWins(t *testing.T) {
	text := "Código: 11111 depois RELATÓRIO DE OCORRÊNCIAS 22222"
	result := extract(text, fixedMillis(0))

	assert.Equal(t, "11111", result.AgencyRecordNumber)
}

func TestExtract_FallbackUsesEpochAndLeavesTextUnchanged(t *testing.T) {
	text := "no registration anchor here 40371 40371"
	result := extract(text, fixedMillis(1700000000123))

	assert.Equal(t, "1700000000123", result.AgencyRecordNumber)
	assert.Equal(t, text, result.CleanedText)
}

func TestExtract_CaseInsensitiveLabels(t *testing.T) {
	result := extract("CÓDIGO: 55555 encerrado", fixedMillis(0))
	assert.Equal(t, "55555", result.AgencyRecordNumber)

	result = extract("relatório de ocorrências 66666", fixedMillis(0))
	assert.Equal(t, "66666", result.AgencyRecordNumber)
}
