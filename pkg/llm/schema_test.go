package llm

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"
)

func deterministicPayload(t *testing.T, stage Stage, caseID uuid.UUID, recordNumber string) map[string]any {
	t.Helper()
	res, err := DeterministicClient{}.Complete(context.Background(), CompletionInput{
		Stage:      stage,
		UserPrompt: fmt.Sprintf("case_id: %s\nagency_record_number: %s\n", caseID, recordNumber),
	})
	require.NoError(t, err)
	decoded, err := DecodeObject(res.Content)
	require.NoError(t, err)
	return decoded
}

func TestValidatePayload_DeterministicPayloadsAreSchemaValid(t *testing.T) {
	caseID := uuid.New()

	llm1 := deterministicPayload(t, StageLlm1, caseID, "4775652")
	assert.NoError(t, ValidatePayload(StageLlm1, llm1))

	llm2 := deterministicPayload(t, StageLlm2, caseID, "4775652")
	assert.NoError(t, ValidatePayload(StageLlm2, llm2))
}

func TestValidatePayload_AcceptsEpochPlaceholderRecordNumbers(t *testing.T) {
	payload := deterministicPayload(t, StageLlm1, uuid.New(), "1700000000123")

	assert.NoError(t, ValidatePayload(StageLlm1, payload))
}

func TestValidatePayload_RejectsMissingField(t *testing.T) {
	payload := deterministicPayload(t, StageLlm1, uuid.New(), "4775652")
	delete(payload, "summary")

	assert.Error(t, ValidatePayload(StageLlm1, payload))
}

func TestValidatePayload_RejectsUnknownField(t *testing.T) {
	payload := deterministicPayload(t, StageLlm1, uuid.New(), "4775652")
	payload["extra_section"] = map[string]any{}

	assert.Error(t, ValidatePayload(StageLlm1, payload))
}

func TestValidatePayload_RejectsTooFewBulletPoints(t *testing.T) {
	payload := deterministicPayload(t, StageLlm1, uuid.New(), "4775652")
	summary := payload["summary"].(map[string]any)
	summary["bullet_points"] = []any{"apenas um"}

	assert.Error(t, ValidatePayload(StageLlm1, payload))
}

func TestValidatePayload_RejectsInvalidEnumValue(t *testing.T) {
	payload := deterministicPayload(t, StageLlm2, uuid.New(), "4775652")
	payload["suggestion"] = "maybe"

	assert.Error(t, ValidatePayload(StageLlm2, payload))
}

func TestValidatePayload_RejectsShortRecordNumber(t *testing.T) {
	payload := deterministicPayload(t, StageLlm1, uuid.New(), "4775652")
	payload["agency_record_number"] = "123"

	assert.Error(t, ValidatePayload(StageLlm1, payload))
}

func TestResponseSchemaJSON_IsStrict(t *testing.T) {
	for _, stage := range []Stage{StageLlm1, StageLlm2} {
		doc := string(ResponseSchemaJSON(stage))
		assert.Contains(t, doc, `"additionalProperties":false`, "stage %s", stage)
		assert.Contains(t, doc, `"required":`, "stage %s", stage)
	}
}
