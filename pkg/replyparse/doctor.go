package replyparse

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/medops-br/triagebot/pkg/models"
)

var doctorKeyAliases = map[string]string{
	"decision":     "decision",
	"decisao":      "decision",
	"support_flag": "support_flag",
	"suporte":      "support_flag",
	"reason":       "reason",
	"motivo":       "reason",
	"case_id":      "case_id",
	"caso":         "case_id",
}

var doctorRequiredKeys = []string{"decision", "support_flag", "reason", "case_id"}

var decisionAliases = map[string]models.Decision{
	"accept":  models.DecisionAccept,
	"deny":    models.DecisionDeny,
	"aceitar": models.DecisionAccept,
	"aceito":  models.DecisionAccept,
	"aceita":  models.DecisionAccept,
	"negar":   models.DecisionDeny,
	"negado":  models.DecisionDeny,
	"negar.":  models.DecisionDeny,
}

var supportAliases = map[string]models.SupportFlag{
	"none":            models.SupportNone,
	"nenhum":          models.SupportNone,
	"anesthesist":     models.SupportAnesthesist,
	"anestesista":     models.SupportAnesthesist,
	"anesthesist_icu": models.SupportAnesthesistICU,
	"anestesista_uti": models.SupportAnesthesistICU,
	"anestesista_icu": models.SupportAnesthesistICU,
}

// emptyReasonMarkers are optional-field placeholders doctors tend to leave
// in place when they have nothing to say.
var emptyReasonMarkers = map[string]bool{
	"":           true,
	"(opcional)": true,
	"opcional":   true,
	"(vazio)":    true,
	"vazio":      true,
	"-":          true,
	"n/a":        true,
	"na":         true,
}

// DoctorDecision is the normalized result of a valid Room-2 decision reply.
type DoctorDecision struct {
	CaseID      uuid.UUID
	Decision    models.Decision
	SupportFlag models.SupportFlag
	Reason      *string
}

// ParseDoctorDecision parses the strict Room-2 decision template. When
// expectedCaseID is non-nil the caso line must match it.
func ParseDoctorDecision(body string, expectedCaseID *uuid.UUID) (*DoctorDecision, error) {
	lines := meaningfulLines(body)
	if len(lines) == 0 {
		return nil, parseError(CodeEmptyMessage)
	}

	fields := make(map[string]string, len(doctorRequiredKeys))
	for _, line := range lines {
		normalized := strings.ReplaceAll(line, "：", ":")
		idx := strings.Index(normalized, ":")
		if idx < 0 {
			return nil, parseError(CodeInvalidLineFormat)
		}
		key, ok := doctorKeyAliases[foldKey(strings.TrimSpace(normalized[:idx]))]
		if !ok {
			return nil, parseError(CodeUnknownField)
		}
		if _, dup := fields[key]; dup {
			return nil, parseError(CodeDuplicateField)
		}
		fields[key] = strings.TrimSpace(normalized[idx+1:])
	}

	for _, key := range doctorRequiredKeys {
		if _, ok := fields[key]; !ok {
			return nil, parseError(fmt.Sprintf("missing_%s_line", key))
		}
	}

	decision, ok := decisionAliases[foldKey(fields["decision"])]
	if !ok {
		return nil, parseError(CodeInvalidDecisionValue)
	}

	supportFlag, ok := supportAliases[foldKey(fields["support_flag"])]
	if !ok {
		return nil, parseError(CodeInvalidSupportFlagValue)
	}
	if decision == models.DecisionDeny && supportFlag != models.SupportNone {
		return nil, parseError(CodeInvalidSupportForDecision)
	}

	caseID, err := uuid.Parse(fields["case_id"])
	if err != nil {
		return nil, parseError(CodeInvalidCaseLine)
	}
	if expectedCaseID != nil && caseID != *expectedCaseID {
		return nil, parseError(CodeCaseIDMismatch)
	}

	var reason *string
	if raw := fields["reason"]; !emptyReasonMarkers[foldKey(raw)] {
		reason = &raw
	}

	return &DoctorDecision{
		CaseID:      caseID,
		Decision:    decision,
		SupportFlag: supportFlag,
		Reason:      reason,
	}, nil
}
