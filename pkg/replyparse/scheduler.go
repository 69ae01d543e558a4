package replyparse

import (
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"

	"github.com/medops-br/triagebot/pkg/models"
)

// schedulerZone is the timezone appointment datetimes are written in.
var schedulerZone = mustLoadLocation("America/Bahia")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

var confirmedDatetimeLayouts = []string{"02-01-2006 15:04", "02/01/2006 15:04"}

// SchedulerReply is the normalized result of a valid Room-3 reply.
type SchedulerReply struct {
	CaseID            uuid.UUID
	AppointmentStatus models.AppointmentStatus
	AppointmentAt     *time.Time
	Location          *string
	Instructions      *string
	Reason            *string
}

// ParseSchedulerReply parses the Room-3 reply template for a specific case.
// A reply starting with "denied" records a denial with an optional reason;
// otherwise the first line must be an appointment datetime followed by the
// location and instructions lines.
func ParseSchedulerReply(body string, expectedCaseID uuid.UUID) (*SchedulerReply, error) {
	lines := meaningfulLines(body)
	if len(lines) == 0 {
		return nil, parseError(CodeEmptyMessage)
	}

	caseID, err := extractSchedulerCaseID(lines)
	if err != nil {
		return nil, err
	}
	if caseID != expectedCaseID {
		return nil, parseError(CodeCaseIDMismatch)
	}

	decisionLine, denied := schedulerDecisionLine(lines)
	if denied {
		var reason *string
		if value, ok := lineValue(lines, "reason", "motivo"); ok && value != "" {
			reason = &value
		}
		return &SchedulerReply{
			CaseID:            caseID,
			AppointmentStatus: models.AppointmentDenied,
			Reason:            reason,
		}, nil
	}

	appointmentAt, err := parseConfirmedDatetime(decisionLine)
	if err != nil {
		return nil, err
	}
	location, ok := lineValue(lines, "location", "local")
	if !ok || location == "" {
		return nil, parseError(CodeMissingLocationLine)
	}
	instructions, ok := lineValue(lines, "instructions", "instrucoes")
	if !ok || instructions == "" {
		return nil, parseError(CodeMissingInstructionsLine)
	}

	return &SchedulerReply{
		CaseID:            caseID,
		AppointmentStatus: models.AppointmentConfirmed,
		AppointmentAt:     &appointmentAt,
		Location:          &location,
		Instructions:      &instructions,
	}, nil
}

// schedulerDecisionLine resolves the line carrying the scheduling outcome.
// Schedulers often prefix their reply with a "Confirmed:"/"Denied:" header;
// a confirmation header is skipped and a denial header already decides.
func schedulerDecisionLine(lines []string) (line string, denied bool) {
	first := strings.TrimSuffix(foldKey(lines[0]), ":")
	switch first {
	case "denied", "negado":
		return "", true
	case "confirmed", "confirmado":
		if len(lines) < 2 {
			return "", false
		}
		return lines[1], false
	}
	return lines[0], false
}

func extractSchedulerCaseID(lines []string) (uuid.UUID, error) {
	value, ok := lineValue(lines, "case", "caso")
	if !ok || value == "" {
		return uuid.Nil, parseError(CodeMissingCaseLine)
	}
	caseID, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, parseError(CodeInvalidCaseLine)
	}
	return caseID, nil
}

// parseConfirmedDatetime accepts "DD-MM-YYYY HH:MM BRT" and
// "DD/MM/YYYY HH:MM", both interpreted in America/Bahia.
func parseConfirmedDatetime(line string) (time.Time, error) {
	raw := strings.TrimSuffix(line, " BRT")
	for _, layout := range confirmedDatetimeLayouts {
		if at, err := time.ParseInLocation(layout, raw, schedulerZone); err == nil {
			return at, nil
		}
	}
	return time.Time{}, parseError(CodeInvalidConfirmedDatetime)
}
