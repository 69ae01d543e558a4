package matrix

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medops-br/triagebot/pkg/models"
)

// Message templates for every room. Bodies are Brazilian Portuguese; the
// case UUID appears only in messages that anchor strict reply parsing
// (last line `caso: <uuid>`), never in doctor/scheduler-facing prose.

const (
	valueNotDetected = "não detectado"
	valueEmpty       = "(vazio)"
)

// brtTimeLayout renders appointment datetimes the way schedulers type them.
const brtTimeLayout = "02-01-2006 15:04"

// CaseIdentification is the human header block shared by most templates.
type CaseIdentification struct {
	RecordNumber  *string
	PatientName   *string
	PatientAge    *string
	ExamRequested *string
}

// IdentificationFrom builds the header block from the persisted record
// number and the stage-1 structured payload.
func IdentificationFrom(recordNumber *string, structured map[string]any) CaseIdentification {
	ident := CaseIdentification{RecordNumber: recordNumber}
	ident.PatientName, ident.PatientAge = models.PatientNameAge(structured)
	if eda, ok := structured["eda"].(map[string]any); ok {
		if proc, ok := eda["requested_procedure"].(map[string]any); ok {
			if name, ok := proc["name"].(string); ok && strings.TrimSpace(name) != "" {
				ident.ExamRequested = &name
			}
		}
	}
	return ident
}

func (c CaseIdentification) lines() []string {
	return []string{
		"no. ocorrência: " + orFallback(c.RecordNumber, valueNotDetected),
		"paciente: " + orFallback(c.PatientName, valueNotDetected),
		"idade: " + orFallback(c.PatientAge, valueEmpty),
		"exame solicitado: " + orFallback(c.ExamRequested, valueEmpty),
	}
}

func orFallback(v *string, fallback string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return fallback
	}
	return *v
}

// WidgetMessage is the Room-2 triage widget: a short title plus the full
// payload embedded as a fenced JSON block.
func WidgetMessage(payloadJSON string) (body, htmlBody string) {
	body = "Triage request\n```json\n" + payloadJSON + "\n```"
	htmlBody = "<p>Triage request</p><pre><code class=\"language-json\">" +
		html.EscapeString(payloadJSON) + "</code></pre>"
	return body, htmlBody
}

// WidgetAckMessage follows the widget and anchors Room-2 reply parsing.
func WidgetAckMessage(caseID uuid.UUID) (body, htmlBody string) {
	lines := []string{
		fmt.Sprintf("Triage recorded for case: %s", caseID),
		"React +1 to acknowledge.",
	}
	return joinLines(lines)
}

// doctorReplyTemplate is re-sent whenever a Room-2 reply fails to parse.
func doctorReplyTemplate(caseID uuid.UUID) []string {
	return []string{
		"Responda à mensagem do widget neste formato:",
		"decisao: aceitar|negar",
		"suporte: nenhum|anestesista|anestesista_uti",
		"motivo: (opcional)",
		fmt.Sprintf("caso: %s", caseID),
	}
}

// DecisionErrorMessage reports a rejected Room-2 reply with its error code
// and the corrective template.
func DecisionErrorMessage(caseID uuid.UUID, errorCode string) (body, htmlBody string) {
	lines := []string{
		"resultado: erro",
		"codigo_erro: " + errorCode,
		"",
	}
	lines = append(lines, doctorReplyTemplate(caseID)...)
	return joinLines(lines)
}

// DecisionSuccessMessage confirms a recorded doctor decision.
func DecisionSuccessMessage(ident CaseIdentification, decision models.Decision, support models.SupportFlag, reason *string) (body, htmlBody string) {
	lines := []string{
		"resultado: sucesso",
		"decisao: " + decisionPt(decision),
		"suporte: " + supportPt(support),
		"motivo: " + orFallback(reason, valueEmpty),
	}
	lines = append(lines, ident.lines()...)
	return joinLines(lines)
}

// Room3RequestMessage asks the scheduling team for an appointment.
func Room3RequestMessage(ident CaseIdentification, support models.SupportFlag, doctorReason *string) (body, htmlBody string) {
	lines := []string{"Solicitação de agendamento de EDA"}
	lines = append(lines, ident.lines()...)
	lines = append(lines, "suporte: "+supportPt(support))
	if doctorReason != nil && strings.TrimSpace(*doctorReason) != "" {
		lines = append(lines, "motivo: "+*doctorReason)
	}
	return joinLines(lines)
}

// Room3TemplateMessage anchors Room-3 reply parsing with the strict format.
func Room3TemplateMessage(caseID uuid.UUID) (body, htmlBody string) {
	lines := append([]string{"Responda a esta mensagem em um dos formatos:"},
		room3ReplyTemplate(caseID)...)
	return joinLines(lines)
}

// Room3ErrorMessage reports a rejected Room-3 reply with the template.
func Room3ErrorMessage(caseID uuid.UUID, errorCode string) (body, htmlBody string) {
	lines := []string{
		"resultado: erro",
		"codigo_erro: " + errorCode,
		"",
		"Responda a esta mensagem em um dos formatos:",
	}
	lines = append(lines, room3ReplyTemplate(caseID)...)
	return joinLines(lines)
}

func room3ReplyTemplate(caseID uuid.UUID) []string {
	caseLine := fmt.Sprintf("caso: %s", caseID)
	return []string{
		"",
		"Confirmado:",
		"DD-MM-AAAA HH:MM BRT",
		"local: <local do exame>",
		"instrucoes: <instruções de preparo>",
		caseLine,
		"",
		"Negado:",
		"negado",
		"motivo: <motivo>",
		caseLine,
	}
}

// Room3AckMessage confirms a recorded scheduling outcome.
func Room3AckMessage(status models.AppointmentStatus) (body, htmlBody string) {
	lines := []string{
		"resultado: sucesso",
		"agendamento: " + appointmentPt(status),
	}
	return joinLines(lines)
}

// FinalAppointmentMessage is the Room-1 reply for a confirmed appointment.
func FinalAppointmentMessage(ident CaseIdentification, at time.Time, loc *time.Location, location, instructions *string) (body, htmlBody string) {
	lines := []string{"Agendamento confirmado"}
	lines = append(lines, ident.lines()...)
	lines = append(lines,
		"data: "+at.In(loc).Format(brtTimeLayout)+" BRT",
		"local: "+orFallback(location, valueEmpty),
		"instrucoes: "+orFallback(instructions, valueEmpty),
	)
	lines = append(lines, "", cleanupInstruction)
	return joinLines(lines)
}

// FinalAppointmentDeniedMessage is the Room-1 reply for a denied appointment.
func FinalAppointmentDeniedMessage(ident CaseIdentification, reason *string) (body, htmlBody string) {
	lines := []string{"Agendamento negado"}
	lines = append(lines, ident.lines()...)
	lines = append(lines, "motivo: "+orFallback(reason, valueEmpty), "", cleanupInstruction)
	return joinLines(lines)
}

// FinalDenialTriageMessage is the Room-1 reply for a triage denial.
func FinalDenialTriageMessage(ident CaseIdentification, reason *string) (body, htmlBody string) {
	lines := []string{"Solicitação negada na triagem"}
	lines = append(lines, ident.lines()...)
	lines = append(lines, "motivo: "+orFallback(reason, valueEmpty), "", cleanupInstruction)
	return joinLines(lines)
}

// FinalFailureMessage is the Room-1 reply when processing gave up.
func FinalFailureMessage(ident CaseIdentification, cause, details string) (body, htmlBody string) {
	lines := []string{"Falha no processamento da solicitação"}
	lines = append(lines, ident.lines()...)
	lines = append(lines, "causa: "+cause, "detalhes: "+details, "", cleanupInstruction)
	return joinLines(lines)
}

const cleanupInstruction = "Reaja com 👍 para arquivar e apagar as mensagens deste caso."

// SummaryMessage is the twice-daily Room-4 supervisor digest.
func SummaryMessage(counts models.SummaryWindowCounts, windowStart, windowEnd time.Time, loc *time.Location) (body, htmlBody string) {
	const windowLayout = "02/01/2006 15:04"
	lines := []string{
		fmt.Sprintf("Resumo do período %s — %s (%s)",
			windowStart.In(loc).Format(windowLayout),
			windowEnd.In(loc).Format(windowLayout),
			loc.String()),
		fmt.Sprintf("agendamentos confirmados: %d", counts.AppointmentsConfirmed),
		fmt.Sprintf("agendamentos negados: %d", counts.AppointmentsDenied),
		fmt.Sprintf("negativas de triagem: %d", counts.TriageDenials),
		fmt.Sprintf("falhas: %d", counts.Failures),
		fmt.Sprintf("casos arquivados: %d", counts.Cleaned),
	}
	return joinLines(lines)
}

func joinLines(lines []string) (body, htmlBody string) {
	body = strings.Join(lines, "\n")
	escaped := make([]string, len(lines))
	for i, line := range lines {
		escaped[i] = html.EscapeString(line)
	}
	htmlBody = strings.Join(escaped, "<br>")
	return body, htmlBody
}

func decisionPt(d models.Decision) string {
	if d == models.DecisionDeny {
		return "negar"
	}
	return "aceitar"
}

func supportPt(s models.SupportFlag) string {
	switch s {
	case models.SupportAnesthesist:
		return "anestesista"
	case models.SupportAnesthesistICU:
		return "anestesista_uti"
	default:
		return "nenhum"
	}
}

func appointmentPt(s models.AppointmentStatus) string {
	if s == models.AppointmentDenied {
		return "negado"
	}
	return "confirmado"
}
