package flows

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medops-br/triagebot/pkg/matrix"
	"github.com/medops-br/triagebot/pkg/models"
	"github.com/medops-br/triagebot/pkg/services"
)

// PostRoom2Widget posts the triage widget and its reply-anchor ack to
// Room-2 and moves the case to WAIT_DOCTOR. A case still in LLM_SUGGEST
// (the suggestion stage crashed after this job was queued) is pushed
// through that stage first.
func (d *Deps) PostRoom2Widget(ctx context.Context, job models.Job) error {
	caseID, err := jobCaseID(job)
	if err != nil {
		return err
	}
	c, err := d.Cases.Get(ctx, caseID)
	if err != nil {
		return err
	}

	if c.Status == models.CaseStatusLlmSuggest {
		if err := d.runLlm2Phase(ctx, c); err != nil {
			return err
		}
		if c, err = d.Cases.Get(ctx, caseID); err != nil {
			return err
		}
	}
	if c.Status == models.CaseStatusWaitDoctor {
		return nil
	}
	if c.Status != models.CaseStatusR2PostWidget {
		return fmt.Errorf("%w: widget post from status %s", services.ErrWrongState, c.Status)
	}

	snap, err := d.Cases.WidgetSnapshot(ctx, caseID)
	if err != nil {
		return err
	}
	prior, err := d.Cases.PriorCaseContext(ctx, caseID, derefOrEmpty(snap.AgencyRecordNumber), d.clock().Now())
	if err != nil {
		return err
	}

	payloadJSON, err := json.MarshalIndent(widgetPayload(snap, prior, d.widgetSubmitURL(caseID)), "", "  ")
	if err != nil {
		return fmt.Errorf("encode widget payload: %w", err)
	}
	body, htmlBody := matrix.WidgetMessage(string(payloadJSON))
	widgetEventID, err := d.Chat.SendMessage(ctx, d.Rooms.Room2ID, body, htmlBody)
	if err != nil {
		return fmt.Errorf("post widget: %w", err)
	}
	if err := d.recordOutbound(ctx, caseID, d.Rooms.Room2ID, widgetEventID, models.MessageKindBotWidget, body); err != nil {
		return err
	}

	ackBody, ackHTML := matrix.WidgetAckMessage(caseID)
	ackEventID, err := d.Chat.SendMessage(ctx, d.Rooms.Room2ID, ackBody, ackHTML)
	if err != nil {
		return fmt.Errorf("post widget ack: %w", err)
	}
	if err := d.recordOutbound(ctx, caseID, d.Rooms.Room2ID, ackEventID, models.MessageKindBotAck, ackBody); err != nil {
		return err
	}

	return services.InTx(ctx, d.DB, func(tx pgx.Tx) error {
		if _, err := d.Cases.WithTx(tx).Transition(ctx, caseID, models.CaseStatusWaitDoctor); err != nil {
			return err
		}
		_, err := d.Audit.WithTx(tx).Append(ctx, models.AppendAuditEventRequest{
			CaseID:        &caseID,
			ActorType:     models.ActorBot,
			EventType:     models.AuditRoom2WidgetPosted,
			Payload:       map[string]any{"widget_event_id": widgetEventID},
			RoomID:        &d.Rooms.Room2ID,
			MatrixEventID: &widgetEventID,
		})
		return err
	})
}

// widgetPayload builds the JSON document embedded in the widget message.
// encoding/json emits object keys sorted, which keeps the embedded block
// byte-stable across replays.
func widgetPayload(snap *models.Room2WidgetSnapshot, prior *models.PriorCaseContext, submitURL string) map[string]any {
	name, age := models.PatientNameAge(snap.StructuredData)
	payload := map[string]any{
		"case": map[string]any{
			"case_id":                snap.CaseID.String(),
			"agency_record_number":   strOrNil(snap.AgencyRecordNumber),
			"record_number_fallback": isEpochFallback(snap.AgencyRecordNumber),
		},
		"patient": map[string]any{
			"name": strOrNil(name),
			"age":  strOrNil(age),
		},
		"summary":          strOrNil(snap.SummaryText),
		"structured_data":  snap.StructuredData,
		"suggested_action": snap.SuggestedAction,
		"widget_url":       submitURL,
	}
	if priorBlock := priorCasePayload(prior); priorBlock != nil {
		for k, v := range priorBlock {
			payload[k] = v
		}
	}
	return payload
}

// isEpochFallback flags record numbers produced by the epoch-millis
// placeholder path, which are 13+ digits against the 5-8 digit agency codes.
func isEpochFallback(recordNumber *string) bool {
	return recordNumber != nil && len(*recordNumber) >= 13
}

func (d *Deps) widgetSubmitURL(caseID uuid.UUID) string {
	base := strings.TrimRight(d.WidgetBaseURL, "/")
	return fmt.Sprintf("%s/widget/room2?case_id=%s", base, caseID)
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
