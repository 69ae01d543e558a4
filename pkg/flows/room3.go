package flows

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/medops-br/triagebot/pkg/matrix"
	"github.com/medops-br/triagebot/pkg/models"
	"github.com/medops-br/triagebot/pkg/services"
)

// PostRoom3Request posts the scheduling request and its strict reply
// template to Room-3 and moves the case to WAIT_SCHEDULER.
func (d *Deps) PostRoom3Request(ctx context.Context, job models.Job) error {
	caseID, err := jobCaseID(job)
	if err != nil {
		return err
	}
	c, err := d.Cases.Get(ctx, caseID)
	if err != nil {
		return err
	}

	if c.Status == models.CaseStatusDoctorAccepted {
		if _, err := d.Cases.Transition(ctx, caseID, models.CaseStatusR3PostRequest); err != nil {
			return err
		}
		c.Status = models.CaseStatusR3PostRequest
	}
	if c.Status == models.CaseStatusWaitScheduler {
		return nil
	}
	if c.Status != models.CaseStatusR3PostRequest {
		return fmt.Errorf("%w: room3 request from status %s", services.ErrWrongState, c.Status)
	}

	ident := matrix.IdentificationFrom(c.AgencyRecordNumber, c.StructuredData)
	support := models.SupportNone
	if c.DoctorSupportFlag != nil {
		support = *c.DoctorSupportFlag
	}

	body, htmlBody := matrix.Room3RequestMessage(ident, support, c.DoctorReason)
	requestEventID, err := d.Chat.SendMessage(ctx, d.Rooms.Room3ID, body, htmlBody)
	if err != nil {
		return fmt.Errorf("post room3 request: %w", err)
	}
	if err := d.recordOutbound(ctx, caseID, d.Rooms.Room3ID, requestEventID, models.MessageKindRoom3Request, body); err != nil {
		return err
	}

	tmplBody, tmplHTML := matrix.Room3TemplateMessage(caseID)
	ackEventID, err := d.Chat.SendMessage(ctx, d.Rooms.Room3ID, tmplBody, tmplHTML)
	if err != nil {
		return fmt.Errorf("post room3 reply template: %w", err)
	}
	if err := d.recordOutbound(ctx, caseID, d.Rooms.Room3ID, ackEventID, models.MessageKindRoom3Ack, tmplBody); err != nil {
		return err
	}

	return services.InTx(ctx, d.DB, func(tx pgx.Tx) error {
		if _, err := d.Cases.WithTx(tx).Transition(ctx, caseID, models.CaseStatusWaitScheduler); err != nil {
			return err
		}
		_, err := d.Audit.WithTx(tx).Append(ctx, models.AppendAuditEventRequest{
			CaseID:        &caseID,
			ActorType:     models.ActorBot,
			EventType:     models.AuditRoom3RequestPosted,
			Payload:       map[string]any{"request_event_id": requestEventID},
			RoomID:        &d.Rooms.Room3ID,
			MatrixEventID: &requestEventID,
		})
		return err
	})
}
