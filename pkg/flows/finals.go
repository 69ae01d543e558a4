package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/medops-br/triagebot/pkg/matrix"
	"github.com/medops-br/triagebot/pkg/models"
	"github.com/medops-br/triagebot/pkg/services"
)

// The four Room-1 finals close the loop with the requester: one message
// each for a confirmed appointment, a denied appointment, a triage denial,
// and a processing failure. Posting any of them moves the case to
// WAIT_R1_CLEANUP_THUMBS so the thumbs reaction can trigger cleanup.

// PostRoom1FinalAppt reports the confirmed appointment back to Room-1.
func (d *Deps) PostRoom1FinalAppt(ctx context.Context, job models.Job) error {
	return d.postRoom1Final(ctx, job, "appointment_confirmed", models.CaseStatusApptConfirmed,
		func(c *models.Case, ident matrix.CaseIdentification) (string, string) {
			at := time.Time{}
			if c.AppointmentAt != nil {
				at = *c.AppointmentAt
			}
			return matrix.FinalAppointmentMessage(ident, at, d.Summary.Location, c.AppointmentLocation, c.AppointmentInstructions)
		})
}

// PostRoom1FinalApptDenied reports a scheduler denial back to Room-1.
func (d *Deps) PostRoom1FinalApptDenied(ctx context.Context, job models.Job) error {
	return d.postRoom1Final(ctx, job, "appointment_denied", models.CaseStatusApptDenied,
		func(c *models.Case, ident matrix.CaseIdentification) (string, string) {
			return matrix.FinalAppointmentDeniedMessage(ident, c.AppointmentReason)
		})
}

// PostRoom1FinalDenialTriage reports the doctor's denial back to Room-1.
func (d *Deps) PostRoom1FinalDenialTriage(ctx context.Context, job models.Job) error {
	return d.postRoom1Final(ctx, job, "denial_triage", models.CaseStatusDoctorDenied,
		func(c *models.Case, ident matrix.CaseIdentification) (string, string) {
			return matrix.FinalDenialTriageMessage(ident, c.DoctorReason)
		})
}

// PostRoom1FinalFailure reports a dead-lettered case back to Room-1 with
// the categorized cause and bounded details from the job payload.
func (d *Deps) PostRoom1FinalFailure(ctx context.Context, job models.Job) error {
	cause := payloadString(job, "cause")
	if cause == "" {
		cause = "other"
	}
	details := payloadString(job, "details")
	if details == "" {
		details = "unknown error"
	}
	return d.postRoom1Final(ctx, job, "failure", models.CaseStatusFailed,
		func(c *models.Case, ident matrix.CaseIdentification) (string, string) {
			return matrix.FinalFailureMessage(ident, cause, details)
		})
}

func (d *Deps) postRoom1Final(ctx context.Context, job models.Job, kind string, fromStatus models.CaseStatus, build func(*models.Case, matrix.CaseIdentification) (string, string)) error {
	caseID, err := jobCaseID(job)
	if err != nil {
		return err
	}
	c, err := d.Cases.Get(ctx, caseID)
	if err != nil {
		return err
	}

	switch c.Status {
	case models.CaseStatusWaitR1CleanupThumbs, models.CaseStatusCleanupRunning, models.CaseStatusCleaned:
		return nil
	case fromStatus:
	default:
		return fmt.Errorf("%w: %s final from status %s", services.ErrWrongState, kind, c.Status)
	}

	body, htmlBody := build(c, matrix.IdentificationFrom(c.AgencyRecordNumber, c.StructuredData))
	eventID, err := d.Chat.SendMessage(ctx, d.Rooms.Room1ID, body, htmlBody)
	if err != nil {
		return fmt.Errorf("post room1 %s final: %w", kind, err)
	}
	if err := d.recordOutbound(ctx, caseID, d.Rooms.Room1ID, eventID, models.MessageKindRoom1Final, body); err != nil {
		return err
	}

	return services.InTx(ctx, d.DB, func(tx pgx.Tx) error {
		if _, err := d.Cases.WithTx(tx).Transition(ctx, caseID, models.CaseStatusWaitR1CleanupThumbs); err != nil {
			return err
		}
		_, err := d.Audit.WithTx(tx).Append(ctx, models.AppendAuditEventRequest{
			CaseID:        &caseID,
			ActorType:     models.ActorBot,
			EventType:     models.AuditRoom1FinalPosted,
			Payload:       map[string]any{"kind": kind},
			RoomID:        &d.Rooms.Room1ID,
			MatrixEventID: &eventID,
		})
		return err
	})
}
