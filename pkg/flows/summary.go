package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/medops-br/triagebot/pkg/matrix"
	"github.com/medops-br/triagebot/pkg/models"
)

// PostRoom4Summary delivers one supervisor digest for the window claimed
// by the scheduler. The dispatch row is the idempotency guard: losing the
// pending→sent update means another worker already delivered this window,
// which counts as success.
func (d *Deps) PostRoom4Summary(ctx context.Context, job models.Job) error {
	roomID := payloadString(job, "room_id")
	if roomID == "" {
		roomID = d.Rooms.Room4ID
	}
	windowStart, err := time.Parse(time.RFC3339, payloadString(job, "window_start"))
	if err != nil {
		return fmt.Errorf("job payload window_start: %w", err)
	}
	windowEnd, err := time.Parse(time.RFC3339, payloadString(job, "window_end"))
	if err != nil {
		return fmt.Errorf("job payload window_end: %w", err)
	}
	loc := d.Summary.Location
	if tz := payloadString(job, "timezone"); tz != "" {
		if parsed, err := time.LoadLocation(tz); err == nil {
			loc = parsed
		}
	}
	if loc == nil {
		loc = time.UTC
	}

	if dispatch, err := d.Dispatches.Get(ctx, roomID, windowStart, windowEnd); err == nil &&
		dispatch.Status == models.DispatchSent {
		return nil
	}

	counts, err := d.Audit.SummaryCounts(ctx, windowStart, windowEnd)
	if err != nil {
		return err
	}

	body, htmlBody := matrix.SummaryMessage(*counts, windowStart, windowEnd, loc)
	eventID, err := d.Chat.SendMessage(ctx, roomID, body, htmlBody)
	if err != nil {
		// Mark the dispatch failed on the last attempt so a later
		// scheduler run can reclaim the window.
		if job.Attempts+1 >= job.MaxAttempts {
			if _, markErr := d.Dispatches.MarkFailed(ctx, roomID, windowStart, windowEnd, err.Error()); markErr != nil {
				d.log().Error("Failed to mark dispatch failed", "error", markErr)
			}
		}
		return fmt.Errorf("post room4 summary: %w", err)
	}

	sent, err := d.Dispatches.MarkSent(ctx, roomID, windowStart, windowEnd, eventID)
	if err != nil {
		return err
	}
	if !sent {
		d.log().Info("Summary window already delivered",
			"room_id", roomID, "window_start", windowStart)
		return nil
	}

	_, err = d.Audit.Append(ctx, models.AppendAuditEventRequest{
		ActorType: models.ActorBot,
		EventType: models.AuditRoom4SummaryPosted,
		Payload: map[string]any{
			"window_start":           windowStart.Format(time.RFC3339),
			"window_end":             windowEnd.Format(time.RFC3339),
			"appointments_confirmed": counts.AppointmentsConfirmed,
			"appointments_denied":    counts.AppointmentsDenied,
			"triage_denials":         counts.TriageDenials,
			"failures":               counts.Failures,
			"cleaned":                counts.Cleaned,
		},
		RoomID:        &roomID,
		MatrixEventID: &eventID,
	})
	return err
}
