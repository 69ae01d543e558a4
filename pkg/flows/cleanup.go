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

const (
	redactMaxAttempts  = 5
	redactMinRateDelay = 200 * time.Millisecond
	redactReason       = "case cleanup"
)

// ExecuteCleanup redacts every chat event the case produced or consumed.
// Individual redaction failures are recorded and skipped; the case ends
// CLEANED either way, with the success/failure split in the audit trail.
func (d *Deps) ExecuteCleanup(ctx context.Context, job models.Job) error {
	caseID, err := jobCaseID(job)
	if err != nil {
		return err
	}
	c, err := d.Cases.Get(ctx, caseID)
	if err != nil {
		return err
	}
	if c.Status == models.CaseStatusCleaned {
		return nil
	}
	if c.Status == models.CaseStatusWaitR1CleanupThumbs && c.CleanupTriggeredAt != nil {
		// Recovery found the thumbs recorded but the transition lost.
		if _, err := d.Cases.Transition(ctx, caseID, models.CaseStatusCleanupRunning); err != nil {
			return err
		}
		c.Status = models.CaseStatusCleanupRunning
	}
	if c.Status != models.CaseStatusCleanupRunning {
		return fmt.Errorf("%w: cleanup from status %s", services.ErrWrongState, c.Status)
	}

	messages, err := d.Messages.ListForCase(ctx, caseID)
	if err != nil {
		return err
	}

	log := d.log().With("case_id", caseID)
	redacted, failed := 0, 0
	for _, m := range messages {
		if err := d.redactWithRetry(ctx, m.RoomID, m.EventID); err != nil {
			failed++
			log.Warn("Redaction failed", "event_id", m.EventID, "error", err)
			if _, auditErr := d.Audit.Append(ctx, models.AppendAuditEventRequest{
				CaseID:        &caseID,
				ActorType:     models.ActorBot,
				EventType:     models.AuditMatrixEventRedactionFailed,
				Payload:       map[string]any{"error": err.Error()},
				RoomID:        &m.RoomID,
				MatrixEventID: &m.EventID,
			}); auditErr != nil {
				return auditErr
			}
			continue
		}
		redacted++
		if _, auditErr := d.Audit.Append(ctx, models.AppendAuditEventRequest{
			CaseID:        &caseID,
			ActorType:     models.ActorBot,
			EventType:     models.AuditMatrixEventRedacted,
			RoomID:        &m.RoomID,
			MatrixEventID: &m.EventID,
		}); auditErr != nil {
			return auditErr
		}
	}

	return services.InTx(ctx, d.DB, func(tx pgx.Tx) error {
		if err := d.Cases.WithTx(tx).MarkCleanupCompleted(ctx, caseID); err != nil {
			return err
		}
		_, err := d.Audit.WithTx(tx).Append(ctx, models.AppendAuditEventRequest{
			CaseID:    &caseID,
			ActorType: models.ActorSystem,
			EventType: models.AuditCleanupCompleted,
			Payload: map[string]any{
				"count_redacted_success": redacted,
				"count_redacted_failed":  failed,
			},
		})
		return err
	})
}

// redactWithRetry retries only rate-limited redactions, honoring the
// server's retry_after_ms with a 200ms floor. Other errors fail the event
// immediately.
func (d *Deps) redactWithRetry(ctx context.Context, roomID, eventID string) error {
	var lastErr error
	for attempt := 1; attempt <= redactMaxAttempts; attempt++ {
		lastErr = d.Chat.RedactEvent(ctx, roomID, eventID, redactReason)
		if lastErr == nil {
			return nil
		}
		retryAfter, rateLimited := matrix.RetryAfterFromError(lastErr)
		if !rateLimited {
			return lastErr
		}
		if retryAfter < redactMinRateDelay {
			retryAfter = redactMinRateDelay
		}
		if err := d.clock().Sleep(ctx, retryAfter); err != nil {
			return err
		}
	}
	return lastErr
}
