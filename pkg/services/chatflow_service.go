package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medops-br/triagebot/pkg/matrix"
	"github.com/medops-br/triagebot/pkg/models"
	"github.com/medops-br/triagebot/pkg/replyparse"
)

// ChatSender is the outbound chat surface the reply flows answer through.
type ChatSender interface {
	SendMessage(ctx context.Context, roomID, body, htmlBody string) (string, error)
}

// ChatFlowService routes ingested chat events into the intake, decision
// and scheduling flows. It is the matrix.EventSink of the daemon.
type ChatFlowService struct {
	db          Querier
	cases       *CaseStore
	messages    *MessageStore
	transcripts *TranscriptStore
	jobs        *JobQueue
	audit       *AuditStore
	intake      *IntakeService
	decisions   *DecisionService
	chat        ChatSender
	logger      *slog.Logger
}

// NewChatFlowService wires the chat event router.
func NewChatFlowService(db Querier, cases *CaseStore, messages *MessageStore, transcripts *TranscriptStore, jobs *JobQueue, audit *AuditStore, intake *IntakeService, decisions *DecisionService, chat ChatSender) *ChatFlowService {
	if db == nil || cases == nil || messages == nil || transcripts == nil ||
		jobs == nil || audit == nil || intake == nil || decisions == nil || chat == nil {
		panic("NewChatFlowService: all dependencies must be non-nil")
	}
	return &ChatFlowService{
		db:          db,
		cases:       cases,
		messages:    messages,
		transcripts: transcripts,
		jobs:        jobs,
		audit:       audit,
		intake:      intake,
		decisions:   decisions,
		chat:        chat,
		logger:      slog.With("component", "chat_flow"),
	}
}

// OnRoom1File opens a case for a PDF upload in the intake room.
func (s *ChatFlowService) OnRoom1File(ctx context.Context, roomID, eventID, sender, body, mxcURL string) error {
	_, _, err := s.intake.Intake(ctx, IntakeRequest{
		RoomID:    roomID,
		EventID:   eventID,
		SenderID:  sender,
		Body:      body,
		PdfMxcURL: mxcURL,
	})
	return err
}

// OnRoom2Reply handles a doctor's threaded reply to the triage widget.
// Replies to anything but a tracked widget event are ignored.
func (s *ChatFlowService) OnRoom2Reply(ctx context.Context, roomID, eventID, sender, body, inReplyTo string) error {
	caseID, err := s.messages.FindCaseByEvent(ctx, roomID, inReplyTo,
		models.MessageKindBotWidget, models.MessageKindBotAck)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if _, err := s.transcripts.AppendMatrixMessage(ctx, models.AppendMatrixTranscriptRequest{
		CaseID:    caseID,
		RoomID:    roomID,
		EventID:   eventID,
		Direction: models.TranscriptInbound,
		Body:      body,
	}); err != nil {
		return err
	}

	decision, err := replyparse.ParseDoctorDecision(body, &caseID)
	if err != nil {
		var parseErr *replyparse.ParseError
		if !errors.As(err, &parseErr) {
			return err
		}
		return s.rejectRoom2Reply(ctx, caseID, roomID, eventID, parseErr.Code)
	}

	updated, err := s.decisions.ApplyDecision(ctx, DecisionRequest{
		CaseID:        caseID,
		DoctorUserID:  sender,
		Decision:      decision.Decision,
		SupportFlag:   decision.SupportFlag,
		Reason:        decision.Reason,
		WidgetEventID: &inReplyTo,
	})
	if err != nil {
		if errors.Is(err, ErrWrongState) {
			return s.rejectRoom2Reply(ctx, caseID, roomID, eventID, "case_not_waiting_decision")
		}
		return err
	}

	ident := matrix.IdentificationFrom(updated.AgencyRecordNumber, updated.StructuredData)
	ackBody, ackHTML := matrix.DecisionSuccessMessage(ident, decision.Decision, decision.SupportFlag, decision.Reason)
	return s.postFeedback(ctx, caseID, roomID, models.MessageKindRoom2ReplyFeedback, ackBody, ackHTML)
}

// OnRoom3Reply handles a scheduler's threaded reply to the scheduling
// request and records the appointment outcome.
func (s *ChatFlowService) OnRoom3Reply(ctx context.Context, roomID, eventID, sender, body, inReplyTo string) error {
	caseID, err := s.messages.FindCaseByEvent(ctx, roomID, inReplyTo,
		models.MessageKindRoom3Request, models.MessageKindRoom3Ack)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if _, err := s.transcripts.AppendMatrixMessage(ctx, models.AppendMatrixTranscriptRequest{
		CaseID:    caseID,
		RoomID:    roomID,
		EventID:   eventID,
		Direction: models.TranscriptInbound,
		Body:      body,
	}); err != nil {
		return err
	}

	reply, err := replyparse.ParseSchedulerReply(body, caseID)
	if err != nil {
		var parseErr *replyparse.ParseError
		if !errors.As(err, &parseErr) {
			return err
		}
		return s.rejectRoom3Reply(ctx, caseID, roomID, eventID, parseErr.Code)
	}

	if err := s.applySchedulerReply(ctx, caseID, sender, eventID, reply); err != nil {
		if errors.Is(err, ErrWrongState) {
			return s.rejectRoom3Reply(ctx, caseID, roomID, eventID, "case_not_waiting_scheduler")
		}
		return err
	}

	ackBody, ackHTML := matrix.Room3AckMessage(reply.AppointmentStatus)
	return s.postFeedback(ctx, caseID, roomID, models.MessageKindRoom3ReplyFeedback, ackBody, ackHTML)
}

// OnRoom1Reaction handles a thumbs-up on the Room-1 final message and
// starts the cleanup. Repeated reactions on an already-running cleanup
// are absorbed.
func (s *ChatFlowService) OnRoom1Reaction(ctx context.Context, roomID, eventID, sender, key, targetEventID string) error {
	caseID, err := s.messages.FindCaseByEvent(ctx, roomID, targetEventID, models.MessageKindRoom1Final)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	c, err := s.cases.Get(ctx, caseID)
	if err != nil {
		return err
	}
	switch c.Status {
	case models.CaseStatusCleanupRunning, models.CaseStatusCleaned:
		return nil
	case models.CaseStatusWaitR1CleanupThumbs:
	default:
		s.logger.WarnContext(ctx, "Cleanup reaction on unexpected status",
			"case_id", caseID, "status", c.Status)
		return nil
	}

	err = InTx(ctx, s.db, func(tx pgx.Tx) error {
		cases := s.cases.WithTx(tx)
		if txErr := cases.MarkCleanupTriggered(ctx, caseID); txErr != nil {
			return txErr
		}
		if _, txErr := cases.Transition(ctx, caseID, models.CaseStatusCleanupRunning); txErr != nil {
			return txErr
		}
		if _, txErr := s.audit.WithTx(tx).Append(ctx, models.AppendAuditEventRequest{
			CaseID:        &caseID,
			ActorType:     models.ActorHuman,
			EventType:     models.AuditCleanupTriggered,
			Payload:       map[string]any{"sender": sender, "reaction_key": key},
			RoomID:        &roomID,
			MatrixEventID: &eventID,
		}); txErr != nil {
			return txErr
		}
		jobs := s.jobs.WithTx(tx)
		active, txErr := jobs.HasActiveJob(ctx, caseID, models.JobTypeExecuteCleanup)
		if txErr != nil {
			return txErr
		}
		if active {
			return nil
		}
		_, txErr = jobs.Enqueue(ctx, models.EnqueueJobRequest{
			JobType: models.JobTypeExecuteCleanup,
			CaseID:  &caseID,
		})
		return txErr
	})
	if err != nil {
		return fmt.Errorf("trigger cleanup: %w", err)
	}
	s.logger.InfoContext(ctx, "Cleanup triggered by reaction", "case_id", caseID, "sender", sender)
	return nil
}

// applySchedulerReply persists the appointment outcome, advances the
// case and queues the matching Room-1 final.
func (s *ChatFlowService) applySchedulerReply(ctx context.Context, caseID uuid.UUID, sender, eventID string, reply *replyparse.SchedulerReply) error {
	next := models.CaseStatusApptConfirmed
	followUp := models.JobTypePostRoom1FinalAppt
	if reply.AppointmentStatus == models.AppointmentDenied {
		next = models.CaseStatusApptDenied
		followUp = models.JobTypePostRoom1FinalApptDenied
	}

	return InTx(ctx, s.db, func(tx pgx.Tx) error {
		cases := s.cases.WithTx(tx)
		current, txErr := cases.Get(ctx, caseID)
		if txErr != nil {
			return txErr
		}
		if current.Status != models.CaseStatusWaitScheduler {
			return fmt.Errorf("%w: scheduler reply on status %s", ErrWrongState, current.Status)
		}

		if reply.AppointmentStatus == models.AppointmentConfirmed {
			txErr = cases.StoreAppointmentConfirmed(ctx, caseID,
				*reply.AppointmentAt, derefString(reply.Location), derefString(reply.Instructions))
		} else {
			txErr = cases.StoreAppointmentDenied(ctx, caseID, reply.Reason)
		}
		if txErr != nil {
			return txErr
		}
		if _, txErr = cases.Transition(ctx, caseID, next); txErr != nil {
			return txErr
		}

		payload := map[string]any{
			"appointment_status": string(reply.AppointmentStatus),
			"sender":             sender,
		}
		if reply.AppointmentAt != nil {
			payload["appointment_at"] = reply.AppointmentAt.UTC()
		}
		if _, txErr = s.audit.WithTx(tx).Append(ctx, models.AppendAuditEventRequest{
			CaseID:        &caseID,
			ActorType:     models.ActorHuman,
			EventType:     models.AuditAppointmentRecorded,
			Payload:       payload,
			MatrixEventID: &eventID,
		}); txErr != nil {
			return txErr
		}

		jobs := s.jobs.WithTx(tx)
		active, txErr := jobs.HasActiveJob(ctx, caseID, followUp)
		if txErr != nil {
			return txErr
		}
		if active {
			return nil
		}
		_, txErr = jobs.Enqueue(ctx, models.EnqueueJobRequest{JobType: followUp, CaseID: &caseID})
		return txErr
	})
}

func (s *ChatFlowService) rejectRoom2Reply(ctx context.Context, caseID uuid.UUID, roomID, eventID, code string) error {
	if _, err := s.audit.Append(ctx, models.AppendAuditEventRequest{
		CaseID:        &caseID,
		ActorType:     models.ActorBot,
		EventType:     models.AuditRoom2ReplyRejected,
		Payload:       map[string]any{"code": code},
		RoomID:        &roomID,
		MatrixEventID: &eventID,
	}); err != nil {
		return err
	}
	body, htmlBody := matrix.DecisionErrorMessage(caseID, code)
	return s.postFeedback(ctx, caseID, roomID, models.MessageKindRoom2ReplyFeedback, body, htmlBody)
}

func (s *ChatFlowService) rejectRoom3Reply(ctx context.Context, caseID uuid.UUID, roomID, eventID, code string) error {
	if _, err := s.audit.Append(ctx, models.AppendAuditEventRequest{
		CaseID:        &caseID,
		ActorType:     models.ActorBot,
		EventType:     models.AuditRoom3ReplyRejected,
		Payload:       map[string]any{"code": code},
		RoomID:        &roomID,
		MatrixEventID: &eventID,
	}); err != nil {
		return err
	}
	body, htmlBody := matrix.Room3ErrorMessage(caseID, code)
	return s.postFeedback(ctx, caseID, roomID, models.MessageKindRoom3ReplyFeedback, body, htmlBody)
}

// postFeedback sends a bot reply and tracks it for later cleanup.
func (s *ChatFlowService) postFeedback(ctx context.Context, caseID uuid.UUID, roomID, kind, body, htmlBody string) error {
	sentEventID, err := s.chat.SendMessage(ctx, roomID, body, htmlBody)
	if err != nil {
		return fmt.Errorf("post %s: %w", kind, err)
	}
	if _, err := s.messages.Add(ctx, models.AddCaseMessageRequest{
		CaseID:  caseID,
		RoomID:  roomID,
		EventID: sentEventID,
		Kind:    kind,
	}); err != nil && !errors.Is(err, ErrAlreadyExists) {
		return err
	}
	_, err = s.transcripts.AppendMatrixMessage(ctx, models.AppendMatrixTranscriptRequest{
		CaseID:    caseID,
		RoomID:    roomID,
		EventID:   sentEventID,
		Direction: models.TranscriptOutbound,
		Body:      body,
	})
	return err
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
