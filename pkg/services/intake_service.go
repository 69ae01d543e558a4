package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/medops-br/triagebot/pkg/models"
)

// IntakeService turns a Room-1 PDF upload into a tracked case with its
// first pipeline job. Intake is keyed on the origin event, so a replayed
// upload event is absorbed without a second case.
type IntakeService struct {
	db          Querier
	cases       *CaseStore
	messages    *MessageStore
	transcripts *TranscriptStore
	jobs        *JobQueue
	audit       *AuditStore
	logger      *slog.Logger
}

// NewIntakeService creates the intake use-case over the shared stores.
func NewIntakeService(db Querier, cases *CaseStore, messages *MessageStore, transcripts *TranscriptStore, jobs *JobQueue, audit *AuditStore) *IntakeService {
	if db == nil || cases == nil || messages == nil || transcripts == nil || jobs == nil || audit == nil {
		panic("NewIntakeService: all dependencies must be non-nil")
	}
	return &IntakeService{
		db:          db,
		cases:       cases,
		messages:    messages,
		transcripts: transcripts,
		jobs:        jobs,
		audit:       audit,
		logger:      slog.With("component", "intake_service"),
	}
}

// IntakeRequest describes one Room-1 upload event.
type IntakeRequest struct {
	RoomID    string
	EventID   string
	SenderID  string
	Body      string
	PdfMxcURL string
}

// Intake creates the case, records the origin message and transcript,
// and queues the PDF pipeline. A duplicate origin event returns the
// existing state with created=false and performs no writes.
func (s *IntakeService) Intake(ctx context.Context, req IntakeRequest) (c *models.Case, created bool, err error) {
	if req.RoomID == "" || req.EventID == "" {
		return nil, false, NewValidationError("event", "room_id and event_id are required")
	}
	if req.PdfMxcURL == "" {
		return nil, false, NewValidationError("pdf_mxc_url", "upload carries no media URL")
	}

	err = InTx(ctx, s.db, func(tx pgx.Tx) error {
		caseRow, txErr := s.cases.WithTx(tx).Create(ctx, models.CreateCaseRequest{
			Room1OriginRoomID:  req.RoomID,
			Room1OriginEventID: req.EventID,
			Room1SenderUserID:  req.SenderID,
		})
		if txErr != nil {
			return txErr
		}
		c = caseRow

		if _, txErr = s.messages.WithTx(tx).Add(ctx, models.AddCaseMessageRequest{
			CaseID:       c.CaseID,
			RoomID:       req.RoomID,
			EventID:      req.EventID,
			Kind:         models.MessageKindRoom1Origin,
			SenderUserID: &req.SenderID,
		}); txErr != nil {
			return txErr
		}
		if _, txErr = s.transcripts.WithTx(tx).AppendMatrixMessage(ctx, models.AppendMatrixTranscriptRequest{
			CaseID:    c.CaseID,
			RoomID:    req.RoomID,
			EventID:   req.EventID,
			Direction: models.TranscriptInbound,
			Body:      req.Body,
		}); txErr != nil {
			return txErr
		}
		if _, txErr = s.audit.WithTx(tx).Append(ctx, models.AppendAuditEventRequest{
			CaseID:        &c.CaseID,
			ActorType:     models.ActorHuman,
			EventType:     models.AuditCaseCreated,
			Payload:       map[string]any{"sender": req.SenderID, "pdf_mxc_url": req.PdfMxcURL},
			RoomID:        &req.RoomID,
			MatrixEventID: &req.EventID,
		}); txErr != nil {
			return txErr
		}
		if _, txErr = s.jobs.WithTx(tx).Enqueue(ctx, models.EnqueueJobRequest{
			JobType: models.JobTypeProcessPdfCase,
			CaseID:  &c.CaseID,
			Payload: map[string]any{"pdf_mxc_url": req.PdfMxcURL},
		}); txErr != nil {
			return txErr
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			s.logger.InfoContext(ctx, "Duplicate Room-1 upload ignored",
				"room_id", req.RoomID, "event_id", req.EventID)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("intake case: %w", err)
	}

	s.logger.InfoContext(ctx, "Case created from Room-1 upload",
		"case_id", c.CaseID, "sender", req.SenderID)
	return c, true, nil
}
