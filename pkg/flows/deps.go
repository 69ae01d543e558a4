package flows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/medops-br/triagebot/pkg/config"
	"github.com/medops-br/triagebot/pkg/llm"
	"github.com/medops-br/triagebot/pkg/models"
	"github.com/medops-br/triagebot/pkg/queue"
	"github.com/medops-br/triagebot/pkg/services"
	"github.com/medops-br/triagebot/pkg/timeutil"
)

// Chat is the chat surface the handlers post through. Satisfied by
// *matrix.Client; tests substitute a recording fake.
type Chat interface {
	SendMessage(ctx context.Context, roomID, body, htmlBody string) (string, error)
	RedactEvent(ctx context.Context, roomID, eventID, reason string) error
	DownloadMedia(ctx context.Context, mxcURL string) ([]byte, error)
}

// Stage1Port and Stage2Port are the pipeline stage ports, satisfied by
// *llm.Stage1 and *llm.Stage2.
type Stage1Port interface {
	Run(ctx context.Context, in llm.Stage1Input) (*llm.Stage1Result, error)
}

type Stage2Port interface {
	Run(ctx context.Context, in llm.Stage2Input) (*llm.Stage2Result, error)
}

// Deps bundles everything the job handlers need. Handlers are methods on
// *Deps; Handlers() exposes them keyed by job type for the worker pool.
type Deps struct {
	DB          services.Querier
	Cases       *services.CaseStore
	Messages    *services.MessageStore
	Jobs        *services.JobQueue
	Audit       *services.AuditStore
	Transcripts *services.TranscriptStore
	Dispatches  *services.DispatchStore

	Chat   Chat
	Stage1 Stage1Port
	Stage2 Stage2Port

	// ExtractPdfText overrides the ledongthuc/pdf extraction in tests.
	ExtractPdfText func(data []byte) (string, error)

	Clock   timeutil.Clock
	Rooms   config.RoomsConfig
	Summary config.SummaryConfig

	// WidgetBaseURL is the public base the Room-2 widget payload links to.
	WidgetBaseURL string

	logger *slog.Logger
}

// Handlers returns the job-type dispatch table for the worker pool.
func (d *Deps) Handlers() map[string]queue.Handler {
	return map[string]queue.Handler{
		models.JobTypeProcessPdfCase:             d.ProcessPdfCase,
		models.JobTypePostRoom2Widget:            d.PostRoom2Widget,
		models.JobTypePostRoom3Request:           d.PostRoom3Request,
		models.JobTypePostRoom1FinalDenialTriage: d.PostRoom1FinalDenialTriage,
		models.JobTypePostRoom1FinalAppt:         d.PostRoom1FinalAppt,
		models.JobTypePostRoom1FinalApptDenied:   d.PostRoom1FinalApptDenied,
		models.JobTypePostRoom1FinalFailure:      d.PostRoom1FinalFailure,
		models.JobTypeExecuteCleanup:             d.ExecuteCleanup,
		models.JobTypePostRoom4Summary:           d.PostRoom4Summary,
	}
}

func (d *Deps) log() *slog.Logger {
	if d.logger == nil {
		d.logger = slog.With("component", "flows")
	}
	return d.logger
}

func (d *Deps) clock() timeutil.Clock {
	if d.Clock == nil {
		return timeutil.RealClock{}
	}
	return d.Clock
}

// jobCaseID extracts the owning case of a job; every handler except the
// Room-4 summary requires one.
func jobCaseID(job models.Job) (uuid.UUID, error) {
	if job.CaseID == nil {
		return uuid.Nil, fmt.Errorf("job %d (%s) has no case_id", job.JobID, job.JobType)
	}
	return *job.CaseID, nil
}

func payloadString(job models.Job, key string) string {
	v, _ := job.Payload[key].(string)
	return v
}

// enqueueFollowUp inserts the next job for the case unless one of that
// type is already queued or running.
func (d *Deps) enqueueFollowUp(ctx context.Context, caseID uuid.UUID, jobType string, payload map[string]any) error {
	active, err := d.Jobs.HasActiveJob(ctx, caseID, jobType)
	if err != nil {
		return fmt.Errorf("check active %s job: %w", jobType, err)
	}
	if active {
		return nil
	}
	if _, err := d.Jobs.Enqueue(ctx, models.EnqueueJobRequest{
		JobType: jobType,
		CaseID:  &caseID,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	return nil
}

// recordOutbound maps a sent chat event to the case and captures its body.
// Replayed handlers re-record the same event; the duplicate is tolerated.
func (d *Deps) recordOutbound(ctx context.Context, caseID uuid.UUID, roomID, eventID, kind, body string) error {
	_, err := d.Messages.Add(ctx, models.AddCaseMessageRequest{
		CaseID:  caseID,
		RoomID:  roomID,
		EventID: eventID,
		Kind:    kind,
	})
	if err != nil {
		if !errors.Is(err, services.ErrAlreadyExists) {
			return fmt.Errorf("record %s message: %w", kind, err)
		}
		return nil
	}
	if _, err := d.Transcripts.AppendMatrixMessage(ctx, models.AppendMatrixTranscriptRequest{
		CaseID:    caseID,
		RoomID:    roomID,
		EventID:   eventID,
		Direction: models.TranscriptOutbound,
		Body:      body,
	}); err != nil {
		return fmt.Errorf("append %s transcript: %w", kind, err)
	}
	return nil
}
