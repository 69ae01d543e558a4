package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medops-br/triagebot/pkg/models"
	"github.com/medops-br/triagebot/pkg/timeutil"
)

// DecisionService applies a doctor's triage decision to a waiting case.
// The webhook, the widget submit and the Room-2 reply flow all funnel
// through ApplyDecision, so the three surfaces share one set of rules.
type DecisionService struct {
	db     Querier
	cases  *CaseStore
	jobs   *JobQueue
	audit  *AuditStore
	clock  timeutil.Clock
	logger *slog.Logger
}

// NewDecisionService creates the decision use-case over the shared stores.
func NewDecisionService(db Querier, cases *CaseStore, jobs *JobQueue, audit *AuditStore, clock timeutil.Clock) *DecisionService {
	if db == nil || cases == nil || jobs == nil || audit == nil {
		panic("NewDecisionService: all dependencies must be non-nil")
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &DecisionService{
		db:     db,
		cases:  cases,
		jobs:   jobs,
		audit:  audit,
		clock:  clock,
		logger: slog.With("component", "decision_service"),
	}
}

// DecisionRequest is the normalized decision payload.
type DecisionRequest struct {
	CaseID        uuid.UUID
	DoctorUserID  string
	Decision      models.Decision
	SupportFlag   models.SupportFlag
	Reason        *string
	SubmittedAt   *time.Time
	WidgetEventID *string
}

func (r DecisionRequest) validate() error {
	if r.DoctorUserID == "" {
		return NewValidationError("doctor_user_id", "doctor identity is required")
	}
	switch r.Decision {
	case models.DecisionAccept, models.DecisionDeny:
	default:
		return NewValidationError("decision", fmt.Sprintf("unknown decision %q", r.Decision))
	}
	switch r.SupportFlag {
	case models.SupportNone, models.SupportAnesthesist, models.SupportAnesthesistICU:
	default:
		return NewValidationError("support_flag", fmt.Sprintf("unknown support flag %q", r.SupportFlag))
	}
	if r.Decision == models.DecisionDeny && r.SupportFlag != models.SupportNone {
		return NewValidationError("support_flag", "a denied triage cannot request support")
	}
	return nil
}

// ApplyDecision validates and persists the decision, advances the case,
// and queues the follow-up poster. A case past WAIT_DOCTOR returns
// ErrWrongState, including a repeat of an already-applied decision.
func (s *DecisionService) ApplyDecision(ctx context.Context, req DecisionRequest) (*models.Case, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	decidedAt := s.clock.Now()
	if req.SubmittedAt != nil {
		decidedAt = *req.SubmittedAt
	}
	next := models.CaseStatusDoctorAccepted
	followUp := models.JobTypePostRoom3Request
	if req.Decision == models.DecisionDeny {
		next = models.CaseStatusDoctorDenied
		followUp = models.JobTypePostRoom1FinalDenialTriage
	}

	err := InTx(ctx, s.db, func(tx pgx.Tx) error {
		cases := s.cases.WithTx(tx)
		current, txErr := cases.Get(ctx, req.CaseID)
		if txErr != nil {
			return txErr
		}
		if current.Status != models.CaseStatusWaitDoctor {
			return fmt.Errorf("%w: decision on status %s", ErrWrongState, current.Status)
		}

		if _, txErr = cases.Transition(ctx, req.CaseID, next); txErr != nil {
			return txErr
		}
		if txErr = cases.StoreDoctorDecision(ctx, req.CaseID,
			req.Decision, req.SupportFlag, req.Reason, req.DoctorUserID, decidedAt); txErr != nil {
			return txErr
		}

		payload := map[string]any{
			"decision":     string(req.Decision),
			"support_flag": string(req.SupportFlag),
		}
		if req.Reason != nil {
			payload["reason"] = *req.Reason
		}
		if _, txErr = s.audit.WithTx(tx).Append(ctx, models.AppendAuditEventRequest{
			CaseID:        &req.CaseID,
			ActorType:     models.ActorHuman,
			EventType:     models.AuditDoctorDecisionRecorded,
			Payload:       payload,
			MatrixEventID: req.WidgetEventID,
		}); txErr != nil {
			return txErr
		}

		jobs := s.jobs.WithTx(tx)
		active, txErr := jobs.HasActiveJob(ctx, req.CaseID, followUp)
		if txErr != nil {
			return txErr
		}
		if !active {
			if _, txErr = jobs.Enqueue(ctx, models.EnqueueJobRequest{
				JobType: followUp,
				CaseID:  &req.CaseID,
			}); txErr != nil {
				return txErr
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Doctor decision recorded",
		"case_id", req.CaseID, "decision", req.Decision, "support_flag", req.SupportFlag)
	return s.cases.Get(ctx, req.CaseID)
}
