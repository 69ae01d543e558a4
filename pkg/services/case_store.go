package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medops-br/triagebot/pkg/models"
)

// caseColumns is the shared projection scanned by scanCase. Order matters.
const caseColumns = `case_id, status, room1_origin_room_id, room1_origin_event_id,
	room1_sender_user_id, agency_record_number, agency_record_extracted_at,
	pdf_mxc_url, extracted_text, structured_data, summary_text, suggested_action,
	doctor_decision, doctor_support_flag, doctor_reason, doctor_decided_at,
	doctor_user_id, appointment_status, appointment_at, appointment_location,
	appointment_instructions, appointment_reason, cleanup_triggered_at,
	cleanup_completed_at, created_at, updated_at`

// CaseStore persists the case aggregate.
type CaseStore struct {
	db Querier
}

// NewCaseStore creates a pool-bound case store.
func NewCaseStore(db Querier) *CaseStore {
	if db == nil {
		panic("NewCaseStore: db must not be nil")
	}
	return &CaseStore{db: db}
}

// WithTx returns a copy of the store bound to the given transaction.
func (s *CaseStore) WithTx(tx pgx.Tx) *CaseStore {
	return &CaseStore{db: tx}
}

func scanCase(row pgx.Row) (*models.Case, error) {
	var c models.Case
	err := row.Scan(
		&c.CaseID, &c.Status, &c.Room1OriginRoomID, &c.Room1OriginEventID,
		&c.Room1SenderUserID, &c.AgencyRecordNumber, &c.AgencyRecordExtractedAt,
		&c.PdfMxcURL, &c.ExtractedText, &c.StructuredData, &c.SummaryText, &c.SuggestedAction,
		&c.DoctorDecision, &c.DoctorSupportFlag, &c.DoctorReason, &c.DoctorDecidedAt,
		&c.DoctorUserID, &c.AppointmentStatus, &c.AppointmentAt, &c.AppointmentLocation,
		&c.AppointmentInstructions, &c.AppointmentReason, &c.CleanupTriggeredAt,
		&c.CleanupCompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a new case in status NEW. A duplicate Room-1 origin event
// returns ErrAlreadyExists so intake stays idempotent across restarts.
func (s *CaseStore) Create(ctx context.Context, req models.CreateCaseRequest) (*models.Case, error) {
	if req.Room1OriginRoomID == "" {
		return nil, NewValidationError("room1_origin_room_id", "origin room is required")
	}
	if req.Room1OriginEventID == "" {
		return nil, NewValidationError("room1_origin_event_id", "origin event is required")
	}
	if req.Room1SenderUserID == "" {
		return nil, NewValidationError("room1_sender_user_id", "origin sender is required")
	}
	caseID := req.CaseID
	if caseID == uuid.Nil {
		caseID = uuid.New()
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO cases (case_id, status, room1_origin_room_id, room1_origin_event_id, room1_sender_user_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ON CONSTRAINT uq_cases_room1_origin DO NOTHING
		RETURNING `+caseColumns,
		caseID, models.CaseStatusNew, req.Room1OriginRoomID, req.Room1OriginEventID, req.Room1SenderUserID,
	)
	created, err := scanCase(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: case for origin event %s", ErrAlreadyExists, req.Room1OriginEventID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create case: %w", err)
	}
	return created, nil
}

// Get loads one case by id.
func (s *CaseStore) Get(ctx context.Context, caseID uuid.UUID) (*models.Case, error) {
	row := s.db.QueryRow(ctx, `SELECT `+caseColumns+` FROM cases WHERE case_id = $1`, caseID)
	c, err := scanCase(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: case %s", ErrNotFound, caseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load case: %w", err)
	}
	return c, nil
}

// Transition moves the case to next after checking the state machine, and
// returns the previous status. Run on a transaction-bound store when the
// caller needs the row locked across further writes.
func (s *CaseStore) Transition(ctx context.Context, caseID uuid.UUID, next models.CaseStatus) (models.CaseStatus, error) {
	var current models.CaseStatus
	err := s.db.QueryRow(ctx, `SELECT status FROM cases WHERE case_id = $1 FOR UPDATE`, caseID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: case %s", ErrNotFound, caseID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to lock case status: %w", err)
	}

	if !current.CanTransitionTo(next) {
		return current, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}

	if _, err := s.db.Exec(ctx,
		`UPDATE cases SET status = $2, updated_at = now() WHERE case_id = $1`,
		caseID, next,
	); err != nil {
		return current, fmt.Errorf("failed to update case status: %w", err)
	}
	return current, nil
}

// StorePdfExtraction persists the download/extraction artifacts.
func (s *CaseStore) StorePdfExtraction(ctx context.Context, caseID uuid.UUID, pdfMxcURL, extractedText, agencyRecordNumber string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE cases
		SET pdf_mxc_url = $2,
			extracted_text = $3,
			agency_record_number = $4,
			agency_record_extracted_at = now(),
			updated_at = now()
		WHERE case_id = $1`,
		caseID, pdfMxcURL, extractedText, agencyRecordNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to store pdf extraction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: case %s", ErrNotFound, caseID)
	}
	return nil
}

// StoreLlm1Artifacts persists the extraction payload and summary one-liner.
func (s *CaseStore) StoreLlm1Artifacts(ctx context.Context, caseID uuid.UUID, structuredData map[string]any, summaryText string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE cases
		SET structured_data = $2, summary_text = $3, updated_at = now()
		WHERE case_id = $1`,
		caseID, structuredData, summaryText,
	)
	if err != nil {
		return fmt.Errorf("failed to store llm1 artifacts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: case %s", ErrNotFound, caseID)
	}
	return nil
}

// StoreLlm2Artifacts persists the reconciled suggested action document.
func (s *CaseStore) StoreLlm2Artifacts(ctx context.Context, caseID uuid.UUID, suggestedAction map[string]any) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE cases SET suggested_action = $2, updated_at = now() WHERE case_id = $1`,
		caseID, suggestedAction,
	)
	if err != nil {
		return fmt.Errorf("failed to store llm2 artifacts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: case %s", ErrNotFound, caseID)
	}
	return nil
}

// StoreDoctorDecision persists the decision fields.
func (s *CaseStore) StoreDoctorDecision(ctx context.Context, caseID uuid.UUID, decision models.Decision, supportFlag models.SupportFlag, reason *string, doctorUserID string, decidedAt time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE cases
		SET doctor_decision = $2,
			doctor_support_flag = $3,
			doctor_reason = $4,
			doctor_user_id = $5,
			doctor_decided_at = $6,
			updated_at = now()
		WHERE case_id = $1`,
		caseID, decision, supportFlag, reason, doctorUserID, decidedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store doctor decision: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: case %s", ErrNotFound, caseID)
	}
	return nil
}

// StoreAppointmentConfirmed persists a confirmed scheduling outcome.
func (s *CaseStore) StoreAppointmentConfirmed(ctx context.Context, caseID uuid.UUID, appointmentAt time.Time, location, instructions string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE cases
		SET appointment_status = $2,
			appointment_at = $3,
			appointment_location = $4,
			appointment_instructions = $5,
			appointment_reason = NULL,
			updated_at = now()
		WHERE case_id = $1`,
		caseID, models.AppointmentConfirmed, appointmentAt, location, instructions,
	)
	if err != nil {
		return fmt.Errorf("failed to store confirmed appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: case %s", ErrNotFound, caseID)
	}
	return nil
}

// StoreAppointmentDenied persists a denied scheduling outcome.
func (s *CaseStore) StoreAppointmentDenied(ctx context.Context, caseID uuid.UUID, reason *string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE cases
		SET appointment_status = $2, appointment_reason = $3, updated_at = now()
		WHERE case_id = $1`,
		caseID, models.AppointmentDenied, reason,
	)
	if err != nil {
		return fmt.Errorf("failed to store denied appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: case %s", ErrNotFound, caseID)
	}
	return nil
}

// MarkCleanupTriggered records the human thumbs-up that starts cleanup.
func (s *CaseStore) MarkCleanupTriggered(ctx context.Context, caseID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE cases SET cleanup_triggered_at = now(), updated_at = now() WHERE case_id = $1`,
		caseID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark cleanup triggered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: case %s", ErrNotFound, caseID)
	}
	return nil
}

// MarkCleanupCompleted finalizes cleanup: completion timestamp plus CLEANED.
func (s *CaseStore) MarkCleanupCompleted(ctx context.Context, caseID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE cases
		SET cleanup_completed_at = now(), status = $2, updated_at = now()
		WHERE case_id = $1`,
		caseID, models.CaseStatusCleaned,
	)
	if err != nil {
		return fmt.Errorf("failed to mark cleanup completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: case %s", ErrNotFound, caseID)
	}
	return nil
}

// WidgetSnapshot loads the fields the Room-2 widget payload is built from.
func (s *CaseStore) WidgetSnapshot(ctx context.Context, caseID uuid.UUID) (*models.Room2WidgetSnapshot, error) {
	var snap models.Room2WidgetSnapshot
	err := s.db.QueryRow(ctx, `
		SELECT case_id, status, agency_record_number, structured_data, summary_text, suggested_action
		FROM cases WHERE case_id = $1`,
		caseID,
	).Scan(&snap.CaseID, &snap.Status, &snap.AgencyRecordNumber, &snap.StructuredData, &snap.SummaryText, &snap.SuggestedAction)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: case %s", ErrNotFound, caseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load widget snapshot: %w", err)
	}
	return &snap, nil
}

// ListNonTerminal returns every case the recovery scan must look at.
func (s *CaseStore) ListNonTerminal(ctx context.Context) ([]models.Case, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+caseColumns+` FROM cases WHERE status <> $1 ORDER BY created_at`,
		models.CaseStatusCleaned,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list non-terminal cases: %w", err)
	}
	defer rows.Close()

	var cases []models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		cases = append(cases, *c)
	}
	return cases, rows.Err()
}

// priorCaseWindow is how far back the widget enrichment looks for repeats.
const priorCaseWindow = 7 * 24 * time.Hour

// PriorCaseContext resolves the most recent decided prior case sharing the
// record number within the 7-day window, plus the denial count over the same
// window. Cases without a derivable decision are ignored.
func (s *CaseStore) PriorCaseContext(ctx context.Context, caseID uuid.UUID, agencyRecordNumber string, now time.Time) (*models.PriorCaseContext, error) {
	if agencyRecordNumber == "" {
		return &models.PriorCaseContext{}, nil
	}
	windowStart := now.Add(-priorCaseWindow)

	rows, err := s.db.Query(ctx, `
		SELECT case_id, status, doctor_decision, doctor_reason, doctor_decided_at,
			appointment_status, appointment_reason, updated_at
		FROM cases
		WHERE agency_record_number = $1 AND case_id <> $2
		ORDER BY updated_at DESC`,
		agencyRecordNumber, caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query prior cases: %w", err)
	}
	defer rows.Close()

	var (
		latest      *models.PriorCaseSummary
		denialCount int
	)
	for rows.Next() {
		var (
			priorID     uuid.UUID
			status      models.CaseStatus
			decision    *models.Decision
			reason      *string
			decidedAt   *time.Time
			apptStatus  *models.AppointmentStatus
			apptReason  *string
			updatedAt   time.Time
		)
		if err := rows.Scan(&priorID, &status, &decision, &reason, &decidedAt,
			&apptStatus, &apptReason, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan prior case: %w", err)
		}

		summary := derivePriorDecision(priorID, status, decision, reason, decidedAt, apptStatus, apptReason, updatedAt)
		if summary == nil || summary.DecidedAt.Before(windowStart) || summary.DecidedAt.After(now) {
			continue
		}
		if latest == nil || summary.DecidedAt.After(latest.DecidedAt) {
			latest = summary
		}
		if summary.Decision == "deny_triage" || summary.Decision == "deny_appointment" {
			denialCount++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &models.PriorCaseContext{PriorCase: latest}
	if latest != nil {
		count := denialCount
		result.PriorDenialCount7d = &count
	}
	return result, nil
}

// derivePriorDecision classifies a prior case the way the widget payload
// reports it. Failures and denied appointments outrank the doctor verdict.
func derivePriorDecision(priorID uuid.UUID, status models.CaseStatus, decision *models.Decision, reason *string, decidedAt *time.Time, apptStatus *models.AppointmentStatus, apptReason *string, updatedAt time.Time) *models.PriorCaseSummary {
	switch {
	case status == models.CaseStatusFailed:
		return &models.PriorCaseSummary{PriorCaseID: priorID, DecidedAt: updatedAt, Decision: "failed"}
	case apptStatus != nil && *apptStatus == models.AppointmentDenied:
		return &models.PriorCaseSummary{PriorCaseID: priorID, DecidedAt: updatedAt, Decision: "deny_appointment", Reason: apptReason}
	case decision != nil && *decision == models.DecisionDeny:
		at := updatedAt
		if decidedAt != nil {
			at = *decidedAt
		}
		return &models.PriorCaseSummary{PriorCaseID: priorID, DecidedAt: at, Decision: "deny_triage", Reason: reason}
	case decision != nil && *decision == models.DecisionAccept:
		at := updatedAt
		if decidedAt != nil {
			at = *decidedAt
		}
		return &models.PriorCaseSummary{PriorCaseID: priorID, DecidedAt: at, Decision: "accepted", Reason: reason}
	default:
		return nil
	}
}

// ListForMonitoring returns one page of the monitoring case list, newest
// activity first. Filters with nil bounds are open-ended.
func (s *CaseStore) ListForMonitoring(ctx context.Context, filters models.CaseListFilters) (*models.CaseListPage, error) {
	page := filters.Page
	if page < 1 {
		page = 1
	}
	pageSize := filters.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	where := "TRUE"
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filters.Status != nil {
		where += " AND status = " + arg(*filters.Status)
	}
	if filters.ActivityFrom != nil {
		where += " AND updated_at >= " + arg(*filters.ActivityFrom)
	}
	if filters.ActivityTo != nil {
		where += " AND updated_at < " + arg(*filters.ActivityTo)
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM cases WHERE `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count monitoring cases: %w", err)
	}

	query := `
		SELECT case_id, status, agency_record_number, structured_data,
			doctor_decision, appointment_status, appointment_at,
			cleanup_completed_at, created_at, updated_at
		FROM cases WHERE ` + where + `
		ORDER BY updated_at DESC, case_id
		LIMIT ` + arg(pageSize) + ` OFFSET ` + arg((page-1)*pageSize)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitoring cases: %w", err)
	}
	defer rows.Close()

	items := []models.CaseListItem{}
	for rows.Next() {
		var (
			item           models.CaseListItem
			structuredData map[string]any
		)
		if err := rows.Scan(&item.CaseID, &item.Status, &item.AgencyRecordNumber, &structuredData,
			&item.DoctorDecision, &item.AppointmentStatus, &item.AppointmentAt,
			&item.CleanupCompletedAt, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan monitoring case: %w", err)
		}
		item.PatientName, item.PatientAge = models.PatientNameAge(structuredData)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.CaseListPage{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}
