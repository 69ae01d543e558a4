package services

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/medops-br/triagebot/pkg/models"
)

// MonitoringService serves the read-only dashboard views: the paginated
// case list and the per-case detail with a unified timeline.
type MonitoringService struct {
	cases       *CaseStore
	audit       *AuditStore
	transcripts *TranscriptStore
}

// NewMonitoringService creates the dashboard read service.
func NewMonitoringService(cases *CaseStore, audit *AuditStore, transcripts *TranscriptStore) *MonitoringService {
	if cases == nil || audit == nil || transcripts == nil {
		panic("NewMonitoringService: all dependencies must be non-nil")
	}
	return &MonitoringService{cases: cases, audit: audit, transcripts: transcripts}
}

// ListCases returns one page of cases matching the filters, newest
// activity first.
func (s *MonitoringService) ListCases(ctx context.Context, filters models.CaseListFilters) (*models.CaseListPage, error) {
	if filters.ActivityFrom != nil && filters.ActivityTo != nil &&
		filters.ActivityTo.Before(*filters.ActivityFrom) {
		return nil, NewValidationError("to_date", "activity window ends before it starts")
	}
	return s.cases.ListForMonitoring(ctx, filters)
}

// GetCaseDetail returns the case plus its chronological timeline merged
// from audit events, LLM interactions and chat transcripts.
func (s *MonitoringService) GetCaseDetail(ctx context.Context, caseID uuid.UUID) (*models.CaseDetail, error) {
	c, err := s.cases.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}

	audits, err := s.audit.ListForCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	interactions, err := s.transcripts.ListLlmForCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	chat, err := s.transcripts.ListMatrixForCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	timeline := make([]models.TimelineEntry, 0, len(audits)+len(interactions)+len(chat))
	for _, a := range audits {
		detail := map[string]any{"actor_type": string(a.ActorType)}
		if len(a.Payload) > 0 {
			detail["payload"] = a.Payload
		}
		if a.RoomID != nil {
			detail["room_id"] = *a.RoomID
		}
		if a.MatrixEventID != nil {
			detail["matrix_event_id"] = *a.MatrixEventID
		}
		timeline = append(timeline, models.TimelineEntry{
			OccurredAt: a.OccurredAt,
			Source:     "audit",
			EntryType:  a.EventType,
			Detail:     detail,
		})
	}
	for _, li := range interactions {
		timeline = append(timeline, models.TimelineEntry{
			OccurredAt: li.CapturedAt,
			Source:     "llm",
			EntryType:  string(li.Stage),
			Detail: map[string]any{
				"model_name":            li.ModelName,
				"system_prompt_version": li.SystemPromptVersion,
				"user_prompt_version":   li.UserPromptVersion,
				"output_payload":        li.OutputPayload,
			},
		})
	}
	for _, m := range chat {
		timeline = append(timeline, models.TimelineEntry{
			OccurredAt: m.CapturedAt,
			Source:     "matrix",
			EntryType:  string(m.Direction),
			Detail: map[string]any{
				"room_id":  m.RoomID,
				"event_id": m.EventID,
				"body":     m.Body,
			},
		})
	}

	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].OccurredAt.Before(timeline[j].OccurredAt)
	})

	return &models.CaseDetail{Case: *c, Timeline: timeline}, nil
}
