//go:build integration

package flows_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medops-br/triagebot/pkg/config"
	"github.com/medops-br/triagebot/pkg/flows"
	"github.com/medops-br/triagebot/pkg/llm"
	"github.com/medops-br/triagebot/pkg/matrix"
	"github.com/medops-br/triagebot/pkg/models"
	"github.com/medops-br/triagebot/pkg/services"
	"github.com/medops-br/triagebot/pkg/timeutil"
	"github.com/medops-br/triagebot/test/util"
)

const (
	testRoom1 = "!room1:example.org"
	testRoom2 = "!room2:example.org"
	testRoom3 = "!room3:example.org"
	testRoom4 = "!room4:example.org"
)

type sentMessage struct {
	RoomID string
	Body   string
}

// scriptedChat records sends and redactions and can rate-limit the first
// redactions a fixed number of times.
type scriptedChat struct {
	mu            sync.Mutex
	seq           int
	sent          []sentMessage
	redacted      []string
	rateLimitLeft int
	media         []byte
}

func (c *scriptedChat) SendMessage(_ context.Context, roomID, body, _ string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.sent = append(c.sent, sentMessage{RoomID: roomID, Body: body})
	return fmt.Sprintf("$ev-%d", c.seq), nil
}

func (c *scriptedChat) RedactEvent(_ context.Context, _, eventID, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rateLimitLeft > 0 {
		c.rateLimitLeft--
		return &matrix.APIError{
			StatusCode: 429,
			Body:       `{"errcode":"M_LIMIT_EXCEEDED","retry_after_ms":250}`,
		}
	}
	c.redacted = append(c.redacted, eventID)
	return nil
}

func (c *scriptedChat) DownloadMedia(context.Context, string) ([]byte, error) {
	return c.media, nil
}

func (c *scriptedChat) bodiesFor(roomID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var bodies []string
	for _, m := range c.sent {
		if m.RoomID == roomID {
			bodies = append(bodies, m.Body)
		}
	}
	return bodies
}

// fastClock advances instantly on Sleep so rate-limit pauses cost nothing.
type fastClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fastClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fastClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	return nil
}

type pipelineEnv struct {
	deps        *flows.Deps
	chat        *scriptedChat
	clock       *fastClock
	cases       *services.CaseStore
	messages    *services.MessageStore
	jobs        *services.JobQueue
	audit       *services.AuditStore
	transcripts *services.TranscriptStore
	dispatches  *services.DispatchStore
}

func newPipelineEnv(t *testing.T) *pipelineEnv {
	t.Helper()
	pool := util.SetupTestDatabase(t)

	env := &pipelineEnv{
		chat:        &scriptedChat{media: []byte("%PDF-stub")},
		clock:       &fastClock{now: time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)},
		cases:       services.NewCaseStore(pool),
		messages:    services.NewMessageStore(pool),
		jobs:        services.NewJobQueue(pool),
		audit:       services.NewAuditStore(pool),
		transcripts: services.NewTranscriptStore(pool),
		dispatches:  services.NewDispatchStore(pool),
	}
	prompts := services.NewPromptStore(pool)
	env.deps = &flows.Deps{
		DB:          pool,
		Cases:       env.cases,
		Messages:    env.messages,
		Jobs:        env.jobs,
		Audit:       env.audit,
		Transcripts: env.transcripts,
		Dispatches:  env.dispatches,
		Chat:        env.chat,
		Stage1:      &llm.Stage1{Client: llm.DeterministicClient{}, Prompts: prompts},
		Stage2:      &llm.Stage2{Client: llm.DeterministicClient{}, Prompts: prompts},
		ExtractPdfText: func([]byte) (string, error) {
			return "RELATÓRIO DE OCORRÊNCIAS\nCódigo: 4775652\n" +
				"Paciente relata epigastralgia há 3 meses.\n" +
				"Solicita endoscopia digestiva alta eletiva.", nil
		},
		Clock:         env.clock,
		Rooms:         config.RoomsConfig{Room1ID: testRoom1, Room2ID: testRoom2, Room3ID: testRoom3, Room4ID: testRoom4},
		Summary:       config.SummaryConfig{Timezone: "UTC", Location: time.UTC},
		WidgetBaseURL: "https://triage.example.org",
	}
	return env
}

func (e *pipelineEnv) job(t *testing.T, c *models.Case, jobType string, payload map[string]any) models.Job {
	t.Helper()
	return models.Job{
		JobID:       1,
		CaseID:      &c.CaseID,
		JobType:     jobType,
		Payload:     payload,
		MaxAttempts: models.DefaultMaxAttempts,
	}
}

var _ timeutil.Clock = (*fastClock)(nil)

func TestPipelineHappyPath(t *testing.T) {
	ctx := context.Background()
	env := newPipelineEnv(t)

	c, err := env.cases.Create(ctx, models.CreateCaseRequest{
		Room1OriginRoomID:  testRoom1,
		Room1OriginEventID: "$origin",
		Room1SenderUserID:  "@requester:example.org",
	})
	require.NoError(t, err)

	// Room-1 PDF through extraction and both suggestion stages.
	pdfJob := env.job(t, c, models.JobTypeProcessPdfCase,
		map[string]any{"pdf_mxc_url": "mxc://example.org/report"})
	require.NoError(t, env.deps.ProcessPdfCase(ctx, pdfJob))

	c, err = env.cases.Get(ctx, c.CaseID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusR2PostWidget, c.Status)
	require.NotNil(t, c.AgencyRecordNumber)
	assert.Equal(t, "4775652", *c.AgencyRecordNumber)
	require.NotNil(t, c.ExtractedText)
	assert.NotContains(t, *c.ExtractedText, "4775652", "record number stripped from cleaned text")
	assert.NotNil(t, c.StructuredData)
	assert.NotNil(t, c.SummaryText)
	require.NotNil(t, c.SuggestedAction)
	assert.Equal(t, "accept", *c.SuggestedAction)

	interactions, err := env.transcripts.ListLlmForCase(ctx, c.CaseID)
	require.NoError(t, err)
	require.Len(t, interactions, 2)

	queued, err := env.jobs.HasActiveJob(ctx, c.CaseID, models.JobTypePostRoom2Widget)
	require.NoError(t, err)
	assert.True(t, queued, "widget job enqueued")

	// A replayed pdf job is a no-op: no new interactions, no duplicate jobs.
	require.NoError(t, env.deps.ProcessPdfCase(ctx, pdfJob))
	interactions, err = env.transcripts.ListLlmForCase(ctx, c.CaseID)
	require.NoError(t, err)
	assert.Len(t, interactions, 2)

	// Room-2 widget post.
	require.NoError(t, env.deps.PostRoom2Widget(ctx,
		env.job(t, c, models.JobTypePostRoom2Widget, nil)))

	c, err = env.cases.Get(ctx, c.CaseID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusWaitDoctor, c.Status)

	room2 := env.chat.bodiesFor(testRoom2)
	require.Len(t, room2, 2)
	assert.Contains(t, room2[0], `"agency_record_number": "4775652"`)
	assert.Contains(t, room2[0], `"record_number_fallback": false`)
	assert.Contains(t, room2[0], c.CaseID.String())
	assert.Contains(t, room2[1], "caso: "+c.CaseID.String())

	msgs, err := env.messages.ListForCase(ctx, c.CaseID)
	require.NoError(t, err)
	kinds := make([]string, 0, len(msgs))
	for _, m := range msgs {
		kinds = append(kinds, m.Kind)
	}
	assert.Contains(t, kinds, models.MessageKindBotWidget)
	assert.Contains(t, kinds, models.MessageKindBotAck)

	// Doctor accepts with anesthesist support.
	_, err = env.cases.Transition(ctx, c.CaseID, models.CaseStatusDoctorAccepted)
	require.NoError(t, err)
	require.NoError(t, env.cases.StoreDoctorDecision(ctx, c.CaseID,
		models.DecisionAccept, models.SupportAnesthesist, nil,
		"@doctor:example.org", env.clock.Now()))

	require.NoError(t, env.deps.PostRoom3Request(ctx,
		env.job(t, c, models.JobTypePostRoom3Request, nil)))

	c, err = env.cases.Get(ctx, c.CaseID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusWaitScheduler, c.Status)

	room3 := env.chat.bodiesFor(testRoom3)
	require.Len(t, room3, 2)
	assert.Contains(t, room3[0], "anestesista")
	assert.NotContains(t, room3[0], c.CaseID.String(), "scheduler prose omits the case id")
	assert.Contains(t, room3[1], "caso: "+c.CaseID.String())

	// Scheduler confirms; bot posts the Room-1 final.
	apptAt := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	require.NoError(t, env.cases.StoreAppointmentConfirmed(ctx, c.CaseID,
		apptAt, "Hospital Central, sala 4", "Jejum de 8 horas"))
	_, err = env.cases.Transition(ctx, c.CaseID, models.CaseStatusApptConfirmed)
	require.NoError(t, err)

	require.NoError(t, env.deps.PostRoom1FinalAppt(ctx,
		env.job(t, c, models.JobTypePostRoom1FinalAppt, nil)))

	c, err = env.cases.Get(ctx, c.CaseID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusWaitR1CleanupThumbs, c.Status)

	room1 := env.chat.bodiesFor(testRoom1)
	require.Len(t, room1, 1)
	assert.Contains(t, room1[0], "Agendamento confirmado")
	assert.Contains(t, room1[0], "Hospital Central")
	assert.NotContains(t, room1[0], c.CaseID.String(), "requester prose omits the case id")

	// Thumbs-up starts cleanup; first redactions hit the rate limit twice.
	require.NoError(t, env.cases.MarkCleanupTriggered(ctx, c.CaseID))
	_, err = env.cases.Transition(ctx, c.CaseID, models.CaseStatusCleanupRunning)
	require.NoError(t, err)

	env.chat.rateLimitLeft = 2
	require.NoError(t, env.deps.ExecuteCleanup(ctx,
		env.job(t, c, models.JobTypeExecuteCleanup, nil)))

	c, err = env.cases.Get(ctx, c.CaseID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusCleaned, c.Status)
	assert.NotNil(t, c.CleanupCompletedAt)

	msgs, err = env.messages.ListForCase(ctx, c.CaseID)
	require.NoError(t, err)
	assert.Len(t, env.chat.redacted, len(msgs), "every tracked event redacted")
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond},
		env.clock.sleeps, "rate-limit hints honored")

	audits, err := env.audit.ListForCase(ctx, c.CaseID)
	require.NoError(t, err)
	var completed *models.AuditEvent
	for i := range audits {
		if audits[i].EventType == models.AuditCleanupCompleted {
			completed = &audits[i]
		}
	}
	require.NotNil(t, completed, "cleanup completion audited")
	assert.EqualValues(t, len(msgs), completed.Payload["count_redacted_success"])
	assert.EqualValues(t, 0, completed.Payload["count_redacted_failed"])
}

func TestPostRoom4SummaryDeliversWindowOnce(t *testing.T) {
	ctx := context.Background()
	env := newPipelineEnv(t)

	windowStart := time.Date(2026, 2, 16, 10, 0, 0, 0, time.UTC)
	windowEnd := windowStart.Add(12 * time.Hour)

	claimed, err := env.dispatches.ClaimWindow(ctx, testRoom4, windowStart, windowEnd)
	require.NoError(t, err)
	require.True(t, claimed)

	job := models.Job{
		JobID:   7,
		JobType: models.JobTypePostRoom4Summary,
		Payload: map[string]any{
			"room_id":      testRoom4,
			"window_start": windowStart.Format(time.RFC3339),
			"window_end":   windowEnd.Format(time.RFC3339),
			"timezone":     "America/Bahia",
		},
		MaxAttempts: models.DefaultMaxAttempts,
	}
	require.NoError(t, env.deps.PostRoom4Summary(ctx, job))

	room4 := env.chat.bodiesFor(testRoom4)
	require.Len(t, room4, 1)
	assert.True(t, strings.HasPrefix(room4[0], "Resumo do período"), "summary header present: %q", room4[0])
	assert.Contains(t, room4[0], "America/Bahia")

	dispatch, err := env.dispatches.Get(ctx, testRoom4, windowStart, windowEnd)
	require.NoError(t, err)
	assert.Equal(t, models.DispatchSent, dispatch.Status)

	// A replayed job sees the sent dispatch and skips the post.
	require.NoError(t, env.deps.PostRoom4Summary(ctx, job))
	assert.Len(t, env.chat.bodiesFor(testRoom4), 1)
}
