//go:build integration

package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/medops-br/triagebot/pkg/models"
	"github.com/medops-br/triagebot/pkg/services"
	"github.com/medops-br/triagebot/test/util"
)

// testStores bundles every store against one isolated test schema.
type testStores struct {
	pool        *pgxpool.Pool
	cases       *services.CaseStore
	messages    *services.MessageStore
	jobs        *services.JobQueue
	audit       *services.AuditStore
	transcripts *services.TranscriptStore
	prompts     *services.PromptStore
	users       *services.UserStore
	auth        *services.AuthStore
	dispatches  *services.DispatchStore
}

func newTestStores(t *testing.T) *testStores {
	t.Helper()
	pool := util.SetupTestDatabase(t)
	return &testStores{
		pool:        pool,
		cases:       services.NewCaseStore(pool),
		messages:    services.NewMessageStore(pool),
		jobs:        services.NewJobQueue(pool),
		audit:       services.NewAuditStore(pool),
		transcripts: services.NewTranscriptStore(pool),
		prompts:     services.NewPromptStore(pool),
		users:       services.NewUserStore(pool),
		auth:        services.NewAuthStore(pool),
		dispatches:  services.NewDispatchStore(pool),
	}
}

// seedCase inserts a fresh NEW case with a unique Room-1 origin.
func seedCase(t *testing.T, ctx context.Context, cases *services.CaseStore) *models.Case {
	t.Helper()
	created, err := cases.Create(ctx, models.CreateCaseRequest{
		Room1OriginRoomID:  "!room1:example.org",
		Room1OriginEventID: "$origin-" + uuid.NewString(),
		Room1SenderUserID:  "@requester:example.org",
	})
	require.NoError(t, err)
	return created
}

// walkCase drives a case through the given statuses in order.
func walkCase(t *testing.T, ctx context.Context, cases *services.CaseStore, caseID uuid.UUID, statuses ...models.CaseStatus) {
	t.Helper()
	for _, status := range statuses {
		_, err := cases.Transition(ctx, caseID, status)
		require.NoError(t, err, "transition to %s", status)
	}
}

func strPtr(s string) *string { return &s }
