//go:build integration

package database_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medops-br/triagebot/pkg/database"
	"github.com/medops-br/triagebot/test/util"
)

func TestNewClientRunsMigrations(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()

	tables := []string{
		"cases", "case_messages", "jobs", "case_events",
		"prompt_templates", "users", "auth_tokens", "auth_events",
		"case_report_transcripts", "case_llm_interactions",
		"case_matrix_message_transcripts", "supervisor_summary_dispatches",
	}
	for _, table := range tables {
		var exists bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = current_schema() AND table_name = $1
			)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "table %s should exist after migration", table)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()

	// A second client on the same schema sees already-applied migrations.
	client, err := database.NewClient(ctx, pool.Config().ConnString())
	require.NoError(t, err)
	client.Close()
}

func TestMigrationsSeedActivePrompts(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()

	rows, err := pool.Query(ctx,
		`SELECT name, version FROM prompt_templates WHERE is_active ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()

	active := map[string]int{}
	for rows.Next() {
		var name string
		var version int
		require.NoError(t, rows.Scan(&name, &version))
		active[name] = version
	}
	require.NoError(t, rows.Err())

	assert.Equal(t, map[string]int{
		"llm1_system": 1,
		"llm1_user":   1,
		"llm2_system": 1,
		"llm2_user":   1,
	}, active)
}

func TestCaseStatusCheckConstraint(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx,
		`INSERT INTO cases (case_id, status, room1_origin_room_id, room1_origin_event_id, room1_sender_user_id)
		 VALUES ($1, 'BOGUS', '!intake:example.org', '$origin-bogus', '@human:example.org')`,
		uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ck_cases_status")
}

func TestTranscriptTablesAreAppendOnly(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()

	caseID := uuid.New()
	_, err := pool.Exec(ctx,
		`INSERT INTO cases (case_id, room1_origin_room_id, room1_origin_event_id, room1_sender_user_id)
		 VALUES ($1, '!intake:example.org', '$origin-1', '@human:example.org')`,
		caseID)
	require.NoError(t, err)

	_, err = pool.Exec(ctx,
		`INSERT INTO case_report_transcripts (case_id, content) VALUES ($1, 'laudo original')`,
		caseID)
	require.NoError(t, err)

	_, err = pool.Exec(ctx,
		`UPDATE case_report_transcripts SET content = 'tampered' WHERE case_id = $1`,
		caseID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	_, err = pool.Exec(ctx,
		`DELETE FROM case_report_transcripts WHERE case_id = $1`, caseID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")
}

func TestHealthReportsPoolState(t *testing.T) {
	pool := util.SetupTestDatabase(t)

	health, err := database.Health(context.Background(), pool)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.GreaterOrEqual(t, health.ResponseTime, int64(0))
	assert.Greater(t, health.MaxConns, int32(0))
}
