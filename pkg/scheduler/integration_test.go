//go:build integration

package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medops-br/triagebot/pkg/config"
	"github.com/medops-br/triagebot/pkg/models"
	"github.com/medops-br/triagebot/pkg/scheduler"
	"github.com/medops-br/triagebot/pkg/services"
	"github.com/medops-br/triagebot/test/util"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func (c fixedClock) Sleep(context.Context, time.Duration) error { return nil }

func TestRunOnceClaimsWindowExactlyOnce(t *testing.T) {
	ctx := context.Background()
	pool := util.SetupTestDatabase(t)
	dispatches := services.NewDispatchStore(pool)
	jobs := services.NewJobQueue(pool)

	loc, err := time.LoadLocation("America/Bahia")
	require.NoError(t, err)
	cfg := config.SummaryConfig{
		Timezone:    "America/Bahia",
		Location:    loc,
		MorningHour: 7,
		EveningHour: 19,
	}
	clock := fixedClock{now: time.Date(2026, 2, 16, 22, 0, 0, 0, time.UTC)}
	sched := scheduler.New(dispatches, jobs, "!room4:example.org", cfg, clock)

	claimed, window, err := sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, time.Date(2026, 2, 16, 10, 0, 0, 0, time.UTC), window.StartUTC)
	assert.Equal(t, time.Date(2026, 2, 16, 22, 0, 0, 0, time.UTC), window.EndUTC)

	// The cron firing again for the same slot loses the claim and
	// enqueues nothing.
	claimed, _, err = sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, claimed)

	batch, err := jobs.ClaimDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	job := batch[0]
	assert.Equal(t, models.JobTypePostRoom4Summary, job.JobType)
	assert.Nil(t, job.CaseID)
	assert.Equal(t, "!room4:example.org", job.Payload["room_id"])
	assert.Equal(t, "2026-02-16T10:00:00Z", job.Payload["window_start"])
	assert.Equal(t, "2026-02-16T22:00:00Z", job.Payload["window_end"])
	assert.Equal(t, "America/Bahia", job.Payload["timezone"])

	dispatch, err := dispatches.Get(ctx, "!room4:example.org", window.StartUTC, window.EndUTC)
	require.NoError(t, err)
	assert.Equal(t, models.DispatchPending, dispatch.Status)
}

func TestRunOnceReclaimsFailedWindow(t *testing.T) {
	ctx := context.Background()
	pool := util.SetupTestDatabase(t)
	dispatches := services.NewDispatchStore(pool)
	jobs := services.NewJobQueue(pool)

	loc, err := time.LoadLocation("America/Bahia")
	require.NoError(t, err)
	cfg := config.SummaryConfig{Timezone: "America/Bahia", Location: loc, MorningHour: 7, EveningHour: 19}
	clock := fixedClock{now: time.Date(2026, 2, 16, 22, 0, 0, 0, time.UTC)}
	sched := scheduler.New(dispatches, jobs, "!room4:example.org", cfg, clock)

	claimed, window, err := sched.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, claimed)

	// Delivery failed for good; the next cron run may reclaim the slot.
	marked, err := dispatches.MarkFailed(ctx, "!room4:example.org",
		window.StartUTC, window.EndUTC, "matrix unreachable")
	require.NoError(t, err)
	require.True(t, marked)

	claimed, _, err = sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, claimed, "failed windows are reclaimable")
}
