// Package scheduler computes the twice-daily supervisor summary window
// and claims it, enqueuing the Room-4 summary job on a won claim. It runs
// as a one-shot binary driven by cron; the dispatch table makes reruns of
// the same slot harmless.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/medops-br/triagebot/pkg/config"
	"github.com/medops-br/triagebot/pkg/models"
	"github.com/medops-br/triagebot/pkg/services"
	"github.com/medops-br/triagebot/pkg/timeutil"
)

// windowSpan is how far back each summary window reaches from its slot.
const windowSpan = 12 * time.Hour

// Window is one summary delivery slot, bounded by the most recent slot
// hour not after now.
type Window struct {
	StartLocal time.Time
	EndLocal   time.Time
	StartUTC   time.Time
	EndUTC     time.Time
}

// PreviousWindow returns the latest summary window whose end slot has
// already passed in the configured location.
func PreviousWindow(now time.Time, cfg config.SummaryConfig) Window {
	local := now.In(cfg.Location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, cfg.Location)

	var end time.Time
	for _, dayStart := range []time.Time{day.AddDate(0, 0, -1), day} {
		for _, hour := range []int{cfg.MorningHour, cfg.EveningHour} {
			candidate := dayStart.Add(time.Duration(hour) * time.Hour)
			if !candidate.After(local) && candidate.After(end) {
				end = candidate
			}
		}
	}

	start := end.Add(-windowSpan)
	return Window{
		StartLocal: start,
		EndLocal:   end,
		StartUTC:   start.UTC(),
		EndUTC:     end.UTC(),
	}
}

// Scheduler claims summary windows and queues their delivery.
type Scheduler struct {
	dispatches *services.DispatchStore
	jobs       *services.JobQueue
	roomID     string
	cfg        config.SummaryConfig
	clock      timeutil.Clock
	logger     *slog.Logger
}

// New creates the summary scheduler for one supervisor room.
func New(dispatches *services.DispatchStore, jobs *services.JobQueue, roomID string, cfg config.SummaryConfig, clock timeutil.Clock) *Scheduler {
	if dispatches == nil || jobs == nil {
		panic("scheduler.New: all dependencies must be non-nil")
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Scheduler{
		dispatches: dispatches,
		jobs:       jobs,
		roomID:     roomID,
		cfg:        cfg,
		clock:      clock,
		logger:     slog.With("component", "scheduler"),
	}
}

// RunOnce computes the current window, claims it and enqueues the summary
// job. A lost claim means the window was already handled; claimed reports
// which side of that race this run was on.
func (s *Scheduler) RunOnce(ctx context.Context) (claimed bool, window Window, err error) {
	window = PreviousWindow(s.clock.Now(), s.cfg)

	claimed, err = s.dispatches.ClaimWindow(ctx, s.roomID, window.StartUTC, window.EndUTC)
	if err != nil {
		return false, window, fmt.Errorf("claim summary window: %w", err)
	}
	if !claimed {
		s.logger.InfoContext(ctx, "Summary window already claimed",
			"room_id", s.roomID, "window_end", window.EndUTC)
		return false, window, nil
	}

	if _, err = s.jobs.Enqueue(ctx, models.EnqueueJobRequest{
		JobType: models.JobTypePostRoom4Summary,
		Payload: map[string]any{
			"room_id":      s.roomID,
			"window_start": window.StartUTC.Format(time.RFC3339),
			"window_end":   window.EndUTC.Format(time.RFC3339),
			"timezone":     s.cfg.Timezone,
		},
	}); err != nil {
		return true, window, fmt.Errorf("enqueue summary job: %w", err)
	}

	s.logger.InfoContext(ctx, "Summary window claimed",
		"room_id", s.roomID,
		"window_start", window.StartUTC, "window_end", window.EndUTC)
	return true, window, nil
}
