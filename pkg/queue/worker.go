package queue

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/medops-br/triagebot/pkg/config"
	"github.com/medops-br/triagebot/pkg/metrics"
	"github.com/medops-br/triagebot/pkg/models"
	"github.com/medops-br/triagebot/pkg/timeutil"
)

// Pool runs WorkerCount cooperative poll loops against the job queue.
// Stop is graceful: claimed jobs finish, and anything left running when
// the process dies is reclaimed by the startup orphan reset.
type Pool struct {
	queue     JobQueue
	handlers  map[string]Handler
	finalizer Finalizer
	cfg       config.QueueConfig
	clock     timeutil.Clock
	metrics   *metrics.Metrics
	logger    *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPool creates the worker pool. finalizer and m may be nil (no
// dead-letter case finalization, no instrumentation).
func NewPool(queue JobQueue, handlers map[string]Handler, finalizer Finalizer, cfg config.QueueConfig, clock timeutil.Clock, m *metrics.Metrics) *Pool {
	if queue == nil {
		panic("NewPool: queue must not be nil")
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Pool{
		queue:     queue,
		handlers:  handlers,
		finalizer: finalizer,
		cfg:       cfg,
		clock:     clock,
		metrics:   m,
		logger:    slog.With("component", "queue"),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.logger.Info("Worker pool started", "workers", p.cfg.WorkerCount)
}

// Stop signals every worker to exit after its current batch and waits.
// Safe to call more than once.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With("worker", id)
	log.Info("Worker started")

	for {
		select {
		case <-p.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			return
		default:
		}

		processed, err := p.pollOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("Poll failed", "error", err)
			p.sleep(time.Second)
			continue
		}
		if processed == 0 {
			p.sleep(p.jitteredPollInterval())
		}
	}
}

// pollOnce claims up to ClaimLimit due jobs and processes them serially.
func (p *Pool) pollOnce(ctx context.Context) (int, error) {
	jobs, err := p.queue.ClaimDue(ctx, p.cfg.ClaimLimit)
	if err != nil {
		return 0, fmt.Errorf("claim due jobs: %w", err)
	}
	for _, job := range jobs {
		p.process(ctx, job)
	}
	return len(jobs), nil
}

// process dispatches one claimed job and applies the outcome policy.
func (p *Pool) process(ctx context.Context, job models.Job) {
	log := p.logger.With("job_id", job.JobID, "job_type", job.JobType, "attempt", job.Attempts+1)

	if p.metrics != nil {
		p.metrics.JobsInflight.Inc()
		defer p.metrics.JobsInflight.Dec()
	}

	start := time.Now()
	err := p.dispatch(ctx, job)
	if p.metrics != nil {
		p.metrics.JobDuration.WithLabelValues(job.JobType).Observe(time.Since(start).Seconds())
	}

	if err == nil {
		if markErr := p.queue.MarkDone(ctx, job.JobID); markErr != nil {
			log.Error("Failed to mark job done", "error", markErr)
			return
		}
		p.countOutcome(job.JobType, metrics.OutcomeSuccess)
		log.Info("Job done")
		return
	}

	if job.Attempts+1 < job.MaxAttempts {
		delay, delayErr := timeutil.RetryDelay(job.Attempts + 1)
		if delayErr != nil {
			delay = time.Minute
		}
		if _, retryErr := p.queue.ScheduleRetry(ctx, job.JobID, p.clock.Now().Add(delay), err.Error()); retryErr != nil {
			log.Error("Failed to schedule retry", "error", retryErr)
			return
		}
		p.countOutcome(job.JobType, metrics.OutcomeRetry)
		log.Warn("Job failed, retry scheduled", "delay", delay, "error", err)
		return
	}

	dead, deadErr := p.queue.MarkDead(ctx, job.JobID, err.Error())
	if deadErr != nil {
		log.Error("Failed to dead-letter job", "error", deadErr)
		return
	}
	p.countOutcome(job.JobType, metrics.OutcomeDead)
	log.Error("Job dead-lettered", "attempts", dead.Attempts, "error", err)

	if p.finalizer != nil {
		if finalErr := p.finalizer.FinalizeDeadJob(ctx, *dead); finalErr != nil {
			log.Error("Dead job finalization failed", "error", finalErr)
		}
	}
}

// dispatch runs the handler for the job type. A handler panic is turned
// into an ordinary error so the job follows the retry/dead-letter path
// instead of taking the worker down with it.
func (p *Pool) dispatch(ctx context.Context, job models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	handler, ok := p.handlers[job.JobType]
	if !ok {
		return fmt.Errorf("Unknown job type: %s", job.JobType)
	}
	return handler(ctx, job)
}

func (p *Pool) countOutcome(jobType, outcome string) {
	if p.metrics != nil {
		p.metrics.JobsProcessed.WithLabelValues(jobType, outcome).Inc()
	}
}

// jitteredPollInterval spreads replicas so they do not poll in lockstep.
func (p *Pool) jitteredPollInterval() time.Duration {
	base := p.cfg.PollInterval
	jitter := time.Duration(rand.Int64N(int64(base / 4)))
	return base + jitter
}

func (p *Pool) sleep(d time.Duration) {
	select {
	case <-p.stopCh:
	case <-time.After(d):
	}
}
