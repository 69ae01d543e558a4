package config

import "time"

// QueueConfig contains job queue and worker pool configuration.
// These values control how due jobs are polled, claimed, and processed.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per process.
	// Each worker independently claims and processes jobs.
	WorkerCount int

	// ClaimLimit is the maximum number of due jobs a single poll claims.
	ClaimLimit int

	// PollInterval is the base interval for checking due jobs. A small
	// random jitter is added so replicas do not poll in lockstep.
	PollInterval time.Duration

	// GracefulShutdownTimeout is the max time to wait for in-flight jobs
	// to complete during shutdown.
	GracefulShutdownTimeout time.Duration
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		WorkerCount:             2,
		ClaimLimit:              5,
		PollInterval:            1 * time.Second,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}

func loadQueueConfig() (QueueConfig, error) {
	cfg := DefaultQueueConfig()
	var err error

	if cfg.WorkerCount, err = positiveIntEnvOrDefault("WORKER_COUNT", cfg.WorkerCount); err != nil {
		return QueueConfig{}, err
	}
	if cfg.ClaimLimit, err = positiveIntEnvOrDefault("WORKER_CLAIM_LIMIT", cfg.ClaimLimit); err != nil {
		return QueueConfig{}, err
	}
	if cfg.PollInterval, err = secondsEnvOrDefault("WORKER_POLL_INTERVAL_SECONDS", cfg.PollInterval); err != nil {
		return QueueConfig{}, err
	}
	return cfg, nil
}
