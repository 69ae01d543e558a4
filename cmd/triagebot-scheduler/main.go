// Triagebot summary scheduler — a one-shot binary run by cron at the two
// daily summary slots. It claims the elapsed window and enqueues the
// Room-4 summary job for the daemon's worker pool.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/medops-br/triagebot/pkg/config"
	"github.com/medops-br/triagebot/pkg/database"
	"github.com/medops-br/triagebot/pkg/scheduler"
	"github.com/medops-br/triagebot/pkg/services"
	"github.com/medops-br/triagebot/pkg/version"
)

func main() {
	envFile := flag.String("env-file", ".env", "Path to an optional .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envFile, "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	slog.Info("Starting summary scheduler", "version", version.Full(), "timezone", cfg.Summary.Timezone)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dbClient, err := database.NewClient(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	pool := dbClient.Pool()
	dispatches := services.NewDispatchStore(pool)
	jobs := services.NewJobQueue(pool)

	sched := scheduler.New(dispatches, jobs, cfg.Rooms.Room4ID, cfg.Summary, nil)
	claimed, window, err := sched.RunOnce(ctx)
	if err != nil {
		slog.Error("Summary scheduler run failed", "error", err)
		os.Exit(1)
	}
	if !claimed {
		slog.Info("Window already claimed, nothing to do",
			"window_start", window.StartUTC, "window_end", window.EndUTC)
		return
	}
	slog.Info("Summary job enqueued",
		"window_start", window.StartUTC, "window_end", window.EndUTC)
}
