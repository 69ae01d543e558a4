// Triagebot daemon — ingests Matrix events, runs the triage pipeline
// through the durable job queue, and serves the HTTP API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/medops-br/triagebot/pkg/api"
	"github.com/medops-br/triagebot/pkg/config"
	"github.com/medops-br/triagebot/pkg/database"
	"github.com/medops-br/triagebot/pkg/flows"
	"github.com/medops-br/triagebot/pkg/llm"
	"github.com/medops-br/triagebot/pkg/matrix"
	"github.com/medops-br/triagebot/pkg/metrics"
	"github.com/medops-br/triagebot/pkg/queue"
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
	slog.Info("Starting triagebot", "version", version.Full(), "addr", cfg.HTTPListenAddr)

	ctx := context.Background()

	// 1. Database: pool + embedded migrations.
	dbClient, err := database.NewClient(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	pool := dbClient.Pool()
	slog.Info("Connected to PostgreSQL database")

	// 2. Stores.
	cases := services.NewCaseStore(pool)
	messages := services.NewMessageStore(pool)
	jobs := services.NewJobQueue(pool)
	audit := services.NewAuditStore(pool)
	transcripts := services.NewTranscriptStore(pool)
	prompts := services.NewPromptStore(pool)
	dispatches := services.NewDispatchStore(pool)
	users := services.NewUserStore(pool)
	tokens := services.NewAuthStore(pool)

	// 3. Metrics.
	m := metrics.New()
	m.RegisterQueueDepth(jobs)

	// 4. Matrix client.
	chat := matrix.NewClient(cfg.Matrix)
	chat.Observe = m.ObserveMatrix
	if userID, err := chat.Whoami(ctx); err != nil {
		slog.Warn("Matrix whoami failed, continuing", "error", err)
	} else {
		slog.Info("Matrix session verified", "user_id", userID)
	}

	// 5. LLM pipeline stages.
	var completions llm.Client
	switch cfg.Llm.Mode {
	case config.LlmModeProvider:
		completions = llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:      cfg.Llm.APIKey,
			BaseURL:     cfg.Llm.BaseURL,
			ModelLlm1:   cfg.Llm.ModelLlm1,
			ModelLlm2:   cfg.Llm.ModelLlm2,
			Temperature: cfg.Llm.Temperature,
			Timeout:     cfg.Llm.Timeout,
		})
	default:
		completions = llm.DeterministicClient{}
	}
	completions = m.WrapLLM(completions)
	stage1 := &llm.Stage1{Client: completions, Prompts: prompts}
	stage2 := &llm.Stage2{Client: completions, Prompts: prompts}
	slog.Info("LLM client initialized", "mode", string(cfg.Llm.Mode))

	// 6. Use-case services.
	authService := services.NewAuthService(users, tokens, nil)
	if err := authService.BootstrapAdmin(ctx, cfg.Bootstrap); err != nil {
		slog.Error("Failed to bootstrap admin account", "error", err)
		os.Exit(1)
	}

	intake := services.NewIntakeService(pool, cases, messages, transcripts, jobs, audit)
	decisions := services.NewDecisionService(pool, cases, jobs, audit, nil)
	chatflow := services.NewChatFlowService(pool, cases, messages, transcripts, jobs, audit, intake, decisions, chat)
	monitoring := services.NewMonitoringService(cases, audit, transcripts)
	admin := services.NewAdminService(users, tokens, prompts, jobs)

	// 7. Job handlers over the shared stores.
	deps := &flows.Deps{
		DB:            pool,
		Cases:         cases,
		Messages:      messages,
		Jobs:          jobs,
		Audit:         audit,
		Transcripts:   transcripts,
		Dispatches:    dispatches,
		Chat:          chat,
		Stage1:        stage1,
		Stage2:        stage2,
		Rooms:         cfg.Rooms,
		Summary:       cfg.Summary,
		WidgetBaseURL: cfg.Webhook.WidgetPublicURL,
	}
	finalizer := queue.NewCaseFailureFinalizer(pool, cases, jobs, audit)
	workers := queue.NewPool(jobs, deps.Handlers(), finalizer, cfg.Queue, nil, m)

	// 8. Startup recovery before any worker claims a job.
	recovery := services.NewRecoveryService(cases, jobs, audit)
	scanned, enqueued, err := recovery.Run(ctx)
	if err != nil {
		slog.Error("Startup recovery failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Startup recovery complete", "scanned", scanned, "enqueued", enqueued)

	// 9. Workers, then the Matrix ingestor, then HTTP.
	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()
	workers.Start(workerCtx)

	ingestor := matrix.NewIngestor(chat, chatflow, cfg.Rooms, cfg.Matrix)
	ingestor.Start(workerCtx)

	server := api.NewServer(api.Deps{
		Decisions:  decisions,
		Monitoring: monitoring,
		Auth:       authService,
		Admin:      admin,
		Widget:     cases,
		DB:         pool,
		Gatherer:   m.Registry,
		HmacSecret: cfg.Webhook.HmacSecret,
		ListenAddr: cfg.HTTPListenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	slog.Info("Triagebot started", "workers", cfg.Queue.WorkerCount)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("HTTP server error triggered shutdown", "error", err)
	}

	// Graceful shutdown: stop intake first, then drain workers, then HTTP.
	ingestor.Stop()
	workerCancel()

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		workers.Stop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-shutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded — running jobs will be orphan-recovered on restart")
	}

	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
