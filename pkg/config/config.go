// Package config loads runtime settings from the environment. Both
// binaries call Load once at startup, after godotenv has populated the
// process environment from an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMissingEnv indicates a required environment variable is not set.
	ErrMissingEnv = errors.New("missing required environment variable")

	// ErrInvalidEnv indicates an environment variable holds an unusable value.
	ErrInvalidEnv = errors.New("invalid environment variable value")
)

// Settings is the full runtime configuration shared by the server and the
// summary scheduler.
type Settings struct {
	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string

	// HTTPListenAddr is the bind address of the API server.
	HTTPListenAddr string

	// LogLevel is the minimum slog level emitted.
	LogLevel slog.Level

	Rooms     RoomsConfig
	Matrix    MatrixConfig
	Queue     QueueConfig
	Webhook   WebhookConfig
	Summary   SummaryConfig
	Llm       LlmConfig
	Bootstrap BootstrapAdmin
}

// Load reads every setting from the environment, applying defaults and
// validating required values. It returns the first problem it finds.
func Load() (*Settings, error) {
	databaseURL, err := requireEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}

	logLevel, err := parseLogLevel(getEnvOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	rooms, err := loadRoomsConfig()
	if err != nil {
		return nil, err
	}

	matrix, err := loadMatrixConfig()
	if err != nil {
		return nil, err
	}

	queue, err := loadQueueConfig()
	if err != nil {
		return nil, err
	}

	webhook, err := loadWebhookConfig()
	if err != nil {
		return nil, err
	}

	summary, err := loadSummaryConfig()
	if err != nil {
		return nil, err
	}

	llm, err := loadLlmConfig()
	if err != nil {
		return nil, err
	}

	bootstrap, err := loadBootstrapAdmin()
	if err != nil {
		return nil, err
	}

	return &Settings{
		DatabaseURL:    databaseURL,
		HTTPListenAddr: getEnvOrDefault("HTTP_LISTEN_ADDR", ":8080"),
		LogLevel:       logLevel,
		Rooms:          rooms,
		Matrix:         matrix,
		Queue:          queue,
		Webhook:        webhook,
		Summary:        summary,
		Llm:            llm,
		Bootstrap:      bootstrap,
	}, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: LOG_LEVEL=%q", ErrInvalidEnv, raw)
	}
}

func requireEnv(key string) (string, error) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("%w: %s", ErrMissingEnv, key)
}

func getEnvOrDefault(key, defaultVal string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultVal
}

func intEnvOrDefault(key string, defaultVal int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidEnv, key, raw)
	}
	return value, nil
}

func positiveIntEnvOrDefault(key string, defaultVal int) (int, error) {
	value, err := intEnvOrDefault(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if value < 1 {
		return 0, fmt.Errorf("%w: %s must be >= 1", ErrInvalidEnv, key)
	}
	return value, nil
}

func secondsEnvOrDefault(key string, defaultVal time.Duration) (time.Duration, error) {
	seconds, err := positiveIntEnvOrDefault(key, int(defaultVal/time.Second))
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}
