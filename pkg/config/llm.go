package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LlmRuntimeMode selects which completion client backs the pipeline.
type LlmRuntimeMode string

const (
	// LlmModeDeterministic serves canned schema-valid payloads. Used for
	// local runs and tests without provider credentials.
	LlmModeDeterministic LlmRuntimeMode = "deterministic"

	// LlmModeProvider calls the configured OpenAI-compatible API.
	LlmModeProvider LlmRuntimeMode = "provider"
)

// LlmConfig selects the runtime mode and carries provider settings.
type LlmConfig struct {
	Mode LlmRuntimeMode

	// APIKey authenticates provider calls. Required in provider mode.
	APIKey string

	// BaseURL overrides the provider endpoint, for OpenAI-compatible
	// gateways. Empty means the provider default.
	BaseURL string

	// ModelLlm1 and ModelLlm2 name the model per pipeline stage.
	ModelLlm1 string
	ModelLlm2 string

	// Temperature for both stages. The pipeline output is schema-bound,
	// so this defaults to 0.
	Temperature float32

	// Timeout bounds a single completion call.
	Timeout time.Duration
}

func loadLlmConfig() (LlmConfig, error) {
	mode := LlmRuntimeMode(getEnvOrDefault("LLM_RUNTIME_MODE", string(LlmModeDeterministic)))
	switch mode {
	case LlmModeDeterministic, LlmModeProvider:
	default:
		return LlmConfig{}, fmt.Errorf("%w: LLM_RUNTIME_MODE=%q", ErrInvalidEnv, mode)
	}

	cfg := LlmConfig{
		Mode:      mode,
		APIKey:    strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL:   strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		ModelLlm1: getEnvOrDefault("OPENAI_MODEL_LLM1", "gpt-4o-mini"),
		ModelLlm2: getEnvOrDefault("OPENAI_MODEL_LLM2", "gpt-4o-mini"),
	}
	if mode == LlmModeProvider && cfg.APIKey == "" {
		return LlmConfig{}, fmt.Errorf("%w: OPENAI_API_KEY (required when LLM_RUNTIME_MODE=provider)", ErrMissingEnv)
	}

	if raw := strings.TrimSpace(os.Getenv("OPENAI_TEMPERATURE")); raw != "" {
		temperature, err := strconv.ParseFloat(raw, 32)
		if err != nil || temperature < 0 {
			return LlmConfig{}, fmt.Errorf("%w: OPENAI_TEMPERATURE=%q", ErrInvalidEnv, raw)
		}
		cfg.Temperature = float32(temperature)
	}

	timeout, err := secondsEnvOrDefault("OPENAI_TIMEOUT_SECONDS", 60*time.Second)
	if err != nil {
		return LlmConfig{}, err
	}
	cfg.Timeout = timeout

	return cfg, nil
}
