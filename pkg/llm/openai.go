package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the provider-backed completion client.
type OpenAIConfig struct {
	APIKey string

	// BaseURL overrides the provider endpoint for OpenAI-compatible
	// gateways. Empty keeps the library default.
	BaseURL string

	// ModelLlm1 and ModelLlm2 select the chat model per pipeline stage.
	ModelLlm1 string
	ModelLlm2 string

	Temperature float32

	// Timeout bounds a single completion call.
	Timeout time.Duration

	// StrictSchema switches the response format from json_object to the
	// stage's strict json_schema document.
	StrictSchema bool
}

// OpenAIClient calls an OpenAI-compatible chat completions API.
type OpenAIClient struct {
	api *openai.Client
	cfg OpenAIConfig
}

// NewOpenAIClient builds the provider client from settings.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{api: openai.NewClientWithConfig(clientCfg), cfg: cfg}
}

func (c *OpenAIClient) Complete(ctx context.Context, in CompletionInput) (CompletionResult, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model:       c.modelFor(in.Stage),
		Temperature: c.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: in.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: in.UserPrompt},
		},
		ResponseFormat: c.responseFormat(in.Stage),
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return CompletionResult{}, errors.New("chat completion returned no choices")
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return CompletionResult{Content: resp.Choices[0].Message.Content, Model: model}, nil
}

func (c *OpenAIClient) modelFor(stage Stage) string {
	if stage == StageLlm2 {
		return c.cfg.ModelLlm2
	}
	return c.cfg.ModelLlm1
}

func (c *OpenAIClient) responseFormat(stage Stage) *openai.ChatCompletionResponseFormat {
	if !c.cfg.StrictSchema {
		return &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   fmt.Sprintf("%s_response_v1_1", stage),
			Schema: json.RawMessage(ResponseSchemaJSON(stage)),
			Strict: true,
		},
	}
}
