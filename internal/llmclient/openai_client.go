// internal/llmclient/openai_client.go
package llmclient

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
)

// OpenAIClient implements schemas.LLMClient for OpenAI-compatible chat
// completion endpoints, including local servers that speak the same
// protocol (set Endpoint to the base URL).
type OpenAIClient struct {
	client *openai.Client
	cfg    config.LLMModelConfig
	logger *zap.Logger
}

var _ schemas.LLMClient = (*OpenAIClient)(nil)

// NewOpenAIClient initializes the client.
func NewOpenAIClient(cfg config.LLMModelConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" && cfg.Endpoint == "" {
		return nil, fmt.Errorf("openai API key is required (or a custom endpoint for local servers)")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai model name is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger.Named("openai"),
	}, nil
}

// Generate sends the prompts as a system+user chat completion.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	timeout := c.cfg.APITimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	apiCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	chatReq := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: float32(req.Options.Temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
	}
	if req.Options.ForceJSONFormat {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	if max := maxTokens(req, c.cfg); max > 0 {
		chatReq.MaxTokens = max
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(apiCtx, chatReq)
	if err != nil {
		return "", fmt.Errorf("openai generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", backoff.Permanent(fmt.Errorf("openai API returned no choices"))
	}

	c.logger.Info("LLM generation complete (OpenAI)",
		zap.String("model", c.cfg.Model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

// Close releases client resources.
func (c *OpenAIClient) Close() error {
	return nil
}
