// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
)

// GeminiClient implements schemas.LLMClient over the Gemini API via the
// official genai SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
	cfg    config.LLMModelConfig
	logger *zap.Logger
}

var _ schemas.LLMClient = (*GeminiClient)(nil)

// NewGeminiClient initializes the client.
func NewGeminiClient(cfg config.LLMModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini model name is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  cfg.Model,
		cfg:    cfg,
		logger: logger.Named("gemini"),
	}, nil
}

// Generate sends the prompts to the Gemini API and returns the text of
// the first candidate.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	timeout := c.cfg.APITimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	apiCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(float32(req.Options.Temperature)),
	}
	if req.Options.ForceJSONFormat {
		genConfig.ResponseMIMEType = "application/json"
	}
	if max := maxTokens(req, c.cfg); max > 0 {
		genConfig.MaxOutputTokens = int32(max)
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(apiCtx, c.model, genai.Text(req.UserPrompt), genConfig)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		// Empty candidates usually mean a safety block; treat as permanent.
		return "", backoff.Permanent(fmt.Errorf("gemini API returned no usable candidates"))
	}

	c.logger.Info("LLM generation complete (Gemini)",
		zap.String("model", c.model),
		zap.Duration("duration", time.Since(start)),
	)
	return text, nil
}

// Close releases SDK resources. The genai client holds no persistent
// connections, so this is a no-op that exists for interface symmetry.
func (c *GeminiClient) Close() error {
	return nil
}

// maxTokens resolves the per-request token cap from the request or the
// model configuration.
func maxTokens(req schemas.GenerationRequest, cfg config.LLMModelConfig) int {
	if req.Options.MaxTokens > 0 {
		return req.Options.MaxTokens
	}
	return cfg.MaxTokens
}
