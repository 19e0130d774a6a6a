// internal/llmclient/router.go
package llmclient

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
)

// Router implements schemas.LLMClient and routes each request to the
// provider client configured for its tier. All calls share one rate
// limiter so planning and decision traffic together stay under the
// provider quota.
type Router struct {
	logger  *zap.Logger
	clients map[schemas.ModelTier]schemas.LLMClient
	limiter *rate.Limiter
}

var _ schemas.LLMClient = (*Router)(nil)

// NewRouter builds provider clients for the fast and powerful tiers from
// configuration. Tiers may share one client when they resolve to the
// same model entry.
func NewRouter(cfg *config.Config, logger *zap.Logger) (*Router, error) {
	log := logger.Named("llm_router")

	build := func(name string) (schemas.LLMClient, error) {
		mc, ok := cfg.ModelFor(name)
		if !ok {
			// Unconfigured model names fall back to the Gemini provider
			// with the name as the model id; the API key still has to be
			// present for the call to succeed.
			mc = config.LLMModelConfig{Provider: config.ProviderGemini, Model: name}
			if gemini, found := cfg.ModelFor("gemini"); found {
				mc.APIKey = gemini.APIKey
				mc.APITimeout = gemini.APITimeout
			}
		}
		switch mc.Provider {
		case config.ProviderOpenAI:
			return NewOpenAIClient(mc, log)
		case config.ProviderGemini, "":
			return NewGeminiClient(mc, log)
		default:
			return nil, fmt.Errorf("unsupported llm provider: %s", mc.Provider)
		}
	}

	fast, err := build(cfg.Agent.LLM.DefaultFastModel)
	if err != nil {
		return nil, fmt.Errorf("building fast tier client: %w", err)
	}
	powerful, err := build(cfg.Agent.LLM.DefaultPowerfulModel)
	if err != nil {
		fast.Close()
		return nil, fmt.Errorf("building powerful tier client: %w", err)
	}

	rpm := cfg.Agent.LLM.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}

	return &Router{
		logger: log,
		clients: map[schemas.ModelTier]schemas.LLMClient{
			schemas.TierFast:     fast,
			schemas.TierPowerful: powerful,
		},
		limiter: rate.NewLimiter(rate.Limit(rpm/60.0), 1),
	}, nil
}

// Generate selects the client for the request's tier, waits for rate
// limiter headroom, and retries transient provider failures with
// exponential backoff.
func (r *Router) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	tier := req.Tier
	if tier == "" {
		tier = schemas.TierPowerful
	}

	client, ok := r.clients[tier]
	if !ok {
		return "", fmt.Errorf("no LLM client configured for tier: %s", tier)
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}

	r.logger.Debug("Routing LLM request", zap.String("tier", string(tier)))

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var out string
	operation := func() error {
		resp, err := client.Generate(ctx, req)
		if err != nil {
			return err
		}
		out = resp
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return out, nil
}

// Close releases all provider clients. Shared clients are closed once.
func (r *Router) Close() error {
	closed := make(map[schemas.LLMClient]bool)
	var firstErr error
	for _, c := range r.clients {
		if closed[c] {
			continue
		}
		closed[c] = true
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
