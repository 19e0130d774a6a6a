// internal/agent/planner.go
package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
	"github.com/xkilldash9x/marionette-cli/internal/llmutil"
)

const planSystemPrompt = `You estimate how many browser actions a web automation task needs.
Respond ONLY with JSON: {"estimatedSteps": number, "complexity": "low|medium|high", "keyMilestones": ["..."]}`

// Planner consults the planning oracle for a step estimate. Planning is
// strictly advisory: any failure falls back to the configured default
// budget and the run proceeds.
type Planner struct {
	client       schemas.LLMClient
	logger       *zap.Logger
	defaultSteps int
	maxSteps     int
}

// NewPlanner wires the planning oracle consumer.
func NewPlanner(cfg *config.Config, client schemas.LLMClient, logger *zap.Logger) *Planner {
	return &Planner{
		client:       client,
		logger:       logger.Named("planner"),
		defaultSteps: cfg.Agent.DefaultSteps,
		maxSteps:     cfg.Agent.MaxSteps,
	}
}

// Budget derives the run's step ceiling for a task: twice the estimate
// for slack, floored at 10 and capped at the configured hard maximum.
// Any oracle failure yields the default budget.
func (p *Planner) Budget(ctx context.Context, task string) int {
	plan, err := p.plan(ctx, task)
	if err != nil {
		p.logger.Warn("Planning failed, using default step budget.",
			zap.Int("default", p.defaultSteps), zap.Error(err))
		return p.defaultSteps
	}

	budget := plan.EstimatedSteps * 2
	if budget < 10 {
		budget = 10
	}
	if budget > p.maxSteps {
		budget = p.maxSteps
	}
	p.logger.Info("Planned step budget.",
		zap.Int("estimated_steps", plan.EstimatedSteps),
		zap.String("complexity", plan.Complexity),
		zap.Strings("milestones", plan.KeyMilestones),
		zap.Int("budget", budget))
	return budget
}

func (p *Planner) plan(ctx context.Context, task string) (*schemas.PlanResponse, error) {
	raw, err := p.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: planSystemPrompt,
		UserPrompt:   fmt.Sprintf("TASK: %s", task),
		Tier:         schemas.TierFast,
		Options: schemas.GenerationOptions{
			Temperature:     0.0,
			ForceJSONFormat: true,
		},
	})
	if err != nil {
		return nil, err
	}

	plan, err := llmutil.ParseJSONResponse[schemas.PlanResponse](raw)
	if err != nil {
		return nil, err
	}
	if plan.EstimatedSteps <= 0 {
		return nil, fmt.Errorf("plan carried a non-positive step estimate: %d", plan.EstimatedSteps)
	}
	return plan, nil
}
