// internal/agent/oracle.go
package agent

import (
	"context"
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
	"github.com/xkilldash9x/marionette-cli/internal/llmutil"
)

const decisionSystemPrompt = `You are a web automation agent driving a browser to accomplish a task.
You observe the page through a structured snapshot and decide exactly one next action.

Respond ONLY with a JSON object of this shape:
{
  "stateDescription": "one sentence describing what the page shows now",
  "nextAction": {
    "type": "click | type | wait | navigate | complete | scroll",
    "target": "short natural-language description of the element (NOT a CSS selector)",
    "value": "text to type, or URL for navigate (omit otherwise)",
    "reasoning": "why this action moves the task forward"
  },
  "isKeyState": false,
  "progressAssessment": 0
}

Rules:
- "target" is a descriptor like "New issue button", "Issue title", "Status badge of DEE-9". Never a selector.
- Use "complete" only when the page visibly confirms the whole task is done.
- "progressAssessment" is your estimate of task completion, 0 to 100.
- Set "isKeyState" true only for milestone states worth a diagnostic screenshot.`

// Decision is the validated, clamped outcome of one oracle call.
type Decision struct {
	Action           schemas.ActionDecision
	StateDescription string
	IsKeyState       bool
	// Progress is the single clamped progressAssessment; every
	// downstream consumer (refiner, stuck detector, history) reads this
	// value, so the [0,100] clamp applies exactly once, at ingestion.
	Progress int
}

// Oracle consumes the external decision service over the LLM client.
type Oracle struct {
	client        schemas.LLMClient
	logger        *zap.Logger
	historyWindow int
}

// NewOracle wires the decision oracle consumer.
func NewOracle(cfg *config.Config, client schemas.LLMClient, logger *zap.Logger) *Oracle {
	return &Oracle{
		client:        client,
		logger:        logger.Named("oracle"),
		historyWindow: cfg.Agent.HistoryWindow,
	}
}

// Decide asks the oracle for the next action given the current
// perception snapshot and recent history. recoveryGuidance, when
// non-empty, tells the oracle the previous approach failed and why.
func (o *Oracle) Decide(ctx context.Context, state *RunState, snap schemas.Snapshot, recoveryGuidance string) (*Decision, error) {
	prompt, err := o.buildPrompt(state, snap, recoveryGuidance)
	if err != nil {
		return nil, NewAgentError(CodeOracleProtocolError, "failed to build decision prompt", err)
	}

	raw, err := o.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: decisionSystemPrompt,
		UserPrompt:   prompt,
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			Temperature:     0.2,
			ForceJSONFormat: true,
		},
	})
	if err != nil {
		return nil, NewAgentError(CodeOracleProtocolError, "decision oracle call failed", err)
	}

	resp, err := llmutil.ParseJSONResponse[schemas.DecisionResponse](raw)
	if err != nil {
		return nil, NewAgentError(CodeOracleProtocolError,
			fmt.Sprintf("unparseable oracle response: %s", llmutil.Truncate(raw, 200)), err)
	}
	return o.validate(resp)
}

// validate enforces the oracle protocol: nextAction with type and (for
// actions that need one) target are required; progressAssessment is
// clamped into [0,100] with out-of-range coerced to 0; a missing
// isKeyState is simply Go's zero value false.
func (o *Oracle) validate(resp *schemas.DecisionResponse) (*Decision, error) {
	if resp.NextAction == nil {
		return nil, NewAgentError(CodeOracleProtocolError, "oracle response missing nextAction", nil)
	}
	actionType := schemas.ActionType(strings.ToLower(strings.TrimSpace(resp.NextAction.Type)))
	if actionType == "" {
		return nil, NewAgentError(CodeOracleProtocolError, "oracle decision missing action type", nil)
	}
	if !schemas.ValidActionType(actionType) {
		return nil, NewAgentError(CodeOracleProtocolError,
			fmt.Sprintf("oracle decision has unknown action type %q", resp.NextAction.Type), nil)
	}
	target := strings.TrimSpace(resp.NextAction.Target)
	if target == "" && (actionType.RequiresTarget() || actionType == schemas.ActionTypeScroll) {
		return nil, NewAgentError(CodeOracleProtocolError,
			fmt.Sprintf("oracle decision %q missing target", actionType), nil)
	}

	progress := resp.ProgressAssessment
	if progress < 0 || progress > 100 {
		o.logger.Warn("Oracle progressAssessment out of range, coercing to 0.",
			zap.Int("reported", progress))
		progress = 0
	}

	return &Decision{
		Action: schemas.ActionDecision{
			Type:      actionType,
			Target:    target,
			Value:     resp.NextAction.Value,
			Reasoning: resp.NextAction.Reasoning,
		},
		StateDescription: resp.StateDescription,
		IsKeyState:       resp.IsKeyState,
		Progress:         progress,
	}, nil
}

func (o *Oracle) buildPrompt(state *RunState, snap schemas.Snapshot, recoveryGuidance string) (string, error) {
	snapJSON, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", err
	}
	historyJSON, err := json.Marshal(state.Compact(o.historyWindow))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "OBJECTIVE: %s\n\n", state.Task)
	fmt.Fprintf(&b, "STEP: %d of at most %d\n\n", state.Step, state.MaxSteps)
	fmt.Fprintf(&b, "CURRENT URL: %s\n\n", snap.URL)
	fmt.Fprintf(&b, "RECENT ACTIONS:\n%s\n\n", string(historyJSON))
	if recoveryGuidance != "" {
		fmt.Fprintf(&b, "RECOVERY GUIDANCE: %s\n\n", recoveryGuidance)
	}
	fmt.Fprintf(&b, "PAGE SNAPSHOT:\n%s\n", string(snapJSON))
	return b.String(), nil
}
