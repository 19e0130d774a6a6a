// internal/agent/orchestrator.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
	"github.com/xkilldash9x/marionette-cli/internal/executor"
	"github.com/xkilldash9x/marionette-cli/internal/perception"
	"github.com/xkilldash9x/marionette-cli/internal/resolver"
)

// uuidNewString is a seam for deterministic run IDs in tests.
var uuidNewString = uuid.NewString

// RunReport is the terminal summary of one task run.
type RunReport struct {
	RunID         string    `json:"runId"`
	Status        RunStatus `json:"status"`
	Steps         int       `json:"steps"`
	RecoveryCount int       `json:"recoveryCount"`
	ArtifactsDir  string    `json:"artifactsDir"`
}

// Orchestrator owns one run: the step counter, the history, the
// termination conditions, and the single browser page every component
// shares. Components execute strictly serially; the watcher goroutine
// is the only concurrent piece and only ever feeds the event queue.
type Orchestrator struct {
	cfg    *config.Config
	logger *zap.Logger
	driver schemas.PageDriver

	extractor *perception.Extractor
	executor  *executor.Executor
	oracle    *Oracle
	planner   *Planner
	refiner   *Refiner
	detector  *Detector
	gate      *AuthGate
	watcher   *Watcher
}

// NewOrchestrator wires the full component graph from one threaded
// configuration value.
func NewOrchestrator(cfg *config.Config, driver schemas.PageDriver, llm schemas.LLMClient, logger *zap.Logger) *Orchestrator {
	res := resolver.NewResolver(cfg, driver, logger)
	return &Orchestrator{
		cfg:       cfg,
		logger:    logger.Named("orchestrator"),
		driver:    driver,
		extractor: perception.NewExtractor(cfg, driver, logger),
		executor:  executor.NewExecutor(cfg, driver, res, logger),
		oracle:    NewOracle(cfg, llm, logger),
		planner:   NewPlanner(cfg, llm, logger),
		refiner:   NewRefiner(logger),
		detector:  NewDetector(cfg.Agent.RecoveryLimit, logger),
		gate:      NewAuthGate(driver, logger),
		watcher:   NewWatcher(driver, cfg.Agent.WatcherInterval, logger),
	}
}

// Run executes the task to termination. Whatever happens, the
// accumulated history is written to the run's artifact directory before
// returning; partial progress is never discarded.
func (o *Orchestrator) Run(ctx context.Context, task string) (*RunReport, error) {
	runID := uuidNewString()
	artifactsDir := filepath.Join(o.cfg.Artifacts.Dir, runID)
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts directory: %w", err)
	}
	logger := o.logger.With(zap.String("run_id", runID))
	logger.Info("Starting run.", zap.String("task", task))

	if o.cfg.Agent.TargetURL != "" {
		if err := o.driver.Navigate(ctx, o.cfg.Agent.TargetURL); err != nil {
			return nil, fmt.Errorf("failed to open target: %w", err)
		}
	}

	state := NewRunState(task, o.cfg.Agent.DefaultSteps)

	report := &RunReport{RunID: runID, Status: StatusFailed, ArtifactsDir: artifactsDir}
	defer func() {
		report.Steps = state.Step
		report.RecoveryCount = o.detector.RecoveryCount(state.History)
		o.writeHistory(artifactsDir, state, report)
	}()

	if !o.gate.IsLoggedIn(ctx) {
		return report, NewAgentError(CodeAuthenticationBlocked,
			"page is not authenticated; run `marionette login` first", nil)
	}

	state.MaxSteps = o.planner.Budget(ctx, task)

	watchCtx, stopWatcher := context.WithCancel(ctx)
	var background errgroup.Group
	background.Go(func() error {
		o.watcher.Run(watchCtx)
		return nil
	})
	defer func() {
		stopWatcher()
		_ = background.Wait()
	}()

	recoveryGuidance := ""
	for state.Step < state.MaxSteps && !state.Complete {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		for _, event := range o.watcher.Drain() {
			o.screenshot(ctx, artifactsDir, fmt.Sprintf("transient_%03d_%s.png", state.Step, event))
		}

		// Stuck evaluation runs against the history as updated by the
		// previous step, before any new perception.
		if o.detector.IsStuck(state.History) {
			o.screenshot(ctx, artifactsDir, fmt.Sprintf("recovery_%03d.png", state.Step))
			if o.detector.Exhausted(state.History) {
				return report, NewAgentError(CodeStuckLoopExhausted,
					fmt.Sprintf("recovery ceiling reached after %d attempts", o.detector.RecoveryCount(state.History)), nil)
			}
			if err := o.detector.Backtrack(state); err != nil {
				return report, err
			}
			recoveryGuidance = "The previous two actions were rolled back because the run stopped making progress. " +
				"Re-examine the page and try a different element or approach."
		}

		snap := o.extractor.Extract(ctx)

		decision, err := o.oracle.Decide(ctx, state, snap, recoveryGuidance)
		if err != nil {
			return report, err
		}
		recoveryGuidance = ""

		refined := o.refiner.Refine(*decision, state.History, task)

		if refined.Action.Type == schemas.ActionTypeComplete {
			if err := state.Append(o.entry(state, refined, decision.StateDescription, decision.IsKeyState)); err != nil {
				return report, err
			}
			state.Complete = true
			break
		}

		description := decision.StateDescription
		if execErr := o.executor.Execute(ctx, refined.Action, snap.ModalOpen); execErr != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			// Per-action failures degrade to a logged skip; the failure
			// text feeds the stuck detector through the description.
			if errors.Is(execErr, executor.ErrNotFound) {
				description += " (target not found)"
			} else if errors.Is(execErr, executor.ErrNotEditable) {
				description += " (element not editable)"
			} else {
				description += " (action failed)"
			}
			logger.Warn("Action failed, continuing loop.",
				zap.String("type", string(refined.Action.Type)),
				zap.String("target", refined.Action.Target),
				zap.Error(execErr))
		}

		if err := state.Append(o.entry(state, refined, description, decision.IsKeyState)); err != nil {
			return report, err
		}

		o.screenshot(ctx, artifactsDir, fmt.Sprintf("step_%03d.png", state.Step-1))
		if decision.IsKeyState {
			o.screenshot(ctx, artifactsDir, fmt.Sprintf("keystate_%03d.png", state.Step-1))
		}
		logger.Info("Step executed.",
			zap.Int("step", state.Step-1),
			zap.String("type", string(refined.Action.Type)),
			zap.String("target", refined.Action.Target),
			zap.Int("progress", refined.Progress))
	}

	if state.Complete {
		report.Status = StatusCompleted
		logger.Info("Run completed.", zap.Int("steps", state.Step))
		return report, nil
	}

	report.Status = StatusPartial
	logger.Warn("Step budget exhausted, ending run as partial.",
		zap.Int("max_steps", state.MaxSteps))
	return report, nil
}

func (o *Orchestrator) entry(state *RunState, refined RefinedDecision, description string, isKeyState bool) HistoryEntry {
	return HistoryEntry{
		Step:               state.Step,
		Action:             refined.Action,
		Description:        description,
		Timestamp:          time.Now(),
		ProgressAssessment: refined.Progress,
		IsKeyState:         isKeyState,
	}
}

// screenshot is diagnostic only; failures are logged and ignored.
func (o *Orchestrator) screenshot(ctx context.Context, dir, name string) {
	if err := o.driver.Screenshot(ctx, filepath.Join(dir, name)); err != nil {
		o.logger.Debug("Diagnostic screenshot failed.",
			zap.String("name", name), zap.Error(err))
	}
}

// writeHistory dumps the run's bookkeeping next to the screenshots. It
// runs on every termination path, fatal ones included.
func (o *Orchestrator) writeHistory(dir string, state *RunState, report *RunReport) {
	dump := struct {
		*RunReport
		Task     string         `json:"task"`
		MaxSteps int            `json:"maxSteps"`
		History  []HistoryEntry `json:"history"`
	}{
		RunReport: report,
		Task:      state.Task,
		MaxSteps:  state.MaxSteps,
		History:   state.History,
	}
	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		o.logger.Error("Failed to encode run history.", zap.Error(err))
		return
	}
	path := filepath.Join(dir, "history.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		o.logger.Error("Failed to write run history.", zap.String("path", path), zap.Error(err))
		return
	}
	o.logger.Info("Run history written.", zap.String("path", path))
}
