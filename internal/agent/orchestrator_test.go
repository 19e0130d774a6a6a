//go:build !integration

// internal/agent/orchestrator_test.go
package agent_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/agent"
	"github.com/xkilldash9x/marionette-cli/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Artifacts.Dir = t.TempDir()
	cfg.Agent.ActionRetries = 0
	cfg.Agent.RetryBackoff = time.Millisecond
	cfg.Agent.WatcherInterval = 10 * time.Millisecond
	return cfg
}

// everythingVisible lets every resolver probe succeed while keeping the
// auth gate's login buttons hidden.
func everythingVisible() func(sel schemas.Selector) bool {
	return visibleWorkspace(func(schemas.Selector) bool { return true })
}

// describeForForms reports inputs for input-flavored selectors so the
// executor picks the native fill path.
func describeForForms(sel schemas.Selector) schemas.ElementInfo {
	if strings.Contains(sel.Expr, "input") || strings.Contains(sel.Expr, "textarea") {
		return schemas.ElementInfo{Tag: "input", Value: ""}
	}
	return schemas.ElementInfo{Tag: "button"}
}

func TestRun_CreateIssueScenario(t *testing.T) {
	driver := newFakeDriver()
	driver.visible = everythingVisible()
	driver.describe = describeForForms

	llm := &scriptedLLM{
		planJSON: `{"estimatedSteps": 3, "complexity": "low", "keyMilestones": ["open composer", "type title"]}`,
		decisions: []string{
			decisionJSON("click", "New issue button", "", 25, false, "open the composer"),
			decisionJSON("type", "Issue title", "X", 60, true, "fill the title"),
			decisionJSON("complete", "none", "", 100, false, "issue created"),
		},
	}

	cfg := testConfig(t)
	orch := agent.NewOrchestrator(cfg, driver, llm, zap.NewNop())

	report, err := orch.Run(context.Background(), "Create a new issue titled X")
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, report.Status)
	assert.Equal(t, 3, report.Steps, "final history length is 3")
	assert.Equal(t, 0, report.RecoveryCount)

	assert.NotEmpty(t, driver.clicks, "the composer button was clicked")
	assert.Contains(t, driver.fills, "X", "the title text was entered")
	assert.Contains(t, driver.keys, "ctrl+Enter", "the title field auto-submitted")

	data, err := os.ReadFile(filepath.Join(report.ArtifactsDir, "history.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"complete"`)
	assert.Contains(t, string(data), "Create a new issue titled X")
}

func TestRun_CompoundAssignTaskRewritesPrematureComplete(t *testing.T) {
	driver := newFakeDriver()
	driver.visible = everythingVisible()
	driver.describe = describeForForms

	llm := &scriptedLLM{
		planJSON: `{"estimatedSteps": 4, "complexity": "medium", "keyMilestones": []}`,
		decisions: []string{
			decisionJSON("click", "New issue button", "", 20, false, "open composer"),
			decisionJSON("type", "Issue title", "Ticket", 60, false, "fill title"),
			// The oracle tries to finish half way; the refiner must
			// steer it to the assignee first.
			decisionJSON("complete", "none", "", 90, false, "looks done"),
		},
	}

	cfg := testConfig(t)
	orch := agent.NewOrchestrator(cfg, driver, llm, zap.NewNop())

	report, err := orch.Run(context.Background(), "create a ticket and assign it to yourself")
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, report.Status)

	data, err := os.ReadFile(filepath.Join(report.ArtifactsDir, "history.json"))
	require.NoError(t, err)
	history := string(data)
	assignIdx := strings.Index(history, "Assignee field")
	completeIdx := strings.LastIndex(history, `"complete"`)
	require.Greater(t, assignIdx, -1, "a synthetic assignee click must appear in history")
	assert.Less(t, assignIdx, completeIdx, "the assignee click happens before completion")
}

func TestRun_StuckLoopTerminatesAtRecoveryCeiling(t *testing.T) {
	driver := newFakeDriver()
	// Only the workspace indicator is visible: every resolution fails.
	driver.visible = visibleWorkspace(nil)

	llm := &scriptedLLM{
		decisions: []string{
			decisionJSON("click", "Status badge of DEE-9", "", 50, false, "the badge was not found before, trying again"),
		},
	}

	cfg := testConfig(t)
	orch := agent.NewOrchestrator(cfg, driver, llm, zap.NewNop())

	report, err := orch.Run(context.Background(), "Change DEE-9 status to In Progress")
	require.Error(t, err)
	assert.Equal(t, agent.CodeStuckLoopExhausted, agent.CodeOf(err))
	assert.Equal(t, agent.StatusFailed, report.Status)
	assert.Equal(t, 3, report.RecoveryCount,
		"exactly the 4th detected stuck state terminates, with 3 recoveries tagged")

	recoveries := 0
	for _, name := range driver.screenshots {
		if strings.Contains(filepath.Base(name), "recovery_") {
			recoveries++
		}
	}
	assert.GreaterOrEqual(t, recoveries, 3, "each stuck detection captured a diagnostic screenshot")
	assert.Empty(t, driver.navigations, "backtracking rewinds bookkeeping only, never the page")

	_, statErr := os.Stat(filepath.Join(report.ArtifactsDir, "history.json"))
	assert.NoError(t, statErr, "partial history is preserved on failure")
}

func TestRun_UnauthenticatedPageAbortsRun(t *testing.T) {
	driver := newFakeDriver()
	driver.url = "https://app.example.com/login"

	llm := &scriptedLLM{}
	cfg := testConfig(t)
	orch := agent.NewOrchestrator(cfg, driver, llm, zap.NewNop())

	report, err := orch.Run(context.Background(), "Create an issue")
	require.Error(t, err)
	assert.Equal(t, agent.CodeAuthenticationBlocked, agent.CodeOf(err))
	assert.Equal(t, agent.StatusFailed, report.Status)
	assert.Equal(t, 0, report.Steps)

	_, statErr := os.Stat(filepath.Join(report.ArtifactsDir, "history.json"))
	assert.NoError(t, statErr, "even an aborted run writes its artifact")
}

func TestRun_StepBudgetExhaustionEndsPartial(t *testing.T) {
	driver := newFakeDriver()
	driver.visible = everythingVisible()
	driver.describe = describeForForms

	llm := &scriptedLLM{
		planJSON: `{"estimatedSteps": 2, "complexity": "low", "keyMilestones": []}`,
		decisions: []string{
			// Alternating targets so the stuck predicate never fires.
			decisionJSON("click", "Alpha button", "", 10, false, "try alpha"),
			decisionJSON("click", "Beta button", "", 20, false, "try beta"),
			decisionJSON("click", "Alpha button", "", 10, false, "try alpha"),
			decisionJSON("click", "Beta button", "", 20, false, "try beta"),
			decisionJSON("click", "Alpha button", "", 10, false, "try alpha"),
			decisionJSON("click", "Beta button", "", 20, false, "try beta"),
			decisionJSON("click", "Alpha button", "", 10, false, "try alpha"),
			decisionJSON("click", "Beta button", "", 20, false, "try beta"),
			decisionJSON("click", "Alpha button", "", 10, false, "try alpha"),
			decisionJSON("click", "Beta button", "", 20, false, "try beta"),
		},
	}

	cfg := testConfig(t)
	orch := agent.NewOrchestrator(cfg, driver, llm, zap.NewNop())

	report, err := orch.Run(context.Background(), "Click around forever")
	require.NoError(t, err, "budget exhaustion is a warning, not an error")
	assert.Equal(t, agent.StatusPartial, report.Status)
	assert.Equal(t, 10, report.Steps, "estimate 2 doubles to 4 and floors at the minimum budget of 10")
}
