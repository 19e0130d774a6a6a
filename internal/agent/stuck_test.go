//go:build !integration

// internal/agent/stuck_test.go
package agent_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/agent"
)

func entry(step int, actionType schemas.ActionType, target string, progress int, description string) agent.HistoryEntry {
	return agent.HistoryEntry{
		Step:               step,
		Action:             schemas.ActionDecision{Type: actionType, Target: target},
		Description:        description,
		ProgressAssessment: progress,
	}
}

func TestIsStuck_ShortHistoryNeverStuck(t *testing.T) {
	d := agent.NewDetector(3, zap.NewNop())

	for n := 0; n < 3; n++ {
		history := make([]agent.HistoryEntry, 0, n)
		for i := 0; i < n; i++ {
			history = append(history, entry(i, schemas.ActionTypeClick, "Same target", 50, "same"))
		}
		assert.False(t, d.IsStuck(history), "history of length %d must never be stuck", n)
	}
}

func TestIsStuck_IdenticalTripleWithFlatProgress(t *testing.T) {
	d := agent.NewDetector(3, zap.NewNop())

	history := []agent.HistoryEntry{
		entry(0, schemas.ActionTypeClick, "Status badge", 50, "a"),
		entry(1, schemas.ActionTypeClick, "Status badge", 53, "b"),
		entry(2, schemas.ActionTypeClick, "Status badge", 55, "c"),
	}
	assert.True(t, d.IsStuck(history))
}

func TestIsStuck_ProgressSpreadBreaksThePredicate(t *testing.T) {
	d := agent.NewDetector(3, zap.NewNop())

	history := []agent.HistoryEntry{
		entry(0, schemas.ActionTypeClick, "Status badge", 40, "a"),
		entry(1, schemas.ActionTypeClick, "Status badge", 50, "b"),
		entry(2, schemas.ActionTypeClick, "Status badge", 60, "c"),
	}
	assert.False(t, d.IsStuck(history), "progress moving by more than the tolerance is not stuck")
}

func TestIsStuck_DifferentTargetsNotStuck(t *testing.T) {
	d := agent.NewDetector(3, zap.NewNop())

	history := []agent.HistoryEntry{
		entry(0, schemas.ActionTypeClick, "New issue", 50, "a"),
		entry(1, schemas.ActionTypeClick, "Issue title", 50, "b"),
		entry(2, schemas.ActionTypeClick, "Status badge", 50, "c"),
	}
	assert.False(t, d.IsStuck(history))
}

func TestIsStuck_TripleNotFoundSignal(t *testing.T) {
	d := agent.NewDetector(3, zap.NewNop())

	// Targets and progress differ; the "not found" signal alone trips
	// the predicate.
	history := []agent.HistoryEntry{
		entry(0, schemas.ActionTypeClick, "A", 10, "clicked A (target not found)"),
		entry(1, schemas.ActionTypeClick, "B", 30, "clicked B (target not found)"),
		entry(2, schemas.ActionTypeClick, "C", 60, "clicked C (target not found)"),
	}
	assert.True(t, d.IsStuck(history))
}

func TestIsStuck_NotFoundInReasoningCounts(t *testing.T) {
	d := agent.NewDetector(3, zap.NewNop())

	history := make([]agent.HistoryEntry, 0, 3)
	for i := 0; i < 3; i++ {
		e := entry(i, schemas.ActionTypeClick, fmt.Sprintf("T%d", i), i*20, "clicked")
		e.Action.Reasoning = "the element was not found on the page"
		history = append(history, e)
	}
	assert.True(t, d.IsStuck(history))
}

func TestBacktrack_DropsExactlyTwoAndRewindsStep(t *testing.T) {
	d := agent.NewDetector(3, zap.NewNop())

	state := agent.NewRunState("task", 20)
	for i := 0; i < 5; i++ {
		require.NoError(t, state.Append(entry(i, schemas.ActionTypeClick, "X", 50, "desc")))
	}

	require.NoError(t, d.Backtrack(state))
	assert.Len(t, state.History, 3)
	assert.Equal(t, 3, state.Step, "step must equal history length immediately after backtrack")
	assert.Contains(t, state.History[2].Description, agent.RecoveryTag,
		"the surviving most recent entry carries the recovery tag")
}

func TestBacktrack_RefusedOnShortHistory(t *testing.T) {
	d := agent.NewDetector(3, zap.NewNop())

	state := agent.NewRunState("task", 20)
	require.NoError(t, state.Append(entry(0, schemas.ActionTypeClick, "X", 50, "desc")))

	err := d.Backtrack(state)
	require.Error(t, err)
	assert.Equal(t, agent.CodeStuckLoopExhausted, agent.CodeOf(err))
	assert.Len(t, state.History, 1, "a refused backtrack must not touch history")
}

func TestRecoveryCount_TagsAccumulate(t *testing.T) {
	d := agent.NewDetector(3, zap.NewNop())

	state := agent.NewRunState("task", 50)
	appendThree := func() {
		for i := 0; i < 3; i++ {
			require.NoError(t, state.Append(entry(state.Step, schemas.ActionTypeClick, "X", 50, "desc")))
		}
	}

	appendThree()
	require.NoError(t, d.Backtrack(state)) // 1st recovery
	assert.Equal(t, 1, d.RecoveryCount(state.History))
	assert.False(t, d.Exhausted(state.History))

	appendThree()
	require.NoError(t, d.Backtrack(state)) // 2nd
	assert.Equal(t, 2, d.RecoveryCount(state.History))

	appendThree()
	require.NoError(t, d.Backtrack(state)) // 3rd
	assert.Equal(t, 3, d.RecoveryCount(state.History))
	assert.True(t, d.Exhausted(state.History),
		"the 4th detected stuck state finds 3 prior recoveries and must terminate")
}
