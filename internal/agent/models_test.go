//go:build !integration

// internal/agent/models_test.go
package agent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/agent"
)

func TestRunState_AppendKeepsStepsDense(t *testing.T) {
	state := agent.NewRunState("task", 10)

	for i := 0; i < 4; i++ {
		require.NoError(t, state.Append(entry(state.Step, schemas.ActionTypeClick, "X", 10, "d")))
	}
	assert.Equal(t, 4, state.Step)
	for i, h := range state.History {
		assert.Equal(t, i, h.Step)
	}
}

func TestRunState_AppendRejectsGaps(t *testing.T) {
	state := agent.NewRunState("task", 10)

	err := state.Append(entry(3, schemas.ActionTypeClick, "X", 10, "d"))
	require.Error(t, err)
	assert.Empty(t, state.History)
}

func TestRunState_CompactWindowsTheTail(t *testing.T) {
	state := agent.NewRunState("task", 10)
	targets := []string{"a", "b", "c", "d", "e"}
	for i, target := range targets {
		require.NoError(t, state.Append(entry(i, schemas.ActionTypeClick, target, i*10, "d")))
	}

	compact := state.Compact(3)
	require.Len(t, compact, 3)
	assert.Equal(t, "c", compact[0].Target)
	assert.Equal(t, 2, compact[0].Step)
	assert.Equal(t, "e", compact[2].Target)
	assert.Equal(t, 40, compact[2].Progress)

	assert.Len(t, state.Compact(100), 5, "window larger than history returns everything")
}
