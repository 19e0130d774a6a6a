//go:build !integration

// internal/agent/refiner_test.go
package agent_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/agent"
)

func TestRefine_BlocksPrematureCompleteWhenDescriptionMissing(t *testing.T) {
	r := agent.NewRefiner(zap.NewNop())

	history := []agent.HistoryEntry{
		entry(0, schemas.ActionTypeClick, "New issue button", 30, "opened composer"),
		entry(1, schemas.ActionTypeType, "Issue title", 60, "typed title"),
	}
	decision := agent.Decision{
		Action:   schemas.ActionDecision{Type: schemas.ActionTypeComplete, Target: "none"},
		Progress: 90,
	}

	refined := r.Refine(decision, history, "Create a new issue with a description of the login bug")
	assert.Equal(t, schemas.ActionTypeClick, refined.Action.Type)
	assert.Equal(t, "Add description", refined.Action.Target)
	assert.Less(t, refined.Progress, decision.Progress, "the rewritten decision carries reduced progress")
}

func TestRefine_DescriptionRuleSkippedWhenAlreadyTyped(t *testing.T) {
	r := agent.NewRefiner(zap.NewNop())

	history := []agent.HistoryEntry{
		entry(0, schemas.ActionTypeType, "Issue title", 40, "typed title"),
		entry(1, schemas.ActionTypeType, "Description field", 80, "typed description"),
	}
	decision := agent.Decision{
		Action:   schemas.ActionDecision{Type: schemas.ActionTypeComplete, Target: "none"},
		Progress: 95,
	}

	refined := r.Refine(decision, history, "Create a new issue with a description")
	assert.Equal(t, schemas.ActionTypeComplete, refined.Action.Type,
		"complete passes through once the description was actually typed")
}

func TestRefine_BlocksPrematureCompleteWhenAssigneeMissing(t *testing.T) {
	r := agent.NewRefiner(zap.NewNop())

	history := []agent.HistoryEntry{
		entry(0, schemas.ActionTypeClick, "New issue button", 30, "opened composer"),
		entry(1, schemas.ActionTypeType, "Issue title", 60, "typed title"),
	}
	decision := agent.Decision{
		Action:   schemas.ActionDecision{Type: schemas.ActionTypeComplete, Target: "none"},
		Progress: 90,
	}

	refined := r.Refine(decision, history, "create a ticket and assign it to yourself")
	assert.Equal(t, schemas.ActionTypeClick, refined.Action.Type,
		"complete after typing only a title must be rewritten on an assign task")
	assert.Contains(t, refined.Action.Target, "Assignee")
}

func TestRefine_UpgradesStagnantHighProgressRepetitionToComplete(t *testing.T) {
	r := agent.NewRefiner(zap.NewNop())

	history := []agent.HistoryEntry{
		entry(0, schemas.ActionTypeClick, "Status badge of DEE-9", 85, "clicked"),
		entry(1, schemas.ActionTypeClick, "Status badge of DEE-9", 88, "clicked"),
	}
	decision := agent.Decision{
		Action:   schemas.ActionDecision{Type: schemas.ActionTypeClick, Target: "Status badge of DEE-9"},
		Progress: 90,
	}

	refined := r.Refine(decision, history, "Change DEE-9 status to In Progress")
	assert.Equal(t, schemas.ActionTypeComplete, refined.Action.Type)
}

func TestRefine_NoUpgradeBelowProgressThreshold(t *testing.T) {
	r := agent.NewRefiner(zap.NewNop())

	history := []agent.HistoryEntry{
		entry(0, schemas.ActionTypeClick, "Status badge", 40, "clicked"),
		entry(1, schemas.ActionTypeClick, "Status badge", 42, "clicked"),
	}
	decision := agent.Decision{
		Action:   schemas.ActionDecision{Type: schemas.ActionTypeClick, Target: "Status badge"},
		Progress: 45,
	}

	refined := r.Refine(decision, history, "Change the issue status")
	assert.Equal(t, schemas.ActionTypeClick, refined.Action.Type)
}

func TestRefine_PassthroughNeverMutatesInput(t *testing.T) {
	r := agent.NewRefiner(zap.NewNop())

	original := agent.Decision{
		Action: schemas.ActionDecision{
			Type:      schemas.ActionTypeClick,
			Target:    "New issue button",
			Reasoning: "start the flow",
		},
		Progress: 10,
	}
	snapshot := original

	refined := r.Refine(original, nil, "Create a new issue titled X")
	assert.Empty(t, cmp.Diff(snapshot, original), "refine must not mutate its input")
	assert.Equal(t, original.Action, refined.Action)
	assert.Equal(t, original.Progress, refined.Progress)
}
