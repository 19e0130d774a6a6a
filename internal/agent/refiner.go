// internal/agent/refiner.go
package agent

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

// The decision refiner post-processes the oracle's raw decision with
// deterministic rules, because the oracle is unreliable at two things:
// knowing a multi-part task is only partially done, and knowing a UI
// already silently applied a change. Rules run in fixed order; the
// first applicable rule produces a fresh decision and evaluation stops.
// The refiner never mutates its input.

// RefinedDecision is the refiner's output: a (possibly rewritten)
// action plus the progress value the history entry should carry.
type RefinedDecision struct {
	Action   schemas.ActionDecision
	Progress int
	Rule     string // Name of the rule that fired, or "" for passthrough.
}

type refineRule struct {
	name  string
	apply func(d Decision, history []HistoryEntry, task string) (RefinedDecision, bool)
}

// Refiner applies the rule table.
type Refiner struct {
	logger *zap.Logger
	rules  []refineRule
}

// NewRefiner builds the refiner with its fixed rule order.
func NewRefiner(logger *zap.Logger) *Refiner {
	return &Refiner{
		logger: logger.Named("refiner"),
		rules: []refineRule{
			{name: "block-premature-complete-description", apply: blockCompleteMissingDescription},
			{name: "block-premature-complete-assignee", apply: blockCompleteMissingAssignee},
			{name: "infer-complete-from-repetition", apply: inferCompleteFromRepetition},
		},
	}
}

// Refine returns a fresh decision. When no rule applies the oracle's
// decision passes through unchanged (still as a new value).
func (r *Refiner) Refine(d Decision, history []HistoryEntry, task string) RefinedDecision {
	for _, rule := range r.rules {
		if refined, ok := rule.apply(d, history, task); ok {
			r.logger.Info("Refiner rewrote oracle decision.",
				zap.String("rule", rule.name),
				zap.String("from", string(d.Action.Type)),
				zap.String("to", string(refined.Action.Type)),
				zap.String("target", refined.Action.Target))
			refined.Rule = rule.name
			return refined
		}
	}
	return RefinedDecision{Action: d.Action, Progress: d.Progress}
}

var (
	reCreationVerb = regexp.MustCompile(`(?i)\b(create|add|new|make|file|open)\b`)
	reStatusTask   = regexp.MustCompile(`(?i)\b(status|assign|move|change|update)\b`)
)

// historyHasTyped reports whether any entry typed into a target naming
// the keyword.
func historyHasTyped(history []HistoryEntry, keyword string) bool {
	for _, h := range history {
		if h.Action.Type == schemas.ActionTypeType &&
			strings.Contains(strings.ToLower(h.Action.Target), keyword) {
			return true
		}
	}
	return false
}

// blockCompleteMissingDescription: the task asks for a created entity
// with a description, a title was typed, but no description was. The
// oracle's "complete" is premature; steer it to the description field
// instead.
func blockCompleteMissingDescription(d Decision, history []HistoryEntry, task string) (RefinedDecision, bool) {
	if d.Action.Type != schemas.ActionTypeComplete {
		return RefinedDecision{}, false
	}
	lowerTask := strings.ToLower(task)
	if !reCreationVerb.MatchString(task) || !strings.Contains(lowerTask, "description") {
		return RefinedDecision{}, false
	}
	if !historyHasTyped(history, "title") || historyHasTyped(history, "description") {
		return RefinedDecision{}, false
	}
	return RefinedDecision{
		Action: schemas.ActionDecision{
			Type:      schemas.ActionTypeClick,
			Target:    "Add description",
			Reasoning: "task requires a description and none was entered yet",
		},
		Progress: d.Progress / 2,
	}, true
}

// blockCompleteMissingAssignee: same shape for "create ... and assign":
// a typed title with no assignee interaction means the assign half is
// still outstanding.
func blockCompleteMissingAssignee(d Decision, history []HistoryEntry, task string) (RefinedDecision, bool) {
	if d.Action.Type != schemas.ActionTypeComplete {
		return RefinedDecision{}, false
	}
	lowerTask := strings.ToLower(task)
	if !reCreationVerb.MatchString(task) || !strings.Contains(lowerTask, "assign") {
		return RefinedDecision{}, false
	}
	if !historyHasTyped(history, "title") {
		return RefinedDecision{}, false
	}
	for _, h := range history {
		if strings.Contains(strings.ToLower(h.Action.Target), "assign") {
			return RefinedDecision{}, false
		}
	}
	return RefinedDecision{
		Action: schemas.ActionDecision{
			Type:      schemas.ActionTypeClick,
			Target:    "Assignee field",
			Reasoning: "task requires assignment and no assignee was touched yet",
		},
		Progress: d.Progress / 2,
	}, true
}

// inferCompleteFromRepetition: a high-confidence click on the exact
// target of the last two actions, on a status/assignment task, is read
// as the UI already reflecting success. Stagnant repetition at >80
// progress upgrades to complete rather than clicking a third time.
func inferCompleteFromRepetition(d Decision, history []HistoryEntry, task string) (RefinedDecision, bool) {
	if d.Action.Type != schemas.ActionTypeClick || d.Progress <= 80 {
		return RefinedDecision{}, false
	}
	if !reStatusTask.MatchString(task) {
		return RefinedDecision{}, false
	}
	if len(history) < 2 {
		return RefinedDecision{}, false
	}
	for _, h := range history[len(history)-2:] {
		if h.Action.Target != d.Action.Target {
			return RefinedDecision{}, false
		}
	}
	return RefinedDecision{
		Action: schemas.ActionDecision{
			Type:      schemas.ActionTypeComplete,
			Target:    d.Action.Target,
			Reasoning: "repeated high-progress action on an unchanged target; treating the change as already applied",
		},
		Progress: d.Progress,
	}, true
}
