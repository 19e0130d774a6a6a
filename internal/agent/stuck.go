// internal/agent/stuck.go
package agent

import (
	"strings"

	"go.uber.org/zap"
)

// Stuck detection and recovery: the loop's own state machine
// (RUNNING -> STUCK -> RECOVERING -> RUNNING, terminal TERMINATED).
// Detection looks only at the last three history entries; recovery
// rewinds bookkeeping by exactly two entries but never undoes the
// page-side effects those entries caused. The next attempt observes
// whatever the page actually looks like and routes around it.

// RecoveryTag marks a history entry's description each time a
// backtrack rewound to it. Recovery attempts are counted by these tags,
// not by wall-clock or any external counter, so the count survives in
// the history artifact.
const RecoveryTag = "[recovery-attempt]"

const notFoundSignal = "not found"

// progressTolerance is the window within which three progress values
// count as "no movement".
const progressTolerance = 5

// Detector evaluates the stuck predicate and performs backtracks.
type Detector struct {
	logger        *zap.Logger
	recoveryLimit int
}

// NewDetector builds a stuck detector with the configured recovery
// ceiling.
func NewDetector(recoveryLimit int, logger *zap.Logger) *Detector {
	return &Detector{logger: logger.Named("stuck"), recoveryLimit: recoveryLimit}
}

// IsStuck evaluates the predicate against the last three entries:
// identical (target, type) with progress within tolerance across all
// three, or all three carrying a "not found" signal in description or
// reasoning. Histories shorter than three are never stuck.
func (d *Detector) IsStuck(history []HistoryEntry) bool {
	if len(history) < 3 {
		return false
	}
	last := history[len(history)-3:]

	sameAction := true
	minProg, maxProg := last[0].ProgressAssessment, last[0].ProgressAssessment
	for _, h := range last[1:] {
		if h.Action.Target != last[0].Action.Target || h.Action.Type != last[0].Action.Type {
			sameAction = false
		}
		if h.ProgressAssessment < minProg {
			minProg = h.ProgressAssessment
		}
		if h.ProgressAssessment > maxProg {
			maxProg = h.ProgressAssessment
		}
	}
	if sameAction && maxProg-minProg <= progressTolerance {
		return true
	}

	for _, h := range last {
		desc := strings.ToLower(h.Description)
		reason := strings.ToLower(h.Action.Reasoning)
		if !strings.Contains(desc, notFoundSignal) && !strings.Contains(reason, notFoundSignal) {
			return false
		}
	}
	return true
}

// RecoveryCount totals recovery tags across the whole history. A single
// entry can carry several tags when multiple backtracks rewound to it.
func (d *Detector) RecoveryCount(history []HistoryEntry) int {
	count := 0
	for _, h := range history {
		count += strings.Count(h.Description, RecoveryTag)
	}
	return count
}

// Exhausted reports whether the recovery ceiling has been reached.
func (d *Detector) Exhausted(history []HistoryEntry) bool {
	return d.RecoveryCount(history) >= d.recoveryLimit
}

// Backtrack discards exactly the last two history entries and rewinds
// the step counter to the new history length, tagging the entry that
// becomes most recent so the attempt stays countable. A history shorter
// than two entries cannot be rewound and is fatal.
func (d *Detector) Backtrack(state *RunState) error {
	n := len(state.History)
	if n < 2 {
		return NewAgentError(CodeStuckLoopExhausted,
			"stuck with too little history to backtrack", nil)
	}

	if n >= 3 {
		state.History[n-3].Description += " " + RecoveryTag
	}
	state.History = state.History[:n-2]
	state.Step = len(state.History)

	d.logger.Warn("Backtracked after stuck detection.",
		zap.Int("dropped", 2),
		zap.Int("step", state.Step),
		zap.Int("recovery_count", d.RecoveryCount(state.History)))
	return nil
}
