// internal/agent/models.go
package agent

import (
	"fmt"
	"time"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

// RunStatus is the terminal disposition of a run.
type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusPartial   RunStatus = "partial"
	StatusFailed    RunStatus = "failed"
)

// HistoryEntry records one executed step. The history is append-only
// except for backtracks, which trim the tail.
type HistoryEntry struct {
	Step               int                    `json:"step"`
	Action             schemas.ActionDecision `json:"action"`
	Description        string                 `json:"description"`
	Timestamp          time.Time              `json:"timestamp"`
	ProgressAssessment int                    `json:"progressAssessment"`
	IsKeyState         bool                   `json:"isKeyState"`
}

// RunState is the process-scoped bookkeeping for one task run. It is
// created at task start and discarded at task end; only the generated
// artifacts outlive it.
type RunState struct {
	Task     string         `json:"task"`
	Step     int            `json:"step"`
	History  []HistoryEntry `json:"history"`
	Complete bool           `json:"complete"`
	MaxSteps int            `json:"maxSteps"`
}

// NewRunState creates the bookkeeping for a task with a derived step
// budget.
func NewRunState(task string, maxSteps int) *RunState {
	return &RunState{Task: task, MaxSteps: maxSteps, History: make([]HistoryEntry, 0, maxSteps)}
}

// Append records a step. Step numbers stay dense: each appended entry
// takes the current history length, and the run's step counter advances
// with it.
func (s *RunState) Append(entry HistoryEntry) error {
	if entry.Step != len(s.History) {
		return fmt.Errorf("history append out of order: entry step %d, expected %d", entry.Step, len(s.History))
	}
	s.History = append(s.History, entry)
	s.Step = len(s.History)
	return nil
}

// Compact returns the last-n history entries in the trimmed form oracle
// prompts carry.
func (s *RunState) Compact(n int) []schemas.CompactHistoryEntry {
	start := len(s.History) - n
	if start < 0 {
		start = 0
	}
	out := make([]schemas.CompactHistoryEntry, 0, len(s.History)-start)
	for _, h := range s.History[start:] {
		out = append(out, schemas.CompactHistoryEntry{
			Step:     h.Step,
			Type:     string(h.Action.Type),
			Target:   h.Action.Target,
			Progress: h.ProgressAssessment,
		})
	}
	return out
}

// Last returns the most recent n entries (fewer if the history is
// shorter).
func (s *RunState) Last(n int) []HistoryEntry {
	if len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}
