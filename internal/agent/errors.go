// internal/agent/errors.go
package agent

import (
	"errors"
	"fmt"
)

// ErrorCode classifies agent failures for control flow and reporting.
type ErrorCode string

const (
	// CodeElementNotFound: the resolver exhausted every strategy. Never
	// fatal by itself; it feeds stuck detection.
	CodeElementNotFound ErrorCode = "ELEMENT_NOT_FOUND"
	// CodeNotEditable: a type action landed on a non-editable element.
	// Aborts that action attempt only.
	CodeNotEditable ErrorCode = "NOT_EDITABLE"
	// CodeAuthenticationBlocked: the page demands a login the agent
	// cannot perform. Fatal for the run.
	CodeAuthenticationBlocked ErrorCode = "AUTHENTICATION_BLOCKED"
	// CodeOracleProtocolError: empty or malformed oracle response, or a
	// decision missing required fields. Fatal for the call and surfaces
	// to the run's fatal path.
	CodeOracleProtocolError ErrorCode = "ORACLE_PROTOCOL_ERROR"
	// CodeStuckLoopExhausted: the recovery ceiling was reached. The run
	// ends as failed with partial history preserved.
	CodeStuckLoopExhausted ErrorCode = "STUCK_LOOP_EXHAUSTED"
	// CodeStepBudgetExhausted: the step ceiling was hit. Not an error
	// in the taxonomy sense; the run ends "partial" with a warning.
	CodeStepBudgetExhausted ErrorCode = "STEP_BUDGET_EXHAUSTED"
)

// AgentError carries a taxonomy code alongside the underlying cause.
type AgentError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AgentError) Unwrap() error { return e.Err }

// NewAgentError wraps err with a taxonomy code.
func NewAgentError(code ErrorCode, message string, err error) *AgentError {
	return &AgentError{Code: code, Message: message, Err: err}
}

// CodeOf extracts the taxonomy code from an error chain, or "".
func CodeOf(err error) ErrorCode {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsFatal reports whether an error must abort the whole run. Everything
// else degrades to "skip this step's action, log, continue".
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case CodeAuthenticationBlocked, CodeOracleProtocolError, CodeStuckLoopExhausted:
		return true
	}
	return false
}
