// api/schemas/actions.go
package schemas

// ActionType discriminates the primitive actions the agent can take.
type ActionType string

const (
	ActionTypeClick    ActionType = "click"
	ActionTypeType     ActionType = "type"
	ActionTypeWait     ActionType = "wait"
	ActionTypeNavigate ActionType = "navigate"
	ActionTypeComplete ActionType = "complete"
	ActionTypeScroll   ActionType = "scroll"
)

// ValidActionType reports whether t is one of the known primitives.
func ValidActionType(t ActionType) bool {
	switch t {
	case ActionTypeClick, ActionTypeType, ActionTypeWait, ActionTypeNavigate, ActionTypeComplete, ActionTypeScroll:
		return true
	}
	return false
}

// RequiresTarget reports whether this action type needs element
// resolution before it can execute.
func (t ActionType) RequiresTarget() bool {
	switch t {
	case ActionTypeClick, ActionTypeType:
		return true
	}
	return false
}

// ActionDecision is one refined, executable decision. Values are
// immutable once constructed: the refiner returns a fresh decision
// instead of patching the oracle's output in place, so no call site can
// observe another's mutation.
type ActionDecision struct {
	Type      ActionType
	Target    string // Free-text descriptor; required for click/type/scroll.
	Value     string // Required for type; the URL for navigate.
	Reasoning string // For logging only, never parsed for control flow.
}
