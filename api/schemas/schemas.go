// api/schemas/schemas.go
package schemas

// BoundingBox describes an element's position and size in CSS pixels,
// relative to the viewport.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the box area. Zero area means the element is not visible.
func (b BoundingBox) Area() float64 {
	return b.Width * b.Height
}

// PageElement is one visible, interactive element as seen by the
// perception extractor. Text fields are truncated at extraction time to
// bound oracle input size.
type PageElement struct {
	Index       int         `json:"index"`            // Position in the extracted list.
	Tag         string      `json:"tag"`              // Lowercase tag name (button, a, input, div...).
	Role        string      `json:"role,omitempty"`   // Explicit ARIA role, if any.
	Text        string      `json:"text,omitempty"`   // Truncated visible text.
	AriaLabel   string      `json:"ariaLabel,omitempty"`
	Placeholder string      `json:"placeholder,omitempty"`
	Href        string      `json:"href,omitempty"`
	Editable    bool        `json:"editable,omitempty"` // input/textarea/contenteditable.
	InModal     bool        `json:"inModal,omitempty"`  // Inside an open dialog/modal.
	Box         BoundingBox `json:"box"`
}

// AXNode is one node of the trimmed accessibility-style tree snapshot.
// Only interactive and container nodes are kept.
type AXNode struct {
	Role     string   `json:"role"`
	Name     string   `json:"name,omitempty"`
	Children []AXNode `json:"children,omitempty"`
}

// Snapshot is the bounded, serializable description of the current page
// that is handed to the decision oracle and consulted by the resolver.
// Exactly one of Elements or Tree is populated depending on the
// configured perception mode; the URL/Title header is always present.
type Snapshot struct {
	URL       string        `json:"url"`
	Title     string        `json:"title"`
	ModalOpen bool          `json:"modalOpen"`
	Truncated bool          `json:"truncated,omitempty"` // Element cap was hit.
	Elements  []PageElement `json:"elements,omitempty"`
	Tree      *AXNode       `json:"tree,omitempty"`
	Fallback  bool          `json:"fallback,omitempty"` // Minimal snapshot after extraction failure.
}

// OracleAction is the raw next-action block inside a decision oracle
// response, before validation and refinement.
type OracleAction struct {
	Type      string `json:"type"`
	Target    string `json:"target"`
	Value     string `json:"value,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// DecisionResponse is the JSON contract the decision oracle must honor.
// The consumer validates it (see internal/agent): a missing NextAction or
// missing type/target is fatal for the call, ProgressAssessment outside
// [0,100] is coerced to 0 with a warning, and a missing IsKeyState
// coerces to false.
type DecisionResponse struct {
	StateDescription   string        `json:"stateDescription"`
	NextAction         *OracleAction `json:"nextAction"`
	IsKeyState         bool          `json:"isKeyState"`
	ProgressAssessment int           `json:"progressAssessment"`
	RecoveryGuidance   string        `json:"recoveryGuidance,omitempty"`
}

// PlanResponse is the planning oracle's contract. Planning is advisory:
// any failure to obtain or parse it falls back to a default step budget.
type PlanResponse struct {
	EstimatedSteps int      `json:"estimatedSteps"`
	Complexity     string   `json:"complexity"`
	KeyMilestones  []string `json:"keyMilestones"`
}

// CompactHistoryEntry is the trimmed history record included in oracle
// prompts: enough for the oracle to see the trajectory without replaying
// full snapshots.
type CompactHistoryEntry struct {
	Step     int    `json:"step"`
	Type     string `json:"type"`
	Target   string `json:"target,omitempty"`
	Progress int    `json:"progress"`
}

// SessionState is the persisted authentication blob. The core treats the
// cookie and storage payloads as opaque: they are captured after a
// successful login detection and replayed at the next run start, never
// parsed or edited.
type SessionState struct {
	Origin         string            `json:"origin"`
	Cookies        []SessionCookie   `json:"cookies"`
	LocalStorage   map[string]string `json:"localStorage,omitempty"`
	SessionStorage map[string]string `json:"sessionStorage,omitempty"`
	CapturedAtUnix int64             `json:"capturedAtUnix"`
}

// SessionCookie mirrors the subset of CDP cookie fields needed to
// restore a session.
type SessionCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}
