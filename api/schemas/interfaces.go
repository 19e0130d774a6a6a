// api/schemas/interfaces.go
package schemas

import (
	"context"
	"time"
)

// ModelTier selects between the cheap/fast model (planning, summaries)
// and the powerful model (per-step decisions).
type ModelTier string

const (
	TierFast     ModelTier = "fast"
	TierPowerful ModelTier = "powerful"
)

// GenerationOptions controls the text generation process of the LLM.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
	MaxTokens       int     `json:"max_tokens,omitempty"`
}

// GenerationRequest encapsulates a complete request to the LLM.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient abstracts the underlying model provider (Gemini, OpenAI
// compatible endpoints). The oracle consumers depend only on this.
type LLMClient interface {
	// Generate produces a text completion for the request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close releases provider resources.
	Close() error
}

// Selector addresses page elements for the browser capability. Expr is a
// CSS selector unless ByXPath is set.
type Selector struct {
	Expr    string
	ByXPath bool
}

// CSS builds a CSS selector.
func CSS(expr string) Selector { return Selector{Expr: expr} }

// XPath builds an XPath selector.
func XPath(expr string) Selector { return Selector{Expr: expr, ByXPath: true} }

// ElementHandle is an opaque, transient reference to one resolved page
// element. Handles are valid only for the action that resolved them and
// must never be retained across a step boundary: the page mutates.
//
// PageRoot marks the degenerate handle returned when a navigation macro
// (e.g. the command-palette identifier search) succeeded without landing
// on a concrete element.
type ElementHandle struct {
	Selector    Selector
	Description string // Human-readable provenance for logging.
	PageRoot    bool
}

// ElementInfo is what the executor needs to know about a resolved
// element to pick an input strategy.
type ElementInfo struct {
	Tag             string            `json:"tag"`
	Type            string            `json:"type,omitempty"` // input "type" attribute.
	Role            string            `json:"role,omitempty"`
	ContentEditable bool              `json:"contentEditable"`
	Value           string            `json:"value,omitempty"` // Current value/textContent.
	Attrs           map[string]string `json:"attrs,omitempty"`
}

// Editable reports whether the element can receive typed text.
func (e ElementInfo) Editable() bool {
	switch e.Tag {
	case "input", "textarea", "select":
		return true
	}
	return e.ContentEditable || e.Role == "textbox"
}

// PageDriver is the browser automation capability surface the core
// depends on. It is deliberately engine-agnostic: internal/browser
// implements it over chromedp, tests implement it in memory.
//
// All methods honor ctx cancellation; per-call timeouts are the
// caller's responsibility.
type PageDriver interface {
	// -- Navigation and page identity --
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)

	// -- Observation --
	// Evaluate runs a JavaScript expression and unmarshals the result
	// into out (out may be nil to discard).
	Evaluate(ctx context.Context, expr string, out any) error
	// Screenshot captures the viewport to a PNG file.
	Screenshot(ctx context.Context, path string) error
	// WaitStable blocks until the DOM is ready and the network has been
	// quiet for the given period, or the context expires.
	WaitStable(ctx context.Context, quiet time.Duration) error

	// -- Element queries --
	// CountVisible returns how many elements matching sel are visible.
	CountVisible(ctx context.Context, sel Selector) (int, error)
	// ProbeVisible waits up to timeout for the first match of sel to
	// pass the visibility check. A false result is not an error.
	ProbeVisible(ctx context.Context, sel Selector, timeout time.Duration) (bool, error)
	// Describe inspects the first match of sel.
	Describe(ctx context.Context, sel Selector) (ElementInfo, error)

	// -- Interaction --
	ScrollIntoView(ctx context.Context, sel Selector) error
	Click(ctx context.Context, sel Selector) error
	// ForceClick dispatches a synthetic click via script, bypassing
	// hit-testing. Used as a fallback when a timed click fails.
	ForceClick(ctx context.Context, sel Selector) error
	// Fill sets an input's value natively and fires input events.
	Fill(ctx context.Context, sel Selector, text string) error
	// TypeKeys types text keystroke-by-keystroke into the focused
	// element with the given inter-key delay. Required for rich-text
	// editors whose internal state ignores programmatic value writes.
	TypeKeys(ctx context.Context, sel Selector, text string, perKey time.Duration) error
	// PressKeys sends a key chord to the page (e.g. "ctrl+Enter",
	// "Escape", "Tab").
	PressKeys(ctx context.Context, chord string) error
	// ScrollPage scrolls the viewport: "up", "down", "top", "bottom".
	ScrollPage(ctx context.Context, direction string) error
}
