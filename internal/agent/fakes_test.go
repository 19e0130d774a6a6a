//go:build !integration

// internal/agent/fakes_test.go
package agent_test

import (
	"context"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

// fakeDriver is an in-memory schemas.PageDriver. Visibility and element
// descriptions are driven by per-test hooks; everything else records
// calls.
type fakeDriver struct {
	mu sync.Mutex

	url   string
	title string

	// visible decides ProbeVisible/CountVisible per selector.
	visible func(sel schemas.Selector) bool
	// describe produces element info per selector.
	describe func(sel schemas.Selector) schemas.ElementInfo
	// evalJSON returns the JSON payload Evaluate unmarshals into out,
	// keyed on the script text. Empty string means "no result".
	evalJSON func(expr string) string

	clicks      []string
	fills       []string
	keys        []string
	navigations []string
	screenshots []string
}

var _ schemas.PageDriver = (*fakeDriver)(nil)

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		url:      "https://app.example.com/workspace",
		title:    "Workspace",
		visible:  func(schemas.Selector) bool { return false },
		describe: func(schemas.Selector) schemas.ElementInfo { return schemas.ElementInfo{Tag: "button"} },
		evalJSON: func(string) string { return "" },
	}
}

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = url
	d.navigations = append(d.navigations, url)
	return nil
}

func (d *fakeDriver) CurrentURL(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

func (d *fakeDriver) Title(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.title, nil
}

func (d *fakeDriver) Evaluate(_ context.Context, expr string, out any) error {
	d.mu.Lock()
	payload := d.evalJSON(expr)
	d.mu.Unlock()
	if out == nil || payload == "" {
		return nil
	}
	return json.Unmarshal([]byte(payload), out)
}

func (d *fakeDriver) Screenshot(_ context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.screenshots = append(d.screenshots, path)
	return nil
}

func (d *fakeDriver) WaitStable(context.Context, time.Duration) error { return nil }

func (d *fakeDriver) CountVisible(_ context.Context, sel schemas.Selector) (int, error) {
	if d.visible(sel) {
		return 1, nil
	}
	return 0, nil
}

func (d *fakeDriver) ProbeVisible(_ context.Context, sel schemas.Selector, _ time.Duration) (bool, error) {
	return d.visible(sel), nil
}

func (d *fakeDriver) Describe(_ context.Context, sel schemas.Selector) (schemas.ElementInfo, error) {
	return d.describe(sel), nil
}

func (d *fakeDriver) ScrollIntoView(context.Context, schemas.Selector) error { return nil }

func (d *fakeDriver) Click(_ context.Context, sel schemas.Selector) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clicks = append(d.clicks, sel.Expr)
	return nil
}

func (d *fakeDriver) ForceClick(ctx context.Context, sel schemas.Selector) error {
	return d.Click(ctx, sel)
}

func (d *fakeDriver) Fill(_ context.Context, _ schemas.Selector, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fills = append(d.fills, text)
	return nil
}

func (d *fakeDriver) TypeKeys(_ context.Context, _ schemas.Selector, text string, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fills = append(d.fills, text)
	return nil
}

func (d *fakeDriver) PressKeys(_ context.Context, chord string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys = append(d.keys, chord)
	return nil
}

func (d *fakeDriver) ScrollPage(context.Context, string) error { return nil }

// scriptedLLM replays canned responses: plan requests (fast tier) get
// planJSON, decision requests pop the queue. The last decision repeats
// once the queue empties.
type scriptedLLM struct {
	mu        sync.Mutex
	planJSON  string
	decisions []string
	calls     int
}

var _ schemas.LLMClient = (*scriptedLLM)(nil)

func (s *scriptedLLM) Generate(_ context.Context, req schemas.GenerationRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.Tier == schemas.TierFast {
		if s.planJSON == "" {
			return "", errPlanUnavailable
		}
		return s.planJSON, nil
	}
	s.calls++
	if len(s.decisions) == 0 {
		return "", errPlanUnavailable
	}
	resp := s.decisions[0]
	if len(s.decisions) > 1 {
		s.decisions = s.decisions[1:]
	}
	return resp, nil
}

func (s *scriptedLLM) Close() error { return nil }

var errPlanUnavailable = errString("oracle unavailable")

type errString string

func (e errString) Error() string { return string(e) }

// decisionJSON builds a well-formed oracle response.
func decisionJSON(actionType, target, value string, progress int, keyState bool, reasoning string) string {
	resp := map[string]any{
		"stateDescription": "page state",
		"nextAction": map[string]any{
			"type":      actionType,
			"target":    target,
			"value":     value,
			"reasoning": reasoning,
		},
		"isKeyState":         keyState,
		"progressAssessment": progress,
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

// visibleWorkspace makes the auth gate pass while keeping login buttons
// invisible.
func visibleWorkspace(extra func(sel schemas.Selector) bool) func(sel schemas.Selector) bool {
	return func(sel schemas.Selector) bool {
		if strings.Contains(sel.Expr, "sign in") {
			return false
		}
		if strings.Contains(sel.Expr, `[role="navigation"]`) {
			return true
		}
		if extra != nil {
			return extra(sel)
		}
		return false
	}
}
