//go:build !integration

// internal/perception/extractor_test.go
package perception_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
	"github.com/xkilldash9x/marionette-cli/internal/perception"
)

// pageStub implements only the driver surface the extractor touches.
type pageStub struct {
	url      string
	title    string
	evalJSON func(expr string) (string, error)
	waits    int
}

var _ schemas.PageDriver = (*pageStub)(nil)

func (p *pageStub) Navigate(context.Context, string) error      { return nil }
func (p *pageStub) CurrentURL(context.Context) (string, error)  { return p.url, nil }
func (p *pageStub) Title(context.Context) (string, error)       { return p.title, nil }
func (p *pageStub) Screenshot(context.Context, string) error    { return nil }

func (p *pageStub) Evaluate(_ context.Context, expr string, out any) error {
	payload, err := p.evalJSON(expr)
	if err != nil {
		return err
	}
	if out == nil || payload == "" {
		return nil
	}
	return json.Unmarshal([]byte(payload), out)
}

func (p *pageStub) WaitStable(context.Context, time.Duration) error {
	p.waits++
	return nil
}

func (p *pageStub) CountVisible(context.Context, schemas.Selector) (int, error) { return 0, nil }
func (p *pageStub) ProbeVisible(context.Context, schemas.Selector, time.Duration) (bool, error) {
	return false, nil
}
func (p *pageStub) Describe(context.Context, schemas.Selector) (schemas.ElementInfo, error) {
	return schemas.ElementInfo{}, nil
}
func (p *pageStub) ScrollIntoView(context.Context, schemas.Selector) error { return nil }
func (p *pageStub) Click(context.Context, schemas.Selector) error          { return nil }
func (p *pageStub) ForceClick(context.Context, schemas.Selector) error     { return nil }
func (p *pageStub) Fill(context.Context, schemas.Selector, string) error   { return nil }
func (p *pageStub) TypeKeys(context.Context, schemas.Selector, string, time.Duration) error {
	return nil
}
func (p *pageStub) PressKeys(context.Context, string) error  { return nil }
func (p *pageStub) ScrollPage(context.Context, string) error { return nil }

func newExtractor(mode string, stub *pageStub) *perception.Extractor {
	cfg := config.NewDefaultConfig()
	cfg.Agent.PerceptionMode = mode
	return perception.NewExtractor(cfg, stub, zap.NewNop())
}

func TestExtract_ElementsMode(t *testing.T) {
	stub := &pageStub{
		url:   "https://app.example.com/board",
		title: "Board",
		evalJSON: func(string) (string, error) {
			return `{
				"modalOpen": true,
				"truncated": true,
				"elements": [
					{"index": 0, "tag": "button", "text": "New issue", "inModal": true,
					 "box": {"x": 10, "y": 20, "width": 80, "height": 30}}
				]
			}`, nil
		},
	}

	snap := newExtractor(perception.ModeElements, stub).Extract(context.Background())
	assert.Equal(t, "https://app.example.com/board", snap.URL)
	assert.Equal(t, "Board", snap.Title)
	assert.True(t, snap.ModalOpen)
	assert.True(t, snap.Truncated, "the element cap flag survives extraction")
	assert.False(t, snap.Fallback)
	require.Len(t, snap.Elements, 1)
	assert.Equal(t, "button", snap.Elements[0].Tag)
	assert.True(t, snap.Elements[0].InModal)
	assert.InDelta(t, 2400.0, snap.Elements[0].Box.Area(), 0.01)
}

func TestExtract_TreeMode(t *testing.T) {
	stub := &pageStub{
		url:   "https://app.example.com",
		title: "App",
		evalJSON: func(expr string) (string, error) {
			require.True(t, strings.Contains(expr, "SKIP"), "tree mode must run the tree script")
			return `{"modalOpen": false, "tree": {"role": "main", "children": [{"role": "button", "name": "Save", "children": []}]}}`, nil
		},
	}

	snap := newExtractor(perception.ModeTree, stub).Extract(context.Background())
	require.NotNil(t, snap.Tree)
	assert.Equal(t, "main", snap.Tree.Role)
	require.Len(t, snap.Tree.Children, 1)
	assert.Equal(t, "Save", snap.Tree.Children[0].Name)
}

func TestExtract_EmptyResultRetriesThenFallsBack(t *testing.T) {
	calls := 0
	stub := &pageStub{
		url:   "https://app.example.com",
		title: "Blank",
		evalJSON: func(string) (string, error) {
			calls++
			return `{"modalOpen": false, "truncated": false, "elements": []}`, nil
		},
	}

	snap := newExtractor(perception.ModeElements, stub).Extract(context.Background())
	assert.Equal(t, 2, calls, "an empty snapshot is retried exactly once")
	assert.Equal(t, 1, stub.waits, "the retry waits for stabilization first")
	assert.True(t, snap.Fallback)
	assert.Equal(t, "Blank", snap.Title, "the fallback still carries page identity")
	assert.Empty(t, snap.Elements)
}

func TestExtract_ScriptFailureNeverPropagates(t *testing.T) {
	stub := &pageStub{
		url:   "https://app.example.com",
		title: "Broken",
		evalJSON: func(string) (string, error) {
			return "", errors.New("execution context destroyed")
		},
	}

	snap := newExtractor(perception.ModeElements, stub).Extract(context.Background())
	assert.True(t, snap.Fallback, "extraction degrades to the fallback snapshot instead of failing")
	assert.Equal(t, "https://app.example.com", snap.URL)
}
