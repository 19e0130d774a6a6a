//go:build !integration

// internal/resolver/resolver_test.go
package resolver

import (
	"context"
	"strings"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
)

type stubDriver struct {
	url       string
	visible   func(sel schemas.Selector) bool
	describe  func(sel schemas.Selector) schemas.ElementInfo
	evalJSON  func(expr string) string
	onPress   func(chord string)
	typedText []string
}

var _ schemas.PageDriver = (*stubDriver)(nil)

func newStubDriver() *stubDriver {
	return &stubDriver{
		url:      "https://app.example.com/board",
		visible:  func(schemas.Selector) bool { return false },
		describe: func(schemas.Selector) schemas.ElementInfo { return schemas.ElementInfo{Tag: "button"} },
		evalJSON: func(string) string { return "" },
	}
}

func (d *stubDriver) Navigate(_ context.Context, url string) error { d.url = url; return nil }
func (d *stubDriver) CurrentURL(context.Context) (string, error)   { return d.url, nil }
func (d *stubDriver) Title(context.Context) (string, error)        { return "Board", nil }

func (d *stubDriver) Evaluate(_ context.Context, expr string, out any) error {
	payload := d.evalJSON(expr)
	if out == nil || payload == "" {
		return nil
	}
	return json.Unmarshal([]byte(payload), out)
}

func (d *stubDriver) Screenshot(context.Context, string) error        { return nil }
func (d *stubDriver) WaitStable(context.Context, time.Duration) error { return nil }

func (d *stubDriver) CountVisible(_ context.Context, sel schemas.Selector) (int, error) {
	if d.visible(sel) {
		return 1, nil
	}
	return 0, nil
}

func (d *stubDriver) ProbeVisible(_ context.Context, sel schemas.Selector, _ time.Duration) (bool, error) {
	return d.visible(sel), nil
}

func (d *stubDriver) Describe(_ context.Context, sel schemas.Selector) (schemas.ElementInfo, error) {
	return d.describe(sel), nil
}

func (d *stubDriver) ScrollIntoView(context.Context, schemas.Selector) error { return nil }
func (d *stubDriver) Click(context.Context, schemas.Selector) error          { return nil }
func (d *stubDriver) ForceClick(context.Context, schemas.Selector) error     { return nil }
func (d *stubDriver) Fill(context.Context, schemas.Selector, string) error   { return nil }

func (d *stubDriver) TypeKeys(_ context.Context, _ schemas.Selector, text string, _ time.Duration) error {
	d.typedText = append(d.typedText, text)
	return nil
}

func (d *stubDriver) PressKeys(_ context.Context, chord string) error {
	if d.onPress != nil {
		d.onPress(chord)
	}
	return nil
}

func (d *stubDriver) ScrollPage(context.Context, string) error { return nil }

func newTestResolver(d *stubDriver) *Resolver {
	return NewResolver(config.NewDefaultConfig(), d, zap.NewNop())
}

func TestXPathLiteral(t *testing.T) {
	assert.Equal(t, `'plain'`, xpathLiteral("plain"))
	assert.Equal(t, `"it's"`, xpathLiteral("it's"))
	assert.Equal(t, `'say "hi"'`, xpathLiteral(`say "hi"`))
	assert.Equal(t, `concat('it', "'", 's "x"')`, xpathLiteral(`it's "x"`))
}

func TestExtractIdentifier(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"DEE-9", "DEE-9", true},
		{"Status badge of DEE-9", "DEE-9", true},
		{"#123", "#123", true},
		{"issue #42 in the list", "#42", true},
		{"ABC42", "ABC42", true},
		{"plain words only", "", false},
		{"dee-9 lowercase", "", false},
	}
	for _, tc := range cases {
		got, ok := extractIdentifier(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestLongestWord(t *testing.T) {
	assert.Equal(t, "description", longestWord(`Add a "description" now.`))
	assert.Equal(t, "", longestWord("a an"), "too-short words are discarded")
}

func TestResolve_EmptyDescriptorIsNotFound(t *testing.T) {
	r := newTestResolver(newStubDriver())
	_, err := r.Resolve(context.Background(), "  ", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_ExhaustedCascadeIsNotFound(t *testing.T) {
	r := newTestResolver(newStubDriver())
	_, err := r.Resolve(context.Background(), "Completely absent thing", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_GenericButtonMatch(t *testing.T) {
	d := newStubDriver()
	d.visible = func(sel schemas.Selector) bool {
		return sel.ByXPath && strings.Contains(sel.Expr, "//button")
	}
	r := newTestResolver(d)

	handle, err := r.Resolve(context.Background(), "Submit report", false)
	require.NoError(t, err)
	assert.False(t, handle.PageRoot)
	assert.True(t, handle.Selector.ByXPath)
	assert.Contains(t, handle.Selector.Expr, "Submit report")
}

func TestResolve_DialogScopedMatchWinsWhenModalOpen(t *testing.T) {
	d := newStubDriver()
	d.visible = func(sel schemas.Selector) bool {
		return strings.HasPrefix(sel.Expr, dialogScope)
	}
	r := newTestResolver(d)

	handle, err := r.Resolve(context.Background(), "Confirm", true)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(handle.Selector.Expr, dialogScope),
		"dialog content takes precedence while a modal is open")

	_, err = r.Resolve(context.Background(), "Confirm", false)
	assert.ErrorIs(t, err, ErrNotFound,
		"without a modal the dialog-scoped pass never runs")
}

func TestResolve_LabelIsNeverReturned(t *testing.T) {
	d := newStubDriver()
	d.visible = func(sel schemas.Selector) bool {
		return strings.Contains(sel.Expr, "//label") ||
			strings.Contains(sel.Expr, "data-marionette-target")
	}
	d.describe = func(sel schemas.Selector) schemas.ElementInfo {
		if strings.Contains(sel.Expr, "//label") {
			return schemas.ElementInfo{Tag: "label"}
		}
		return schemas.ElementInfo{Tag: "input"}
	}

	t.Run("re-resolves to the associated input", func(t *testing.T) {
		d.evalJSON = func(expr string) string {
			if strings.Contains(expr, "getElementById") {
				return `"mn-label-ok"`
			}
			return ""
		}
		r := newTestResolver(d)

		handle, err := r.Resolve(context.Background(), "Email address", false)
		require.NoError(t, err)
		assert.NotContains(t, handle.Selector.Expr, "//label",
			"the label itself must never be the final handle")
		assert.Contains(t, handle.Selector.Expr, "mn-label-ok")
	})

	t.Run("yields NotFound when the label has no input", func(t *testing.T) {
		d.evalJSON = func(string) string { return "null" }
		r := newTestResolver(d)

		_, err := r.Resolve(context.Background(), "Email address", false)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestResolve_IdentifierSearchMacroReturnsPageRoot(t *testing.T) {
	d := newStubDriver()
	d.visible = func(sel schemas.Selector) bool {
		return strings.Contains(sel.Expr, "cmdk-input")
	}
	d.onPress = func(chord string) {
		if chord == "Enter" {
			d.url = "https://app.example.com/issue/DEE-9"
		}
	}
	r := newTestResolver(d)

	handle, err := r.Resolve(context.Background(), "DEE-9", false)
	require.NoError(t, err)
	assert.True(t, handle.PageRoot, "the search macro signals navigation with a page-root handle")
	assert.Contains(t, d.typedText, "DEE-9")
}

func TestFallbackFind_CoarseIntentBucket(t *testing.T) {
	d := newStubDriver()
	d.visible = func(sel schemas.Selector) bool {
		return strings.Contains(sel.Expr, "@type='submit'")
	}
	r := newTestResolver(d)

	handle, err := r.FallbackFind(context.Background(), "save the changes", false)
	require.NoError(t, err)
	assert.Contains(t, handle.Description, "fallback-submit-save")

	_, err = r.FallbackFind(context.Background(), "pet the cat", false)
	assert.ErrorIs(t, err, ErrNotFound)
}
