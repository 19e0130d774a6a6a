// internal/resolver/resolver.go

// Package resolver maps a free-text target descriptor from the decision
// oracle (e.g. "DEE-9", "Issue title", "Status badge of DEE-9") to one
// concrete, visible element on the live page. The descriptor is natural
// language, never a selector, so resolution is a priority-ordered
// cascade of cheap heuristic strategies that short-circuits on the
// first visible match.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
)

// ErrNotFound is returned when every strategy in the cascade, including
// the identifier macro, failed to produce a visible element.
var ErrNotFound = errors.New("no element matched the target descriptor")

// probeTimeout bounds each strategy's visibility probe. Strategies must
// stay cheap: a slow probe multiplied across the cascade would stall
// the whole step.
const probeTimeout = 1500 * time.Millisecond

// strategy is one entry of the ordered cascade. Applies reports whether
// the strategy is worth running for this descriptor; Find either
// produces a handle or reports "try the next one".
type strategy struct {
	name    string
	applies func(descriptor string) bool
	find    func(ctx context.Context, r *Resolver, descriptor string, dialogScoped bool) (schemas.ElementHandle, bool, error)
}

func always(string) bool { return true }

// Resolver runs the strategy cascade against the page driver.
type Resolver struct {
	driver     schemas.PageDriver
	logger     *zap.Logger
	strategies []strategy
}

// NewResolver builds a resolver with the full strategy cascade in its
// fixed priority order.
func NewResolver(cfg *config.Config, driver schemas.PageDriver, logger *zap.Logger) *Resolver {
	r := &Resolver{
		driver: driver,
		logger: logger.Named("resolver"),
	}
	r.strategies = buildCascade()
	return r
}

// buildCascade assembles the ordered strategy list: field intents
// first, then identifier search, then the generic fallbacks. The
// dialog-scoped pass is handled inside Resolve, not as a list entry,
// because it re-runs the generic strategies with a different scope.
func buildCascade() []strategy {
	var out []strategy
	out = append(out, fieldIntentStrategies()...)
	out = append(out, strategy{
		name:    "identifier",
		applies: hasIdentifier,
		find: func(ctx context.Context, r *Resolver, d string, _ bool) (schemas.ElementHandle, bool, error) {
			return r.resolveIdentifier(ctx, d)
		},
	})
	out = append(out, genericStrategies()...)
	return out
}

// Resolve maps the descriptor to an element handle. modalOpen comes
// from the current perception snapshot; when set, the generic
// strategies run scoped inside the open dialog before the unscoped
// pass, because dialog content takes precedence over anything behind
// it.
func (r *Resolver) Resolve(ctx context.Context, descriptor string, modalOpen bool) (schemas.ElementHandle, error) {
	descriptor = strings.TrimSpace(descriptor)
	if descriptor == "" {
		return schemas.ElementHandle{}, fmt.Errorf("%w: empty descriptor", ErrNotFound)
	}

	run := func(dialogScoped bool) (schemas.ElementHandle, bool, error) {
		for _, s := range r.strategies {
			if !s.applies(descriptor) {
				continue
			}
			handle, ok, err := s.find(ctx, r, descriptor, dialogScoped)
			if err != nil {
				if ctx.Err() != nil {
					return schemas.ElementHandle{}, false, ctx.Err()
				}
				r.logger.Debug("Strategy errored, trying next.",
					zap.String("strategy", s.name), zap.Error(err))
				continue
			}
			if ok {
				r.logger.Debug("Resolved target.",
					zap.String("descriptor", descriptor),
					zap.String("strategy", s.name),
					zap.Bool("dialog_scoped", dialogScoped))
				return r.resolveLabel(ctx, handle)
			}
		}
		return schemas.ElementHandle{}, false, nil
	}

	if modalOpen {
		handle, ok, err := run(true)
		if err != nil {
			return schemas.ElementHandle{}, err
		}
		if ok {
			return handle, nil
		}
	}

	handle, ok, err := run(false)
	if err != nil {
		return schemas.ElementHandle{}, err
	}
	if ok {
		return handle, nil
	}
	return schemas.ElementHandle{}, fmt.Errorf("%w: %q", ErrNotFound, descriptor)
}

// probe applies the uniform visibility rule for every strategy: at
// least one match exists and the first one passes a short visibility
// probe. A failed probe means "try the next strategy", never an error.
func (r *Resolver) probe(ctx context.Context, sel schemas.Selector, description string) (schemas.ElementHandle, bool) {
	n, err := r.driver.CountVisible(ctx, sel)
	if err != nil || n == 0 {
		return schemas.ElementHandle{}, false
	}
	visible, err := r.driver.ProbeVisible(ctx, sel, probeTimeout)
	if err != nil || !visible {
		return schemas.ElementHandle{}, false
	}
	return schemas.ElementHandle{Selector: sel, Description: description}, true
}

// xpathLiteral quotes s as an XPath string literal, handling embedded
// quotes via concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

const xpUpper = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
const xpLower = "abcdefghijklmnopqrstuvwxyz"

// xpContainsLower builds a case-insensitive contains() predicate on an
// XPath value expression.
func xpContainsLower(valueExpr, needle string) string {
	return fmt.Sprintf("contains(translate(%s, '%s', '%s'), %s)",
		valueExpr, xpUpper, xpLower, xpathLiteral(strings.ToLower(needle)))
}

// dialogScope is the XPath prefix that restricts a search to open
// modal/dialog content.
const dialogScope = `(//*[@role='dialog' or @role='alertdialog' or @aria-modal='true' or (self::dialog and @open)])`

// scoped prefixes an XPath pattern (which must start with "//") with
// the dialog scope when requested.
func scoped(pattern string, dialogScoped bool) schemas.Selector {
	if dialogScoped {
		return schemas.XPath(dialogScope + pattern)
	}
	return schemas.XPath(pattern)
}

// genericStrategies is the fixed fallback chain, in priority order:
// exact button, regex button, exact link, regex link, exact text,
// placeholder, label, textbox role, regex text anywhere, aria-label
// substring.
func genericStrategies() []strategy {
	type pattern struct {
		name  string
		build func(d string) string
	}
	patterns := []pattern{
		{"button-exact", func(d string) string {
			return fmt.Sprintf(`//button[normalize-space(.)=%[1]s] | //*[@role='button'][normalize-space(.)=%[1]s or @aria-label=%[1]s]`,
				xpathLiteral(d))
		}},
		{"button-regex", func(d string) string {
			return fmt.Sprintf(`//button[%[1]s] | //*[@role='button'][%[1]s or %[2]s]`,
				xpContainsLower("normalize-space(.)", d), xpContainsLower("@aria-label", d))
		}},
		{"link-exact", func(d string) string {
			return fmt.Sprintf(`//a[normalize-space(.)=%[1]s] | //*[@role='link'][normalize-space(.)=%[1]s]`,
				xpathLiteral(d))
		}},
		{"link-regex", func(d string) string {
			return fmt.Sprintf(`//a[%[1]s] | //*[@role='link'][%[1]s]`,
				xpContainsLower("normalize-space(.)", d))
		}},
		{"text-exact", func(d string) string {
			return fmt.Sprintf(`//*[not(self::script or self::style)][normalize-space(text())=%s]`,
				xpathLiteral(d))
		}},
		{"placeholder", func(d string) string {
			return fmt.Sprintf(`//*[@placeholder][%s]`, xpContainsLower("@placeholder", d))
		}},
		{"label", func(d string) string {
			return fmt.Sprintf(`//label[%s]`, xpContainsLower("normalize-space(.)", d))
		}},
		{"textbox-regex", func(d string) string {
			return fmt.Sprintf(`//*[@role='textbox' or self::input or self::textarea][%s or %s]`,
				xpContainsLower("@aria-label", d), xpContainsLower("@placeholder", d))
		}},
		{"text-regex", func(d string) string {
			// Leaf elements only; an unconstrained contains() on text
			// would match every ancestor up to body.
			return fmt.Sprintf(`//*[not(*)][not(self::script or self::style)][%s]`,
				xpContainsLower("normalize-space(.)", d))
		}},
		{"aria-label-substring", func(d string) string {
			return fmt.Sprintf(`//*[@aria-label][%s]`, xpContainsLower("@aria-label", d))
		}},
	}

	out := make([]strategy, 0, len(patterns))
	for _, p := range patterns {
		p := p
		out = append(out, strategy{
			name:    p.name,
			applies: always,
			find: func(ctx context.Context, r *Resolver, d string, dialogScoped bool) (schemas.ElementHandle, bool, error) {
				sel := scoped(p.build(d), dialogScoped)
				handle, ok := r.probe(ctx, sel, p.name+": "+d)
				return handle, ok, nil
			},
		})
	}
	return out
}
