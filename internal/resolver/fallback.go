// internal/resolver/fallback.go
package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

// FallbackFind is a separate last-resort bucket, invoked by the
// executor only after the full cascade has failed: a handful of coarse
// intent words mapped to blunt selectors, plus a generic in-modal
// substring search. Kept apart from the cascade so its very loose
// matches can never shadow a precise strategy.

type fallbackRule struct {
	name    string
	applies *regexp.Regexp
	sel     schemas.Selector
}

var fallbackRules = []fallbackRule{
	{
		name:    "more-menu",
		applies: regexp.MustCompile(`(?i)\b(more|menu|options|actions|overflow|\.\.\.|…)\b`),
		sel: schemas.XPath(`//button[@aria-label and (` +
			xpContainsLower("@aria-label", "more") + ` or ` + xpContainsLower("@aria-label", "menu") + ` or ` + xpContainsLower("@aria-label", "options") +
			`)] | //*[@aria-haspopup='menu' or @aria-haspopup='true']`),
	},
	{
		name:    "create-new",
		applies: regexp.MustCompile(`(?i)\b(create|new|add)\b`),
		sel: schemas.XPath(`//button[` +
			xpContainsLower("normalize-space(.)", "create") + ` or ` + xpContainsLower("normalize-space(.)", "new") + ` or ` + xpContainsLower("@aria-label", "create") + ` or ` + xpContainsLower("@aria-label", "new") +
			`]`),
	},
	{
		name:    "submit-save",
		applies: regexp.MustCompile(`(?i)\b(submit|save|confirm|apply|done|ok)\b`),
		sel: schemas.XPath(`//button[@type='submit'] | //button[` +
			xpContainsLower("normalize-space(.)", "save") + ` or ` + xpContainsLower("normalize-space(.)", "submit") + ` or ` + xpContainsLower("normalize-space(.)", "done") +
			`]`),
	},
}

// FallbackFind tries the coarse-intent rules, then an in-modal
// substring text search when a dialog is open.
func (r *Resolver) FallbackFind(ctx context.Context, descriptor string, modalOpen bool) (schemas.ElementHandle, error) {
	for _, rule := range fallbackRules {
		if !rule.applies.MatchString(descriptor) {
			continue
		}
		if handle, ok := r.probe(ctx, rule.sel, "fallback-"+rule.name+": "+descriptor); ok {
			return r.passThroughLabel(ctx, handle)
		}
	}

	if modalOpen {
		// Loose substring match on any leaf text inside the dialog,
		// using the longest word of the descriptor as the needle.
		needle := longestWord(descriptor)
		if needle != "" {
			xp := dialogScope + fmt.Sprintf(`//*[not(*)][%s]`, xpContainsLower("normalize-space(.)", needle))
			if handle, ok := r.probe(ctx, schemas.XPath(xp), "fallback-modal-text: "+descriptor); ok {
				return r.passThroughLabel(ctx, handle)
			}
		}
	}
	return schemas.ElementHandle{}, fmt.Errorf("%w: %q (fallback bucket exhausted)", ErrNotFound, descriptor)
}

func (r *Resolver) passThroughLabel(ctx context.Context, handle schemas.ElementHandle) (schemas.ElementHandle, error) {
	resolved, ok, err := r.resolveLabel(ctx, handle)
	if err != nil {
		return schemas.ElementHandle{}, err
	}
	if !ok {
		return schemas.ElementHandle{}, fmt.Errorf("%w: %q", ErrNotFound, handle.Description)
	}
	return resolved, nil
}

func longestWord(s string) string {
	best := ""
	for _, w := range strings.Fields(s) {
		w = strings.Trim(w, `"'.,:;!?()`)
		if len(w) > len(best) {
			best = w
		}
	}
	if len(best) < 3 {
		return ""
	}
	return best
}
