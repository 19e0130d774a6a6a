// internal/resolver/identifier.go
package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

// Identifier resolution: descriptors carrying an ID-like token
// ("DEE-9", "#123", "ABC42") get a dedicated search chain, because the
// token is usually a precise key into the page even when the rest of
// the descriptor is vague.

var identifierPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[A-Z]{2,10}-\d+\b`),
	regexp.MustCompile(`#\d+`),
	regexp.MustCompile(`\b[A-Z]+\d+\b`),
}

// extractIdentifier pulls the first ID-like token out of a descriptor.
func extractIdentifier(descriptor string) (string, bool) {
	for _, p := range identifierPatterns {
		if m := p.FindString(descriptor); m != "" {
			return m, true
		}
	}
	return "", false
}

func hasIdentifier(descriptor string) bool {
	_, ok := extractIdentifier(descriptor)
	return ok
}

// resolveIdentifier runs the identifier chain: exact visible text under
// a link whose href carries the id, then data-attribute lookup, then an
// anchor-href scan, then the command-palette navigation macro as a last
// resort.
func (r *Resolver) resolveIdentifier(ctx context.Context, descriptor string) (schemas.ElementHandle, bool, error) {
	id, ok := extractIdentifier(descriptor)
	if !ok {
		return schemas.ElementHandle{}, false, nil
	}
	hrefToken := strings.TrimPrefix(id, "#")

	// Exact visible text whose nearest ancestor link carries the id.
	xp := fmt.Sprintf(`//a[contains(@href, %[2]s)]//*[normalize-space(text())=%[1]s] | //a[contains(@href, %[2]s)][normalize-space(.)=%[1]s]`,
		xpathLiteral(id), xpathLiteral(hrefToken))
	if handle, found := r.probe(ctx, schemas.XPath(xp), "identifier-linked-text: "+id); found {
		return handle, true, nil
	}

	// Data-attribute lookup.
	css := fmt.Sprintf(`[data-id=%[1]q], [data-key=%[1]q], [data-issue-id=%[1]q], [data-testid*=%[1]q]`, id)
	if handle, found := r.probe(ctx, schemas.CSS(css), "identifier-data-attr: "+id); found {
		return handle, true, nil
	}

	// Bounded anchor-href scan: any link whose href embeds the token.
	xp = fmt.Sprintf(`//a[contains(@href, %s)]`, xpathLiteral(hrefToken))
	if handle, found := r.probe(ctx, schemas.XPath(xp), "identifier-href: "+id); found {
		return handle, true, nil
	}

	// Last resort: navigate to the entity through the command palette.
	if r.openViaSearch(ctx, id) {
		return schemas.ElementHandle{
			Description: "identifier-search-macro: " + id,
			PageRoot:    true,
		}, true, nil
	}
	return schemas.ElementHandle{}, false, nil
}

// paletteInput matches the search box of the usual command-palette
// implementations.
var paletteInput = schemas.CSS(`[cmdk-input], [role="dialog"] input[type="text"], [role="dialog"] input[type="search"], [role="dialog"] input:not([type]), [role="combobox"][contenteditable]`)

// openViaSearch opens the app's command palette, types the identifier
// and confirms, treating a URL change toward an entity page as
// success. It cannot land on a concrete element; the caller returns a
// page-root handle so the executor knows navigation happened and the
// click itself is moot.
func (r *Resolver) openViaSearch(ctx context.Context, id string) bool {
	startURL, err := r.driver.CurrentURL(ctx)
	if err != nil {
		return false
	}

	for _, chord := range []string{"ctrl+k", "meta+k", "/"} {
		if err := r.driver.PressKeys(ctx, chord); err != nil {
			continue
		}
		if visible, _ := r.driver.ProbeVisible(ctx, paletteInput, time.Second); visible {
			break
		}
	}
	if visible, _ := r.driver.ProbeVisible(ctx, paletteInput, time.Second); !visible {
		return false
	}

	if err := r.driver.TypeKeys(ctx, paletteInput, id, 30*time.Millisecond); err != nil {
		r.logger.Debug("Failed to type into command palette.", zap.Error(err))
		return false
	}

	// Let the palette surface results before confirming.
	_ = r.driver.WaitStable(ctx, 600*time.Millisecond)
	if err := r.driver.PressKeys(ctx, "Enter"); err != nil {
		return false
	}
	_ = r.driver.WaitStable(ctx, 800*time.Millisecond)

	endURL, err := r.driver.CurrentURL(ctx)
	if err != nil {
		return false
	}
	navigated := endURL != startURL &&
		(strings.Contains(endURL, "/issue/") ||
			strings.Contains(endURL, "/issues/") ||
			strings.Contains(strings.ToLower(endURL), strings.ToLower(strings.TrimPrefix(id, "#"))))
	if navigated {
		r.logger.Info("Opened entity via search macro.",
			zap.String("id", id), zap.String("url", endURL))
		return true
	}

	// Close whatever the macro left open so the next strategy starts
	// from a clean page.
	_ = r.driver.PressKeys(ctx, "Escape")
	return false
}
