// internal/resolver/label.go
package resolver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

// A resolved <label> is never the real target: clicking or typing wants
// the control the label describes. Any strategy that lands on a label
// is transparently re-resolved to its input via the for attribute, then
// a nested input, then the next input in document order. If none of
// those exist the label resolution fails outright rather than handing
// back the label.

const labelScript = `
(function(expr, byXPath) {
	let label = null;
	try {
		if (byXPath) {
			label = document.evaluate(expr, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
		} else {
			label = document.querySelector(expr);
		}
	} catch (e) {
		return null;
	}
	if (!label) return null;

	const inputSel = 'input, textarea, select, [contenteditable="true"], [contenteditable=""], [role="textbox"]';
	let target = null;

	const forID = label.getAttribute('for');
	if (forID) target = document.getElementById(forID);

	if (!target) target = label.querySelector(inputSel);

	if (!target) {
		const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_ELEMENT);
		walker.currentNode = label;
		let node;
		while ((node = walker.nextNode())) {
			if (node.matches(inputSel)) { target = node; break; }
		}
	}
	if (!target) return null;

	const id = 'mn-label-' + Math.random().toString(36).slice(2, 10);
	target.setAttribute('data-marionette-target', id);
	return id;
})(%s, %t)`

// resolveLabel rewrites a label handle to its associated input. Handles
// that are not labels (or are page-root markers) pass through
// untouched.
func (r *Resolver) resolveLabel(ctx context.Context, handle schemas.ElementHandle) (schemas.ElementHandle, bool, error) {
	if handle.PageRoot {
		return handle, true, nil
	}
	info, err := r.driver.Describe(ctx, handle.Selector)
	if err != nil {
		// The element was visible a moment ago; treat a vanished one as
		// a failed strategy, not a hard error.
		return schemas.ElementHandle{}, false, nil
	}
	if info.Tag != "label" {
		return handle, true, nil
	}

	var tagID *string
	script := fmt.Sprintf(labelScript, mustJSON(handle.Selector.Expr), handle.Selector.ByXPath)
	if err := r.driver.Evaluate(ctx, script, &tagID); err != nil {
		return schemas.ElementHandle{}, false, err
	}
	if tagID == nil || *tagID == "" {
		r.logger.Debug("Label had no resolvable input.",
			zap.String("selector", handle.Selector.Expr))
		return schemas.ElementHandle{}, false, nil
	}

	sel := schemas.CSS(fmt.Sprintf(`[data-marionette-target=%s]`, mustJSON(*tagID)))
	resolved, ok := r.probe(ctx, sel, "label-input: "+handle.Description)
	return resolved, ok, nil
}
