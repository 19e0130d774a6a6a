// internal/resolver/intents.go
package resolver

import (
	"context"
	"fmt"
	"regexp"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

// Field-intent dispatch: a descriptor naming a well-known field kind
// ("Issue title", "add a description", ...) routes to a dedicated
// sub-search tuned for how that field usually looks, before any generic
// matching runs. The table is ordered; the first matching intent wins.

var (
	reIntentTitle        = regexp.MustCompile(`(?i)\btitle\b`)
	reIntentDescription  = regexp.MustCompile(`(?i)\bdescription\b`)
	reIntentComment      = regexp.MustCompile(`(?i)\bcomment\b`)
	reIntentStatus       = regexp.MustCompile(`(?i)\bstatus\b`)
	reIntentAssignee     = regexp.MustCompile(`(?i)\bassign(ee)?\b`)
	reIntentNotification = regexp.MustCompile(`(?i)\b(notification|inbox)s?\b`)
)

func fieldIntentStrategies() []strategy {
	return []strategy{
		{
			name:    "intent-title",
			applies: reIntentTitle.MatchString,
			find: func(ctx context.Context, r *Resolver, d string, dialogScoped bool) (schemas.ElementHandle, bool, error) {
				return r.findIntentField(ctx, d, dialogScoped, `//input[%[1]s or %[2]s] | //textarea[%[1]s or %[2]s] | //*[@contenteditable='true' or @contenteditable=''][%[2]s]`,
					"title")
			},
		},
		{
			name:    "intent-description",
			applies: reIntentDescription.MatchString,
			find: func(ctx context.Context, r *Resolver, d string, dialogScoped bool) (schemas.ElementHandle, bool, error) {
				return r.findDescriptionField(ctx, d, dialogScoped)
			},
		},
		{
			name:    "intent-comment",
			applies: reIntentComment.MatchString,
			find: func(ctx context.Context, r *Resolver, d string, dialogScoped bool) (schemas.ElementHandle, bool, error) {
				return r.findIntentField(ctx, d, dialogScoped, `//textarea[%[1]s or %[2]s] | //input[%[1]s or %[2]s] | //*[@contenteditable='true' or @contenteditable=''][%[2]s]`,
					"comment")
			},
		},
		{
			name:    "intent-status",
			applies: reIntentStatus.MatchString,
			find: func(ctx context.Context, r *Resolver, d string, dialogScoped bool) (schemas.ElementHandle, bool, error) {
				return r.findControl(ctx, d, dialogScoped, "status")
			},
		},
		{
			name:    "intent-assignee",
			applies: reIntentAssignee.MatchString,
			find: func(ctx context.Context, r *Resolver, d string, dialogScoped bool) (schemas.ElementHandle, bool, error) {
				return r.findControl(ctx, d, dialogScoped, "assign")
			},
		},
		{
			name:    "intent-notification",
			applies: reIntentNotification.MatchString,
			find: func(ctx context.Context, r *Resolver, d string, dialogScoped bool) (schemas.ElementHandle, bool, error) {
				return r.findControl(ctx, d, dialogScoped, "notification")
			},
		},
	}
}

// findIntentField probes an editable-field pattern whose %[1]s slot is
// a placeholder predicate and %[2]s an aria-label predicate, both
// matching the intent keyword.
func (r *Resolver) findIntentField(ctx context.Context, descriptor string, dialogScoped bool, pattern, keyword string) (schemas.ElementHandle, bool, error) {
	xp := fmt.Sprintf(pattern,
		xpContainsLower("@placeholder", keyword),
		xpContainsLower("@aria-label", keyword))
	handle, ok := r.probe(ctx, scoped(xp, dialogScoped), "intent-"+keyword+": "+descriptor)
	return handle, ok, nil
}

// findControl probes clickable controls (buttons, comboboxes, badges)
// whose label or text names the intent keyword.
func (r *Resolver) findControl(ctx context.Context, descriptor string, dialogScoped bool, keyword string) (schemas.ElementHandle, bool, error) {
	xp := fmt.Sprintf(
		`//button[%[1]s or %[2]s] | //*[@role='button' or @role='combobox' or @role='listbox'][%[1]s or %[2]s] | //*[@aria-label][%[1]s]`,
		xpContainsLower("@aria-label", keyword),
		xpContainsLower("normalize-space(.)", keyword))
	handle, ok := r.probe(ctx, scoped(xp, dialogScoped), "intent-"+keyword+": "+descriptor)
	return handle, ok, nil
}

// descriptionScript picks the description editor: prefer an empty or
// short contenteditable node, skipping anything whose placeholder
// mentions title or comment, and anything already holding more than
// ~100 characters. The length check keeps the resolver from targeting
// an already-filled field, which XPath alone cannot express, so this
// one runs as page script and tags its pick.
const descriptionScript = `
(function(inDialog) {
	const isVisible = (el) => {
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	};
	let root = document;
	if (inDialog) {
		root = Array.from(document.querySelectorAll('[role="dialog"], [role="alertdialog"], [aria-modal="true"], dialog[open]')).find(isVisible);
		if (!root) return null;
	}

	const candidates = Array.from(root.querySelectorAll(
		'[contenteditable="true"], [contenteditable=""], textarea, [role="textbox"]'));
	const scored = [];
	for (const el of candidates) {
		if (!isVisible(el)) continue;
		const hint = ((el.getAttribute('placeholder') || '') + ' ' + (el.getAttribute('aria-label') || '')).toLowerCase();
		if (hint.includes('title') || hint.includes('comment')) continue;
		const text = (el.value !== undefined && el.value !== null && typeof el.value === 'string')
			? el.value : (el.innerText || '');
		if (text.trim().length > 100) continue;
		const preferred = hint.includes('description') ? 0 : 1;
		scored.push({ el: el, rank: preferred, len: text.trim().length });
	}
	if (scored.length === 0) return null;
	scored.sort((a, b) => a.rank - b.rank || a.len - b.len);

	const id = 'mn-desc-' + Math.random().toString(36).slice(2, 10);
	scored[0].el.setAttribute('data-marionette-target', id);
	return id;
})(%t)`

func (r *Resolver) findDescriptionField(ctx context.Context, descriptor string, dialogScoped bool) (schemas.ElementHandle, bool, error) {
	var tagID *string
	if err := r.driver.Evaluate(ctx, fmt.Sprintf(descriptionScript, dialogScoped), &tagID); err != nil {
		return schemas.ElementHandle{}, false, err
	}
	if tagID == nil || *tagID == "" {
		return schemas.ElementHandle{}, false, nil
	}
	sel := schemas.CSS(fmt.Sprintf(`[data-marionette-target=%s]`, mustJSON(*tagID)))
	handle, ok := r.probe(ctx, sel, "intent-description: "+descriptor)
	return handle, ok, nil
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(data)
}
