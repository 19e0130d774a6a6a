// internal/browser/driver.go
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

// tagAttr is the temporary attribute used to bridge arbitrary CSS/XPath
// queries into concrete chromedp targets. Matched elements are tagged in
// one JS evaluation and addressed as [tagAttr="<id>"] afterwards, so a
// query resolved once stays pinned even if sibling content shifts.
const tagAttr = "data-marionette-id"

// findScript locates matches for a CSS or XPath expression, filters them
// through the uniform visibility check (non-zero box area, not
// display:none / visibility:hidden / opacity:0), and optionally tags the
// first visible match.
const findScript = `
(function(expr, byXPath, tag) {
	const isVisible = (el) => {
		if (!(el instanceof Element)) return false;
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	};

	let candidates = [];
	try {
		if (byXPath) {
			const it = document.evaluate(expr, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
			for (let i = 0; i < it.snapshotLength; i++) candidates.push(it.snapshotItem(i));
		} else {
			candidates = Array.from(document.querySelectorAll(expr));
		}
	} catch (e) {
		return { count: 0, error: String(e) };
	}

	const visible = candidates.filter(isVisible);
	if (tag && visible.length > 0) {
		const id = 'mn-' + Date.now().toString(36) + '-' + Math.random().toString(36).slice(2, 10);
		visible[0].setAttribute('%s', id);
		return { count: visible.length, tagId: id };
	}
	return { count: visible.length };
})(%s, %t, %t)`

type findResult struct {
	Count int    `json:"count"`
	TagID string `json:"tagId,omitempty"`
	Error string `json:"error,omitempty"`
}

// evalFind runs findScript for the selector.
func (s *Session) evalFind(ctx context.Context, sel schemas.Selector, tag bool) (findResult, error) {
	exprJSON, err := json.Marshal(sel.Expr)
	if err != nil {
		return findResult{}, err
	}
	script := fmt.Sprintf(findScript, tagAttr, string(exprJSON), sel.ByXPath, tag)

	var res findResult
	if err := s.run(ctx, chromedp.Evaluate(script, &res)); err != nil {
		return findResult{}, fmt.Errorf("element query failed: %w", err)
	}
	return res, nil
}

// tagFirst tags the first visible match of sel and returns the pinned
// CSS selector for it, or "" if nothing visible matched.
func (s *Session) tagFirst(ctx context.Context, sel schemas.Selector) (string, error) {
	res, err := s.evalFind(ctx, sel, true)
	if err != nil {
		return "", err
	}
	if res.TagID == "" {
		return "", nil
	}
	return fmt.Sprintf(`[%s=%q]`, tagAttr, res.TagID), nil
}

// untag removes a pinned tag. Best effort; the tags are harmless if a
// navigation wipes them first.
func (s *Session) untag(ctx context.Context, pinned string) {
	script := fmt.Sprintf(
		`(function(){const el=document.querySelector(%q);if(el)el.removeAttribute(%q);})()`,
		pinned, tagAttr)
	if err := s.run(ctx, chromedp.Evaluate(script, nil)); err != nil {
		s.logger.Debug("Failed to remove element tag.", zap.Error(err))
	}
}

// -- schemas.PageDriver: navigation and page identity --

// Navigate loads the URL and waits for the page to stabilize.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating to URL", zap.String("url", url))

	navTimeout := s.cfg.Network.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 60 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	if err := s.run(navCtx, chromedp.Navigate(url)); err != nil {
		if navCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return fmt.Errorf("navigation timed out after %s: %w", navTimeout, err)
		}
		return fmt.Errorf("navigation failed: %w", err)
	}

	if err := s.WaitStable(ctx, 0); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// CurrentURL returns the page's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return url, nil
}

// Title returns the page title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return title, nil
}

// -- schemas.PageDriver: observation --

// Evaluate runs a JavaScript expression in the page.
func (s *Session) Evaluate(ctx context.Context, expr string, out any) error {
	return s.run(ctx, chromedp.Evaluate(expr, out))
}

// Screenshot captures the viewport to a PNG file, creating parent
// directories as needed.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	shotCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := s.run(shotCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return fmt.Errorf("screenshot capture failed: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	s.logger.Debug("Screenshot captured.", zap.String("path", path))
	return nil
}

// -- schemas.PageDriver: element queries --

// CountVisible returns how many elements matching sel are visible.
func (s *Session) CountVisible(ctx context.Context, sel schemas.Selector) (int, error) {
	res, err := s.evalFind(ctx, sel, false)
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

// ProbeVisible polls for a visible match until the timeout elapses.
// A false result is "not there", never an error.
func (s *Session) ProbeVisible(ctx context.Context, sel schemas.Selector, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		n, err := s.CountVisible(probeCtx, sel)
		if err == nil && n > 0 {
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		select {
		case <-probeCtx.Done():
			return false, nil
		case <-ticker.C:
		}
	}
}

const describeScript = `
(function(pinned) {
	const el = document.querySelector(pinned);
	if (!el) return null;
	const attrs = {};
	for (const name of ['id', 'placeholder', 'aria-label', 'href', 'name', 'class']) {
		const v = el.getAttribute(name);
		if (v) attrs[name] = v;
	}
	let value = '';
	if ('value' in el && typeof el.value === 'string') {
		value = el.value;
	} else {
		value = (el.textContent || '').trim();
	}
	return {
		tag: el.tagName.toLowerCase(),
		type: (el.getAttribute('type') || '').toLowerCase(),
		role: el.getAttribute('role') || '',
		contentEditable: el.isContentEditable === true,
		value: value.slice(0, 512),
		attrs: attrs,
	};
})(%s)`

// Describe inspects the first visible match of sel.
func (s *Session) Describe(ctx context.Context, sel schemas.Selector) (schemas.ElementInfo, error) {
	pinned, err := s.tagFirst(ctx, sel)
	if err != nil {
		return schemas.ElementInfo{}, err
	}
	if pinned == "" {
		return schemas.ElementInfo{}, fmt.Errorf("describe: no visible match for %q", sel.Expr)
	}
	defer s.untag(ctx, pinned)

	pinnedJSON, _ := json.Marshal(pinned)
	var info schemas.ElementInfo
	if err := s.run(ctx, chromedp.Evaluate(fmt.Sprintf(describeScript, string(pinnedJSON)), &info)); err != nil {
		return schemas.ElementInfo{}, fmt.Errorf("describe failed: %w", err)
	}
	return info, nil
}

// -- schemas.PageDriver: interaction --

// ScrollIntoView centers the first visible match in the viewport.
func (s *Session) ScrollIntoView(ctx context.Context, sel schemas.Selector) error {
	pinned, err := s.tagFirst(ctx, sel)
	if err != nil {
		return err
	}
	if pinned == "" {
		return fmt.Errorf("scroll into view: no visible match for %q", sel.Expr)
	}
	defer s.untag(ctx, pinned)

	script := fmt.Sprintf(
		`(function(){const el=document.querySelector(%q);if(el)el.scrollIntoView({block:'center',behavior:'instant'});})()`,
		pinned)
	return s.run(ctx, chromedp.Evaluate(script, nil))
}

// Click performs a real (hit-tested) click on the first visible match.
func (s *Session) Click(ctx context.Context, sel schemas.Selector) error {
	pinned, err := s.tagFirst(ctx, sel)
	if err != nil {
		return err
	}
	if pinned == "" {
		return fmt.Errorf("click: no visible match for %q", sel.Expr)
	}
	defer s.untag(ctx, pinned)

	clickCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.run(clickCtx, chromedp.Tasks{
		chromedp.ScrollIntoView(pinned, chromedp.ByQuery),
		chromedp.WaitVisible(pinned, chromedp.ByQuery),
		chromedp.Click(pinned, chromedp.ByQuery),
	})
}

// ForceClick dispatches a synthetic click via script, bypassing
// hit-testing. Fallback for elements a timed click cannot reach.
func (s *Session) ForceClick(ctx context.Context, sel schemas.Selector) error {
	pinned, err := s.tagFirst(ctx, sel)
	if err != nil {
		return err
	}
	if pinned == "" {
		return fmt.Errorf("force click: no visible match for %q", sel.Expr)
	}
	defer s.untag(ctx, pinned)

	script := fmt.Sprintf(`(function(){const el=document.querySelector(%q);if(el)el.click();})()`, pinned)
	return s.run(ctx, chromedp.Evaluate(script, nil))
}

const fillScript = `
(function(pinned, text) {
	const el = document.querySelector(pinned);
	if (!el) return false;
	el.focus();
	const proto = el.tagName === 'TEXTAREA' ? window.HTMLTextAreaElement.prototype : window.HTMLInputElement.prototype;
	const setter = Object.getOwnPropertyDescriptor(proto, 'value');
	if (setter && setter.set) {
		setter.set.call(el, text);
	} else {
		el.value = text;
	}
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})(%s, %s)`

// Fill sets an input's value via the native setter and fires the input
// and change events frameworks listen for.
func (s *Session) Fill(ctx context.Context, sel schemas.Selector, text string) error {
	pinned, err := s.tagFirst(ctx, sel)
	if err != nil {
		return err
	}
	if pinned == "" {
		return fmt.Errorf("fill: no visible match for %q", sel.Expr)
	}
	defer s.untag(ctx, pinned)

	pinnedJSON, _ := json.Marshal(pinned)
	textJSON, _ := json.Marshal(text)
	var ok bool
	if err := s.run(ctx, chromedp.Evaluate(fmt.Sprintf(fillScript, string(pinnedJSON), string(textJSON)), &ok)); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("fill: element vanished before write")
	}
	return nil
}

// TypeKeys focuses the first visible match and types text
// keystroke-by-keystroke.
func (s *Session) TypeKeys(ctx context.Context, sel schemas.Selector, text string, perKey time.Duration) error {
	pinned, err := s.tagFirst(ctx, sel)
	if err != nil {
		return err
	}
	if pinned == "" {
		return fmt.Errorf("type: no visible match for %q", sel.Expr)
	}
	defer s.untag(ctx, pinned)

	if err := s.run(ctx, chromedp.Focus(pinned, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to focus element: %w", err)
	}

	if perKey <= 0 {
		perKey = 20 * time.Millisecond
	}
	for _, r := range text {
		if err := s.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return fmt.Errorf("keystroke failed: %w", err)
		}
		select {
		case <-time.After(perKey):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// namedKeys maps chord key names onto the raw key values chromedp's kb
// layer understands.
var namedKeys = map[string]string{
	"enter":     kb.Enter,
	"escape":    kb.Escape,
	"tab":       kb.Tab,
	"backspace": kb.Backspace,
	"delete":    kb.Delete,
	"space":     " ",
	"arrowdown": kb.ArrowDown,
	"arrowup":   kb.ArrowUp,
}

// PressKeys sends a key chord such as "ctrl+Enter", "Escape" or "c".
// "mod" is accepted as an alias for the platform primary modifier and
// maps to ctrl.
func (s *Session) PressKeys(ctx context.Context, chord string) error {
	parts := strings.Split(chord, "+")

	var modifiers input.Modifier
	keyPart := parts[len(parts)-1]
	for _, p := range parts[:len(parts)-1] {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "ctrl", "control", "mod":
			modifiers |= input.ModifierCtrl
		case "shift":
			modifiers |= input.ModifierShift
		case "alt":
			modifiers |= input.ModifierAlt
		case "meta", "cmd":
			modifiers |= input.ModifierCommand
		default:
			return fmt.Errorf("unknown modifier %q in chord %q", p, chord)
		}
	}

	key := keyPart
	if named, ok := namedKeys[strings.ToLower(strings.TrimSpace(keyPart))]; ok {
		key = named
	}

	opts := []chromedp.KeyOption{}
	if modifiers != 0 {
		opts = append(opts, chromedp.KeyModifiers(modifiers))
	}
	if err := s.run(ctx, chromedp.KeyEvent(key, opts...)); err != nil {
		return fmt.Errorf("key chord %q failed: %w", chord, err)
	}
	return nil
}

// ScrollPage scrolls the viewport: "up", "down", "top", "bottom".
func (s *Session) ScrollPage(ctx context.Context, direction string) error {
	var script string
	switch direction {
	case "down", "":
		script = `window.scrollBy({top: window.innerHeight * 0.8, behavior: 'instant'});`
	case "up":
		script = `window.scrollBy({top: -window.innerHeight * 0.8, behavior: 'instant'});`
	case "bottom":
		script = `window.scrollTo({top: document.body.scrollHeight, behavior: 'instant'});`
	case "top":
		script = `window.scrollTo({top: 0, behavior: 'instant'});`
	default:
		return fmt.Errorf("invalid scroll direction: %s (supported: up, down, top, bottom)", direction)
	}

	scrollCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.run(scrollCtx, chromedp.Evaluate(script, nil))
}
