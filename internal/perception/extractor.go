// internal/perception/extractor.go

// Package perception turns live page state into a bounded, serializable
// snapshot for the decision oracle and the element resolver. Extraction
// is deliberately infallible: on any failure it degrades to a minimal
// URL/title snapshot rather than surfacing an error into the step loop.
package perception

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
)

// ModeElements and ModeTree select the snapshot shape.
const (
	ModeElements = "elements"
	ModeTree     = "tree"
)

// elementsScript collects visible interactive elements in document
// order. Visibility is the uniform check used everywhere: non-zero box
// area and not display:none / visibility:hidden / opacity:0. Text is
// truncated at the source so snapshot size stays bounded even before
// the element cap applies.
const elementsScript = `
(function(maxElements) {
	const isVisible = (el) => {
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	};
	const truncate = (s, n) => {
		s = (s || '').replace(/\s+/g, ' ').trim();
		return s.length > n ? s.slice(0, n) + '…' : s;
	};

	const modalSel = '[role="dialog"], [role="alertdialog"], dialog[open], [aria-modal="true"]';
	const openModals = Array.from(document.querySelectorAll(modalSel)).filter(isVisible);

	const interactiveSel = [
		'a[href]', 'button', 'input', 'textarea', 'select',
		'[role="button"]', '[role="link"]', '[role="textbox"]', '[role="combobox"]',
		'[role="menuitem"]', '[role="option"]', '[role="tab"]', '[role="checkbox"]',
		'[role="radio"]', '[role="switch"]',
		'[contenteditable="true"]', '[contenteditable=""]',
		'label', 'summary', '[onclick]', '[tabindex]:not([tabindex="-1"])',
	].join(', ');

	const seen = new Set();
	const elements = [];
	let truncated = false;

	for (const el of document.querySelectorAll(interactiveSel)) {
		if (seen.has(el)) continue;
		seen.add(el);
		if (!isVisible(el)) continue;

		if (elements.length >= maxElements) {
			truncated = true;
			break;
		}

		const rect = el.getBoundingClientRect();
		const tag = el.tagName.toLowerCase();
		elements.push({
			index: elements.length,
			tag: tag,
			role: el.getAttribute('role') || '',
			text: truncate(el.innerText || el.value || '', 80),
			ariaLabel: truncate(el.getAttribute('aria-label') || '', 80),
			placeholder: truncate(el.getAttribute('placeholder') || '', 80),
			href: tag === 'a' ? (el.getAttribute('href') || '') : '',
			editable: tag === 'input' || tag === 'textarea' || tag === 'select' || el.isContentEditable === true,
			inModal: openModals.some((m) => m.contains(el)),
			box: { x: rect.x, y: rect.y, width: rect.width, height: rect.height },
		});
	}

	return { modalOpen: openModals.length > 0, truncated: truncated, elements: elements };
})(%d)`

// treeScript builds a trimmed role/name hierarchy: interactive and
// container nodes only, depth-first, presentation-only tags skipped.
const treeScript = `
(function(maxNodes) {
	const SKIP = new Set(['STYLE', 'SCRIPT', 'META', 'LINK', 'NOSCRIPT', 'TEMPLATE', 'SVG', 'PATH']);
	const IMPLICIT = {
		'A': 'link', 'BUTTON': 'button', 'INPUT': 'textbox', 'TEXTAREA': 'textbox',
		'SELECT': 'combobox', 'NAV': 'navigation', 'MAIN': 'main', 'HEADER': 'banner',
		'FORM': 'form', 'ASIDE': 'complementary', 'DIALOG': 'dialog', 'H1': 'heading',
		'H2': 'heading', 'H3': 'heading', 'UL': 'list', 'OL': 'list', 'LI': 'listitem',
		'TABLE': 'table', 'IMG': 'img', 'LABEL': 'label',
	};
	const isVisible = (el) => {
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	};
	const nameOf = (el) => {
		const n = el.getAttribute('aria-label') || el.getAttribute('placeholder') ||
			(el.children.length === 0 ? (el.innerText || '') : '');
		return n.replace(/\s+/g, ' ').trim().slice(0, 80);
	};

	let count = 0;
	const walk = (el) => {
		if (count >= maxNodes || SKIP.has(el.tagName)) return null;
		if (!isVisible(el)) return null;

		const role = el.getAttribute('role') || IMPLICIT[el.tagName] || '';
		const children = [];
		for (const child of el.children) {
			const node = walk(child);
			if (node) children.push(node);
		}

		// Unlabelled non-interactive wrappers collapse into their parent.
		if (!role && children.length === 0) return null;
		if (!role && children.length === 1) return children[0];

		count++;
		const out = { role: role || 'group', children: children };
		const name = nameOf(el);
		if (name) out.name = name;
		return out;
	};

	const root = walk(document.body);
	const modalSel = '[role="dialog"], [role="alertdialog"], dialog[open], [aria-modal="true"]';
	const modalOpen = Array.from(document.querySelectorAll(modalSel)).some(isVisible);
	return { modalOpen: modalOpen, tree: root || { role: 'document', children: [] } };
})(%d)`

type elementsResult struct {
	ModalOpen bool                  `json:"modalOpen"`
	Truncated bool                  `json:"truncated"`
	Elements  []schemas.PageElement `json:"elements"`
}

type treeResult struct {
	ModalOpen bool           `json:"modalOpen"`
	Tree      *schemas.AXNode `json:"tree"`
}

// Extractor produces snapshots of the live page.
type Extractor struct {
	driver      schemas.PageDriver
	logger      *zap.Logger
	mode        string
	maxElements int
}

// NewExtractor wires an extractor against the page driver.
func NewExtractor(cfg *config.Config, driver schemas.PageDriver, logger *zap.Logger) *Extractor {
	return &Extractor{
		driver:      driver,
		logger:      logger.Named("perception"),
		mode:        cfg.Agent.PerceptionMode,
		maxElements: cfg.Agent.MaxElements,
	}
}

// Extract returns a snapshot of the current page. It never fails: an
// empty or errored extraction is retried once after a stabilization
// wait, and a second failure degrades to the minimal fallback snapshot.
func (e *Extractor) Extract(ctx context.Context) schemas.Snapshot {
	snap, err := e.tryExtract(ctx)
	if err == nil && !e.isEmpty(snap) {
		return snap
	}
	if err != nil {
		e.logger.Debug("Extraction failed, retrying after stabilization.", zap.Error(err))
	} else {
		e.logger.Debug("Extraction returned an empty snapshot, retrying after stabilization.")
	}

	_ = e.driver.WaitStable(ctx, 500*time.Millisecond)

	snap, err = e.tryExtract(ctx)
	if err == nil && !e.isEmpty(snap) {
		return snap
	}
	if err != nil {
		e.logger.Warn("Extraction failed twice, using fallback snapshot.", zap.Error(err))
	}
	return e.fallback(ctx)
}

func (e *Extractor) tryExtract(ctx context.Context) (schemas.Snapshot, error) {
	url, err := e.driver.CurrentURL(ctx)
	if err != nil {
		return schemas.Snapshot{}, err
	}
	title, err := e.driver.Title(ctx)
	if err != nil {
		return schemas.Snapshot{}, err
	}

	snap := schemas.Snapshot{URL: url, Title: title}

	switch e.mode {
	case ModeTree:
		var res treeResult
		if err := e.driver.Evaluate(ctx, fmt.Sprintf(treeScript, e.maxElements*4), &res); err != nil {
			return schemas.Snapshot{}, err
		}
		snap.ModalOpen = res.ModalOpen
		snap.Tree = res.Tree
	default:
		var res elementsResult
		if err := e.driver.Evaluate(ctx, fmt.Sprintf(elementsScript, e.maxElements), &res); err != nil {
			return schemas.Snapshot{}, err
		}
		snap.ModalOpen = res.ModalOpen
		snap.Truncated = res.Truncated
		snap.Elements = res.Elements
	}
	return snap, nil
}

func (e *Extractor) isEmpty(snap schemas.Snapshot) bool {
	if e.mode == ModeTree {
		return snap.Tree == nil || (len(snap.Tree.Children) == 0 && snap.Tree.Name == "")
	}
	return len(snap.Elements) == 0
}

// fallback builds the minimal snapshot: page identity only. Even the
// URL and title reads are allowed to fail here.
func (e *Extractor) fallback(ctx context.Context) schemas.Snapshot {
	snap := schemas.Snapshot{Fallback: true}
	if url, err := e.driver.CurrentURL(ctx); err == nil {
		snap.URL = url
	}
	if title, err := e.driver.Title(ctx); err == nil {
		snap.Title = title
	}
	return snap
}
