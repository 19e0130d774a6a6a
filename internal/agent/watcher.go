// internal/agent/watcher.go
package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

// The watcher is the loop's one piece of background concurrency: a
// fixed-interval poller that notices transient UI state (a modal, menu
// or toast appearing) between steps. It is strictly best effort: it
// produces events into a bounded queue the orchestrator drains on its
// own schedule, never touches step state, and swallows every failure.
// The only consumer use is deciding whether an extra diagnostic
// screenshot is worth taking.

const watcherQueueSize = 16

const transientStateScript = `
(function() {
	const isVisible = (el) => {
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	};
	const anyVisible = (sel) => Array.from(document.querySelectorAll(sel)).some(isVisible);
	return {
		modal: anyVisible('[role="dialog"], [role="alertdialog"], dialog[open]'),
		menu: anyVisible('[role="menu"], [role="listbox"]'),
		toast: anyVisible('[role="alert"], [role="status"], [class*="toast"]'),
	};
})()`

type transientState struct {
	Modal bool `json:"modal"`
	Menu  bool `json:"menu"`
	Toast bool `json:"toast"`
}

// Watcher polls for transient UI changes.
type Watcher struct {
	driver   schemas.PageDriver
	logger   *zap.Logger
	interval time.Duration
	events   chan string
	prev     transientState
}

// NewWatcher builds a watcher with the configured poll interval.
func NewWatcher(driver schemas.PageDriver, interval time.Duration, logger *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Watcher{
		driver:   driver,
		logger:   logger.Named("watcher"),
		interval: interval,
		events:   make(chan string, watcherQueueSize),
	}
}

// Run polls until the context ends. Intended to be launched as the
// run's single background goroutine.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	var cur transientState
	if err := w.driver.Evaluate(ctx, transientStateScript, &cur); err != nil {
		// Expected during navigations; the next tick retries.
		return
	}

	if cur.Modal && !w.prev.Modal {
		w.publish("modal-opened")
	}
	if cur.Menu && !w.prev.Menu {
		w.publish("menu-opened")
	}
	if cur.Toast && !w.prev.Toast {
		w.publish("toast-shown")
	}
	w.prev = cur
}

// publish enqueues an event, dropping it when the queue is full. Losing
// a diagnostic hint is cheaper than ever blocking the poller.
func (w *Watcher) publish(event string) {
	select {
	case w.events <- event:
	default:
		w.logger.Debug("Watcher queue full, dropping event.", zap.String("event", event))
	}
}

// Drain returns all queued events without blocking.
func (w *Watcher) Drain() []string {
	var out []string
	for {
		select {
		case e := <-w.events:
			out = append(out, e)
		default:
			return out
		}
	}
}
