// internal/executor/executor.go

// Package executor performs the primitive interactions (click, type,
// scroll, navigate) decided by the agent, with bounded per-action retry
// and the compensating side effects real web apps need: forced clicks,
// menu auto-selection, submit shortcuts, keyboard fallbacks when
// resolution fails.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
	"github.com/xkilldash9x/marionette-cli/internal/resolver"
)

// ErrNotEditable means a type action resolved to an element that cannot
// receive text. It aborts the current attempt only.
var ErrNotEditable = errors.New("resolved element is not editable")

// ErrNotFound re-exports the resolver's sentinel so callers can match
// resolution failures without importing the resolver.
var ErrNotFound = resolver.ErrNotFound

const (
	settleDelay  = 300 * time.Millisecond
	waitDuration = 2 * time.Second
	perKeyDelay  = 25 * time.Millisecond
)

// Executor binds the resolver and the page driver into the execute
// step.
type Executor struct {
	driver   schemas.PageDriver
	resolver *resolver.Resolver
	logger   *zap.Logger
	retries  int
	backoff  time.Duration
}

// NewExecutor wires an executor from the threaded configuration.
func NewExecutor(cfg *config.Config, driver schemas.PageDriver, res *resolver.Resolver, logger *zap.Logger) *Executor {
	return &Executor{
		driver:   driver,
		resolver: res,
		logger:   logger.Named("executor"),
		retries:  cfg.Agent.ActionRetries,
		backoff:  cfg.Agent.RetryBackoff,
	}
}

// Execute runs one decision. Retries cover the whole resolve+act
// sequence; between attempts the executor sleeps the configured
// backoff. Non-resolving actions (wait, complete, navigate, scroll)
// bypass the resolver entirely and are not retried.
func (e *Executor) Execute(ctx context.Context, decision schemas.ActionDecision, modalOpen bool) error {
	switch decision.Type {
	case schemas.ActionTypeComplete:
		return nil
	case schemas.ActionTypeWait:
		select {
		case <-time.After(waitDuration):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case schemas.ActionTypeNavigate:
		url := decision.Value
		if url == "" {
			url = decision.Target
		}
		return e.driver.Navigate(ctx, url)
	case schemas.ActionTypeScroll:
		direction := strings.ToLower(strings.TrimSpace(decision.Target))
		if direction == "" {
			direction = "down"
		}
		return e.driver.ScrollPage(ctx, direction)
	case schemas.ActionTypeClick, schemas.ActionTypeType:
		return e.executeResolved(ctx, decision, modalOpen)
	default:
		return fmt.Errorf("unknown action type %q", decision.Type)
	}
}

func (e *Executor) executeResolved(ctx context.Context, decision schemas.ActionDecision, modalOpen bool) error {
	var lastErr error
	for attempt := 0; attempt <= e.retries; attempt++ {
		if attempt > 0 {
			e.logger.Debug("Retrying action.",
				zap.Int("attempt", attempt+1),
				zap.String("target", decision.Target))
			select {
			case <-time.After(e.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = e.attempt(ctx, decision, modalOpen)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("action %s on %q failed after %d attempts: %w",
		decision.Type, decision.Target, e.retries+1, lastErr)
}

// attempt is one full resolve+act pass. A resolution failure falls
// through to the keyboard-shortcut bucket before the attempt is
// declared failed.
func (e *Executor) attempt(ctx context.Context, decision schemas.ActionDecision, modalOpen bool) error {
	handle, err := e.resolver.Resolve(ctx, decision.Target, modalOpen)
	if err != nil {
		if errors.Is(err, resolver.ErrNotFound) {
			if e.tryShortcutFallback(ctx, decision) {
				return nil
			}
			if fb, fbErr := e.resolver.FallbackFind(ctx, decision.Target, modalOpen); fbErr == nil {
				handle = fb
			} else {
				return err
			}
		} else {
			return err
		}
	}

	switch decision.Type {
	case schemas.ActionTypeClick:
		return e.click(ctx, handle, decision.Target)
	case schemas.ActionTypeType:
		return e.typeText(ctx, handle, decision.Target, decision.Value)
	default:
		return fmt.Errorf("action %q reached resolved execution", decision.Type)
	}
}

// click scrolls the element into view, lets the page settle, clicks
// (forcing on failure), then runs the menu auto-select pass in case the
// click opened a chooser the target phrase already names an option of.
func (e *Executor) click(ctx context.Context, handle schemas.ElementHandle, target string) error {
	if handle.PageRoot {
		// A navigation macro already satisfied the intent; there is
		// nothing concrete to click.
		e.logger.Debug("Click target resolved to page root, skipping physical click.",
			zap.String("target", target))
		return nil
	}

	if err := e.driver.ScrollIntoView(ctx, handle.Selector); err != nil {
		e.logger.Debug("Scroll into view failed, clicking anyway.", zap.Error(err))
	}
	select {
	case <-time.After(settleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := e.driver.Click(ctx, handle.Selector); err != nil {
		e.logger.Debug("Timed click failed, forcing.",
			zap.String("target", target), zap.Error(err))
		if err := e.driver.ForceClick(ctx, handle.Selector); err != nil {
			return fmt.Errorf("click failed (timed and forced): %w", err)
		}
	}

	e.autoSelectMenu(ctx, target)
	return nil
}
