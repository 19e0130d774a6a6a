// internal/executor/typing.go
package executor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

// Two input strategies cover the web's split personality: standard
// inputs accept a native value write, while rich-text/contenteditable
// editors keep internal state that only real keystrokes update.

func (e *Executor) typeText(ctx context.Context, handle schemas.ElementHandle, target, value string) error {
	if handle.PageRoot {
		return fmt.Errorf("%w: cannot type into page root", ErrNotEditable)
	}

	info, err := e.driver.Describe(ctx, handle.Selector)
	if err != nil {
		return fmt.Errorf("failed to inspect element before typing: %w", err)
	}
	if !info.Editable() {
		return fmt.Errorf("%w: <%s role=%q>", ErrNotEditable, info.Tag, info.Role)
	}

	if info.ContentEditable || (info.Role == "textbox" && info.Tag != "input" && info.Tag != "textarea") {
		err = e.typeKeystrokes(ctx, handle, value)
	} else {
		err = e.fillNative(ctx, handle, value)
	}
	if err != nil {
		return err
	}

	e.postTypeSideEffects(ctx, target)
	return nil
}

// fillNative clears the field via the platform select-all shortcut and
// writes the value natively, then verifies with a loose substring check
// that only warns. Verification failures are common on masked or
// reformatting inputs and must never fail the action.
func (e *Executor) fillNative(ctx context.Context, handle schemas.ElementHandle, value string) error {
	if err := e.driver.Click(ctx, handle.Selector); err != nil {
		e.logger.Debug("Focus click before fill failed.", zap.Error(err))
	}
	_ = e.driver.PressKeys(ctx, "ctrl+a")

	if err := e.driver.Fill(ctx, handle.Selector, value); err != nil {
		return fmt.Errorf("native fill failed: %w", err)
	}

	info, err := e.driver.Describe(ctx, handle.Selector)
	if err == nil {
		probe := value
		if len(probe) > 20 {
			probe = probe[:20]
		}
		if probe != "" && !strings.Contains(info.Value, probe) {
			e.logger.Warn("Typed value not reflected in element, continuing.",
				zap.String("expected_prefix", probe),
				zap.String("observed", truncate(info.Value, 60)))
		}
	}
	return nil
}

// typeKeystrokes drives rich-text surfaces: select-all, backspace to
// clear, then keystroke-by-keystroke typing with an inter-key delay so
// the editor's own event handlers keep up.
func (e *Executor) typeKeystrokes(ctx context.Context, handle schemas.ElementHandle, value string) error {
	if err := e.driver.Click(ctx, handle.Selector); err != nil {
		return fmt.Errorf("failed to focus editor: %w", err)
	}
	_ = e.driver.PressKeys(ctx, "ctrl+a")
	_ = e.driver.PressKeys(ctx, "Backspace")

	if err := e.driver.TypeKeys(ctx, handle.Selector, value, perKeyDelay); err != nil {
		return fmt.Errorf("keystroke typing failed: %w", err)
	}
	return nil
}

// postTypeSideEffects fires the closed set of follow-ups keyed on the
// descriptor: composer fields auto-submit with the submit shortcut,
// settings-profile fields look for a save button and fall back to
// Tab+Enter.
func (e *Executor) postTypeSideEffects(ctx context.Context, target string) {
	lower := strings.ToLower(target)

	switch {
	case strings.Contains(lower, "title"),
		strings.Contains(lower, "comment"),
		strings.Contains(lower, "description"):
		e.logger.Debug("Auto-submitting composer field.", zap.String("target", target))
		if err := e.driver.PressKeys(ctx, "ctrl+Enter"); err != nil {
			e.logger.Debug("Submit shortcut failed.", zap.Error(err))
		}

	case strings.Contains(lower, "name"),
		strings.Contains(lower, "email"),
		strings.Contains(lower, "profile"):
		if fb, err := e.resolver.FallbackFind(ctx, "save", false); err == nil && !fb.PageRoot {
			if err := e.driver.Click(ctx, fb.Selector); err == nil {
				e.logger.Debug("Clicked save after settings edit.", zap.String("target", target))
				return
			}
		}
		_ = e.driver.PressKeys(ctx, "Tab")
		_ = e.driver.PressKeys(ctx, "Enter")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
