// internal/executor/fallbacks.go
package executor

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

// Keyboard-shortcut fallbacks: when the resolver cannot find the
// element at all, a coarse intent read off the descriptor maps to the
// keyboard shortcut most apps bind for it. An explicit ordered
// (predicate, handler) list; the first matching entry runs and decides
// the attempt.

type shortcutRule struct {
	name    string
	applies *regexp.Regexp
	handle  func(ctx context.Context, e *Executor) error
}

var shortcutRules = []shortcutRule{
	{
		name:    "create",
		applies: regexp.MustCompile(`(?i)\b(create|new)\b`),
		handle: func(ctx context.Context, e *Executor) error {
			return e.driver.PressKeys(ctx, "c")
		},
	},
	{
		name:    "submit",
		applies: regexp.MustCompile(`(?i)\b(submit|save|send)\b`),
		handle: func(ctx context.Context, e *Executor) error {
			return e.driver.PressKeys(ctx, "ctrl+Enter")
		},
	},
	{
		name:    "delete",
		applies: regexp.MustCompile(`(?i)\b(delete|remove)\b`),
		handle: func(ctx context.Context, e *Executor) error {
			if err := e.driver.PressKeys(ctx, "Delete"); err != nil {
				return err
			}
			// Deletion usually raises a confirm dialog.
			confirm := schemas.XPath(`//*[@role='dialog' or @role='alertdialog']//button[contains(translate(normalize-space(.), 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz'), 'delete') or contains(translate(normalize-space(.), 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz'), 'confirm')]`)
			if visible, _ := e.driver.ProbeVisible(ctx, confirm, 2*time.Second); visible {
				return e.driver.Click(ctx, confirm)
			}
			return nil
		},
	},
	{
		name:    "close",
		applies: regexp.MustCompile(`(?i)\b(close|cancel|dismiss)\b`),
		handle: func(ctx context.Context, e *Executor) error {
			return e.driver.PressKeys(ctx, "Escape")
		},
	},
}

// tryShortcutFallback reports whether a shortcut satisfied the action.
func (e *Executor) tryShortcutFallback(ctx context.Context, decision schemas.ActionDecision) bool {
	if decision.Type != schemas.ActionTypeClick {
		return false
	}
	for _, rule := range shortcutRules {
		if !rule.applies.MatchString(decision.Target) {
			continue
		}
		if err := rule.handle(ctx, e); err != nil {
			e.logger.Debug("Shortcut fallback failed.",
				zap.String("rule", rule.name), zap.Error(err))
			return false
		}
		e.logger.Info("Satisfied action via keyboard shortcut.",
			zap.String("rule", rule.name),
			zap.String("target", decision.Target))
		return true
	}
	return false
}

// menuVocabulary is the closed set of option words the auto-select pass
// will click inside a freshly opened menu: issue status values and
// priority levels. Longer phrases first so "in progress" wins over any
// later single word it contains.
var menuVocabulary = []string{
	"in progress",
	"no priority",
	"in review",
	"backlog",
	"todo",
	"done",
	"canceled",
	"cancelled",
	"duplicate",
	"urgent",
	"high",
	"medium",
	"low",
}

var menuSelector = schemas.CSS(`[role="menu"], [role="listbox"], [cmdk-list]`)

// autoSelectMenu runs after every click: if the click opened a
// menu/listbox and the target's trailing phrase names a known option,
// click the first visible match. A click on "Status" whose descriptor
// ends "to In Progress" finishes the job in one step instead of
// forcing another oracle round trip.
func (e *Executor) autoSelectMenu(ctx context.Context, target string) {
	visible, _ := e.driver.ProbeVisible(ctx, menuSelector, time.Second)
	if !visible {
		return
	}

	lower := strings.ToLower(target)
	var want string
	for _, word := range menuVocabulary {
		if strings.Contains(lower, word) {
			want = word
			break
		}
	}
	if want == "" {
		return
	}

	option := schemas.XPath(fmt.Sprintf(
		`//*[@role='menu' or @role='listbox']//*[(@role='menuitem' or @role='option' or not(*)) and contains(translate(normalize-space(.), 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz'), '%s')]`,
		want))
	if found, _ := e.driver.ProbeVisible(ctx, option, time.Second); !found {
		return
	}
	if err := e.driver.Click(ctx, option); err != nil {
		e.logger.Debug("Menu auto-select click failed.",
			zap.String("option", want), zap.Error(err))
		return
	}
	e.logger.Info("Auto-selected menu option.",
		zap.String("option", want), zap.String("target", target))
}
