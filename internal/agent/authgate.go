// internal/agent/authgate.go
package agent

import (
	"context"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

// The auth gate decides, from visible page content only, whether the
// agent is looking at an authenticated workspace. It never performs a
// login; it only gates whether a run may proceed and whether session
// state is worth persisting.

var loginURLPattern = regexp.MustCompile(`(?i)/(login|log-in|signin|sign-in|auth|sso|oauth)([/?#]|$)`)

// loginButtons matches the common anonymous-page calls to action.
var loginButtons = schemas.XPath(`//button[contains(translate(normalize-space(.), 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz'), 'sign in') or contains(translate(normalize-space(.), 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz'), 'log in') or contains(translate(normalize-space(.), 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz'), 'continue with')] | //a[contains(translate(normalize-space(.), 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz'), 'sign in') or contains(translate(normalize-space(.), 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz'), 'log in')]`)

// workspaceIndicators are cheap probes whose presence implies an
// authenticated application shell.
var workspaceIndicators = []schemas.Selector{
	schemas.CSS(`nav [data-sidebar], aside[class*="sidebar"], [data-testid*="sidebar"]`),
	schemas.CSS(`[role="navigation"]`),
	schemas.CSS(`main [contenteditable="true"]`),
	schemas.CSS(`a[href*="/issue/"], a[href*="/issues/"]`),
}

// AuthGate inspects the live page for authentication state.
type AuthGate struct {
	driver schemas.PageDriver
	logger *zap.Logger
}

// NewAuthGate wires the gate against the page driver.
func NewAuthGate(driver schemas.PageDriver, logger *zap.Logger) *AuthGate {
	return &AuthGate{driver: driver, logger: logger.Named("authgate")}
}

// IsLoggedIn reports the gate's verdict: false on a login URL or
// visible login buttons, true on any workspace indicator, and false as
// the conservative default when nothing distinctive is visible. The
// default errs toward "not logged in" because acting anonymously wastes
// a whole run, while re-checking after a login is cheap.
func (g *AuthGate) IsLoggedIn(ctx context.Context) bool {
	url, err := g.driver.CurrentURL(ctx)
	if err == nil && loginURLPattern.MatchString(url) {
		g.logger.Debug("Auth gate: login URL.", zap.String("url", url))
		return false
	}

	if visible, _ := g.driver.ProbeVisible(ctx, loginButtons, time.Second); visible {
		g.logger.Debug("Auth gate: login buttons visible.")
		return false
	}

	for _, sel := range workspaceIndicators {
		if visible, _ := g.driver.ProbeVisible(ctx, sel, time.Second); visible {
			g.logger.Debug("Auth gate: workspace indicator present.",
				zap.String("selector", sel.Expr))
			return true
		}
	}

	g.logger.Debug("Auth gate: no signal, defaulting to not logged in.")
	return false
}
