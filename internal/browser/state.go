// internal/browser/state.go
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

const storageDumpScript = `
(function() {
	const dump = (s) => {
		const out = {};
		for (let i = 0; i < s.length; i++) {
			const k = s.key(i);
			out[k] = s.getItem(k);
		}
		return out;
	};
	return { local: dump(window.localStorage), session: dump(window.sessionStorage) };
})()`

type storageDump struct {
	Local   map[string]string `json:"local"`
	Session map[string]string `json:"session"`
}

// CaptureState snapshots the authentication-relevant browser state:
// every cookie visible to the target plus the current origin's local
// and session storage. The payloads are opaque to the rest of the
// system.
func (s *Session) CaptureState(ctx context.Context) (*schemas.SessionState, error) {
	origin, err := s.CurrentURL(ctx)
	if err != nil {
		return nil, err
	}

	var cookies []*network.Cookie
	err = s.run(ctx, chromedp.ActionFunc(func(cdpCtx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(cdpCtx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	var dump storageDump
	if err := s.run(ctx, chromedp.Evaluate(storageDumpScript, &dump)); err != nil {
		// Storage access can be blocked (sandboxed origins); the cookie
		// jar alone is usually enough to restore a login.
		s.logger.Warn("Failed to capture web storage, keeping cookies only.", zap.Error(err))
		dump = storageDump{}
	}

	state := &schemas.SessionState{
		Origin:         origin,
		Cookies:        make([]schemas.SessionCookie, 0, len(cookies)),
		LocalStorage:   dump.Local,
		SessionStorage: dump.Session,
		CapturedAtUnix: time.Now().Unix(),
	}
	for _, c := range cookies {
		state.Cookies = append(state.Cookies, schemas.SessionCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}

	s.logger.Info("Captured session state.",
		zap.String("origin", origin),
		zap.Int("cookies", len(state.Cookies)),
		zap.Int("local_storage_keys", len(state.LocalStorage)))
	return state, nil
}

// RestoreState replays a previously captured state into the live page.
// Cookies are installed first so the subsequent navigation to the
// captured origin already carries them; web storage is written after
// that navigation because it is origin-scoped.
func (s *Session) RestoreState(ctx context.Context, state *schemas.SessionState) error {
	if state == nil {
		return nil
	}

	params := make([]*network.CookieParam, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: network.CookieSameSite(c.SameSite),
		}
		if c.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &exp
		}
		params = append(params, p)
	}
	if len(params) > 0 {
		err := s.run(ctx, chromedp.ActionFunc(func(cdpCtx context.Context) error {
			return storage.SetCookies(params).Do(cdpCtx)
		}))
		if err != nil {
			return fmt.Errorf("failed to set cookies: %w", err)
		}
	}

	if state.Origin != "" {
		if err := s.Navigate(ctx, state.Origin); err != nil {
			return fmt.Errorf("failed to open session origin: %w", err)
		}
	}

	if len(state.LocalStorage) > 0 || len(state.SessionStorage) > 0 {
		localJSON, _ := json.Marshal(state.LocalStorage)
		sessionJSON, _ := json.Marshal(state.SessionStorage)
		script := fmt.Sprintf(`
(function(local, session) {
	for (const [k, v] of Object.entries(local)) window.localStorage.setItem(k, v);
	for (const [k, v] of Object.entries(session)) window.sessionStorage.setItem(k, v);
})(%s, %s)`, string(localJSON), string(sessionJSON))
		if err := s.run(ctx, chromedp.Evaluate(script, nil)); err != nil {
			s.logger.Warn("Failed to restore web storage.", zap.Error(err))
		}
	}

	s.logger.Info("Restored session state.",
		zap.String("origin", state.Origin),
		zap.Int("cookies", len(params)))
	return nil
}

// SaveStateFile writes a session state blob to disk with user-only
// permissions. It contains live credentials.
func SaveStateFile(path string, state *schemas.SessionState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create session directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session state: %w", err)
	}
	return nil
}

// LoadStateFile reads a session state blob. A missing file is not an
// error; it simply means no prior login.
func LoadStateFile(path string) (*schemas.SessionState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session state: %w", err)
	}
	var state schemas.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("corrupt session state file %s: %w", path, err)
	}
	return &state, nil
}
