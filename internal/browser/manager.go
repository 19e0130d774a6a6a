// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/internal/config"
)

// Manager owns the browser process lifecycle: one exec allocator and one
// page (tab) per run. The agent is strictly single-page, so the manager
// hands out at most one live Session at a time.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu      sync.Mutex
	session *Session
}

// NewManager creates a browser manager. The browser process itself is
// launched lazily by the first NewSession call.
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
	}
}

// NewSession launches the browser (first call only) and opens the page.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		return nil, fmt.Errorf("a session is already active; the agent is single-page")
	}

	if m.allocCtx == nil {
		opts := m.allocatorOptions()
		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		m.logger.Info("Browser allocator created.", zap.Bool("headless", m.cfg.Browser.Headless))
	}

	tabCtx, tabCancel := chromedp.NewContext(m.allocCtx)

	// Force target creation so the CDP connection is live before the
	// session is handed out.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to start browser target: %w", err)
	}

	s := newSession(tabCtx, tabCancel, m.cfg, m.logger, func() {
		m.mu.Lock()
		m.session = nil
		m.mu.Unlock()
	})
	m.session = s

	m.logger.Info("Browser session started.", zap.String("session_id", s.ID()))
	return s, nil
}

// Shutdown closes any live session and tears down the browser process.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()

	if s != nil {
		if err := s.Close(ctx); err != nil {
			m.logger.Warn("Error closing session during shutdown.", zap.Error(err))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allocCancel != nil {
		m.allocCancel()
		m.allocCtx, m.allocCancel = nil, nil
	}
	m.logger.Debug("Browser manager shut down.")
}

// allocatorOptions translates BrowserConfig into chromedp launch flags.
func (m *Manager) allocatorOptions() []chromedp.ExecAllocatorOption {
	bc := m.cfg.Browser

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", bc.Headless),
		chromedp.WindowSize(bc.WindowWidth, bc.WindowHeight),
	)
	if bc.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(bc.ExecPath))
	}
	if bc.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(bc.UserAgent))
	}
	if bc.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	for _, arg := range bc.Args {
		opts = append(opts, chromedp.Flag(arg, true))
	}
	return opts
}
