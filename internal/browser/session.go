// internal/browser/session.go
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
)

// Session is the single live page. It implements schemas.PageDriver; the
// whole core interacts with the browser exclusively through it.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    *config.Config

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

var _ schemas.PageDriver = (*Session)(nil)

func newSession(
	ctx context.Context,
	cancel context.CancelFunc,
	cfg *config.Config,
	logger *zap.Logger,
	onClose func(),
) *Session {
	sessionID := uuid.New().String()
	return &Session{
		id:      sessionID,
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		logger:  logger.Named("session").With(zap.String("session_id", sessionID)),
		onClose: onClose,
	}
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// Close terminates the page gracefully. Safe to call more than once.
func (s *Session) Close(_ context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")
	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

// run executes chromedp actions so they respect both the session
// lifetime (s.ctx, which carries the CDP target) and the caller's
// operational context.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// CombineContext derives a context from primary (which carries the CDP
// target values) that is canceled when either primary or secondary is
// canceled.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

// WaitStable blocks until the DOM is ready and then holds for the quiet
// period, bailing out early only on context cancellation. Failures to
// reach readiness degrade to the quiet wait: stabilization is best
// effort, never an error source for callers.
func (s *Session) WaitStable(ctx context.Context, quiet time.Duration) error {
	stabTimeout := s.cfg.Network.StabilizeTimeout
	if stabTimeout <= 0 {
		stabTimeout = 30 * time.Second
	}
	stabCtx, cancel := context.WithTimeout(ctx, stabTimeout)
	defer cancel()

	if err := s.run(stabCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("WaitReady failed during stabilization.", zap.Error(err))
	}

	if quiet <= 0 {
		quiet = s.cfg.Network.QuietPeriod
	}
	select {
	case <-time.After(quiet):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
