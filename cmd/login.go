// cmd/login.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/internal/agent"
	"github.com/xkilldash9x/marionette-cli/internal/browser"
)

// loginPollInterval is how often the auth gate re-checks the page while
// the user logs in by hand.
const loginPollInterval = 2 * time.Second

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in interactively and persist the session for later runs",
	Long: `Opens a visible browser window on the target application and waits for
you to complete the login by hand. Once the page looks authenticated,
the cookies and web storage are saved so unattended runs can reuse
them.`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	if cfg.Agent.TargetURL == "" {
		return fmt.Errorf("a target URL is required: pass --url or set agent.target_url")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The whole point is a human at the keyboard.
	cfg.Browser.Headless = false

	manager := browser.NewManager(cfg, logger)
	defer manager.Shutdown(ctx)

	session, err := manager.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer session.Close(ctx)

	if err := session.Navigate(ctx, cfg.Agent.TargetURL); err != nil {
		return fmt.Errorf("failed to open target: %w", err)
	}

	gate := agent.NewAuthGate(session, logger)
	fmt.Println("Complete the login in the browser window...")

	timeout := cfg.Session.LoginTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(loginPollInterval)
	defer ticker.Stop()
	for !gate.IsLoggedIn(waitCtx) {
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("no authenticated state detected within %s", timeout)
		case <-ticker.C:
		}
	}

	state, err := session.CaptureState(ctx)
	if err != nil {
		return fmt.Errorf("failed to capture session state: %w", err)
	}
	if err := browser.SaveStateFile(cfg.Session.StateFile, state); err != nil {
		return err
	}

	logger.Info("Session persisted.", zap.String("path", cfg.Session.StateFile))
	fmt.Printf("Logged in. Session saved to %s\n", cfg.Session.StateFile)
	return nil
}
