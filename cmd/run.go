// cmd/run.go
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/internal/agent"
	"github.com/xkilldash9x/marionette-cli/internal/browser"
	"github.com/xkilldash9x/marionette-cli/internal/llmclient"
)

var runCmd = &cobra.Command{
	Use:   "run \"<task>\"",
	Short: "Run an automation task against the target application",
	Example: `  marionette run "Create a new issue titled Fix login flake"
  marionette run --url https://app.example.com "Change DEE-9 status to In Progress"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runTask(cmd *cobra.Command, args []string) error {
	task := strings.TrimSpace(strings.Join(args, " "))
	if task == "" {
		return fmt.Errorf("task must not be empty")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router, err := llmclient.NewRouter(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build LLM router: %w", err)
	}
	defer router.Close()

	manager := browser.NewManager(cfg, logger)
	defer manager.Shutdown(ctx)

	session, err := manager.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer session.Close(ctx)

	// Replay a persisted login before the auth gate looks at the page.
	if state, err := browser.LoadStateFile(cfg.Session.StateFile); err != nil {
		logger.Warn("Ignoring unreadable session state.", zap.Error(err))
	} else if state != nil {
		if err := session.RestoreState(ctx, state); err != nil {
			logger.Warn("Failed to restore session state, continuing anonymously.", zap.Error(err))
		}
	}

	orch := agent.NewOrchestrator(cfg, session, router, logger)
	report, err := orch.Run(ctx, task)
	if report != nil {
		fmt.Printf("Run %s finished: %s (%d steps, %d recoveries)\nArtifacts: %s\n",
			report.RunID, report.Status, report.Steps, report.RecoveryCount, report.ArtifactsDir)
	}
	return err
}
