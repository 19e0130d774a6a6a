// cmd/root.go

// Package cmd implements the marionette command line interface.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/internal/config"
	"github.com/xkilldash9x/marionette-cli/internal/observability"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "marionette",
	Short: "An unattended LLM-driven web agent",
	Long: `Marionette drives a browser to accomplish a natural-language task inside
an arbitrary web application: it repeatedly observes the page, asks a
reasoning model what to do next, and executes that decision against the
live DOM with bounded retries and stuck recovery.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfigAndLogger(cmd)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. It is the only entry point main calls.
func Execute() {
	defer observability.Sync()
	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error("Command failed.", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./marionette.yaml)")
	rootCmd.PersistentFlags().String("url", "", "target application URL")
	rootCmd.PersistentFlags().Bool("headless", true, "run the browser headless")
	rootCmd.PersistentFlags().Int("max-steps", 0, "hard step ceiling (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
}

func initConfigAndLogger(cmd *cobra.Command) error {
	v := viper.New()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("marionette")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.marionette")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("MARIONETTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindFlag(v, cmd, "agent.target_url", "url")
	bindFlag(v, cmd, "logger.level", "log-level")
	if cmd.Flags().Changed("headless") {
		headless, _ := cmd.Flags().GetBool("headless")
		v.Set("browser.headless", headless)
	}
	if cmd.Flags().Changed("max-steps") {
		steps, _ := cmd.Flags().GetInt("max-steps")
		v.Set("agent.max_steps", steps)
	}

	var err error
	cfg, err = config.NewConfigFromViper(v)
	if err != nil {
		return err
	}

	observability.InitializeLogger(cfg.Logger)
	logger = observability.GetLogger()
	return nil
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if cmd.Flags().Changed(flag) {
		if f := cmd.Flags().Lookup(flag); f != nil {
			v.Set(key, f.Value.String())
		}
	}
}
