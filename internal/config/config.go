// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. One value is built
// at startup and threaded through constructors; nothing reads viper (or
// any other global) after load.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Network   NetworkConfig   `mapstructure:"network" yaml:"network"`
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	ExecPath        string   `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent       string   `mapstructure:"user_agent" yaml:"user_agent"`
	WindowWidth     int      `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight    int      `mapstructure:"window_height" yaml:"window_height"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string `mapstructure:"args" yaml:"args"`
}

// NetworkConfig tunes page load and stabilization behavior.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	StabilizeTimeout  time.Duration `mapstructure:"stabilize_timeout" yaml:"stabilize_timeout"`
	QuietPeriod       time.Duration `mapstructure:"quiet_period" yaml:"quiet_period"`
}

// AgentConfig holds settings for the task loop and its components.
type AgentConfig struct {
	TargetURL string `mapstructure:"target_url" yaml:"target_url"`

	// Step accounting. MaxSteps is the hard ceiling; DefaultSteps is the
	// budget used when the planning oracle is unavailable.
	MaxSteps     int `mapstructure:"max_steps" yaml:"max_steps"`
	DefaultSteps int `mapstructure:"default_steps" yaml:"default_steps"`

	// HistoryWindow is how many compacted history entries are included
	// in each decision prompt.
	HistoryWindow int `mapstructure:"history_window" yaml:"history_window"`

	// ActionRetries is the per-action retry bound for the full
	// resolve+act sequence; RetryBackoff sleeps between attempts.
	ActionRetries int           `mapstructure:"action_retries" yaml:"action_retries"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`

	// RecoveryLimit is how many stuck->backtrack cycles may fire before
	// the run terminates as failed.
	RecoveryLimit int `mapstructure:"recovery_limit" yaml:"recovery_limit"`

	// WatcherInterval is the poll period of the transient-UI watcher.
	WatcherInterval time.Duration `mapstructure:"watcher_interval" yaml:"watcher_interval"`

	// PerceptionMode selects the snapshot shape: "elements" or "tree".
	PerceptionMode string `mapstructure:"perception_mode" yaml:"perception_mode"`
	// MaxElements caps the element-list snapshot size.
	MaxElements int `mapstructure:"max_elements" yaml:"max_elements"`

	LLM LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOpenAI LLMProvider = "openai"
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	// RequestsPerMinute bounds the oracle call rate across both tiers.
	RequestsPerMinute float64                      `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Models            map[string]LLMModelConfig    `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// SessionConfig locates the persisted authentication state blob.
type SessionConfig struct {
	StateFile string `mapstructure:"state_file" yaml:"state_file"`
	// LoginTimeout bounds the interactive `marionette login` wait.
	LoginTimeout time.Duration `mapstructure:"login_timeout" yaml:"login_timeout"`
}

// ArtifactsConfig controls where run artifacts (screenshots, history
// dumps) are written.
type ArtifactsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// SetDefaults initializes default values for all configuration keys.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "marionette")
	v.SetDefault("logger.log_file", "marionette.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1440)
	v.SetDefault("browser.window_height", 900)
	v.SetDefault("browser.ignore_tls_errors", false)

	// -- Network --
	v.SetDefault("network.navigation_timeout", "60s")
	v.SetDefault("network.stabilize_timeout", "30s")
	v.SetDefault("network.quiet_period", "1500ms")

	// -- Agent --
	v.SetDefault("agent.max_steps", 50)
	v.SetDefault("agent.default_steps", 20)
	v.SetDefault("agent.history_window", 8)
	v.SetDefault("agent.action_retries", 2)
	v.SetDefault("agent.retry_backoff", "1s")
	v.SetDefault("agent.recovery_limit", 3)
	v.SetDefault("agent.watcher_interval", "500ms")
	v.SetDefault("agent.perception_mode", "elements")
	v.SetDefault("agent.max_elements", 80)
	v.SetDefault("agent.llm.default_fast_model", "gemini-2.5-flash")
	v.SetDefault("agent.llm.default_powerful_model", "gemini-2.5-pro")
	v.SetDefault("agent.llm.requests_per_minute", 30.0)

	// -- Session --
	v.SetDefault("session.state_file", ".marionette/session.json")
	v.SetDefault("session.login_timeout", "5m")

	// -- Artifacts --
	v.SetDefault("artifacts.dir", "runs")
}

// NewDefaultConfig creates a configuration populated with defaults.
// Intended for tests and for the login command, which needs no models.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults, but fail loudly if it does.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a validated configuration from a viper
// instance that has already read file and environment sources.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Sensitive values come from the environment only.
	v.BindEnv("agent.llm.models.gemini.api_key", "MARIONETTE_GEMINI_API_KEY", "GEMINI_API_KEY")
	v.BindEnv("agent.llm.models.openai.api_key", "MARIONETTE_OPENAI_API_KEY", "OPENAI_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	if c.Agent.DefaultSteps <= 0 || c.Agent.DefaultSteps > c.Agent.MaxSteps {
		return fmt.Errorf("agent.default_steps must be in [1, agent.max_steps]")
	}
	if c.Agent.ActionRetries < 0 {
		return fmt.Errorf("agent.action_retries must not be negative")
	}
	if c.Agent.RecoveryLimit < 1 {
		return fmt.Errorf("agent.recovery_limit must be at least 1")
	}
	if c.Agent.HistoryWindow < 1 {
		return fmt.Errorf("agent.history_window must be at least 1")
	}
	switch c.Agent.PerceptionMode {
	case "elements", "tree":
	default:
		return fmt.Errorf("agent.perception_mode must be \"elements\" or \"tree\", got %q", c.Agent.PerceptionMode)
	}
	if c.Agent.MaxElements < 1 {
		return fmt.Errorf("agent.max_elements must be at least 1")
	}
	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		return fmt.Errorf("browser window dimensions must be positive")
	}
	return nil
}

// ModelFor returns the model configuration for a tier name, falling back
// to provider defaults keyed by the configured default model names.
func (c *Config) ModelFor(name string) (LLMModelConfig, bool) {
	m, ok := c.Agent.LLM.Models[name]
	return m, ok
}
