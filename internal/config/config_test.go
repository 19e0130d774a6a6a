//go:build !integration

// internal/config/config_test.go
package config_test

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/marionette-cli/internal/config"
)

func TestNewDefaultConfigIsValid(t *testing.T) {
	cfg := config.NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 50, cfg.Agent.MaxSteps)
	assert.Equal(t, 20, cfg.Agent.DefaultSteps)
	assert.Equal(t, 2, cfg.Agent.ActionRetries)
	assert.Equal(t, 3, cfg.Agent.RecoveryLimit)
	assert.Equal(t, 80, cfg.Agent.MaxElements)
	assert.Equal(t, "elements", cfg.Agent.PerceptionMode)
	assert.True(t, cfg.Browser.Headless)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero max steps", func(c *config.Config) { c.Agent.MaxSteps = 0 }},
		{"default above max", func(c *config.Config) { c.Agent.DefaultSteps = 100 }},
		{"negative retries", func(c *config.Config) { c.Agent.ActionRetries = -1 }},
		{"zero recovery limit", func(c *config.Config) { c.Agent.RecoveryLimit = 0 }},
		{"unknown perception mode", func(c *config.Config) { c.Agent.PerceptionMode = "screenshot" }},
		{"zero element cap", func(c *config.Config) { c.Agent.MaxElements = 0 }},
		{"zero window", func(c *config.Config) { c.Browser.WindowWidth = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.NewDefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewConfigFromViperAppliesOverrides(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("agent.max_steps", 30)
	v.Set("agent.perception_mode", "tree")
	v.Set("agent.llm.models.gemini.provider", "gemini")
	v.Set("agent.llm.models.gemini.model", "gemini-2.5-pro")

	cfg, err := config.NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Agent.MaxSteps)
	assert.Equal(t, "tree", cfg.Agent.PerceptionMode)

	m, ok := cfg.ModelFor("gemini")
	require.True(t, ok)
	assert.Equal(t, config.ProviderGemini, m.Provider)
}

func TestNewConfigFromViperRejectsInvalid(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("agent.history_window", 0)

	_, err := config.NewConfigFromViper(v)
	assert.Error(t, err)
}
