package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/flowcheck/pkg/driver"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.Headless)
	assert.Equal(t, 5*time.Second, cfg.ActionTimeout)
	assert.Equal(t, 10*time.Second, cfg.NavigationTimeout)
	assert.Equal(t, 3*time.Second, cfg.SettleDelay)
	assert.Equal(t, driver.LoadStateDOMContentLoaded, cfg.SettleState)
	assert.Equal(t, 3*time.Second, cfg.SettleTimeout)
	assert.Contains(t, cfg.LaunchArgs, "--window-size=1280,720")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "zero settle delay is allowed", mutate: func(c *Config) { c.SettleDelay = 0 }},
		{name: "viewport too small", mutate: func(c *Config) { c.Viewport.Width = 50 }, wantErr: "viewport width"},
		{name: "viewport too large", mutate: func(c *Config) { c.Viewport.Height = 6000 }, wantErr: "viewport height"},
		{name: "no action timeout", mutate: func(c *Config) { c.ActionTimeout = 0 }, wantErr: "action_timeout"},
		{name: "negative budget", mutate: func(c *Config) { c.ScenarioBudget = -time.Second }, wantErr: "scenario_budget"},
		{name: "negative settle delay", mutate: func(c *Config) { c.SettleDelay = -time.Second }, wantErr: "settle_delay"},
		{name: "no settle concurrency", mutate: func(c *Config) { c.SettleConcurrency = 0 }, wantErr: "settle_concurrency"},
		{name: "bad settle state", mutate: func(c *Config) { c.SettleState = "ready" }, wantErr: "settle_state"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigSession(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Endpoint = "ws://127.0.0.1:9222"
	s := cfg.Session()

	assert.Equal(t, "ws://127.0.0.1:9222", s.Launch.Endpoint)
	assert.Equal(t, cfg.LaunchArgs, s.Launch.Args)
	assert.Equal(t, cfg.NavigationTimeout, s.Context.NavigationTimeout)

	s.Launch.Args[0] = "--changed"
	assert.NotEqual(t, "--changed", cfg.LaunchArgs[0])
}
