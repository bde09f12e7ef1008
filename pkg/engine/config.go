package engine

import (
	"fmt"
	"time"

	"github.com/entrhq/flowcheck/pkg/driver"
)

// Config controls how scenarios are executed
type Config struct {
	// Browser process
	Headless      bool           `yaml:"headless" json:"headless"`
	Viewport      ViewportConfig `yaml:"viewport" json:"viewport"`
	LaunchArgs    []string       `yaml:"launch_args" json:"launch_args"`
	Endpoint      string         `yaml:"endpoint" json:"endpoint"` // Connect to a running browser instead of launching one
	LaunchTimeout time.Duration  `yaml:"launch_timeout" json:"launch_timeout"`

	// Per-action and per-navigation defaults, used when a step has no timeout
	ActionTimeout     time.Duration `yaml:"action_timeout" json:"action_timeout"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	AssertTimeout     time.Duration `yaml:"assert_timeout" json:"assert_timeout"`

	// SettleDelay is a fixed pause before every action. It absorbs animations and
	// async renders and is not needed for correctness; zero disables it.
	SettleDelay time.Duration `yaml:"settle_delay" json:"settle_delay"`

	// Frame readiness waited for before each step
	SettleState       driver.LoadState `yaml:"settle_state" json:"settle_state"`
	SettleTimeout     time.Duration    `yaml:"settle_timeout" json:"settle_timeout"`
	SettleConcurrency int              `yaml:"settle_concurrency" json:"settle_concurrency"`

	// PollInterval is how often outcome checks re-read the page
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`

	// ScenarioBudget bounds a whole scenario when it does not set its own budget
	ScenarioBudget time.Duration `yaml:"scenario_budget" json:"scenario_budget"`
}

// ViewportConfig represents the browser viewport dimensions
type ViewportConfig struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Viewport size limits
const (
	MinViewportSize = 100
	MaxViewportSize = 5000
)

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Viewport.Width < MinViewportSize || c.Viewport.Width > MaxViewportSize {
		return fmt.Errorf("viewport width must be between %d and %d", MinViewportSize, MaxViewportSize)
	}
	if c.Viewport.Height < MinViewportSize || c.Viewport.Height > MaxViewportSize {
		return fmt.Errorf("viewport height must be between %d and %d", MinViewportSize, MaxViewportSize)
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"launch_timeout", c.LaunchTimeout},
		{"action_timeout", c.ActionTimeout},
		{"navigation_timeout", c.NavigationTimeout},
		{"assert_timeout", c.AssertTimeout},
		{"settle_timeout", c.SettleTimeout},
		{"poll_interval", c.PollInterval},
		{"scenario_budget", c.ScenarioBudget},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}

	if c.SettleDelay < 0 {
		return fmt.Errorf("settle_delay cannot be negative")
	}

	if c.SettleConcurrency < 1 {
		return fmt.Errorf("settle_concurrency must be at least 1")
	}

	if _, err := driver.ParseLoadState(string(c.SettleState)); err != nil {
		return fmt.Errorf("settle_state: %w", err)
	}

	return nil
}

// DefaultConfig returns a default configuration suitable for most use cases
func DefaultConfig() Config {
	return Config{
		Headless: true,
		Viewport: ViewportConfig{Width: 1280, Height: 720},
		LaunchArgs: []string{
			"--window-size=1280,720",
			"--disable-dev-shm-usage",
			"--ipc=host",
			"--single-process",
		},
		LaunchTimeout:     30 * time.Second,
		ActionTimeout:     5 * time.Second,
		NavigationTimeout: 10 * time.Second,
		AssertTimeout:     5 * time.Second,
		SettleDelay:       3 * time.Second,
		SettleState:       driver.LoadStateDOMContentLoaded,
		SettleTimeout:     3 * time.Second,
		SettleConcurrency: 8,
		PollInterval:      250 * time.Millisecond,
		ScenarioBudget:    2 * time.Minute,
	}
}

// SessionConfig is the part of Config needed to acquire a Session.
type SessionConfig struct {
	Launch  driver.LaunchOptions
	Context driver.ContextOptions
}

// Session derives session options from the configuration.
func (c Config) Session() SessionConfig {
	return SessionConfig{
		Launch: driver.LaunchOptions{
			Headless: c.Headless,
			Args:     append([]string(nil), c.LaunchArgs...),
			Endpoint: c.Endpoint,
			Timeout:  c.LaunchTimeout,
		},
		Context: driver.ContextOptions{
			Viewport:          driver.Viewport{Width: c.Viewport.Width, Height: c.Viewport.Height},
			DefaultTimeout:    c.ActionTimeout,
			NavigationTimeout: c.NavigationTimeout,
		},
	}
}
