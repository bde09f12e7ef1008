package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/entrhq/flowcheck/pkg/driver"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "FLOWCHECK_"

type envVar struct {
	name  string
	apply func(c *Config, value string) error
}

func stringVar(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func boolVar(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func durationVar(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

var envVars = []envVar{
	{"DRIVER", stringVar(func(c *Config) *string { return &c.Driver })},
	{"BROWSER_BIN", stringVar(func(c *Config) *string { return &c.BrowserBin })},
	{"INSTALL_BROWSERS", boolVar(func(c *Config) *bool { return &c.InstallBrowsers })},
	{"HEADLESS", boolVar(func(c *Config) *bool { return &c.Engine.Headless })},
	{"ENDPOINT", stringVar(func(c *Config) *string { return &c.Engine.Endpoint })},
	{"LAUNCH_ARGS", func(c *Config, v string) error {
		c.Engine.LaunchArgs = strings.Fields(v)
		return nil
	}},
	{"ACTION_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Engine.ActionTimeout })},
	{"NAVIGATION_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Engine.NavigationTimeout })},
	{"ASSERT_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Engine.AssertTimeout })},
	{"SETTLE_DELAY", durationVar(func(c *Config) *time.Duration { return &c.Engine.SettleDelay })},
	{"SETTLE_STATE", func(c *Config, v string) error {
		state, err := driver.ParseLoadState(v)
		if err != nil {
			return err
		}
		c.Engine.SettleState = state
		return nil
	}},
	{"SETTLE_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Engine.SettleTimeout })},
	{"SCENARIO_BUDGET", durationVar(func(c *Config) *time.Duration { return &c.Engine.ScenarioBudget })},
	{"PARALLELISM", intVar(func(c *Config) *int { return &c.Parallelism })},
	{"VERBOSITY", stringVar(func(c *Config) *string { return &c.Logging.Verbosity })},
	{"LOG_DIR", stringVar(func(c *Config) *string { return &c.Logging.Dir })},
	{"ARTIFACTS_DIR", stringVar(func(c *Config) *string { return &c.Artifacts.OutputDir })},
	{"METRICS_TEXTFILE", stringVar(func(c *Config) *string { return &c.Metrics.Textfile })},
	{"TRACING", boolVar(func(c *Config) *bool { return &c.Tracing.Enabled })},
	{"TRACING_OUTPUT", stringVar(func(c *Config) *string { return &c.Tracing.Output })},
}

// ApplyEnv overrides values from FLOWCHECK_* variables found through lookup,
// normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, v := range envVars {
		value, ok := lookup(EnvPrefix + v.name)
		if !ok || value == "" {
			continue
		}
		if err := v.apply(c, value); err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, v.name, err)
		}
	}
	return nil
}
