// Package config loads flowcheck run configuration.
//
// Values are layered: DefaultConfig, then an optional YAML file, then FLOWCHECK_*
// environment variables (optionally read from .env files), then command line
// flags applied by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/flowcheck/pkg/engine"
)

// Driver backends
const (
	DriverPlaywright = "playwright"
	DriverRod        = "rod"
)

// Config is the complete run configuration.
type Config struct {
	// Browser automation backend: playwright or rod
	Driver string `yaml:"driver" json:"driver"`

	// InstallBrowsers downloads the Playwright driver and Chromium when missing
	InstallBrowsers bool `yaml:"install_browsers" json:"install_browsers"`

	// BrowserBin is the Chromium binary used by the rod driver. Empty lets rod find one.
	BrowserBin string `yaml:"browser_bin" json:"browser_bin"`

	Engine engine.Config `yaml:"engine" json:"engine"`

	// Parallelism bounds how many scenarios run at once
	Parallelism int `yaml:"parallelism" json:"parallelism"`

	Select    SelectConfig   `yaml:"select" json:"select"`
	Logging   LoggingConfig  `yaml:"logging" json:"logging"`
	Artifacts ArtifactConfig `yaml:"artifacts" json:"artifacts"`
	Metrics   MetricsConfig  `yaml:"metrics" json:"metrics"`
	Tracing   TracingConfig  `yaml:"tracing" json:"tracing"`
}

// SelectConfig filters which scenarios run
type SelectConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
	Tags    []string `yaml:"tags" json:"tags"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls logging level: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`

	// Dir holds per-run log files. Empty uses ~/.flowcheck/logs.
	Dir string `yaml:"dir" json:"dir"`

	// File enables the per-run log file
	File bool `yaml:"file" json:"file"`
}

// ArtifactConfig defines artifact generation configuration
type ArtifactConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`

	// Individual format flags
	JSON     bool `yaml:"json" json:"json"`
	Markdown bool `yaml:"markdown" json:"markdown"`
	Metrics  bool `yaml:"metrics" json:"metrics"`
}

// MetricsConfig defines Prometheus export
type MetricsConfig struct {
	// Textfile is written in the Prometheus text format after the run, for the
	// node_exporter textfile collector. Empty disables it.
	Textfile string `yaml:"textfile" json:"textfile"`
}

// TracingConfig defines OpenTelemetry tracing
type TracingConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Output is a file path for exported spans. Empty writes to stderr.
	Output string `yaml:"output" json:"output"`
}

var validVerbosity = map[string]bool{
	"quiet":   true,
	"normal":  true,
	"verbose": true,
	"debug":   true,
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Driver != DriverPlaywright && c.Driver != DriverRod {
		return fmt.Errorf("invalid driver: %s (must be '%s' or '%s')", c.Driver, DriverPlaywright, DriverRod)
	}

	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1")
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	// Set default verbosity if not specified
	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}
	if !validVerbosity[c.Logging.Verbosity] {
		return fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", c.Logging.Verbosity)
	}

	if c.Artifacts.Enabled && c.Artifacts.OutputDir == "" {
		return fmt.Errorf("artifacts output_dir is required when artifacts are enabled")
	}

	return nil
}

// DefaultConfig returns a default configuration suitable for most use cases
func DefaultConfig() *Config {
	return &Config{
		Driver:      DriverPlaywright,
		Engine:      engine.DefaultConfig(),
		Parallelism: 1,
		Logging: LoggingConfig{
			Verbosity: "normal",
			File:      true,
		},
		Artifacts: ArtifactConfig{
			Enabled:   true,
			OutputDir: ".flowcheck/artifacts",
			JSON:      true,
			Markdown:  true,
			Metrics:   true,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path
// and FLOWCHECK_* environment variables.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile overlays a YAML file on the current values
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// an empty file decodes to io.EOF and leaves the defaults alone
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadDotEnv reads .env files into the process environment without overriding
// variables that are already set. Missing files are skipped; with no arguments
// ./.env is tried.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}
