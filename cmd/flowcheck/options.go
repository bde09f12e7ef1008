package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/entrhq/flowcheck/pkg/config"
	"github.com/entrhq/flowcheck/pkg/engine"
	"github.com/entrhq/flowcheck/pkg/scenario"
)

// options are the command line flags. Flags override the config file and the
// environment only when they are set explicitly.
type options struct {
	configFile string
	envFiles   []string
	verbose    bool
	quiet      bool
	noColor    bool

	driver      string
	browserBin  string
	endpoint    string
	headed      bool
	parallelism int

	include []string
	exclude []string
	tags    []string

	artifactsDir    string
	noArtifacts     bool
	metricsTextfile string
	trace           bool
	traceOutput     string
}

func (o *options) bindPersistent(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&o.configFile, "config", "c", "", "Path to configuration file (YAML)")
	f.StringSliceVar(&o.envFiles, "env-file", nil, "Load FLOWCHECK_* variables from these .env files (default ./.env)")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "Show every step")
	f.BoolVarP(&o.quiet, "quiet", "q", false, "Only show failures and the summary")
	f.BoolVar(&o.noColor, "no-color", false, "Disable colored output")

	f.StringSliceVar(&o.include, "include", nil, "Only run scenarios whose name matches these glob patterns")
	f.StringSliceVar(&o.exclude, "exclude", nil, "Skip scenarios whose name matches these glob patterns")
	f.StringSliceVarP(&o.tags, "tag", "t", nil, "Only run scenarios carrying one of these tags")
}

func (o *options) bindRun(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.driver, "driver", "", "Browser automation backend: playwright or rod")
	f.StringVar(&o.browserBin, "browser-bin", "", "Chromium binary for the rod driver")
	f.StringVar(&o.endpoint, "endpoint", "", "Connect to a running Chromium over CDP instead of launching one")
	f.BoolVar(&o.headed, "headed", false, "Show the browser window")
	f.IntVarP(&o.parallelism, "parallel", "p", 0, "Number of scenarios run at once")

	f.StringVar(&o.artifactsDir, "artifacts-dir", "", "Directory for results.json, summary.md and metrics.json")
	f.BoolVar(&o.noArtifacts, "no-artifacts", false, "Do not write run artifacts")
	f.StringVar(&o.metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file after the run")
	f.BoolVar(&o.trace, "trace", false, "Export OpenTelemetry spans")
	f.StringVar(&o.traceOutput, "trace-output", "", "File receiving exported spans (default stderr)")
}

// loadConfig layers .env files, the config file, the environment and flags.
func (o *options) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadDotEnv(o.envFiles...); err != nil {
		return nil, err
	}

	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	o.apply(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (o *options) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	switch {
	case o.verbose:
		cfg.Logging.Verbosity = "verbose"
	case o.quiet:
		cfg.Logging.Verbosity = "quiet"
	}
	if changed("include") {
		cfg.Select.Include = o.include
	}
	if changed("exclude") {
		cfg.Select.Exclude = o.exclude
	}
	if changed("tag") {
		cfg.Select.Tags = o.tags
	}

	if changed("driver") {
		cfg.Driver = o.driver
	}
	if changed("browser-bin") {
		cfg.BrowserBin = o.browserBin
	}
	if changed("endpoint") {
		cfg.Engine.Endpoint = o.endpoint
	}
	if changed("headed") {
		cfg.Engine.Headless = !o.headed
	}
	if changed("parallel") {
		cfg.Parallelism = o.parallelism
	}
	if changed("artifacts-dir") {
		cfg.Artifacts.OutputDir = o.artifactsDir
	}
	if changed("no-artifacts") {
		cfg.Artifacts.Enabled = !o.noArtifacts
	}
	if changed("metrics-textfile") {
		cfg.Metrics.Textfile = o.metricsTextfile
	}
	if changed("trace") {
		cfg.Tracing.Enabled = o.trace
	}
	if changed("trace-output") {
		cfg.Tracing.Output = o.traceOutput
	}
}

// loadScenarios reads every scenario under paths and applies the selection.
func loadScenarios(cfg *config.Config, paths []string) (all, selected []engine.Scenario, err error) {
	all, err = scenario.Load(paths)
	if err != nil {
		return nil, nil, err
	}
	sel, err := scenario.NewSelector(cfg.Select.Include, cfg.Select.Exclude, cfg.Select.Tags)
	if err != nil {
		return nil, nil, err
	}
	return all, sel.Select(all), nil
}

// colorEnabled honours --no-color and the NO_COLOR convention.
func (o *options) colorEnabled() bool {
	if o.noColor {
		return false
	}
	_, set := os.LookupEnv("NO_COLOR")
	return !set
}
