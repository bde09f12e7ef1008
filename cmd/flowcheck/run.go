package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/entrhq/flowcheck/pkg/config"
	"github.com/entrhq/flowcheck/pkg/driver"
	"github.com/entrhq/flowcheck/pkg/driver/pwdriver"
	"github.com/entrhq/flowcheck/pkg/driver/roddriver"
	"github.com/entrhq/flowcheck/pkg/engine"
	"github.com/entrhq/flowcheck/pkg/logging"
	"github.com/entrhq/flowcheck/pkg/metrics"
	"github.com/entrhq/flowcheck/pkg/report"
	"github.com/entrhq/flowcheck/pkg/runner"
	"github.com/entrhq/flowcheck/pkg/telemetry"
)

// shutdownTimeout bounds flushing spans and stopping the driver after a run.
const shutdownTimeout = 10 * time.Second

// driverFactory builds the configured driver and a function releasing it.
type driverFactory func(cfg *config.Config, logger *zap.Logger) (driver.Driver, func() error, error)

func defaultDriver(cfg *config.Config, logger *zap.Logger) (driver.Driver, func() error, error) {
	switch cfg.Driver {
	case config.DriverRod:
		return roddriver.New(cfg.BrowserBin, logger), func() error { return nil }, nil
	case config.DriverPlaywright:
		d := pwdriver.New(cfg.InstallBrowsers, logger)
		return d, d.Shutdown, nil
	default:
		return nil, nil, fmt.Errorf("unknown driver: %s", cfg.Driver)
	}
}

func (a *app) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [path...]",
		Short: "Run scenarios",
		Long: `Runs every scenario found in the given files and directories (default:
./scenarios). Directories are searched recursively for .yaml and .yml files.

Example:
  flowcheck run scenarios/ --tag billing --parallel 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"scenarios"}
			}
			return a.run(cmd, args)
		},
	}
	a.opts.bindRun(cmd)
	return cmd
}

//nolint:gocyclo
func (a *app) run(cmd *cobra.Command, paths []string) error {
	cfg, err := a.opts.loadConfig(cmd)
	if err != nil {
		return err
	}

	console := report.NewLogger(report.ParseLogLevel(cfg.Logging.Verbosity), cmd.OutOrStdout(), a.opts.colorEnabled())

	log, err := logging.New(logging.Options{
		Verbosity: cfg.Logging.Verbosity,
		File:      cfg.Logging.File,
		Dir:       cfg.Logging.Dir,
		Console:   cmd.ErrOrStderr(),
	})
	if err != nil {
		console.Warningf("file logging disabled: %v", err)
	}
	defer func() { _ = log.Close() }()

	_, scenarios, err := loadScenarios(cfg, paths)
	if err != nil {
		return err
	}
	if len(scenarios) == 0 {
		return errors.New("no scenarios selected")
	}

	console.Header(fmt.Sprintf("flowcheck %s", version))
	console.Infof("Run: %s", log.RunID())
	console.Infof("Scenarios: %d (driver %s, parallel %d)", len(scenarios), cfg.Driver, cfg.Parallelism)
	if path := log.LogPath(); path != "" {
		console.Verbosef("Log file: %s", path)
	}

	tracer, shutdownTracing, err := newTracer(cfg.Tracing)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	collector := metrics.NewCollector(log.Logger)

	drv, release, err := a.newDriver(cfg, log.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			log.Warn("failed to stop driver", zap.Error(err))
		}
	}()

	eng := engine.New(drv, cfg.Engine,
		engine.WithLogger(log.Logger),
		engine.WithTracer(tracer),
		engine.WithRecorder(collector),
	)
	r := runner.New(eng, cfg.Parallelism,
		runner.WithLogger(log.Logger),
		runner.OnResult(console.ScenarioFinished),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console.Section("Scenarios")
	start := time.Now()
	results := r.Run(ctx, scenarios)
	summary := report.NewSummary(log.RunID(), results, start, time.Now())

	if ctx.Err() != nil && cmd.Context().Err() == nil {
		console.Warningf("run interrupted")
	}
	console.Summary(summary)

	if cfg.Artifacts.Enabled {
		w := report.NewArtifactWriter(cfg.Artifacts.OutputDir)
		w.JSON = cfg.Artifacts.JSON
		w.Markdown = cfg.Artifacts.Markdown
		w.Metrics = cfg.Artifacts.Metrics
		if err := w.WriteAll(summary); err != nil {
			console.Errorf("failed to write artifacts: %v", err)
		} else {
			console.Infof("Artifacts written to %s", cfg.Artifacts.OutputDir)
		}
	}
	if cfg.Metrics.Textfile != "" {
		if err := collector.WriteToTextfile(cfg.Metrics.Textfile); err != nil {
			console.Errorf("%v", err)
		}
	}

	log.Info("run completed",
		zap.String("status", summary.Status),
		zap.Duration("duration", summary.Duration),
		zap.Int("scenarios", summary.Metrics.Scenarios))

	if code := summary.ExitCode(); code != report.ExitPassed {
		return &exitError{code: code}
	}
	return nil
}

// newTracer returns the engine tracer and a function flushing it.
func newTracer(cfg config.TracingConfig) (trace.Tracer, func(), error) {
	if !cfg.Enabled {
		return telemetry.Disabled(), func() {}, nil
	}

	opts := telemetry.Options{Version: version, Pretty: true}
	var (
		tp  *telemetry.TracerProvider
		err error
	)
	if cfg.Output != "" {
		tp, err = telemetry.NewFileTracerProvider(cfg.Output, opts)
	} else {
		tp, err = telemetry.NewTracerProvider(opts)
	}
	if err != nil {
		return nil, nil, err
	}

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to flush traces: %v\n", err)
		}
	}
	return tp.Tracer(engine.TracerName), shutdown, nil
}
