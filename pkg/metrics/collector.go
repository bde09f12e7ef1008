// Package metrics exports run measurements in the Prometheus format.
package metrics

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/entrhq/flowcheck/pkg/engine"
)

// Namespace prefixes every metric name
const Namespace = "flowcheck"

// Collector records scenario, step and settle measurements. It implements
// engine.Recorder and owns its registry, so several collectors can coexist.
type Collector struct {
	registry *prometheus.Registry

	scenariosTotal   *prometheus.CounterVec
	scenarioDuration *prometheus.HistogramVec
	stepsTotal       *prometheus.CounterVec
	stepDuration     *prometheus.HistogramVec
	settleFrames     *prometheus.CounterVec
	settleDuration   prometheus.Histogram

	logger *zap.Logger
}

var _ engine.Recorder = (*Collector)(nil)

// NewCollector creates a collector with a fresh registry.
func NewCollector(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),

		scenariosTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "scenarios_total",
				Help:      "Total number of finished scenarios by verdict",
			},
			[]string{"scenario", "status"},
		),
		scenarioDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "scenario_duration_seconds",
				Help:      "Scenario wall-clock duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		stepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "steps_total",
				Help:      "Total number of step attempts",
			},
			[]string{"kind", "alternate", "result"}, // result: ok, error
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "step_duration_seconds",
				Help:      "Step attempt duration in seconds, settle delay included",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		),
		settleFrames: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "settle_frames_total",
				Help:      "Frames waited on during settles by result",
			},
			[]string{"result"}, // result: reached, timeout, failed
		),
		settleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "settle_duration_seconds",
				Help:      "Duration of page settles in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

// Registry exposes the collector's registry, for serving or gathering.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ScenarioFinished implements engine.Recorder.
func (c *Collector) ScenarioFinished(scenario string, verdict engine.Verdict, elapsed time.Duration) {
	status := string(verdict.Status)
	c.scenariosTotal.WithLabelValues(scenario, status).Inc()
	c.scenarioDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// StepFinished implements engine.Recorder.
func (c *Collector) StepFinished(kind engine.StepKind, alternate bool, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.stepsTotal.WithLabelValues(string(kind), strconv.FormatBool(alternate), result).Inc()
	c.stepDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// SettleFinished implements engine.Recorder.
func (c *Collector) SettleFinished(report engine.SettleReport) {
	c.settleFrames.WithLabelValues("reached").Add(float64(report.Reached))
	c.settleFrames.WithLabelValues("timeout").Add(float64(report.TimedOut))
	c.settleFrames.WithLabelValues("failed").Add(float64(report.Failed))
	c.settleDuration.Observe(report.Elapsed.Seconds())
}

// WriteToTextfile writes every metric to path in the Prometheus text format, for
// the node_exporter textfile collector.
func (c *Collector) WriteToTextfile(path string) error {
	if path == "" {
		return errors.New("metrics textfile path is empty")
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	c.logger.Debug("metrics written", zap.String("path", path))
	return nil
}
