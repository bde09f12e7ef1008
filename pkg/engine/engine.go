package engine

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/entrhq/flowcheck/pkg/driver"
)

// TracerName names the tracer used for scenario and step spans.
const TracerName = "github.com/entrhq/flowcheck/pkg/engine"

// Recorder receives measurements from runs. Implementations must be safe for
// concurrent use because scenarios may run in parallel.
type Recorder interface {
	ScenarioFinished(scenario string, verdict Verdict, elapsed time.Duration)
	StepFinished(kind StepKind, alternate bool, err error, elapsed time.Duration)
	SettleFinished(report SettleReport)
}

type nopRecorder struct{}

func (nopRecorder) ScenarioFinished(string, Verdict, time.Duration) {}
func (nopRecorder) StepFinished(StepKind, bool, error, time.Duration) {}
func (nopRecorder) SettleFinished(SettleReport) {}

// Engine runs scenarios against browsers from one driver. An Engine holds no
// per-run state and may run many scenarios concurrently.
type Engine struct {
	drv      driver.Driver
	cfg      Config
	logger   *zap.Logger
	tracer   trace.Tracer
	recorder Recorder

	waiter    *Waiter
	resolver  *Resolver
	exec      *Executor
	validator *Validator
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTracer sets the tracer used for scenario and step spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// New creates an Engine. cfg is expected to have passed Validate.
func New(drv driver.Driver, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		drv:      drv,
		cfg:      cfg,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(TracerName),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.resolver = &Resolver{}
	e.waiter = NewWaiter(cfg.SettleConcurrency, e.logger)
	e.exec = NewExecutor(e.resolver, cfg.SettleDelay)
	e.validator = NewValidator(e.exec, e.resolver, cfg.PollInterval, e.logger)
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }
