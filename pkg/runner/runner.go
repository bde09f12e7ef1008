// Package runner executes many scenarios as independent engine runs.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/entrhq/flowcheck/pkg/engine"
)

// Runner runs scenarios concurrently. Scenarios share nothing but the engine,
// which holds no per-run state, and each run owns its browser session.
type Runner struct {
	engine      *engine.Engine
	parallelism int
	logger      *zap.Logger
	onResult    func(*engine.Result)
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// OnResult registers fn to be called as each scenario finishes. Calls may come
// from several goroutines at once.
func OnResult(fn func(*engine.Result)) Option {
	return func(r *Runner) {
		r.onResult = fn
	}
}

// New creates a runner executing at most parallelism scenarios at a time.
func New(eng *engine.Engine, parallelism int, opts ...Option) *Runner {
	r := &Runner{
		engine:      eng,
		parallelism: max(parallelism, 1),
		logger:      zap.NewNop(),
		onResult:    func(*engine.Result) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes scenarios and returns their results in input order. Scenarios
// still waiting for a slot when ctx ends are reported as errored without
// launching a browser.
func (r *Runner) Run(ctx context.Context, scenarios []engine.Scenario) []*engine.Result {
	results := make([]*engine.Result, len(scenarios))
	sem := semaphore.NewWeighted(int64(r.parallelism))

	r.logger.Info("starting run",
		zap.Int("scenarios", len(scenarios)),
		zap.Int("parallelism", r.parallelism))

	var wg sync.WaitGroup
	for i, sc := range scenarios {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(scenarios); j++ {
				results[j] = notStarted(scenarios[j], err)
				r.onResult(results[j])
			}
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			res := r.engine.Run(ctx, sc)
			results[i] = res
			r.onResult(res)
		}()
	}
	wg.Wait()

	return results
}

func notStarted(sc engine.Scenario, cause error) *engine.Result {
	now := time.Now()
	return &engine.Result{
		RunID:    uuid.NewString(),
		Scenario: sc.Name,
		Tags:     sc.Tags,
		State:    engine.StateCompleted,
		Verdict:  engine.Errored(fmt.Errorf("scenario not started: %w", cause)),
		Start:    now,
		End:      now,
	}
}
