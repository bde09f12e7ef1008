package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/entrhq/flowcheck/pkg/driver"
)

// run is the mutable state of one scenario execution. It is never shared.
type run struct {
	e       *Engine
	sc      Scenario
	res     *Result
	session *Session
	logger  *zap.Logger

	// page is the current page: the last one opened in the session's context.
	page driver.Page
}

// Run executes sc once and returns its result. It never panics and always
// releases the browser session it acquired.
func (e *Engine) Run(ctx context.Context, sc Scenario) (res *Result) {
	res = &Result{
		RunID:    uuid.NewString(),
		Scenario: sc.Name,
		Tags:     sc.Tags,
		State:    StateInit,
		Start:    time.Now(),
	}
	logger := e.logger.With(zap.String("scenario", sc.Name), zap.String("run_id", res.RunID))

	ctx, span := e.tracer.Start(ctx, "scenario "+sc.Name, trace.WithAttributes(
		attribute.String("flowcheck.run_id", res.RunID),
		attribute.Int("flowcheck.steps", len(sc.Steps)),
		attribute.StringSlice("flowcheck.tags", sc.Tags),
	))

	defer func() {
		res.End = time.Now()
		res.State = StateCompleted
		span.SetAttributes(attribute.String("flowcheck.verdict", string(res.Verdict.Status)))
		if res.Verdict.Status != StatusPass {
			span.SetStatus(codes.Error, res.Verdict.Reason)
		}
		span.End()
		e.recorder.ScenarioFinished(sc.Name, res.Verdict, res.Duration())
		logger.Info("scenario completed",
			zap.String("verdict", res.Verdict.String()),
			zap.Duration("duration", res.Duration()),
			zap.Int("alternates_used", res.AlternatesUsed()))
	}()

	// Covers session setup as well as the steps.
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("%w: %v", ErrUnexpected, p)
			span.RecordError(err)
			logger.Error("scenario panicked", zap.Any("panic", p))
			res.Verdict = Errored(err)
		}
	}()

	if err := sc.Validate(); err != nil {
		res.Verdict = Errored(err)
		return res
	}

	budget := sc.Budget
	if budget <= 0 {
		budget = e.cfg.ScenarioBudget
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	session, err := AcquireSession(ctx, e.drv, e.cfg.Session(), logger)
	if err != nil {
		span.RecordError(err)
		res.Verdict = Errored(err)
		return res
	}
	defer func() {
		if err := session.Release(); err != nil {
			res.ReleaseErr = err
			logger.Warn("failed to release session", zap.Error(err))
		}
	}()

	r := &run{e: e, sc: sc, res: res, session: session, logger: logger}

	res.State = StateRunning
	logger.Info("scenario started", zap.Duration("budget", budget), zap.Int("steps", len(sc.Steps)))
	res.Verdict = r.execute(ctx)
	return res
}

// execute walks the steps and then evaluates the expected outcome.
func (r *run) execute(ctx context.Context) Verdict {
	for i, step := range r.sc.Steps {
		if err := expired(ctx); err != nil {
			return interrupted(err)
		}
		if v, done := r.step(ctx, i, step); done {
			return v
		}
	}

	if err := expired(ctx); err != nil {
		return interrupted(err)
	}
	if err := r.refresh(); err != nil {
		return Errored(err)
	}
	r.settle(ctx, r.e.cfg.SettleState, r.e.cfg.SettleTimeout)

	timeout := r.sc.Expect.Timeout
	if timeout <= 0 {
		timeout = r.e.cfg.AssertTimeout
	}
	return r.e.validator.Evaluate(ctx, r.page, r.sc.Expect, timeout)
}

// step runs one step, falling back to its alternate once on a recoverable failure.
// done is true when the scenario must stop with v.
func (r *run) step(ctx context.Context, i int, step Step) (v Verdict, done bool) {
	err := r.attempt(ctx, i, step, false)
	if err == nil {
		return Verdict{}, false
	}
	if v, stop := r.classify(ctx, err); stop {
		return v, true
	}

	if IsRecoverable(err) && step.Alternate != nil {
		r.logger.Info("primary step failed, trying alternate",
			zap.Int("step", i+1),
			zap.String("name", step.Label()),
			zap.Error(err))

		err = r.attempt(ctx, i, *step.Alternate, true)
		if err == nil {
			return Verdict{}, false
		}
		if v, stop := r.classify(ctx, err); stop {
			return v, true
		}
		return Errored(&StepError{Index: i, Step: step.Alternate.Label(), Alternate: true, Err: err}), true
	}

	return Errored(&StepError{Index: i, Step: step.Label(), Err: err}), true
}

// classify handles failures that are never retried: budget expiry and failed assertions.
func (r *run) classify(ctx context.Context, err error) (Verdict, bool) {
	if ctxErr := expired(ctx); ctxErr != nil {
		return interrupted(ctxErr), true
	}
	var assertErr *assertionError
	if errors.As(err, &assertErr) {
		return assertErr.verdict, true
	}
	return Verdict{}, false
}

// attempt performs a single step against the current page.
func (r *run) attempt(ctx context.Context, i int, step Step, alternate bool) (err error) {
	start := time.Now()
	ctx, span := r.e.tracer.Start(ctx, "step "+string(step.Kind), trace.WithAttributes(
		attribute.Int("flowcheck.step", i+1),
		attribute.String("flowcheck.step_name", step.Label()),
		attribute.Bool("flowcheck.alternate", alternate),
	))
	defer func() {
		elapsed := time.Since(start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		r.res.Steps = append(r.res.Steps, StepRecord{
			Index:     i,
			Name:      step.Label(),
			Kind:      step.Kind,
			Alternate: alternate,
			Duration:  elapsed,
			Err:       err,
		})
		r.e.recorder.StepFinished(step.Kind, alternate, err, elapsed)
		r.logger.Debug("step finished",
			zap.Int("step", i+1),
			zap.String("kind", string(step.Kind)),
			zap.String("name", step.Label()),
			zap.Bool("alternate", alternate),
			zap.Duration("duration", elapsed),
			zap.Error(err))
	}()

	if err := r.refresh(); err != nil {
		return err
	}
	r.settle(ctx, r.e.cfg.SettleState, r.e.cfg.SettleTimeout)
	cfg := r.e.cfg

	switch step.Kind {
	case StepNavigate:
		target, err := r.resolveURL(step.Value)
		if err != nil {
			return err
		}
		err = r.e.exec.Navigate(ctx, r.page, target, step.WaitUntil, orDefault(step.Timeout, cfg.NavigationTimeout))
		if errors.Is(err, ErrNavigationTimeout) {
			r.logger.Warn("navigation did not commit in time, continuing", zap.String("url", target), zap.Error(err))
			err = nil
		}
		if err != nil {
			return err
		}
		return r.refresh()

	case StepWait:
		if step.Target == nil {
			state := step.WaitUntil
			if state == "" {
				state = cfg.SettleState
			}
			r.settle(ctx, state, orDefault(step.Timeout, cfg.SettleTimeout))
			return nil
		}
		frame, err := r.e.resolver.Frame(r.page, *step.Target)
		if err != nil {
			return err
		}
		return r.e.exec.WaitFor(ctx, frame, *step.Target, orDefault(step.Timeout, cfg.ActionTimeout))

	case StepClick:
		frame, err := r.e.resolver.Frame(r.page, *step.Target)
		if err != nil {
			return err
		}
		if err := r.e.exec.Click(ctx, frame, *step.Target, orDefault(step.Timeout, cfg.ActionTimeout)); err != nil {
			return err
		}
		return r.refresh()

	case StepFill:
		frame, err := r.e.resolver.Frame(r.page, *step.Target)
		if err != nil {
			return err
		}
		return r.e.exec.Fill(ctx, frame, *step.Target, step.Value, orDefault(step.Timeout, cfg.ActionTimeout))

	case StepAssert:
		timeout := orDefault(step.Timeout, orDefault(step.Expect.Timeout, cfg.AssertTimeout))
		v := r.e.validator.Evaluate(ctx, r.page, *step.Expect, timeout)
		switch v.Status {
		case StatusPass:
			return nil
		case StatusFail:
			return &assertionError{verdict: v}
		default:
			return v.Cause
		}

	default:
		return fmt.Errorf("unknown step kind %q", step.Kind)
	}
}

// refresh re-reads the current page from the session.
func (r *run) refresh() error {
	page := r.session.CurrentPage()
	if page == nil {
		return ErrNoPage
	}
	if page != r.page && r.page != nil {
		r.logger.Debug("current page changed", zap.String("url", page.URL()))
	}
	r.page = page
	return nil
}

func (r *run) settle(ctx context.Context, state driver.LoadState, timeout time.Duration) {
	report := r.e.waiter.Settle(ctx, r.page, state, timeout)
	r.e.recorder.SettleFinished(report)
}

func (r *run) resolveURL(ref string) (string, error) {
	if r.sc.BaseURL == "" {
		return ref, nil
	}
	base, err := url.Parse(r.sc.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", r.sc.BaseURL, err)
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", ref, err)
	}
	return base.ResolveReference(rel).String(), nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
