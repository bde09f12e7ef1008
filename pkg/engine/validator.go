package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/entrhq/flowcheck/pkg/driver"
)

// Validator decides whether an expected outcome is observed on a page.
type Validator struct {
	exec     *Executor
	resolver *Resolver
	poll     time.Duration
	logger   *zap.Logger
}

// NewValidator returns a Validator that re-checks the page every poll.
func NewValidator(exec *Executor, resolver *Resolver, poll time.Duration, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{exec: exec, resolver: resolver, poll: poll, logger: logger}
}

// Evaluate polls page until out is observed (Pass) or timeout elapses (Fail).
// If ctx ends first or the page closes the verdict is Error.
func (v *Validator) Evaluate(ctx context.Context, page driver.Page, out Outcome, timeout time.Duration) Verdict {
	if err := v.exec.Pause(ctx); err != nil {
		return interrupted(err)
	}

	deadline := time.Now().Add(timeout)
	attempts := 0
	for {
		attempts++
		ok, err := v.observe(ctx, page, out)
		if err != nil {
			v.logger.Debug("page closed while checking outcome",
				zap.String("kind", string(out.Kind)),
				zap.Error(err))
			return Errored(fmt.Errorf("%w: %w", ErrNoPage, err))
		}
		if ok {
			v.logger.Debug("outcome observed",
				zap.String("kind", string(out.Kind)),
				zap.Int("attempts", attempts))
			return Pass()
		}
		if err := expired(ctx); err != nil {
			return interrupted(err)
		}

		left := time.Until(deadline)
		if left <= 0 {
			v.logger.Debug("outcome not observed",
				zap.String("kind", string(out.Kind)),
				zap.String("text", out.Text),
				zap.Int("attempts", attempts))
			return Fail(out.FailReason())
		}

		t := time.NewTimer(min(v.poll, left))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return interrupted(ctx.Err())
		}
	}
}

// observe reports whether out holds right now. A check that cannot read the
// page counts as not observed; only a closed page is returned as an error.
func (v *Validator) observe(ctx context.Context, page driver.Page, out Outcome) (bool, error) {
	switch out.Kind {
	case OutcomeTextVisible:
		visible, err := v.textVisible(ctx, page, out.Text)
		if visible {
			return true, nil
		}
		return false, closed(err)
	case OutcomeTextAbsent:
		visible, err := v.textVisible(ctx, page, out.Text)
		if err != nil {
			return false, closed(err)
		}
		return !visible, nil
	case OutcomeTargetText:
		frame, err := v.resolver.Frame(page, *out.Target)
		if err != nil {
			return false, closed(err)
		}
		target, err := v.resolver.Resolve(ctx, frame, *out.Target)
		if err != nil {
			return false, closed(err)
		}
		text, err := target.TextContent(ctx, driver.Clamp(ctx, v.poll))
		if err != nil {
			return false, closed(err)
		}
		return strings.Contains(text, out.Text), nil
	default:
		return false, nil
	}
}

// textVisible checks the first text match in every frame, read fresh. Errors
// from child frames are ignored; an error from the main frame is returned
// unless another frame shows the text.
func (v *Validator) textVisible(ctx context.Context, page driver.Page, text string) (bool, error) {
	sel := driver.Selector{Strategy: driver.StrategyText, Value: text}
	var mainErr error
	for _, frame := range page.Frames() {
		visible, err := frame.Locator(sel).Nth(0).IsVisible(ctx)
		switch {
		case err != nil && frame.IsMain():
			mainErr = err
		case err == nil && visible:
			return true, nil
		}
	}
	return false, mainErr
}

// closed keeps err only when it means the page went away.
func closed(err error) error {
	if errors.Is(err, driver.ErrClosed) {
		return err
	}
	return nil
}

// interrupted converts a context error into an Error verdict.
func interrupted(err error) Verdict {
	if errors.Is(err, context.DeadlineExceeded) {
		return Errored(ErrScenarioBudgetExceeded)
	}
	return Errored(err)
}
