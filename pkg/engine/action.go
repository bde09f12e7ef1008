package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/flowcheck/pkg/driver"
)

// Executor performs single browser actions under a timeout.
type Executor struct {
	resolver *Resolver

	// settleDelay is paused before each action. Tuning only; zero is valid.
	settleDelay time.Duration
}

// NewExecutor returns an Executor that pauses settleDelay before each action.
func NewExecutor(resolver *Resolver, settleDelay time.Duration) *Executor {
	return &Executor{resolver: resolver, settleDelay: settleDelay}
}

// Pause sleeps for the settle delay or until ctx ends.
func (x *Executor) Pause(ctx context.Context) error {
	if x.settleDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(x.settleDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Navigate sends page to url and returns once waitUntil is reached.
// A driver timeout is reported as ErrNavigationTimeout.
func (x *Executor) Navigate(ctx context.Context, page driver.Page, url string, waitUntil driver.LoadState, timeout time.Duration) error {
	if err := x.Pause(ctx); err != nil {
		return err
	}
	if waitUntil == "" {
		waitUntil = driver.LoadStateCommit
	}
	err := page.Goto(ctx, url, waitUntil, driver.Clamp(ctx, timeout))
	switch {
	case err == nil:
		return nil
	case expired(ctx) != nil:
		return expired(ctx)
	case errors.Is(err, driver.ErrTimeout):
		return fmt.Errorf("%w: %s: %w", ErrNavigationTimeout, url, err)
	default:
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
}

// Click resolves loc in frame and clicks it.
func (x *Executor) Click(ctx context.Context, frame driver.Frame, loc Locator, timeout time.Duration) error {
	target, err := x.prepare(ctx, frame, loc)
	if err != nil {
		return err
	}
	return actionError(ctx, "click", loc, target.Click(ctx, driver.Clamp(ctx, timeout)))
}

// Fill resolves loc in frame and replaces its value.
func (x *Executor) Fill(ctx context.Context, frame driver.Frame, loc Locator, value string, timeout time.Duration) error {
	target, err := x.prepare(ctx, frame, loc)
	if err != nil {
		return err
	}
	return actionError(ctx, "fill", loc, target.Fill(ctx, value, driver.Clamp(ctx, timeout)))
}

// ReadText returns the text content of loc.
func (x *Executor) ReadText(ctx context.Context, frame driver.Frame, loc Locator, timeout time.Duration) (string, error) {
	target, err := x.prepare(ctx, frame, loc)
	if err != nil {
		return "", err
	}
	text, err := target.TextContent(ctx, driver.Clamp(ctx, timeout))
	if err != nil {
		if errors.Is(err, driver.ErrClosed) {
			return "", fmt.Errorf("%w: %s: %w", ErrLocatorNotFound, loc, err)
		}
		return "", actionError(ctx, "read", loc, err)
	}
	return text, nil
}

// WaitFor waits until loc is attached and visible. Unlike the other actions it
// does not require the element to exist up front.
func (x *Executor) WaitFor(ctx context.Context, frame driver.Frame, loc Locator, timeout time.Duration) error {
	if err := x.Pause(ctx); err != nil {
		return err
	}
	target := frame.Locator(loc.Selector()).Nth(loc.Index)
	return actionError(ctx, "wait for", loc, target.WaitVisible(ctx, driver.Clamp(ctx, timeout)))
}

func (x *Executor) prepare(ctx context.Context, frame driver.Frame, loc Locator) (driver.Locator, error) {
	if err := x.Pause(ctx); err != nil {
		return nil, err
	}
	return x.resolver.Resolve(ctx, frame, loc)
}

// actionError classifies a driver failure. Budget expiry wins over everything else.
func actionError(ctx context.Context, op string, loc Locator, err error) error {
	switch {
	case err == nil:
		return nil
	case expired(ctx) != nil:
		return expired(ctx)
	case errors.Is(err, driver.ErrTimeout), errors.Is(err, driver.ErrClosed):
		return fmt.Errorf("%w: %s %s: %w", ErrActionTimeout, op, loc, err)
	default:
		return fmt.Errorf("%s %s: %w", op, loc, err)
	}
}

// expired is ctx.Err, but also reports a deadline that has passed before the
// context's timer fired.
func expired(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return context.DeadlineExceeded
	}
	return nil
}
