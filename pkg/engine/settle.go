package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/flowcheck/pkg/driver"
)

// SettleReport summarizes one best-effort settle.
type SettleReport struct {
	State    driver.LoadState
	Frames   int
	Reached  int
	TimedOut int
	Failed   int
	Elapsed  time.Duration
}

// Complete reports whether every frame reached the state.
func (r SettleReport) Complete() bool { return r.Reached == r.Frames }

// Waiter waits for a page and its child frames to reach a load state.
type Waiter struct {
	limit  int
	logger *zap.Logger
}

// NewWaiter returns a Waiter that issues at most limit frame waits at once.
func NewWaiter(limit int, logger *zap.Logger) *Waiter {
	if limit < 1 {
		limit = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Waiter{limit: limit, logger: logger}
}

// Settle waits for the main frame and every currently attached child frame to reach
// state. Each frame wait is bounded by timeout (and by ctx). A frame that times out
// or errors is counted in the report and otherwise ignored, so Settle never fails.
func (w *Waiter) Settle(ctx context.Context, page driver.Page, state driver.LoadState, timeout time.Duration) SettleReport {
	start := time.Now()
	frames := page.Frames()
	report := SettleReport{State: state, Frames: len(frames)}
	timeout = driver.Clamp(ctx, timeout)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(w.limit)

	for _, frame := range frames {
		g.Go(func() error {
			err := frame.WaitForLoadState(ctx, state, timeout)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Reached++
			case errors.Is(err, driver.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
				report.TimedOut++
				w.logger.Debug("frame did not settle",
					zap.String("frame", frame.Name()),
					zap.String("url", frame.URL()),
					zap.String("state", string(state)))
			default:
				report.Failed++
				w.logger.Debug("frame wait failed",
					zap.String("frame", frame.Name()),
					zap.String("url", frame.URL()),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Elapsed = time.Since(start)
	return report
}
