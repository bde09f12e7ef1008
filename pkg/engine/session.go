package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/entrhq/flowcheck/pkg/driver"
)

// Session owns the browser process, its isolated context and every page opened in it.
// It is used by exactly one scenario run.
type Session struct {
	browser driver.Browser
	context driver.Context
	logger  *zap.Logger
	created time.Time

	releaseOnce sync.Once
	releaseErr  error
}

// AcquireSession launches a browser, creates an isolated context and opens the first page.
// On failure every handle created so far is closed and nil is returned. A driver
// panic is returned as an ErrSessionSetup error.
func AcquireSession(ctx context.Context, drv driver.Driver, cfg SessionConfig, logger *zap.Logger) (s *Session, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		browser driver.Browser
		bctx    driver.Context
	)
	defer func() {
		if p := recover(); p != nil {
			if bctx != nil {
				_ = bctx.Close()
			}
			if browser != nil {
				_ = browser.Close()
			}
			logger.Error("driver panicked during session setup", zap.Any("panic", p))
			s, err = nil, fmt.Errorf("%w: %s driver panicked: %v", ErrSessionSetup, drv.Name(), p)
		}
	}()

	launchCtx := ctx
	if cfg.Launch.Timeout > 0 {
		var cancel context.CancelFunc
		launchCtx, cancel = context.WithTimeout(ctx, cfg.Launch.Timeout)
		defer cancel()
	}

	browser, err = drv.Launch(launchCtx, cfg.Launch)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to launch %s browser: %w", ErrSessionSetup, drv.Name(), err)
	}

	bctx, err = browser.NewContext(launchCtx, cfg.Context)
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("%w: failed to create context: %w", ErrSessionSetup, err)
	}

	if _, err = bctx.NewPage(launchCtx); err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		return nil, fmt.Errorf("%w: failed to create page: %w", ErrSessionSetup, err)
	}

	logger.Debug("session acquired",
		zap.String("driver", drv.Name()),
		zap.Bool("headless", cfg.Launch.Headless),
		zap.Int("viewport_width", cfg.Context.Viewport.Width),
		zap.Int("viewport_height", cfg.Context.Viewport.Height))

	return &Session{
		browser: browser,
		context: bctx,
		logger:  logger,
		created: time.Now(),
	}, nil
}

// Context returns the session's browser context.
func (s *Session) Context() driver.Context { return s.context }

// CurrentPage returns the most recently opened page that is still open, or nil.
func (s *Session) CurrentPage() driver.Page {
	pages := s.context.Pages()
	if len(pages) == 0 {
		return nil
	}
	return pages[len(pages)-1]
}

// Release closes every page, the context and the browser. Each close is attempted
// even if an earlier one failed. Only the first call does any work; later calls
// return the same error.
func (s *Session) Release() error {
	s.releaseOnce.Do(func() {
		var errs []error
		for _, page := range s.context.Pages() {
			if err := page.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close page %s: %w", page.URL(), err))
			}
		}
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close context: %w", err))
		}
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
		s.releaseErr = errors.Join(errs...)

		s.logger.Debug("session released",
			zap.Duration("lifetime", time.Since(s.created)),
			zap.Error(s.releaseErr))
	})
	return s.releaseErr
}
