// Package pwdriver implements the driver interfaces on top of Playwright.
//
// A single Playwright instance is started lazily on the first Launch and shared by
// every browser launched through the Driver. Call Shutdown once all sessions have
// been released.
//
// Playwright calls are synchronous and cannot observe a context.Context. Every call
// is instead given an explicit timeout, clamped to the context deadline by the
// caller, and the context is checked before each call.
package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/entrhq/flowcheck/pkg/driver"
)

// Name is the backend name used in configuration.
const Name = "playwright"

// Driver launches Chromium through Playwright.
type Driver struct {
	mu          sync.Mutex
	pw          *playwright.Playwright
	install     bool
	logger      *zap.Logger
	initialized bool
}

// New creates a driver. When install is true the Playwright driver and browsers
// are downloaded on first use if missing.
func New(install bool, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{install: install, logger: logger}
}

func (d *Driver) Name() string { return Name }

// Initialize starts Playwright. It is called by Launch when needed.
func (d *Driver) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return nil
	}

	// Playwright's own progress output would interleave with run logs
	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if d.install {
		if err := playwright.Install(opts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	d.pw = pw
	d.initialized = true
	d.logger.Debug("playwright started")
	return nil
}

// Launch implements driver.Driver. With opts.Endpoint set it attaches to a running
// Chromium over CDP instead of starting one.
func (d *Driver) Launch(ctx context.Context, opts driver.LaunchOptions) (driver.Browser, error) {
	if err := d.Initialize(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout := playwright.Float(driver.Millis(driver.Clamp(ctx, opts.Timeout)))

	var (
		b   playwright.Browser
		err error
	)
	if opts.Endpoint != "" {
		b, err = d.pw.Chromium.ConnectOverCDP(opts.Endpoint, playwright.BrowserTypeConnectOverCDPOptions{
			Timeout: timeout,
		})
	} else {
		b, err = d.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(opts.Headless),
			Args:     opts.Args,
			Timeout:  timeout,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", translate(err))
	}

	d.logger.Debug("browser launched",
		zap.String("version", b.Version()),
		zap.Bool("headless", opts.Headless),
		zap.Bool("connected", opts.Endpoint != ""))
	return &browser{b: b}, nil
}

// Shutdown stops Playwright.
func (d *Driver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized || d.pw == nil {
		return nil
	}
	if err := d.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	d.initialized = false
	d.pw = nil
	return nil
}

// translate maps Playwright errors onto driver sentinels, keeping the original in the chain.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, playwright.ErrTimeout):
		return fmt.Errorf("%w: %w", driver.ErrTimeout, err)
	case errors.Is(err, playwright.ErrTargetClosed):
		return fmt.Errorf("%w: %w", driver.ErrClosed, err)
	default:
		return err
	}
}
