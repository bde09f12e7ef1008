// Package roddriver implements the driver interfaces on top of go-rod, talking to
// Chromium over the DevTools protocol without a Node.js sidecar.
//
// Each Launch starts (or attaches to) one Chromium process. A driver.Context maps to
// an incognito browser context, so pages and cookies are never shared between
// sessions.
//
// The text selector strategy is a case-insensitive substring match on the
// innermost element's normalized text, like Playwright's unquoted text= selector.
package roddriver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"go.uber.org/zap"

	"github.com/entrhq/flowcheck/pkg/driver"
)

// Name is the backend name used in configuration.
const Name = "rod"

// Driver launches Chromium through go-rod's launcher.
type Driver struct {
	// Bin is an optional Chromium binary. Empty lets rod find or download one.
	Bin    string
	logger *zap.Logger
}

// New creates a driver.
func New(bin string, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{Bin: bin, logger: logger}
}

func (d *Driver) Name() string { return Name }

// Launch implements driver.Driver. With opts.Endpoint set it attaches to a running
// Chromium instead of starting one; the attached browser is left running on Close.
func (d *Driver) Launch(ctx context.Context, opts driver.LaunchOptions) (driver.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	launchCtx, cancel := context.WithTimeout(ctx, driver.Clamp(ctx, opts.Timeout))
	defer cancel()

	var (
		l          *launcher.Launcher
		controlURL string
		err        error
	)
	if opts.Endpoint != "" {
		controlURL, err = launcher.ResolveURL(opts.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve endpoint %s: %w", opts.Endpoint, translate(err))
		}
	} else {
		l = newLauncher(d.Bin, opts).Context(launchCtx)
		controlURL, err = l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", translate(err))
		}
	}

	// The connection outlives the launch deadline
	b := rod.New().ControlURL(controlURL).Context(context.WithoutCancel(ctx))
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("failed to connect to browser: %w", translate(err))
	}

	d.logger.Debug("browser launched",
		zap.String("control_url", controlURL),
		zap.Bool("headless", opts.Headless),
		zap.Bool("connected", opts.Endpoint != ""))
	return &browser{b: b, launcher: l}, nil
}

func newLauncher(bin string, opts driver.LaunchOptions) *launcher.Launcher {
	l := launcher.New().Headless(opts.Headless)
	if bin != "" {
		l = l.Bin(bin)
	}
	for _, arg := range opts.Args {
		name, values := parseArg(arg)
		if name == "" {
			continue
		}
		l = l.Set(name, values...)
	}
	return l
}

// parseArg splits a Chromium switch such as "--window-size=1280,720" into a
// launcher flag and its comma separated values.
func parseArg(arg string) (flags.Flag, []string) {
	name, value, hasValue := strings.Cut(strings.TrimLeft(strings.TrimSpace(arg), "-"), "=")
	if name == "" {
		return "", nil
	}
	if !hasValue {
		return flags.Flag(name), nil
	}
	return flags.Flag(name), strings.Split(value, ",")
}

// translate maps rod errors onto driver sentinels, keeping the original in the chain.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", driver.ErrTimeout, err)
	case errors.Is(err, cdp.ErrSessionNotFound),
		errors.Is(err, cdp.ErrObjNotFound),
		errors.Is(err, cdp.ErrCtxDestroyed):
		return fmt.Errorf("%w: %w", driver.ErrClosed, err)
	default:
		return err
	}
}
