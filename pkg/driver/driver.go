// Package driver defines the browser automation boundary used by the flow engine.
//
// The engine never talks to a concrete automation library. It depends only on the
// capability set declared here: launching a browser process with flags, creating
// isolated contexts and pages, navigating with a wait-until mode, waiting for
// per-frame readiness, resolving elements by structural selector, clicking,
// filling, reading text and closing handles. Any backend that implements these
// interfaces is substitutable:
//
//   - pwdriver: Playwright (default)
//   - roddriver: Chrome DevTools Protocol through go-rod
//   - drivertest: scriptable in-memory fake for tests
//
// All blocking calls take a context and an explicit timeout. Backends must map
// their own timeout failures onto ErrTimeout so the engine can classify them.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// LoadState is a page or frame readiness state.
type LoadState string

const (
	// LoadStateCommit is reached as soon as the navigation response is committed.
	LoadStateCommit LoadState = "commit"
	// LoadStateDOMContentLoaded is reached when the DOMContentLoaded event fired.
	LoadStateDOMContentLoaded LoadState = "domcontentloaded"
	// LoadStateLoad is reached when the load event fired.
	LoadStateLoad LoadState = "load"
	// LoadStateNetworkIdle is reached when there has been no network activity for a while.
	LoadStateNetworkIdle LoadState = "networkidle"
)

// ParseLoadState validates a load state name.
func ParseLoadState(s string) (LoadState, error) {
	switch state := LoadState(s); state {
	case LoadStateCommit, LoadStateDOMContentLoaded, LoadStateLoad, LoadStateNetworkIdle:
		return state, nil
	default:
		return "", fmt.Errorf("invalid load state: %s (must be 'commit', 'domcontentloaded', 'load', or 'networkidle')", s)
	}
}

// Strategy selects the selector engine used to find elements.
type Strategy string

const (
	StrategyXPath Strategy = "xpath"
	StrategyCSS   Strategy = "css"
	StrategyText  Strategy = "text"
)

// Selector is a structural element query.
type Selector struct {
	Strategy Strategy
	Value    string
}

// String renders the selector in engine-prefixed form, e.g. "xpath=html/body/div".
func (s Selector) String() string {
	return string(s.Strategy) + "=" + s.Value
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// LaunchOptions configures a browser process.
type LaunchOptions struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Args are extra command line flags passed to the browser process
	Args []string

	// Endpoint connects to an already running browser instead of launching one
	Endpoint string

	// Timeout bounds process start or connection
	Timeout time.Duration
}

// ContextOptions configures an isolated browser context.
type ContextOptions struct {
	Viewport Viewport

	// DefaultTimeout applies to actions that are not given an explicit timeout
	DefaultTimeout time.Duration

	// NavigationTimeout applies to navigations that are not given an explicit timeout
	NavigationTimeout time.Duration
}

// Driver launches browser processes.
type Driver interface {
	// Name identifies the backend in logs and errors.
	Name() string

	// Launch starts (or connects to) a browser process.
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Browser is one browser process.
type Browser interface {
	NewContext(ctx context.Context, opts ContextOptions) (Context, error)
	Close() error
}

// Context is an isolated cookie and storage realm. Closing it closes all of its pages.
type Context interface {
	NewPage(ctx context.Context) (Page, error)

	// Pages returns the open pages in the order they were opened.
	Pages() []Page

	Close() error
}

// Page is a navigable document with a tree of frames.
type Page interface {
	URL() string

	// Goto navigates the page and returns once waitUntil is reached.
	Goto(ctx context.Context, url string, waitUntil LoadState, timeout time.Duration) error

	MainFrame() Frame

	// Frames returns every frame currently attached to the page, main frame first.
	Frames() []Frame

	Close() error
}

// Frame is one node of a page's frame tree.
type Frame interface {
	Name() string
	URL() string
	IsMain() bool

	// WaitForLoadState blocks until the frame reaches state or timeout elapses.
	WaitForLoadState(ctx context.Context, state LoadState, timeout time.Duration) error

	// Locator returns a lazy query. Nothing is resolved until a method is called on it.
	Locator(sel Selector) Locator
}

// Locator is a lazy element query scoped to one frame.
type Locator interface {
	// Count returns the number of matching elements right now, without waiting.
	Count(ctx context.Context) (int, error)

	// Nth narrows the query to the element at index.
	Nth(index int) Locator

	Click(ctx context.Context, timeout time.Duration) error
	Fill(ctx context.Context, value string, timeout time.Duration) error
	TextContent(ctx context.Context, timeout time.Duration) (string, error)
	IsVisible(ctx context.Context) (bool, error)

	// WaitVisible blocks until the element is attached and visible.
	WaitVisible(ctx context.Context, timeout time.Duration) error
}

var (
	// ErrTimeout is returned (wrapped) by backends when an operation did not complete in time.
	ErrTimeout = errors.New("driver: timeout")

	// ErrClosed is returned (wrapped) when the page, frame or element went away mid-operation.
	ErrClosed = errors.New("driver: target closed")
)

// minTimeout keeps clamped timeouts positive. Several backends treat zero as "wait forever".
const minTimeout = time.Millisecond

// Clamp bounds timeout by the time left before ctx's deadline.
func Clamp(ctx context.Context, timeout time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout < minTimeout {
		return minTimeout
	}
	return timeout
}

// Millis converts a duration to the float64 milliseconds most automation APIs expect.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
