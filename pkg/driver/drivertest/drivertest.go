// Package drivertest provides a scriptable in-memory browser driver.
//
// Pages are populated from Routes keyed by URL path. Frames can be made slow or
// impossible to settle, elements can be hidden, inert, delayed or wired to open
// new pages when clicked, and every handle counts how often it was closed.
package drivertest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/entrhq/flowcheck/pkg/driver"
)

// pollInterval is how often waiting operations re-check fake state.
const pollInterval = 5 * time.Millisecond

// Route populates a page after navigation to a path.
type Route struct {
	// Latency delays the navigation commit.
	Latency time.Duration

	// Build adds frames and elements to the freshly navigated page.
	Build func(p *Page)
}

// Driver is a fake driver.Driver.
type Driver struct {
	Routes map[string]Route

	LaunchErr       error
	NewContextErr   error
	NewPageErr      error
	BrowserCloseErr error
	ContextCloseErr error
	PageCloseErr    error

	// PanicOn makes "launch", "context" or "page" creation panic.
	PanicOn string

	mu       sync.Mutex
	browsers []*Browser
	launches atomic.Int32
}

// New returns a driver serving routes.
func New(routes map[string]Route) *Driver {
	if routes == nil {
		routes = make(map[string]Route)
	}
	return &Driver{Routes: routes}
}

func (d *Driver) Name() string { return "fake" }

// Launch implements driver.Driver.
func (d *Driver) Launch(ctx context.Context, opts driver.LaunchOptions) (driver.Browser, error) {
	d.launches.Add(1)
	if d.PanicOn == "launch" {
		panic("drivertest: launch panicked")
	}
	if d.LaunchErr != nil {
		return nil, d.LaunchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := &Browser{drv: d, Options: opts}
	d.mu.Lock()
	d.browsers = append(d.browsers, b)
	d.mu.Unlock()
	return b, nil
}

// Launches reports how many times Launch was called.
func (d *Driver) Launches() int { return int(d.launches.Load()) }

// Browsers returns every browser launched so far.
func (d *Driver) Browsers() []*Browser {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Browser(nil), d.browsers...)
}

// Browser is a fake driver.Browser.
type Browser struct {
	Options driver.LaunchOptions

	drv      *Driver
	mu       sync.Mutex
	contexts []*Context
	closes   atomic.Int32
}

// NewContext implements driver.Browser.
func (b *Browser) NewContext(ctx context.Context, opts driver.ContextOptions) (driver.Context, error) {
	if b.drv.PanicOn == "context" {
		panic("drivertest: new context panicked")
	}
	if b.drv.NewContextErr != nil {
		return nil, b.drv.NewContextErr
	}
	c := &Context{browser: b, Options: opts}
	b.mu.Lock()
	b.contexts = append(b.contexts, c)
	b.mu.Unlock()
	return c, nil
}

// Close implements driver.Browser.
func (b *Browser) Close() error {
	b.closes.Add(1)
	return b.drv.BrowserCloseErr
}

// Closes reports how many times Close was called.
func (b *Browser) Closes() int { return int(b.closes.Load()) }

// Contexts returns every context created in this browser.
func (b *Browser) Contexts() []*Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Context(nil), b.contexts...)
}

// Context is a fake driver.Context.
type Context struct {
	Options driver.ContextOptions

	browser *Browser
	mu      sync.Mutex
	pages   []*Page
	closes  atomic.Int32
}

// NewPage implements driver.Context.
func (c *Context) NewPage(ctx context.Context) (driver.Page, error) {
	if c.browser.drv.PanicOn == "page" {
		panic("drivertest: new page panicked")
	}
	if c.browser.drv.NewPageErr != nil {
		return nil, c.browser.drv.NewPageErr
	}
	return c.open(), nil
}

func (c *Context) open() *Page {
	p := &Page{ctx: c, url: "about:blank"}
	p.main = newFrame(p, "", "about:blank", true)
	c.mu.Lock()
	c.pages = append(c.pages, p)
	c.mu.Unlock()
	return p
}

// OpenPage opens a new page (a popup or tab) and navigates it to rawURL without waiting.
func (c *Context) OpenPage(rawURL string) *Page {
	p := c.open()
	p.load(rawURL)
	return p
}

// Pages implements driver.Context.
func (c *Context) Pages() []driver.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	var pages []driver.Page
	for _, p := range c.pages {
		if !p.closed.Load() {
			pages = append(pages, p)
		}
	}
	return pages
}

// AllPages returns every page ever opened, closed ones included.
func (c *Context) AllPages() []*Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Page(nil), c.pages...)
}

// Close implements driver.Context. All pages are closed with it.
func (c *Context) Close() error {
	c.closes.Add(1)
	for _, p := range c.AllPages() {
		p.closed.Store(true)
	}
	return c.browser.drv.ContextCloseErr
}

// Closes reports how many times Close was called.
func (c *Context) Closes() int { return int(c.closes.Load()) }

// Page is a fake driver.Page.
type Page struct {
	ctx    *Context
	mu     sync.Mutex
	url    string
	main   *Frame
	frames []*Frame
	gotos  []string
	closed atomic.Bool
	closes atomic.Int32
}

// Context returns the owning context.
func (p *Page) Context() *Context { return p.ctx }

// URL implements driver.Page.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Goto implements driver.Page. The route's Latency is compared against timeout.
// On timeout the document still arrives, mirroring a slow commit.
func (p *Page) Goto(ctx context.Context, rawURL string, waitUntil driver.LoadState, timeout time.Duration) error {
	if p.closed.Load() {
		return fmt.Errorf("goto %s: %w", rawURL, driver.ErrClosed)
	}
	route := p.ctx.browser.drv.Routes[routeKey(rawURL)]
	p.mu.Lock()
	p.gotos = append(p.gotos, rawURL)
	p.mu.Unlock()

	var err error
	wait := route.Latency
	if wait > timeout {
		wait = timeout
		err = fmt.Errorf("goto %s: %w", rawURL, driver.ErrTimeout)
	}
	if sleepErr := sleep(ctx, wait); sleepErr != nil {
		return sleepErr
	}
	p.load(rawURL)
	return err
}

func (p *Page) load(rawURL string) {
	p.mu.Lock()
	p.url = rawURL
	p.main = newFrame(p, "", rawURL, true)
	p.frames = nil
	p.mu.Unlock()

	if route, ok := p.ctx.browser.drv.Routes[routeKey(rawURL)]; ok && route.Build != nil {
		route.Build(p)
	}
}

// Gotos returns every URL passed to Goto.
func (p *Page) Gotos() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.gotos...)
}

// Main returns the main frame for scripting.
func (p *Page) Main() *Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.main
}

// AddFrame attaches a child frame.
func (p *Page) AddFrame(name, rawURL string) *Frame {
	f := newFrame(p, name, rawURL, false)
	p.mu.Lock()
	p.frames = append(p.frames, f)
	p.mu.Unlock()
	return f
}

// MainFrame implements driver.Page.
func (p *Page) MainFrame() driver.Frame { return p.Main() }

// Frames implements driver.Page.
func (p *Page) Frames() []driver.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	frames := []driver.Frame{p.main}
	for _, f := range p.frames {
		frames = append(frames, f)
	}
	return frames
}

// Close implements driver.Page.
func (p *Page) Close() error {
	p.closes.Add(1)
	p.closed.Store(true)
	return p.ctx.browser.drv.PageCloseErr
}

// Closes reports how many times Close was called.
func (p *Page) Closes() int { return int(p.closes.Load()) }

// Closed reports whether the page or its context was closed.
func (p *Page) Closed() bool { return p.closed.Load() }

// Frame is a fake driver.Frame.
type Frame struct {
	// ReadyAfter is how long after creation the frame reaches every load state.
	ReadyAfter time.Duration

	// NeverReady makes every non-commit load state wait time out.
	NeverReady bool

	page     *Page
	name     string
	url      string
	main     bool
	created  time.Time
	elements []*Element
	waits    atomic.Int32
}

func newFrame(p *Page, name, rawURL string, main bool) *Frame {
	return &Frame{page: p, name: name, url: rawURL, main: main, created: time.Now()}
}

func (f *Frame) Name() string { return f.name }
func (f *Frame) URL() string  { return f.url }
func (f *Frame) IsMain() bool { return f.main }

// Waits reports how many load state waits were issued against the frame.
func (f *Frame) Waits() int { return int(f.waits.Load()) }

// WaitForLoadState implements driver.Frame.
func (f *Frame) WaitForLoadState(ctx context.Context, state driver.LoadState, timeout time.Duration) error {
	f.waits.Add(1)
	if state == driver.LoadStateCommit {
		return nil
	}
	f.page.mu.Lock()
	never, readyAt := f.NeverReady, f.created.Add(f.ReadyAfter)
	f.page.mu.Unlock()

	left := time.Until(readyAt)
	if never || left > timeout {
		if err := sleep(ctx, timeout); err != nil {
			return err
		}
		return fmt.Errorf("wait for %s on frame %q: %w", state, f.name, driver.ErrTimeout)
	}
	return sleep(ctx, left)
}

// Add attaches elements to the frame.
func (f *Frame) Add(elements ...*Element) *Frame {
	now := time.Now()
	f.page.mu.Lock()
	defer f.page.mu.Unlock()
	for _, el := range elements {
		el.appearAt = now.Add(el.Delay)
		el.frame = f
		f.elements = append(f.elements, el)
	}
	return f
}

// AddText attaches a visible text node with no selector.
func (f *Frame) AddText(text string) *Element {
	el := &Element{Text: text}
	f.Add(el)
	return el
}

// Locator implements driver.Frame.
func (f *Frame) Locator(sel driver.Selector) driver.Locator {
	return &Locator{frame: f, sel: sel, nth: -1}
}

// Element is a fake DOM element.
type Element struct {
	// Selector is the exact selector string ("xpath=...", "css=...") the element answers to.
	Selector string

	Text string

	// Hidden elements match selectors but are not visible.
	Hidden bool

	// Inert elements never become clickable or fillable.
	Inert bool

	// Delay postpones the element's attachment after Add.
	Delay time.Duration

	// OnClick runs after a successful click.
	OnClick func(p *Page)

	frame    *Frame
	appearAt time.Time
	value    atomic.Value
	clicks   atomic.Int32
	fills    atomic.Int32
}

// Clicks reports how many successful clicks the element received.
func (e *Element) Clicks() int { return int(e.clicks.Load()) }

// Fills reports how many successful fills the element received.
func (e *Element) Fills() int { return int(e.fills.Load()) }

// Value returns the last filled value.
func (e *Element) Value() string {
	v, _ := e.value.Load().(string)
	return v
}

func (e *Element) attached(now time.Time) bool {
	return !now.Before(e.appearAt)
}

func (e *Element) matches(sel driver.Selector) bool {
	if sel.Strategy == driver.StrategyText {
		return e.Text != "" && strings.Contains(e.Text, sel.Value)
	}
	return e.Selector == sel.String()
}

// Locator is a fake driver.Locator.
type Locator struct {
	frame *Frame
	sel   driver.Selector
	nth   int
}

func (l *Locator) matches() []*Element {
	now := time.Now()
	l.frame.page.mu.Lock()
	defer l.frame.page.mu.Unlock()
	var out []*Element
	for _, el := range l.frame.elements {
		if el.attached(now) && el.matches(l.sel) {
			out = append(out, el)
		}
	}
	if l.nth >= 0 {
		if l.nth >= len(out) {
			return nil
		}
		return out[l.nth : l.nth+1]
	}
	return out
}

func (l *Locator) first() *Element {
	if m := l.matches(); len(m) > 0 {
		return m[0]
	}
	return nil
}

// Count implements driver.Locator.
func (l *Locator) Count(ctx context.Context) (int, error) {
	if l.frame.page.closed.Load() {
		return 0, driver.ErrClosed
	}
	return len(l.matches()), nil
}

// Nth implements driver.Locator.
func (l *Locator) Nth(index int) driver.Locator {
	return &Locator{frame: l.frame, sel: l.sel, nth: index}
}

// Click implements driver.Locator.
func (l *Locator) Click(ctx context.Context, timeout time.Duration) error {
	el, err := l.await(ctx, timeout, func(el *Element) bool { return !el.Hidden && !el.Inert })
	if err != nil {
		return fmt.Errorf("click %s: %w", l.sel, err)
	}
	el.clicks.Add(1)
	if el.OnClick != nil {
		el.OnClick(l.frame.page)
	}
	return nil
}

// Fill implements driver.Locator.
func (l *Locator) Fill(ctx context.Context, value string, timeout time.Duration) error {
	el, err := l.await(ctx, timeout, func(el *Element) bool { return !el.Hidden && !el.Inert })
	if err != nil {
		return fmt.Errorf("fill %s: %w", l.sel, err)
	}
	el.value.Store(value)
	el.fills.Add(1)
	return nil
}

// TextContent implements driver.Locator.
func (l *Locator) TextContent(ctx context.Context, timeout time.Duration) (string, error) {
	el, err := l.await(ctx, timeout, func(*Element) bool { return true })
	if err != nil {
		return "", fmt.Errorf("text content %s: %w", l.sel, err)
	}
	return el.Text, nil
}

// IsVisible implements driver.Locator.
func (l *Locator) IsVisible(ctx context.Context) (bool, error) {
	if l.frame.page.closed.Load() {
		return false, driver.ErrClosed
	}
	el := l.first()
	return el != nil && !el.Hidden, nil
}

// WaitVisible implements driver.Locator.
func (l *Locator) WaitVisible(ctx context.Context, timeout time.Duration) error {
	_, err := l.await(ctx, timeout, func(el *Element) bool { return !el.Hidden })
	if err != nil {
		return fmt.Errorf("wait visible %s: %w", l.sel, err)
	}
	return nil
}

// await polls until the first match satisfies ready, the timeout elapses or ctx ends.
func (l *Locator) await(ctx context.Context, timeout time.Duration, ready func(*Element) bool) (*Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		if l.frame.page.closed.Load() {
			return nil, driver.ErrClosed
		}
		if el := l.first(); el != nil && ready(el) {
			return el, nil
		}
		if !time.Now().Before(deadline) {
			return nil, driver.ErrTimeout
		}
		if err := sleep(ctx, min(pollInterval, time.Until(deadline))); err != nil {
			return nil, err
		}
	}
}

func routeKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrInjected is a convenience error for scripted failures.
var ErrInjected = errors.New("drivertest: injected failure")
