package pwdriver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/flowcheck/pkg/driver"
)

type browser struct {
	b playwright.Browser
}

func (b *browser) NewContext(ctx context.Context, opts driver.ContextOptions) (driver.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	contextOpts := playwright.BrowserNewContextOptions{}
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		contextOpts.Viewport = &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		}
	}

	bc, err := b.b.NewContext(contextOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", translate(err))
	}
	if opts.DefaultTimeout > 0 {
		bc.SetDefaultTimeout(driver.Millis(opts.DefaultTimeout))
	}
	if opts.NavigationTimeout > 0 {
		bc.SetDefaultNavigationTimeout(driver.Millis(opts.NavigationTimeout))
	}
	return &browserContext{bc: bc, pages: make(map[playwright.Page]*page)}, nil
}

func (b *browser) Close() error {
	return translate(b.b.Close())
}

type browserContext struct {
	bc playwright.BrowserContext

	mu    sync.Mutex
	pages map[playwright.Page]*page
}

// wrap returns the same wrapper for the same Playwright page every time.
func (c *browserContext) wrap(p playwright.Page) *page {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.pages[p]; ok {
		return w
	}
	w := &page{p: p}
	c.pages[p] = w
	return w
}

func (c *browserContext) NewPage(ctx context.Context) (driver.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := c.bc.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", translate(err))
	}
	return c.wrap(p), nil
}

// Pages lists open pages; Playwright keeps them in creation order, popups included.
func (c *browserContext) Pages() []driver.Page {
	var pages []driver.Page
	for _, p := range c.bc.Pages() {
		if p.IsClosed() {
			continue
		}
		pages = append(pages, c.wrap(p))
	}
	return pages
}

func (c *browserContext) Close() error {
	return translate(c.bc.Close())
}

type page struct {
	p playwright.Page
}

func (p *page) URL() string { return p.p.URL() }

func (p *page) Goto(ctx context.Context, url string, waitUntil driver.LoadState, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	gotoOpts := playwright.PageGotoOptions{
		Timeout: playwright.Float(driver.Millis(timeout)),
	}
	if waitUntil != "" {
		state := playwright.WaitUntilState(waitUntil)
		gotoOpts.WaitUntil = &state
	}

	if _, err := p.p.Goto(url, gotoOpts); err != nil {
		return fmt.Errorf("navigation failed: %w", translate(err))
	}
	return nil
}

func (p *page) MainFrame() driver.Frame {
	return &frame{f: p.p.MainFrame(), main: true}
}

func (p *page) Frames() []driver.Frame {
	main := p.p.MainFrame()
	frames := []driver.Frame{&frame{f: main, main: true}}
	for _, f := range p.p.Frames() {
		if f == main || f.IsDetached() {
			continue
		}
		frames = append(frames, &frame{f: f})
	}
	return frames
}

func (p *page) Close() error {
	return translate(p.p.Close())
}

type frame struct {
	f    playwright.Frame
	main bool
}

func (f *frame) Name() string { return f.f.Name() }
func (f *frame) URL() string  { return f.f.URL() }
func (f *frame) IsMain() bool { return f.main }

func (f *frame) WaitForLoadState(ctx context.Context, state driver.LoadState, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// Frames only exist once their navigation committed
	if state == driver.LoadStateCommit {
		return nil
	}

	ls := playwright.LoadState(state)
	err := f.f.WaitForLoadState(playwright.FrameWaitForLoadStateOptions{
		State:   &ls,
		Timeout: playwright.Float(driver.Millis(timeout)),
	})
	if err != nil {
		return fmt.Errorf("wait for %s failed: %w", state, translate(err))
	}
	return nil
}

func (f *frame) Locator(sel driver.Selector) driver.Locator {
	return &locator{l: f.f.Locator(sel.String())}
}

type locator struct {
	l playwright.Locator
}

func (l *locator) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := l.l.Count()
	if err != nil {
		return 0, translate(err)
	}
	return n, nil
}

func (l *locator) Nth(index int) driver.Locator {
	return &locator{l: l.l.Nth(index)}
}

func (l *locator) Click(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := l.l.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(driver.Millis(timeout)),
	})
	if err != nil {
		return fmt.Errorf("click failed: %w", translate(err))
	}
	return nil
}

func (l *locator) Fill(ctx context.Context, value string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := l.l.Fill(value, playwright.LocatorFillOptions{
		Timeout: playwright.Float(driver.Millis(timeout)),
	})
	if err != nil {
		return fmt.Errorf("fill failed: %w", translate(err))
	}
	return nil
}

func (l *locator) TextContent(ctx context.Context, timeout time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := l.l.TextContent(playwright.LocatorTextContentOptions{
		Timeout: playwright.Float(driver.Millis(timeout)),
	})
	if err != nil {
		return "", fmt.Errorf("text content failed: %w", translate(err))
	}
	return text, nil
}

func (l *locator) IsVisible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	visible, err := l.l.IsVisible()
	if err != nil {
		return false, translate(err)
	}
	return visible, nil
}

func (l *locator) WaitVisible(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := l.l.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(driver.Millis(timeout)),
	})
	if err != nil {
		return fmt.Errorf("wait failed: %w", translate(err))
	}
	return nil
}
