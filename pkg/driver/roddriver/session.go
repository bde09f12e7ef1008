package roddriver

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/entrhq/flowcheck/pkg/driver"
)

const (
	pollInterval = 50 * time.Millisecond
	queryTimeout = 5 * time.Second
)

type browser struct {
	b *rod.Browser
	// nil when attached to an existing browser
	launcher *launcher.Launcher
}

func (b *browser) NewContext(ctx context.Context, opts driver.ContextOptions) (driver.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	incognito, err := b.b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", translate(err))
	}
	return &browserContext{b: incognito, opts: opts}, nil
}

func (b *browser) Close() error {
	if b.launcher == nil {
		return nil
	}
	err := b.b.Close()
	b.launcher.Kill()
	b.launcher.Cleanup()
	return translate(err)
}

type browserContext struct {
	b    *rod.Browser
	opts driver.ContextOptions

	mu    sync.Mutex
	pages []*page
}

func (c *browserContext) NewPage(ctx context.Context) (driver.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := c.b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", translate(err))
	}
	w, err := c.adopt(p)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return w, nil
}

// adopt wraps p, applies the context viewport and appends it to the page list.
func (c *browserContext) adopt(p *rod.Page) (*page, error) {
	vp := c.opts.Viewport
	if vp.Width > 0 && vp.Height > 0 {
		err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             vp.Width,
			Height:            vp.Height,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set viewport: %w", translate(err))
		}
	}
	w := &page{p: p}
	c.mu.Lock()
	c.pages = append(c.pages, w)
	c.mu.Unlock()
	return w, nil
}

// Pages lists open pages in the order they were first seen. Popups opened by the
// page are picked up from the browser's target list.
func (c *browserContext) Pages() []driver.Page {
	res, err := proto.TargetGetTargets{}.Call(c.b)
	if err != nil {
		return c.snapshot()
	}

	live := make(map[proto.TargetTargetID]bool)
	var discovered []proto.TargetTargetID
	c.mu.Lock()
	known := make(map[proto.TargetTargetID]bool, len(c.pages))
	for _, p := range c.pages {
		known[p.p.TargetID] = true
	}
	c.mu.Unlock()
	for _, info := range res.TargetInfos {
		if info.Type != proto.TargetTargetInfoTypePage || info.BrowserContextID != c.b.BrowserContextID {
			continue
		}
		live[info.TargetID] = true
		if !known[info.TargetID] {
			discovered = append(discovered, info.TargetID)
		}
	}

	c.mu.Lock()
	open := c.pages[:0]
	for _, p := range c.pages {
		if live[p.p.TargetID] {
			open = append(open, p)
		}
	}
	c.pages = open
	c.mu.Unlock()

	for _, id := range discovered {
		p, err := c.b.PageFromTarget(id)
		if err != nil {
			continue
		}
		_, _ = c.adopt(p)
	}
	return c.snapshot()
}

func (c *browserContext) snapshot() []driver.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	pages := make([]driver.Page, len(c.pages))
	for i, p := range c.pages {
		pages[i] = p
	}
	return pages
}

func (c *browserContext) Close() error {
	// Disposes the incognito context and every page in it
	return translate(c.b.Close())
}

type page struct {
	p *rod.Page
}

func (p *page) URL() string {
	info, err := p.p.Timeout(queryTimeout).Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *page) Goto(ctx context.Context, url string, waitUntil driver.LoadState, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	navCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if err := p.p.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("navigation failed: %w", translate(err))
	}
	if waitUntil == "" || waitUntil == driver.LoadStateCommit {
		return nil
	}
	main := &frame{page: p.p, main: true}
	if err := main.WaitForLoadState(ctx, waitUntil, time.Until(deadline)); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (p *page) MainFrame() driver.Frame {
	return &frame{page: p.p, main: true}
}

func (p *page) Frames() []driver.Frame {
	frames := []driver.Frame{&frame{page: p.p, main: true}}
	iframes, err := p.p.Timeout(queryTimeout).Elements("iframe")
	if err != nil {
		return frames
	}
	for _, el := range iframes {
		f := &frame{page: p.p, el: el}
		if name, err := el.Attribute("name"); err == nil && name != nil {
			f.name = *name
		}
		if src, err := el.Attribute("src"); err == nil && src != nil {
			f.src = *src
		}
		frames = append(frames, f)
	}
	return frames
}

func (p *page) Close() error {
	return translate(p.p.Close())
}

type frame struct {
	page *rod.Page
	// iframe element; nil for the main frame
	el   *rod.Element
	main bool
	name string
	src  string
}

func (f *frame) Name() string { return f.name }
func (f *frame) IsMain() bool { return f.main }

func (f *frame) URL() string {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	fp, err := f.on(ctx)
	if err != nil {
		return f.src
	}
	res, err := fp.Eval(`() => location.href`)
	if err != nil {
		return f.src
	}
	return res.Value.Str()
}

// on returns the rod page for this frame bound to ctx.
func (f *frame) on(ctx context.Context) (*rod.Page, error) {
	if f.el == nil {
		return f.page.Context(ctx), nil
	}
	fp, err := f.el.Context(ctx).Frame()
	if err != nil {
		return nil, translate(err)
	}
	return fp.Context(ctx), nil
}

func (f *frame) WaitForLoadState(ctx context.Context, state driver.LoadState, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state == driver.LoadStateCommit {
		return nil
	}
	deadline := time.Now().Add(timeout)
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	err := poll(waitCtx, func() (bool, error) {
		fp, err := f.on(waitCtx)
		if err != nil {
			return false, err
		}
		res, err := fp.Eval(`() => document.readyState`)
		if err != nil {
			return false, err
		}
		return readyStateReached(res.Value.Str(), state), nil
	})
	if err != nil {
		return fmt.Errorf("wait for %s failed: %w", state, err)
	}
	if state == driver.LoadStateNetworkIdle {
		fp, err := f.on(waitCtx)
		if err != nil {
			return fmt.Errorf("wait for %s failed: %w", state, err)
		}
		if err := fp.WaitIdle(time.Until(deadline)); err != nil {
			return fmt.Errorf("wait for %s failed: %w", state, translate(err))
		}
	}
	return nil
}

func readyStateReached(readyState string, state driver.LoadState) bool {
	switch state {
	case driver.LoadStateDOMContentLoaded:
		return readyState == "interactive" || readyState == "complete"
	default:
		return readyState == "complete"
	}
}

func (f *frame) Locator(sel driver.Selector) driver.Locator {
	return &locator{frame: f, sel: sel, index: -1}
}

type locator struct {
	frame *frame
	sel   driver.Selector
	// -1 until narrowed with Nth
	index int
}

func (l *locator) query(ctx context.Context) (rod.Elements, error) {
	fp, err := l.frame.on(ctx)
	if err != nil {
		return nil, err
	}
	var els rod.Elements
	switch l.sel.Strategy {
	case driver.StrategyCSS:
		els, err = fp.Elements(l.sel.Value)
	case driver.StrategyText:
		els, err = fp.ElementsX(textXPath(l.sel.Value))
	default:
		els, err = fp.ElementsX(l.sel.Value)
	}
	if err != nil {
		return nil, translate(err)
	}
	return els, nil
}

func (l *locator) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	els, err := l.query(ctx)
	if err != nil {
		return 0, err
	}
	if l.index >= 0 {
		if len(els) > l.index {
			return 1, nil
		}
		return 0, nil
	}
	return len(els), nil
}

func (l *locator) Nth(index int) driver.Locator {
	return &locator{frame: l.frame, sel: l.sel, index: index}
}

// element polls until the targeted element is attached or ctx is done.
func (l *locator) element(ctx context.Context) (*rod.Element, error) {
	index := max(l.index, 0)
	var el *rod.Element
	err := poll(ctx, func() (bool, error) {
		els, err := l.query(ctx)
		if err != nil {
			return false, err
		}
		if len(els) > index {
			el = els[index]
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", l.sel, err)
	}
	return el, nil
}

func (l *locator) Click(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	el, err := l.element(ctx)
	if err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click failed: %w", translate(err))
	}
	return nil
}

func (l *locator) Fill(ctx context.Context, value string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	el, err := l.element(ctx)
	if err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("fill failed: %w", translate(err))
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("fill failed: %w", translate(err))
	}
	return nil
}

func (l *locator) TextContent(ctx context.Context, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	el, err := l.element(ctx)
	if err != nil {
		return "", fmt.Errorf("text content failed: %w", err)
	}
	res, err := el.Eval(`() => this.textContent`)
	if err != nil {
		return "", fmt.Errorf("text content failed: %w", translate(err))
	}
	return res.Value.Str(), nil
}

func (l *locator) IsVisible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	els, err := l.query(ctx)
	if err != nil {
		return false, err
	}
	index := max(l.index, 0)
	if len(els) <= index {
		return false, nil
	}
	visible, err := els[index].Visible()
	if err != nil {
		return false, translate(err)
	}
	return visible, nil
}

func (l *locator) WaitVisible(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	el, err := l.element(ctx)
	if err != nil {
		return fmt.Errorf("wait failed: %w", err)
	}
	if err := el.WaitVisible(); err != nil {
		return fmt.Errorf("wait failed: %w", translate(err))
	}
	return nil
}

// poll calls check every pollInterval until it reports done or ctx ends. Errors from
// check are retried; the last one is reported if ctx ends first.
func poll(ctx context.Context, check func() (bool, error)) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var last error
	for {
		done, err := check()
		if err == nil && done {
			return nil
		}
		if err != nil {
			last = err
		}
		select {
		case <-ctx.Done():
			if last != nil {
				return fmt.Errorf("%w (last error: %v)", translate(ctx.Err()), last)
			}
			return translate(ctx.Err())
		case <-ticker.C:
		}
	}
}

// textXPath matches the innermost elements whose normalized text contains text,
// ignoring case like Playwright's text= selector. XPath 1.0 has no lower-case(),
// so translate() folds exactly the upper case forms of the letters in text.
func textXPath(text string) string {
	text = strings.ToLower(text)
	lit := xpathLiteral(text)

	var upper, lower []rune
	for _, r := range text {
		u := unicode.ToUpper(r)
		if u != r && !slices.Contains(upper, u) {
			upper, lower = append(upper, u), append(lower, r)
		}
	}
	value := "normalize-space(.)"
	if len(upper) > 0 {
		value = fmt.Sprintf("translate(%s, '%s', '%s')", value, string(upper), string(lower))
	}
	return fmt.Sprintf("//body//*[contains(%s, %s)][not(.//*[contains(%s, %s)])]", value, lit, value, lit)
}

// xpathLiteral quotes s for use in an XPath 1.0 expression.
func xpathLiteral(s string) string {
	switch {
	case !strings.Contains(s, "'"):
		return "'" + s + "'"
	case !strings.Contains(s, `"`):
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(quoted, `, "'", `) + ")"
}
