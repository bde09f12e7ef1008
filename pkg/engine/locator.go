package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/flowcheck/pkg/driver"
)

// Resolver turns locators into live element handles. It holds no state: every call
// re-reads the page's frames and re-queries the DOM.
type Resolver struct{}

// Frame returns the frame a locator is scoped to, looked up fresh on page.
func (r *Resolver) Frame(page driver.Page, loc Locator) (driver.Frame, error) {
	if loc.Frame == "" {
		return page.MainFrame(), nil
	}
	for _, f := range page.Frames() {
		if f.IsMain() {
			continue
		}
		if f.Name() == loc.Frame || strings.Contains(f.URL(), loc.Frame) {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: frame %q not attached to %s", ErrLocatorNotFound, loc.Frame, page.URL())
}

// Resolve counts matches for loc in frame once, without waiting for them to appear,
// and returns a handle narrowed to loc.Index.
func (r *Resolver) Resolve(ctx context.Context, frame driver.Frame, loc Locator) (driver.Locator, error) {
	all := frame.Locator(loc.Selector())
	n, err := all.Count(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrLocatorNotFound, loc, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrLocatorNotFound, loc)
	}
	if loc.Index >= n {
		return nil, fmt.Errorf("%w: %s: only %d matches", ErrLocatorNotFound, loc, n)
	}
	return all.Nth(loc.Index), nil
}
