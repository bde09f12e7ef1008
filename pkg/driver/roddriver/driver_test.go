package roddriver

import (
	"context"
	"errors"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/flowcheck/pkg/driver"
)

func TestParseArg(t *testing.T) {
	tests := []struct {
		arg        string
		wantName   flags.Flag
		wantValues []string
	}{
		{arg: "--window-size=1280,720", wantName: "window-size", wantValues: []string{"1280", "720"}},
		{arg: "--disable-dev-shm-usage", wantName: "disable-dev-shm-usage"},
		{arg: "  --lang=en-US ", wantName: "lang", wantValues: []string{"en-US"}},
		{arg: "--", wantName: ""},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			name, values := parseArg(tt.arg)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantValues, values)
		})
	}
}

func TestXPathLiteral(t *testing.T) {
	assert.Equal(t, "'Sign in'", xpathLiteral("Sign in"))
	assert.Equal(t, `"Don't"`, xpathLiteral("Don't"))
	assert.Equal(t, `concat('Say "don', "'", 't"')`, xpathLiteral(`Say "don't"`))
}

func TestTextXPath(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{
			text: "Welcome",
			want: "//body//*[contains(translate(normalize-space(.), 'WELCOM', 'welcom'), 'welcome')]" +
				"[not(.//*[contains(translate(normalize-space(.), 'WELCOM', 'welcom'), 'welcome')])]",
		},
		{
			text: "SIGN IN",
			want: "//body//*[contains(translate(normalize-space(.), 'SIGN', 'sign'), 'sign in')]" +
				"[not(.//*[contains(translate(normalize-space(.), 'SIGN', 'sign'), 'sign in')])]",
		},
		{
			text: "42",
			want: "//body//*[contains(normalize-space(.), '42')][not(.//*[contains(normalize-space(.), '42')])]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, textXPath(tt.text))
		})
	}
}

func TestReadyStateReached(t *testing.T) {
	assert.True(t, readyStateReached("interactive", driver.LoadStateDOMContentLoaded))
	assert.True(t, readyStateReached("complete", driver.LoadStateDOMContentLoaded))
	assert.False(t, readyStateReached("loading", driver.LoadStateDOMContentLoaded))
	assert.False(t, readyStateReached("interactive", driver.LoadStateLoad))
	assert.True(t, readyStateReached("complete", driver.LoadStateNetworkIdle))
}

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil))
	assert.ErrorIs(t, translate(context.DeadlineExceeded), driver.ErrTimeout)
	assert.ErrorIs(t, translate(cdp.ErrSessionNotFound), driver.ErrClosed)

	other := errors.New("net::ERR_NAME_NOT_RESOLVED")
	assert.Equal(t, other, translate(other))
}

func TestPoll(t *testing.T) {
	t.Run("done", func(t *testing.T) {
		calls := 0
		err := poll(context.Background(), func() (bool, error) {
			calls++
			return calls == 3, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("deadline keeps last error", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
		defer cancel()
		err := poll(ctx, func() (bool, error) {
			return false, errors.New("context not ready")
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, driver.ErrTimeout)
		assert.Contains(t, err.Error(), "context not ready")
	})
}

func TestDriverImplementsInterfaces(t *testing.T) {
	var _ driver.Driver = (*Driver)(nil)
	var _ driver.Browser = (*browser)(nil)
	var _ driver.Context = (*browserContext)(nil)
	var _ driver.Page = (*page)(nil)
	var _ driver.Frame = (*frame)(nil)
	var _ driver.Locator = (*locator)(nil)
}

const loginHTML = `<html><body>
<form><input name="email"><button type="button" onclick="document.getElementById('out').textContent='Welcome, '+document.forms[0].email.value">Sign in</button></form>
<div id="out"></div>
<iframe name="ads" src="about:blank"></iframe>
</body></html>`

func TestDriver_Integration(t *testing.T) {
	if testing.Short() || os.Getenv("FLOWCHECK_BROWSER_TESTS") == "" {
		t.Skip("Skipping browser integration test; set FLOWCHECK_BROWSER_TESTS=1 to run")
	}

	d := New("", nil)
	ctx := context.Background()

	b, err := d.Launch(ctx, driver.LaunchOptions{Headless: true, Args: []string{"--disable-dev-shm-usage"}, Timeout: time.Minute})
	require.NoError(t, err)
	defer b.Close()

	c, err := b.NewContext(ctx, driver.ContextOptions{Viewport: driver.Viewport{Width: 1280, Height: 720}})
	require.NoError(t, err)
	defer c.Close()

	p, err := c.NewPage(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Goto(ctx, "data:text/html,"+url.PathEscape(loginHTML), driver.LoadStateLoad, 10*time.Second))

	frames := p.Frames()
	require.Len(t, frames, 2)
	assert.True(t, frames[0].IsMain())
	assert.Equal(t, "ads", frames[1].Name())

	main := p.MainFrame()
	email := main.Locator(driver.Selector{Strategy: driver.StrategyXPath, Value: "//input[@name='email']"})
	n, err := email.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, email.Nth(0).Fill(ctx, "user@example.com", 2*time.Second))

	button := main.Locator(driver.Selector{Strategy: driver.StrategyText, Value: "Sign in"}).Nth(0)
	require.NoError(t, button.Click(ctx, 2*time.Second))

	out := main.Locator(driver.Selector{Strategy: driver.StrategyCSS, Value: "#out"}).Nth(0)
	text, err := out.TextContent(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Welcome, user@example.com", text)

	missing := main.Locator(driver.Selector{Strategy: driver.StrategyCSS, Value: "#missing"}).Nth(0)
	err = missing.Click(ctx, 100*time.Millisecond)
	assert.ErrorIs(t, err, driver.ErrTimeout)

	assert.Len(t, c.Pages(), 1)
}
