package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/entrhq/flowcheck/pkg/driver/drivertest"
)

func TestAcquireSession(t *testing.T) {
	drv := drivertest.New(nil)
	cfg := DefaultConfig()

	s, err := AcquireSession(context.Background(), drv, cfg.Session(), zaptest.NewLogger(t))
	require.NoError(t, err)

	b := drv.Browsers()[0]
	assert.True(t, b.Options.Headless)
	assert.Contains(t, b.Options.Args, "--disable-dev-shm-usage")

	c := b.Contexts()[0]
	assert.Equal(t, 1280, c.Options.Viewport.Width)
	assert.Equal(t, 720, c.Options.Viewport.Height)
	assert.Equal(t, cfg.ActionTimeout, c.Options.DefaultTimeout)
	require.Len(t, c.Pages(), 1)
	assert.Same(t, c.AllPages()[0], s.CurrentPage())

	require.NoError(t, s.Release())
}

func TestSession_CurrentPageIsLastOpened(t *testing.T) {
	drv := drivertest.New(nil)
	s, err := AcquireSession(context.Background(), drv, DefaultConfig().Session(), nil)
	require.NoError(t, err)
	defer s.Release()

	c := drv.Browsers()[0].Contexts()[0]
	first := c.AllPages()[0]
	popup := c.OpenPage("https://app.example.com/popup")
	assert.Same(t, popup, s.CurrentPage())

	require.NoError(t, popup.Close())
	assert.Same(t, first, s.CurrentPage())

	require.NoError(t, first.Close())
	assert.Nil(t, s.CurrentPage())
}

func TestSession_ReleaseIsIdempotent(t *testing.T) {
	drv := drivertest.New(nil)
	s, err := AcquireSession(context.Background(), drv, DefaultConfig().Session(), nil)
	require.NoError(t, err)

	require.NoError(t, s.Release())
	require.NoError(t, s.Release())

	b := drv.Browsers()[0]
	assert.Equal(t, 1, b.Closes())
	assert.Equal(t, 1, b.Contexts()[0].Closes())
	assert.Equal(t, 1, b.Contexts()[0].AllPages()[0].Closes())
}

func TestSession_ReleaseClosesEveryHandle(t *testing.T) {
	drv := drivertest.New(nil)
	pageErr := errors.New("page crashed")
	ctxErr := errors.New("context crashed")
	drv.PageCloseErr = pageErr
	drv.ContextCloseErr = ctxErr

	s, err := AcquireSession(context.Background(), drv, DefaultConfig().Session(), nil)
	require.NoError(t, err)
	drv.Browsers()[0].Contexts()[0].OpenPage("https://app.example.com/tab")

	err = s.Release()
	require.Error(t, err)
	assert.ErrorIs(t, err, pageErr)
	assert.ErrorIs(t, err, ctxErr)

	b := drv.Browsers()[0]
	assert.Equal(t, 1, b.Closes(), "browser closed despite earlier failures")
	for _, p := range b.Contexts()[0].AllPages() {
		assert.Equal(t, 1, p.Closes())
	}

	assert.Equal(t, err, s.Release(), "later calls return the first result")
}

func TestAcquireSession_Failures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*drivertest.Driver)
		closed bool
	}{
		{name: "launch", setup: func(d *drivertest.Driver) { d.LaunchErr = drivertest.ErrInjected }},
		{name: "context", setup: func(d *drivertest.Driver) { d.NewContextErr = drivertest.ErrInjected }, closed: true},
		{name: "page", setup: func(d *drivertest.Driver) { d.NewPageErr = drivertest.ErrInjected }, closed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := drivertest.New(nil)
			tt.setup(drv)

			s, err := AcquireSession(context.Background(), drv, DefaultConfig().Session(), nil)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, ErrSessionSetup)
			assert.ErrorIs(t, err, drivertest.ErrInjected)

			for _, b := range drv.Browsers() {
				assert.Equal(t, 1, b.Closes())
				for _, c := range b.Contexts() {
					assert.Equal(t, 1, c.Closes())
				}
			}
			assert.Equal(t, tt.closed, len(drv.Browsers()) == 1)
		})
	}
}

func TestAcquireSession_DriverPanic(t *testing.T) {
	for _, op := range []string{"launch", "context", "page"} {
		t.Run(op, func(t *testing.T) {
			drv := drivertest.New(nil)
			drv.PanicOn = op

			var (
				s   *Session
				err error
			)
			require.NotPanics(t, func() {
				s, err = AcquireSession(context.Background(), drv, DefaultConfig().Session(), nil)
			})
			assert.Nil(t, s)
			assert.ErrorIs(t, err, ErrSessionSetup)
			assert.ErrorContains(t, err, "panicked")

			for _, b := range drv.Browsers() {
				assert.Equal(t, 1, b.Closes())
				for _, c := range b.Contexts() {
					assert.Equal(t, 1, c.Closes())
				}
			}
		})
	}
}
