package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/entrhq/flowcheck/pkg/driver"
	"github.com/entrhq/flowcheck/pkg/driver/drivertest"
	"github.com/entrhq/flowcheck/pkg/engine"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.SettleDelay = 0
	cfg.ActionTimeout = 200 * time.Millisecond
	cfg.NavigationTimeout = 200 * time.Millisecond
	cfg.AssertTimeout = 200 * time.Millisecond
	cfg.SettleTimeout = 50 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	cfg.ScenarioBudget = 5 * time.Second
	cfg.LaunchTimeout = time.Second
	return cfg
}

// gauge tracks how many pages are being built at once.
type gauge struct {
	current atomic.Int32
	peak    atomic.Int32
}

func (g *gauge) enter() {
	n := g.current.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (g *gauge) leave() { g.current.Add(-1) }

func routes(g *gauge) map[string]drivertest.Route {
	return map[string]drivertest.Route{
		"/home": {Build: func(p *drivertest.Page) {
			g.enter()
			defer g.leave()
			time.Sleep(20 * time.Millisecond)
			p.Main().AddText("Welcome home")
		}},
	}
}

func scenario(name, text string) engine.Scenario {
	return engine.Scenario{
		Name:    name,
		BaseURL: "https://app.example.com",
		Steps:   []engine.Step{{Kind: engine.StepNavigate, Value: "/home", WaitUntil: driver.LoadStateCommit}},
		Expect:  engine.Outcome{Kind: engine.OutcomeTextVisible, Text: text, Timeout: 100 * time.Millisecond},
	}
}

func newRunner(t *testing.T, drv driver.Driver, parallelism int, opts ...Option) *Runner {
	t.Helper()
	cfg := testConfig()
	require.NoError(t, cfg.Validate())
	logger := zaptest.NewLogger(t)
	eng := engine.New(drv, cfg, engine.WithLogger(logger))
	return New(eng, parallelism, append([]Option{WithLogger(logger)}, opts...)...)
}

func TestRunner_ResultsInOrder(t *testing.T) {
	g := &gauge{}
	drv := drivertest.New(routes(g))

	var mu sync.Mutex
	var seen []string
	r := newRunner(t, drv, 3, OnResult(func(res *engine.Result) {
		mu.Lock()
		seen = append(seen, res.Scenario)
		mu.Unlock()
	}))

	results := r.Run(context.Background(), []engine.Scenario{
		scenario("one", "Welcome"),
		scenario("two", "Goodbye"),
		scenario("three", "home"),
	})

	require.Len(t, results, 3)
	assert.Equal(t, "one", results[0].Scenario)
	assert.Equal(t, engine.StatusPass, results[0].Verdict.Status, results[0].Verdict.String())
	assert.Equal(t, "two", results[1].Scenario)
	assert.Equal(t, engine.StatusFail, results[1].Verdict.Status, results[1].Verdict.String())
	assert.Equal(t, "three", results[2].Scenario)
	assert.Equal(t, engine.StatusPass, results[2].Verdict.Status, results[2].Verdict.String())
	assert.ElementsMatch(t, []string{"one", "two", "three"}, seen)
}

func TestRunner_IsolatesScenarios(t *testing.T) {
	g := &gauge{}
	drv := drivertest.New(routes(g))
	r := newRunner(t, drv, 4)

	scenarios := make([]engine.Scenario, 6)
	for i := range scenarios {
		scenarios[i] = scenario("home", "Welcome")
	}
	results := r.Run(context.Background(), scenarios)

	ids := make(map[string]bool)
	for _, res := range results {
		assert.Equal(t, engine.StatusPass, res.Verdict.Status, res.Verdict.String())
		assert.NoError(t, res.ReleaseErr)
		ids[res.RunID] = true
	}
	assert.Len(t, ids, 6, "every run has its own id")

	assert.Equal(t, 6, drv.Launches())
	for _, b := range drv.Browsers() {
		assert.Equal(t, 1, b.Closes())
		for _, c := range b.Contexts() {
			assert.Equal(t, 1, c.Closes())
		}
	}
}

func TestRunner_BoundsParallelism(t *testing.T) {
	tests := []struct {
		name        string
		parallelism int
		want        int32
	}{
		{name: "serial", parallelism: 1, want: 1},
		{name: "zero means serial", parallelism: 0, want: 1},
		{name: "two", parallelism: 2, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &gauge{}
			drv := drivertest.New(routes(g))
			r := newRunner(t, drv, tt.parallelism)

			scenarios := make([]engine.Scenario, 5)
			for i := range scenarios {
				scenarios[i] = scenario("home", "Welcome")
			}
			r.Run(context.Background(), scenarios)

			assert.LessOrEqual(t, g.peak.Load(), tt.want)
			assert.Equal(t, 5, drv.Launches())
		})
	}
}

func TestRunner_Cancelled(t *testing.T) {
	drv := drivertest.New(routes(&gauge{}))
	r := newRunner(t, drv, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := r.Run(ctx, []engine.Scenario{scenario("a", "Welcome"), scenario("b", "Welcome")})

	require.Len(t, results, 2)
	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, engine.StatusError, res.Verdict.Status)
		assert.Equal(t, engine.StateCompleted, res.State)
	}
}

func TestRunner_Empty(t *testing.T) {
	r := newRunner(t, drivertest.New(nil), 2)
	assert.Empty(t, r.Run(context.Background(), nil))
}
