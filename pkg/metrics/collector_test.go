package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/entrhq/flowcheck/pkg/driver"
	"github.com/entrhq/flowcheck/pkg/engine"
)

func TestCollector_ScenarioFinished(t *testing.T) {
	c := NewCollector(zaptest.NewLogger(t))

	c.ScenarioFinished("login", engine.Pass(), 2*time.Second)
	c.ScenarioFinished("login", engine.Fail("dashboard text not found"), 3*time.Second)
	c.ScenarioFinished("billing", engine.Errored(engine.ErrActionTimeout), time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.scenariosTotal.WithLabelValues("login", "pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.scenariosTotal.WithLabelValues("login", "fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.scenariosTotal.WithLabelValues("billing", "error")))
	assert.Equal(t, 3, testutil.CollectAndCount(c.scenarioDuration))
}

func TestCollector_StepFinished(t *testing.T) {
	c := NewCollector(nil)

	c.StepFinished(engine.StepClick, false, engine.ErrLocatorNotFound, 10*time.Millisecond)
	c.StepFinished(engine.StepClick, true, nil, 20*time.Millisecond)
	c.StepFinished(engine.StepFill, false, nil, 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.stepsTotal.WithLabelValues("click", "false", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stepsTotal.WithLabelValues("click", "true", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stepsTotal.WithLabelValues("fill", "false", "ok")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.stepDuration))
}

func TestCollector_SettleFinished(t *testing.T) {
	c := NewCollector(nil)

	c.SettleFinished(engine.SettleReport{State: driver.LoadStateDOMContentLoaded, Frames: 3, Reached: 2, TimedOut: 1, Elapsed: time.Second})
	c.SettleFinished(engine.SettleReport{State: driver.LoadStateLoad, Frames: 2, Reached: 1, Failed: 1})

	assert.Equal(t, 3.0, testutil.ToFloat64(c.settleFrames.WithLabelValues("reached")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.settleFrames.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.settleFrames.WithLabelValues("failed")))
}

func TestCollector_Independent(t *testing.T) {
	a := NewCollector(nil)
	b := NewCollector(nil)

	a.ScenarioFinished("login", engine.Pass(), time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.scenariosTotal.WithLabelValues("login", "pass")))
	assert.Equal(t, 0, testutil.CollectAndCount(b.scenariosTotal))
}

func TestCollector_WriteToTextfile(t *testing.T) {
	c := NewCollector(nil)
	c.ScenarioFinished("login", engine.Pass(), time.Second)
	c.StepFinished(engine.StepNavigate, false, nil, time.Second)

	path := filepath.Join(t.TempDir(), "flowcheck.prom")
	require.NoError(t, c.WriteToTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `flowcheck_scenarios_total{scenario="login",status="pass"} 1`)
	assert.Contains(t, string(data), `flowcheck_steps_total{alternate="false",kind="navigate",result="ok"} 1`)

	assert.Error(t, c.WriteToTextfile(""))
	assert.Error(t, c.WriteToTextfile(filepath.Join(t.TempDir(), "missing", "x.prom")))
}
