package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/flowcheck/pkg/engine"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func passResult() *engine.Result {
	return &engine.Result{
		RunID:    "a",
		Scenario: "login",
		Tags:     []string{"security"},
		State:    engine.StateCompleted,
		Verdict:  engine.Pass(),
		Start:    t0,
		End:      t0.Add(2 * time.Second),
		Steps: []engine.StepRecord{
			{Index: 0, Name: "navigate /login", Kind: engine.StepNavigate, Duration: time.Second},
			{Index: 1, Name: "submit", Kind: engine.StepClick, Err: engine.ErrLocatorNotFound},
			{Index: 1, Name: "submit", Kind: engine.StepClick, Alternate: true},
		},
	}
}

func failResult() *engine.Result {
	return &engine.Result{
		RunID:    "b",
		Scenario: "billing",
		State:    engine.StateCompleted,
		Verdict:  engine.Fail("invoice | total not found"),
		Start:    t0,
		End:      t0.Add(3 * time.Second),
		Steps:    []engine.StepRecord{{Index: 0, Name: "navigate /billing", Kind: engine.StepNavigate}},
	}
}

func errorResult() *engine.Result {
	return &engine.Result{
		RunID:      "c",
		Scenario:   "settings",
		State:      engine.StateCompleted,
		Verdict:    engine.Errored(engine.ErrActionTimeout),
		Start:      t0,
		End:        t0.Add(time.Second),
		ReleaseErr: errors.New("browser already closed"),
	}
}

func TestNewSummary(t *testing.T) {
	tests := []struct {
		name       string
		results    []*engine.Result
		wantStatus string
		wantExit   int
	}{
		{name: "all pass", results: []*engine.Result{passResult()}, wantStatus: "passed", wantExit: ExitPassed},
		{name: "fail", results: []*engine.Result{passResult(), failResult()}, wantStatus: "failed", wantExit: ExitFailed},
		{name: "error wins", results: []*engine.Result{failResult(), errorResult()}, wantStatus: "errored", wantExit: ExitErrored},
		{name: "empty", wantStatus: "passed", wantExit: ExitPassed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSummary("run", tt.results, t0, t0.Add(5*time.Second))
			assert.Equal(t, tt.wantStatus, s.Status)
			assert.Equal(t, tt.wantExit, s.ExitCode())
			assert.Len(t, s.Scenarios, len(tt.results))
		})
	}
}

func TestNewSummary_Metrics(t *testing.T) {
	s := NewSummary("run", []*engine.Result{passResult(), failResult(), errorResult()}, t0, t0.Add(5*time.Second))

	assert.Equal(t, RunMetrics{
		Scenarios:      3,
		Passed:         1,
		Failed:         1,
		Errored:        1,
		Steps:          4,
		AlternatesUsed: 1,
		ReleaseErrors:  1,
	}, s.Metrics)
	assert.Equal(t, 5*time.Second, s.Duration)

	login := s.Scenarios[0]
	assert.Equal(t, "Pass", login.Verdict)
	assert.Equal(t, 2*time.Second, login.Duration)
	require.Len(t, login.Steps, 3)
	assert.Equal(t, engine.ErrLocatorNotFound.Error(), login.Steps[1].Error)
	assert.True(t, login.Steps[2].Alternate)

	assert.Equal(t, "browser already closed", s.Scenarios[2].ReleaseError)
	assert.Equal(t, engine.StatusError, s.Scenarios[2].Status)
}

func TestArtifactWriter_WriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "artifacts")
	s := NewSummary("run-1", []*engine.Result{passResult(), failResult()}, t0, t0.Add(5*time.Second))

	require.NoError(t, NewArtifactWriter(dir).WriteAll(s))

	data, err := os.ReadFile(filepath.Join(dir, "results.json"))
	require.NoError(t, err)
	var decoded Summary
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, "failed", decoded.Status)
	require.Len(t, decoded.Scenarios, 2)
	assert.Equal(t, "billing", decoded.Scenarios[1].Name)

	data, err = os.ReadFile(filepath.Join(dir, "metrics.json"))
	require.NoError(t, err)
	var metrics RunMetrics
	require.NoError(t, json.Unmarshal(data, &metrics))
	assert.Equal(t, 1, metrics.Failed)

	data, err = os.ReadFile(filepath.Join(dir, "summary.md"))
	require.NoError(t, err)
	md := string(data)
	assert.Contains(t, md, "# Flowcheck Run Summary")
	assert.Contains(t, md, "| login | ✅ Pass |")
	assert.Contains(t, md, `❌ Fail(invoice \| total not found)`)
	assert.Contains(t, md, "- **login** step 2 (submit): locator not found")
}

func TestArtifactWriter_SelectedFormats(t *testing.T) {
	dir := t.TempDir()
	w := NewArtifactWriter(dir)
	w.Markdown = false
	w.Metrics = false

	require.NoError(t, w.WriteAll(NewSummary("run", nil, t0, t0)))

	assert.FileExists(t, filepath.Join(dir, "results.json"))
	assert.NoFileExists(t, filepath.Join(dir, "summary.md"))
	assert.NoFileExists(t, filepath.Join(dir, "metrics.json"))
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name        string
		level       LogLevel
		wantPass    bool
		wantSteps   bool
		wantFailure bool
	}{
		{name: "quiet", level: LogLevelQuiet, wantFailure: true},
		{name: "normal", level: LogLevelNormal, wantPass: true, wantFailure: true},
		{name: "verbose", level: LogLevelVerbose, wantPass: true, wantSteps: true, wantFailure: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewLogger(tt.level, &buf, false)

			l.ScenarioFinished(passResult())
			l.ScenarioFinished(failResult())
			out := buf.String()

			assert.Equal(t, tt.wantPass, bytes.Contains(buf.Bytes(), []byte("✓ login (2s)")), out)
			assert.Equal(t, tt.wantSteps, bytes.Contains(buf.Bytes(), []byte("↻ 2. submit")), out)
			assert.Equal(t, tt.wantFailure, bytes.Contains(buf.Bytes(), []byte("✗ billing: invoice | total not found")), out)
		})
	}
}

func TestLogger_Summary(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LogLevelQuiet, &buf, false)

	l.Summary(NewSummary("run", []*engine.Result{passResult(), errorResult()}, t0, t0.Add(time.Second)))

	out := buf.String()
	assert.Contains(t, out, "RUN SUMMARY")
	assert.Contains(t, out, "⚠ ERRORED")
	assert.Contains(t, out, "Scenarios: 2 (1 passed, 0 failed, 1 errored)")
	assert.Contains(t, out, "Alternates used: 1")
	assert.NotContains(t, out, "\033[", "colors disabled")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelQuiet, ParseLogLevel("quiet"))
	assert.Equal(t, LogLevelNormal, ParseLogLevel("normal"))
	assert.Equal(t, LogLevelVerbose, ParseLogLevel("verbose"))
	assert.Equal(t, LogLevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, LogLevelNormal, ParseLogLevel("unknown"))
}
