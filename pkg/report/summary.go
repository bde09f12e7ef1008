// Package report turns engine results into console output and run artifacts.
package report

import (
	"time"

	"github.com/entrhq/flowcheck/pkg/engine"
)

// Run statuses
const (
	statusPassed  = "passed"
	statusFailed  = "failed"
	statusErrored = "errored"
)

// Exit codes returned by Summary.ExitCode
const (
	ExitPassed  = 0
	ExitFailed  = 1
	ExitErrored = 2
)

// Summary contains a complete summary of a run over many scenarios
type Summary struct {
	RunID     string           `json:"run_id"`
	Status    string           `json:"status"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time"`
	Duration  time.Duration    `json:"duration"`
	Scenarios []ScenarioResult `json:"scenarios"`
	Metrics   RunMetrics       `json:"metrics"`
}

// ScenarioResult is the serializable form of one engine.Result
type ScenarioResult struct {
	Name         string        `json:"name"`
	RunID        string        `json:"run_id"`
	Tags         []string      `json:"tags,omitempty"`
	Verdict      string        `json:"verdict"`
	Status       engine.Status `json:"status"`
	Reason       string        `json:"reason,omitempty"`
	Duration     time.Duration `json:"duration"`
	Steps        []StepResult  `json:"steps"`
	ReleaseError string        `json:"release_error,omitempty"`
}

// StepResult is one executed step attempt
type StepResult struct {
	Index     int             `json:"index"`
	Name      string          `json:"name"`
	Kind      engine.StepKind `json:"kind"`
	Alternate bool            `json:"alternate,omitempty"`
	Duration  time.Duration   `json:"duration"`
	Error     string          `json:"error,omitempty"`
}

// RunMetrics contains run metrics
type RunMetrics struct {
	Scenarios      int `json:"scenarios"`
	Passed         int `json:"passed"`
	Failed         int `json:"failed"`
	Errored        int `json:"errored"`
	Steps          int `json:"steps"`
	AlternatesUsed int `json:"alternates_used"`
	ReleaseErrors  int `json:"release_errors"`
}

// NewSummary builds the run summary. Results keep their order.
func NewSummary(runID string, results []*engine.Result, start, end time.Time) *Summary {
	s := &Summary{
		RunID:     runID,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Scenarios: make([]ScenarioResult, 0, len(results)),
	}

	for _, res := range results {
		sr := ScenarioResult{
			Name:     res.Scenario,
			RunID:    res.RunID,
			Tags:     res.Tags,
			Verdict:  res.Verdict.String(),
			Status:   res.Verdict.Status,
			Reason:   res.Verdict.Reason,
			Duration: res.Duration(),
			Steps:    make([]StepResult, 0, len(res.Steps)),
		}
		for _, step := range res.Steps {
			st := StepResult{
				Index:     step.Index,
				Name:      step.Name,
				Kind:      step.Kind,
				Alternate: step.Alternate,
				Duration:  step.Duration,
			}
			if step.Err != nil {
				st.Error = step.Err.Error()
			}
			sr.Steps = append(sr.Steps, st)
		}
		if res.ReleaseErr != nil {
			sr.ReleaseError = res.ReleaseErr.Error()
			s.Metrics.ReleaseErrors++
		}

		switch res.Verdict.Status {
		case engine.StatusPass:
			s.Metrics.Passed++
		case engine.StatusFail:
			s.Metrics.Failed++
		default:
			s.Metrics.Errored++
		}
		s.Metrics.Steps += len(res.Steps)
		s.Metrics.AlternatesUsed += res.AlternatesUsed()
		s.Scenarios = append(s.Scenarios, sr)
	}
	s.Metrics.Scenarios = len(results)

	switch {
	case s.Metrics.Errored > 0:
		s.Status = statusErrored
	case s.Metrics.Failed > 0:
		s.Status = statusFailed
	default:
		s.Status = statusPassed
	}
	return s
}

// ExitCode is 0 when every scenario passed, 2 when any errored and 1 otherwise.
func (s *Summary) ExitCode() int {
	switch s.Status {
	case statusPassed:
		return ExitPassed
	case statusErrored:
		return ExitErrored
	default:
		return ExitFailed
	}
}
