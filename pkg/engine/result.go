package engine

import (
	"fmt"
	"time"
)

// Status is the kind of a Verdict.
type Status string

const (
	// StatusPass means the expected outcome was observed.
	StatusPass Status = "pass"
	// StatusFail means the workflow ran but the application did not behave as expected.
	StatusFail Status = "fail"
	// StatusError means the engine could not execute the workflow.
	StatusError Status = "error"
)

// Verdict is the single result of running a scenario.
type Verdict struct {
	Status Status
	Reason string
	Cause  error
}

// Pass returns a passing verdict.
func Pass() Verdict { return Verdict{Status: StatusPass} }

// Fail returns a failing verdict.
func Fail(reason string) Verdict {
	return Verdict{Status: StatusFail, Reason: reason, Cause: ErrAssertionTimeout}
}

// Errored returns an error verdict.
func Errored(cause error) Verdict {
	return Verdict{Status: StatusError, Reason: cause.Error(), Cause: cause}
}

func (v Verdict) String() string {
	switch v.Status {
	case StatusPass:
		return "Pass"
	case StatusFail:
		return fmt.Sprintf("Fail(%s)", v.Reason)
	default:
		return fmt.Sprintf("Error(%s)", v.Reason)
	}
}

// State is the lifecycle state of a run.
type State string

const (
	StateInit      State = "init"
	StateRunning   State = "running"
	StateCompleted State = "completed"
)

// StepRecord captures one executed step attempt.
type StepRecord struct {
	Index     int
	Name      string
	Kind      StepKind
	Alternate bool
	Duration  time.Duration
	Err       error
}

// Result is everything a run produced.
type Result struct {
	RunID    string
	Scenario string
	Tags     []string
	State    State
	Verdict  Verdict
	Steps    []StepRecord
	Start    time.Time
	End      time.Time

	// ReleaseErr is set when closing browser handles failed. It never changes the verdict.
	ReleaseErr error
}

// Duration is the wall-clock time of the run.
func (r *Result) Duration() time.Duration {
	if r.End.IsZero() {
		return time.Since(r.Start)
	}
	return r.End.Sub(r.Start)
}

// AlternatesUsed counts steps that needed their alternate.
func (r *Result) AlternatesUsed() int {
	n := 0
	for _, s := range r.Steps {
		if s.Alternate {
			n++
		}
	}
	return n
}
