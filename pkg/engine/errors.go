package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionSetup means the browser, its context or the first page could not be created.
	ErrSessionSetup = errors.New("session setup failed")

	// ErrNavigationTimeout means a navigation did not commit in time. It is soft:
	// the next step's own timeout is the real gate.
	ErrNavigationTimeout = errors.New("navigation timeout")

	// ErrLocatorNotFound means no element matched a locator at resolution time.
	ErrLocatorNotFound = errors.New("locator not found")

	// ErrActionTimeout means a resolved element never became actionable.
	ErrActionTimeout = errors.New("action timeout")

	// ErrAssertionTimeout means an expected outcome was not observed in time.
	ErrAssertionTimeout = errors.New("assertion timeout")

	// ErrScenarioBudgetExceeded means the scenario ran out of wall-clock budget.
	ErrScenarioBudgetExceeded = errors.New("scenario budget exceeded")

	// ErrNoPage means the session has no open page left to drive.
	ErrNoPage = errors.New("no open page")

	// ErrUnexpected wraps a recovered panic.
	ErrUnexpected = errors.New("unexpected fault")

	// ErrInvalidScenario is returned by Scenario.Validate.
	ErrInvalidScenario = errors.New("invalid scenario")
)

// StepError records which step failed and whether it was the alternate.
type StepError struct {
	Index     int
	Step      string
	Alternate bool
	Err       error
}

func (e *StepError) Error() string {
	which := "step"
	if e.Alternate {
		which = "alternate of step"
	}
	return fmt.Sprintf("%s %d (%s): %v", which, e.Index+1, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// IsRecoverable reports whether err may be retried with an alternate step.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrLocatorNotFound) || errors.Is(err, ErrActionTimeout)
}

// assertionError carries a Fail verdict out of a mid-flow assert step.
type assertionError struct {
	verdict Verdict
}

func (e *assertionError) Error() string { return e.verdict.Reason }

func (e *assertionError) Unwrap() error { return ErrAssertionTimeout }
