package engine

import (
	"fmt"
	"time"

	"github.com/entrhq/flowcheck/pkg/driver"
)

// StepKind identifies the primitive a Step performs.
type StepKind string

const (
	StepNavigate StepKind = "navigate"
	StepWait     StepKind = "wait"
	StepClick    StepKind = "click"
	StepFill     StepKind = "fill"
	StepAssert   StepKind = "assert"
)

// Locator describes how to find one element inside a frame.
type Locator struct {
	Strategy driver.Strategy `yaml:"strategy" json:"strategy"`
	Path     string          `yaml:"path" json:"path"`

	// Index selects among multiple matches, zero based
	Index int `yaml:"index" json:"index"`

	// Frame picks a child frame by name or URL substring. Empty means the main frame.
	Frame string `yaml:"frame,omitempty" json:"frame,omitempty"`
}

// Selector converts the locator to a driver query without the ordinal.
func (l Locator) Selector() driver.Selector {
	return driver.Selector{Strategy: l.Strategy, Value: l.Path}
}

func (l Locator) String() string {
	s := fmt.Sprintf("%s=%s", l.Strategy, l.Path)
	if l.Index > 0 {
		s += fmt.Sprintf(" [%d]", l.Index)
	}
	if l.Frame != "" {
		s += fmt.Sprintf(" in frame %q", l.Frame)
	}
	return s
}

func (l Locator) validate() error {
	switch l.Strategy {
	case driver.StrategyXPath, driver.StrategyCSS, driver.StrategyText:
	default:
		return fmt.Errorf("invalid locator strategy: %q (must be 'xpath', 'css', or 'text')", l.Strategy)
	}
	if l.Path == "" {
		return fmt.Errorf("locator path is required")
	}
	if l.Index < 0 {
		return fmt.Errorf("locator index cannot be negative")
	}
	return nil
}

// Step is one instruction of a Scenario. Steps are not modified once a run starts.
type Step struct {
	Name   string
	Kind   StepKind
	Target *Locator

	// Value is the URL for navigate steps and the text for fill steps.
	Value string

	// WaitUntil is the navigation commit mode, or the load state for a wait step without target.
	WaitUntil driver.LoadState

	// Timeout overrides the configured default for this kind of step.
	Timeout time.Duration

	// Expect is the condition checked by an assert step.
	Expect *Outcome

	// Alternate is tried once when the step fails to find or act on its target.
	Alternate *Step
}

// Label names the step for logs and reports.
func (s Step) Label() string {
	if s.Name != "" {
		return s.Name
	}
	switch {
	case s.Kind == StepNavigate:
		return fmt.Sprintf("navigate %s", s.Value)
	case s.Target != nil:
		return fmt.Sprintf("%s %s", s.Kind, s.Target.Path)
	default:
		return string(s.Kind)
	}
}

func (s Step) validate(alternate bool) error {
	if s.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	if s.Target != nil {
		if err := s.Target.validate(); err != nil {
			return err
		}
	}
	if s.WaitUntil != "" {
		if _, err := driver.ParseLoadState(string(s.WaitUntil)); err != nil {
			return err
		}
	}

	switch s.Kind {
	case StepNavigate:
		if s.Value == "" {
			return fmt.Errorf("navigate requires a url")
		}
	case StepClick, StepFill:
		if s.Target == nil {
			return fmt.Errorf("%s requires a target", s.Kind)
		}
	case StepWait:
	case StepAssert:
		if s.Expect == nil {
			return fmt.Errorf("assert requires an expected outcome")
		}
		if err := s.Expect.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid step kind: %q", s.Kind)
	}

	if s.Alternate != nil {
		if alternate {
			return fmt.Errorf("an alternate step cannot have its own alternate")
		}
		if err := s.Alternate.validate(true); err != nil {
			return fmt.Errorf("alternate: %w", err)
		}
	}
	return nil
}

// OutcomeKind identifies the condition an Outcome checks.
type OutcomeKind string

const (
	// OutcomeTextVisible passes when Text is visible in any frame of the current page.
	OutcomeTextVisible OutcomeKind = "text-visible"
	// OutcomeTextAbsent passes when Text is visible in no frame of the current page.
	OutcomeTextAbsent OutcomeKind = "text-absent"
	// OutcomeTargetText passes when Target's text contains Text.
	OutcomeTargetText OutcomeKind = "target-text"
)

// Outcome is the condition that decides a scenario's verdict.
type Outcome struct {
	Kind    OutcomeKind
	Text    string
	Target  *Locator
	Timeout time.Duration

	// Message becomes the Fail reason when the outcome is not observed.
	Message string
}

// FailReason is the reason reported when the outcome is not observed.
func (o Outcome) FailReason() string {
	if o.Message != "" {
		return o.Message
	}
	switch o.Kind {
	case OutcomeTextAbsent:
		return fmt.Sprintf("text %q still visible", o.Text)
	case OutcomeTargetText:
		return fmt.Sprintf("%s does not contain %q", o.Target, o.Text)
	default:
		return fmt.Sprintf("text %q not found", o.Text)
	}
}

func (o Outcome) validate() error {
	if o.Timeout < 0 {
		return fmt.Errorf("outcome timeout cannot be negative")
	}
	switch o.Kind {
	case OutcomeTextVisible, OutcomeTextAbsent:
		if o.Text == "" {
			return fmt.Errorf("%s outcome requires text", o.Kind)
		}
	case OutcomeTargetText:
		if o.Target == nil {
			return fmt.Errorf("target-text outcome requires a target")
		}
		if err := o.Target.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid outcome kind: %q", o.Kind)
	}
	return nil
}

// Scenario is an ordered list of steps and the outcome that decides the verdict.
type Scenario struct {
	Name    string
	BaseURL string
	Steps   []Step
	Expect  Outcome

	// Budget bounds the whole run. Zero uses Config.ScenarioBudget.
	Budget time.Duration

	Tags []string
}

// Validate checks the scenario before it is run.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidScenario)
	}
	if s.Budget < 0 {
		return fmt.Errorf("%w: %s: budget cannot be negative", ErrInvalidScenario, s.Name)
	}
	for i, step := range s.Steps {
		if err := step.validate(false); err != nil {
			return fmt.Errorf("%w: %s: step %d: %w", ErrInvalidScenario, s.Name, i+1, err)
		}
	}
	if err := s.Expect.validate(); err != nil {
		return fmt.Errorf("%w: %s: expect: %w", ErrInvalidScenario, s.Name, err)
	}
	return nil
}
