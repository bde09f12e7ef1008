// Package scenario reads scenario files into engine scenarios.
//
// A scenario file is YAML and may hold several scenarios separated by "---".
// Each step names exactly one action key:
//
//	name: login
//	base_url: https://app.example.com
//	tags: [onboarding]
//	budget: 2m
//	steps:
//	  - navigate: /login
//	  - fill: "xpath=//input[@name='email']"
//	    value: user@example.com
//	  - click: {xpath: "//button[@type='submit']", index: 0}
//	    timeout: 5s
//	    alternate:
//	      click: "text=Sign in"
//	  - wait:
//	    wait_until: load
//	expect:
//	  text_visible: Dashboard
//	  message: dashboard text not found
//
// Locators are written either as a "strategy=path" string (xpath, css or text; a
// bare path starting with "/" or "(" is XPath) or as a mapping with one of xpath,
// css or text plus optional index and frame.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/flowcheck/pkg/driver"
	"github.com/entrhq/flowcheck/pkg/engine"
)

type scenarioDoc struct {
	Name    string        `yaml:"name"`
	BaseURL string        `yaml:"base_url"`
	Tags    []string      `yaml:"tags"`
	Budget  time.Duration `yaml:"budget"`
	Steps   []stepDoc     `yaml:"steps"`
	Expect  *outcomeDoc   `yaml:"expect"`
}

var actionKeys = []string{"navigate", "wait", "click", "fill", "assert"}

type stepDoc struct {
	Name      string        `yaml:"name"`
	Navigate  string        `yaml:"navigate"`
	Wait      *locatorDoc   `yaml:"wait"`
	Click     *locatorDoc   `yaml:"click"`
	Fill      *locatorDoc   `yaml:"fill"`
	Assert    *outcomeDoc   `yaml:"assert"`
	Value     string        `yaml:"value"`
	WaitUntil string        `yaml:"wait_until"`
	Timeout   time.Duration `yaml:"timeout"`
	Alternate *stepDoc      `yaml:"alternate"`

	// set from the action key present in the mapping
	kind engine.StepKind
	line int
}

func (d *stepDoc) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: step must be a mapping", node.Line)
	}
	if err := checkKeys(node, d); err != nil {
		return err
	}
	type plain stepDoc
	if err := node.Decode((*plain)(d)); err != nil {
		return err
	}

	var kinds []string
	for i := 0; i+1 < len(node.Content); i += 2 {
		if key := node.Content[i].Value; slices.Contains(actionKeys, key) {
			kinds = append(kinds, key)
		}
	}
	switch len(kinds) {
	case 0:
		return fmt.Errorf("line %d: step has no action (one of %s)", node.Line, strings.Join(actionKeys, ", "))
	case 1:
		d.kind = engine.StepKind(kinds[0])
	default:
		return fmt.Errorf("line %d: step has more than one action: %s", node.Line, strings.Join(kinds, ", "))
	}
	d.line = node.Line
	return nil
}

func (d *stepDoc) toStep() (engine.Step, error) {
	step := engine.Step{
		Name:      d.Name,
		Kind:      d.kind,
		Value:     d.Value,
		WaitUntil: driver.LoadState(d.WaitUntil),
		Timeout:   d.Timeout,
	}

	var target *locatorDoc
	switch d.kind {
	case engine.StepNavigate:
		step.Value = d.Navigate
	case engine.StepWait:
		target = d.Wait
	case engine.StepClick:
		target = d.Click
	case engine.StepFill:
		target = d.Fill
	case engine.StepAssert:
		if d.Assert == nil {
			return engine.Step{}, fmt.Errorf("line %d: assert requires an outcome", d.line)
		}
		out, err := d.Assert.toOutcome()
		if err != nil {
			return engine.Step{}, fmt.Errorf("line %d: %w", d.line, err)
		}
		step.Expect = &out
	}
	if target != nil {
		loc, err := target.toLocator()
		if err != nil {
			return engine.Step{}, fmt.Errorf("line %d: %w", d.line, err)
		}
		step.Target = &loc
	}

	if d.Alternate != nil {
		alt, err := d.Alternate.toStep()
		if err != nil {
			return engine.Step{}, fmt.Errorf("alternate: %w", err)
		}
		step.Alternate = &alt
	}
	return step, nil
}

type locatorDoc struct {
	XPath string `yaml:"xpath"`
	CSS   string `yaml:"css"`
	Text  string `yaml:"text"`
	Index int    `yaml:"index"`
	Frame string `yaml:"frame"`
}

func (d *locatorDoc) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		loc, err := ParseLocator(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*d = locatorDoc{Index: loc.Index, Frame: loc.Frame}
		switch loc.Strategy {
		case driver.StrategyCSS:
			d.CSS = loc.Path
		case driver.StrategyText:
			d.Text = loc.Path
		default:
			d.XPath = loc.Path
		}
		return nil
	case yaml.MappingNode:
		if err := checkKeys(node, d); err != nil {
			return err
		}
		type plain locatorDoc
		return node.Decode((*plain)(d))
	default:
		return fmt.Errorf("line %d: locator must be a string or a mapping", node.Line)
	}
}

func (d *locatorDoc) toLocator() (engine.Locator, error) {
	loc := engine.Locator{Index: d.Index, Frame: d.Frame}
	set := 0
	if d.XPath != "" {
		loc.Strategy, loc.Path = driver.StrategyXPath, d.XPath
		set++
	}
	if d.CSS != "" {
		loc.Strategy, loc.Path = driver.StrategyCSS, d.CSS
		set++
	}
	if d.Text != "" {
		loc.Strategy, loc.Path = driver.StrategyText, d.Text
		set++
	}
	if set != 1 {
		return engine.Locator{}, fmt.Errorf("locator needs exactly one of xpath, css or text")
	}
	return loc, nil
}

// ParseLocator reads the "strategy=path" shorthand.
func ParseLocator(s string) (engine.Locator, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return engine.Locator{}, fmt.Errorf("locator is empty")
	}
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "(") {
		return engine.Locator{Strategy: driver.StrategyXPath, Path: s}, nil
	}
	strategy, path, ok := strings.Cut(s, "=")
	if !ok || path == "" {
		return engine.Locator{}, fmt.Errorf("invalid locator %q (want xpath=..., css=... or text=...)", s)
	}
	switch st := driver.Strategy(strategy); st {
	case driver.StrategyXPath, driver.StrategyCSS, driver.StrategyText:
		return engine.Locator{Strategy: st, Path: path}, nil
	default:
		return engine.Locator{}, fmt.Errorf("invalid locator strategy %q in %q", strategy, s)
	}
}

type outcomeDoc struct {
	TextVisible string        `yaml:"text_visible"`
	TextAbsent  string        `yaml:"text_absent"`
	Target      *locatorDoc   `yaml:"target"`
	Contains    string        `yaml:"contains"`
	Timeout     time.Duration `yaml:"timeout"`
	Message     string        `yaml:"message"`
}

func (d *outcomeDoc) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: outcome must be a mapping", node.Line)
	}
	if err := checkKeys(node, d); err != nil {
		return err
	}
	type plain outcomeDoc
	return node.Decode((*plain)(d))
}

func (d *outcomeDoc) toOutcome() (engine.Outcome, error) {
	out := engine.Outcome{Timeout: d.Timeout, Message: d.Message}
	set := 0
	if d.TextVisible != "" {
		out.Kind, out.Text = engine.OutcomeTextVisible, d.TextVisible
		set++
	}
	if d.TextAbsent != "" {
		out.Kind, out.Text = engine.OutcomeTextAbsent, d.TextAbsent
		set++
	}
	if d.Target != nil {
		loc, err := d.Target.toLocator()
		if err != nil {
			return engine.Outcome{}, fmt.Errorf("outcome target: %w", err)
		}
		out.Kind, out.Text, out.Target = engine.OutcomeTargetText, d.Contains, &loc
		set++
	}
	if set != 1 {
		return engine.Outcome{}, fmt.Errorf("outcome needs exactly one of text_visible, text_absent or target")
	}
	return out, nil
}

func (d *scenarioDoc) toScenario() (engine.Scenario, error) {
	sc := engine.Scenario{
		Name:    d.Name,
		BaseURL: d.BaseURL,
		Budget:  d.Budget,
		Tags:    d.Tags,
	}
	for i := range d.Steps {
		step, err := d.Steps[i].toStep()
		if err != nil {
			return engine.Scenario{}, fmt.Errorf("step %d: %w", i+1, err)
		}
		sc.Steps = append(sc.Steps, step)
	}
	if d.Expect == nil {
		return engine.Scenario{}, fmt.Errorf("%w: %s: expect is required", engine.ErrInvalidScenario, d.Name)
	}
	out, err := d.Expect.toOutcome()
	if err != nil {
		return engine.Scenario{}, fmt.Errorf("expect: %w", err)
	}
	sc.Expect = out
	if err := sc.Validate(); err != nil {
		return engine.Scenario{}, err
	}
	return sc, nil
}

// checkKeys rejects mapping keys that match no yaml tag of doc. Custom
// unmarshalers decode through node.Decode, which does not carry the strict
// setting of the outer decoder.
func checkKeys(node *yaml.Node, doc any) error {
	t := reflect.TypeOf(doc).Elem()
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		known := false
		for j := 0; j < t.NumField() && !known; j++ {
			name, _, _ := strings.Cut(t.Field(j).Tag.Get("yaml"), ",")
			known = name != "" && name != "-" && name == key.Value
		}
		if !known {
			return fmt.Errorf("line %d: unknown field %q", key.Line, key.Value)
		}
	}
	return nil
}

// Parse decodes every scenario document in data. source names the input in errors.
func Parse(data []byte, source string) ([]engine.Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var scenarios []engine.Scenario
	for n := 1; ; n++ {
		var doc scenarioDoc
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", source, n, err)
		}
		if doc.Name == "" && len(doc.Steps) == 0 && doc.Expect == nil {
			continue
		}
		sc, err := doc.toScenario()
		if err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", source, n, err)
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}
