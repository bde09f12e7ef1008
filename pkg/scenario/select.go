package scenario

import (
	"fmt"
	"slices"

	"github.com/gobwas/glob"

	"github.com/entrhq/flowcheck/pkg/engine"
)

// Selector picks scenarios by name patterns and tags.
type Selector struct {
	include []glob.Glob
	exclude []glob.Glob
	tags    []string
}

// NewSelector compiles include and exclude name patterns. A scenario is selected
// when it matches no exclude pattern, matches an include pattern (or none are
// given), and carries at least one of tags (or none are given).
func NewSelector(include, exclude, tags []string) (*Selector, error) {
	s := &Selector{tags: tags}

	for _, pattern := range include {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern '%s': %w", pattern, err)
		}
		s.include = append(s.include, g)
	}

	for _, pattern := range exclude {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern '%s': %w", pattern, err)
		}
		s.exclude = append(s.exclude, g)
	}

	return s, nil
}

// Match reports whether sc is selected.
func (s *Selector) Match(sc engine.Scenario) bool {
	// Exclusions take precedence
	for _, g := range s.exclude {
		if g.Match(sc.Name) {
			return false
		}
	}

	if len(s.tags) > 0 && !slices.ContainsFunc(sc.Tags, func(tag string) bool {
		return slices.Contains(s.tags, tag)
	}) {
		return false
	}

	if len(s.include) == 0 {
		return true
	}
	for _, g := range s.include {
		if g.Match(sc.Name) {
			return true
		}
	}
	return false
}

// Select returns the selected scenarios in their original order.
func (s *Selector) Select(scenarios []engine.Scenario) []engine.Scenario {
	var out []engine.Scenario
	for _, sc := range scenarios {
		if s.Match(sc) {
			out = append(out, sc)
		}
	}
	return out
}
