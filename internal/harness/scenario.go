package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/shmem/internal/reconcile"
)

// Scenario is a scripted reconciliation between a local store and a
// loopback peer.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description"`

	// Size is the number of cells on each side. Ignored when Layout is set.
	Size int `yaml:"size,omitempty"`

	// Layout is an optional CUE memory map, relative to the scenario file.
	// It fixes the size and enables named writes and value assertions.
	Layout string `yaml:"layout,omitempty"`

	// Mode selects the pass variant: "bulk" (default) or "each".
	Mode string `yaml:"mode,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step writes to one side and then runs passes. A step may do either or both.
type Step struct {
	// Side is "local" or "remote". Required when Cells or Values is set.
	Side string `yaml:"side,omitempty"`

	// Cells are raw cell writes keyed by address.
	Cells map[int]uint16 `yaml:"cells,omitempty"`

	// Values are named variable writes; they need a layout.
	Values map[string]any `yaml:"values,omitempty"`

	// Passes is the number of reconciliation passes to run after the writes.
	Passes int `yaml:"passes,omitempty"`
}

// Assertion checks the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Side is "local", "remote" or "shadow" (cells, value).
	Side string `yaml:"side,omitempty"`

	// Cells are expected cell values by address (cells).
	Cells map[int]uint16 `yaml:"cells,omitempty"`

	// Name and Value check one named variable (value).
	Name  string `yaml:"name,omitempty"`
	Value any    `yaml:"value,omitempty"`

	// Action and Count check how many cells an action touched over all
	// passes (action_count).
	Action string `yaml:"action,omitempty"`
	Count  int    `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertCells       = "cells"
	AssertValue       = "value"
	AssertConverged   = "converged"
	AssertActionCount = "action_count"
)

// Side names.
const (
	SideLocal  = "local"
	SideRemote = "remote"
	SideShadow = "shadow"
)

// LoadScenario reads a scenario file. Unknown fields are rejected and the
// layout path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if s.Layout != "" && !filepath.IsAbs(s.Layout) {
		s.Layout = filepath.Join(filepath.Dir(path), s.Layout)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Layout == "" && s.Size <= 0 {
		return fmt.Errorf("size must be positive when no layout is given")
	}
	if _, err := reconcile.ParseMode(s.Mode); err != nil {
		return err
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		writes := len(step.Cells) + len(step.Values)
		if writes == 0 && step.Passes <= 0 {
			return fmt.Errorf("step %d: nothing to do", i)
		}
		if writes > 0 && step.Side != SideLocal && step.Side != SideRemote {
			return fmt.Errorf("step %d: side must be %q or %q, got %q", i, SideLocal, SideRemote, step.Side)
		}
		if len(step.Values) > 0 && s.Layout == "" {
			return fmt.Errorf("step %d: named values need a layout", i)
		}
		if step.Passes < 0 {
			return fmt.Errorf("step %d: passes must not be negative", i)
		}
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertCells:
			if !validSide(a.Side) {
				return fmt.Errorf("assertion %d: unknown side %q", i, a.Side)
			}
		case AssertValue:
			if s.Layout == "" {
				return fmt.Errorf("assertion %d: value assertions need a layout", i)
			}
			if !validSide(a.Side) {
				return fmt.Errorf("assertion %d: unknown side %q", i, a.Side)
			}
		case AssertConverged:
		case AssertActionCount:
			if !validAction(a.Action) {
				return fmt.Errorf("assertion %d: unknown action %q", i, a.Action)
			}
		default:
			return fmt.Errorf("assertion %d: unknown type %q", i, a.Type)
		}
	}
	return nil
}

func validSide(side string) bool {
	switch side {
	case SideLocal, SideRemote, SideShadow:
		return true
	}
	return false
}

func validAction(name string) bool {
	for _, a := range []reconcile.Action{
		reconcile.ActionConflict, reconcile.ActionAdoptRemote, reconcile.ActionPushLocal, reconcile.ActionSettle,
	} {
		if a.String() == name {
			return true
		}
	}
	return false
}
