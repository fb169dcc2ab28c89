package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/shmem/internal/memory"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// evaluate runs every assertion and returns the failure messages.
func (h *Harness) evaluate(assertions []Assertion, result *Result) []string {
	var errs []string
	for _, a := range assertions {
		var err error
		switch a.Type {
		case AssertCells:
			err = assertCells(a, h.cells(a.Side, result))
		case AssertValue:
			err = h.assertValue(a)
		case AssertConverged:
			err = assertConverged(result)
		case AssertActionCount:
			if got := h.totals[a.Action]; got != a.Count {
				err = &AssertionError{
					Type:     AssertActionCount,
					Expected: fmt.Sprintf("%d cells with %s", a.Count, a.Action),
					Actual:   fmt.Sprintf("%d cells", got),
				}
			}
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func (h *Harness) cells(side string, result *Result) []uint16 {
	switch side {
	case SideRemote:
		return result.Remote
	case SideShadow:
		return result.Shadow
	}
	return result.Local
}

func assertCells(a Assertion, cells []uint16) error {
	addrs := make([]int, 0, len(a.Cells))
	for addr := range a.Cells {
		addrs = append(addrs, addr)
	}
	sort.Ints(addrs)

	for _, addr := range addrs {
		want := a.Cells[addr]
		if addr < 0 || addr >= len(cells) {
			return &AssertionError{
				Type:     AssertCells,
				Expected: fmt.Sprintf("%s[%d] = %d", a.Side, addr, want),
				Actual:   fmt.Sprintf("address outside [0, %d)", len(cells)),
			}
		}
		if cells[addr] != want {
			return &AssertionError{
				Type:     AssertCells,
				Expected: fmt.Sprintf("%s[%d] = %d", a.Side, addr, want),
				Actual:   fmt.Sprintf("%s[%d] = %d", a.Side, addr, cells[addr]),
			}
		}
	}
	return nil
}

func (h *Harness) assertValue(a Assertion) error {
	var vars *memory.Layout
	switch a.Side {
	case SideLocal:
		vars = h.localVars
	case SideRemote:
		vars = h.remoteVars
	case SideShadow:
		vars = memory.NewLayout(h.rec.Shadow())
		v, err := h.localVars.Lookup(a.Name)
		if err != nil {
			return err
		}
		if err := vars.Declare(a.Name, v); err != nil {
			return err
		}
	}

	got, err := vars.Read(a.Name)
	if err != nil {
		return err
	}
	if !sameValue(got, a.Value) {
		return &AssertionError{
			Type:     AssertValue,
			Expected: fmt.Sprintf("%s %s = %v", a.Side, a.Name, a.Value),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

// sameValue compares a variable value with a YAML scalar: bools by value,
// numbers by magnitude regardless of Go type.
func sameValue(got, want any) bool {
	if b, ok := got.(bool); ok {
		w, ok := want.(bool)
		return ok && b == w
	}
	g := reflect.ValueOf(got)
	w := reflect.ValueOf(want)
	if !g.IsValid() || !w.IsValid() {
		return false
	}
	switch w.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return w.Int() >= 0 && uint64(w.Int()) == g.Uint()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return w.Uint() == g.Uint()
	}
	return false
}

func assertConverged(result *Result) error {
	if reflect.DeepEqual(result.Local, result.Remote) && reflect.DeepEqual(result.Local, result.Shadow) {
		return nil
	}
	return &AssertionError{
		Type:     AssertConverged,
		Expected: "local, shadow and remote equal",
		Actual:   fmt.Sprintf("local=%v shadow=%v remote=%v", result.Local, result.Shadow, result.Remote),
	}
}
