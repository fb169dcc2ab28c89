package harness

import "github.com/roach88/shmem/internal/reconcile"

// Trace event types.
const (
	EventWrite = "write"
	EventPass  = "pass"
)

// TraceEvent records one write step or one pass.
type TraceEvent struct {
	Type string `json:"type"`
	Seq  int64  `json:"seq"`

	// Write events.
	Side   string         `json:"side,omitempty"`
	Cells  map[int]uint16 `json:"cells,omitempty"`
	Values map[string]any `json:"values,omitempty"`

	// Pass events. Reads and Writes count peer requests made by the pass.
	Report *reconcile.Report `json:"report,omitempty"`
	Reads  *int              `json:"reads,omitempty"`
	Writes *int              `json:"writes,omitempty"`
	Local  []uint16          `json:"local,omitempty"`
	Shadow []uint16          `json:"shadow,omitempty"`
	Remote []uint16          `json:"remote,omitempty"`
}

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Final cell contents per side.
	Local  []uint16 `json:"local"`
	Shadow []uint16 `json:"shadow"`
	Remote []uint16 `json:"remote"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failed check.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
