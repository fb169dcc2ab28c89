package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/shmem/internal/memory"
)

// Mode selects how a pass talks to the peer.
type Mode int

const (
	// ModeBulk reads the whole remote range in chunks, decides every cell,
	// then pushes local-only cells in contiguous chunked runs.
	ModeBulk Mode = iota
	// ModeEach reads, decides and (if needed) writes one register at a time.
	ModeEach
)

// String returns "bulk" or "each".
func (m Mode) String() string {
	if m == ModeEach {
		return "each"
	}
	return "bulk"
}

// ParseMode maps "bulk" or "each" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "bulk":
		return ModeBulk, nil
	case "each":
		return ModeEach, nil
	}
	return 0, fmt.Errorf("unknown reconcile mode %q: must be bulk or each", s)
}

// Report summarizes one reconciliation pass.
type Report struct {
	Cells     int   `json:"cells"`
	Conflicts []int `json:"conflicts,omitempty"`
	Adopted   []int `json:"adopted,omitempty"`
	Pushed    []int `json:"pushed,omitempty"`
	Settled   []int `json:"settled,omitempty"`
}

// Changed reports whether the pass touched any cell.
func (r Report) Changed() bool {
	return len(r.Conflicts)+len(r.Adopted)+len(r.Pushed)+len(r.Settled) > 0
}

func (r *Report) record(addr int, a Action) {
	switch a {
	case ActionConflict:
		r.Conflicts = append(r.Conflicts, addr)
	case ActionAdoptRemote:
		r.Adopted = append(r.Adopted, addr)
	case ActionPushLocal:
		r.Pushed = append(r.Pushed, addr)
	case ActionSettle:
		r.Settled = append(r.Settled, addr)
	}
}

// Reconciler keeps a local store consistent with a peer using a shadow copy
// of the last agreed state.
//
// Thread-safety model:
//   - Pass/PassEach/Run: must not be called concurrently with each other
//   - the local store may be written by application code at any time
//   - the shadow is written only by the reconciler
type Reconciler struct {
	local  *memory.Store
	shadow *memory.Store
	peer   Peer
	mode   Mode
	logger *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithMode selects the pass variant used by Run.
func WithMode(m Mode) Option {
	return func(r *Reconciler) {
		r.mode = m
	}
}

// WithShadow seeds the reconciler with an existing shadow store.
// The shadow must have the same size as the local store.
func WithShadow(shadow *memory.Store) Option {
	return func(r *Reconciler) {
		r.shadow = shadow
	}
}

// WithLogger sets the logger for per-pass debug output.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// New creates a Reconciler for local against peer. Without WithShadow the
// shadow starts zeroed, matching a freshly zeroed store on both sides.
func New(local *memory.Store, peer Peer, opts ...Option) (*Reconciler, error) {
	r := &Reconciler{
		local:  local,
		peer:   peer,
		mode:   ModeBulk,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.shadow == nil {
		r.shadow = memory.NewStore(local.Size())
	}
	if r.shadow.Size() != local.Size() {
		return nil, fmt.Errorf("shadow size %d does not match store size %d", r.shadow.Size(), local.Size())
	}
	r.logger = r.logger.With("component", "reconcile")
	return r, nil
}

// Shadow returns the shadow store. Callers must treat it as read-only.
func (r *Reconciler) Shadow() *memory.Store {
	return r.shadow
}

// Local returns the local store.
func (r *Reconciler) Local() *memory.Store {
	return r.local
}

// Mode returns the configured pass variant.
func (r *Reconciler) Mode() Mode {
	return r.mode
}

// Run performs one pass using the configured mode.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	if r.mode == ModeEach {
		return r.PassEach(ctx)
	}
	return r.Pass(ctx)
}

// Pass performs one bulk reconciliation pass.
//
// The full remote range is fetched before any decision is made, and local and
// shadow are snapshotted once. Every cell is decided and applied, except that
// local-only cells are pushed in address-ascending contiguous runs and their
// shadow is committed only once the run covering them has been written.
func (r *Reconciler) Pass(ctx context.Context) (Report, error) {
	size := r.local.Size()
	remote, err := ReadChunked(ctx, r.peer, 0, size)
	if err != nil {
		return Report{}, fmt.Errorf("pull remote: %w", err)
	}
	local := r.local.Snapshot()
	shadow := r.shadow.Snapshot()

	rep := Report{Cells: size}
	outgoing := make([]uint16, size)
	for i := 0; i < size; i++ {
		o := Decide(local[i], shadow[i], remote[i])
		rep.record(i, o.Action)
		if o.Push {
			outgoing[i] = o.Local
			continue
		}
		if err := r.apply(i, o); err != nil {
			return rep, err
		}
	}

	for _, run := range runs(rep.Pushed) {
		if err := WriteChunked(ctx, r.peer, run.Start, outgoing[run.Start:run.End]); err != nil {
			return rep, fmt.Errorf("push local: %w", err)
		}
		for i := run.Start; i < run.End; i++ {
			if err := r.shadow.Set(i, outgoing[i]); err != nil {
				return rep, err
			}
		}
	}

	if rep.Changed() {
		r.logger.Debug("pass applied",
			"conflicts", len(rep.Conflicts),
			"adopted", len(rep.Adopted),
			"pushed", len(rep.Pushed),
			"settled", len(rep.Settled))
	}
	return rep, nil
}

// PassEach performs one reconciliation pass register by register: read one
// remote value, decide, apply, and write it back immediately when local-only.
// A local-only cell's shadow is updated only after its write succeeds.
// Per-cell outcomes are identical to Pass for the same (local, shadow, remote).
func (r *Reconciler) PassEach(ctx context.Context) (Report, error) {
	size := r.local.Size()
	rep := Report{Cells: size}
	for i := 0; i < size; i++ {
		vals, err := r.peer.ReadRange(ctx, i, 1)
		if err != nil {
			return rep, fmt.Errorf("pull remote %d: %w", i, err)
		}
		if len(vals) != 1 {
			return rep, &TransportError{Op: OpRead, Base: i, Count: 1, Err: fmt.Errorf("short read: got %d values", len(vals))}
		}
		local, err := r.local.Get(i)
		if err != nil {
			return rep, err
		}
		shadow, err := r.shadow.Get(i)
		if err != nil {
			return rep, err
		}

		o := Decide(local, shadow, vals[0])
		rep.record(i, o.Action)
		if o.Push {
			if err := r.peer.WriteRange(ctx, i, []uint16{o.Local}); err != nil {
				return rep, fmt.Errorf("push local %d: %w", i, err)
			}
		}
		if err := r.apply(i, o); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// apply writes an outcome into the local and shadow stores.
func (r *Reconciler) apply(addr int, o Outcome) error {
	if o.changesShadow() {
		if err := r.shadow.Set(addr, o.Shadow); err != nil {
			return err
		}
	}
	if o.changesLocal() {
		if err := r.local.Set(addr, o.Local); err != nil {
			return err
		}
	}
	return nil
}
