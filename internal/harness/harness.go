package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/roach88/shmem/internal/layout"
	"github.com/roach88/shmem/internal/memory"
	"github.com/roach88/shmem/internal/reconcile"
	"github.com/roach88/shmem/internal/transport"
)

// Harness holds the two sides of one scenario run.
type Harness struct {
	local      *memory.Store
	remote     *memory.Store
	localVars  *memory.Layout
	remoteVars *memory.Layout
	peer       *transport.Loopback
	rec        *reconcile.Reconciler
	seq        int64
	totals     map[string]int
}

// Run executes a scenario against a fresh local store and a loopback peer.
//
// Execution flow:
//  1. Build both stores (from the layout when given)
//  2. Apply each step's writes, then run its passes
//  3. Evaluate assertions against the final state
func Run(s *Scenario) (*Result, error) {
	h, err := newHarness(s)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range s.Steps {
		if err := h.executeStep(ctx, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	result.Local = h.local.Snapshot()
	result.Shadow = h.rec.Shadow().Snapshot()
	result.Remote = h.remote.Snapshot()

	for _, msg := range h.evaluate(s.Assertions, result) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(s *Scenario) (*Harness, error) {
	h := &Harness{totals: make(map[string]int)}

	if s.Layout != "" {
		m, err := layout.LoadFile(s.Layout)
		if err != nil {
			return nil, fmt.Errorf("load layout: %w", err)
		}
		if h.localVars, err = m.NewLayout(); err != nil {
			return nil, err
		}
		if h.remoteVars, err = m.NewLayout(); err != nil {
			return nil, err
		}
		h.local = h.localVars.Store()
		h.remote = h.remoteVars.Store()
	} else {
		h.local = memory.NewStore(s.Size)
		h.remote = memory.NewStore(s.Size)
	}

	mode, err := reconcile.ParseMode(s.Mode)
	if err != nil {
		return nil, err
	}
	h.peer = transport.NewLoopback(h.remote)
	h.rec, err = reconcile.New(h.local, h.peer,
		reconcile.WithMode(mode),
		reconcile.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Harness) executeStep(ctx context.Context, step Step, result *Result) error {
	if len(step.Cells)+len(step.Values) > 0 {
		if err := h.write(step); err != nil {
			return err
		}
		h.seq++
		result.Trace = append(result.Trace, TraceEvent{
			Type:   EventWrite,
			Seq:    h.seq,
			Side:   step.Side,
			Cells:  step.Cells,
			Values: step.Values,
		})
	}

	for i := 0; i < step.Passes; i++ {
		readsBefore, writesBefore := h.peer.Requests()
		rep, err := h.rec.Run(ctx)
		if err != nil {
			return fmt.Errorf("pass: %w", err)
		}
		readsAfter, writesAfter := h.peer.Requests()
		reads, writes := readsAfter-readsBefore, writesAfter-writesBefore

		h.totals[reconcile.ActionConflict.String()] += len(rep.Conflicts)
		h.totals[reconcile.ActionAdoptRemote.String()] += len(rep.Adopted)
		h.totals[reconcile.ActionPushLocal.String()] += len(rep.Pushed)
		h.totals[reconcile.ActionSettle.String()] += len(rep.Settled)

		h.seq++
		result.Trace = append(result.Trace, TraceEvent{
			Type:   EventPass,
			Seq:    h.seq,
			Report: &rep,
			Reads:  &reads,
			Writes: &writes,
			Local:  h.local.Snapshot(),
			Shadow: h.rec.Shadow().Snapshot(),
			Remote: h.remote.Snapshot(),
		})
	}
	return nil
}

func (h *Harness) write(step Step) error {
	store, vars := h.local, h.localVars
	if step.Side == SideRemote {
		store, vars = h.remote, h.remoteVars
	}

	addrs := make([]int, 0, len(step.Cells))
	for addr := range step.Cells {
		addrs = append(addrs, addr)
	}
	sort.Ints(addrs)
	for _, addr := range addrs {
		if err := store.Set(addr, step.Cells[addr]); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(step.Values))
	for name := range step.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := vars.Write(name, step.Values[name]); err != nil {
			return err
		}
	}
	return nil
}
