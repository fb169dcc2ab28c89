// Package reconcile implements three-way reconciliation of a local memory
// store against a remote peer.
//
// Each side keeps a shadow copy holding the last value it believes was agreed
// with the peer. One pass compares, for every cell, the local value, the
// shadow value and the peer's current value, and decides independently per
// cell (see Decide):
//
//   - conflict: both sides changed the cell to different values. The remote
//     value wins; the local value is demoted into the shadow.
//   - adopt remote: only the peer changed. Local and shadow take its value.
//   - push local: only this side changed. The shadow takes the local value
//     and the cell is written to the peer.
//   - settle: both sides hold the same value but the shadow lags. The shadow
//     catches up so the cell stops being treated as locally modified.
//   - none: nothing to do.
//
// # Ordering
//
// A bulk pass (Reconciler.Pass) reads the whole remote range in
// address-ascending chunks of at most Limits.MaxRead registers before deciding
// anything, then pushes local-only cells in address-ascending runs of at most
// Limits.MaxWrite registers. The per-register variant (Reconciler.PassEach)
// snapshots one cell at a time and decides it immediately. Both use the same
// decision function, so identical triples yield identical outcomes.
//
// There is no locking across a pass. Application writes that land while a
// pass is in flight may be overwritten by a conflict or picked up on the next
// pass; periods should be tuned so that staleness is acceptable.
package reconcile
