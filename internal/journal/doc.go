// Package journal keeps an append-only SQLite log of driver activity.
//
// One row per run (start, period, end, terminating error), one row per pass
// (elapsed time and the addresses each action touched) and one row per
// period overrun. The journal is diagnostic: nothing reads it back into the
// reconciliation state.
package journal
