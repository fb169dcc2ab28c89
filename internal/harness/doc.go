// Package harness runs scripted reconciliation scenarios.
//
// A scenario drives a local store against an in-process loopback peer:
//
//	name: conflict_remote_wins
//	description: "Both sides change cell 0; the remote value wins"
//	size: 4
//	steps:
//	  - side: local
//	    cells: {0: 5}
//	  - side: remote
//	    cells: {0: 9}
//	  - passes: 2
//	assertions:
//	  - type: cells
//	    side: local
//	    cells: {0: 9}
//	  - type: converged
//
// # Assertion Types
//
//   - cells: raw cell values on local, remote or shadow
//   - value: a named variable (needs a layout)
//   - converged: local, shadow and remote hold identical cells
//   - action_count: cells touched by an action over all passes
//
// Every run produces a trace of write and pass events which tests compare
// against golden files.
package harness
