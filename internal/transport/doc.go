// Package transport carries register values between the two sides.
//
// Client is a Modbus TCP master that implements reconcile.Peer; Server is a
// Modbus TCP slave exposing a memory.Store as holding registers for a single
// unit id. Loopback is an in-process reconcile.Peer over a second store with
// the same request limits, for tests and dry runs.
//
// Per-request limits follow the Modbus protocol: at most 125 registers
// per read (function 3) and 123 per write (function 16). Callers chunk larger
// ranges with reconcile.ReadChunked and reconcile.WriteChunked.
package transport
