package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/shmem/internal/memory"
	"github.com/roach88/shmem/internal/reconcile"
)

// ErrClosed is returned by a Loopback after Close.
var ErrClosed = errors.New("connection closed")

// Loopback is an in-process peer backed by another memory.Store.
//
// It enforces the same per-request limits as the Modbus client, so passes
// driven against it exercise the real chunking. Tests and the scenario
// harness use it to stand in for a remote device.
type Loopback struct {
	store  *memory.Store
	limits reconcile.Limits

	mu     sync.Mutex
	closed bool
	reads  int
	writes int
}

// NewLoopback exposes store as a peer with the default Modbus limits.
func NewLoopback(store *memory.Store) *Loopback {
	return &Loopback{store: store, limits: reconcile.DefaultLimits()}
}

// Store returns the backing store (the "remote" memory).
func (l *Loopback) Store() *memory.Store {
	return l.store
}

// Limits implements reconcile.Peer.
func (l *Loopback) Limits() reconcile.Limits {
	return l.limits
}

// ReadRange implements reconcile.Peer.
func (l *Loopback) ReadRange(ctx context.Context, base, count int) ([]uint16, error) {
	if err := l.check(ctx, reconcile.OpRead, base, count, l.limits.MaxRead); err != nil {
		return nil, err
	}
	out := make([]uint16, count)
	for i := range out {
		v, err := l.store.Get(base + i)
		if err != nil {
			return nil, fmt.Errorf("loopback read: %w", err)
		}
		out[i] = v
	}
	l.mu.Lock()
	l.reads++
	l.mu.Unlock()
	return out, nil
}

// WriteRange implements reconcile.Peer. The whole range is validated before
// any cell is written.
func (l *Loopback) WriteRange(ctx context.Context, base int, values []uint16) error {
	if err := l.check(ctx, reconcile.OpWrite, base, len(values), l.limits.MaxWrite); err != nil {
		return err
	}
	if _, err := l.store.Get(base + len(values) - 1); err != nil {
		return fmt.Errorf("loopback write: %w", err)
	}
	for i, v := range values {
		if err := l.store.Set(base+i, v); err != nil {
			return fmt.Errorf("loopback write: %w", err)
		}
	}
	l.mu.Lock()
	l.writes++
	l.mu.Unlock()
	return nil
}

// Requests returns how many read and write requests succeeded.
func (l *Loopback) Requests() (reads, writes int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reads, l.writes
}

// Close makes every later request fail with a transport error, the way a
// reset connection would.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *Loopback) check(ctx context.Context, op reconcile.Op, base, count, limit int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return &reconcile.TransportError{Op: op, Base: base, Count: count, Err: ErrClosed}
	}
	if count <= 0 || count > limit {
		return fmt.Errorf("loopback %s: count %d outside 1..%d", op, count, limit)
	}
	return nil
}
