package reconcile

import (
	"context"
	"errors"
	"fmt"
)

// Protocol limits of Modbus holding-register requests.
const (
	DefaultMaxRead  = 125
	DefaultMaxWrite = 123
)

// Limits bounds the number of values a peer accepts per request.
type Limits struct {
	MaxRead  int
	MaxWrite int
}

// DefaultLimits returns the Modbus function 3 / function 16 limits.
func DefaultLimits() Limits {
	return Limits{MaxRead: DefaultMaxRead, MaxWrite: DefaultMaxWrite}
}

func (l Limits) withDefaults() Limits {
	if l.MaxRead <= 0 {
		l.MaxRead = DefaultMaxRead
	}
	if l.MaxWrite <= 0 {
		l.MaxWrite = DefaultMaxWrite
	}
	return l
}

// Peer is the other side of the exchange, reachable only through ranged
// register reads and writes. Implementations return a *TransportError when
// the connection fails. A single call never exceeds Limits; callers chunk
// with ReadChunked and WriteChunked.
type Peer interface {
	ReadRange(ctx context.Context, base, count int) ([]uint16, error)
	WriteRange(ctx context.Context, base int, values []uint16) error
	Limits() Limits
}

// Op names a transport operation.
type Op string

const (
	OpRead    Op = "read"
	OpWrite   Op = "write"
	OpConnect Op = "connect"
)

// TransportError reports a connection reset or I/O failure talking to the
// peer. It is fatal for the reconciliation loop that observes it.
type TransportError struct {
	Op    Op
	Base  int
	Count int
	Err   error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Op == OpConnect {
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s %d@%d: %v", e.Op, e.Count, e.Base, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
