package reconcile

import (
	"context"
	"errors"
)

type request struct {
	op    Op
	base  int
	count int
}

// fakePeer is an in-memory register bank that records every request.
type fakePeer struct {
	regs     []uint16
	limits   Limits
	requests []request

	// failAfter fails every request once this many have succeeded (-1: never).
	failAfter int
	// short returns one value fewer than requested on reads.
	short bool
}

func newFakePeer(size int) *fakePeer {
	return &fakePeer{
		regs:      make([]uint16, size),
		limits:    DefaultLimits(),
		failAfter: -1,
	}
}

var errConnReset = errors.New("connection reset by peer")

func (p *fakePeer) fail(op Op, base, count int) error {
	if p.failAfter >= 0 && len(p.requests) >= p.failAfter {
		return &TransportError{Op: op, Base: base, Count: count, Err: errConnReset}
	}
	return nil
}

func (p *fakePeer) ReadRange(_ context.Context, base, count int) ([]uint16, error) {
	if err := p.fail(OpRead, base, count); err != nil {
		return nil, err
	}
	if count > p.limits.MaxRead {
		return nil, errors.New("read exceeds limit")
	}
	p.requests = append(p.requests, request{op: OpRead, base: base, count: count})
	out := make([]uint16, count)
	copy(out, p.regs[base:base+count])
	if p.short {
		out = out[:count-1]
	}
	return out, nil
}

func (p *fakePeer) WriteRange(_ context.Context, base int, values []uint16) error {
	if err := p.fail(OpWrite, base, len(values)); err != nil {
		return err
	}
	if len(values) > p.limits.MaxWrite {
		return errors.New("write exceeds limit")
	}
	p.requests = append(p.requests, request{op: OpWrite, base: base, count: len(values)})
	copy(p.regs[base:], values)
	return nil
}

func (p *fakePeer) Limits() Limits {
	return p.limits
}

func (p *fakePeer) writes() []request {
	var out []request
	for _, r := range p.requests {
		if r.op == OpWrite {
			out = append(out, r)
		}
	}
	return out
}
