package reconcile

import (
	"context"
	"fmt"
)

// Span is a half-open index range [Start, End).
type Span struct {
	Start int
	End   int
}

// Len returns the number of indices in the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Chunks splits [0, length) into contiguous, non-overlapping spans of at most
// size indices, in ascending order. Returns nil when length is not positive.
// Panics if size is not positive.
func Chunks(length, size int) []Span {
	if size <= 0 {
		panic(fmt.Sprintf("reconcile: chunk size must be positive, got %d", size))
	}
	if length <= 0 {
		return nil
	}
	spans := make([]Span, 0, (length+size-1)/size)
	for start := 0; start < length; start += size {
		spans = append(spans, Span{Start: start, End: min(start+size, length)})
	}
	return spans
}

// ReadChunked reads count values starting at base, issuing address-ascending
// requests of at most p.Limits().MaxRead values each.
func ReadChunked(ctx context.Context, p Peer, base, count int) ([]uint16, error) {
	limits := p.Limits().withDefaults()
	out := make([]uint16, count)
	for _, span := range Chunks(count, limits.MaxRead) {
		vals, err := p.ReadRange(ctx, base+span.Start, span.Len())
		if err != nil {
			return nil, fmt.Errorf("read chunk [%d, %d): %w", base+span.Start, base+span.End, err)
		}
		if len(vals) != span.Len() {
			return nil, &TransportError{
				Op:    OpRead,
				Base:  base + span.Start,
				Count: span.Len(),
				Err:   fmt.Errorf("short read: got %d values", len(vals)),
			}
		}
		copy(out[span.Start:span.End], vals)
	}
	return out, nil
}

// WriteChunked writes values starting at base, issuing address-ascending
// requests of at most p.Limits().MaxWrite values each.
func WriteChunked(ctx context.Context, p Peer, base int, values []uint16) error {
	limits := p.Limits().withDefaults()
	for _, span := range Chunks(len(values), limits.MaxWrite) {
		if err := p.WriteRange(ctx, base+span.Start, values[span.Start:span.End]); err != nil {
			return fmt.Errorf("write chunk [%d, %d): %w", base+span.Start, base+span.End, err)
		}
	}
	return nil
}

// runs groups ascending addresses into maximal contiguous spans.
func runs(addrs []int) []Span {
	var out []Span
	for _, a := range addrs {
		if n := len(out); n > 0 && out[n-1].End == a {
			out[n-1].End = a + 1
			continue
		}
		out = append(out, Span{Start: a, End: a + 1})
	}
	return out
}
