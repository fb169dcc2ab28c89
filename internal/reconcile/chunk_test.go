package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunks_CoverRangeInOrder(t *testing.T) {
	for _, length := range []int{1, 2, 124, 125, 126, 250, 251, 1000} {
		for _, size := range []int{1, 123, 125} {
			spans := Chunks(length, size)

			var idx []int
			next := 0
			for _, s := range spans {
				assert.Equal(t, next, s.Start, "contiguous")
				assert.LessOrEqual(t, s.Len(), size)
				assert.Greater(t, s.Len(), 0)
				for i := s.Start; i < s.End; i++ {
					idx = append(idx, i)
				}
				next = s.End
			}
			require.Len(t, idx, length, "length=%d size=%d", length, size)
			for i, v := range idx {
				assert.Equal(t, i, v)
			}
		}
	}
}

func TestChunks_Exact(t *testing.T) {
	assert.Equal(t, []Span{{0, 125}, {125, 250}, {250, 260}}, Chunks(260, 125))
	assert.Equal(t, []Span{{0, 3}}, Chunks(3, 125))
	assert.Nil(t, Chunks(0, 125))
}

func TestChunks_PanicsOnNonPositiveSize(t *testing.T) {
	assert.Panics(t, func() { Chunks(10, 0) })
}

func TestRuns(t *testing.T) {
	assert.Nil(t, runs(nil))
	assert.Equal(t, []Span{{0, 1}}, runs([]int{0}))
	assert.Equal(t, []Span{{1, 4}, {6, 7}, {9, 11}}, runs([]int{1, 2, 3, 6, 9, 10}))
}

func TestReadChunked_SplitsByMaxRead(t *testing.T) {
	p := newFakePeer(300)
	for i := range p.regs {
		p.regs[i] = uint16(i * 3)
	}

	vals, err := ReadChunked(context.Background(), p, 0, 300)
	require.NoError(t, err)
	assert.Equal(t, p.regs, vals)
	assert.Equal(t, []request{
		{op: OpRead, base: 0, count: 125},
		{op: OpRead, base: 125, count: 125},
		{op: OpRead, base: 250, count: 50},
	}, p.requests)
}

func TestReadChunked_WithBase(t *testing.T) {
	p := newFakePeer(20)
	p.limits = Limits{MaxRead: 4, MaxWrite: 4}
	for i := range p.regs {
		p.regs[i] = uint16(100 + i)
	}

	vals, err := ReadChunked(context.Background(), p, 5, 10)
	require.NoError(t, err)
	assert.Equal(t, p.regs[5:15], vals)
	assert.Len(t, p.requests, 3)
	assert.Equal(t, 13, p.requests[2].base)
	assert.Equal(t, 2, p.requests[2].count)
}

func TestWriteChunked_SplitsByMaxWrite(t *testing.T) {
	p := newFakePeer(300)
	values := make([]uint16, 250)
	for i := range values {
		values[i] = uint16(i + 1)
	}

	require.NoError(t, WriteChunked(context.Background(), p, 10, values))
	assert.Equal(t, values, p.regs[10:260])
	assert.Equal(t, []request{
		{op: OpWrite, base: 10, count: 123},
		{op: OpWrite, base: 133, count: 123},
		{op: OpWrite, base: 256, count: 4},
	}, p.requests)
}

func TestReadChunked_PropagatesTransportError(t *testing.T) {
	p := newFakePeer(300)
	p.failAfter = 1

	_, err := ReadChunked(context.Background(), p, 0, 300)
	require.Error(t, err)
	assert.True(t, IsTransportError(err))
	assert.Contains(t, err.Error(), "read chunk [125, 250)")
}

func TestReadChunked_ShortRead(t *testing.T) {
	p := newFakePeer(10)
	p.short = true

	_, err := ReadChunked(context.Background(), p, 0, 10)
	require.Error(t, err)
	assert.True(t, IsTransportError(err))
}
