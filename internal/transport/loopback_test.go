package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shmem/internal/memory"
	"github.com/roach88/shmem/internal/reconcile"
)

func TestLoopback_ReadWrite(t *testing.T) {
	remote := memory.NewStore(10)
	l := NewLoopback(remote)
	ctx := context.Background()

	require.NoError(t, l.WriteRange(ctx, 2, []uint16{7, 8, 9}))
	got, err := l.ReadRange(ctx, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0, 7, 8, 9}, got)

	reads, writes := l.Requests()
	assert.Equal(t, 1, reads)
	assert.Equal(t, 1, writes)
}

func TestLoopback_EnforcesLimits(t *testing.T) {
	l := NewLoopback(memory.NewStore(300))
	ctx := context.Background()

	_, err := l.ReadRange(ctx, 0, reconcile.DefaultMaxRead+1)
	require.Error(t, err)
	assert.False(t, reconcile.IsTransportError(err))

	err = l.WriteRange(ctx, 0, make([]uint16, reconcile.DefaultMaxWrite+1))
	require.Error(t, err)
}

func TestLoopback_WriteOutOfRangeIsAtomic(t *testing.T) {
	remote := memory.NewStore(4)
	l := NewLoopback(remote)

	err := l.WriteRange(context.Background(), 2, []uint16{1, 1, 1})
	require.Error(t, err)
	assert.True(t, memory.IsOutOfRange(err))
	assert.Equal(t, []uint16{0, 0, 0, 0}, remote.Snapshot())
}

func TestLoopback_Closed(t *testing.T) {
	l := NewLoopback(memory.NewStore(4))
	require.NoError(t, l.Close())

	_, err := l.ReadRange(context.Background(), 0, 1)
	require.Error(t, err)
	assert.True(t, reconcile.IsTransportError(err))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLoopback_CanceledContext(t *testing.T) {
	l := NewLoopback(memory.NewStore(4))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.ReadRange(ctx, 0, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoopback_DrivesReconciler(t *testing.T) {
	local := memory.NewStore(200)
	remote := memory.NewStore(200)
	require.NoError(t, local.Set(150, 42))
	require.NoError(t, remote.Set(3, 11))

	l := NewLoopback(remote)
	r, err := reconcile.New(local, l)
	require.NoError(t, err)

	_, err = r.Pass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, remote.Snapshot(), local.Snapshot())
	reads, writes := l.Requests()
	assert.Equal(t, 2, reads)
	assert.Equal(t, 1, writes)
}
