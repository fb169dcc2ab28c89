package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shmem/internal/driver"
	"github.com/roach88/shmem/internal/reconcile"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errReset = &reconcile.TransportError{Op: reconcile.OpRead, Count: 4, Err: errors.New("connection reset by peer")}

// failingRunner fails every pass with err.
type failingRunner struct{ err error }

func (f failingRunner) Run(context.Context) (reconcile.Report, error) {
	return reconcile.Report{}, f.err
}

// stoppingRunner stops its driver on the first pass.
type stoppingRunner struct{ d *driver.Driver }

func (s *stoppingRunner) Run(context.Context) (reconcile.Report, error) {
	s.d.Stop()
	return reconcile.Report{}, nil
}

func failingFactory(err error) Factory {
	return func(context.Context) (*driver.Driver, error) {
		return driver.New(failingRunner{err: err}, driver.WithLogger(quiet())), nil
	}
}

func TestRun_GivesUpAfterConsecutiveFailures(t *testing.T) {
	s, err := New(failingFactory(errReset), WithMaxFailures(3), WithRestartRate(100, time.Second), WithLogger(quiet()))
	require.NoError(t, err)

	err = s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up after 3 consecutive failures")
	assert.True(t, reconcile.IsTransportError(err), "last failure is wrapped")
	assert.Equal(t, 3, s.Attempts())
}

func TestRun_RecoversAfterTransientFailures(t *testing.T) {
	var calls atomic.Int32
	factory := func(context.Context) (*driver.Driver, error) {
		if calls.Add(1) < 3 {
			return nil, &reconcile.TransportError{Op: reconcile.OpConnect, Err: errors.New("connection refused")}
		}
		r := &stoppingRunner{}
		d := driver.New(r, driver.WithLogger(quiet()))
		r.d = d
		return d, nil
	}
	s, err := New(factory, WithMaxFailures(5), WithRestartRate(100, time.Second), WithLogger(quiet()))
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 3, s.Attempts())
}

func TestRun_NonTransportErrorIsFinal(t *testing.T) {
	boom := errors.New("boom")
	s, err := New(failingFactory(boom), WithRestartRate(100, time.Second), WithLogger(quiet()))
	require.NoError(t, err)

	err = s.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, s.Attempts())
}

func TestRun_RestartBudget(t *testing.T) {
	s, err := New(failingFactory(errReset),
		WithMaxFailures(100),
		WithRestartRate(1, time.Hour),
		WithBackoff(5*time.Millisecond),
		WithLogger(quiet()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, s.Attempts(), "second restart must wait for a token")
}

func TestStop_PreventsRestart(t *testing.T) {
	s, err := New(failingFactory(errReset), WithLogger(quiet()))
	require.NoError(t, err)
	s.Stop()

	require.NoError(t, s.Run(context.Background()))
	assert.Zero(t, s.Attempts())
}
