package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"github.com/yasserelgammal/rate-limiter/limiter"
	"github.com/yasserelgammal/rate-limiter/store"

	"github.com/roach88/shmem/internal/driver"
	"github.com/roach88/shmem/internal/reconcile"
)

// Defaults for New.
const (
	DefaultMaxFailures  = 5
	DefaultRestartRate  = 6
	DefaultRestartEvery = time.Minute
	DefaultBackoff      = time.Second
)

// limiterKey is the single bucket all restarts draw from.
const limiterKey = "restart"

// Factory connects a transport and builds a driver for one attempt. A dial
// failure counts as a failed attempt.
type Factory func(ctx context.Context) (*driver.Driver, error)

// Supervisor restarts a driver that ended with a transport failure.
//
// Restarts draw from a token bucket so a flapping peer cannot cause a tight
// reconnect loop, and a circuit breaker gives up after a run of consecutive
// failures. Errors other than transport failures end supervision at once.
type Supervisor struct {
	factory Factory
	breaker *gobreaker.CircuitBreaker
	bucket  *limiter.TokenBucket
	backoff time.Duration
	logger  *slog.Logger

	maxFailures  uint32
	restartRate  int64
	restartEvery time.Duration

	mu       sync.Mutex
	current  *driver.Driver
	stopped  atomic.Bool
	attempts atomic.Int64
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithMaxFailures sets how many consecutive failed attempts open the breaker.
func WithMaxFailures(n int) Option {
	return func(s *Supervisor) {
		if n > 0 {
			s.maxFailures = uint32(n)
		}
	}
}

// WithRestartRate allows n restarts per interval, with a burst of n.
func WithRestartRate(n int, every time.Duration) Option {
	return func(s *Supervisor) {
		if n > 0 && every > 0 {
			s.restartRate = int64(n)
			s.restartEvery = every
		}
	}
}

// WithBackoff sets the pause before retrying when the restart budget is spent.
func WithBackoff(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.backoff = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// New creates a supervisor around factory.
func New(factory Factory, opts ...Option) (*Supervisor, error) {
	s := &Supervisor{
		factory:      factory,
		backoff:      DefaultBackoff,
		logger:       slog.Default(),
		maxFailures:  DefaultMaxFailures,
		restartRate:  DefaultRestartRate,
		restartEvery: DefaultRestartEvery,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "supervisor")

	bucket, err := limiter.NewTokenBucket(
		limiter.Config{
			Rate:     s.restartRate,
			Duration: s.restartEvery,
			Burst:    s.restartRate,
		},
		store.NewMemoryStore(time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("configure restart limiter: %w", err)
	}
	s.bucket = bucket

	limit := s.maxFailures
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "driver",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= limit
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Info("breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return s, nil
}

// Attempts returns how many drivers have been started.
func (s *Supervisor) Attempts() int {
	return int(s.attempts.Load())
}

// Run supervises drivers until one stops cleanly, ctx is done, a
// non-transport error occurs, or the breaker opens.
func (s *Supervisor) Run(ctx context.Context) error {
	var lastErr error
	for {
		if s.stopped.Load() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if !s.bucket.Allow(limiterKey) {
			s.logger.Warn("restart budget spent, backing off", "backoff", s.backoff)
			if err := sleep(ctx, s.backoff); err != nil {
				return err
			}
			continue
		}

		_, err := s.breaker.Execute(func() (interface{}, error) {
			return nil, s.attempt(ctx)
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return fmt.Errorf("giving up after %d consecutive failures: %w", s.maxFailures, lastErr)
		case ctx.Err() != nil:
			return ctx.Err()
		case !reconcile.IsTransportError(err):
			return err
		}
		lastErr = err
		s.logger.Warn("driver failed, restarting", "attempt", s.Attempts(), "error", err)
	}
}

func (s *Supervisor) attempt(ctx context.Context) error {
	s.attempts.Add(1)
	d, err := s.factory(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.current = d
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
	}()

	if s.stopped.Load() {
		d.Stop()
	}
	return d.Run(ctx)
}

// Stop stops the running driver and prevents further restarts.
func (s *Supervisor) Stop() {
	s.stopped.Store(true)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Stop()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
