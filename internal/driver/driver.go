package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/shmem/internal/reconcile"
)

// DefaultPeriod is the pass cadence when WithPeriod is not given.
const DefaultPeriod = 200 * time.Millisecond

// Runner performs one reconciliation pass. *reconcile.Reconciler implements it.
type Runner interface {
	Run(ctx context.Context) (reconcile.Report, error)
}

// Driver runs passes at a fixed cadence until stopped.
//
// Thread-safety model:
//   - Run(): one call per Driver, from one goroutine
//   - Start()/Stop()/Wait(): safe from any goroutine
type Driver struct {
	runner   Runner
	period   time.Duration
	clock    Clock
	ids      IDGenerator
	logger   *slog.Logger
	diag     *slog.Logger
	recorder Recorder
	closer   io.Closer

	stop    atomic.Bool
	running atomic.Bool
	runID   atomic.Value

	once sync.Once
	done chan struct{}
	err  error
}

// Option configures a Driver.
type Option func(*Driver)

// WithPeriod sets the target interval between pass starts. Non-positive
// values keep the default.
func WithPeriod(p time.Duration) Option {
	return func(d *Driver) {
		if p > 0 {
			d.period = p
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(d *Driver) { d.clock = c }
}

// WithIDGenerator replaces the UUIDv7 run id source.
func WithIDGenerator(g IDGenerator) Option {
	return func(d *Driver) { d.ids = g }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithDiagnostics writes one text line per period overrun to w, typically an
// append-only log file.
func WithDiagnostics(w io.Writer) Option {
	return func(d *Driver) {
		d.diag = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
}

// WithJournal records runs, passes and overruns.
func WithJournal(r Recorder) Option {
	return func(d *Driver) { d.recorder = r }
}

// WithCloser registers the transport to close when the loop exits, on every
// exit path.
func WithCloser(c io.Closer) Option {
	return func(d *Driver) { d.closer = c }
}

// New creates a driver for r.
func New(r Runner, opts ...Option) *Driver {
	d := &Driver{
		runner: r,
		period: DefaultPeriod,
		clock:  systemClock{},
		ids:    UUIDv7Generator{},
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "driver")
	return d
}

// Period returns the configured cadence.
func (d *Driver) Period() time.Duration {
	return d.period
}

// RunID returns the id of the current or last run, or "" before the first.
func (d *Driver) RunID() string {
	id, _ := d.runID.Load().(string)
	return id
}

// Run executes passes until Stop is called or ctx is done.
//
// Each iteration checks the stop flag, runs one pass and then sleeps for what
// remains of the period. A pass that overruns the period is reported and the
// next pass starts immediately. Any pass error ends the loop; transport
// failures surface as *reconcile.TransportError. Stop yields nil, context
// cancellation yields ctx.Err().
func (d *Driver) Run(ctx context.Context) (err error) {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("driver already running")
	}

	runID := d.ids.Generate()
	d.runID.Store(runID)
	logger := d.logger.With("run_id", runID)

	d.record(logger, "begin run", func(rctx context.Context) error {
		return d.recorder.BeginRun(rctx, RunInfo{ID: runID, Started: d.clock.Now(), Period: d.period})
	})
	logger.Info("driver starting", "period", d.period)

	defer func() {
		if d.closer != nil {
			if cerr := d.closer.Close(); cerr != nil {
				logger.Warn("closing transport failed", "error", cerr)
				if err == nil {
					err = fmt.Errorf("close transport: %w", cerr)
				}
			}
		}
		runErr := err
		d.record(logger, "end run", func(rctx context.Context) error {
			return d.recorder.EndRun(rctx, runID, d.clock.Now(), runErr)
		})
		if err != nil {
			logger.Error("driver stopped", "error", err)
		} else {
			logger.Info("driver stopped")
		}
	}()

	for seq := int64(1); ; seq++ {
		if d.stop.Load() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		start := d.clock.Now()
		rep, err := d.runner.Run(ctx)
		elapsed := d.clock.Now().Sub(start)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return ctx.Err()
			}
			if reconcile.IsTransportError(err) {
				return err
			}
			return fmt.Errorf("pass %d: %w", seq, err)
		}

		d.record(logger, "record pass", func(rctx context.Context) error {
			return d.recorder.RecordPass(rctx, PassRecord{
				RunID: runID, Seq: seq, Started: start, Elapsed: elapsed, Report: rep,
			})
		})
		if rep.Changed() {
			logger.Debug("pass applied changes",
				"seq", seq,
				"conflicts", len(rep.Conflicts),
				"adopted", len(rep.Adopted),
				"pushed", len(rep.Pushed),
				"elapsed", elapsed)
		}

		if elapsed > d.period {
			d.periodExceeded(logger, PeriodExceeded{
				RunID: runID, Seq: seq, At: d.clock.Now(), Elapsed: elapsed, Period: d.period,
			})
			continue
		}
		if err := d.clock.Sleep(ctx, d.period-elapsed); err != nil {
			if d.stop.Load() {
				return nil
			}
			return err
		}
	}
}

func (d *Driver) periodExceeded(logger *slog.Logger, ev PeriodExceeded) {
	over := ev.Elapsed - ev.Period
	logger.Warn("sync period exceeded", "seq", ev.Seq, "elapsed", ev.Elapsed, "period", ev.Period, "over", over)
	if d.diag != nil {
		d.diag.Warn("Sync period exceeded. Consider truncating memory or elongating the sync period.",
			"elapsed", ev.Elapsed, "period", ev.Period, "over", over)
	}
	d.record(logger, "record period exceeded", func(rctx context.Context) error {
		return d.recorder.RecordPeriodExceeded(rctx, ev)
	})
}

// record calls fn when a recorder is configured. The loop may be exiting on a
// canceled context, so fn gets one detached from cancellation.
func (d *Driver) record(logger *slog.Logger, what string, fn func(context.Context) error) {
	if d.recorder == nil {
		return
	}
	if err := fn(context.Background()); err != nil {
		logger.Warn("journal write failed", "op", what, "error", err)
	}
}

// Start runs the loop in a new goroutine. Use Wait for its result.
// Calling Start more than once has no effect.
func (d *Driver) Start(ctx context.Context) {
	d.once.Do(func() {
		go func() {
			defer close(d.done)
			d.err = d.Run(ctx)
		}()
	})
}

// Stop asks the loop to exit before its next pass. An in-flight pass
// completes first.
func (d *Driver) Stop() {
	d.stop.Store(true)
}

// Wait blocks until a loop launched by Start exits and returns its error.
func (d *Driver) Wait() error {
	<-d.done
	return d.err
}

// Done is closed when a loop launched by Start exits.
func (d *Driver) Done() <-chan struct{} {
	return d.done
}
