package driver

import (
	"context"
	"time"

	"github.com/roach88/shmem/internal/reconcile"
)

// RunInfo describes one execution of the loop.
type RunInfo struct {
	ID      string
	Started time.Time
	Period  time.Duration
}

// PassRecord is the outcome of one reconciliation pass.
type PassRecord struct {
	RunID   string
	Seq     int64
	Started time.Time
	Elapsed time.Duration
	Report  reconcile.Report
}

// PeriodExceeded reports a pass that took longer than the configured period.
// It is an event, not an error: the loop starts the next pass immediately.
type PeriodExceeded struct {
	RunID   string
	Seq     int64
	At      time.Time
	Elapsed time.Duration
	Period  time.Duration
}

// Recorder persists loop activity. Recorder errors are logged and never stop
// the loop.
type Recorder interface {
	BeginRun(ctx context.Context, run RunInfo) error
	RecordPass(ctx context.Context, pass PassRecord) error
	RecordPeriodExceeded(ctx context.Context, ev PeriodExceeded) error
	EndRun(ctx context.Context, runID string, ended time.Time, runErr error) error
}
