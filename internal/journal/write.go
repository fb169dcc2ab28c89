package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/shmem/internal/driver"
)

// BeginRun inserts a run row. Re-beginning an existing id is a no-op.
func (j *Journal) BeginRun(ctx context.Context, run driver.RunInfo) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, period_ns)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.Started.UnixNano(), int64(run.Period))
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// RecordPass appends one pass. Address lists are stored as JSON arrays.
func (j *Journal) RecordPass(ctx context.Context, p driver.PassRecord) error {
	lists := make([]string, 0, 4)
	for _, addrs := range [][]int{p.Report.Conflicts, p.Report.Adopted, p.Report.Pushed, p.Report.Settled} {
		encoded, err := encodeAddrs(addrs)
		if err != nil {
			return fmt.Errorf("record pass: %w", err)
		}
		lists = append(lists, encoded)
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO passes
		(run_id, seq, started_at, elapsed_ns, cells, conflicts, adopted, pushed, settled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		p.RunID,
		p.Seq,
		p.Started.UnixNano(),
		int64(p.Elapsed),
		p.Report.Cells,
		lists[0], lists[1], lists[2], lists[3],
	)
	if err != nil {
		return fmt.Errorf("record pass: %w", err)
	}
	return nil
}

// RecordPeriodExceeded appends one overrun.
func (j *Journal) RecordPeriodExceeded(ctx context.Context, ev driver.PeriodExceeded) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO overruns (run_id, seq, at, elapsed_ns, period_ns)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, ev.RunID, ev.Seq, ev.At.UnixNano(), int64(ev.Elapsed), int64(ev.Period))
	if err != nil {
		return fmt.Errorf("record period exceeded: %w", err)
	}
	return nil
}

// EndRun stamps the end time and the error that ended the run, if any.
func (j *Journal) EndRun(ctx context.Context, runID string, ended time.Time, runErr error) error {
	var msg any
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := j.db.ExecContext(ctx, `
		UPDATE runs SET ended_at = ?, error = ? WHERE id = ?
	`, ended.UnixNano(), msg, runID)
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	return nil
}

func encodeAddrs(addrs []int) (string, error) {
	if addrs == nil {
		addrs = []int{}
	}
	b, err := json.Marshal(addrs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var _ driver.Recorder = (*Journal)(nil)
