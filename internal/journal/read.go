package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/shmem/internal/reconcile"
)

// Run is a stored run with aggregate counts.
type Run struct {
	ID       string        `json:"id"`
	Started  time.Time     `json:"started"`
	Period   time.Duration `json:"period"`
	Ended    *time.Time    `json:"ended,omitempty"`
	Error    string        `json:"error,omitempty"`
	Passes   int           `json:"passes"`
	Overruns int           `json:"overruns"`
}

// Pass is a stored pass.
type Pass struct {
	RunID   string           `json:"run_id"`
	Seq     int64            `json:"seq"`
	Started time.Time        `json:"started"`
	Elapsed time.Duration    `json:"elapsed"`
	Report  reconcile.Report `json:"report"`
}

// Overrun is a stored period-exceeded event.
type Overrun struct {
	RunID   string        `json:"run_id"`
	Seq     int64         `json:"seq"`
	At      time.Time     `json:"at"`
	Elapsed time.Duration `json:"elapsed"`
	Period  time.Duration `json:"period"`
}

// Runs returns the most recent runs, newest first. limit <= 0 means all.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT r.id, r.started_at, r.period_ns, r.ended_at, r.error,
		       (SELECT COUNT(*) FROM passes p WHERE p.run_id = r.id),
		       (SELECT COUNT(*) FROM overruns o WHERE o.run_id = r.id)
		FROM runs r
		ORDER BY r.started_at DESC, r.id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r       Run
			started int64
			period  int64
			ended   sql.NullInt64
			errMsg  sql.NullString
		)
		if err := rows.Scan(&r.ID, &started, &period, &ended, &errMsg, &r.Passes, &r.Overruns); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Started = time.Unix(0, started).UTC()
		r.Period = time.Duration(period)
		if ended.Valid {
			t := time.Unix(0, ended.Int64).UTC()
			r.Ended = &t
		}
		r.Error = errMsg.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Passes returns the passes of a run in sequence order.
func (j *Journal) Passes(ctx context.Context, runID string) ([]Pass, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, seq, started_at, elapsed_ns, cells, conflicts, adopted, pushed, settled
		FROM passes
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query passes: %w", err)
	}
	defer rows.Close()

	passes := []Pass{}
	for rows.Next() {
		var (
			p                                   Pass
			started, elapsed                    int64
			conflicts, adopted, pushed, settled string
		)
		if err := rows.Scan(&p.RunID, &p.Seq, &started, &elapsed, &p.Report.Cells,
			&conflicts, &adopted, &pushed, &settled); err != nil {
			return nil, fmt.Errorf("scan pass: %w", err)
		}
		p.Started = time.Unix(0, started).UTC()
		p.Elapsed = time.Duration(elapsed)
		for _, f := range []struct {
			raw string
			dst *[]int
		}{
			{conflicts, &p.Report.Conflicts},
			{adopted, &p.Report.Adopted},
			{pushed, &p.Report.Pushed},
			{settled, &p.Report.Settled},
		} {
			if err := decodeAddrs(f.raw, f.dst); err != nil {
				return nil, fmt.Errorf("decode pass %d: %w", p.Seq, err)
			}
		}
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passes: %w", err)
	}
	return passes, nil
}

// Overruns returns the period-exceeded events of a run in sequence order.
func (j *Journal) Overruns(ctx context.Context, runID string) ([]Overrun, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, seq, at, elapsed_ns, period_ns
		FROM overruns
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query overruns: %w", err)
	}
	defer rows.Close()

	out := []Overrun{}
	for rows.Next() {
		var (
			o                   Overrun
			at, elapsed, period int64
		)
		if err := rows.Scan(&o.RunID, &o.Seq, &at, &elapsed, &period); err != nil {
			return nil, fmt.Errorf("scan overrun: %w", err)
		}
		o.At = time.Unix(0, at).UTC()
		o.Elapsed = time.Duration(elapsed)
		o.Period = time.Duration(period)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overruns: %w", err)
	}
	return out, nil
}

// decodeAddrs leaves dst nil for an empty list so decoded reports compare
// equal to freshly built ones.
func decodeAddrs(raw string, dst *[]int) error {
	var addrs []int
	if err := json.Unmarshal([]byte(raw), &addrs); err != nil {
		return err
	}
	if len(addrs) > 0 {
		*dst = addrs
	}
	return nil
}
