package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shmem/internal/driver"
	"github.com/roach88/shmem/internal/journal"
	"github.com/roach88/shmem/internal/reconcile"
)

// seedJournal records one finished run with two passes and one overrun.
func seedJournal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sync.db")
	j, err := journal.Open(path)
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	period := 200 * time.Millisecond
	require.NoError(t, j.BeginRun(ctx, driver.RunInfo{ID: "run-1", Started: t0, Period: period}))
	require.NoError(t, j.RecordPass(ctx, driver.PassRecord{
		RunID: "run-1", Seq: 1, Started: t0, Elapsed: 10 * time.Millisecond,
		Report: reconcile.Report{Cells: 8, Adopted: []int{1, 2}, Pushed: []int{5}},
	}))
	require.NoError(t, j.RecordPass(ctx, driver.PassRecord{
		RunID: "run-1", Seq: 2, Started: t0.Add(period), Elapsed: 300 * time.Millisecond,
		Report: reconcile.Report{Cells: 8},
	}))
	require.NoError(t, j.RecordPeriodExceeded(ctx, driver.PeriodExceeded{
		RunID: "run-1", Seq: 2, At: t0.Add(500 * time.Millisecond), Elapsed: 300 * time.Millisecond, Period: period,
	}))
	require.NoError(t, j.EndRun(ctx, "run-1", t0.Add(time.Second), nil))
	return path
}

func TestJournalCommand_ListRuns(t *testing.T) {
	path := seedJournal(t)

	out, _, err := execute(NewJournalCommand(&RootOptions{Format: "text"}), path)
	require.NoError(t, err)
	assert.Contains(t, out, "RUN")
	assert.Regexp(t, `run-1\s+2024-03-01T12:00:00Z\s+200ms\s+2\s+1\s+stopped`, out)
}

func TestJournalCommand_RunDetail(t *testing.T) {
	path := seedJournal(t)

	out, _, err := execute(NewJournalCommand(&RootOptions{Format: "text"}), path, "run-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Run run-1 (stopped, period 200ms)")
	assert.Regexp(t, `1\s+10ms\s+-\s+1 2\s+5\s+-`, out)
	assert.Contains(t, out, "pass 2 exceeded the period: 300ms > 200ms")
}

func TestJournalCommand_RunDetailJSON(t *testing.T) {
	path := seedJournal(t)

	out, _, err := execute(NewJournalCommand(&RootOptions{Format: "json"}), path, "run-1")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.Data.Run.ID)
	require.Len(t, resp.Data.Passes, 2)
	assert.Equal(t, []int{1, 2}, resp.Data.Passes[0].Report.Adopted)
	require.Len(t, resp.Data.Overruns, 1)
	assert.Equal(t, int64(2), resp.Data.Overruns[0].Seq)
}

func TestJournalCommand_UnknownRun(t *testing.T) {
	path := seedJournal(t)

	_, _, err := execute(NewJournalCommand(&RootOptions{Format: "text"}), path, "run-2")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "run not found: run-2")
}

func TestJournalCommand_MissingDatabase(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.db")

	_, _, err := execute(NewJournalCommand(&RootOptions{Format: "text"}), missing)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.NoFileExists(t, missing)
}
