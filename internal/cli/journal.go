package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shmem/internal/journal"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Limit int
}

// RunDetail is the JSON form of `shmem journal <db> <run-id>`.
type RunDetail struct {
	Run      journal.Run       `json:"run"`
	Passes   []journal.Pass    `json:"passes"`
	Overruns []journal.Overrun `json:"overruns"`
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal <db> [run-id]",
		Short: "Show recorded sync runs",
		Long: `Show the runs, passes and period overruns recorded by "shmem sync --journal".

Without a run id the most recent runs are listed, newest first. With a run
id every pass of that run is listed with the registers it touched.

Examples:
  shmem journal sync.db
  shmem journal sync.db --limit 5
  shmem journal sync.db 01929c1e-7c4e-7d1a-9f1e-8b0a2d3c4e5f --format json`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 2 {
				runID = args[1]
			}
			return runJournal(opts, args[0], runID, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list (0 for all)")

	return cmd
}

func runJournal(opts *JournalOptions, dbPath, runID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	// Opening would create an empty journal.
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("journal not found: %s", dbPath))
	}
	j, err := journal.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	ctx := cmd.Context()
	limit := opts.Limit
	if runID != "" {
		limit = 0
	}
	runs, err := j.Runs(ctx, limit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read runs", err)
	}

	if runID == "" {
		if formatter.JSON() {
			return formatter.Success(runs)
		}
		writeRuns(cmd, runs)
		return nil
	}

	detail := RunDetail{}
	found := false
	for _, r := range runs {
		if r.ID == runID {
			detail.Run, found = r, true
			break
		}
	}
	if !found {
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", runID))
	}
	if detail.Passes, err = j.Passes(ctx, runID); err != nil {
		return WrapExitError(ExitFailure, "failed to read passes", err)
	}
	if detail.Overruns, err = j.Overruns(ctx, runID); err != nil {
		return WrapExitError(ExitFailure, "failed to read overruns", err)
	}

	if formatter.JSON() {
		return formatter.Success(detail)
	}
	writeRunDetail(cmd, detail)
	return nil
}

func runStatus(r journal.Run) string {
	switch {
	case r.Ended == nil:
		return "running"
	case r.Error != "":
		return "failed: " + r.Error
	default:
		return "stopped"
	}
}

func writeRuns(cmd *cobra.Command, runs []journal.Run) {
	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tPERIOD\tPASSES\tOVERRUNS\tSTATUS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.Started.Format(time.RFC3339), r.Period, r.Passes, r.Overruns, runStatus(r))
	}
	tw.Flush()
}

func writeRunDetail(cmd *cobra.Command, d RunDetail) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run %s (%s, period %s)\n", d.Run.ID, runStatus(d.Run), d.Run.Period)

	if len(d.Passes) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SEQ\tELAPSED\tCONFLICTS\tADOPTED\tPUSHED\tSETTLED")
		for _, p := range d.Passes {
			rep := p.Report
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", p.Seq, p.Elapsed,
				formatAddrs(rep.Conflicts), formatAddrs(rep.Adopted),
				formatAddrs(rep.Pushed), formatAddrs(rep.Settled))
		}
		tw.Flush()
	}

	for _, o := range d.Overruns {
		fmt.Fprintf(w, "pass %d exceeded the period: %s > %s\n", o.Seq, o.Elapsed, o.Period)
	}
}
