package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shmem/internal/config"
	"github.com/roach88/shmem/internal/driver"
	"github.com/roach88/shmem/internal/journal"
	"github.com/roach88/shmem/internal/memory"
	"github.com/roach88/shmem/internal/reconcile"
	"github.com/roach88/shmem/internal/supervisor"
	"github.com/roach88/shmem/internal/transport"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	flags config.Config

	Set   []string
	Value []string
	Once  bool
}

// SyncResult is the output of `shmem sync --once`.
type SyncResult struct {
	URL    string           `json:"url"`
	Mode   string           `json:"mode"`
	Report reconcile.Report `json:"report"`
	Values map[string]any   `json:"values,omitempty"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts, flags: config.Default()}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile a local memory with a Modbus server",
		Long: `Reconcile a local shared memory with a remote one served over Modbus TCP.

Every period the whole remote range is read, each register is decided
against the local value and the shadow of the last agreed value, and
registers changed only locally are written back. When both sides changed
a register the remote value wins.

A pass that takes longer than the period is logged, appended to the
diagnostic log and recorded in the journal; the next pass then starts at
once. A lost connection ends the command unless --supervise is set.

Examples:
  shmem sync --url tcp://plc:5502 --size 100
  shmem sync --layout plc.cue --value CONTROL_WORD=7 --journal sync.db
  shmem sync --once --format json
  shmem sync --config shmem.yaml --supervise`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	c := &opts.flags
	cmd.Flags().StringVar(&c.URL, "url", c.URL, "Modbus TCP server URL")
	addUnitFlag(cmd, c)
	cmd.Flags().DurationVar(&c.Timeout, "timeout", c.Timeout, "per-request timeout")
	addMemoryFlags(cmd, c)
	cmd.Flags().DurationVar(&c.Period, "period", c.Period, "reconciliation period")
	cmd.Flags().StringVar(&c.Mode, "mode", c.Mode, "pass variant (bulk|each)")
	cmd.Flags().StringVar(&c.DiagnosticLog, "diagnostic-log", c.DiagnosticLog, "append period overruns to this file (disabled when empty)")
	cmd.Flags().StringVar(&c.Journal, "journal", c.Journal, "SQLite journal of runs and passes (disabled when empty)")
	cmd.Flags().StringVar(&c.Monitor, "monitor", c.Monitor, "HTTP address of the websocket monitor (disabled when empty)")
	cmd.Flags().BoolVar(&c.Supervise, "supervise", c.Supervise, "reconnect after transport failures")
	cmd.Flags().IntVar(&c.MaxFailures, "max-failures", c.MaxFailures, "consecutive failures before supervision gives up")
	cmd.Flags().IntVar(&c.RestartsPerMinute, "restarts-per-minute", c.RestartsPerMinute, "reconnect attempts allowed per minute")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "local register value ADDR=VALUE before the first pass (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Value, "value", nil, "local variable value NAME=VALUE before the first pass (repeatable, needs --layout)")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "run a single pass, print its report and exit")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := resolveConfig(cmd, opts.RootOptions, opts.flags)
	if err != nil {
		return err
	}
	mode, err := reconcile.ParseMode(cfg.Mode)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid settings", err)
	}
	mem, err := openMemory(cfg)
	if err != nil {
		return err
	}
	applyMapUnit(cmd, &cfg, mem)
	if err := assign(mem, opts.Set, opts.Value); err != nil {
		return WrapExitError(ExitCommandError, "invalid initial value", err)
	}

	s := &syncer{
		cfg:    cfg,
		mode:   mode,
		local:  mem.store,
		shadow: memory.NewStore(mem.store.Size()),
		logger: logger,
	}

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	if opts.Once {
		return syncOnce(ctx, s, mem, formatter)
	}

	if cfg.Journal != "" {
		j, err := journal.Open(cfg.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if err := j.Close(); err != nil {
				logger.Warn("closing journal", "error", err)
			}
		}()
		s.journal = j
	}

	if cfg.DiagnosticLog != "" {
		f, err := os.OpenFile(cfg.DiagnosticLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open diagnostic log", err)
		}
		defer f.Close()
		s.diag = f
	}

	if cfg.Monitor != "" {
		stopMonitor, _, err := startMonitor(cfg.Monitor, mem.layout, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start monitor", err)
		}
		defer stopMonitor()
	}

	formatter.VerboseLog("Syncing %d registers with %s every %s (%s).", mem.store.Size(), cfg.URL, cfg.Period, mode)

	if cfg.Supervise {
		err = s.supervise(ctx)
	} else {
		err = s.runDriver(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		code := CodeSync
		if reconcile.IsTransportError(err) {
			code = CodeTransport
		}
		if formatter.JSON() {
			_ = formatter.Error(code, err.Error(), nil)
		}
		return WrapExitError(ExitFailure, "sync failed", err)
	}
	logger.Info("sync stopped")
	return nil
}

// syncer builds drivers for one sync session. The local store and shadow
// outlive reconnects.
type syncer struct {
	cfg     config.Config
	mode    reconcile.Mode
	local   *memory.Store
	shadow  *memory.Store
	journal *journal.Journal
	diag    io.Writer
	logger  *slog.Logger
}

func (s *syncer) dial() (*transport.Client, *reconcile.Reconciler, error) {
	client, err := transport.Dial(transport.ClientConfig{
		URL:     s.cfg.URL,
		UnitID:  s.cfg.UnitID,
		Timeout: s.cfg.Timeout,
		Logger:  s.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	r, err := reconcile.New(s.local, client,
		reconcile.WithMode(s.mode),
		reconcile.WithShadow(s.shadow),
		reconcile.WithLogger(s.logger),
	)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return client, r, nil
}

// newDriver connects and wraps the reconciler in a driver that owns the
// connection.
func (s *syncer) newDriver(context.Context) (*driver.Driver, error) {
	client, r, err := s.dial()
	if err != nil {
		return nil, err
	}
	opts := []driver.Option{
		driver.WithPeriod(s.cfg.Period),
		driver.WithLogger(s.logger),
		driver.WithCloser(client),
	}
	if s.diag != nil {
		opts = append(opts, driver.WithDiagnostics(s.diag))
	}
	if s.journal != nil {
		opts = append(opts, driver.WithJournal(s.journal))
	}
	return driver.New(r, opts...), nil
}

func (s *syncer) runDriver(ctx context.Context) error {
	d, err := s.newDriver(ctx)
	if err != nil {
		return err
	}
	return d.Run(ctx)
}

func (s *syncer) supervise(ctx context.Context) error {
	sup, err := supervisor.New(s.newDriver,
		supervisor.WithMaxFailures(s.cfg.MaxFailures),
		supervisor.WithRestartRate(s.cfg.RestartsPerMinute, time.Minute),
		supervisor.WithLogger(s.logger),
	)
	if err != nil {
		return err
	}
	return sup.Run(ctx)
}

func syncOnce(ctx context.Context, s *syncer, mem *sharedMemory, formatter *OutputFormatter) error {
	client, r, err := s.dial()
	if err != nil {
		return WrapExitError(ExitFailure, "sync failed", err)
	}
	defer client.Close()

	rep, err := r.Run(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "sync failed", err)
	}

	result := SyncResult{URL: s.cfg.URL, Mode: s.mode.String(), Report: rep}
	if mem.layout.Len() > 0 {
		values, err := mem.layout.Values()
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read variables", err)
		}
		result.Values = values
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	return formatter.Success(formatReport(result, mem.layout))
}

func formatReport(res SyncResult, l *memory.Layout) string {
	var b strings.Builder
	rep := res.Report
	fmt.Fprintf(&b, "Reconciled %d registers with %s (%s).\n", rep.Cells, res.URL, res.Mode)
	fmt.Fprintf(&b, "  conflicts: %s\n", formatAddrs(rep.Conflicts))
	fmt.Fprintf(&b, "  adopted:   %s\n", formatAddrs(rep.Adopted))
	fmt.Fprintf(&b, "  pushed:    %s\n", formatAddrs(rep.Pushed))
	fmt.Fprintf(&b, "  settled:   %s", formatAddrs(rep.Settled))
	for _, name := range l.Names() {
		fmt.Fprintf(&b, "\n  %s = %v", name, res.Values[name])
	}
	return b.String()
}

func formatAddrs(addrs []int) string {
	if len(addrs) == 0 {
		return "-"
	}
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = fmt.Sprint(a)
	}
	return strings.Join(parts, " ")
}
