package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/shmem/internal/config"
	"github.com/roach88/shmem/internal/reconcile"
	"github.com/roach88/shmem/internal/transport"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
	flags config.Config
	Cols  int
}

// DumpResult is the JSON form of a dump.
type DumpResult struct {
	URL       string         `json:"url"`
	Registers []uint16       `json:"registers"`
	Values    map[string]any `json:"values,omitempty"`
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts, flags: config.Default()}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the registers of a Modbus server",
		Long: `Read every register of a remote shared memory and print it.

Nothing is written. With --layout the named variables are decoded too.

Examples:
  shmem dump --url tcp://plc:5502 --size 16
  shmem dump --layout plc.cue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, cmd)
		},
	}

	c := &opts.flags
	cmd.Flags().StringVar(&c.URL, "url", c.URL, "Modbus TCP server URL")
	addUnitFlag(cmd, c)
	cmd.Flags().DurationVar(&c.Timeout, "timeout", c.Timeout, "per-request timeout")
	addMemoryFlags(cmd, c)
	cmd.Flags().IntVar(&opts.Cols, "cols", 5, "registers per line in text output")

	return cmd
}

func runDump(opts *DumpOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := resolveConfig(cmd, opts.RootOptions, opts.flags)
	if err != nil {
		return err
	}
	mem, err := openMemory(cfg)
	if err != nil {
		return err
	}
	applyMapUnit(cmd, &cfg, mem)

	client, err := transport.Dial(transport.ClientConfig{
		URL:     cfg.URL,
		UnitID:  cfg.UnitID,
		Timeout: cfg.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to connect", err)
	}
	defer client.Close()

	regs, err := reconcile.ReadChunked(cmd.Context(), client, 0, mem.store.Size())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read registers", err)
	}
	if err := mem.store.Load(regs); err != nil {
		return WrapExitError(ExitFailure, "failed to load registers", err)
	}

	result := DumpResult{URL: cfg.URL, Registers: regs}
	if mem.layout.Len() > 0 {
		if result.Values, err = mem.layout.Values(); err != nil {
			return WrapExitError(ExitFailure, "failed to decode variables", err)
		}
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(mem.store.Dump(opts.Cols), "\n"))
	for _, name := range mem.layout.Names() {
		fmt.Fprintf(&b, "\n%s = %v", name, result.Values[name])
	}
	return formatter.Success(b.String())
}
