package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shmem/internal/config"
	"github.com/roach88/shmem/internal/transport"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	flags config.Config

	Set       []string
	Value     []string
	DumpEvery time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts, flags: config.Default()}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a shared memory as Modbus holding registers",
		Long: `Serve a shared memory as Modbus TCP holding registers.

Clients running "shmem sync" reconcile their copy against this one. Only
the configured unit id is answered; requests beyond the memory size are
rejected with an illegal data address exception.

Examples:
  shmem serve --size 100
  shmem serve --layout plc.cue --listen tcp://0.0.0.0:5502 --monitor :8080
  shmem serve --layout plc.cue --value WORK_MODE=3 --dump-every 1s`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	c := &opts.flags
	cmd.Flags().StringVar(&c.Listen, "listen", c.Listen, "Modbus TCP listen URL")
	addUnitFlag(cmd, c)
	cmd.Flags().DurationVar(&c.IdleTimeout, "idle-timeout", c.IdleTimeout, "close client connections idle this long")
	cmd.Flags().UintVar(&c.MaxClients, "max-clients", c.MaxClients, "maximum concurrent client connections")
	addMemoryFlags(cmd, c)
	cmd.Flags().StringVar(&c.Monitor, "monitor", c.Monitor, "HTTP address of the websocket monitor (disabled when empty)")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "initial register value ADDR=VALUE (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Value, "value", nil, "initial variable value NAME=VALUE (repeatable, needs --layout)")
	cmd.Flags().DurationVar(&opts.DumpEvery, "dump-every", 0, "print the memory at this interval (disabled when 0)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := resolveConfig(cmd, opts.RootOptions, opts.flags)
	if err != nil {
		return err
	}
	mem, err := openMemory(cfg)
	if err != nil {
		return err
	}
	applyMapUnit(cmd, &cfg, mem)
	if err := assign(mem, opts.Set, opts.Value); err != nil {
		return WrapExitError(ExitCommandError, "invalid initial value", err)
	}

	srv, err := transport.NewServer(mem.store, transport.ServerConfig{
		URL:        cfg.Listen,
		UnitID:     cfg.UnitID,
		Timeout:    cfg.IdleTimeout,
		MaxClients: cfg.MaxClients,
		Logger:     logger,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to configure server", err)
	}

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	if err := srv.Start(); err != nil {
		return WrapExitError(ExitFailure, "failed to start server", err)
	}
	defer func() {
		if err := srv.Stop(); err != nil {
			logger.Warn("stopping server", "error", err)
		}
	}()

	if cfg.Monitor != "" {
		stopMonitor, _, err := startMonitor(cfg.Monitor, mem.layout, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start monitor", err)
		}
		defer stopMonitor()
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Serving %d registers on %s (unit %d).\n", mem.store.Size(), cfg.Listen, cfg.UnitID)
	fmt.Fprintln(w, "Press Ctrl-C to stop.")

	if opts.DumpEvery <= 0 {
		<-ctx.Done()
		logger.Info("server stopped")
		return nil
	}

	ticker := time.NewTicker(opts.DumpEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("server stopped")
			return nil
		case <-ticker.C:
			fmt.Fprint(w, mem.store.Dump(5))
			if mem.layout.Len() > 0 {
				values, err := mem.layout.Values()
				if err == nil {
					logger.Debug("variables", "values", values)
				}
			}
		}
	}
}
