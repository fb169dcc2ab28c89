package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shmem/internal/config"
	"github.com/roach88/shmem/internal/layout"
	"github.com/roach88/shmem/internal/memory"
	"github.com/roach88/shmem/internal/monitor"
)

// override copies one flag-backed field from the flag values into the
// effective config.
type override struct {
	flag  string
	apply func(dst *config.Config, src config.Config)
}

var overrides = []override{
	{"url", func(d *config.Config, s config.Config) { d.URL = s.URL }},
	{"listen", func(d *config.Config, s config.Config) { d.Listen = s.Listen }},
	{"unit-id", func(d *config.Config, s config.Config) { d.UnitID = s.UnitID }},
	{"timeout", func(d *config.Config, s config.Config) { d.Timeout = s.Timeout }},
	{"idle-timeout", func(d *config.Config, s config.Config) { d.IdleTimeout = s.IdleTimeout }},
	{"max-clients", func(d *config.Config, s config.Config) { d.MaxClients = s.MaxClients }},
	{"size", func(d *config.Config, s config.Config) { d.Size = s.Size }},
	{"layout", func(d *config.Config, s config.Config) { d.Layout = s.Layout }},
	{"period", func(d *config.Config, s config.Config) { d.Period = s.Period }},
	{"mode", func(d *config.Config, s config.Config) { d.Mode = s.Mode }},
	{"diagnostic-log", func(d *config.Config, s config.Config) { d.DiagnosticLog = s.DiagnosticLog }},
	{"journal", func(d *config.Config, s config.Config) { d.Journal = s.Journal }},
	{"monitor", func(d *config.Config, s config.Config) { d.Monitor = s.Monitor }},
	{"supervise", func(d *config.Config, s config.Config) { d.Supervise = s.Supervise }},
	{"max-failures", func(d *config.Config, s config.Config) { d.MaxFailures = s.MaxFailures }},
	{"restarts-per-minute", func(d *config.Config, s config.Config) { d.RestartsPerMinute = s.RestartsPerMinute }},
}

// resolveConfig layers defaults, the --config file and the flags the user
// actually set, in that order.
func resolveConfig(cmd *cobra.Command, root *RootOptions, flags config.Config) (config.Config, error) {
	cfg := config.Default()
	if root.Config != "" {
		loaded, err := config.Load(root.Config)
		if err != nil {
			return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}

	for _, o := range overrides {
		if f := cmd.Flags().Lookup(o.flag); f != nil && f.Changed {
			o.apply(&cfg, flags)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, WrapExitError(ExitCommandError, "invalid settings", err)
	}
	return cfg, nil
}

func addMemoryFlags(cmd *cobra.Command, c *config.Config) {
	cmd.Flags().IntVar(&c.Size, "size", c.Size, "number of registers when no --layout is given")
	cmd.Flags().StringVar(&c.Layout, "layout", c.Layout, "CUE memory map declaring size and named variables")
}

func addUnitFlag(cmd *cobra.Command, c *config.Config) {
	cmd.Flags().Uint8Var(&c.UnitID, "unit-id", c.UnitID, "Modbus unit identifier (1-247)")
}

// newLogger returns the operational logger: text to w, Debug under
// --verbose and Info otherwise.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// signalContext is cancelled on SIGINT or SIGTERM, or when the command's
// own context is done.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// sharedMemory is a store with its named variables. Without a memory map
// the layout is empty.
type sharedMemory struct {
	store  *memory.Store
	layout *memory.Layout
	unitID int // from the memory map; 0 when unset
}

func openMemory(cfg config.Config) (*sharedMemory, error) {
	if cfg.Layout == "" {
		store := memory.NewStore(cfg.Size)
		return &sharedMemory{store: store, layout: memory.NewLayout(store)}, nil
	}

	m, err := layout.LoadFile(cfg.Layout)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load memory map", err)
	}
	l, err := m.NewLayout()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to bind memory map", err)
	}
	return &sharedMemory{store: l.Store(), layout: l, unitID: m.UnitID}, nil
}

// applyMapUnit lets the memory map's unit_id stand in for a --unit-id the
// user did not pass.
func applyMapUnit(cmd *cobra.Command, cfg *config.Config, mem *sharedMemory) {
	if mem.unitID == 0 {
		return
	}
	if f := cmd.Flags().Lookup("unit-id"); f != nil && f.Changed {
		return
	}
	cfg.UnitID = uint8(mem.unitID)
}

// startMonitor serves the websocket feed of l on addr until stop is called.
// The listener is bound before returning so address errors surface here.
func startMonitor(addr string, l *memory.Layout, logger *slog.Logger) (stop func(), bound string, err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("listen %s: %w", addr, err)
	}

	mon := monitor.New(l, monitor.WithLogger(logger))
	srv := &http.Server{
		Handler:           mon.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("monitor stopped", "error", err)
		}
	}()
	logger.Info("monitor listening", "addr", ln.Addr().String(), "variables", l.Len())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("monitor shutdown", "error", err)
		}
	}, ln.Addr().String(), nil
}

// parseCellAssignment parses "ADDR=VALUE" with both parts in base 10, or
// base 16 with a 0x prefix.
func parseCellAssignment(s string) (int, uint16, error) {
	addrPart, valuePart, ok := strings.Cut(s, "=")
	if !ok {
		return 0, 0, fmt.Errorf("invalid assignment %q: want ADDR=VALUE", s)
	}
	addr, err := strconv.ParseInt(strings.TrimSpace(addrPart), 0, 32)
	if err != nil || addr < 0 {
		return 0, 0, fmt.Errorf("invalid address in %q", s)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(valuePart), 0, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid register value in %q: %w", s, err)
	}
	return int(addr), uint16(v), nil
}

// parseValueAssignment parses "NAME=VALUE" where VALUE is true, false or an
// integer.
func parseValueAssignment(s string) (string, any, error) {
	name, raw, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", nil, fmt.Errorf("invalid assignment %q: want NAME=VALUE", s)
	}
	raw = strings.TrimSpace(raw)
	switch raw {
	case "true":
		return name, true, nil
	case "false":
		return name, false, nil
	}
	n, err := strconv.ParseInt(raw, 0, 64)
	if err != nil {
		return "", nil, fmt.Errorf("invalid value in %q: want true, false or an integer", s)
	}
	return name, n, nil
}

// assign applies --set and --value assignments to mem.
func assign(mem *sharedMemory, cells, values []string) error {
	for _, s := range cells {
		addr, v, err := parseCellAssignment(s)
		if err != nil {
			return err
		}
		if err := mem.store.Set(addr, v); err != nil {
			return err
		}
	}
	for _, s := range values {
		name, v, err := parseValueAssignment(s)
		if err != nil {
			return err
		}
		if err := mem.layout.Write(name, v); err != nil {
			return err
		}
	}
	return nil
}
