package cli

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shmem/internal/config"
)

func TestParseCellAssignment(t *testing.T) {
	addr, v, err := parseCellAssignment("3=42")
	require.NoError(t, err)
	assert.Equal(t, 3, addr)
	assert.Equal(t, uint16(42), v)

	addr, v, err = parseCellAssignment(" 0x10 = 0xBEEF ")
	require.NoError(t, err)
	assert.Equal(t, 16, addr)
	assert.Equal(t, uint16(0xBEEF), v)

	for _, bad := range []string{"3", "=1", "-1=2", "1=65536", "x=1", "1=-1"} {
		_, _, err := parseCellAssignment(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseValueAssignment(t *testing.T) {
	name, v, err := parseValueAssignment("ERROR_STATE=true")
	require.NoError(t, err)
	assert.Equal(t, "ERROR_STATE", name)
	assert.Equal(t, true, v)

	_, v, err = parseValueAssignment("WORK_MODE=0x0f")
	require.NoError(t, err)
	assert.Equal(t, int64(15), v)

	for _, bad := range []string{"WORK_MODE", "=1", "WORK_MODE=on", "X=1.5"} {
		_, _, err := parseValueAssignment(bad)
		assert.Error(t, err, bad)
	}
}

func TestAssign(t *testing.T) {
	mem, err := openMemory(config.Config{Layout: plcMap})
	require.NoError(t, err)

	require.NoError(t, assign(mem, []string{"5=9"}, []string{"WORK_MODE=3", "ERROR_STATE=true"}))
	got, err := mem.store.Get(5)
	require.NoError(t, err)
	assert.Equal(t, uint16(9), got)
	v, err := mem.layout.Read("WORK_MODE")
	require.NoError(t, err)
	assert.Equal(t, uint8(3), v)

	err = assign(mem, []string{"8=1"}, nil)
	require.Error(t, err)
	err = assign(mem, nil, []string{"NOPE=1"})
	require.Error(t, err)
}

func TestOpenMemory(t *testing.T) {
	mem, err := openMemory(config.Config{Size: 12})
	require.NoError(t, err)
	assert.Equal(t, 12, mem.store.Size())
	assert.Equal(t, 0, mem.layout.Len())
	assert.Equal(t, 0, mem.unitID)

	mem, err = openMemory(config.Config{Size: 12, Layout: plcMap})
	require.NoError(t, err)
	assert.Equal(t, 8, mem.store.Size(), "the memory map fixes the size")
	assert.Equal(t, 5, mem.layout.Len())
	assert.Equal(t, 1, mem.unitID)

	_, err = openMemory(config.Config{Layout: "missing.cue"})
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

// settingsCommand records the effective config instead of running.
func settingsCommand(root *RootOptions, got *config.Config) *cobra.Command {
	flags := config.Default()
	cmd := &cobra.Command{
		Use:           "settings",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, root, flags)
			*got = cfg
			return err
		},
	}
	cmd.Flags().StringVar(&flags.URL, "url", flags.URL, "")
	cmd.Flags().DurationVar(&flags.Period, "period", flags.Period, "")
	cmd.Flags().StringVar(&flags.Mode, "mode", flags.Mode, "")
	addMemoryFlags(cmd, &flags)
	return cmd
}

func TestResolveConfig_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shmem.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: tcp://from-file:5502\nperiod: 1s\nmode: each\n"), 0644))

	var got config.Config
	root := &RootOptions{Format: "text", Config: path}
	_, _, err := execute(settingsCommand(root, &got), "--period", "50ms")
	require.NoError(t, err)

	assert.Equal(t, "tcp://from-file:5502", got.URL, "file overrides default")
	assert.Equal(t, 50*time.Millisecond, got.Period, "flag overrides file")
	assert.Equal(t, "each", got.Mode)
	assert.Equal(t, 100, got.Size, "default kept")
}

func TestResolveConfig_Errors(t *testing.T) {
	var got config.Config
	_, _, err := execute(settingsCommand(&RootOptions{Config: "/nonexistent/shmem.yaml"}, &got))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")

	_, _, err = execute(settingsCommand(&RootOptions{}, &got), "--mode", "sometimes")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown reconcile mode")
}

func TestStartMonitor_ServesValues(t *testing.T) {
	mem, err := openMemory(config.Config{Layout: plcMap})
	require.NoError(t, err)
	require.NoError(t, mem.layout.Write("CONTROL_WORD", 513))

	stop, addr, err := startMonitor("127.0.0.1:0", mem.layout, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer stop()

	resp, err := http.Get("http://" + addr + "/values")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var values map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&values))
	assert.Equal(t, float64(513), values["CONTROL_WORD"])
	assert.Equal(t, true, values["ERROR_STATE"])
}
