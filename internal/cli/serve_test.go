package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shmem/internal/memory"
	"github.com/roach88/shmem/internal/transport"
)

func TestServeCommand_ServesInitialValues(t *testing.T) {
	url := freeURL(t)
	out := &bytes.Buffer{}
	cmd := NewServeCommand(&RootOptions{Format: "text"})
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--listen", url, "--layout", plcMap, "--set", "5=77", "--value", "CONTROL_WORD=9"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	var client *transport.Client
	require.Eventually(t, func() bool {
		c, err := transport.Dial(transport.ClientConfig{
			URL:     url,
			UnitID:  1,
			Timeout: time.Second,
			Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
		if err != nil {
			return false
		}
		client = c
		return true
	}, 2*time.Second, 20*time.Millisecond)

	regs, err := client.ReadRange(context.Background(), 0, 8)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0, 0, 0, 9, 0, 77, 0, 0}, regs)

	_, err = client.ReadRange(context.Background(), 0, 9)
	assert.Error(t, err, "the memory map fixes the size at 8")
	require.NoError(t, client.Close())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop")
	}
	assert.Contains(t, out.String(), "Serving 8 registers on "+url+" (unit 1).")
}

func TestServeCommand_InvalidInitialValue(t *testing.T) {
	_, _, err := execute(NewServeCommand(&RootOptions{Format: "text"}), "--size", "4", "--set", "4=1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestServeCommand_RejectsArgs(t *testing.T) {
	_, _, err := execute(NewServeCommand(&RootOptions{Format: "text"}), "extra")
	require.Error(t, err)
}

func TestDumpCommand_Text(t *testing.T) {
	remote := memory.NewStore(6)
	require.NoError(t, remote.Set(0, 1))
	require.NoError(t, remote.Set(4, 65535))
	url := startRemote(t, remote)

	out, _, err := execute(NewDumpCommand(&RootOptions{Format: "text"}), "--url", url, "--size", "6", "--cols", "3")
	require.NoError(t, err)
	assert.Equal(t,
		"'0': 00001 | '1': 00000 | '2': 00000 | \n'3': 00000 | '4': 65535 | '5': 00000 | \n",
		out)
}

func TestDumpCommand_LayoutJSON(t *testing.T) {
	remote := memory.NewStore(8)
	require.NoError(t, remote.Set(0, 0x0302))
	require.NoError(t, remote.Set(1, 0x0001))
	require.NoError(t, remote.Set(2, 0x0002))
	url := startRemote(t, remote)

	out, _, err := execute(NewDumpCommand(&RootOptions{Format: "json"}), "--url", url, "--layout", plcMap)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   DumpResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []uint16{0x0302, 1, 2, 0, 0, 0, 0, 0}, resp.Data.Registers)
	assert.Equal(t, float64(2), resp.Data.Values["WORK_MODE"])
	assert.Equal(t, float64(3), resp.Data.Values["PROCESS_STEP"])
	assert.Equal(t, float64(0x00020001), resp.Data.Values["CURRENT_VALUE"])
	assert.Equal(t, false, resp.Data.Values["ERROR_STATE"])
}

func TestDumpCommand_ConnectionRefused(t *testing.T) {
	_, _, err := execute(NewDumpCommand(&RootOptions{Format: "text"}), "--url", freeURL(t), "--timeout", "200ms")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to connect")
}
