package cli

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shmem/internal/memory"
	"github.com/roach88/shmem/internal/transport"
)

const plcMap = "../layout/testdata/plc.cue"

// freeURL reserves an ephemeral port and releases it for a server to bind.
func freeURL(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return fmt.Sprintf("tcp://%s", addr)
}

// startRemote serves store on a fresh localhost port for the test's lifetime.
func startRemote(t *testing.T, store *memory.Store) string {
	t.Helper()
	url := freeURL(t)
	srv, err := transport.NewServer(store, transport.ServerConfig{
		URL:    url,
		UnitID: 1,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })
	return url
}

// execute runs cmd with args and returns stdout and stderr.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
