package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "shmem", cmd.Use)
	assert.Contains(t, cmd.Long, "Modbus TCP")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"serve", "sync", "dump", "check", "scenario", "journal"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
}

func TestSyncCommandFlagDefaults(t *testing.T) {
	cmd := NewRootCommand()
	syncCmd, _, err := cmd.Find([]string{"sync"})
	require.NoError(t, err)

	tests := map[string]string{
		"url":            "tcp://localhost:5502",
		"unit-id":        "1",
		"period":         "200ms",
		"mode":           "bulk",
		"size":           "100",
		"diagnostic-log": "client_log.log",
		"journal":        "",
		"supervise":      "false",
	}
	for name, want := range tests {
		f := syncCmd.Flags().Lookup(name)
		require.NotNil(t, f, "flag %s", name)
		assert.Equal(t, want, f.DefValue, "flag %s", name)
	}
}

func TestServeCommandFlagDefaults(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	assert.Equal(t, "tcp://0.0.0.0:5502", serveCmd.Flags().Lookup("listen").DefValue)
	assert.Equal(t, "30s", serveCmd.Flags().Lookup("idle-timeout").DefValue)
	assert.Equal(t, "4", serveCmd.Flags().Lookup("max-clients").DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(NewRootCommand(), "check", "--format", "yaml", plcMap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
