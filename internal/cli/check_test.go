package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCommand_ValidMap(t *testing.T) {
	out, _, err := execute(NewCheckCommand(&RootOptions{Format: "text"}), plcMap)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ "+plcMap+" (8 registers, unit 1, 5 variables)")
	assert.Regexp(t, `WORK_MODE\s+byte\s+0\.0`, out)
	assert.Regexp(t, `PROCESS_STEP\s+byte\s+0\.1`, out)
	assert.Regexp(t, `CURRENT_VALUE\s+dword\s+1\n`, out)
	assert.Regexp(t, `ERROR_STATE\s+bool\s+3\.0`, out)
}

func TestCheckCommand_JSON(t *testing.T) {
	out, _, err := execute(NewCheckCommand(&RootOptions{Format: "json"}), plcMap)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   []MapCheck `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)

	c := resp.Data[0]
	assert.True(t, c.Valid)
	assert.Equal(t, 8, c.Size)
	require.Len(t, c.Variables, 5)
	assert.Equal(t, "CURRENT_VALUE", c.Variables[2].Name)
	assert.Equal(t, 2, c.Variables[2].Cells)
	assert.Nil(t, c.Variables[2].Sub)
	require.NotNil(t, c.Variables[1].Sub)
	assert.Equal(t, 1, *c.Variables[1].Sub)
}

func TestCheckCommand_InvalidMap(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.cue")
	require.NoError(t, os.WriteFile(bad, []byte(`
memory: size: 2
variable: TOTAL: {kind: "dword", address: 1}
`), 0644))

	out, _, err := execute(NewCheckCommand(&RootOptions{Format: "text"}), plcMap, bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 of 2 memory maps invalid")
	assert.Contains(t, out, "✓ "+plcMap)
	assert.Contains(t, out, "✗ "+bad)
}

func TestCheckCommand_MissingFile(t *testing.T) {
	_, _, err := execute(NewCheckCommand(&RootOptions{Format: "text"}), "/nonexistent/plc.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "memory map not found")
}

func TestCheckCommand_MissingArgs(t *testing.T) {
	_, _, err := execute(NewCheckCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}
