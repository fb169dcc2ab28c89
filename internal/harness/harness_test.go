package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(s.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "assertion errors: %v", result.Errors)
		})
	}
}

func TestRun_FailingAssertionsAreReported(t *testing.T) {
	s := &Scenario{
		Name:        "wrong_expectations",
		Description: "expects the local value to win",
		Size:        2,
		Steps: []Step{
			{Side: SideLocal, Cells: map[int]uint16{1: 5}},
			{Side: SideRemote, Cells: map[int]uint16{1: 9}},
			{Passes: 1},
		},
		Assertions: []Assertion{
			{Type: AssertCells, Side: SideRemote, Cells: map[int]uint16{1: 5}},
			{Type: AssertConverged},
			{Type: AssertActionCount, Action: "conflict", Count: 1},
		},
	}
	require.NoError(t, validateScenario(s))

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "remote[1] = 5")
	assert.Contains(t, result.Errors[1], "converged")
}

func TestRun_LocalOnlyChangeIsPushed(t *testing.T) {
	s := &Scenario{
		Name:        "push",
		Description: "local-only change",
		Size:        3,
		Steps: []Step{
			{Side: SideLocal, Cells: map[int]uint16{2: 7}, Passes: 1},
		},
		Assertions: []Assertion{
			{Type: AssertCells, Side: SideRemote, Cells: map[int]uint16{2: 7}},
			{Type: AssertCells, Side: SideShadow, Cells: map[int]uint16{2: 7}},
			{Type: AssertActionCount, Action: "push_local", Count: 1},
			{Type: AssertConverged},
		},
	}
	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "%v", result.Errors)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, EventWrite, result.Trace[0].Type)
	assert.Equal(t, EventPass, result.Trace[1].Type)
	assert.Equal(t, 1, *result.Trace[1].Writes)
}

func TestRun_OutOfRangeWriteFails(t *testing.T) {
	s := &Scenario{
		Name:        "oob",
		Description: "write past the end",
		Size:        2,
		Steps:       []Step{{Side: SideLocal, Cells: map[int]uint16{2: 1}}},
	}
	_, err := Run(s)
	require.Error(t, err)
}

func TestLoadScenario_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"missing name", "description: x\nsize: 1\nsteps: [{passes: 1}]", "name is required"},
		{"missing size", "name: a\ndescription: x\nsteps: [{passes: 1}]", "size must be positive"},
		{"bad mode", "name: a\ndescription: x\nsize: 1\nmode: fast\nsteps: [{passes: 1}]", "fast"},
		{"empty step", "name: a\ndescription: x\nsize: 1\nsteps: [{}]", "nothing to do"},
		{"write without side", "name: a\ndescription: x\nsize: 1\nsteps: [{cells: {0: 1}}]", "side must be"},
		{"values without layout", "name: a\ndescription: x\nsize: 1\nsteps: [{side: local, values: {X: 1}}]", "need a layout"},
		{"unknown assertion", "name: a\ndescription: x\nsize: 1\nsteps: [{passes: 1}]\nassertions: [{type: magic}]", "unknown type"},
		{"unknown action", "name: a\ndescription: x\nsize: 1\nsteps: [{passes: 1}]\nassertions: [{type: action_count, action: merge}]", "unknown action"},
		{"typo field", "name: a\ndescription: x\nsize: 1\nstep: [{passes: 1}]", "failed to parse YAML"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "s.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_ResolvesLayoutPath(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "plc_named_values.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "scenarios", "..", "..", "..", "layout", "testdata", "plc.cue"), s.Layout)
	_, err = os.Stat(s.Layout)
	require.NoError(t, err)
}

func TestSameValue(t *testing.T) {
	assert.True(t, sameValue(true, true))
	assert.False(t, sameValue(true, 1))
	assert.True(t, sameValue(uint8(3), 3))
	assert.True(t, sameValue(uint32(70000), uint64(70000)))
	assert.False(t, sameValue(uint16(1), -1))
	assert.False(t, sameValue(uint16(1), "1"))
}
