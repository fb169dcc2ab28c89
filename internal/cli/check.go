package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/shmem/internal/layout"
	"github.com/roach88/shmem/internal/memory"
)

// VariableInfo describes one compiled variable.
type VariableInfo struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Address int    `json:"address"`
	Sub     *int   `json:"sub,omitempty"`
	Cells   int    `json:"cells"`
}

// MapCheck is the result for one memory-map file.
type MapCheck struct {
	Path      string         `json:"path"`
	Valid     bool           `json:"valid"`
	Size      int            `json:"size,omitempty"`
	UnitID    int            `json:"unit_id,omitempty"`
	Variables []VariableInfo `json:"variables,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <memory-map.cue>...",
		Short: "Compile memory maps and list their variables",
		Long: `Compile CUE memory maps without serving or syncing them.

Each file must declare memory.size and may declare memory.unit_id and any
number of variables. Variables are checked for kind, sub-address and
bounds against the size.

Exit codes:
  0 - All memory maps valid
  1 - One or more memory maps invalid
  2 - Command error (missing file)

Examples:
  shmem check plc.cue
  shmem check maps/*.cue --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runCheck(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return WrapExitError(ExitCommandError, "memory map not found", err)
		}
	}

	checks := make([]MapCheck, 0, len(paths))
	failed := 0
	for _, p := range paths {
		formatter.VerboseLog("compiling %s", p)
		c := checkMap(p)
		if !c.Valid {
			failed++
		}
		checks = append(checks, c)
	}

	if formatter.JSON() {
		if err := formatter.Success(checks); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, c := range checks {
			writeMapCheck(w, c)
		}
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d memory maps invalid", failed, len(checks)))
	}
	return nil
}

func checkMap(path string) MapCheck {
	m, err := layout.LoadFile(path)
	if err != nil {
		return MapCheck{Path: path, Error: err.Error()}
	}

	c := MapCheck{Path: path, Valid: true, Size: m.Size, UnitID: m.UnitID, Variables: []VariableInfo{}}
	for _, e := range m.Variables {
		info := VariableInfo{
			Name:    e.Name,
			Kind:    e.Variable.Kind.String(),
			Address: e.Variable.Address,
			Cells:   e.Variable.Cells(),
		}
		if e.Variable.Sub != memory.NoSub {
			sub := e.Variable.Sub
			info.Sub = &sub
		}
		c.Variables = append(c.Variables, info)
	}
	return c
}

func writeMapCheck(w io.Writer, c MapCheck) {
	if !c.Valid {
		fmt.Fprintf(w, "✗ %s\n  %s\n", c.Path, c.Error)
		return
	}

	unit := "default"
	if c.UnitID != 0 {
		unit = fmt.Sprint(c.UnitID)
	}
	fmt.Fprintf(w, "✓ %s (%d registers, unit %s, %d variables)\n", c.Path, c.Size, unit, len(c.Variables))
	if len(c.Variables) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, v := range c.Variables {
		where := fmt.Sprint(v.Address)
		if v.Sub != nil {
			where = fmt.Sprintf("%d.%d", v.Address, *v.Sub)
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", v.Name, v.Kind, where)
	}
	tw.Flush()
}
