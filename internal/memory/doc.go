// Package memory implements the PLC-style memory model shared between a field
// device and a supervisor.
//
// A Store is a fixed array of 16-bit cells. Variables are typed views over
// one or two cells:
//
//	kind   width  sub-address        cells
//	bool   1      bit 0..15          1
//	byte   8      half 0 (lo)/1 (hi) 1
//	word   16     none               1
//	dword  32     none               2 (low at addr, high at addr+1)
//
// Writes through a Variable are read-modify-write, so a bool or byte shares a
// cell with its neighbours without disturbing them. Overlapping declarations
// are allowed on purpose, e.g. a flag bit inside a control word.
//
// A Layout gives variables names:
//
//	mem := memory.NewStore(8)
//	l := memory.NewLayout(mem)
//	mode, _ := memory.Byte(0, 0)
//	_ = l.Declare("WORK_MODE", mode)
//	_ = l.Write("WORK_MODE", 4)
//
// Conflicts between the two sides are resolved per cell by package reconcile,
// never per variable.
package memory
