package layout

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/shmem/internal/memory"
)

// MaxSize is the largest store a memory map may declare: the Modbus
// holding-register address space.
const MaxSize = 1 << 16

// Map is a compiled memory map.
type Map struct {
	// Size is the number of cells in the shared store.
	Size int
	// UnitID is the Modbus unit the map is served as. Zero when unset.
	UnitID int
	// Variables in declaration order.
	Variables []Entry
}

// Entry names one variable of a Map.
type Entry struct {
	Name     string
	Variable memory.Variable
}

// LoadFile reads and compiles a .cue memory map.
func LoadFile(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read memory map: %w", err)
	}
	return CompileBytes(path, data)
}

// CompileBytes compiles CUE source. filename is used in error positions.
func CompileBytes(filename string, data []byte) (*Map, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	return Compile(v)
}

// Compile extracts a Map from a CUE value of the form
//
//	memory: {size: 8, unit_id: 1}
//	variable: {
//		WORK_MODE:   {kind: "byte", address: 0, half: 0}
//		ERROR_STATE: {kind: "bool", address: 3, bit: 0}
//	}
//
// Variables are bounds-checked against memory.size and keep the order in
// which they are declared.
func Compile(v cue.Value) (*Map, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	memVal := v.LookupPath(cue.ParsePath("memory"))
	if !memVal.Exists() {
		return nil, &CompileError{Field: "memory", Message: "memory block is required", Pos: v.Pos()}
	}
	size, err := requiredInt(memVal, "size", "memory.size")
	if err != nil {
		return nil, err
	}
	if size <= 0 || size > MaxSize {
		return nil, &CompileError{
			Field:   "memory.size",
			Message: fmt.Sprintf("size %d outside 1..%d", size, MaxSize),
			Pos:     memVal.LookupPath(cue.ParsePath("size")).Pos(),
		}
	}

	m := &Map{Size: size}
	if unitVal := memVal.LookupPath(cue.ParsePath("unit_id")); unitVal.Exists() {
		unit, err := unitVal.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if unit < 1 || unit > 247 {
			return nil, &CompileError{Field: "memory.unit_id", Message: fmt.Sprintf("unit id %d outside 1..247", unit), Pos: unitVal.Pos()}
		}
		m.UnitID = int(unit)
	}

	varsVal := v.LookupPath(cue.ParsePath("variable"))
	if !varsVal.Exists() {
		return m, nil
	}
	iter, err := varsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		variable, err := compileVariable(name, iter.Value(), size)
		if err != nil {
			return nil, err
		}
		m.Variables = append(m.Variables, Entry{Name: name, Variable: variable})
	}
	return m, nil
}

func compileVariable(name string, v cue.Value, size int) (memory.Variable, error) {
	field := "variable." + name

	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return memory.Variable{}, &CompileError{Field: field, Message: "kind is required", Pos: v.Pos()}
	}
	kindName, err := kindVal.String()
	if err != nil {
		return memory.Variable{}, formatCUEError(err)
	}
	kind, err := memory.ParseKind(kindName)
	if err != nil {
		return memory.Variable{}, &CompileError{Field: field + ".kind", Message: err.Error(), Pos: kindVal.Pos()}
	}

	addr, err := requiredInt(v, "address", field+".address")
	if err != nil {
		return memory.Variable{}, err
	}

	sub := memory.NoSub
	switch kind {
	case memory.KindBool:
		if sub, err = requiredInt(v, "bit", field+".bit"); err != nil {
			return memory.Variable{}, err
		}
	case memory.KindByte:
		if sub, err = requiredInt(v, "half", field+".half"); err != nil {
			return memory.Variable{}, err
		}
	}

	variable, err := memory.NewVariable(kind, addr, sub)
	if err == nil {
		err = variable.Validate(size)
	}
	if err != nil {
		return memory.Variable{}, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return variable, nil
}

func requiredInt(v cue.Value, label, field string) (int, error) {
	f := v.LookupPath(cue.ParsePath(label))
	if !f.Exists() {
		return 0, &CompileError{Field: field, Message: label + " is required", Pos: v.Pos()}
	}
	n, err := f.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return int(n), nil
}

// NewLayout allocates a zeroed store of m.Size cells and binds every variable.
func (m *Map) NewLayout() (*memory.Layout, error) {
	return m.Bind(memory.NewStore(m.Size))
}

// Bind declares every variable of m on store. The store must hold at least
// m.Size cells.
func (m *Map) Bind(store *memory.Store) (*memory.Layout, error) {
	if store.Size() < m.Size {
		return nil, fmt.Errorf("store has %d cells, memory map needs %d", store.Size(), m.Size)
	}
	l := memory.NewLayout(store)
	for _, e := range m.Variables {
		if err := l.Declare(e.Name, e.Variable); err != nil {
			return nil, err
		}
	}
	return l, nil
}
