package memory

import (
	"fmt"
	"math"
)

// Kind is the type of a Variable.
type Kind int

const (
	// KindBool is a single bit of one cell.
	KindBool Kind = iota + 1
	// KindByte is the low or high 8-bit half of one cell.
	KindByte
	// KindWord is one whole cell.
	KindWord
	// KindDWord spans two cells: low word at Address, high word at Address+1.
	KindDWord
)

// NoSub marks a variable without a bit or half sub-address.
const NoSub = -1

var kindNames = map[Kind]string{
	KindBool:  "bool",
	KindByte:  "byte",
	KindWord:  "word",
	KindDWord: "dword",
}

// String returns the kind's canonical name.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Bits returns the width of the kind in bits.
func (k Kind) Bits() int {
	switch k {
	case KindBool:
		return 1
	case KindByte:
		return 8
	case KindWord:
		return 16
	case KindDWord:
		return 32
	}
	return 0
}

// Max returns the largest value storable in the kind.
func (k Kind) Max() uint32 {
	switch k {
	case KindBool:
		return 1
	case KindByte:
		return math.MaxUint8
	case KindWord:
		return math.MaxUint16
	case KindDWord:
		return math.MaxUint32
	}
	return 0
}

// ParseKind maps a kind name to a Kind. "uint32" is accepted for dword.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "bool":
		return KindBool, nil
	case "byte":
		return KindByte, nil
	case "word":
		return KindWord, nil
	case "dword", "uint32":
		return KindDWord, nil
	}
	return 0, invalidDeclaration("unknown kind %q: must be one of bool, byte, word, dword", name)
}

// Variable is a typed view over one or two cells of a Store.
// It holds no storage; several variables may alias the same bits.
type Variable struct {
	Kind    Kind
	Address int
	// Sub is the bit index (bool) or half index (byte). NoSub otherwise.
	Sub int
}

// NewVariable builds a variable and checks that kind and sub-address agree.
// Address bounds are checked when the variable is bound to a store.
func NewVariable(kind Kind, addr, sub int) (Variable, error) {
	v := Variable{Kind: kind, Address: addr, Sub: sub}
	if addr < 0 {
		return Variable{}, invalidDeclaration("negative address %d", addr)
	}
	switch kind {
	case KindBool:
		if sub < 0 || sub >= CellBits {
			return Variable{}, invalidDeclaration("bool requires bit index in 0..15, got %d", sub)
		}
	case KindByte:
		if sub != 0 && sub != 1 {
			return Variable{}, invalidDeclaration("byte requires half index 0 or 1, got %d", sub)
		}
	case KindWord, KindDWord:
		if sub != NoSub {
			return Variable{}, invalidDeclaration("%s takes no sub-address, got %d", kind, sub)
		}
	default:
		return Variable{}, invalidDeclaration("unknown kind %d", int(kind))
	}
	return v, nil
}

// Bool declares bit number bit of the cell at addr.
func Bool(addr, bit int) (Variable, error) { return NewVariable(KindBool, addr, bit) }

// Byte declares the low (half=0) or high (half=1) byte of the cell at addr.
func Byte(addr, half int) (Variable, error) { return NewVariable(KindByte, addr, half) }

// Word declares the whole cell at addr.
func Word(addr int) (Variable, error) { return NewVariable(KindWord, addr, NoSub) }

// DWord declares the 32-bit value stored at addr (low) and addr+1 (high).
func DWord(addr int) (Variable, error) { return NewVariable(KindDWord, addr, NoSub) }

// Cells returns how many cells the variable touches.
func (v Variable) Cells() int {
	if v.Kind == KindDWord {
		return 2
	}
	return 1
}

// Validate checks the variable against a store of the given size.
func (v Variable) Validate(size int) error {
	if _, err := NewVariable(v.Kind, v.Address, v.Sub); err != nil {
		return err
	}
	if last := v.Address + v.Cells() - 1; last >= size {
		return invalidDeclaration("%s at address %d needs cell %d, store has %d cells", v.Kind, v.Address, last, size)
	}
	return nil
}

// String describes the variable's footprint, e.g. "bool@3.0".
func (v Variable) String() string {
	if v.Sub == NoSub {
		return fmt.Sprintf("%s@%d", v.Kind, v.Address)
	}
	return fmt.Sprintf("%s@%d.%d", v.Kind, v.Address, v.Sub)
}

// Read returns the raw unsigned value of the variable. Bools read as 0 or 1.
func (v Variable) Read(s *Store) (uint32, error) {
	cell, err := s.Get(v.Address)
	if err != nil {
		return 0, err
	}
	switch v.Kind {
	case KindBool:
		if cell&(1<<uint(v.Sub)) != 0 {
			return 1, nil
		}
		return 0, nil
	case KindByte:
		return uint32(cell>>(8*uint(v.Sub))) & 0xFF, nil
	case KindWord:
		return uint32(cell), nil
	case KindDWord:
		high, err := s.Get(v.Address + 1)
		if err != nil {
			return 0, err
		}
		return uint32(cell) | uint32(high)<<16, nil
	}
	return 0, invalidDeclaration("unknown kind %d", int(v.Kind))
}

// Value returns the variable as its natural Go type:
// bool, uint8, uint16 or uint32.
func (v Variable) Value(s *Store) (any, error) {
	raw, err := v.Read(s)
	if err != nil {
		return nil, err
	}
	switch v.Kind {
	case KindBool:
		return raw == 1, nil
	case KindByte:
		return uint8(raw), nil
	case KindWord:
		return uint16(raw), nil
	}
	return raw, nil
}

// Write stores value through the variable. Bits of a shared cell outside the
// variable's footprint are preserved. Bool variables accept only Go bools;
// numeric kinds accept any integer type within the kind's range.
// On error the store is not modified.
func (v Variable) Write(s *Store, value any) error {
	if last := v.Address + v.Cells() - 1; v.Address < 0 || last >= s.Size() {
		return outOfRange(last, s.Size())
	}

	if v.Kind == KindBool {
		b, ok := value.(bool)
		if !ok {
			return outOfDomain("bool variable requires a bool value, got %T", value)
		}
		mask := uint16(1) << uint(v.Sub)
		return s.update(v.Address, func(old uint16) uint16 {
			if b {
				return old | mask
			}
			return old &^ mask
		})
	}

	n, err := toInt64(value)
	if err != nil {
		return err
	}
	if n < 0 || n > int64(v.Kind.Max()) {
		return outOfDomain("value %d for %s must be in 0..%d", n, v.Kind, v.Kind.Max())
	}

	switch v.Kind {
	case KindByte:
		shift := 8 * uint(v.Sub)
		mask := uint16(0xFF) << shift
		return s.update(v.Address, func(old uint16) uint16 {
			return old&^mask | uint16(n)<<shift
		})
	case KindWord:
		return s.Set(v.Address, uint16(n))
	case KindDWord:
		if err := s.Set(v.Address, uint16(n&0xFFFF)); err != nil {
			return err
		}
		return s.Set(v.Address+1, uint16(n>>16))
	}
	return invalidDeclaration("unknown kind %d", int(v.Kind))
}

func toInt64(value any) (int64, error) {
	switch n := value.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return uintToInt64(uint64(n))
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return uintToInt64(n)
	}
	return 0, outOfDomain("numeric variable requires an integer value, got %T", value)
}

func uintToInt64(n uint64) (int64, error) {
	if n > math.MaxInt64 {
		return 0, outOfDomain("value %d exceeds 32 bits", n)
	}
	return int64(n), nil
}
