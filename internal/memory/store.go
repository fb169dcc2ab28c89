package memory

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// CellBits is the width of one storage cell.
const CellBits = 16

// Store is a fixed-size, zero-initialized array of 16-bit cells.
//
// Thread-safety: each Get/Set is atomic with respect to other calls. There is
// no isolation across several calls; a reconciliation pass reading the store
// cell by cell may observe writes that land mid-pass.
type Store struct {
	mu    sync.RWMutex
	cells []uint16
}

// NewStore creates a store with size cells, all zero.
// Panics if size is negative.
func NewStore(size int) *Store {
	if size < 0 {
		panic(fmt.Sprintf("memory: negative store size %d", size))
	}
	return &Store{cells: make([]uint16, size)}
}

// Size returns the number of cells. Constant for the store's lifetime.
func (s *Store) Size() int {
	return len(s.cells)
}

// Get returns the value at addr.
func (s *Store) Get(addr int) (uint16, error) {
	if addr < 0 || addr >= len(s.cells) {
		return 0, outOfRange(addr, len(s.cells))
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cells[addr], nil
}

// Set stores v at addr.
func (s *Store) Set(addr int, v uint16) error {
	if addr < 0 || addr >= len(s.cells) {
		return outOfRange(addr, len(s.cells))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cells[addr] = v
	return nil
}

// Snapshot returns a copy of all cells in address order.
func (s *Store) Snapshot() []uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uint16, len(s.cells))
	copy(out, s.cells)
	return out
}

// Load replaces every cell with values. len(values) must equal Size.
func (s *Store) Load(values []uint16) error {
	if len(values) != len(s.cells) {
		return fmt.Errorf("load %d values into store of size %d", len(values), len(s.cells))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.cells, values)
	return nil
}

// update applies fn to the cell at addr under the write lock.
// Used by the overlay for read-modify-write of shared cells.
func (s *Store) update(addr int, fn func(old uint16) uint16) error {
	if addr < 0 || addr >= len(s.cells) {
		return outOfRange(addr, len(s.cells))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cells[addr] = fn(s.cells[addr])
	return nil
}

// Dump renders the store as "addr: value | " pairs, cols pairs per line.
// Addresses are zero-padded to the width of the largest address.
func (s *Store) Dump(cols int) string {
	if cols <= 0 {
		cols = 5
	}
	cells := s.Snapshot()
	width := len(strconv.Itoa(max(len(cells)-1, 0)))

	var b strings.Builder
	for i, v := range cells {
		fmt.Fprintf(&b, "'%0*d': %05d | ", width, i, v)
		if (i+1)%cols == 0 {
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	return b.String()
}
