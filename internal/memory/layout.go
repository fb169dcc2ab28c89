package memory

import (
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// Layout maps variable names to Variables bound to one Store.
//
// Names are compared after Unicode NFC normalization and surrounding
// whitespace trimming, so "CONTROL_WORD" declared in a CUE file and typed at a
// terminal resolve to the same entry regardless of input encoding.
//
// Declarations usually happen once at startup; Read and Write are safe for
// concurrent use with each other and with Declare.
type Layout struct {
	store *Store

	mu    sync.RWMutex
	vars  map[string]Variable
	order []string
}

// NewLayout creates an empty layout over store.
func NewLayout(store *Store) *Layout {
	return &Layout{
		store: store,
		vars:  make(map[string]Variable),
	}
}

// Store returns the store the layout is bound to.
func (l *Layout) Store() *Store {
	return l.store
}

// CanonicalName returns the lookup key used for name.
func CanonicalName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// Declare binds v under name. The variable's footprint must fit in the store
// and the name must not already be declared.
func (l *Layout) Declare(name string, v Variable) error {
	key := CanonicalName(name)
	if key == "" {
		return invalidDeclaration("variable name must not be empty")
	}
	if err := v.Validate(l.store.Size()); err != nil {
		if me, ok := err.(*Error); ok {
			me.Name = key
		}
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.vars[key]; exists {
		return &Error{Code: ErrCodeInvalidDeclaration, Message: "variable already declared", Name: key}
	}
	l.vars[key] = v
	l.order = append(l.order, key)
	return nil
}

// Lookup returns the variable declared under name.
func (l *Layout) Lookup(name string) (Variable, error) {
	key := CanonicalName(name)
	l.mu.RLock()
	v, ok := l.vars[key]
	l.mu.RUnlock()
	if !ok {
		return Variable{}, &Error{Code: ErrCodeUnknownVariable, Message: "no such variable", Name: key}
	}
	return v, nil
}

// Read returns the named variable's value as bool, uint8, uint16 or uint32.
func (l *Layout) Read(name string) (any, error) {
	v, err := l.Lookup(name)
	if err != nil {
		return nil, err
	}
	return v.Value(l.store)
}

// Write stores value through the named variable.
func (l *Layout) Write(name string, value any) error {
	v, err := l.Lookup(name)
	if err != nil {
		return err
	}
	if err := v.Write(l.store, value); err != nil {
		if me, ok := err.(*Error); ok && me.Name == "" {
			me.Name = CanonicalName(name)
		}
		return err
	}
	return nil
}

// Names returns declared names in declaration order.
func (l *Layout) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Values reads every declared variable.
func (l *Layout) Values() (map[string]any, error) {
	names := l.Names()
	out := make(map[string]any, len(names))
	for _, name := range names {
		val, err := l.Read(name)
		if err != nil {
			return nil, err
		}
		out[name] = val
	}
	return out, nil
}

// Len returns the number of declared variables.
func (l *Layout) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}
