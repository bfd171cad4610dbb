package vm

import (
	"fmt"
)

// Lookup is the outcome of resolving an identifier through a symbol table.
type Lookup int

const (
	// LookupMissing means the name is not in the symbol table; the caller
	// falls back to ordinary property lookup.
	LookupMissing Lookup = iota
	// LookupUngettable means the binding exists but its slot is not yet
	// addressable, which happens while a scope is being set up.
	LookupUngettable
	// LookupFound means the returned slot is live.
	LookupFound
)

func (l Lookup) String() string {
	switch l {
	case LookupMissing:
		return "missing"
	case LookupUngettable:
		return "ungettable"
	case LookupFound:
		return "found"
	default:
		return "unknown"
	}
}

// BaseProvider yields the window a variable object indexes into. It is
// consulted on every access, never cached.
type BaseProvider interface {
	Base() Window
}

// BaseFunc adapts a function to BaseProvider.
type BaseFunc func() Window

// Base calls f.
func (f BaseFunc) Base() Window {
	return f()
}

// GlobalBaseProvider resolves to the stack's authoritative global file.
func GlobalBaseProvider(s *Stack) BaseProvider {
	return BaseFunc(s.GlobalBase)
}

// FrameBaseProvider resolves to the stack's active file.
func FrameBaseProvider(s *Stack) BaseProvider {
	return BaseFunc(s.Base)
}

// VariableObject maps a scope's identifiers onto register slots: the slot
// for a binding with index i is base[registerOffset+i]. It borrows the
// registers; it does not own them.
type VariableObject struct {
	symbols        SymbolTable
	base           BaseProvider
	registerOffset int
}

// NewVariableObject creates a variable object over symbols and base.
func NewVariableObject(symbols SymbolTable, base BaseProvider, registerOffset int) *VariableObject {
	return &VariableObject{
		symbols:        symbols,
		base:           base,
		registerOffset: registerOffset,
	}
}

// SymbolTable returns the identifier table.
func (v *VariableObject) SymbolTable() SymbolTable {
	return v.symbols
}

// RegisterOffset returns the offset added to every binding index.
func (v *VariableObject) RegisterOffset() int {
	return v.registerOffset
}

// SetRegisterOffset moves the variable object to a new frame position.
func (v *VariableObject) SetRegisterOffset(offset int) {
	v.registerOffset = offset
}

func (v *VariableObject) slot(index int) (*Register, bool) {
	w := v.base.Base()
	offset := v.registerOffset + index
	if !w.Valid(offset) {
		return nil, false
	}
	return w.At(offset), true
}

// SymbolTableGet resolves name to its live slot.
func (v *VariableObject) SymbolTableGet(name string) (*Register, Lookup) {
	e, ok := v.symbols.Lookup(name)
	if !ok {
		return nil, LookupMissing
	}
	r, ok := v.slot(e.Index)
	if !ok {
		return nil, LookupUngettable
	}
	return r, LookupFound
}

// SymbolTablePut assigns value to name. It reports false when name is not
// in the symbol table. Assigning to a read-only binding is accepted and
// ignored.
func (v *VariableObject) SymbolTablePut(name string, value Register) (bool, error) {
	e, ok := v.symbols.Lookup(name)
	if !ok {
		return false, nil
	}
	if e.Attributes&ReadOnly != 0 {
		return true, nil
	}
	r, ok := v.slot(e.Index)
	if !ok {
		return true, fmt.Errorf("%w: %s", ErrVariableNotReady, name)
	}
	*r = value
	return true, nil
}

// SymbolTableInitialize binds value to name for the first time, bypassing
// the read-only check, and records attrs for the binding.
func (v *VariableObject) SymbolTableInitialize(name string, value Register, attrs Attributes) (bool, error) {
	e, ok := v.symbols.Lookup(name)
	if !ok {
		return false, nil
	}
	r, ok := v.slot(e.Index)
	if !ok {
		return true, fmt.Errorf("%w: %s", ErrVariableNotReady, name)
	}
	*r = value
	v.symbols.SetAttributes(name, attrs)
	return true, nil
}

// Attributes returns the stored attributes of name.
func (v *VariableObject) Attributes(name string) (Attributes, bool) {
	e, ok := v.symbols.Lookup(name)
	return e.Attributes, ok
}

// IsReadOnly reports whether name is a read-only binding.
func (v *VariableObject) IsReadOnly(name string) bool {
	attrs, _ := v.Attributes(name)
	return attrs&ReadOnly != 0
}

// IsDontEnum reports whether name is hidden from enumeration.
func (v *VariableObject) IsDontEnum(name string) bool {
	attrs, _ := v.Attributes(name)
	return attrs&DontEnum != 0
}

// DeleteProperty reports whether name may be deleted. Symbol table bindings
// are fixed for the lifetime of the scope.
func (v *VariableObject) DeleteProperty(name string) bool {
	_, ok := v.symbols.Lookup(name)
	return !ok
}

// PropertyNames returns the enumerable bindings.
func (v *VariableObject) PropertyNames() []string {
	var names []string
	for _, name := range v.symbols.Names() {
		if !v.IsDontEnum(name) {
			names = append(names, name)
		}
	}
	return names
}
