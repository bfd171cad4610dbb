package vm

import (
	"fmt"
	"sort"
)

// Scope is a scope object (the global object or a function activation)
// whose declared variables live in register slots. Names outside the
// symbol table fall back to ordinary dynamic properties.
type Scope struct {
	*VariableObject

	symbols  *MapSymbolTable
	stack    *Stack
	global   bool
	detached bool

	props map[string]Register
}

// NewGlobalScope creates the global scope for a stack. Its bindings index
// the globals prefix of the stack's authoritative global file.
func NewGlobalScope(stack *Stack) *Scope {
	symbols := NewSymbolTable(GlobalIndexing)
	return &Scope{
		VariableObject: NewVariableObject(symbols, GlobalBaseProvider(stack), 0),
		symbols:        symbols,
		stack:          stack,
		global:         true,
		props:          make(map[string]Register),
	}
}

// NewActivationScope creates a function activation whose bindings start at
// offset in the stack's active file.
func NewActivationScope(stack *Stack, symbols *MapSymbolTable, offset int) *Scope {
	return &Scope{
		VariableObject: NewVariableObject(symbols, FrameBaseProvider(stack), offset),
		symbols:        symbols,
		stack:          stack,
		props:          make(map[string]Register),
	}
}

// Declare adds name to the symbol table. For the global scope it also
// makes sure the authoritative global file has a slot for the binding.
// Declaring an existing name is a no-op.
func (s *Scope) Declare(name string) int {
	index, _ := s.symbols.Declare(name)
	if s.global && !s.detached {
		have := s.stack.LastGlobal().NumGlobalSlots()
		if need := -index; need > have {
			s.stack.AddGlobals(need - have)
		}
	}
	return index
}

// Get reads name. The second result is false when the name is unbound.
func (s *Scope) Get(name string) (Register, bool, error) {
	r, lookup := s.SymbolTableGet(name)
	switch lookup {
	case LookupFound:
		return *r, true, nil
	case LookupUngettable:
		return 0, true, errNotReady(name)
	}
	v, ok := s.props[name]
	return v, ok, nil
}

// Has reports whether name is bound, in the symbol table or dynamically.
func (s *Scope) Has(name string) bool {
	if _, ok := s.symbols.Lookup(name); ok {
		return true
	}
	_, ok := s.props[name]
	return ok
}

// Put assigns name, creating a dynamic property when it is unbound.
func (s *Scope) Put(name string, value Register) error {
	handled, err := s.SymbolTablePut(name, value)
	if handled || err != nil {
		return err
	}
	s.props[name] = value
	return nil
}

// Initialize binds name for the first time with the given attributes.
func (s *Scope) Initialize(name string, value Register, attrs Attributes) error {
	handled, err := s.SymbolTableInitialize(name, value, attrs)
	if handled || err != nil {
		return err
	}
	s.props[name] = value
	return nil
}

// Delete removes a dynamic property. Symbol table bindings cannot be
// deleted.
func (s *Scope) Delete(name string) bool {
	if !s.DeleteProperty(name) {
		return false
	}
	delete(s.props, name)
	return true
}

// Names returns the enumerable bindings followed by the dynamic properties.
func (s *Scope) Names() []string {
	names := s.PropertyNames()
	dynamic := make([]string, 0, len(s.props))
	for name := range s.props {
		dynamic = append(dynamic, name)
	}
	sort.Strings(dynamic)
	return append(names, dynamic...)
}

// Detached reports whether CopyRegisters has moved the bindings into
// private storage.
func (s *Scope) Detached() bool {
	return s.detached
}

// CopyRegisters moves the scope's bindings out of the register file into
// storage owned by the scope, so the scope can outlive the frame that
// created it.
func (s *Scope) CopyRegisters() {
	if s.detached {
		return
	}

	lo, hi := 0, 0
	for _, name := range s.symbols.Names() {
		e, _ := s.symbols.Lookup(name)
		lo = min(lo, e.Index)
		hi = max(hi, e.Index+1)
	}

	regs := make([]Register, hi-lo)
	w := s.base.Base()
	for i := lo; i < hi; i++ {
		if off := s.registerOffset + i; w.Valid(off) {
			regs[i-lo] = *w.At(off)
		}
	}

	private := Window{buf: regs, base: -lo, size: hi}
	s.base = BaseFunc(func() Window { return private })
	s.registerOffset = 0
	s.detached = true
}

func errNotReady(name string) error {
	return fmt.Errorf("%w: %s", ErrVariableNotReady, name)
}
