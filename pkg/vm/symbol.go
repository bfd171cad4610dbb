package vm

import (
	"sort"
)

// Attributes are per-binding property flags.
type Attributes uint8

const (
	ReadOnly Attributes = 1 << iota
	DontEnum
	DontDelete
)

// MissingSymbol is the index reported for names absent from a symbol table.
const MissingSymbol = int(^uint(0) >> 1)

// SymbolEntry is one symbol table binding.
type SymbolEntry struct {
	Index      int
	Attributes Attributes
}

// SymbolTable maps identifiers to register slot indices.
type SymbolTable interface {
	Lookup(name string) (SymbolEntry, bool)
	SetAttributes(name string, attrs Attributes) bool
	Names() []string
}

// Indexing selects how MapSymbolTable numbers new bindings.
type Indexing int

const (
	// LocalIndexing numbers bindings 0, 1, 2, ... from a frame's offset.
	LocalIndexing Indexing = iota
	// GlobalIndexing numbers bindings -1, -2, -3, ... below a file's base.
	GlobalIndexing
)

// MapSymbolTable is a map-backed SymbolTable.
type MapSymbolTable struct {
	indexing Indexing
	entries  map[string]SymbolEntry
}

// NewSymbolTable creates an empty symbol table.
func NewSymbolTable(indexing Indexing) *MapSymbolTable {
	return &MapSymbolTable{
		indexing: indexing,
		entries:  make(map[string]SymbolEntry),
	}
}

// Declare binds name to the next free index and reports whether the
// binding is new. Redeclaring keeps the existing index.
func (t *MapSymbolTable) Declare(name string) (int, bool) {
	if e, ok := t.entries[name]; ok {
		return e.Index, false
	}
	n := len(t.entries)
	index := n
	if t.indexing == GlobalIndexing {
		index = -1 - n
	}
	t.entries[name] = SymbolEntry{Index: index}
	return index, true
}

// Lookup returns the binding for name.
func (t *MapSymbolTable) Lookup(name string) (SymbolEntry, bool) {
	e, ok := t.entries[name]
	return e, ok
}

// Index returns the slot index for name, or MissingSymbol.
func (t *MapSymbolTable) Index(name string) int {
	if e, ok := t.entries[name]; ok {
		return e.Index
	}
	return MissingSymbol
}

// SetAttributes replaces the attributes of an existing binding.
func (t *MapSymbolTable) SetAttributes(name string, attrs Attributes) bool {
	e, ok := t.entries[name]
	if !ok {
		return false
	}
	e.Attributes = attrs
	t.entries[name] = e
	return true
}

// Len returns the number of bindings.
func (t *MapSymbolTable) Len() int {
	return len(t.entries)
}

// Names returns the bound names in declaration order.
func (t *MapSymbolTable) Names() []string {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := t.entries[names[i]].Index, t.entries[names[j]].Index
		if t.indexing == GlobalIndexing {
			return a > b
		}
		return a < b
	})
	return names
}
