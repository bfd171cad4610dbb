package vm

import (
	"fmt"

	"github.com/tliron/commonlog"
)

// Stack is a LIFO of register files. Nested global evaluations and
// native re-entrant ("implicit") calls each get their own file so that an
// inner activation never overwrites the locals of an outer one.
//
// The stack is never empty: it is created with one file, and popping the
// last global file only truncates it.
type Stack struct {
	files             []*RegisterFile
	implicitCallDepth int
	initialCapacity   int
	reallocations     int

	log commonlog.Logger
}

// StackOption configures a Stack.
type StackOption func(*stackConfig)

type stackConfig struct {
	maxSize         int
	initialCapacity int
	log             commonlog.Logger
}

// WithMaxSize bounds the number of local slots of the bottom file.
func WithMaxSize(n int) StackOption {
	return func(c *stackConfig) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithInitialCapacity preallocates n local slots in every new file.
func WithInitialCapacity(n int) StackOption {
	return func(c *stackConfig) {
		c.initialCapacity = n
	}
}

// WithLogger sets the logger used for frame lifecycle events.
func WithLogger(log commonlog.Logger) StackOption {
	return func(c *stackConfig) {
		if log != nil {
			c.log = log
		}
	}
}

// NewStack creates a stack holding one empty register file.
func NewStack(opts ...StackOption) *Stack {
	cfg := stackConfig{
		maxSize: DefaultMaxSize,
		log:     commonlog.GetLogger("regfile.stack"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Stack{
		initialCapacity: cfg.initialCapacity,
		log:             cfg.log,
	}
	s.allocate(cfg.maxSize)
	return s
}

// Current returns the active (top) register file.
func (s *Stack) Current() *RegisterFile {
	return s.files[len(s.files)-1]
}

// Len returns the number of register files on the stack.
func (s *Stack) Len() int {
	return len(s.files)
}

// ImplicitCallDepth returns the number of implicit-call files on the stack.
func (s *Stack) ImplicitCallDepth() int {
	return s.implicitCallDepth
}

// Reallocations returns the number of slab reallocations performed by any
// file of the stack, including files already popped.
func (s *Stack) Reallocations() int {
	return s.reallocations
}

// Files returns the register files, outermost first.
func (s *Stack) Files() []*RegisterFile {
	return append([]*RegisterFile(nil), s.files...)
}

// LastGlobal returns the most recent file that was not pushed for an
// implicit call. It holds the authoritative global slots.
func (s *Stack) LastGlobal() *RegisterFile {
	for i := len(s.files) - 1; i > 0; i-- {
		if !s.files[i].forImplicitCall {
			return s.files[i]
		}
	}
	return s.files[0]
}

// Base returns a window on the active file. It is derived on every call so
// it can never lag behind a push, pop or reallocation.
func (s *Stack) Base() Window {
	return s.Current().Window()
}

// GlobalBase returns a window on the file holding the authoritative globals.
func (s *Stack) GlobalBase() Window {
	return s.LastGlobal().Window()
}

// globalSource returns the file holding the authoritative globals.
func (s *Stack) globalSource() *RegisterFile {
	if s.implicitCallDepth > 0 {
		return s.LastGlobal()
	}
	return s.Current()
}

// PushGlobal makes a file available for a top-level evaluation. An idle top
// file is reused; otherwise a nested file receives a copy of the globals.
// Implicit-call files are never reused, since PopFunction must find them.
func (s *Stack) PushGlobal() *RegisterFile {
	current := s.Current()
	if current.size == 0 && !current.forImplicitCall {
		return current
	}

	src := s.globalSource()
	rf := s.allocate(current.maxSize - current.size)
	rf.AddGlobals(src.NumGlobalSlots())
	rf.CopyGlobals(src)

	s.log.Debugf("pushed nested global register file: depth=%d globals=%d", len(s.files), rf.NumGlobalSlots())
	return rf
}

// PopGlobal ends a top-level evaluation. A nested file is removed and its
// globals, including any declared while it was active, are copied back.
func (s *Stack) PopGlobal() error {
	if len(s.files) == 1 {
		s.Current().Shrink(0)
		return nil
	}

	top := s.files[len(s.files)-1]
	if top.forImplicitCall {
		return fmt.Errorf("%w: top file belongs to an implicit call", ErrFrameMismatch)
	}
	s.files = s.files[:len(s.files)-1]

	dst := s.globalSource()
	dst.AddGlobals(top.NumGlobalSlots() - dst.NumGlobalSlots())
	dst.CopyGlobals(top)
	top.release()

	s.log.Debugf("popped nested global register file: depth=%d globals=%d", len(s.files), dst.NumGlobalSlots())
	return nil
}

// PushFunction pushes a file for a native re-entrant call. It never reuses
// the top file.
func (s *Stack) PushFunction() *RegisterFile {
	current := s.Current()
	s.implicitCallDepth++
	rf := s.allocate(current.maxSize - current.size)
	rf.forImplicitCall = true

	s.log.Debugf("pushed implicit call register file: depth=%d implicit=%d", len(s.files), s.implicitCallDepth)
	return rf
}

// PopFunction removes the file pushed by the matching PushFunction.
func (s *Stack) PopFunction() error {
	top := s.Current()
	if !top.forImplicitCall {
		return fmt.Errorf("%w: top file is not an implicit call", ErrFrameMismatch)
	}

	s.files = s.files[:len(s.files)-1]
	s.implicitCallDepth--
	top.release()

	s.log.Debugf("popped implicit call register file: depth=%d implicit=%d", len(s.files), s.implicitCallDepth)
	return nil
}

// AddGlobals adds n slots to the authoritative globals.
func (s *Stack) AddGlobals(n int) {
	s.LastGlobal().AddGlobals(n)
}

// Mark hands every file's live slots to the collector.
func (s *Stack) Mark(c Collector) {
	for _, rf := range s.files {
		rf.Mark(c)
	}
}

// Close releases every file. The stack must not be used afterwards.
func (s *Stack) Close() {
	for _, rf := range s.files {
		rf.release()
	}
	s.files = nil
}

func (s *Stack) allocate(maxSize int) *RegisterFile {
	rf := newRegisterFile(s, maxSize, s.initialCapacity)
	s.files = append(s.files, rf)
	return rf
}

// FileStats describes one register file.
type FileStats struct {
	Depth           int
	Globals         int
	Size            int
	Capacity        int
	MaxSize         int
	ForImplicitCall bool
	Reallocations   int
}

// StackStats describes the whole stack, outermost file first.
type StackStats struct {
	Files             []FileStats
	ImplicitCallDepth int
}

// TotalSlots returns the number of slots allocated across all files.
func (st StackStats) TotalSlots() int {
	n := 0
	for _, f := range st.Files {
		n += f.Globals + f.Capacity
	}
	return n
}

// Stats returns a snapshot of the stack's shape.
func (s *Stack) Stats() StackStats {
	st := StackStats{ImplicitCallDepth: s.implicitCallDepth}
	for i, rf := range s.files {
		st.Files = append(st.Files, FileStats{
			Depth:           i,
			Globals:         rf.NumGlobalSlots(),
			Size:            rf.size,
			Capacity:        rf.capacity,
			MaxSize:         rf.maxSize,
			ForImplicitCall: rf.forImplicitCall,
			Reallocations:   rf.reallocations,
		})
	}
	return st
}
