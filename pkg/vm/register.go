package vm

import (
	"fmt"
)

// Register is one fixed-size slot of a register file. The payload is opaque
// to the register file: it may hold an encoded script value or scratch
// interpreter state. The zero value is the empty representation.
type Register uint64

// IntRegister encodes a signed integer into a register.
func IntRegister(v int64) Register {
	return Register(uint64(v))
}

// Int decodes the register as a signed integer.
func (r Register) Int() int64 {
	return int64(r)
}

// FrameAllocator is the narrow surface a Stack needs from a register file.
type FrameAllocator interface {
	Reallocate(need int)
	AddGlobals(count int)
	CopyGlobals(src *RegisterFile)
	Shrink(size int)
	MaxSize() int
	Size() int
	NumGlobalSlots() int
}

var _ FrameAllocator = (*RegisterFile)(nil)

const (
	// DefaultMaxSize is the number of local slots a fresh stack may use.
	DefaultMaxSize = 2 * 1024 * 1024 / 8

	minCapacity = 16
)

// RegisterFile is a contiguous slab of registers split into a globals
// prefix and a growable call-frame region starting at base.
//
// Layout:
//
//	buffer: [ g(n-1) ... g1 g0 | l0 l1 ... l(size-1) ... (capacity) ]
//	                           ^ base
//
// Global slot k lives at base-1-k, so adding globals never moves existing
// globals relative to base.
type RegisterFile struct {
	buffer   []Register
	base     int // == number of global slots
	size     int
	capacity int
	maxSize  int

	forImplicitCall bool
	reallocations   int

	stack *Stack // owner; the file never outlives it
}

func newRegisterFile(stack *Stack, maxSize, initialCapacity int) *RegisterFile {
	rf := &RegisterFile{
		maxSize: maxSize,
		stack:   stack,
	}
	if initialCapacity > 0 {
		rf.Reallocate(initialCapacity)
	}
	return rf
}

// Size returns the number of live local slots.
func (rf *RegisterFile) Size() int {
	return rf.size
}

// Capacity returns the number of local slots available before reallocation.
func (rf *RegisterFile) Capacity() int {
	return rf.capacity
}

// MaxSize returns the upper bound on live local slots.
func (rf *RegisterFile) MaxSize() int {
	return rf.maxSize
}

// NumGlobalSlots returns the length of the globals prefix.
func (rf *RegisterFile) NumGlobalSlots() int {
	return rf.base
}

// IsForImplicitCall reports whether the file was pushed for a native
// re-entrant call rather than a global evaluation.
func (rf *RegisterFile) IsForImplicitCall() bool {
	return rf.forImplicitCall
}

// Reallocations returns how many times the slab has been replaced.
func (rf *RegisterFile) Reallocations() int {
	return rf.reallocations
}

// Window returns a base-relative view of the file. The view shares storage
// with the file and is stale after any reallocation.
func (rf *RegisterFile) Window() Window {
	return Window{file: rf, buf: rf.buffer, base: rf.base, size: rf.size}
}

// Reallocate replaces the slab with a zero-filled one holding at least
// need local slots. It always reallocates; callers check the capacity
// first.
func (rf *RegisterFile) Reallocate(need int) {
	numGlobals := rf.base
	live := rf.size + numGlobals
	capacity := rf.capacity + numGlobals

	capacity = max(need+numGlobals, minCapacity, capacity+capacity/4+1)
	buffer := make([]Register, capacity)
	copy(buffer, rf.buffer[:live])

	rf.buffer = buffer
	rf.capacity = capacity - numGlobals
	rf.reallocations++

	if rf.stack != nil {
		rf.stack.reallocations++
		rf.stack.log.Debugf("reallocated register file: globals=%d size=%d capacity=%d", numGlobals, rf.size, rf.capacity)
	}
}

// Grow makes size local slots live, reallocating when needed.
func (rf *RegisterFile) Grow(size int) error {
	if size <= rf.size {
		return nil
	}
	if size > rf.maxSize {
		return fmt.Errorf("%w: need %d slots, limit %d", ErrStackExhausted, size, rf.maxSize)
	}
	if size > rf.capacity {
		rf.Reallocate(size)
	}
	rf.size = size
	return nil
}

// Shrink truncates the live local slots to size.
func (rf *RegisterFile) Shrink(size int) {
	if size < rf.size {
		rf.size = size
	}
}

// AddGlobals extends the globals prefix by count zero-filled slots.
func (rf *RegisterFile) AddGlobals(count int) {
	if count <= 0 {
		return
	}

	if rf.size+count > rf.capacity {
		rf.Reallocate(rf.size + count)
	}

	// Shift the whole live prefix so both globals and locals keep their
	// base-relative offsets.
	live := rf.base + rf.size
	copy(rf.buffer[count:count+live], rf.buffer[:live])
	clear(rf.buffer[:count])

	rf.base += count
	rf.capacity -= count
}

// CopyGlobals copies src's globals into this file's prefix. The file must
// already have at least as many global slots as src.
func (rf *RegisterFile) CopyGlobals(src *RegisterFile) {
	n := src.base
	copy(rf.buffer[rf.base-n:rf.base], src.buffer[:n])
}

// Clear discards the locals and the globals prefix without releasing the
// slab.
func (rf *RegisterFile) Clear() {
	clear(rf.buffer)
	rf.capacity += rf.base
	rf.base = 0
	rf.size = 0
}

// Mark hands every possibly live slot, globals included, to the collector.
func (rf *RegisterFile) Mark(c Collector) {
	c.MarkConservatively(rf.buffer[:rf.base+rf.size])
}

func (rf *RegisterFile) release() {
	rf.buffer = nil
	rf.base, rf.size, rf.capacity = 0, 0, 0
	rf.stack = nil
}

// Window addresses a register file relative to its base. Negative indices
// reach the globals prefix.
type Window struct {
	file *RegisterFile
	buf  []Register
	base int
	size int
}

// File returns the register file the window was derived from.
func (w Window) File() *RegisterFile {
	return w.file
}

// Valid reports whether i addresses a slot of the window.
func (w Window) Valid(i int) bool {
	j := w.base + i
	return j >= 0 && j < len(w.buf)
}

// At returns the slot at base-relative index i.
func (w Window) At(i int) *Register {
	return &w.buf[w.base+i]
}

// Global returns global slot k.
func (w Window) Global(k int) *Register {
	return w.At(-1 - k)
}

// Size returns the number of live locals when the window was taken.
func (w Window) Size() int {
	return w.size
}
