package vm

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrInvalidSnapshot is returned when a snapshot cannot describe a stack.
var ErrInvalidSnapshot = errors.New("invalid stack snapshot")

// FileSnapshot is the persisted form of one register file. Globals are
// stored in slot order (global 0 first), locals from base upwards.
type FileSnapshot struct {
	Globals         []Register `cbor:"1,keyasint,omitempty"`
	Locals          []Register `cbor:"2,keyasint,omitempty"`
	MaxSize         int        `cbor:"3,keyasint"`
	ForImplicitCall bool       `cbor:"4,keyasint,omitempty"`
}

// StackSnapshot is the persisted form of a Stack, outermost file first.
type StackSnapshot struct {
	Files []FileSnapshot `cbor:"1,keyasint"`
}

// Snapshot copies the live contents of every file.
func (s *Stack) Snapshot() *StackSnapshot {
	snap := &StackSnapshot{Files: make([]FileSnapshot, 0, len(s.files))}
	for _, rf := range s.files {
		w := rf.Window()
		fs := FileSnapshot{
			MaxSize:         rf.maxSize,
			ForImplicitCall: rf.forImplicitCall,
		}
		if n := rf.NumGlobalSlots(); n > 0 {
			fs.Globals = make([]Register, n)
			for k := range fs.Globals {
				fs.Globals[k] = *w.Global(k)
			}
		}
		if rf.size > 0 {
			fs.Locals = make([]Register, rf.size)
			copy(fs.Locals, rf.buffer[rf.base:rf.base+rf.size])
		}
		snap.Files = append(snap.Files, fs)
	}
	return snap
}

// MarshalSnapshot encodes a snapshot as canonical CBOR.
func MarshalSnapshot(snap *StackSnapshot) ([]byte, error) {
	data, err := cborEncMode.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot decodes a snapshot produced by MarshalSnapshot.
func UnmarshalSnapshot(data []byte) (*StackSnapshot, error) {
	var snap StackSnapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snap, nil
}

// RestoreStack rebuilds a stack from a snapshot. The options apply as for
// NewStack; the per-file limits recorded in the snapshot take precedence.
func RestoreStack(snap *StackSnapshot, opts ...StackOption) (*Stack, error) {
	if snap == nil || len(snap.Files) == 0 {
		return nil, fmt.Errorf("%w: no register files", ErrInvalidSnapshot)
	}
	if snap.Files[0].ForImplicitCall {
		return nil, fmt.Errorf("%w: bottom file is an implicit call", ErrInvalidSnapshot)
	}

	s := NewStack(opts...)
	for i, fs := range snap.Files {
		if len(fs.Locals) > fs.MaxSize {
			s.Close()
			return nil, fmt.Errorf("%w: file %d has %d locals, limit %d", ErrInvalidSnapshot, i, len(fs.Locals), fs.MaxSize)
		}

		var rf *RegisterFile
		if i == 0 {
			rf = s.files[0]
			rf.maxSize = fs.MaxSize
		} else {
			rf = s.allocate(fs.MaxSize)
		}
		if fs.ForImplicitCall {
			rf.forImplicitCall = true
			s.implicitCallDepth++
		}

		rf.AddGlobals(len(fs.Globals))
		w := rf.Window()
		for k, v := range fs.Globals {
			*w.Global(k) = v
		}
		if err := rf.Grow(len(fs.Locals)); err != nil {
			s.Close()
			return nil, err
		}
		copy(rf.buffer[rf.base:], fs.Locals)
	}
	return s, nil
}
