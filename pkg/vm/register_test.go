package vm

import (
	"errors"
	"testing"
)

func TestRegister_Int(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 42, -9000, 1 << 40} {
		if got := IntRegister(v).Int(); got != v {
			t.Errorf("IntRegister(%d).Int() = %d", v, got)
		}
	}
}

func TestRegisterFile_Empty(t *testing.T) {
	rf := newRegisterFile(nil, 100, 0)
	if rf.Size() != 0 || rf.Capacity() != 0 || rf.NumGlobalSlots() != 0 {
		t.Errorf("expected empty file, got size=%d capacity=%d globals=%d",
			rf.Size(), rf.Capacity(), rf.NumGlobalSlots())
	}
	if rf.MaxSize() != 100 {
		t.Errorf("expected max size 100, got %d", rf.MaxSize())
	}
	if rf.Window().Valid(0) {
		t.Error("expected empty window to have no valid slots")
	}
}

func TestRegisterFile_InitialCapacity(t *testing.T) {
	rf := newRegisterFile(nil, 100, 32)
	if rf.Capacity() != 32 {
		t.Errorf("expected capacity 32, got %d", rf.Capacity())
	}
	if rf.Reallocations() != 1 {
		t.Errorf("expected 1 reallocation, got %d", rf.Reallocations())
	}
}

func TestRegisterFile_GrowMinimumCapacity(t *testing.T) {
	rf := newRegisterFile(nil, 100, 0)
	if err := rf.Grow(1); err != nil {
		t.Fatalf("Grow failed: %v", err)
	}
	if rf.Capacity() != minCapacity {
		t.Errorf("expected capacity %d, got %d", minCapacity, rf.Capacity())
	}
	if rf.Size() != 1 {
		t.Errorf("expected size 1, got %d", rf.Size())
	}
}

func TestRegisterFile_GrowWithinCapacity(t *testing.T) {
	rf := newRegisterFile(nil, 100, 0)
	rf.Grow(1)
	if err := rf.Grow(16); err != nil {
		t.Fatalf("Grow failed: %v", err)
	}
	if rf.Reallocations() != 1 {
		t.Errorf("expected no further reallocation, got %d", rf.Reallocations())
	}
}

func TestRegisterFile_GrowBeyondCapacity(t *testing.T) {
	// capacity 16, size 16, growth to 20 must reach max(20, 16+4+1)
	rf := newRegisterFile(nil, 100, 0)
	rf.Grow(16)
	w := rf.Window()
	for i := 0; i < 16; i++ {
		*w.At(i) = IntRegister(int64(100 + i))
	}

	if err := rf.Grow(20); err != nil {
		t.Fatalf("Grow failed: %v", err)
	}
	if rf.Capacity() < 21 {
		t.Errorf("expected capacity >= 21, got %d", rf.Capacity())
	}

	w = rf.Window()
	for i := 0; i < 16; i++ {
		if got := w.At(i).Int(); got != int64(100+i) {
			t.Errorf("slot %d: expected %d, got %d", i, 100+i, got)
		}
	}
	for i := 16; i < rf.Capacity(); i++ {
		if *w.At(i) != 0 {
			t.Errorf("slot %d: expected zero after growth, got %d", i, *w.At(i))
		}
	}
}

func TestRegisterFile_GrowExhausted(t *testing.T) {
	rf := newRegisterFile(nil, 8, 0)
	err := rf.Grow(9)
	if !errors.Is(err, ErrStackExhausted) {
		t.Fatalf("expected ErrStackExhausted, got %v", err)
	}
	if rf.Size() != 0 {
		t.Errorf("expected size unchanged, got %d", rf.Size())
	}
}

func TestRegisterFile_GrowSmallerIsNoop(t *testing.T) {
	rf := newRegisterFile(nil, 100, 0)
	rf.Grow(5)
	rf.Grow(2)
	if rf.Size() != 5 {
		t.Errorf("expected size 5, got %d", rf.Size())
	}
}

func TestRegisterFile_Shrink(t *testing.T) {
	rf := newRegisterFile(nil, 100, 0)
	rf.Grow(10)
	rf.Shrink(4)
	if rf.Size() != 4 {
		t.Errorf("expected size 4, got %d", rf.Size())
	}
	rf.Shrink(8)
	if rf.Size() != 4 {
		t.Errorf("shrink must not grow, got size %d", rf.Size())
	}
	if rf.Capacity() != minCapacity {
		t.Errorf("shrink must not release capacity, got %d", rf.Capacity())
	}
}

func TestRegisterFile_AddGlobals(t *testing.T) {
	rf := newRegisterFile(nil, 100, 0)
	rf.AddGlobals(3)

	if rf.NumGlobalSlots() != 3 {
		t.Errorf("expected 3 globals, got %d", rf.NumGlobalSlots())
	}
	if rf.Size() != 0 {
		t.Errorf("expected size 0, got %d", rf.Size())
	}
	w := rf.Window()
	for k := 0; k < 3; k++ {
		if *w.Global(k) != 0 {
			t.Errorf("global %d: expected zero, got %d", k, *w.Global(k))
		}
	}
}

func TestRegisterFile_AddGlobalsKeepsIndices(t *testing.T) {
	rf := newRegisterFile(nil, 100, 0)
	rf.AddGlobals(2)
	w := rf.Window()
	*w.Global(0) = IntRegister(10)
	*w.Global(1) = IntRegister(11)

	rf.AddGlobals(2)
	w = rf.Window()
	if w.Global(0).Int() != 10 || w.Global(1).Int() != 11 {
		t.Errorf("existing globals moved: g0=%d g1=%d", w.Global(0).Int(), w.Global(1).Int())
	}
	if *w.Global(2) != 0 || *w.Global(3) != 0 {
		t.Error("new globals must be zero")
	}
}

func TestRegisterFile_AddGlobalsWithLiveLocals(t *testing.T) {
	rf := newRegisterFile(nil, 100, 0)
	rf.AddGlobals(1)
	rf.Grow(3)
	w := rf.Window()
	*w.Global(0) = IntRegister(7)
	for i := 0; i < 3; i++ {
		*w.At(i) = IntRegister(int64(i + 1))
	}

	rf.AddGlobals(2)
	w = rf.Window()
	if w.Global(0).Int() != 7 {
		t.Errorf("expected global 0 = 7, got %d", w.Global(0).Int())
	}
	for i := 0; i < 3; i++ {
		if got := w.At(i).Int(); got != int64(i+1) {
			t.Errorf("local %d: expected %d, got %d", i, i+1, got)
		}
	}
}

func TestRegisterFile_AddGlobalsReallocates(t *testing.T) {
	rf := newRegisterFile(nil, 100, 0)
	rf.Grow(16)
	w := rf.Window()
	for i := 0; i < 16; i++ {
		*w.At(i) = IntRegister(int64(i + 1))
	}

	rf.AddGlobals(4)
	if rf.Capacity() < rf.Size() {
		t.Errorf("capacity %d < size %d", rf.Capacity(), rf.Size())
	}
	w = rf.Window()
	for i := 0; i < 16; i++ {
		if got := w.At(i).Int(); got != int64(i+1) {
			t.Errorf("local %d: expected %d, got %d", i, i+1, got)
		}
	}
}

func TestRegisterFile_AddGlobalsZeroCount(t *testing.T) {
	rf := newRegisterFile(nil, 100, 0)
	rf.AddGlobals(0)
	rf.AddGlobals(-2)
	if rf.NumGlobalSlots() != 0 || rf.Reallocations() != 0 {
		t.Errorf("expected no-op, got globals=%d reallocations=%d", rf.NumGlobalSlots(), rf.Reallocations())
	}
}

func TestRegisterFile_CopyGlobals(t *testing.T) {
	src := newRegisterFile(nil, 100, 0)
	src.AddGlobals(2)
	sw := src.Window()
	*sw.Global(0) = IntRegister(1)
	*sw.Global(1) = IntRegister(2)

	dst := newRegisterFile(nil, 100, 0)
	dst.AddGlobals(3)
	dst.CopyGlobals(src)

	dw := dst.Window()
	if dw.Global(0).Int() != 1 || dw.Global(1).Int() != 2 {
		t.Errorf("expected globals 1,2 got %d,%d", dw.Global(0).Int(), dw.Global(1).Int())
	}
	if *dw.Global(2) != 0 {
		t.Errorf("extra global must stay untouched, got %d", *dw.Global(2))
	}
}

func TestRegisterFile_Clear(t *testing.T) {
	rf := newRegisterFile(nil, 100, 0)
	rf.AddGlobals(2)
	rf.Grow(4)
	capBefore := rf.Capacity()

	rf.Clear()
	if rf.NumGlobalSlots() != 0 || rf.Size() != 0 {
		t.Errorf("expected empty file, got globals=%d size=%d", rf.NumGlobalSlots(), rf.Size())
	}
	if rf.Capacity() != capBefore+2 {
		t.Errorf("expected capacity %d, got %d", capBefore+2, rf.Capacity())
	}
}

func TestRegisterFile_MarkScansGlobalsAndLocals(t *testing.T) {
	rf := newRegisterFile(nil, 100, 0)
	rf.AddGlobals(2)
	rf.Grow(3)

	var scanned int
	rf.Mark(CollectorFunc(func(words []Register) {
		scanned += len(words)
	}))
	if scanned != 5 {
		t.Errorf("expected 5 scanned words, got %d", scanned)
	}
}

func TestRegisterFile_GrowthPreservesLivePrefix(t *testing.T) {
	rf := newRegisterFile(nil, 1000, 0)
	marker := int64(1)
	for round := 0; round < 8; round++ {
		rf.AddGlobals(round % 3)
		rf.Grow(rf.Capacity() + 1)

		w := rf.Window()
		for k := 0; k < rf.NumGlobalSlots(); k++ {
			*w.Global(k) = IntRegister(marker + int64(k))
		}
		for i := 0; i < rf.Size(); i++ {
			*w.At(i) = IntRegister(-marker - int64(i))
		}

		rf.Reallocate(rf.Capacity() + 1)
		if rf.Capacity() < rf.Size() {
			t.Fatalf("round %d: capacity %d < size %d", round, rf.Capacity(), rf.Size())
		}

		w = rf.Window()
		for k := 0; k < rf.NumGlobalSlots(); k++ {
			if got := w.Global(k).Int(); got != marker+int64(k) {
				t.Fatalf("round %d: global %d = %d", round, k, got)
			}
		}
		for i := 0; i < rf.Size(); i++ {
			if got := w.At(i).Int(); got != -marker-int64(i) {
				t.Fatalf("round %d: local %d = %d", round, i, got)
			}
		}
		for i := rf.Size(); i < rf.Capacity(); i++ {
			if *w.At(i) != 0 {
				t.Fatalf("round %d: slot %d not zero-filled", round, i)
			}
		}
		marker += 100
	}
}

func TestWindow_Valid(t *testing.T) {
	rf := newRegisterFile(nil, 100, 0)
	rf.AddGlobals(2)
	rf.Grow(1)
	w := rf.Window()

	tests := []struct {
		i    int
		want bool
	}{
		{-3, false},
		{-2, true},
		{-1, true},
		{0, true},
		{rf.Capacity() - 1, true},
		{rf.Capacity(), false},
	}
	for _, tt := range tests {
		if got := w.Valid(tt.i); got != tt.want {
			t.Errorf("Valid(%d) = %v, want %v", tt.i, got, tt.want)
		}
	}
	if w.File() != rf {
		t.Error("window must reference its file")
	}
}
