package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStack_New(t *testing.T) {
	s := NewStack()
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, DefaultMaxSize, s.Current().MaxSize())
	assert.Same(t, s.Current(), s.LastGlobal())
	assert.Equal(t, 0, s.ImplicitCallDepth())
}

func TestStack_Options(t *testing.T) {
	s := NewStack(WithMaxSize(64), WithInitialCapacity(32))
	assert.Equal(t, 64, s.Current().MaxSize())
	assert.Equal(t, 32, s.Current().Capacity())

	s = NewStack(WithMaxSize(0))
	assert.Equal(t, DefaultMaxSize, s.Current().MaxSize(), "non-positive max size keeps the default")
}

func TestStack_AddGlobalsOnFreshStack(t *testing.T) {
	s := NewStack()
	s.AddGlobals(3)

	rf := s.Current()
	assert.Equal(t, 3, rf.NumGlobalSlots())
	assert.Equal(t, 0, rf.Size())
	w := s.GlobalBase()
	for k := 0; k < 3; k++ {
		assert.Zero(t, *w.Global(k), "global %d", k)
	}
}

func TestStack_PushGlobalReusesIdleFile(t *testing.T) {
	s := NewStack()
	before := s.Current()

	rf := s.PushGlobal()
	assert.Same(t, before, rf)
	assert.Equal(t, 1, s.Len())
}

func TestStack_PushGlobalNested(t *testing.T) {
	s := NewStack(WithMaxSize(100))
	s.AddGlobals(2)
	w := s.GlobalBase()
	*w.Global(0) = IntRegister(11)
	*w.Global(1) = IntRegister(22)
	require.NoError(t, s.Current().Grow(4))

	rf := s.PushGlobal()
	require.Equal(t, 2, s.Len())
	assert.Same(t, rf, s.Current())
	assert.Equal(t, 96, rf.MaxSize(), "nested file gets the remaining budget")
	assert.Equal(t, 2, rf.NumGlobalSlots())

	nw := rf.Window()
	assert.Equal(t, int64(11), nw.Global(0).Int())
	assert.Equal(t, int64(22), nw.Global(1).Int())
}

func TestStack_PopGlobalPropagatesGlobals(t *testing.T) {
	s := NewStack()
	s.AddGlobals(1)
	require.NoError(t, s.Current().Grow(2))
	outer := s.Current()

	s.PushGlobal()
	s.AddGlobals(2)
	w := s.GlobalBase()
	*w.Global(0) = IntRegister(5)
	*w.Global(2) = IntRegister(9)

	require.NoError(t, s.PopGlobal())
	assert.Same(t, outer, s.Current())
	assert.Equal(t, 3, outer.NumGlobalSlots())
	assert.Equal(t, 2, outer.Size(), "outer locals survive")

	ow := outer.Window()
	assert.Equal(t, int64(5), ow.Global(0).Int())
	assert.Equal(t, int64(9), ow.Global(2).Int())
}

func TestStack_PushPopGlobalIdempotent(t *testing.T) {
	s := NewStack()
	s.AddGlobals(4)
	w := s.GlobalBase()
	for k := 0; k < 4; k++ {
		*w.Global(k) = IntRegister(int64(k*k + 1))
	}
	require.NoError(t, s.Current().Grow(1))
	before := s.Snapshot()

	s.PushGlobal()
	require.NoError(t, s.PopGlobal())

	assert.Equal(t, before, s.Snapshot())
}

func TestStack_PopSingleFileNeverEmpties(t *testing.T) {
	s := NewStack()
	require.NoError(t, s.Current().Grow(7))

	for i := 0; i < 5; i++ {
		require.NoError(t, s.PopGlobal())
	}
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 0, s.Current().Size())
}

func TestStack_LIFO(t *testing.T) {
	s := NewStack()
	var pushed []*RegisterFile
	pushed = append(pushed, s.Current())

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Current().Grow(1))
		var rf *RegisterFile
		if i%2 == 0 {
			rf = s.PushGlobal()
		} else {
			rf = s.PushFunction()
		}
		pushed = append(pushed, rf)
		assert.Same(t, rf, s.Base().File())
	}

	for i := len(pushed) - 1; i > 0; i-- {
		top := s.Current()
		require.Same(t, pushed[i], top)
		if top.IsForImplicitCall() {
			require.NoError(t, s.PopFunction())
		} else {
			require.NoError(t, s.PopGlobal())
		}
		assert.Same(t, pushed[i-1], s.Base().File())
	}
}

func TestStack_PushFunction(t *testing.T) {
	s := NewStack()
	outer := s.Current()

	rf := s.PushFunction()
	assert.NotSame(t, outer, rf, "implicit calls never reuse the top file")
	assert.True(t, rf.IsForImplicitCall())
	assert.Equal(t, 1, s.ImplicitCallDepth())
	assert.Same(t, outer, s.LastGlobal())

	require.NoError(t, s.PopFunction())
	assert.Equal(t, 0, s.ImplicitCallDepth())
	assert.Same(t, outer, s.Current())
}

func TestStack_GlobalsDuringImplicitCall(t *testing.T) {
	s := NewStack()
	s.PushFunction()

	s.AddGlobals(2)
	assert.Equal(t, 2, s.LastGlobal().NumGlobalSlots())
	assert.Equal(t, 0, s.Current().NumGlobalSlots())

	// A global evaluation inside the call copies the authoritative globals.
	*s.GlobalBase().Global(1) = IntRegister(3)
	rf := s.PushGlobal()
	assert.Equal(t, 2, rf.NumGlobalSlots())
	assert.Equal(t, int64(3), rf.Window().Global(1).Int())
	assert.Same(t, rf, s.LastGlobal())

	s.AddGlobals(1)
	require.NoError(t, s.PopGlobal())
	assert.Equal(t, 3, s.LastGlobal().NumGlobalSlots())
	require.NoError(t, s.PopFunction())
}

func TestStack_PopMismatch(t *testing.T) {
	s := NewStack()
	assert.ErrorIs(t, s.PopFunction(), ErrFrameMismatch)

	s.PushFunction()
	assert.ErrorIs(t, s.PopGlobal(), ErrFrameMismatch)
	assert.Equal(t, 2, s.Len())
}

func TestStack_PushGlobalSkipsIdleImplicitFile(t *testing.T) {
	s := NewStack()
	call := s.PushFunction()

	rf := s.PushGlobal()
	assert.NotSame(t, call, rf)
	assert.Equal(t, 3, s.Len())
}

func TestStack_PushGlobalReusesIdleNestedFile(t *testing.T) {
	s := NewStack()
	require.NoError(t, s.Current().Grow(1))
	call := s.PushFunction()
	require.NoError(t, call.Grow(1))

	nested := s.PushGlobal()
	require.Equal(t, 3, s.Len())

	// The nested file is idle, so a second evaluation shares it.
	again := s.PushGlobal()
	assert.Same(t, nested, again)
	assert.Equal(t, 3, s.Len())

	require.NoError(t, again.Grow(2))
	again.Shrink(0)
	assert.Same(t, nested, s.Current())

	require.NoError(t, s.PopGlobal())
	assert.Same(t, call, s.Current())
	assert.Equal(t, 1, call.Size())
}

func TestStack_BaseFollowsReallocation(t *testing.T) {
	s := NewStack()
	require.NoError(t, s.Current().Grow(1))
	*s.Base().At(0) = IntRegister(42)

	require.NoError(t, s.Current().Grow(100))
	assert.Equal(t, int64(42), s.Base().At(0).Int())
	assert.Equal(t, 100, s.Base().Size())
}

func TestStack_Mark(t *testing.T) {
	s := NewStack()
	s.AddGlobals(1)
	require.NoError(t, s.Current().Grow(2))
	*s.Base().At(1) = IntRegister(77)
	s.PushFunction()
	require.NoError(t, s.Current().Grow(3))

	roots := NewRootSet()
	s.Mark(roots)
	assert.Equal(t, 6, roots.Scanned)
	assert.Equal(t, 1, roots.Roots())
	assert.True(t, roots.Contains(IntRegister(77)))
}

func TestStack_Stats(t *testing.T) {
	s := NewStack(WithMaxSize(50))
	s.AddGlobals(2)
	require.NoError(t, s.Current().Grow(3))
	s.PushFunction()

	st := s.Stats()
	require.Len(t, st.Files, 2)
	assert.Equal(t, 1, st.ImplicitCallDepth)
	assert.Equal(t, FileStats{Depth: 0, Globals: 2, Size: 3, Capacity: 14, MaxSize: 50, Reallocations: 1}, st.Files[0])
	assert.True(t, st.Files[1].ForImplicitCall)
	assert.Equal(t, 47, st.Files[1].MaxSize)
	assert.Equal(t, 16, st.TotalSlots())
	assert.Equal(t, 1, s.Reallocations())
}

func TestStack_ReallocationsSurvivePop(t *testing.T) {
	s := NewStack()
	s.PushFunction()
	require.NoError(t, s.Current().Grow(1))
	require.NoError(t, s.PopFunction())
	assert.Equal(t, 1, s.Reallocations())
}

func TestStack_Files(t *testing.T) {
	s := NewStack()
	s.PushFunction()
	files := s.Files()
	files[0] = nil
	assert.NotNil(t, s.Files()[0], "Files returns a copy")
}
