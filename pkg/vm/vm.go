// Package vm implements a register-file stack for a bytecode interpreter
// together with a small frame machine that drives it.
//
// The register-file stack is the core:
//   - RegisterFile: a zero-filled, growable slab with a globals prefix
//   - Stack: nested global evaluations and implicit calls, strictly LIFO
//   - VariableObject / Scope: identifier to register slot resolution
//
// The frame machine executes 32-bit instructions with 16 scalar scratch
// registers (R0-R15) and uses the stack for every frame and variable it
// touches.
//
// Basic usage:
//
//	v := vm.NewVM()
//	v.Load(program)
//	result, err := v.Execute()
//
// With resource limits:
//
//	v := vm.NewVM(vm.WithMaxSize(1 << 16))
//	v.SetMaxSteps(10000)
//	v.SetContext(ctx)
//	v.Load(program)
//	result, err := v.Execute()
package vm

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/tliron/commonlog"
)

// NumScalarRegs is the number of scratch registers (R0-R15).
const NumScalarRegs = 16

// Program represents a compiled frame-machine program.
type Program struct {
	Code  []Instruction
	Ints  []int64  // Integer constant pool
	Names []string // Identifier pool
}

// ExecutionStats contains metrics about VM execution for observability.
type ExecutionStats struct {
	StepsExecuted   int64          // Total instructions executed
	ExecutionTimeNs int64          // Execution time in nanoseconds
	PeakFiles       int            // Deepest register file stack observed
	PeakSlots       int            // Largest total slot allocation observed
	Reallocations   int            // Slab reallocations across all files
	OpCounts        map[string]int // Count of each opcode executed
}

// VM represents the frame machine.
type VM struct {
	R     [NumScalarRegs]int64
	code  []Instruction
	ints  []int64
	names []string
	ip    int

	stack     *Stack
	globals   *Scope
	stackOpts []StackOption
	evals     []evalFrame

	// Resource limits
	maxSteps  int64
	stepCount int64

	// Context for cancellation
	ctx context.Context

	out    io.Writer
	output []int64

	// Observability - execution statistics
	stats        ExecutionStats
	statsEnabled bool

	log commonlog.Logger
}

// evalFrame records what a PUSH_GLOBAL did so the matching POP_GLOBAL can
// undo exactly that. A reused file is emptied rather than popped.
type evalFrame struct {
	file   *RegisterFile
	reused bool
}

// NewVM creates a new VM instance with a fresh register file stack.
func NewVM(opts ...StackOption) *VM {
	vm := &VM{
		stackOpts: opts,
		log:       commonlog.GetLogger("regfile.vm"),
	}
	vm.Reset()
	return vm
}

// Reset discards the stack and the global scope.
func (vm *VM) Reset() {
	if vm.stack != nil {
		vm.stack.Close()
	}
	vm.stack = NewStack(vm.stackOpts...)
	vm.globals = NewGlobalScope(vm.stack)
	vm.evals = nil
	vm.output = nil
}

// Load loads a program into the VM. The stack and the global scope survive
// across loads, so successive programs share their globals.
func (vm *VM) Load(program *Program) error {
	if program == nil {
		return fmt.Errorf("%w: nil program", ErrInvalidInstruction)
	}
	vm.code = program.Code
	vm.ints = program.Ints
	vm.names = program.Names
	vm.ip = 0
	vm.stepCount = 0
	vm.evals = vm.evals[:0]
	vm.R = [NumScalarRegs]int64{}
	return nil
}

// SetMaxSteps sets the maximum number of execution steps.
func (vm *VM) SetMaxSteps(n int64) {
	vm.maxSteps = n
}

// SetContext sets the context for cancellation/timeout.
func (vm *VM) SetContext(ctx context.Context) {
	vm.ctx = ctx
}

// SetOutput makes PRINT also write each value as a line to w.
func (vm *VM) SetOutput(w io.Writer) {
	vm.out = w
}

// Output returns the values printed since the last Reset.
func (vm *VM) Output() []int64 {
	return vm.output
}

// Stack returns the register file stack.
func (vm *VM) Stack() *Stack {
	return vm.stack
}

// Globals returns the global scope.
func (vm *VM) Globals() *Scope {
	return vm.globals
}

// EnableStats enables execution statistics collection.
func (vm *VM) EnableStats() {
	vm.statsEnabled = true
	vm.stats = ExecutionStats{
		OpCounts: make(map[string]int),
	}
}

// Stats returns the execution statistics from the last Execute() call.
// Returns nil if stats were not enabled via EnableStats().
func (vm *VM) Stats() *ExecutionStats {
	if !vm.statsEnabled {
		return nil
	}
	return &vm.stats
}

// Execute runs the loaded program and returns the value passed to HALT.
func (vm *VM) Execute() (int64, error) {
	var startTime time.Time
	if vm.statsEnabled {
		startTime = time.Now()
		vm.stats.StepsExecuted = 0
		defer func() {
			vm.stats.ExecutionTimeNs = time.Since(startTime).Nanoseconds()
		}()
	}

	for vm.ip < len(vm.code) {
		if vm.ctx != nil {
			select {
			case <-vm.ctx.Done():
				return 0, vm.ctx.Err()
			default:
			}
		}

		vm.stepCount++
		if vm.maxSteps > 0 && vm.stepCount > vm.maxSteps {
			return 0, ErrInstructionLimit
		}

		inst := vm.code[vm.ip]
		op := inst.Opcode()

		if vm.statsEnabled {
			vm.stats.StepsExecuted++
			vm.stats.OpCounts[op.String()]++
		}

		if op == OpHalt {
			return vm.R[inst.Dst()], nil
		}

		if err := vm.step(inst); err != nil {
			return 0, fmt.Errorf("ip %d (%s): %w", vm.ip, op, err)
		}

		if vm.statsEnabled {
			vm.observeStack()
		}
		vm.ip++
	}

	return 0, ErrNoHalt
}

// popGlobal undoes the most recent PUSH_GLOBAL of the running program. A
// POP_GLOBAL with no matching push in this program falls back to the stack.
func (vm *VM) popGlobal() error {
	n := len(vm.evals)
	if n == 0 {
		return vm.stack.PopGlobal()
	}
	e := vm.evals[n-1]
	if vm.stack.Current() != e.file {
		return fmt.Errorf("%w: top file was not pushed by the matching PUSH_GLOBAL", ErrFrameMismatch)
	}
	vm.evals = vm.evals[:n-1]
	if e.reused {
		e.file.Shrink(0)
		return nil
	}
	return vm.stack.PopGlobal()
}

func (vm *VM) step(inst Instruction) error {
	dst := inst.Dst()

	switch op := inst.Opcode(); op {
	// ===== Frame Management =====
	case OpPushGlobal:
		top := vm.stack.Current()
		rf := vm.stack.PushGlobal()
		vm.evals = append(vm.evals, evalFrame{file: rf, reused: rf == top})

	case OpPopGlobal:
		return vm.popGlobal()

	case OpPushCall:
		vm.stack.PushFunction()

	case OpPopCall:
		return vm.stack.PopFunction()

	case OpAddGlobals:
		vm.stack.AddGlobals(int(inst.Imm16()))

	case OpGrow:
		rf := vm.stack.Current()
		return rf.Grow(rf.Size() + int(inst.Imm16()))

	case OpShrink:
		rf := vm.stack.Current()
		rf.Shrink(max(0, rf.Size()-int(inst.Imm16())))

	case OpClear:
		vm.stack.Current().Clear()

	// ===== Slot Access =====
	case OpLoadLocal, OpStoreLocal:
		w := vm.stack.Base()
		i := int(inst.Imm16())
		if i >= w.Size() {
			return fmt.Errorf("%w: local %d, %d live", ErrSlotOutOfRange, i, w.Size())
		}
		if op == OpLoadLocal {
			vm.R[dst] = w.At(i).Int()
		} else {
			*w.At(i) = IntRegister(vm.R[dst])
		}

	case OpLoadGlobal, OpStoreGlobal:
		w := vm.stack.GlobalBase()
		k := int(inst.Imm16())
		if k >= w.File().NumGlobalSlots() {
			return fmt.Errorf("%w: global %d, %d declared", ErrSlotOutOfRange, k, w.File().NumGlobalSlots())
		}
		if op == OpLoadGlobal {
			vm.R[dst] = w.Global(k).Int()
		} else {
			*w.Global(k) = IntRegister(vm.R[dst])
		}

	// ===== Variables =====
	case OpDeclare:
		name, err := vm.name(inst)
		if err != nil {
			return err
		}
		vm.globals.Declare(name)

	case OpGetVar:
		name, err := vm.name(inst)
		if err != nil {
			return err
		}
		v, ok, err := vm.globals.Get(name)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrUndefinedVariable, name)
		}
		vm.R[dst] = v.Int()

	case OpSetVar:
		name, err := vm.name(inst)
		if err != nil {
			return err
		}
		return vm.globals.Put(name, IntRegister(vm.R[dst]))

	case OpInitVar:
		name, err := vm.name(inst)
		if err != nil {
			return err
		}
		return vm.globals.Initialize(name, IntRegister(vm.R[dst]), Attributes(inst.Modifier()))

	case OpDeleteVar:
		name, err := vm.name(inst)
		if err != nil {
			return err
		}
		vm.R[dst] = boolToInt(vm.globals.Delete(name))

	// ===== Scalar Operations =====
	case OpLoadConst:
		idx := int(inst.Imm16())
		if idx >= len(vm.ints) {
			return fmt.Errorf("%w: constant %d", ErrInvalidInstruction, idx)
		}
		vm.R[dst] = vm.ints[idx]

	case OpMoveR:
		vm.R[dst] = vm.R[inst.Src1()]

	case OpAddR:
		vm.R[dst] = vm.R[inst.Src1()] + vm.R[inst.Src2()]

	case OpSubR:
		vm.R[dst] = vm.R[inst.Src1()] - vm.R[inst.Src2()]

	case OpMulR:
		vm.R[dst] = vm.R[inst.Src1()] * vm.R[inst.Src2()]

	case OpDivR:
		divisor := vm.R[inst.Src2()]
		if divisor == 0 {
			return ErrDivisionByZero
		}
		vm.R[dst] = vm.R[inst.Src1()] / divisor

	// ===== Collector =====
	case OpMark:
		roots := NewRootSet()
		vm.stack.Mark(roots)
		vm.R[dst] = int64(roots.Roots())
		vm.log.Debugf("conservative scan: %d words, %d candidate roots", roots.Scanned, roots.Roots())

	// ===== Control Flow =====
	case OpPrint:
		vm.output = append(vm.output, vm.R[dst])
		if vm.out != nil {
			fmt.Fprintln(vm.out, vm.R[dst])
		}

	case OpNop:

	default:
		return fmt.Errorf("%w: opcode 0x%02x", ErrInvalidInstruction, uint8(op))
	}

	return nil
}

func (vm *VM) name(inst Instruction) (string, error) {
	idx := int(inst.Imm16())
	if idx >= len(vm.names) {
		return "", fmt.Errorf("%w: name %d", ErrInvalidInstruction, idx)
	}
	return vm.names[idx], nil
}

func (vm *VM) observeStack() {
	st := vm.stack.Stats()
	vm.stats.PeakFiles = max(vm.stats.PeakFiles, len(st.Files))
	vm.stats.PeakSlots = max(vm.stats.PeakSlots, st.TotalSlots())
	vm.stats.Reallocations = vm.stack.Reallocations()
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
