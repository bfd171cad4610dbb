package optimizer

import (
	"github.com/akhildatla/regfile/pkg/vm"
)

// WithDeadCodeElimination enables dead code elimination.
func WithDeadCodeElimination() Option {
	return func(o *Optimizer) {
		o.enableDeadCode = true
	}
}

// deadCodeElimination removes code after the first HALT and pure register
// writes whose result is never read.
func (o *Optimizer) deadCodeElimination(program *vm.Program) *vm.Program {
	if len(program.Code) == 0 {
		return program
	}

	// Everything after the first HALT is unreachable.
	end := len(program.Code)
	for i, inst := range program.Code {
		if inst.Opcode() == vm.OpHalt {
			end = i + 1
			break
		}
	}

	// Work backwards tracking which scratch registers are read later.
	var live [vm.NumScalarRegs]bool
	needed := make([]bool, end)
	keepCount := 0

	for i := end - 1; i >= 0; i-- {
		inst := program.Code[i]
		op := inst.Opcode()
		dst := inst.Dst()

		if op == vm.OpNop || (isPure(inst, program) && !live[dst]) {
			continue
		}
		needed[i] = true
		keepCount++

		if writesDst(op) {
			live[dst] = false
		}
		markSourcesUsed(inst, &live)
	}

	if keepCount == len(program.Code) {
		return program
	}

	newCode := make([]vm.Instruction, 0, keepCount)
	for i := 0; i < end; i++ {
		if needed[i] {
			newCode = append(newCode, program.Code[i])
		}
	}

	return withCode(program, newCode)
}

// isPure reports whether inst only writes R[dst] and cannot fail.
func isPure(inst vm.Instruction, program *vm.Program) bool {
	switch inst.Opcode() {
	case vm.OpLoadConst:
		return int(inst.Imm16()) < len(program.Ints)
	case vm.OpMoveR, vm.OpAddR, vm.OpSubR, vm.OpMulR:
		return true
	}
	return false
}

func writesDst(op vm.Opcode) bool {
	switch op {
	case vm.OpLoadConst, vm.OpMoveR, vm.OpAddR, vm.OpSubR, vm.OpMulR, vm.OpDivR,
		vm.OpLoadLocal, vm.OpLoadGlobal, vm.OpGetVar, vm.OpDeleteVar, vm.OpMark:
		return true
	}
	return false
}

// markSourcesUsed marks the registers inst reads as live.
func markSourcesUsed(inst vm.Instruction, live *[vm.NumScalarRegs]bool) {
	switch inst.Opcode() {
	case vm.OpAddR, vm.OpSubR, vm.OpMulR, vm.OpDivR:
		live[inst.Src1()] = true
		live[inst.Src2()] = true

	case vm.OpMoveR:
		live[inst.Src1()] = true

	case vm.OpStoreLocal, vm.OpStoreGlobal, vm.OpSetVar, vm.OpInitVar, vm.OpPrint, vm.OpHalt:
		live[inst.Dst()] = true
	}
}
