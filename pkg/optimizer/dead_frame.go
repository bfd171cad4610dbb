package optimizer

import (
	"github.com/akhildatla/regfile/pkg/vm"
)

// deadFrameElimination removes global evaluations and implicit calls that
// do nothing. The VM pairs every POP_GLOBAL with its own PUSH_GLOBAL: a
// fresh file is popped and a reused idle file is emptied, which it already
// was. Either way an adjacent pair leaves the stack as it found it, so
//
//	PUSH_GLOBAL
//	NOP
//	POP_GLOBAL
//
// disappears entirely. NOPs are dropped as well.
func (o *Optimizer) deadFrameElimination(program *vm.Program) *vm.Program {
	newCode := make([]vm.Instruction, 0, len(program.Code))
	changed := false

	for _, inst := range program.Code {
		op := inst.Opcode()
		if op == vm.OpNop {
			changed = true
			continue
		}

		if n := len(newCode); n > 0 {
			prev := newCode[n-1].Opcode()
			if (op == vm.OpPopGlobal && prev == vm.OpPushGlobal) ||
				(op == vm.OpPopCall && prev == vm.OpPushCall) {
				newCode = newCode[:n-1]
				changed = true
				continue
			}
		}

		newCode = append(newCode, inst)
	}

	if !changed {
		return program
	}
	return withCode(program, newCode)
}
