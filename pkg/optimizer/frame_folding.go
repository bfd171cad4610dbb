package optimizer

import (
	"github.com/akhildatla/regfile/pkg/vm"
)

// frameFolding merges runs of frame resize instructions.
// For example:
//
//	GROW 2
//	GROW 3
//	SHRINK 5
//
// Becomes nothing: the two grows merge and the pair then cancels.
//
// Adjacent ADD_GLOBALS, GROW and SHRINK merge while the sum fits an
// immediate. SHRINK clamps at zero, so two shrinks merge exactly. Resizes
// by zero are dropped.
func (o *Optimizer) frameFolding(program *vm.Program) *vm.Program {
	newCode := make([]vm.Instruction, 0, len(program.Code))
	changed := false

	for _, inst := range program.Code {
		if isResize(inst.Opcode()) && inst.Imm16() == 0 {
			changed = true
			continue
		}

		n := len(newCode)
		if n == 0 {
			newCode = append(newCode, inst)
			continue
		}
		prev := newCode[n-1]

		switch op := inst.Opcode(); {
		case isResize(op) && prev.Opcode() == op:
			sum := int(prev.Imm16()) + int(inst.Imm16())
			if sum > 0xFFFF {
				newCode = append(newCode, inst)
				continue
			}
			newCode[n-1] = vm.EncodeImmediate(op, 0, 0, uint16(sum))
			changed = true

		case op == vm.OpShrink && prev.Opcode() == vm.OpGrow && prev.Imm16() == inst.Imm16():
			newCode = newCode[:n-1]
			changed = true

		default:
			newCode = append(newCode, inst)
		}
	}

	if !changed {
		return program
	}
	return withCode(program, newCode)
}

func isResize(op vm.Opcode) bool {
	return op == vm.OpAddGlobals || op == vm.OpGrow || op == vm.OpShrink
}
