package optimizer

import (
	"slices"

	"github.com/akhildatla/regfile/pkg/vm"
)

// constantFolding evaluates constant expressions at compile time.
// For example:
//
//	LOAD_CONST R0, 5
//	LOAD_CONST R1, 10
//	ADD_R R2, R0, R1
//
// Becomes:
//
//	LOAD_CONST R0, 5
//	LOAD_CONST R1, 10
//	LOAD_CONST R2, 15
//
// Division is folded only when the divisor is non-zero so the runtime error
// is kept.
func (o *Optimizer) constantFolding(program *vm.Program) *vm.Program {
	// Track which registers hold known constants
	regConstants := make(map[uint8]int64)

	ints := program.Ints
	grown := false
	newCode := make([]vm.Instruction, 0, len(program.Code))

	loadConst := func(dst uint8, v int64) (vm.Instruction, bool) {
		idx := slices.Index(ints, v)
		if idx < 0 {
			if len(ints) > 0xFFFF {
				return 0, false
			}
			if !grown {
				ints = slices.Clone(ints)
				grown = true
			}
			idx = len(ints)
			ints = append(ints, v)
		}
		return vm.EncodeImmediate(vm.OpLoadConst, 0, dst, uint16(idx)), true
	}

	for _, inst := range program.Code {
		op := inst.Opcode()
		dst := inst.Dst()

		switch op {
		case vm.OpLoadConst:
			if idx := int(inst.Imm16()); idx < len(program.Ints) {
				regConstants[dst] = program.Ints[idx]
			} else {
				delete(regConstants, dst)
			}
			newCode = append(newCode, inst)

		case vm.OpMoveR:
			if val, ok := regConstants[inst.Src1()]; ok {
				if folded, ok := loadConst(dst, val); ok {
					regConstants[dst] = val
					newCode = append(newCode, folded)
					continue
				}
			}
			delete(regConstants, dst)
			newCode = append(newCode, inst)

		case vm.OpAddR, vm.OpSubR, vm.OpMulR, vm.OpDivR:
			val1, ok1 := regConstants[inst.Src1()]
			val2, ok2 := regConstants[inst.Src2()]

			if ok1 && ok2 {
				if result, ok := foldArith(op, val1, val2); ok {
					if folded, ok := loadConst(dst, result); ok {
						regConstants[dst] = result
						newCode = append(newCode, folded)
						continue
					}
				}
			}
			// Invalidate the destination register
			delete(regConstants, dst)
			newCode = append(newCode, inst)

		case vm.OpLoadLocal, vm.OpLoadGlobal, vm.OpGetVar, vm.OpDeleteVar, vm.OpMark:
			delete(regConstants, dst)
			newCode = append(newCode, inst)

		default:
			newCode = append(newCode, inst)
		}
	}

	if !grown && slices.Equal(newCode, program.Code) {
		return program
	}
	return &vm.Program{
		Code:  newCode,
		Ints:  ints,
		Names: program.Names,
	}
}

func foldArith(op vm.Opcode, a, b int64) (int64, bool) {
	switch op {
	case vm.OpAddR:
		return a + b, true
	case vm.OpSubR:
		return a - b, true
	case vm.OpMulR:
		return a * b, true
	case vm.OpDivR:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	}
	return 0, false
}
