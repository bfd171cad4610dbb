package compiler

import (
	"errors"
	"fmt"
	"math"

	"github.com/akhildatla/regfile/pkg/vm"
)

var (
	ErrUnknownOpcode = errors.New("unknown opcode")
	ErrOperand       = errors.New("bad operand")
	ErrPoolOverflow  = errors.New("constant pool overflow")
)

// Compile compiles frame-machine assembly source code to bytecode.
func Compile(source string) (*vm.Program, error) {
	parser := NewParser(source)
	asmProgram, err := parser.Parse()
	if err != nil {
		return nil, err
	}

	compiler := &Compiler{
		ints:      []int64{},
		names:     []string{},
		code:      []vm.Instruction{},
		intIndex:  make(map[int64]uint16),
		nameIndex: make(map[string]uint16),
	}

	return compiler.compile(asmProgram)
}

// Compiler compiles parsed assembly to bytecode.
type Compiler struct {
	ints      []int64
	names     []string
	code      []vm.Instruction
	intIndex  map[int64]uint16
	nameIndex map[string]uint16
}

func (c *Compiler) compile(program *AsmProgram) (*vm.Program, error) {
	for _, inst := range program.Instructions {
		bytecode, err := c.compileInstruction(inst)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", inst.Line, err)
		}
		c.code = append(c.code, bytecode)
	}

	return &vm.Program{
		Code:  c.code,
		Ints:  c.ints,
		Names: c.names,
	}, nil
}

// compileInstruction encodes one instruction. The parser has already
// checked operand count, kinds and ranges.
func (c *Compiler) compileInstruction(inst AsmInstruction) (vm.Instruction, error) {
	ops := inst.Operands

	switch inst.Op {
	// ===== Frame Management =====
	case vm.OpPushGlobal, vm.OpPopGlobal, vm.OpPushCall, vm.OpPopCall, vm.OpClear, vm.OpNop:
		return vm.EncodeImmediate(inst.Op, 0, 0, 0), nil

	// GROW n, SHRINK n, ADD_GLOBALS n
	case vm.OpAddGlobals, vm.OpGrow, vm.OpShrink:
		return vm.EncodeImmediate(inst.Op, 0, 0, uint16(ops[0].IntVal)), nil

	// ===== Slot Access =====
	// LOAD_LOCAL R[dst], slot
	case vm.OpLoadLocal, vm.OpStoreLocal, vm.OpLoadGlobal, vm.OpStoreGlobal:
		return vm.EncodeImmediate(inst.Op, 0, ops[0].RegNum, uint16(ops[1].IntVal)), nil

	// ===== Variables =====
	case vm.OpDeclare:
		idx, err := c.addName(ops[0].StrVal)
		return vm.EncodeImmediate(inst.Op, 0, 0, idx), err

	// GET_VAR R[dst], "name"
	case vm.OpGetVar, vm.OpSetVar, vm.OpDeleteVar:
		idx, err := c.addName(ops[1].StrVal)
		return vm.EncodeImmediate(inst.Op, 0, ops[0].RegNum, idx), err

	// INIT_VAR R[src], "name"[, attributes]
	case vm.OpInitVar:
		var attrs uint8
		if len(ops) == 3 {
			attrs = uint8(ops[2].IntVal)
		}
		idx, err := c.addName(ops[1].StrVal)
		return vm.EncodeImmediate(inst.Op, attrs, ops[0].RegNum, idx), err

	// ===== Scalar Operations =====
	case vm.OpLoadConst:
		idx, err := c.addInt(ops[1].IntVal)
		return vm.EncodeImmediate(inst.Op, 0, ops[0].RegNum, idx), err

	case vm.OpMoveR:
		return vm.EncodeInstruction(inst.Op, 0, ops[0].RegNum, ops[1].RegNum, 0), nil

	case vm.OpAddR, vm.OpSubR, vm.OpMulR, vm.OpDivR:
		return vm.EncodeInstruction(inst.Op, 0, ops[0].RegNum, ops[1].RegNum, ops[2].RegNum), nil

	// ===== Collector and Control Flow =====
	case vm.OpMark, vm.OpPrint, vm.OpHalt:
		return vm.EncodeInstruction(inst.Op, 0, ops[0].RegNum, 0, 0), nil

	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownOpcode, inst.Op)
	}
}

// ===== Compile helpers =====

func (c *Compiler) addInt(value int64) (uint16, error) {
	if idx, ok := c.intIndex[value]; ok {
		return idx, nil
	}
	if len(c.ints) > math.MaxUint16 {
		return 0, ErrPoolOverflow
	}
	idx := uint16(len(c.ints))
	c.ints = append(c.ints, value)
	c.intIndex[value] = idx
	return idx, nil
}

func (c *Compiler) addName(value string) (uint16, error) {
	if idx, ok := c.nameIndex[value]; ok {
		return idx, nil
	}
	if len(c.names) > math.MaxUint16 {
		return 0, ErrPoolOverflow
	}
	idx := uint16(len(c.names))
	c.names = append(c.names, value)
	c.nameIndex[value] = idx
	return idx, nil
}
