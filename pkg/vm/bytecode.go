package vm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Bytecode file format:
// - Magic: "RFBC" (4 bytes)
// - Version: uint16
// - NumInstructions: uint32
// - Instructions: []uint32
// - PoolLength: uint32
// - Pool: CBOR-encoded constant pool (integers and names)

const (
	BytecodeMagic   = "RFBC"
	BytecodeVersion = 1
)

var (
	ErrInvalidMagic   = errors.New("invalid bytecode magic")
	ErrInvalidVersion = errors.New("unsupported bytecode version")
)

type constantPool struct {
	Ints  []int64  `cbor:"1,keyasint,omitempty"`
	Names []string `cbor:"2,keyasint,omitempty"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// SerializeProgram serializes a Program to bytecode format.
func SerializeProgram(p *Program) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.WriteString(BytecodeMagic)

	if err := binary.Write(buf, binary.LittleEndian, uint16(BytecodeVersion)); err != nil {
		return nil, fmt.Errorf("writing version: %w", err)
	}

	if err := binary.Write(buf, binary.LittleEndian, uint32(len(p.Code))); err != nil {
		return nil, fmt.Errorf("writing instruction count: %w", err)
	}
	for _, inst := range p.Code {
		if err := binary.Write(buf, binary.LittleEndian, uint32(inst)); err != nil {
			return nil, fmt.Errorf("writing instruction: %w", err)
		}
	}

	pool, err := cborEncMode.Marshal(constantPool{Ints: p.Ints, Names: p.Names})
	if err != nil {
		return nil, fmt.Errorf("encoding constant pool: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(pool))); err != nil {
		return nil, fmt.Errorf("writing constant pool length: %w", err)
	}
	buf.Write(pool)

	return buf.Bytes(), nil
}

// DeserializeProgram deserializes bytecode to a Program.
func DeserializeProgram(data []byte) (*Program, error) {
	buf := bytes.NewReader(data)

	magic := make([]byte, 4)
	if _, err := io.ReadFull(buf, magic); err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}
	if string(magic) != BytecodeMagic {
		return nil, ErrInvalidMagic
	}

	var version uint16
	if err := binary.Read(buf, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("reading version: %w", err)
	}
	if version != BytecodeVersion {
		return nil, ErrInvalidVersion
	}

	var numInst uint32
	if err := binary.Read(buf, binary.LittleEndian, &numInst); err != nil {
		return nil, fmt.Errorf("reading instruction count: %w", err)
	}
	if int64(numInst)*4 > int64(buf.Len()) {
		return nil, fmt.Errorf("reading instructions: %w", io.ErrUnexpectedEOF)
	}
	code := make([]Instruction, numInst)
	for i := range code {
		var inst uint32
		if err := binary.Read(buf, binary.LittleEndian, &inst); err != nil {
			return nil, fmt.Errorf("reading instruction %d: %w", i, err)
		}
		code[i] = Instruction(inst)
	}

	var poolLen uint32
	if err := binary.Read(buf, binary.LittleEndian, &poolLen); err != nil {
		return nil, fmt.Errorf("reading constant pool length: %w", err)
	}
	if int64(poolLen) > int64(buf.Len()) {
		return nil, fmt.Errorf("reading constant pool: %w", io.ErrUnexpectedEOF)
	}
	poolBytes := make([]byte, poolLen)
	if _, err := io.ReadFull(buf, poolBytes); err != nil {
		return nil, fmt.Errorf("reading constant pool: %w", err)
	}
	var pool constantPool
	if err := cbor.Unmarshal(poolBytes, &pool); err != nil {
		return nil, fmt.Errorf("decoding constant pool: %w", err)
	}

	return &Program{
		Code:  code,
		Ints:  pool.Ints,
		Names: pool.Names,
	}, nil
}

// WriteProgramFile serializes p to path.
func WriteProgramFile(path string, p *Program) error {
	data, err := SerializeProgram(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ReadProgramFile reads a bytecode file.
func ReadProgramFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DeserializeProgram(data)
}

// Disassemble converts a Program back to assembly source code that the
// assembler accepts.
func Disassemble(p *Program) string {
	var buf strings.Builder

	buf.WriteString("; Disassembled from regfile bytecode\n")
	fmt.Fprintf(&buf, "; %d instructions, %d integers, %d names\n\n",
		len(p.Code), len(p.Ints), len(p.Names))

	for i, inst := range p.Code {
		fmt.Fprintf(&buf, "%-40s ; %04d\n", DisassembleInstruction(inst, p), i)
	}

	return buf.String()
}

// DisassembleInstruction renders one instruction of p.
func DisassembleInstruction(inst Instruction, p *Program) string {
	op := inst.Opcode()
	dst := inst.Dst()
	imm16 := inst.Imm16()
	opName := op.String()

	name := func() string {
		if int(imm16) < len(p.Names) {
			return fmt.Sprintf("%q", p.Names[imm16])
		}
		return fmt.Sprintf("?%d", imm16)
	}

	switch op {
	case OpPushGlobal, OpPopGlobal, OpPushCall, OpPopCall, OpClear, OpNop:
		return opName

	case OpAddGlobals, OpGrow, OpShrink:
		return fmt.Sprintf("%-14s %d", opName, imm16)

	case OpLoadLocal, OpStoreLocal, OpLoadGlobal, OpStoreGlobal:
		return fmt.Sprintf("%-14s R%d, %d", opName, dst, imm16)

	case OpDeclare:
		return fmt.Sprintf("%-14s %s", opName, name())

	case OpGetVar, OpSetVar, OpDeleteVar:
		return fmt.Sprintf("%-14s R%d, %s", opName, dst, name())

	case OpInitVar:
		return fmt.Sprintf("%-14s R%d, %s, %d", opName, dst, name(), inst.Modifier())

	case OpLoadConst:
		if int(imm16) < len(p.Ints) {
			return fmt.Sprintf("%-14s R%d, %d", opName, dst, p.Ints[imm16])
		}
		return fmt.Sprintf("%-14s R%d, ?%d", opName, dst, imm16)

	case OpMoveR:
		return fmt.Sprintf("%-14s R%d, R%d", opName, dst, inst.Src1())

	case OpAddR, OpSubR, OpMulR, OpDivR:
		return fmt.Sprintf("%-14s R%d, R%d, R%d", opName, dst, inst.Src1(), inst.Src2())

	case OpMark, OpPrint, OpHalt:
		return fmt.Sprintf("%-14s R%d", opName, dst)

	default:
		return fmt.Sprintf("; unknown 0x%08x", uint32(inst))
	}
}
