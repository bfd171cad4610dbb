package vm

// Instruction represents a 32-bit encoded instruction.
//
// Layout:
// ┌─────────┬──────────┬─────┬──────┬──────┬─────────┐
// │ opcode  │ modifier │ dst │ src1 │ src2 │  imm8   │
// │ 8 bits  │  4 bits  │4 bit│4 bits│4 bits│ 8 bits  │
// └─────────┴──────────┴─────┴──────┴──────┴─────────┘
//
// Slot, constant and name operands use the low 16 bits as one immediate:
// ┌─────────┬──────────┬─────┬──────────────────────┐
// │ opcode  │ modifier │ dst │       imm16          │
// │ 8 bits  │  4 bits  │4 bit│       16 bits        │
// └─────────┴──────────┴─────┴──────────────────────┘
type Instruction uint32

// EncodeInstruction packs an instruction that uses register operands.
func EncodeInstruction(opcode Opcode, modifier, dst, src1, src2 uint8) Instruction {
	return Instruction(uint32(opcode)<<24 |
		uint32(modifier&0xF)<<20 |
		uint32(dst&0xF)<<16 |
		uint32(src1&0xF)<<12 |
		uint32(src2&0xF)<<8)
}

// EncodeImmediate packs an instruction that uses a 16-bit immediate.
func EncodeImmediate(opcode Opcode, modifier, dst uint8, imm16 uint16) Instruction {
	return Instruction(uint32(opcode)<<24 |
		uint32(modifier&0xF)<<20 |
		uint32(dst&0xF)<<16 |
		uint32(imm16))
}

// Opcode returns the opcode (bits 31-24).
func (i Instruction) Opcode() Opcode {
	return Opcode(i >> 24)
}

// Modifier returns the modifier (bits 23-20).
func (i Instruction) Modifier() uint8 {
	return uint8((i >> 20) & 0xF)
}

// Dst returns the destination register (bits 19-16).
func (i Instruction) Dst() uint8 {
	return uint8((i >> 16) & 0xF)
}

// Src1 returns the first source register (bits 15-12).
func (i Instruction) Src1() uint8 {
	return uint8((i >> 12) & 0xF)
}

// Src2 returns the second source register (bits 11-8).
func (i Instruction) Src2() uint8 {
	return uint8((i >> 8) & 0xF)
}

// Imm16 returns the 16-bit immediate value (bits 15-0).
func (i Instruction) Imm16() uint16 {
	return uint16(i & 0xFFFF)
}

// String returns a human-readable representation of the instruction.
func (i Instruction) String() string {
	return i.Opcode().String()
}
