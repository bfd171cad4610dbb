package vm

// Opcode represents a VM instruction opcode.
type Opcode uint8

const (
	// ===== Frame Management (0x00-0x0F) =====
	OpPushGlobal Opcode = 0x00 // begin a top-level evaluation
	OpPopGlobal  Opcode = 0x01 // end a top-level evaluation
	OpPushCall   Opcode = 0x02 // begin an implicit call
	OpPopCall    Opcode = 0x03 // end an implicit call
	OpAddGlobals Opcode = 0x04 // add imm16 global slots
	OpGrow       Opcode = 0x05 // make imm16 more locals live
	OpShrink     Opcode = 0x06 // release imm16 locals
	OpClear      Opcode = 0x07 // clear the active file

	// ===== Slot Access (0x10-0x1F) =====
	OpLoadLocal   Opcode = 0x10 // R[dst] = base[imm16]
	OpStoreLocal  Opcode = 0x11 // base[imm16] = R[dst]
	OpLoadGlobal  Opcode = 0x12 // R[dst] = global[imm16]
	OpStoreGlobal Opcode = 0x13 // global[imm16] = R[dst]

	// ===== Variables (0x20-0x2F) =====
	OpDeclare   Opcode = 0x20 // declare names[imm16] in the global scope
	OpGetVar    Opcode = 0x21 // R[dst] = scope[names[imm16]]
	OpSetVar    Opcode = 0x22 // scope[names[imm16]] = R[dst]
	OpInitVar   Opcode = 0x23 // initialize scope[names[imm16]] = R[dst], attributes in modifier
	OpDeleteVar Opcode = 0x24 // R[dst] = delete scope[names[imm16]]

	// ===== Scalar Operations (0x30-0x3F) =====
	OpLoadConst Opcode = 0x30 // R[dst] = ints[imm16]
	OpMoveR     Opcode = 0x31 // R[dst] = R[src1]
	OpAddR      Opcode = 0x32 // R[dst] = R[src1] + R[src2]
	OpSubR      Opcode = 0x33 // R[dst] = R[src1] - R[src2]
	OpMulR      Opcode = 0x34 // R[dst] = R[src1] * R[src2]
	OpDivR      Opcode = 0x35 // R[dst] = R[src1] / R[src2]

	// ===== Collector (0x40-0x4F) =====
	OpMark Opcode = 0x40 // R[dst] = candidate roots across the stack

	// ===== Control Flow (0xF0-0xFF) =====
	OpPrint Opcode = 0xF0 // append R[dst] to the output
	OpNop   Opcode = 0xFE // no operation
	OpHalt  Opcode = 0xFF // return R[dst]
)

var opcodeNames = map[Opcode]string{
	OpPushGlobal:  "PUSH_GLOBAL",
	OpPopGlobal:   "POP_GLOBAL",
	OpPushCall:    "PUSH_CALL",
	OpPopCall:     "POP_CALL",
	OpAddGlobals:  "ADD_GLOBALS",
	OpGrow:        "GROW",
	OpShrink:      "SHRINK",
	OpClear:       "CLEAR",
	OpLoadLocal:   "LOAD_LOCAL",
	OpStoreLocal:  "STORE_LOCAL",
	OpLoadGlobal:  "LOAD_GLOBAL",
	OpStoreGlobal: "STORE_GLOBAL",
	OpDeclare:     "DECLARE",
	OpGetVar:      "GET_VAR",
	OpSetVar:      "SET_VAR",
	OpInitVar:     "INIT_VAR",
	OpDeleteVar:   "DELETE_VAR",
	OpLoadConst:   "LOAD_CONST",
	OpMoveR:       "MOVE_R",
	OpAddR:        "ADD_R",
	OpSubR:        "SUB_R",
	OpMulR:        "MUL_R",
	OpDivR:        "DIV_R",
	OpMark:        "MARK",
	OpPrint:       "PRINT",
	OpNop:         "NOP",
	OpHalt:        "HALT",
}

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		m[name] = op
	}
	return m
}()

// String returns the mnemonic for the opcode.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// OpcodeFromString returns the opcode for the given mnemonic.
func OpcodeFromString(s string) (Opcode, bool) {
	op, ok := opcodesByName[s]
	return op, ok
}
