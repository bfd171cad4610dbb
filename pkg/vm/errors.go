package vm

import "errors"

// Error definitions
var (
	ErrNoHalt             = errors.New("program ended without HALT")
	ErrInstructionLimit   = errors.New("instruction limit exceeded")
	ErrInvalidInstruction = errors.New("invalid instruction")
	ErrInvalidRegister    = errors.New("invalid register")
	ErrDivisionByZero     = errors.New("division by zero")

	// Frame management errors
	ErrStackExhausted = errors.New("register file stack exhausted")
	ErrFrameMismatch  = errors.New("frame push/pop mismatch")
	ErrSlotOutOfRange = errors.New("register slot out of range")

	// Variable errors
	ErrUndefinedVariable = errors.New("undefined variable")
	ErrVariableNotReady  = errors.New("variable not ready")
)
