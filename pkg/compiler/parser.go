package compiler

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/akhildatla/regfile/pkg/vm"
)

// OperandType represents the type of an operand.
type OperandType uint8

const (
	OperandRegR OperandType = iota
	OperandInt
	OperandString
)

// String returns the operand kind as used in error messages.
func (t OperandType) String() string {
	switch t {
	case OperandRegR:
		return "register"
	case OperandInt:
		return "integer"
	case OperandString:
		return "name"
	default:
		return "unknown"
	}
}

// Operand represents an instruction operand.
type Operand struct {
	Type   OperandType
	RegNum uint8  // For registers
	IntVal int64  // For integer literals
	StrVal string // For names
}

// AsmInstruction is one parsed instruction whose operands already match
// the opcode's shape.
type AsmInstruction struct {
	Op       vm.Opcode
	Operands []Operand
	Line     int
}

// AsmProgram represents a parsed assembly program.
type AsmProgram struct {
	Instructions []AsmInstruction
}

// slot describes what one operand position accepts. Integer slots carry
// the range the encoding can hold.
type slot struct {
	typ      OperandType
	min, max int64
}

var (
	regSlot   = slot{typ: OperandRegR}
	nameSlot  = slot{typ: OperandString}
	countSlot = slot{typ: OperandInt, min: 0, max: math.MaxUint16}
	attrSlot  = slot{typ: OperandInt, min: 0, max: 0xF}
	constSlot = slot{typ: OperandInt, min: math.MinInt64, max: math.MaxInt64}
)

// shape lists an opcode's operands. The last optional slots may be left
// off.
type shape struct {
	slots    []slot
	optional int
}

var shapes = map[vm.Opcode]shape{
	vm.OpPushGlobal: {},
	vm.OpPopGlobal:  {},
	vm.OpPushCall:   {},
	vm.OpPopCall:    {},
	vm.OpClear:      {},
	vm.OpNop:        {},

	vm.OpAddGlobals: {slots: []slot{countSlot}},
	vm.OpGrow:       {slots: []slot{countSlot}},
	vm.OpShrink:     {slots: []slot{countSlot}},

	vm.OpLoadLocal:   {slots: []slot{regSlot, countSlot}},
	vm.OpStoreLocal:  {slots: []slot{regSlot, countSlot}},
	vm.OpLoadGlobal:  {slots: []slot{regSlot, countSlot}},
	vm.OpStoreGlobal: {slots: []slot{regSlot, countSlot}},

	vm.OpDeclare:   {slots: []slot{nameSlot}},
	vm.OpGetVar:    {slots: []slot{regSlot, nameSlot}},
	vm.OpSetVar:    {slots: []slot{regSlot, nameSlot}},
	vm.OpDeleteVar: {slots: []slot{regSlot, nameSlot}},
	vm.OpInitVar:   {slots: []slot{regSlot, nameSlot, attrSlot}, optional: 1},

	vm.OpLoadConst: {slots: []slot{regSlot, constSlot}},
	vm.OpMoveR:     {slots: []slot{regSlot, regSlot}},
	vm.OpAddR:      {slots: []slot{regSlot, regSlot, regSlot}},
	vm.OpSubR:      {slots: []slot{regSlot, regSlot, regSlot}},
	vm.OpMulR:      {slots: []slot{regSlot, regSlot, regSlot}},
	vm.OpDivR:      {slots: []slot{regSlot, regSlot, regSlot}},

	vm.OpMark:  {slots: []slot{regSlot}},
	vm.OpPrint: {slots: []slot{regSlot}},
	vm.OpHalt:  {slots: []slot{regSlot}},
}

func (s shape) check(operands []Operand) error {
	required := len(s.slots) - s.optional
	if n := len(operands); n < required || n > len(s.slots) {
		return fmt.Errorf("%w: expected %s, got %d", ErrOperand, s.count(), n)
	}
	for i, op := range operands {
		want := s.slots[i]
		if op.Type != want.typ {
			return fmt.Errorf("%w: operand %d: expected %s, got %s", ErrOperand, i+1, want.typ, op.Type)
		}
		if want.typ == OperandInt && (op.IntVal < want.min || op.IntVal > want.max) {
			return fmt.Errorf("%w: operand %d: %d out of range %d-%d", ErrOperand, i+1, op.IntVal, want.min, want.max)
		}
	}
	return nil
}

func (s shape) count() string {
	n := len(s.slots)
	switch {
	case s.optional > 0:
		return fmt.Sprintf("%d to %d operands", n-s.optional, n)
	case n == 1:
		return "1 operand"
	default:
		return fmt.Sprintf("%d operands", n)
	}
}

// Parser parses frame-machine assembly source code. One instruction sits
// on each line, its operands separated by commas.
type Parser struct {
	tokens []Token
	pos    int
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	return &Parser{tokens: NewLexer(input).Tokenize()}
}

// Parse parses the entire input and returns the program. Errors carry the
// line they were found on.
func (p *Parser) Parse() (*AsmProgram, error) {
	program := &AsmProgram{}
	for {
		tok := p.next()
		switch tok.Type {
		case TokenEOF:
			return program, nil
		case TokenNewline:
			continue
		case TokenIdent:
			inst, err := p.instruction(tok)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", tok.Line, err)
			}
			program.Instructions = append(program.Instructions, inst)
		default:
			return nil, fmt.Errorf("line %d: expected opcode, got %s", tok.Line, describe(tok))
		}
	}
}

func (p *Parser) next() Token {
	tok := p.tokens[p.pos]
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *Parser) peek() Token { return p.tokens[p.pos] }

func (p *Parser) atLineEnd() bool {
	t := p.peek().Type
	return t == TokenNewline || t == TokenEOF
}

func (p *Parser) instruction(head Token) (AsmInstruction, error) {
	op, ok := vm.OpcodeFromString(strings.ToUpper(head.Value))
	if !ok {
		return AsmInstruction{}, fmt.Errorf("%w: %s", ErrUnknownOpcode, head.Value)
	}
	inst := AsmInstruction{Op: op, Line: head.Line}

	for !p.atLineEnd() {
		if len(inst.Operands) > 0 {
			if tok := p.next(); tok.Type != TokenComma {
				return inst, fmt.Errorf("expected comma between operands, got %s", describe(tok))
			}
		}
		operand, err := p.operand()
		if err != nil {
			return inst, err
		}
		inst.Operands = append(inst.Operands, operand)
	}

	if err := shapes[op].check(inst.Operands); err != nil {
		return inst, err
	}
	return inst, nil
}

func (p *Parser) operand() (Operand, error) {
	tok := p.next()
	switch tok.Type {
	case TokenRegR:
		n, err := strconv.ParseUint(tok.Value[1:], 10, 8)
		if err != nil || n >= vm.NumScalarRegs {
			return Operand{}, fmt.Errorf("%w: %s", vm.ErrInvalidRegister, tok.Value)
		}
		return Operand{Type: OperandRegR, RegNum: uint8(n)}, nil

	case TokenInt:
		v, err := parseInt(tok.Value)
		if err != nil {
			return Operand{}, fmt.Errorf("%w: integer %s does not fit in 64 bits", ErrOperand, tok.Value)
		}
		return Operand{Type: OperandInt, IntVal: v}, nil

	case TokenString:
		return Operand{Type: OperandString, StrVal: tok.Value}, nil

	default:
		return Operand{}, fmt.Errorf("expected operand, got %s", describe(tok))
	}
}

// parseInt accepts the literals the lexer produces: decimal or 0x hex with
// an optional minus.
func parseInt(lit string) (int64, error) {
	digits, neg := strings.CutPrefix(lit, "-")
	base := 10
	if rest, ok := strings.CutPrefix(strings.ToLower(digits), "0x"); ok {
		digits, base = rest, 16
	}
	if neg {
		digits = "-" + digits
	}
	return strconv.ParseInt(digits, base, 64)
}

func describe(tok Token) string {
	switch tok.Type {
	case TokenEOF, TokenNewline:
		return "end of line"
	case TokenIllegal:
		return fmt.Sprintf("%q (%s)", tok.Value, tok.Err)
	default:
		return fmt.Sprintf("%s %q", tok.Type, tok.Value)
	}
}
