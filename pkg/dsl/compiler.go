package dsl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/akhildatla/regfile/pkg/vm"
)

var (
	ErrSyntax      = errors.New("syntax error")
	ErrTooComplex  = errors.New("expression needs more than 16 registers")
	ErrLocalsLimit = errors.New("too many locals in call frame")
)

// Compile translates script source into frame-machine assembly.
func Compile(source string) (string, error) {
	tokens := NewLexer(source).Tokenize()
	program, err := NewParser(tokens).Parse()
	if err != nil {
		return "", err
	}
	return NewCompiler().Compile(program)
}

// Compiler compiles a script AST to frame-machine assembly code.
//
// Top-level and eval code binds names in the global scope. A call body gets
// a fresh implicit-call register file; its var and const bindings are
// local slots of that file and are invisible to nested eval and call
// blocks, which run in register files of their own.
type Compiler struct {
	output  strings.Builder
	nextReg int
	frames  []*localFrame // nil entry for global code
}

type localFrame struct {
	slots    map[string]int
	readOnly map[string]bool
	size     int
}

// NewCompiler creates a new script compiler.
func NewCompiler() *Compiler {
	return &Compiler{
		frames: []*localFrame{nil},
	}
}

// Compile compiles a script program to assembly code. A program that does
// not end in a top-level return halts with 0.
func (c *Compiler) Compile(program *Program) (string, error) {
	if err := c.compileBlock(program.Statements); err != nil {
		return "", err
	}

	n := len(program.Statements)
	if n == 0 {
		c.emitHaltZero()
	} else if _, ok := program.Statements[n-1].(*ReturnStmt); !ok {
		c.emitHaltZero()
	}

	return c.output.String(), nil
}

func (c *Compiler) compileBlock(stmts []Stmt) error {
	for _, stmt := range stmts {
		c.nextReg = 0
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileStmt(stmt Stmt) error {
	switch s := stmt.(type) {
	case *VarStmt:
		return c.compileVar(s)
	case *AssignStmt:
		return c.compileAssign(s)
	case *PrintStmt:
		return c.compileValueStmt("PRINT", s.Value)
	case *ReturnStmt:
		return c.compileValueStmt("HALT", s.Value)
	case *DeleteStmt:
		c.emit("DELETE_VAR", "R0, %q", s.Name)
		return nil
	case *EvalStmt:
		return c.compileEval(s)
	case *CallStmt:
		return c.compileCall(s)
	default:
		return fmt.Errorf("unknown statement type: %T", stmt)
	}
}

func (c *Compiler) frame() *localFrame {
	return c.frames[len(c.frames)-1]
}

func (c *Compiler) compileVar(stmt *VarStmt) error {
	if f := c.frame(); f != nil {
		return c.compileLocalVar(f, stmt)
	}

	c.emit("DECLARE", "%q", stmt.Name)
	reg, err := c.compileExpr(stmt.Value)
	if err != nil {
		return err
	}
	if stmt.Const {
		c.emit("INIT_VAR", "R%d, %q, %d", reg, stmt.Name, vm.ReadOnly)
	} else {
		c.emit("INIT_VAR", "R%d, %q", reg, stmt.Name)
	}
	return nil
}

func (c *Compiler) compileLocalVar(f *localFrame, stmt *VarStmt) error {
	slot, ok := f.slots[stmt.Name]
	if !ok {
		if f.size > 0xFFFF {
			return fmt.Errorf("line %d: %w", stmt.Line, ErrLocalsLimit)
		}
		slot = f.size
		f.size++
		f.slots[stmt.Name] = slot
		c.emit("GROW", "1")
	}
	f.readOnly[stmt.Name] = stmt.Const

	reg, err := c.compileExpr(stmt.Value)
	if err != nil {
		return err
	}
	c.emit("STORE_LOCAL", "R%d, %d", reg, slot)
	return nil
}

func (c *Compiler) compileAssign(stmt *AssignStmt) error {
	if f := c.frame(); f != nil {
		if slot, ok := f.slots[stmt.Name]; ok {
			if f.readOnly[stmt.Name] {
				// Assigning to a local constant is ignored.
				return nil
			}
			reg, err := c.compileExpr(stmt.Value)
			if err != nil {
				return err
			}
			c.emit("STORE_LOCAL", "R%d, %d", reg, slot)
			return nil
		}
	}

	reg, err := c.compileExpr(stmt.Value)
	if err != nil {
		return err
	}
	c.emit("SET_VAR", "R%d, %q", reg, stmt.Name)
	return nil
}

func (c *Compiler) compileValueStmt(op string, value Expr) error {
	reg, err := c.compileExpr(value)
	if err != nil {
		return err
	}
	c.emit(op, "R%d", reg)
	return nil
}

func (c *Compiler) compileEval(stmt *EvalStmt) error {
	c.emit("PUSH_GLOBAL", "")
	c.frames = append(c.frames, nil)
	if err := c.compileBlock(stmt.Body); err != nil {
		return err
	}
	c.frames = c.frames[:len(c.frames)-1]
	c.emit("POP_GLOBAL", "")
	return nil
}

func (c *Compiler) compileCall(stmt *CallStmt) error {
	c.emit("PUSH_CALL", "")
	c.frames = append(c.frames, &localFrame{
		slots:    make(map[string]int),
		readOnly: make(map[string]bool),
	})
	if err := c.compileBlock(stmt.Body); err != nil {
		return err
	}
	c.frames = c.frames[:len(c.frames)-1]
	c.emit("POP_CALL", "")
	return nil
}

// ===== Expressions =====

func (c *Compiler) compileExpr(expr Expr) (int, error) {
	switch e := expr.(type) {
	case *IntLit:
		return c.compileIntLit(e.Value)
	case *Ident:
		return c.compileIdent(e)
	case *BinaryExpr:
		return c.compileBinary(e)
	case *UnaryExpr:
		return c.compileUnary(e)
	default:
		return 0, fmt.Errorf("unknown expression type: %T", expr)
	}
}

func (c *Compiler) compileIntLit(v int64) (int, error) {
	reg, err := c.allocReg()
	if err != nil {
		return 0, err
	}
	c.emit("LOAD_CONST", "R%d, %d", reg, v)
	return reg, nil
}

func (c *Compiler) compileIdent(e *Ident) (int, error) {
	reg, err := c.allocReg()
	if err != nil {
		return 0, err
	}
	if f := c.frame(); f != nil {
		if slot, ok := f.slots[e.Name]; ok {
			c.emit("LOAD_LOCAL", "R%d, %d", reg, slot)
			return reg, nil
		}
	}
	c.emit("GET_VAR", "R%d, %q", reg, e.Name)
	return reg, nil
}

func (c *Compiler) compileBinary(e *BinaryExpr) (int, error) {
	left, err := c.compileExpr(e.Left)
	if err != nil {
		return 0, err
	}
	right, err := c.compileExpr(e.Right)
	if err != nil {
		return 0, err
	}

	var op string
	switch e.Op {
	case TokenPlus:
		op = "ADD_R"
	case TokenMinus:
		op = "SUB_R"
	case TokenStar:
		op = "MUL_R"
	case TokenSlash:
		op = "DIV_R"
	default:
		return 0, fmt.Errorf("unknown operator: %v", e.Op)
	}

	c.emit(op, "R%d, R%d, R%d", left, left, right)
	c.nextReg = left + 1
	return left, nil
}

func (c *Compiler) compileUnary(e *UnaryExpr) (int, error) {
	if lit, ok := e.Right.(*IntLit); ok {
		return c.compileIntLit(-lit.Value)
	}

	operand, err := c.compileExpr(e.Right)
	if err != nil {
		return 0, err
	}
	zero, err := c.allocReg()
	if err != nil {
		return 0, err
	}
	c.emit("LOAD_CONST", "R%d, 0", zero)
	c.emit("SUB_R", "R%d, R%d, R%d", operand, zero, operand)
	c.nextReg = operand + 1
	return operand, nil
}

// ===== Helpers =====

func (c *Compiler) allocReg() (int, error) {
	if c.nextReg >= vm.NumScalarRegs {
		return 0, ErrTooComplex
	}
	r := c.nextReg
	c.nextReg++
	return r, nil
}

func (c *Compiler) emitHaltZero() {
	c.emit("LOAD_CONST", "R0, 0")
	c.emit("HALT", "R0")
}

func (c *Compiler) emit(op, format string, args ...any) {
	if format == "" {
		c.output.WriteString(op)
	} else {
		fmt.Fprintf(&c.output, "%-14s %s", op, fmt.Sprintf(format, args...))
	}
	c.output.WriteString("\n")
}
