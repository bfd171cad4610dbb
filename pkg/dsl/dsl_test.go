package dsl

import (
	"errors"
	"strings"
	"testing"

	"github.com/akhildatla/regfile/pkg/compiler"
	"github.com/akhildatla/regfile/pkg/vm"
)

func TestLexer_BasicTokens(t *testing.T) {
	input := `var x = (1 + 2) * y`

	tokens := NewLexer(input).Tokenize()

	expected := []TokenType{
		TokenVar,
		TokenIdent,
		TokenAssign,
		TokenLParen,
		TokenInt,
		TokenPlus,
		TokenInt,
		TokenRParen,
		TokenStar,
		TokenIdent,
		TokenEOF,
	}

	if len(tokens) != len(expected) {
		t.Fatalf("expected %d tokens, got %d: %v", len(expected), len(tokens), tokens)
	}
	for i, exp := range expected {
		if tokens[i].Type != exp {
			t.Errorf("token %d: expected %v, got %v", i, exp, tokens[i].Type)
		}
	}
}

func TestLexer_Keywords(t *testing.T) {
	tests := []struct {
		input    string
		expected TokenType
	}{
		{"var", TokenVar},
		{"let", TokenVar},
		{"const", TokenConst},
		{"print", TokenPrint},
		{"eval", TokenEval},
		{"call", TokenCall},
		{"return", TokenReturn},
		{"delete", TokenDelete},
		{"variable", TokenIdent},
		{"_tmp1", TokenIdent},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens := NewLexer(tt.input).Tokenize()
			if tokens[0].Type != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, tokens[0].Type)
			}
		})
	}
}

func TestLexer_CommentsAndPositions(t *testing.T) {
	input := "# header\nx = 1 // trailing\n  y"

	tokens := NewLexer(input).Tokenize()

	var kinds []TokenType
	for _, tok := range tokens {
		kinds = append(kinds, tok.Type)
	}
	expected := []TokenType{TokenNewline, TokenIdent, TokenAssign, TokenInt, TokenNewline, TokenIdent, TokenEOF}
	if len(kinds) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, kinds)
	}
	for i := range expected {
		if kinds[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, kinds)
		}
	}

	y := tokens[5]
	if y.Line != 3 || y.Col != 3 {
		t.Errorf("expected y at 3:3, got %d:%d", y.Line, y.Col)
	}
}

func TestLexer_Illegal(t *testing.T) {
	tokens := NewLexer("x = @").Tokenize()
	if tokens[2].Type != TokenIllegal {
		t.Errorf("expected ILLEGAL, got %v", tokens[2].Type)
	}
}

func TestLexer_BlockComments(t *testing.T) {
	tokens := NewLexer("x = 1 /* one\ntwo */ y = 2 /* inline */ ; z").Tokenize()

	var kinds []TokenType
	for _, tok := range tokens {
		kinds = append(kinds, tok.Type)
	}
	expected := []TokenType{
		TokenIdent, TokenAssign, TokenInt, TokenNewline,
		TokenIdent, TokenAssign, TokenInt, TokenSemicolon,
		TokenIdent, TokenEOF,
	}
	if len(kinds) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, kinds)
	}
	for i := range expected {
		if kinds[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, kinds)
		}
	}

	z := tokens[8]
	if z.Line != 2 || z.Col != 29 {
		t.Errorf("expected z at 2:29, got %d:%d", z.Line, z.Col)
	}
}

func TestLexer_IllegalReasons(t *testing.T) {
	tests := []struct {
		input  string
		value  string
		reason string
	}{
		{"x = @", "@", "unexpected character"},
		{"x = 12ab", "12ab", "malformed number"},
		{"x = 1 /* open", "/* open", "unterminated comment"},
	}
	for _, tt := range tests {
		tokens := NewLexer(tt.input).Tokenize()
		var got *Token
		for i := range tokens {
			if tokens[i].Type == TokenIllegal {
				got = &tokens[i]
				break
			}
		}
		if got == nil {
			t.Errorf("%q: expected an illegal token", tt.input)
			continue
		}
		if got.Value != tt.value || got.Err != tt.reason {
			t.Errorf("%q: expected %q (%s), got %q (%s)", tt.input, tt.value, tt.reason, got.Value, got.Err)
		}
	}
}

func TestLexer_UnicodeIdentifiers(t *testing.T) {
	tokens := NewLexer("größe = 1").Tokenize()
	if tokens[0].Type != TokenIdent || tokens[0].Value != "größe" {
		t.Fatalf("expected IDENT größe, got %v", tokens[0])
	}
	if tokens[1].Col != 7 {
		t.Errorf("expected = at column 7, got %d", tokens[1].Col)
	}
}

func TestParser_Statements(t *testing.T) {
	input := `
var a = 1
const k = 2; a = a + k
print a
delete gone
eval {
	var b = 3
}
call { var t = 4; return t }
`
	tokens := NewLexer(input).Tokenize()
	program, err := NewParser(tokens).Parse()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	if len(program.Statements) != 7 {
		t.Fatalf("expected 7 statements, got %d", len(program.Statements))
	}

	if v, ok := program.Statements[0].(*VarStmt); !ok || v.Name != "a" || v.Const {
		t.Errorf("statement 0: expected var a, got %#v", program.Statements[0])
	}
	if v, ok := program.Statements[1].(*VarStmt); !ok || v.Name != "k" || !v.Const {
		t.Errorf("statement 1: expected const k, got %#v", program.Statements[1])
	}
	if _, ok := program.Statements[2].(*AssignStmt); !ok {
		t.Errorf("statement 2: expected assignment, got %T", program.Statements[2])
	}
	if _, ok := program.Statements[3].(*PrintStmt); !ok {
		t.Errorf("statement 3: expected print, got %T", program.Statements[3])
	}
	if d, ok := program.Statements[4].(*DeleteStmt); !ok || d.Name != "gone" {
		t.Errorf("statement 4: expected delete gone, got %#v", program.Statements[4])
	}
	if e, ok := program.Statements[5].(*EvalStmt); !ok || len(e.Body) != 1 {
		t.Errorf("statement 5: expected eval with 1 statement, got %#v", program.Statements[5])
	}
	if c, ok := program.Statements[6].(*CallStmt); !ok || len(c.Body) != 2 {
		t.Errorf("statement 6: expected call with 2 statements, got %#v", program.Statements[6])
	}
}

func TestParser_Precedence(t *testing.T) {
	tokens := NewLexer("x = 1 + 2 * -3").Tokenize()
	program, err := NewParser(tokens).Parse()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	assign := program.Statements[0].(*AssignStmt)
	add, ok := assign.Value.(*BinaryExpr)
	if !ok || add.Op != TokenPlus {
		t.Fatalf("expected + at the root, got %#v", assign.Value)
	}
	mul, ok := add.Right.(*BinaryExpr)
	if !ok || mul.Op != TokenStar {
		t.Fatalf("expected * on the right, got %#v", add.Right)
	}
	if _, ok := mul.Right.(*UnaryExpr); !ok {
		t.Errorf("expected unary minus, got %#v", mul.Right)
	}
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing value", "var x ="},
		{"missing name", "var = 1"},
		{"two expressions", "print 1 2"},
		{"unterminated block", "eval { var x = 1"},
		{"unbalanced paren", "print (1 + 2"},
		{"bare expression", "1 + 2"},
		{"illegal token", "x = @"},
		{"malformed number", "x = 3x"},
		{"integer overflow", "x = 99999999999999999999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := NewLexer(tt.input).Tokenize()
			_, err := NewParser(tokens).Parse()
			if err == nil {
				t.Fatalf("expected error for %q", tt.input)
			}
			if !errors.Is(err, ErrSyntax) {
				t.Errorf("expected ErrSyntax, got %v", err)
			}
		})
	}
}

func TestCompiler_GlobalVar(t *testing.T) {
	asm, err := Compile("const k = 7")
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	expected := []string{
		`DECLARE        "k"`,
		`LOAD_CONST     R0, 7`,
		`INIT_VAR       R0, "k", 1`,
		`LOAD_CONST     R0, 0`,
		`HALT           R0`,
	}
	lines := strings.Split(strings.TrimSpace(asm), "\n")
	if len(lines) != len(expected) {
		t.Fatalf("expected %d lines, got %d:\n%s", len(expected), len(lines), asm)
	}
	for i := range expected {
		if lines[i] != expected[i] {
			t.Errorf("line %d: expected %q, got %q", i, expected[i], lines[i])
		}
	}
}

func TestCompiler_CallLocals(t *testing.T) {
	asm, err := Compile("call { var t = 1; t = t + g }")
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	for _, want := range []string{
		"PUSH_CALL",
		"GROW           1",
		"STORE_LOCAL    R0, 0",
		"LOAD_LOCAL     R0, 0",
		`GET_VAR        R1, "g"`,
		"ADD_R          R0, R0, R1",
		"POP_CALL",
	} {
		if !strings.Contains(asm, want) {
			t.Errorf("expected %q in:\n%s", want, asm)
		}
	}
	if strings.Contains(asm, "DECLARE") {
		t.Errorf("call locals must not be declared globally:\n%s", asm)
	}
}

func TestCompiler_ExplicitReturn(t *testing.T) {
	asm, err := Compile("return 3")
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	if strings.Count(asm, "HALT") != 1 {
		t.Errorf("expected a single HALT:\n%s", asm)
	}
}

func TestCompiler_TooComplex(t *testing.T) {
	// 1 + (1 + (1 + ...)) keeps every left operand live.
	expr := strings.Repeat("1 + (", 20) + "1" + strings.Repeat(")", 20)

	_, err := Compile("print " + expr)
	if !errors.Is(err, ErrTooComplex) {
		t.Fatalf("expected ErrTooComplex, got %v", err)
	}
}

// run compiles a script down to bytecode and executes it.
func run(t *testing.T, source string) (int64, []int64, *vm.VM) {
	t.Helper()

	asm, err := Compile(source)
	if err != nil {
		t.Fatalf("script compile error: %v", err)
	}
	program, err := compiler.Compile(asm)
	if err != nil {
		t.Fatalf("assembly compile error: %v\n%s", err, asm)
	}

	machine := vm.NewVM()
	if err := machine.Load(program); err != nil {
		t.Fatalf("load error: %v", err)
	}
	result, err := machine.Execute()
	if err != nil {
		t.Fatalf("execute error: %v\n%s", err, asm)
	}
	return result, machine.Output(), machine
}

func TestEndToEnd_Arithmetic(t *testing.T) {
	result, _, _ := run(t, `
var a = 6
var b = a * 7 - 2
return b / -(1 + 1)
`)
	if result != -20 {
		t.Errorf("expected -20, got %d", result)
	}
}

func TestEndToEnd_EvalSharesGlobals(t *testing.T) {
	result, out, machine := run(t, `
var x = 1
eval {
	var y = x + 1
	x = 10
	eval { var z = y * 2; print z }
}
print x
return x + y + z
`)
	if result != 10+2+4 {
		t.Errorf("expected 16, got %d", result)
	}
	if len(out) != 2 || out[0] != 4 || out[1] != 10 {
		t.Errorf("unexpected output %v", out)
	}
	if machine.Stack().Len() != 1 {
		t.Errorf("expected one register file after the run, got %d", machine.Stack().Len())
	}
}

func TestEndToEnd_CallLocalsAreScoped(t *testing.T) {
	result, out, _ := run(t, `
var g = 5
call {
	var t = g * 2
	const c = 1
	c = 99
	t = t + c
	print t
	g = t
	call { var t = 100; print t }
	eval { var fromEval = g }
}
return g + fromEval
`)
	if result != 22 {
		t.Errorf("expected 22, got %d", result)
	}
	if len(out) != 2 || out[0] != 11 || out[1] != 100 {
		t.Errorf("unexpected output %v", out)
	}
}

func TestEndToEnd_ConstAndDelete(t *testing.T) {
	result, _, machine := run(t, `
const k = 7
k = 1
dyn = 3
delete dyn
return k
`)
	if result != 7 {
		t.Errorf("expected 7, got %d", result)
	}
	if machine.Globals().Has("dyn") {
		t.Error("expected dyn to be deleted")
	}
}

func TestEndToEnd_ImplicitHalt(t *testing.T) {
	result, out, _ := run(t, "print 1\nprint 2")
	if result != 0 {
		t.Errorf("expected 0, got %d", result)
	}
	if len(out) != 2 {
		t.Errorf("expected 2 printed values, got %v", out)
	}
}

func TestEndToEnd_NestedEvalInsideCall(t *testing.T) {
	result, _, machine := run(t, `
call { eval { eval { var z = 1 } } }
return z
`)
	if result != 1 {
		t.Errorf("expected 1, got %d", result)
	}
	if machine.Stack().Len() != 1 {
		t.Errorf("expected one register file after the run, got %d", machine.Stack().Len())
	}
}

func TestEndToEnd_NestedEvalKeepsOuterLocals(t *testing.T) {
	result, out, _ := run(t, `
call {
	var t = 3
	eval { eval { var inner = 4 } }
	print t
}
return inner
`)
	if result != 4 {
		t.Errorf("expected 4, got %d", result)
	}
	if len(out) != 1 || out[0] != 3 {
		t.Errorf("unexpected output %v", out)
	}
}
