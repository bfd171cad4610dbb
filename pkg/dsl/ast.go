package dsl

// Node is the interface implemented by all AST nodes.
type Node interface {
	node()
}

// Expr is the interface implemented by all expression nodes.
type Expr interface {
	Node
	expr()
}

// Stmt is the interface implemented by all statement nodes.
type Stmt interface {
	Node
	stmt()
}

// Program represents a complete script.
type Program struct {
	Statements []Stmt
}

func (*Program) node() {}

// ===== Statements =====

// VarStmt declares a variable.
// Example: var x = 1, const k = 7
type VarStmt struct {
	Name  string
	Value Expr
	Const bool
	Line  int
}

func (*VarStmt) node() {}
func (*VarStmt) stmt() {}

// AssignStmt represents an assignment to an existing name.
// Example: x = x + 2
type AssignStmt struct {
	Name  string
	Value Expr
	Line  int
}

func (*AssignStmt) node() {}
func (*AssignStmt) stmt() {}

// PrintStmt appends a value to the program output.
type PrintStmt struct {
	Value Expr
}

func (*PrintStmt) node() {}
func (*PrintStmt) stmt() {}

// EvalStmt runs its body as a nested global evaluation.
// Example: eval { var y = x }
type EvalStmt struct {
	Body []Stmt
}

func (*EvalStmt) node() {}
func (*EvalStmt) stmt() {}

// CallStmt runs its body in an implicit call frame with its own locals.
// Example: call { var t = 3 }
type CallStmt struct {
	Body []Stmt
}

func (*CallStmt) node() {}
func (*CallStmt) stmt() {}

// ReturnStmt ends the program with a value.
type ReturnStmt struct {
	Value Expr
}

func (*ReturnStmt) node() {}
func (*ReturnStmt) stmt() {}

// DeleteStmt removes a dynamic global property.
type DeleteStmt struct {
	Name string
}

func (*DeleteStmt) node() {}
func (*DeleteStmt) stmt() {}

// ===== Expressions =====

// Ident represents an identifier.
type Ident struct {
	Name string
}

func (*Ident) node() {}
func (*Ident) expr() {}

// IntLit represents an integer literal.
type IntLit struct {
	Value int64
}

func (*IntLit) node() {}
func (*IntLit) expr() {}

// BinaryExpr represents a binary operation.
type BinaryExpr struct {
	Left  Expr
	Op    TokenType
	Right Expr
}

func (*BinaryExpr) node() {}
func (*BinaryExpr) expr() {}

// UnaryExpr represents a unary negation.
type UnaryExpr struct {
	Op    TokenType
	Right Expr
}

func (*UnaryExpr) node() {}
func (*UnaryExpr) expr() {}
