package dsl

import (
	"fmt"
	"strconv"
)

// Parser parses script tokens into an AST.
type Parser struct {
	tokens []Token
	pos    int
	errors []error
}

// NewParser creates a new parser for the given tokens.
func NewParser(tokens []Token) *Parser {
	return &Parser{
		tokens: tokens,
		pos:    0,
		errors: []error{},
	}
}

// Parse parses the tokens into a Program AST.
func (p *Parser) Parse() (*Program, error) {
	program := &Program{
		Statements: []Stmt{},
	}

	for !p.isAtEnd() {
		p.skipSeparators()
		if p.isAtEnd() {
			break
		}

		stmt := p.parseStatement()
		if len(p.errors) > 0 {
			return nil, p.errors[0]
		}
		program.Statements = append(program.Statements, stmt)
		p.endStatement()
		if len(p.errors) > 0 {
			return nil, p.errors[0]
		}
	}

	return program, nil
}

func (p *Parser) parseStatement() Stmt {
	switch {
	case p.check(TokenVar), p.check(TokenConst):
		return p.parseVarStmt()

	case p.check(TokenPrint):
		p.advance()
		return &PrintStmt{Value: p.parseExpression()}

	case p.check(TokenEval):
		p.advance()
		return &EvalStmt{Body: p.parseBlock()}

	case p.check(TokenCall):
		p.advance()
		return &CallStmt{Body: p.parseBlock()}

	case p.check(TokenReturn):
		p.advance()
		return &ReturnStmt{Value: p.parseExpression()}

	case p.check(TokenDelete):
		p.advance()
		return &DeleteStmt{Name: p.expect(TokenIdent).Value}

	case p.check(TokenIdent) && p.peekNext().Type == TokenAssign:
		tok := p.advance()
		p.advance() // consume '='
		return &AssignStmt{Name: tok.Value, Value: p.parseExpression(), Line: tok.Line}

	default:
		p.error(unexpected(p.peek()))
		return nil
	}
}

func (p *Parser) parseVarStmt() *VarStmt {
	kw := p.advance()
	name := p.expect(TokenIdent).Value
	p.expect(TokenAssign)
	return &VarStmt{
		Name:  name,
		Value: p.parseExpression(),
		Const: kw.Type == TokenConst,
		Line:  kw.Line,
	}
}

func (p *Parser) parseBlock() []Stmt {
	p.expect(TokenLBrace)
	body := []Stmt{}

	for len(p.errors) == 0 {
		p.skipSeparators()
		if p.check(TokenRBrace) {
			p.advance()
			return body
		}
		if p.isAtEnd() {
			p.error("unterminated block")
			return body
		}
		body = append(body, p.parseStatement())
		if len(p.errors) == 0 {
			p.endStatement()
		}
	}
	return body
}

// endStatement requires a separator, a closing brace or the end of input.
func (p *Parser) endStatement() {
	switch p.peek().Type {
	case TokenNewline, TokenSemicolon:
		p.advance()
	case TokenRBrace, TokenEOF:
	default:
		p.error(fmt.Sprintf("expected end of statement, got %v", p.peek()))
	}
}

func (p *Parser) parseExpression() Expr {
	return p.parseAdditive()
}

func (p *Parser) parseAdditive() Expr {
	left := p.parseMultiplicative()

	for p.check(TokenPlus) || p.check(TokenMinus) {
		op := p.advance().Type
		right := p.parseMultiplicative()
		left = &BinaryExpr{Left: left, Op: op, Right: right}
	}

	return left
}

func (p *Parser) parseMultiplicative() Expr {
	left := p.parseUnary()

	for p.check(TokenStar) || p.check(TokenSlash) {
		op := p.advance().Type
		right := p.parseUnary()
		left = &BinaryExpr{Left: left, Op: op, Right: right}
	}

	return left
}

func (p *Parser) parseUnary() Expr {
	if p.check(TokenMinus) {
		op := p.advance().Type
		right := p.parseUnary()
		return &UnaryExpr{Op: op, Right: right}
	}

	return p.parsePrimary()
}

func (p *Parser) parsePrimary() Expr {
	switch {
	case p.check(TokenInt):
		tok := p.advance()
		val, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			p.errorAt(tok, fmt.Sprintf("integer out of range: %s", tok.Value))
		}
		return &IntLit{Value: val}

	case p.check(TokenIdent):
		return &Ident{Name: p.advance().Value}

	case p.check(TokenLParen):
		p.advance()
		expr := p.parseExpression()
		p.expect(TokenRParen)
		return expr

	default:
		p.error(unexpected(p.peek()))
		return nil
	}
}

// Helper methods

func unexpected(tok Token) string {
	if tok.Type == TokenIllegal {
		return fmt.Sprintf("%s: %q", tok.Err, tok.Value)
	}
	return fmt.Sprintf("unexpected token: %v", tok)
}

func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekNext() Token {
	if p.pos+1 >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos+1]
}

func (p *Parser) advance() Token {
	if !p.isAtEnd() {
		p.pos++
		return p.tokens[p.pos-1]
	}
	return p.peek()
}

func (p *Parser) check(t TokenType) bool {
	return p.peek().Type == t
}

func (p *Parser) expect(t TokenType) Token {
	if p.check(t) {
		return p.advance()
	}
	p.error(fmt.Sprintf("expected %v, got %v", t, p.peek().Type))
	return Token{}
}

func (p *Parser) isAtEnd() bool {
	return p.peek().Type == TokenEOF
}

func (p *Parser) skipSeparators() {
	for p.check(TokenNewline) || p.check(TokenSemicolon) {
		p.advance()
	}
}

func (p *Parser) error(msg string) {
	p.errorAt(p.peek(), msg)
	p.advance() // Skip problematic token
}

func (p *Parser) errorAt(tok Token, msg string) {
	p.errors = append(p.errors, fmt.Errorf("%w: line %d, col %d: %s", ErrSyntax, tok.Line, tok.Col, msg))
}
