package dsl

import "fmt"

// TokenType represents the type of a script token.
type TokenType uint8

const (
	TokenEOF TokenType = iota
	TokenNewline
	TokenIdent // variable names
	TokenInt   // integer literals

	// Operators
	TokenAssign // =
	TokenPlus   // +
	TokenMinus  // -
	TokenStar   // *
	TokenSlash  // /

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBrace    // {
	TokenRBrace    // }
	TokenSemicolon // ;

	// Keywords
	TokenVar    // var
	TokenConst  // const
	TokenPrint  // print
	TokenEval   // eval
	TokenCall   // call
	TokenReturn // return
	TokenDelete // delete

	TokenIllegal
)

// String returns the string representation of a token type.
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenNewline:
		return "NEWLINE"
	case TokenIdent:
		return "IDENT"
	case TokenInt:
		return "INT"
	case TokenAssign:
		return "="
	case TokenPlus:
		return "+"
	case TokenMinus:
		return "-"
	case TokenStar:
		return "*"
	case TokenSlash:
		return "/"
	case TokenLParen:
		return "("
	case TokenRParen:
		return ")"
	case TokenLBrace:
		return "{"
	case TokenRBrace:
		return "}"
	case TokenSemicolon:
		return ";"
	case TokenVar:
		return "VAR"
	case TokenConst:
		return "CONST"
	case TokenPrint:
		return "PRINT"
	case TokenEval:
		return "EVAL"
	case TokenCall:
		return "CALL"
	case TokenReturn:
		return "RETURN"
	case TokenDelete:
		return "DELETE"
	case TokenIllegal:
		return "ILLEGAL"
	default:
		return "UNKNOWN"
	}
}

// Token represents a lexical token. Err says why an illegal token was
// rejected.
type Token struct {
	Type  TokenType
	Value string
	Line  int
	Col   int
	Err   string
}

// String returns a human-readable representation of the token for debugging.
func (t Token) String() string {
	if t.Value != "" {
		return fmt.Sprintf("%s(%s)@%d:%d", t.Type, t.Value, t.Line, t.Col)
	}
	return fmt.Sprintf("%s@%d:%d", t.Type, t.Line, t.Col)
}

// keywords maps keyword strings to token types.
var keywords = map[string]TokenType{
	"var":    TokenVar,
	"let":    TokenVar, // alias
	"const":  TokenConst,
	"print":  TokenPrint,
	"eval":   TokenEval,
	"call":   TokenCall,
	"return": TokenReturn,
	"delete": TokenDelete,
}

// LookupIdent returns the token type for an identifier.
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return TokenIdent
}
