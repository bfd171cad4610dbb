package dsl

import (
	"unicode"
	"unicode/utf8"
)

const eof = -1

// punctuation maps the single-character tokens to their types.
var punctuation = map[rune]TokenType{
	'=': TokenAssign,
	'+': TokenPlus,
	'-': TokenMinus,
	'*': TokenStar,
	'/': TokenSlash,
	'(': TokenLParen,
	')': TokenRParen,
	'{': TokenLBrace,
	'}': TokenRBrace,
	';': TokenSemicolon,
}

// Lexer tokenizes script source code. Line comments start with # or //
// and block comments sit between /* and */. A block comment spanning lines
// ends the statement like a newline does.
type Lexer struct {
	src       string
	pos       int
	line, col int // position of src[pos]

	// start of the token being scanned
	start, startLine, startCol int

	tokens []Token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{src: input, line: 1, col: 1}
}

// Tokenize tokenizes the entire input and returns the tokens. The last
// token is always TokenEOF.
func (l *Lexer) Tokenize() []Token {
	for {
		l.skipSpace()
		l.start, l.startLine, l.startCol = l.pos, l.line, l.col

		r := l.next()
		switch {
		case r == eof:
			l.emit(TokenEOF)
			return l.tokens
		case r == '\n':
			l.emit(TokenNewline)
		case r == '#', r == '/' && l.peek() == '/':
			l.skipLine()
		case r == '/' && l.peek() == '*':
			l.blockComment()
		case isDigit(r):
			l.number()
		case isLetter(r):
			l.word()
		default:
			if typ, ok := punctuation[r]; ok {
				l.emit(typ)
			} else {
				l.illegal("unexpected character")
			}
		}
	}
}

func (l *Lexer) next() rune {
	if l.pos >= len(l.src) {
		return eof
	}
	r, w := utf8.DecodeRuneInString(l.src[l.pos:])
	l.pos += w
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return eof
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	return r
}

func (l *Lexer) emit(typ TokenType) {
	l.tokens = append(l.tokens, Token{
		Type:  typ,
		Value: l.src[l.start:l.pos],
		Line:  l.startLine,
		Col:   l.startCol,
	})
}

func (l *Lexer) illegal(reason string) {
	l.emit(TokenIllegal)
	l.tokens[len(l.tokens)-1].Err = reason
}

func (l *Lexer) skipSpace() {
	for r := l.peek(); r == ' ' || r == '\t' || r == '\r'; r = l.peek() {
		l.next()
	}
}

func (l *Lexer) skipLine() {
	for r := l.peek(); r != '\n' && r != eof; r = l.peek() {
		l.next()
	}
}

func (l *Lexer) blockComment() {
	l.next() // '*'
	for {
		switch l.next() {
		case eof:
			l.illegal("unterminated comment")
			return
		case '*':
			if l.peek() == '/' {
				l.next()
				if l.line > l.startLine {
					l.tokens = append(l.tokens, Token{Type: TokenNewline, Line: l.startLine, Col: l.startCol})
				}
				return
			}
		}
	}
}

// number reads a decimal literal. Digits running straight into letters
// are illegal rather than a number followed by a name.
func (l *Lexer) number() {
	for isDigit(l.peek()) {
		l.next()
	}
	if isLetter(l.peek()) {
		for isLetter(l.peek()) || isDigit(l.peek()) {
			l.next()
		}
		l.illegal("malformed number")
		return
	}
	l.emit(TokenInt)
}

func (l *Lexer) word() {
	for isLetter(l.peek()) || isDigit(l.peek()) {
		l.next()
	}
	l.emit(LookupIdent(l.src[l.start:l.pos]))
}

func isDigit(r rune) bool { return '0' <= r && r <= '9' }

func isLetter(r rune) bool { return r == '_' || unicode.IsLetter(r) }
