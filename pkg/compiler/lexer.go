package compiler

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType represents the type of a token.
type TokenType uint8

const (
	TokenEOF     TokenType = iota
	TokenNewline           // end of an instruction
	TokenIdent             // Opcode names
	TokenInt               // Integer literals
	TokenString            // "quoted identifiers"
	TokenComma             // ,
	TokenRegR              // R0-R15
	TokenIllegal           // anything else; Err says why
)

var tokenNames = [...]string{
	TokenEOF:     "EOF",
	TokenNewline: "NEWLINE",
	TokenIdent:   "IDENT",
	TokenInt:     "INT",
	TokenString:  "STRING",
	TokenComma:   "COMMA",
	TokenRegR:    "REG_R",
	TokenIllegal: "ILLEGAL",
}

// String returns the string representation of a token type.
func (t TokenType) String() string {
	if int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return "UNKNOWN"
}

// Token represents a lexical token. For strings Value holds the decoded
// text; for everything else it is the source text.
type Token struct {
	Type  TokenType
	Value string
	Line  int
	Err   string
}

const eof = -1

// Lexer tokenizes frame-machine assembly source code. Comments start with
// ; or # and run to the end of the line.
type Lexer struct {
	src    string
	start  int // first byte of the token being scanned
	pos    int
	line   int
	tokens []Token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{src: input, line: 1}
}

// Tokenize tokenizes the entire input and returns the tokens. The last
// token is always TokenEOF.
func (l *Lexer) Tokenize() []Token {
	for {
		l.skipBlanks()
		l.start = l.pos

		r := l.next()
		switch {
		case r == eof:
			l.emit(TokenEOF)
			return l.tokens
		case r == '\n':
			l.emit(TokenNewline)
			l.line++
		case r == ';' || r == '#':
			l.skipLine()
		case r == ',':
			l.emit(TokenComma)
		case r == '"':
			l.scanString()
		case r == '-' || isDigit(r):
			l.scanInt(r)
		case isIdentStart(r):
			l.scanWord()
		default:
			l.illegal("unexpected character")
		}
	}
}

func (l *Lexer) next() rune {
	if l.pos >= len(l.src) {
		return eof
	}
	r, w := utf8.DecodeRuneInString(l.src[l.pos:])
	l.pos += w
	return r
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return eof
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	return r
}

func (l *Lexer) text() string { return l.src[l.start:l.pos] }

func (l *Lexer) emit(typ TokenType) {
	l.emitValue(typ, l.text())
}

func (l *Lexer) emitValue(typ TokenType, value string) {
	l.tokens = append(l.tokens, Token{Type: typ, Value: value, Line: l.line})
}

func (l *Lexer) illegal(reason string) {
	l.tokens = append(l.tokens, Token{Type: TokenIllegal, Value: l.text(), Line: l.line, Err: reason})
}

func (l *Lexer) skipBlanks() {
	for r := l.peek(); r == ' ' || r == '\t' || r == '\r'; r = l.peek() {
		l.pos++
	}
}

func (l *Lexer) skipLine() {
	for r := l.peek(); r != '\n' && r != eof; r = l.peek() {
		l.next()
	}
}

// scanString decodes a quoted name. Escapes are the ones Go's %q writes,
// so names printed by the disassembler read back unchanged. A string may
// not span lines.
func (l *Lexer) scanString() {
	var b strings.Builder
	for {
		switch r := l.next(); r {
		case '"':
			l.emitValue(TokenString, b.String())
			return
		case '\n':
			l.pos--
			l.illegal("unterminated string")
			return
		case eof:
			l.illegal("unterminated string")
			return
		case '\\':
			if p := l.peek(); p == '\n' || p == eof {
				continue
			}
			if !l.escape(&b) {
				l.skipTo('"')
				l.illegal("invalid escape in string")
				return
			}
		default:
			b.WriteRune(r)
		}
	}
}

var (
	simpleEscapes = map[rune]byte{
		'"': '"', '\\': '\\', 'a': '\a', 'b': '\b', 'f': '\f',
		'n': '\n', 'r': '\r', 't': '\t', 'v': '\v',
	}
	hexEscapes = map[rune]int{'x': 2, 'u': 4, 'U': 8}
)

// escape decodes the escape after a backslash into b. \xHH is a raw byte;
// \uXXXX and \UXXXXXXXX are code points.
func (l *Lexer) escape(b *strings.Builder) bool {
	c := l.next()
	if e, ok := simpleEscapes[c]; ok {
		b.WriteByte(e)
		return true
	}

	digits := hexEscapes[c]
	if digits == 0 {
		return false
	}
	v := 0
	for i := 0; i < digits; i++ {
		d := hexValue(l.peek())
		if d < 0 {
			return false
		}
		l.next()
		v = v<<4 | d
	}

	if c == 'x' {
		b.WriteByte(byte(v))
		return true
	}
	if !utf8.ValidRune(rune(v)) {
		return false
	}
	b.WriteRune(rune(v))
	return true
}

// skipTo consumes up to and including the closing rune on this line.
func (l *Lexer) skipTo(closing rune) {
	for r := l.peek(); r != '\n' && r != eof; r = l.peek() {
		l.next()
		if r == closing {
			return
		}
	}
}

// scanInt reads a decimal or 0x-prefixed hex literal with an optional
// leading minus. A literal running straight into letters is illegal.
func (l *Lexer) scanInt(first rune) {
	if first == '-' {
		if !isDigit(l.peek()) {
			l.illegal("expected digits after '-'")
			return
		}
		first = l.next()
	}

	digit := isDigit
	if first == '0' && (l.peek() == 'x' || l.peek() == 'X') {
		l.next()
		digit = func(r rune) bool { return hexValue(r) >= 0 }
		if !digit(l.peek()) {
			l.illegal("expected hex digits after 0x")
			return
		}
	}
	for digit(l.peek()) {
		l.next()
	}

	if isIdentPart(l.peek()) {
		for isIdentPart(l.peek()) {
			l.next()
		}
		l.illegal("malformed number")
		return
	}
	l.emit(TokenInt)
}

// scanWord reads an opcode name or a register. Registers are R or r
// followed only by digits.
func (l *Lexer) scanWord() {
	for isIdentPart(l.peek()) {
		l.next()
	}
	word := l.text()
	if len(word) > 1 && (word[0] == 'R' || word[0] == 'r') && strings.IndexFunc(word[1:], notDigit) < 0 {
		l.emit(TokenRegR)
		return
	}
	l.emit(TokenIdent)
}

func isDigit(r rune) bool { return '0' <= r && r <= '9' }

func notDigit(r rune) bool { return !isDigit(r) }

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }

func isIdentPart(r rune) bool { return isIdentStart(r) || isDigit(r) }

func hexValue(r rune) int {
	switch {
	case '0' <= r && r <= '9':
		return int(r - '0')
	case 'a' <= r && r <= 'f':
		return int(r-'a') + 10
	case 'A' <= r && r <= 'F':
		return int(r-'A') + 10
	default:
		return -1
	}
}
