// Package template parses batch.template files and renders their
// submission line for each sample of a batch.
//
// A submission line is plain comma-separated text with ${name}
// placeholders. Material names, idx, sample_number, batch_name and
// water are substituted at render time.
package template

import (
	"strings"
	"unicode/utf8"
)

// Position tracks source location for error reporting.
type Position struct {
	File   string
	Line   int
	Column int
}

// TokenType identifies the type of token.
type TokenType int

// TokenType constants for template token types.
const (
	TokenText        TokenType = iota // Literal text
	TokenPlaceholder                  // ${name}
	TokenEOF                          // End of input
)

func (t TokenType) String() string {
	switch t {
	case TokenText:
		return "TEXT"
	case TokenPlaceholder:
		return "PLACEHOLDER"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// Token represents a lexical token.
type Token struct {
	Type  TokenType
	Value string
	Pos   Position
}

// Lexer tokenizes a submission line.
type Lexer struct {
	input    string
	file     string
	pos      int // current position in input
	line     int // current line number (1-based)
	col      int // current column number (1-based)
	lastLine int // line at start of current token
	lastCol  int // column at start of current token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input, file string) *Lexer {
	return &Lexer{
		input: input,
		file:  file,
		line:  1,
		col:   1,
	}
}

// NewLexerAt creates a lexer whose positions start at the given line.
// Used when the input is a single line taken out of a larger file.
func NewLexerAt(input, file string, line int) *Lexer {
	l := NewLexer(input, file)
	l.line = line
	return l
}

// Tokenize converts the input into a slice of tokens.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token

	for {
		tok, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
	}

	return tokens, nil
}

func (l *Lexer) nextToken() (Token, error) {
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.position()}, nil
	}

	if l.matchString("${") {
		return l.scanPlaceholder()
	}

	return l.scanText()
}

// scanText scans literal text until a placeholder or EOF.
func (l *Lexer) scanText() (Token, error) {
	l.markStart()
	start := l.pos

	for l.pos < len(l.input) {
		if l.matchString("${") {
			break
		}
		l.advance()
	}

	if l.pos == start {
		return Token{}, NewLexError(l.position(), "unexpected state in lexer")
	}

	return Token{
		Type:  TokenText,
		Value: l.input[start:l.pos],
		Pos:   l.startPosition(),
	}, nil
}

// scanPlaceholder scans a ${name} placeholder.
func (l *Lexer) scanPlaceholder() (Token, error) {
	l.markStart()

	// Skip ${
	l.pos += 2
	l.col += 2

	nameStart := l.pos
	for l.pos < len(l.input) {
		r := l.peek()
		if r == '}' {
			name := l.input[nameStart:l.pos]
			l.advance()
			if strings.TrimSpace(name) == "" {
				return Token{}, NewLexError(l.startPosition(), "empty placeholder")
			}
			return Token{
				Type:  TokenPlaceholder,
				Value: name,
				Pos:   l.startPosition(),
			}, nil
		}
		if r == '\n' || r == ',' {
			break
		}
		l.advance()
	}

	return Token{}, NewLexError(l.startPosition(), "unclosed placeholder: missing '}'")
}

// peek returns the current rune without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return r
}

// advance moves to the next rune, updating position tracking.
func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}

	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size

	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
}

func (l *Lexer) matchString(s string) bool {
	return strings.HasPrefix(l.input[l.pos:], s)
}

func (l *Lexer) markStart() {
	l.lastLine = l.line
	l.lastCol = l.col
}

func (l *Lexer) position() Position {
	return Position{File: l.file, Line: l.line, Column: l.col}
}

func (l *Lexer) startPosition() Position {
	return Position{File: l.file, Line: l.lastLine, Column: l.lastCol}
}
