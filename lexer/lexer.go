// Package lexer tokenizes NotScheme source text.
package lexer

import (
	"fmt"
	"strings"

	"github.com/wegfawefgawefg/notscheme-go/token"
)

// Lexer turns source text into a stream of token.Token, one at a time via
// NextToken. It tracks line/column so compile-time errors further down the
// pipeline can report a useful position.
type Lexer struct {
	input        string
	position     int  // current position in input (points to ch)
	readPosition int  // next position to read
	ch           byte // current char under examination, 0 at EOF
	line         int
	col          int
}

// New constructs a Lexer positioned before the first character of input.
func New(input string) *Lexer {
	l := &Lexer{input: input, line: 1, col: 0}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	if l.ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
	l.position = l.readPosition
	l.readPosition++
}

func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

// NextToken skips whitespace and comments, then returns the next token.
func (l *Lexer) NextToken() (token.Token, error) {
	l.skipWhitespaceAndComments()

	line, col := l.line, l.col

	switch {
	case l.ch == 0:
		return token.Token{Type: token.EOF, Literal: "", Line: line, Col: col}, nil
	case l.ch == '(':
		l.readChar()
		return token.Token{Type: token.LPAREN, Literal: "(", Line: line, Col: col}, nil
	case l.ch == ')':
		l.readChar()
		return token.Token{Type: token.RPAREN, Literal: ")", Line: line, Col: col}, nil
	case l.ch == '\'':
		l.readChar()
		return token.Token{Type: token.QUOTE, Literal: "'", Line: line, Col: col}, nil
	case l.ch == '"':
		lit, err := l.readString()
		if err != nil {
			return token.Token{}, err
		}
		return token.Token{Type: token.STRING, Literal: lit, Line: line, Col: col}, nil
	case isDigit(l.ch) || (l.ch == '-' && isDigit(l.peekChar())):
		lit := l.readNumber()
		return token.Token{Type: token.NUMBER, Literal: lit, Line: line, Col: col}, nil
	case isSymbolStart(l.ch):
		lit := l.readSymbol()
		switch lit {
		case "true", "false":
			return token.Token{Type: token.BOOLEAN, Literal: lit, Line: line, Col: col}, nil
		case "nil":
			return token.Token{Type: token.NIL, Literal: lit, Line: line, Col: col}, nil
		default:
			return token.Token{Type: token.SYMBOL, Literal: lit, Line: line, Col: col}, nil
		}
	default:
		ch := l.ch
		l.readChar()
		return token.Token{}, fmt.Errorf("unexpected character %q at line %d, col %d", ch, line, col)
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
			l.readChar()
		}
		if l.ch == '/' && l.peekChar() == '/' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}
		break
	}
}

// readString consumes a double-quoted string literal, resolving the
// escape sequences \", \n, \t and \\.
func (l *Lexer) readString() (string, error) {
	var out strings.Builder
	startLine, startCol := l.line, l.col
	l.readChar() // consume opening quote
	for {
		if l.ch == 0 {
			return "", fmt.Errorf("unterminated string starting at line %d, col %d", startLine, startCol)
		}
		if l.ch == '"' {
			l.readChar()
			break
		}
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case '"':
				out.WriteByte('"')
			case 'n':
				out.WriteByte('\n')
			case 't':
				out.WriteByte('\t')
			case '\\':
				out.WriteByte('\\')
			default:
				out.WriteByte(l.ch)
			}
			l.readChar()
			continue
		}
		out.WriteByte(l.ch)
		l.readChar()
	}
	return out.String(), nil
}

func (l *Lexer) readNumber() string {
	start := l.position
	if l.ch == '-' {
		l.readChar()
	}
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return l.input[start:l.position]
}

func (l *Lexer) readSymbol() string {
	start := l.position
	for isSymbolChar(l.ch) {
		l.readChar()
	}
	return l.input[start:l.position]
}

func isDigit(ch byte) bool { return '0' <= ch && ch <= '9' }

// isSymbolStart accepts letters, underscore and NotScheme's operator
// characters as the leading character of a symbol.
func isSymbolStart(ch byte) bool {
	return ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') ||
		strings.IndexByte("_+-*/%<>=!?", ch) >= 0
}

func isSymbolChar(ch byte) bool {
	return isSymbolStart(ch) || isDigit(ch)
}
