package compiler

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for Kestrel scripts
// ---------------------------------------------------------------------------

// Lexer tokenizes Kestrel source code.
//
// Lexing never fails. Characters that cannot start a token are skipped and
// recorded as diagnostics; whitespace and # comments never produce tokens.
type Lexer struct {
	input string
	pos   int  // offset of ch
	next  int  // offset after ch
	ch    rune // current character, 0 at EOF
	line  int  // line of ch (1-based)
	col   int  // column of ch (1-based)

	diagnostics []Diagnostic
	comments    []Comment
	emitted     bool // a token has been returned
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	if l.next >= len(l.input) {
		l.ch = 0
		l.pos = len(l.input)
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.next:])
	l.ch = r
	l.pos = l.next
	l.next += size
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.col,
	}
}

// Diagnostics returns the characters skipped so far.
func (l *Lexer) Diagnostics() []Diagnostic {
	return l.diagnostics
}

// Comments returns the # comments skipped so far, in source order.
func (l *Lexer) Comments() []Comment {
	return l.comments
}

// NextToken returns the next token. At end of input it returns TokenEOF
// (repeatedly).
func (l *Lexer) NextToken() Token {
	tok := l.nextToken()
	if tok.Type != TokenEOF {
		l.emitted = true
	}
	return tok
}

func (l *Lexer) nextToken() Token {
	for {
		l.skipWhitespaceAndComments()

		pos := l.position()

		switch {
		case l.pos >= len(l.input):
			return Token{Type: TokenEOF, Pos: pos}

		case l.ch == '(':
			l.readChar()
			return Token{Type: TokenLParen, Literal: "(", Pos: pos}

		case l.ch == ')':
			l.readChar()
			return Token{Type: TokenRParen, Literal: ")", Pos: pos}

		case l.ch == '+':
			l.readChar()
			return Token{Type: TokenPlus, Literal: "+", Pos: pos}

		case l.ch == '-':
			l.readChar()
			return Token{Type: TokenMinus, Literal: "-", Pos: pos}

		case l.ch == '*':
			l.readChar()
			return Token{Type: TokenStar, Literal: "*", Pos: pos}

		case l.ch == '/':
			l.readChar()
			return Token{Type: TokenSlash, Literal: "/", Pos: pos}

		case l.ch == '%':
			l.readChar()
			return Token{Type: TokenPercent, Literal: "%", Pos: pos}

		case l.ch == '"':
			if tok, ok := l.readText(pos); ok {
				return tok
			}
			l.skip(pos, "unterminated text literal")

		case isDigit(l.ch):
			return l.readNumber(pos)

		case isLetter(l.ch) || l.ch == '_':
			return l.readIdentifierOrKeyword(pos)

		default:
			l.skip(pos, fmt.Sprintf("unexpected character %q", l.ch))
		}
	}
}

// skip drops the current character and records why.
func (l *Lexer) skip(pos Position, msg string) {
	l.diagnostics = append(l.diagnostics, Diagnostic{Pos: pos, Message: msg})
	l.readChar()
}

// skipWhitespaceAndComments skips whitespace and # line comments.
// Comments on the line where the previous token ended are marked trailing.
func (l *Lexer) skipWhitespaceAndComments() {
	tokenLine := l.line
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' || l.ch == '\f' {
			l.readChar()
		}

		if l.ch == '#' {
			pos := l.position()
			for l.ch != '\n' && l.pos < len(l.input) {
				l.readChar()
			}
			l.comments = append(l.comments, Comment{
				Pos:      pos,
				Text:     strings.TrimRight(l.input[pos.Offset:l.pos], " \t\r\f"),
				Trailing: l.emitted && pos.Line == tokenLine,
			})
			continue
		}

		break
	}
}

// readText reads a "..." literal. The literal keeps its quotes; content may
// span lines. Reports false, consuming nothing, if there is no closing quote.
func (l *Lexer) readText(pos Position) (Token, bool) {
	start := l.pos
	end := -1
	for i := start + 1; i < len(l.input); i++ {
		if l.input[i] == '"' {
			end = i + 1
			break
		}
	}
	if end < 0 {
		return Token{}, false
	}
	for l.pos < end {
		l.readChar()
	}
	return Token{Type: TokenText, Literal: l.input[start:end], Pos: pos}, true
}

// readNumber reads a run of decimal digits.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: pos}
}

// readIdentifierOrKeyword reads an identifier; exact keyword spellings
// become keyword tokens.
func (l *Lexer) readIdentifierOrKeyword(pos Position) Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}

	literal := l.input[start:l.pos]
	if tokType, ok := Keywords[literal]; ok {
		return Token{Type: tokType, Literal: literal, Pos: pos}
	}
	return Token{Type: TokenIdentifier, Literal: literal, Pos: pos}
}

// Helper functions

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// Tokenize returns all tokens from the input, excluding the trailing EOF.
func Tokenize(input string) []Token {
	tokens, _ := TokenizeWithDiagnostics(input)
	return tokens
}

// TokenizeWithDiagnostics is Tokenize plus the skipped-character report.
func TokenizeWithDiagnostics(input string) ([]Token, []Diagnostic) {
	l, tokens := lexAll(input)
	return tokens, l.Diagnostics()
}

func lexAll(input string) (*Lexer, []Token) {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		if tok.Type == TokenEOF {
			break
		}
		tokens = append(tokens, tok)
	}
	return l, tokens
}
