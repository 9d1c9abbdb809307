package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the Kestrel lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota

	// Literals
	TokenNumber     // 42
	TokenText       // "hello"
	TokenIdentifier // counter, _tmp1

	// Keywords
	TokenMake
	TokenBe
	TokenDo
	TokenChange
	TokenTo
	TokenSay
	TokenIf
	TokenRepeat
	TokenTimes
	TokenForever
	TokenPressed

	// Operators
	TokenPlus    // +
	TokenMinus   // -
	TokenStar    // *
	TokenSlash   // /
	TokenPercent // %

	// Delimiters
	TokenLParen // (
	TokenRParen // )
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenNumber:     "NUMBER",
	TokenText:       "TEXT",
	TokenIdentifier: "IDENTIFIER",
	TokenMake:       "make",
	TokenBe:         "be",
	TokenDo:         "do",
	TokenChange:     "change",
	TokenTo:         "to",
	TokenSay:        "say",
	TokenIf:         "if",
	TokenRepeat:     "repeat",
	TokenTimes:      "times",
	TokenForever:    "forever",
	TokenPressed:    "pressed",
	TokenPlus:       "+",
	TokenMinus:      "-",
	TokenStar:       "*",
	TokenSlash:      "/",
	TokenPercent:    "%",
	TokenLParen:     "(",
	TokenRParen:     ")",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// IsKeyword reports whether t is one of the reserved words.
func (t TokenType) IsKeyword() bool {
	return t >= TokenMake && t <= TokenPressed
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // exact source slice
	Pos     Position // start position
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// End returns the position just past the token.
func (t Token) End() Position {
	end := t.Pos
	for _, r := range t.Literal {
		if r == '\n' {
			end.Line++
			end.Column = 1
		} else {
			end.Column++
		}
	}
	end.Offset += len(t.Literal)
	return end
}

// Keywords maps reserved spellings to their token types.
var Keywords = map[string]TokenType{
	"make":    TokenMake,
	"be":      TokenBe,
	"do":      TokenDo,
	"change":  TokenChange,
	"to":      TokenTo,
	"say":     TokenSay,
	"if":      TokenIf,
	"repeat":  TokenRepeat,
	"times":   TokenTimes,
	"forever": TokenForever,
	"pressed": TokenPressed,
}
