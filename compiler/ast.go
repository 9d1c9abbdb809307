package compiler

import "fmt"

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for Kestrel
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// NumberLiteral represents an integer literal.
type NumberLiteral struct {
	SpanVal Span
	Value   int64
}

func (n *NumberLiteral) Span() Span { return n.SpanVal }
func (n *NumberLiteral) node()      {}
func (n *NumberLiteral) expr()      {}

// TextLiteral represents a text literal. Value excludes the quotes.
type TextLiteral struct {
	SpanVal Span
	Value   string
}

func (n *TextLiteral) Span() Span { return n.SpanVal }
func (n *TextLiteral) node()      {}
func (n *TextLiteral) expr()      {}

// Variable represents a variable reference.
type Variable struct {
	SpanVal Span
	Name    string
}

func (n *Variable) Span() Span { return n.SpanVal }
func (n *Variable) node()      {}
func (n *Variable) expr()      {}

// BinaryOp represents left Op right, where Op is one of + - * / %.
type BinaryOp struct {
	SpanVal Span
	Left    Expr
	Op      string
	Right   Expr
}

func (n *BinaryOp) Span() Span { return n.SpanVal }
func (n *BinaryOp) node()      {}
func (n *BinaryOp) expr()      {}

// Call represents a zero-argument procedure invocation.
type Call struct {
	SpanVal Span
	Name    string
}

func (n *Call) Span() Span { return n.SpanVal }
func (n *Call) node()      {}
func (n *Call) expr()      {}

// AnyKey is the KeyPressed wildcard.
const AnyKey = "any"

// KeyPressed represents the pressed "<key>" predicate.
type KeyPressed struct {
	SpanVal Span
	Key     string // key name or AnyKey
}

func (n *KeyPressed) Span() Span { return n.SpanVal }
func (n *KeyPressed) node()      {}
func (n *KeyPressed) expr()      {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// Make declares a variable, a procedure, or both.
type Make struct {
	SpanVal Span
	Name    string
	Value   Expr // nil when there is no "be" clause
	Body    []Stmt
}

func (n *Make) Span() Span { return n.SpanVal }
func (n *Make) node()      {}
func (n *Make) stmt()      {}

// Change assigns a variable.
type Change struct {
	SpanVal Span
	Name    string
	Value   Expr
}

func (n *Change) Span() Span { return n.SpanVal }
func (n *Change) node()      {}
func (n *Change) stmt()      {}

// Say prints its values concatenated on one line.
type Say struct {
	SpanVal Span
	Values  []Expr
}

func (n *Say) Span() Span { return n.SpanVal }
func (n *Say) node()      {}
func (n *Say) stmt()      {}

// If runs Body when Cond is a nonzero number.
type If struct {
	SpanVal Span
	Cond    Expr
	Body    []Stmt
}

func (n *If) Span() Span { return n.SpanVal }
func (n *If) node()      {}
func (n *If) stmt()      {}

// Repeat runs Body Count times.
type Repeat struct {
	SpanVal Span
	Count   Expr
	Body    []Stmt
}

func (n *Repeat) Span() Span { return n.SpanVal }
func (n *Repeat) node()      {}
func (n *Repeat) stmt()      {}

// Forever polls the keyboard and runs Body, without end.
type Forever struct {
	SpanVal Span
	Body    []Stmt
}

func (n *Forever) Span() Span { return n.SpanVal }
func (n *Forever) node()      {}
func (n *Forever) stmt()      {}

// ExprStmt is an expression used as a statement.
type ExprStmt struct {
	SpanVal Span
	Expr    Expr
}

func (n *ExprStmt) Span() Span { return n.SpanVal }
func (n *ExprStmt) node()      {}
func (n *ExprStmt) stmt()      {}

// ---------------------------------------------------------------------------
// Top-level structure
// ---------------------------------------------------------------------------

// Program is a parsed script.
type Program struct {
	SpanVal    Span
	Statements []Stmt
}

func (n *Program) Span() Span { return n.SpanVal }
func (n *Program) node()      {}

// Diagnostic is a non-fatal note about input the lexer or parser skipped
// or repaired.
type Diagnostic struct {
	Pos     Position
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%d:%d: %s", d.Pos.Line, d.Pos.Column, d.Message)
}

// Comment is a # comment kept aside by the lexer. Trailing comments share
// a line with the token before them.
type Comment struct {
	Pos      Position
	Text     string // from # to end of line, trailing blanks removed
	Trailing bool
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// MakeSpan creates a span from start and end positions.
func MakeSpan(start, end Position) Span {
	return Span{Start: start, End: end}
}

// Walk calls fn for each statement in stmts and, depth-first, every
// statement nested in their bodies. Walking stops descending into a
// statement when fn returns false.
func Walk(stmts []Stmt, fn func(Stmt) bool) {
	for _, s := range stmts {
		if !fn(s) {
			continue
		}
		Walk(Body(s), fn)
	}
}

// Body returns the nested statements of s, if any.
func Body(s Stmt) []Stmt {
	switch n := s.(type) {
	case *Make:
		return n.Body
	case *If:
		return n.Body
	case *Repeat:
		return n.Body
	case *Forever:
		return n.Body
	}
	return nil
}
