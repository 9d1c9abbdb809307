package compiler

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for Kestrel scripts
// ---------------------------------------------------------------------------

// Parser turns a token sequence into statements. It walks the tokens with a
// single forward cursor and never fails: input it cannot use is skipped and
// noted in Diagnostics.
type Parser struct {
	tokens  []Token
	pos     int
	lastEnd Position // end of the most recently consumed token
	eof     Position

	diagnostics []Diagnostic
	comments    []Comment
}

// NewParser lexes input and returns a parser over its tokens. Characters
// the lexer skipped are reported through Diagnostics.
func NewParser(input string) *Parser {
	l, tokens := lexAll(input)
	p := NewParserFromTokens(tokens)
	p.eof = endOfInput(input)
	p.diagnostics = append(p.diagnostics, l.Diagnostics()...)
	p.comments = l.Comments()
	return p
}

// NewParserFromTokens creates a parser over an already lexed sequence.
func NewParserFromTokens(tokens []Token) *Parser {
	p := &Parser{tokens: tokens}
	if len(tokens) > 0 {
		p.eof = tokens[len(tokens)-1].End()
	} else {
		p.eof = Position{Line: 1, Column: 1}
	}
	return p
}

// Parse parses a whole script and returns its top-level statements.
func Parse(input string) []Stmt {
	return NewParser(input).ParseStatements()
}

// ParseWithDiagnostics parses a whole script, also returning the notes
// about skipped or repaired input.
func ParseWithDiagnostics(input string) (*Program, []Diagnostic) {
	p := NewParser(input)
	prog := p.ParseProgram()
	return prog, p.Diagnostics()
}

// Diagnostics returns the notes accumulated so far, lexer notes first.
func (p *Parser) Diagnostics() []Diagnostic {
	return p.diagnostics
}

// Comments returns the source comments, which the parser otherwise ignores.
func (p *Parser) Comments() []Comment {
	return p.comments
}

func (p *Parser) notef(pos Position, format string, args ...interface{}) {
	p.diagnostics = append(p.diagnostics, Diagnostic{Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// cur returns the current token, or an EOF token past the end.
func (p *Parser) cur() Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return Token{Type: TokenEOF, Pos: p.eof}
}

func (p *Parser) curIs(t TokenType) bool {
	return p.cur().Type == t
}

func (p *Parser) atEnd() bool {
	return p.pos >= len(p.tokens)
}

// advance consumes the current token.
func (p *Parser) advance() {
	if p.atEnd() {
		return
	}
	p.lastEnd = p.tokens[p.pos].End()
	p.pos++
}

// eat consumes the current token if it has type t.
func (p *Parser) eat(t TokenType) bool {
	if p.curIs(t) {
		p.advance()
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// ParseProgram parses all remaining tokens into a Program.
func (p *Parser) ParseProgram() *Program {
	start := p.cur().Pos
	stmts := p.ParseStatements()
	return &Program{
		SpanVal:    MakeSpan(start, p.eof),
		Statements: stmts,
	}
}

// ParseStatements parses all remaining tokens as top-level statements.
func (p *Parser) ParseStatements() []Stmt {
	return p.parseSequence(false)
}

// parseSequence parses statements until end of input. A nested body also
// ends in front of a bare identifier, which belongs to the enclosing level
// as a procedure call.
func (p *Parser) parseSequence(nested bool) []Stmt {
	var stmts []Stmt
	for !p.atEnd() {
		if nested && p.curIs(TokenIdentifier) {
			break
		}
		start := p.pos
		if stmt := p.parseStatement(); stmt != nil {
			stmts = append(stmts, stmt)
			continue
		}
		// Nothing usable starts here: rewind and skip one token.
		p.pos = start
		tok := p.cur()
		p.notef(tok.Pos, "skipped unexpected %s", tok)
		p.advance()
	}
	return stmts
}

// parseStatement parses one statement, or returns nil if the tokens at the
// cursor cannot form one. The caller rewinds on nil.
func (p *Parser) parseStatement() Stmt {
	tok := p.cur()
	switch tok.Type {
	case TokenMake:
		return p.parseMake()
	case TokenChange:
		return p.parseChange()
	case TokenSay:
		return p.parseSay()
	case TokenIf:
		p.advance()
		cond := p.ParseExpression()
		p.eat(TokenDo)
		body := p.parseSequence(true)
		return &If{SpanVal: MakeSpan(tok.Pos, p.lastEnd), Cond: cond, Body: body}
	case TokenRepeat:
		p.advance()
		count := p.ParseExpression()
		if !p.eat(TokenTimes) {
			p.notef(p.cur().Pos, "expected 'times' after repeat count")
		}
		p.eat(TokenDo)
		body := p.parseSequence(true)
		return &Repeat{SpanVal: MakeSpan(tok.Pos, p.lastEnd), Count: count, Body: body}
	case TokenForever:
		p.advance()
		p.eat(TokenDo)
		body := p.parseSequence(true)
		return &Forever{SpanVal: MakeSpan(tok.Pos, p.lastEnd), Body: body}
	case TokenPressed:
		expr := p.parsePrimary()
		return &ExprStmt{SpanVal: expr.Span(), Expr: expr}
	case TokenIdentifier:
		p.advance()
		span := MakeSpan(tok.Pos, p.lastEnd)
		return &ExprStmt{SpanVal: span, Expr: &Call{SpanVal: span, Name: tok.Literal}}
	}
	return nil
}

// parseMake parses make <ident> [be <expr>] [do <block>].
func (p *Parser) parseMake() Stmt {
	start := p.cur().Pos
	p.advance() // make
	if !p.curIs(TokenIdentifier) {
		return nil
	}
	name := p.cur().Literal
	p.advance()

	var value Expr
	if p.eat(TokenBe) {
		value = p.ParseExpression()
	}
	var body []Stmt
	if p.eat(TokenDo) {
		body = p.parseSequence(true)
	}
	return &Make{SpanVal: MakeSpan(start, p.lastEnd), Name: name, Value: value, Body: body}
}

// parseChange parses change <ident> to <expr>.
func (p *Parser) parseChange() Stmt {
	start := p.cur().Pos
	p.advance() // change
	if !p.curIs(TokenIdentifier) {
		return nil
	}
	name := p.cur().Literal
	p.advance()
	if !p.eat(TokenTo) {
		p.notef(p.cur().Pos, "expected 'to' after change %s", name)
	}
	value := p.ParseExpression()
	return &Change{SpanVal: MakeSpan(start, p.lastEnd), Name: name, Value: value}
}

// parseSay parses say <expr> {<expr>}. Items after the first must start
// with a literal, a parenthesis or pressed; a bare identifier is left for
// the next statement.
func (p *Parser) parseSay() Stmt {
	start := p.cur().Pos
	p.advance() // say
	values := []Expr{p.ParseExpression()}
	for startsSayItem(p.cur().Type) {
		values = append(values, p.ParseExpression())
	}
	return &Say{SpanVal: MakeSpan(start, p.lastEnd), Values: values}
}

func startsSayItem(t TokenType) bool {
	switch t {
	case TokenNumber, TokenText, TokenLParen, TokenPressed:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// ParseExpression parses one expression. It always returns a node.
func (p *Parser) ParseExpression() Expr {
	return p.parseAdditive()
}

// parseAdditive parses + and - (lowest precedence, left-associative).
func (p *Parser) parseAdditive() Expr {
	left := p.parseMultiplicative()
	for p.curIs(TokenPlus) || p.curIs(TokenMinus) {
		op := p.cur().Literal
		p.advance()
		right := p.parseMultiplicative()
		left = &BinaryOp{SpanVal: MakeSpan(left.Span().Start, right.Span().End), Left: left, Op: op, Right: right}
	}
	return left
}

// parseMultiplicative parses *, / and %.
func (p *Parser) parseMultiplicative() Expr {
	left := p.parsePrimary()
	for p.curIs(TokenStar) || p.curIs(TokenSlash) || p.curIs(TokenPercent) {
		op := p.cur().Literal
		p.advance()
		right := p.parsePrimary()
		left = &BinaryOp{SpanVal: MakeSpan(left.Span().Start, right.Span().End), Left: left, Op: op, Right: right}
	}
	return left
}

// parsePrimary parses literals, variables, parenthesized expressions,
// pressed predicates and unary minus. Any other token becomes the number 0
// and is consumed.
func (p *Parser) parsePrimary() Expr {
	tok := p.cur()
	span := MakeSpan(tok.Pos, tok.End())

	switch tok.Type {
	case TokenNumber:
		p.advance()
		n, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil {
			p.notef(tok.Pos, "number %s out of range, using 0", tok.Literal)
			n = 0
		}
		return &NumberLiteral{SpanVal: span, Value: n}

	case TokenText:
		p.advance()
		return &TextLiteral{SpanVal: span, Value: tok.Literal[1 : len(tok.Literal)-1]}

	case TokenIdentifier:
		p.advance()
		return &Variable{SpanVal: span, Name: tok.Literal}

	case TokenLParen:
		p.advance()
		inner := p.ParseExpression()
		if !p.eat(TokenRParen) {
			p.notef(p.cur().Pos, "expected ')' to close '(' at %d:%d", tok.Pos.Line, tok.Pos.Column)
		}
		return inner

	case TokenPressed:
		p.advance()
		key := AnyKey
		if p.curIs(TokenText) {
			lit := p.cur().Literal
			key = lit[1 : len(lit)-1]
			p.advance()
		} else {
			p.notef(p.cur().Pos, "expected key name after pressed, using %q", AnyKey)
		}
		return &KeyPressed{SpanVal: MakeSpan(tok.Pos, p.lastEnd), Key: key}

	case TokenMinus:
		p.advance()
		operand := p.parsePrimary()
		zero := &NumberLiteral{SpanVal: span, Value: 0}
		return &BinaryOp{SpanVal: MakeSpan(tok.Pos, operand.Span().End), Left: zero, Op: "-", Right: operand}

	case TokenEOF:
		return &NumberLiteral{SpanVal: span, Value: 0}
	}

	p.notef(tok.Pos, "unexpected %s in expression, using 0", tok)
	p.advance()
	return &NumberLiteral{SpanVal: span, Value: 0}
}

// endOfInput returns the position just past input.
func endOfInput(input string) Position {
	return Token{Literal: input, Pos: Position{Line: 1, Column: 1}}.End()
}
