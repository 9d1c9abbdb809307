package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Canonical source formatter
// ---------------------------------------------------------------------------

// Format parses source and returns it canonically formatted, comments
// included. Source with parse notes is refused, since formatting would drop
// the skipped input.
func Format(source string) (string, error) {
	p := NewParser(source)
	prog := p.ParseProgram()
	if diags := p.Diagnostics(); len(diags) > 0 {
		return "", fmt.Errorf("parse error at %s", diags[0])
	}
	f := &formatter{buf: &strings.Builder{}, comments: p.Comments()}
	f.formatStatements(Canonical(prog.Statements))
	return f.buf.String(), nil
}

// FormatStatements renders statements as source text that parses back to
// their canonical form.
func FormatStatements(stmts []Stmt) string {
	f := &formatter{buf: &strings.Builder{}}
	f.formatStatements(Canonical(stmts))
	return f.buf.String()
}

// Canonical returns stmts without the expression statements that would
// read as extra say items once printed after a say. Those statements only
// inspect the key slot, so dropping them does not change what runs. The
// input is not modified.
func Canonical(stmts []Stmt) []Stmt {
	afterSay := false
	return canonical(stmts, &afterSay)
}

func canonical(stmts []Stmt, afterSay *bool) []Stmt {
	var out []Stmt
	for _, s := range stmts {
		switch n := s.(type) {
		case *Say:
			*afterSay = true
			out = append(out, n)
			continue
		case *ExprStmt:
			if _, ok := n.Expr.(*Call); !ok && *afterSay {
				continue
			}
			*afterSay = false
			out = append(out, n)
			continue
		}
		*afterSay = false
		switch n := s.(type) {
		case *Make:
			c := *n
			c.Body = canonical(n.Body, afterSay)
			out = append(out, &c)
		case *If:
			c := *n
			c.Body = canonical(n.Body, afterSay)
			out = append(out, &c)
		case *Repeat:
			c := *n
			c.Body = canonical(n.Body, afterSay)
			out = append(out, &c)
		case *Forever:
			c := *n
			c.Body = canonical(n.Body, afterSay)
			out = append(out, &c)
		default:
			out = append(out, s)
		}
	}
	return out
}

// formatter walks the AST and emits canonically formatted source. Comments
// are written in source order ahead of the first statement that starts
// after them; trailing ones stay at the end of the current line.
type formatter struct {
	indent int
	buf    *strings.Builder

	comments      []Comment
	next          int  // first comment not yet written
	lineOpen      bool // the last line has no newline yet
	lineCommented bool // the open line already ends in a comment
	blank         bool // a blank line is due before the next line
}

func (f *formatter) formatStatements(stmts []Stmt) {
	for i, s := range stmts {
		if i > 0 && len(Body(stmts[i-1])) > 0 {
			f.newline()
		}
		f.formatStmt(s)
	}
	f.flushComments(-1)
	f.endLine()
}

// flushComments writes the comments that start before offset, or all of
// them when offset is negative.
func (f *formatter) flushComments(offset int) {
	for ; f.next < len(f.comments); f.next++ {
		c := f.comments[f.next]
		if offset >= 0 && c.Pos.Offset >= offset {
			return
		}
		if c.Trailing && f.lineOpen && !f.lineCommented {
			f.buf.WriteString("  " + c.Text)
		} else {
			f.startLine()
			f.buf.WriteString(c.Text)
		}
		f.lineCommented = true
	}
}

func (f *formatter) startLine() {
	f.endLine()
	if f.blank {
		f.buf.WriteByte('\n')
		f.blank = false
	}
	for i := 0; i < f.indent; i++ {
		f.buf.WriteString("  ")
	}
	f.lineOpen = true
	f.lineCommented = false
}

func (f *formatter) endLine() {
	if f.lineOpen {
		f.buf.WriteByte('\n')
		f.lineOpen = false
	}
}

func (f *formatter) writeln(s string) {
	f.startLine()
	f.buf.WriteString(s)
}

func (f *formatter) newline() {
	if f.buf.Len() > 0 {
		f.blank = true
	}
}

func (f *formatter) formatBody(body []Stmt) {
	f.indent++
	for _, s := range body {
		f.formatStmt(s)
	}
	f.indent--
}

func (f *formatter) formatStmt(s Stmt) {
	f.flushComments(s.Span().Start.Offset)
	switch n := s.(type) {
	case *Make:
		line := "make " + n.Name
		if n.Value != nil {
			line += " be " + FormatExpr(n.Value)
		}
		if len(n.Body) > 0 {
			line += " do"
		}
		f.writeln(line)
		f.formatBody(n.Body)

	case *Change:
		f.writeln("change " + n.Name + " to " + FormatExpr(n.Value))

	case *Say:
		parts := make([]string, len(n.Values))
		for i, v := range n.Values {
			if i > 0 && !selfDelimiting(v) {
				parts[i] = "(" + FormatExpr(v) + ")"
			} else {
				parts[i] = FormatExpr(v)
			}
		}
		f.writeln("say " + strings.Join(parts, " "))

	case *If:
		f.writeln("if " + FormatExpr(n.Cond) + " do")
		f.formatBody(n.Body)

	case *Repeat:
		f.writeln("repeat " + FormatExpr(n.Count) + " times")
		f.formatBody(n.Body)

	case *Forever:
		f.writeln("forever")
		f.formatBody(n.Body)

	case *ExprStmt:
		f.writeln(FormatExpr(n.Expr))
	}
}

// selfDelimiting reports whether e can follow another say item without
// parentheses.
func selfDelimiting(e Expr) bool {
	switch n := e.(type) {
	case *NumberLiteral:
		return n.Value >= 0
	case *TextLiteral, *KeyPressed:
		return true
	}
	return false
}

// FormatExpr renders an expression with the minimal parentheses needed to
// keep its shape.
func FormatExpr(e Expr) string {
	s, _ := formatExpr(e)
	return s
}

const (
	precAdditive       = 1
	precMultiplicative = 2
	precPrimary        = 3
)

func opPrecedence(op string) int {
	switch op {
	case "*", "/", "%":
		return precMultiplicative
	}
	return precAdditive
}

func formatExpr(e Expr) (string, int) {
	switch n := e.(type) {
	case *NumberLiteral:
		if n.Value < 0 {
			return "(0 - " + strconv.FormatUint(uint64(-(n.Value+1))+1, 10) + ")", precPrimary
		}
		return strconv.FormatInt(n.Value, 10), precPrimary
	case *TextLiteral:
		return `"` + n.Value + `"`, precPrimary
	case *Variable:
		return n.Name, precPrimary
	case *Call:
		return n.Name, precPrimary
	case *KeyPressed:
		return `pressed "` + n.Key + `"`, precPrimary
	case *BinaryOp:
		prec := opPrecedence(n.Op)
		left, lp := formatExpr(n.Left)
		if lp < prec {
			left = "(" + left + ")"
		}
		right, rp := formatExpr(n.Right)
		if rp <= prec {
			right = "(" + right + ")"
		}
		return left + " " + n.Op + " " + right, prec
	}
	return "0", precPrimary
}
