package server

import (
	"sort"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/kestrel/compiler"
)

// ---------------------------------------------------------------------------
// Document analysis
// ---------------------------------------------------------------------------

// symbolKind says how a name is used in a document.
type symbolKind int

const (
	symbolVariable symbolKind = 1 << iota
	symbolProcedure
)

// occurrence is one appearance of a name, as byte offsets into the text.
type occurrence struct {
	start, end int
	def        bool // make or change naming it
	stmt       compiler.Stmt
}

// symbol collects everything known about a name.
type symbol struct {
	name  string
	kind  symbolKind
	occs  []occurrence
	value compiler.Expr // first make value, if any
	body  []compiler.Stmt
}

// document is a parsed, indexed open file.
type document struct {
	text     string
	program  *compiler.Program
	diags    []compiler.Diagnostic
	warnings []compiler.Diagnostic
	symbols  map[string]*symbol
}

func analyze(text string) *document {
	prog, diags := compiler.ParseWithDiagnostics(text)
	d := &document{
		text:     text,
		program:  prog,
		diags:    diags,
		warnings: compiler.Check(prog.Statements),
		symbols:  make(map[string]*symbol),
	}
	d.index(prog.Statements)
	return d
}

func (d *document) sym(name string) *symbol {
	s, ok := d.symbols[name]
	if !ok {
		s = &symbol{name: name}
		d.symbols[name] = s
	}
	return s
}

func (d *document) index(stmts []compiler.Stmt) {
	compiler.Walk(stmts, func(st compiler.Stmt) bool {
		switch n := st.(type) {
		case *compiler.Make:
			s := d.sym(n.Name)
			if n.Value != nil {
				s.kind |= symbolVariable
				if s.value == nil {
					s.value = n.Value
				}
				d.indexExpr(n.Value)
			}
			if len(n.Body) > 0 {
				s.kind |= symbolProcedure
				if s.body == nil {
					s.body = n.Body
				}
			}
			d.addDefinition(s, st)
		case *compiler.Change:
			s := d.sym(n.Name)
			s.kind |= symbolVariable
			d.addDefinition(s, st)
			d.indexExpr(n.Value)
		case *compiler.Say:
			for _, v := range n.Values {
				d.indexExpr(v)
			}
		case *compiler.If:
			d.indexExpr(n.Cond)
		case *compiler.Repeat:
			d.indexExpr(n.Count)
		case *compiler.ExprStmt:
			d.indexExpr(n.Expr)
		}
		return true
	})
	for _, s := range d.symbols {
		sort.Slice(s.occs, func(i, j int) bool { return s.occs[i].start < s.occs[j].start })
	}
}

func (d *document) indexExpr(e compiler.Expr) {
	switch n := e.(type) {
	case *compiler.Variable:
		s := d.sym(n.Name)
		s.occs = append(s.occs, occurrence{start: n.Span().Start.Offset, end: n.Span().End.Offset})
	case *compiler.Call:
		s := d.sym(n.Name)
		s.occs = append(s.occs, occurrence{start: n.Span().Start.Offset, end: n.Span().End.Offset})
	case *compiler.BinaryOp:
		d.indexExpr(n.Left)
		d.indexExpr(n.Right)
	}
}

// addDefinition records the name token of a make or change statement. The
// name is the second token of the statement.
func (d *document) addDefinition(s *symbol, st compiler.Stmt) {
	start := st.Span().Start.Offset
	if start >= len(d.text) {
		return
	}
	l := compiler.NewLexer(d.text[start:])
	l.NextToken() // make or change
	tok := l.NextToken()
	if tok.Type != compiler.TokenIdentifier || tok.Literal != s.name {
		return
	}
	off := start + tok.Pos.Offset
	s.occs = append(s.occs, occurrence{start: off, end: off + len(tok.Literal), def: true, stmt: st})
}

// definition returns the first make or change naming s.
func (s *symbol) definition() (occurrence, bool) {
	for _, o := range s.occs {
		if o.def {
			return o, true
		}
	}
	return occurrence{}, false
}

// names returns the declared names, sorted.
func (d *document) names() []*symbol {
	var out []*symbol
	for _, s := range d.symbols {
		if s.kind != 0 {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// ---------------------------------------------------------------------------
// Position conversion. LSP positions count UTF-16 code units.
// ---------------------------------------------------------------------------

// lspPosition converts a byte offset into an LSP position.
func lspPosition(text string, offset int) protocol.Position {
	if offset > len(text) {
		offset = len(text)
	}
	var line, char protocol.UInteger
	for _, r := range text[:offset] {
		if r == '\n' {
			line++
			char = 0
			continue
		}
		char += protocol.UInteger(utf16Len(r))
	}
	return protocol.Position{Line: line, Character: char}
}

func lspRange(text string, start, end int) protocol.Range {
	return protocol.Range{Start: lspPosition(text, start), End: lspPosition(text, end)}
}

// byteOffset converts an LSP position into a byte offset, clamped to the
// end of its line.
func byteOffset(text string, pos protocol.Position) int {
	off := 0
	for line := protocol.UInteger(0); line < pos.Line; line++ {
		i := strings.IndexByte(text[off:], '\n')
		if i < 0 {
			return len(text)
		}
		off += i + 1
	}
	var units protocol.UInteger
	for off < len(text) && units < pos.Character {
		r, size := utf8.DecodeRuneInString(text[off:])
		if r == '\n' {
			break
		}
		units += protocol.UInteger(utf16Len(r))
		off += size
	}
	return off
}

func utf16Len(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}
