package compiler

import (
	"strings"
	"testing"
)

func TestParserLiterals(t *testing.T) {
	tests := []struct {
		input string
		check func(Expr) bool
		desc  string
	}{
		{"42", func(e Expr) bool { return e.(*NumberLiteral).Value == 42 }, "number"},
		{"9223372036854775807", func(e Expr) bool { return e.(*NumberLiteral).Value == 9223372036854775807 }, "max int64"},
		{"9223372036854775808", func(e Expr) bool { return e.(*NumberLiteral).Value == 0 }, "overflow"},
		{`"hello"`, func(e Expr) bool { return e.(*TextLiteral).Value == "hello" }, "text"},
		{`""`, func(e Expr) bool { return e.(*TextLiteral).Value == "" }, "empty text"},
		{"foo", func(e Expr) bool { return e.(*Variable).Name == "foo" }, "variable"},
		{`pressed "a"`, func(e Expr) bool { return e.(*KeyPressed).Key == "a" }, "pressed"},
		{`pressed`, func(e Expr) bool { return e.(*KeyPressed).Key == AnyKey }, "pressed without key"},
		{"", func(e Expr) bool { return e.(*NumberLiteral).Value == 0 }, "empty input"},
		{"make", func(e Expr) bool { return e.(*NumberLiteral).Value == 0 }, "keyword in primary position"},
	}

	for _, tc := range tests {
		p := NewParser(tc.input)
		expr := p.ParseExpression()
		if expr == nil {
			t.Errorf("%s: nil expression", tc.desc)
			continue
		}
		if !tc.check(expr) {
			t.Errorf("%s: check failed for %q, got %#v", tc.desc, tc.input, expr)
		}
	}
}

func TestParserPrecedence(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1 + 2 * 3", "(1 + (2 * 3))"},
		{"1 * 2 + 3", "((1 * 2) + 3)"},
		{"1 - 2 - 3", "((1 - 2) - 3)"},
		{"8 / 4 / 2", "((8 / 4) / 2)"},
		{"7 % 4 * 2", "((7 % 4) * 2)"},
		{"(1 + 2) * 3", "((1 + 2) * 3)"},
		{"1 - (2 - 3)", "(1 - (2 - 3))"},
		{"-5", "(0 - 5)"},
		{"-x * 2", "((0 - x) * 2)"},
		{"(1 + 2", "(1 + 2)"},
		{"a + b", "(a + b)"},
	}

	for _, tc := range tests {
		p := NewParser(tc.input)
		got := sexpr(p.ParseExpression())
		if got != tc.want {
			t.Errorf("parse %q = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestParserMissingCloseParenIsNoted(t *testing.T) {
	p := NewParser("(1 + 2")
	p.ParseExpression()
	diags := p.Diagnostics()
	if len(diags) != 1 || !strings.Contains(diags[0].Message, "')'") {
		t.Errorf("diagnostics = %v, want missing ')'", diags)
	}
}

func TestParserMake(t *testing.T) {
	stmts := Parse(`make x be 5`)
	if len(stmts) != 1 {
		t.Fatalf("got %d statements, want 1", len(stmts))
	}
	m, ok := stmts[0].(*Make)
	if !ok {
		t.Fatalf("expected Make, got %T", stmts[0])
	}
	if m.Name != "x" {
		t.Errorf("name = %q, want x", m.Name)
	}
	if lit, ok := m.Value.(*NumberLiteral); !ok || lit.Value != 5 {
		t.Errorf("value = %#v, want 5", m.Value)
	}
	if len(m.Body) != 0 {
		t.Errorf("body = %v, want empty", m.Body)
	}
}

func TestParserMakeProcedure(t *testing.T) {
	stmts := Parse("make greet do say \"hi\"\ngreet\ngreet")
	if len(stmts) != 3 {
		t.Fatalf("got %d statements, want 3: %s", len(stmts), dump(stmts))
	}
	m := stmts[0].(*Make)
	if m.Value != nil {
		t.Errorf("value = %#v, want nil", m.Value)
	}
	if len(m.Body) != 1 {
		t.Fatalf("body has %d statements, want 1", len(m.Body))
	}
	if _, ok := m.Body[0].(*Say); !ok {
		t.Errorf("body[0] = %T, want Say", m.Body[0])
	}
	for i := 1; i < 3; i++ {
		es, ok := stmts[i].(*ExprStmt)
		if !ok {
			t.Fatalf("stmts[%d] = %T, want ExprStmt", i, stmts[i])
		}
		if call, ok := es.Expr.(*Call); !ok || call.Name != "greet" {
			t.Errorf("stmts[%d] = %#v, want call greet", i, es.Expr)
		}
	}
}

func TestParserMakeValueAndBody(t *testing.T) {
	stmts := Parse(`make both be 3 do say "x"`)
	m := stmts[0].(*Make)
	if m.Value == nil || len(m.Body) != 1 {
		t.Errorf("make = %s, want value and one-statement body", dump(stmts))
	}
}

func TestParserChange(t *testing.T) {
	tests := []struct {
		input     string
		wantDiags int
	}{
		{"change x to x + 1", 0},
		{"change x x + 1", 1},
	}
	for _, tc := range tests {
		prog, diags := ParseWithDiagnostics(tc.input)
		if len(prog.Statements) != 1 {
			t.Fatalf("%q: got %s", tc.input, dump(prog.Statements))
		}
		c, ok := prog.Statements[0].(*Change)
		if !ok {
			t.Fatalf("%q: expected Change, got %T", tc.input, prog.Statements[0])
		}
		if c.Name != "x" || sexpr(c.Value) != "(x + 1)" {
			t.Errorf("%q: change = %s %s", tc.input, c.Name, sexpr(c.Value))
		}
		if len(diags) != tc.wantDiags {
			t.Errorf("%q: diagnostics = %v, want %d", tc.input, diags, tc.wantDiags)
		}
	}
}

func TestParserSayItems(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`say "a" "b"`, `[say "a" "b"]`},
		{`say "n = " (n)`, `[say "n = " n]`},
		{`say x "!" 3`, `[say x "!" 3]`},
		{`say 1 + 2 "x"`, `[say (1 + 2) "x"]`},
		{`say "k" pressed "any"`, `[say "k" key:any]`},
		{`say "a" b`, `[say "a"] [call b]`},
		{`say`, `[say 0]`},
	}
	for _, tc := range tests {
		got := dump(Parse(tc.input))
		if got != tc.want {
			t.Errorf("parse %q = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestParserControlFlow(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`if 1 do say "x"`, `[if 1 {[say "x"]}]`},
		{`if 1 say "x"`, `[if 1 {[say "x"]}]`},
		{`repeat 3 times say "x"`, `[repeat 3 {[say "x"]}]`},
		{`repeat 3 times do say "x"`, `[repeat 3 {[say "x"]}]`},
		{`forever do pressed "a"`, `[forever {[expr key:a]}]`},
		{`forever if pressed "q" do say "bye"`, `[forever {[if key:q {[say "bye"]}]}]`},
	}
	for _, tc := range tests {
		got := dump(Parse(tc.input))
		if got != tc.want {
			t.Errorf("parse %q = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestParserNestedBodyEndsAtIdentifier(t *testing.T) {
	// A body runs greedily through keyword statements and stops in front of
	// a bare identifier, which becomes a call at the enclosing level.
	input := `
make tick do
  say "tick"
  change n to n + 1
tick
if 1 do say "a" say "b"
tick`
	got := dump(Parse(input))
	want := `[make tick {[say "tick"] [change n (n + 1)]}] [call tick] [if 1 {[say "a"] [say "b"]}] [call tick]`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestParserNestedBodyAbsorbsFollowingStatements(t *testing.T) {
	got := dump(Parse("if 0 do say \"x\"\nsay \"y\""))
	want := `[if 0 {[say "x"] [say "y"]}]`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestParserSkipsUnrecognizedTokens(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`say "a" ) say "b"`, `[say "a"] [say "b"]`},
		{`make x be 1 + say 2`, `[make x (1 + 0)]`},
		{`make 5 say "ok"`, `[say "ok"]`},
		{`change 7 to 1 say "ok"`, `[say "ok"]`},
		{`to be times say "ok"`, `[say "ok"]`},
		{`) ) )`, ``},
		{`say "a" @ say "b"`, `[say "a"] [say "b"]`},
	}
	for _, tc := range tests {
		got := dump(Parse(tc.input))
		if got != tc.want {
			t.Errorf("parse %q = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestParserSkippedTokensAreNoted(t *testing.T) {
	_, diags := ParseWithDiagnostics(`say 1 ) do`)
	if len(diags) != 2 {
		t.Fatalf("diagnostics = %v, want 2", diags)
	}
	if diags[0].Pos.Column != 7 {
		t.Errorf("first diagnostic column = %d, want 7", diags[0].Pos.Column)
	}
}

func TestParserSpans(t *testing.T) {
	prog, _ := ParseWithDiagnostics("say 1\nmake x be 2 + 3")
	m := prog.Statements[1].(*Make)
	span := m.Span()
	if span.Start.Line != 2 || span.Start.Column != 1 {
		t.Errorf("make start = %+v", span.Start)
	}
	if span.End.Line != 2 || span.End.Column != 16 {
		t.Errorf("make end = %+v", span.End)
	}
}

func TestWalkVisitsNestedStatements(t *testing.T) {
	stmts := Parse(`make p do if 1 do repeat 2 times say "x"`)
	var kinds []string
	Walk(stmts, func(s Stmt) bool {
		kinds = append(kinds, strings.TrimPrefix(strings.Fields(dump([]Stmt{s}))[0], "["))
		return true
	})
	want := "make if repeat say"
	if got := strings.Join(kinds, " "); got != want {
		t.Errorf("walk order = %q, want %q", got, want)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// sexpr renders an expression with explicit grouping.
func sexpr(e Expr) string {
	switch n := e.(type) {
	case *NumberLiteral:
		return FormatExpr(n)
	case *TextLiteral:
		return `"` + n.Value + `"`
	case *Variable:
		return n.Name
	case *Call:
		return "call:" + n.Name
	case *KeyPressed:
		return "key:" + n.Key
	case *BinaryOp:
		return "(" + sexpr(n.Left) + " " + n.Op + " " + sexpr(n.Right) + ")"
	}
	return "?"
}

// dump renders statements compactly for comparison.
func dump(stmts []Stmt) string {
	parts := make([]string, 0, len(stmts))
	for _, s := range stmts {
		parts = append(parts, dumpStmt(s))
	}
	return strings.Join(parts, " ")
}

func dumpStmt(s Stmt) string {
	switch n := s.(type) {
	case *Make:
		out := "[make " + n.Name
		if n.Value != nil {
			out += " " + sexpr(n.Value)
		}
		if len(n.Body) > 0 {
			out += " {" + dump(n.Body) + "}"
		}
		return out + "]"
	case *Change:
		return "[change " + n.Name + " " + sexpr(n.Value) + "]"
	case *Say:
		items := make([]string, len(n.Values))
		for i, v := range n.Values {
			items[i] = sexpr(v)
		}
		return "[say " + strings.Join(items, " ") + "]"
	case *If:
		return "[if " + sexpr(n.Cond) + " {" + dump(n.Body) + "}]"
	case *Repeat:
		return "[repeat " + sexpr(n.Count) + " {" + dump(n.Body) + "}]"
	case *Forever:
		return "[forever {" + dump(n.Body) + "}]"
	case *ExprStmt:
		if call, ok := n.Expr.(*Call); ok {
			return "[call " + call.Name + "]"
		}
		return "[expr " + sexpr(n.Expr) + "]"
	}
	return "[?]"
}
