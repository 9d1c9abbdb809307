package compiler

import (
	"testing"
)

var fuzzSeeds = []string{
	// Tokens
	`( ) + - * / %`, `42`, `007`, `99999999999999999999`, `"hello"`, `""`, `"`,
	`make be do change to say if repeat times forever pressed`,
	`maker _x x1`,
	// Comments and whitespace
	"# comment\nsay 1", "say 1 # trailing", "\t\r\n\f",
	// Statements
	`make x be 5`,
	`make greet do say "hi"`,
	`make both be 1 do say both`,
	`change x to x + 1`,
	`change x x + 1`,
	`say "a" "b" (x) pressed "any"`,
	`if 1 do say "x"`,
	`repeat 3 times say "r"`,
	`repeat (-1) times say "never"`,
	"forever do\n  if pressed \"q\" do say \"bye\"",
	`pressed "a"`,
	`greet greet greet`,
	// Recovery
	`say "first" ) say "second"`,
	`make`, `change`, `say`, `if`, `repeat`, `forever`, `pressed`,
	`(((((`, `)))))`, `- - - 1`, `say 1 +`, `@#$`, `é ü`,
	`say 0)pressed`, "forever do say 1 ) pressed \"a\" say 2",
	// Text that is not valid UTF-8
	"pressed\"\x9d\"", "say \"\xff\xfe\"",
	// Comments next to statements
	"# a\nsay 1 # b\nmake t do # c\n  say 2\n# d\nt",
}

// ---------------------------------------------------------------------------
// FuzzLexer: the lexer never panics and always reaches EOF.
// ---------------------------------------------------------------------------

func FuzzLexer(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		l := NewLexer(data)
		for i := 0; ; i++ {
			if i > len(data)+1 {
				t.Fatalf("lexer did not reach EOF on %q", data)
			}
			tok := l.NextToken()
			if tok.Type == TokenEOF {
				break
			}
			if tok.Literal == "" {
				t.Fatalf("empty token %v on %q", tok, data)
			}
			if data[tok.Pos.Offset:tok.Pos.Offset+len(tok.Literal)] != tok.Literal {
				t.Fatalf("token %v does not match its source slice", tok)
			}
		}
	})
}

// ---------------------------------------------------------------------------
// FuzzParser: parsing terminates on any input and formatting round-trips
// to the canonical tree.
// ---------------------------------------------------------------------------

func FuzzParser(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		stmts := Parse(data)
		want := dump(Canonical(stmts))
		formatted := FormatStatements(stmts)
		if got := dump(Parse(formatted)); got != want {
			t.Fatalf("format round trip changed %q\nformatted: %q\nbefore: %s\nafter:  %s",
				data, formatted, want, got)
		}

		// Source that parses cleanly formats with its comments and
		// reaches a fixed point.
		out, err := Format(data)
		if err != nil {
			return
		}
		if got := dump(Parse(out)); got != want {
			t.Fatalf("Format changed %q\nformatted: %q\nbefore: %s\nafter:  %s", data, out, want, got)
		}
		if again, err := Format(out); err != nil || again != out {
			t.Fatalf("Format not idempotent on %q: %q then %q (%v)", data, out, again, err)
		}
	})
}

// ---------------------------------------------------------------------------
// FuzzImage: every parsed program survives the image codec.
// ---------------------------------------------------------------------------

func FuzzImage(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		stmts := Parse(data)
		img, err := MarshalImage(stmts)
		if err != nil {
			t.Fatalf("MarshalImage(%q): %v", data, err)
		}
		decoded, err := UnmarshalImage(img)
		if err != nil {
			t.Fatalf("UnmarshalImage(%q): %v", data, err)
		}
		if dump(decoded.Statements) != dump(stmts) {
			t.Fatalf("image round trip changed %q", data)
		}
		// Arbitrary bytes after the magic must fail cleanly.
		UnmarshalImage(append(append([]byte{}, ImageMagic...), data...))
	})
}

// ---------------------------------------------------------------------------
// FuzzSemantic: the analyzer handles anything the parser produces.
// ---------------------------------------------------------------------------

func FuzzSemantic(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		for _, d := range Check(Parse(data)) {
			if d.Pos.Line < 1 {
				t.Fatalf("warning %q has no position on %q", d.Message, data)
			}
		}
	})
}
