package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestNeedsMore(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"say 1", false},
		{"make x be 3", false},
		{"", false},
		{"make p do", true},
		{"make p do\n  say 1", true},
		{"if x say 1", true},
		{"repeat 3 times", true},
		{"forever", true},
		{"say (1 +", true},
		{"say (1 + 2)", false},
		{"make x be", true},
		{"change x to x *", true},
		{"say", true},
	}

	for _, tc := range tests {
		if got := needsMore(tc.src); got != tc.want {
			t.Errorf("needsMore(%q) = %v, want %v", tc.src, got, tc.want)
		}
	}
}

func TestSessionKeepsState(t *testing.T) {
	a, stdout, _ := newTestApp(t)
	s := a.newSession()
	ctx := context.Background()

	if err := s.eval(ctx, "make n be 4\nmake show do\n  say n"); err != nil {
		t.Fatal(err)
	}
	if err := s.eval(ctx, "change n to n + 1\nshow"); err != nil {
		t.Fatal(err)
	}
	if stdout.String() != "5\n" {
		t.Errorf("output = %q, want 5", stdout.String())
	}
}

func TestSessionNotesGoToStderr(t *testing.T) {
	a, stdout, stderr := newTestApp(t)
	s := a.newSession()

	if err := s.eval(context.Background(), "say 1 @"); err != nil {
		t.Fatal(err)
	}
	if stdout.String() != "1\n" {
		t.Errorf("stdout = %q", stdout.String())
	}
	if !strings.HasPrefix(stderr.String(), "note: 1:7:") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestSessionCommands(t *testing.T) {
	a, stdout, _ := newTestApp(t)
	s := a.newSession()
	ctx := context.Background()

	if err := s.eval(ctx, "make word be \"hi\"\nmake n be 2\nmake p do\n  say n"); err != nil {
		t.Fatal(err)
	}

	if exit, err := s.command(ctx, ":env"); exit || err != nil {
		t.Fatalf(":env = %v, %v", exit, err)
	}
	want := "n = 2\nword = \"hi\"\np (procedure)\n"
	if stdout.String() != want {
		t.Errorf(":env output = %q, want %q", stdout.String(), want)
	}

	stdout.Reset()
	s.command(ctx, ":reset")
	s.command(ctx, ":env")
	if stdout.String() != "session reset\n(empty)\n" {
		t.Errorf("after reset = %q", stdout.String())
	}

	stdout.Reset()
	path := writeFile(t, t.TempDir(), "loaded.kes", tripleScript)
	if _, err := s.command(ctx, ":load "+path); err != nil {
		t.Fatal(err)
	}
	if stdout.String() != "x=6\n" {
		t.Errorf(":load output = %q", stdout.String())
	}
	if v, ok := s.interp.Lookup("x"); !ok || v.String() != "2" {
		t.Errorf("x after :load = %v, %v", v, ok)
	}

	if _, err := s.command(ctx, ":load"); err == nil {
		t.Error(":load without a path should fail")
	}
	if _, err := s.command(ctx, ":load "+filepath.Join(t.TempDir(), "none.kes")); err == nil {
		t.Error(":load of a missing file should fail")
	}
	if _, err := s.command(ctx, ":bogus"); err == nil {
		t.Error("unknown command should fail")
	}
	if exit, _ := s.command(ctx, ":quit"); !exit {
		t.Error(":quit should exit")
	}
}

func TestSessionInterrupted(t *testing.T) {
	a, _, stderr := newTestApp(t)
	s := a.newSession()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.eval(ctx, "forever\n  say 1"); err != nil {
		t.Errorf("eval = %v, want nil", err)
	}
	if !strings.Contains(stderr.String(), "interrupted") {
		t.Errorf("stderr = %q", stderr.String())
	}
}
