package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tliron/commonlog"

	"github.com/chazu/kestrel/manifest"
	"github.com/chazu/kestrel/transcript"
)

func newTestApp(t *testing.T) (*app, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	man := manifest.Default()
	man.Run.Keys = manifest.KeysNone
	return &app{
		man:    man,
		stdout: &stdout,
		stderr: &stderr,
		log:    commonlog.GetLogger("kestrel.cli"),
	}, &stdout, &stderr
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const tripleScript = "make x be 2\nsay \"x=\" (x * 3)\n"

func TestIsCommand(t *testing.T) {
	for _, c := range commands {
		if !isCommand(c) {
			t.Errorf("isCommand(%q) = false", c)
		}
	}
	for _, s := range []string{"game.kes", "", "format"} {
		if isCommand(s) {
			t.Errorf("isCommand(%q) = true", s)
		}
	}
}

func TestCountFlag(t *testing.T) {
	var c countFlag
	c.Set("true")
	c.Set("true")
	if c != 2 {
		t.Errorf("count = %d, want 2", c)
	}
	if err := c.Set("5"); err != nil || c != 5 {
		t.Errorf("Set(5) = %v, count %d", err, c)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, manifest.FileName, "[run]\nyield = \"1ms\"\n")
	script := writeFile(t, dir, "game.kes", "say 1\n")

	m, err := loadManifest("", []string{script})
	if err != nil {
		t.Fatal(err)
	}
	if m.Run.Yield.Milliseconds() != 1 {
		t.Errorf("yield = %v, want 1ms", m.Run.Yield)
	}

	other := writeFile(t, dir, "other.toml", "[log]\nlevel = \"debug\"\n")
	m, err = loadManifest(other, nil)
	if err != nil {
		t.Fatal(err)
	}
	if m.Log.Level != "debug" || m.Dir == "" {
		t.Errorf("config manifest = %+v", m)
	}

	if _, err := loadManifest(filepath.Join(dir, "missing.toml"), nil); err == nil {
		t.Error("missing -config file should fail")
	}
}

func TestRunScript(t *testing.T) {
	a, stdout, _ := newTestApp(t)
	path := writeFile(t, t.TempDir(), "triple.kes", tripleScript)

	if err := a.runScript(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if stdout.String() != "x=6\n" {
		t.Errorf("output = %q, want x=6", stdout.String())
	}
}

func TestRunScriptMissingFile(t *testing.T) {
	a, _, _ := newTestApp(t)
	err := a.runScript(context.Background(), filepath.Join(t.TempDir(), "nope.kes"))
	if err == nil || !strings.Contains(err.Error(), "cannot read") {
		t.Errorf("err = %v, want cannot read", err)
	}
}

func TestRunScriptInterruptedIsNotAnError(t *testing.T) {
	a, _, _ := newTestApp(t)
	path := writeFile(t, t.TempDir(), "loop.kes", "forever\n  say 1\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.runScript(ctx, path); err != nil {
		t.Errorf("runScript after cancel = %v, want nil", err)
	}
}

func TestBuildThenRunImage(t *testing.T) {
	a, stdout, _ := newTestApp(t)
	dir := t.TempDir()
	src := writeFile(t, dir, "triple.kes", tripleScript)

	if err := a.handleBuildCommand([]string{src}); err != nil {
		t.Fatal(err)
	}
	image := filepath.Join(dir, "triple.kesc")
	if _, err := os.Stat(image); err != nil {
		t.Fatalf("image not written: %v", err)
	}

	if err := a.runScript(context.Background(), image); err != nil {
		t.Fatal(err)
	}
	if stdout.String() != "x=6\n" {
		t.Errorf("output = %q, want x=6", stdout.String())
	}

	out := filepath.Join(dir, "custom.kesc")
	if err := a.handleBuildCommand([]string{"-o", out, src}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("-o output not written: %v", err)
	}
}

func TestRunCorruptImage(t *testing.T) {
	a, _, _ := newTestApp(t)
	path := writeFile(t, t.TempDir(), "bad.kesc", "KESC\xff\x00")
	if err := a.runScript(context.Background(), path); err == nil {
		t.Error("corrupt image should fail")
	}
}

func TestCheckCommand(t *testing.T) {
	a, stdout, _ := newTestApp(t)
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.kes", "say 1 @\nghost\n")

	err := a.handleCheckCommand([]string{bad})
	if err == nil || err.Error() != "1 problems found" {
		t.Errorf("err = %v, want 1 problems found", err)
	}
	out := stdout.String()
	if !strings.Contains(out, bad+":1:7:") {
		t.Errorf("output %q missing skipped character note", out)
	}
	if !strings.Contains(out, "ghost") || !strings.Contains(out, "(warning)") {
		t.Errorf("output %q missing undefined procedure warning", out)
	}

	stdout.Reset()
	good := writeFile(t, dir, "good.kes", tripleScript)
	if err := a.handleCheckCommand([]string{good}); err != nil {
		t.Errorf("clean script: %v", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("clean script output = %q", stdout.String())
	}
}

func TestFmtCommand(t *testing.T) {
	a, stdout, _ := newTestApp(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "messy.kes", "make  x be (1)\nsay x   # show\n")

	if err := a.handleFmtCommand([]string{path}); err != nil {
		t.Fatal(err)
	}
	if stdout.String() != "make x be 1\nsay x  # show\n" {
		t.Errorf("fmt output = %q", stdout.String())
	}

	stdout.Reset()
	if err := a.handleFmtCommand([]string{"-w", dir}); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "make x be 1\nsay x  # show\n" {
		t.Errorf("rewritten file = %q", data)
	}
	if !strings.Contains(stdout.String(), "formatted: "+path) {
		t.Errorf("fmt -w output = %q", stdout.String())
	}

	if err := a.handleFmtCommand(nil); err == nil {
		t.Error("fmt without paths should fail")
	}
}

func TestFmtCommandLeavesBrokenFiles(t *testing.T) {
	a, stdout, _ := newTestApp(t)
	dir := t.TempDir()
	content := "say \"first\" ) say \"second\"\n"
	path := writeFile(t, dir, "broken.kes", content)

	err := a.handleFmtCommand([]string{"-w", path})
	if err == nil || !strings.Contains(err.Error(), path) {
		t.Fatalf("fmt -w on a file with parse notes: err = %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != content {
		t.Errorf("broken file was rewritten to %q", data)
	}
	if stdout.Len() != 0 {
		t.Errorf("fmt output = %q", stdout.String())
	}
}

func TestFmtKeepsExampleComments(t *testing.T) {
	scripts, err := filepath.Glob(filepath.Join("..", "..", "examples", "*.kes"))
	if err != nil || len(scripts) == 0 {
		t.Fatalf("no example scripts found: %v", err)
	}
	for _, script := range scripts {
		content, err := os.ReadFile(script)
		if err != nil {
			t.Fatal(err)
		}
		a, stdout, _ := newTestApp(t)
		if err := a.handleFmtCommand([]string{script}); err != nil {
			t.Fatalf("fmt %s: %v", script, err)
		}
		for _, line := range strings.Split(string(content), "\n") {
			i := strings.Index(line, "#")
			if i < 0 || strings.Count(line[:i], `"`)%2 == 1 {
				continue
			}
			comment := strings.TrimRight(line[i:], " \t\r")
			if !strings.Contains(stdout.String(), comment) {
				t.Errorf("%s: comment %q missing from formatted output:\n%s", script, comment, stdout.String())
			}
		}
	}
}

func TestUsageExamplesExist(t *testing.T) {
	var b bytes.Buffer
	printUsage(&b)
	if !strings.Contains(b.String(), usageExamples) {
		t.Fatalf("usage text does not include the examples:\n%s", b.String())
	}
	for _, field := range strings.Fields(usageExamples) {
		if !strings.HasPrefix(field, "examples/") {
			continue
		}
		if _, err := os.Stat(filepath.Join("..", "..", filepath.FromSlash(field))); err != nil {
			t.Errorf("usage mentions %s: %v", field, err)
		}
	}
}

func TestTokensCommand(t *testing.T) {
	a, stdout, _ := newTestApp(t)
	path := writeFile(t, t.TempDir(), "t.kes", "say 1")

	if err := a.handleTokensCommand([]string{path}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "1:1\t") || !strings.HasPrefix(lines[1], "1:5\t") {
		t.Errorf("tokens output = %q", stdout.String())
	}
}

func TestTestCommandRunsFixtures(t *testing.T) {
	a, stdout, _ := newTestApp(t)
	if err := a.handleTestCommand(context.Background(), []string{filepath.Join("..", "..", "fixture", "testdata")}); err != nil {
		t.Fatalf("fixtures failed: %v\n%s", err, stdout.String())
	}
	if !strings.Contains(stdout.String(), " 0 failed") {
		t.Errorf("summary = %q", stdout.String())
	}
}

func TestTestCommandReportsFailures(t *testing.T) {
	a, stdout, _ := newTestApp(t)
	dir := t.TempDir()
	writeFile(t, dir, "wrong.yaml", "name: wrong\nsource: say 1\noutput: [\"2\"]\n")

	err := a.handleTestCommand(context.Background(), []string{dir})
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(stdout.String(), "FAIL  wrong") {
		t.Errorf("output = %q", stdout.String())
	}
}

func TestTranscriptRecording(t *testing.T) {
	a, stdout, _ := newTestApp(t)
	dir := t.TempDir()
	a.man.Transcript.Enabled = true
	a.man.Transcript.Path = filepath.Join(dir, "transcript.db")
	path := writeFile(t, dir, "triple.kes", tripleScript)

	if err := a.runScript(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if stdout.String() != "x=6\n" {
		t.Errorf("stdout = %q; transcript must not replace it", stdout.String())
	}

	store, err := transcript.Open(a.man.Transcript.Path)
	if err != nil {
		t.Fatal(err)
	}
	runs, err := store.Runs(0)
	store.Close()
	if err != nil || len(runs) != 1 {
		t.Fatalf("runs = %v, %v", runs, err)
	}

	stdout.Reset()
	if err := a.handleTranscriptCommand(nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout.String(), runs[0].ID) || !strings.Contains(stdout.String(), "1 lines") {
		t.Errorf("list = %q", stdout.String())
	}

	stdout.Reset()
	if err := a.handleTranscriptCommand([]string{runs[0].ID[:8]}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(stdout.String(), "\nx=6\n") {
		t.Errorf("show = %q", stdout.String())
	}

	if err := a.handleTranscriptCommand([]string{"zzzz"}); err == nil {
		t.Error("unknown run id should fail")
	}
}

func TestExampleScripts(t *testing.T) {
	tests := []struct {
		script string
		want   string
	}{
		{"hello.kes", "Hello, Kestrel!\nThe answer is 42\n17 / 5 = 3 remainder 2\n"},
		{"countdown.kes", "5...\n4...\n3...\n2...\n1...\nliftoff\n"},
	}

	for _, tc := range tests {
		t.Run(tc.script, func(t *testing.T) {
			a, stdout, _ := newTestApp(t)
			if err := a.runScript(context.Background(), filepath.Join("..", "..", "examples", tc.script)); err != nil {
				t.Fatal(err)
			}
			if stdout.String() != tc.want {
				t.Errorf("output = %q, want %q", stdout.String(), tc.want)
			}
		})
	}
}

func TestExamplesPassCheck(t *testing.T) {
	a, stdout, _ := newTestApp(t)
	if err := a.handleCheckCommand([]string{filepath.Join("..", "..", "examples")}); err != nil {
		t.Errorf("check examples: %v\n%s", err, stdout.String())
	}
}
