// Package fixture runs YAML conformance fixtures: a script, the keys its
// forever loop sees, and the lines it must print.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chazu/kestrel/compiler"
	"github.com/chazu/kestrel/vm"
)

// Fixture is one conformance case.
type Fixture struct {
	Name   string   `yaml:"name"`
	Source string   `yaml:"source"`
	Keys   []string `yaml:"keys"`
	// Polls is how many forever iterations run before the loop is stopped.
	// Zero means the script must finish on its own.
	Polls  int      `yaml:"polls"`
	Output []string `yaml:"output"`
	// Diagnostics, when set, is the expected number of parser notes.
	Diagnostics *int `yaml:"diagnostics"`

	Path string `yaml:"-"`
}

// Result is the outcome of running a fixture.
type Result struct {
	Fixture *Fixture
	Output  []string
	Failure string
}

// Passed reports whether the fixture matched.
func (r *Result) Passed() bool {
	return r.Failure == ""
}

// Load reads a single fixture file. Unknown fields are rejected.
func Load(path string) (*Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fixture: %w", err)
	}
	defer f.Close()

	fx, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("fixture: %s: %w", path, err)
	}
	fx.Path = path
	if fx.Name == "" {
		fx.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return fx, nil
}

// Decode parses one fixture document.
func Decode(r io.Reader) (*Fixture, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var fx Fixture
	if err := dec.Decode(&fx); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty fixture")
		}
		return nil, err
	}
	if fx.Polls < 0 {
		return nil, fmt.Errorf("polls must not be negative, got %d", fx.Polls)
	}
	return &fx, nil
}

// LoadDir reads every .yaml and .yml fixture in dir, sorted by file name.
func LoadDir(dir string) ([]*Fixture, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("fixture: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	fixtures := make([]*Fixture, 0, len(names))
	for _, name := range names {
		fx, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		fixtures = append(fixtures, fx)
	}
	return fixtures, nil
}

// Run executes the fixture on a fresh interpreter. ctx bounds scripts that
// never stop on their own.
func (fx *Fixture) Run(ctx context.Context) *Result {
	res := &Result{Fixture: fx}

	prog, diags := compiler.ParseWithDiagnostics(fx.Source)
	if fx.Diagnostics != nil && len(diags) != *fx.Diagnostics {
		res.Failure = fmt.Sprintf("got %d diagnostics %v, want %d", len(diags), diags, *fx.Diagnostics)
		return res
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	keys := vm.NewScriptedKeys(fx.Keys...)
	keys.Limit = fx.Polls
	keys.Stop = cancel

	out := &vm.CaptureSink{}
	interp := vm.New(vm.WithOutput(out), vm.WithKeys(keys), vm.WithYield(0), vm.WithPollTimeout(0))
	err := interp.Run(runCtx, prog.Statements)
	res.Output = out.Lines()

	stoppedByLimit := fx.Polls > 0 && keys.Polls() >= fx.Polls
	switch {
	case err != nil && !stoppedByLimit:
		res.Failure = fmt.Sprintf("run did not finish: %v", err)
	case err == nil && fx.Polls > 0:
		res.Failure = fmt.Sprintf("script finished after %d polls, want %d", keys.Polls(), fx.Polls)
	default:
		res.Failure = diffLines(res.Output, fx.Output)
	}
	return res
}

// diffLines describes the first difference between got and want, or
// returns "" if they match.
func diffLines(got, want []string) string {
	for i := 0; i < len(got) && i < len(want); i++ {
		if got[i] != want[i] {
			return fmt.Sprintf("line %d: got %q, want %q", i+1, got[i], want[i])
		}
	}
	switch {
	case len(got) > len(want):
		return fmt.Sprintf("unexpected extra line %d: %q", len(want)+1, got[len(want)])
	case len(got) < len(want):
		return fmt.Sprintf("missing line %d: %q", len(got)+1, want[len(got)])
	}
	return ""
}
