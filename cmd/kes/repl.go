package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/peterh/liner"

	"github.com/chazu/kestrel/compiler"
	"github.com/chazu/kestrel/vm"
)

const (
	historyFile = ".kestrel_history"
	promptMain  = "kes> "
	promptCont  = "...  "
	banner      = "Kestrel REPL - Ctrl+C to cancel input or stop a loop, Ctrl+D to exit. Type :help for commands."
	helpText    = `
REPL commands:
  :help            Show this help
  :quit / :exit    Exit the REPL
  :load <file>     Run a script (.kes or .kesc) in the current session
  :env             List variables and procedures
  :reset           Forget all variables and procedures

Lines that open a body (do, if, repeat, forever) or leave a parenthesis
open continue until an empty line.
`
)

// swapKeys lets the REPL hand the session a fresh key source for each
// input, so the terminal is only in key mode while a script runs.
type swapKeys struct {
	mu  sync.Mutex
	src vm.KeySource
}

func (s *swapKeys) Poll(timeout time.Duration) (string, bool) {
	s.mu.Lock()
	src := s.src
	s.mu.Unlock()
	return src.Poll(timeout)
}

func (s *swapKeys) set(src vm.KeySource) {
	s.mu.Lock()
	s.src = src
	s.mu.Unlock()
}

// session is the persistent interpreter behind the REPL.
type session struct {
	interp *vm.Interpreter
	keys   *swapKeys
	out    io.Writer
	errOut io.Writer
}

func (a *app) newSession() *session {
	keys := &swapKeys{src: vm.NoKeys{}}
	return &session{
		interp: vm.New(
			vm.WithKeys(keys),
			vm.WithOutput(vm.WriterSink{W: a.stdout}),
			vm.WithPollTimeout(a.man.Run.PollTimeout.Duration),
			vm.WithYield(a.man.Run.Yield.Duration),
		),
		keys:   keys,
		out:    a.stdout,
		errOut: a.stderr,
	}
}

// eval parses and runs one input, printing parser notes first.
func (s *session) eval(ctx context.Context, src string) error {
	prog, diags := compiler.ParseWithDiagnostics(src)
	for _, d := range diags {
		fmt.Fprintf(s.errOut, "note: %s\n", d)
	}
	return s.run(ctx, prog.Statements)
}

func (s *session) run(ctx context.Context, stmts []compiler.Stmt) error {
	err := s.interp.Run(ctx, stmts)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(s.errOut, "interrupted")
		return nil
	}
	return err
}

// command handles a line starting with ':'. It reports whether the REPL
// should exit.
func (s *session) command(ctx context.Context, line string) (exit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch strings.ToLower(fields[0]) {
	case ":help", ":h", ":?":
		fmt.Fprint(s.out, helpText)
	case ":quit", ":exit", ":q":
		return true, nil
	case ":reset":
		s.interp.Reset()
		fmt.Fprintln(s.out, "session reset")
	case ":env":
		s.printEnv()
	case ":load":
		if len(fields) < 2 {
			return false, errors.New(":load requires a file path")
		}
		stmts, _, err := loadProgram(fields[1])
		if err != nil {
			return false, err
		}
		return false, s.run(ctx, stmts)
	default:
		return false, fmt.Errorf("unknown command %s (try :help)", fields[0])
	}
	return false, nil
}

func (s *session) printEnv() {
	env := s.interp.Env()
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(s.out, "%s = %#v\n", name, env[name])
	}
	for _, name := range s.interp.Procedures() {
		fmt.Fprintf(s.out, "%s (procedure)\n", name)
	}
	if len(names) == 0 && len(s.interp.Procedures()) == 0 {
		fmt.Fprintln(s.out, "(empty)")
	}
}

// needsMore reports whether src should keep reading lines. Bodies run to
// the end of the input, so anything that opens one waits for an empty line.
func needsMore(src string) bool {
	tokens := compiler.Tokenize(src)
	if len(tokens) == 0 {
		return false
	}
	depth := 0
	for _, tok := range tokens {
		switch tok.Type {
		case compiler.TokenDo, compiler.TokenIf, compiler.TokenRepeat, compiler.TokenForever:
			return true
		case compiler.TokenLParen:
			depth++
		case compiler.TokenRParen:
			depth--
		}
	}
	if depth > 0 {
		return true
	}
	switch tokens[len(tokens)-1].Type {
	case compiler.TokenBe, compiler.TokenTo, compiler.TokenTimes, compiler.TokenMake, compiler.TokenChange, compiler.TokenSay,
		compiler.TokenPlus, compiler.TokenMinus, compiler.TokenStar, compiler.TokenSlash, compiler.TokenPercent:
		return true
	}
	return false
}

// readInput accumulates lines until the input is complete. A blank line
// ends a continued input.
func readInput(ln *liner.State) (string, bool) {
	var b strings.Builder

	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			// Ctrl+C aborts the current input
			return "", true
		}

		if b.Len() == 0 && strings.HasPrefix(strings.TrimSpace(line), ":") {
			return line, true
		}
		if strings.TrimSpace(line) == "" {
			if b.Len() == 0 {
				continue
			}
			return b.String(), true
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if !needsMore(b.String()) {
			return b.String(), true
		}
	}
}

// runREPL starts an interactive read-eval-print loop
func (a *app) runREPL() error {
	fmt.Fprintln(a.stdout, banner)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	// Load history (best-effort)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	s := a.newSession()

	for {
		input, ok := readInput(ln)
		if !ok {
			fmt.Fprintln(a.stdout)
			break
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(input, "\n", " "))

		// Each input gets its own interrupt scope and key source.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		keys, closeKeys := a.keySource()
		s.keys.set(keys)

		var exit bool
		var err error
		if strings.HasPrefix(strings.TrimSpace(input), ":") {
			exit, err = s.command(ctx, input)
		} else {
			err = s.eval(ctx, input)
		}

		s.keys.set(vm.NoKeys{})
		closeKeys()
		stop()

		if err != nil {
			fmt.Fprintf(a.stderr, "Error: %v\n", err)
		}
		if exit {
			break
		}
	}

	// Persist history (best-effort)
	if f, err := os.Create(histPath); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	}
	return nil
}
