// Kestrel CLI - runs, checks, formats and compiles Kestrel scripts
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/tliron/commonlog"
	"golang.org/x/term"

	"github.com/chazu/kestrel/compiler"
	"github.com/chazu/kestrel/keyboard"
	"github.com/chazu/kestrel/manifest"
	"github.com/chazu/kestrel/transcript"
	"github.com/chazu/kestrel/vm"

	_ "github.com/tliron/commonlog/simple"
)

const version = "0.1.0"

// countFlag counts repetitions of a boolean flag such as -v -v.
type countFlag int

func (c *countFlag) String() string { return strconv.Itoa(int(*c)) }

func (c *countFlag) Set(s string) error {
	if s == "true" {
		*c++
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*c = countFlag(n)
	return nil
}

func (c *countFlag) IsBoolFlag() bool { return true }

// app carries the state shared by all subcommands.
type app struct {
	man     *manifest.Manifest
	verbose int
	stdin   *os.File
	stdout  io.Writer
	stderr  io.Writer
	log     commonlog.Logger
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "Usage: kes [options] <script>\n")
	fmt.Fprintf(w, "       kes [options] <command> [args...]\n\n")
	fmt.Fprintf(w, "Runs Kestrel scripts (.kes source or .kesc compiled images).\n\n")
	fmt.Fprintf(w, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(w, "\nCommands:\n")
	fmt.Fprintf(w, "  run <script>            Run a script\n")
	fmt.Fprintf(w, "  fmt [-w] <files...>     Print or rewrite files in canonical form\n")
	fmt.Fprintf(w, "  check <files...>        Report parse notes and lint warnings\n")
	fmt.Fprintf(w, "  tokens <file>           Print the token stream\n")
	fmt.Fprintf(w, "  build [-o out] <file>   Compile a script to a .kesc image\n")
	fmt.Fprintf(w, "  test [dir]              Run YAML conformance fixtures\n")
	fmt.Fprintf(w, "  lsp                     Start the language server on stdio\n")
	fmt.Fprintf(w, "  transcript [run-id]     List recorded runs, or print one\n")
	fmt.Fprintf(w, "\nExamples:\n")
	fmt.Fprint(w, usageExamples)
}

const usageExamples = `  kes examples/countdown.kes   # Run a script
  kes -i                       # Start REPL
  kes fmt -w examples/         # Format all scripts in place
`

func main() {
	var verbose countFlag
	interactive := flag.Bool("i", false, "Start interactive REPL")
	configPath := flag.String("config", "", "Path to kestrel.toml (default: search upward from the script)")
	flag.Var(&verbose, "v", "Verbose logging (repeat for more)")

	flag.Usage = func() { printUsage(os.Stderr) }
	flag.Parse()

	args := flag.Args()
	cmd := ""
	if len(args) > 0 && isCommand(args[0]) {
		cmd, args = args[0], args[1:]
	}

	man, err := loadManifest(*configPath, args)
	if err != nil {
		fatal(err)
	}
	if err := configureLogging(man, int(verbose)); err != nil {
		fatal(err)
	}

	a := &app{
		man:     man,
		verbose: int(verbose),
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		log:     commonlog.GetLogger("kestrel.cli"),
	}

	// Ctrl-C stops forever loops; the terminal key source keeps signals on.
	// After the first signal the default handling comes back, so a second
	// Ctrl-C kills a script that does not stop.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	switch {
	case cmd != "":
		err = a.dispatch(ctx, cmd, args)
	case *interactive:
		err = a.runREPL()
	case len(args) > 0:
		err = a.runScript(ctx, args[0])
	case man.EntryPath() != "":
		err = a.runScript(ctx, man.EntryPath())
	default:
		err = a.runREPL()
	}
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

var commands = []string{"run", "fmt", "check", "tokens", "build", "test", "lsp", "transcript"}

func isCommand(name string) bool {
	for _, c := range commands {
		if c == name {
			return true
		}
	}
	return false
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "run":
		if len(args) == 0 {
			if entry := a.man.EntryPath(); entry != "" {
				return a.runScript(ctx, entry)
			}
			return errors.New("run requires a script path")
		}
		return a.runScript(ctx, args[0])
	case "fmt":
		return a.handleFmtCommand(args)
	case "check":
		return a.handleCheckCommand(args)
	case "tokens":
		return a.handleTokensCommand(args)
	case "build":
		return a.handleBuildCommand(args)
	case "test":
		return a.handleTestCommand(ctx, args)
	case "lsp":
		return a.handleLSPCommand()
	case "transcript":
		return a.handleTranscriptCommand(args)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// loadManifest reads the -config file if given, otherwise searches upward
// from the first path argument (or the working directory). Without a
// kestrel.toml the defaults apply.
func loadManifest(configPath string, args []string) (*manifest.Manifest, error) {
	if configPath != "" {
		info, err := os.Stat(configPath)
		if err != nil {
			return nil, fmt.Errorf("manifest: %w", err)
		}
		if info.IsDir() {
			return manifest.Load(configPath)
		}
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("manifest: cannot read %s: %w", configPath, err)
		}
		m, err := manifest.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("manifest: %s: %w", configPath, err)
		}
		if m.Dir, err = filepath.Abs(filepath.Dir(configPath)); err != nil {
			return nil, err
		}
		return m, nil
	}

	start := "."
	if len(args) > 0 {
		if info, err := os.Stat(args[0]); err == nil {
			if info.IsDir() {
				start = args[0]
			} else {
				start = filepath.Dir(args[0])
			}
		}
	}
	m, err := manifest.FindAndLoad(start)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
	}
	return m, nil
}

// configureLogging applies [log] settings; each -v raises the level by one.
func configureLogging(m *manifest.Manifest, verbose int) error {
	verbosity, err := manifest.Verbosity(m.Log.Level)
	if err != nil {
		return err
	}
	verbosity += verbose
	if path := m.LogFile(); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("cannot create log directory: %w", err)
		}
		commonlog.Configure(verbosity, &path)
	} else {
		commonlog.Configure(verbosity, nil)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Running scripts
// ---------------------------------------------------------------------------

// loadProgram reads a .kes source file or a .kesc image.
func loadProgram(path string) ([]compiler.Stmt, [32]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, [32]byte{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if compiler.IsImage(data) {
		img, err := compiler.UnmarshalImage(data)
		if err != nil {
			return nil, [32]byte{}, fmt.Errorf("%s: %w", path, err)
		}
		return img.Statements, img.Fingerprint, nil
	}
	stmts := compiler.Parse(string(data))
	sum, err := compiler.Fingerprint(stmts)
	if err != nil {
		return nil, [32]byte{}, err
	}
	return stmts, sum, nil
}

// keySource opens the terminal when configured and stdin is a terminal.
// The returned close func is never nil.
func (a *app) keySource() (vm.KeySource, func()) {
	if a.man.Run.Keys != manifest.KeysTerminal || a.stdin == nil || !term.IsTerminal(int(a.stdin.Fd())) {
		return vm.NoKeys{}, func() {}
	}
	t, err := keyboard.Open(a.stdin)
	if err != nil {
		a.log.Warningf("keyboard unavailable: %s", err)
		return vm.NoKeys{}, func() {}
	}
	return t, func() {
		if err := t.Close(); err != nil {
			a.log.Errorf("restoring terminal: %s", err)
		}
	}
}

func (a *app) runScript(ctx context.Context, path string) error {
	stmts, sum, err := loadProgram(path)
	if err != nil {
		return err
	}

	keys, closeKeys := a.keySource()
	defer closeKeys()

	opts := []vm.Option{
		vm.WithKeys(keys),
		vm.WithPollTimeout(a.man.Run.PollTimeout.Duration),
		vm.WithYield(a.man.Run.Yield.Duration),
	}

	var sink vm.Sink = vm.WriterSink{W: a.stdout}
	if a.man.Transcript.Enabled {
		store, err := transcript.Open(a.man.TranscriptPath())
		if err != nil {
			return err
		}
		defer store.Close()
		rec, err := store.BeginRun(path, sum)
		if err != nil {
			return err
		}
		sink = vm.MultiSink(sink, rec)
		opts = append(opts, vm.WithRunID(rec.ID()))
	}
	opts = append(opts, vm.WithOutput(sink))

	interp := vm.New(opts...)
	a.log.Infof("run %s: %s (%d statements)", interp.RunID(), path, len(stmts))

	err = interp.Run(ctx, stmts)
	if errors.Is(err, context.Canceled) {
		a.log.Info("interrupted")
		return nil
	}
	return err
}

// ---------------------------------------------------------------------------
// Source tools
// ---------------------------------------------------------------------------

// collectScripts resolves paths to .kes files; directories are walked.
func collectScripts(paths []string) ([]string, error) {
	var result []string

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("cannot access %q: %w", p, err)
		}

		if info.IsDir() {
			err := filepath.Walk(p, func(path string, fi os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !fi.IsDir() && strings.HasSuffix(path, ".kes") {
					result = append(result, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		} else {
			result = append(result, p)
		}
	}

	return result, nil
}

// handleFmtCommand processes the `kes fmt` subcommand.
// Usage:
//
//	kes fmt script.kes       # print canonical source
//	kes fmt -w examples/     # rewrite files in place
func (a *app) handleFmtCommand(args []string) error {
	write := false
	var paths []string
	for _, arg := range args {
		if arg == "-w" {
			write = true
		} else {
			paths = append(paths, arg)
		}
	}
	if len(paths) == 0 {
		return errors.New("fmt requires files or directories")
	}

	files, err := collectScripts(paths)
	if err != nil {
		return err
	}

	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		original := string(content)
		formatted, err := compiler.Format(original)
		if err != nil {
			return fmt.Errorf("formatting %s: %w", path, err)
		}

		if !write {
			fmt.Fprint(a.stdout, formatted)
			continue
		}
		if original == formatted {
			continue
		}
		if err := os.WriteFile(path, []byte(formatted), 0644); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "formatted: %s\n", path)
	}
	return nil
}

// handleCheckCommand reports parser notes and lint warnings. Parser notes
// fail the command; warnings do not.
func (a *app) handleCheckCommand(args []string) error {
	if len(args) == 0 {
		return errors.New("check requires files or directories")
	}
	files, err := collectScripts(args)
	if err != nil {
		return err
	}

	problems := 0
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		prog, diags := compiler.ParseWithDiagnostics(string(content))
		for _, d := range diags {
			fmt.Fprintf(a.stdout, "%s:%s\n", path, d)
		}
		problems += len(diags)
		for _, w := range compiler.Check(prog.Statements) {
			fmt.Fprintf(a.stdout, "%s:%s (warning)\n", path, w)
		}
	}
	if problems > 0 {
		return fmt.Errorf("%d problems found", problems)
	}
	return nil
}

func (a *app) handleTokensCommand(args []string) error {
	if len(args) != 1 {
		return errors.New("tokens requires exactly one file")
	}
	content, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	tokens, diags := compiler.TokenizeWithDiagnostics(string(content))
	for _, tok := range tokens {
		fmt.Fprintf(a.stdout, "%d:%d\t%s\n", tok.Pos.Line, tok.Pos.Column, tok)
	}
	for _, d := range diags {
		fmt.Fprintf(a.stderr, "%s: %s\n", args[0], d)
	}
	return nil
}

// handleBuildCommand compiles a script to a .kesc image.
// Usage:
//
//	kes build game.kes              # game.kesc
//	kes build -o out.kesc game.kes  # custom output
func (a *app) handleBuildCommand(args []string) error {
	var output, input string
	for i := 0; i < len(args); i++ {
		if args[i] == "-o" || args[i] == "--output" {
			if i+1 >= len(args) {
				return errors.New("-o requires an output path")
			}
			output = args[i+1]
			i++
			continue
		}
		input = args[i]
	}
	if input == "" {
		return errors.New("build requires a script path")
	}
	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + ".kesc"
	}

	content, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	prog, diags := compiler.ParseWithDiagnostics(string(content))
	for _, d := range diags {
		fmt.Fprintf(a.stderr, "%s:%s\n", input, d)
	}
	data, err := compiler.MarshalImage(prog.Statements)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		return err
	}
	if a.verbose > 0 {
		fmt.Fprintf(a.stdout, "Built %s (%d bytes)\n", output, len(data))
	}
	return nil
}
