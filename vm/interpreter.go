package vm

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/kestrel/compiler"
)

// Defaults for the forever loop.
const (
	DefaultPollTimeout = 10 * time.Millisecond
	DefaultYield       = 5 * time.Millisecond
)

// ---------------------------------------------------------------------------
// Interpreter: tree-walking execution engine
// ---------------------------------------------------------------------------

// Interpreter executes parsed Kestrel statements. It owns the variable
// environment, the procedure table and the recorded-key slot. An
// Interpreter is not safe for concurrent use; separate instances share
// nothing.
type Interpreter struct {
	env   map[string]Value
	procs map[string][]compiler.Stmt

	// Recorded key of the innermost running forever loop.
	key    string
	hasKey bool

	keys        KeySource
	out         Sink
	pollTimeout time.Duration
	yield       time.Duration

	log   commonlog.Logger
	runID string
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithKeys sets the key source polled by forever loops.
func WithKeys(k KeySource) Option {
	return func(i *Interpreter) { i.keys = k }
}

// WithOutput sets where say lines go.
func WithOutput(s Sink) Option {
	return func(i *Interpreter) { i.out = s }
}

// WithPollTimeout bounds each key poll.
func WithPollTimeout(d time.Duration) Option {
	return func(i *Interpreter) { i.pollTimeout = d }
}

// WithYield sets the pause between forever iterations. Zero disables it.
func WithYield(d time.Duration) Option {
	return func(i *Interpreter) { i.yield = d }
}

// WithLogger replaces the default kestrel.vm logger.
func WithLogger(l commonlog.Logger) Option {
	return func(i *Interpreter) { i.log = l }
}

// WithRunID sets the identifier used in log messages and transcripts.
func WithRunID(id string) Option {
	return func(i *Interpreter) { i.runID = id }
}

// New creates an interpreter with an empty environment. Without options it
// reads no keys and discards output.
func New(opts ...Option) *Interpreter {
	i := &Interpreter{
		env:         make(map[string]Value),
		procs:       make(map[string][]compiler.Stmt),
		keys:        NoKeys{},
		out:         discardSink{},
		pollTimeout: DefaultPollTimeout,
		yield:       DefaultYield,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.log == nil {
		i.log = commonlog.GetLogger("kestrel.vm")
	}
	if i.runID == "" {
		i.runID = uuid.NewString()
	}
	return i
}

type discardSink struct{}

func (discardSink) WriteLine(string) error { return nil }

// RunID returns the identifier of this interpreter's run.
func (i *Interpreter) RunID() string {
	return i.runID
}

// Run executes statements in order. Evaluation itself never fails; the only
// error is ctx's, observed at forever iteration boundaries.
func (i *Interpreter) Run(ctx context.Context, stmts []compiler.Stmt) error {
	i.log.Debugf("run %s: %d statements", i.runID, len(stmts))
	err := i.execBody(ctx, stmts)
	if err != nil {
		i.log.Infof("run %s stopped: %s", i.runID, err)
	}
	return err
}

// RunSource parses and runs source text.
func (i *Interpreter) RunSource(ctx context.Context, source string) error {
	return i.Run(ctx, compiler.Parse(source))
}

// ---------------------------------------------------------------------------
// State access
// ---------------------------------------------------------------------------

// Lookup returns a variable's value.
func (i *Interpreter) Lookup(name string) (Value, bool) {
	v, ok := i.env[name]
	return v, ok
}

// Env returns a copy of the variable environment.
func (i *Interpreter) Env() map[string]Value {
	out := make(map[string]Value, len(i.env))
	for k, v := range i.env {
		out[k] = v
	}
	return out
}

// Procedure returns a stored procedure body.
func (i *Interpreter) Procedure(name string) ([]compiler.Stmt, bool) {
	body, ok := i.procs[name]
	return body, ok
}

// Procedures returns the defined procedure names, sorted.
func (i *Interpreter) Procedures() []string {
	names := make([]string, 0, len(i.procs))
	for name := range i.procs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset clears the environment, the procedure table and the key slot.
func (i *Interpreter) Reset() {
	i.env = make(map[string]Value)
	i.procs = make(map[string][]compiler.Stmt)
	i.key, i.hasKey = "", false
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (i *Interpreter) execBody(ctx context.Context, body []compiler.Stmt) error {
	for _, s := range body {
		if err := i.exec(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (i *Interpreter) exec(ctx context.Context, s compiler.Stmt) error {
	switch n := s.(type) {
	case *compiler.Make:
		if n.Value != nil {
			i.env[n.Name] = i.Eval(n.Value)
		}
		if len(n.Body) > 0 {
			i.procs[n.Name] = n.Body
		}

	case *compiler.Change:
		i.env[n.Name] = i.Eval(n.Value)

	case *compiler.Say:
		i.say(n.Values)

	case *compiler.If:
		if i.Eval(n.Cond).Truthy() {
			return i.execBody(ctx, n.Body)
		}

	case *compiler.Repeat:
		count, _ := i.Eval(n.Count).Int()
		for k := int64(0); k < count; k++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := i.execBody(ctx, n.Body); err != nil {
				return err
			}
		}

	case *compiler.Forever:
		return i.forever(ctx, n.Body)

	case *compiler.ExprStmt:
		if call, ok := n.Expr.(*compiler.Call); ok {
			return i.call(ctx, call.Name)
		}
		i.Eval(n.Expr)
	}
	return nil
}

func (i *Interpreter) say(values []compiler.Expr) {
	var line []byte
	for _, e := range values {
		line = append(line, i.Eval(e).String()...)
	}
	if err := i.out.WriteLine(string(line)); err != nil {
		i.log.Warningf("run %s: output: %s", i.runID, err)
	}
}

// call runs a stored procedure. There is no depth limit: a procedure that
// invokes itself unconditionally exhausts the goroutine stack.
func (i *Interpreter) call(ctx context.Context, name string) error {
	body, ok := i.procs[name]
	if !ok {
		i.log.Debugf("run %s: call to undefined procedure %q", i.runID, name)
		return nil
	}
	return i.execBody(ctx, body)
}

// forever polls one key per iteration, records it for pressed predicates,
// runs the body, then yields. It returns only when ctx is done. The
// previously recorded key is restored on the way out.
func (i *Interpreter) forever(ctx context.Context, body []compiler.Stmt) error {
	savedKey, savedHas := i.key, i.hasKey
	defer func() { i.key, i.hasKey = savedKey, savedHas }()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		i.key, i.hasKey = i.keys.Poll(i.pollTimeout)
		if !i.hasKey {
			i.key = ""
		}
		if err := i.execBody(ctx, body); err != nil {
			return err
		}
		if err := i.pause(ctx); err != nil {
			return err
		}
	}
}

func (i *Interpreter) pause(ctx context.Context) error {
	if i.yield <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(i.yield)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// Eval evaluates an expression against the current state. It never fails:
// every mismatch yields Number(0).
func (i *Interpreter) Eval(e compiler.Expr) Value {
	switch n := e.(type) {
	case *compiler.NumberLiteral:
		return Number(n.Value)
	case *compiler.TextLiteral:
		return Text(n.Value)
	case *compiler.Variable:
		if v, ok := i.env[n.Name]; ok {
			return v
		}
		return Zero
	case *compiler.BinaryOp:
		return Arith(n.Op, i.Eval(n.Left), i.Eval(n.Right))
	case *compiler.Call:
		return Zero
	case *compiler.KeyPressed:
		if n.Key == compiler.AnyKey {
			return Text(i.key)
		}
		if i.hasKey && i.key == n.Key {
			return Number(1)
		}
		return Zero
	}
	return Zero
}

// Arith applies a binary operator. Only two numbers combine; division and
// remainder truncate toward zero and yield 0 for a zero divisor. Overflow
// wraps.
func Arith(op string, a, b Value) Value {
	x, ok := a.Int()
	if !ok {
		return Zero
	}
	y, ok := b.Int()
	if !ok {
		return Zero
	}
	switch op {
	case "+":
		return Number(x + y)
	case "-":
		return Number(x - y)
	case "*":
		return Number(x * y)
	case "/":
		if y == 0 {
			return Zero
		}
		return Number(x / y)
	case "%":
		if y == 0 {
			return Zero
		}
		return Number(x % y)
	}
	return Zero
}
