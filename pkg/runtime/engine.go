package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/lemonberrylabs/calcd/pkg/ast"
	"github.com/lemonberrylabs/calcd/pkg/brainfuck"
	"github.com/lemonberrylabs/calcd/pkg/expr"
	"github.com/lemonberrylabs/calcd/pkg/stdlib"
	"github.com/lemonberrylabs/calcd/pkg/types"
)

// DefaultTimeout is the wall-clock budget of one evaluation or VM run.
const DefaultTimeout = 10 * time.Second

// DefaultMaxExpressionLength is the longest accepted expression, in characters.
const DefaultMaxExpressionLength = 4000

// TimeoutSegment is the segment of the unit appended when a run times out.
const TimeoutSegment = "<unknown>"

// Config bounds the work a single request may do.
type Config struct {
	Timeout             time.Duration
	MaxExpressionLength int // 0 disables the check
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{Timeout: DefaultTimeout, MaxExpressionLength: DefaultMaxExpressionLength}
}

// Unit is the outcome of one top-level statement.
type Unit struct {
	Segment string
	Value   types.Value
	Err     error
}

// Report is the result of one Calculate call.
type Report struct {
	Units       []Unit
	Statements  int
	Elapsed     time.Duration
	Environment []Binding
	TimedOut    bool
}

// Errors returns the failed units in order.
func (r *Report) Errors() []Unit {
	var out []Unit
	for _, u := range r.Units {
		if u.Err != nil {
			out = append(out, u)
		}
	}
	return out
}

// HasErrors reports whether any unit failed.
func (r *Report) HasErrors() bool {
	for _, u := range r.Units {
		if u.Err != nil {
			return true
		}
	}
	return false
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the limits.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLibrary replaces the default library.
func WithLibrary(lib *stdlib.Library) Option {
	return func(e *Engine) { e.lib = lib }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// Engine runs calculator expressions and Brainfuck programs. It holds no
// per-request state and is safe for concurrent use.
type Engine struct {
	cfg Config
	lib *stdlib.Library
	log *zap.Logger
}

// NewEngine creates an engine with the default library and limits.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		cfg: DefaultConfig(),
		lib: stdlib.Default(),
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.Timeout <= 0 {
		e.cfg.Timeout = DefaultTimeout
	}
	return e
}

// Library returns the engine's function library.
func (e *Engine) Library() *stdlib.Library {
	return e.lib
}

// Config returns the engine's limits.
func (e *Engine) Config() Config {
	return e.cfg
}

// Calculate parses and evaluates text. A syntax error fails the whole
// request with a *types.SyntaxError and no units. Otherwise every
// statement yields a unit; a timeout appends a TimeoutError unit after the
// ones that completed.
func (e *Engine) Calculate(ctx context.Context, text string) (*Report, error) {
	if n := utf8.RuneCountInString(text); e.cfg.MaxExpressionLength > 0 && n > e.cfg.MaxExpressionLength {
		return nil, types.NewValueError(fmt.Sprintf("expression is %d characters long, the limit is %d", n, e.cfg.MaxExpressionLength))
	}
	prog, err := expr.Parse(text)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	env := NewEnvironment()
	report := &Report{Statements: len(prog.Statements)}

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	// Buffered so an abandoned worker never blocks.
	units := make(chan Unit, len(prog.Statements)+1)
	go e.evaluate(runCtx, prog, NewScope(e.lib, env), units)

	abandon := func() {
		report.TimedOut = true
		e.log.Warn("evaluation abandoned",
			zap.Duration("timeout", e.cfg.Timeout),
			zap.Int("completed", len(report.Units)),
			zap.Int("statements", report.Statements),
			zap.Error(runCtx.Err()))
		report.Units = append(report.Units, Unit{
			Segment: TimeoutSegment,
			Value:   types.None,
			Err:     timeoutError(ctx, e.cfg.Timeout),
		})
	}

wait:
	for {
		select {
		case u, ok := <-units:
			if !ok {
				// The worker also stops early once runCtx is done.
				if len(report.Units) < report.Statements && runCtx.Err() != nil {
					abandon()
				}
				break wait
			}
			report.Units = append(report.Units, u)
		case <-runCtx.Done():
			abandon()
			break wait
		}
	}

	report.Elapsed = time.Since(start)
	report.Environment = env.Snapshot()
	return report, nil
}

// evaluate is the worker: it streams one unit per statement and closes
// units when done. A panic in a built-in becomes the failing statement's
// unit and ends the run.
func (e *Engine) evaluate(ctx context.Context, prog *expr.Program, scope expr.Scope, units chan<- Unit) {
	defer close(units)
	sent := 0
	defer func() {
		if r := recover(); r != nil {
			segment := TimeoutSegment
			if sent < len(prog.Statements) {
				segment = prog.Segment(prog.Statements[sent])
			}
			e.log.Error("evaluation panicked", zap.String("segment", segment), zap.Any("panic", r))
			units <- Unit{Segment: segment, Value: types.None, Err: fmt.Errorf("internal error: %v", r)}
		}
	}()
	for o := range expr.Run(ctx, prog, scope) {
		units <- Unit(o)
		sent++
	}
}

func timeoutError(parent context.Context, timeout time.Duration) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return types.NewTimeoutError("evaluation cancelled")
	}
	return types.NewTimeoutError(fmt.Sprintf("evaluation exceeded %s", timeout))
}

// Brainfuck runs a program on a worker goroutine. Directives in program
// set the options; a non-nil input replaces any &input= directive. The
// VM's cycle cap bounds the run and the engine timeout bounds the wait.
func (e *Engine) Brainfuck(ctx context.Context, program string, input *string) (*brainfuck.Result, error) {
	code, opts := brainfuck.ParseDirectives(program)
	if input != nil {
		opts.Input = []rune(*input)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	done := make(chan *brainfuck.Result, 1)
	go func() {
		done <- brainfuck.New(brainfuck.Filter(code), opts).Run(runCtx)
	}()

	select {
	case res := <-done:
		if res.Err != nil && res.State == brainfuck.Running {
			return res, res.Err
		}
		return res, nil
	case <-runCtx.Done():
		e.log.Warn("brainfuck run abandoned", zap.Duration("timeout", e.cfg.Timeout), zap.Error(runCtx.Err()))
		return nil, timeoutError(ctx, e.cfg.Timeout)
	}
}

// Execute runs a saved program and returns its result as a value suitable
// for storing. Calculate programs yield {"results": [...], "environment":
// {...}}; Brainfuck programs yield the VM result. Syntax errors, timeouts
// and bracket errors fail the execution.
func (e *Engine) Execute(ctx context.Context, prog *ast.Program, input *string) (types.Value, error) {
	e.log.Debug("executing program", zap.String("kind", string(prog.Kind)), zap.Int("size", len(prog.Source)))

	switch prog.Kind {
	case ast.KindCalculate:
		report, err := e.Calculate(ctx, prog.Source)
		if err != nil {
			return types.None, err
		}
		if report.TimedOut {
			return types.None, report.Units[len(report.Units)-1].Err
		}
		return ReportValue(report), nil

	case ast.KindBrainfuck:
		if input == nil {
			input = prog.Input
		}
		res, err := e.Brainfuck(ctx, prog.Source, input)
		if err != nil {
			return types.None, err
		}
		if res.Err != nil {
			return types.None, res.Err
		}
		return ResultValue(res), nil
	}
	return types.None, fmt.Errorf("unknown program kind %q", prog.Kind)
}

// ReportValue converts a report to a value: one {segment, value} or
// {segment, error} entry per unit plus the final environment.
func ReportValue(r *Report) types.Value {
	results := make([]types.Value, 0, len(r.Units))
	for _, u := range r.Units {
		entry := types.NewOrderedMap()
		entry.Set(types.NewString("segment"), types.NewString(u.Segment))
		if u.Err != nil {
			entry.Set(types.NewString("error"), ErrorValue(u.Err))
		} else {
			entry.Set(types.NewString("value"), u.Value)
		}
		results = append(results, types.NewDict(entry))
	}

	env := types.NewOrderedMap()
	for _, b := range r.Environment {
		env.Set(types.NewString(b.Name), b.Value)
	}

	out := types.NewOrderedMap()
	out.Set(types.NewString("results"), types.NewList(results))
	out.Set(types.NewString("environment"), types.NewDict(env))
	out.Set(types.NewString("statements"), types.NewInt(int64(r.Statements)))
	return types.NewDict(out)
}

// ResultValue converts a Brainfuck result to a value.
func ResultValue(res *brainfuck.Result) types.Value {
	out := types.NewOrderedMap()
	out.Set(types.NewString("output"), types.NewString(res.Output))
	out.Set(types.NewString("cycles"), types.NewInt(int64(res.Cycles)))
	out.Set(types.NewString("state"), types.NewString(res.State.String()))
	out.Set(types.NewString("capReached"), types.NewBool(res.CapReached))
	if res.Memory != nil {
		cells := make([]types.Value, len(res.Memory))
		for i, c := range res.Memory {
			cells[i] = types.NewInt(int64(c))
		}
		out.Set(types.NewString("memory"), types.NewList(cells))
		out.Set(types.NewString("pointer"), types.NewInt(int64(res.Pointer)))
	}
	return types.NewDict(out)
}

// ErrorValue converts an error to a value: tagged errors become
// {"message", "tags"} maps (syntax errors add line and column), anything
// else its text.
func ErrorValue(err error) types.Value {
	var ee *types.EvalError
	if errors.As(err, &ee) {
		return ee.ToValue()
	}
	var se *types.SyntaxError
	if errors.As(err, &se) {
		return se.ToValue()
	}
	return types.NewString(err.Error())
}
