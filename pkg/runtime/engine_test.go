package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/lemonberrylabs/calcd/pkg/ast"
	"github.com/lemonberrylabs/calcd/pkg/brainfuck"
	"github.com/lemonberrylabs/calcd/pkg/stdlib"
	"github.com/lemonberrylabs/calcd/pkg/types"
)

func calculate(t *testing.T, e *Engine, text string) *Report {
	t.Helper()
	report, err := e.Calculate(context.Background(), text)
	require.NoError(t, err)
	return report
}

func bindings(env []Binding) []string {
	out := make([]string, len(env))
	for i, b := range env {
		out[i] = b.Name + "=" + b.Value.Repr()
	}
	return out
}

func reprs(units []Unit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		if u.Err != nil {
			out[i] = u.Segment + " !! " + u.Err.Error()
			continue
		}
		out[i] = u.Segment + " => " + u.Value.Repr()
	}
	return out
}

func TestCalculateRoundTrip(t *testing.T) {
	report := calculate(t, NewEngine(), "2+2")
	require.Len(t, report.Units, 1)
	assert.Equal(t, "2+2", report.Units[0].Segment)
	assert.Equal(t, "4", report.Units[0].Value.Repr())
	assert.Equal(t, 1, report.Statements)
	assert.False(t, report.HasErrors())
	assert.False(t, report.TimedOut)
}

func TestCalculateStatementIsolation(t *testing.T) {
	report := calculate(t, NewEngine(), "1/0; 3+3; sqrt(-1); x = 2; x * 5")
	assert.Equal(t, []string{
		"1/0 => Infinity",
		"3+3 => 6",
		"sqrt(-1) !! ValueError: math domain error",
		"x = 2 => None",
		"x * 5 => 10",
	}, reprs(report.Units))
	require.Len(t, report.Errors(), 1)
	assert.Equal(t, "sqrt(-1)", report.Errors()[0].Segment)
	assert.Equal(t, 5, report.Statements)
}

func TestCalculateSyntaxError(t *testing.T) {
	report, err := NewEngine().Calculate(context.Background(), "1 +\n2")
	assert.Nil(t, report)
	var se *types.SyntaxError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 1, se.Line)
	assert.Equal(t, "1 +\n   ^\ninvalid syntax", se.Format())
}

func TestCalculateTooLong(t *testing.T) {
	e := NewEngine(WithConfig(Config{Timeout: time.Second, MaxExpressionLength: 10}))
	_, err := e.Calculate(context.Background(), strings.Repeat("1", 11))
	assert.True(t, types.IsTag(err, types.TagValueError))

	_, err = e.Calculate(context.Background(), "ééééé")
	assert.NoError(t, err)
}

func TestCalculateEnvironment(t *testing.T) {
	report := calculate(t, NewEngine(), "x = 1; y = 2; x = 3; pi = 4; PI; Pi = 5; unknown")
	assert.Equal(t, []string{"x=3", "y=2", "Pi=5"}, bindings(report.Environment))

	last := report.Units[len(report.Units)-1]
	assert.True(t, last.Value.IsUndefined())
	assert.Equal(t, "3.141592653589793", report.Units[4].Value.Repr())
}

func TestCalculateFreshEnvironmentPerCall(t *testing.T) {
	e := NewEngine()
	calculate(t, e, "x = 41")
	report := calculate(t, e, "x")
	assert.True(t, report.Units[0].Value.IsUndefined())
	assert.Empty(t, report.Environment)
}

func TestCalculateConcurrent(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := NewEngine()
	var g errgroup.Group
	for i := range 20 {
		g.Go(func() error {
			report, err := e.Calculate(context.Background(), fmt.Sprintf("x = %d; x * 2", i))
			if err != nil {
				return err
			}
			if got, want := report.Units[1].Value.Repr(), fmt.Sprint(i*2); got != want {
				return fmt.Errorf("run %d: got %s, want %s", i, got, want)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestCalculateTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	defer close(release)

	lib := stdlib.New(stdlib.WithFunction("busy", func(args []types.Value, _ *types.OrderedMap) (types.Value, error) {
		<-release
		return types.NewInt(0), nil
	}))
	e := NewEngine(WithLibrary(lib), WithConfig(Config{Timeout: 50 * time.Millisecond}))

	report := calculate(t, e, "a = 1; a + 1; busy(); a + 2")
	assert.True(t, report.TimedOut)
	require.Len(t, report.Units, 3)
	assert.Equal(t, "a + 1 => 2", reprs(report.Units)[1])

	last := report.Units[2]
	assert.Equal(t, TimeoutSegment, last.Segment)
	assert.True(t, types.IsTag(last.Err, types.TagTimeoutError))
	assert.Equal(t, []string{"a=1"}, bindings(report.Environment))
	assert.Equal(t, 4, report.Statements)
}

func TestCalculateCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := NewEngine().Calculate(ctx, "1; 2")
	require.NoError(t, err)
	assert.True(t, report.TimedOut)
	last := report.Units[len(report.Units)-1]
	assert.Contains(t, last.Err.Error(), "cancelled")
}

func TestCalculatePanicRecovered(t *testing.T) {
	lib := stdlib.New(stdlib.WithFunction("explode", func([]types.Value, *types.OrderedMap) (types.Value, error) {
		panic("kaboom")
	}))
	report := calculate(t, NewEngine(WithLibrary(lib)), "1; explode(); 3")
	require.Len(t, report.Units, 2)
	assert.Equal(t, "explode()", report.Units[1].Segment)
	assert.Contains(t, report.Units[1].Err.Error(), "kaboom")
}

func TestBrainfuck(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := NewEngine()
	res, err := e.Brainfuck(context.Background(), "++++++++[>++++[>++>+++>+++>+<<<<-]>+>+>->>+[<]<-]>>.>---.+++++++..+++.", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello", res.Output)
	assert.Equal(t, brainfuck.HaltedNormal, res.State)

	input := "hi"
	res, err = e.Brainfuck(context.Background(), ",.,. &input=xy", &input)
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Output)

	res, err = e.Brainfuck(context.Background(), "+[", nil)
	require.NoError(t, err)
	assert.Equal(t, brainfuck.HaltedBracketError, res.State)
	assert.True(t, types.IsTag(res.Err, types.TagBracketMismatchError))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Brainfuck(ctx, "+[]", nil)
	assert.True(t, types.IsTag(err, types.TagTimeoutError))
}

func TestExecute(t *testing.T) {
	e := NewEngine()

	got, err := e.Execute(context.Background(), &ast.Program{Kind: ast.KindCalculate, Source: "r = 2; r * 3; 1 + 'a'"}, nil)
	require.NoError(t, err)
	b, err := got.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"results": [
			{"segment": "r = 2", "value": null},
			{"segment": "r * 3", "value": 6},
			{"segment": "1 + 'a'", "error": {
				"message": "unsupported operand type(s) for +: 'Number' and 'str'",
				"tags": ["UnsupportedOperationError"]}}
		],
		"environment": {"r": 2},
		"statements": 3
	}`, string(b))

	input := "A"
	prog := &ast.Program{Kind: ast.KindBrainfuck, Source: "&dump ,.>", Input: &input}
	got, err = e.Execute(context.Background(), prog, nil)
	require.NoError(t, err)
	b, err = got.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"output": "A", "cycles": 3, "state": "HaltedNormal", "capReached": false, "memory": [65, 0], "pointer": 1}`, string(b))

	override := "B"
	got, err = e.Execute(context.Background(), prog, &override)
	require.NoError(t, err)
	b, _ = got.MarshalJSON()
	assert.Contains(t, string(b), `"output":"B"`)

	_, err = e.Execute(context.Background(), &ast.Program{Kind: ast.KindCalculate, Source: "1 +"}, nil)
	assert.True(t, types.IsTag(err, types.TagSyntaxError))

	_, err = e.Execute(context.Background(), &ast.Program{Kind: ast.KindBrainfuck, Source: "]"}, nil)
	assert.True(t, types.IsTag(err, types.TagBracketMismatchError))
}

func TestEnvironmentOrder(t *testing.T) {
	env := NewEnvironment()
	env.Set("b", types.NewInt(1))
	env.Set("a", types.NewInt(2))
	env.Set("b", types.NewInt(3))
	assert.Equal(t, 2, env.Len())
	snap := env.Snapshot()
	assert.Equal(t, "b", snap[0].Name)
	assert.Equal(t, "3", snap[0].Value.Repr())

	scope := NewScope(stdlib.Default(), env)
	scope.Assign("sqrt", types.NewInt(1))
	_, ok := env.Get("sqrt")
	assert.False(t, ok)

	scope.Assign("SQRT", types.NewInt(1))
	_, ok = env.Get("SQRT")
	assert.True(t, ok)
	assert.Equal(t, types.TypeFunction, scope.Resolve("SQRT").Type())
}
