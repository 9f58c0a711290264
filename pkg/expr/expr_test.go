package expr

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lemonberrylabs/calcd/pkg/types"
)

// testScope implements Scope for testing.
type testScope struct {
	vars  map[string]types.Value
	funcs map[string]types.Value
	calls map[string]int
}

func newTestScope() *testScope {
	s := &testScope{
		vars:  make(map[string]types.Value),
		funcs: make(map[string]types.Value),
		calls: make(map[string]int),
	}
	s.define("abs", func(args []types.Value, _ *types.OrderedMap) (types.Value, error) {
		return types.Abs(args[0])
	})
	s.define("counter", func(args []types.Value, _ *types.OrderedMap) (types.Value, error) {
		return types.NewInt(1), nil
	})
	s.define("boom", func(args []types.Value, _ *types.OrderedMap) (types.Value, error) {
		return types.None, types.NewValueError("boom")
	})
	s.define("kw", func(args []types.Value, kwargs *types.OrderedMap) (types.Value, error) {
		k, _ := kwargs.Lookup("k")
		return types.NewTuple([]types.Value{types.NewList(args), k}), nil
	})
	return s
}

func (s *testScope) define(name string, fn types.BuiltinFunc) {
	s.funcs[name] = types.NewFunction(name, func(args []types.Value, kwargs *types.OrderedMap) (types.Value, error) {
		s.calls[name]++
		return fn(args, kwargs)
	})
}

func (s *testScope) Resolve(name string) types.Value {
	if fn, ok := s.funcs[name]; ok {
		return fn
	}
	if v, ok := s.vars[name]; ok {
		return v
	}
	return types.Undefined
}

func (s *testScope) Assign(name string, v types.Value) {
	s.vars[name] = v
}

// runAll evaluates every statement of src and returns the outcomes.
func runAll(t *testing.T, src string, scope Scope) []Outcome {
	t.Helper()
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", src, err)
	}
	var out []Outcome
	for o := range Run(context.Background(), prog, scope) {
		out = append(out, o)
	}
	return out
}

// evalLast returns the repr of the last statement's value.
func evalLast(t *testing.T, src string) string {
	t.Helper()
	outcomes := runAll(t, src, newTestScope())
	if len(outcomes) == 0 {
		t.Fatalf("no statements in %q", src)
	}
	last := outcomes[len(outcomes)-1]
	if last.Err != nil {
		t.Fatalf("eval(%q) error: %v", src, last.Err)
	}
	return last.Value.Repr()
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"2+2", "4"},
		{"1 + 2 * 3", "7"},
		{"(1 + 2) * 3", "9"},
		{"7 // 2", "3"},
		{"-7 % 2", "-1"},
		{"-2 ** 2", "-4"},
		{"2 ** 3 ** 2", "512"},
		{"0.1 + 0.2", "0.3"},
		{"1e3", "1e+3"},
		{"0x1f", "31"},
		{"0o17", "15"},
		{"0b101", "5"},
		{"1_000", "1000"},
		{"2 << 3", "16"},
		{"256 >> 4", "16"},
		{"5 & 3", "1"},
		{"5 | 3", "7"},
		{"5 ^ 3", "6"},
		{"~5", "-6"},
		{"not 1", "False"},
		{"0 or '' or 5", "5"},
		{"1 and 0", "0"},
		{"1 and 2", "2"},
		{"'a' 'b'", "'ab'"},
		{"'ab' * 2", "'abab'"},
		{"[1, 2] + [3]", "[1, 2, 3]"},
		{"(1,)", "(1,)"},
		{"()", "()"},
		{"1, 2", "(1, 2)"},
		{"[]", "[]"},
		{"1 in [1, 2]", "True"},
		{"'a' not in 'abc'", "False"},
		{"None is None", "True"},
		{"1 is not None", "True"},
		{"1 < 2 < 3", "True"},
		{"3 > 2 == 2", "True"},
		{"'x' if 0 else 'y'", "'y'"},
		{"abs(-3)", "3"},
		{"kw(1, k=2)", "([1], 2)"},
		{"missing", "Undefined"},
		{"missing(1, 2)", "Undefined"},
		{"True + 1", "2"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := evalLast(t, tt.input); got != tt.want {
				t.Errorf("eval(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestStatementsAreIndependent(t *testing.T) {
	outcomes := runAll(t, "1/0; 3+3", newTestScope())
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}
	if got := outcomes[0].Value.Repr(); got != "Infinity" {
		t.Errorf("1/0 = %s, want Infinity", got)
	}
	if got := outcomes[1].Value.Repr(); got != "6" {
		t.Errorf("3+3 = %s, want 6", got)
	}

	outcomes = runAll(t, "boom()\n2", newTestScope())
	if !types.IsTag(outcomes[0].Err, types.TagValueError) {
		t.Errorf("boom() error = %v, want ValueError", outcomes[0].Err)
	}
	if outcomes[1].Err != nil || outcomes[1].Value.Repr() != "2" {
		t.Errorf("statement after error = %v, %v", outcomes[1].Value, outcomes[1].Err)
	}
}

func TestSegments(t *testing.T) {
	outcomes := runAll(t, "x = (1 +\n  2)\n\n  x ;  y", newTestScope())
	want := []string{"x = (1 +\n  2)", "x", "y"}
	if len(outcomes) != len(want) {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), len(want))
	}
	for i, o := range outcomes {
		if o.Segment != want[i] {
			t.Errorf("segment %d = %q, want %q", i, o.Segment, want[i])
		}
	}
}

func TestAssignment(t *testing.T) {
	scope := newTestScope()
	outcomes := runAll(t, "x = 5\nx * 2\nx = 1; x = 2; x\na = b = 3\na + b", scope)
	wants := []string{"None", "10", "None", "None", "2", "None", "6"}
	if len(outcomes) != len(wants) {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), len(wants))
	}
	for i, o := range outcomes {
		if o.Err != nil {
			t.Fatalf("statement %q error: %v", o.Segment, o.Err)
		}
		if got := o.Value.Repr(); got != wants[i] {
			t.Errorf("%q = %s, want %s", o.Segment, got, wants[i])
		}
	}
	if got := scope.vars["x"].Repr(); got != "2" {
		t.Errorf("x = %s, want last write 2", got)
	}
}

func TestUnpacking(t *testing.T) {
	if got := evalLast(t, "a, b = 1, 2; b, a"); got != "(2, 1)" {
		t.Errorf("swap = %s", got)
	}
	if got := evalLast(t, "[a, (b, c)] = [1, 'xy']; c"); got != "'y'" {
		t.Errorf("nested = %s", got)
	}

	tests := []struct {
		input string
		tag   string
	}{
		{"a, b = 1, 2, 3", types.TagValueError},
		{"a, b, c = 1, 2", types.TagValueError},
		{"a, b = 1", types.TagTypeError},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			outcomes := runAll(t, tt.input, newTestScope())
			if !types.IsTag(outcomes[0].Err, tt.tag) {
				t.Errorf("error = %v, want %s", outcomes[0].Err, tt.tag)
			}
		})
	}
}

func TestLazyEvaluation(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1 if True else counter()", "1"},
		{"counter() if False else 2", "2"},
		{"1 < 2 > 5 < counter()", "False"},
		{"0 and counter()", "0"},
		{"1 or counter()", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			scope := newTestScope()
			outcomes := runAll(t, tt.input, scope)
			if outcomes[0].Err != nil {
				t.Fatalf("error: %v", outcomes[0].Err)
			}
			if got := outcomes[0].Value.Repr(); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
			if n := scope.calls["counter"]; n != 0 {
				t.Errorf("counter called %d times, want 0", n)
			}
		})
	}
}

func TestDeterminism(t *testing.T) {
	src := "x = 2 ** 100; y = x / 7; (x, y, x // 3)"
	first := evalLast(t, src)
	for i := 0; i < 5; i++ {
		if got := evalLast(t, src); got != first {
			t.Fatalf("run %d = %s, want %s", i, got, first)
		}
	}
}

func TestNotImplementedNodes(t *testing.T) {
	tests := []struct {
		input string
		kind  string
	}{
		{"{1: 2}", "Dict"},
		{"{}", "Dict"},
		{"{1, 2}", "Set"},
		{"x[0]", "Subscript"},
		{"x[1:2]", "Subscript"},
		{"x.real", "Attribute"},
		{"x += 1", "AugAssign"},
		{"x.y = 1", "Attribute"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			outcomes := runAll(t, tt.input, newTestScope())
			err := outcomes[0].Err
			if !types.IsTag(err, types.TagNotImplementedError) {
				t.Fatalf("error = %v, want NotImplementedError", err)
			}
			want := `Node "` + tt.kind + `" is not implemented`
			if !strings.Contains(err.Error(), want) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), want)
			}
		})
	}
}

func TestEvaluationErrors(t *testing.T) {
	tests := []struct {
		input string
		tag   string
	}{
		{"1 + 'a'", types.TagUnsupportedOperationError},
		{"[1] @ [2]", types.TagUnsupportedOperationError},
		{"'a' < 1", types.TagUnsupportedOperationError},
		{"1 << -1", types.TagValueConversionError},
		{"'a' & 1", types.TagUnsupportedOperationError},
		{"'abc'()", types.TagTypeError},
		{"1 in 2", types.TagUnsupportedOperationError},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			outcomes := runAll(t, tt.input, newTestScope())
			if !types.IsTag(outcomes[0].Err, tt.tag) {
				t.Errorf("error = %v, want %s", outcomes[0].Err, tt.tag)
			}
		})
	}
}

func TestSyntaxErrors(t *testing.T) {
	tests := []struct {
		input  string
		msg    string
		line   int
		column int
	}{
		{"1 +", "invalid syntax", 1, 4},
		{"a b", "invalid syntax", 1, 3},
		{"(1", "'(' was never closed", 1, 1},
		{"1)", "unmatched ')'", 1, 2},
		{"1 = 2", "cannot assign to literal", 1, 1},
		{"f() = 2", "cannot assign to function call", 1, 1},
		{"True = 1", "cannot assign to True", 1, 1},
		{"f(a=1, 2)", "positional argument follows keyword argument", 1, 8},
		{"f(a=1, a=2)", "keyword argument repeated: a", 1, 8},
		{"1 if 2", "expected 'else' after 'if' expression", 1, 7},
		{"x = 1\ny = €", "invalid character '€' (U+20AC)", 2, 5},
		{"x = 1\ny = $", "invalid syntax", 2, 5},
		{"'abc", "unterminated string literal (detected at line 1)", 1, 1},
		{"(1, 2) += 3", "'tuple' is an illegal expression for augmented assignment", 1, 1},
		{"1;;2", "invalid syntax", 1, 3},
		{";", "invalid syntax", 1, 1},
		{"x = 1\n; 2", "invalid syntax", 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Parse(tt.input)
			var se *types.SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("Parse(%q) error = %v, want SyntaxError", tt.input, err)
			}
			if se.Msg != tt.msg {
				t.Errorf("message = %q, want %q", se.Msg, tt.msg)
			}
			if se.Line != tt.line || se.Column != tt.column {
				t.Errorf("position = %d:%d, want %d:%d", se.Line, se.Column, tt.line, tt.column)
			}
			if !types.IsTag(err, types.TagSyntaxError) {
				t.Errorf("IsTag(SyntaxError) = false")
			}
		})
	}
}

func TestTrailingSemicolon(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"1;", 1},
		{"1;\n2", 2},
		{"x = 1 ;  \n", 1},
		{"", 0},
	}
	for _, tt := range tests {
		prog, err := Parse(tt.input)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tt.input, err)
		}
		if len(prog.Statements) != tt.want {
			t.Errorf("Parse(%q) has %d statements, want %d", tt.input, len(prog.Statements), tt.want)
		}
	}
}

func TestExponentRange(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1e100001", "Infinity"},
		{"-1e100001", "-Infinity"},
		{"1e-100001", "0"},
		{"10 ** 100001", "Infinity"},
		{"10 ** -100001", "0"},
		{"9 ** 9 ** 9", "Infinity"},
		{"x = 1e100000; x * 10", "Infinity"},
		{"x = 1e100000; -x * 10", "-Infinity"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := evalLast(t, tt.input); got != tt.want {
				t.Errorf("eval(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseExpression(t *testing.T) {
	node, err := ParseExpression("max(1, 2)")
	if err != nil {
		t.Fatalf("ParseExpression error: %v", err)
	}
	call, ok := node.(*CallNode)
	if !ok {
		t.Fatalf("node = %T, want *CallNode", node)
	}
	if len(call.Args) != 2 {
		t.Errorf("args = %d, want 2", len(call.Args))
	}

	if _, err := ParseExpression("1; 2"); err == nil {
		t.Error("ParseExpression accepted two statements")
	}
	if _, err := ParseExpression("x = 1"); err == nil {
		t.Error("ParseExpression accepted an assignment")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	prog, err := Parse("1; 2; 3")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var n int
	for range Run(ctx, prog, newTestScope()) {
		n++
		cancel()
	}
	if n != 1 {
		t.Errorf("evaluated %d statements after cancel, want 1", n)
	}
}

func TestTokenize(t *testing.T) {
	tokens, err := NewLexer("a //= 2 ** -x").Tokenize()
	if err != nil {
		t.Fatal(err)
	}
	want := []TokenType{TokenName, TokenAugAssign, TokenNumber, TokenPower, TokenMinus, TokenName, TokenEOF}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(tokens), len(want))
	}
	for i, tok := range tokens {
		if tok.Type != want[i] {
			t.Errorf("token %d = %s, want %s", i, tok.Type, want[i])
		}
	}
}
