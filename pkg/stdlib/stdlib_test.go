package stdlib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonberrylabs/calcd/pkg/types"
)

func n(s string) types.Value {
	return types.MustNumber(s)
}

func s(v string) types.Value {
	return types.NewString(v)
}

func list(items ...types.Value) types.Value {
	return types.NewList(items)
}

func kw(pairs ...any) *types.OrderedMap {
	m := types.NewOrderedMap()
	for i := 0; i < len(pairs); i += 2 {
		m.Set(types.NewString(pairs[i].(string)), pairs[i+1].(types.Value))
	}
	return m
}

func call(t *testing.T, name string, kwargs *types.OrderedMap, args ...types.Value) (types.Value, error) {
	t.Helper()
	fn, err := Default().Lookup(name)
	require.NoError(t, err)
	return types.Call(fn, args, kwargs)
}

func TestDefaultIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestLookup(t *testing.T) {
	lib := Default()

	abs, err := lib.Lookup("abs")
	require.NoError(t, err)
	assert.Equal(t, "<built-in function absolute>", abs.Repr())

	e, err := lib.Lookup("e")
	require.NoError(t, err)
	assert.Equal(t, "2.718281828459045", e.Repr())

	undef, err := lib.Lookup("undef")
	require.NoError(t, err)
	assert.True(t, undef.IsUndefined())

	prod, err := lib.Lookup("prod")
	require.NoError(t, err)
	assert.Equal(t, types.TypeFunction, prod.Type())

	_, err = lib.Lookup("nope")
	assert.True(t, types.IsTag(err, types.TagNameNotFoundError))

	assert.True(t, lib.Contains("hypot"))
	assert.True(t, lib.Contains("tau"))
	assert.False(t, lib.Contains("PI"))
}

func TestNamesOrder(t *testing.T) {
	lib := Default()
	names := lib.Names()
	require.Len(t, names, lib.Len())

	funcs := lib.Functions()
	consts := lib.Constants()
	assert.Equal(t, funcs, names[:len(funcs)])
	assert.Equal(t, consts, names[len(funcs):len(funcs)+len(consts)])
	assert.Contains(t, funcs, "product")
	assert.Contains(t, consts, "undefined")
	assert.Equal(t, "arcsinh", lib.Aliases()["asinh"])
}

func TestOptions(t *testing.T) {
	lib := New(
		WithFunction("twice", func(args []types.Value, _ *types.OrderedMap) (types.Value, error) {
			return types.Mul(args[0], types.NewInt(2))
		}),
		WithConstant("answer", types.NewInt(42)),
		WithAlias("double", "twice"),
	)
	fn, err := lib.Lookup("double")
	require.NoError(t, err)
	got, err := types.Call(fn, []types.Value{types.NewInt(21)}, nil)
	require.NoError(t, err)
	assert.Equal(t, "42", got.Repr())

	_, err = Default().Lookup("twice")
	assert.Error(t, err, "options must not leak into the default library")
}

func TestBuiltins(t *testing.T) {
	tests := []struct {
		name   string
		fn     string
		args   []types.Value
		kwargs *types.OrderedMap
		want   string
	}{
		{"max varargs", "max", []types.Value{n("3"), n("7"), n("5")}, nil, "7"},
		{"max iterable", "max", []types.Value{list(n("1"), n("9"))}, nil, "9"},
		{"max default", "max", []types.Value{list()}, kw("default", n("1")), "1"},
		{"min key", "min", []types.Value{list(n("-5"), n("2"))}, kw("key", mustLookup(t, "abs")), "2"},
		{"sum", "sum", []types.Value{list(n("1"), n("2"), n("3.5"))}, nil, "6.5"},
		{"sum start", "sum", []types.Value{list(n("1")), n("10")}, nil, "11"},
		{"product", "product", []types.Value{list(n("2"), n("3"), n("4"))}, nil, "24"},
		{"all", "all", []types.Value{list(n("1"), types.NewBool(true))}, nil, "True"},
		{"any empty", "any", []types.Value{list()}, nil, "False"},
		{"length unicode", "length", []types.Value{s("héllo")}, nil, "5"},
		{"bin", "binary", []types.Value{n("5")}, nil, "'0b101'"},
		{"hex negative", "hexadecimal", []types.Value{n("-255")}, nil, "'-0xff'"},
		{"oct", "octal", []types.Value{n("8.9")}, nil, "'0o10'"},
		{"chr", "character", []types.Value{n("65")}, nil, "'A'"},
		{"number string", "number", []types.Value{s(" 1_000.50 ")}, nil, "1000.50"},
		{"number junk is nan", "number", []types.Value{s("abc")}, nil, "NaN"},
		{"number boolean", "number", []types.Value{types.NewBool(true)}, nil, "1"},
		{"boolean", "boolean", []types.Value{s("")}, nil, "False"},
		{"string", "string", []types.Value{n("1e5")}, nil, "'1e+5'"},
		{"round digits", "round", []types.Value{n("2.675"), n("2")}, nil, "2.68"},
		{"round kwargs", "round", []types.Value{n("0.125")}, kw("ndigits", n("2")), "0.12"},
		{"range", "range", []types.Value{n("0"), n("10"), n("3")}, nil, "[0, 3, 6, 9]"},
		{"range negative step", "range", []types.Value{n("3"), n("0"), n("-1")}, nil, "[3, 2, 1]"},
		{"range empty", "range", []types.Value{n("5"), n("1")}, nil, "[]"},
		{"zip", "zip", []types.Value{list(n("1"), n("2")), s("ab")}, nil, "[(1, 'a'), (2, 'b')]"},
		{"enumerate", "enumerate", []types.Value{s("xy")}, kw("start", n("1")), "[(1, 'x'), (2, 'y')]"},
		{"filter none", "filter", []types.Value{types.None, list(n("0"), n("1"), n("2"))}, nil, "[1, 2]"},
		{"map", "map", []types.Value{mustLookup(t, "abs"), list(n("-1"), n("2"))}, nil, "[1, 2]"},
		{"dictionary kwargs", "dictionary", nil, kw("a", n("1")), "{'a': 1}"},
		{"dictionary pairs", "dictionary", []types.Value{list(types.NewTuple([]types.Value{s("k"), n("2")}))}, nil, "{'k': 2}"},
		{"list of string", "list", []types.Value{s("ab")}, nil, "['a', 'b']"},
		{"floor", "floor", []types.Value{n("-2.5")}, nil, "-3"},
		{"ceil", "ceiling", []types.Value{n("2.1")}, nil, "3"},
		{"cos", "cos", []types.Value{n("0")}, nil, "1"},
		{"degrees", "degrees", []types.Value{n("0")}, nil, "0"},
		{"hypot", "hypotenuse", []types.Value{n("3"), n("4")}, nil, "5"},
		{"dist", "distance", []types.Value{list(n("0"), n("0")), list(n("3"), n("4"))}, nil, "5"},
		{"log2", "log2", []types.Value{n("8")}, nil, "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := call(t, tt.fn, tt.kwargs, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Repr())
		})
	}
}

func mustLookup(t *testing.T, name string) types.Value {
	t.Helper()
	v, err := Default().Lookup(name)
	require.NoError(t, err)
	return v
}

func TestDecimalMath(t *testing.T) {
	got, err := call(t, "sqrt", nil, n("16"))
	require.NoError(t, err)
	assert.True(t, got.Equal(types.NewInt(4)), "sqrt(16) = %s", got.Repr())

	got, err = call(t, "sqrt", nil, n("2"))
	require.NoError(t, err)
	assert.Equal(t, "1.4142135623730950488016887242097", got.Repr())

	got, err = call(t, "log10", nil, n("1000"))
	require.NoError(t, err)
	assert.True(t, got.Equal(types.NewInt(3)), "log10(1000) = %s", got.Repr())

	got, err = call(t, "exp", nil, n("0"))
	require.NoError(t, err)
	assert.True(t, got.Equal(types.NewInt(1)), "exp(0) = %s", got.Repr())

	got, err = call(t, "exp", nil, n("1000000"))
	require.NoError(t, err)
	assert.Equal(t, "Infinity", got.Repr())

	got, err = call(t, "exp", nil, n("-1000000"))
	require.NoError(t, err)
	assert.Equal(t, "0", got.Repr())
}

func TestBuiltinErrors(t *testing.T) {
	tests := []struct {
		name   string
		fn     string
		args   []types.Value
		kwargs *types.OrderedMap
		tag    string
	}{
		{"max empty", "max", []types.Value{list()}, nil, types.TagValueError},
		{"max no args", "max", nil, nil, types.TagTypeError},
		{"sqrt negative", "sqrt", []types.Value{n("-1")}, nil, types.TagValueError},
		{"log zero", "log", []types.Value{n("0")}, nil, types.TagValueError},
		{"log base one", "log", []types.Value{n("8"), n("1")}, nil, types.TagZeroDivisionError},
		{"acos domain", "arccos", []types.Value{n("2")}, nil, types.TagValueError},
		{"chr range", "character", []types.Value{n("-1")}, nil, types.TagValueError},
		{"bin nan", "binary", []types.Value{n("NaN")}, nil, types.TagValueConversionError},
		{"range step zero", "range", []types.Value{n("1"), n("2"), n("0")}, nil, types.TagValueError},
		{"length of number", "length", []types.Value{n("1")}, nil, types.TagTypeError},
		{"iterate number", "list", []types.Value{n("1")}, nil, types.TagTypeError},
		{"unexpected kwarg", "absolute", []types.Value{n("1")}, kw("x", n("1")), types.TagTypeError},
		{"too many args", "sqrt", []types.Value{n("1"), n("2")}, nil, types.TagTypeError},
		{"dist mismatch", "distance", []types.Value{list(n("1")), list(n("1"), n("2"))}, nil, types.TagValueError},
		{"floor infinity", "floor", []types.Value{n("Infinity")}, nil, types.TagValueConversionError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call(t, tt.fn, tt.kwargs, tt.args...)
			require.Error(t, err)
			assert.True(t, types.IsTag(err, tt.tag), "got %v, want tag %s", err, tt.tag)
		})
	}
}
