package stdlib

import (
	"fmt"
	"unicode/utf8"

	"github.com/lemonberrylabs/calcd/pkg/types"
)

// registerBuiltins registers the general-purpose functions:
// absolute, all, any, boolean, length, max, min, round, sum, product.
func (l *Library) registerBuiltins() {
	l.register("absolute", positional("absolute", 1, 1, func(args []types.Value) (types.Value, error) {
		return types.Abs(args[0])
	}))
	l.register("all", positional("all", 1, 1, stdAll))
	l.register("any", positional("any", 1, 1, stdAny))
	l.register("boolean", positional("boolean", 0, 1, stdBoolean))
	l.register("length", positional("length", 1, 1, stdLength))
	l.register("max", extremum("max", types.Greater))
	l.register("min", extremum("min", types.Less))
	l.register("round", stdRound)
	l.register("sum", fold("sum", types.Add, types.NewInt(0)))
	l.register("product", fold("product", types.Mul, types.NewInt(1)))
}

func stdAll(args []types.Value) (types.Value, error) {
	items, err := iterate(args[0])
	if err != nil {
		return types.None, err
	}
	for _, item := range items {
		if !item.Truthy() {
			return types.NewBool(false), nil
		}
	}
	return types.NewBool(true), nil
}

func stdAny(args []types.Value) (types.Value, error) {
	items, err := iterate(args[0])
	if err != nil {
		return types.None, err
	}
	for _, item := range items {
		if item.Truthy() {
			return types.NewBool(true), nil
		}
	}
	return types.NewBool(false), nil
}

func stdBoolean(args []types.Value) (types.Value, error) {
	if len(args) == 0 {
		return types.NewBool(false), nil
	}
	return types.NewBool(args[0].Truthy()), nil
}

func stdLength(args []types.Value) (types.Value, error) {
	v := args[0]
	switch v.Type() {
	case types.TypeString:
		return types.NewInt(int64(utf8.RuneCountInString(v.AsString()))), nil
	case types.TypeList, types.TypeTuple:
		return types.NewInt(int64(len(v.Items()))), nil
	case types.TypeDict:
		return types.NewInt(int64(v.AsDict().Len())), nil
	}
	return types.None, types.NewTypeError(fmt.Sprintf("object of type '%s' has no len()", v.Type()))
}

func stdRound(args []types.Value, kwargs *types.OrderedMap) (types.Value, error) {
	if err := allowKwargs("round", kwargs, "number", "ndigits"); err != nil {
		return types.None, err
	}
	if err := requireArgs("round", args, 0, 2); err != nil {
		return types.None, err
	}
	x, ok := argOrKwarg(args, 0, kwargs, "number")
	if !ok {
		return types.None, types.NewTypeError("round() missing required argument 'number' (pos 1)")
	}
	if nd, ok := argOrKwarg(args, 1, kwargs, "ndigits"); ok {
		return types.Round(x, &nd)
	}
	return types.Round(x, nil)
}

// extremum builds max or min. better(a, b) reports whether a replaces b.
func extremum(name string, better types.BinaryFunc) types.BuiltinFunc {
	return func(args []types.Value, kwargs *types.OrderedMap) (types.Value, error) {
		if err := allowKwargs(name, kwargs, "key", "default"); err != nil {
			return types.None, err
		}
		if err := requireArgs(name, args, 1, -1); err != nil {
			return types.None, err
		}
		dflt, hasDefault := kwargs.Lookup("default")
		items := args
		if len(args) == 1 {
			var err error
			if items, err = iterate(args[0]); err != nil {
				return types.None, err
			}
		} else if hasDefault {
			return types.None, types.NewTypeError(fmt.Sprintf("Cannot specify a default for %s() with multiple positional arguments", name))
		}
		if len(items) == 0 {
			if hasDefault {
				return dflt, nil
			}
			return types.None, types.NewValueError(fmt.Sprintf("%s() arg is an empty sequence", name))
		}

		key, hasKey := kwargs.Lookup("key")
		keyOf := func(v types.Value) (types.Value, error) {
			if !hasKey || key.IsNone() {
				return v, nil
			}
			return types.Call(key, []types.Value{v}, nil)
		}

		best := items[0]
		bestKey, err := keyOf(best)
		if err != nil {
			return types.None, err
		}
		for _, item := range items[1:] {
			k, err := keyOf(item)
			if err != nil {
				return types.None, err
			}
			replace, err := better(k, bestKey)
			if err != nil {
				return types.None, err
			}
			if replace.Truthy() {
				best, bestKey = item, k
			}
		}
		return best, nil
	}
}

// fold builds sum and product: combine every item of an iterable onto start.
func fold(name string, combine types.BinaryFunc, start types.Value) types.BuiltinFunc {
	return func(args []types.Value, kwargs *types.OrderedMap) (types.Value, error) {
		if err := allowKwargs(name, kwargs, "start"); err != nil {
			return types.None, err
		}
		if err := requireArgs(name, args, 1, 2); err != nil {
			return types.None, err
		}
		items, err := iterate(args[0])
		if err != nil {
			return types.None, err
		}
		acc := start
		if s, ok := argOrKwarg(args, 1, kwargs, "start"); ok {
			acc = s
		}
		if acc.Type() == types.TypeString {
			return types.None, types.NewTypeError(fmt.Sprintf("%s() can't combine strings", name))
		}
		for _, item := range items {
			if acc, err = combine(acc, item); err != nil {
				return types.None, err
			}
		}
		return acc, nil
	}
}
