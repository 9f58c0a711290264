package stdlib

import (
	"fmt"

	"github.com/lemonberrylabs/calcd/pkg/types"
)

// requireArgs checks that the number of positional args is in range.
// max < 0 means unbounded.
func requireArgs(name string, args []types.Value, min, max int) error {
	if len(args) >= min && (max < 0 || len(args) <= max) {
		return nil
	}
	switch {
	case min == max:
		return types.NewTypeError(fmt.Sprintf("%s() takes exactly %d argument(s) (%d given)", name, min, len(args)))
	case max < 0:
		return types.NewTypeError(fmt.Sprintf("%s() expected at least %d argument(s), got %d", name, min, len(args)))
	case len(args) < min:
		return types.NewTypeError(fmt.Sprintf("%s() expected at least %d argument(s), got %d", name, min, len(args)))
	default:
		return types.NewTypeError(fmt.Sprintf("%s() expected at most %d argument(s), got %d", name, max, len(args)))
	}
}

// allowKwargs rejects keyword arguments other than allowed.
func allowKwargs(name string, kwargs *types.OrderedMap, allowed ...string) error {
	for _, k := range kwargs.Keys() {
		key := k.String()
		ok := false
		for _, a := range allowed {
			if a == key {
				ok = true
				break
			}
		}
		if !ok {
			return types.NewTypeError(fmt.Sprintf("%s() got an unexpected keyword argument '%s'", name, key))
		}
	}
	return nil
}

// positional wraps a function that takes no keyword arguments.
func positional(name string, min, max int, fn func(args []types.Value) (types.Value, error)) types.BuiltinFunc {
	return func(args []types.Value, kwargs *types.OrderedMap) (types.Value, error) {
		if err := allowKwargs(name, kwargs); err != nil {
			return types.None, err
		}
		if err := requireArgs(name, args, min, max); err != nil {
			return types.None, err
		}
		return fn(args)
	}
}

// argOrKwarg returns positional arg i, or the keyword argument name.
func argOrKwarg(args []types.Value, i int, kwargs *types.OrderedMap, name string) (types.Value, bool) {
	if i < len(args) {
		return args[i], true
	}
	return kwargs.Lookup(name)
}

// iterate expands an iterable value: strings yield characters, dicts yield keys.
func iterate(v types.Value) ([]types.Value, error) {
	switch v.Type() {
	case types.TypeString:
		s := v.AsString()
		out := make([]types.Value, 0, len(s))
		for _, r := range s {
			out = append(out, types.NewString(string(r)))
		}
		return out, nil
	case types.TypeList, types.TypeTuple:
		return v.Items(), nil
	case types.TypeDict:
		return v.AsDict().Keys(), nil
	}
	return nil, types.NewTypeError(fmt.Sprintf("'%s' object is not iterable", v.Type()))
}

// requireNumber rejects non-Number-family arguments.
func requireNumber(name string, v types.Value) error {
	if !v.IsNumeric() {
		return types.NewTypeError(fmt.Sprintf("%s() argument must be a number, not '%s'", name, v.Type()))
	}
	return nil
}
