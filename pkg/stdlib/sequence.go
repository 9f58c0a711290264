package stdlib

import (
	"fmt"
	"math/big"

	"github.com/lemonberrylabs/calcd/pkg/types"
)

// registerSequences registers the container functions. The lazy iterators
// (enumerate, filter, map, range, zip) are materialised as lists.
func (l *Library) registerSequences() {
	l.register("list", positional("list", 0, 1, stdList))
	l.register("dictionary", stdDictionary)
	l.register("enumerate", stdEnumerate)
	l.register("filter", positional("filter", 2, 2, stdFilter))
	l.register("map", positional("map", 2, -1, stdMap))
	l.register("range", positional("range", 1, 3, stdRange))
	l.register("zip", positional("zip", 0, -1, stdZip))
}

func stdList(args []types.Value) (types.Value, error) {
	if len(args) == 0 {
		return types.NewList(nil), nil
	}
	items, err := iterate(args[0])
	if err != nil {
		return types.None, err
	}
	out := make([]types.Value, len(items))
	copy(out, items)
	return types.NewList(out), nil
}

func stdDictionary(args []types.Value, kwargs *types.OrderedMap) (types.Value, error) {
	if err := requireArgs("dictionary", args, 0, 1); err != nil {
		return types.None, err
	}
	m := types.NewOrderedMap()
	if len(args) == 1 {
		src := args[0]
		switch src.Type() {
		case types.TypeDict:
			for _, k := range src.AsDict().Keys() {
				v, _ := src.AsDict().Get(k)
				m.Set(k, v)
			}
		default:
			items, err := iterate(src)
			if err != nil {
				return types.None, err
			}
			for i, item := range items {
				pair, err := iterate(item)
				if err != nil {
					return types.None, types.NewTypeError(fmt.Sprintf("cannot convert dictionary update sequence element #%d to a sequence", i))
				}
				if len(pair) != 2 {
					return types.None, types.NewValueError(fmt.Sprintf("dictionary update sequence element #%d has length %d; 2 is required", i, len(pair)))
				}
				if !types.Hashable(pair[0]) {
					return types.None, types.NewTypeError(fmt.Sprintf("unhashable type: '%s'", pair[0].Type()))
				}
				m.Set(pair[0], pair[1])
			}
		}
	}
	for _, k := range kwargs.Keys() {
		v, _ := kwargs.Get(k)
		m.Set(k, v)
	}
	return types.NewDict(m), nil
}

func stdEnumerate(args []types.Value, kwargs *types.OrderedMap) (types.Value, error) {
	if err := allowKwargs("enumerate", kwargs, "start"); err != nil {
		return types.None, err
	}
	if err := requireArgs("enumerate", args, 1, 2); err != nil {
		return types.None, err
	}
	items, err := iterate(args[0])
	if err != nil {
		return types.None, err
	}
	counter := types.NewInt(0)
	if s, ok := argOrKwarg(args, 1, kwargs, "start"); ok {
		if err := requireNumber("enumerate", s); err != nil {
			return types.None, err
		}
		counter = s
	}
	one := types.NewInt(1)
	out := make([]types.Value, len(items))
	for i, item := range items {
		out[i] = types.NewTuple([]types.Value{counter, item})
		if counter, err = types.Add(counter, one); err != nil {
			return types.None, err
		}
	}
	return types.NewList(out), nil
}

func stdFilter(args []types.Value) (types.Value, error) {
	items, err := iterate(args[1])
	if err != nil {
		return types.None, err
	}
	pred := args[0]
	var out []types.Value
	for _, item := range items {
		keep := item
		if !pred.IsNone() {
			if keep, err = types.Call(pred, []types.Value{item}, nil); err != nil {
				return types.None, err
			}
		}
		if keep.Truthy() {
			out = append(out, item)
		}
	}
	return types.NewList(out), nil
}

func stdMap(args []types.Value) (types.Value, error) {
	fn := args[0]
	iterables, shortest, err := expandAll(args[1:])
	if err != nil {
		return types.None, err
	}
	out := make([]types.Value, shortest)
	for i := 0; i < shortest; i++ {
		callArgs := make([]types.Value, len(iterables))
		for j, items := range iterables {
			callArgs[j] = items[i]
		}
		if out[i], err = types.Call(fn, callArgs, nil); err != nil {
			return types.None, err
		}
	}
	return types.NewList(out), nil
}

func stdZip(args []types.Value) (types.Value, error) {
	iterables, shortest, err := expandAll(args)
	if err != nil {
		return types.None, err
	}
	out := make([]types.Value, shortest)
	for i := 0; i < shortest; i++ {
		row := make([]types.Value, len(iterables))
		for j, items := range iterables {
			row[j] = items[i]
		}
		out[i] = types.NewTuple(row)
	}
	return types.NewList(out), nil
}

// expandAll iterates every argument and returns the shortest length.
func expandAll(args []types.Value) ([][]types.Value, int, error) {
	iterables := make([][]types.Value, len(args))
	shortest := 0
	for i, a := range args {
		items, err := iterate(a)
		if err != nil {
			return nil, 0, err
		}
		iterables[i] = items
		if i == 0 || len(items) < shortest {
			shortest = len(items)
		}
	}
	return iterables, shortest, nil
}

func stdRange(args []types.Value) (types.Value, error) {
	bounds := make([]*big.Int, len(args))
	for i, a := range args {
		if err := requireNumber("range", a); err != nil {
			return types.None, err
		}
		b, err := types.ToBigInt(a)
		if err != nil {
			return types.None, err
		}
		bounds[i] = b
	}
	start, stop, step := big.NewInt(0), bounds[0], big.NewInt(1)
	if len(bounds) >= 2 {
		start, stop = bounds[0], bounds[1]
	}
	if len(bounds) == 3 {
		step = bounds[2]
	}
	if step.Sign() == 0 {
		return types.None, types.NewValueError("range() arg 3 must not be zero")
	}

	// count = ceil((stop - start) / step), clamped at zero
	span := new(big.Int).Sub(stop, start)
	if span.Sign() != 0 && span.Sign() != step.Sign() {
		return types.NewList(nil), nil
	}
	count := new(big.Int).Abs(span)
	absStep := new(big.Int).Abs(step)
	count.Add(count, absStep).Sub(count, big.NewInt(1)).Quo(count, absStep)
	if count.Cmp(big.NewInt(types.MaxSequenceLength)) > 0 {
		return types.None, types.NewValueError(fmt.Sprintf("range() of %s elements is too large", count.String()))
	}

	n := int(count.Int64())
	out := make([]types.Value, n)
	cur := new(big.Int).Set(start)
	for i := 0; i < n; i++ {
		out[i] = types.NewBigInt(new(big.Int).Set(cur))
		cur.Add(cur, step)
	}
	return types.NewList(out), nil
}
