package stdlib

import (
	"fmt"
	"math"

	"github.com/cockroachdb/apd/v3"

	"github.com/lemonberrylabs/calcd/pkg/types"
)

// registerMath registers the math functions. sqrt, exp, log and log10 are
// computed in decimal at the context precision; the trigonometric family and
// log2 go through float64.
func (l *Library) registerMath() {
	l.register("arccos", floatFunc("arccos", math.Acos))
	l.register("arccosh", floatFunc("arccosh", math.Acosh))
	l.register("arcsin", floatFunc("arcsin", math.Asin))
	l.register("arcsinh", floatFunc("arcsinh", math.Asinh))
	l.register("arctan", floatFunc("arctan", math.Atan))
	l.register("arctanh", floatFunc("arctanh", math.Atanh))
	l.register("cos", floatFunc("cos", math.Cos))
	l.register("cosh", floatFunc("cosh", math.Cosh))
	l.register("sin", floatFunc("sin", math.Sin))
	l.register("sinh", floatFunc("sinh", math.Sinh))
	l.register("tan", floatFunc("tan", math.Tan))
	l.register("tanh", floatFunc("tanh", math.Tanh))
	l.register("degrees", floatFunc("degrees", func(x float64) float64 { return x * 180 / math.Pi }))
	l.register("radians", floatFunc("radians", func(x float64) float64 { return x * math.Pi / 180 }))

	l.register("ceiling", positional("ceiling", 1, 1, func(args []types.Value) (types.Value, error) {
		return types.Ceil(args[0])
	}))
	l.register("floor", positional("floor", 1, 1, func(args []types.Value) (types.Value, error) {
		return types.Floor(args[0])
	}))

	l.register("sqrt", positional("sqrt", 1, 1, mathSqrt))
	l.register("exp", positional("exp", 1, 1, mathExp))
	l.register("log", positional("log", 1, 2, mathLog))
	l.register("log2", positional("log2", 1, 1, mathLog2))
	l.register("log10", positional("log10", 1, 1, mathLog10))
	l.register("hypotenuse", positional("hypotenuse", 0, -1, mathHypot))
	l.register("distance", positional("distance", 2, 2, mathDist))
}

func domainError() error {
	return types.NewValueError("math domain error")
}

// floatFunc adapts a float64 function. A NaN result from a non-NaN input is
// a domain error; an infinite result from a finite input is a range error.
func floatFunc(name string, fn func(float64) float64) types.BuiltinFunc {
	return positional(name, 1, 1, func(args []types.Value) (types.Value, error) {
		x, err := types.ToFloat(args[0])
		if err != nil {
			return types.None, err
		}
		y := fn(x)
		switch {
		case math.IsNaN(y) && !math.IsNaN(x):
			return types.None, domainError()
		case math.IsInf(y, 0) && !math.IsInf(x, 0):
			return types.None, types.NewValueError("math range error")
		}
		return types.NewFloat(y), nil
	})
}

type decimalFunc func(d, x *apd.Decimal) (apd.Condition, error)

// applyDecimal runs a one-operand apd method whose result is never
// negative when it leaves apd's exponent range.
func applyDecimal(op decimalFunc, x *apd.Decimal) (types.Value, error) {
	d := new(apd.Decimal)
	cond, err := op(d, x)
	return types.DecimalResult(d, cond, err, func() bool { return false })
}

// number returns the decimal behind a Number-family argument.
func number(name string, v types.Value) (*apd.Decimal, error) {
	if err := requireNumber(name, v); err != nil {
		return nil, err
	}
	return v.Decimal(), nil
}

func mathSqrt(args []types.Value) (types.Value, error) {
	x, err := number("sqrt", args[0])
	if err != nil {
		return types.None, err
	}
	if x.Sign() < 0 {
		return types.None, domainError()
	}
	return applyDecimal(types.DecimalContext().Sqrt, x)
}

func mathExp(args []types.Value) (types.Value, error) {
	x, err := number("exp", args[0])
	if err != nil {
		return types.None, err
	}
	return applyDecimal(types.DecimalContext().Exp, x)
}

// ln computes the natural logarithm, rejecting zero and negative inputs.
func ln(name string, v types.Value) (*apd.Decimal, error) {
	x, err := number(name, v)
	if err != nil {
		return nil, err
	}
	if x.Form == apd.Finite && x.Sign() <= 0 || x.Form == apd.Infinite && x.Negative {
		return nil, domainError()
	}
	d := new(apd.Decimal)
	cond, err := types.DecimalContext().Ln(d, x)
	v, err = types.DecimalResult(d, cond, err, func() bool { return x.Cmp(apd.New(1, 0)) < 0 })
	if err != nil {
		return nil, err
	}
	return v.Decimal(), nil
}

func quo(x, y *apd.Decimal) (types.Value, error) {
	d := new(apd.Decimal)
	cond, err := types.DecimalContext().Quo(d, x, y)
	return types.DecimalResult(d, cond, err, func() bool { return x.Negative != y.Negative })
}

func mathLog(args []types.Value) (types.Value, error) {
	lx, err := ln("log", args[0])
	if err != nil {
		return types.None, err
	}
	if len(args) == 1 {
		return types.NewNumber(lx), nil
	}
	lb, err := ln("log", args[1])
	if err != nil {
		return types.None, err
	}
	if lb.IsZero() {
		return types.None, types.NewZeroDivisionError("float division by zero")
	}
	return quo(lx, lb)
}

func mathLog2(args []types.Value) (types.Value, error) {
	x, err := types.ToFloat(args[0])
	if err != nil {
		return types.None, err
	}
	if x <= 0 {
		return types.None, domainError()
	}
	return types.NewFloat(math.Log2(x)), nil
}

func mathLog10(args []types.Value) (types.Value, error) {
	x, err := number("log10", args[0])
	if err != nil {
		return types.None, err
	}
	if x.Form == apd.Finite && x.Sign() <= 0 || x.Form == apd.Infinite && x.Negative {
		return types.None, domainError()
	}
	return applyDecimal(types.DecimalContext().Log10, x)
}

func hypot(coords []float64) float64 {
	acc := 0.0
	for _, c := range coords {
		acc = math.Hypot(acc, c)
	}
	return acc
}

func floats(name string, items []types.Value) ([]float64, error) {
	out := make([]float64, len(items))
	for i, item := range items {
		if err := requireNumber(name, item); err != nil {
			return nil, err
		}
		f, err := types.ToFloat(item)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func mathHypot(args []types.Value) (types.Value, error) {
	coords, err := floats("hypotenuse", args)
	if err != nil {
		return types.None, err
	}
	return types.NewFloat(hypot(coords)), nil
}

func mathDist(args []types.Value) (types.Value, error) {
	if !args[0].IsSequence() || !args[1].IsSequence() {
		return types.None, types.NewTypeError("distance() arguments must be lists or tuples")
	}
	p, err := floats("distance", args[0].Items())
	if err != nil {
		return types.None, err
	}
	q, err := floats("distance", args[1].Items())
	if err != nil {
		return types.None, err
	}
	if len(p) != len(q) {
		return types.None, types.NewValueError(fmt.Sprintf("both points must have the same number of dimensions (%d and %d)", len(p), len(q)))
	}
	diff := make([]float64, len(p))
	for i := range p {
		diff[i] = p[i] - q[i]
	}
	return types.NewFloat(hypot(diff)), nil
}
