package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// MaxSequenceLength bounds the size of strings, lists and tuples built by
// concatenation or repetition.
const MaxSequenceLength = 1_000_000

// BinaryFunc is the signature of every entry in the operator table.
type BinaryFunc func(a, b Value) (Value, error)

// UnaryFunc is the signature of unary operator entries.
type UnaryFunc func(v Value) (Value, error)

// Add implements +.
func Add(a, b Value) (Value, error) {
	if a.IsNumeric() && b.IsNumeric() {
		return applyDecimal(decimalContext.Add, a.num, b.num, sumNegative(a.num, b.num, false))
	}
	switch {
	case a.typ == TypeString && b.typ == TypeString:
		if len(a.str)+len(b.str) > MaxSequenceLength {
			return None, NewValueError("string too long")
		}
		return NewString(a.str + b.str), nil
	case a.IsSequence() && a.typ == b.typ:
		n := len(a.seq.items) + len(b.seq.items)
		if n > MaxSequenceLength {
			return None, NewValueError(fmt.Sprintf("%s too long", a.typ))
		}
		items := make([]Value, 0, n)
		items = append(items, a.seq.items...)
		items = append(items, b.seq.items...)
		return Value{typ: a.typ, seq: &sequence{items: items}}, nil
	}
	return None, NewUnsupportedOperandsError("+", a, b)
}

// Sub implements -.
func Sub(a, b Value) (Value, error) {
	if a.IsNumeric() && b.IsNumeric() {
		return applyDecimal(decimalContext.Sub, a.num, b.num, sumNegative(a.num, b.num, true))
	}
	return None, NewUnsupportedOperandsError("-", a, b)
}

// Mul implements *, including sequence repetition by a Number.
func Mul(a, b Value) (Value, error) {
	if a.IsNumeric() && b.IsNumeric() {
		return applyDecimal(decimalContext.Mul, a.num, b.num, productNegative(a.num, b.num))
	}
	if b.IsNumeric() && (a.typ == TypeString || a.IsSequence()) {
		return repeat(a, b)
	}
	if a.IsNumeric() && (b.typ == TypeString || b.IsSequence()) {
		return repeat(b, a)
	}
	return None, NewUnsupportedOperandsError("*", a, b)
}

func repeat(seq, count Value) (Value, error) {
	n, err := ToBigInt(count)
	if err != nil {
		return None, err
	}
	if n.Sign() <= 0 {
		if seq.typ == TypeString {
			return NewString(""), nil
		}
		return Value{typ: seq.typ, seq: &sequence{}}, nil
	}
	size := len(seq.str)
	if seq.typ != TypeString {
		size = len(seq.seq.items)
	}
	if size == 0 {
		return seq, nil
	}
	if !n.IsInt64() || n.Int64() > MaxSequenceLength || n.Int64()*int64(size) > MaxSequenceLength {
		return None, NewValueError(fmt.Sprintf("%s repetition too large", seq.typ))
	}
	times := int(n.Int64())
	if seq.typ == TypeString {
		return NewString(strings.Repeat(seq.str, times)), nil
	}
	items := make([]Value, 0, size*times)
	for i := 0; i < times; i++ {
		items = append(items, seq.seq.items...)
	}
	return Value{typ: seq.typ, seq: &sequence{items: items}}, nil
}

// MatMul implements @. No calculator value supports it.
func MatMul(a, b Value) (Value, error) {
	return None, NewUnsupportedOperandsError("@", a, b)
}

// TrueDiv implements /. Division by zero yields a signed Infinity, 0/0 NaN.
func TrueDiv(a, b Value) (Value, error) {
	if a.IsNumeric() && b.IsNumeric() {
		return applyDecimal(decimalContext.Quo, a.num, b.num, productNegative(a.num, b.num))
	}
	return None, NewUnsupportedOperandsError("/", a, b)
}

// FloorDiv implements //. Decimal integer division truncates toward zero.
func FloorDiv(a, b Value) (Value, error) {
	if a.IsNumeric() && b.IsNumeric() {
		return applyDecimal(decimalContext.QuoInteger, a.num, b.num, productNegative(a.num, b.num))
	}
	return None, NewUnsupportedOperandsError("//", a, b)
}

// Mod implements %. The remainder takes the sign of the dividend.
func Mod(a, b Value) (Value, error) {
	if a.IsNumeric() && b.IsNumeric() {
		return applyDecimal(decimalContext.Rem, a.num, b.num, constSign(a.num.Negative))
	}
	return None, NewUnsupportedOperandsError("%", a, b)
}

// DivMod returns the tuple (a // b, a % b).
func DivMod(a, b Value) (Value, error) {
	if !a.IsNumeric() || !b.IsNumeric() {
		return None, NewUnsupportedOperandsError("divmod()", a, b)
	}
	q, err := FloorDiv(a, b)
	if err != nil {
		return None, err
	}
	r, err := Mod(a, b)
	if err != nil {
		return None, err
	}
	return NewTuple([]Value{q, r}), nil
}

// Pow implements **.
func Pow(a, b Value) (Value, error) {
	if a.IsNumeric() && b.IsNumeric() {
		return applyDecimal(decimalContext.Pow, a.num, b.num, powNegative(a.num, b.num))
	}
	return None, NewUnsupportedOperandsError("** or pow()", a, b)
}

// Neg implements unary -.
func Neg(v Value) (Value, error) {
	if !v.IsNumeric() {
		return None, NewUnsupportedOperationError(fmt.Sprintf("bad operand type for unary -: '%s'", v.typ))
	}
	return applyUnaryDecimal(decimalContext.Neg, v.num, constSign(!v.num.Negative))
}

// Pos implements unary +, which rounds to the context precision.
func Pos(v Value) (Value, error) {
	if !v.IsNumeric() {
		return None, NewUnsupportedOperationError(fmt.Sprintf("bad operand type for unary +: '%s'", v.typ))
	}
	return applyUnaryDecimal(decimalContext.Round, v.num, constSign(v.num.Negative))
}

// Abs returns the absolute value.
func Abs(v Value) (Value, error) {
	if !v.IsNumeric() {
		return None, NewTypeError(fmt.Sprintf("bad operand type for abs(): '%s'", v.typ))
	}
	return applyUnaryDecimal(decimalContext.Abs, v.num, constSign(false))
}

// Round rounds half-even. Without ndigits the result is an integral Number
// and NaN or Infinity fail; with ndigits the value is quantized to that many
// fractional digits.
func Round(v Value, ndigits *Value) (Value, error) {
	if !v.IsNumeric() {
		return None, NewTypeError(fmt.Sprintf("type %s doesn't define __round__ method", v.typ))
	}
	if ndigits == nil || ndigits.IsNone() {
		if v.num.Form != apd.Finite {
			return None, NewValueConversionError(fmt.Sprintf("cannot round %s to integer", formatDecimal(v.num)))
		}
		ctx := DecimalContext()
		ctx.Precision = uint32(len(v.num.Text('f'))) + 2
		d := new(apd.Decimal)
		if _, err := ctx.Quantize(d, v.num, 0); err != nil {
			return None, NewValueError(err.Error())
		}
		return NewNumber(d), nil
	}
	n, err := ToInt(*ndigits)
	if err != nil {
		return None, err
	}
	d := new(apd.Decimal)
	if _, err := decimalContext.Quantize(d, v.num, int32(-n)); err != nil {
		return None, NewValueError(err.Error())
	}
	return NewNumber(d), nil
}

// integralParts truncates a finite decimal and reports whether it had a
// non-zero fractional part.
func integralParts(v Value, op string) (*big.Int, bool, error) {
	if !v.IsNumeric() {
		return nil, false, NewTypeError(fmt.Sprintf("must be real number, not %s", v.typ))
	}
	if v.num.Form != apd.Finite {
		return nil, false, NewValueConversionError(fmt.Sprintf("cannot %s %s", op, formatDecimal(v.num)))
	}
	text := v.num.Text('f')
	whole, frac, _ := strings.Cut(text, ".")
	b, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return nil, false, NewValueConversionError(fmt.Sprintf("cannot %s %s", op, formatDecimal(v.num)))
	}
	return b, strings.Trim(frac, "0") != "", nil
}

// Trunc truncates toward zero.
func Trunc(v Value) (Value, error) {
	b, _, err := integralParts(v, "truncate")
	if err != nil {
		return None, err
	}
	return NewBigInt(b), nil
}

// Floor rounds toward negative infinity.
func Floor(v Value) (Value, error) {
	b, frac, err := integralParts(v, "floor")
	if err != nil {
		return None, err
	}
	if frac && v.num.Negative {
		b.Sub(b, big.NewInt(1))
	}
	return NewBigInt(b), nil
}

// Ceil rounds toward positive infinity.
func Ceil(v Value) (Value, error) {
	b, frac, err := integralParts(v, "ceil")
	if err != nil {
		return None, err
	}
	if frac && !v.num.Negative {
		b.Add(b, big.NewInt(1))
	}
	return NewBigInt(b), nil
}

// bitwise coerces both operands to integers, applies op and re-wraps.
func bitwise(symbol string, a, b Value, op func(z, x, y *big.Int) *big.Int) (Value, error) {
	if !a.IsNumeric() || !b.IsNumeric() {
		return None, NewUnsupportedOperandsError(symbol, a, b)
	}
	x, err := ToBigInt(a)
	if err != nil {
		return None, err
	}
	y, err := ToBigInt(b)
	if err != nil {
		return None, err
	}
	return NewBigInt(op(new(big.Int), x, y)), nil
}

// BitAnd implements &.
func BitAnd(a, b Value) (Value, error) {
	return bitwise("&", a, b, (*big.Int).And)
}

// BitOr implements |.
func BitOr(a, b Value) (Value, error) {
	return bitwise("|", a, b, (*big.Int).Or)
}

// BitXor implements ^.
func BitXor(a, b Value) (Value, error) {
	return bitwise("^", a, b, (*big.Int).Xor)
}

func shiftCount(v Value) (uint, error) {
	n, err := ToBigInt(v)
	if err != nil {
		return 0, err
	}
	if n.Sign() < 0 {
		return 0, NewValueConversionError("negative shift count")
	}
	if n.Cmp(big.NewInt(MaxShift)) > 0 {
		return 0, NewValueConversionError(fmt.Sprintf("shift count %s exceeds %d", n.String(), MaxShift))
	}
	return uint(n.Uint64()), nil
}

// LShift implements <<.
func LShift(a, b Value) (Value, error) {
	if !a.IsNumeric() || !b.IsNumeric() {
		return None, NewUnsupportedOperandsError("<<", a, b)
	}
	x, err := ToBigInt(a)
	if err != nil {
		return None, err
	}
	n, err := shiftCount(b)
	if err != nil {
		return None, err
	}
	return NewBigInt(new(big.Int).Lsh(x, n)), nil
}

// RShift implements >>. Negative values shift arithmetically.
func RShift(a, b Value) (Value, error) {
	if !a.IsNumeric() || !b.IsNumeric() {
		return None, NewUnsupportedOperandsError(">>", a, b)
	}
	x, err := ToBigInt(a)
	if err != nil {
		return None, err
	}
	n, err := shiftCount(b)
	if err != nil {
		return None, err
	}
	return NewBigInt(new(big.Int).Rsh(x, n)), nil
}

// Invert implements ~ on the integer part.
func Invert(v Value) (Value, error) {
	if !v.IsNumeric() {
		return None, NewUnsupportedOperationError(fmt.Sprintf("bad operand type for unary ~: '%s'", v.typ))
	}
	x, err := ToBigInt(v)
	if err != nil {
		return None, err
	}
	return NewBigInt(new(big.Int).Not(x)), nil
}

// Not implements logical not.
func Not(v Value) (Value, error) {
	return NewBool(!v.Truthy()), nil
}

// Eq implements ==.
func Eq(a, b Value) (Value, error) {
	return NewBool(a.Equal(b)), nil
}

// NotEq implements !=.
func NotEq(a, b Value) (Value, error) {
	return NewBool(!a.Equal(b)), nil
}

// order compares two values for the ordering operators. ok is false when
// the comparison is undefined (NaN).
func order(symbol string, a, b Value) (int, bool, error) {
	if a.IsNumeric() && b.IsNumeric() {
		c, ok := compareDecimals(a.num, b.num)
		return c, ok, nil
	}
	if a.typ == TypeString && b.typ == TypeString {
		return strings.Compare(a.str, b.str), true, nil
	}
	return 0, false, NewUnsupportedOperationError(fmt.Sprintf("'%s' not supported between instances of '%s' and '%s'", symbol, a.typ, b.typ))
}

func ordered(symbol string, test func(int) bool) BinaryFunc {
	return func(a, b Value) (Value, error) {
		c, ok, err := order(symbol, a, b)
		if err != nil {
			return None, err
		}
		return NewBool(ok && test(c)), nil
	}
}

var (
	// Less implements <.
	Less = ordered("<", func(c int) bool { return c < 0 })
	// LessEqual implements <=.
	LessEqual = ordered("<=", func(c int) bool { return c <= 0 })
	// Greater implements >.
	Greater = ordered(">", func(c int) bool { return c > 0 })
	// GreaterEqual implements >=.
	GreaterEqual = ordered(">=", func(c int) bool { return c >= 0 })
)

// Hashable reports whether v may be used as a dictionary key.
func Hashable(v Value) bool {
	switch v.typ {
	case TypeList, TypeDict:
		return false
	case TypeTuple:
		for _, item := range v.seq.items {
			if !Hashable(item) {
				return false
			}
		}
	}
	return true
}

// Contains reports whether item is in container.
func Contains(container, item Value) (bool, error) {
	switch container.typ {
	case TypeString:
		if item.typ != TypeString {
			return false, NewTypeError(fmt.Sprintf("'in <string>' requires string as left operand, not %s", item.typ))
		}
		return strings.Contains(container.str, item.str), nil
	case TypeList, TypeTuple:
		for _, v := range container.seq.items {
			if v.Same(item) || v.Equal(item) {
				return true, nil
			}
		}
		return false, nil
	case TypeDict:
		if !Hashable(item) {
			return false, NewTypeError(fmt.Sprintf("unhashable type: '%s'", item.typ))
		}
		_, ok := container.dict.Get(item)
		return ok, nil
	}
	return false, NewUnsupportedOperationError(fmt.Sprintf("argument of type '%s' is not iterable", container.typ))
}

// In implements the in operator.
func In(a, b Value) (Value, error) {
	ok, err := Contains(b, a)
	if err != nil {
		return None, err
	}
	return NewBool(ok), nil
}

// NotIn implements not in.
func NotIn(a, b Value) (Value, error) {
	ok, err := Contains(b, a)
	if err != nil {
		return None, err
	}
	return NewBool(!ok), nil
}

// Is implements identity comparison.
func Is(a, b Value) (Value, error) {
	return NewBool(a.Same(b)), nil
}

// IsNot implements negated identity comparison.
func IsNot(a, b Value) (Value, error) {
	return NewBool(!a.Same(b)), nil
}

// Call invokes a callable value. Undefined absorbs any call and returns itself.
func Call(callee Value, args []Value, kwargs *OrderedMap) (Value, error) {
	switch callee.typ {
	case TypeFunction:
		return callee.fn.Fn(args, kwargs)
	case TypeUndefined:
		return Undefined, nil
	}
	return None, NewTypeError(fmt.Sprintf("'%s' object is not callable", callee.typ))
}
