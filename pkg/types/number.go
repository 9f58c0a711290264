package types

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// DecimalPrecision is the number of significant digits every arithmetic
// operation is rounded to.
const DecimalPrecision = 32

// MaxShift is the largest shift count accepted by << and >>.
const MaxShift = 1 << 16

// decimalContext is the fixed arithmetic context: 32 digits, half-even
// rounding, no traps. Operations that would trap produce NaN or Infinity.
// apd contexts are not mutated by operations, so one value is shared by
// all evaluations.
var decimalContext = newDecimalContext()

// exponentMargin keeps the context's exponent limits inside apd's hard
// limits, so rounding reports Overflow and Underflow before apd fails.
const exponentMargin = 2 * DecimalPrecision

func newDecimalContext() *apd.Context {
	c := apd.BaseContext.WithPrecision(DecimalPrecision)
	c.Rounding = apd.RoundHalfEven
	c.Traps = 0
	c.MaxExponent = apd.MaxExponent - exponentMargin
	c.MinExponent = apd.MinExponent + exponentMargin
	return c
}

// DecimalContext returns a copy of the arithmetic context.
func DecimalContext() *apd.Context {
	c := *decimalContext
	return &c
}

// NewNumberFromString parses a decimal literal exactly, without rounding.
// Literals whose exponent lies beyond apd's range become Infinity or zero.
func NewNumberFromString(s string) (Value, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		if v, ok := clampLiteral(s); ok {
			return v, nil
		}
		return None, NewValueConversionError(fmt.Sprintf("invalid literal for Number: %q", s))
	}
	return NewNumber(d), nil
}

// clampLiteral handles well-formed scientific literals that apd rejects
// for their exponent alone. ok is false for anything else.
func clampLiteral(s string) (Value, bool) {
	text := strings.ToLower(s)
	neg := false
	if text != "" && (text[0] == '-' || text[0] == '+') {
		neg = text[0] == '-'
		text = text[1:]
	}
	i := strings.IndexByte(text, 'e')
	if i < 0 {
		return None, false
	}
	mantissa := text[:i]
	exp, ok := new(big.Int).SetString(text[i+1:], 10)
	if !ok {
		return None, false
	}
	point := strings.IndexByte(mantissa, '.')
	digits := mantissa
	if point < 0 {
		point = len(mantissa)
	} else {
		digits = mantissa[:point] + mantissa[point+1:]
	}
	if digits == "" || strings.Trim(digits, "0123456789") != "" {
		return None, false
	}

	first := strings.IndexFunc(digits, func(r rune) bool { return r != '0' })
	if first < 0 {
		return NewNumber(&apd.Decimal{Negative: neg}), true
	}
	// Adjusted exponent: the power of ten of the leading significant digit.
	adj := exp.Add(exp, big.NewInt(int64(point-first-1)))
	switch {
	case adj.Cmp(big.NewInt(apd.MaxExponent)) > 0:
		return NewNumber(&apd.Decimal{Form: apd.Infinite, Negative: neg}), true
	case adj.Cmp(big.NewInt(apd.MinExponent)) < 0:
		return NewNumber(&apd.Decimal{Negative: neg}), true
	}
	return None, false
}

// MustNumber parses a decimal literal and panics on failure. For constants.
func MustNumber(s string) Value {
	v, err := NewNumberFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// NewInt creates a Number from an integer.
func NewInt(i int64) Value {
	return NewNumber(apd.New(i, 0))
}

// NewBigInt creates a Number holding the exact value of b.
func NewBigInt(b *big.Int) Value {
	d, _, err := apd.NewFromString(b.String())
	if err != nil {
		// big.Int always formats as a valid integer literal.
		panic(err)
	}
	return NewNumber(d)
}

// NewFloat creates a Number from a float64 using the shortest decimal text
// that round-trips, so math library results stay readable.
func NewFloat(f float64) Value {
	switch {
	case math.IsNaN(f):
		return NewNumber(&apd.Decimal{Form: apd.NaN})
	case math.IsInf(f, 0):
		return NewNumber(&apd.Decimal{Form: apd.Infinite, Negative: f < 0})
	}
	return MustNumber(strconv.FormatFloat(f, 'g', -1, 64))
}

// ToFloat converts a Number-family value to float64.
func ToFloat(v Value) (float64, error) {
	if !v.IsNumeric() {
		return 0, NewTypeError(fmt.Sprintf("must be real number, not %s", v.Type()))
	}
	d := v.num
	switch d.Form {
	case apd.NaN, apd.NaNSignaling:
		return math.NaN(), nil
	case apd.Infinite:
		if d.Negative {
			return math.Inf(-1), nil
		}
		return math.Inf(1), nil
	}
	f, err := d.Float64()
	if err != nil {
		return 0, NewValueConversionError(fmt.Sprintf("cannot convert %s to float", formatDecimal(d)))
	}
	return f, nil
}

// ToBigInt truncates a Number-family value toward zero. NaN and Infinity
// cannot be represented and fail with ValueConversionError.
func ToBigInt(v Value) (*big.Int, error) {
	if !v.IsNumeric() {
		return nil, NewTypeError(fmt.Sprintf("'%s' object cannot be interpreted as an integer", v.Type()))
	}
	return decimalToBigInt(v.num)
}

// ToInt is ToBigInt restricted to the int range.
func ToInt(v Value) (int, error) {
	b, err := ToBigInt(v)
	if err != nil {
		return 0, err
	}
	if !b.IsInt64() || b.Int64() > math.MaxInt32 || b.Int64() < math.MinInt32 {
		return 0, NewValueConversionError(fmt.Sprintf("integer %s is too large", b.String()))
	}
	return int(b.Int64()), nil
}

func decimalToBigInt(d *apd.Decimal) (*big.Int, error) {
	switch d.Form {
	case apd.NaN, apd.NaNSignaling:
		return nil, NewValueConversionError("cannot convert NaN to integer")
	case apd.Infinite:
		return nil, NewValueConversionError("cannot convert Infinity to integer")
	}
	text := d.Text('f')
	if i := strings.IndexByte(text, '.'); i >= 0 {
		text = text[:i]
	}
	b, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return nil, NewValueConversionError(fmt.Sprintf("cannot convert %s to integer", formatDecimal(d)))
	}
	return b, nil
}

// IsFinite reports whether a Number-family value is neither NaN nor infinite.
func IsFinite(v Value) bool {
	return v.IsNumeric() && v.num.Form == apd.Finite
}

// IsNaN reports whether a Number-family value is NaN.
func IsNaN(v Value) bool {
	return v.IsNumeric() && (v.num.Form == apd.NaN || v.num.Form == apd.NaNSignaling)
}

// compareDecimals orders two decimals. ok is false when either is NaN.
func compareDecimals(a, b *apd.Decimal) (int, bool) {
	if a.Form == apd.NaN || a.Form == apd.NaNSignaling || b.Form == apd.NaN || b.Form == apd.NaNSignaling {
		return 0, false
	}
	return a.Cmp(b), true
}

// formatDecimal renders scientific notation with a lower-case exponent marker.
func formatDecimal(d *apd.Decimal) string {
	if d.Form != apd.Finite {
		return d.String()
	}
	return strings.Replace(d.Text('G'), "E", "e", 1)
}

// canonicalDecimal renders a finite decimal without trailing zeros so that
// equal numbers share one dictionary key.
func canonicalDecimal(d *apd.Decimal) string {
	if d.Form != apd.Finite {
		return d.String()
	}
	text := d.Text('f')
	if strings.IndexByte(text, '.') >= 0 {
		text = strings.TrimRight(text, "0")
		text = strings.TrimSuffix(text, ".")
	}
	if text == "-0" {
		text = "0"
	}
	return text
}

// decimalOp is the shape of apd's binary context methods.
type decimalOp func(d, x, y *apd.Decimal) (apd.Condition, error)

// DecimalResult wraps the outcome of an apd operation as a Number. apd
// fails outright when an exponent leaves its hard range even with traps
// disabled; such results become Infinity on overflow and zero on
// underflow, negative when negative reports so. Any other error is an
// internal apd failure.
func DecimalResult(d *apd.Decimal, cond apd.Condition, err error, negative func() bool) (Value, error) {
	switch {
	case err == nil:
		if d.Form == apd.Finite && d.IsZero() && (cond.Underflow() || cond.Clamped()) {
			d.Exponent = 0
		}
		return NewNumber(d), nil
	case cond.SystemOverflow():
		return NewNumber(&apd.Decimal{Form: apd.Infinite, Negative: negative()}), nil
	case cond.SystemUnderflow():
		return NewNumber(&apd.Decimal{Negative: negative()}), nil
	}
	return None, NewValueError(err.Error())
}

// applyDecimal runs an apd operation under the fixed context and wraps the
// result as a Number.
func applyDecimal(op decimalOp, x, y *apd.Decimal, negative func() bool) (Value, error) {
	d := new(apd.Decimal)
	cond, err := op(d, x, y)
	return DecimalResult(d, cond, err, negative)
}

// applyUnaryDecimal is applyDecimal for one-operand apd methods.
func applyUnaryDecimal(op func(d, x *apd.Decimal) (apd.Condition, error), x *apd.Decimal, negative func() bool) (Value, error) {
	d := new(apd.Decimal)
	cond, err := op(d, x)
	return DecimalResult(d, cond, err, negative)
}

// sumNegative is the sign of x + y, or of x - y when subtract is set: the
// sign of the operand with the larger magnitude.
func sumNegative(x, y *apd.Decimal, subtract bool) func() bool {
	return func() bool {
		var ax, ay apd.Decimal
		ax.Abs(x)
		ay.Abs(y)
		if ax.Cmp(&ay) >= 0 {
			return x.Negative
		}
		return y.Negative != subtract
	}
}

// productNegative is the sign of x * y and x / y.
func productNegative(x, y *apd.Decimal) func() bool {
	return func() bool { return x.Negative != y.Negative }
}

// powNegative reports whether x ** y is negative: a negative base raised
// to an odd integer.
func powNegative(x, y *apd.Decimal) func() bool {
	return func() bool {
		if !x.Negative || y.Form != apd.Finite {
			return false
		}
		var integ, frac apd.Decimal
		y.Modf(&integ, &frac)
		return frac.IsZero() && integ.Exponent == 0 && integ.Coeff.Bit(0) == 1
	}
}

func constSign(negative bool) func() bool {
	return func() bool { return negative }
}
