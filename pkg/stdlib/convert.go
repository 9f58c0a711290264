package stdlib

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/lemonberrylabs/calcd/pkg/types"
)

// registerConversions registers binary, hexadecimal, octal, character,
// number and string.
func (l *Library) registerConversions() {
	l.register("binary", positional("binary", 1, 1, radix("binary", 2, "0b")))
	l.register("hexadecimal", positional("hexadecimal", 1, 1, radix("hexadecimal", 16, "0x")))
	l.register("octal", positional("octal", 1, 1, radix("octal", 8, "0o")))
	l.register("character", positional("character", 1, 1, stdCharacter))
	l.register("number", positional("number", 0, 1, stdNumber))
	l.register("string", positional("string", 0, 1, stdString))
}

// radix formats the integer part of a Number with a base prefix.
func radix(name string, base int, prefix string) func(args []types.Value) (types.Value, error) {
	return func(args []types.Value) (types.Value, error) {
		if err := requireNumber(name, args[0]); err != nil {
			return types.None, err
		}
		b, err := types.ToBigInt(args[0])
		if err != nil {
			return types.None, err
		}
		sign := ""
		if b.Sign() < 0 {
			sign = "-"
			b.Neg(b)
		}
		return types.NewString(sign + prefix + b.Text(base)), nil
	}
}

func stdCharacter(args []types.Value) (types.Value, error) {
	if err := requireNumber("character", args[0]); err != nil {
		return types.None, err
	}
	b, err := types.ToBigInt(args[0])
	if err != nil {
		return types.None, err
	}
	if b.Sign() < 0 || !b.IsInt64() || b.Int64() > 0x10FFFF {
		return types.None, types.NewValueError("character() arg not in range(0x110000)")
	}
	return types.NewString(string(rune(b.Int64()))), nil
}

// stdNumber converts to a plain Number. Unparseable strings give NaN since
// the arithmetic context does not trap invalid operations.
func stdNumber(args []types.Value) (types.Value, error) {
	if len(args) == 0 {
		return types.NewInt(0), nil
	}
	v := args[0]
	switch {
	case v.IsNumeric():
		return types.NewNumber(new(apd.Decimal).Set(v.Decimal())), nil
	case v.Type() == types.TypeString:
		s := strings.ReplaceAll(strings.TrimSpace(v.AsString()), "_", "")
		n, err := types.NewNumberFromString(s)
		if err != nil {
			return types.MustNumber("NaN"), nil
		}
		return n, nil
	}
	return types.None, types.NewTypeError(fmt.Sprintf("conversion from %s to Number is not supported", v.Type()))
}

func stdString(args []types.Value) (types.Value, error) {
	if len(args) == 0 {
		return types.NewString(""), nil
	}
	return types.NewString(args[0].String()), nil
}
