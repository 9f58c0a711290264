// Package types defines the value model shared by the calculator and its hosts.
// Numbers are arbitrary-precision decimals; Boolean and Undefined are Number
// variants with their own display. Strings, lists, tuples, dictionaries and
// built-in functions complete the set of values an expression can produce.
package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// ValueType represents the variant of a Value.
type ValueType int

const (
	TypeNone      ValueType = iota
	TypeNumber              // *apd.Decimal
	TypeBoolean             // Number constrained to 0 or 1
	TypeUndefined           // Number fixed at 0, callable
	TypeString              // string
	TypeList                // mutable []Value
	TypeTuple               // immutable []Value
	TypeDict                // ordered map of Value -> Value
	TypeFunction            // *Function
)

// String returns the type name used in error messages.
func (t ValueType) String() string {
	switch t {
	case TypeNone:
		return "NoneType"
	case TypeNumber:
		return "Number"
	case TypeBoolean:
		return "Boolean"
	case TypeUndefined:
		return "Undefined"
	case TypeString:
		return "str"
	case TypeList:
		return "list"
	case TypeTuple:
		return "tuple"
	case TypeDict:
		return "dict"
	case TypeFunction:
		return "builtin_function_or_method"
	default:
		return "unknown"
	}
}

// BuiltinFunc is the Go signature behind every callable value.
// kwargs is nil when the call site passed no keyword arguments.
type BuiltinFunc func(args []Value, kwargs *OrderedMap) (Value, error)

// Function wraps a host callable under a display name.
type Function struct {
	Name string
	Fn   BuiltinFunc
}

// sequence backs lists and tuples. The pointer gives containers an identity.
type sequence struct {
	items []Value
}

// Value is a calculator runtime value. It is a tagged union.
type Value struct {
	typ  ValueType
	num  *apd.Decimal
	str  string
	seq  *sequence
	dict *OrderedMap
	fn   *Function
}

var (
	// None is the result of statements that produce no value, such as assignments.
	None = Value{typ: TypeNone}

	// Undefined is the value of unbound names. It behaves as the Number 0
	// and returns itself when called.
	Undefined = Value{typ: TypeUndefined, num: new(apd.Decimal)}
)

// NewNumber wraps a decimal. The decimal must not be mutated afterwards.
func NewNumber(d *apd.Decimal) Value {
	return Value{typ: TypeNumber, num: d}
}

// NewBool creates a Boolean.
func NewBool(v bool) Value {
	if v {
		return Value{typ: TypeBoolean, num: apd.New(1, 0)}
	}
	return Value{typ: TypeBoolean, num: apd.New(0, 0)}
}

// NewString creates a string value.
func NewString(s string) Value {
	return Value{typ: TypeString, str: s}
}

// NewList creates a list value.
func NewList(items []Value) Value {
	return Value{typ: TypeList, seq: &sequence{items: items}}
}

// NewTuple creates a tuple value.
func NewTuple(items []Value) Value {
	return Value{typ: TypeTuple, seq: &sequence{items: items}}
}

// NewDict creates a dictionary value.
func NewDict(m *OrderedMap) Value {
	return Value{typ: TypeDict, dict: m}
}

// NewFunction creates a built-in function value.
func NewFunction(name string, fn BuiltinFunc) Value {
	return Value{typ: TypeFunction, fn: &Function{Name: name, Fn: fn}}
}

// Type returns the value's variant.
func (v Value) Type() ValueType {
	return v.typ
}

// IsNone reports whether v is None.
func (v Value) IsNone() bool {
	return v.typ == TypeNone
}

// IsUndefined reports whether v is the Undefined sentinel.
func (v Value) IsUndefined() bool {
	return v.typ == TypeUndefined
}

// IsNumeric reports whether v belongs to the Number family.
func (v Value) IsNumeric() bool {
	return v.typ == TypeNumber || v.typ == TypeBoolean || v.typ == TypeUndefined
}

// IsSequence reports whether v is a list or a tuple.
func (v Value) IsSequence() bool {
	return v.typ == TypeList || v.typ == TypeTuple
}

// Decimal returns the decimal behind a Number-family value. Panics otherwise.
func (v Value) Decimal() *apd.Decimal {
	if !v.IsNumeric() {
		panic(fmt.Sprintf("Decimal called on %s value", v.typ))
	}
	return v.num
}

// AsString returns the string value. Panics if not a string.
func (v Value) AsString() string {
	if v.typ != TypeString {
		panic(fmt.Sprintf("AsString called on %s value", v.typ))
	}
	return v.str
}

// Items returns the elements of a list or tuple. Panics otherwise.
func (v Value) Items() []Value {
	if !v.IsSequence() {
		panic(fmt.Sprintf("Items called on %s value", v.typ))
	}
	return v.seq.items
}

// AsDict returns the dictionary. Panics if not a dict.
func (v Value) AsDict() *OrderedMap {
	if v.typ != TypeDict {
		panic(fmt.Sprintf("AsDict called on %s value", v.typ))
	}
	return v.dict
}

// AsFunction returns the built-in function. Panics if not a function.
func (v Value) AsFunction() *Function {
	if v.typ != TypeFunction {
		panic(fmt.Sprintf("AsFunction called on %s value", v.typ))
	}
	return v.fn
}

// Truthy returns the truthiness of a value: zero numbers, empty strings and
// containers, None and Undefined are false.
func (v Value) Truthy() bool {
	switch v.typ {
	case TypeNone, TypeUndefined:
		return false
	case TypeNumber, TypeBoolean:
		return !v.num.IsZero()
	case TypeString:
		return v.str != ""
	case TypeList, TypeTuple:
		return len(v.seq.items) > 0
	case TypeDict:
		return v.dict.Len() > 0
	default:
		return true
	}
}

// Equal tests value equality. Numbers compare by decimal value across the
// Number family; NaN is never equal to anything.
func (v Value) Equal(other Value) bool {
	if v.IsNumeric() && other.IsNumeric() {
		c, ok := compareDecimals(v.num, other.num)
		return ok && c == 0
	}
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case TypeNone:
		return true
	case TypeString:
		return v.str == other.str
	case TypeList, TypeTuple:
		if len(v.seq.items) != len(other.seq.items) {
			return false
		}
		for i := range v.seq.items {
			if !v.seq.items[i].Equal(other.seq.items[i]) {
				return false
			}
		}
		return true
	case TypeDict:
		if v.dict.Len() != other.dict.Len() {
			return false
		}
		for _, k := range v.dict.Keys() {
			ov, ok := other.dict.Get(k)
			if !ok {
				return false
			}
			mv, _ := v.dict.Get(k)
			if !mv.Equal(ov) {
				return false
			}
		}
		return true
	case TypeFunction:
		return v.fn == other.fn
	}
	return false
}

// Same reports identity: the same sentinel, or the same underlying object.
func (v Value) Same(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case TypeNone, TypeUndefined:
		return true
	case TypeNumber, TypeBoolean:
		return v.num == other.num
	case TypeString:
		return v.str == other.str
	case TypeList, TypeTuple:
		return v.seq == other.seq
	case TypeDict:
		return v.dict == other.dict
	case TypeFunction:
		return v.fn == other.fn
	}
	return false
}

// String returns the str() form: strings are unquoted, everything else uses Repr.
func (v Value) String() string {
	if v.typ == TypeString {
		return v.str
	}
	return v.Repr()
}

// Repr returns the display form used when reporting results.
func (v Value) Repr() string {
	switch v.typ {
	case TypeNone:
		return "None"
	case TypeUndefined:
		return "Undefined"
	case TypeBoolean:
		if v.num.IsZero() {
			return "False"
		}
		return "True"
	case TypeNumber:
		return formatDecimal(v.num)
	case TypeString:
		return quoteString(v.str)
	case TypeList:
		return "[" + joinRepr(v.seq.items) + "]"
	case TypeTuple:
		if len(v.seq.items) == 1 {
			return "(" + v.seq.items[0].Repr() + ",)"
		}
		return "(" + joinRepr(v.seq.items) + ")"
	case TypeDict:
		parts := make([]string, 0, v.dict.Len())
		for _, k := range v.dict.Keys() {
			val, _ := v.dict.Get(k)
			parts = append(parts, k.Repr()+": "+val.Repr())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case TypeFunction:
		return fmt.Sprintf("<built-in function %s>", v.fn.Name)
	}
	return "<unknown>"
}

func joinRepr(items []Value) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = item.Repr()
	}
	return strings.Join(parts, ", ")
}

// quoteString quotes like Python's repr: single quotes unless the string
// contains a single quote and no double quote.
func quoteString(s string) string {
	quote := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}
	var sb strings.Builder
	sb.WriteByte(quote)
	for _, r := range s {
		switch {
		case r == '\\':
			sb.WriteString(`\\`)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\t':
			sb.WriteString(`\t`)
		case r == '\r':
			sb.WriteString(`\r`)
		case r == rune(quote):
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&sb, `\x%02x`, r)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte(quote)
	return sb.String()
}

// MarshalJSON converts a Value to JSON. Finite numbers become JSON numbers;
// Infinity and NaN become strings since JSON cannot carry them.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.typ {
	case TypeNone, TypeUndefined:
		return []byte("null"), nil
	case TypeBoolean:
		return json.Marshal(!v.num.IsZero())
	case TypeNumber:
		if v.num.Form != apd.Finite {
			return json.Marshal(formatDecimal(v.num))
		}
		return []byte(v.num.Text('f')), nil
	case TypeString:
		return json.Marshal(v.str)
	case TypeList, TypeTuple:
		items := make([]json.RawMessage, len(v.seq.items))
		for i, item := range v.seq.items {
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			items[i] = b
		}
		return json.Marshal(items)
	case TypeDict:
		buf := []byte{'{'}
		for i, k := range v.dict.Keys() {
			if i > 0 {
				buf = append(buf, ',')
			}
			keyBytes, err := json.Marshal(k.String())
			if err != nil {
				return nil, err
			}
			buf = append(buf, keyBytes...)
			buf = append(buf, ':')
			val, _ := v.dict.Get(k)
			valBytes, err := val.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf = append(buf, valBytes...)
		}
		buf = append(buf, '}')
		return buf, nil
	case TypeFunction:
		return json.Marshal(v.Repr())
	}
	return nil, fmt.Errorf("cannot marshal unknown type %d", v.typ)
}

// OrderedMap maintains insertion order for dictionary keys. Keys are
// calculator values; equal numbers map to the same entry.
type OrderedMap struct {
	keys   []Value
	values map[string]Value
}

// NewOrderedMap creates a new empty ordered map.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{
		values: make(map[string]Value),
	}
}

// Get retrieves a value by key.
func (m *OrderedMap) Get(key Value) (Value, bool) {
	v, ok := m.values[hashKey(key)]
	return v, ok
}

// Lookup retrieves a value by string key; used for keyword arguments.
func (m *OrderedMap) Lookup(name string) (Value, bool) {
	if m == nil {
		return None, false
	}
	return m.Get(NewString(name))
}

// Set adds or updates a key-value pair, preserving insertion order.
func (m *OrderedMap) Set(key Value, val Value) {
	h := hashKey(key)
	if _, exists := m.values[h]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[h] = val
}

// Keys returns the keys in insertion order.
func (m *OrderedMap) Keys() []Value {
	if m == nil {
		return nil
	}
	result := make([]Value, len(m.keys))
	copy(result, m.keys)
	return result
}

// Len returns the number of entries.
func (m *OrderedMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

func hashKey(v Value) string {
	if v.IsNumeric() {
		return "n:" + canonicalDecimal(v.num)
	}
	return v.typ.String() + ":" + v.Repr()
}
