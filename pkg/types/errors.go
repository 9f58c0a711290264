package types

import (
	"errors"
	"fmt"
	"strings"
)

// Error tag constants. The first tag of an error names its kind.
const (
	TagSyntaxError               = "SyntaxError"
	TagNameNotFoundError         = "NameNotFoundError"
	TagUnsupportedOperationError = "UnsupportedOperationError"
	TagValueConversionError      = "ValueConversionError"
	TagNotImplementedError       = "NotImplementedError"
	TagTimeoutError              = "TimeoutError"
	TagBracketMismatchError      = "BracketMismatchError"
	TagTypeError                 = "TypeError"
	TagValueError                = "ValueError"
	TagIndexError                = "IndexError"
	TagKeyError                  = "KeyError"
	TagZeroDivisionError         = "ZeroDivisionError"
	TagNotFound                  = "NotFound"
)

// EvalError is an error raised while evaluating a statement or running a program.
type EvalError struct {
	Message string
	Tags    []string
}

// Error renders "Kind: message".
func (e *EvalError) Error() string {
	if len(e.Tags) == 0 {
		return e.Message
	}
	if e.Message == "" {
		return e.Tags[0]
	}
	return e.Tags[0] + ": " + e.Message
}

// Kind returns the primary tag.
func (e *EvalError) Kind() string {
	if len(e.Tags) == 0 {
		return ""
	}
	return e.Tags[0]
}

// HasTag returns true if the error has the specified tag.
func (e *EvalError) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ToValue converts the error to a dictionary value with message and tags.
func (e *EvalError) ToValue() Value {
	m := NewOrderedMap()
	m.Set(NewString("message"), NewString(e.Message))
	tags := make([]Value, len(e.Tags))
	for i, tag := range e.Tags {
		tags[i] = NewString(tag)
	}
	m.Set(NewString("tags"), NewList(tags))
	return NewDict(m)
}

// IsTag reports whether err wraps an EvalError carrying tag.
func IsTag(err error, tag string) bool {
	var ee *EvalError
	if errors.As(err, &ee) {
		return ee.HasTag(tag)
	}
	var se *SyntaxError
	return tag == TagSyntaxError && errors.As(err, &se)
}

func newError(tag, msg string) *EvalError {
	return &EvalError{Message: msg, Tags: []string{tag}}
}

// NewNameNotFoundError creates a NameNotFoundError for a library lookup miss.
func NewNameNotFoundError(name string) *EvalError {
	return newError(TagNameNotFoundError, fmt.Sprintf("%q", name))
}

// NewUnsupportedOperationError reports an operator with no entry for the operand types.
func NewUnsupportedOperationError(msg string) *EvalError {
	return newError(TagUnsupportedOperationError, msg)
}

// NewUnsupportedOperandsError formats the usual binary operator message.
func NewUnsupportedOperandsError(op string, a, b Value) *EvalError {
	return NewUnsupportedOperationError(fmt.Sprintf("unsupported operand type(s) for %s: '%s' and '%s'", op, a.Type(), b.Type()))
}

// NewValueConversionError creates a ValueConversionError.
func NewValueConversionError(msg string) *EvalError {
	return newError(TagValueConversionError, msg)
}

// NewNotImplementedError names a grammar node the walker does not evaluate.
func NewNotImplementedError(kind string) *EvalError {
	return newError(TagNotImplementedError, fmt.Sprintf("Node %q is not implemented", kind))
}

// NewTimeoutError creates a TimeoutError.
func NewTimeoutError(msg string) *EvalError {
	return newError(TagTimeoutError, msg)
}

// NewBracketMismatchError reports an unmatched bracket at a 0-based instruction position.
func NewBracketMismatchError(bracket byte, pos int) *EvalError {
	return newError(TagBracketMismatchError, fmt.Sprintf("unmatched %q at position %d", bracket, pos))
}

// NewTypeError creates a TypeError.
func NewTypeError(msg string) *EvalError {
	return newError(TagTypeError, msg)
}

// NewValueError creates a ValueError.
func NewValueError(msg string) *EvalError {
	return newError(TagValueError, msg)
}

// NewIndexError creates an IndexError.
func NewIndexError(msg string) *EvalError {
	return newError(TagIndexError, msg)
}

// NewKeyError creates a KeyError.
func NewKeyError(msg string) *EvalError {
	return newError(TagKeyError, msg)
}

// NewZeroDivisionError creates a ZeroDivisionError.
func NewZeroDivisionError(msg string) *EvalError {
	return newError(TagZeroDivisionError, msg)
}

// NewNotFoundError creates a NotFound error for missing stored resources.
func NewNotFoundError(msg string) *EvalError {
	return newError(TagNotFound, msg)
}

// SyntaxError is a parse failure. Line and Column are 1-based; Text is the
// offending source line.
type SyntaxError struct {
	Line   int
	Column int
	Text   string
	Msg    string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("SyntaxError: %s (line %d, column %d)", e.Msg, e.Line, e.Column)
}

// Format renders the stripped line, a caret under the error column and the message.
func (e *SyntaxError) Format() string {
	text := strings.TrimRight(e.Text, " \t\r\n")
	trimmed := strings.TrimLeft(text, " \t")
	col := e.Column - (len(text) - len(trimmed))
	if col < 1 {
		col = 1
	}
	return fmt.Sprintf("%s\n%s^\n%s", trimmed, strings.Repeat(" ", col-1), e.Msg)
}

// ToValue converts the error to a dictionary value with message, tags and
// the 1-based position.
func (e *SyntaxError) ToValue() Value {
	m := NewOrderedMap()
	m.Set(NewString("message"), NewString(e.Msg))
	m.Set(NewString("tags"), NewList([]Value{NewString(TagSyntaxError)}))
	m.Set(NewString("line"), NewInt(int64(e.Line)))
	m.Set(NewString("column"), NewInt(int64(e.Column)))
	return NewDict(m)
}
