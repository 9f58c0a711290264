// Package ast defines saved program definitions: a calculator expression
// or a Brainfuck program stored under a name, as parsed from YAML or JSON
// and before execution.
package ast

import "fmt"

// Kind selects the interpreter a program runs on.
type Kind string

const (
	// KindCalculate programs are calculator expressions.
	KindCalculate Kind = "calculate"
	// KindBrainfuck programs are Brainfuck source with optional directives.
	KindBrainfuck Kind = "brainfuck"
)

// ParseKind validates a kind name. An empty name means calculate.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindCalculate:
		return KindCalculate, nil
	case KindBrainfuck:
		return KindBrainfuck, nil
	}
	return "", fmt.Errorf("unknown program kind %q (want %q or %q)", s, KindCalculate, KindBrainfuck)
}

// Program is a parsed saved program.
type Program struct {
	// Kind selects the interpreter.
	Kind Kind

	// Source is the expression text or the Brainfuck program text,
	// directives included.
	Source string

	// Description is free text shown in listings.
	Description string

	// Input is the default Brainfuck input queue, used when an execution
	// supplies none. Ignored for calculate programs.
	Input *string
}
