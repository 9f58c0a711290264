// Package parser converts YAML/JSON program definitions into AST types.
package parser

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/lemonberrylabs/calcd/pkg/ast"
	"github.com/lemonberrylabs/calcd/pkg/brainfuck"
	"github.com/lemonberrylabs/calcd/pkg/expr"
)

// MaxSourceSize is the maximum definition size in bytes (128 KB).
const MaxSourceSize = 128 * 1024

// ParseError represents an error encountered during program parsing.
type ParseError struct {
	Message  string
	Location string // e.g., "field 'source'"
	Err      error
}

func (e *ParseError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("parse error at %s: %s", e.Location, e.Message)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse parses a YAML or JSON program definition. The document is either a
// mapping with kind, source, description and input keys, or a bare string
// holding a calculator expression. The source is checked with the
// interpreter's own front end so that broken programs are rejected at
// upload time.
func Parse(source []byte) (*ast.Program, error) {
	if len(source) > MaxSourceSize {
		return nil, &ParseError{Message: fmt.Sprintf("program source size %d exceeds maximum %d bytes", len(source), MaxSourceSize)}
	}

	var raw yaml.Node
	if err := yaml.Unmarshal(source, &raw); err != nil {
		return nil, &ParseError{Message: fmt.Sprintf("invalid YAML: %v", err), Err: err}
	}
	if raw.Kind != yaml.DocumentNode || len(raw.Content) == 0 {
		return nil, &ParseError{Message: "empty program definition"}
	}

	root := raw.Content[0]
	prog := &ast.Program{Kind: ast.KindCalculate}
	switch root.Kind {
	case yaml.ScalarNode:
		prog.Source = root.Value
	case yaml.MappingNode:
		if err := parseFields(root, prog); err != nil {
			return nil, err
		}
	default:
		return nil, &ParseError{Message: "program definition must be a mapping or a string"}
	}

	if err := Validate(prog); err != nil {
		return nil, err
	}
	return prog, nil
}

func parseFields(node *yaml.Node, prog *ast.Program) error {
	seen := make(map[string]bool)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]
		loc := fmt.Sprintf("field '%s'", key)

		if seen[key] {
			return &ParseError{Message: "duplicate key", Location: loc}
		}
		seen[key] = true

		if val.Kind != yaml.ScalarNode {
			return &ParseError{Message: "value must be a string", Location: loc}
		}
		switch key {
		case "kind":
			kind, err := ast.ParseKind(val.Value)
			if err != nil {
				return &ParseError{Message: err.Error(), Location: loc, Err: err}
			}
			prog.Kind = kind
		case "source":
			prog.Source = val.Value
		case "description":
			prog.Description = val.Value
		case "input":
			input := val.Value
			prog.Input = &input
		default:
			return &ParseError{Message: "unknown field", Location: loc}
		}
	}
	return nil
}

// Validate checks a program's source with the front end of its interpreter.
func Validate(prog *ast.Program) error {
	if prog.Source == "" {
		return &ParseError{Message: "program source is empty", Location: "field 'source'"}
	}
	switch prog.Kind {
	case ast.KindCalculate:
		if _, err := expr.Parse(prog.Source); err != nil {
			return &ParseError{Message: err.Error(), Location: "field 'source'", Err: err}
		}
	case ast.KindBrainfuck:
		if err := brainfuck.Validate(prog.Source); err != nil {
			return &ParseError{Message: err.Error(), Location: "field 'source'", Err: err}
		}
	default:
		return &ParseError{Message: fmt.Sprintf("unknown program kind %q", prog.Kind), Location: "field 'kind'"}
	}
	return nil
}
