// Package stdlib implements the calculator's library: the built-in functions,
// constants and alias names an expression can refer to.
package stdlib

import (
	"sort"
	"sync"

	"github.com/lemonberrylabs/calcd/pkg/types"
)

// Library holds the built-in functions, constants and aliases. A Library is
// immutable once constructed and safe for concurrent use.
type Library struct {
	functions map[string]types.Value
	constants map[string]types.Value
	aliases   map[string]string
}

// Option customises a Library built with New.
type Option func(*Library)

// WithFunction adds or replaces a function.
func WithFunction(name string, fn types.BuiltinFunc) Option {
	return func(l *Library) {
		l.register(name, fn)
	}
}

// WithConstant adds or replaces a constant.
func WithConstant(name string, v types.Value) Option {
	return func(l *Library) {
		l.constants[name] = v
	}
}

// WithAlias adds an alternate name for an existing entry.
func WithAlias(alias, target string) Option {
	return func(l *Library) {
		l.aliases[alias] = target
	}
}

var (
	defaultOnce    sync.Once
	defaultLibrary *Library
)

// Default returns the process-wide library. It is built on first use and
// shared read-only by every evaluation.
func Default() *Library {
	defaultOnce.Do(func() {
		defaultLibrary = New()
	})
	return defaultLibrary
}

// New creates a library with all built-ins registered, then applies opts.
func New(opts ...Option) *Library {
	l := &Library{
		functions: make(map[string]types.Value),
		constants: make(map[string]types.Value),
		aliases:   make(map[string]string),
	}
	l.registerBuiltins()
	l.registerConversions()
	l.registerSequences()
	l.registerMath()
	l.registerConstants()
	l.registerAliases()
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Library) register(name string, fn types.BuiltinFunc) {
	l.functions[name] = types.NewFunction(name, fn)
}

// resolve maps an alias to its canonical name.
func (l *Library) resolve(name string) string {
	if target, ok := l.aliases[name]; ok {
		return target
	}
	return name
}

// Lookup resolves aliases, then searches functions, then constants.
func (l *Library) Lookup(name string) (types.Value, error) {
	name = l.resolve(name)
	if fn, ok := l.functions[name]; ok {
		return fn, nil
	}
	if c, ok := l.constants[name]; ok {
		return c, nil
	}
	return types.None, types.NewNameNotFoundError(name)
}

// Contains reports whether name is a function, constant or alias.
func (l *Library) Contains(name string) bool {
	if _, ok := l.aliases[name]; ok {
		return true
	}
	if _, ok := l.functions[name]; ok {
		return true
	}
	_, ok := l.constants[name]
	return ok
}

// Functions returns the sorted function names.
func (l *Library) Functions() []string {
	return sortedKeys(l.functions)
}

// Constants returns the sorted constant names.
func (l *Library) Constants() []string {
	return sortedKeys(l.constants)
}

// Aliases returns a copy of the alias table.
func (l *Library) Aliases() map[string]string {
	out := make(map[string]string, len(l.aliases))
	for k, v := range l.aliases {
		out[k] = v
	}
	return out
}

// Names lists functions, then constants, then aliases, each group sorted.
func (l *Library) Names() []string {
	names := make([]string, 0, l.Len())
	names = append(names, l.Functions()...)
	names = append(names, l.Constants()...)
	aliases := make([]string, 0, len(l.aliases))
	for k := range l.aliases {
		aliases = append(aliases, k)
	}
	sort.Strings(aliases)
	return append(names, aliases...)
}

// Len returns the total number of names.
func (l *Library) Len() int {
	return len(l.functions) + len(l.constants) + len(l.aliases)
}

func sortedKeys(m map[string]types.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (l *Library) registerConstants() {
	l.constants["euler"] = types.MustNumber("2.718281828459045")
	l.constants["pi"] = types.MustNumber("3.141592653589793")
	l.constants["tau"] = types.MustNumber("6.283185307179586")
	l.constants["infinity"] = types.MustNumber("Infinity")
	l.constants["nan"] = types.MustNumber("NaN")
	l.constants["undefined"] = types.Undefined
}

func (l *Library) registerAliases() {
	for alias, target := range map[string]string{
		"abs":     "absolute",
		"bin":     "binary",
		"bool":    "boolean",
		"char":    "character",
		"chr":     "character",
		"dict":    "dictionary",
		"hex":     "hexadecimal",
		"len":     "length",
		"num":     "number",
		"oct":     "octal",
		"str":     "string",
		"acos":    "arccos",
		"arcos":   "arccos",
		"acosh":   "arccosh",
		"arcosh":  "arccosh",
		"asin":    "arcsin",
		"asinh":   "arcsinh",
		"atan":    "arctan",
		"atanh":   "arctanh",
		"ceil":    "ceiling",
		"cosine":  "cos",
		"deg":     "degrees",
		"dist":    "distance",
		"hypot":   "hypotenuse",
		"prod":    "product",
		"rad":     "radians",
		"sine":    "sin",
		"tangent": "tan",
		"e":       "euler",
		"inf":     "infinity",
		"undef":   "undefined",
	} {
		l.aliases[alias] = target
	}
}
