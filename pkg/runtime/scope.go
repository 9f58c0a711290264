// Package runtime implements the execution host: it runs calculator
// expressions and Brainfuck programs on worker goroutines bounded by a
// wall-clock timeout, and executes saved programs.
package runtime

import (
	"strings"
	"sync"

	"github.com/lemonberrylabs/calcd/pkg/stdlib"
	"github.com/lemonberrylabs/calcd/pkg/types"
)

// Binding is one environment entry.
type Binding struct {
	Name  string
	Value types.Value
}

// Environment holds the bindings created by assignments during one run,
// in first-assignment order. The worker writes to it while the engine may
// snapshot it after a timeout, so access is locked.
type Environment struct {
	mu    sync.RWMutex
	names []string
	vars  map[string]types.Value
}

// NewEnvironment creates an empty environment.
func NewEnvironment() *Environment {
	return &Environment{vars: make(map[string]types.Value)}
}

// Get returns the value bound to name.
func (e *Environment) Get(name string) (types.Value, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.vars[name]
	return v, ok
}

// Set binds name, keeping its original position if it was already bound.
func (e *Environment) Set(name string, v types.Value) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.vars[name]; !ok {
		e.names = append(e.names, name)
	}
	e.vars[name] = v
}

// Len returns the number of bindings.
func (e *Environment) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.names)
}

// Snapshot returns a copy of the bindings in order.
func (e *Environment) Snapshot() []Binding {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Binding, len(e.names))
	for i, name := range e.names {
		out[i] = Binding{Name: name, Value: e.vars[name]}
	}
	return out
}

// Scope resolves names for the expression walker: library names first
// (case-insensitively), then the environment, then Undefined.
type Scope struct {
	lib *stdlib.Library
	env *Environment
}

// NewScope creates a scope over a shared library and a per-run environment.
func NewScope(lib *stdlib.Library, env *Environment) *Scope {
	return &Scope{lib: lib, env: env}
}

// Resolve implements expr.Scope.
func (s *Scope) Resolve(name string) types.Value {
	if v, err := s.lib.Lookup(strings.ToLower(name)); err == nil {
		return v
	}
	if v, ok := s.env.Get(name); ok {
		return v
	}
	return types.Undefined
}

// Assign implements expr.Scope. Library names, matched exactly as
// written, cannot be rebound; such assignments are dropped. Other casings
// bind in the environment but stay hidden behind the library on lookup.
func (s *Scope) Assign(name string, v types.Value) {
	if s.lib.Contains(name) {
		return
	}
	s.env.Set(name, v)
}
