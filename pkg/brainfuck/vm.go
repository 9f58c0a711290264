// Package brainfuck implements a small Brainfuck virtual machine: bracket
// pre-scan, a tape that grows to the right, a cycle cap and optional
// wrapping cells, input feed and memory dump.
package brainfuck

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lemonberrylabs/calcd/pkg/types"
)

const (
	// CyclesPerInstruction scales the cycle cap with program length.
	CyclesPerInstruction = 2500
	// MaxCycles bounds every run regardless of program length.
	MaxCycles = 1_000_000

	cancelCheckInterval = 4096
)

// State is the VM lifecycle state.
type State int

const (
	Running State = iota
	HaltedNormal
	HaltedBracketError
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case HaltedNormal:
		return "HaltedNormal"
	case HaltedBracketError:
		return "HaltedBracketError"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Result is the outcome of one run.
type Result struct {
	Output     string        `json:"output"`
	Cycles     int           `json:"cycles"`
	Elapsed    time.Duration `json:"elapsed"`
	State      State         `json:"-"`
	CapReached bool          `json:"capReached"`
	Memory     []int         `json:"memory,omitempty"`
	Pointer    int           `json:"pointer"`
	Err        error         `json:"-"`
}

// VM holds the state of one program run. A VM is used once.
type VM struct {
	code   []byte
	jumps  []int
	opts   Options
	tape   []int
	ptr    int
	ip     int
	cycles int
	limit  int
	output []int
	input  []rune
	loops  []int
	state  State
}

// New creates a VM for already-filtered instructions.
func New(code []byte, opts Options) *VM {
	return &VM{
		code:  code,
		opts:  opts,
		tape:  []int{0},
		limit: CycleCap(len(code)),
		input: opts.Input,
		state: Running,
	}
}

// CycleCap returns the cycle budget for a program of n instructions.
func CycleCap(n int) int {
	return min(n*CyclesPerInstruction, MaxCycles)
}

// Run parses directives out of text, filters the instructions and runs them.
func Run(ctx context.Context, text string) *Result {
	program, opts := ParseDirectives(text)
	return New(Filter(program), opts).Run(ctx)
}

// Validate pre-scans the instructions in text for unbalanced brackets.
func Validate(text string) error {
	program, _ := ParseDirectives(text)
	_, err := matchBrackets(Filter(program))
	return err
}

// matchBrackets pairs every '[' with its ']'. Positions in errors are
// indexes into code.
func matchBrackets(code []byte) ([]int, error) {
	jumps := make([]int, len(code))
	var open []int
	for i, c := range code {
		switch c {
		case '[':
			open = append(open, i)
		case ']':
			if len(open) == 0 {
				return nil, types.NewBracketMismatchError(']', i)
			}
			j := open[len(open)-1]
			open = open[:len(open)-1]
			jumps[i], jumps[j] = j, i
		}
	}
	if len(open) > 0 {
		return nil, types.NewBracketMismatchError('[', open[0])
	}
	return jumps, nil
}

// Run executes the program until the instructions are exhausted, the cycle
// cap is reached or ctx is done. The returned Result is never nil.
func (vm *VM) Run(ctx context.Context) *Result {
	start := time.Now()
	jumps, err := matchBrackets(vm.code)
	if err != nil {
		vm.state = HaltedBracketError
		return vm.result(start, err)
	}
	vm.jumps = jumps

	for vm.ip < len(vm.code) {
		if vm.cycles >= vm.limit {
			vm.state = HaltedNormal
			res := vm.result(start, nil)
			res.CapReached = true
			return res
		}
		if vm.cycles%cancelCheckInterval == 0 && ctx.Err() != nil {
			return vm.result(start, types.NewTimeoutError(fmt.Sprintf("stopped after %d cycles: %v", vm.cycles, ctx.Err())))
		}
		vm.step()
		vm.cycles++
	}
	vm.state = HaltedNormal
	return vm.result(start, nil)
}

func (vm *VM) step() {
	switch vm.code[vm.ip] {
	case '>':
		vm.ptr++
		if vm.ptr == len(vm.tape) {
			vm.tape = append(vm.tape, 0)
		}
	case '<':
		if vm.ptr > 0 {
			vm.ptr--
		}
	case '+':
		vm.set(vm.tape[vm.ptr] + 1)
	case '-':
		vm.set(vm.tape[vm.ptr] - 1)
	case '.':
		vm.output = append(vm.output, vm.tape[vm.ptr])
	case ',':
		v := 0
		if len(vm.input) > 0 {
			v = int(vm.input[0])
			vm.input = vm.input[1:]
		}
		vm.set(v)
	case '[':
		if vm.tape[vm.ptr] == 0 {
			vm.ip = vm.jumps[vm.ip]
		} else {
			vm.loops = append(vm.loops, vm.ip)
		}
	case ']':
		if vm.tape[vm.ptr] != 0 {
			vm.ip = vm.loops[len(vm.loops)-1]
		} else {
			vm.loops = vm.loops[:len(vm.loops)-1]
		}
	}
	vm.ip++
}

func (vm *VM) set(v int) {
	if vm.opts.Wrap {
		v = ((v % 256) + 256) % 256
	}
	vm.tape[vm.ptr] = v
}

func (vm *VM) result(start time.Time, err error) *Result {
	res := &Result{
		Output:  decode(vm.output),
		Cycles:  vm.cycles,
		Elapsed: time.Since(start),
		State:   vm.state,
		Pointer: vm.ptr,
		Err:     err,
	}
	if vm.opts.Dump {
		res.Memory = append([]int(nil), vm.tape...)
	}
	return res
}

// decode turns output cells into text. Cells that are not Unicode scalar
// values become U+FFFD.
func decode(cells []int) string {
	var sb strings.Builder
	for _, c := range cells {
		r := rune(c)
		if c < 0 || c > utf8.MaxRune || !utf8.ValidRune(r) {
			r = utf8.RuneError
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
