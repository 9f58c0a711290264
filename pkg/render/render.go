// Package render formats evaluation reports and VM results as plain text
// for the CLI and the web UI.
package render

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lemonberrylabs/calcd/pkg/brainfuck"
	"github.com/lemonberrylabs/calcd/pkg/runtime"
	"github.com/lemonberrylabs/calcd/pkg/stdlib"
	"github.com/lemonberrylabs/calcd/pkg/types"
)

const (
	resultWidth = 30
	errorWidth  = 40
	placeholder = "…"
)

// Shorten collapses runs of whitespace and, if the text is still longer
// than width characters, keeps as many whole words as fit with the
// placeholder appended.
func Shorten(text string, width int) string {
	words := strings.Fields(text)
	joined := strings.Join(words, " ")
	if utf8.RuneCountInString(joined) <= width {
		return joined
	}
	n := 0
	var kept []string
	for _, w := range words {
		add := utf8.RuneCountInString(w)
		if len(kept) > 0 {
			add++
		}
		if n+add+utf8.RuneCountInString(placeholder) > width {
			break
		}
		kept = append(kept, w)
		n += add
	}
	return strings.Join(kept, " ") + placeholder
}

// Title is the report heading.
func Title(r *runtime.Report) string {
	if n := len(r.Errors()); n > 0 {
		return fmt.Sprintf("Evaluated %d expressions with %d errors", r.Statements, n)
	}
	return fmt.Sprintf("Evaluated %d expressions", r.Statements)
}

// Report renders a full evaluation report: heading, timing, results,
// errors and the final environment.
func Report(r *runtime.Report) string {
	var sb strings.Builder
	sb.WriteString(Title(r))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Evaluated in %gms\n", float64(r.Elapsed)/float64(time.Millisecond))

	sb.WriteString("\nResults\n")
	for _, u := range r.Units {
		if u.Segment == runtime.TimeoutSegment && types.IsTag(u.Err, types.TagTimeoutError) {
			continue
		}
		sb.WriteString(resultLine(u))
		sb.WriteString("\n")
	}

	if errs := r.Errors(); len(errs) > 0 {
		sb.WriteString("\nErrors\n")
		for i, u := range errs {
			if i > 0 {
				sb.WriteString("\n")
			}
			fmt.Fprintf(&sb, "On %s:\n  %s\n", Shorten(u.Segment, errorWidth), u.Err.Error())
		}
	}

	if len(r.Environment) > 0 {
		sb.WriteString("\nEnvironment\n")
		for _, b := range r.Environment {
			fmt.Fprintf(&sb, "%s => %s\n", b.Name, b.Value.String())
		}
	}
	return sb.String()
}

// resultLine renders one unit. Assignments show only their segment.
func resultLine(u runtime.Unit) string {
	seg := Shorten(u.Segment, resultWidth)
	if u.Err != nil {
		return seg + " => " + errorRepr(u.Err)
	}
	if u.Value.IsNone() {
		return u.Segment
	}
	return seg + " => " + u.Value.Repr()
}

// errorRepr renders an error the way a value would be, Kind('message').
func errorRepr(err error) string {
	var ee *types.EvalError
	if errors.As(err, &ee) {
		return ee.Kind() + "(" + types.NewString(ee.Message).Repr() + ")"
	}
	return "Error(" + types.NewString(err.Error()).Repr() + ")"
}

// SyntaxError renders the heading and the caret block.
func SyntaxError(se *types.SyntaxError) string {
	return "Syntax error!\n" + se.Format() + "\n"
}

// Error renders a whole-request failure.
func Error(err error) string {
	var se *types.SyntaxError
	if errors.As(err, &se) {
		return SyntaxError(se)
	}
	return "Error: " + err.Error() + "\n"
}

// Functions lists the library's functions and constants.
func Functions(lib *stdlib.Library) string {
	var sb strings.Builder
	sb.WriteString("Available functions\n")
	sb.WriteString(strings.Join(lib.Functions(), ", "))
	sb.WriteString("\n\nAvailable constants\n")
	sb.WriteString(strings.Join(lib.Constants(), ", "))
	sb.WriteString("\n")
	return sb.String()
}

// Brainfuck renders a VM result.
func Brainfuck(res *brainfuck.Result) string {
	var sb strings.Builder
	if res.State == brainfuck.HaltedBracketError {
		fmt.Fprintf(&sb, "Error: %v\n", res.Err)
		return sb.String()
	}

	sb.WriteString("Output\n")
	sb.WriteString(res.Output)
	if !strings.HasSuffix(res.Output, "\n") {
		sb.WriteString("\n")
	}
	state := res.State.String()
	if res.CapReached {
		state += " (cycle cap reached)"
	}
	fmt.Fprintf(&sb, "\nState: %s\nCycles: %d\nElapsed: %gms\n", state, res.Cycles, float64(res.Elapsed)/float64(time.Millisecond))
	if res.Err != nil {
		fmt.Fprintf(&sb, "Error: %v\n", res.Err)
	}
	if res.Memory != nil {
		cells := make([]string, len(res.Memory))
		for i, c := range res.Memory {
			cells[i] = fmt.Sprint(c)
		}
		fmt.Fprintf(&sb, "\nMemory (pointer at %d)\n[%s]\n", res.Pointer, strings.Join(cells, ", "))
	}
	return sb.String()
}
