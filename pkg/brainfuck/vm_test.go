package brainfuck

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonberrylabs/calcd/pkg/types"
)

const hello = "++++++++[>++++[>++>+++>+++>+<<<<-]>+>+>->>+[<]<-]>>.>---.+++++++..+++."

func TestHello(t *testing.T) {
	res := Run(context.Background(), hello)
	require.NoError(t, res.Err)
	assert.Equal(t, "Hello", res.Output)
	assert.Equal(t, HaltedNormal, res.State)
	assert.False(t, res.CapReached)
	assert.Positive(t, res.Cycles)
	assert.Nil(t, res.Memory)
}

func TestBracketMismatch(t *testing.T) {
	tests := []struct {
		program string
		msg     string
	}{
		{"[", "unmatched '[' at position 0"},
		{"]", "unmatched ']' at position 0"},
		{"+[]]", "unmatched ']' at position 3"},
		{"[[]", "unmatched '[' at position 0"},
		{"a [ b ] c [", "unmatched '[' at position 2"},
	}
	for _, tt := range tests {
		t.Run(tt.program, func(t *testing.T) {
			res := Run(context.Background(), tt.program)
			assert.Equal(t, HaltedBracketError, res.State)
			assert.Zero(t, res.Cycles)
			require.Error(t, res.Err)
			assert.True(t, types.IsTag(res.Err, types.TagBracketMismatchError))
			assert.Contains(t, res.Err.Error(), tt.msg)
			assert.Equal(t, res.Err.Error(), Validate(tt.program).Error())
		})
	}
	assert.NoError(t, Validate(hello))
}

func TestCycleCap(t *testing.T) {
	res := Run(context.Background(), "+[]")
	require.NoError(t, res.Err)
	assert.Equal(t, HaltedNormal, res.State)
	assert.True(t, res.CapReached)
	assert.Equal(t, 7500, res.Cycles)

	assert.Equal(t, MaxCycles, CycleCap(1000))
	assert.Equal(t, 0, CycleCap(0))
}

func TestDirectives(t *testing.T) {
	tests := []struct {
		name    string
		program string
		output  string
		memory  []int
		pointer int
	}{
		{"unclamped cells", "-.", "�", nil, 0},
		{"wrap", "&wrap -.", "ÿ", nil, 0},
		{"wrap overflow", strings.Repeat("+", 256) + "&wrap .", "\x00", nil, 0},
		{"input with escapes", `&input=a\sb ,.,.,.,.`, "a b\x00", nil, 0},
		{"input newline", `,.,. &input=x\n`, "x\n", nil, 0},
		{"dump", "&dump >>+", "", []int{0, 0, 1}, 2},
		{"left bound", "&dump <<+", "", []int{1}, 0},
		{"directive text is not code", "&input=+++ ,.", "+", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Run(context.Background(), tt.program)
			require.NoError(t, res.Err)
			assert.Equal(t, tt.output, res.Output)
			assert.Equal(t, tt.memory, res.Memory)
			assert.Equal(t, tt.pointer, res.Pointer)
		})
	}
}

func TestParseDirectives(t *testing.T) {
	code, opts := ParseDirectives(`+&wrap &dump &input=\\x.`)
	assert.True(t, opts.Wrap)
	assert.True(t, opts.Dump)
	assert.Equal(t, []rune(`\x.`), opts.Input)
	assert.Equal(t, "+  ", code)
	assert.Equal(t, []byte("+.[]"), Filter("+ a . [ b ] c"))
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := Run(ctx, "+[]")
	require.Error(t, res.Err)
	assert.True(t, types.IsTag(res.Err, types.TagTimeoutError))
	assert.Equal(t, Running, res.State)
}

func TestDecode(t *testing.T) {
	assert.Equal(t, "A��\U0010FFFF", decode([]int{65, 0xD800, 0x110000, 0x10FFFF}))
	assert.Equal(t, "HaltedBracketError", HaltedBracketError.String())
}
