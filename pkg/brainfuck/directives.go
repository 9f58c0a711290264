package brainfuck

import (
	"regexp"
	"strings"
)

// Options control a single run. They are normally parsed from directives
// embedded in the program text.
type Options struct {
	Wrap  bool   // cells wrap modulo 256
	Dump  bool   // include the tape in the result
	Input []rune // values consumed by ','
}

var (
	wrapDirective  = regexp.MustCompile(`&wrap\b`)
	dumpDirective  = regexp.MustCompile(`&dump\b`)
	inputDirective = regexp.MustCompile(`&input=(\S*)`)
)

var inputEscapes = strings.NewReplacer(`\\`, `\`, `\s`, " ", `\n`, "\n", `\t`, "\t")

// ParseDirectives strips the &wrap, &dump and &input=TEXT directives from
// text and returns the remaining program with the options they set. TEXT
// runs to the next whitespace and may use \s, \n, \t and \\ escapes.
func ParseDirectives(text string) (string, Options) {
	var opts Options
	if wrapDirective.MatchString(text) {
		opts.Wrap = true
		text = wrapDirective.ReplaceAllString(text, "")
	}
	if dumpDirective.MatchString(text) {
		opts.Dump = true
		text = dumpDirective.ReplaceAllString(text, "")
	}
	if m := inputDirective.FindStringSubmatch(text); m != nil {
		opts.Input = []rune(inputEscapes.Replace(m[1]))
		text = inputDirective.ReplaceAllString(text, "")
	}
	return text, opts
}

// Filter keeps only the eight instruction characters.
func Filter(text string) []byte {
	code := make([]byte, 0, len(text))
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '+', '-', '<', '>', '.', ',', '[', ']':
			code = append(code, text[i])
		}
	}
	return code
}
