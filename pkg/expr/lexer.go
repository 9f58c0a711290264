package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lemonberrylabs/calcd/pkg/types"
)

// Lexer tokenizes calculator source text. Newlines inside brackets are
// ignored; elsewhere they separate statements.
type Lexer struct {
	input    string
	pos      int
	tokens   []Token
	brackets []Token // open brackets awaiting their match
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Tokenize scans the entire input and returns all tokens. Errors are
// *types.SyntaxError.
func (l *Lexer) Tokenize() ([]Token, error) {
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		l.tokens = append(l.tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
	}
	return l.tokens, nil
}

// syntaxErrorAt builds a SyntaxError for a byte offset in src.
func syntaxErrorAt(src string, pos int, msg string) *types.SyntaxError {
	if pos > len(src) {
		pos = len(src)
	}
	lineStart := strings.LastIndexByte(src[:pos], '\n') + 1
	lineEnd := len(src)
	if i := strings.IndexByte(src[pos:], '\n'); i >= 0 {
		lineEnd = pos + i
	}
	return &types.SyntaxError{
		Line:   strings.Count(src[:pos], "\n") + 1,
		Column: utf8.RuneCountInString(src[lineStart:pos]) + 1,
		Text:   src[lineStart:lineEnd],
		Msg:    msg,
	}
}

func (l *Lexer) errorf(pos int, format string, args ...any) error {
	return syntaxErrorAt(l.input, pos, fmt.Sprintf(format, args...))
}

func (l *Lexer) token(tt TokenType, start int) (Token, error) {
	return Token{Type: tt, Value: l.input[start:l.pos], Pos: start, End: l.pos}, nil
}

// skipBlank skips spaces, comments, line continuations and, inside
// brackets, newlines.
func (l *Lexer) skipBlank() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\f':
			l.pos++
		case ch == '\\' && strings.HasPrefix(l.input[l.pos+1:], "\n"):
			l.pos += 2
		case ch == '\\' && strings.HasPrefix(l.input[l.pos+1:], "\r\n"):
			l.pos += 3
		case ch == '#':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
		case ch == '\n' && len(l.brackets) > 0:
			l.pos++
		default:
			return
		}
	}
}

// next returns the next token from the input.
func (l *Lexer) next() (Token, error) {
	l.skipBlank()

	if l.pos >= len(l.input) {
		if n := len(l.brackets); n > 0 {
			open := l.brackets[n-1]
			return Token{}, l.errorf(open.Pos, "'%s' was never closed", open.Value)
		}
		return Token{Type: TokenEOF, Pos: l.pos, End: l.pos}, nil
	}

	start := l.pos
	ch := l.input[l.pos]

	if ch == '\n' {
		l.pos++
		return l.token(TokenNewline, start)
	}

	if ch == '"' || ch == '\'' {
		return l.readString(ch)
	}

	if isDigit(ch) || (ch == '.' && l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1])) {
		return l.readNumber()
	}

	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	if r == '_' || unicode.IsLetter(r) {
		return l.readName()
	}

	for _, op := range augmentedOps {
		if strings.HasPrefix(l.input[l.pos:], op) {
			l.pos += len(op)
			return l.token(TokenAugAssign, start)
		}
	}
	for _, op := range twoCharOps {
		if strings.HasPrefix(l.input[l.pos:], op.text) {
			l.pos += len(op.text)
			return l.token(op.tt, start)
		}
	}

	switch ch {
	case '(', '[', '{':
		l.pos++
		tok, _ := l.token(openers[ch], start)
		l.brackets = append(l.brackets, tok)
		return tok, nil
	case ')', ']', '}':
		n := len(l.brackets)
		if n == 0 {
			return Token{}, l.errorf(start, "unmatched '%c'", ch)
		}
		open := l.brackets[n-1]
		if closers[open.Value[0]] != ch {
			return Token{}, l.errorf(start, "closing parenthesis '%c' does not match opening parenthesis '%s'", ch, open.Value)
		}
		l.brackets = l.brackets[:n-1]
		l.pos++
		return l.token(closerTypes[ch], start)
	}

	if tt, ok := singleCharOps[ch]; ok {
		l.pos++
		return l.token(tt, start)
	}

	if r >= utf8.RuneSelf {
		return Token{}, l.errorf(start, "invalid character '%c' (U+%04X)", r, r)
	}
	return Token{}, l.errorf(start, "invalid syntax")
}

var augmentedOps = []string{"**=", "//=", "<<=", ">>=", "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "@="}

var twoCharOps = []struct {
	text string
	tt   TokenType
}{
	{"**", TokenPower},
	{"//", TokenIntDiv},
	{"<<", TokenLShift},
	{">>", TokenRShift},
	{"==", TokenEq},
	{"!=", TokenNeq},
	{"<=", TokenLte},
	{">=", TokenGte},
}

var singleCharOps = map[byte]TokenType{
	'+': TokenPlus,
	'-': TokenMinus,
	'*': TokenStar,
	'@': TokenAt,
	'/': TokenSlash,
	'%': TokenPercent,
	'&': TokenAmp,
	'|': TokenPipe,
	'^': TokenCaret,
	'~': TokenTilde,
	'<': TokenLt,
	'>': TokenGt,
	'=': TokenAssign,
	'.': TokenDot,
	',': TokenComma,
	':': TokenColon,
	';': TokenSemicolon,
}

var openers = map[byte]TokenType{'(': TokenLParen, '[': TokenLBracket, '{': TokenLBrace}

var closers = map[byte]byte{'(': ')', '[': ']', '{': '}'}

var closerTypes = map[byte]TokenType{')': TokenRParen, ']': TokenRBracket, '}': TokenRBrace}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isNameChar(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (l *Lexer) readName() (Token, error) {
	start := l.pos
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !isNameChar(r) {
			break
		}
		l.pos += size
	}
	if tt, ok := keywords[l.input[start:l.pos]]; ok {
		return l.token(tt, start)
	}
	return l.token(TokenName, start)
}

// readDigits consumes digits accepted by valid, allowing single underscores
// between digits. It returns the number of digits read.
func (l *Lexer) readDigits(valid func(byte) bool) (int, error) {
	n := 0
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case valid(ch):
			n++
			l.pos++
		case ch == '_' && n > 0 && l.pos+1 < len(l.input) && valid(l.input[l.pos+1]):
			l.pos++
		case ch == '_':
			return n, l.errorf(l.pos, "invalid decimal literal")
		default:
			return n, nil
		}
	}
	return n, nil
}

func (l *Lexer) readNumber() (Token, error) {
	start := l.pos

	if l.input[l.pos] == '0' && l.pos+1 < len(l.input) {
		var valid func(byte) bool
		name := ""
		switch l.input[l.pos+1] {
		case 'x', 'X':
			valid, name = func(c byte) bool { return isDigit(c) || (c|0x20 >= 'a' && c|0x20 <= 'f') }, "hexadecimal"
		case 'o', 'O':
			valid, name = func(c byte) bool { return c >= '0' && c <= '7' }, "octal"
		case 'b', 'B':
			valid, name = func(c byte) bool { return c == '0' || c == '1' }, "binary"
		}
		if valid != nil {
			l.pos += 2
			if l.pos < len(l.input) && l.input[l.pos] == '_' {
				l.pos++
			}
			n, err := l.readDigits(valid)
			if err != nil {
				return Token{}, err
			}
			if n == 0 || l.trailingNameChar() {
				return Token{}, l.errorf(l.pos, "invalid %s literal", name)
			}
			return l.token(TokenNumber, start)
		}
	}

	intDigits, err := l.readDigits(isDigit)
	if err != nil {
		return Token{}, err
	}
	isInt := true
	if l.pos < len(l.input) && l.input[l.pos] == '.' {
		isInt = false
		l.pos++
		if _, err := l.readDigits(isDigit); err != nil {
			return Token{}, err
		}
	}
	if l.pos < len(l.input) && (l.input[l.pos] == 'e' || l.input[l.pos] == 'E') {
		save := l.pos
		l.pos++
		if l.pos < len(l.input) && (l.input[l.pos] == '+' || l.input[l.pos] == '-') {
			l.pos++
		}
		n, err := l.readDigits(isDigit)
		if err != nil {
			return Token{}, err
		}
		if n == 0 {
			return Token{}, l.errorf(save, "invalid decimal literal")
		}
		isInt = false
	}
	if l.trailingNameChar() {
		return Token{}, l.errorf(l.pos, "invalid decimal literal")
	}

	text := strings.ReplaceAll(l.input[start:l.pos], "_", "")
	if isInt && intDigits > 1 && text[0] == '0' && strings.Trim(text, "0") != "" {
		return Token{}, l.errorf(start, "leading zeros in decimal integer literals are not permitted; use an 0o prefix for octal integers")
	}
	return l.token(TokenNumber, start)
}

// trailingNameChar reports whether an identifier character directly follows
// a numeric literal, as in "1abc".
func (l *Lexer) trailingNameChar() bool {
	if l.pos >= len(l.input) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return isNameChar(r)
}

func (l *Lexer) readString(quote byte) (Token, error) {
	start := l.pos
	triple := strings.HasPrefix(l.input[l.pos:], strings.Repeat(string(quote), 3))
	if triple {
		l.pos += 3
	} else {
		l.pos++
	}

	var sb strings.Builder
	for {
		if l.pos >= len(l.input) {
			if triple {
				return Token{}, l.errorf(start, "unterminated triple-quoted string literal (detected at line %d)", strings.Count(l.input, "\n")+1)
			}
			return Token{}, l.errorf(start, "unterminated string literal (detected at line %d)", strings.Count(l.input[:start], "\n")+1)
		}
		ch := l.input[l.pos]
		switch {
		case ch == quote && !triple:
			l.pos++
			tok, _ := l.token(TokenString, start)
			tok.StrVal = sb.String()
			return tok, nil
		case ch == quote && strings.HasPrefix(l.input[l.pos:], strings.Repeat(string(quote), 3)):
			l.pos += 3
			tok, _ := l.token(TokenString, start)
			tok.StrVal = sb.String()
			return tok, nil
		case ch == '\n' && !triple:
			return Token{}, l.errorf(start, "unterminated string literal (detected at line %d)", strings.Count(l.input[:start], "\n")+1)
		case ch == '\\':
			if err := l.readEscape(&sb); err != nil {
				return Token{}, err
			}
		default:
			r, size := utf8.DecodeRuneInString(l.input[l.pos:])
			sb.WriteRune(r)
			l.pos += size
		}
	}
}

var simpleEscapes = map[byte]string{
	'\\': "\\",
	'\'': "'",
	'"':  "\"",
	'n':  "\n",
	't':  "\t",
	'r':  "\r",
	'0':  "\x00",
	'a':  "\a",
	'b':  "\b",
	'f':  "\f",
	'v':  "\v",
}

// readEscape decodes the escape sequence at l.pos into sb. Unknown escapes
// keep their backslash.
func (l *Lexer) readEscape(sb *strings.Builder) error {
	start := l.pos
	l.pos++
	if l.pos >= len(l.input) {
		return nil
	}
	ch := l.input[l.pos]
	if ch == '\n' {
		l.pos++
		return nil
	}
	if s, ok := simpleEscapes[ch]; ok {
		sb.WriteString(s)
		l.pos++
		return nil
	}
	width := map[byte]int{'x': 2, 'u': 4, 'U': 8}[ch]
	if width == 0 {
		sb.WriteByte('\\')
		return nil
	}
	l.pos++
	if l.pos+width > len(l.input) {
		return l.errorf(start, "(unicode error) truncated \\%cXX escape", ch)
	}
	code, err := strconv.ParseUint(l.input[l.pos:l.pos+width], 16, 32)
	if err != nil || code > unicode.MaxRune {
		return l.errorf(start, "(unicode error) truncated \\%cXX escape", ch)
	}
	sb.WriteRune(rune(code))
	l.pos += width
	return nil
}
