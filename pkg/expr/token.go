// Package expr implements the calculator's expression language: a lexer, a
// recursive descent parser for a small, safe statement grammar, and a tree
// walker that evaluates each top-level statement against a Scope.
package expr

// TokenType represents the type of a lexical token.
type TokenType int

const (
	// Literals
	TokenNumber TokenType = iota // numeric literal
	TokenString                  // string literal
	TokenTrue                    // True
	TokenFalse                   // False
	TokenNone                    // None

	// Identifiers and punctuation
	TokenName      // identifier
	TokenDot       // .
	TokenComma     // ,
	TokenColon     // :
	TokenSemicolon // ;
	TokenNewline   // end of a logical line
	TokenAssign    // =
	TokenAugAssign // +=, -=, ...

	// Brackets
	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenLBrace   // {
	TokenRBrace   // }

	// Arithmetic
	TokenPlus    // +
	TokenMinus   // -
	TokenStar    // *
	TokenAt      // @
	TokenSlash   // /
	TokenIntDiv  // //
	TokenPercent // %
	TokenPower   // **

	// Bitwise
	TokenLShift // <<
	TokenRShift // >>
	TokenAmp    // &
	TokenPipe   // |
	TokenCaret  // ^
	TokenTilde  // ~

	// Comparison
	TokenEq  // ==
	TokenNeq // !=
	TokenLt  // <
	TokenGt  // >
	TokenLte // <=
	TokenGte // >=

	// Keywords
	TokenAnd  // and
	TokenOr   // or
	TokenNot  // not
	TokenIn   // in
	TokenIs   // is
	TokenIf   // if
	TokenElse // else

	// Special
	TokenEOF // end of input
)

// keywords maps reserved words to their token types.
var keywords = map[string]TokenType{
	"True":  TokenTrue,
	"False": TokenFalse,
	"None":  TokenNone,
	"and":   TokenAnd,
	"or":    TokenOr,
	"not":   TokenNot,
	"in":    TokenIn,
	"is":    TokenIs,
	"if":    TokenIf,
	"else":  TokenElse,
}

// Token represents a single lexical token.
type Token struct {
	Type   TokenType
	Value  string // raw source text
	StrVal string // parsed string (for TokenString, with escapes resolved)
	Pos    int    // byte offset of the first character
	End    int    // byte offset just past the last character
}

var tokenNames = map[TokenType]string{
	TokenNumber:    "Number",
	TokenString:    "String",
	TokenTrue:      "True",
	TokenFalse:     "False",
	TokenNone:      "None",
	TokenName:      "Name",
	TokenDot:       ".",
	TokenComma:     ",",
	TokenColon:     ":",
	TokenSemicolon: ";",
	TokenNewline:   "NEWLINE",
	TokenAssign:    "=",
	TokenAugAssign: "augmented assignment",
	TokenLParen:    "(",
	TokenRParen:    ")",
	TokenLBracket:  "[",
	TokenRBracket:  "]",
	TokenLBrace:    "{",
	TokenRBrace:    "}",
	TokenPlus:      "+",
	TokenMinus:     "-",
	TokenStar:      "*",
	TokenAt:        "@",
	TokenSlash:     "/",
	TokenIntDiv:    "//",
	TokenPercent:   "%",
	TokenPower:     "**",
	TokenLShift:    "<<",
	TokenRShift:    ">>",
	TokenAmp:       "&",
	TokenPipe:      "|",
	TokenCaret:     "^",
	TokenTilde:     "~",
	TokenEq:        "==",
	TokenNeq:       "!=",
	TokenLt:        "<",
	TokenGt:        ">",
	TokenLte:       "<=",
	TokenGte:       ">=",
	TokenAnd:       "and",
	TokenOr:        "or",
	TokenNot:       "not",
	TokenIn:        "in",
	TokenIs:        "is",
	TokenIf:        "if",
	TokenElse:      "else",
	TokenEOF:       "EOF",
}

// String returns a debug-friendly representation of the token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "Unknown"
}
