package expr

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/lemonberrylabs/calcd/pkg/types"
)

// Parser is a recursive descent parser for calculator programs.
type Parser struct {
	src    string
	tokens []Token
	pos    int
}

// Parse parses source text into its top-level statements. Errors are
// *types.SyntaxError carrying the offending line and column.
func Parse(input string) (*Program, error) {
	tokens, err := NewLexer(input).Tokenize()
	if err != nil {
		return nil, err
	}
	p := &Parser{src: input, tokens: tokens}
	return p.parseProgram()
}

// ParseExpression parses a single expression with no statements around it.
func ParseExpression(input string) (Node, error) {
	prog, err := Parse(input)
	if err != nil {
		return nil, err
	}
	if len(prog.Statements) != 1 {
		return nil, syntaxErrorAt(input, 0, fmt.Sprintf("expected one expression, got %d statements", len(prog.Statements)))
	}
	stmt, ok := prog.Statements[0].Node.(*ExprStmt)
	if !ok {
		return nil, syntaxErrorAt(input, prog.Statements[0].Start, "expected an expression")
	}
	return stmt.Value, nil
}

func (p *Parser) current() Token {
	return p.tokens[p.pos]
}

func (p *Parser) peek() Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) previous() Token {
	return p.tokens[p.pos-1]
}

func (p *Parser) advance() Token {
	tok := p.tokens[p.pos]
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *Parser) errorAt(tok Token, msg string) error {
	return syntaxErrorAt(p.src, tok.Pos, msg)
}

func (p *Parser) expect(tt TokenType, msg string) (Token, error) {
	tok := p.current()
	if tok.Type != tt {
		return tok, p.errorAt(tok, msg)
	}
	return p.advance(), nil
}

func (p *Parser) parseProgram() (*Program, error) {
	prog := &Program{Source: p.src}
	for {
		for p.current().Type == TokenNewline {
			p.advance()
		}
		switch tok := p.current(); tok.Type {
		case TokenEOF:
			return prog, nil
		case TokenSemicolon:
			// A ';' must follow a statement.
			return nil, p.errorAt(tok, "invalid syntax")
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, stmt)
		switch tok := p.current(); tok.Type {
		case TokenSemicolon:
			p.advance()
		case TokenNewline, TokenEOF:
		default:
			return nil, p.errorAt(tok, "invalid syntax")
		}
	}
}

// parseStatement parses an expression statement, an assignment chain or an
// augmented assignment.
func (p *Parser) parseStatement() (*Statement, error) {
	start := p.current()
	first, err := p.parseExprList()
	if err != nil {
		return nil, err
	}

	if p.current().Type == TokenAugAssign {
		opTok := p.advance()
		switch first.(type) {
		case *NameNode, *SubscriptNode, *AttributeNode:
		default:
			return nil, p.errorAt(start, fmt.Sprintf("'%s' is an illegal expression for augmented assignment", describe(first)))
		}
		value, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		return p.statement(start, &AugAssignNode{Target: first, Op: opTok.Value, Value: value}), nil
	}

	exprs := []Node{first}
	starts := []Token{start}
	for p.current().Type == TokenAssign {
		p.advance()
		starts = append(starts, p.current())
		next, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, next)
	}
	if len(exprs) == 1 {
		return p.statement(start, &ExprStmt{Value: first}), nil
	}

	targets := exprs[:len(exprs)-1]
	for i, target := range targets {
		if what := checkTarget(target); what != "" {
			return nil, p.errorAt(starts[i], "cannot assign to "+what)
		}
	}
	return p.statement(start, &AssignNode{Targets: targets, Value: exprs[len(exprs)-1]}), nil
}

func (p *Parser) statement(start Token, node Node) *Statement {
	return &Statement{Node: node, Start: start.Pos, End: p.previous().End}
}

// checkTarget returns what makes node an invalid assignment target, or "".
func checkTarget(node Node) string {
	switch n := node.(type) {
	case *NameNode, *SubscriptNode, *AttributeNode:
		return ""
	case *TupleNode:
		for _, el := range n.Elements {
			if what := checkTarget(el); what != "" {
				return what
			}
		}
		return ""
	case *ListNode:
		for _, el := range n.Elements {
			if what := checkTarget(el); what != "" {
				return what
			}
		}
		return ""
	case *ConstNode:
		return map[TokenType]string{TokenTrue: "True", TokenFalse: "False", TokenNone: "None"}[n.Token]
	}
	return describe(node)
}

// describe names a node the way assignment errors do.
func describe(node Node) string {
	switch node.(type) {
	case *NumberNode, *StringNode, *ConstNode:
		return "literal"
	case *CallNode:
		return "function call"
	case *CompareNode:
		return "comparison"
	case *IfExpNode:
		return "conditional expression"
	case *DictNode:
		return "dict literal"
	case *SetNode:
		return "set display"
	case *TupleNode:
		return "tuple"
	case *ListNode:
		return "list"
	}
	return "expression"
}

// startsExpr reports whether tok can begin an expression.
func startsExpr(tok Token) bool {
	switch tok.Type {
	case TokenNumber, TokenString, TokenTrue, TokenFalse, TokenNone, TokenName,
		TokenLParen, TokenLBracket, TokenLBrace, TokenMinus, TokenPlus, TokenTilde, TokenNot:
		return true
	}
	return false
}

// parseElements parses expr {',' expr} [','] and reports whether any comma
// was seen.
func (p *Parser) parseElements() ([]Node, bool, error) {
	first, err := p.parseExpr()
	if err != nil {
		return nil, false, err
	}
	elems := []Node{first}
	comma := false
	for p.current().Type == TokenComma {
		comma = true
		p.advance()
		if !startsExpr(p.current()) {
			break
		}
		next, err := p.parseExpr()
		if err != nil {
			return nil, false, err
		}
		elems = append(elems, next)
	}
	return elems, comma, nil
}

// parseExprList parses a comma-separated list; a comma makes it a tuple.
func (p *Parser) parseExprList() (Node, error) {
	elems, comma, err := p.parseElements()
	if err != nil {
		return nil, err
	}
	if comma {
		return &TupleNode{Elements: elems}, nil
	}
	return elems[0], nil
}

// parseExpr parses a conditional expression.
func (p *Parser) parseExpr() (Node, error) {
	body, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.current().Type != TokenIf {
		return body, nil
	}
	p.advance()
	test, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenElse, "expected 'else' after 'if' expression"); err != nil {
		return nil, err
	}
	orElse, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &IfExpNode{Test: test, Body: body, OrElse: orElse}, nil
}

func (p *Parser) parseBoolOp(op TokenType, next func() (Node, error)) (Node, error) {
	first, err := next()
	if err != nil {
		return nil, err
	}
	values := []Node{first}
	for p.current().Type == op {
		p.advance()
		v, err := next()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	if len(values) == 1 {
		return first, nil
	}
	return &BoolOpNode{Op: op, Values: values}, nil
}

func (p *Parser) parseOr() (Node, error) {
	return p.parseBoolOp(TokenOr, p.parseAnd)
}

func (p *Parser) parseAnd() (Node, error) {
	return p.parseBoolOp(TokenAnd, p.parseNot)
}

func (p *Parser) parseNot() (Node, error) {
	if p.current().Type == TokenNot {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryNode{Op: TokenNot, Operand: operand}, nil
	}
	return p.parseComparison()
}

// compareOp consumes a comparison operator if one is next.
func (p *Parser) compareOp() (CompareOp, bool) {
	simple := map[TokenType]CompareOp{
		TokenEq: CmpEq, TokenNeq: CmpNotEq,
		TokenLt: CmpLt, TokenLte: CmpLtE,
		TokenGt: CmpGt, TokenGte: CmpGtE,
		TokenIn: CmpIn,
	}
	tok := p.current()
	if op, ok := simple[tok.Type]; ok {
		p.advance()
		return op, true
	}
	switch {
	case tok.Type == TokenNot && p.peek().Type == TokenIn:
		p.advance()
		p.advance()
		return CmpNotIn, true
	case tok.Type == TokenIs:
		p.advance()
		if p.current().Type == TokenNot {
			p.advance()
			return CmpIsNot, true
		}
		return CmpIs, true
	}
	return 0, false
}

func (p *Parser) parseComparison() (Node, error) {
	left, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}
	var cmp *CompareNode
	for {
		op, ok := p.compareOp()
		if !ok {
			break
		}
		right, err := p.parseBitOr()
		if err != nil {
			return nil, err
		}
		if cmp == nil {
			cmp = &CompareNode{Left: left}
		}
		cmp.Ops = append(cmp.Ops, op)
		cmp.Comparators = append(cmp.Comparators, right)
	}
	if cmp == nil {
		return left, nil
	}
	return cmp, nil
}

// parseBinary parses a left-associative level of binary operators.
func (p *Parser) parseBinary(next func() (Node, error), ops ...TokenType) (Node, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.current()
		matched := false
		for _, op := range ops {
			if tok.Type == op {
				matched = true
				break
			}
		}
		if !matched {
			return left, nil
		}
		p.advance()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: tok.Type, Left: left, Right: right}
	}
}

func (p *Parser) parseBitOr() (Node, error) {
	return p.parseBinary(p.parseBitXor, TokenPipe)
}

func (p *Parser) parseBitXor() (Node, error) {
	return p.parseBinary(p.parseBitAnd, TokenCaret)
}

func (p *Parser) parseBitAnd() (Node, error) {
	return p.parseBinary(p.parseShift, TokenAmp)
}

func (p *Parser) parseShift() (Node, error) {
	return p.parseBinary(p.parseArith, TokenLShift, TokenRShift)
}

func (p *Parser) parseArith() (Node, error) {
	return p.parseBinary(p.parseTerm, TokenPlus, TokenMinus)
}

func (p *Parser) parseTerm() (Node, error) {
	return p.parseBinary(p.parseFactor, TokenStar, TokenAt, TokenSlash, TokenIntDiv, TokenPercent)
}

func (p *Parser) parseFactor() (Node, error) {
	switch tok := p.current(); tok.Type {
	case TokenPlus, TokenMinus, TokenTilde:
		p.advance()
		operand, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &UnaryNode{Op: tok.Type, Operand: operand}, nil
	}
	return p.parsePower()
}

// parsePower parses base ** exponent; the exponent binds tighter on the
// right, so -2 ** 2 is -(2 ** 2) and 2 ** -1 is allowed.
func (p *Parser) parsePower() (Node, error) {
	base, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.current().Type != TokenPower {
		return base, nil
	}
	p.advance()
	exp, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	return &BinaryNode{Op: TokenPower, Left: base, Right: exp}, nil
}

func (p *Parser) parsePostfix() (Node, error) {
	node, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch p.current().Type {
		case TokenLParen:
			p.advance()
			call, err := p.parseCallArgs(node)
			if err != nil {
				return nil, err
			}
			node = call
		case TokenLBracket:
			p.advance()
			index, err := p.parseSubscript()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokenRBracket, "invalid syntax"); err != nil {
				return nil, err
			}
			node = &SubscriptNode{Object: node, Index: index}
		case TokenDot:
			p.advance()
			name, err := p.expect(TokenName, "invalid syntax")
			if err != nil {
				return nil, err
			}
			node = &AttributeNode{Object: node, Name: name.Value}
		default:
			return node, nil
		}
	}
}

// parseCallArgs parses arguments after '(' up to and including ')'.
func (p *Parser) parseCallArgs(fn Node) (Node, error) {
	call := &CallNode{Func: fn}
	seen := make(map[string]bool)
	for p.current().Type != TokenRParen {
		tok := p.current()
		if tok.Type == TokenName && p.peek().Type == TokenAssign {
			p.advance()
			p.advance()
			if seen[tok.Value] {
				return nil, p.errorAt(tok, "keyword argument repeated: "+tok.Value)
			}
			seen[tok.Value] = true
			value, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.Keywords = append(call.Keywords, Keyword{Name: tok.Value, Value: value})
		} else {
			if len(call.Keywords) > 0 {
				return nil, p.errorAt(tok, "positional argument follows keyword argument")
			}
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
		}
		if p.current().Type != TokenComma {
			break
		}
		p.advance()
	}
	if _, err := p.expect(TokenRParen, "invalid syntax"); err != nil {
		return nil, err
	}
	return call, nil
}

// parseSubscript parses the inside of x[...], including slices.
func (p *Parser) parseSubscript() (Node, error) {
	first, err := p.parseSliceItem()
	if err != nil {
		return nil, err
	}
	if p.current().Type != TokenComma {
		return first, nil
	}
	elems := []Node{first}
	for p.current().Type == TokenComma {
		p.advance()
		if p.current().Type == TokenRBracket {
			break
		}
		item, err := p.parseSliceItem()
		if err != nil {
			return nil, err
		}
		elems = append(elems, item)
	}
	return &TupleNode{Elements: elems}, nil
}

func (p *Parser) parseSliceItem() (Node, error) {
	var lower Node
	if p.current().Type != TokenColon {
		var err error
		if lower, err = p.parseExpr(); err != nil {
			return nil, err
		}
		if p.current().Type != TokenColon {
			return lower, nil
		}
	}
	slice := &SliceNode{Lower: lower}
	p.advance()
	var err error
	if startsExpr(p.current()) {
		if slice.Upper, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if p.current().Type == TokenColon {
		p.advance()
		if startsExpr(p.current()) {
			if slice.Step, err = p.parseExpr(); err != nil {
				return nil, err
			}
		}
	}
	return slice, nil
}

func (p *Parser) parseAtom() (Node, error) {
	tok := p.current()
	switch tok.Type {
	case TokenNumber:
		p.advance()
		v, err := numberValue(tok.Value)
		if err != nil {
			return nil, p.errorAt(tok, "invalid decimal literal")
		}
		return &NumberNode{Raw: tok.Value, Value: v}, nil

	case TokenString:
		var sb strings.Builder
		for p.current().Type == TokenString {
			sb.WriteString(p.advance().StrVal)
		}
		return &StringNode{Value: sb.String()}, nil

	case TokenTrue, TokenFalse, TokenNone:
		p.advance()
		return &ConstNode{Token: tok.Type}, nil

	case TokenName:
		p.advance()
		return &NameNode{Name: tok.Value}, nil

	case TokenLParen:
		p.advance()
		if p.current().Type == TokenRParen {
			p.advance()
			return &TupleNode{}, nil
		}
		elems, comma, err := p.parseElements()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen, "invalid syntax"); err != nil {
			return nil, err
		}
		if comma {
			return &TupleNode{Elements: elems}, nil
		}
		return elems[0], nil

	case TokenLBracket:
		p.advance()
		if p.current().Type == TokenRBracket {
			p.advance()
			return &ListNode{}, nil
		}
		elems, _, err := p.parseElements()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRBracket, "invalid syntax"); err != nil {
			return nil, err
		}
		return &ListNode{Elements: elems}, nil

	case TokenLBrace:
		p.advance()
		return p.parseBraces()
	}

	return nil, p.errorAt(tok, "invalid syntax")
}

// parseBraces parses a dict or set display after '{'.
func (p *Parser) parseBraces() (Node, error) {
	if p.current().Type == TokenRBrace {
		p.advance()
		return &DictNode{}, nil
	}
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	if p.current().Type != TokenColon {
		set := &SetNode{Elements: []Node{first}}
		for p.current().Type == TokenComma {
			p.advance()
			if p.current().Type == TokenRBrace {
				break
			}
			el, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			set.Elements = append(set.Elements, el)
		}
		if _, err := p.expect(TokenRBrace, "invalid syntax"); err != nil {
			return nil, err
		}
		return set, nil
	}

	dict := &DictNode{}
	key := first
	for {
		if _, err := p.expect(TokenColon, "':' expected after dictionary key"); err != nil {
			return nil, err
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		dict.Keys = append(dict.Keys, key)
		dict.Values = append(dict.Values, value)
		if p.current().Type != TokenComma {
			break
		}
		p.advance()
		if p.current().Type == TokenRBrace {
			break
		}
		if key, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(TokenRBrace, "invalid syntax"); err != nil {
		return nil, err
	}
	return dict, nil
}

// numberValue builds the exact Number for a literal. Prefixed literals are
// integers in base 16, 8 or 2.
func numberValue(raw string) (types.Value, error) {
	text := strings.ReplaceAll(raw, "_", "")
	if len(text) > 2 && text[0] == '0' {
		base := 0
		switch text[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			b, ok := new(big.Int).SetString(text[2:], base)
			if !ok {
				return types.None, fmt.Errorf("invalid literal %q", raw)
			}
			return types.NewBigInt(b), nil
		}
	}
	return types.NewNumberFromString(text)
}
