package expr

import "github.com/lemonberrylabs/calcd/pkg/types"

// Node is the interface for all expression AST nodes. Kind names the
// grammar construct and appears in NotImplementedError messages.
type Node interface {
	Kind() string
}

// Program is a parsed source text: its top-level statements in order.
type Program struct {
	Source     string
	Statements []*Statement
}

// Statement is one top-level statement and the source span it came from.
type Statement struct {
	Node  Node
	Start int // byte offset of the first token
	End   int // byte offset just past the last token
}

// Segment returns the statement's original source text.
func (p *Program) Segment(s *Statement) string {
	return p.Source[s.Start:s.End]
}

// ExprStmt is a statement consisting of a single expression.
type ExprStmt struct {
	Value Node
}

func (n *ExprStmt) Kind() string { return "Expr" }

// AssignNode binds the value to every target (a = b = 1).
type AssignNode struct {
	Targets []Node
	Value   Node
}

func (n *AssignNode) Kind() string { return "Assign" }

// AugAssignNode is parsed (a += 1) but not evaluated.
type AugAssignNode struct {
	Target Node
	Op     string
	Value  Node
}

func (n *AugAssignNode) Kind() string { return "AugAssign" }

// NumberNode is a numeric literal. Value holds the exact literal.
type NumberNode struct {
	Raw   string
	Value types.Value
}

func (n *NumberNode) Kind() string { return "Constant" }

// StringNode is a string literal (adjacent literals are joined).
type StringNode struct {
	Value string
}

func (n *StringNode) Kind() string { return "Constant" }

// ConstNode is True, False or None.
type ConstNode struct {
	Token TokenType
}

func (n *ConstNode) Kind() string { return "Constant" }

// NameNode is an identifier reference.
type NameNode struct {
	Name string
}

func (n *NameNode) Kind() string { return "Name" }

// BinaryNode is an arithmetic or bitwise operation.
type BinaryNode struct {
	Op    TokenType
	Left  Node
	Right Node
}

func (n *BinaryNode) Kind() string { return "BinOp" }

// BoolOpNode is a chain of and/or operands.
type BoolOpNode struct {
	Op     TokenType // TokenAnd or TokenOr
	Values []Node
}

func (n *BoolOpNode) Kind() string { return "BoolOp" }

// UnaryNode is -x, +x, ~x or not x.
type UnaryNode struct {
	Op      TokenType
	Operand Node
}

func (n *UnaryNode) Kind() string { return "UnaryOp" }

// CompareOp identifies a comparison operator, including the two-word ones.
type CompareOp int

const (
	CmpEq CompareOp = iota
	CmpNotEq
	CmpLt
	CmpLtE
	CmpGt
	CmpGtE
	CmpIs
	CmpIsNot
	CmpIn
	CmpNotIn
)

var compareOpText = [...]string{"==", "!=", "<", "<=", ">", ">=", "is", "is not", "in", "not in"}

func (op CompareOp) String() string {
	return compareOpText[op]
}

// CompareNode is a possibly chained comparison: Left op0 C0 op1 C1 ...
type CompareNode struct {
	Left        Node
	Ops         []CompareOp
	Comparators []Node
}

func (n *CompareNode) Kind() string { return "Compare" }

// Keyword is a name=value call argument.
type Keyword struct {
	Name  string
	Value Node
}

// CallNode is a function call.
type CallNode struct {
	Func     Node
	Args     []Node
	Keywords []Keyword
}

func (n *CallNode) Kind() string { return "Call" }

// IfExpNode is a conditional expression: Body if Test else OrElse.
type IfExpNode struct {
	Test   Node
	Body   Node
	OrElse Node
}

func (n *IfExpNode) Kind() string { return "IfExp" }

// ListNode is a list display.
type ListNode struct {
	Elements []Node
}

func (n *ListNode) Kind() string { return "List" }

// TupleNode is a tuple display, with or without parentheses.
type TupleNode struct {
	Elements []Node
}

func (n *TupleNode) Kind() string { return "Tuple" }

// DictNode is a dictionary display. Parsed, not evaluated.
type DictNode struct {
	Keys   []Node
	Values []Node
}

func (n *DictNode) Kind() string { return "Dict" }

// SetNode is a set display. Parsed, not evaluated.
type SetNode struct {
	Elements []Node
}

func (n *SetNode) Kind() string { return "Set" }

// SubscriptNode is x[i]. Parsed, not evaluated.
type SubscriptNode struct {
	Object Node
	Index  Node
}

func (n *SubscriptNode) Kind() string { return "Subscript" }

// SliceNode is lower:upper:step inside a subscript.
type SliceNode struct {
	Lower, Upper, Step Node
}

func (n *SliceNode) Kind() string { return "Slice" }

// AttributeNode is x.name. Parsed, not evaluated.
type AttributeNode struct {
	Object Node
	Name   string
}

func (n *AttributeNode) Kind() string { return "Attribute" }
