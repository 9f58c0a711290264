package expr

import (
	"context"
	"fmt"
	"iter"

	"github.com/lemonberrylabs/calcd/pkg/types"
)

// Scope provides name resolution and binding for evaluation.
type Scope interface {
	// Resolve returns the value bound to name. Unbound names resolve to
	// types.Undefined rather than failing.
	Resolve(name string) types.Value

	// Assign binds name to v for later statements.
	Assign(name string, v types.Value)
}

// Outcome is the result of evaluating one top-level statement.
type Outcome struct {
	Segment string
	Value   types.Value
	Err     error
}

// Run evaluates the program's statements in order and yields one Outcome
// per statement. A failing statement does not stop the ones after it.
// Cancelling ctx stops the sequence before the next statement.
func Run(ctx context.Context, prog *Program, scope Scope) iter.Seq[Outcome] {
	return func(yield func(Outcome) bool) {
		for _, stmt := range prog.Statements {
			if ctx.Err() != nil {
				return
			}
			v, err := Evaluate(stmt.Node, scope)
			if !yield(Outcome{Segment: prog.Segment(stmt), Value: v, Err: err}) {
				return
			}
		}
	}
}

var binaryOps = map[TokenType]types.BinaryFunc{
	TokenPlus:    types.Add,
	TokenMinus:   types.Sub,
	TokenStar:    types.Mul,
	TokenAt:      types.MatMul,
	TokenSlash:   types.TrueDiv,
	TokenIntDiv:  types.FloorDiv,
	TokenPercent: types.Mod,
	TokenPower:   types.Pow,
	TokenLShift:  types.LShift,
	TokenRShift:  types.RShift,
	TokenAmp:     types.BitAnd,
	TokenPipe:    types.BitOr,
	TokenCaret:   types.BitXor,
}

var unaryOps = map[TokenType]types.UnaryFunc{
	TokenMinus: types.Neg,
	TokenPlus:  types.Pos,
	TokenTilde: types.Invert,
	TokenNot:   types.Not,
}

var compareOps = map[CompareOp]types.BinaryFunc{
	CmpEq:    types.Eq,
	CmpNotEq: types.NotEq,
	CmpLt:    types.Less,
	CmpLtE:   types.LessEqual,
	CmpGt:    types.Greater,
	CmpGtE:   types.GreaterEqual,
	CmpIs:    types.Is,
	CmpIsNot: types.IsNot,
	CmpIn:    types.In,
	CmpNotIn: types.NotIn,
}

// Evaluate evaluates a node within the given scope.
func Evaluate(node Node, scope Scope) (types.Value, error) {
	switch n := node.(type) {
	case *ExprStmt:
		return Evaluate(n.Value, scope)
	case *AssignNode:
		return evalAssign(n, scope)
	case *NumberNode:
		return n.Value, nil
	case *StringNode:
		return types.NewString(n.Value), nil
	case *ConstNode:
		return evalConst(n)
	case *NameNode:
		return scope.Resolve(n.Name), nil
	case *BinaryNode:
		return evalBinary(n, scope)
	case *BoolOpNode:
		return evalBoolOp(n, scope)
	case *UnaryNode:
		return evalUnary(n, scope)
	case *CompareNode:
		return evalCompare(n, scope)
	case *CallNode:
		return evalCall(n, scope)
	case *IfExpNode:
		return evalIfExp(n, scope)
	case *ListNode:
		items, err := evalAll(n.Elements, scope)
		if err != nil {
			return types.None, err
		}
		return types.NewList(items), nil
	case *TupleNode:
		items, err := evalAll(n.Elements, scope)
		if err != nil {
			return types.None, err
		}
		return types.NewTuple(items), nil
	case nil:
		return types.None, fmt.Errorf("nil expression node")
	default:
		return types.None, types.NewNotImplementedError(node.Kind())
	}
}

func evalConst(n *ConstNode) (types.Value, error) {
	switch n.Token {
	case TokenTrue:
		return types.NewBool(true), nil
	case TokenFalse:
		return types.NewBool(false), nil
	case TokenNone:
		return types.None, nil
	}
	return types.None, fmt.Errorf("unknown constant: %s", n.Token)
}

func evalAll(nodes []Node, scope Scope) ([]types.Value, error) {
	out := make([]types.Value, 0, len(nodes))
	for _, node := range nodes {
		v, err := Evaluate(node, scope)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// evalAssign evaluates the value once and binds it to every target, left
// to right. The statement itself produces None.
func evalAssign(n *AssignNode, scope Scope) (types.Value, error) {
	v, err := Evaluate(n.Value, scope)
	if err != nil {
		return types.None, err
	}
	for _, target := range n.Targets {
		if err := assign(target, v, scope); err != nil {
			return types.None, err
		}
	}
	return types.None, nil
}

func assign(target Node, v types.Value, scope Scope) error {
	var elems []Node
	switch t := target.(type) {
	case *NameNode:
		scope.Assign(t.Name, v)
		return nil
	case *TupleNode:
		elems = t.Elements
	case *ListNode:
		elems = t.Elements
	default:
		return types.NewNotImplementedError(target.Kind())
	}

	var items []types.Value
	switch v.Type() {
	case types.TypeList, types.TypeTuple:
		items = v.Items()
	case types.TypeString:
		for _, r := range v.AsString() {
			items = append(items, types.NewString(string(r)))
		}
	default:
		return types.NewTypeError(fmt.Sprintf("cannot unpack non-iterable %s object", v.Type()))
	}
	switch {
	case len(items) > len(elems):
		return types.NewValueError(fmt.Sprintf("too many values to unpack (expected %d)", len(elems)))
	case len(items) < len(elems):
		return types.NewValueError(fmt.Sprintf("not enough values to unpack (expected %d, got %d)", len(elems), len(items)))
	}
	for i, el := range elems {
		if err := assign(el, items[i], scope); err != nil {
			return err
		}
	}
	return nil
}

func evalBinary(n *BinaryNode, scope Scope) (types.Value, error) {
	left, err := Evaluate(n.Left, scope)
	if err != nil {
		return types.None, err
	}
	right, err := Evaluate(n.Right, scope)
	if err != nil {
		return types.None, err
	}
	op, ok := binaryOps[n.Op]
	if !ok {
		return types.None, fmt.Errorf("unknown binary operator: %s", n.Op)
	}
	return op(left, right)
}

// evalBoolOp returns the first operand that decides the result, or the
// last operand.
func evalBoolOp(n *BoolOpNode, scope Scope) (types.Value, error) {
	var v types.Value
	for _, operand := range n.Values {
		var err error
		if v, err = Evaluate(operand, scope); err != nil {
			return types.None, err
		}
		if v.Truthy() == (n.Op == TokenOr) {
			return v, nil
		}
	}
	return v, nil
}

func evalUnary(n *UnaryNode, scope Scope) (types.Value, error) {
	operand, err := Evaluate(n.Operand, scope)
	if err != nil {
		return types.None, err
	}
	op, ok := unaryOps[n.Op]
	if !ok {
		return types.None, fmt.Errorf("unknown unary operator: %s", n.Op)
	}
	return op(operand)
}

// evalCompare evaluates a chain a < b < c as (a < b) and (b < c), each
// operand at most once, stopping at the first false link.
func evalCompare(n *CompareNode, scope Scope) (types.Value, error) {
	left, err := Evaluate(n.Left, scope)
	if err != nil {
		return types.None, err
	}
	result := types.NewBool(true)
	for i, op := range n.Ops {
		right, err := Evaluate(n.Comparators[i], scope)
		if err != nil {
			return types.None, err
		}
		if result, err = compareOps[op](left, right); err != nil {
			return types.None, err
		}
		if !result.Truthy() {
			return result, nil
		}
		left = right
	}
	return result, nil
}

func evalCall(n *CallNode, scope Scope) (types.Value, error) {
	callee, err := Evaluate(n.Func, scope)
	if err != nil {
		return types.None, err
	}
	args, err := evalAll(n.Args, scope)
	if err != nil {
		return types.None, err
	}
	var kwargs *types.OrderedMap
	if len(n.Keywords) > 0 {
		kwargs = types.NewOrderedMap()
		for _, kw := range n.Keywords {
			v, err := Evaluate(kw.Value, scope)
			if err != nil {
				return types.None, err
			}
			kwargs.Set(types.NewString(kw.Name), v)
		}
	}
	return types.Call(callee, args, kwargs)
}

func evalIfExp(n *IfExpNode, scope Scope) (types.Value, error) {
	test, err := Evaluate(n.Test, scope)
	if err != nil {
		return types.None, err
	}
	if test.Truthy() {
		return Evaluate(n.Body, scope)
	}
	return Evaluate(n.OrElse, scope)
}
