// Package ast defines the program representation handed to the code generator by the parser
package ast

import (
	"fmt"

	"github.com/xplshn/ledc/pkg/token"
)

// NodeType defines the kind of a node in the AST
type NodeType int

// Node types enum
const (
	// Expressions
	Number NodeType = iota
	Bool
	Ident
	Assign
	BinaryOp
	UnaryOp
	FuncCall

	// Statements
	FuncDecl
	VarDecl
	If
	While
	Return
	Block
	Primitive
)

var nodeTypeNames = [...]string{
	Number:    "number",
	Bool:      "bool",
	Ident:     "ident",
	Assign:    "assign",
	BinaryOp:  "binary",
	UnaryOp:   "unary",
	FuncCall:  "call",
	FuncDecl:  "func",
	VarDecl:   "var",
	If:        "if",
	While:     "while",
	Return:    "return",
	Block:     "block",
	Primitive: "prim",
}

func (t NodeType) String() string {
	if int(t) >= 0 && int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}
	return fmt.Sprintf("NodeType(%d)", int(t))
}

// IsExpr reports whether nodes of this type produce a value
func (t NodeType) IsExpr() bool { return t <= FuncCall }

// Node represents a node in the Abstract Syntax Tree
type Node struct {
	Type   NodeType
	Tok    token.Token
	Parent *Node
	Data   interface{}
	Typ    *Type // Set by the type checker
}

// TypeKind defines the kind of a Type
type TypeKind int

const (
	TYPE_INT TypeKind = iota
	TYPE_BOOL
	TYPE_VOID
)

// Type is the static type of an expression. Both kinds occupy one machine word
type Type struct {
	Kind TypeKind
	Name string
}

// Pre-defined types
var (
	TypeInt  = &Type{Kind: TYPE_INT, Name: "int"}
	TypeBool = &Type{Kind: TYPE_BOOL, Name: "bool"}
	TypeVoid = &Type{Kind: TYPE_VOID, Name: "void"}
)

// TypeByName maps a type spelling to one of the pre-defined types
func TypeByName(name string) (*Type, bool) {
	switch name {
	case "int":
		return TypeInt, true
	case "bool":
		return TypeBool, true
	case "void", "":
		return TypeVoid, true
	}
	return nil, false
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.Name
}

// PrimitiveKind names a runtime primitive the language exposes as a statement
type PrimitiveKind int

const (
	PrimPrintLed PrimitiveKind = iota
	PrimBlink
	PrimDelay
	PrimDebug
	PrimPutc
	PrimDigitalWrite
	PrimShiftOut
	PrimCount
)

var PrimitiveNames = map[string]PrimitiveKind{
	"printled":      PrimPrintLed,
	"blink":         PrimBlink,
	"delay":         PrimDelay,
	"debug":         PrimDebug,
	"putc":          PrimPutc,
	"digital_write": PrimDigitalWrite,
	"shift_out":     PrimShiftOut,
}

func (k PrimitiveKind) String() string {
	for name, kind := range PrimitiveNames {
		if kind == k {
			return name
		}
	}
	return fmt.Sprintf("PrimitiveKind(%d)", int(k))
}

// TimeUnit qualifies the duration argument of blink and delay
type TimeUnit int

const (
	UnitNone TimeUnit = iota
	UnitMillis
	UnitSeconds
	UnitMinutes
)

var TimeUnitNames = map[string]TimeUnit{
	"":    UnitNone,
	"mil": UnitMillis,
	"seg": UnitSeconds,
	"min": UnitMinutes,
}

// --- Node Data Structs ---
type NumberNode struct{ Value int64 }
type BoolNode struct{ Value bool }
type IdentNode struct{ Name string }
type AssignNode struct{ Lhs, Rhs *Node }
type BinaryOpNode struct{ Op token.Type; Left, Right *Node }
type UnaryOpNode struct{ Op token.Type; Expr *Node }
type FuncCallNode struct{ Name string; Args []*Node }
type FuncDeclNode struct {
	Name       string
	Params     []*Node
	Body       *Node
	ReturnType *Type
}
type VarDeclNode struct {
	Name string
	Type *Type
	Init *Node
}
type IfNode struct{ Cond, ThenBody, ElseBody *Node }
type WhileNode struct{ Cond, Body *Node }
type ReturnNode struct{ Expr *Node }
type BlockNode struct{ Stmts []*Node }
type PrimitiveNode struct {
	Kind PrimitiveKind
	Unit TimeUnit
	Args []*Node
}

// --- Node Constructors ---

func newNode(tok token.Token, nodeType NodeType, data interface{}, children ...*Node) *Node {
	node := &Node{Type: nodeType, Tok: tok, Data: data}
	for _, child := range children {
		if child != nil {
			child.Parent = node
		}
	}
	return node
}

func NewNumber(tok token.Token, value int64) *Node {
	node := newNode(tok, Number, NumberNode{Value: value})
	node.Typ = TypeInt
	return node
}
func NewBool(tok token.Token, value bool) *Node {
	node := newNode(tok, Bool, BoolNode{Value: value})
	node.Typ = TypeBool
	return node
}
func NewIdent(tok token.Token, name string) *Node {
	return newNode(tok, Ident, IdentNode{Name: name})
}
func NewAssign(tok token.Token, lhs, rhs *Node) *Node {
	return newNode(tok, Assign, AssignNode{Lhs: lhs, Rhs: rhs}, lhs, rhs)
}
func NewBinaryOp(tok token.Token, op token.Type, left, right *Node) *Node {
	return newNode(tok, BinaryOp, BinaryOpNode{Op: op, Left: left, Right: right}, left, right)
}
func NewUnaryOp(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, UnaryOp, UnaryOpNode{Op: op, Expr: expr}, expr)
}
func NewFuncCall(tok token.Token, name string, args []*Node) *Node {
	return newNode(tok, FuncCall, FuncCallNode{Name: name, Args: args}, args...)
}
func NewFuncDecl(tok token.Token, name string, params []*Node, body *Node, returnType *Type) *Node {
	children := append([]*Node{body}, params...)
	return newNode(tok, FuncDecl, FuncDeclNode{Name: name, Params: params, Body: body, ReturnType: returnType}, children...)
}
func NewVarDecl(tok token.Token, name string, varType *Type, init *Node) *Node {
	node := newNode(tok, VarDecl, VarDeclNode{Name: name, Type: varType, Init: init}, init)
	node.Typ = varType
	return node
}
func NewIf(tok token.Token, cond, thenBody, elseBody *Node) *Node {
	return newNode(tok, If, IfNode{Cond: cond, ThenBody: thenBody, ElseBody: elseBody}, cond, thenBody, elseBody)
}
func NewWhile(tok token.Token, cond, body *Node) *Node {
	return newNode(tok, While, WhileNode{Cond: cond, Body: body}, cond, body)
}
func NewReturn(tok token.Token, expr *Node) *Node {
	return newNode(tok, Return, ReturnNode{Expr: expr}, expr)
}
func NewBlock(tok token.Token, stmts []*Node) *Node {
	return newNode(tok, Block, BlockNode{Stmts: stmts}, stmts...)
}
func NewPrimitive(tok token.Token, kind PrimitiveKind, unit TimeUnit, args []*Node) *Node {
	node := newNode(tok, Primitive, PrimitiveNode{Kind: kind, Unit: unit, Args: args}, args...)
	node.Typ = TypeVoid
	return node
}

// TypeOf returns the static type recorded by the checker, inferring it from the node's shape otherwise
func TypeOf(node *Node) *Type {
	if node == nil {
		return TypeVoid
	}
	if node.Typ != nil {
		return node.Typ
	}
	switch d := node.Data.(type) {
	case BoolNode:
		return TypeBool
	case BinaryOpNode:
		if d.Op.IsComparison() || d.Op == token.AndAnd || d.Op == token.OrOr {
			return TypeBool
		}
	case UnaryOpNode:
		if d.Op == token.Not {
			return TypeBool
		}
	case AssignNode:
		return TypeOf(d.Rhs)
	case PrimitiveNode:
		return TypeVoid
	}
	return TypeInt
}

// Walk visits node and its descendants in source order, descending while fn returns true
func Walk(node *Node, fn func(*Node) bool) {
	if node == nil || !fn(node) {
		return
	}
	switch d := node.Data.(type) {
	case AssignNode:
		Walk(d.Lhs, fn)
		Walk(d.Rhs, fn)
	case BinaryOpNode:
		Walk(d.Left, fn)
		Walk(d.Right, fn)
	case UnaryOpNode:
		Walk(d.Expr, fn)
	case FuncCallNode:
		for _, arg := range d.Args {
			Walk(arg, fn)
		}
	case FuncDeclNode:
		for _, p := range d.Params {
			Walk(p, fn)
		}
		Walk(d.Body, fn)
	case VarDeclNode:
		Walk(d.Init, fn)
	case IfNode:
		Walk(d.Cond, fn)
		Walk(d.ThenBody, fn)
		Walk(d.ElseBody, fn)
	case WhileNode:
		Walk(d.Cond, fn)
		Walk(d.Body, fn)
	case ReturnNode:
		Walk(d.Expr, fn)
	case BlockNode:
		for _, s := range d.Stmts {
			Walk(s, fn)
		}
	case PrimitiveNode:
		for _, arg := range d.Args {
			Walk(arg, fn)
		}
	}
}

// constValue reads a literal as a machine word, booleans being 0 or 1
func constValue(node *Node) (int64, bool) {
	switch d := node.Data.(type) {
	case NumberNode:
		return d.Value, true
	case BoolNode:
		if d.Value {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// ConstValue reports the value of a literal node
func ConstValue(node *Node) (int64, bool) {
	if node == nil {
		return 0, false
	}
	return constValue(node)
}

// FoldConstants performs compile-time constant evaluation on an expression tree
func FoldConstants(node *Node) (*Node, error) {
	if node == nil {
		return nil, nil
	}

	var err error
	// Recursively fold children first
	switch d := node.Data.(type) {
	case AssignNode:
		if d.Rhs, err = FoldConstants(d.Rhs); err != nil {
			return nil, err
		}
		node.Data = d
	case BinaryOpNode:
		if d.Left, err = FoldConstants(d.Left); err != nil {
			return nil, err
		}
		if d.Right, err = FoldConstants(d.Right); err != nil {
			return nil, err
		}
		node.Data = d
	case UnaryOpNode:
		if d.Expr, err = FoldConstants(d.Expr); err != nil {
			return nil, err
		}
		node.Data = d
	}

	// Then, attempt to fold the current node
	switch node.Type {
	case BinaryOp:
		d := node.Data.(BinaryOpNode)
		l, lok := constValue(d.Left)
		r, rok := constValue(d.Right)
		if !lok || !rok {
			return node, nil
		}
		var res int64
		truth := func(b bool) {
			if b {
				res = 1
			}
		}
		switch d.Op {
		case token.Plus: res = l + r
		case token.Minus: res = l - r
		case token.Star: res = l * r
		case token.And: res = l & r
		case token.Or: res = l | r
		case token.Xor: res = l ^ r
		case token.Shl: res = l << uint64(r)
		case token.Shr: res = l >> uint64(r)
		case token.EqEq: truth(l == r)
		case token.Neq: truth(l != r)
		case token.Lt: truth(l < r)
		case token.Gt: truth(l > r)
		case token.Lte: truth(l <= r)
		case token.Gte: truth(l >= r)
		case token.AndAnd: truth(l != 0 && r != 0)
		case token.OrOr: truth(l != 0 || r != 0)
		case token.Slash:
			if r == 0 {
				return nil, fmt.Errorf("%d:%d: compile-time division by zero", node.Tok.Line, node.Tok.Column)
			}
			res = l / r
		case token.Rem:
			if r == 0 {
				return nil, fmt.Errorf("%d:%d: compile-time modulo by zero", node.Tok.Line, node.Tok.Column)
			}
			res = l % r
		default:
			return node, nil
		}
		return foldedLiteral(node, res), nil
	case UnaryOp:
		d := node.Data.(UnaryOpNode)
		val, ok := constValue(d.Expr)
		if !ok {
			return node, nil
		}
		var res int64
		switch d.Op {
		case token.Minus: res = -val
		case token.Complement: res = ^val
		case token.Not:
			if val == 0 {
				res = 1
			}
		default:
			return node, nil
		}
		return foldedLiteral(node, res), nil
	}

	return node, nil
}

// foldedLiteral replaces node by a literal of the node's own static type
func foldedLiteral(node *Node, value int64) *Node {
	var lit *Node
	if TypeOf(node).Kind == TYPE_BOOL {
		lit = NewBool(node.Tok, value != 0)
	} else {
		lit = NewNumber(node.Tok, value)
	}
	lit.Parent = node.Parent
	return lit
}
