package ast

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/xplshn/ledc/pkg/token"
)

// Program is a decoded compilation unit: the root block plus the source it was parsed from
type Program struct {
	Source string
	Root   *Node
}

type jsonProgram struct {
	Source string      `json:"source"`
	Decls  []*jsonNode `json:"decls"`
}

type jsonNode struct {
	Kind    string      `json:"kind"`
	Line    int         `json:"line,omitempty"`
	Col     int         `json:"col,omitempty"`
	Name    string      `json:"name,omitempty"`
	Type    string      `json:"type,omitempty"`
	Returns string      `json:"returns,omitempty"`
	Int     int64       `json:"int,omitempty"`
	Bool    bool        `json:"bool,omitempty"`
	Op      string      `json:"op,omitempty"`
	Prim    string      `json:"prim,omitempty"`
	Unit    string      `json:"unit,omitempty"`
	Left    *jsonNode   `json:"left,omitempty"`
	Right   *jsonNode   `json:"right,omitempty"`
	Expr    *jsonNode   `json:"expr,omitempty"`
	Cond    *jsonNode   `json:"cond,omitempty"`
	Then    []*jsonNode `json:"then,omitempty"`
	Else    []*jsonNode `json:"else,omitempty"`
	Body    []*jsonNode `json:"body,omitempty"`
	Args    []*jsonNode `json:"args,omitempty"`
	Params  []string    `json:"params,omitempty"`
}

// Decode reads a program in the parser's JSON dump format
func Decode(r io.Reader) (*Program, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var jp jsonProgram
	if err := dec.Decode(&jp); err != nil {
		return nil, fmt.Errorf("malformed program: %w", err)
	}

	decls := make([]*Node, 0, len(jp.Decls))
	for _, jd := range jp.Decls {
		if jd == nil {
			return nil, fmt.Errorf("malformed program: null declaration")
		}
		if jd.Kind != "func" && jd.Kind != "var" {
			return nil, jd.errorf("top-level %q is not a declaration", jd.Kind)
		}
		decl, err := jd.toNode()
		if err != nil {
			return nil, err
		}
		decls = append(decls, decl)
	}
	return &Program{Source: jp.Source, Root: NewBlock(token.Token{Line: 1, Column: 1}, decls)}, nil
}

func (jn *jsonNode) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%d:%d: %s", jn.Line, jn.Col, fmt.Sprintf(format, args...))
}

func (jn *jsonNode) tok(typ token.Type, value string) token.Token {
	length := len(value)
	if length == 0 {
		length = 1
	}
	return token.Token{Type: typ, Value: value, Line: jn.Line, Column: jn.Col, Len: length}
}

func (jn *jsonNode) child(name string, c *jsonNode) (*Node, error) {
	if c == nil {
		return nil, jn.errorf("%s node is missing its %s", jn.Kind, name)
	}
	return c.toNode()
}

func (jn *jsonNode) optional(c *jsonNode) (*Node, error) {
	if c == nil {
		return nil, nil
	}
	return c.toNode()
}

func (jn *jsonNode) list(nodes []*jsonNode) ([]*Node, error) {
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			return nil, jn.errorf("%s node has a null element", jn.Kind)
		}
		node, err := n.toNode()
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}

func (jn *jsonNode) block(nodes []*jsonNode) (*Node, error) {
	stmts, err := jn.list(nodes)
	if err != nil {
		return nil, err
	}
	return NewBlock(jn.tok(token.EOF, ""), stmts), nil
}

func (jn *jsonNode) op() (token.Type, error) {
	op, ok := token.OperatorMap[jn.Op]
	if !ok || op == token.Eq {
		return 0, jn.errorf("unknown operator %q", jn.Op)
	}
	return op, nil
}

func (jn *jsonNode) typ(name string) (*Type, error) {
	t, ok := TypeByName(name)
	if !ok {
		return nil, jn.errorf("unknown type %q", name)
	}
	return t, nil
}

func (jn *jsonNode) toNode() (*Node, error) {
	var node *Node
	switch jn.Kind {
	case "number":
		node = NewNumber(jn.tok(token.Number, fmt.Sprint(jn.Int)), jn.Int)
	case "bool":
		node = NewBool(jn.tok(token.Bool, fmt.Sprint(jn.Bool)), jn.Bool)
	case "ident":
		if jn.Name == "" {
			return nil, jn.errorf("identifier without a name")
		}
		node = NewIdent(jn.tok(token.Ident, jn.Name), jn.Name)
	case "assign":
		if jn.Name == "" {
			return nil, jn.errorf("assignment without a target")
		}
		rhs, err := jn.child("expr", jn.Expr)
		if err != nil {
			return nil, err
		}
		node = NewAssign(jn.tok(token.Eq, "="), NewIdent(jn.tok(token.Ident, jn.Name), jn.Name), rhs)
	case "binary":
		op, err := jn.op()
		if err != nil {
			return nil, err
		}
		left, err := jn.child("left", jn.Left)
		if err != nil {
			return nil, err
		}
		right, err := jn.child("right", jn.Right)
		if err != nil {
			return nil, err
		}
		node = NewBinaryOp(jn.tok(op, jn.Op), op, left, right)
	case "unary":
		op, err := jn.op()
		if err != nil {
			return nil, err
		}
		if op != token.Minus && op != token.Not && op != token.Complement {
			return nil, jn.errorf("%q is not a unary operator", jn.Op)
		}
		expr, err := jn.child("expr", jn.Expr)
		if err != nil {
			return nil, err
		}
		node = NewUnaryOp(jn.tok(op, jn.Op), op, expr)
	case "call":
		if jn.Name == "" {
			return nil, jn.errorf("call without a callee")
		}
		args, err := jn.list(jn.Args)
		if err != nil {
			return nil, err
		}
		node = NewFuncCall(jn.tok(token.Ident, jn.Name), jn.Name, args)
	case "prim":
		kind, ok := PrimitiveNames[jn.Prim]
		if !ok {
			return nil, jn.errorf("unknown primitive %q", jn.Prim)
		}
		unit, ok := TimeUnitNames[jn.Unit]
		if !ok {
			return nil, jn.errorf("unknown time unit %q", jn.Unit)
		}
		args, err := jn.list(jn.Args)
		if err != nil {
			return nil, err
		}
		node = NewPrimitive(jn.tok(token.Ident, jn.Prim), kind, unit, args)
	case "var":
		if jn.Name == "" {
			return nil, jn.errorf("declaration without a name")
		}
		init, err := jn.optional(jn.Expr)
		if err != nil {
			return nil, err
		}
		varType := TypeInt
		if jn.Type != "" {
			if varType, err = jn.typ(jn.Type); err != nil {
				return nil, err
			}
		} else if init != nil {
			varType = TypeOf(init)
		}
		node = NewVarDecl(jn.tok(token.Ident, jn.Name), jn.Name, varType, init)
	case "func":
		if jn.Name == "" {
			return nil, jn.errorf("function without a name")
		}
		params := make([]*Node, len(jn.Params))
		for i, p := range jn.Params {
			params[i] = NewIdent(jn.tok(token.Ident, p), p)
		}
		body, err := jn.block(jn.Body)
		if err != nil {
			return nil, err
		}
		ret, err := jn.typ(jn.Returns)
		if err != nil {
			return nil, err
		}
		node = NewFuncDecl(jn.tok(token.Ident, jn.Name), jn.Name, params, body, ret)
	case "if":
		cond, err := jn.child("cond", jn.Cond)
		if err != nil {
			return nil, err
		}
		thenBody, err := jn.block(jn.Then)
		if err != nil {
			return nil, err
		}
		var elseBody *Node
		if jn.Else != nil {
			if elseBody, err = jn.block(jn.Else); err != nil {
				return nil, err
			}
		}
		node = NewIf(jn.tok(token.EOF, "if"), cond, thenBody, elseBody)
	case "while":
		cond, err := jn.child("cond", jn.Cond)
		if err != nil {
			return nil, err
		}
		body, err := jn.block(jn.Body)
		if err != nil {
			return nil, err
		}
		node = NewWhile(jn.tok(token.EOF, "while"), cond, body)
	case "return":
		expr, err := jn.optional(jn.Expr)
		if err != nil {
			return nil, err
		}
		node = NewReturn(jn.tok(token.EOF, "return"), expr)
	case "block":
		return jn.block(jn.Body)
	default:
		return nil, jn.errorf("unknown node kind %q", jn.Kind)
	}

	if jn.Type != "" && jn.Kind != "var" {
		t, err := jn.typ(jn.Type)
		if err != nil {
			return nil, err
		}
		node.Typ = t
	}
	return node, nil
}
