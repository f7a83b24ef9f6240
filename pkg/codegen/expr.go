package codegen

import (
	"github.com/xplshn/ledc/pkg/ast"
	"github.com/xplshn/ledc/pkg/token"
)

// codegenExpr lowers node and returns the register holding its value. Every other register it
// allocates is freed again before it returns
func (ctx *Context) codegenExpr(node *ast.Node) (Reg, error) {
	switch node.Type {
	case ast.Number:
		r, err := ctx.alloc(node)
		if err != nil {
			return NoReg, err
		}
		ctx.backend.LoadImm(ctx.emit(), ctx.reg(r), ctx.wordValue(node, node.Data.(ast.NumberNode).Value))
		return r, nil

	case ast.Bool:
		r, err := ctx.alloc(node)
		if err != nil {
			return NoReg, err
		}
		v, _ := ast.ConstValue(node)
		ctx.backend.LoadImm(ctx.emit(), ctx.reg(r), v)
		return r, nil

	case ast.Ident:
		return ctx.codegenIdent(node)
	case ast.Assign:
		return ctx.codegenAssign(node)
	case ast.BinaryOp:
		return ctx.codegenBinary(node)
	case ast.UnaryOp:
		return ctx.codegenUnary(node)
	case ast.FuncCall:
		return ctx.codegenCall(node)
	}
	return NoReg, newError(UnsupportedConstruct, node.Tok, "", node.Type.String(), "not an expression")
}

// variable resolves name to a storage location, rejecting functions
func (ctx *Context) variable(node *ast.Node, name string) (*Symbol, error) {
	sym, err := ctx.fn.scope.Resolve(name, node.Tok)
	if err != nil {
		return nil, err
	}
	if sym.Kind == SymFunc {
		return nil, newError(UnsupportedConstruct, node.Tok, name, node.Type.String(), "function used as a value")
	}
	return sym, nil
}

func (ctx *Context) codegenIdent(node *ast.Node) (Reg, error) {
	sym, err := ctx.variable(node, node.Data.(ast.IdentNode).Name)
	if err != nil {
		return NoReg, err
	}
	r, err := ctx.alloc(node)
	if err != nil {
		return NoReg, err
	}
	ctx.backend.Load(ctx.emit(), ctx.fn.frame, ctx.reg(r), sym.Location())
	return r, nil
}

func (ctx *Context) codegenAssign(node *ast.Node) (Reg, error) {
	d := node.Data.(ast.AssignNode)
	if d.Lhs == nil || d.Lhs.Type != ast.Ident {
		return NoReg, newError(UnsupportedConstruct, node.Tok, "", "assignment", "left-hand side is not a variable")
	}
	sym, err := ctx.variable(d.Lhs, d.Lhs.Data.(ast.IdentNode).Name)
	if err != nil {
		return NoReg, err
	}
	r, err := ctx.codegenExpr(d.Rhs)
	if err != nil {
		return NoReg, err
	}
	ctx.backend.Store(ctx.emit(), ctx.fn.frame, ctx.reg(r), sym.Location())
	return r, nil
}

func (ctx *Context) codegenBinary(node *ast.Node) (Reg, error) {
	d := node.Data.(ast.BinaryOpNode)
	if d.Op == token.AndAnd || d.Op == token.OrOr {
		return ctx.codegenLogical(node, d)
	}

	l, err := ctx.codegenExpr(d.Left)
	if err != nil {
		return NoReg, err
	}
	r, err := ctx.codegenExpr(d.Right)
	if err != nil {
		return NoReg, err
	}

	if d.Op.IsComparison() {
		return ctx.codegenCompare(node, d.Op, l, r)
	}
	if c, ok := ctx.backend.Constraint(d.Op); ok {
		ctx.codegenConstrained(d.Op, c, l, r)
		return l, nil
	}
	if !ctx.backend.Binary(ctx.emit(), d.Op, ctx.reg(l), ctx.reg(r)) {
		return NoReg, newError(UnsupportedConstruct, node.Tok, d.Op.String(), "binary expression", "no %s instruction", ctx.backend.Name())
	}
	ctx.free(r)
	return l, nil
}

// codegenConstrained materializes l and r into the registers op is pinned to, keeping every
// other live scratch register intact, and leaves the result in l
func (ctx *Context) codegenConstrained(op token.Type, c OpConstraint, l, r Reg) {
	e, b := ctx.emit(), ctx.backend

	var save []string
	if c.IsCall {
		save = ctx.fn.regs.CallerSavedLive(l, r)
	}
	for _, name := range ctx.fn.regs.Live(l, r) {
		if containsName(c.Clobbers, name) && !containsName(save, name) {
			save = append(save, name)
		}
	}
	b.SaveRegs(e, ctx.fn.frame, save)

	left, right := ctx.reg(l), ctx.reg(r)
	if c.Left != "" {
		b.Move(e, c.Left, left)
		left = c.Left
	}
	if c.Right != "" {
		b.Move(e, c.Right, right)
		right = c.Right
	}
	b.Constrained(e, op, left, right)

	result := c.Result
	if result == "" {
		result = left
	}
	b.Move(e, ctx.reg(l), result)
	ctx.free(r)
	b.RestoreRegs(e, ctx.fn.frame, save)
}

// codegenCompare turns a compare-and-branch into a 0/1 value in l:
//
//	branch L op R -> T; L = 0; jump D; T: L = 1; D:
func (ctx *Context) codegenCompare(node *ast.Node, op token.Type, l, r Reg) (Reg, error) {
	e, b := ctx.emit(), ctx.backend
	t, done := ctx.newLabel(), ctx.newLabel()
	if !b.BranchCompare(e, op, ctx.reg(l), ctx.reg(r), ctx.labelName(t)) {
		return NoReg, newError(UnsupportedConstruct, node.Tok, op.String(), "comparison", "no %s branch", b.Name())
	}
	ctx.free(r)
	ctx.setBool(l, t, done)
	return l, nil
}

// setBool ends a branch fragment: falling through yields 0, arriving at t yields 1
func (ctx *Context) setBool(r Reg, t, done Label) {
	ctx.boolFragment(r, t, done, 0)
}

func (ctx *Context) boolFragment(r Reg, at, done Label, fallthroughValue int64) {
	e, b := ctx.emit(), ctx.backend
	b.LoadImm(e, ctx.reg(r), fallthroughValue)
	b.Jump(e, ctx.labelName(done))
	e.Label(ctx.labelName(at))
	b.LoadImm(e, ctx.reg(r), 1-fallthroughValue)
	e.Label(ctx.labelName(done))
}

// codegenLogical short-circuits && and ||, leaving 0 or 1 in the left register
func (ctx *Context) codegenLogical(node *ast.Node, d ast.BinaryOpNode) (Reg, error) {
	e, b := ctx.emit(), ctx.backend
	isAnd := d.Op == token.AndAnd
	branch := b.BranchNonZero
	if isAnd {
		branch = b.BranchZero
	}

	l, err := ctx.codegenExpr(d.Left)
	if err != nil {
		return NoReg, err
	}
	short, done := ctx.newLabel(), ctx.newLabel()
	branch(e, ctx.reg(l), ctx.labelName(short))

	r, err := ctx.codegenExpr(d.Right)
	if err != nil {
		return NoReg, err
	}
	branch(e, ctx.reg(r), ctx.labelName(short))
	ctx.free(r)

	// && falls through when both sides held, || when neither did
	if isAnd {
		ctx.boolFragment(l, short, done, 1)
	} else {
		ctx.boolFragment(l, short, done, 0)
	}
	return l, nil
}

func (ctx *Context) codegenUnary(node *ast.Node) (Reg, error) {
	d := node.Data.(ast.UnaryOpNode)
	r, err := ctx.codegenExpr(d.Expr)
	if err != nil {
		return NoReg, err
	}

	if d.Op == token.Not {
		zero, done := ctx.newLabel(), ctx.newLabel()
		ctx.backend.BranchZero(ctx.emit(), ctx.reg(r), ctx.labelName(zero))
		ctx.setBool(r, zero, done)
		return r, nil
	}
	if !ctx.backend.Unary(ctx.emit(), d.Op, ctx.reg(r)) {
		return NoReg, newError(UnsupportedConstruct, node.Tok, d.Op.String(), "unary expression", "no %s instruction", ctx.backend.Name())
	}
	return r, nil
}

// callee resolves the function a call names
func (ctx *Context) callee(node *ast.Node, name string) (*Symbol, error) {
	sym := ctx.fn.scope.Lookup(name)
	if sym == nil {
		if _, isPrim := ast.PrimitiveNames[name]; isPrim {
			return nil, newError(UnsupportedConstruct, node.Tok, name, "call", "primitive used as a value")
		}
		return nil, newError(UndefinedSymbol, node.Tok, name, "call", "")
	}
	if sym.Kind != SymFunc {
		return nil, newError(UnsupportedConstruct, node.Tok, name, "call", "called object is a %s, not a function", sym.Kind)
	}
	return sym, nil
}

func (ctx *Context) codegenCall(node *ast.Node) (Reg, error) {
	d := node.Data.(ast.FuncCallNode)
	sym, err := ctx.callee(node, d.Name)
	if err != nil {
		return NoReg, err
	}
	if len(d.Args) != sym.Arity {
		return NoReg, newError(ArgumentCountMismatch, node.Tok, d.Name, "call", "expected %d arguments, got %d", sym.Arity, len(d.Args))
	}
	return ctx.emitCall(node, sym.Target, d.Args)
}

// emitCall lowers args left to right and calls sym with them, returning a register holding the result
func (ctx *Context) emitCall(node *ast.Node, sym string, args []*ast.Node) (Reg, error) {
	e, b, f := ctx.emit(), ctx.backend, ctx.fn.frame
	conv := b.ArgRegs()
	if len(args) > len(conv) {
		return ctx.emitStagedCall(node, sym, args)
	}

	argRegs := make([]Reg, 0, len(args))
	for _, arg := range args {
		r, err := ctx.codegenExpr(arg)
		if err != nil {
			return NoReg, err
		}
		argRegs = append(argRegs, r)
	}

	save := ctx.fn.regs.CallerSavedLive(argRegs...)
	b.SaveRegs(e, f, save)
	pad := b.BeginCall(e, f, 0)
	for i, r := range argRegs {
		b.Move(e, conv[i], ctx.reg(r))
	}
	for _, r := range argRegs {
		ctx.free(r)
	}
	b.Call(e, f, sym, 0, pad)
	return ctx.callResult(node, save)
}

// emitStagedCall handles calls with more arguments than argument registers. Each argument
// goes to its own staging slot as soon as it is lowered, so lowering the next one never
// competes with the earlier ones for registers.
func (ctx *Context) emitStagedCall(node *ast.Node, sym string, args []*ast.Node) (Reg, error) {
	e, b, f := ctx.emit(), ctx.backend, ctx.fn.frame
	conv := b.ArgRegs()

	base := f.Staged
	staged := func(i int) Location { return Location{Offset: f.StageSlot(base + i)} }
	for i, arg := range args {
		f.Staged = base + i + 1
		r, err := ctx.codegenExpr(arg)
		if err != nil {
			return NoReg, err
		}
		b.Store(e, f, ctx.reg(r), staged(i))
		ctx.free(r)
	}
	f.Staged = base

	save := ctx.fn.regs.CallerSavedLive()
	b.SaveRegs(e, f, save)
	stackArgs := len(args) - len(conv)
	pad := b.BeginCall(e, f, stackArgs)
	for i := len(args) - 1; i >= len(conv); i-- {
		b.StackArg(e, f, staged(i), i-len(conv))
	}
	for i, reg := range conv {
		b.Load(e, f, reg, staged(i))
	}
	b.Call(e, f, sym, stackArgs, pad)
	return ctx.callResult(node, save)
}

// callResult moves the return value into a fresh register and restores what the call sequence saved
func (ctx *Context) callResult(node *ast.Node, save []string) (Reg, error) {
	e, b := ctx.emit(), ctx.backend
	res, err := ctx.alloc(node)
	if err != nil {
		return NoReg, err
	}
	b.Move(e, ctx.reg(res), b.ReturnReg())
	b.RestoreRegs(e, ctx.fn.frame, save)
	return res, nil
}
