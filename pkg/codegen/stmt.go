package codegen

import (
	"github.com/xplshn/ledc/pkg/ast"
	"github.com/xplshn/ledc/pkg/config"
	"github.com/xplshn/ledc/pkg/util"
)

// codegenStmt lowers one statement and reports whether control can leave it by falling through
func (ctx *Context) codegenStmt(node *ast.Node) (terminates bool, err error) {
	if node == nil {
		return false, nil
	}
	if ctx.cfg.IsFeatureEnabled(config.FeatAsmComments) && node.Type != ast.Block {
		ctx.emit().Comment("%d:%d %s", node.Tok.Line, node.Tok.Column, node.Type)
	}

	switch node.Type {
	case ast.Block:
		ctx.enterScope()
		defer ctx.exitScope()
		var blockTerminates bool
		for _, stmt := range node.Data.(ast.BlockNode).Stmts {
			if blockTerminates {
				util.Warn(ctx.cfg, config.WarnUnreachableCode, stmt.Tok, "Unreachable code")
				break
			}
			if blockTerminates, err = ctx.codegenStmt(stmt); err != nil {
				return false, err
			}
		}
		return blockTerminates, nil

	case ast.VarDecl:
		return false, ctx.codegenLocalVarDecl(node)
	case ast.If:
		return ctx.codegenIf(node)
	case ast.While:
		return false, ctx.codegenWhile(node)
	case ast.Return:
		return true, ctx.codegenReturn(node)
	case ast.Primitive:
		return false, ctx.codegenPrimitive(node)
	case ast.FuncDecl:
		return false, newError(UnsupportedConstruct, node.Tok, node.Data.(ast.FuncDeclNode).Name, "function body", "nested function declaration")
	}

	if !node.Type.IsExpr() {
		return false, newError(UnsupportedConstruct, node.Tok, "", node.Type.String(), "not a statement")
	}
	if prim, ok := ctx.primitiveCall(node); ok {
		return false, ctx.codegenPrimitive(prim)
	}
	if node.Type != ast.Assign && node.Type != ast.FuncCall {
		util.Warn(ctx.cfg, config.WarnDiscardedValue, node.Tok, "Value of %s expression is discarded", node.Type)
	}
	r, err := ctx.codegenExpr(node)
	if err != nil {
		return false, err
	}
	ctx.free(r)
	return false, nil
}

func (ctx *Context) codegenLocalVarDecl(node *ast.Node) error {
	d := node.Data.(ast.VarDeclNode)
	sym, ok := ctx.fn.slots[node]
	if !ok {
		return newError(UnsupportedConstruct, node.Tok, d.Name, "declaration", "no frame slot was laid out")
	}
	if prev := ctx.fn.scope.LookupLocal(d.Name); prev != nil {
		return newError(UnsupportedConstruct, node.Tok, d.Name, "declaration", "redeclared in the same block")
	}

	var r Reg
	var err error
	if d.Init != nil {
		r, err = ctx.codegenExpr(d.Init)
	} else {
		if r, err = ctx.alloc(node); err == nil {
			ctx.backend.LoadImm(ctx.emit(), ctx.reg(r), 0)
		}
	}
	if err != nil {
		return err
	}
	ctx.backend.Store(ctx.emit(), ctx.fn.frame, ctx.reg(r), sym.Location())
	ctx.free(r)

	// bound only now so the initializer still sees any outer variable of the same name
	ctx.fn.scope.Bind(sym)
	return nil
}

// condition lowers cond and branches to target when it is false
func (ctx *Context) condition(cond *ast.Node, target Label) error {
	r, err := ctx.codegenExpr(cond)
	if err != nil {
		return err
	}
	ctx.backend.BranchZero(ctx.emit(), ctx.reg(r), ctx.labelName(target))
	ctx.free(r)
	return nil
}

func (ctx *Context) codegenIf(node *ast.Node) (bool, error) {
	d := node.Data.(ast.IfNode)
	elseL := ctx.newLabel()
	var endL Label
	if d.ElseBody != nil {
		endL = ctx.newLabel()
	}

	if err := ctx.condition(d.Cond, elseL); err != nil {
		return false, err
	}
	thenTerminates, err := ctx.codegenStmt(d.ThenBody)
	if err != nil {
		return false, err
	}

	if d.ElseBody == nil {
		ctx.emit().Label(ctx.labelName(elseL))
		return false, nil
	}

	if !thenTerminates {
		ctx.backend.Jump(ctx.emit(), ctx.labelName(endL))
	}
	ctx.emit().Label(ctx.labelName(elseL))
	elseTerminates, err := ctx.codegenStmt(d.ElseBody)
	if err != nil {
		return false, err
	}
	ctx.emit().Label(ctx.labelName(endL))
	return thenTerminates && elseTerminates, nil
}

// codegenWhile emits
//
//	top: cond -> brk; body; jump top; brk:
func (ctx *Context) codegenWhile(node *ast.Node) error {
	d := node.Data.(ast.WhileNode)
	top, brk := ctx.newLabel(), ctx.newLabel()

	ctx.emit().Label(ctx.labelName(top))
	if err := ctx.condition(d.Cond, brk); err != nil {
		return err
	}
	if _, err := ctx.codegenStmt(d.Body); err != nil {
		return err
	}
	ctx.backend.Jump(ctx.emit(), ctx.labelName(top))
	ctx.emit().Label(ctx.labelName(brk))
	return nil
}

func (ctx *Context) codegenReturn(node *ast.Node) error {
	d := node.Data.(ast.ReturnNode)
	if d.Expr != nil {
		r, err := ctx.codegenExpr(d.Expr)
		if err != nil {
			return err
		}
		ctx.backend.Move(ctx.emit(), ctx.backend.ReturnReg(), ctx.reg(r))
		ctx.free(r)
	}
	ctx.backend.Jump(ctx.emit(), ctx.labelName(ctx.fn.epilogue))
	return nil
}
