package codegen

import (
	"fmt"

	"github.com/xplshn/ledc/pkg/ast"
	"github.com/xplshn/ledc/pkg/config"
)

// collectGlobals binds every top-level name before any code is lowered, so functions may call
// functions declared after them
func (ctx *Context) collectGlobals(decls []*ast.Node) error {
	b := ctx.backend
	for _, decl := range decls {
		var sym *Symbol
		switch decl.Type {
		case ast.FuncDecl:
			d := decl.Data.(ast.FuncDeclNode)
			target := d.Name
			if d.Name == "main" {
				target = ctx.cfg.EntrySymbol
			}
			sym = &Symbol{Name: d.Name, Kind: SymFunc, Target: b.Symbol(target), Arity: len(d.Params), Node: decl}
		case ast.VarDecl:
			d := decl.Data.(ast.VarDeclNode)
			sym = &Symbol{Name: d.Name, Kind: SymGlobal, Target: b.Symbol(d.Name), Node: decl}
		default:
			return newError(UnsupportedConstruct, decl.Tok, "", decl.Type.String(), "not allowed at top level")
		}

		if prev := ctx.globals.LookupLocal(sym.Name); prev != nil {
			return newError(UnsupportedConstruct, decl.Tok, sym.Name, "declaration", "redefinition of %s declared at %d:%d", prev.Kind, prev.Node.Tok.Line, prev.Node.Tok.Column)
		}
		if prev, ok := ctx.emitted[sym.Target]; ok {
			return newError(UnsupportedConstruct, decl.Tok, sym.Name, "declaration", "assembler symbol '%s' is already defined at %d:%d", sym.Target, prev.Tok.Line, prev.Tok.Column)
		}
		ctx.emitted[sym.Target] = decl
		ctx.globals.Bind(sym)
	}
	return nil
}

func (ctx *Context) codegenGlobalVarDecl(node *ast.Node) error {
	d := node.Data.(ast.VarDeclNode)
	sym := ctx.globals.LookupLocal(d.Name)

	if d.Init == nil {
		ctx.backend.Global(ctx.out, sym.Target, 0, false)
		return nil
	}

	folded, err := ast.FoldConstants(d.Init)
	if err != nil {
		return newError(UnsupportedConstruct, d.Init.Tok, d.Name, "global initializer", "%v", err)
	}
	v, ok := ast.ConstValue(folded)
	if !ok {
		return newError(NonConstantGlobalInitializer, d.Init.Tok, d.Name, "global initializer", "initializer is a %s expression", folded.Type)
	}
	ctx.backend.Global(ctx.out, sym.Target, ctx.wordValue(folded, v), true)
	return nil
}

func calleeSavedNames(pool []RegInfo) []string {
	var out []string
	for _, r := range pool {
		if r.CalleeSaved {
			out = append(out, r.Name)
		}
	}
	return out
}

func callArgs(n *ast.Node) []*ast.Node {
	switch d := n.Data.(type) {
	case ast.FuncCallNode:
		return d.Args
	case ast.PrimitiveNode:
		return d.Args
	}
	return nil
}

// maxStackArgs is the largest number of arguments any call in body passes on the stack
func (ctx *Context) maxStackArgs(body *ast.Node) int {
	most := 0
	ast.Walk(body, func(n *ast.Node) bool {
		if extra := len(callArgs(n)) - len(ctx.backend.ArgRegs()); extra > most {
			most = extra
		}
		return true
	})
	return most
}

// stagingWords is the number of staging words body needs. A staged call holds one
// word per argument lowered so far, and an argument may itself contain staged calls.
func (ctx *Context) stagingWords(body *ast.Node) int {
	most := 0
	ast.Walk(body, func(n *ast.Node) bool {
		args := callArgs(n)
		if len(args) <= len(ctx.backend.ArgRegs()) {
			return true
		}
		for i, arg := range args {
			most = max(most, i+1+ctx.stagingWords(arg))
		}
		return false
	})
	return most
}

// layoutFrame declares every parameter and every local of the function, including shadowing
// declarations in nested blocks, then fixes the frame size
func (ctx *Context) layoutFrame(d ast.FuncDeclNode) error {
	fn, b := ctx.fn, ctx.backend

	for i, p := range d.Params {
		if p.Type != ast.Ident {
			return newError(UnsupportedConstruct, p.Tok, d.Name, "parameter list", "parameter %d is not a name", i+1)
		}
		name := p.Data.(ast.IdentNode).Name
		if fn.scope.LookupLocal(name) != nil {
			return newError(UnsupportedConstruct, p.Tok, name, "parameter list", "duplicate parameter")
		}
		sym := fn.frame.Declare(name, SymParam)
		sym.Index, sym.Node = i, p
		fn.scope.Bind(sym)
	}

	ast.Walk(d.Body, func(n *ast.Node) bool {
		if n.Type == ast.VarDecl {
			sym := fn.frame.Declare(n.Data.(ast.VarDeclNode).Name, SymLocal)
			sym.Node = n
			fn.slots[n] = sym
		}
		return true
	})

	outgoing := 0
	if b.StackArgsInFrame() {
		outgoing = ctx.maxStackArgs(d.Body)
	}
	fn.frame.Layout(calleeSavedNames(b.Scratch()), b.SaveArea(), ctx.stagingWords(d.Body), outgoing, ctx.cfg.StackAlignment)

	if limit := b.FrameLimit(); limit > 0 {
		reach := fn.frame.Size
		if incoming := len(d.Params) - len(b.ArgRegs()); incoming > 0 {
			reach += incoming * b.WordSize()
		}
		if reach > limit {
			return newError(UnsupportedConstruct, fn.node.Tok, d.Name, "function", "frame needs %d bytes but %s can address only %d", reach, b.Name(), limit)
		}
	}
	return nil
}

func (ctx *Context) codegenFuncDecl(node *ast.Node) error {
	d := node.Data.(ast.FuncDeclNode)
	b := ctx.backend
	sym := ctx.globals.LookupLocal(d.Name)

	ctx.fn = &funcState{
		name:     d.Name,
		node:     node,
		frame:    NewFrame(d.Name, b.WordSize(), b.FrameHeader()),
		regs:     NewRegisterAllocator(b.Scratch()),
		scope:    newScope(ctx.globals),
		slots:    make(map[*ast.Node]*Symbol),
		body:     &Emitter{},
		epilogue: ctx.newLabel(),
	}
	defer func() { ctx.fn = nil }()
	fn := ctx.fn

	if err := ctx.layoutFrame(d); err != nil {
		return err
	}
	if _, err := ctx.codegenStmt(d.Body); err != nil {
		return err
	}
	if n := fn.regs.InUse(); n != 0 {
		panic(fmt.Sprintf("codegen: %d scratch registers still live at the end of '%s'", n, d.Name))
	}

	e := &Emitter{}
	b.TextSection(e, sym.Target)
	e.Label(sym.Target)
	saved := fn.regs.TouchedCalleeSaved()
	b.Prologue(e, fn.frame, saved)
	for _, p := range fn.frame.Symbols {
		if p.Kind == SymParam {
			b.IncomingArg(e, fn.frame, p.Index, p.Location())
		}
	}
	e.Append(fn.body)
	e.Label(ctx.labelName(fn.epilogue))
	b.Epilogue(e, fn.frame, saved)

	if ctx.cfg.IsFeatureEnabled(config.FeatPeephole) {
		e = Peephole(e)
	}
	ctx.out.Append(e)
	return nil
}
