// Package codegen lowers a checked program into assembly text for one target backend
package codegen

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/xplshn/ledc/pkg/ast"
	"github.com/xplshn/ledc/pkg/config"
	"github.com/xplshn/ledc/pkg/util"
)

// funcState is the per-function half of the context. Frames and scratch registers never outlive a function
type funcState struct {
	name     string
	node     *ast.Node
	frame    *Frame
	regs     *RegisterAllocator
	scope    *Scope
	slots    map[*ast.Node]*Symbol
	body     *Emitter
	epilogue Label
}

type Context struct {
	cfg     *config.Config
	backend Backend
	labels  *LabelAllocator
	globals *Scope
	out     *Emitter
	emitted map[string]*ast.Node
	fn      *funcState
}

func NewContext(cfg *config.Config) (*Context, error) {
	b, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}
	return &Context{
		cfg:     cfg,
		backend: b,
		labels:  NewLabelAllocator(b.LabelPrefix()),
		globals: newScope(nil),
		out:     &Emitter{},
		emitted: make(map[string]*ast.Node),
	}, nil
}

// Generate compiles root, a block of function and variable declarations, with the backend cfg selects
func Generate(root *ast.Node, cfg *config.Config) (*bytes.Buffer, error) {
	ctx, err := NewContext(cfg)
	if err != nil {
		return nil, err
	}
	return ctx.Generate(root)
}

// Generate lowers the whole unit. Nothing is returned unless every declaration lowers cleanly
func (ctx *Context) Generate(root *ast.Node) (*bytes.Buffer, error) {
	if root == nil || root.Type != ast.Block {
		return nil, fmt.Errorf("codegen: program root must be a block of declarations")
	}
	decls := root.Data.(ast.BlockNode).Stmts

	if err := ctx.collectGlobals(decls); err != nil {
		return nil, err
	}
	for _, decl := range decls {
		if decl.Type != ast.VarDecl {
			continue
		}
		if err := ctx.codegenGlobalVarDecl(decl); err != nil {
			return nil, err
		}
	}
	for _, decl := range decls {
		if decl.Type != ast.FuncDecl {
			continue
		}
		if err := ctx.codegenFuncDecl(decl); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := ctx.out.WriteTo(&buf); err != nil {
		return nil, err
	}
	return &buf, nil
}

// Backend exposes the backend selected for this compilation
func (ctx *Context) Backend() Backend { return ctx.backend }

func (ctx *Context) newLabel() Label { return ctx.labels.Create() }

func (ctx *Context) labelName(l Label) string { return ctx.labels.Name(l) }

func (ctx *Context) emit() *Emitter { return ctx.fn.body }

func (ctx *Context) enterScope() { ctx.fn.scope = newScope(ctx.fn.scope) }
func (ctx *Context) exitScope() {
	if ctx.fn.scope.Parent != nil {
		ctx.fn.scope = ctx.fn.scope.Parent
	}
}

// alloc takes a scratch register for node, attributing exhaustion to it
func (ctx *Context) alloc(node *ast.Node) (Reg, error) {
	r, err := ctx.fn.regs.Alloc()
	if errors.Is(err, ErrRegisterExhausted) {
		return NoReg, newError(RegisterExhausted, node.Tok, ctx.fn.name, node.Type.String(),
			"expression needs more than %d scratch registers", ctx.fn.regs.Size())
	}
	return r, err
}

func (ctx *Context) free(r Reg) { ctx.fn.regs.Free(r) }

func (ctx *Context) reg(r Reg) string { return ctx.fn.regs.Name(r) }

// wordValue fits an integer literal into the target word
func (ctx *Context) wordValue(node *ast.Node, v int64) int64 {
	if ctx.backend.WordSize() >= 8 {
		return v
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		util.Warn(ctx.cfg, config.WarnOverflow, node.Tok, "Integer constant %d overflows the %d-bit word and is truncated", v, ctx.backend.WordSize()*8)
		return int64(int32(v))
	}
	return v
}
