package codegen

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xplshn/ledc/pkg/ast"
	"github.com/xplshn/ledc/pkg/config"
	"github.com/xplshn/ledc/pkg/token"
	"github.com/xplshn/ledc/pkg/util"
)

var targets = []string{config.PlatformNative, config.PlatformESP8266}

func at(line, col int) token.Token { return token.Token{Line: line, Column: col, Len: 1} }

var tk = at(1, 1)

func num(v int64) *ast.Node                         { return ast.NewNumber(tk, v) }
func boolean(v bool) *ast.Node                      { return ast.NewBool(tk, v) }
func ident(name string) *ast.Node                   { return ast.NewIdent(tk, name) }
func assign(name string, rhs *ast.Node) *ast.Node   { return ast.NewAssign(tk, ident(name), rhs) }
func bin(op token.Type, l, r *ast.Node) *ast.Node   { return ast.NewBinaryOp(tk, op, l, r) }
func unary(op token.Type, e *ast.Node) *ast.Node    { return ast.NewUnaryOp(tk, op, e) }
func call(name string, args ...*ast.Node) *ast.Node { return ast.NewFuncCall(tk, name, args) }
func block(stmts ...*ast.Node) *ast.Node            { return ast.NewBlock(tk, stmts) }
func ret(e *ast.Node) *ast.Node                     { return ast.NewReturn(tk, e) }
func varDecl(name string, init *ast.Node) *ast.Node {
	return ast.NewVarDecl(tk, name, ast.TypeInt, init)
}
func prim(kind ast.PrimitiveKind, unit ast.TimeUnit, args ...*ast.Node) *ast.Node {
	return ast.NewPrimitive(tk, kind, unit, args)
}

func fn(name string, params []string, stmts ...*ast.Node) *ast.Node {
	var ps []*ast.Node
	for _, p := range params {
		ps = append(ps, ident(p))
	}
	return ast.NewFuncDecl(tk, name, ps, block(stmts...), ast.TypeInt)
}

func program(decls ...*ast.Node) *ast.Node { return block(decls...) }

func newConfig(t *testing.T, platform string) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	if err := cfg.SetTarget("linux", "amd64", platform); err != nil {
		t.Fatalf("SetTarget(%q): %v", platform, err)
	}
	cfg.EntrySymbol = config.DefaultEntrySymbol
	return cfg
}

// captureDiagnostics collects warnings for the duration of the test
func captureDiagnostics(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := util.Diagnostics
	util.Diagnostics = &buf
	t.Cleanup(func() { util.Diagnostics = old })
	return &buf
}

func compile(t *testing.T, cfg *config.Config, decls ...*ast.Node) string {
	t.Helper()
	buf, err := Generate(program(decls...), cfg)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return buf.String()
}

// exprContext is a context positioned inside an empty function, ready to lower expressions
func exprContext(t *testing.T, platform string) *Context {
	t.Helper()
	ctx, err := NewContext(newConfig(t, platform))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	b := ctx.backend
	frame := NewFrame("test", b.WordSize(), b.FrameHeader())
	ctx.fn = &funcState{
		name:  "test",
		node:  block(),
		frame: frame,
		regs:  NewRegisterAllocator(b.Scratch()),
		scope: newScope(ctx.globals),
		slots: make(map[*ast.Node]*Symbol),
		body:  &Emitter{},
	}
	return ctx
}

// layout fixes the frame of an exprContext once the test declared its variables, sizing the
// staging and outgoing areas for the expressions the test is about to lower
func layout(ctx *Context, exprs ...*ast.Node) {
	b := ctx.backend
	staging, outgoing := 0, 0
	for _, x := range exprs {
		staging = max(staging, ctx.stagingWords(x))
		if b.StackArgsInFrame() {
			outgoing = max(outgoing, ctx.maxStackArgs(x))
		}
	}
	ctx.fn.frame.Layout(calleeSavedNames(b.Scratch()), b.SaveArea(), staging, outgoing, ctx.cfg.StackAlignment)
}

// normalize collapses operand padding so expectations read like assembly
func normalize(line string) string { return strings.Join(strings.Fields(line), " ") }

func normalizeAll(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = normalize(l)
	}
	return out
}

// instructions extracts the instruction lines of assembled output
func instructions(asm string) []string {
	var out []string
	for _, line := range strings.Split(asm, "\n") {
		if !strings.HasPrefix(line, "\t") {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ".") || strings.HasPrefix(trimmed, "#") {
			continue
		}
		out = append(out, normalize(trimmed))
	}
	return out
}

// labelsDefined lists every label definition of assembled output, in order
func labelsDefined(asm string) []string {
	var out []string
	for _, line := range strings.Split(asm, "\n") {
		if strings.HasSuffix(line, ":") && !strings.HasPrefix(line, "\t") {
			out = append(out, strings.TrimSuffix(line, ":"))
		}
	}
	return out
}

func indexOf(lines []string, want string) int {
	for i, l := range lines {
		if l == want {
			return i
		}
	}
	return -1
}

func count(lines []string, want string) int {
	n := 0
	for _, l := range lines {
		if l == want {
			n++
		}
	}
	return n
}
