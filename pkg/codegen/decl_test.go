package codegen

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/ledc/pkg/ast"
	"github.com/xplshn/ledc/pkg/config"
	"github.com/xplshn/ledc/pkg/token"
)

func TestFunctionFrameAndEpilogue(t *testing.T) {
	tests := []struct {
		platform string
		want     []string
	}{
		{config.PlatformNative, []string{
			"pushq %rbp",
			"movq %rsp, %rbp",
			"subq $64, %rsp",
			"movq %rbx, -24(%rbp)",
			"movq %rdi, -8(%rbp)",
			"movq %rsi, -16(%rbp)",
			"movq -8(%rbp), %rbx",
			"movq -16(%rbp), %r10",
			"addq %r10, %rbx",
			"movq %rbx, %rax",
			"jmp .L0",
			"movq -24(%rbp), %rbx",
			"movq %rbp, %rsp",
			"popq %rbp",
			"ret",
		}},
		{config.PlatformESP8266, []string{
			"addi a1, a1, -48",
			"s32i a0, a1, 44",
			"s32i a15, a1, 40",
			"mov a15, a1",
			"s32i a2, a15, 36",
			"s32i a3, a15, 32",
			"l32i a9, a15, 36",
			"l32i a10, a15, 32",
			"add a9, a9, a10",
			"mov a2, a9",
			"j .L0",
			"mov a1, a15",
			"l32i a0, a1, 44",
			"l32i a15, a1, 40",
			"addi a1, a1, 48",
			"ret",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.platform, func(t *testing.T) {
			// f(a, b) { return a + b; }
			asm := compile(t, newConfig(t, tt.platform), fn("f", []string{"a", "b"},
				ret(bin(token.Plus, ident("a"), ident("b"))),
			))
			if diff := cmp.Diff(tt.want, instructions(asm)); diff != "" {
				t.Errorf("instructions mismatch (-want +got):\n%s", diff)
			}
			lines := asmLines(asm)
			if count(lines, "f:") != 1 || count(lines, ".L0:") != 1 {
				t.Errorf("want one entry label and one epilogue label:\n%s", asm)
			}
		})
	}
}

func TestFunctionSections(t *testing.T) {
	tests := []struct {
		platform string
		want     []string
	}{
		{config.PlatformNative, []string{`.section .text.f, "ax", @progbits`, ".p2align 4", ".globl f", "f:"}},
		{config.PlatformESP8266, []string{`.section .text.f, "ax", @progbits`, ".literal_position", ".align 4", ".global f", "f:"}},
	}
	for _, tt := range tests {
		t.Run(tt.platform, func(t *testing.T) {
			lines := asmLines(compile(t, newConfig(t, tt.platform), fn("f", nil)))
			if diff := cmp.Diff(tt.want, lines[:len(tt.want)]); diff != "" {
				t.Errorf("function header mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMainIsTheRuntimeEntry(t *testing.T) {
	cfg := newConfig(t, config.PlatformNative)
	asm := compile(t, cfg,
		fn("main", nil, call("helper")),
		fn("helper", nil),
	)
	lines := asmLines(asm)
	if indexOf(lines, "user_main:") < 0 || indexOf(lines, ".globl user_main") < 0 {
		t.Errorf("main is not emitted as user_main:\n%s", asm)
	}
	if indexOf(lines, "main:") >= 0 {
		t.Errorf("main leaked under its own name:\n%s", asm)
	}
	if indexOf(lines, "call helper") < 0 {
		t.Errorf("forward call to helper not emitted:\n%s", asm)
	}

	cfg = newConfig(t, config.PlatformNative)
	cfg.SymbolPrefix = "_"
	cfg.EntrySymbol = "program_main"
	lines = asmLines(compile(t, cfg, fn("main", nil)))
	if indexOf(lines, "_program_main:") < 0 {
		t.Errorf("entry symbol ignores prefix or configuration: %v", lines)
	}
}

func TestGlobals(t *testing.T) {
	tests := []struct {
		platform string
		want     []string
	}{
		{config.PlatformNative, []string{".data", ".balign 8", "g:", ".quad 6", ".lcomm h, 8"}},
		{config.PlatformESP8266, []string{".data", ".align 4", "g:", ".word 6", ".lcomm h, 4"}},
	}
	for _, tt := range tests {
		t.Run(tt.platform, func(t *testing.T) {
			asm := compile(t, newConfig(t, tt.platform),
				fn("main", nil, assign("h", ident("g"))),
				ast.NewVarDecl(tk, "g", ast.TypeInt, bin(token.Star, num(2), num(3))),
				varDecl("h", nil),
			)
			lines := asmLines(asm)
			if diff := cmp.Diff(tt.want, lines[:len(tt.want)]); diff != "" {
				t.Errorf("globals are not emitted first (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeclarationErrors(t *testing.T) {
	tests := []struct {
		name  string
		decls []*ast.Node
		want  error
		kind  ErrorKind
	}{
		{
			name:  "non-constant global",
			decls: []*ast.Node{varDecl("g", num(1)), varDecl("h", bin(token.Plus, ident("g"), num(1)))},
			want:  ErrNonConstantGlobalInitializer,
			kind:  NonConstantGlobalInitializer,
		},
		{
			name:  "global divided by zero",
			decls: []*ast.Node{varDecl("g", bin(token.Slash, num(1), num(0)))},
			want:  ErrUnsupportedConstruct,
			kind:  UnsupportedConstruct,
		},
		{
			name:  "duplicate function",
			decls: []*ast.Node{fn("f", nil), fn("f", nil)},
			want:  ErrUnsupportedConstruct,
			kind:  UnsupportedConstruct,
		},
		{
			name:  "main collides with entry symbol",
			decls: []*ast.Node{fn("main", nil), fn("user_main", nil)},
			want:  ErrUnsupportedConstruct,
			kind:  UnsupportedConstruct,
		},
		{
			name:  "undefined variable in body",
			decls: []*ast.Node{fn("main", nil, assign("nope", num(1)))},
			want:  ErrUndefinedSymbol,
			kind:  UndefinedSymbol,
		},
		{
			name:  "redeclared local",
			decls: []*ast.Node{fn("main", nil, varDecl("x", nil), varDecl("x", nil))},
			want:  ErrUnsupportedConstruct,
			kind:  UnsupportedConstruct,
		},
		{
			name:  "wrong argument count",
			decls: []*ast.Node{fn("f", []string{"a"}), fn("main", nil, call("f"))},
			want:  ErrArgumentCountMismatch,
			kind:  ArgumentCountMismatch,
		},
	}
	for _, tt := range tests {
		for _, platform := range targets {
			t.Run(platform+"/"+tt.name, func(t *testing.T) {
				buf, err := Generate(program(tt.decls...), newConfig(t, platform))
				if !errors.Is(err, tt.want) {
					t.Fatalf("got %v, want %v", err, tt.want)
				}
				var cerr *Error
				if !errors.As(err, &cerr) || cerr.Kind != tt.kind {
					t.Errorf("error kind: got %#v, want %s", err, tt.kind)
				}
				if buf != nil {
					t.Errorf("partial output returned alongside an error")
				}
			})
		}
	}
}

func TestIncomingStackParameters(t *testing.T) {
	params := []string{"a", "b", "c", "d", "e", "f", "g"}
	asm := compile(t, newConfig(t, config.PlatformNative), fn("seven", params, ret(ident("g"))))
	lines := instructions(asm)
	i := indexOf(lines, "movq 16(%rbp), %rax")
	if i < 0 || lines[i+1] != "movq %rax, -56(%rbp)" {
		t.Errorf("seventh parameter not copied from the caller's stack:\n%s", asm)
	}
}

func TestSevenParameterFunctions(t *testing.T) {
	tests := []struct {
		platform string
		incoming []string
	}{
		{config.PlatformNative, []string{"movq 16(%rbp), %rax", "movq %rax, -56(%rbp)"}},
		{config.PlatformESP8266, []string{"l32i a8, a15, 64", "s32i a8, a15, 28"}},
	}
	for _, tt := range tests {
		t.Run(tt.platform, func(t *testing.T) {
			params := []string{"a", "b", "c", "d", "e", "f", "g"}
			var args []*ast.Node
			for i := range params {
				args = append(args, num(int64(i)))
			}
			asm := compile(t, newConfig(t, tt.platform),
				fn("seven", params, ret(ident("g"))),
				fn("main", nil, call("seven", args...)),
			)
			lines := instructions(asm)
			i := indexOf(lines, tt.incoming[0])
			if i < 0 || i+1 >= len(lines) || lines[i+1] != tt.incoming[1] {
				t.Errorf("seventh parameter is not copied from the caller's frame, want %v:\n%s", tt.incoming, asm)
			}
			if count(lines, flavors[tt.platform].call+" seven") != 1 {
				t.Errorf("seven is not called once:\n%s", asm)
			}
		})
	}
}

func TestXtensaFrameLimit(t *testing.T) {
	var locals []*ast.Node
	for i := 0; i < 250; i++ {
		locals = append(locals, varDecl("v"+strings.Repeat("x", i), nil))
	}
	_, err := Generate(program(fn("big", nil, locals...)), newConfig(t, config.PlatformESP8266))
	if !errors.Is(err, ErrUnsupportedConstruct) {
		t.Fatalf("got %v, want ErrUnsupportedConstruct", err)
	}
	if _, err := Generate(program(fn("big", nil, locals...)), newConfig(t, config.PlatformNative)); err != nil {
		t.Errorf("x86_64 has no frame limit, got %v", err)
	}
}

func TestPeepholeFeature(t *testing.T) {
	cfg := newConfig(t, config.PlatformNative)
	cfg.SetFeature(config.FeatPeephole, true)
	asm := compile(t, cfg, fn("f", []string{"a", "b"}, ret(bin(token.Plus, ident("a"), ident("b")))))
	lines := asmLines(asm)
	if indexOf(lines, "jmp .L0") >= 0 {
		t.Errorf("jump to the following epilogue label survived:\n%s", asm)
	}
	if indexOf(lines, ".L0:") < 0 || indexOf(lines, "ret") < 0 {
		t.Errorf("peephole removed more than the jump:\n%s", asm)
	}
}
