package codegen

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/xplshn/ledc/pkg/ast"
	"github.com/xplshn/ledc/pkg/config"
	"github.com/xplshn/ledc/pkg/token"
)

var hostRuntime = filepath.Join("..", "..", "testdata", "runtime.c")

// runNative assembles the x86-64 output for root, links it against the stub runtime
// and returns what the program printed
func runNative(t *testing.T, cfg *config.Config, root *ast.Node) string {
	t.Helper()
	if testing.Short() {
		t.Skip("links and runs native programs")
	}
	if runtime.GOOS != "linux" || runtime.GOARCH != "amd64" {
		t.Skipf("native programs only run on linux/amd64, not %s/%s", runtime.GOOS, runtime.GOARCH)
	}
	cc, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("no C compiler to assemble and link with")
	}

	buf, err := Generate(root, cfg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	dir := t.TempDir()
	asm, exe := filepath.Join(dir, "prog.s"), filepath.Join(dir, "prog")
	if err := os.WriteFile(asm, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if out, err := exec.CommandContext(ctx, cc, "-no-pie", "-o", exe, asm, hostRuntime).CombinedOutput(); err != nil {
		t.Fatalf("%s failed: %v\n%s\n%s", cc, err, out, buf)
	}
	out, err := exec.CommandContext(ctx, exe).Output()
	if err != nil {
		t.Fatalf("running the program: %v\n%s", err, buf)
	}
	return string(out)
}

func debug(e *ast.Node) *ast.Node { return call("debug", e) }

func params(names string) []string { return strings.Fields(names) }

func TestNativeExecution(t *testing.T) {
	captureDiagnostics(t)
	p := func(name string) *ast.Node { return ident(name) }

	// a*1000000 + b*100000 + ... + g, so the result spells out the argument order
	var digits *ast.Node
	for i, name := range params("a b c d e f g") {
		scale := int64(1)
		for k := i; k < 6; k++ {
			scale *= 10
		}
		term := bin(token.Star, p(name), num(scale))
		if digits == nil {
			digits = term
		} else {
			digits = bin(token.Plus, digits, term)
		}
	}
	sub7 := fn("sub7", params("a b c d e f g"), ret(digits))
	mix8 := fn("mix8", params("a b c d e f g h"), ret(bin(token.Plus,
		bin(token.Star, bin(token.Minus, p("a"), p("h")), num(10)),
		bin(token.Minus, p("g"), p("b")),
	)))
	fact := fn("fact", params("n"),
		ast.NewIf(tk, bin(token.Lte, p("n"), num(1)), block(ret(num(1))), nil),
		ret(bin(token.Star, p("n"), call("fact", bin(token.Minus, p("n"), num(1))))),
	)
	fib := fn("fib", params("n"),
		ast.NewIf(tk, bin(token.Lt, p("n"), num(2)), block(ret(p("n"))), nil),
		ret(bin(token.Plus,
			call("fib", bin(token.Minus, p("n"), num(1))),
			call("fib", bin(token.Minus, p("n"), num(2))),
		)),
	)
	same := fn("same", params("x"), ret(p("x")))

	ints := func(vs ...int64) []*ast.Node {
		var out []*ast.Node
		for _, v := range vs {
			out = append(out, num(v))
		}
		return out
	}
	nested := append(ints(1, 2, 3, 4, 5, 6), call("sub7", ints(0, 0, 0, 0, 0, 0, 9)...), num(8))

	main := fn("main", nil,
		varDecl("m", num(-7)),
		varDecl("s", num(-16)),
		varDecl("x", num(7)),
		debug(bin(token.Minus, bin(token.Star, num(7), num(6)), num(2))),
		debug(bin(token.Slash, p("m"), num(2))),
		debug(bin(token.Rem, p("m"), num(2))),
		debug(bin(token.Plus, bin(token.Star, bin(token.Slash, num(100), p("x")), p("x")), bin(token.Rem, num(100), p("x")))),
		debug(bin(token.Shl, num(1), num(10))),
		debug(bin(token.Shr, p("s"), num(2))),
		debug(bin(token.Or, bin(token.And, num(12), num(10)), bin(token.Xor, num(1), num(3)))),
		debug(unary(token.Complement, num(5))),
		debug(unary(token.Minus, p("x"))),
		debug(bin(token.AndAnd, bin(token.Lt, num(3), num(5)), unary(token.Not, bin(token.EqEq, num(2), num(3))))),
		debug(bin(token.OrOr, bin(token.Gt, p("m"), num(0)), bin(token.Gte, p("x"), num(8)))),
		debug(call("fact", num(10))),
		debug(call("fib", num(15))),
		debug(call("sub7", ints(1, 2, 3, 4, 5, 6, 7)...)),
		debug(call("mix8", ints(1, 2, 3, 4, 5, 6, 7, 8)...)),
		debug(call("mix8", nested...)),
		debug(call("sub7",
			bin(token.Plus, num(1), num(0)), bin(token.Star, num(2), num(1)), bin(token.Minus, num(9), num(6)),
			bin(token.Slash, num(8), num(2)), bin(token.Rem, num(11), num(6)), bin(token.Shl, num(3), num(1)),
			bin(token.Shr, num(15), num(1)),
		)),
		debug(bin(token.Plus, num(100), bin(token.Plus, num(20), bin(token.Plus, num(3), call("same", num(4)))))),
		debug(bin(token.Plus, p("x"), bin(token.Star, bin(token.Slash, num(100), p("x")), bin(token.Rem, num(100), p("x"))))),
		assign("counter", bin(token.Plus, p("counter"), num(2))),
		debug(p("counter")),
		varDecl("i", num(0)),
		ast.NewWhile(tk, bin(token.Lt, p("i"), num(5)), block(
			call("putc", bin(token.Plus, num(65), p("i"))),
			assign("i", bin(token.Plus, p("i"), num(1))),
		)),
		call("putc", num(10)),
	)
	root := program(varDecl("counter", num(40)), sub7, mix8, fact, fib, same, main)

	want := strings.Join([]string{
		"40",
		"-3",
		"-1",
		"100",
		"1024",
		"-4",
		"10",
		"-6",
		"-7",
		"true",
		"false",
		"3628800",
		"610",
		"1234567",
		"-65",
		"-63",
		"1234567",
		"127",
		"35",
		"42",
		"ABCDE",
	}, "\n") + "\n"
	got := runNative(t, newConfig(t, config.PlatformNative), root)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("program output mismatch (-want +got):\n%s", diff)
	}
}

func TestExampleProgramsRunOnHost(t *testing.T) {
	var blink strings.Builder
	for round := 0; round < 3; round++ {
		for _, on := range []int{1, 0} {
			for k := 0; k < 8; k++ {
				fmt.Fprintf(&blink, "printled %d %d %d\n", k, k, on)
			}
			if on == 1 {
				blink.WriteString("delay_mil 250\n")
			}
		}
		blink.WriteString("blink_seg 0 7 2 1\n")
	}
	blink.WriteString("0\n")

	tests := []struct {
		file  string
		simHW bool
		want  string
	}{
		{"loop.json", false, "ABCDEFGHIJ\n"},
		{"arith.json", false, "168\n"},
		{"blink.json", false, blink.String()},
		{"board.json", true, "digital_write 2 1\nshift_out 0 165\nblink_min 3 3 1 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			captureDiagnostics(t)
			f, err := os.Open(filepath.Join("..", "..", "examples", tt.file))
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()
			prog, err := ast.Decode(f)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			cfg := newConfig(t, config.PlatformNative)
			cfg.SetFeature(config.FeatSimulateHardware, tt.simHW)

			if diff := cmp.Diff(tt.want, runNative(t, cfg, prog.Root)); diff != "" {
				t.Errorf("program output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
