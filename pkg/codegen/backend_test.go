package codegen

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/ledc/pkg/config"
	"github.com/xplshn/ledc/pkg/token"
)

func TestNewBackendFollowsTarget(t *testing.T) {
	for platform, want := range map[string]string{
		config.PlatformNative:  "x86_64",
		config.PlatformESP8266: "xtensa-lx106",
	} {
		b, err := NewBackend(newConfig(t, platform))
		if err != nil {
			t.Fatalf("NewBackend(%s): %v", platform, err)
		}
		if b.Name() != want {
			t.Errorf("NewBackend(%s) = %s, want %s", platform, b.Name(), want)
		}
		if b.Hardware() != (platform == config.PlatformESP8266) {
			t.Errorf("%s: Hardware() = %v", platform, b.Hardware())
		}
	}
}

// Pinned and convention registers must never be handed out as scratch registers
func TestScratchPoolsAvoidConventionRegisters(t *testing.T) {
	for _, platform := range targets {
		b, _ := NewBackend(newConfig(t, platform))
		reserved := append([]string{b.ReturnReg()}, b.ArgRegs()...)
		for _, op := range []token.Type{token.Star, token.Slash, token.Rem, token.Shl, token.Shr} {
			if c, ok := b.Constraint(op); ok {
				reserved = append(reserved, c.Left, c.Right, c.Result)
				reserved = append(reserved, c.Clobbers...)
			}
		}
		for _, r := range b.Scratch() {
			if containsName(reserved, r.Name) {
				t.Errorf("%s: scratch register %s is also a convention or pinned register", b.Name(), r.Name)
			}
		}
	}
}

// Every binary operator must be lowerable on both targets, directly or through a constraint
func TestOperatorTablesAreComplete(t *testing.T) {
	arith := []token.Type{token.Plus, token.Minus, token.Star, token.Slash, token.Rem, token.And, token.Or, token.Xor, token.Shl, token.Shr}
	compare := []token.Type{token.EqEq, token.Neq, token.Lt, token.Lte, token.Gt, token.Gte}
	for _, platform := range targets {
		b, _ := NewBackend(newConfig(t, platform))
		for _, op := range arith {
			_, constrained := b.Constraint(op)
			if !constrained && !b.Binary(&Emitter{}, op, "x", "y") {
				t.Errorf("%s: no lowering for '%s'", b.Name(), op)
			}
		}
		for _, op := range compare {
			if !b.BranchCompare(&Emitter{}, op, "x", "y", ".L0") {
				t.Errorf("%s: no branch for '%s'", b.Name(), op)
			}
		}
	}
}

func TestXtensaLargeFrames(t *testing.T) {
	b := newXtensaBackend(newConfig(t, config.PlatformESP8266))
	f := NewFrame("big", 4, 2)
	f.Layout(nil, 0, 0, 0, 16)
	f.Size = 256

	e := &Emitter{}
	b.Prologue(e, f, nil)
	want := []string{"movi a8, 256", "sub a1, a1, a8", "s32i a0, a1, 252", "s32i a15, a1, 248", "mov a15, a1"}
	if diff := cmp.Diff(want, normalizeAll(e.Instructions())); diff != "" {
		t.Errorf("prologue mismatch (-want +got):\n%s", diff)
	}
}

func TestXtensaUnaryAndShifts(t *testing.T) {
	b := newXtensaBackend(newConfig(t, config.PlatformESP8266))
	e := &Emitter{}
	b.Unary(e, token.Complement, "a9")
	b.Binary(e, token.Shr, "a9", "a10")
	want := []string{"movi a8, -1", "xor a9, a9, a8", "ssr a10", "sra a9, a9"}
	if diff := cmp.Diff(want, normalizeAll(e.Instructions())); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestMachOSections(t *testing.T) {
	b := &amd64Backend{prefix: "_", machO: true}
	e := &Emitter{}
	b.TextSection(e, b.Symbol("f"))
	want := []string{".text", ".p2align 4", ".globl _f"}
	if diff := cmp.Diff(want, asmLines(e.String())); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if b.LabelPrefix() != "L" {
		t.Errorf("Mach-O local labels must not start with a dot")
	}
}

func TestErrorFormatting(t *testing.T) {
	err := newError(UndefinedSymbol, at(3, 5), "x", "assignment", "")
	if got, want := err.Error(), "3:5: undefined symbol 'x' in assignment"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	wrapped := fmt.Errorf("compiling main: %w", err)
	if !errors.Is(wrapped, ErrUndefinedSymbol) || errors.Is(wrapped, ErrRegisterExhausted) {
		t.Errorf("wrapped error does not unwrap to its kind")
	}
	err = newError(RegisterExhausted, tk, "", "", "needs %d", 8)
	if got := err.Message(); got != "scratch registers exhausted: needs 8" {
		t.Errorf("Message() = %q", got)
	}
}
