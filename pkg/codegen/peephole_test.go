package codegen

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPeephole(t *testing.T) {
	e := &Emitter{}
	e.Ins("movq", "$1", "%rax")
	e.Jump("jmp", ".L3")
	e.Ins("movq", "$2", "%rax")
	e.Comment("dead")
	e.Label(".L3")
	e.Jump("jmp", ".L5")
	e.Label(".L4")
	e.Ins("addq", "%rbx", "%rax")
	e.Label(".L5")
	e.Ret("ret")
	e.Ins("nop")

	got := asmLines(Peephole(e).String())
	want := []string{
		"movq $1, %rax",
		".L3:",
		"jmp .L5",
		".L4:",
		"addq %rbx, %rax",
		".L5:",
		"ret",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("peephole mismatch (-want +got):\n%s", diff)
	}
}

func TestPeepholeKeepsConditionalBranches(t *testing.T) {
	e := &Emitter{}
	e.Branch("beqz", ".L1", "a9")
	e.Label(".L1")
	if got := Peephole(e).Len(); got != 2 {
		t.Errorf("conditional branch to the next label was touched, %d lines left", got)
	}
}
