package codegen

import (
	"fmt"

	"github.com/xplshn/ledc/pkg/config"
	"github.com/xplshn/ledc/pkg/token"
)

// OpConstraint pins the operands and result of an instruction to fixed registers.
// An empty name leaves that value in its scratch register.
type OpConstraint struct {
	Left, Right string
	Result      string
	Clobbers    []string
	IsCall      bool // the operation is a helper call and destroys every caller-saved register
}

// Backend is everything the lowering stages need to know about one architecture:
// register tables, calling convention, operator tables and instruction rendering.
// Lowering is written once against this interface.
type Backend interface {
	Name() string
	Arch() config.Arch
	WordSize() int
	// Hardware reports whether the backend targets the LED board itself
	Hardware() bool

	Scratch() []RegInfo
	ArgRegs() []string
	ReturnReg() string
	// FrameHeader is the number of words between the frame base and the first slot
	FrameHeader() int
	// SaveArea is the number of frame words reserved for caller-saved registers live across calls
	SaveArea() int
	// StackArgsInFrame reports whether outgoing stack arguments are stored in the frame rather than pushed
	StackArgsInFrame() bool
	// FrameLimit is the largest frame offset the load/store forms can reach, 0 meaning unlimited
	FrameLimit() int
	LabelPrefix() string
	Symbol(name string) string

	Constraint(op token.Type) (OpConstraint, bool)

	TextSection(e *Emitter, sym string)
	Global(e *Emitter, sym string, value int64, initialized bool)

	Prologue(e *Emitter, f *Frame, saved []string)
	Epilogue(e *Emitter, f *Frame, saved []string)
	IncomingArg(e *Emitter, f *Frame, index int, loc Location)

	LoadImm(e *Emitter, dst string, value int64)
	Load(e *Emitter, f *Frame, dst string, loc Location)
	Store(e *Emitter, f *Frame, src string, loc Location)
	Move(e *Emitter, dst, src string)
	// Binary emits dst = dst op src, reporting false when op has no direct form
	Binary(e *Emitter, op token.Type, dst, src string) bool
	// Constrained emits the instruction of a pinned operator once its operands are in place
	Constrained(e *Emitter, op token.Type, left, right string)
	Unary(e *Emitter, op token.Type, dst string) bool
	BranchCompare(e *Emitter, op token.Type, left, right, target string) bool
	BranchZero(e *Emitter, reg, target string)
	BranchNonZero(e *Emitter, reg, target string)
	Jump(e *Emitter, target string)

	SaveRegs(e *Emitter, f *Frame, regs []string)
	RestoreRegs(e *Emitter, f *Frame, regs []string)
	// BeginCall prepares the stack for stackArgs arguments and returns the padding words it added
	BeginCall(e *Emitter, f *Frame, stackArgs int) int
	// StackArg passes the index-th stack argument, read from the frame slot src
	StackArg(e *Emitter, f *Frame, src Location, index int)
	Call(e *Emitter, f *Frame, sym string, stackArgs, pad int)
}

// NewBackend selects the backend for the configured architecture
func NewBackend(cfg *config.Config) (Backend, error) {
	switch cfg.Arch {
	case config.ArchX86_64:
		return newAmd64Backend(cfg), nil
	case config.ArchXtensa:
		return newXtensaBackend(cfg), nil
	}
	return nil, fmt.Errorf("no backend for architecture '%s'", cfg.Arch)
}

// branchInfo is one entry of an operator to conditional branch table
type branchInfo struct {
	Op   string
	Swap bool // compare right against left
}
