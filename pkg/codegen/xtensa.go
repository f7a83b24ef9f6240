package codegen

import (
	"fmt"

	"github.com/xplshn/ledc/pkg/config"
	"github.com/xplshn/ledc/pkg/token"
)

// Xtensa lx106 under the windowless call0 ABI. a1 is the stack pointer, a0 the return address,
// a15 the frame pointer and a8 is reserved as the assembler temporary.

const (
	xtFP   = "a15"
	xtTemp = "a8"
	// largest reach of the l32i/s32i unsigned offset, exclusive
	xtFrameLimit = 1024
)

var xtensaScratch = []RegInfo{
	{"a9", false},
	{"a10", false},
	{"a11", false},
	{"a12", true},
	{"a13", true},
	{"a14", true},
}

var xtensaArgRegs = []string{"a2", "a3", "a4", "a5", "a6", "a7"}

var xtensaBinary = map[token.Type]string{
	token.Plus:  "add",
	token.Minus: "sub",
	token.Star:  "mull",
	token.And:   "and",
	token.Or:    "or",
	token.Xor:   "xor",
}

var xtensaBranches = map[token.Type]branchInfo{
	token.EqEq: {Op: "beq"},
	token.Neq:  {Op: "bne"},
	token.Lt:   {Op: "blt"},
	token.Gte:  {Op: "bge"},
	token.Gt:   {Op: "blt", Swap: true},
	token.Lte:  {Op: "bge", Swap: true},
}

// lx106 has no divider; division goes through libgcc
var xtensaConstraints = map[token.Type]OpConstraint{
	token.Slash: {Left: "a2", Right: "a3", Result: "a2", IsCall: true},
	token.Rem:   {Left: "a2", Right: "a3", Result: "a2", IsCall: true},
}

var xtensaHelpers = map[token.Type]string{
	token.Slash: "__divsi3",
	token.Rem:   "__modsi3",
}

type xtensaBackend struct {
	prefix string
}

func newXtensaBackend(cfg *config.Config) *xtensaBackend {
	return &xtensaBackend{prefix: cfg.SymbolPrefix}
}

func (b *xtensaBackend) Name() string              { return "xtensa-lx106" }
func (b *xtensaBackend) Arch() config.Arch         { return config.ArchXtensa }
func (b *xtensaBackend) WordSize() int             { return 4 }
func (b *xtensaBackend) Hardware() bool            { return true }
func (b *xtensaBackend) Scratch() []RegInfo        { return xtensaScratch }
func (b *xtensaBackend) ArgRegs() []string         { return xtensaArgRegs }
func (b *xtensaBackend) ReturnReg() string         { return "a2" }
func (b *xtensaBackend) FrameHeader() int          { return 2 }
func (b *xtensaBackend) SaveArea() int             { return 3 }
func (b *xtensaBackend) StackArgsInFrame() bool    { return true }
func (b *xtensaBackend) FrameLimit() int           { return xtFrameLimit }
func (b *xtensaBackend) LabelPrefix() string       { return ".L" }
func (b *xtensaBackend) Symbol(name string) string { return b.prefix + name }

func (b *xtensaBackend) Constraint(op token.Type) (OpConstraint, bool) {
	c, ok := xtensaConstraints[op]
	return c, ok
}

// slot renders a frame offset as the a15-relative operand pair. a15 holds the stack pointer
// after the prologue, so the frame base is a15+Size
func (b *xtensaBackend) slot(f *Frame, off int) (string, string) {
	return xtFP, fmt.Sprint(f.Size + off)
}

func (b *xtensaBackend) TextSection(e *Emitter, sym string) {
	e.Directive(".section", ".text."+sym, `"ax"`, "@progbits")
	e.Directive(".literal_position")
	e.Directive(".align", "4")
	e.Directive(".global", sym)
}

func (b *xtensaBackend) Global(e *Emitter, sym string, value int64, initialized bool) {
	if !initialized {
		e.Directive(".lcomm", sym, "4")
		return
	}
	e.Directive(".data")
	e.Directive(".align", "4")
	e.Label(sym)
	e.Directive(".word", fmt.Sprint(value))
}

func (b *xtensaBackend) adjustSP(e *Emitter, delta int) {
	if delta >= -128 && delta < 128 {
		e.Ins("addi", "a1", "a1", fmt.Sprint(delta))
		return
	}
	if delta < 0 {
		e.Ins("movi", xtTemp, fmt.Sprint(-delta))
		e.Ins("sub", "a1", "a1", xtTemp)
		return
	}
	e.Ins("movi", xtTemp, fmt.Sprint(delta))
	e.Ins("add", "a1", "a1", xtTemp)
}

func (b *xtensaBackend) Prologue(e *Emitter, f *Frame, saved []string) {
	b.adjustSP(e, -f.Size)
	e.Ins("s32i", "a0", "a1", fmt.Sprint(f.Size-4))
	e.Ins("s32i", xtFP, "a1", fmt.Sprint(f.Size-8))
	e.Ins("mov", xtFP, "a1")
	for _, r := range saved {
		base, off := b.slot(f, f.CalleeSlot(r))
		e.Ins("s32i", r, base, off)
	}
}

func (b *xtensaBackend) Epilogue(e *Emitter, f *Frame, saved []string) {
	for _, r := range saved {
		base, off := b.slot(f, f.CalleeSlot(r))
		e.Ins("l32i", r, base, off)
	}
	e.Ins("mov", "a1", xtFP)
	e.Ins("l32i", "a0", "a1", fmt.Sprint(f.Size-4))
	e.Ins("l32i", xtFP, "a1", fmt.Sprint(f.Size-8))
	b.adjustSP(e, f.Size)
	e.Ret("ret")
}

// IncomingArg copies parameter index into its slot. Parameters past a7 are in the caller's outgoing area,
// which starts at our frame base
func (b *xtensaBackend) IncomingArg(e *Emitter, f *Frame, index int, loc Location) {
	base, off := b.slot(f, loc.Offset)
	if index < len(xtensaArgRegs) {
		e.Ins("s32i", xtensaArgRegs[index], base, off)
		return
	}
	e.Ins("l32i", xtTemp, xtFP, fmt.Sprint(f.Size+4*(index-len(xtensaArgRegs))))
	e.Ins("s32i", xtTemp, base, off)
}

func (b *xtensaBackend) LoadImm(e *Emitter, dst string, value int64) {
	e.Ins("movi", dst, fmt.Sprint(value))
}

func (b *xtensaBackend) Load(e *Emitter, f *Frame, dst string, loc Location) {
	if loc.IsGlobal() {
		e.Ins("movi", xtTemp, loc.Global)
		e.Ins("l32i", dst, xtTemp, "0")
		return
	}
	base, off := b.slot(f, loc.Offset)
	e.Ins("l32i", dst, base, off)
}

func (b *xtensaBackend) Store(e *Emitter, f *Frame, src string, loc Location) {
	if loc.IsGlobal() {
		e.Ins("movi", xtTemp, loc.Global)
		e.Ins("s32i", src, xtTemp, "0")
		return
	}
	base, off := b.slot(f, loc.Offset)
	e.Ins("s32i", src, base, off)
}

func (b *xtensaBackend) Move(e *Emitter, dst, src string) {
	if dst == src {
		return
	}
	e.Ins("mov", dst, src)
}

func (b *xtensaBackend) Binary(e *Emitter, op token.Type, dst, src string) bool {
	switch op {
	case token.Shl:
		e.Ins("ssl", src)
		e.Ins("sll", dst, dst)
		return true
	case token.Shr:
		e.Ins("ssr", src)
		e.Ins("sra", dst, dst)
		return true
	}
	mn, ok := xtensaBinary[op]
	if !ok {
		return false
	}
	e.Ins(mn, dst, dst, src)
	return true
}

func (b *xtensaBackend) Constrained(e *Emitter, op token.Type, left, right string) {
	helper, ok := xtensaHelpers[op]
	if !ok {
		panic(fmt.Sprintf("codegen: xtensa has no constrained form for '%s'", op))
	}
	e.Ins("call0", helper)
}

func (b *xtensaBackend) Unary(e *Emitter, op token.Type, dst string) bool {
	switch op {
	case token.Minus:
		e.Ins("neg", dst, dst)
	case token.Complement:
		e.Ins("movi", xtTemp, "-1")
		e.Ins("xor", dst, dst, xtTemp)
	default:
		return false
	}
	return true
}

// BranchCompare only has eq, ne, lt and ge forms; gt and le swap their operands
func (b *xtensaBackend) BranchCompare(e *Emitter, op token.Type, left, right, target string) bool {
	br, ok := xtensaBranches[op]
	if !ok {
		return false
	}
	if br.Swap {
		left, right = right, left
	}
	e.Branch(br.Op, target, left, right)
	return true
}

func (b *xtensaBackend) BranchZero(e *Emitter, reg, target string) { e.Branch("beqz", target, reg) }

func (b *xtensaBackend) BranchNonZero(e *Emitter, reg, target string) { e.Branch("bnez", target, reg) }

func (b *xtensaBackend) Jump(e *Emitter, target string) { e.Jump("j", target) }

// SaveRegs spills into the frame's caller-save area, which is reserved up front
func (b *xtensaBackend) SaveRegs(e *Emitter, f *Frame, regs []string) {
	for _, r := range regs {
		base, off := b.slot(f, f.SaveSlot(f.Depth))
		e.Ins("s32i", r, base, off)
		f.Depth++
	}
}

func (b *xtensaBackend) RestoreRegs(e *Emitter, f *Frame, regs []string) {
	for i := len(regs) - 1; i >= 0; i-- {
		f.Depth--
		base, off := b.slot(f, f.SaveSlot(f.Depth))
		e.Ins("l32i", regs[i], base, off)
	}
}

func (b *xtensaBackend) BeginCall(e *Emitter, f *Frame, stackArgs int) int { return 0 }

// StackArg copies the index-th stack argument to the bottom of the frame, where the callee expects it
func (b *xtensaBackend) StackArg(e *Emitter, f *Frame, src Location, index int) {
	b.Load(e, f, xtTemp, src)
	base, off := b.slot(f, f.OutgoingSlot(index))
	e.Ins("s32i", xtTemp, base, off)
}

func (b *xtensaBackend) Call(e *Emitter, f *Frame, sym string, stackArgs, pad int) {
	e.Ins("call0", sym)
}
