package codegen

import (
	"fmt"
	"math"

	"github.com/xplshn/ledc/pkg/config"
	"github.com/xplshn/ledc/pkg/token"
)

// x86-64, System V calling convention, AT&T syntax. Used to simulate programs on the host.

var amd64Scratch = []RegInfo{
	{"rbx", true},
	{"r10", false},
	{"r11", false},
	{"r12", true},
	{"r13", true},
	{"r14", true},
	{"r15", true},
}

var amd64ArgRegs = []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}

var amd64Binary = map[token.Type]string{
	token.Plus:  "addq",
	token.Minus: "subq",
	token.And:   "andq",
	token.Or:    "orq",
	token.Xor:   "xorq",
}

var amd64Unary = map[token.Type]string{
	token.Minus:      "negq",
	token.Complement: "notq",
}

var amd64Branches = map[token.Type]branchInfo{
	token.EqEq: {Op: "je"},
	token.Neq:  {Op: "jne"},
	token.Lt:   {Op: "jl"},
	token.Lte:  {Op: "jle"},
	token.Gt:   {Op: "jg"},
	token.Gte:  {Op: "jge"},
}

var amd64Constraints = map[token.Type]OpConstraint{
	token.Star:  {Left: "rax", Result: "rax", Clobbers: []string{"rdx"}},
	token.Slash: {Left: "rax", Result: "rax", Clobbers: []string{"rdx"}},
	token.Rem:   {Left: "rax", Result: "rdx", Clobbers: []string{"rax"}},
	token.Shl:   {Right: "rcx"},
	token.Shr:   {Right: "rcx"},
}

type amd64Backend struct {
	prefix string
	machO  bool
}

func newAmd64Backend(cfg *config.Config) *amd64Backend {
	return &amd64Backend{prefix: cfg.SymbolPrefix, machO: cfg.MachO()}
}

func (b *amd64Backend) Name() string              { return "x86_64" }
func (b *amd64Backend) Arch() config.Arch         { return config.ArchX86_64 }
func (b *amd64Backend) WordSize() int             { return 8 }
func (b *amd64Backend) Hardware() bool            { return false }
func (b *amd64Backend) Scratch() []RegInfo        { return amd64Scratch }
func (b *amd64Backend) ArgRegs() []string         { return amd64ArgRegs }
func (b *amd64Backend) ReturnReg() string         { return "rax" }
func (b *amd64Backend) FrameHeader() int          { return 0 }
func (b *amd64Backend) SaveArea() int             { return 0 }
func (b *amd64Backend) StackArgsInFrame() bool    { return false }
func (b *amd64Backend) FrameLimit() int           { return 0 }
func (b *amd64Backend) Symbol(name string) string { return b.prefix + name }

func (b *amd64Backend) LabelPrefix() string {
	if b.machO {
		return "L"
	}
	return ".L"
}

func (b *amd64Backend) Constraint(op token.Type) (OpConstraint, bool) {
	c, ok := amd64Constraints[op]
	return c, ok
}

func reg64(name string) string { return "%" + name }

func (b *amd64Backend) mem(loc Location) string {
	if loc.IsGlobal() {
		return loc.Global + "(%rip)"
	}
	return fmt.Sprintf("%d(%%rbp)", loc.Offset)
}

func (b *amd64Backend) TextSection(e *Emitter, sym string) {
	if b.machO {
		e.Directive(".text")
	} else {
		e.Directive(".section", ".text."+sym, `"ax"`, "@progbits")
	}
	e.Directive(".p2align", "4")
	e.Directive(".globl", sym)
}

func (b *amd64Backend) Global(e *Emitter, sym string, value int64, initialized bool) {
	if !initialized {
		e.Directive(".lcomm", sym, "8")
		return
	}
	e.Directive(".data")
	e.Directive(".balign", "8")
	e.Label(sym)
	e.Directive(".quad", fmt.Sprint(value))
}

func (b *amd64Backend) Prologue(e *Emitter, f *Frame, saved []string) {
	e.Ins("pushq", "%rbp")
	e.Ins("movq", "%rsp", "%rbp")
	if f.Size > 0 {
		e.Ins("subq", fmt.Sprintf("$%d", f.Size), "%rsp")
	}
	for _, r := range saved {
		e.Ins("movq", reg64(r), b.mem(Location{Offset: f.CalleeSlot(r)}))
	}
}

func (b *amd64Backend) Epilogue(e *Emitter, f *Frame, saved []string) {
	for _, r := range saved {
		e.Ins("movq", b.mem(Location{Offset: f.CalleeSlot(r)}), reg64(r))
	}
	e.Ins("movq", "%rbp", "%rsp")
	e.Ins("popq", "%rbp")
	e.Ret("ret")
}

// IncomingArg copies parameter index into its slot. Stack parameters sit above the saved rbp and return address
func (b *amd64Backend) IncomingArg(e *Emitter, f *Frame, index int, loc Location) {
	if index < len(amd64ArgRegs) {
		e.Ins("movq", reg64(amd64ArgRegs[index]), b.mem(loc))
		return
	}
	off := 16 + 8*(index-len(amd64ArgRegs))
	e.Ins("movq", fmt.Sprintf("%d(%%rbp)", off), "%rax")
	e.Ins("movq", "%rax", b.mem(loc))
}

func (b *amd64Backend) LoadImm(e *Emitter, dst string, value int64) {
	if value < math.MinInt32 || value > math.MaxInt32 {
		e.Ins("movabsq", fmt.Sprintf("$%d", value), reg64(dst))
		return
	}
	e.Ins("movq", fmt.Sprintf("$%d", value), reg64(dst))
}

func (b *amd64Backend) Load(e *Emitter, f *Frame, dst string, loc Location) {
	e.Ins("movq", b.mem(loc), reg64(dst))
}

func (b *amd64Backend) Store(e *Emitter, f *Frame, src string, loc Location) {
	e.Ins("movq", reg64(src), b.mem(loc))
}

func (b *amd64Backend) Move(e *Emitter, dst, src string) {
	if dst == src {
		return
	}
	e.Ins("movq", reg64(src), reg64(dst))
}

func (b *amd64Backend) Binary(e *Emitter, op token.Type, dst, src string) bool {
	mn, ok := amd64Binary[op]
	if !ok {
		return false
	}
	e.Ins(mn, reg64(src), reg64(dst))
	return true
}

func (b *amd64Backend) Constrained(e *Emitter, op token.Type, left, right string) {
	switch op {
	case token.Star:
		e.Ins("imulq", reg64(right))
	case token.Slash, token.Rem:
		e.Ins("cqto")
		e.Ins("idivq", reg64(right))
	case token.Shl:
		e.Ins("salq", "%cl", reg64(left))
	case token.Shr:
		e.Ins("sarq", "%cl", reg64(left))
	default:
		panic(fmt.Sprintf("codegen: x86_64 has no constrained form for '%s'", op))
	}
}

func (b *amd64Backend) Unary(e *Emitter, op token.Type, dst string) bool {
	mn, ok := amd64Unary[op]
	if !ok {
		return false
	}
	e.Ins(mn, reg64(dst))
	return true
}

// BranchCompare jumps to target when left op right holds. AT&T cmp computes its second operand minus its first
func (b *amd64Backend) BranchCompare(e *Emitter, op token.Type, left, right, target string) bool {
	br, ok := amd64Branches[op]
	if !ok {
		return false
	}
	e.Ins("cmpq", reg64(right), reg64(left))
	e.Branch(br.Op, target)
	return true
}

func (b *amd64Backend) BranchZero(e *Emitter, reg, target string) {
	e.Ins("testq", reg64(reg), reg64(reg))
	e.Branch("je", target)
}

func (b *amd64Backend) BranchNonZero(e *Emitter, reg, target string) {
	e.Ins("testq", reg64(reg), reg64(reg))
	e.Branch("jne", target)
}

func (b *amd64Backend) Jump(e *Emitter, target string) { e.Jump("jmp", target) }

func (b *amd64Backend) SaveRegs(e *Emitter, f *Frame, regs []string) {
	for _, r := range regs {
		e.Ins("pushq", reg64(r))
		f.Depth++
	}
}

func (b *amd64Backend) RestoreRegs(e *Emitter, f *Frame, regs []string) {
	for i := len(regs) - 1; i >= 0; i-- {
		e.Ins("popq", reg64(regs[i]))
		f.Depth--
	}
}

// BeginCall keeps rsp 16-byte aligned at the call instruction once the stack arguments are pushed
func (b *amd64Backend) BeginCall(e *Emitter, f *Frame, stackArgs int) int {
	pad := (f.Depth + stackArgs) % 2
	if pad != 0 {
		e.Ins("subq", "$8", "%rsp")
		f.Depth += pad
	}
	return pad
}

func (b *amd64Backend) StackArg(e *Emitter, f *Frame, src Location, index int) {
	e.Ins("pushq", b.mem(src))
	f.Depth++
}

func (b *amd64Backend) Call(e *Emitter, f *Frame, sym string, stackArgs, pad int) {
	e.Ins("call", sym)
	if n := stackArgs + pad; n > 0 {
		e.Ins("addq", fmt.Sprintf("$%d", 8*n), "%rsp")
		f.Depth -= n
	}
}
