package codegen

import (
	"fmt"

	"github.com/xplshn/ledc/pkg/ast"
	"github.com/xplshn/ledc/pkg/token"
	"github.com/xplshn/ledc/pkg/util"
)

type SymbolKind int

const (
	SymGlobal SymbolKind = iota
	SymLocal
	SymParam
	SymFunc
)

func (k SymbolKind) String() string {
	switch k {
	case SymGlobal:
		return "global"
	case SymLocal:
		return "local"
	case SymParam:
		return "parameter"
	case SymFunc:
		return "function"
	}
	return fmt.Sprintf("SymbolKind(%d)", int(k))
}

// Location is where a variable lives: a named global, or a signed offset from the frame base
type Location struct {
	Global string
	Offset int
}

func (l Location) IsGlobal() bool { return l.Global != "" }

type Symbol struct {
	Name   string
	Kind   SymbolKind
	Target string // assembler symbol for globals and functions
	Offset int    // frame offset for locals and parameters
	Index  int    // position in the parameter list
	Arity  int    // parameter count for functions
	Node   *ast.Node
	Next   *Symbol
}

func (s *Symbol) Location() Location {
	if s.Kind == SymGlobal || s.Kind == SymFunc {
		return Location{Global: s.Target}
	}
	return Location{Offset: s.Offset}
}

type Scope struct {
	Symbols *Symbol
	Parent  *Scope
}

func newScope(parent *Scope) *Scope { return &Scope{Parent: parent} }

func (s *Scope) Bind(sym *Symbol) {
	sym.Next = s.Symbols
	s.Symbols = sym
}

func (s *Scope) Lookup(name string) *Symbol {
	for sc := s; sc != nil; sc = sc.Parent {
		for sym := sc.Symbols; sym != nil; sym = sym.Next {
			if sym.Name == name {
				return sym
			}
		}
	}
	return nil
}

func (s *Scope) LookupLocal(name string) *Symbol {
	for sym := s.Symbols; sym != nil; sym = sym.Next {
		if sym.Name == name {
			return sym
		}
	}
	return nil
}

// Resolve is Lookup that fails with UndefinedSymbol
func (s *Scope) Resolve(name string, tok token.Token) (*Symbol, error) {
	if sym := s.Lookup(name); sym != nil {
		return sym, nil
	}
	return nil, newError(UndefinedSymbol, tok, name, "", "")
}

// Frame describes one function's stack frame. Slots grow downward from the frame
// base, below the backend's header words:
//
//	header | params and locals | callee-saved saves | caller-save area | staged args | padding | outgoing args
type Frame struct {
	Name     string
	Symbols  []*Symbol
	Size     int
	Depth    int // words pushed below the frame during a call sequence
	Staged   int // staging words held by the call sequences being lowered
	wordSize int
	header   int
	callee   []string
	saveArea int
	staging  int
	outgoing int
	laidOut  bool
}

func NewFrame(name string, wordSize, header int) *Frame {
	return &Frame{Name: name, wordSize: wordSize, header: header}
}

// Declare assigns the next free slot to name
func (f *Frame) Declare(name string, kind SymbolKind) *Symbol {
	if f.laidOut {
		panic(fmt.Sprintf("codegen: declaration of '%s' after frame of '%s' was laid out", name, f.Name))
	}
	sym := &Symbol{Name: name, Kind: kind, Offset: f.slotOffset(len(f.Symbols))}
	f.Symbols = append(f.Symbols, sym)
	return sym
}

func (f *Frame) slotOffset(i int) int { return -(f.header + i + 1) * f.wordSize }

// Layout fixes the frame size once all slots are declared
func (f *Frame) Layout(calleeSaved []string, saveArea, staging, outgoing, align int) {
	f.callee = calleeSaved
	f.saveArea = saveArea
	f.staging = staging
	f.outgoing = outgoing
	words := f.header + len(f.Symbols) + len(f.callee) + f.saveArea + f.staging + f.outgoing
	f.Size = util.AlignUp(words*f.wordSize, align)
	f.laidOut = true
}

func (f *Frame) count(kind SymbolKind) int {
	n := 0
	for _, s := range f.Symbols {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

func (f *Frame) Locals() int { return f.count(SymLocal) }
func (f *Frame) Params() int { return f.count(SymParam) }

// CalleeSlot is the frame offset where a callee-saved register is preserved
func (f *Frame) CalleeSlot(reg string) int {
	for i, r := range f.callee {
		if r == reg {
			return f.slotOffset(len(f.Symbols) + i)
		}
	}
	panic(fmt.Sprintf("codegen: no save slot for %s in frame of '%s'", reg, f.Name))
}

// SaveSlot is the frame offset of the k-th word of the caller-save area
func (f *Frame) SaveSlot(k int) int {
	if k < 0 || k >= f.saveArea {
		panic(fmt.Sprintf("codegen: caller-save slot %d out of range in frame of '%s'", k, f.Name))
	}
	return f.slotOffset(len(f.Symbols) + len(f.callee) + k)
}

// StageSlot is the frame offset of the k-th staging word, where a call with more
// arguments than argument registers keeps each argument until all are lowered
func (f *Frame) StageSlot(k int) int {
	if k < 0 || k >= f.staging {
		panic(fmt.Sprintf("codegen: staging slot %d out of range in frame of '%s'", k, f.Name))
	}
	return f.slotOffset(len(f.Symbols) + len(f.callee) + f.saveArea + k)
}

// OutgoingSlot is the frame offset of the k-th outgoing stack argument, at the bottom of the frame
func (f *Frame) OutgoingSlot(k int) int {
	if k < 0 || k >= f.outgoing {
		panic(fmt.Sprintf("codegen: outgoing argument %d out of range in frame of '%s'", k, f.Name))
	}
	return -f.Size + k*f.wordSize
}
