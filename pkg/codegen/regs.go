package codegen

import "fmt"

// Reg is an index into the active backend's scratch pool
type Reg int

const NoReg Reg = -1

type regState int

const (
	rFree regState = iota
	rUsed
)

// RegInfo describes one scratch register of a backend
type RegInfo struct {
	Name        string
	CalleeSaved bool
}

// RegisterAllocator tracks the scratch pool of the function being lowered.
// There is no spilling: running out of registers is reported to the caller.
type RegisterAllocator struct {
	pool    []RegInfo
	state   []regState
	touched []bool
	current int
	peak    int
}

func NewRegisterAllocator(pool []RegInfo) *RegisterAllocator {
	return &RegisterAllocator{
		pool:    pool,
		state:   make([]regState, len(pool)),
		touched: make([]bool, len(pool)),
	}
}

// Alloc takes the first free register in pool order
func (a *RegisterAllocator) Alloc() (Reg, error) {
	for i, s := range a.state {
		if s == rFree {
			a.state[i] = rUsed
			a.touched[i] = true
			a.current++
			if a.current > a.peak {
				a.peak = a.current
			}
			return Reg(i), nil
		}
	}
	return NoReg, ErrRegisterExhausted
}

// Free returns r to the pool. Freeing a register that is not in use is a compiler bug
func (a *RegisterAllocator) Free(r Reg) {
	if r < 0 || int(r) >= len(a.state) {
		panic(fmt.Sprintf("codegen: free of invalid scratch register %d", int(r)))
	}
	if a.state[r] != rUsed {
		panic(fmt.Sprintf("codegen: double free of scratch register %s", a.pool[r].Name))
	}
	a.state[r] = rFree
	a.current--
}

func (a *RegisterAllocator) Name(r Reg) string {
	if r < 0 || int(r) >= len(a.pool) {
		panic(fmt.Sprintf("codegen: no scratch register %d", int(r)))
	}
	return a.pool[r].Name
}

func (a *RegisterAllocator) Size() int  { return len(a.pool) }
func (a *RegisterAllocator) InUse() int { return a.current }
func (a *RegisterAllocator) Peak() int  { return a.peak }

func (a *RegisterAllocator) IsLive(r Reg) bool {
	return r >= 0 && int(r) < len(a.state) && a.state[r] == rUsed
}

// CallerSavedLive lists the live registers a call would destroy, skipping the ones in except
func (a *RegisterAllocator) CallerSavedLive(except ...Reg) []string {
	var out []string
	for i, s := range a.state {
		if s != rUsed || a.pool[i].CalleeSaved || containsReg(except, Reg(i)) {
			continue
		}
		out = append(out, a.pool[i].Name)
	}
	return out
}

// Live lists the names of the registers in use, skipping the ones in except
func (a *RegisterAllocator) Live(except ...Reg) []string {
	var out []string
	for i, s := range a.state {
		if s == rUsed && !containsReg(except, Reg(i)) {
			out = append(out, a.pool[i].Name)
		}
	}
	return out
}

// TouchedCalleeSaved lists the callee-saved registers used at least once, in pool order
func (a *RegisterAllocator) TouchedCalleeSaved() []string {
	var out []string
	for i, info := range a.pool {
		if a.touched[i] && info.CalleeSaved {
			out = append(out, info.Name)
		}
	}
	return out
}

func containsReg(regs []Reg, r Reg) bool {
	for _, x := range regs {
		if x == r {
			return true
		}
	}
	return false
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
