package codegen

import "fmt"

// Label identifies a control-flow target within one compilation
type Label int

// LabelAllocator hands out compilation-wide unique labels. The prefix keeps them out of the symbol namespace
type LabelAllocator struct {
	next   int
	prefix string
}

func NewLabelAllocator(prefix string) *LabelAllocator {
	return &LabelAllocator{prefix: prefix}
}

func (a *LabelAllocator) Create() Label {
	l := Label(a.next)
	a.next++
	return l
}

func (a *LabelAllocator) Name(l Label) string { return fmt.Sprintf("%s%d", a.prefix, int(l)) }

// Count is the number of labels created so far
func (a *LabelAllocator) Count() int { return a.next }
