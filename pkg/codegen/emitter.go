package codegen

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

type lineKind int

const (
	lineInstr lineKind = iota
	lineLabel
	lineDirective
	lineComment
)

// Line is one line of assembly. Branches remember their target so the peephole pass can reason about them
type Line struct {
	Kind   lineKind
	Op     string
	Args   string
	Target string
	Jump   bool // control never falls through to the next line
}

func (l Line) String() string {
	switch l.Kind {
	case lineLabel:
		return l.Op + ":"
	case lineComment:
		return "\t# " + l.Op
	}
	if l.Args == "" {
		return "\t" + l.Op
	}
	return fmt.Sprintf("\t%-7s %s", l.Op, l.Args)
}

// Emitter accumulates assembly lines for one function or for the whole unit
type Emitter struct {
	lines []Line
}

func (e *Emitter) Ins(op string, operands ...string) {
	e.lines = append(e.lines, Line{Kind: lineInstr, Op: op, Args: strings.Join(operands, ", ")})
}

// Branch emits a conditional transfer whose last operand is target
func (e *Emitter) Branch(op, target string, operands ...string) {
	args := strings.Join(append(operands, target), ", ")
	e.lines = append(e.lines, Line{Kind: lineInstr, Op: op, Args: args, Target: target})
}

// Jump emits an unconditional transfer to target
func (e *Emitter) Jump(op, target string) {
	e.lines = append(e.lines, Line{Kind: lineInstr, Op: op, Args: target, Target: target, Jump: true})
}

func (e *Emitter) Ret(op string) {
	e.lines = append(e.lines, Line{Kind: lineInstr, Op: op, Jump: true})
}

func (e *Emitter) Label(name string) {
	e.lines = append(e.lines, Line{Kind: lineLabel, Op: name})
}

func (e *Emitter) Directive(name string, args ...string) {
	e.lines = append(e.lines, Line{Kind: lineDirective, Op: name, Args: strings.Join(args, ", ")})
}

func (e *Emitter) Comment(format string, args ...interface{}) {
	e.lines = append(e.lines, Line{Kind: lineComment, Op: fmt.Sprintf(format, args...)})
}

func (e *Emitter) Append(other *Emitter) {
	e.lines = append(e.lines, other.lines...)
}

func (e *Emitter) Lines() []Line { return e.lines }
func (e *Emitter) Len() int      { return len(e.lines) }

// Instructions returns the rendered instruction lines only, without labels, directives or comments
func (e *Emitter) Instructions() []string {
	var out []string
	for _, l := range e.lines {
		if l.Kind == lineInstr {
			out = append(out, strings.TrimSpace(l.String()))
		}
	}
	return out
}

func (e *Emitter) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	for _, l := range e.lines {
		buf.WriteString(l.String())
		buf.WriteByte('\n')
	}
	return buf.WriteTo(w)
}

func (e *Emitter) String() string {
	var sb strings.Builder
	e.WriteTo(&sb)
	return sb.String()
}
