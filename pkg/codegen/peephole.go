package codegen

// Peephole returns a copy of e without code that can never run after an unconditional jump,
// and without jumps to the label that immediately follows them
func Peephole(e *Emitter) *Emitter {
	out := &Emitter{}
	lines := e.Lines()
	for i := 0; i < len(lines); i++ {
		l := lines[i]
		out.lines = append(out.lines, l)
		if l.Kind != lineInstr || !l.Jump {
			continue
		}

		j := i + 1
		for j < len(lines) && (lines[j].Kind == lineInstr || lines[j].Kind == lineComment) {
			j++
		}
		if l.Target != "" && j < len(lines) && lines[j].Kind == lineLabel && lines[j].Op == l.Target {
			out.lines = out.lines[:len(out.lines)-1]
		}
		i = j - 1
	}
	return out
}
