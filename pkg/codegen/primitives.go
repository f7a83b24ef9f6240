package codegen

import (
	"github.com/xplshn/ledc/pkg/ast"
	"github.com/xplshn/ledc/pkg/config"
	"github.com/xplshn/ledc/pkg/util"
)

// The LED matrix is 8x8; coordinates are column then row
const matrixSize = 8

// primitiveInfo is one row of the runtime entry-point contract
type primitiveInfo struct {
	Entry    string
	Arity    []int
	Timed    bool   // entry point takes a _mil, _seg or _min suffix
	Hardware bool   // only the board runtime provides the entry point
	SimEntry string // host runtime stand-in, used with -Fsim-hw
	Coords   bool   // first two arguments address an LED
}

var primitives = [ast.PrimCount]primitiveInfo{
	ast.PrimPrintLed:     {Entry: "builtin_printled", Arity: []int{3}, Coords: true},
	ast.PrimBlink:        {Entry: "builtin_blink", Arity: []int{4}, Timed: true, Coords: true},
	ast.PrimDelay:        {Entry: "builtin_delay", Arity: []int{1}, Timed: true},
	ast.PrimDebug:        {Entry: "builtin_debug", Arity: []int{0, 1}},
	ast.PrimPutc:         {Entry: "builtin_putc", Arity: []int{1}},
	ast.PrimDigitalWrite: {Entry: "builtin_digital_write", Arity: []int{2}, Hardware: true, SimEntry: "builtin_sim_digital_write"},
	ast.PrimShiftOut:     {Entry: "builtin_shift_out", Arity: []int{2}, Hardware: true, SimEntry: "builtin_sim_shift_out"},
}

var unitSuffixes = map[ast.TimeUnit]string{
	ast.UnitNone:    "_mil",
	ast.UnitMillis:  "_mil",
	ast.UnitSeconds: "_seg",
	ast.UnitMinutes: "_min",
}

// primitiveCall recognizes a call statement naming a primitive no user declaration shadows
func (ctx *Context) primitiveCall(node *ast.Node) (*ast.Node, bool) {
	if node.Type != ast.FuncCall {
		return nil, false
	}
	d := node.Data.(ast.FuncCallNode)
	kind, ok := ast.PrimitiveNames[d.Name]
	if !ok || ctx.fn.scope.Lookup(d.Name) != nil {
		return nil, false
	}
	return ast.NewPrimitive(node.Tok, kind, ast.UnitNone, d.Args), true
}

// PrimitiveEntry resolves the runtime routine a primitive statement calls on the given backend.
// It emits nothing, so a rejected primitive leaves no trace in the output
func PrimitiveEntry(cfg *config.Config, b Backend, node *ast.Node) (string, error) {
	d := node.Data.(ast.PrimitiveNode)
	if d.Kind < 0 || d.Kind >= ast.PrimCount {
		return "", newError(UnsupportedConstruct, node.Tok, "", "primitive", "unknown primitive %d", int(d.Kind))
	}
	info := primitives[d.Kind]
	name := d.Kind.String()

	arityOK := false
	for _, n := range info.Arity {
		arityOK = arityOK || n == len(d.Args)
	}
	if !arityOK {
		return "", newError(ArgumentCountMismatch, node.Tok, name, "primitive", "expected %d arguments, got %d", info.Arity[len(info.Arity)-1], len(d.Args))
	}

	entry := info.Entry
	if info.Hardware && !b.Hardware() {
		if !cfg.IsFeatureEnabled(config.FeatSimulateHardware) {
			return "", newError(UnsupportedConstruct, node.Tok, name, "primitive", "only available on the %s target", config.PlatformESP8266)
		}
		entry = info.SimEntry
	}

	switch {
	case info.Timed:
		entry += unitSuffixes[d.Unit]
	case d.Kind == ast.PrimDebug && len(d.Args) == 1:
		if ast.TypeOf(d.Args[0]).Kind == ast.TYPE_BOOL {
			entry += "_bool"
		} else {
			entry += "_int"
		}
	}
	return b.Symbol(entry), nil
}

func (ctx *Context) codegenPrimitive(node *ast.Node) error {
	entry, err := PrimitiveEntry(ctx.cfg, ctx.backend, node)
	if err != nil {
		return err
	}

	d := node.Data.(ast.PrimitiveNode)
	if primitives[d.Kind].Coords {
		for i, axis := range []string{"column", "row"} {
			if v, ok := ast.ConstValue(d.Args[i]); ok && (v < 0 || v >= matrixSize) {
				util.Warn(ctx.cfg, config.WarnExtra, d.Args[i].Tok, "LED %s %d is outside the %dx%d matrix", axis, v, matrixSize, matrixSize)
			}
		}
	}

	r, err := ctx.emitCall(node, entry, d.Args)
	if err != nil {
		return err
	}
	ctx.free(r)
	return nil
}
