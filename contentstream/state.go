package contentstream

import (
	"github.com/wudi/pdfremedy/coords"
	"github.com/wudi/pdfremedy/ir/raw"
)

// GraphicsState is the subset of the PDF graphics state that affects
// geometry and fill color.
type GraphicsState struct {
	CTM coords.Matrix
	// FillOps are the operations that established the current fill color.
	FillOps []Operation
	Text    TextState

	stack []GraphicsState
}

func NewGraphicsState() *GraphicsState {
	return &GraphicsState{CTM: coords.Identity(), Text: TextState{Scale: 100}}
}

func (gs *GraphicsState) Save() {
	clone := *gs
	clone.stack = nil
	clone.FillOps = append([]Operation(nil), gs.FillOps...)
	gs.stack = append(gs.stack, clone)
}

// Restore pops the saved state. An unbalanced Q is ignored.
func (gs *GraphicsState) Restore() {
	n := len(gs.stack)
	if n == 0 {
		return
	}
	stack := gs.stack[:n-1]
	*gs = gs.stack[n-1]
	gs.stack = stack
}

// Depth is the current q nesting level.
func (gs *GraphicsState) Depth() int { return len(gs.stack) }

// TextState holds text parameters. Font is the resource name.
type TextState struct {
	Font     string
	Size     float64
	CharSp   float64
	WordSp   float64
	Scale    float64 // Tz, percent
	Leading  float64
	Rise     float64
	Matrix   coords.Matrix
	Line     coords.Matrix
	InObject bool
}

func (ts *TextState) begin() {
	ts.Matrix = coords.Identity()
	ts.Line = coords.Identity()
	ts.InObject = true
}

func (ts *TextState) moveLine(tx, ty float64) {
	ts.Line = coords.Translate(tx, ty).Multiply(ts.Line)
	ts.Matrix = ts.Line
}

func (gs *GraphicsState) setFill(op Operation) {
	switch op.Operator {
	case "cs":
		gs.FillOps = []Operation{op}
	case "sc", "scn":
		if len(gs.FillOps) > 0 && gs.FillOps[0].Operator == "cs" {
			gs.FillOps = []Operation{gs.FillOps[0], op}
			return
		}
		gs.FillOps = []Operation{op}
	default:
		gs.FillOps = []Operation{op}
	}
}

func number(o raw.Object) float64 {
	if n, ok := o.(raw.NumberObj); ok {
		return n.Float()
	}
	return 0
}

func numbers(ops []raw.Object, n int) ([]float64, bool) {
	if len(ops) < n {
		return nil, false
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v, ok := ops[len(ops)-n+i].(raw.NumberObj)
		if !ok {
			return nil, false
		}
		out[i] = v.Float()
	}
	return out, true
}

func matrixOf(v []float64) coords.Matrix {
	return coords.Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
}
