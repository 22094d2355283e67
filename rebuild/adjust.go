package rebuild

import (
	"github.com/wudi/pdfremedy/contentstream"
	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/ir/semantic"
)

// fillOperators set the nonstroking color.
var fillOperators = map[string]bool{"g": true, "rg": true, "k": true, "cs": true, "sc": true, "scn": true}

// adjustment rewrites the color and font size of one text unit. Colors
// are replaced for the duration of the unit and the fill color in effect
// at its end is restored afterwards; enlarged text uses a scaled Tf size
// and the original Tf is restored after the unit.
type adjustment struct {
	unit    *semantic.Unit
	color   *semantic.RGB
	fill    []contentstream.Operation
	tfSize  float64
	tfFont  string
	origTf  float64
	enlarge bool
}

func newAdjustment(p *semantic.Page, u *semantic.Unit) *adjustment {
	a := &adjustment{unit: u}
	if u.Kind != semantic.UnitText {
		return a
	}
	attrs := p.AttrsOf(u.ID)
	if attrs.Color != nil {
		a.color = attrs.Color
		if last := u.OpEnd - 1; last >= 0 && last < len(p.Trace) {
			a.fill = append([]contentstream.Operation(nil), p.Trace[last].FillOps...)
		}
	}
	if attrs.MinFontSize > 0 && u.EffectiveSize > 0 && u.EffectiveSize < attrs.MinFontSize &&
		u.FontSize != 0 && u.Font != "" {
		a.enlarge = true
		a.tfFont = u.Font
		a.origTf = u.FontSize
		a.tfSize = u.FontSize * attrs.MinFontSize / u.EffectiveSize
	}
	return a
}

func (a *adjustment) colorOp() contentstream.Operation {
	c := a.color
	return contentstream.Op("rg", num(c.R), num(c.G), num(c.B))
}

func (a *adjustment) tf(size float64) contentstream.Operation {
	return contentstream.Op("Tf", raw.Name(a.tfFont), num(size))
}

// before returns the operations emitted ahead of the unit's first op.
func (a *adjustment) before() []contentstream.Operation {
	var ops []contentstream.Operation
	if a.color != nil {
		ops = append(ops, a.colorOp())
	}
	if a.enlarge {
		ops = append(ops, a.tf(a.tfSize))
	}
	return ops
}

// after re-applies the adjustment when an operation inside the unit resets
// the fill color or the font.
func (a *adjustment) after(op contentstream.Operation) []contentstream.Operation {
	switch {
	case a.color != nil && fillOperators[op.Operator]:
		return []contentstream.Operation{a.colorOp()}
	case a.enlarge && op.Operator == "Tf" && len(op.Operands) == 2:
		if n, ok := op.Operands[0].(raw.NameObj); ok && n.Val == a.tfFont {
			return []contentstream.Operation{a.tf(a.tfSize)}
		}
	}
	return nil
}

// restore returns the operations that undo the adjustment.
func (a *adjustment) restore() []contentstream.Operation {
	var ops []contentstream.Operation
	if a.color != nil {
		if len(a.fill) > 0 {
			ops = append(ops, a.fill...)
		} else {
			ops = append(ops, contentstream.Op("g", raw.Int(0)))
		}
	}
	if a.enlarge {
		ops = append(ops, a.tf(a.origTf))
	}
	return ops
}

func num(v float64) raw.NumberObj {
	if v == float64(int64(v)) {
		return raw.Int(int64(v))
	}
	return raw.Real(v)
}
