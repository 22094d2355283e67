package contentstream

import (
	"math"
	"strings"

	"github.com/wudi/pdfremedy/coords"
	"github.com/wudi/pdfremedy/fonts"
	"github.com/wudi/pdfremedy/ir/raw"
)

// OpKind classifies what an operation draws.
type OpKind int

const (
	KindNone OpKind = iota
	KindText
	KindImage
	KindForm
	KindInlineImage
	KindPath
	KindShading
)

func (k OpKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindForm:
		return "form"
	case KindInlineImage:
		return "inline-image"
	case KindPath:
		return "path"
	case KindShading:
		return "shading"
	}
	return "none"
}

// Drawing reports whether operations of this kind put marks on the page.
func (k OpKind) Drawing() bool { return k != KindNone }

// OpInfo describes the geometry of one operation.
type OpInfo struct {
	Kind OpKind
	BBox coords.Rect

	// Text operations only.
	Font          string
	FontSize      float64 // Tf operand
	EffectiveSize float64 // FontSize scaled by the text rendering matrix
	Bold          bool
	Text          string
	Start, End    coords.Point // baseline endpoints in user space
	TextObject    int          // 1-based BT...ET ordinal

	XObject string
	FillOps []Operation
}

// XObjectInfo describes a named XObject resource.
type XObjectInfo struct {
	Subtype string // Image or Form
	BBox    coords.Rect
	Matrix  coords.Matrix
}

// Tracer walks operations maintaining the graphics state.
type Tracer struct {
	Fonts    func(name string) *fonts.Metrics
	XObjects func(name string) (XObjectInfo, bool)
	PageBox  coords.Rect
}

// Trace returns one OpInfo per operation.
func (t *Tracer) Trace(ops []Operation) []OpInfo {
	infos := make([]OpInfo, len(ops))
	gs := NewGraphicsState()
	var path coords.Rect
	var hasPath bool
	textObjects := 0
	metrics := map[string]*fonts.Metrics{}
	font := func(name string) *fonts.Metrics {
		if m, ok := metrics[name]; ok {
			return m
		}
		var m *fonts.Metrics
		if t.Fonts != nil {
			m = t.Fonts(name)
		}
		if m == nil {
			m = fonts.Load(raw.NewDocument(""), nil)
		}
		metrics[name] = m
		return m
	}
	addPoint := func(x, y float64) {
		p := gs.CTM.Transform(coords.Point{X: x, Y: y})
		r := coords.Rect{X0: p.X, Y0: p.Y, X1: p.X, Y1: p.Y}
		if !hasPath {
			path, hasPath = r, true
			return
		}
		path.X0, path.Y0 = math.Min(path.X0, p.X), math.Min(path.Y0, p.Y)
		path.X1, path.Y1 = math.Max(path.X1, p.X), math.Max(path.Y1, p.Y)
	}

	for i, op := range ops {
		info := &infos[i]
		args := op.Operands
		switch op.Operator {
		case "q":
			gs.Save()
		case "Q":
			gs.Restore()
		case "cm":
			if v, ok := numbers(args, 6); ok {
				gs.CTM = matrixOf(v).Multiply(gs.CTM)
			}
		case "g", "rg", "k", "cs", "sc", "scn":
			gs.setFill(op)

		case "BT":
			textObjects++
			gs.Text.begin()
		case "ET":
			gs.Text.InObject = false
		case "Tf":
			if len(args) == 2 {
				if n, ok := args[0].(raw.NameObj); ok {
					gs.Text.Font = n.Val
				}
				gs.Text.Size = number(args[1])
			}
		case "Tc":
			if v, ok := numbers(args, 1); ok {
				gs.Text.CharSp = v[0]
			}
		case "Tw":
			if v, ok := numbers(args, 1); ok {
				gs.Text.WordSp = v[0]
			}
		case "Tz":
			if v, ok := numbers(args, 1); ok {
				gs.Text.Scale = v[0]
			}
		case "TL":
			if v, ok := numbers(args, 1); ok {
				gs.Text.Leading = v[0]
			}
		case "Ts":
			if v, ok := numbers(args, 1); ok {
				gs.Text.Rise = v[0]
			}
		case "Td":
			if v, ok := numbers(args, 2); ok {
				gs.Text.moveLine(v[0], v[1])
			}
		case "TD":
			if v, ok := numbers(args, 2); ok {
				gs.Text.Leading = -v[1]
				gs.Text.moveLine(v[0], v[1])
			}
		case "Tm":
			if v, ok := numbers(args, 6); ok {
				gs.Text.Line = matrixOf(v)
				gs.Text.Matrix = gs.Text.Line
			}
		case "T*":
			gs.Text.moveLine(0, -gs.Text.Leading)

		case "Tj", "TJ", "'", "\"":
			if op.Operator == "'" || op.Operator == "\"" {
				if op.Operator == "\"" {
					if v, ok := numbers(args[:min(2, len(args))], 2); ok {
						gs.Text.WordSp, gs.Text.CharSp = v[0], v[1]
					}
				}
				gs.Text.moveLine(0, -gs.Text.Leading)
			}
			t.showText(info, gs, font(gs.Text.Font), args)
			info.TextObject = textObjects

		case "Do":
			if len(args) == 1 {
				name, _ := args[0].(raw.NameObj)
				t.traceXObject(info, gs, name.Val)
			}
		case "BI":
			info.Kind = KindInlineImage
			info.BBox = coords.Rect{X1: 1, Y1: 1}.Transform(gs.CTM)
		case "sh":
			info.Kind = KindShading
			info.BBox = t.PageBox
			if info.BBox.Empty() {
				info.BBox = coords.Rect{X1: 1, Y1: 1}.Transform(gs.CTM)
			}

		case "m", "l":
			if v, ok := numbers(args, 2); ok {
				addPoint(v[0], v[1])
			}
		case "c":
			if v, ok := numbers(args, 6); ok {
				addPoint(v[0], v[1])
				addPoint(v[2], v[3])
				addPoint(v[4], v[5])
			}
		case "v", "y":
			if v, ok := numbers(args, 4); ok {
				addPoint(v[0], v[1])
				addPoint(v[2], v[3])
			}
		case "re":
			if v, ok := numbers(args, 4); ok {
				addPoint(v[0], v[1])
				addPoint(v[0]+v[2], v[1]+v[3])
				addPoint(v[0]+v[2], v[1])
				addPoint(v[0], v[1]+v[3])
			}
		case "S", "s", "f", "F", "f*", "B", "B*", "b", "b*":
			info.Kind = KindPath
			info.BBox = path
			hasPath = false
			path = coords.Rect{}
		case "n":
			hasPath = false
			path = coords.Rect{}
		}
		if info.Kind.Drawing() {
			info.FillOps = gs.FillOps
		}
	}
	return infos
}

// showText advances the text matrix over a shown string and records its
// extent. Glyph boxes span from 0.2 em below the baseline to 0.8 em above.
func (t *Tracer) showText(info *OpInfo, gs *GraphicsState, m *fonts.Metrics, args []raw.Object) {
	ts := &gs.Text
	th := ts.Scale / 100
	var text strings.Builder
	var parts []raw.Object
	if len(args) > 0 {
		last := args[len(args)-1]
		if arr, ok := last.(*raw.ArrayObj); ok {
			parts = arr.Items
		} else {
			parts = []raw.Object{last}
		}
	}
	render := ts.Matrix.Multiply(gs.CTM)
	start := render.Transform(coords.Point{X: 0, Y: ts.Rise})
	var box coords.Rect
	advance := func(tx float64) {
		ts.Matrix = coords.Translate(tx, 0).Multiply(ts.Matrix)
	}
	for _, p := range parts {
		switch v := p.(type) {
		case raw.StringObj:
			for _, g := range m.Decode(v.Bytes) {
				tx := (g.Width/1000*ts.Size + ts.CharSp) * th
				if g.Space {
					tx += ts.WordSp * th
				}
				glyph := coords.Rect{X0: 0, Y0: ts.Rise - 0.2*ts.Size, X1: g.Width / 1000 * ts.Size * th, Y1: ts.Rise + 0.8*ts.Size}
				box = box.Union(glyph.Transform(ts.Matrix.Multiply(gs.CTM)))
				text.WriteString(g.Text)
				advance(tx)
			}
		case raw.NumberObj:
			adj := v.Float()
			if adj < -250 && text.Len() > 0 && !strings.HasSuffix(text.String(), " ") {
				// Large negative kerning is how many producers encode word gaps.
				text.WriteByte(' ')
			}
			advance(-adj / 1000 * ts.Size * th)
		}
	}
	end := ts.Matrix.Multiply(gs.CTM).Transform(coords.Point{X: 0, Y: ts.Rise})
	info.Kind = KindText
	info.BBox = box
	info.Font = ts.Font
	info.FontSize = ts.Size
	info.EffectiveSize = ts.Size * render.ScaleY()
	info.Bold = m.Bold
	info.Text = text.String()
	info.Start = start
	info.End = end
}

func (t *Tracer) traceXObject(info *OpInfo, gs *GraphicsState, name string) {
	xo := XObjectInfo{Subtype: "Image"}
	if t.XObjects != nil {
		if v, ok := t.XObjects(name); ok {
			xo = v
		}
	}
	info.XObject = name
	switch xo.Subtype {
	case "Form":
		info.Kind = KindForm
		bbox := xo.BBox
		if bbox.Empty() {
			bbox = coords.Rect{X1: 1, Y1: 1}
		}
		m := xo.Matrix
		if m == (coords.Matrix{}) {
			m = coords.Identity()
		}
		info.BBox = bbox.Transform(m.Multiply(gs.CTM))
	case "PS":
		// PostScript XObjects are ignored by viewers.
	default:
		info.Kind = KindImage
		info.BBox = coords.Rect{X1: 1, Y1: 1}.Transform(gs.CTM)
	}
}
