package extractor

import (
	"math"
	"strings"

	"github.com/wudi/pdfremedy/contentstream"
	"github.com/wudi/pdfremedy/fonts"
	"github.com/wudi/pdfremedy/ir/semantic"
)

// pathConstruction lists operators that build or clip the current path.
// A vector unit starts at the first of them so marked content never splits
// a path object.
var pathConstruction = map[string]bool{
	"m": true, "l": true, "c": true, "v": true, "y": true, "h": true, "re": true,
	"W": true, "W*": true,
}

// vectorBreakers end a run of merged vector paints.
var vectorBreakers = map[string]bool{
	"q": true, "Q": true, "BT": true, "ET": true, "BI": true, "Do": true,
}

// groupUnits turns traced operations into units. Consecutive shows of one
// text object with the same font and size that continue on the same
// baseline merge into one text run; consecutive path paints and shadings
// merge into one vector graphic; every XObject and inline image is a unit
// of its own. Artifact content yields no units, and no unit spans a
// marked-content boundary.
func groupUnits(trace []contentstream.OpInfo, ops []contentstream.Operation, artifact []bool, res *resources) []semantic.Unit {
	var units []semantic.Unit
	var cur *semantic.Unit
	pathStart := -1
	// breakVector is set when an operator since the last vector unit forbids
	// merging into it.
	breakVector := true

	flush := func() {
		if cur != nil {
			cur.ID = len(units)
			if cur.Kind == semantic.UnitText {
				cur.Text = strings.TrimSpace(cur.Text)
				cur.Script = fonts.ScriptName(fonts.DominantScript(cur.Text))
			}
			units = append(units, *cur)
			cur = nil
		}
	}

	for i, info := range trace {
		op := ops[i].Operator
		if contentstream.IsMarkedContent(op) {
			flush()
			breakVector = true
			pathStart = -1
			continue
		}
		if i < len(artifact) && artifact[i] {
			continue
		}
		if pathConstruction[op] && pathStart < 0 {
			pathStart = i
		}
		if vectorBreakers[op] {
			breakVector = true
		}
		if !info.Kind.Drawing() {
			if op == "n" {
				pathStart = -1
			}
			continue
		}

		switch info.Kind {
		case contentstream.KindText:
			if cur != nil && cur.Kind == semantic.UnitText && continues(cur, info) {
				gap := info.Start.X - cur.End.X
				if gap > 0.15*sizeOf(info) && !strings.HasSuffix(cur.Text, " ") && !strings.HasPrefix(info.Text, " ") {
					cur.Text += " "
				}
				cur.Text += info.Text
				cur.OpEnd = i + 1
				cur.BBox = cur.BBox.Union(info.BBox)
				cur.End = info.End
				continue
			}
			flush()
			cur = &semantic.Unit{
				Kind:          semantic.UnitText,
				BBox:          info.BBox,
				OpStart:       i,
				OpEnd:         i + 1,
				Text:          info.Text,
				Font:          info.Font,
				BaseFont:      res.baseFont(info.Font),
				FontSize:      info.FontSize,
				EffectiveSize: info.EffectiveSize,
				Bold:          info.Bold,
				Start:         info.Start,
				End:           info.End,
				TextObject:    info.TextObject,
			}

		case contentstream.KindPath, contentstream.KindShading:
			start := i
			if info.Kind == contentstream.KindPath && pathStart >= 0 {
				start = pathStart
			}
			pathStart = -1
			if cur != nil && cur.Kind == semantic.UnitVector && !breakVector {
				cur.OpEnd = i + 1
				cur.BBox = cur.BBox.Union(info.BBox)
				continue
			}
			flush()
			cur = &semantic.Unit{Kind: semantic.UnitVector, BBox: info.BBox, OpStart: start, OpEnd: i + 1}
			breakVector = false

		case contentstream.KindImage, contentstream.KindInlineImage:
			flush()
			cur = &semantic.Unit{Kind: semantic.UnitImage, BBox: info.BBox, OpStart: i, OpEnd: i + 1, XObject: info.XObject}
			flush()

		case contentstream.KindForm:
			flush()
			cur = &semantic.Unit{Kind: semantic.UnitForm, BBox: info.BBox, OpStart: i, OpEnd: i + 1, XObject: info.XObject}
			flush()
		}
	}
	flush()
	return units
}

func sizeOf(info contentstream.OpInfo) float64 {
	if info.EffectiveSize > 0 {
		return info.EffectiveSize
	}
	return math.Abs(info.FontSize)
}

// continues reports whether a show operation extends the text run cur.
func continues(cur *semantic.Unit, info contentstream.OpInfo) bool {
	if info.TextObject != cur.TextObject || info.Font != cur.Font || info.FontSize != cur.FontSize {
		return false
	}
	size := sizeOf(info)
	if size == 0 {
		size = 1
	}
	if math.Abs(info.Start.Y-cur.End.Y) > 0.25*size {
		return false
	}
	dx := info.Start.X - cur.End.X
	return dx >= -0.5*size && dx <= 1.5*size
}
