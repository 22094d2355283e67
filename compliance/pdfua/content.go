package pdfua

import (
	"context"
	"fmt"
	"sort"

	"github.com/wudi/pdfremedy/contentstream"
	"github.com/wudi/pdfremedy/coords"
	"github.com/wudi/pdfremedy/extractor"
	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/ir/semantic"
	"github.com/wudi/pdfremedy/order"
	"github.com/wudi/pdfremedy/security"
)

// pageContent is what the marked-content scan learns about one page.
type pageContent struct {
	index int
	err   error

	drawn    int
	unmarked int
	// regions holds the union box of the drawing operations of each MCID.
	regions map[int]coords.Rect
	// uses counts the marked-content sequences carrying each MCID.
	uses map[int]int

	annots map[raw.ObjectRef]coords.Rect

	structParents    int
	hasStructParents bool
}

func (p *pageContent) mcids() []int {
	out := make([]int, 0, len(p.uses))
	for id := range p.uses {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// frame is one open marked-content sequence.
type frame struct {
	mcid     int
	artifact bool
}

// scanPages traces every page of doc, recording marked regions and
// drawing operations outside them. Artifact content counts as marked.
func scanPages(ctx context.Context, doc *raw.Document, pages []raw.Page, limits security.Limits) ([]*pageContent, error) {
	out := make([]*pageContent, len(pages))
	for i, pg := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = scanPage(ctx, doc, i, pg, limits)
	}
	return out, nil
}

func scanPage(ctx context.Context, doc *raw.Document, index int, pg raw.Page, limits security.Limits) *pageContent {
	pc := &pageContent{
		index:   index,
		regions: make(map[int]coords.Rect),
		uses:    make(map[int]int),
		annots:  make(map[raw.ObjectRef]coords.Rect),
	}
	if n, ok := doc.IntOf(doc.Get(pg.Dict, "StructParents")); ok {
		pc.structParents, pc.hasStructParents = n, true
	}
	if annots := doc.ArrayOf(doc.Get(pg.Dict, "Annots")); annots != nil {
		for _, it := range annots.Items {
			ref, ok := it.(raw.RefObj)
			if !ok {
				continue
			}
			if r, ok := doc.Rect(doc.Get(doc.DictOf(ref), "Rect")); ok {
				pc.annots[ref.R] = coords.NewRect(r[0], r[1], r[2], r[3])
			}
		}
	}

	data, err := extractor.PageContent(ctx, doc, pg, limits)
	if err != nil {
		pc.err = err
		return pc
	}
	ops, err := contentstream.Parse(data, limits)
	if err != nil {
		pc.err = err
		return pc
	}
	trace := extractor.NewTracer(doc, pg).Trace(ops)
	props := doc.DictOf(doc.Get(pg.Resources, "Properties"))

	var stack []frame
	for i, op := range ops {
		switch op.Operator {
		case "BMC":
			stack = append(stack, frame{mcid: -1, artifact: tagOf(doc, op) == "Artifact"})
			continue
		case "BDC":
			f := frame{mcid: -1, artifact: tagOf(doc, op) == "Artifact"}
			if len(op.Operands) > 1 {
				d := doc.DictOf(op.Operands[1])
				if d == nil {
					if name, ok := op.Operands[1].(raw.NameObj); ok {
						d = doc.DictOf(doc.Get(props, name.Val))
					}
				}
				if id, ok := doc.IntOf(doc.Get(d, "MCID")); ok {
					f.mcid = id
					pc.uses[id]++
				}
			}
			stack = append(stack, f)
			continue
		case "EMC":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		}
		info := trace[i]
		if !info.Kind.Drawing() {
			continue
		}
		pc.drawn++
		mcid, marked := enclosing(stack)
		if !marked {
			pc.unmarked++
			continue
		}
		if mcid >= 0 && !info.BBox.Empty() {
			pc.regions[mcid] = pc.regions[mcid].Union(info.BBox)
		}
	}
	return pc
}

func tagOf(doc *raw.Document, op contentstream.Operation) string {
	if len(op.Operands) == 0 {
		return ""
	}
	return doc.NameOf(op.Operands[0])
}

// enclosing returns the MCID of the innermost sequence carrying one, or
// -1 inside an artifact. marked is false outside both.
func enclosing(stack []frame) (mcid int, marked bool) {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].mcid >= 0 {
			return stack[i].mcid, true
		}
		if stack[i].artifact {
			return -1, true
		}
	}
	return -1, false
}

// contentGeometry locates marked regions and annotations from the scan.
type contentGeometry []*pageContent

func (g contentGeometry) Region(ref semantic.ContentRef) (coords.Rect, bool) {
	if ref.Page < 0 || ref.Page >= len(g) {
		return coords.Rect{}, false
	}
	r, ok := g[ref.Page].regions[ref.CID]
	return r, ok && !r.Empty()
}

func (g contentGeometry) Object(ref semantic.ObjectRef) (coords.Rect, bool) {
	if ref.Page < 0 || ref.Page >= len(g) {
		return coords.Rect{}, false
	}
	r, ok := g[ref.Page].annots[ref.Ref]
	return r, ok && !r.Empty()
}

// ContentGeometry scans the content of doc and returns the geometry of its
// marked regions and annotations, computed the same way Validate computes
// it.
func ContentGeometry(ctx context.Context, doc *raw.Document, limits security.Limits) (order.Geometry, error) {
	if limits == (security.Limits{}) {
		limits = security.DefaultLimits()
	}
	pages, err := doc.Pages()
	if err != nil {
		return nil, fmt.Errorf("pdfua: %w", err)
	}
	scanned, err := scanPages(ctx, doc, pages, limits)
	if err != nil {
		return nil, err
	}
	return contentGeometry(scanned), nil
}
