package order

import (
	"github.com/wudi/pdfremedy/coords"
	"github.com/wudi/pdfremedy/ir/semantic"
	"github.com/wudi/pdfremedy/rebuild"
)

// modelGeometry locates regions through rebuilt page output and
// annotations through the content model.
type modelGeometry struct {
	doc *semantic.Document
	out *rebuild.Output
}

// NewGeometry returns the geometry of a rebuilt content model.
func NewGeometry(doc *semantic.Document, out *rebuild.Output) Geometry {
	return modelGeometry{doc: doc, out: out}
}

func (g modelGeometry) Region(ref semantic.ContentRef) (coords.Rect, bool) {
	if ref.Page < 0 || ref.Page >= len(g.out.Pages) {
		return coords.Rect{}, false
	}
	regions := g.out.Pages[ref.Page].Regions
	if ref.CID < 0 || ref.CID >= len(regions) {
		return coords.Rect{}, false
	}
	r := regions[ref.CID]
	return r.BBox, !r.BBox.Empty()
}

func (g modelGeometry) Object(ref semantic.ObjectRef) (coords.Rect, bool) {
	if ref.Page < 0 || ref.Page >= len(g.doc.Pages) {
		return coords.Rect{}, false
	}
	for _, a := range g.doc.Pages[ref.Page].Annotations {
		if a.Ref == ref.Ref {
			return a.Rect, !a.Rect.Empty()
		}
	}
	return coords.Rect{}, false
}
