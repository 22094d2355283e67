package extractor

import (
	"sync"

	"github.com/wudi/pdfremedy/contentstream"
	"github.com/wudi/pdfremedy/coords"
	"github.com/wudi/pdfremedy/fonts"
	"github.com/wudi/pdfremedy/ir/raw"
)

// resources resolves the font and XObject names of one page.
type resources struct {
	doc   *raw.Document
	fonts *raw.DictObj
	xobjs *raw.DictObj

	mu      sync.Mutex
	metrics map[string]*fonts.Metrics
}

func newResources(doc *raw.Document, res *raw.DictObj) *resources {
	return &resources{
		doc:     doc,
		fonts:   doc.DictOf(doc.Get(res, "Font")),
		xobjs:   doc.DictOf(doc.Get(res, "XObject")),
		metrics: make(map[string]*fonts.Metrics),
	}
}

func (r *resources) font(name string) *fonts.Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.metrics[name]; ok {
		return m
	}
	m := fonts.Load(r.doc, r.doc.DictOf(r.doc.Get(r.fonts, name)))
	r.metrics[name] = m
	return m
}

func (r *resources) baseFont(name string) string {
	return r.font(name).BaseFont
}

func (r *resources) xobject(name string) (contentstream.XObjectInfo, bool) {
	dict := r.doc.DictOf(r.doc.Get(r.xobjs, name))
	if dict == nil {
		return contentstream.XObjectInfo{}, false
	}
	info := contentstream.XObjectInfo{Subtype: r.doc.NameOf(r.doc.Get(dict, "Subtype"))}
	if info.Subtype == "Form" {
		if bb, ok := r.doc.Rect(r.doc.Get(dict, "BBox")); ok {
			info.BBox = coords.NewRect(bb[0], bb[1], bb[2], bb[3])
		}
		info.Matrix = coords.Identity()
		if arr := r.doc.ArrayOf(r.doc.Get(dict, "Matrix")); arr != nil && arr.Len() == 6 {
			for i, it := range arr.Items {
				info.Matrix[i], _ = r.doc.NumberOf(it)
			}
		}
	}
	return info, true
}
