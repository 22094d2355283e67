package builder

import (
	"fmt"

	"github.com/wudi/pdfremedy/contentstream"
	"github.com/wudi/pdfremedy/coords"
	"github.com/wudi/pdfremedy/ir/raw"
)

func num(f float64) raw.Object {
	if f == float64(int64(f)) {
		return raw.Int(int64(f))
	}
	return raw.Real(f)
}

func (p *pageState) emitOps(ops ...contentstream.Operation) {
	for _, op := range ops {
		p.content = contentstream.AppendOperation(p.content, op)
		p.content = append(p.content, '\n')
	}
}

func (p *pageState) DrawText(text string, x, y float64, opts TextOptions) PageBuilder {
	size := opts.FontSize
	if size == 0 {
		size = 12
	}
	font := FontRegular
	if opts.Bold {
		font = FontBold
	}
	if opts.Tag != "" {
		props := raw.Dict()
		if opts.MCID != nil {
			props.Set("MCID", raw.Int(int64(*opts.MCID)))
		}
		p.emitOps(contentstream.Op("BDC", raw.Name(opts.Tag), props))
	}
	p.emitOps(
		contentstream.Op("BT"),
		contentstream.Op("Tf", raw.Name(font), num(size)),
	)
	if c := opts.Color; c != nil {
		p.emitOps(contentstream.Op("rg", num(c.R), num(c.G), num(c.B)))
	}
	p.emitOps(
		contentstream.Op("Td", num(x), num(y)),
		contentstream.Op("Tj", raw.Str([]byte(text))),
		contentstream.Op("ET"),
	)
	if opts.Tag != "" {
		p.emitOps(contentstream.Op("EMC"))
	}
	return p
}

func (p *pageState) DrawImage(x, y, width, height float64, opts ImageOptions) PageBuilder {
	img := opts.Image
	if img == nil {
		img = &Image{Width: 1, Height: 1, ColorSpace: "DeviceGray", Data: []byte{0x80}}
	}
	p.images = append(p.images, img)
	name := fmt.Sprintf("Im%d", len(p.images))
	p.emitOps(
		contentstream.Op("q"),
		contentstream.Op("cm", num(width), raw.Int(0), raw.Int(0), num(height), num(x), num(y)),
		contentstream.Op("Do", raw.Name(name)),
		contentstream.Op("Q"),
	)
	return p
}

func (p *pageState) DrawInlineImage(x, y, width, height float64) PageBuilder {
	dict := raw.Dict()
	dict.Set("W", raw.Int(2))
	dict.Set("H", raw.Int(1))
	dict.Set("BPC", raw.Int(8))
	dict.Set("CS", raw.Name("G"))
	p.emitOps(
		contentstream.Op("q"),
		contentstream.Op("cm", num(width), raw.Int(0), raw.Int(0), num(height), num(x), num(y)),
		contentstream.Operation{Operator: "BI", Inline: &contentstream.InlineImage{Dict: dict, Data: []byte{0x20, 0xe0}}},
		contentstream.Op("Q"),
	)
	return p
}

// DrawForm places a Form XObject that fills its bounding box.
func (p *pageState) DrawForm(x, y, width, height float64) PageBuilder {
	p.forms = append(p.forms, [2]float64{width, height})
	name := fmt.Sprintf("Fm%d", len(p.forms))
	p.emitOps(
		contentstream.Op("q"),
		contentstream.Op("cm", raw.Int(1), raw.Int(0), raw.Int(0), raw.Int(1), num(x), num(y)),
		contentstream.Op("Do", raw.Name(name)),
		contentstream.Op("Q"),
	)
	return p
}

func (p *pageState) DrawRectangle(x, y, width, height float64, opts RectOptions) PageBuilder {
	p.emitOps(contentstream.Op("q"))
	if opts.LineWidth > 0 {
		p.emitOps(contentstream.Op("w", num(opts.LineWidth)))
	}
	paint := "S"
	if opts.Fill {
		c := opts.FillColor
		p.emitOps(contentstream.Op("rg", num(c.R), num(c.G), num(c.B)))
		paint = "f"
	}
	p.emitOps(
		contentstream.Op("re", num(x), num(y), num(width), num(height)),
		contentstream.Op(paint),
		contentstream.Op("Q"),
	)
	return p
}

// DrawTable draws each cell as its own text object, rows top to bottom.
func (p *pageState) DrawTable(table Table, opts TableOptions) PageBuilder {
	colWidth := opts.ColumnWidth
	if colWidth == 0 {
		colWidth = 100
	}
	rowHeight := opts.RowHeight
	if rowHeight == 0 {
		rowHeight = 20
	}
	size := opts.FontSize
	if size == 0 {
		size = 10
	}
	for r, row := range table.Rows {
		y := opts.Y - float64(r)*rowHeight
		for c, cell := range row {
			p.DrawText(cell, opts.X+float64(c)*colWidth, y, TextOptions{
				FontSize: size,
				Bold:     r == 0 && table.HeaderBold,
			})
		}
	}
	return p
}

func (p *pageState) AddLink(rect coords.Rect, uri string) PageBuilder {
	p.annots = append(p.annots, annotSpec{rect: rect, uri: uri})
	return p
}

func (p *pageState) AddField(rect coords.Rect, name, tooltip, value string) PageBuilder {
	p.annots = append(p.annots, annotSpec{rect: rect, field: name, tooltip: tooltip, value: value})
	return p
}

// Raw appends content bytes verbatim.
func (p *pageState) Raw(content string) PageBuilder {
	p.content = append(p.content, content...)
	if len(content) > 0 && content[len(content)-1] != '\n' {
		p.content = append(p.content, '\n')
	}
	return p
}

func (p *pageState) Finish() PDFBuilder { return p.b }

func rectArray(r coords.Rect) *raw.ArrayObj {
	return raw.NewArray(num(r.X0), num(r.Y0), num(r.X1), num(r.Y1))
}

// emit adds the page and its resources to doc and returns the page
// reference and any form fields it created.
func (p *pageState) emit(doc *raw.Document, parent raw.RefObj, fontsDict *raw.DictObj) (raw.RefObj, []raw.Object) {
	page := raw.Dict()
	pageRef := doc.Add(page)
	page.Set("Type", raw.Name("Page"))
	page.Set("Parent", parent)
	page.Set("MediaBox", rectArray(coords.Rect{X1: p.width, Y1: p.height}))
	page.Set("Contents", doc.Add(raw.NewStream(raw.Dict(), p.content)))

	res := raw.Dict()
	res.Set("Font", fontsDict)
	if len(p.images) > 0 || len(p.forms) > 0 {
		xobjects := raw.Dict()
		for i, img := range p.images {
			xobjects.Set(fmt.Sprintf("Im%d", i+1), img.emit(doc))
		}
		for i, box := range p.forms {
			xobjects.Set(fmt.Sprintf("Fm%d", i+1), doc.Add(formXObject(box[0], box[1])))
		}
		res.Set("XObject", xobjects)
	}
	page.Set("Resources", res)

	var annots []raw.Object
	var fields []raw.Object
	for _, a := range p.annots {
		var ref raw.RefObj
		if a.field != "" {
			ref = doc.Add(widget(doc, a, pageRef))
			fields = append(fields, ref)
		} else {
			ref = doc.Add(linkAnnot(a))
		}
		annots = append(annots, ref)
	}
	if len(annots) > 0 {
		page.Set("Annots", raw.NewArray(annots...))
	}
	return pageRef, fields
}

func formXObject(width, height float64) *raw.StreamObj {
	d := raw.Dict()
	d.Set("Type", raw.Name("XObject"))
	d.Set("Subtype", raw.Name("Form"))
	d.Set("BBox", rectArray(coords.Rect{X1: width, Y1: height}))
	body := contentstream.Serialize([]contentstream.Operation{
		contentstream.Op("re", raw.Int(0), raw.Int(0), num(width), num(height)),
		contentstream.Op("f"),
	})
	return raw.NewStream(d, body)
}

func linkAnnot(a annotSpec) *raw.DictObj {
	d := raw.Dict()
	d.Set("Type", raw.Name("Annot"))
	d.Set("Subtype", raw.Name("Link"))
	d.Set("Rect", rectArray(a.rect))
	d.Set("Border", raw.NewArray(raw.Int(0), raw.Int(0), raw.Int(0)))
	action := raw.Dict()
	action.Set("S", raw.Name("URI"))
	action.Set("URI", raw.Str([]byte(a.uri)))
	d.Set("A", action)
	return d
}
