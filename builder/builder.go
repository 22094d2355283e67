package builder

import (
	"context"
	"fmt"

	"github.com/wudi/pdfremedy/coords"
	"github.com/wudi/pdfremedy/fonts"
	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/ir/semantic"
	"github.com/wudi/pdfremedy/writer"
)

// Resource names of the two standard fonts every page carries.
const (
	FontRegular = "F1"
	FontBold    = "F2"
)

// PDFBuilder provides a fluent API for constructing small documents.
type PDFBuilder interface {
	NewPage(width, height float64) PageBuilder
	SetTitle(title string) PDFBuilder
	SetLanguage(lang string) PDFBuilder
	SetMarked(marked bool) PDFBuilder
	SetMetadata(xmp []byte) PDFBuilder
	SetStructure(tree *semantic.StructureTree) PDFBuilder
	SetCompression(compress bool) PDFBuilder
	Build() (*raw.Document, error)
	Bytes() ([]byte, error)
}

// PageBuilder provides a fluent API for page construction.
type PageBuilder interface {
	DrawText(text string, x, y float64, opts TextOptions) PageBuilder
	DrawImage(x, y, width, height float64, opts ImageOptions) PageBuilder
	DrawInlineImage(x, y, width, height float64) PageBuilder
	DrawForm(x, y, width, height float64) PageBuilder
	DrawRectangle(x, y, width, height float64, opts RectOptions) PageBuilder
	DrawTable(table Table, opts TableOptions) PageBuilder
	AddLink(rect coords.Rect, uri string) PageBuilder
	AddField(rect coords.Rect, name, tooltip, value string) PageBuilder
	Raw(content string) PageBuilder
	Finish() PDFBuilder
}

// TextOptions configures text drawing.
type TextOptions struct {
	FontSize float64
	Bold     bool
	Color    *Color
	// Tag and MCID wrap the text object in a marked-content sequence.
	Tag  string
	MCID *int
}

// ImageOptions configures image drawing. Nil Image draws a 1x1 gray sample.
type ImageOptions struct {
	Image *Image
}

// RectOptions configures rectangle drawing; stroke is the default.
type RectOptions struct {
	Fill      bool
	FillColor Color
	LineWidth float64
}

// Color is a DeviceRGB color.
type Color struct {
	R, G, B float64
}

// Table is a grid of single-line text cells.
type Table struct {
	Rows [][]string
	// HeaderBold draws the first row in the bold font.
	HeaderBold bool
}

// TableOptions positions a table: X/Y is the baseline of the first row.
type TableOptions struct {
	X, Y        float64
	ColumnWidth float64
	RowHeight   float64
	FontSize    float64
}

type pageState struct {
	b       *builderImpl
	width   float64
	height  float64
	content []byte
	images  []*Image
	forms   [][2]float64
	annots  []annotSpec
}

type annotSpec struct {
	rect    coords.Rect
	uri     string
	field   string
	tooltip string
	value   string
}

type builderImpl struct {
	pages    []*pageState
	title    string
	lang     string
	marked   bool
	xmp      []byte
	tree     *semantic.StructureTree
	compress bool
}

// NewBuilder returns an empty document builder.
func NewBuilder() PDFBuilder { return &builderImpl{} }

func (b *builderImpl) NewPage(width, height float64) PageBuilder {
	p := &pageState{b: b, width: width, height: height}
	b.pages = append(b.pages, p)
	return p
}

func (b *builderImpl) SetTitle(title string) PDFBuilder { b.title = title; return b }
func (b *builderImpl) SetLanguage(lang string) PDFBuilder {
	b.lang = lang
	return b
}
func (b *builderImpl) SetMarked(marked bool) PDFBuilder { b.marked = marked; return b }
func (b *builderImpl) SetMetadata(xmp []byte) PDFBuilder {
	b.xmp = xmp
	return b
}
func (b *builderImpl) SetStructure(tree *semantic.StructureTree) PDFBuilder {
	b.tree = tree
	return b
}
func (b *builderImpl) SetCompression(compress bool) PDFBuilder {
	b.compress = compress
	return b
}

// Build assembles the object graph.
func (b *builderImpl) Build() (*raw.Document, error) {
	if len(b.pages) == 0 {
		return nil, fmt.Errorf("builder: document has no pages")
	}
	doc := raw.NewDocument("1.7")
	pagesDict := raw.Dict()
	pagesRef := doc.Add(pagesDict)
	catalog := raw.Dict()
	catalog.Set("Type", raw.Name("Catalog"))
	catalog.Set("Pages", pagesRef)
	doc.Trailer.Set("Root", doc.Add(catalog))

	fontsDict := raw.Dict()
	fontsDict.Set(FontRegular, doc.Add(standardFont("Helvetica")))
	fontsDict.Set(FontBold, doc.Add(standardFont("Helvetica-Bold")))

	var kids []raw.Object
	var pageRefs []raw.ObjectRef
	var fields []raw.Object
	for _, p := range b.pages {
		ref, pageFields := p.emit(doc, pagesRef, fontsDict)
		kids = append(kids, ref)
		pageRefs = append(pageRefs, ref.R)
		fields = append(fields, pageFields...)
	}
	pagesDict.Set("Type", raw.Name("Pages"))
	pagesDict.Set("Kids", raw.NewArray(kids...))
	pagesDict.Set("Count", raw.Int(int64(len(kids))))

	if len(fields) > 0 {
		catalog.Set("AcroForm", acroForm(fields, fontsDict))
	}
	if b.title != "" {
		doc.Info(true).Set("Title", raw.TextString(b.title))
	}
	if b.lang != "" {
		catalog.Set("Lang", raw.TextString(b.lang))
	}
	if b.marked {
		mark := raw.Dict()
		mark.Set("Marked", raw.Bool(true))
		catalog.Set("MarkInfo", mark)
	}
	if b.xmp != nil {
		md := raw.Dict()
		md.Set("Type", raw.Name("Metadata"))
		md.Set("Subtype", raw.Name("XML"))
		catalog.Set("Metadata", doc.Add(raw.NewStream(md, b.xmp)))
	}
	if b.tree != nil {
		if err := writer.BuildStructTree(doc, b.tree, pageRefs); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// Bytes builds and serialises the document.
func (b *builderImpl) Bytes() ([]byte, error) {
	doc, err := b.Build()
	if err != nil {
		return nil, err
	}
	return writer.Bytes(context.Background(), doc, writer.Config{Compress: b.compress})
}

func standardFont(base string) *raw.DictObj {
	d := raw.Dict()
	d.Set("Type", raw.Name("Font"))
	d.Set("Subtype", raw.Name("Type1"))
	d.Set("BaseFont", raw.Name(base))
	d.Set("Encoding", raw.Name("WinAnsiEncoding"))
	return d
}

// TextWidth returns the advance of text in the builder's standard fonts.
func TextWidth(text string, size float64, bold bool) float64 {
	base := "Helvetica"
	if bold {
		base = "Helvetica-Bold"
	}
	doc := raw.NewDocument("1.7")
	m := fonts.Load(doc, standardFont(base))
	w := 0.0
	for _, g := range m.Decode([]byte(text)) {
		w += g.Width / 1000 * size
	}
	return w
}
