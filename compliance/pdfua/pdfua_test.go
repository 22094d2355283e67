package pdfua

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfremedy/builder"
	"github.com/wudi/pdfremedy/compliance"
	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/ir/semantic"
	"github.com/wudi/pdfremedy/metadata"
	"github.com/wudi/pdfremedy/parser"
	"github.com/wudi/pdfremedy/security"
	"github.com/wudi/pdfremedy/writer"
)

func mcid(n int) *int { return &n }

func el(tag string, cids ...int) *semantic.StructureElement {
	e := semantic.NewElement(tag)
	for _, c := range cids {
		e.Refs = append(e.Refs, semantic.ContentRef{Page: 0, CID: c})
	}
	return e
}

func tree(kids ...*semantic.StructureElement) *semantic.StructureTree {
	t := semantic.NewTree()
	t.Root.Add(kids...)
	return t
}

// tagged returns a builder for a page with a heading, a paragraph and a
// figure tagged with MCIDs 0, 1 and 2.
func tagged() (builder.PDFBuilder, builder.PageBuilder) {
	b := builder.NewBuilder().SetMarked(true)
	page := b.NewPage(612, 792).
		DrawText("Quarterly results", 72, 700, builder.TextOptions{FontSize: 18, Tag: "H1", MCID: mcid(0)}).
		DrawText("Revenue grew in every region.", 72, 600, builder.TextOptions{Tag: "P", MCID: mcid(1)}).
		Raw("/Figure << /MCID 2 >> BDC").
		DrawImage(72, 300, 100, 100, builder.ImageOptions{}).
		Raw("EMC")
	return b, page
}

func figure(alt string) *semantic.StructureElement {
	f := el(semantic.TagFigure, 2)
	f.Alt = alt
	return f
}

// render builds b and, when title is set, writes complete metadata.
func render(t *testing.T, b builder.PDFBuilder, title string, edit ...func(*raw.Document)) []byte {
	t.Helper()
	doc, err := b.Build()
	require.NoError(t, err)
	if title != "" {
		_, err = metadata.Apply(doc, metadata.Inputs{OriginalTitle: title}, metadata.Options{})
		require.NoError(t, err)
	}
	for _, fn := range edit {
		fn(doc)
	}
	data, err := writer.Bytes(context.Background(), doc, writer.Config{Compress: true})
	require.NoError(t, err)
	return data
}

func validate(t *testing.T, data []byte) compliance.Report {
	t.Helper()
	report, err := Validate(context.Background(), data)
	require.NoError(t, err)
	require.Equal(t, IDs(), ids(report))
	return report
}

func ids(r compliance.Report) []string {
	var out []string
	for _, c := range r.Checks {
		out = append(out, c.ID)
	}
	return out
}

func reasons(t *testing.T, r compliance.Report, id string) []string {
	t.Helper()
	c, ok := r.Check(id)
	require.True(t, ok)
	return c.Reasons
}

func TestValidateCompliantDocument(t *testing.T) {
	b, _ := tagged()
	b.SetStructure(tree(el("H1", 0), el("P", 1), figure("Bar chart of revenue by region")))
	data := render(t, b, "Quarterly results")

	report := validate(t, data)
	for _, c := range report.Checks {
		assert.True(t, c.Passed, "%s: %v", c.ID, c.Reasons)
	}
	assert.True(t, report.Passed())

	again := validate(t, data)
	first, err := report.JSON()
	require.NoError(t, err)
	second, err := again.JSON()
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestValidateUntaggedDocument(t *testing.T) {
	b := builder.NewBuilder()
	b.NewPage(612, 792).
		DrawText("Plain text", 72, 700, builder.TextOptions{}).
		DrawImage(72, 400, 50, 50, builder.ImageOptions{})
	report := validate(t, render(t, b, ""))

	assert.False(t, report.Passed())
	assert.Equal(t, []string{"catalog has no /MarkInfo dictionary"}, reasons(t, report, CheckTagged))
	assert.Equal(t, []string{"catalog has no /StructTreeRoot"}, reasons(t, report, CheckStructure))
	assert.Equal(t, []string{"catalog has no /Lang"}, reasons(t, report, CheckLanguage))
	assert.Equal(t, []string{
		"document has no title in Info or XMP metadata",
		"/ViewerPreferences /DisplayDocTitle is not true",
	}, reasons(t, report, CheckTitle))
	assert.Equal(t, []string{"2 of 2 drawn operations have no enclosing marked region (pages 1)"}, reasons(t, report, CheckCoverage))
	assert.Equal(t, []string{"no structure tree to order"}, reasons(t, report, CheckReadingOrder))
	assert.Equal(t, 2, report.PassCount())
}

func TestValidateMissingAltText(t *testing.T) {
	b := builder.NewBuilder().SetMarked(true)
	page := b.NewPage(612, 792)
	var figures []*semantic.StructureElement
	for i := 0; i < 4; i++ {
		page.Raw(fmt.Sprintf("/Figure << /MCID %d >> BDC", i)).
			DrawImage(float64(72+110*i), 500, 100, 100, builder.ImageOptions{}).
			Raw("EMC")
		figures = append(figures, el(semantic.TagFigure, i))
	}
	figures[2].Alt = "Map"
	b.SetStructure(tree(figures...))
	report := validate(t, render(t, b, "Figures"))

	alt := reasons(t, report, CheckAltText)
	assert.Len(t, alt, 3)
	for _, r := range alt {
		assert.Contains(t, r, "on page 1 has no alternative text")
	}
	c, _ := report.Check(CheckCoverage)
	assert.True(t, c.Passed, c.Reasons)
}

func TestValidateHeadingSkip(t *testing.T) {
	b, _ := tagged()
	b.SetStructure(tree(el("H1", 0), el("H3", 1), figure("Chart")))
	report := validate(t, render(t, b, "Headings"))
	skips := reasons(t, report, CheckHeadings)
	require.Len(t, skips, 1)
	assert.Contains(t, skips[0], "follows H1")

	b, _ = tagged()
	b.SetStructure(tree(el("H2", 0), el("P", 1), figure("Chart")))
	skips = reasons(t, validate(t, render(t, b, "Headings")), CheckHeadings)
	require.Len(t, skips, 1)
	assert.Contains(t, skips[0], "is not level 1")
}

func TestValidateReadingOrder(t *testing.T) {
	b, _ := tagged()
	b.SetStructure(tree(el("P", 1), el("H1", 0), figure("Chart")))
	report := validate(t, render(t, b, "Order"))
	got := reasons(t, report, CheckReadingOrder)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "children of Document")
	assert.Contains(t, got[0], "out of reading order")
}

func TestValidateOrphanedReferences(t *testing.T) {
	b, _ := tagged()
	// MCID 1 is never referenced; MCID 7 does not exist.
	b.SetStructure(tree(el("H1", 0, 7), figure("Chart")))
	report := validate(t, render(t, b, "Orphans"))

	assert.Equal(t, []string{"page 1 MCID 1 is not referenced by any structure element"}, reasons(t, report, CheckCoverage))
	structure := reasons(t, report, CheckStructure)
	require.NotEmpty(t, structure)
	assert.Contains(t, structure[0], "page 1 MCID 7 is referenced by H1")
}

func TestValidateFailuresAreStable(t *testing.T) {
	b, page := tagged()
	page.
		DrawText("Repeated caption", 72, 250, builder.TextOptions{Tag: "P", MCID: mcid(1)}).
		DrawText("Unowned note", 72, 200, builder.TextOptions{Tag: "P", MCID: mcid(5)}).
		DrawText("Second unowned note", 300, 200, builder.TextOptions{Tag: "P", MCID: mcid(6)}).
		Raw("0 0 m 612 0 l S").
		DrawText("Loose footer", 72, 40, builder.TextOptions{})
	for i := 0; i < 3; i++ {
		page.Raw(fmt.Sprintf("/Figure << /MCID %d >> BDC", 8+i)).
			DrawImage(float64(200+110*i), 300, 100, 100, builder.ImageOptions{}).
			Raw("EMC")
	}
	b.NewPage(612, 792).
		DrawText("Appendix", 72, 700, builder.TextOptions{Tag: "P", MCID: mcid(0)}).
		Raw("/Figure << /MCID 1 >> BDC").
		DrawImage(72, 400, 100, 100, builder.ImageOptions{}).
		Raw("EMC")
	appendix := el("P")
	appendix.Refs = []semantic.ContentRef{{Page: 1, CID: 0}}
	chart := el(semantic.TagFigure)
	chart.Refs = []semantic.ContentRef{{Page: 1, CID: 1}}
	b.SetStructure(tree(el("H1", 0), el("P", 1), figure(""),
		el(semantic.TagFigure, 8), el(semantic.TagFigure, 9), el(semantic.TagFigure, 10),
		appendix, chart))
	data := render(t, b, "Stable failures")

	first := validate(t, data)
	require.False(t, first.Passed())
	assert.Len(t, reasons(t, first, CheckAltText), 5)
	coverage := reasons(t, first, CheckCoverage)
	assert.Contains(t, coverage, "page 1 MCID 1 is carried by 2 marked regions")
	assert.Contains(t, coverage, "page 1 MCID 5 is not referenced by any structure element")
	assert.Contains(t, coverage, "page 1 MCID 6 is not referenced by any structure element")
	assert.Contains(t, coverage[0], "have no enclosing marked region (pages 1)")

	want, err := first.JSON()
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		got, err := validate(t, data).JSON()
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got), "run %d", i+2)
	}
}

func TestValidateArtifactsAreMarked(t *testing.T) {
	b, page := tagged()
	page.Raw("/Artifact BMC 0 0 m 612 0 l S EMC")
	b.SetStructure(tree(el("H1", 0), el("P", 1), figure("Chart")))
	report := validate(t, render(t, b, "Artifacts"))
	c, _ := report.Check(CheckCoverage)
	assert.True(t, c.Passed, c.Reasons)
}

func TestValidateLanguageFormat(t *testing.T) {
	b, _ := tagged()
	span := el("Span", 1)
	span.Lang = "fr_FR"
	para := el("P")
	para.Add(span)
	b.SetLanguage("en_US").SetStructure(tree(el("H1", 0), para, figure("Chart")))
	report := validate(t, render(t, b, ""))
	got := reasons(t, report, CheckLanguage)
	require.Len(t, got, 2)
	assert.Equal(t, `catalog /Lang "en_US" is not a well-formed language tag`, got[0])
	assert.Contains(t, got[1], `/Lang "fr_FR"`)
}

func TestValidateParentTreeMismatch(t *testing.T) {
	b, _ := tagged()
	b.SetStructure(tree(el("H1", 0), el("P", 1), figure("Chart")))
	data := render(t, b, "Parent tree", func(doc *raw.Document) {
		cat, err := doc.Catalog()
		require.NoError(t, err)
		root := doc.DictOf(doc.Get(cat, "StructTreeRoot"))
		doc.DictOf(doc.Get(root, "ParentTree")).Set("Nums", raw.NewArray())
	})
	report := validate(t, data)
	assert.Equal(t, []string{"page 1: ParentTree has no entry 0"}, reasons(t, report, CheckStructure))
}

func TestValidateRejectsUnparsableInput(t *testing.T) {
	_, err := Validate(context.Background(), []byte("not a document"))
	require.Error(t, err)
	assert.ErrorIs(t, err, parser.ErrFatalParse)
}

func TestContentGeometry(t *testing.T) {
	b, _ := tagged()
	b.SetStructure(tree(el("H1", 0), el("P", 1), figure("Chart")))
	doc, err := parser.Parse(context.Background(), render(t, b, "Geometry"))
	require.NoError(t, err)

	geo, err := ContentGeometry(context.Background(), doc, security.DefaultLimits())
	require.NoError(t, err)
	img, ok := geo.Region(semantic.ContentRef{Page: 0, CID: 2})
	require.True(t, ok)
	assert.InDelta(t, 72, img.X0, 0.01)
	assert.InDelta(t, 400, img.Y1, 0.01)
	_, ok = geo.Region(semantic.ContentRef{Page: 0, CID: 9})
	assert.False(t, ok)
}
