package rebuild

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfremedy/builder"
	"github.com/wudi/pdfremedy/contentstream"
	"github.com/wudi/pdfremedy/extractor"
	"github.com/wudi/pdfremedy/ir/semantic"
	"github.com/wudi/pdfremedy/parser"
	"github.com/wudi/pdfremedy/security"
	"github.com/wudi/pdfremedy/writer"
)

func model(t *testing.T, contents ...string) *semantic.Document {
	t.Helper()
	b := builder.NewBuilder()
	for _, c := range contents {
		b.NewPage(612, 792).Raw(c).Finish()
	}
	data, err := b.Bytes()
	require.NoError(t, err)
	doc, err := parser.Parse(context.Background(), data)
	require.NoError(t, err)
	out, err := extractor.Extract(context.Background(), doc, extractor.DefaultOptions())
	require.NoError(t, err)
	return out
}

var drawing = map[string]bool{
	"Tj": true, "TJ": true, "'": true, "\"": true, "Do": true, "sh": true,
	"S": true, "s": true, "f": true, "F": true, "f*": true, "B": true, "B*": true, "b": true, "b*": true,
}

// assertCovered parses rebuilt content and checks that every drawing
// operation sits inside exactly one BDC/EMC pair and MCIDs run from zero.
func assertCovered(t *testing.T, content []byte) []int {
	t.Helper()
	ops, err := contentstream.Parse(content, security.DefaultLimits())
	require.NoError(t, err)
	depth := 0
	var mcids []int
	for _, op := range ops {
		switch {
		case op.Operator == "BDC":
			depth++
			mcids = append(mcids, mcidOf(t, op))
		case op.Operator == "EMC":
			depth--
		case drawing[op.Operator] || op.Inline != nil:
			assert.Equal(t, 1, depth, "operator %s outside a marked region", op.Operator)
		}
		require.GreaterOrEqual(t, depth, 0)
		require.LessOrEqual(t, depth, 1, "marked regions must not nest")
	}
	assert.Zero(t, depth)
	for i, id := range mcids {
		assert.Equal(t, i, id)
	}
	return mcids
}

func mcidOf(t *testing.T, op contentstream.Operation) int {
	t.Helper()
	require.Len(t, op.Operands, 2)
	s := string(contentstream.AppendOperation(nil, op))
	i := strings.Index(s, "/MCID ")
	require.GreaterOrEqual(t, i, 0, s)
	n := 0
	for _, c := range s[i+len("/MCID "):] {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func TestRebuildSharesRegionWithinParagraph(t *testing.T) {
	doc := model(t, "BT /F1 12 Tf 72 700 Td (Hello) Tj 0 -14 Td (World) Tj ET")
	out, err := Rebuild(context.Background(), doc, Options{PageWorkers: 2})
	require.NoError(t, err)

	page := out.Pages[0]
	require.Len(t, page.Regions, 1)
	assert.Equal(t, []int{0, 1}, page.Regions[0].Units)
	assert.Equal(t, semantic.TagP, page.Regions[0].Tag)
	assert.Equal(t,
		"BT\n/F1 12 Tf\n72 700 Td\n/P << /MCID 0 >> BDC\n(Hello) Tj\n0 -14 Td\n(World) Tj\nEMC\nET\n",
		string(page.Content))
	r, ok := page.RegionOf(1)
	require.True(t, ok)
	assert.Equal(t, 0, r.CID)
}

func TestRebuildCoversEveryUnit(t *testing.T) {
	b := builder.NewBuilder()
	b.NewPage(612, 792).
		DrawText("Heading", 72, 720, builder.TextOptions{FontSize: 20}).
		DrawText("First line of body", 72, 690, builder.TextOptions{FontSize: 12}).
		DrawText("Second line of body", 72, 676, builder.TextOptions{FontSize: 12}).
		DrawTable(builder.Table{Rows: [][]string{{"A", "B"}, {"1", "2"}}, HeaderBold: true}, builder.TableOptions{X: 72, Y: 500}).
		DrawImage(72, 200, 50, 50, builder.ImageOptions{}).
		DrawInlineImage(200, 200, 10, 10).
		DrawForm(300, 200, 40, 40).
		DrawRectangle(400, 200, 30, 30, builder.RectOptions{Fill: true}).
		Finish()
	b.NewPage(612, 792).DrawText("Second page", 72, 700, builder.TextOptions{}).Finish()
	data, err := b.Bytes()
	require.NoError(t, err)
	src, err := parser.Parse(context.Background(), data)
	require.NoError(t, err)
	doc, err := extractor.Extract(context.Background(), src, extractor.DefaultOptions())
	require.NoError(t, err)

	out, err := Rebuild(context.Background(), doc, Options{PageWorkers: 4})
	require.NoError(t, err)
	require.Len(t, out.Pages, 2)
	assert.Zero(t, out.CoverageGaps())

	first := out.Pages[0]
	mcids := assertCovered(t, first.Content)
	assert.Len(t, mcids, len(first.Regions))
	for id := range doc.Pages[0].Units {
		_, ok := first.RegionOf(id)
		assert.True(t, ok, "unit %d has no region", id)
	}
	tags := map[string]int{}
	for _, r := range first.Regions {
		tags[r.Tag]++
	}
	assert.Equal(t, 1, tags["H1"])
	assert.Equal(t, 2, tags[semantic.TagTH])
	assert.Equal(t, 2, tags[semantic.TagTD])
	assert.Equal(t, 4, tags[semantic.TagFigure])

	second := out.Pages[1]
	assert.Equal(t, []int{0}, assertCovered(t, second.Content), "MCIDs restart on every page")
}

func TestRebuildAdjustsColor(t *testing.T) {
	doc := model(t,
		"BT /F1 12 Tf 0.5 g 72 700 Td (Grey) Tj ET",
		"BT /F1 12 Tf 72 700 Td (Plain) Tj ET",
	)
	for _, p := range doc.Pages {
		p.UnitAttrs(0).Color = &semantic.RGB{}
	}
	out, err := Rebuild(context.Background(), doc, Options{})
	require.NoError(t, err)
	assert.Equal(t,
		"BT\n/F1 12 Tf\n0.5 g\n72 700 Td\n/P << /MCID 0 >> BDC\n0 0 0 rg\n(Grey) Tj\n0.5 g\nEMC\nET\n",
		string(out.Pages[0].Content))
	assert.Contains(t, string(out.Pages[1].Content), "0 0 0 rg\n(Plain) Tj\n0 g\nEMC\n")
}

func TestRebuildEnlargesSmallText(t *testing.T) {
	doc := model(t, "BT /F1 6 Tf 72 700 Td (Tiny) Tj ET")
	doc.Pages[0].UnitAttrs(0).MinFontSize = 9
	out, err := Rebuild(context.Background(), doc, Options{})
	require.NoError(t, err)
	assert.Equal(t,
		"BT\n/F1 6 Tf\n72 700 Td\n/P << /MCID 0 >> BDC\n/F1 9 Tf\n(Tiny) Tj\n/F1 6 Tf\nEMC\nET\n",
		string(out.Pages[0].Content))
}

func TestRebuildLanguageSpanBreaksSharing(t *testing.T) {
	doc := model(t, "BT /F1 12 Tf 72 700 Td (Hello) Tj 0 -14 Td (Bonjour) Tj ET")
	doc.Pages[0].UnitAttrs(1).Lang = "fr"
	out, err := Rebuild(context.Background(), doc, Options{})
	require.NoError(t, err)
	page := out.Pages[0]
	require.Len(t, page.Regions, 2)
	assert.Equal(t, semantic.TagSpan, page.Regions[1].Tag)
	assert.Equal(t, "fr", page.Regions[1].Lang)
	assert.Contains(t, string(page.Content), "/Span << /Lang (fr) /MCID 1 >> BDC\n(Bonjour) Tj\nEMC\n")
	assertCovered(t, page.Content)
}

func TestRebuildWrapsOrphans(t *testing.T) {
	doc := model(t, "0 0 m 10 10 l S")
	page := doc.Pages[0]
	// Simulate a drawing operation no unit claims.
	page.Units = nil
	page.Blocks = nil
	out, err := Rebuild(context.Background(), doc, Options{})
	require.NoError(t, err)
	require.Len(t, out.Pages[0].Regions, 1)
	assert.True(t, out.Pages[0].Regions[0].Orphan)
	assert.Equal(t, 1, out.CoverageGaps())
	assert.Equal(t, "/P << /MCID 0 >> BDC\n0 0 m\n10 10 l\nS\nEMC\n", string(out.Pages[0].Content))
}

func TestRebuildKeepsOptionalContentAndArtifacts(t *testing.T) {
	doc := model(t, "BT /F1 12 Tf 72 700 Td (Visible text.) Tj ET\n"+
		"/OC /oc1 BDC BT /F1 12 Tf 72 600 Td (Hidden layer text) Tj ET EMC\n"+
		"/Artifact BMC BT /F1 9 Tf 300 30 Td (Page 1) Tj ET EMC")
	page := doc.Pages[0]
	require.Len(t, page.Units, 2, "artifact text is not content")
	assert.Equal(t, "Hidden layer text", page.Units[1].Text)

	out, err := Rebuild(context.Background(), doc, Options{})
	require.NoError(t, err)
	po := out.Pages[0]
	require.Len(t, po.Regions, 2)
	assert.Zero(t, out.CoverageGaps())

	content := string(po.Content)
	assert.Contains(t, content, "/OC /oc1 BDC\nBT\n/F1 12 Tf\n72 600 Td\n/P << /MCID 1 >> BDC\n(Hidden layer text) Tj\nEMC\nET\nEMC\n",
		"the layer keeps its marker and the new region nests inside it")
	assert.Contains(t, content, "/Artifact BMC\nBT\n/F1 9 Tf\n300 30 Td\n(Page 1) Tj\nET\nEMC\n")
	assert.NotContains(t, content, "/MCID 2")

	ops, err := contentstream.Parse(po.Content, security.DefaultLimits())
	require.NoError(t, err)
	depth := 0
	for _, op := range ops {
		switch op.Operator {
		case "BDC", "BMC":
			depth++
		case "EMC":
			depth--
			require.GreaterOrEqual(t, depth, 0)
		}
	}
	assert.Zero(t, depth)
}

func TestRebuildReplacesOldStructureMarks(t *testing.T) {
	doc := model(t, "/P <</MCID 7>> BDC BT /F1 12 Tf 72 700 Td (Tagged before) Tj ET EMC")
	out, err := Rebuild(context.Background(), doc, Options{})
	require.NoError(t, err)
	assert.NotContains(t, string(out.Pages[0].Content), "/MCID 7")
	assertCovered(t, out.Pages[0].Content)
}

func TestRebuildKeepsUnparsedPage(t *testing.T) {
	doc := model(t, "BT (broken Tj")
	out, err := Rebuild(context.Background(), doc, Options{})
	require.NoError(t, err)
	assert.True(t, out.Pages[0].Unparsed)
	assert.Empty(t, out.Pages[0].Regions)
	assert.Contains(t, string(out.Pages[0].Content), "BT (broken Tj")
}

func TestRebuildCancelled(t *testing.T) {
	doc := model(t, "BT /F1 12 Tf 72 700 Td (x) Tj ET")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Rebuild(ctx, doc, Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestInstall(t *testing.T) {
	doc := model(t, "BT /F1 12 Tf 72 700 Td (Hello) Tj ET")
	out, err := Rebuild(context.Background(), doc, Options{})
	require.NoError(t, err)

	dst := doc.Source.Clone()
	refs, err := Install(dst, out)
	require.NoError(t, err)
	require.Len(t, refs, 1)

	data, err := writer.Bytes(context.Background(), dst, writer.Config{Compress: true})
	require.NoError(t, err)
	reparsed, err := parser.Parse(context.Background(), data)
	require.NoError(t, err)
	pages, err := reparsed.Pages()
	require.NoError(t, err)
	content, err := parser.DecodeStream(context.Background(), reparsed, reparsed.StreamOf(reparsed.Get(pages[0].Dict, "Contents")), nil)
	require.NoError(t, err)
	assert.Equal(t, string(out.Pages[0].Content), string(content))

	origPages, err := doc.Source.Pages()
	require.NoError(t, err)
	orig := doc.Source.StreamOf(doc.Source.Get(origPages[0].Dict, "Contents"))
	assert.NotContains(t, string(orig.Data), "BDC", "the source document is not modified")

	_, err = Install(dst, &Output{})
	require.ErrorIs(t, err, ErrPageMismatch)
}
