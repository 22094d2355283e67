package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/wudi/pdfremedy/builder"
	"github.com/wudi/pdfremedy/coords"
	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/ir/semantic"
	"github.com/wudi/pdfremedy/parser"
	"github.com/wudi/pdfremedy/xmp"
)

func extractBytes(t *testing.T, data []byte) *semantic.Document {
	t.Helper()
	doc, err := parser.Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	opts := DefaultOptions()
	opts.SourceName = "fixture.pdf"
	out, err := Extract(context.Background(), doc, opts)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	return out
}

func mustBytes(t *testing.T, b builder.PDFBuilder) []byte {
	t.Helper()
	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("build fixture: %v", err)
	}
	return data
}

func TestExtractBlocks(t *testing.T) {
	b := builder.NewBuilder().SetTitle("Fixture").SetLanguage("en-US")
	b.NewPage(612, 792).
		DrawText("Quarterly report", 72, 700, builder.TextOptions{FontSize: 24}).
		DrawText("Revenue grew in every region this quarter.", 72, 650, builder.TextOptions{FontSize: 12}).
		DrawText("Costs were flat compared to last year.", 72, 636, builder.TextOptions{FontSize: 12}).
		DrawTable(builder.Table{
			Rows:       [][]string{{"Name", "Qty"}, {"Apple", "3"}, {"Pear", "5"}},
			HeaderBold: true,
		}, builder.TableOptions{X: 72, Y: 500, FontSize: 10}).
		DrawText("1. First item", 72, 400, builder.TextOptions{FontSize: 12}).
		DrawText("2. Second item", 72, 386, builder.TextOptions{FontSize: 12}).
		DrawText("Visit site", 72, 300, builder.TextOptions{FontSize: 12}).
		DrawImage(72, 150, 100, 80, builder.ImageOptions{}).
		AddLink(coords.Rect{X0: 70, Y0: 295, X1: 200, Y1: 315}, "https://example.com").
		AddField(coords.Rect{X0: 300, Y0: 100, X1: 400, Y1: 120}, "email", "Email address", "").
		Finish()
	doc := extractBytes(t, mustBytes(t, b))

	if doc.Lang != "en-US" || doc.Title != "Fixture" {
		t.Fatalf("lang/title = %q/%q", doc.Lang, doc.Title)
	}
	page := doc.Pages[0]
	if len(page.Units) != 13 {
		t.Fatalf("expected 13 units, got %d", len(page.Units))
	}
	var kinds []semantic.BlockKind
	for _, bl := range page.Blocks {
		kinds = append(kinds, bl.Kind)
	}
	want := []semantic.BlockKind{
		semantic.BlockHeading, semantic.BlockParagraph, semantic.BlockTable,
		semantic.BlockList, semantic.BlockLink, semantic.BlockFigure, semantic.BlockForm,
	}
	if len(kinds) != len(want) {
		t.Fatalf("blocks %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("block %d is %v, want %v (all %v)", i, kinds[i], want[i], kinds)
		}
	}
	if h := page.Blocks[0]; h.Level != 1 || h.Text != "Quarterly report" {
		t.Errorf("heading %+v", h)
	}
	if p := page.Blocks[1]; len(p.Units) != 2 {
		t.Errorf("paragraph should join two lines, got %v", p.Units)
	}
	table := page.Blocks[2]
	if len(table.Rows) != 3 || len(table.Rows[0]) != 2 || table.Header != semantic.HeaderHeuristic {
		t.Errorf("table rows=%v header=%v", table.Rows, table.Header)
	}
	if list := page.Blocks[3]; len(list.Items) != 2 {
		t.Errorf("list items %v", list.Items)
	}
	link := page.Blocks[4]
	if link.Annotation != 0 || link.Text != "Visit site" {
		t.Errorf("link %+v", link)
	}
	form := page.Blocks[6]
	if form.AccessibleName != "Email address" || len(form.Units) != 0 || form.BBox.Empty() {
		t.Errorf("form %+v", form)
	}
	if page.Annotations[0].URI != "https://example.com" || page.Annotations[1].FieldName != "email" {
		t.Errorf("annotations %+v", page.Annotations)
	}
	if page.Annotations[0].Ref == (raw.ObjectRef{}) {
		t.Errorf("indirect annotation should keep its reference")
	}
}

func TestGroupUnits(t *testing.T) {
	b := builder.NewBuilder()
	b.NewPage(300, 300).
		Raw("/P <</MCID 4>> BDC BT /F1 12 Tf 72 200 Td (Hello ) Tj (world) Tj ET EMC").
		Raw("0 0 m 10 10 l S 20 20 m 30 30 l S").
		Raw("q 1 0 0 RG 40 40 50 50 re f Q").
		DrawInlineImage(100, 100, 10, 10).
		Finish()
	page := extractBytes(t, mustBytes(t, b)).Pages[0]

	if len(page.Units) != 4 {
		t.Fatalf("units %+v", page.Units)
	}
	text := page.Units[0]
	if text.Kind != semantic.UnitText || text.Text != "Hello world" || text.BaseFont != "Helvetica" {
		t.Fatalf("text unit %+v", text)
	}
	for _, op := range page.Ops {
		if op.Operator == "BDC" || op.Operator == "EMC" {
			t.Fatalf("existing marked content should be stripped")
		}
	}
	vec := page.Units[1]
	if vec.Kind != semantic.UnitVector || page.Ops[vec.OpStart].Operator != "m" || page.Ops[vec.OpEnd-1].Operator != "S" {
		t.Fatalf("vector unit should span both paths: %+v", vec)
	}
	if vec.OpEnd-vec.OpStart != 6 {
		t.Fatalf("vector range %d..%d", vec.OpStart, vec.OpEnd)
	}
	if page.Units[2].Kind != semantic.UnitVector || page.Ops[page.Units[2].OpStart].Operator != "re" {
		t.Fatalf("q-separated path should be its own unit: %+v", page.Units[2])
	}
	if page.Units[3].Kind != semantic.UnitImage {
		t.Fatalf("inline image unit %+v", page.Units[3])
	}
	if len(page.Blocks) != 4 || page.Blocks[1].Kind != semantic.BlockFigure {
		t.Fatalf("graphics should become figures: %+v", page.Blocks)
	}
}

func TestExtractUnparsedPage(t *testing.T) {
	b := builder.NewBuilder()
	b.NewPage(100, 100).Raw("BT /F1 12 Tf (unterminated Tj").Finish()
	b.NewPage(100, 100).DrawText("ok", 10, 10, builder.TextOptions{}).Finish()
	doc := extractBytes(t, mustBytes(t, b))
	if !doc.Pages[0].Unparsed || len(doc.Pages[0].RawContent) == 0 {
		t.Fatalf("first page should be kept unparsed")
	}
	if doc.Pages[1].Unparsed || len(doc.Pages[1].Units) != 1 {
		t.Fatalf("second page should extract normally")
	}
}

func TestExtractXMPTitle(t *testing.T) {
	packet := xmp.Packet{Title: "From XMP", Language: "fr"}
	b := builder.NewBuilder().SetMetadata(packet.Marshal())
	b.NewPage(100, 100).DrawText("x", 10, 10, builder.TextOptions{}).Finish()
	doc := extractBytes(t, mustBytes(t, b))
	if doc.Title != "From XMP" || doc.Lang != "fr" {
		t.Fatalf("title/lang %q/%q", doc.Title, doc.Lang)
	}
}

func TestExtractFatal(t *testing.T) {
	doc := raw.NewDocument("1.7")
	_, err := Extract(context.Background(), doc, DefaultOptions())
	if !errors.Is(err, parser.ErrFatalParse) {
		t.Fatalf("expected fatal parse error, got %v", err)
	}
}

func TestExtractCancelled(t *testing.T) {
	b := builder.NewBuilder()
	b.NewPage(100, 100).DrawText("x", 10, 10, builder.TextOptions{}).Finish()
	doc, err := parser.Parse(context.Background(), mustBytes(t, b))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Extract(ctx, doc, DefaultOptions()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTitleFromSource(t *testing.T) {
	if got := TitleFromSource("/tmp/in/report.pdf"); got != "report" {
		t.Fatalf("got %q", got)
	}
	if got := TitleFromSource(""); got != "" {
		t.Fatalf("got %q", got)
	}
}
