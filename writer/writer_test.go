package writer

import (
	"bytes"
	"context"
	"testing"

	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/ir/semantic"
	"github.com/wudi/pdfremedy/parser"
)

// minimalDoc returns a two-page document plus one unreachable object.
func minimalDoc() (*raw.Document, []raw.ObjectRef) {
	doc := raw.NewDocument("1.4")
	pagesDict := raw.Dict()
	pagesRef := doc.Add(pagesDict)
	var kids []raw.Object
	var refs []raw.ObjectRef
	for i := 0; i < 2; i++ {
		content := raw.NewStream(raw.Dict(), []byte("BT /F1 12 Tf 72 700 Td (Hello) Tj ET"))
		page := raw.Dict()
		page.Set("Type", raw.Name("Page"))
		page.Set("Parent", pagesRef)
		page.Set("MediaBox", raw.NewArray(raw.Int(0), raw.Int(0), raw.Int(612), raw.Int(792)))
		page.Set("Contents", doc.Add(content))
		ref := doc.Add(page)
		kids = append(kids, ref)
		refs = append(refs, ref.R)
	}
	pagesDict.Set("Type", raw.Name("Pages"))
	pagesDict.Set("Kids", raw.NewArray(kids...))
	pagesDict.Set("Count", raw.Int(2))
	cat := raw.Dict()
	cat.Set("Type", raw.Name("Catalog"))
	cat.Set("Pages", pagesRef)
	doc.Trailer.Set("Root", doc.Add(cat))
	doc.Add(raw.Str([]byte("garbage")))
	return doc, refs
}

func TestWriteReparses(t *testing.T) {
	doc, _ := minimalDoc()
	doc.Info(true).Set("Title", raw.TextString("Quarterly"))
	out, err := Bytes(context.Background(), doc, Config{Compress: true})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-1.7")) {
		t.Fatalf("header: %q", out[:10])
	}
	again, err := parser.Parse(context.Background(), out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	pages, err := again.Pages()
	if err != nil || len(pages) != 2 {
		t.Fatalf("pages: %d %v", len(pages), err)
	}
	title, _ := again.StringOf(again.Get(again.Info(false), "Title"))
	if raw.DecodeText(title) != "Quarterly" {
		t.Fatalf("title %q", title)
	}
	for _, o := range again.Objects {
		if s, ok := o.(raw.StringObj); ok && string(s.Bytes) == "garbage" {
			t.Fatalf("unreachable object was written")
		}
	}
	content := again.StreamOf(again.Get(pages[0].Dict, "Contents"))
	if content.Dict.Name("Filter") != "FlateDecode" {
		t.Fatalf("content stream not compressed: %v", content.Dict.Keys())
	}
	data, err := parser.DecodeStream(context.Background(), again, content, nil)
	if err != nil || string(data) != "BT /F1 12 Tf 72 700 Td (Hello) Tj ET" {
		t.Fatalf("decoded %q %v", data, err)
	}
}

func TestWriteDeterministic(t *testing.T) {
	doc, _ := minimalDoc()
	a, err := Bytes(context.Background(), doc, Config{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Bytes(context.Background(), doc, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("output differs between runs")
	}
}

func TestWriteCancelled(t *testing.T) {
	doc, _ := minimalDoc()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Bytes(ctx, doc, Config{}); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestBuildStructTree(t *testing.T) {
	doc, pages := minimalDoc()
	annot := raw.Dict()
	annot.Set("Type", raw.Name("Annot"))
	annot.Set("Subtype", raw.Name("Link"))
	annot.Set("StructParent", raw.Int(40))
	annotRef := doc.Add(annot)
	doc.DictOf(raw.RefObj{R: pages[1]}).Set("Annots", raw.NewArray(annotRef))

	tree := semantic.NewTree()
	h1 := semantic.NewElement("H1")
	h1.Refs = []semantic.ContentRef{{Page: 0, CID: 0}}
	p := semantic.NewElement(semantic.TagP)
	p.Refs = []semantic.ContentRef{{Page: 0, CID: 2}, {Page: 1, CID: 0}}
	link := semantic.NewElement(semantic.TagLink)
	link.Refs = []semantic.ContentRef{{Page: 1, CID: 1}}
	link.Objects = []semantic.ObjectRef{{Page: 1, Ref: annotRef.R}}
	table := semantic.NewElement(semantic.TagTable)
	table.Summary = "Totals"
	th := semantic.NewElement(semantic.TagTH)
	th.Scope = "Column"
	th.Refs = []semantic.ContentRef{{Page: 1, CID: 2}}
	tr := semantic.NewElement(semantic.TagTR)
	tr.Add(th)
	table.Add(tr)
	tree.Root.Add(h1, p, link, table)

	if err := BuildStructTree(doc, tree, pages); err != nil {
		t.Fatalf("build: %v", err)
	}
	out, err := Bytes(context.Background(), doc, Config{})
	if err != nil {
		t.Fatal(err)
	}
	re, err := parser.Parse(context.Background(), out)
	if err != nil {
		t.Fatal(err)
	}
	cat, _ := re.Catalog()
	root := re.DictOf(re.Get(cat, "StructTreeRoot"))
	if root == nil {
		t.Fatalf("no StructTreeRoot")
	}
	if n, _ := re.IntOf(re.Get(root, "ParentTreeNextKey")); n != 3 {
		t.Fatalf("ParentTreeNextKey = %d", n)
	}
	rePages, _ := re.Pages()
	if k, _ := re.IntOf(re.Get(rePages[0].Dict, "StructParents")); k != 0 {
		t.Fatalf("page 0 StructParents %d", k)
	}
	if rePages[1].Dict.Name("Tabs") != "S" {
		t.Fatalf("page with annotations lacks /Tabs /S")
	}
	entries := ParentTreeEntries(re, re.DictOf(re.Get(root, "ParentTree")))
	if len(entries) != 3 || entries[2].Key != 2 {
		t.Fatalf("parent tree entries %+v", entries)
	}
	page0 := re.ArrayOf(entries[0].Value)
	if page0.Len() != 3 {
		t.Fatalf("page 0 parent array %d", page0.Len())
	}
	if _, isNull := page0.Items[1].(raw.NullObj); !isNull {
		t.Fatalf("MCID gap must be null, got %T", page0.Items[1])
	}
	pElem := re.DictOf(page0.Items[2])
	if pElem.Name("S") != "P" {
		t.Fatalf("MCID 2 parent %v", pElem.Name("S"))
	}
	kids := re.ArrayOf(re.Get(pElem, "K"))
	if kids.Len() != 2 {
		t.Fatalf("P kids %d", kids.Len())
	}
	if _, ok := kids.Items[0].(raw.NumberObj); !ok {
		t.Fatalf("same-page MCID should be an integer")
	}
	if mcr := re.DictOf(kids.Items[1]); mcr == nil || mcr.Name("Type") != "MCR" {
		t.Fatalf("cross-page ref should be an MCR")
	}
	reAnnot := re.DictOf(re.ArrayOf(re.Get(rePages[1].Dict, "Annots")).Items[0])
	if k, _ := re.IntOf(re.Get(reAnnot, "StructParent")); k != 2 {
		t.Fatalf("annotation StructParent %d", k)
	}
	var sawSummary, sawScope bool
	for _, o := range re.Objects {
		d, ok := o.(*raw.DictObj)
		if !ok || d.Name("Type") != "StructElem" {
			continue
		}
		a := re.DictOf(re.Get(d, "A"))
		switch d.Name("S") {
		case "Table":
			s, _ := re.StringOf(re.Get(a, "Summary"))
			sawSummary = raw.DecodeText(s) == "Totals"
		case "TH":
			sawScope = a.Name("Scope") == "Column"
		}
	}
	if !sawSummary || !sawScope {
		t.Fatalf("table attributes missing: summary=%v scope=%v", sawSummary, sawScope)
	}
}

func TestBuildStructTreeUnknownPage(t *testing.T) {
	doc, pages := minimalDoc()
	tree := semantic.NewTree()
	p := semantic.NewElement(semantic.TagP)
	p.Refs = []semantic.ContentRef{{Page: 5, CID: 0}}
	tree.Root.Add(p)
	if err := BuildStructTree(doc, tree, pages); err == nil {
		t.Fatalf("expected page index error")
	}
}
