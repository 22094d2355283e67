package raw

import (
	"errors"
	"testing"
)

func TestAppendObject(t *testing.T) {
	d := Dict()
	d.Set("Type", Name("Page"))
	d.Set("Kids", NewArray(Ref(3, 0), Int(-2), Real(0.5), Real(1.0000001)))
	d.Set("T", Str([]byte("a(b)\\\n")))
	d.Set("A B", Bool(true))
	got := string(AppendObject(nil, d))
	want := `<< /A#20B true /Kids [3 0 R -2 0.5 1] /T (a\(b\)\\\n) /Type /Page >>`
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
	if s := string(AppendObject(nil, StringObj{Bytes: []byte{0xFE, 0xFF}, Hex: true})); s != "<FEFF>" {
		t.Fatalf("hex string %s", s)
	}
}

func TestTextRoundTrip(t *testing.T) {
	for _, s := range []string{"Annual report", "Überblick – 2024", "日本語"} {
		if got := DecodeText(TextString(s).Bytes); got != s {
			t.Fatalf("round trip %q -> %q", s, got)
		}
	}
}

func buildTree() *Document {
	doc := NewDocument("1.7")
	page := Dict()
	page.Set("Type", Name("Page"))
	pageRef := doc.Add(page)
	pages := Dict()
	pages.Set("Type", Name("Pages"))
	pages.Set("Kids", NewArray(pageRef))
	pages.Set("MediaBox", NewArray(Int(0), Int(0), Int(300), Int(400)))
	pages.Set("Rotate", Int(90))
	pagesRef := doc.Add(pages)
	page.Set("Parent", pagesRef)
	cat := Dict()
	cat.Set("Type", Name("Catalog"))
	cat.Set("Pages", pagesRef)
	doc.Trailer.Set("Root", doc.Add(cat))
	return doc
}

func TestPagesInheritance(t *testing.T) {
	doc := buildTree()
	pages, err := doc.Pages()
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 || pages[0].MediaBox != [4]float64{0, 0, 300, 400} || pages[0].Rotate != 90 {
		t.Fatalf("unexpected pages %+v", pages)
	}
}

func TestCloneIsDeep(t *testing.T) {
	doc := buildTree()
	cp := doc.Clone()
	cat, _ := cp.Catalog()
	cat.Set("Lang", Str([]byte("en")))
	orig, _ := doc.Catalog()
	if _, ok := orig.Get("Lang"); ok {
		t.Fatalf("clone shares the catalog dictionary")
	}
}

func TestMissingCatalog(t *testing.T) {
	if _, err := NewDocument("1.7").Catalog(); !errors.Is(err, ErrNoCatalog) {
		t.Fatalf("expected ErrNoCatalog, got %v", err)
	}
}
