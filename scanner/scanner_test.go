package scanner

import (
	"testing"

	"github.com/wudi/pdfremedy/ir/raw"
)

func nextToken(t *testing.T, s *Scanner) Token {
	t.Helper()
	tok, err := s.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tok
}

func TestScanner_BasicTokens(t *testing.T) {
	s := New([]byte("%PDF-1.7\n1 0 obj\n<< /Name /Value /Nums [1 2.5 -3] /Flag true /Null null >>\nendobj"), Config{})

	if tok := nextToken(t, s); tok.Type != TokenNumber || !tok.IsInt || tok.Int != 1 {
		t.Fatalf("expected number 1, got %+v", tok)
	}
	if tok := nextToken(t, s); tok.Type != TokenNumber || tok.Int != 0 {
		t.Fatalf("expected generation 0, got %+v", tok)
	}
	if tok := nextToken(t, s); !tok.IsKeyword("obj") {
		t.Fatalf("expected obj keyword, got %+v", tok)
	}
	if tok := nextToken(t, s); tok.Type != TokenDict {
		t.Fatalf("expected dict start, got %+v", tok)
	}
	if tok := nextToken(t, s); tok.Type != TokenName || tok.Str != "Name" {
		t.Fatalf("expected Name key, got %+v", tok)
	}
	if tok := nextToken(t, s); tok.Type != TokenName || tok.Str != "Value" {
		t.Fatalf("expected Value, got %+v", tok)
	}
	nextToken(t, s) // /Nums
	if tok := nextToken(t, s); tok.Type != TokenArray {
		t.Fatalf("expected array start, got %+v", tok)
	}
	want := []float64{1, 2.5, -3}
	for _, w := range want {
		tok := nextToken(t, s)
		if tok.Type != TokenNumber || tok.Number() != w {
			t.Fatalf("expected %v, got %+v", w, tok)
		}
	}
	if tok := nextToken(t, s); !tok.IsKeyword("]") {
		t.Fatalf("expected ], got %+v", tok)
	}
	nextToken(t, s) // /Flag
	if tok := nextToken(t, s); tok.Type != TokenBoolean || !tok.Bool {
		t.Fatalf("expected true, got %+v", tok)
	}
	nextToken(t, s) // /Null
	if tok := nextToken(t, s); tok.Type != TokenNull {
		t.Fatalf("expected null, got %+v", tok)
	}
	if tok := nextToken(t, s); !tok.IsKeyword(">>") {
		t.Fatalf("expected >>, got %+v", tok)
	}
	if tok := nextToken(t, s); !tok.IsKeyword("endobj") {
		t.Fatalf("expected endobj, got %+v", tok)
	}
	if tok := nextToken(t, s); tok.Type != TokenEOF {
		t.Fatalf("expected EOF, got %+v", tok)
	}
}

func TestScanner_Strings(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`(hello)`, "hello"},
		{`(a (nested) b)`, "a (nested) b"},
		{`(esc\n\(\)\\)`, "esc\n()\\"},
		{`(\101\102C)`, "ABC"},
		{"(line\\\ncontinued)", "linecontinued"},
		{`<48656C6C6F>`, "Hello"},
		{`<48 65 6>`, "He`"},
	}
	for _, tc := range cases {
		s := New([]byte(tc.in), Config{})
		tok := nextToken(t, s)
		if tok.Type != TokenString || string(tok.Bytes) != tc.want {
			t.Errorf("%s: got %q want %q", tc.in, tok.Bytes, tc.want)
		}
	}
}

func TestScanner_NameEscapes(t *testing.T) {
	s := New([]byte("/Name#20With#23Hash"), Config{})
	tok := nextToken(t, s)
	if tok.Str != "Name With#Hash" {
		t.Fatalf("unexpected name decode: %q", tok.Str)
	}
}

func TestScanner_StringLimit(t *testing.T) {
	s := New([]byte("(abcdef)"), Config{MaxStringLength: 3})
	if _, err := s.Next(); err != ErrStringTooLong {
		t.Fatalf("expected ErrStringTooLong, got %v", err)
	}
}

func TestScanner_ReadStream(t *testing.T) {
	data := []byte("stream\r\nABCDEF\nendstream endobj")
	s := New(data, Config{})
	nextToken(t, s)
	body, err := s.ReadStream(6)
	if err != nil || string(body) != "ABCDEF" {
		t.Fatalf("declared length: %q %v", body, err)
	}
	if tok := nextToken(t, s); !tok.IsKeyword("endobj") {
		t.Fatalf("expected endobj after stream, got %+v", tok)
	}

	// Wrong length falls back to searching for endstream.
	s = New(data, Config{})
	nextToken(t, s)
	body, err = s.ReadStream(3)
	if err != nil || string(body) != "ABCDEF" {
		t.Fatalf("fallback: %q %v", body, err)
	}
}

func TestScanner_InlineImage(t *testing.T) {
	s := New([]byte("ID \x00\x01EIx\x02 EI Q"), Config{})
	if tok := nextToken(t, s); !tok.IsKeyword("ID") {
		t.Fatalf("expected ID, got %+v", tok)
	}
	data, err := s.ReadInlineImage()
	if err != nil {
		t.Fatalf("read inline image: %v", err)
	}
	if string(data) != "\x00\x01EIx\x02" {
		t.Fatalf("unexpected inline data %q", data)
	}
	if tok := nextToken(t, s); !tok.IsKeyword("Q") {
		t.Fatalf("expected Q, got %+v", tok)
	}
}

func TestObjectReader_References(t *testing.T) {
	r := NewObjectReader(New([]byte("<< /Kids [3 0 R 4 0 R] /Count 2 /Box [0 0 612 792] >>"), Config{}))
	obj, err := r.ReadObject()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	d, ok := obj.(*raw.DictObj)
	if !ok {
		t.Fatalf("expected dict, got %T", obj)
	}
	kids, _ := d.Get("Kids")
	arr := kids.(*raw.ArrayObj)
	if arr.Len() != 2 {
		t.Fatalf("expected 2 kids, got %d", arr.Len())
	}
	if ref, ok := arr.Items[1].(raw.RefObj); !ok || ref.R.Num != 4 {
		t.Fatalf("expected ref 4 0 R, got %#v", arr.Items[1])
	}
	box, _ := d.Get("Box")
	if n := box.(*raw.ArrayObj).Len(); n != 4 {
		t.Fatalf("expected 4 numbers in box, got %d", n)
	}
	count, _ := d.Get("Count")
	if c := count.(raw.NumberObj); c.Int() != 2 {
		t.Fatalf("expected count 2, got %v", c)
	}
}
