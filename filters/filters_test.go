package filters

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/security"
)

func TestFlateRoundTrip(t *testing.T) {
	src := bytes.Repeat([]byte("BT /F1 12 Tf (Hello) Tj ET\n"), 50)
	enc, err := FlateEncode(src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	p := NewPipeline(security.DefaultLimits())
	out, err := p.Decode(context.Background(), enc, []string{"FlateDecode"}, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(out, src) {
		t.Fatalf("round trip mismatch")
	}
}

func TestFlateLimit(t *testing.T) {
	enc, _ := FlateEncode(bytes.Repeat([]byte{'a'}, 4096))
	limits := security.DefaultLimits()
	limits.MaxDecompressedSize = 1024
	_, err := NewPipeline(limits).Decode(context.Background(), enc, []string{"Fl"}, nil)
	if !errors.Is(err, security.ErrLimitExceeded) {
		t.Fatalf("expected limit error, got %v", err)
	}
}

func TestPNGUpPredictor(t *testing.T) {
	// Two rows of three bytes, second row encoded with the Up filter.
	data := []byte{0, 1, 2, 3, 2, 1, 1, 1}
	params := raw.Dict()
	params.Set("Predictor", raw.Int(12))
	params.Set("Columns", raw.Int(3))
	out, err := applyPredictor(data, params)
	if err != nil {
		t.Fatalf("predictor: %v", err)
	}
	want := []byte{1, 2, 3, 2, 3, 4}
	if !bytes.Equal(out, want) {
		t.Fatalf("got %v want %v", out, want)
	}
}

func TestASCIIFilters(t *testing.T) {
	p := NewPipeline(security.DefaultLimits())
	out, err := p.Decode(context.Background(), []byte("48 65 6C6C 6F>"), []string{"AHx"}, nil)
	if err != nil || string(out) != "Hello" {
		t.Fatalf("hex: %q %v", out, err)
	}
	out, err = p.Decode(context.Background(), []byte("<~87cURDZ~>"), []string{"ASCII85Decode"}, nil)
	if err != nil || string(out) != "Hello" {
		t.Fatalf("a85: %q %v", out, err)
	}
}

func TestRunLength(t *testing.T) {
	in := []byte{2, 'a', 'b', 'c', 254, 'x', 128}
	out, err := runLengthDecoder{}.Decode(context.Background(), in, nil, 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(out) != "abcxxx" {
		t.Fatalf("got %q", out)
	}
}

func TestImageFilterStops(t *testing.T) {
	p := NewPipeline(security.DefaultLimits())
	out, err := p.Decode(context.Background(), []byte{0xFF, 0xD8}, []string{"DCTDecode"}, nil)
	if !errors.Is(err, ErrImageFilter) || len(out) != 2 {
		t.Fatalf("expected passthrough with ErrImageFilter, got %v %v", out, err)
	}
	if _, err := p.Decode(context.Background(), nil, []string{"Bogus"}, nil); !errors.Is(err, ErrUnknownFilter) {
		t.Fatalf("expected ErrUnknownFilter, got %v", err)
	}
}
