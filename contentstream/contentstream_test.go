package contentstream

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/wudi/pdfremedy/coords"
	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/security"
)

func TestParseOperations(t *testing.T) {
	src := []byte("q 1 0 0 1 72 720 cm BT /F1 12 Tf [(Hel) -20 (lo)] TJ ET Q\n/P <</MCID 0>> BDC 0 0 m 10 10 l S EMC")
	ops, err := Parse(src, security.DefaultLimits())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var names []string
	for _, op := range ops {
		names = append(names, op.Operator)
	}
	want := "q cm BT Tf TJ ET Q BDC m l S EMC"
	if got := strings.Join(names, " "); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if len(ops[1].Operands) != 6 || len(ops[4].Operands) != 1 {
		t.Fatalf("operands not attached: %+v %+v", ops[1], ops[4])
	}
	stripped := Strip(ops)
	if len(stripped) != len(ops)-2 {
		t.Fatalf("strip kept marked content: %d", len(stripped))
	}
}

func TestStripKeepsOptionalContentAndArtifacts(t *testing.T) {
	src := []byte("/P <</MCID 0>> BDC BT (a) Tj ET EMC\n" +
		"/OC /oc1 BDC /Span <</MCID 1>> BDC BT (hidden) Tj ET EMC EMC\n" +
		"/Artifact BMC 0 0 m 10 0 l S EMC\n" +
		"/Figure /Fig1 DP EMC")
	ops, err := Parse(src, security.DefaultLimits())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	stripped := Strip(ops)
	var names []string
	for _, op := range stripped {
		names = append(names, op.Operator)
	}
	want := "BT Tj ET BDC BT Tj ET EMC BMC m l S EMC"
	if got := strings.Join(names, " "); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if tagOf(stripped[3]) != "OC" || tagOf(stripped[8]) != "Artifact" {
		t.Fatalf("wrong sequences kept: %v %v", stripped[3], stripped[8])
	}

	art := Artifacts(stripped)
	for i, in := range art {
		want := i >= 8
		if in != want {
			t.Errorf("op %d (%s): artifact=%v want %v", i, stripped[i].Operator, in, want)
		}
	}
}

func TestStripClosesUnbalancedSequence(t *testing.T) {
	ops, err := Parse([]byte("/OC /oc1 BDC BT (x) Tj ET"), security.DefaultLimits())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	stripped := Strip(ops)
	if last := stripped[len(stripped)-1].Operator; last != "EMC" {
		t.Fatalf("open optional-content sequence left unclosed: ends with %s", last)
	}
}

func TestInlineImageRoundTrip(t *testing.T) {
	src := []byte("q 10 0 0 10 0 0 cm BI /W 2 /H 1 /BPC 8 /CS /G ID \x00\xff\nEI Q")
	ops, err := Parse(src, security.DefaultLimits())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ops) != 4 || ops[2].Inline == nil || string(ops[2].Inline.Data) != "\x00\xff" {
		t.Fatalf("inline image not parsed: %+v", ops)
	}
	again, err := Parse(Serialize(ops), security.DefaultLimits())
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if string(again[2].Inline.Data) != "\x00\xff" || again[2].Inline.Dict.Name("CS") != "G" {
		t.Fatalf("inline image lost in round trip: %+v", again[2].Inline)
	}
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse([]byte("BT (unterminated Tj"), security.DefaultLimits())
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	limits := security.DefaultLimits()
	limits.MaxContentOps = 2
	_, err = Parse([]byte("q q q Q Q Q"), limits)
	if !errors.Is(err, security.ErrLimitExceeded) {
		t.Fatalf("expected limit error, got %v", err)
	}
}

func TestSerialize(t *testing.T) {
	ops := []Operation{
		Op("BDC", raw.Name("P"), func() raw.Object { d := raw.Dict(); d.Set("MCID", raw.Int(3)); return d }()),
		Op("rg", raw.Real(1), raw.Real(0.25), raw.Int(0)),
		Op("Tj", raw.Str([]byte("(x)"))),
		Op("EMC"),
	}
	want := "/P << /MCID 3 >> BDC\n1 0.25 0 rg\n(\\(x\\)) Tj\nEMC\n"
	if got := string(Serialize(ops)); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 0.01 }

func TestTracerTextGeometry(t *testing.T) {
	ops, err := Parse([]byte("0.5 g BT /F1 10 Tf 2 0 0 2 100 500 Tm (ab) Tj ET"), security.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	tr := &Tracer{}
	infos := tr.Trace(ops)
	info := infos[4]
	if info.Kind != KindText || info.Text != "ab" || info.Font != "F1" {
		t.Fatalf("unexpected text info %+v", info)
	}
	if !near(info.EffectiveSize, 20) {
		t.Fatalf("effective size %v", info.EffectiveSize)
	}
	if !near(info.Start.X, 100) || !near(info.Start.Y, 500) || info.End.X <= info.Start.X {
		t.Fatalf("baseline %+v -> %+v", info.Start, info.End)
	}
	if !near(info.BBox.Y0, 496) || !near(info.BBox.Y1, 516) {
		t.Fatalf("bbox %+v", info.BBox)
	}
	if len(info.FillOps) != 1 || info.FillOps[0].Operator != "g" {
		t.Fatalf("fill color not tracked: %+v", info.FillOps)
	}
	if infos[0].Kind.Drawing() || infos[1].Kind.Drawing() {
		t.Fatalf("state operators reported as drawing")
	}
}

func TestTracerXObjectsAndPaths(t *testing.T) {
	ops, _ := Parse([]byte("q 200 0 0 100 50 60 cm /Im1 Do Q q /Fm1 Do Q 10 10 m 30 40 l 0 0 5 5 re f 1 1 m 2 2 l n"), security.DefaultLimits())
	tr := &Tracer{XObjects: func(name string) (XObjectInfo, bool) {
		if name == "Fm1" {
			return XObjectInfo{Subtype: "Form", BBox: coords.Rect{X1: 20, Y1: 10}, Matrix: coords.Translate(5, 5)}, true
		}
		return XObjectInfo{Subtype: "Image"}, true
	}}
	infos := tr.Trace(ops)
	if infos[2].Kind != KindImage || infos[2].BBox != (coords.Rect{X0: 50, Y0: 60, X1: 250, Y1: 160}) {
		t.Fatalf("image %+v", infos[2])
	}
	if infos[5].Kind != KindForm || infos[5].BBox != (coords.Rect{X0: 5, Y0: 5, X1: 25, Y1: 15}) {
		t.Fatalf("form %+v", infos[5])
	}
	fill := infos[10]
	if fill.Kind != KindPath || fill.BBox != (coords.Rect{X0: 0, Y0: 0, X1: 30, Y1: 40}) {
		t.Fatalf("path %+v", fill)
	}
	if infos[13].Kind.Drawing() {
		t.Fatalf("n must not draw")
	}
}
