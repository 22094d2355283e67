package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wudi/pdfremedy/builder"
	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/ir/semantic"
	"github.com/wudi/pdfremedy/observability"
	"github.com/wudi/pdfremedy/parser"
	"github.com/wudi/pdfremedy/writer"
	"github.com/wudi/pdfremedy/xmp"
)

func fixture(t *testing.T, b builder.PDFBuilder) *raw.Document {
	t.Helper()
	b.NewPage(612, 792).DrawText("Hello", 72, 700, builder.TextOptions{}).Finish()
	doc, err := b.Build()
	require.NoError(t, err)
	return doc
}

func text(t *testing.T, doc *raw.Document, dict *raw.DictObj, key string) string {
	t.Helper()
	b, ok := doc.StringOf(doc.Get(dict, key))
	require.True(t, ok, "missing /%s", key)
	return raw.DecodeText(b)
}

func packet(t *testing.T, doc *raw.Document, cat *raw.DictObj) xmp.Packet {
	t.Helper()
	s := doc.StreamOf(doc.Get(cat, "Metadata"))
	require.NotNil(t, s)
	assert.Equal(t, "Metadata", s.Dict.Name("Type"))
	assert.Equal(t, "XML", s.Dict.Name("Subtype"))
	data, err := parser.DecodeStream(context.Background(), doc, s, nil)
	require.NoError(t, err)
	pkt, err := xmp.Parse(data)
	require.NoError(t, err)
	return pkt
}

func TestApplyDefaultsFromSourceName(t *testing.T) {
	doc := fixture(t, builder.NewBuilder())
	decisions, err := Apply(doc, Inputs{SourceName: "/uploads/report.pdf"}, Options{PDFUAPart: 1})
	require.NoError(t, err)
	assert.Equal(t, []Decision{
		{Field: "language", Value: "en-US", Source: SourceDefault},
		{Field: "title", Value: "report", Source: SourceDefault},
	}, decisions)

	// The values survive serialization.
	data, err := writer.Bytes(context.Background(), doc, writer.Config{Compress: true})
	require.NoError(t, err)
	doc, err = parser.Parse(context.Background(), data)
	require.NoError(t, err)
	cat, err := doc.Catalog()
	require.NoError(t, err)

	assert.Equal(t, "en-US", text(t, doc, cat, "Lang"))
	assert.Equal(t, "report", text(t, doc, doc.Info(false), "Title"))
	assert.Equal(t, DefaultProducer, text(t, doc, doc.Info(false), "Producer"))
	mark := doc.DictOf(doc.Get(cat, "MarkInfo"))
	require.NotNil(t, mark)
	assert.Equal(t, raw.Bool(true), doc.Get(mark, "Marked"))
	prefs := doc.DictOf(doc.Get(cat, "ViewerPreferences"))
	require.NotNil(t, prefs)
	assert.Equal(t, raw.Bool(true), doc.Get(prefs, "DisplayDocTitle"))

	pkt := packet(t, doc, cat)
	assert.Equal(t, "report", pkt.Title)
	assert.Equal(t, "en-US", pkt.Language)
	assert.Equal(t, 1, pkt.PDFUAPart)
}

func TestLanguagePrecedence(t *testing.T) {
	cases := []struct {
		name string
		in   Inputs
		opts Options
		want Decision
	}{
		{"directive wins", Inputs{DirectiveLang: "fr-ca", OriginalLang: "de"}, Options{},
			Decision{"language", "fr-CA", SourceDirective}},
		{"invalid directive falls back", Inputs{DirectiveLang: "french please", OriginalLang: "de"}, Options{},
			Decision{"language", "de", SourceOriginal}},
		{"invalid original", Inputs{OriginalLang: "en_US"}, Options{},
			Decision{"language", "en-US", SourceDefault}},
		{"configured default", Inputs{}, Options{DefaultLanguage: "es"},
			Decision{"language", "es", SourceDefault}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := fixture(t, builder.NewBuilder())
			decisions, err := Apply(doc, tc.in, tc.opts)
			require.NoError(t, err)
			assert.Equal(t, tc.want, decisions[0])
			cat, err := doc.Catalog()
			require.NoError(t, err)
			assert.Equal(t, tc.want.Value, text(t, doc, cat, "Lang"))
		})
	}
}

func TestTitlePrecedence(t *testing.T) {
	cases := []struct {
		name string
		in   Inputs
		opts Options
		want Decision
	}{
		{"directive wins", Inputs{DirectiveTitle: " Annual Report ", OriginalTitle: "draft", SourceName: "x.pdf"}, Options{},
			Decision{"title", "Annual Report", SourceDirective}},
		{"original", Inputs{OriginalTitle: "Minutes", SourceName: "x.pdf"}, Options{},
			Decision{"title", "Minutes", SourceOriginal}},
		{"file name", Inputs{SourceName: "budget 2024.v2.pdf"}, Options{},
			Decision{"title", "budget 2024.v2", SourceDefault}},
		{"configured default", Inputs{}, Options{DefaultTitle: "Scanned document"},
			Decision{"title", "Scanned document", SourceDefault}},
		{"built-in default", Inputs{}, Options{},
			Decision{"title", DefaultTitle, SourceDefault}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := fixture(t, builder.NewBuilder())
			decisions, err := Apply(doc, tc.in, tc.opts)
			require.NoError(t, err)
			assert.Equal(t, tc.want, decisions[1])
			assert.Equal(t, tc.want.Value, text(t, doc, doc.Info(false), "Title"))
		})
	}
}

func TestApplyKeepsForeignXMPFields(t *testing.T) {
	b := builder.NewBuilder().SetMetadata(xmp.Packet{Title: "Old", CreatorTool: "Word"}.Marshal())
	doc := fixture(t, b)
	_, err := Apply(doc, Inputs{OriginalTitle: "Old", DirectiveTitle: "New"}, Options{Producer: "remedy-test"})
	require.NoError(t, err)
	cat, err := doc.Catalog()
	require.NoError(t, err)
	pkt := packet(t, doc, cat)
	assert.Equal(t, "New", pkt.Title)
	assert.Equal(t, "Word", pkt.CreatorTool)
	assert.Equal(t, "remedy-test", pkt.Producer)
	assert.Zero(t, pkt.PDFUAPart)
}

func TestApplyClearsSuspects(t *testing.T) {
	doc := fixture(t, builder.NewBuilder())
	cat, err := doc.Catalog()
	require.NoError(t, err)
	mark := raw.Dict()
	mark.Set("Marked", raw.Bool(false))
	mark.Set("Suspects", raw.Bool(true))
	cat.Set("MarkInfo", mark)

	_, err = Apply(doc, Inputs{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, raw.Bool(true), doc.Get(mark, "Marked"))
	assert.Equal(t, raw.Bool(false), doc.Get(mark, "Suspects"))
}

func TestApplyWithoutCatalog(t *testing.T) {
	_, err := Apply(raw.NewDocument("1.7"), Inputs{}, Options{})
	require.ErrorIs(t, err, raw.ErrNoCatalog)
}

func TestValidLanguage(t *testing.T) {
	for in, want := range map[string]string{"en": "en", "en-us": "en-US", " fr-CA ": "fr-CA", "zh-Hant": "zh-Hant"} {
		got, ok := ValidLanguage(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got)
	}
	for _, in := range []string{"", "en_US", "not a tag", "x"} {
		_, ok := ValidLanguage(in)
		assert.False(t, ok, in)
	}
}

func TestScriptHint(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := observability.FromZap(zap.New(core))

	doc := fixture(t, builder.NewBuilder())
	_, err := Apply(doc, Inputs{SampleText: "Привет мир, это пример текста"}, Options{Logger: log})
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("document language does not match the dominant script").Len())
	assert.Equal(t, 2, logs.FilterMessage("metadata set").Len())

	core, logs = observer.New(zap.InfoLevel)
	_, err = Apply(fixture(t, builder.NewBuilder()), Inputs{DirectiveLang: "ru", SampleText: "Привет мир"},
		Options{Logger: observability.FromZap(zap.New(core))})
	require.NoError(t, err)
	assert.Zero(t, logs.FilterMessage("document language does not match the dominant script").Len())
}

func TestInputsOf(t *testing.T) {
	doc := &semantic.Document{
		SourceName:     "a.pdf",
		Lang:           "de",
		Title:          "Original",
		DirectiveTitle: "Fixed",
		Pages: []*semantic.Page{{Units: []semantic.Unit{
			{Kind: semantic.UnitText, Text: "Guten"},
			{Kind: semantic.UnitImage},
			{Kind: semantic.UnitText, Text: "Tag"},
		}}},
	}
	in := InputsOf(doc)
	assert.Equal(t, "Fixed", in.DirectiveTitle)
	assert.Equal(t, "de", in.OriginalLang)
	assert.Equal(t, "Original", in.OriginalTitle)
	assert.Equal(t, "a.pdf", in.SourceName)
	assert.Equal(t, "Guten Tag ", in.SampleText)
}
