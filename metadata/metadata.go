// Package metadata writes the document-level accessibility metadata:
// language, title, the tagged flag and the matching XMP packet.
package metadata

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"

	"github.com/wudi/pdfremedy/extractor"
	"github.com/wudi/pdfremedy/fonts"
	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/ir/semantic"
	"github.com/wudi/pdfremedy/observability"
	"github.com/wudi/pdfremedy/parser"
	"github.com/wudi/pdfremedy/xmp"
)

const (
	DefaultLanguage = "en-US"
	DefaultTitle    = "Untitled document"
	DefaultProducer = "pdfremedy"
)

// Source says where a metadata value came from.
type Source string

const (
	SourceDirective Source = "directive"
	SourceOriginal  Source = "original"
	SourceDefault   Source = "default"
)

// Decision records the value chosen for one field.
type Decision struct {
	Field  string `json:"field"`
	Value  string `json:"value"`
	Source Source `json:"source"`
}

func (d Decision) String() string {
	return fmt.Sprintf("%s %q (%s)", d.Field, d.Value, d.Source)
}

// Inputs are the candidate values, highest precedence first.
type Inputs struct {
	DirectiveLang  string
	DirectiveTitle string
	OriginalLang   string
	OriginalTitle  string
	SourceName     string
	// SampleText is checked against the chosen language's script.
	SampleText string
}

const sampleRunes = 4000

// InputsOf collects the candidates from a resolved content model.
func InputsOf(doc *semantic.Document) Inputs {
	in := Inputs{
		DirectiveLang:  doc.DirectiveLang,
		DirectiveTitle: doc.DirectiveTitle,
		OriginalLang:   doc.Lang,
		OriginalTitle:  doc.Title,
		SourceName:     doc.SourceName,
	}
	var b strings.Builder
	n := 0
	for _, p := range doc.Pages {
		for _, u := range p.Units {
			if n >= sampleRunes {
				break
			}
			if u.Text == "" {
				continue
			}
			b.WriteString(u.Text)
			b.WriteByte(' ')
			n += utf8.RuneCountInString(u.Text) + 1
		}
	}
	in.SampleText = b.String()
	return in
}

type Options struct {
	DefaultLanguage string
	DefaultTitle    string
	Producer        string
	// PDFUAPart is written to the XMP identification schema when positive.
	PDFUAPart int
	Logger    observability.Logger
}

// ValidLanguage reports whether s is a well-formed BCP-47 tag and returns
// its canonical form.
func ValidLanguage(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(s, "_") {
		return "", false
	}
	tag, err := language.Parse(s)
	if err != nil || tag == language.Und {
		return "", false
	}
	return tag.String(), true
}

// Apply writes language, title, the tagged flag and the XMP packet into
// doc's catalog and Info dictionary.
func Apply(doc *raw.Document, in Inputs, opts Options) ([]Decision, error) {
	log := observability.OrNop(opts.Logger).Named("metadata")
	cat, err := doc.Catalog()
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}

	lang := chooseLanguage(in, opts, log)
	title := chooseTitle(in, opts)
	decisions := []Decision{lang, title}

	cat.Set("Lang", raw.TextString(lang.Value))
	mark := doc.DictOf(doc.Get(cat, "MarkInfo"))
	if mark == nil {
		mark = raw.Dict()
		cat.Set("MarkInfo", mark)
	}
	mark.Set("Marked", raw.Bool(true))
	// The rebuilt tree replaces whatever the producer flagged as suspect.
	mark.Set("Suspects", raw.Bool(false))
	prefs := doc.DictOf(doc.Get(cat, "ViewerPreferences"))
	if prefs == nil {
		prefs = raw.Dict()
		cat.Set("ViewerPreferences", prefs)
	}
	prefs.Set("DisplayDocTitle", raw.Bool(true))

	producer := opts.Producer
	if producer == "" {
		producer = DefaultProducer
	}
	info := doc.Info(true)
	info.Set("Title", raw.TextString(title.Value))
	info.Set("Producer", raw.TextString(producer))

	pkt := existingPacket(doc, cat)
	pkt.Title = title.Value
	pkt.Language = lang.Value
	pkt.Producer = producer
	if opts.PDFUAPart > 0 {
		pkt.PDFUAPart = opts.PDFUAPart
	}
	md := raw.Dict()
	md.Set("Type", raw.Name("Metadata"))
	md.Set("Subtype", raw.Name("XML"))
	cat.Set("Metadata", doc.Add(raw.NewStream(md, pkt.Marshal())))

	for _, d := range decisions {
		log.Info("metadata set",
			observability.String("field", d.Field),
			observability.String("value", d.Value),
			observability.String("source", string(d.Source)),
		)
	}
	scriptHint(lang.Value, in.SampleText, log)
	return decisions, nil
}

func chooseLanguage(in Inputs, opts Options, log observability.Logger) Decision {
	if in.DirectiveLang != "" {
		if tag, ok := ValidLanguage(in.DirectiveLang); ok {
			return Decision{Field: "language", Value: tag, Source: SourceDirective}
		}
		log.Warn("directive language is not a BCP-47 tag", observability.String("lang", in.DirectiveLang))
	}
	if tag, ok := ValidLanguage(in.OriginalLang); ok {
		return Decision{Field: "language", Value: tag, Source: SourceOriginal}
	}
	if in.OriginalLang != "" {
		log.Warn("original language is not a BCP-47 tag", observability.String("lang", in.OriginalLang))
	}
	def := DefaultLanguage
	if tag, ok := ValidLanguage(opts.DefaultLanguage); ok {
		def = tag
	}
	return Decision{Field: "language", Value: def, Source: SourceDefault}
}

func chooseTitle(in Inputs, opts Options) Decision {
	if t := strings.TrimSpace(in.DirectiveTitle); t != "" {
		return Decision{Field: "title", Value: t, Source: SourceDirective}
	}
	if t := strings.TrimSpace(in.OriginalTitle); t != "" {
		return Decision{Field: "title", Value: t, Source: SourceOriginal}
	}
	if t := strings.TrimSpace(extractor.TitleFromSource(in.SourceName)); t != "" {
		return Decision{Field: "title", Value: t, Source: SourceDefault}
	}
	def := strings.TrimSpace(opts.DefaultTitle)
	if def == "" {
		def = DefaultTitle
	}
	return Decision{Field: "title", Value: def, Source: SourceDefault}
}

// existingPacket keeps the fields of the current XMP packet that Apply
// does not own.
func existingPacket(doc *raw.Document, cat *raw.DictObj) xmp.Packet {
	s := doc.StreamOf(doc.Get(cat, "Metadata"))
	if s == nil {
		return xmp.Packet{}
	}
	data, err := parser.DecodeStream(context.Background(), doc, s, nil)
	if err != nil {
		return xmp.Packet{}
	}
	pkt, err := xmp.Parse(data)
	if err != nil {
		return xmp.Packet{}
	}
	return pkt
}

// scriptHint logs when the document's text is mostly in a script the
// chosen language is not usually written in.
func scriptHint(lang, sample string, log observability.Logger) {
	script := fonts.DominantScript(sample)
	tag, err := language.Parse(lang)
	if err != nil {
		return
	}
	base, _ := tag.Base()
	if !fonts.LanguageMatchesScript(base.String(), script) {
		log.Warn("document language does not match the dominant script",
			observability.String("lang", lang),
			observability.String("script", fonts.ScriptName(script)),
		)
	}
}
