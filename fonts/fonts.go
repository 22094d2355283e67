package fonts

import (
	"strings"

	"github.com/wudi/pdfremedy/ir/raw"
)

// Glyph is one decoded character code of a shown string.
type Glyph struct {
	Code  int
	Width float64 // glyph space, 1/1000 em
	Text  string
	Space bool // single-byte code 32, subject to word spacing
}

// Metrics decodes shown strings for one font resource.
type Metrics struct {
	BaseFont  string
	Subtype   string
	Bold      bool
	Composite bool

	firstChar    int
	widths       []float64
	missing      float64
	cidWidths    map[int]float64
	defaultWidth float64
	toUnicode    *CMap
	encoding     *[256]rune
	fallbackBold bool
}

// Load builds metrics from a font dictionary. A nil dictionary yields
// Helvetica-like defaults so text under an unknown font still has geometry.
func Load(doc *raw.Document, dict *raw.DictObj) *Metrics {
	m := &Metrics{defaultWidth: 1000}
	if dict == nil {
		m.encoding = &standardEncoding
		return m
	}
	m.BaseFont = doc.NameOf(doc.Get(dict, "BaseFont"))
	m.Subtype = doc.NameOf(doc.Get(dict, "Subtype"))
	descriptor := doc.DictOf(doc.Get(dict, "FontDescriptor"))

	if m.Subtype == "Type0" {
		m.Composite = true
		m.cidWidths = make(map[int]float64)
		if desc := doc.ArrayOf(doc.Get(dict, "DescendantFonts")); desc != nil && desc.Len() > 0 {
			first, _ := desc.Get(0)
			cid := doc.DictOf(first)
			if dw, ok := doc.NumberOf(doc.Get(cid, "DW")); ok {
				m.defaultWidth = dw
			}
			m.parseW(doc, doc.ArrayOf(doc.Get(cid, "W")))
			if descriptor == nil {
				descriptor = doc.DictOf(doc.Get(cid, "FontDescriptor"))
			}
		}
	} else {
		m.firstChar, _ = doc.IntOf(doc.Get(dict, "FirstChar"))
		if arr := doc.ArrayOf(doc.Get(dict, "Widths")); arr != nil {
			m.widths = make([]float64, arr.Len())
			for i, it := range arr.Items {
				m.widths[i], _ = doc.NumberOf(it)
			}
		}
		if descriptor != nil {
			m.missing, _ = doc.NumberOf(doc.Get(descriptor, "MissingWidth"))
		}
		m.encoding = simpleEncoding(doc, doc.Get(dict, "Encoding"))
	}
	if s := doc.StreamOf(doc.Get(dict, "ToUnicode")); s != nil {
		if data, err := decodeStream(doc, s); err == nil {
			m.toUnicode = ParseCMap(data)
		}
	}
	m.Bold = IsBold(m.BaseFont, descriptor, doc)
	m.fallbackBold = m.Bold
	return m
}

func (m *Metrics) parseW(doc *raw.Document, w *raw.ArrayObj) {
	if w == nil {
		return
	}
	items := w.Items
	for i := 0; i < len(items); {
		start, ok := doc.IntOf(items[i])
		if !ok || i+1 >= len(items) {
			return
		}
		if arr := doc.ArrayOf(items[i+1]); arr != nil {
			for k, it := range arr.Items {
				m.cidWidths[start+k], _ = doc.NumberOf(it)
			}
			i += 2
			continue
		}
		if i+2 >= len(items) {
			return
		}
		end, _ := doc.IntOf(items[i+1])
		width, _ := doc.NumberOf(items[i+2])
		for c := start; c <= end && c-start < 65536; c++ {
			m.cidWidths[c] = width
		}
		i += 3
	}
}

// Decode splits a shown string into glyphs. Composite fonts use two-byte
// codes (Identity-H and the common CJK CMaps are all two-byte).
func (m *Metrics) Decode(b []byte) []Glyph {
	var out []Glyph
	if m.Composite {
		for i := 0; i+1 < len(b); i += 2 {
			code := int(b[i])<<8 | int(b[i+1])
			out = append(out, Glyph{Code: code, Width: m.width(code, ""), Text: m.text(code, 2)})
		}
		return out
	}
	for _, c := range b {
		code := int(c)
		text := m.text(code, 1)
		out = append(out, Glyph{Code: code, Width: m.width(code, text), Text: text, Space: c == 32})
	}
	return out
}

func (m *Metrics) width(code int, text string) float64 {
	if m.Composite {
		if w, ok := m.cidWidths[code]; ok {
			return w
		}
		return m.defaultWidth
	}
	if i := code - m.firstChar; i >= 0 && i < len(m.widths) {
		return m.widths[i]
	}
	if m.widths == nil {
		if w, ok := fallbackWidth(text, m.fallbackBold); ok {
			return w
		}
	}
	if m.missing > 0 {
		return m.missing
	}
	return 500
}

func (m *Metrics) text(code, size int) string {
	if m.toUnicode != nil {
		if s, ok := m.toUnicode.Lookup(code, size); ok {
			return s
		}
	}
	if m.encoding != nil && code < 256 {
		if r := m.encoding[code]; r != 0 {
			return string(r)
		}
	}
	return ""
}

// IsBold reports whether a font looks bold from its name or descriptor.
func IsBold(baseFont string, descriptor *raw.DictObj, doc *raw.Document) bool {
	name := strings.ToLower(baseFont)
	for _, marker := range []string{"bold", "black", "heavy", "semibold", "demi"} {
		if strings.Contains(name, marker) {
			return true
		}
	}
	if descriptor == nil {
		return false
	}
	if w, ok := doc.NumberOf(doc.Get(descriptor, "FontWeight")); ok && w >= 600 {
		return true
	}
	flags, _ := doc.IntOf(doc.Get(descriptor, "Flags"))
	return flags&(1<<18) != 0
}
