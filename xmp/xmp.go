// Package xmp reads and writes the small subset of XMP metadata packets the
// remediation engine cares about: title, language, producer and the PDF/UA
// identification schema.
package xmp

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Namespaces understood by Parse and emitted by Marshal.
const (
	NSRDF     = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NSDC      = "http://purl.org/dc/elements/1.1/"
	NSPDF     = "http://ns.adobe.com/pdf/1.3/"
	NSXMP     = "http://ns.adobe.com/xap/1.0/"
	NSPDFUAID = "http://www.aiim.org/pdfua/ns/id/"
	NSXML     = "http://www.w3.org/XML/1998/namespace"
)

// ErrNotXMP is returned when a packet contains no rdf:RDF element.
var ErrNotXMP = errors.New("xmp: no rdf:RDF element")

// Packet is the decoded subset of an XMP packet.
type Packet struct {
	Title       string
	Language    string
	Producer    string
	CreatorTool string
	PDFUAPart   int
}

type property struct {
	space, local string
}

var (
	propTitle    = property{NSDC, "title"}
	propLanguage = property{NSDC, "language"}
	propProducer = property{NSPDF, "Producer"}
	propCreator  = property{NSXMP, "CreatorTool"}
	propPart     = property{NSPDFUAID, "part"}
)

// Parse decodes data. Properties may appear as rdf:Description attributes
// or as child elements; for language alternatives the x-default entry wins.
func Parse(data []byte) (Packet, error) {
	var p Packet
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false

	var (
		sawRDF  bool
		current *property
		depth   int // depth inside current property
		text    strings.Builder
		isDef   bool
		found   = map[property]bool{}
	)
	set := func(prop property, value string, preferred bool) {
		value = strings.TrimSpace(value)
		if value == "" || (found[prop] && !preferred) {
			return
		}
		found[prop] = true
		switch prop {
		case propTitle:
			p.Title = value
		case propLanguage:
			p.Language = value
		case propProducer:
			p.Producer = value
		case propCreator:
			p.CreatorTool = value
		case propPart:
			p.PDFUAPart, _ = strconv.Atoi(value)
		}
	}
	known := func(n xml.Name) (property, bool) {
		prop := property{n.Space, n.Local}
		switch prop {
		case propTitle, propLanguage, propProducer, propCreator, propPart:
			return prop, true
		}
		return prop, false
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return p, fmt.Errorf("xmp: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space == NSRDF && t.Name.Local == "RDF" {
				sawRDF = true
			}
			if current != nil {
				depth++
				if t.Name.Space == NSRDF && t.Name.Local == "li" {
					text.Reset()
					isDef = false
					for _, a := range t.Attr {
						if a.Name.Local == "lang" && a.Value == "x-default" {
							isDef = true
						}
					}
				}
				continue
			}
			if t.Name.Space == NSRDF && t.Name.Local == "Description" {
				for _, a := range t.Attr {
					if prop, ok := known(a.Name); ok {
						set(prop, a.Value, false)
					}
				}
				continue
			}
			if prop, ok := known(t.Name); ok {
				current = &prop
				depth = 0
				text.Reset()
				isDef = false
			}
		case xml.CharData:
			if current != nil {
				text.Write(t)
			}
		case xml.EndElement:
			if current == nil {
				continue
			}
			if depth == 0 {
				set(*current, text.String(), false)
				current = nil
				continue
			}
			if t.Name.Space == NSRDF && t.Name.Local == "li" {
				set(*current, text.String(), isDef)
				text.Reset()
			}
			depth--
		}
	}
	if !sawRDF {
		return p, ErrNotXMP
	}
	return p, nil
}

// Marshal returns a complete, writable packet for p.
func (p Packet) Marshal() []byte {
	var b bytes.Buffer
	b.WriteString("<?xpacket begin=\"\xEF\xBB\xBF\" id=\"W5M0MpCehiHzreSzNTczkc9d\"?>\n")
	b.WriteString("<x:xmpmeta xmlns:x=\"adobe:ns:meta/\">\n")
	b.WriteString(" <rdf:RDF xmlns:rdf=\"" + NSRDF + "\">\n")
	b.WriteString("  <rdf:Description rdf:about=\"\"")
	b.WriteString("\n    xmlns:dc=\"" + NSDC + "\"")
	b.WriteString("\n    xmlns:pdf=\"" + NSPDF + "\"")
	b.WriteString("\n    xmlns:xmp=\"" + NSXMP + "\"")
	if p.PDFUAPart > 0 {
		b.WriteString("\n    xmlns:pdfuaid=\"" + NSPDFUAID + "\"")
	}
	b.WriteString(">\n")
	b.WriteString("   <dc:format>application/pdf</dc:format>\n")
	if p.Title != "" {
		b.WriteString("   <dc:title><rdf:Alt><rdf:li xml:lang=\"x-default\">")
		escape(&b, p.Title)
		b.WriteString("</rdf:li></rdf:Alt></dc:title>\n")
	}
	if p.Language != "" {
		b.WriteString("   <dc:language><rdf:Bag><rdf:li>")
		escape(&b, p.Language)
		b.WriteString("</rdf:li></rdf:Bag></dc:language>\n")
	}
	if p.Producer != "" {
		b.WriteString("   <pdf:Producer>")
		escape(&b, p.Producer)
		b.WriteString("</pdf:Producer>\n")
	}
	if p.CreatorTool != "" {
		b.WriteString("   <xmp:CreatorTool>")
		escape(&b, p.CreatorTool)
		b.WriteString("</xmp:CreatorTool>\n")
	}
	if p.PDFUAPart > 0 {
		fmt.Fprintf(&b, "   <pdfuaid:part>%d</pdfuaid:part>\n", p.PDFUAPart)
	}
	b.WriteString("  </rdf:Description>\n </rdf:RDF>\n</x:xmpmeta>\n")
	// Padding lets editors update the packet in place.
	for i := 0; i < 8; i++ {
		b.WriteString(strings.Repeat(" ", 99))
		b.WriteByte('\n')
	}
	b.WriteString("<?xpacket end=\"w\"?>")
	return b.Bytes()
}

func escape(b *bytes.Buffer, s string) {
	_ = xml.EscapeText(b, []byte(s))
}
