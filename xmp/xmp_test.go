package xmp

import (
	"errors"
	"testing"
)

func TestParseElementsAndAttributes(t *testing.T) {
	data := []byte(`<?xpacket begin="" id="W5M0MpCehiHzreSzNTczkc9d"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
  <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
    <rdf:Description rdf:about="" xmlns:pdf="http://ns.adobe.com/pdf/1.3/" pdf:Producer="Writer 2.1"/>
    <rdf:Description rdf:about="" xmlns:dc="http://purl.org/dc/elements/1.1/">
      <dc:title>
        <rdf:Alt>
          <rdf:li xml:lang="fr-FR">Rapport annuel</rdf:li>
          <rdf:li xml:lang="x-default">Annual report</rdf:li>
        </rdf:Alt>
      </dc:title>
      <dc:language><rdf:Bag><rdf:li>en-GB</rdf:li><rdf:li>fr</rdf:li></rdf:Bag></dc:language>
    </rdf:Description>
  </rdf:RDF>
</x:xmpmeta>
<?xpacket end="w"?>`)
	p, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Title != "Annual report" {
		t.Errorf("title = %q", p.Title)
	}
	if p.Language != "en-GB" {
		t.Errorf("language = %q", p.Language)
	}
	if p.Producer != "Writer 2.1" {
		t.Errorf("producer = %q", p.Producer)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	in := Packet{Title: "Q3 <draft> & notes", Language: "de-DE", Producer: "pdfremedy", PDFUAPart: 1}
	out, err := Parse(in.Marshal())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v want %+v", out, in)
	}
}

func TestParseRejectsNonXMP(t *testing.T) {
	if _, err := Parse([]byte("<html><body/></html>")); !errors.Is(err, ErrNotXMP) {
		t.Fatalf("expected ErrNotXMP, got %v", err)
	}
}
