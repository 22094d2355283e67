package builder

import (
	"github.com/wudi/pdfremedy/contentstream"
	"github.com/wudi/pdfremedy/ir/raw"
)

const fieldFont = "Helv"

func acroForm(fields []raw.Object, fontsDict *raw.DictObj) *raw.DictObj {
	dr := raw.Dict()
	fontsRes := raw.Dict()
	regular, _ := fontsDict.Get(FontRegular)
	fontsRes.Set(fieldFont, regular)
	dr.Set("Font", fontsRes)

	form := raw.Dict()
	form.Set("Fields", raw.NewArray(fields...))
	form.Set("DR", dr)
	form.Set("DA", raw.Str([]byte("/"+fieldFont+" 0 Tf 0 g")))
	return form
}

// widget returns a merged text field and widget annotation with a normal
// appearance showing value.
func widget(doc *raw.Document, a annotSpec, page raw.RefObj) *raw.DictObj {
	d := raw.Dict()
	d.Set("Type", raw.Name("Annot"))
	d.Set("Subtype", raw.Name("Widget"))
	d.Set("FT", raw.Name("Tx"))
	d.Set("T", raw.TextString(a.field))
	if a.tooltip != "" {
		d.Set("TU", raw.TextString(a.tooltip))
	}
	if a.value != "" {
		d.Set("V", raw.TextString(a.value))
	}
	d.Set("Rect", rectArray(a.rect))
	d.Set("P", page)
	d.Set("F", raw.Int(4))
	d.Set("DA", raw.Str([]byte("/"+fieldFont+" 10 Tf 0 g")))

	ap := raw.Dict()
	ap.Set("N", doc.Add(textAppearance(a)))
	d.Set("AP", ap)
	return d
}

func textAppearance(a annotSpec) *raw.StreamObj {
	width, height := a.rect.Width(), a.rect.Height()
	ops := []contentstream.Operation{
		contentstream.Op("BMC", raw.Name("Tx")),
		contentstream.Op("q"),
		contentstream.Op("re", raw.Int(1), raw.Int(1), num(width-2), num(height-2)),
		contentstream.Op("W"),
		contentstream.Op("n"),
	}
	if a.value != "" {
		ops = append(ops,
			contentstream.Op("BT"),
			contentstream.Op("Tf", raw.Name(fieldFont), raw.Int(10)),
			contentstream.Op("g", raw.Int(0)),
			contentstream.Op("Td", raw.Int(2), raw.Int(2)),
			contentstream.Op("Tj", raw.Str([]byte(a.value))),
			contentstream.Op("ET"),
		)
	}
	ops = append(ops, contentstream.Op("Q"), contentstream.Op("EMC"))

	d := raw.Dict()
	d.Set("Type", raw.Name("XObject"))
	d.Set("Subtype", raw.Name("Form"))
	d.Set("BBox", raw.NewArray(raw.Int(0), raw.Int(0), num(width), num(height)))
	return raw.NewStream(d, contentstream.Serialize(ops))
}
