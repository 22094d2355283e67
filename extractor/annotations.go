package extractor

import (
	"github.com/wudi/pdfremedy/coords"
	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/ir/semantic"
)

// readAnnotations returns the Link and Widget annotations of a page.
// Other subtypes are not part of the logical structure.
func readAnnotations(doc *raw.Document, page *raw.DictObj) []semantic.Annotation {
	arr := doc.ArrayOf(doc.Get(page, "Annots"))
	if arr == nil {
		return nil
	}
	var out []semantic.Annotation
	for _, obj := range arr.Items {
		dict := doc.DictOf(obj)
		if dict == nil {
			continue
		}
		subtype := doc.NameOf(doc.Get(dict, "Subtype"))
		if subtype != "Link" && subtype != "Widget" {
			continue
		}
		a := semantic.Annotation{Index: len(out), Subtype: subtype}
		if ref, ok := obj.(raw.RefObj); ok {
			a.Ref = ref.R
		}
		if r, ok := doc.Rect(doc.Get(dict, "Rect")); ok {
			a.Rect = coords.NewRect(r[0], r[1], r[2], r[3])
		}
		a.Contents = textOf(doc, dict, "Contents")
		if subtype == "Link" {
			a.URI = annotationURI(doc, dict)
		} else {
			a.FieldName = inheritedText(doc, dict, "T")
			a.Tooltip = inheritedText(doc, dict, "TU")
		}
		out = append(out, a)
	}
	return out
}

func textOf(doc *raw.Document, dict *raw.DictObj, key string) string {
	if b, ok := doc.StringOf(doc.Get(dict, key)); ok {
		return raw.DecodeText(b)
	}
	return ""
}

// inheritedText looks key up on a widget and its field ancestors.
func inheritedText(doc *raw.Document, dict *raw.DictObj, key string) string {
	for depth := 0; dict != nil && depth < 32; depth++ {
		if s := textOf(doc, dict, key); s != "" {
			return s
		}
		dict = doc.DictOf(doc.Get(dict, "Parent"))
	}
	return ""
}

func annotationURI(doc *raw.Document, dict *raw.DictObj) string {
	if uri := textOf(doc, dict, "URI"); uri != "" {
		return uri
	}
	action := doc.DictOf(doc.Get(dict, "A"))
	if action == nil {
		return ""
	}
	if doc.NameOf(doc.Get(action, "S")) == "URI" {
		if b, ok := doc.StringOf(doc.Get(action, "URI")); ok {
			return string(b)
		}
	}
	return ""
}
