package parser

import (
	"context"
	"errors"

	"github.com/wudi/pdfremedy/filters"
	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/security"
)

// DecodeStream returns the decoded body of s. Indirect /Filter and
// /DecodeParms entries are resolved against doc first. Image filters are not
// an error: the data decoded so far is returned.
func DecodeStream(ctx context.Context, doc *raw.Document, s *raw.StreamObj, p *filters.Pipeline) ([]byte, error) {
	if p == nil {
		p = filters.NewPipeline(security.DefaultLimits())
	}
	dict := s.Dict
	if needsResolve(dict) {
		dict = raw.Dict()
		for _, k := range s.Dict.Keys() {
			v, _ := s.Dict.Get(k)
			dict.Set(k, v)
		}
		for _, k := range []string{"Filter", "DecodeParms"} {
			if v, ok := s.Dict.Get(k); ok {
				dict.Set(k, resolveDeep(doc, doc.Resolve(v)))
			}
		}
	}
	names, params := filters.StreamFilters(dict)
	if len(names) == 0 {
		return s.Data, nil
	}
	out, err := p.Decode(ctx, s.Data, names, params)
	if errors.Is(err, filters.ErrImageFilter) {
		return out, nil
	}
	return out, err
}

func needsResolve(d *raw.DictObj) bool {
	for _, k := range []string{"Filter", "DecodeParms"} {
		v, ok := d.Get(k)
		if !ok {
			continue
		}
		if v.IsIndirect() {
			return true
		}
		if arr, ok := v.(*raw.ArrayObj); ok {
			for _, it := range arr.Items {
				if it.IsIndirect() {
					return true
				}
			}
		}
	}
	return false
}

func resolveDeep(doc *raw.Document, o raw.Object) raw.Object {
	arr, ok := o.(*raw.ArrayObj)
	if !ok {
		return o
	}
	out := raw.NewArray()
	for _, it := range arr.Items {
		out.Append(doc.Resolve(it))
	}
	return out
}
