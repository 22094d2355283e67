package directive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/wudi/pdfremedy/coords"
	"github.com/wudi/pdfremedy/ir/semantic"
)

type wireDirective struct {
	Type    string          `json:"type"`
	Locator *wireLocator    `json:"locator"`
	Payload json.RawMessage `json:"payload"`
}

type wireLocator struct {
	Page        *int       `json:"page"`
	Centroid    *wirePoint `json:"bboxCentroid"`
	ContentHash string     `json:"contentHash"`
}

type wirePoint struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

type wireColor struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// Decode reads a JSON array of directive records:
//
//	[{"type": "SetAlternativeText",
//	  "locator": {"page": 0, "bboxCentroid": {"x": 120, "y": 400}},
//	  "payload": {"alt": "Company logo"}}]
//
// Decoding is strict: unknown fields, unknown types and malformed payloads
// fail the whole list rather than dropping records.
func Decode(r io.Reader) ([]Directive, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var records []wireDirective
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDirective, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after directive list", ErrInvalidDirective)
	}
	out := make([]Directive, 0, len(records))
	for i, rec := range records {
		d, err := decodeOne(rec)
		if err != nil {
			return nil, fmt.Errorf("directive %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// DecodeBytes is Decode over a byte slice. Empty input is an empty list.
func DecodeBytes(data []byte) ([]Directive, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return Decode(bytes.NewReader(data))
}

func decodeOne(rec wireDirective) (Directive, error) {
	var d Directive
	switch rec.Type {
	case KindSetAlternativeText:
		var p struct {
			Alt string `json:"alt"`
		}
		if err := payload(rec, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.Alt) == "" {
			return nil, invalid("empty alt")
		}
		d = SetAlternativeText{Alt: p.Alt}
	case KindSetTableSummary:
		var p struct {
			Summary   string `json:"summary"`
			HeaderRow *bool  `json:"headerRow"`
		}
		if err := payload(rec, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.Summary) == "" && p.HeaderRow == nil {
			return nil, invalid("table summary needs summary or headerRow")
		}
		d = SetTableSummary{Summary: p.Summary, HeaderRow: p.HeaderRow}
	case KindSetHeadingLevel:
		var p struct {
			Level *int `json:"level"`
		}
		if err := payload(rec, &p); err != nil {
			return nil, err
		}
		if p.Level == nil || *p.Level < 0 || *p.Level > 6 {
			return nil, invalid("heading level must be 0..6")
		}
		d = SetHeadingLevel{Level: *p.Level}
	case KindSetLanguageSpan:
		var p struct {
			Lang string `json:"lang"`
		}
		if err := payload(rec, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.Lang) == "" {
			return nil, invalid("empty lang")
		}
		d = SetLanguageSpan{Lang: strings.TrimSpace(p.Lang)}
	case KindSetDocumentLanguage:
		var p struct {
			Lang string `json:"lang"`
		}
		if err := payload(rec, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.Lang) == "" {
			return nil, invalid("empty lang")
		}
		return SetDocumentLanguage{Lang: strings.TrimSpace(p.Lang)}, nil
	case KindSetDocumentTitle:
		var p struct {
			Title string `json:"title"`
		}
		if err := payload(rec, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.Title) == "" {
			return nil, invalid("empty title")
		}
		return SetDocumentTitle{Title: strings.TrimSpace(p.Title)}, nil
	case KindAdjustColor:
		var p struct {
			Foreground *wireColor `json:"foreground"`
		}
		if err := payload(rec, &p); err != nil {
			return nil, err
		}
		c := p.Foreground
		if c == nil || !unit(c.R) || !unit(c.G) || !unit(c.B) {
			return nil, invalid("foreground components must be in [0,1]")
		}
		d = AdjustColor{Foreground: semantic.RGB{R: c.R, G: c.G, B: c.B}}
	case KindSetMinimumFontSize:
		var p struct {
			Size float64 `json:"size"`
		}
		if err := payload(rec, &p); err != nil {
			return nil, err
		}
		if !(p.Size > 0) || math.IsInf(p.Size, 0) {
			return nil, invalid("minimum font size must be positive")
		}
		d = SetMinimumFontSize{Size: p.Size}
	case KindImproveLinkText:
		var p struct {
			Text string `json:"text"`
		}
		if err := payload(rec, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.Text) == "" {
			return nil, invalid("empty link text")
		}
		d = ImproveLinkText{Text: p.Text}
	case "":
		return nil, invalid("missing type")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDirective, rec.Type)
	}

	loc, err := locator(rec.Locator)
	if err != nil {
		return nil, err
	}
	return withLocator(d, loc), nil
}

func payload(rec wireDirective, v any) error {
	if len(rec.Payload) == 0 {
		return invalid("missing payload")
	}
	dec := json.NewDecoder(bytes.NewReader(rec.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return invalid(fmt.Sprintf("%s payload: %v", rec.Type, err))
	}
	return nil
}

func locator(w *wireLocator) (Locator, error) {
	if w == nil {
		return Locator{}, invalid("missing locator")
	}
	var loc Locator
	if w.Page != nil {
		if *w.Page < 0 {
			return Locator{}, invalid("negative page index")
		}
		loc.Page, loc.HasPage = *w.Page, true
	}
	hasCentroid := w.Centroid != nil
	hasHash := w.ContentHash != ""
	switch {
	case hasCentroid == hasHash:
		return Locator{}, invalid("locator needs exactly one of bboxCentroid and contentHash")
	case hasCentroid:
		if !loc.HasPage {
			return Locator{}, invalid("centroid locator needs a page")
		}
		if w.Centroid.X == nil || w.Centroid.Y == nil {
			return Locator{}, invalid("centroid needs x and y")
		}
		loc.Centroid = &coords.Point{X: *w.Centroid.X, Y: *w.Centroid.Y}
	default:
		loc.ContentHash = strings.ToLower(w.ContentHash)
	}
	return loc, nil
}

func withLocator(d Directive, loc Locator) Directive {
	switch v := d.(type) {
	case SetAlternativeText:
		v.At = loc
		return v
	case SetTableSummary:
		v.At = loc
		return v
	case SetHeadingLevel:
		v.At = loc
		return v
	case SetLanguageSpan:
		v.At = loc
		return v
	case AdjustColor:
		v.At = loc
		return v
	case SetMinimumFontSize:
		v.At = loc
		return v
	case ImproveLinkText:
		v.At = loc
		return v
	}
	return d
}

func unit(v float64) bool { return v >= 0 && v <= 1 }

func invalid(msg string) error { return fmt.Errorf("%w: %s", ErrInvalidDirective, msg) }
