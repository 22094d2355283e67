// Package directive decodes remediation directives and resolves them
// against the extracted content model.
//
// A Directive is a closed set of nine record types. Each carries a Locator
// that is either a page and bounding-box centroid or a normalized content
// hash. Object references of the source document are never used as keys:
// they do not survive a rebuild.
package directive

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfremedy/coords"
	"github.com/wudi/pdfremedy/ir/semantic"
)

var (
	// ErrUnknownDirective is returned for a record whose type is not one of
	// the known directive kinds.
	ErrUnknownDirective = errors.New("directive: unknown directive type")
	// ErrInvalidDirective is returned for a record whose locator or payload
	// is malformed.
	ErrInvalidDirective = errors.New("directive: invalid directive")
)

// Kind names as they appear in the "type" field of the wire form.
const (
	KindSetAlternativeText  = "SetAlternativeText"
	KindSetTableSummary     = "SetTableSummary"
	KindSetHeadingLevel     = "SetHeadingLevel"
	KindSetLanguageSpan     = "SetLanguageSpan"
	KindSetDocumentLanguage = "SetDocumentLanguage"
	KindSetDocumentTitle    = "SetDocumentTitle"
	KindAdjustColor         = "AdjustColor"
	KindSetMinimumFontSize  = "SetMinimumFontSize"
	KindImproveLinkText     = "ImproveLinkText"
)

// Locator identifies the content a directive targets. Exactly one of
// Centroid and ContentHash is set. Page restricts hash matches to one page
// when HasPage is true; centroid locators always carry a page.
type Locator struct {
	Page        int
	HasPage     bool
	Centroid    *coords.Point
	ContentHash string
}

func (l Locator) String() string {
	switch {
	case l.Centroid != nil:
		return fmt.Sprintf("page %d at (%.1f, %.1f)", l.Page, l.Centroid.X, l.Centroid.Y)
	case l.ContentHash != "":
		if l.HasPage {
			return fmt.Sprintf("page %d hash %s", l.Page, shortHash(l.ContentHash))
		}
		return "hash " + shortHash(l.ContentHash)
	}
	return "document"
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// Directive is one remediation instruction.
type Directive interface {
	Kind() string
	Target() Locator
	directive()
}

type SetAlternativeText struct {
	At  Locator
	Alt string
}

// SetTableSummary sets a table summary. HeaderRow, when non-nil, confirms
// or denies that the first row holds header cells.
type SetTableSummary struct {
	At        Locator
	Summary   string
	HeaderRow *bool
}

// SetHeadingLevel promotes a block to a heading of Level; level 0 demotes
// a heading to a paragraph.
type SetHeadingLevel struct {
	At    Locator
	Level int
}

type SetLanguageSpan struct {
	At   Locator
	Lang string
}

type SetDocumentLanguage struct{ Lang string }

type SetDocumentTitle struct{ Title string }

// AdjustColor replaces the fill color of the targeted text.
type AdjustColor struct {
	At         Locator
	Foreground semantic.RGB
}

// SetMinimumFontSize enlarges targeted text drawn below Size points.
type SetMinimumFontSize struct {
	At   Locator
	Size float64
}

type ImproveLinkText struct {
	At   Locator
	Text string
}

func (SetAlternativeText) Kind() string  { return KindSetAlternativeText }
func (SetTableSummary) Kind() string     { return KindSetTableSummary }
func (SetHeadingLevel) Kind() string     { return KindSetHeadingLevel }
func (SetLanguageSpan) Kind() string     { return KindSetLanguageSpan }
func (SetDocumentLanguage) Kind() string { return KindSetDocumentLanguage }
func (SetDocumentTitle) Kind() string    { return KindSetDocumentTitle }
func (AdjustColor) Kind() string         { return KindAdjustColor }
func (SetMinimumFontSize) Kind() string  { return KindSetMinimumFontSize }
func (ImproveLinkText) Kind() string     { return KindImproveLinkText }

func (d SetAlternativeText) Target() Locator { return d.At }
func (d SetTableSummary) Target() Locator    { return d.At }
func (d SetHeadingLevel) Target() Locator    { return d.At }
func (d SetLanguageSpan) Target() Locator    { return d.At }
func (SetDocumentLanguage) Target() Locator  { return Locator{} }
func (SetDocumentTitle) Target() Locator     { return Locator{} }
func (d AdjustColor) Target() Locator        { return d.At }
func (d SetMinimumFontSize) Target() Locator { return d.At }
func (d ImproveLinkText) Target() Locator    { return d.At }

func (SetAlternativeText) directive()  {}
func (SetTableSummary) directive()     {}
func (SetHeadingLevel) directive()     {}
func (SetLanguageSpan) directive()     {}
func (SetDocumentLanguage) directive() {}
func (SetDocumentTitle) directive()    {}
func (AdjustColor) directive()         {}
func (SetMinimumFontSize) directive()  {}
func (ImproveLinkText) directive()     {}
