package semantic

import (
	"fmt"
	"strings"

	"github.com/wudi/pdfremedy/ir/raw"
)

// Standard structure types used by the rebuilt tree.
const (
	TagDocument = "Document"
	TagP        = "P"
	TagFigure   = "Figure"
	TagTable    = "Table"
	TagTR       = "TR"
	TagTH       = "TH"
	TagTD       = "TD"
	TagL        = "L"
	TagLI       = "LI"
	TagSpan     = "Span"
	TagLink     = "Link"
	TagForm     = "Form"
)

// HeadingTag returns H1..H6 for level, clamped.
func HeadingTag(level int) string {
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	return fmt.Sprintf("H%d", level)
}

// HeadingLevel returns the level of an Hn tag, or 0.
func HeadingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'H' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

// ContentRef points at a marked region: page index and MCID.
type ContentRef struct {
	Page int
	CID  int
}

// ObjectRef points at an annotation owned by an element.
type ObjectRef struct {
	Page int
	Ref  raw.ObjectRef
}

// StructureElement is one node of the logical structure.
type StructureElement struct {
	Tag      string
	Children []*StructureElement
	Refs     []ContentRef
	Objects  []ObjectRef

	Alt         string
	Summary     string
	Lang        string
	Title       string
	ActualText  string
	Scope       string // TH scope attribute
	Synthesized bool

	// Seq is the extraction sequence used as the final ordering tie-break.
	Seq int
}

func NewElement(tag string) *StructureElement { return &StructureElement{Tag: tag} }

func (e *StructureElement) Add(children ...*StructureElement) {
	e.Children = append(e.Children, children...)
}

// Empty reports a dangling element: no content, no objects and no children.
func (e *StructureElement) Empty() bool {
	return len(e.Children) == 0 && len(e.Refs) == 0 && len(e.Objects) == 0
}

func (e *StructureElement) Level() int { return HeadingLevel(e.Tag) }

// Walk visits e and its descendants in pre-order. Returning false from fn
// skips the subtree.
func (e *StructureElement) Walk(fn func(el *StructureElement, depth int) bool) {
	e.walk(fn, 0)
}

func (e *StructureElement) walk(fn func(*StructureElement, int) bool, depth int) {
	if !fn(e, depth) {
		return
	}
	for _, c := range e.Children {
		c.walk(fn, depth+1)
	}
}

func (e *StructureElement) String() string {
	var b strings.Builder
	e.Walk(func(el *StructureElement, depth int) bool {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(el.Tag)
		if len(el.Refs) > 0 {
			fmt.Fprintf(&b, " %v", el.Refs)
		}
		b.WriteByte('\n')
		return true
	})
	return b.String()
}

// StructureTree has exactly one root with tag Document.
type StructureTree struct {
	Root *StructureElement
}

func NewTree() *StructureTree {
	return &StructureTree{Root: NewElement(TagDocument)}
}

// Walk visits every element in pre-order.
func (t *StructureTree) Walk(fn func(el *StructureElement, depth int) bool) {
	if t == nil || t.Root == nil {
		return
	}
	t.Root.Walk(fn)
}

// Count returns the number of elements with tag.
func (t *StructureTree) Count(tag string) int {
	n := 0
	t.Walk(func(el *StructureElement, _ int) bool {
		if el.Tag == tag {
			n++
		}
		return true
	})
	return n
}

// Headings returns heading elements in pre-order.
func (t *StructureTree) Headings() []*StructureElement {
	var out []*StructureElement
	t.Walk(func(el *StructureElement, _ int) bool {
		if el.Level() > 0 {
			out = append(out, el)
		}
		return true
	})
	return out
}
