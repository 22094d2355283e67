package semantic

import (
	"strings"

	"github.com/wudi/pdfremedy/contentstream"
	"github.com/wudi/pdfremedy/coords"
	"github.com/wudi/pdfremedy/ir/raw"
)

// Document is the logical content model of one source document. Source is
// the parsed original and must not be modified.
type Document struct {
	Source     *raw.Document
	SourceName string
	Pages      []*Page

	// Values found in the original document, possibly empty.
	Lang  string
	Title string

	// Document-level values set by resolved directives.
	DirectiveLang  string
	DirectiveTitle string
}

// Page holds the parsed content of one page. Units index Ops, which are
// the page's content operations with marked-content operators removed.
type Page struct {
	Index    int
	Ref      raw.ObjectRef
	MediaBox coords.Rect

	Ops   []contentstream.Operation
	Trace []contentstream.OpInfo
	// Artifact marks the operations inside kept /Artifact sequences. They
	// produce no units and stay out of the structure tree.
	Artifact []bool

	// Unparsed pages keep their original content bytes and have no units.
	Unparsed   bool
	RawContent []byte

	Units       []Unit
	Blocks      []*Block
	Annotations []Annotation

	// Attrs holds per-unit directive payloads keyed by unit ID.
	Attrs map[int]*UnitAttrs
}

// Unit returns the unit with the given ID. IDs equal slice positions.
func (p *Page) Unit(id int) *Unit {
	if id < 0 || id >= len(p.Units) {
		return nil
	}
	return &p.Units[id]
}

// IsArtifact reports whether operation i lies in an artifact sequence.
func (p *Page) IsArtifact(i int) bool { return i >= 0 && i < len(p.Artifact) && p.Artifact[i] }

// UnitAttrs returns the attribute record for a unit, creating it.
func (p *Page) UnitAttrs(id int) *UnitAttrs {
	if p.Attrs == nil {
		p.Attrs = make(map[int]*UnitAttrs)
	}
	a, ok := p.Attrs[id]
	if !ok {
		a = &UnitAttrs{}
		p.Attrs[id] = a
	}
	return a
}

// AttrsOf returns a unit's attributes or the zero value.
func (p *Page) AttrsOf(id int) UnitAttrs {
	if a, ok := p.Attrs[id]; ok {
		return *a
	}
	return UnitAttrs{}
}

// BlockOf returns the block owning a unit.
func (p *Page) BlockOf(unitID int) *Block {
	for _, b := range p.Blocks {
		for _, id := range b.AllUnits() {
			if id == unitID {
				return b
			}
		}
	}
	return nil
}

type UnitKind int

const (
	UnitText UnitKind = iota
	UnitImage
	UnitVector
	UnitForm
)

func (k UnitKind) String() string {
	switch k {
	case UnitText:
		return "text"
	case UnitImage:
		return "image"
	case UnitVector:
		return "vector"
	case UnitForm:
		return "form"
	}
	return "unknown"
}

// Unit is a renderable atom covering operations [OpStart, OpEnd).
type Unit struct {
	ID      int
	Kind    UnitKind
	BBox    coords.Rect
	OpStart int
	OpEnd   int

	Text          string
	Font          string
	BaseFont      string
	FontSize      float64
	EffectiveSize float64
	Bold          bool
	Script        string
	Start, End    coords.Point
	TextObject    int

	XObject string
}

func (u *Unit) Centroid() coords.Point { return u.BBox.Center() }

// RGB is a DeviceRGB color with components in [0,1].
type RGB struct{ R, G, B float64 }

// UnitAttrs are directive payloads that change how a unit is emitted.
type UnitAttrs struct {
	Lang        string
	Color       *RGB
	MinFontSize float64
}

// Equal reports whether two attribute sets would produce identical output.
func (a UnitAttrs) Equal(b UnitAttrs) bool {
	if a.Lang != b.Lang || a.MinFontSize != b.MinFontSize {
		return false
	}
	if (a.Color == nil) != (b.Color == nil) {
		return false
	}
	return a.Color == nil || *a.Color == *b.Color
}

type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockHeading
	BlockFigure
	BlockTable
	BlockList
	BlockLink
	BlockForm
)

func (k BlockKind) String() string {
	switch k {
	case BlockParagraph:
		return "paragraph"
	case BlockHeading:
		return "heading"
	case BlockFigure:
		return "figure"
	case BlockTable:
		return "table"
	case BlockList:
		return "list"
	case BlockLink:
		return "link"
	case BlockForm:
		return "form"
	}
	return "unknown"
}

// HeaderState records how a table's first row was classified.
type HeaderState int

const (
	HeaderNone HeaderState = iota
	HeaderHeuristic
	HeaderConfirmed
	HeaderDenied
)

// IsHeader reports whether the first row should be tagged as header cells.
func (h HeaderState) IsHeader() bool { return h == HeaderHeuristic || h == HeaderConfirmed }

// Cell is a table cell: the IDs of its units.
type Cell []int

// Block groups units by the layout heuristics. Alt, Summary and LinkText
// are only ever set by resolved directives.
type Block struct {
	ID    int
	Kind  BlockKind
	Level int
	Units []int
	Rows  [][]Cell
	Items [][]int
	BBox  coords.Rect
	Text  string

	Header     HeaderState
	Annotation int // index into Page.Annotations, -1 when none

	// Heuristic marks a kind chosen by layout analysis rather than a directive.
	Heuristic bool

	Alt      string
	Summary  string
	LinkText string
	// AccessibleName is a form field's existing /TU tooltip.
	AccessibleName string
}

// AllUnits returns every unit ID of the block, including table cells and
// list items, in extraction order.
func (b *Block) AllUnits() []int {
	out := append([]int(nil), b.Units...)
	for _, row := range b.Rows {
		for _, c := range row {
			out = append(out, c...)
		}
	}
	for _, it := range b.Items {
		out = append(out, it...)
	}
	return out
}

func (b *Block) Centroid() coords.Point { return b.BBox.Center() }

// Measure recomputes a block's bounding box and text from its units. A
// block without units takes the rectangle of its annotation.
func (p *Page) Measure(b *Block) {
	ids := b.AllUnits()
	var box coords.Rect
	for _, id := range ids {
		if u := p.Unit(id); u != nil {
			box = box.Union(u.BBox)
		}
	}
	if box.Empty() && b.Annotation >= 0 && b.Annotation < len(p.Annotations) {
		box = p.Annotations[b.Annotation].Rect
	}
	b.BBox = box
	b.Text = JoinText(p, ids)
}

// Renumber sets every block's ID to its position.
func (p *Page) Renumber() {
	for i, b := range p.Blocks {
		b.ID = i
	}
}

// Annotation is a link or widget annotation of a page.
type Annotation struct {
	Index     int
	Ref       raw.ObjectRef
	Subtype   string
	Rect      coords.Rect
	URI       string
	Tooltip   string
	FieldName string
	Contents  string
}

// MarkedRegion is a run of operations wrapped in one BDC/EMC pair.
type MarkedRegion struct {
	Page   int
	CID    int
	Tag    string
	Units  []int
	Orphan bool
	// Ops covered, [OpStart, OpEnd) in the page's operation list.
	OpStart, OpEnd int
	BBox           coords.Rect
	Lang           string
}

// JoinText concatenates unit texts, inserting a space between units that
// do not already end or start with whitespace.
func JoinText(p *Page, ids []int) string {
	var b strings.Builder
	for _, id := range ids {
		u := p.Unit(id)
		if u == nil || u.Text == "" {
			continue
		}
		if b.Len() > 0 && !strings.HasSuffix(b.String(), " ") && !strings.HasPrefix(u.Text, " ") {
			b.WriteByte(' ')
		}
		b.WriteString(u.Text)
	}
	return strings.TrimSpace(b.String())
}
