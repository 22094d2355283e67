package order_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfremedy/builder"
	"github.com/wudi/pdfremedy/coords"
	"github.com/wudi/pdfremedy/extractor"
	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/ir/semantic"
	"github.com/wudi/pdfremedy/order"
	"github.com/wudi/pdfremedy/parser"
	"github.com/wudi/pdfremedy/rebuild"
	"github.com/wudi/pdfremedy/structure"
)

type fakeGeometry struct {
	regions map[semantic.ContentRef]coords.Rect
	objects map[semantic.ObjectRef]coords.Rect
}

func (g fakeGeometry) Region(ref semantic.ContentRef) (coords.Rect, bool) {
	r, ok := g.regions[ref]
	return r, ok
}

func (g fakeGeometry) Object(ref semantic.ObjectRef) (coords.Rect, bool) {
	r, ok := g.objects[ref]
	return r, ok
}

// leaf adds an element referencing one region with the given geometry.
func (g fakeGeometry) leaf(tag string, page, cid, seq int, box coords.Rect) *semantic.StructureElement {
	ref := semantic.ContentRef{Page: page, CID: cid}
	g.regions[ref] = box
	el := semantic.NewElement(tag)
	el.Refs = []semantic.ContentRef{ref}
	el.Seq = seq
	return el
}

func newGeometry() fakeGeometry {
	return fakeGeometry{regions: map[semantic.ContentRef]coords.Rect{}, objects: map[semantic.ObjectRef]coords.Rect{}}
}

func TestLess(t *testing.T) {
	a := order.Key{Page: 0, Top: 700, Left: 72, Seq: 5, Found: true}
	cases := []struct {
		name string
		b    order.Key
		less bool
	}{
		{"later page", order.Key{Page: 1, Top: 800, Left: 0, Found: true}, true},
		{"lower on page", order.Key{Page: 0, Top: 100, Left: 0, Found: true}, true},
		{"right of", order.Key{Page: 0, Top: 700, Left: 300, Found: true}, true},
		{"later sequence", order.Key{Page: 0, Top: 700, Left: 72, Seq: 6, Found: true}, true},
		{"earlier sequence", order.Key{Page: 0, Top: 700, Left: 72, Seq: 4, Found: true}, false},
		{"higher on page", order.Key{Page: 0, Top: 720, Left: 500, Found: true}, false},
		{"no geometry", order.Key{Seq: 0}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.less, order.Less(a, tc.b))
		})
	}
}

func TestBoxKeyRounds(t *testing.T) {
	k := order.BoxKey(2, coords.Rect{X0: 72.004, Y0: 10, X1: 90, Y1: 700.001}, 3)
	assert.Equal(t, order.Key{Page: 2, Top: 700, Left: 72, Seq: 3, Found: true}, k)
}

func TestSortPagesThenVerticalPosition(t *testing.T) {
	g := newGeometry()
	tree := semantic.NewTree()
	p2 := g.leaf("P", 1, 0, 0, coords.Rect{X0: 72, Y0: 690, X1: 200, Y1: 700})
	low := g.leaf("P", 0, 1, 1, coords.Rect{X0: 72, Y0: 90, X1: 200, Y1: 100})
	high := g.leaf("P", 0, 0, 2, coords.Rect{X0: 72, Y0: 690, X1: 200, Y1: 700})
	tree.Root.Add(p2, low, high)

	_, ok := order.Sorted(tree, g)
	assert.False(t, ok)
	order.Sort(tree, g)
	assert.Equal(t, []*semantic.StructureElement{high, low, p2}, tree.Root.Children)
	bad, ok := order.Sorted(tree, g)
	assert.True(t, ok)
	assert.Nil(t, bad)
}

func TestSortIsStableForIdenticalGeometry(t *testing.T) {
	g := newGeometry()
	box := coords.Rect{X0: 10, Y0: 10, X1: 50, Y1: 50}
	tree := semantic.NewTree()
	first := g.leaf("Figure", 0, 0, 7, box)
	second := g.leaf("Figure", 0, 1, 3, box)
	unplaced := semantic.NewElement("P")
	unplaced.Refs = []semantic.ContentRef{{Page: 0, CID: 9}}
	tree.Root.Add(unplaced, first, second)

	order.Sort(tree, g)
	assert.Equal(t, []*semantic.StructureElement{second, first, unplaced}, tree.Root.Children)

	// Sorting again yields the same order.
	order.Sort(tree, g)
	assert.Equal(t, []*semantic.StructureElement{second, first, unplaced}, tree.Root.Children)
}

func TestSortKeepsParents(t *testing.T) {
	g := newGeometry()
	tree := semantic.NewTree()
	table := semantic.NewElement("Table")
	row := semantic.NewElement("TR")
	right := g.leaf("TD", 0, 1, 0, coords.Rect{X0: 300, Y0: 500, X1: 350, Y1: 510})
	left := g.leaf("TD", 0, 0, 1, coords.Rect{X0: 72, Y0: 500, X1: 120, Y1: 510})
	row.Add(right, left)
	table.Add(row)
	heading := g.leaf("H1", 0, 2, 2, coords.Rect{X0: 72, Y0: 700, X1: 300, Y1: 720})
	tree.Root.Add(table, heading)

	order.Sort(tree, g)
	assert.Equal(t, []*semantic.StructureElement{heading, table}, tree.Root.Children)
	assert.Equal(t, []*semantic.StructureElement{left, right}, row.Children)
	assert.Same(t, row, table.Children[0])
	assert.Equal(t, []*semantic.StructureElement{heading, left, right}, order.Leaves(tree))
}

func TestKeyOfUsesFirstPage(t *testing.T) {
	g := newGeometry()
	el := semantic.NewElement("P")
	el.Add(
		g.leaf("Span", 1, 0, 0, coords.Rect{X0: 10, Y0: 10, X1: 20, Y1: 790}),
		g.leaf("Span", 0, 4, 1, coords.Rect{X0: 100, Y0: 80, X1: 120, Y1: 100}),
		g.leaf("Span", 0, 5, 2, coords.Rect{X0: 50, Y0: 40, X1: 60, Y1: 50}),
	)
	k := order.KeyOf(el, g)
	assert.True(t, k.Found)
	assert.Equal(t, 0, k.Page)
	assert.Equal(t, 100.0, k.Top)
	assert.Equal(t, 50.0, k.Left)
}

func TestTabOrder(t *testing.T) {
	g := newGeometry()
	tree := semantic.NewTree()
	field := semantic.NewElement(semantic.TagForm)
	fieldRef := semantic.ObjectRef{Page: 0, Ref: raw.ObjectRef{Num: 12}}
	field.Objects = []semantic.ObjectRef{fieldRef}
	g.objects[fieldRef] = coords.Rect{X0: 72, Y0: 100, X1: 200, Y1: 120}
	link := g.leaf(semantic.TagLink, 0, 0, 1, coords.Rect{X0: 72, Y0: 600, X1: 200, Y1: 612})
	linkRef := semantic.ObjectRef{Page: 0, Ref: raw.ObjectRef{Num: 9}}
	link.Objects = []semantic.ObjectRef{linkRef}
	tree.Root.Add(field, g.leaf("P", 0, 1, 2, coords.Rect{X0: 72, Y0: 300, X1: 200, Y1: 312}), link)

	order.Sort(tree, g)
	assert.Equal(t, []semantic.ObjectRef{linkRef, fieldRef}, order.TabOrder(tree))
}

func TestSortRebuiltDocument(t *testing.T) {
	b := builder.NewBuilder()
	b.NewPage(612, 792).
		DrawText("Top of page one", 72, 700, builder.TextOptions{}).
		DrawText("Bottom of page one", 72, 100, builder.TextOptions{}).
		Finish()
	b.NewPage(612, 792).DrawText("Top of page two", 72, 700, builder.TextOptions{}).Finish()
	data, err := b.Bytes()
	require.NoError(t, err)
	src, err := parser.Parse(context.Background(), data)
	require.NoError(t, err)
	doc, err := extractor.Extract(context.Background(), src, extractor.DefaultOptions())
	require.NoError(t, err)
	out, err := rebuild.Rebuild(context.Background(), doc, rebuild.Options{})
	require.NoError(t, err)
	tree, _ := structure.Build(doc, out, structure.Options{})
	geo := order.NewGeometry(doc, out)

	kids := tree.Root.Children
	require.Len(t, kids, 3)
	for i, j := 0, len(kids)-1; i < j; i, j = i+1, j-1 {
		kids[i], kids[j] = kids[j], kids[i]
	}
	order.Sort(tree, geo)
	_, ok := order.Sorted(tree, geo)
	require.True(t, ok)

	var got []string
	for _, el := range order.Leaves(tree) {
		ref := el.Refs[0]
		region := out.Pages[ref.Page].Regions[ref.CID]
		got = append(got, semantic.JoinText(doc.Pages[ref.Page], region.Units))
	}
	assert.Equal(t, []string{"Top of page one", "Bottom of page one", "Top of page two"}, got)
}
