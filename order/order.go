// Package order computes the reading order of a structure tree: page
// ascending, then top edge descending, then left edge ascending, then
// extraction sequence. Sorting only reorders children; parents never
// change.
package order

import (
	"math"
	"sort"

	"github.com/wudi/pdfremedy/coords"
	"github.com/wudi/pdfremedy/ir/semantic"
)

// Geometry locates the content an element references.
type Geometry interface {
	Region(ref semantic.ContentRef) (coords.Rect, bool)
	Object(ref semantic.ObjectRef) (coords.Rect, bool)
}

// Key is the sort key of an element. Elements without geometry sort after
// every located element.
type Key struct {
	Page  int
	Top   float64
	Left  float64
	Seq   int
	Found bool
}

// round limits keys to hundredths of a point so float noise from matrix
// products does not reorder visually aligned content.
func round(v float64) float64 { return math.Round(v*100) / 100 }

// BoxKey returns the key of content on page covering box.
func BoxKey(page int, box coords.Rect, seq int) Key {
	return Key{Page: page, Top: round(box.Y1), Left: round(box.X0), Seq: seq, Found: true}
}

// Less orders keys for reading.
func Less(a, b Key) bool {
	if a.Found != b.Found {
		return a.Found
	}
	if a.Page != b.Page {
		return a.Page < b.Page
	}
	if a.Top != b.Top {
		return a.Top > b.Top
	}
	if a.Left != b.Left {
		return a.Left < b.Left
	}
	return a.Seq < b.Seq
}

// KeyOf aggregates the geometry of el's subtree: the first page it touches
// and, on that page, the highest top and leftmost edge.
func KeyOf(el *semantic.StructureElement, geo Geometry) Key {
	k := Key{Page: math.MaxInt, Seq: el.Seq}
	var box coords.Rect
	add := func(page int, r coords.Rect) {
		switch {
		case !k.Found || page < k.Page:
			k.Page, k.Found, box = page, true, r
		case page == k.Page:
			box = box.Union(r)
		}
	}
	el.Walk(func(e *semantic.StructureElement, _ int) bool {
		for _, ref := range e.Refs {
			if r, ok := geo.Region(ref); ok {
				add(ref.Page, r)
			}
		}
		for _, obj := range e.Objects {
			if r, ok := geo.Object(obj); ok {
				add(obj.Page, r)
			}
		}
		return true
	})
	if !k.Found {
		return k
	}
	k.Top, k.Left = round(box.Y1), round(box.X0)
	return k
}

// Sort stably sorts the children of every element by reading order.
func Sort(tree *semantic.StructureTree, geo Geometry) {
	if tree == nil || tree.Root == nil {
		return
	}
	sortChildren(tree.Root, geo)
}

func sortChildren(el *semantic.StructureElement, geo Geometry) {
	for _, c := range el.Children {
		sortChildren(c, geo)
	}
	if len(el.Children) < 2 {
		return
	}
	keys := make(map[*semantic.StructureElement]Key, len(el.Children))
	for _, c := range el.Children {
		keys[c] = KeyOf(c, geo)
	}
	sort.SliceStable(el.Children, func(i, j int) bool {
		return Less(keys[el.Children[i]], keys[el.Children[j]])
	})
}

// Sorted reports whether every element's children are already in reading
// order, returning the first offending parent when not.
func Sorted(tree *semantic.StructureTree, geo Geometry) (*semantic.StructureElement, bool) {
	var bad *semantic.StructureElement
	tree.Walk(func(el *semantic.StructureElement, _ int) bool {
		if bad != nil {
			return false
		}
		for i := 1; i < len(el.Children); i++ {
			if Less(KeyOf(el.Children[i], geo), KeyOf(el.Children[i-1], geo)) {
				bad = el
				return false
			}
		}
		return true
	})
	return bad, bad == nil
}

// Leaves returns the elements without children in pre-order, which after
// Sort is the reading order.
func Leaves(tree *semantic.StructureTree) []*semantic.StructureElement {
	var out []*semantic.StructureElement
	tree.Walk(func(el *semantic.StructureElement, _ int) bool {
		if len(el.Children) == 0 && el != tree.Root {
			out = append(out, el)
		}
		return true
	})
	return out
}

// TabOrder returns the annotation references of link and form elements in
// reading order.
func TabOrder(tree *semantic.StructureTree) []semantic.ObjectRef {
	var out []semantic.ObjectRef
	tree.Walk(func(el *semantic.StructureElement, _ int) bool {
		if el.Tag == semantic.TagLink || el.Tag == semantic.TagForm {
			out = append(out, el.Objects...)
		}
		return true
	})
	return out
}
