package rebuild

import (
	"sort"

	"github.com/wudi/pdfremedy/ir/semantic"
)

// slot identifies the structure element a unit's content belongs to: a
// block and, for tables and lists, the cell or item inside it.
type slot struct {
	block *semantic.Block
	row   int
	col   int
	item  int
}

type placement struct {
	slot slot
	tag  string
}

// placements maps every unit to its slot and region tag.
func placements(p *semantic.Page) map[int]placement {
	out := make(map[int]placement, len(p.Units))
	for _, b := range p.Blocks {
		base := slot{block: b, row: -1, col: -1, item: -1}
		switch b.Kind {
		case semantic.BlockTable:
			for r, row := range b.Rows {
				tag := semantic.TagTD
				if r == 0 && b.Header.IsHeader() {
					tag = semantic.TagTH
				}
				for c, cell := range row {
					s := base
					s.row, s.col = r, c
					for _, id := range cell {
						out[id] = placement{s, tag}
					}
				}
			}
		case semantic.BlockList:
			for i, item := range b.Items {
				s := base
				s.item = i
				for _, id := range item {
					out[id] = placement{s, semantic.TagLI}
				}
			}
		}
		tag := blockTag(b)
		for _, id := range b.Units {
			out[id] = placement{base, tag}
		}
	}
	return out
}

func blockTag(b *semantic.Block) string {
	switch b.Kind {
	case semantic.BlockHeading:
		return semantic.HeadingTag(b.Level)
	case semantic.BlockFigure:
		return semantic.TagFigure
	case semantic.BlockLink:
		return semantic.TagLink
	case semantic.BlockForm:
		return semantic.TagForm
	}
	return semantic.TagP
}

// separators may not lie between two units sharing a region. Kept
// optional-content and artifact operators are separators too, so new
// regions nest inside them.
var separators = map[string]bool{
	"BT": true, "ET": true, "q": true, "Q": true, "BI": true, "Do": true,
	"BDC": true, "BMC": true, "EMC": true,
}

// pathOperators construct a path; a region may not open between them and
// the painting operator.
var pathOperators = map[string]bool{
	"m": true, "l": true, "c": true, "v": true, "y": true, "h": true, "re": true, "W": true, "W*": true,
}

// planRegions groups units into marked regions, wraps every drawing
// operation no unit covers in an orphan region and numbers the regions
// in drawing order from zero. Artifact content is left unwrapped.
func planRegions(p *semantic.Page) []semantic.MarkedRegion {
	places := placements(p)
	covered := make([]bool, len(p.Ops))
	var regions []semantic.MarkedRegion
	var last *semantic.Unit
	var lastPlace placement

	for i := range p.Units {
		u := &p.Units[i]
		place, ok := places[u.ID]
		if !ok {
			// Every unit is owned by a block after extraction; keep the
			// coverage guarantee if a caller built blocks by hand.
			place = placement{slot{row: -1, col: -1, item: -1}, semantic.TagP}
		}
		attrs := p.AttrsOf(u.ID)
		tag := place.tag
		if attrs.Lang != "" && u.Kind == semantic.UnitText {
			tag = semantic.TagSpan
		}
		for op := u.OpStart; op < u.OpEnd && op < len(covered); op++ {
			covered[op] = true
		}

		if last != nil && ok && place.slot == lastPlace.slot && tag == regions[len(regions)-1].Tag &&
			attrs.Equal(p.AttrsOf(last.ID)) && adjacent(p, last.OpEnd, u.OpStart) {
			r := &regions[len(regions)-1]
			r.Units = append(r.Units, u.ID)
			r.OpEnd = u.OpEnd
			r.BBox = r.BBox.Union(u.BBox)
			last = u
			continue
		}
		regions = append(regions, semantic.MarkedRegion{
			Page:    p.Index,
			Tag:     tag,
			Units:   []int{u.ID},
			OpStart: u.OpStart,
			OpEnd:   u.OpEnd,
			BBox:    u.BBox,
			Lang:    attrs.Lang,
		})
		last, lastPlace = u, place
		if !ok {
			last = nil
		}
	}

	for i, info := range p.Trace {
		if !info.Kind.Drawing() || covered[i] || p.IsArtifact(i) {
			continue
		}
		start := i
		for start > 0 && pathOperators[p.Ops[start-1].Operator] && !covered[start-1] {
			start--
		}
		regions = append(regions, semantic.MarkedRegion{
			Page:    p.Index,
			Tag:     semantic.TagP,
			Orphan:  true,
			OpStart: start,
			OpEnd:   i + 1,
			BBox:    info.BBox,
		})
	}

	sort.SliceStable(regions, func(i, j int) bool { return regions[i].OpStart < regions[j].OpStart })
	for i := range regions {
		regions[i].CID = i
	}
	return regions
}

// adjacent reports whether only non-drawing operations that keep the text
// object and graphics state nesting lie in [from, to).
func adjacent(p *semantic.Page, from, to int) bool {
	if to < from {
		return false
	}
	for i := from; i < to; i++ {
		if separators[p.Ops[i].Operator] || p.Trace[i].Kind.Drawing() {
			return false
		}
	}
	return true
}
