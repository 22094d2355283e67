package extractor

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/wudi/pdfremedy/coords"
	"github.com/wudi/pdfremedy/ir/semantic"
)

// alignTolerance is how far, in points, table cell edges may drift between rows.
const alignTolerance = 3.0

var listMarker = regexp.MustCompile(`^\s*(?:[•◦▪‣]\s*|[-*–]\s+|(?:\d{1,3}|[A-Za-z]|[ivxlcdm]{1,5})[.)]\s+|\((?:\d{1,3}|[A-Za-z]|[ivxlcdm]{1,5})\)\s*)`)

// line is a run of consecutive text units sharing a baseline.
type line struct {
	units    []int
	cells    [][]int
	edges    []float64 // left edge of each cell
	baseline float64
	bbox     coords.Rect
	size     float64
	bold     bool
	text     string
}

func buildBlocks(page *semantic.Page, opts Options) []*semantic.Block {
	lines := textLines(page)
	body := bodySize(page)

	var blocks []*semantic.Block
	for i := 0; i < len(lines); {
		if rows, header := detectTable(lines[i:], opts); rows > 0 {
			b := &semantic.Block{Kind: semantic.BlockTable, Heuristic: true}
			for _, l := range lines[i : i+rows] {
				row := make([]semantic.Cell, len(l.cells))
				for c, cell := range l.cells {
					row[c] = semantic.Cell(cell)
				}
				b.Rows = append(b.Rows, row)
			}
			if header {
				b.Header = semantic.HeaderHeuristic
			}
			blocks = append(blocks, b)
			i += rows
			continue
		}
		if n := detectList(lines[i:]); n > 0 {
			b := &semantic.Block{Kind: semantic.BlockList, Heuristic: true}
			for _, l := range lines[i : i+n] {
				b.Items = append(b.Items, l.units)
			}
			blocks = append(blocks, b)
			i += n
			continue
		}
		if isHeading(lines[i], body, opts.HeadingSizeRatio) {
			b := &semantic.Block{Kind: semantic.BlockHeading, Heuristic: true, Units: lines[i].units}
			if i+1 < len(lines) && isHeading(lines[i+1], body, opts.HeadingSizeRatio) &&
				sameSize(lines[i], lines[i+1]) && joinable(lines[i], lines[i+1]) {
				b.Units = append(append([]int(nil), b.Units...), lines[i+1].units...)
				i++
			}
			blocks = append(blocks, b)
			i++
			continue
		}
		b := &semantic.Block{Kind: semantic.BlockParagraph, Units: append([]int(nil), lines[i].units...)}
		j := i + 1
		for ; j < len(lines); j++ {
			next := lines[j]
			if !sameSize(lines[j-1], next) || !joinable(lines[j-1], next) ||
				isHeading(next, body, opts.HeadingSizeRatio) || listMarker.MatchString(next.text) {
				break
			}
			if rows, _ := detectTable(lines[j:], opts); rows > 0 {
				break
			}
			b.Units = append(b.Units, next.units...)
		}
		blocks = append(blocks, b)
		i = j
	}

	for _, u := range page.Units {
		if u.Kind != semantic.UnitText {
			blocks = append(blocks, &semantic.Block{Kind: semantic.BlockFigure, Units: []int{u.ID}})
		}
	}
	sort.SliceStable(blocks, func(i, j int) bool { return firstUnit(blocks[i]) < firstUnit(blocks[j]) })

	blocks = attachAnnotations(page, blocks)
	for i, b := range blocks {
		b.ID = i
		page.Measure(b)
	}
	return blocks
}

func firstUnit(b *semantic.Block) int {
	ids := b.AllUnits()
	if len(ids) == 0 {
		return math.MaxInt
	}
	min := ids[0]
	for _, id := range ids[1:] {
		if id < min {
			min = id
		}
	}
	return min
}

// textLines groups consecutive text units that continue rightwards on the
// same baseline.
func textLines(page *semantic.Page) []*line {
	var out []*line
	var cur *line
	for i := range page.Units {
		u := &page.Units[i]
		if u.Kind != semantic.UnitText {
			continue
		}
		size := unitSize(u)
		if cur != nil && math.Abs(u.Start.Y-cur.baseline) <= 0.25*math.Max(size, cur.size) &&
			u.BBox.X0 >= cur.bbox.X1-0.5*size {
			last := &page.Units[cur.units[len(cur.units)-1]]
			if u.BBox.X0-last.BBox.X1 > math.Max(size, cur.size) {
				cur.cells = append(cur.cells, []int{u.ID})
				cur.edges = append(cur.edges, u.BBox.X0)
			} else {
				cur.cells[len(cur.cells)-1] = append(cur.cells[len(cur.cells)-1], u.ID)
			}
			cur.units = append(cur.units, u.ID)
			cur.bbox = cur.bbox.Union(u.BBox)
			cur.size = math.Max(cur.size, size)
			cur.bold = cur.bold && u.Bold
			continue
		}
		cur = &line{
			units:    []int{u.ID},
			cells:    [][]int{{u.ID}},
			edges:    []float64{u.BBox.X0},
			baseline: u.Start.Y,
			bbox:     u.BBox,
			size:     size,
			bold:     u.Bold,
		}
		out = append(out, cur)
	}
	for _, l := range out {
		l.text = semantic.JoinText(page, l.units)
	}
	return out
}

func unitSize(u *semantic.Unit) float64 {
	if u.EffectiveSize > 0 {
		return u.EffectiveSize
	}
	return math.Abs(u.FontSize)
}

// bodySize is the median text size weighted by character count.
func bodySize(page *semantic.Page) float64 {
	type sample struct {
		size  float64
		chars int
	}
	var samples []sample
	total := 0
	for i := range page.Units {
		u := &page.Units[i]
		if u.Kind != semantic.UnitText {
			continue
		}
		n := utf8.RuneCountInString(strings.TrimSpace(u.Text))
		if n == 0 {
			continue
		}
		samples = append(samples, sample{unitSize(u), n})
		total += n
	}
	if total == 0 {
		return 0
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].size < samples[j].size })
	acc := 0
	for _, s := range samples {
		acc += s.chars
		if acc*2 >= total {
			return s.size
		}
	}
	return samples[len(samples)-1].size
}

func isHeading(l *line, body, ratio float64) bool {
	return body > 0 && l.size >= ratio*body && strings.TrimSpace(l.text) != ""
}

func sameSize(a, b *line) bool { return math.Abs(a.size-b.size) < 0.5 }

// joinable reports whether b directly follows a as the next line of text.
func joinable(a, b *line) bool {
	gap := a.baseline - b.baseline
	return gap > 0 && gap < 1.5*math.Max(a.size, b.size)
}

// detectTable returns the number of rows of a table starting at lines[0]
// and whether its first row looks like a header.
func detectTable(lines []*line, opts Options) (int, bool) {
	if len(lines) == 0 || len(lines[0].cells) < opts.TableMinColumns {
		return 0, false
	}
	rows := 1
	for rows < len(lines) {
		prev, next := lines[rows-1], lines[rows]
		if len(next.cells) != len(prev.cells) || next.baseline >= prev.baseline || !cellsAligned(prev, next) {
			break
		}
		rows++
	}
	if rows < opts.TableMinRows {
		return 0, false
	}
	first := lines[0]
	restBold, restSize := true, 0.0
	for _, l := range lines[1:rows] {
		restBold = restBold && l.bold
		restSize = math.Max(restSize, l.size)
	}
	header := (first.bold && !restBold) || first.size > restSize+0.5
	return rows, header
}

// cellsAligned compares the left edges of matching cells.
func cellsAligned(a, b *line) bool {
	for i := range a.edges {
		if math.Abs(a.edges[i]-b.edges[i]) > alignTolerance {
			return false
		}
	}
	return true
}

// detectList returns the number of consecutive marker-prefixed lines, or 0
// when there are fewer than two.
func detectList(lines []*line) int {
	n := 0
	for n < len(lines) && listMarker.MatchString(lines[n].text) {
		if n > 0 && lines[n].baseline >= lines[n-1].baseline {
			break
		}
		n++
	}
	if n < 2 {
		return 0
	}
	return n
}

// attachAnnotations carves Link blocks out of paragraphs and adds one Form
// block per widget.
func attachAnnotations(page *semantic.Page, blocks []*semantic.Block) []*semantic.Block {
	for _, b := range blocks {
		b.Annotation = -1
	}
	var tail []*semantic.Block
	for ai, a := range page.Annotations {
		switch a.Subtype {
		case "Link":
			link := &semantic.Block{Kind: semantic.BlockLink, Annotation: ai, Heuristic: true}
			for _, b := range blocks {
				if b.Kind != semantic.BlockParagraph {
					continue
				}
				kept := b.Units[:0:0]
				for _, id := range b.Units {
					if a.Rect.Contains(page.Units[id].Centroid()) {
						link.Units = append(link.Units, id)
					} else {
						kept = append(kept, id)
					}
				}
				b.Units = kept
			}
			if len(link.Units) > 0 {
				blocks = append(blocks, link)
			} else {
				tail = append(tail, link)
			}
		case "Widget":
			tail = append(tail, &semantic.Block{
				Kind:           semantic.BlockForm,
				Annotation:     ai,
				Heuristic:      true,
				AccessibleName: a.Tooltip,
			})
		}
	}
	kept := blocks[:0]
	for _, b := range blocks {
		if b.Kind == semantic.BlockParagraph && len(b.Units) == 0 {
			continue
		}
		kept = append(kept, b)
	}
	sort.SliceStable(kept, func(i, j int) bool { return firstUnit(kept[i]) < firstUnit(kept[j]) })
	return append(kept, tail...)
}

// assignHeadingLevels ranks the distinct heading sizes of the whole
// document: the largest is level 1, capped at 6.
func assignHeadingLevels(doc *semantic.Document) {
	sizeOf := func(p *semantic.Page, b *semantic.Block) float64 {
		max := 0.0
		for _, id := range b.Units {
			max = math.Max(max, unitSize(&p.Units[id]))
		}
		return math.Round(max*2) / 2
	}
	seen := map[float64]bool{}
	var sizes []float64
	for _, p := range doc.Pages {
		for _, b := range p.Blocks {
			if b.Kind == semantic.BlockHeading {
				if s := sizeOf(p, b); !seen[s] {
					seen[s] = true
					sizes = append(sizes, s)
				}
			}
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(sizes)))
	rank := make(map[float64]int, len(sizes))
	for i, s := range sizes {
		rank[s] = min(i+1, 6)
	}
	for _, p := range doc.Pages {
		for _, b := range p.Blocks {
			if b.Kind == semantic.BlockHeading {
				b.Level = rank[sizeOf(p, b)]
			}
		}
	}
}
