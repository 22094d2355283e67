// Package structure builds the logical structure tree from the resolved
// content model and the marked regions of the rebuilt content.
package structure

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/ir/semantic"
	"github.com/wudi/pdfremedy/observability"
	"github.com/wudi/pdfremedy/order"
	"github.com/wudi/pdfremedy/rebuild"
)

// HeadingPolicy decides what happens to a heading that skips levels.
type HeadingPolicy string

const (
	// HeadingAutoInsert wraps the deeper heading in synthesized headings of
	// the missing levels.
	HeadingAutoInsert HeadingPolicy = "auto-insert"
	// HeadingFlag keeps the levels and records the skip.
	HeadingFlag HeadingPolicy = "flag"
)

// ErrHeadingPolicy is returned by ParseHeadingPolicy for unknown names.
var ErrHeadingPolicy = errors.New("structure: unknown heading policy")

// ParseHeadingPolicy maps a configuration value to a policy; empty is
// HeadingAutoInsert.
func ParseHeadingPolicy(s string) (HeadingPolicy, error) {
	switch HeadingPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", HeadingAutoInsert:
		return HeadingAutoInsert, nil
	case HeadingFlag:
		return HeadingFlag, nil
	}
	return "", fmt.Errorf("%w: %q", ErrHeadingPolicy, s)
}

type Options struct {
	HeadingPolicy HeadingPolicy
	Logger        observability.Logger
}

// BuildLog records the repairs and findings of one build.
type BuildLog struct {
	// Pruned lists dangling elements removed from the tree.
	Pruned []string `json:"pruned,omitempty"`
	// HeadingSkips lists heading level skips found in reading order.
	HeadingSkips []string `json:"headingSkips,omitempty"`
	// HeadingFixes lists synthesized intermediate headings.
	HeadingFixes []string `json:"headingFixes,omitempty"`
	// OrphanParagraphs counts regions no block claimed, tagged as P.
	OrphanParagraphs int `json:"orphanParagraphs"`
}

// Build creates the structure tree. Every marked region of out is
// referenced by exactly one element; elements left without content are
// pruned.
func Build(doc *semantic.Document, out *rebuild.Output, opts Options) (*semantic.StructureTree, BuildLog) {
	if opts.HeadingPolicy == "" {
		opts.HeadingPolicy = HeadingAutoInsert
	}
	log := observability.OrNop(opts.Logger).Named("structure")
	b := &builder{doc: doc, out: out, log: &BuildLog{}, headingText: map[*semantic.StructureElement]string{}}
	tree := semantic.NewTree()

	var top []*semantic.StructureElement
	for i, p := range doc.Pages {
		if i >= len(out.Pages) {
			break
		}
		top = append(top, b.page(p, &out.Pages[i])...)
	}

	top = fixHeadings(top, b.headingText, opts.HeadingPolicy, b.log)
	tree.Root.Add(top...)

	for prune(tree.Root, b.log) > 0 {
	}
	for _, s := range b.log.Pruned {
		log.Info("dangling structure element pruned", observability.String("element", s))
	}
	for _, s := range b.log.HeadingSkips {
		log.Warn("heading level skip", observability.String("skip", s), observability.String("policy", string(opts.HeadingPolicy)))
	}
	log.Info("structure built",
		observability.Int("elements", countElements(tree)),
		observability.Int("figures", tree.Count(semantic.TagFigure)),
		observability.Int("orphan_paragraphs", b.log.OrphanParagraphs),
		observability.Int("heading_fixes", len(b.log.HeadingFixes)),
	)
	return tree, *b.log
}

type builder struct {
	doc         *semantic.Document
	out         *rebuild.Output
	log         *BuildLog
	seq         int
	headingText map[*semantic.StructureElement]string
}

func (b *builder) element(tag string) *semantic.StructureElement {
	el := semantic.NewElement(tag)
	el.Seq = b.seq
	b.seq++
	return el
}

// page builds the top-level elements of one page with its blocks visited
// in reading order.
func (b *builder) page(p *semantic.Page, po *rebuild.PageOutput) []*semantic.StructureElement {
	used := make(map[int]bool, len(po.Regions))
	claim := func(el *semantic.StructureElement, ids []int) {
		b.attach(el, p, po, ids, used)
	}

	blocks := append([]*semantic.Block(nil), p.Blocks...)
	sort.SliceStable(blocks, func(i, j int) bool {
		return order.Less(order.BoxKey(p.Index, blocks[i].BBox, blocks[i].ID), order.BoxKey(p.Index, blocks[j].BBox, blocks[j].ID))
	})

	var els []*semantic.StructureElement
	for _, blk := range blocks {
		switch blk.Kind {
		case semantic.BlockHeading:
			el := b.element(semantic.HeadingTag(blk.Level))
			claim(el, blk.Units)
			b.headingText[el] = blk.Text
			els = append(els, el)

		case semantic.BlockFigure:
			el := b.element(semantic.TagFigure)
			el.Alt = blk.Alt
			claim(el, blk.Units)
			els = append(els, el)

		case semantic.BlockTable:
			table := b.element(semantic.TagTable)
			table.Summary = blk.Summary
			for r, row := range blk.Rows {
				tr := b.element(semantic.TagTR)
				for _, cell := range row {
					tag := semantic.TagTD
					if r == 0 && blk.Header.IsHeader() {
						tag = semantic.TagTH
					}
					c := b.element(tag)
					if tag == semantic.TagTH {
						c.Scope = "Column"
					}
					claim(c, cell)
					tr.Add(c)
				}
				table.Add(tr)
			}
			els = append(els, table)

		case semantic.BlockList:
			list := b.element(semantic.TagL)
			for _, item := range blk.Items {
				li := b.element(semantic.TagLI)
				claim(li, item)
				list.Add(li)
			}
			els = append(els, list)

		case semantic.BlockLink, semantic.BlockForm:
			tag := semantic.TagLink
			if blk.Kind == semantic.BlockForm {
				tag = semantic.TagForm
			}
			el := b.element(tag)
			// A field's /TU tooltip stays on its widget; only a supplied
			// description becomes /Alt.
			el.Alt = blk.Alt
			if blk.LinkText != "" {
				el.ActualText = blk.LinkText
			}
			claim(el, blk.Units)
			if blk.Annotation >= 0 && blk.Annotation < len(p.Annotations) {
				if ref := p.Annotations[blk.Annotation].Ref; ref != (raw.ObjectRef{}) {
					el.Objects = append(el.Objects, semantic.ObjectRef{Page: p.Index, Ref: ref})
				}
			}
			els = append(els, el)

		default:
			el := b.element(semantic.TagP)
			claim(el, blk.Units)
			els = append(els, el)
		}
	}

	// Regions no block claimed, including orphans of uncovered drawing
	// operations, become untitled paragraphs.
	for _, r := range po.Regions {
		if used[r.CID] {
			continue
		}
		el := b.element(semantic.TagP)
		el.Refs = []semantic.ContentRef{{Page: p.Index, CID: r.CID}}
		if r.Lang != "" {
			el.Lang = r.Lang
		}
		used[r.CID] = true
		b.log.OrphanParagraphs++
		els = append(els, el)
	}
	return els
}

// attach references the regions holding ids from el. When any of them is
// a language span every region becomes a Span child, keeping the content
// order inside el.
func (b *builder) attach(el *semantic.StructureElement, p *semantic.Page, po *rebuild.PageOutput, ids []int, used map[int]bool) {
	var regions []semantic.MarkedRegion
	spans := false
	for _, id := range ids {
		r, ok := po.RegionOf(id)
		if !ok || used[r.CID] {
			continue
		}
		used[r.CID] = true
		regions = append(regions, r)
		spans = spans || r.Lang != ""
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].CID < regions[j].CID })
	for _, r := range regions {
		ref := semantic.ContentRef{Page: p.Index, CID: r.CID}
		if !spans {
			el.Refs = append(el.Refs, ref)
			continue
		}
		span := b.element(semantic.TagSpan)
		span.Lang = r.Lang
		span.Refs = []semantic.ContentRef{ref}
		el.Add(span)
	}
}

// fixHeadings walks the top-level headings in order. Under auto-insert a
// heading more than one level below its predecessor is wrapped in
// synthesized headings of the missing levels; under flag the skip is only
// recorded. The first heading of a document is expected at level 1.
func fixHeadings(top []*semantic.StructureElement, text map[*semantic.StructureElement]string, policy HeadingPolicy, log *BuildLog) []*semantic.StructureElement {
	prev := 0
	for i, el := range top {
		level := el.Level()
		if level == 0 {
			continue
		}
		if level > prev+1 {
			log.HeadingSkips = append(log.HeadingSkips, fmt.Sprintf("H%d -> H%d before %q", prev, level, text[el]))
			if policy == HeadingAutoInsert {
				wrapped := el
				for l := level - 1; l > prev; l-- {
					syn := semantic.NewElement(semantic.HeadingTag(l))
					syn.Synthesized = true
					syn.Title = text[el]
					syn.Seq = el.Seq
					syn.Add(wrapped)
					wrapped = syn
					log.HeadingFixes = append(log.HeadingFixes, fmt.Sprintf("inserted H%d above %q", l, text[el]))
				}
				top[i] = wrapped
			}
		}
		prev = level
	}
	return top
}

// prune removes dangling elements below el and returns how many it
// removed.
func prune(el *semantic.StructureElement, log *BuildLog) int {
	removed := 0
	kept := el.Children[:0]
	for _, c := range el.Children {
		removed += prune(c, log)
		if c.Empty() {
			log.Pruned = append(log.Pruned, describe(c))
			removed++
			continue
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(el.Children); i++ {
		el.Children[i] = nil
	}
	el.Children = kept
	return removed
}

func describe(el *semantic.StructureElement) string {
	if el.Alt != "" {
		return fmt.Sprintf("%s (alt %q)", el.Tag, el.Alt)
	}
	return el.Tag
}

func countElements(tree *semantic.StructureTree) int {
	n := 0
	tree.Walk(func(*semantic.StructureElement, int) bool { n++; return true })
	return n
}
