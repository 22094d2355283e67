// Package rebuild re-emits page content streams with every drawn unit
// inside exactly one marked-content region carrying a fresh MCID.
//
// MCIDs are allocated per page from zero in drawing order, so pages are
// rebuilt concurrently without shared counters. Directive-driven color and
// font size changes are applied while emitting; operand positions are never
// touched.
package rebuild

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wudi/pdfremedy/contentstream"
	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/ir/semantic"
	"github.com/wudi/pdfremedy/observability"
)

// Options controls the rebuild.
type Options struct {
	// PageWorkers bounds concurrent page rebuilds; <= 0 means one.
	PageWorkers int
	Logger      observability.Logger
}

// PageOutput is the rebuilt content of one page.
type PageOutput struct {
	Index   int
	Content []byte
	Regions []semantic.MarkedRegion
	// Unparsed pages carry their original content bytes and no regions.
	Unparsed bool
	// CoverageGaps counts drawing operations that were wrapped in orphan
	// regions because no unit covered them.
	CoverageGaps int

	byUnit map[int]int
}

// RegionOf returns the region holding a unit.
func (p *PageOutput) RegionOf(unitID int) (semantic.MarkedRegion, bool) {
	i, ok := p.byUnit[unitID]
	if !ok {
		return semantic.MarkedRegion{}, false
	}
	return p.Regions[i], true
}

// Output holds rebuilt pages by page index.
type Output struct {
	Pages []PageOutput
}

// CoverageGaps is the total number of orphan regions.
func (o *Output) CoverageGaps() int {
	n := 0
	for _, p := range o.Pages {
		n += p.CoverageGaps
	}
	return n
}

// Rebuild emits new content for every page of doc. The context is checked
// before each page.
func Rebuild(ctx context.Context, doc *semantic.Document, opts Options) (*Output, error) {
	workers := opts.PageWorkers
	if workers <= 0 {
		workers = 1
	}
	log := observability.OrNop(opts.Logger).Named("rebuild")
	start := time.Now()

	out := &Output{Pages: make([]PageOutput, len(doc.Pages))}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range doc.Pages {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out.Pages[i] = rebuildPage(p)
			if gaps := out.Pages[i].CoverageGaps; gaps > 0 {
				log.Warn("coverage gap: drawing operations outside any unit wrapped as paragraphs",
					observability.Int("page", p.Index),
					observability.Int("operations", gaps),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	regions := 0
	for _, p := range out.Pages {
		regions += len(p.Regions)
	}
	log.Info("content rebuilt",
		observability.Int("pages", len(out.Pages)),
		observability.Int("regions", regions),
		observability.Int("coverage_gaps", out.CoverageGaps()),
		observability.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

func rebuildPage(p *semantic.Page) PageOutput {
	if p.Unparsed {
		return PageOutput{Index: p.Index, Content: p.RawContent, Unparsed: true}
	}
	regions := planRegions(p)
	po := PageOutput{Index: p.Index, Regions: regions, byUnit: make(map[int]int, len(p.Units))}
	for i, r := range regions {
		if r.Orphan {
			po.CoverageGaps++
		}
		for _, id := range r.Units {
			po.byUnit[id] = i
		}
	}
	po.Content = emit(p, regions)
	return po
}

// emit serializes the page operations with marked-content operators and
// unit adjustments inserted.
func emit(p *semantic.Page, regions []semantic.MarkedRegion) []byte {
	opens := make(map[int]*semantic.MarkedRegion, len(regions))
	closes := make(map[int]int, len(regions))
	for i := range regions {
		r := &regions[i]
		opens[r.OpStart] = r
		closes[r.OpEnd-1]++
	}
	unitAt := make(map[int]*semantic.Unit)
	unitEnd := make(map[int]*semantic.Unit)
	for i := range p.Units {
		u := &p.Units[i]
		if _, adjusted := p.Attrs[u.ID]; adjusted {
			unitAt[u.OpStart] = u
			unitEnd[u.OpEnd-1] = u
		}
	}

	var buf []byte
	line := func(op contentstream.Operation) {
		buf = contentstream.AppendOperation(buf, op)
		buf = append(buf, '\n')
	}
	var active *adjustment
	for i, op := range p.Ops {
		if r, ok := opens[i]; ok {
			line(begin(r))
		}
		if u, ok := unitAt[i]; ok {
			active = newAdjustment(p, u)
			for _, pre := range active.before() {
				line(pre)
			}
		}
		line(op)
		if active != nil && i < active.unit.OpEnd-1 {
			for _, re := range active.after(op) {
				line(re)
			}
		}
		if u, ok := unitEnd[i]; ok && active != nil && active.unit == u {
			for _, post := range active.restore() {
				line(post)
			}
			active = nil
		}
		for n := closes[i]; n > 0; n-- {
			line(contentstream.Op("EMC"))
		}
	}
	return buf
}

func begin(r *semantic.MarkedRegion) contentstream.Operation {
	props := raw.Dict()
	props.Set("MCID", raw.Int(int64(r.CID)))
	if r.Lang != "" {
		props.Set("Lang", raw.TextString(r.Lang))
	}
	return contentstream.Op("BDC", raw.Name(r.Tag), props)
}
