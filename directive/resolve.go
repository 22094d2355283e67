package directive

import (
	"errors"
	"fmt"
	"math"

	"github.com/wudi/pdfremedy/coords"
	"github.com/wudi/pdfremedy/ir/semantic"
	"github.com/wudi/pdfremedy/observability"
)

var (
	errNoMatch       = errors.New("no content matches the locator")
	errPageRange     = errors.New("page index out of range")
	errTooFar        = errors.New("nearest candidate is beyond the centroid distance limit")
	errNotSplittable = errors.New("matched text is not part of a paragraph or heading")
)

// ResolveOptions bound centroid matching.
type ResolveOptions struct {
	// MaxCentroidDistance is the largest accepted distance in points
	// between a locator centroid and a block centroid; 0 means unlimited.
	MaxCentroidDistance float64
	Logger              observability.Logger
}

// Outcome records what happened to one directive.
type Outcome struct {
	Index   int    `json:"index"`
	Kind    string `json:"type"`
	Locator string `json:"locator"`
	Target  string `json:"target,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Resolution lists applied and unresolved directives in input order.
type Resolution struct {
	Applied    []Outcome `json:"applied"`
	Unresolved []Outcome `json:"unresolved"`
}

// Resolve attaches directive payloads to doc in place. Directives are
// applied in list order, so a later directive targeting the same attribute
// overrides an earlier one. A directive that matches nothing is recorded as
// unresolved and skipped.
func Resolve(doc *semantic.Document, ds []Directive, opts ResolveOptions) Resolution {
	log := observability.OrNop(opts.Logger).Named("directive")
	r := &resolver{doc: doc, maxDist: opts.MaxCentroidDistance}
	var res Resolution
	for i, d := range ds {
		o := Outcome{Index: i, Kind: d.Kind(), Locator: d.Target().String()}
		target, err := r.apply(d)
		if err != nil {
			o.Reason = err.Error()
			res.Unresolved = append(res.Unresolved, o)
			log.Warn("directive unresolved",
				observability.Int("index", i),
				observability.String("type", o.Kind),
				observability.String("locator", o.Locator),
				observability.String("reason", o.Reason),
			)
			continue
		}
		o.Target = target
		res.Applied = append(res.Applied, o)
		log.Debug("directive applied",
			observability.Int("index", i),
			observability.String("type", o.Kind),
			observability.String("target", target),
		)
	}
	log.Info("directives resolved",
		observability.Int("applied", len(res.Applied)),
		observability.Int("unresolved", len(res.Unresolved)),
	)
	return res
}

type resolver struct {
	doc     *semantic.Document
	maxDist float64
}

type blockMatch struct {
	page  *semantic.Page
	block *semantic.Block
}

type unitMatch struct {
	page *semantic.Page
	id   int
}

var (
	textKinds    = []semantic.BlockKind{semantic.BlockParagraph, semantic.BlockHeading, semantic.BlockList, semantic.BlockTable, semantic.BlockLink}
	headingKinds = []semantic.BlockKind{semantic.BlockParagraph, semantic.BlockHeading}
)

func (r *resolver) apply(d Directive) (string, error) {
	switch v := d.(type) {
	case SetDocumentLanguage:
		r.doc.DirectiveLang = v.Lang
		return "document", nil
	case SetDocumentTitle:
		r.doc.DirectiveTitle = v.Title
		return "document", nil

	case SetAlternativeText:
		matches, err := r.blocks(v.At, func(b *semantic.Block) string {
			if b.Kind == semantic.BlockForm && b.AccessibleName != "" {
				return b.AccessibleName
			}
			return b.Text
		}, semantic.BlockFigure, semantic.BlockForm, semantic.BlockLink)
		if err != nil {
			return "", err
		}
		for _, m := range matches {
			m.block.Alt = v.Alt
		}
		return describe(matches), nil

	case SetTableSummary:
		matches, err := r.blocks(v.At, blockText, semantic.BlockTable)
		if err != nil {
			return "", err
		}
		for _, m := range matches {
			if v.Summary != "" {
				m.block.Summary = v.Summary
			}
			if v.HeaderRow != nil {
				if *v.HeaderRow {
					m.block.Header = semantic.HeaderConfirmed
				} else {
					m.block.Header = semantic.HeaderDenied
				}
			}
		}
		return describe(matches), nil

	case SetHeadingLevel:
		matches, err := r.blocks(v.At, blockText, headingKinds...)
		if errors.Is(err, errNoMatch) && v.At.ContentHash != "" {
			matches, err = r.carve(v.At)
		}
		if err != nil {
			return "", err
		}
		for _, m := range matches {
			m.block.Heuristic = false
			if v.Level == 0 {
				m.block.Kind = semantic.BlockParagraph
				m.block.Level = 0
				continue
			}
			m.block.Kind = semantic.BlockHeading
			m.block.Level = v.Level
		}
		return describe(matches), nil

	case SetLanguageSpan:
		units, err := r.runs(v.At, true)
		if err != nil {
			return "", err
		}
		for _, u := range units {
			u.page.UnitAttrs(u.id).Lang = v.Lang
		}
		return describeRuns(units), nil

	case ImproveLinkText:
		matches, err := r.blocks(v.At, blockText, semantic.BlockLink)
		if errors.Is(err, errNoMatch) && v.At.ContentHash != "" {
			matches, err = r.owningBlocks(v.At, semantic.BlockLink)
		}
		if err != nil {
			return "", err
		}
		for _, m := range matches {
			m.block.LinkText = v.Text
		}
		return describe(matches), nil

	case AdjustColor:
		units, err := r.runs(v.At, false)
		if err != nil {
			return "", err
		}
		for _, u := range units {
			c := v.Foreground
			u.page.UnitAttrs(u.id).Color = &c
		}
		return describeRuns(units), nil

	case SetMinimumFontSize:
		units, err := r.runs(v.At, false)
		if err != nil {
			return "", err
		}
		for _, u := range units {
			u.page.UnitAttrs(u.id).MinFontSize = v.Size
		}
		return describeRuns(units), nil
	}
	return "", fmt.Errorf("%w: %T", ErrUnknownDirective, d)
}

func blockText(b *semantic.Block) string { return b.Text }

// pages returns the pages a locator may match on.
func (r *resolver) pages(loc Locator) ([]*semantic.Page, error) {
	if !loc.HasPage {
		return r.doc.Pages, nil
	}
	if loc.Page < 0 || loc.Page >= len(r.doc.Pages) {
		return nil, fmt.Errorf("%w: %d", errPageRange, loc.Page)
	}
	return r.doc.Pages[loc.Page : loc.Page+1], nil
}

// blocks finds blocks of the given kinds: the nearest one for a centroid
// locator, every one whose text hashes to the locator hash otherwise.
func (r *resolver) blocks(loc Locator, text func(*semantic.Block) string, kinds ...semantic.BlockKind) ([]blockMatch, error) {
	pages, err := r.pages(loc)
	if err != nil {
		return nil, err
	}
	if loc.Centroid != nil {
		if len(pages) == 0 {
			return nil, errNoMatch
		}
		m, err := r.nearest(pages[0], *loc.Centroid, kinds)
		if err != nil {
			return nil, err
		}
		return []blockMatch{m}, nil
	}
	var out []blockMatch
	for _, p := range pages {
		for _, b := range p.Blocks {
			if hasKind(b.Kind, kinds) && ContentHash(text(b)) == loc.ContentHash {
				out = append(out, blockMatch{p, b})
			}
		}
	}
	if len(out) == 0 {
		return nil, errNoMatch
	}
	return out, nil
}

func (r *resolver) nearest(p *semantic.Page, at coords.Point, kinds []semantic.BlockKind) (blockMatch, error) {
	var best *semantic.Block
	bestDist := math.Inf(1)
	for _, b := range p.Blocks {
		if !hasKind(b.Kind, kinds) || b.BBox.Empty() {
			continue
		}
		if d := coords.Distance(b.Centroid(), at); d < bestDist {
			best, bestDist = b, d
		}
	}
	if best == nil {
		return blockMatch{}, errNoMatch
	}
	if r.maxDist > 0 && bestDist > r.maxDist {
		return blockMatch{}, fmt.Errorf("%w: %.1f > %.1f", errTooFar, bestDist, r.maxDist)
	}
	return blockMatch{p, best}, nil
}

// unitsByHash returns text runs whose own text hashes to the locator hash.
func (r *resolver) unitsByHash(loc Locator) ([]unitMatch, error) {
	pages, err := r.pages(loc)
	if err != nil {
		return nil, err
	}
	var out []unitMatch
	for _, p := range pages {
		for i := range p.Units {
			u := &p.Units[i]
			if u.Kind == semantic.UnitText && ContentHash(u.Text) == loc.ContentHash {
				out = append(out, unitMatch{p, u.ID})
			}
		}
	}
	return out, nil
}

// runs resolves a locator to text runs. Hash locators match runs and then
// whole blocks; runFirst stops at run matches when there are any.
// Centroid locators take every run of the nearest text block.
func (r *resolver) runs(loc Locator, runFirst bool) ([]unitMatch, error) {
	if loc.Centroid != nil {
		m, err := r.blocks(loc, blockText, textKinds...)
		if err != nil {
			return nil, err
		}
		return textRuns(m), nil
	}
	units, err := r.unitsByHash(loc)
	if err != nil {
		return nil, err
	}
	if len(units) > 0 && runFirst {
		return units, nil
	}
	blocks, err := r.blocks(loc, blockText, textKinds...)
	if err != nil && !errors.Is(err, errNoMatch) {
		return nil, err
	}
	seen := make(map[unitMatch]bool, len(units))
	for _, u := range units {
		seen[u] = true
	}
	for _, u := range textRuns(blocks) {
		if !seen[u] {
			seen[u] = true
			units = append(units, u)
		}
	}
	if len(units) == 0 {
		return nil, errNoMatch
	}
	return units, nil
}

func textRuns(blocks []blockMatch) []unitMatch {
	var out []unitMatch
	for _, m := range blocks {
		for _, id := range m.block.AllUnits() {
			if u := m.page.Unit(id); u != nil && u.Kind == semantic.UnitText {
				out = append(out, unitMatch{m.page, id})
			}
		}
	}
	return out
}

// owningBlocks returns the blocks of the given kinds that own a run whose
// text matches the locator hash.
func (r *resolver) owningBlocks(loc Locator, kinds ...semantic.BlockKind) ([]blockMatch, error) {
	units, err := r.unitsByHash(loc)
	if err != nil {
		return nil, err
	}
	var out []blockMatch
	seen := map[*semantic.Block]bool{}
	for _, u := range units {
		if b := u.page.BlockOf(u.id); b != nil && hasKind(b.Kind, kinds) && !seen[b] {
			seen[b] = true
			out = append(out, blockMatch{u.page, b})
		}
	}
	if len(out) == 0 {
		return nil, errNoMatch
	}
	return out, nil
}

// carve splits each run matching the locator out of its paragraph into a
// block of its own, so a heading buried in body text can be promoted.
func (r *resolver) carve(loc Locator) ([]blockMatch, error) {
	units, err := r.unitsByHash(loc)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, errNoMatch
	}
	var out []blockMatch
	for _, u := range units {
		b := u.page.BlockOf(u.id)
		if b == nil || !hasKind(b.Kind, headingKinds) {
			return nil, errNotSplittable
		}
		out = append(out, blockMatch{u.page, split(u.page, b, u.id)})
	}
	return out, nil
}

// split replaces b with up to three blocks: the runs before id, id alone
// and the runs after it. It returns the block holding id.
func split(p *semantic.Page, b *semantic.Block, id int) *semantic.Block {
	if len(b.Units) == 1 {
		return b
	}
	pos := -1
	for i, u := range b.Units {
		if u == id {
			pos = i
			break
		}
	}
	var parts []*semantic.Block
	if pos > 0 {
		parts = append(parts, &semantic.Block{Kind: b.Kind, Level: b.Level, Heuristic: b.Heuristic, Annotation: -1, Units: append([]int(nil), b.Units[:pos]...)})
	}
	target := &semantic.Block{Kind: b.Kind, Level: b.Level, Heuristic: b.Heuristic, Annotation: -1, Units: []int{id}}
	parts = append(parts, target)
	if pos+1 < len(b.Units) {
		parts = append(parts, &semantic.Block{Kind: b.Kind, Level: b.Level, Heuristic: b.Heuristic, Annotation: -1, Units: append([]int(nil), b.Units[pos+1:]...)})
	}
	blocks := make([]*semantic.Block, 0, len(p.Blocks)+len(parts)-1)
	for _, cur := range p.Blocks {
		if cur != b {
			blocks = append(blocks, cur)
			continue
		}
		for _, part := range parts {
			p.Measure(part)
			blocks = append(blocks, part)
		}
	}
	p.Blocks = blocks
	p.Renumber()
	return target
}

func hasKind(k semantic.BlockKind, kinds []semantic.BlockKind) bool {
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

func describe(matches []blockMatch) string {
	if len(matches) == 1 {
		m := matches[0]
		return fmt.Sprintf("page %d %s block %d", m.page.Index, m.block.Kind, m.block.ID)
	}
	return fmt.Sprintf("%d blocks", len(matches))
}

func describeRuns(units []unitMatch) string {
	if len(units) == 1 {
		return fmt.Sprintf("page %d run %d", units[0].page.Index, units[0].id)
	}
	return fmt.Sprintf("%d runs", len(units))
}
