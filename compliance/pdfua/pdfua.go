// Package pdfua validates the accessibility structure of serialized
// documents against a fixed, ordered checklist.
package pdfua

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/wudi/pdfremedy/compliance"
	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/ir/semantic"
	"github.com/wudi/pdfremedy/metadata"
	"github.com/wudi/pdfremedy/observability"
	"github.com/wudi/pdfremedy/order"
	"github.com/wudi/pdfremedy/parser"
	"github.com/wudi/pdfremedy/security"
	"github.com/wudi/pdfremedy/writer"
	"github.com/wudi/pdfremedy/xmp"
)

// Standard names the checklist in reports.
const Standard = "PDF/UA structure"

// Check identifiers in checklist order.
const (
	CheckTagged       = "UA-01"
	CheckStructure    = "UA-02"
	CheckLanguage     = "UA-03"
	CheckTitle        = "UA-04"
	CheckCoverage     = "UA-05"
	CheckReadingOrder = "UA-06"
	CheckAltText      = "UA-07"
	CheckHeadings     = "UA-08"
)

var checklist = []struct {
	id, requirement string
	run             func(*document, *compliance.Check)
}{
	{CheckTagged, "Document is marked as tagged", checkTagged},
	{CheckStructure, "Structure tree is well-formed with a single Document root and no orphaned references", checkStructure},
	{CheckLanguage, "Document language is set to a well-formed language tag", checkLanguage},
	{CheckTitle, "Document title is set, non-empty and displayed", checkTitle},
	{CheckCoverage, "All drawn content is in marked regions referenced by exactly one structure element", checkCoverage},
	{CheckReadingOrder, "Structure order matches the visual reading order", checkReadingOrder},
	{CheckAltText, "Every Figure and Form element has alternative text", checkAltText},
	{CheckHeadings, "Heading levels never skip more than one level", checkHeadings},
}

// IDs returns the check identifiers in checklist order.
func IDs() []string {
	out := make([]string, len(checklist))
	for i, c := range checklist {
		out[i] = c.id
	}
	return out
}

type Options struct {
	Limits security.Limits
	Logger observability.Logger
}

// Validator runs the checklist. It holds no per-document state.
type Validator struct {
	opts Options
}

func New(opts Options) *Validator {
	if opts.Limits == (security.Limits{}) {
		opts.Limits = security.DefaultLimits()
	}
	opts.Logger = observability.OrNop(opts.Logger)
	return &Validator{opts: opts}
}

var _ compliance.Validator = (*Validator)(nil)

// Validate runs the checklist with default options.
func Validate(ctx context.Context, data []byte) (compliance.Report, error) {
	return New(Options{}).Validate(ctx, data)
}

// document is the parsed state the checks share.
type document struct {
	raw   *raw.Document
	cat   *raw.DictObj
	pages []raw.Page
	// pageErr is set when the page tree cannot be walked.
	pageErr error
	content []*pageContent
	tree    *structTree
}

// Validate re-opens data and evaluates every check. A document that
// cannot be parsed is an error; everything else is a check result.
func (v *Validator) Validate(ctx context.Context, data []byte) (compliance.Report, error) {
	log := v.opts.Logger.Named("pdfua")
	doc, err := parser.Parse(ctx, data, parser.WithLimits(v.opts.Limits), parser.WithLogger(v.opts.Logger))
	if err != nil {
		return compliance.Report{}, fmt.Errorf("pdfua: %w", err)
	}
	cat, err := doc.Catalog()
	if err != nil {
		return compliance.Report{}, fmt.Errorf("pdfua: %w", err)
	}
	d := &document{raw: doc, cat: cat}
	d.pages, d.pageErr = doc.Pages()
	if d.content, err = scanPages(ctx, doc, d.pages, v.opts.Limits); err != nil {
		return compliance.Report{}, err
	}
	d.tree = readTree(doc, cat, d.pages)

	report := compliance.Report{Standard: Standard, Checks: make([]compliance.Check, 0, len(checklist))}
	for _, c := range checklist {
		check := compliance.Check{ID: c.id, Requirement: c.requirement, Passed: true}
		c.run(d, &check)
		report.Checks = append(report.Checks, check)
	}
	log.Info("document validated",
		observability.Int("pages", len(d.pages)),
		observability.Int("passed", report.PassCount()),
		observability.Int("checks", len(report.Checks)),
	)
	return report, nil
}

func checkTagged(d *document, c *compliance.Check) {
	mark := d.raw.DictOf(d.raw.Get(d.cat, "MarkInfo"))
	if mark == nil {
		c.Failf("catalog has no /MarkInfo dictionary")
		return
	}
	if b, _ := d.raw.Get(mark, "Marked").(raw.BoolObj); !b.V {
		c.Failf("/MarkInfo /Marked is not true")
	}
	if b, _ := d.raw.Get(mark, "Suspects").(raw.BoolObj); b.V {
		c.Failf("/MarkInfo /Suspects is true")
	}
}

func checkStructure(d *document, c *compliance.Check) {
	if d.pageErr != nil {
		c.Failf("page tree cannot be read: %v", d.pageErr)
	}
	if d.tree == nil {
		c.Failf("catalog has no /StructTreeRoot")
		return
	}
	for _, p := range d.tree.problems {
		c.Failf("%s", p)
	}

	for _, ref := range sortedRefs(d.tree.mcids) {
		pc := d.page(ref.Page)
		if pc == nil || pc.err != nil {
			continue
		}
		if pc.uses[ref.CID] == 0 {
			c.Failf("page %d MCID %d is referenced by %s but no marked region carries it", ref.Page+1, ref.CID, d.tree.mcids[ref][0])
		}
	}
	checkParentTree(d, c)
}

// checkParentTree compares the ParentTree with the structure read from /K.
func checkParentTree(d *document, c *compliance.Check) {
	rootDict := d.raw.DictOf(d.raw.Get(d.cat, "StructTreeRoot"))
	pt := d.raw.DictOf(d.raw.Get(rootDict, "ParentTree"))
	if pt == nil {
		if len(d.tree.mcids) > 0 || len(d.tree.objects) > 0 {
			c.Failf("StructTreeRoot has no /ParentTree")
		}
		return
	}
	entries := make(map[int]raw.Object)
	for _, e := range writer.ParentTreeEntries(d.raw, pt) {
		entries[e.Key] = e.Value
	}

	byPage := make(map[int][]int)
	for ref := range d.tree.mcids {
		byPage[ref.Page] = append(byPage[ref.Page], ref.CID)
	}
	for _, pc := range d.content {
		ids := byPage[pc.index]
		if len(ids) == 0 {
			continue
		}
		sort.Ints(ids)
		if !pc.hasStructParents {
			c.Failf("page %d has marked content in the structure but no /StructParents", pc.index+1)
			continue
		}
		arr := d.raw.ArrayOf(entries[pc.structParents])
		if arr == nil {
			c.Failf("page %d: ParentTree has no entry %d", pc.index+1, pc.structParents)
			continue
		}
		for _, id := range ids {
			owner := d.tree.mcids[semantic.ContentRef{Page: pc.index, CID: id}][0]
			var got raw.Object
			if id < arr.Len() {
				got = arr.Items[id]
			}
			ref, ok := got.(raw.RefObj)
			if !ok || ref.R != owner.ref {
				c.Failf("page %d MCID %d: ParentTree does not point to %s", pc.index+1, id, owner)
			}
		}
	}

	for _, ref := range sortedObjects(d.tree.objects) {
		owner := d.tree.objects[ref][0]
		annot := d.raw.DictOf(raw.RefObj{R: ref})
		key, ok := d.raw.IntOf(d.raw.Get(annot, "StructParent"))
		if !ok {
			c.Failf("annotation %d %d R has no /StructParent", ref.Num, ref.Gen)
			continue
		}
		got, _ := entries[key].(raw.RefObj)
		if got.R != owner.ref {
			c.Failf("annotation %d %d R: ParentTree does not point to %s", ref.Num, ref.Gen, owner)
		}
	}
}

func checkLanguage(d *document, c *compliance.Check) {
	b, ok := d.raw.StringOf(d.raw.Get(d.cat, "Lang"))
	lang := strings.TrimSpace(raw.DecodeText(b))
	switch {
	case !ok || lang == "":
		c.Failf("catalog has no /Lang")
	default:
		if _, valid := metadata.ValidLanguage(lang); !valid {
			c.Failf("catalog /Lang %q is not a well-formed language tag", lang)
		}
	}
	if d.tree == nil {
		return
	}
	for _, n := range d.tree.all {
		if n.el.Lang == "" {
			continue
		}
		if _, valid := metadata.ValidLanguage(n.el.Lang); !valid {
			c.Failf("%s /Lang %q is not a well-formed language tag", n, n.el.Lang)
		}
	}
}

func checkTitle(d *document, c *compliance.Check) {
	title := ""
	if b, ok := d.raw.StringOf(d.raw.Get(d.raw.Info(false), "Title")); ok {
		title = strings.TrimSpace(raw.DecodeText(b))
	}
	if title == "" {
		if s := d.raw.StreamOf(d.raw.Get(d.cat, "Metadata")); s != nil {
			if data, err := parser.DecodeStream(context.Background(), d.raw, s, nil); err == nil {
				if pkt, err := xmp.Parse(data); err == nil {
					title = strings.TrimSpace(pkt.Title)
				}
			}
		}
	}
	if title == "" {
		c.Failf("document has no title in Info or XMP metadata")
	}
	prefs := d.raw.DictOf(d.raw.Get(d.cat, "ViewerPreferences"))
	if b, _ := d.raw.Get(prefs, "DisplayDocTitle").(raw.BoolObj); !b.V {
		c.Failf("/ViewerPreferences /DisplayDocTitle is not true")
	}
}

func checkCoverage(d *document, c *compliance.Check) {
	drawn, unmarked := 0, 0
	var gaps []string
	for _, pc := range d.content {
		if pc.err == nil {
			drawn += pc.drawn
			unmarked += pc.unmarked
			if pc.unmarked > 0 {
				gaps = append(gaps, fmt.Sprint(pc.index+1))
			}
		}
	}
	if unmarked > 0 {
		c.Failf("%d of %d drawn operations have no enclosing marked region (pages %s)", unmarked, drawn, strings.Join(gaps, ", "))
	}
	for _, pc := range d.content {
		if pc.err != nil {
			c.Failf("page %d content cannot be read: %v", pc.index+1, pc.err)
			continue
		}
		for _, id := range pc.mcids() {
			if n := pc.uses[id]; n > 1 {
				c.Failf("page %d MCID %d is carried by %d marked regions", pc.index+1, id, n)
			}
			ref := semantic.ContentRef{Page: pc.index, CID: id}
			owners := 0
			if d.tree != nil {
				owners = len(d.tree.mcids[ref])
			}
			switch {
			case owners == 0:
				c.Failf("page %d MCID %d is not referenced by any structure element", pc.index+1, id)
			case owners > 1:
				c.Failf("page %d MCID %d is referenced by %d structure elements", pc.index+1, id, owners)
			}
		}
	}
}

func checkReadingOrder(d *document, c *compliance.Check) {
	if d.tree == nil {
		c.Failf("no structure tree to order")
		return
	}
	geo := contentGeometry(d.content)
	for _, n := range d.tree.all {
		if len(n.kids) < 2 {
			continue
		}
		prev := order.KeyOf(n.kids[0].el, geo)
		for i := 1; i < len(n.kids); i++ {
			k := order.KeyOf(n.kids[i].el, geo)
			if order.Less(k, prev) {
				c.Failf("children of %s are out of reading order: %s precedes %s", n, n.kids[i-1], n.kids[i])
				break
			}
			prev = k
		}
	}
}

func checkAltText(d *document, c *compliance.Check) {
	if d.tree == nil {
		return
	}
	for _, n := range d.tree.all {
		if n.tag != semantic.TagFigure && n.tag != semantic.TagForm {
			continue
		}
		if n.el.Alt != "" {
			continue
		}
		if n.tag == semantic.TagForm && d.fieldNamed(n) {
			continue
		}
		if n.page >= 0 {
			c.Failf("%s on page %d has no alternative text", n, n.page+1)
		} else {
			c.Failf("%s has no alternative text", n)
		}
	}
}

// fieldNamed reports whether a Form element owns a widget whose field
// carries a /TU tooltip, on the widget or one of its parent fields.
func (d *document) fieldNamed(n *node) bool {
	for _, obj := range n.el.Objects {
		dict := d.raw.DictOf(raw.RefObj{R: obj.Ref})
		for depth := 0; dict != nil && depth < 32; depth++ {
			if b, ok := d.raw.StringOf(d.raw.Get(dict, "TU")); ok && strings.TrimSpace(raw.DecodeText(b)) != "" {
				return true
			}
			dict = d.raw.DictOf(d.raw.Get(dict, "Parent"))
		}
	}
	return false
}

func checkHeadings(d *document, c *compliance.Check) {
	if d.tree == nil {
		return
	}
	prev := 0
	for _, n := range d.tree.all {
		level := semantic.HeadingLevel(n.tag)
		if level == 0 {
			continue
		}
		if level > prev+1 {
			if prev == 0 {
				c.Failf("first heading %s is not level 1", n)
			} else {
				c.Failf("%s follows H%d", n, prev)
			}
		}
		prev = level
	}
}

func (d *document) page(i int) *pageContent {
	if i < 0 || i >= len(d.content) {
		return nil
	}
	return d.content[i]
}

func sortedRefs(m map[semantic.ContentRef][]*node) []semantic.ContentRef {
	out := make([]semantic.ContentRef, 0, len(m))
	for ref := range m {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Page != out[j].Page {
			return out[i].Page < out[j].Page
		}
		return out[i].CID < out[j].CID
	})
	return out
}

func sortedObjects(m map[raw.ObjectRef][]*node) []raw.ObjectRef {
	out := make([]raw.ObjectRef, 0, len(m))
	for ref := range m {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Num != out[j].Num {
			return out[i].Num < out[j].Num
		}
		return out[i].Gen < out[j].Gen
	})
	return out
}
