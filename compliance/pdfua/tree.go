package pdfua

import (
	"fmt"
	"strings"

	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/ir/semantic"
)

const maxTreeDepth = 256

// node is one structure element read back from a document.
type node struct {
	ref    raw.ObjectRef
	dict   *raw.DictObj
	tag    string // after role mapping
	page   int    // page of the first content reference, -1 if none
	parent *node
	kids   []*node
	el     *semantic.StructureElement
}

func (n *node) String() string {
	if n.ref != (raw.ObjectRef{}) {
		return fmt.Sprintf("%s %d %d R", n.tag, n.ref.Num, n.ref.Gen)
	}
	return n.tag
}

// structTree is a structure tree read back from a document, together with
// the problems found while reading it.
type structTree struct {
	top      []*node
	all      []*node // pre-order
	problems []string
	mcids    map[semantic.ContentRef][]*node
	objects  map[raw.ObjectRef][]*node
	root     *semantic.StructureTree
}

type treeReader struct {
	doc       *raw.Document
	pageIndex map[raw.ObjectRef]int
	roleMap   *raw.DictObj
	visited   map[raw.ObjectRef]bool
	direct    map[*raw.DictObj]bool
	t         *structTree
}

// readTree reads the StructTreeRoot of the catalog. It returns nil when
// the document has none.
func readTree(doc *raw.Document, cat *raw.DictObj, pages []raw.Page) *structTree {
	rootObj, ok := cat.Get("StructTreeRoot")
	if !ok {
		return nil
	}
	root := doc.DictOf(rootObj)
	if root == nil {
		return nil
	}
	r := &treeReader{
		doc:       doc,
		pageIndex: make(map[raw.ObjectRef]int, len(pages)),
		roleMap:   doc.DictOf(doc.Get(root, "RoleMap")),
		visited:   make(map[raw.ObjectRef]bool),
		direct:    make(map[*raw.DictObj]bool),
		t: &structTree{
			mcids:   make(map[semantic.ContentRef][]*node),
			objects: make(map[raw.ObjectRef][]*node),
		},
	}
	for i, p := range pages {
		r.pageIndex[p.Ref] = i
	}
	var rootRef raw.ObjectRef
	if ref, ok := rootObj.(raw.RefObj); ok {
		rootRef = ref.R
	}
	kids, _ := root.Get("K")
	for _, k := range r.list(kids) {
		if n := r.read(k, nil, rootRef, -1, 0); n != nil {
			r.t.top = append(r.t.top, n)
		}
	}

	t := r.t
	switch {
	case len(t.top) != 1:
		t.problems = append(t.problems, fmt.Sprintf("StructTreeRoot has %d root elements, want exactly one Document", len(t.top)))
	case t.top[0].tag != semantic.TagDocument:
		t.problems = append(t.problems, fmt.Sprintf("root element is %s, want Document", t.top[0]))
	}
	t.root = semantic.NewTree()
	if len(t.top) == 1 {
		t.root.Root = t.top[0].el
	} else {
		for _, n := range t.top {
			t.root.Root.Add(n.el)
		}
	}
	return t
}

// list returns the items of a /K value: an array or a single object.
func (r *treeReader) list(k raw.Object) []raw.Object {
	if k == nil {
		return nil
	}
	if arr, ok := r.doc.Resolve(k).(*raw.ArrayObj); ok {
		return arr.Items
	}
	return []raw.Object{k}
}

func (r *treeReader) problem(format string, args ...any) {
	r.t.problems = append(r.t.problems, fmt.Sprintf(format, args...))
}

// page resolves a /Pg entry to a page index, falling back to inherited.
func (r *treeReader) page(d *raw.DictObj, inherited int, owner string) int {
	pg, ok := d.Get("Pg")
	if !ok {
		return inherited
	}
	ref, isRef := pg.(raw.RefObj)
	if idx, known := r.pageIndex[ref.R]; isRef && known {
		return idx
	}
	r.problem("%s: /Pg does not name a page", owner)
	return inherited
}

// read reads one /K item below parent. parentRef is the object the
// element's /P must point to. Content items are attached to parent and
// nil is returned.
func (r *treeReader) read(k raw.Object, parent *node, parentRef raw.ObjectRef, pg int, depth int) *node {
	owner := "StructTreeRoot"
	if parent != nil {
		owner = parent.String()
	}
	if depth > maxTreeDepth {
		r.problem("%s: structure nested deeper than %d", owner, maxTreeDepth)
		return nil
	}
	if mcid, ok := r.doc.IntOf(k); ok {
		r.mcr(parent, owner, pg, mcid)
		return nil
	}
	d := r.doc.DictOf(k)
	if d == nil {
		r.problem("%s: unexpected %s in /K", owner, kindOf(r.doc.Resolve(k)))
		return nil
	}

	switch r.doc.NameOf(r.doc.Get(d, "Type")) {
	case "MCR":
		if _, ok := d.Get("Stm"); ok {
			return nil
		}
		mcid, ok := r.doc.IntOf(r.doc.Get(d, "MCID"))
		if !ok {
			r.problem("%s: marked-content reference without /MCID", owner)
			return nil
		}
		r.mcr(parent, owner, r.page(d, pg, owner), mcid)
		return nil
	case "OBJR":
		obj, ok := d.Get("Obj")
		ref, isRef := obj.(raw.RefObj)
		if !ok || !isRef {
			r.problem("%s: object reference without an indirect /Obj", owner)
			return nil
		}
		p := r.page(d, pg, owner)
		if parent == nil || p < 0 {
			r.problem("%s: object reference %d %d R has no page or element", owner, ref.R.Num, ref.R.Gen)
			return nil
		}
		parent.el.Objects = append(parent.el.Objects, semantic.ObjectRef{Page: p, Ref: ref.R})
		r.t.objects[ref.R] = append(r.t.objects[ref.R], parent)
		if parent.page < 0 {
			parent.page = p
		}
		return nil
	}

	n := &node{dict: d, parent: parent, page: -1}
	if ref, ok := k.(raw.RefObj); ok {
		n.ref = ref.R
		if r.visited[ref.R] {
			r.problem("%s: element %d %d R appears more than once", owner, ref.R.Num, ref.R.Gen)
			return nil
		}
		r.visited[ref.R] = true
	} else {
		if r.direct[d] {
			r.problem("%s: element appears more than once", owner)
			return nil
		}
		r.direct[d] = true
	}
	s := r.doc.NameOf(r.doc.Get(d, "S"))
	if s == "" {
		n.tag = "?"
		r.problem("%s has no structure type", n)
	} else {
		n.tag = r.mapRole(s)
	}
	n.el = semantic.NewElement(n.tag)
	n.el.Alt = r.text(d, "Alt")
	n.el.Lang = r.text(d, "Lang")
	n.el.ActualText = r.text(d, "ActualText")

	if parentRef != (raw.ObjectRef{}) {
		p, ok := d.Get("P")
		ref, isRef := p.(raw.RefObj)
		if !ok || !isRef || ref.R != parentRef {
			r.problem("%s: /P does not point to its parent", n)
		}
	}
	r.t.all = append(r.t.all, n)

	elemPage := r.page(d, pg, n.String())
	kids, _ := d.Get("K")
	for i, k := range r.list(kids) {
		if c := r.read(k, n, n.ref, elemPage, depth+1); c != nil {
			c.el.Seq = i
			n.kids = append(n.kids, c)
			n.el.Add(c.el)
		}
	}
	return n
}

func (r *treeReader) mcr(parent *node, owner string, pg, mcid int) {
	if parent == nil {
		r.problem("%s: MCID %d outside any element", owner, mcid)
		return
	}
	if pg < 0 {
		r.problem("%s: MCID %d without a page", owner, mcid)
		return
	}
	ref := semantic.ContentRef{Page: pg, CID: mcid}
	parent.el.Refs = append(parent.el.Refs, ref)
	r.t.mcids[ref] = append(r.t.mcids[ref], parent)
	if parent.page < 0 {
		parent.page = pg
	}
}

// mapRole follows the role map until a standard type or a loop.
func (r *treeReader) mapRole(s string) string {
	seen := map[string]bool{}
	for !standardTypes[s] && !seen[s] {
		seen[s] = true
		next := r.doc.NameOf(r.doc.Get(r.roleMap, s))
		if next == "" {
			break
		}
		s = next
	}
	return s
}

func (r *treeReader) text(d *raw.DictObj, key string) string {
	b, ok := r.doc.StringOf(r.doc.Get(d, key))
	if !ok {
		return ""
	}
	return strings.TrimSpace(raw.DecodeText(b))
}

func kindOf(o raw.Object) string {
	if o == nil {
		return "null"
	}
	return o.Type()
}

var standardTypes = map[string]bool{
	"Document": true, "Part": true, "Art": true, "Sect": true, "Div": true,
	"BlockQuote": true, "Caption": true, "TOC": true, "TOCI": true, "Index": true,
	"NonStruct": true, "Private": true, "P": true, "H": true,
	"H1": true, "H2": true, "H3": true, "H4": true, "H5": true, "H6": true,
	"L": true, "LI": true, "Lbl": true, "LBody": true,
	"Table": true, "TR": true, "TH": true, "TD": true, "THead": true, "TBody": true, "TFoot": true,
	"Span": true, "Quote": true, "Note": true, "Reference": true, "BibEntry": true, "Code": true,
	"Link": true, "Annot": true, "Ruby": true, "Warichu": true,
	"Figure": true, "Formula": true, "Form": true,
}
