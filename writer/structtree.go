package writer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/ir/semantic"
)

// ErrPageIndex is returned when a structure reference names a page that
// does not exist.
var ErrPageIndex = errors.New("writer: structure references unknown page")

type structWriter struct {
	doc      *raw.Document
	pages    []raw.ObjectRef
	rootRef  raw.RefObj
	parents  map[int]map[int]raw.RefObj // page -> MCID -> element
	annots   []annotParent
	seenAnnt map[raw.ObjectRef]bool
}

type annotParent struct {
	annot raw.ObjectRef
	elem  raw.RefObj
}

// BuildStructTree writes tree into doc as a StructTreeRoot with a
// ParentTree and links every page and annotation to it. pageRefs maps page
// indices used by the tree to page objects. Any existing structure tree is
// replaced; unreachable objects of the old tree are dropped by Write.
func BuildStructTree(doc *raw.Document, tree *semantic.StructureTree, pageRefs []raw.ObjectRef) error {
	cat, err := doc.Catalog()
	if err != nil {
		return err
	}
	if tree == nil || tree.Root == nil {
		return fmt.Errorf("writer: empty structure tree")
	}
	w := &structWriter{
		doc:      doc,
		pages:    pageRefs,
		parents:  make(map[int]map[int]raw.RefObj),
		seenAnnt: make(map[raw.ObjectRef]bool),
	}
	for _, ref := range pageRefs {
		w.clearPage(ref)
	}

	root := raw.Dict()
	root.Set("Type", raw.Name("StructTreeRoot"))
	w.rootRef = doc.Add(root)

	docElem, err := w.element(tree.Root, w.rootRef)
	if err != nil {
		return err
	}
	root.Set("K", docElem)

	nums := raw.NewArray()
	next := 0
	for i, ref := range pageRefs {
		byMCID := w.parents[i]
		if len(byMCID) == 0 {
			continue
		}
		max := 0
		for mcid := range byMCID {
			if mcid > max {
				max = mcid
			}
		}
		arr := make([]raw.Object, max+1)
		for mcid := range arr {
			if elem, ok := byMCID[mcid]; ok {
				arr[mcid] = elem
			} else {
				arr[mcid] = raw.NullObj{}
			}
		}
		key := int64(next)
		next++
		if page := doc.DictOf(raw.RefObj{R: ref}); page != nil {
			page.Set("StructParents", raw.Int(key))
		}
		nums.Append(raw.Int(key), raw.NewArray(arr...))
	}
	for _, ap := range w.annots {
		key := int64(next)
		next++
		if annot := doc.DictOf(raw.RefObj{R: ap.annot}); annot != nil {
			annot.Set("StructParent", raw.Int(key))
		}
		nums.Append(raw.Int(key), ap.elem)
	}
	parentTree := raw.Dict()
	parentTree.Set("Nums", nums)
	root.Set("ParentTree", doc.Add(parentTree))
	root.Set("ParentTreeNextKey", raw.Int(int64(next)))

	for _, ref := range pageRefs {
		page := doc.DictOf(raw.RefObj{R: ref})
		if annots := doc.ArrayOf(doc.Get(page, "Annots")); annots != nil && annots.Len() > 0 {
			page.Set("Tabs", raw.Name("S"))
		}
	}
	cat.Set("StructTreeRoot", w.rootRef)
	return nil
}

// clearPage drops structure links left by a previous tree.
func (w *structWriter) clearPage(ref raw.ObjectRef) {
	page := w.doc.DictOf(raw.RefObj{R: ref})
	if page == nil {
		return
	}
	page.Delete("StructParents")
	annots := w.doc.ArrayOf(w.doc.Get(page, "Annots"))
	if annots == nil {
		return
	}
	for _, a := range annots.Items {
		if d := w.doc.DictOf(a); d != nil {
			d.Delete("StructParent")
		}
	}
}

func (w *structWriter) pageRef(i int) (raw.RefObj, error) {
	if i < 0 || i >= len(w.pages) {
		return raw.RefObj{}, fmt.Errorf("%w: %d", ErrPageIndex, i)
	}
	return raw.RefObj{R: w.pages[i]}, nil
}

func (w *structWriter) element(el *semantic.StructureElement, parent raw.RefObj) (raw.RefObj, error) {
	d := raw.Dict()
	d.Set("Type", raw.Name("StructElem"))
	d.Set("S", raw.Name(el.Tag))
	d.Set("P", parent)
	self := w.doc.Add(d)

	kids := raw.NewArray()
	pg := -1
	if len(el.Refs) > 0 {
		pg = el.Refs[0].Page
	} else if len(el.Objects) > 0 {
		pg = el.Objects[0].Page
	}
	if pg >= 0 {
		ref, err := w.pageRef(pg)
		if err != nil {
			return raw.RefObj{}, err
		}
		d.Set("Pg", ref)
	}
	for _, cr := range el.Refs {
		pageRef, err := w.pageRef(cr.Page)
		if err != nil {
			return raw.RefObj{}, err
		}
		if cr.Page == pg {
			kids.Append(raw.Int(int64(cr.CID)))
		} else {
			mcr := raw.Dict()
			mcr.Set("Type", raw.Name("MCR"))
			mcr.Set("Pg", pageRef)
			mcr.Set("MCID", raw.Int(int64(cr.CID)))
			kids.Append(mcr)
		}
		if w.parents[cr.Page] == nil {
			w.parents[cr.Page] = make(map[int]raw.RefObj)
		}
		w.parents[cr.Page][cr.CID] = self
	}
	for _, or := range el.Objects {
		pageRef, err := w.pageRef(or.Page)
		if err != nil {
			return raw.RefObj{}, err
		}
		if w.seenAnnt[or.Ref] {
			continue
		}
		w.seenAnnt[or.Ref] = true
		objr := raw.Dict()
		objr.Set("Type", raw.Name("OBJR"))
		objr.Set("Pg", pageRef)
		objr.Set("Obj", raw.RefObj{R: or.Ref})
		kids.Append(objr)
		w.annots = append(w.annots, annotParent{annot: or.Ref, elem: self})
	}
	for _, c := range el.Children {
		ref, err := w.element(c, self)
		if err != nil {
			return raw.RefObj{}, err
		}
		kids.Append(ref)
	}
	if kids.Len() > 0 {
		d.Set("K", kids)
	}

	if el.Alt != "" {
		d.Set("Alt", raw.TextString(el.Alt))
	}
	if el.Lang != "" {
		d.Set("Lang", raw.TextString(el.Lang))
	}
	if el.Title != "" {
		d.Set("T", raw.TextString(el.Title))
	}
	if el.ActualText != "" {
		d.Set("ActualText", raw.TextString(el.ActualText))
	}
	if attr := tableAttributes(el); attr != nil {
		d.Set("A", attr)
	}
	return self, nil
}

func tableAttributes(el *semantic.StructureElement) *raw.DictObj {
	if el.Summary == "" && el.Scope == "" {
		return nil
	}
	a := raw.Dict()
	a.Set("O", raw.Name("Table"))
	if el.Summary != "" {
		a.Set("Summary", raw.TextString(el.Summary))
	}
	if el.Scope != "" {
		a.Set("Scope", raw.Name(el.Scope))
	}
	return a
}

// ParentTreeEntries flattens a /Nums number tree, following /Kids, into a
// key-sorted list. It is used by readers of the written structure.
func ParentTreeEntries(doc *raw.Document, node *raw.DictObj) []NumEntry {
	var out []NumEntry
	seen := make(map[*raw.DictObj]bool)
	var walk func(n *raw.DictObj)
	walk = func(n *raw.DictObj) {
		if n == nil || seen[n] {
			return
		}
		seen[n] = true
		if nums := doc.ArrayOf(doc.Get(n, "Nums")); nums != nil {
			for i := 0; i+1 < nums.Len(); i += 2 {
				k, ok := doc.IntOf(nums.Items[i])
				if !ok {
					continue
				}
				out = append(out, NumEntry{Key: k, Value: nums.Items[i+1]})
			}
		}
		if kids := doc.ArrayOf(doc.Get(n, "Kids")); kids != nil {
			for _, k := range kids.Items {
				walk(doc.DictOf(k))
			}
		}
	}
	walk(node)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// NumEntry is one key/value pair of a number tree.
type NumEntry struct {
	Key   int
	Value raw.Object
}
