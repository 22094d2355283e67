package raw

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNoCatalog reports a trailer without a usable /Root.
	ErrNoCatalog = errors.New("raw: document catalog missing")
	// ErrNoPageTree reports a catalog without a usable /Pages tree.
	ErrNoPageTree = errors.New("raw: page tree missing")
)

const maxResolveDepth = 32

// Document is the root container for raw PDF objects.
type Document struct {
	Objects map[ObjectRef]Object
	Trailer *DictObj
	Version string // e.g., "1.7"

	next int
}

// NewDocument returns an empty document with an allocated object table.
func NewDocument(version string) *Document {
	return &Document{Objects: make(map[ObjectRef]Object), Trailer: Dict(), Version: version}
}

// Resolve follows indirect references until a direct object is found.
// Missing targets resolve to NullObj.
func (d *Document) Resolve(o Object) Object {
	for i := 0; i < maxResolveDepth; i++ {
		ref, ok := o.(RefObj)
		if !ok {
			return o
		}
		target, found := d.Objects[ref.R]
		if !found {
			return NullObj{}
		}
		o = target
	}
	return NullObj{}
}

// DictOf resolves o and returns its dictionary (a stream's dictionary for streams).
func (d *Document) DictOf(o Object) *DictObj {
	switch v := d.Resolve(o).(type) {
	case *DictObj:
		return v
	case *StreamObj:
		return v.Dict
	}
	return nil
}

func (d *Document) ArrayOf(o Object) *ArrayObj {
	a, _ := d.Resolve(o).(*ArrayObj)
	return a
}

func (d *Document) StreamOf(o Object) *StreamObj {
	s, _ := d.Resolve(o).(*StreamObj)
	return s
}

func (d *Document) NumberOf(o Object) (float64, bool) {
	n, ok := d.Resolve(o).(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Float(), true
}

func (d *Document) IntOf(o Object) (int, bool) {
	n, ok := d.Resolve(o).(NumberObj)
	if !ok {
		return 0, false
	}
	return int(n.Int()), true
}

func (d *Document) NameOf(o Object) string {
	n, _ := d.Resolve(o).(NameObj)
	return n.Val
}

func (d *Document) StringOf(o Object) ([]byte, bool) {
	s, ok := d.Resolve(o).(StringObj)
	return s.Bytes, ok
}

// Get resolves key in dict and returns the direct value.
func (d *Document) Get(dict *DictObj, key string) Object {
	o, ok := dict.Get(key)
	if !ok {
		return nil
	}
	return d.Resolve(o)
}

// Catalog returns the document catalog referenced by the trailer.
func (d *Document) Catalog() (*DictObj, error) {
	root, ok := d.Trailer.Get("Root")
	if !ok {
		return nil, ErrNoCatalog
	}
	cat := d.DictOf(root)
	if cat == nil {
		return nil, ErrNoCatalog
	}
	return cat, nil
}

// Info returns the document information dictionary, creating it when create is set.
func (d *Document) Info(create bool) *DictObj {
	if o, ok := d.Trailer.Get("Info"); ok {
		if info := d.DictOf(o); info != nil {
			return info
		}
	}
	if !create {
		return nil
	}
	info := Dict()
	d.Trailer.Set("Info", d.Add(info))
	return info
}

// MaxObjectNumber returns the highest object number in use.
func (d *Document) MaxObjectNumber() int {
	max := 0
	for ref := range d.Objects {
		if ref.Num > max {
			max = ref.Num
		}
	}
	return max
}

// Add stores o under the next free object number and returns its reference.
func (d *Document) Add(o Object) RefObj {
	if d.next == 0 {
		d.next = d.MaxObjectNumber() + 1
	}
	ref := ObjectRef{Num: d.next}
	for d.Objects[ref] != nil {
		ref.Num++
	}
	d.next = ref.Num + 1
	d.Objects[ref] = o
	return RefObj{R: ref}
}

// Refs returns object references in ascending order.
func (d *Document) Refs() []ObjectRef {
	refs := make([]ObjectRef, 0, len(d.Objects))
	for r := range d.Objects {
		refs = append(refs, r)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen < refs[j].Gen
	})
	return refs
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{Objects: make(map[ObjectRef]Object, len(d.Objects)), Version: d.Version}
	for r, o := range d.Objects {
		out.Objects[r] = Clone(o)
	}
	out.Trailer = cloneDict(d.Trailer)
	return out
}

// Page is a leaf of the page tree with inherited attributes applied.
type Page struct {
	Ref       ObjectRef
	Dict      *DictObj
	Resources *DictObj
	MediaBox  [4]float64
	Rotate    int
}

type inherited struct {
	resources *DictObj
	mediaBox  *[4]float64
	rotate    int
}

// Pages walks the page tree in document order.
func (d *Document) Pages() ([]Page, error) {
	cat, err := d.Catalog()
	if err != nil {
		return nil, err
	}
	root, ok := cat.Get("Pages")
	if !ok {
		return nil, ErrNoPageTree
	}
	rootRef, isRef := root.(RefObj)
	if !isRef || d.DictOf(root) == nil {
		return nil, ErrNoPageTree
	}
	var pages []Page
	seen := make(map[ObjectRef]bool)
	if err := d.walkPages(rootRef.R, inherited{}, seen, &pages, 0); err != nil {
		return nil, err
	}
	return pages, nil
}

func (d *Document) walkPages(ref ObjectRef, inh inherited, seen map[ObjectRef]bool, out *[]Page, depth int) error {
	if seen[ref] {
		return fmt.Errorf("raw: page tree cycle at %s", ref)
	}
	if depth > maxResolveDepth*4 {
		return fmt.Errorf("raw: page tree too deep at %s", ref)
	}
	seen[ref] = true
	node := d.DictOf(RefObj{R: ref})
	if node == nil {
		return fmt.Errorf("%w: node %s", ErrNoPageTree, ref)
	}
	if res := d.DictOf(d.Get(node, "Resources")); res != nil {
		inh.resources = res
	}
	if box, ok := d.Rect(d.Get(node, "MediaBox")); ok {
		inh.mediaBox = &box
	}
	if rot, ok := d.IntOf(d.Get(node, "Rotate")); ok {
		inh.rotate = rot
	}
	kids := d.ArrayOf(d.Get(node, "Kids"))
	typ := node.Name("Type")
	if typ == "Page" || (typ == "" && kids == nil) {
		p := Page{Ref: ref, Dict: node, Resources: inh.resources, Rotate: inh.rotate}
		if p.Resources == nil {
			p.Resources = Dict()
		}
		if inh.mediaBox != nil {
			p.MediaBox = *inh.mediaBox
		} else {
			p.MediaBox = [4]float64{0, 0, 612, 792}
		}
		*out = append(*out, p)
		return nil
	}
	if kids == nil {
		return nil
	}
	for _, kid := range kids.Items {
		kr, ok := kid.(RefObj)
		if !ok {
			continue
		}
		if err := d.walkPages(kr.R, inh, seen, out, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// Rect converts a four-number array into a normalized rectangle.
func (d *Document) Rect(o Object) ([4]float64, bool) {
	arr := d.ArrayOf(o)
	if arr == nil || arr.Len() != 4 {
		return [4]float64{}, false
	}
	var r [4]float64
	for i, it := range arr.Items {
		v, ok := d.NumberOf(it)
		if !ok {
			return [4]float64{}, false
		}
		r[i] = v
	}
	if r[0] > r[2] {
		r[0], r[2] = r[2], r[0]
	}
	if r[1] > r[3] {
		r[1], r[3] = r[3], r[1]
	}
	return r, true
}
