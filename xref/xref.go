package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/pdfremedy/filters"
	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/scanner"
	"github.com/wudi/pdfremedy/security"
)

var (
	// ErrNoStartXref is returned when the file has no startxref marker.
	ErrNoStartXref = errors.New("xref: startxref not found")
	// ErrBadSection is returned when a cross-reference section cannot be read.
	ErrBadSection = errors.New("xref: malformed cross-reference section")
)

type EntryType int

const (
	EntryFree EntryType = iota
	EntryInUse
	EntryCompressed
)

// Entry locates one object. Compressed entries live inside object stream
// Stream at position Index.
type Entry struct {
	Type   EntryType
	Offset int64
	Gen    int
	Stream int
	Index  int
}

// Table is the merged view of every cross-reference section.
type Table struct {
	Entries  map[int]Entry
	Trailer  *raw.DictObj
	Repaired bool
}

func newTable() *Table { return &Table{Entries: make(map[int]Entry)} }

func (t *Table) Lookup(num int) (Entry, bool) {
	e, ok := t.Entries[num]
	return e, ok
}

// Objects returns the numbers of in-use and compressed objects in ascending order.
func (t *Table) Objects() []int {
	out := make([]int, 0, len(t.Entries))
	for n, e := range t.Entries {
		if e.Type != EntryFree {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

// merge adds entries from an older section without overriding newer ones.
func (t *Table) merge(older map[int]Entry) {
	for n, e := range older {
		if _, ok := t.Entries[n]; !ok {
			t.Entries[n] = e
		}
	}
}

// Resolve reads the cross-reference chain starting at the last startxref.
func Resolve(ctx context.Context, data []byte, limits security.Limits) (*Table, error) {
	off, err := findStartXref(data)
	if err != nil {
		return nil, err
	}
	maxDepth := limits.MaxXRefDepth
	if maxDepth <= 0 {
		maxDepth = security.DefaultLimits().MaxXRefDepth
	}
	t := newTable()
	visited := make(map[int64]bool)
	pipeline := filters.NewPipeline(limits)
	for depth := 0; off >= 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if depth >= maxDepth {
			return nil, security.Exceeded("xref chain depth", int64(maxDepth))
		}
		if visited[off] {
			break
		}
		visited[off] = true
		entries, trailer, err := readSection(ctx, data, off, pipeline)
		if err != nil {
			return nil, err
		}
		t.merge(entries)
		if t.Trailer == nil {
			t.Trailer = trailer
		} else {
			for _, k := range trailer.Keys() {
				if _, ok := t.Trailer.Get(k); !ok {
					v, _ := trailer.Get(k)
					t.Trailer.Set(k, v)
				}
			}
		}
		// Hybrid files point at an additional cross-reference stream.
		if stm, ok := intValue(trailer, "XRefStm"); ok && !visited[stm] {
			visited[stm] = true
			if extra, _, err := readSection(ctx, data, stm, pipeline); err == nil {
				t.merge(extra)
			}
		}
		prev, ok := intValue(trailer, "Prev")
		if !ok {
			break
		}
		off = prev
	}
	if t.Trailer == nil {
		return nil, ErrBadSection
	}
	t.Trailer.Delete("Prev")
	t.Trailer.Delete("XRefStm")
	return t, nil
}

func intValue(d *raw.DictObj, key string) (int64, bool) {
	o, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := o.(raw.NumberObj)
	if !ok {
		return 0, false
	}
	return n.Int(), true
}

func findStartXref(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, ErrNoStartXref
	}
	s := scanner.New(data[idx+len("startxref"):], scanner.Config{})
	tok, err := s.Next()
	if err != nil || tok.Type != scanner.TokenNumber || !tok.IsInt {
		return 0, fmt.Errorf("%w: bad startxref offset", ErrNoStartXref)
	}
	if tok.Int < 0 || tok.Int >= int64(len(data)) {
		return 0, fmt.Errorf("%w: offset %d out of range", ErrBadSection, tok.Int)
	}
	return tok.Int, nil
}

func readSection(ctx context.Context, data []byte, off int64, pipeline *filters.Pipeline) (map[int]Entry, *raw.DictObj, error) {
	s := scanner.New(data, scanner.Config{})
	if err := s.Seek(off); err != nil {
		return nil, nil, err
	}
	r := scanner.NewObjectReader(s)
	tok, err := r.Token()
	if err != nil {
		return nil, nil, err
	}
	if tok.IsKeyword("xref") {
		return readClassic(r)
	}
	r.Unread(tok)
	return readStream(ctx, r, pipeline)
}

func readClassic(r *scanner.ObjectReader) (map[int]Entry, *raw.DictObj, error) {
	entries := make(map[int]Entry)
	for {
		tok, err := r.Token()
		if err != nil {
			return nil, nil, err
		}
		if tok.IsKeyword("trailer") {
			obj, err := r.ReadObject()
			if err != nil {
				return nil, nil, fmt.Errorf("%w: trailer: %v", ErrBadSection, err)
			}
			trailer, ok := obj.(*raw.DictObj)
			if !ok {
				return nil, nil, fmt.Errorf("%w: trailer is not a dictionary", ErrBadSection)
			}
			return entries, trailer, nil
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			return nil, nil, fmt.Errorf("%w: expected subsection start at %d", ErrBadSection, tok.Pos)
		}
		countTok, err := r.Token()
		if err != nil || countTok.Type != scanner.TokenNumber || !countTok.IsInt {
			return nil, nil, fmt.Errorf("%w: expected subsection count", ErrBadSection)
		}
		start := int(tok.Int)
		for i := 0; i < int(countTok.Int); i++ {
			offTok, err1 := r.Token()
			genTok, err2 := r.Token()
			kind, err3 := r.Token()
			if err1 != nil || err2 != nil || err3 != nil || offTok.Type != scanner.TokenNumber || genTok.Type != scanner.TokenNumber {
				return nil, nil, fmt.Errorf("%w: truncated entry %d", ErrBadSection, start+i)
			}
			num := start + i
			switch {
			case kind.IsKeyword("n"):
				entries[num] = Entry{Type: EntryInUse, Offset: offTok.Int, Gen: int(genTok.Int)}
			case kind.IsKeyword("f"):
				entries[num] = Entry{Type: EntryFree, Gen: int(genTok.Int)}
			default:
				return nil, nil, fmt.Errorf("%w: bad entry type at object %d", ErrBadSection, num)
			}
		}
	}
}

func readStream(ctx context.Context, r *scanner.ObjectReader, pipeline *filters.Pipeline) (map[int]Entry, *raw.DictObj, error) {
	numTok, _ := r.Token()
	genTok, _ := r.Token()
	objTok, _ := r.Token()
	if numTok.Type != scanner.TokenNumber || genTok.Type != scanner.TokenNumber || !objTok.IsKeyword("obj") {
		return nil, nil, fmt.Errorf("%w: no xref table or stream at offset", ErrBadSection)
	}
	obj, err := r.ReadObject()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: xref stream dict: %v", ErrBadSection, err)
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok || dict.Name("Type") != "XRef" {
		return nil, nil, fmt.Errorf("%w: object is not an xref stream", ErrBadSection)
	}
	kw, err := r.Token()
	if err != nil || !kw.IsKeyword("stream") {
		return nil, nil, fmt.Errorf("%w: xref stream body missing", ErrBadSection)
	}
	length := -1
	if l, ok := intValue(dict, "Length"); ok {
		length = int(l)
	}
	body, err := r.Scanner().ReadStream(length)
	if err != nil {
		return nil, nil, err
	}
	names, params := filters.StreamFilters(dict)
	decoded, err := pipeline.Decode(ctx, body, names, params)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadSection, err)
	}
	widths, err := intArray(dict, "W")
	if err != nil || len(widths) != 3 {
		return nil, nil, fmt.Errorf("%w: bad /W", ErrBadSection)
	}
	for _, w := range widths {
		if w < 0 || w > 8 {
			return nil, nil, fmt.Errorf("%w: bad /W width %d", ErrBadSection, w)
		}
	}
	size, _ := intValue(dict, "Size")
	index, err := intArray(dict, "Index")
	if err != nil || len(index) == 0 {
		index = []int64{0, size}
	}
	rowLen := int(widths[0] + widths[1] + widths[2])
	if rowLen <= 0 {
		return nil, nil, fmt.Errorf("%w: zero-width rows", ErrBadSection)
	}
	entries := make(map[int]Entry)
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		start, count := int(index[i]), int(index[i+1])
		for k := 0; k < count; k++ {
			if pos+rowLen > len(decoded) {
				break
			}
			row := decoded[pos : pos+rowLen]
			pos += rowLen
			f1 := field(row[:widths[0]], 1)
			f2 := field(row[widths[0]:widths[0]+widths[1]], 0)
			f3 := field(row[widths[0]+widths[1]:], 0)
			num := start + k
			switch f1 {
			case 0:
				entries[num] = Entry{Type: EntryFree, Gen: int(f3)}
			case 1:
				entries[num] = Entry{Type: EntryInUse, Offset: f2, Gen: int(f3)}
			case 2:
				entries[num] = Entry{Type: EntryCompressed, Stream: int(f2), Index: int(f3)}
			}
		}
	}
	trailer := raw.Dict()
	for _, k := range []string{"Root", "Info", "ID", "Size", "Prev", "Encrypt"} {
		if v, ok := dict.Get(k); ok {
			trailer.Set(k, v)
		}
	}
	return entries, trailer, nil
}

func field(b []byte, def int64) int64 {
	if len(b) == 0 {
		return def
	}
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func intArray(d *raw.DictObj, key string) ([]int64, error) {
	o, ok := d.Get(key)
	if !ok {
		return nil, nil
	}
	arr, ok := o.(*raw.ArrayObj)
	if !ok {
		return nil, fmt.Errorf("/%s is not an array", key)
	}
	out := make([]int64, 0, arr.Len())
	for _, it := range arr.Items {
		n, ok := it.(raw.NumberObj)
		if !ok {
			return nil, fmt.Errorf("/%s has a non-numeric entry", key)
		}
		out = append(out, n.Int())
	}
	return out, nil
}

func parseInt(b []byte) (int, bool) {
	v, err := strconv.Atoi(string(b))
	return v, err == nil
}
