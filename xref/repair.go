package xref

import (
	"bytes"
	"errors"
	"regexp"

	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/scanner"
)

// ErrUnrepairable is returned when no object headers can be found at all.
var ErrUnrepairable = errors.New("xref: no objects found while repairing")

var objHeader = regexp.MustCompile(`(?m)(?:^|[\r\n\s])(\d+)\s+(\d+)\s+obj\b`)

// Repair rebuilds a table by scanning the file for object headers. Later
// definitions of the same object number win, matching incremental updates.
func Repair(data []byte) (*Table, error) {
	t := newTable()
	t.Repaired = true
	var catalog *raw.RefObj
	for _, m := range objHeader.FindAllSubmatchIndex(data, -1) {
		num, ok1 := parseInt(data[m[2]:m[3]])
		gen, ok2 := parseInt(data[m[4]:m[5]])
		if !ok1 || !ok2 {
			continue
		}
		t.Entries[num] = Entry{Type: EntryInUse, Offset: int64(m[2]), Gen: gen}
		if looksLikeCatalog(data[m[1]:]) {
			ref := raw.Ref(num, gen)
			catalog = &ref
		}
	}
	if len(t.Entries) == 0 {
		return nil, ErrUnrepairable
	}
	t.Trailer = lastTrailer(data)
	if t.Trailer == nil {
		t.Trailer = raw.Dict()
	}
	if _, ok := t.Trailer.Get("Root"); !ok && catalog != nil {
		t.Trailer.Set("Root", *catalog)
	}
	t.Trailer.Delete("Prev")
	t.Trailer.Delete("XRefStm")
	return t, nil
}

// looksLikeCatalog inspects the start of an object body for /Type /Catalog.
func looksLikeCatalog(body []byte) bool {
	end := bytes.Index(body, []byte("endobj"))
	if end < 0 || end > 4096 {
		end = len(body)
		if end > 4096 {
			end = 4096
		}
	}
	chunk := body[:end]
	i := bytes.Index(chunk, []byte("/Type"))
	for i >= 0 {
		rest := bytes.TrimLeft(chunk[i+len("/Type"):], " \t\r\n")
		if bytes.HasPrefix(rest, []byte("/Catalog")) {
			return true
		}
		next := bytes.Index(chunk[i+1:], []byte("/Type"))
		if next < 0 {
			break
		}
		i += next + 1
	}
	return false
}

func lastTrailer(data []byte) *raw.DictObj {
	idx := bytes.LastIndex(data, []byte("trailer"))
	for idx >= 0 {
		s := scanner.New(data[idx+len("trailer"):], scanner.Config{})
		obj, err := scanner.NewObjectReader(s).ReadObject()
		if d, ok := obj.(*raw.DictObj); err == nil && ok {
			if _, hasRoot := d.Get("Root"); hasRoot {
				return d
			}
		}
		idx = bytes.LastIndex(data[:idx], []byte("trailer"))
	}
	return nil
}
