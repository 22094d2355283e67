package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdfremedy/filters"
	"github.com/wudi/pdfremedy/ir/raw"
)

// ErrNoRoot is returned when the trailer has no /Root.
var ErrNoRoot = errors.New("writer: trailer has no /Root")

type PDFVersion string

const (
	PDF17 PDFVersion = "1.7"
	PDF20 PDFVersion = "2.0"
)

type Config struct {
	// Version is the minimum header version; a higher source version is kept.
	Version PDFVersion
	// Compress Flate-encodes unfiltered streams other than XMP metadata.
	Compress bool
}

// Write serialises doc as a complete new file: objects reachable from
// /Root and /Info in ascending number order, a classic cross-reference
// table and a trailer. Object streams and cross-reference streams of the
// source are not carried over; their contents were expanded when parsing.
func Write(ctx context.Context, doc *raw.Document, w io.Writer, cfg Config) error {
	root, ok := doc.Trailer.Get("Root")
	if !ok {
		return ErrNoRoot
	}
	reachable := collect(doc)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", headerVersion(doc.Version, cfg.Version))
	offsets := make(map[int]int64, len(reachable))
	maxNum := 0
	var line []byte
	for _, ref := range reachable {
		if err := ctx.Err(); err != nil {
			return err
		}
		obj := doc.Objects[ref]
		if s, ok := obj.(*raw.StreamObj); ok {
			var err error
			if obj, err = prepareStream(s, cfg); err != nil {
				return fmt.Errorf("writer: object %d: %w", ref.Num, err)
			}
		}
		offsets[ref.Num] = int64(buf.Len())
		line = line[:0]
		line = strconv.AppendInt(line, int64(ref.Num), 10)
		line = append(line, ' ')
		line = strconv.AppendInt(line, int64(ref.Gen), 10)
		line = append(line, " obj\n"...)
		line = raw.AppendObject(line, obj)
		line = append(line, "\nendobj\n"...)
		buf.Write(line)
		if ref.Num > maxNum {
			maxNum = ref.Num
		}
	}

	gens := make(map[int]int, len(reachable))
	for _, ref := range reachable {
		gens[ref.Num] = ref.Gen
	}
	xrefAt := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", maxNum+1)
	for n := 1; n <= maxNum; n++ {
		if off, ok := offsets[n]; ok {
			fmt.Fprintf(&buf, "%010d %05d n \n", off, gens[n])
		} else {
			buf.WriteString("0000000000 00000 f \n")
		}
	}

	trailer := raw.Dict()
	trailer.Set("Size", raw.Int(int64(maxNum+1)))
	trailer.Set("Root", root)
	if info, ok := doc.Trailer.Get("Info"); ok {
		if _, isRef := info.(raw.RefObj); isRef {
			trailer.Set("Info", info)
		}
	}
	trailer.Set("ID", fileID(doc, buf.Bytes()))
	buf.WriteString("trailer\n")
	buf.Write(raw.AppendObject(nil, trailer))
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefAt)

	_, err := w.Write(buf.Bytes())
	return err
}

// Bytes is Write into a new buffer.
func Bytes(ctx context.Context, doc *raw.Document, cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(ctx, doc, &buf, cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func headerVersion(docVersion string, min PDFVersion) string {
	v := string(min)
	if v == "" {
		v = string(PDF17)
	}
	if docVersion > v {
		return docVersion
	}
	return v
}

// collect returns the indirect objects reachable from the trailer's /Root
// and /Info, sorted by number.
func collect(doc *raw.Document) []raw.ObjectRef {
	seen := make(map[raw.ObjectRef]bool)
	var stack []raw.Object
	for _, k := range []string{"Root", "Info"} {
		if o, ok := doc.Trailer.Get(k); ok {
			stack = append(stack, o)
		}
	}
	for len(stack) > 0 {
		o := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch v := o.(type) {
		case raw.RefObj:
			target, ok := doc.Objects[v.R]
			if !ok || seen[v.R] {
				continue
			}
			seen[v.R] = true
			stack = append(stack, target)
		case *raw.ArrayObj:
			stack = append(stack, v.Items...)
		case *raw.DictObj:
			for _, val := range v.KV {
				stack = append(stack, val)
			}
		case *raw.StreamObj:
			stack = append(stack, v.Dict)
		}
	}
	out := make([]raw.ObjectRef, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Num != out[j].Num {
			return out[i].Num < out[j].Num
		}
		return out[i].Gen < out[j].Gen
	})
	return out
}

func prepareStream(s *raw.StreamObj, cfg Config) (*raw.StreamObj, error) {
	dict := raw.Dict()
	for _, k := range s.Dict.Keys() {
		v, _ := s.Dict.Get(k)
		dict.Set(k, v)
	}
	data := s.Data
	_, filtered := dict.Get("Filter")
	if cfg.Compress && !filtered && dict.Name("Type") != "Metadata" && len(data) > 0 {
		enc, err := filters.FlateEncode(data)
		if err != nil {
			return nil, err
		}
		data = enc
		dict.Set("Filter", raw.Name("FlateDecode"))
		dict.Delete("DecodeParms")
	}
	dict.Set("Length", raw.Int(int64(len(data))))
	return raw.NewStream(dict, data), nil
}

// fileID keeps the first identifier of the source and derives the second
// from the written body, so identical input gives identical output.
func fileID(doc *raw.Document, body []byte) *raw.ArrayObj {
	sum := blake2b.Sum256(body)
	changing := raw.StringObj{Bytes: append([]byte(nil), sum[:16]...), Hex: true}
	permanent := changing
	if ids := doc.ArrayOf(doc.Get(doc.Trailer, "ID")); ids != nil && ids.Len() == 2 {
		if first, ok := doc.StringOf(ids.Items[0]); ok && len(first) > 0 {
			permanent = raw.StringObj{Bytes: first, Hex: true}
		}
	}
	return raw.NewArray(permanent, changing)
}
