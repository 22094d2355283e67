package scanner

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfremedy/ir/raw"
)

// ErrDepth is returned when arrays or dictionaries nest deeper than the reader allows.
var ErrDepth = errors.New("scanner: object nesting too deep")

const defaultMaxDepth = 256

// ObjectReader assembles raw objects from tokens, with the two-token
// lookahead needed to recognise "n g R" references.
type ObjectReader struct {
	s        *Scanner
	pending  []Token
	MaxDepth int
}

func NewObjectReader(s *Scanner) *ObjectReader {
	return &ObjectReader{s: s, MaxDepth: defaultMaxDepth}
}

// Scanner returns the underlying scanner. Callers must only use it for raw
// reads (streams, inline images) when Pending reports zero.
func (r *ObjectReader) Scanner() *Scanner { return r.s }

// Pending reports the number of buffered lookahead tokens.
func (r *ObjectReader) Pending() int { return len(r.pending) }

// Token returns the next token, honouring lookahead.
func (r *ObjectReader) Token() (Token, error) {
	if n := len(r.pending); n > 0 {
		t := r.pending[n-1]
		r.pending = r.pending[:n-1]
		return t, nil
	}
	return r.s.Next()
}

// Unread pushes t back; the most recently unread token is returned first.
func (r *ObjectReader) Unread(t Token) { r.pending = append(r.pending, t) }

// Seek repositions the scanner and drops lookahead.
func (r *ObjectReader) Seek(off int64) error {
	r.pending = r.pending[:0]
	return r.s.Seek(off)
}

// ReadObject reads one complete object.
func (r *ObjectReader) ReadObject() (raw.Object, error) {
	t, err := r.Token()
	if err != nil {
		return nil, err
	}
	return r.Value(t, 0)
}

// Value builds the object that starts with token t.
func (r *ObjectReader) Value(t Token, depth int) (raw.Object, error) {
	if depth > r.MaxDepth {
		return nil, ErrDepth
	}
	switch t.Type {
	case TokenEOF:
		return nil, ErrUnexpectedEOF
	case TokenName:
		return raw.NameObj{Val: t.Str}, nil
	case TokenString:
		return raw.StringObj{Bytes: t.Bytes, Hex: t.Hex}, nil
	case TokenBoolean:
		return raw.BoolObj{V: t.Bool}, nil
	case TokenNull:
		return raw.NullObj{}, nil
	case TokenNumber:
		if !t.IsInt || t.Int < 0 {
			return numberObj(t), nil
		}
		return r.maybeRef(t)
	case TokenArray:
		return r.array(depth + 1)
	case TokenDict:
		return r.dict(depth + 1)
	case TokenKeyword:
		return nil, fmt.Errorf("scanner: unexpected keyword %q at %d", t.Str, t.Pos)
	}
	return nil, fmt.Errorf("scanner: unexpected token %s at %d", t.Type, t.Pos)
}

func numberObj(t Token) raw.NumberObj {
	if t.IsInt {
		return raw.NumberObj{I: t.Int, IsInt: true}
	}
	return raw.NumberObj{F: t.Float}
}

func (r *ObjectReader) maybeRef(num Token) (raw.Object, error) {
	gen, err := r.Token()
	if err != nil {
		return nil, err
	}
	if gen.Type != TokenNumber || !gen.IsInt || gen.Int < 0 {
		r.Unread(gen)
		return numberObj(num), nil
	}
	kw, err := r.Token()
	if err != nil {
		return nil, err
	}
	if kw.IsKeyword("R") {
		return raw.Ref(int(num.Int), int(gen.Int)), nil
	}
	r.Unread(kw)
	r.Unread(gen)
	return numberObj(num), nil
}

func (r *ObjectReader) array(depth int) (raw.Object, error) {
	arr := raw.NewArray()
	for {
		t, err := r.Token()
		if err != nil {
			return nil, err
		}
		if t.IsKeyword("]") {
			return arr, nil
		}
		v, err := r.Value(t, depth)
		if err != nil {
			return nil, err
		}
		arr.Append(v)
	}
}

func (r *ObjectReader) dict(depth int) (raw.Object, error) {
	d := raw.Dict()
	for {
		t, err := r.Token()
		if err != nil {
			return nil, err
		}
		if t.IsKeyword(">>") {
			return d, nil
		}
		if t.Type != TokenName {
			return nil, fmt.Errorf("scanner: dictionary key must be a name at %d", t.Pos)
		}
		vt, err := r.Token()
		if err != nil {
			return nil, err
		}
		if vt.IsKeyword(">>") {
			// Missing value; treat as null and close.
			d.Set(t.Str, raw.NullObj{})
			return d, nil
		}
		v, err := r.Value(vt, depth)
		if err != nil {
			return nil, err
		}
		d.Set(t.Str, v)
	}
}
