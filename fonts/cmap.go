package fonts

import (
	"context"
	"unicode/utf16"

	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/parser"
	"github.com/wudi/pdfremedy/scanner"
)

// CMap is a parsed ToUnicode map.
type CMap struct {
	single map[cmapKey]string
	ranges []cmapRange
}

type cmapKey struct {
	code, size int
}

type cmapRange struct {
	lo, hi, size int
	base         []rune
	list         []string
}

func decodeStream(doc *raw.Document, s *raw.StreamObj) ([]byte, error) {
	return parser.DecodeStream(context.Background(), doc, s, nil)
}

// ParseCMap reads bfchar and bfrange sections. Malformed entries are skipped.
func ParseCMap(data []byte) *CMap {
	cm := &CMap{single: make(map[cmapKey]string)}
	s := scanner.New(data, scanner.Config{})
	var prev []scanner.Token
	for {
		tok, err := s.Next()
		if err != nil || tok.Type == scanner.TokenEOF {
			break
		}
		switch {
		case tok.IsKeyword("beginbfchar"):
			cm.readChars(s, countOf(prev))
		case tok.IsKeyword("beginbfrange"):
			cm.readRanges(s, countOf(prev))
		}
		prev = append(prev[:0], tok)
	}
	return cm
}

func countOf(prev []scanner.Token) int {
	if len(prev) == 1 && prev[0].Type == scanner.TokenNumber {
		return int(prev[0].Int)
	}
	return 1 << 16
}

func codeOf(b []byte) int {
	v := 0
	for _, c := range b {
		v = v<<8 | int(c)
	}
	return v
}

func utf16Text(b []byte) string {
	if len(b)%2 == 1 {
		b = append([]byte{0}, b...)
	}
	u := make([]uint16, len(b)/2)
	for i := range u {
		u[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return string(utf16.Decode(u))
}

func (cm *CMap) readChars(s *scanner.Scanner, n int) {
	for i := 0; i < n; i++ {
		src, err := s.Next()
		if err != nil || src.IsKeyword("endbfchar") || src.Type != scanner.TokenString {
			return
		}
		dst, err := s.Next()
		if err != nil {
			return
		}
		if dst.Type == scanner.TokenString {
			cm.single[cmapKey{codeOf(src.Bytes), len(src.Bytes)}] = utf16Text(dst.Bytes)
		} else if dst.Type == scanner.TokenName {
			if r, ok := glyphRune(dst.Str); ok {
				cm.single[cmapKey{codeOf(src.Bytes), len(src.Bytes)}] = string(r)
			}
		}
	}
}

func (cm *CMap) readRanges(s *scanner.Scanner, n int) {
	for i := 0; i < n; i++ {
		lo, err := s.Next()
		if err != nil || lo.IsKeyword("endbfrange") || lo.Type != scanner.TokenString {
			return
		}
		hi, err1 := s.Next()
		dst, err2 := s.Next()
		if err1 != nil || err2 != nil || hi.Type != scanner.TokenString {
			return
		}
		r := cmapRange{lo: codeOf(lo.Bytes), hi: codeOf(hi.Bytes), size: len(lo.Bytes)}
		switch dst.Type {
		case scanner.TokenString:
			r.base = []rune(utf16Text(dst.Bytes))
		case scanner.TokenArray:
			for {
				it, err := s.Next()
				if err != nil || it.IsKeyword("]") {
					break
				}
				if it.Type == scanner.TokenString {
					r.list = append(r.list, utf16Text(it.Bytes))
				}
			}
		default:
			continue
		}
		if r.hi >= r.lo {
			cm.ranges = append(cm.ranges, r)
		}
	}
}

// Lookup maps a code of the given byte size to text.
func (cm *CMap) Lookup(code, size int) (string, bool) {
	if s, ok := cm.single[cmapKey{code, size}]; ok {
		return s, true
	}
	for _, r := range cm.ranges {
		if r.size != size || code < r.lo || code > r.hi {
			continue
		}
		off := code - r.lo
		if r.list != nil {
			if off < len(r.list) {
				return r.list[off], true
			}
			return "", false
		}
		if len(r.base) == 0 {
			return "", false
		}
		out := append([]rune(nil), r.base...)
		out[len(out)-1] += rune(off)
		return string(out), true
	}
	return "", false
}
