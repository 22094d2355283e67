package raw

import (
	"math"
	"strconv"
)

// AppendObject appends the PDF syntax of o to dst. Dictionary keys are
// written in sorted order so output is deterministic. Streams are written
// with their dictionary and data; the caller is responsible for /Length.
func AppendObject(dst []byte, o Object) []byte {
	switch v := o.(type) {
	case nil:
		return append(dst, "null"...)
	case NullObj:
		return append(dst, "null"...)
	case BoolObj:
		return strconv.AppendBool(dst, v.V)
	case NumberObj:
		if v.IsInt {
			return strconv.AppendInt(dst, v.I, 10)
		}
		return AppendReal(dst, v.F)
	case NameObj:
		return AppendName(dst, v.Val)
	case StringObj:
		if v.Hex {
			return appendHex(dst, v.Bytes)
		}
		return AppendLiteral(dst, v.Bytes)
	case RefObj:
		dst = strconv.AppendInt(dst, int64(v.R.Num), 10)
		dst = append(dst, ' ')
		dst = strconv.AppendInt(dst, int64(v.R.Gen), 10)
		return append(dst, " R"...)
	case *ArrayObj:
		dst = append(dst, '[')
		for i, it := range v.Items {
			if i > 0 {
				dst = append(dst, ' ')
			}
			dst = AppendObject(dst, it)
		}
		return append(dst, ']')
	case *DictObj:
		dst = append(dst, "<<"...)
		for _, k := range v.Keys() {
			dst = append(dst, ' ')
			dst = AppendName(dst, k)
			dst = append(dst, ' ')
			dst = AppendObject(dst, v.KV[k])
		}
		return append(dst, " >>"...)
	case *StreamObj:
		dst = AppendObject(dst, v.Dict)
		dst = append(dst, "\nstream\n"...)
		dst = append(dst, v.Data...)
		return append(dst, "\nendstream"...)
	}
	return append(dst, "null"...)
}

// AppendReal writes f with at most six decimals and no trailing zeros.
func AppendReal(dst []byte, f float64) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return append(dst, '0')
	}
	f = math.Round(f*1e6) / 1e6
	if f == 0 {
		return append(dst, '0')
	}
	return strconv.AppendFloat(dst, f, 'f', -1, 64)
}

// AppendName writes /name, escaping delimiters, whitespace and '#'.
func AppendName(dst []byte, name string) []byte {
	const hexdigits = "0123456789ABCDEF"
	dst = append(dst, '/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x21 || c > 0x7E || c == '#' || isDelim(c) {
			dst = append(dst, '#', hexdigits[c>>4], hexdigits[c&0xF])
			continue
		}
		dst = append(dst, c)
	}
	return dst
}

// AppendLiteral writes a (string), escaping parentheses, backslashes and
// control characters.
func AppendLiteral(dst []byte, b []byte) []byte {
	dst = append(dst, '(')
	for _, c := range b {
		switch c {
		case '(', ')', '\\':
			dst = append(dst, '\\', c)
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		case '\t':
			dst = append(dst, '\\', 't')
		default:
			if c < 0x20 || c == 0x7F {
				dst = append(dst, '\\', '0'+(c>>6), '0'+((c>>3)&7), '0'+(c&7))
				continue
			}
			dst = append(dst, c)
		}
	}
	return append(dst, ')')
}

func appendHex(dst []byte, b []byte) []byte {
	const hexdigits = "0123456789ABCDEF"
	dst = append(dst, '<')
	for _, c := range b {
		dst = append(dst, hexdigits[c>>4], hexdigits[c&0xF])
	}
	return append(dst, '>')
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
