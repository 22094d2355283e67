package filters

import (
	"context"

	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/security"
)

// lzwDecoder implements LZWDecode including the /EarlyChange variant, which
// compress/lzw does not support.
type lzwDecoder struct{}

func (lzwDecoder) Name() string { return "LZWDecode" }

func (lzwDecoder) Decode(_ context.Context, in []byte, params *raw.DictObj, limit int64) ([]byte, error) {
	early := intParam(params, "EarlyChange", 1)
	const (
		clearCode = 256
		eodCode   = 257
	)
	var table [][]byte
	reset := func() {
		table = table[:0]
		for i := 0; i < 256; i++ {
			table = append(table, []byte{byte(i)})
		}
		table = append(table, nil, nil)
	}
	table = make([][]byte, 0, 4096)
	reset()

	codeLen := 9
	var bitBuf uint32
	bitCount := 0
	pos := 0
	var out []byte
	var prev []byte
	for {
		for bitCount < codeLen && pos < len(in) {
			bitBuf = bitBuf<<8 | uint32(in[pos])
			bitCount += 8
			pos++
		}
		if bitCount < codeLen {
			break
		}
		code := int(bitBuf>>(bitCount-codeLen)) & (1<<codeLen - 1)
		bitCount -= codeLen
		switch {
		case code == clearCode:
			reset()
			codeLen = 9
			prev = nil
			continue
		case code == eodCode:
			return out, nil
		}
		var entry []byte
		switch {
		case code < len(table) && table[code] != nil:
			entry = table[code]
		case code == len(table) && prev != nil:
			entry = append(append([]byte{}, prev...), prev[0])
		default:
			return out, nil
		}
		out = append(out, entry...)
		if limit > 0 && int64(len(out)) > limit {
			return nil, security.Exceeded("decompressed stream size", limit)
		}
		if prev != nil && len(table) < 4096 {
			table = append(table, append(append([]byte{}, prev...), entry[0]))
		}
		prev = entry
		switch n := len(table) + early; {
		case n >= 2048:
			codeLen = 12
		case n >= 1024:
			codeLen = 11
		case n >= 512:
			codeLen = 10
		}
	}
	return out, nil
}
