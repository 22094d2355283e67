package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	stdascii85 "encoding/ascii85"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/security"
)

var (
	// ErrUnknownFilter is returned for filters no decoder is registered for.
	ErrUnknownFilter = errors.New("filters: unknown filter")
	// ErrImageFilter marks image codecs whose output this engine never needs.
	ErrImageFilter = errors.New("filters: image-only filter not decoded")
)

// Decoder decodes one filter stage.
type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params *raw.DictObj, limit int64) ([]byte, error)
}

// Pipeline applies a filter chain under resource limits.
type Pipeline struct {
	decoders map[string]Decoder
	limits   security.Limits
}

var abbreviations = map[string]string{
	"AHx": "ASCIIHexDecode",
	"A85": "ASCII85Decode",
	"Fl":  "FlateDecode",
	"RL":  "RunLengthDecode",
	"LZW": "LZWDecode",
	"DCT": "DCTDecode",
	"CCF": "CCITTFaxDecode",
}

var imageFilters = map[string]bool{
	"DCTDecode":      true,
	"JPXDecode":      true,
	"CCITTFaxDecode": true,
	"JBIG2Decode":    true,
}

// NewPipeline returns a pipeline with every stream decoder registered.
func NewPipeline(limits security.Limits) *Pipeline {
	p := &Pipeline{decoders: make(map[string]Decoder), limits: limits}
	for _, d := range []Decoder{flateDecoder{}, asciiHexDecoder{}, ascii85Decoder{}, runLengthDecoder{}, lzwDecoder{}} {
		p.decoders[d.Name()] = d
	}
	return p
}

// Decode runs the named filters in order. Image-only filters stop the chain
// with ErrImageFilter and the partially decoded data.
func (p *Pipeline) Decode(ctx context.Context, input []byte, names []string, params []*raw.DictObj) ([]byte, error) {
	data := input
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if full, ok := abbreviations[name]; ok {
			name = full
		}
		if imageFilters[name] {
			return data, ErrImageFilter
		}
		dec, ok := p.decoders[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFilter, name)
		}
		var param *raw.DictObj
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param, p.limits.MaxDecompressedSize)
		if err != nil {
			return nil, fmt.Errorf("filters: %s: %w", name, err)
		}
		data = out
	}
	return data, nil
}

// StreamFilters reads /Filter and /DecodeParms from a stream dictionary.
// Indirect entries must be resolved by the caller.
func StreamFilters(dict *raw.DictObj) ([]string, []*raw.DictObj) {
	var names []string
	var params []*raw.DictObj
	f, ok := dict.Get("Filter")
	if !ok {
		return nil, nil
	}
	switch v := f.(type) {
	case raw.NameObj:
		names = append(names, v.Val)
	case *raw.ArrayObj:
		for _, it := range v.Items {
			if n, ok := it.(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
	}
	if p, ok := dict.Get("DecodeParms"); ok {
		switch v := p.(type) {
		case *raw.DictObj:
			params = append(params, v)
		case *raw.ArrayObj:
			for _, it := range v.Items {
				d, _ := it.(*raw.DictObj)
				params = append(params, d)
			}
		}
	}
	return names, params
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = security.DefaultLimits().MaxDecompressedSize
	}
	var out bytes.Buffer
	n, err := io.Copy(&out, io.LimitReader(r, limit+1))
	if n > limit {
		return nil, security.Exceeded("decompressed stream size", limit)
	}
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && out.Len() == 0 {
		return nil, err
	}
	// Truncated deflate data is common in the wild; keep what was decoded.
	return out.Bytes(), nil
}

type flateDecoder struct{}

func (flateDecoder) Name() string { return "FlateDecode" }

func (flateDecoder) Decode(_ context.Context, in []byte, params *raw.DictObj, limit int64) ([]byte, error) {
	var out []byte
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err == nil {
		out, err = readLimited(zr, limit)
		zr.Close()
	}
	if err != nil {
		if errors.Is(err, security.ErrLimitExceeded) {
			return nil, err
		}
		// Some producers omit the zlib header.
		fr := flate.NewReader(bytes.NewReader(in))
		out, err = readLimited(fr, limit)
		fr.Close()
		if err != nil {
			return nil, err
		}
	}
	return applyPredictor(out, params)
}

// FlateEncode compresses data with a zlib wrapper as FlateDecode expects.
func FlateEncode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }

func (asciiHexDecoder) Decode(_ context.Context, in []byte, _ *raw.DictObj, _ int64) ([]byte, error) {
	out := make([]byte, 0, len(in)/2)
	var hi byte
	half := false
	for _, c := range in {
		if c == '>' {
			break
		}
		var v byte
		switch {
		case c >= '0' && c <= '9':
			v = c - '0'
		case c >= 'a' && c <= 'f':
			v = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			v = c - 'A' + 10
		case c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0:
			continue
		default:
			return nil, fmt.Errorf("invalid hex digit %q", c)
		}
		if half {
			out = append(out, hi<<4|v)
		} else {
			hi = v
		}
		half = !half
	}
	if half {
		out = append(out, hi<<4)
	}
	return out, nil
}

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }

func (ascii85Decoder) Decode(_ context.Context, in []byte, _ *raw.DictObj, _ int64) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	trimmed = bytes.TrimPrefix(trimmed, []byte("<~"))
	if i := bytes.Index(trimmed, []byte("~>")); i >= 0 {
		trimmed = trimmed[:i]
	}
	out := make([]byte, len(trimmed)*4/5+8)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

type runLengthDecoder struct{}

func (runLengthDecoder) Name() string { return "RunLengthDecode" }

func (runLengthDecoder) Decode(_ context.Context, in []byte, _ *raw.DictObj, limit int64) ([]byte, error) {
	var out []byte
	for i := 0; i < len(in); {
		n := int(in[i])
		i++
		switch {
		case n == 128:
			return out, nil
		case n < 128:
			end := i + n + 1
			if end > len(in) {
				end = len(in)
			}
			out = append(out, in[i:end]...)
			i = end
		default:
			if i >= len(in) {
				return out, nil
			}
			for k := 0; k < 257-n; k++ {
				out = append(out, in[i])
			}
			i++
		}
		if limit > 0 && int64(len(out)) > limit {
			return nil, security.Exceeded("decompressed stream size", limit)
		}
	}
	return out, nil
}
