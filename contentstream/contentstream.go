package contentstream

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/scanner"
	"github.com/wudi/pdfremedy/security"
)

// ErrMalformed is returned when a content stream cannot be tokenised.
var ErrMalformed = errors.New("contentstream: malformed content")

// Operation is one operator with its operands.
type Operation struct {
	Operator string
	Operands []raw.Object
	Inline   *InlineImage
}

// InlineImage holds a BI ... ID ... EI sequence.
type InlineImage struct {
	Dict *raw.DictObj
	Data []byte
}

// Op is a shorthand constructor.
func Op(operator string, operands ...raw.Object) Operation {
	return Operation{Operator: operator, Operands: operands}
}

// Parse tokenises a content stream. Operands left over at the end of the
// stream are dropped.
func Parse(data []byte, limits security.Limits) ([]Operation, error) {
	s := scanner.New(data, scanner.Config{MaxStringLength: limits.MaxStringLength})
	r := scanner.NewObjectReader(s)
	if limits.MaxNesting > 0 {
		r.MaxDepth = limits.MaxNesting
	}
	var ops []Operation
	var operands []raw.Object
	for {
		tok, err := r.Token()
		if err != nil {
			return ops, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if tok.Type == scanner.TokenEOF {
			return ops, nil
		}
		if tok.Type != scanner.TokenKeyword {
			v, err := r.Value(tok, 0)
			if err != nil {
				return ops, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			operands = append(operands, v)
			continue
		}
		switch tok.Str {
		case "]", ">>", "{", "}":
			return ops, fmt.Errorf("%w: unexpected %q at %d", ErrMalformed, tok.Str, tok.Pos)
		case "BI":
			img, err := readInline(r)
			if err != nil {
				return ops, err
			}
			ops = append(ops, Operation{Operator: "BI", Inline: img})
		default:
			ops = append(ops, Operation{Operator: tok.Str, Operands: operands})
		}
		operands = nil
		if max := limits.MaxContentOps; max > 0 && len(ops) > max {
			return ops, security.Exceeded("content operations", int64(max))
		}
	}
}

func readInline(r *scanner.ObjectReader) (*InlineImage, error) {
	d := raw.Dict()
	for {
		tok, err := r.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: inline image: %v", ErrMalformed, err)
		}
		if tok.IsKeyword("ID") {
			break
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("%w: inline image key at %d", ErrMalformed, tok.Pos)
		}
		vt, err := r.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: inline image: %v", ErrMalformed, err)
		}
		v, err := r.Value(vt, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: inline image value: %v", ErrMalformed, err)
		}
		d.Set(tok.Str, v)
	}
	if r.Pending() > 0 {
		return nil, fmt.Errorf("%w: inline image header", ErrMalformed)
	}
	data, err := r.Scanner().ReadInlineImage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &InlineImage{Dict: d, Data: append([]byte(nil), data...)}, nil
}

// Serialize writes one operation per line.
func Serialize(ops []Operation) []byte {
	var buf []byte
	for _, op := range ops {
		buf = AppendOperation(buf, op)
		buf = append(buf, '\n')
	}
	return buf
}

func AppendOperation(dst []byte, op Operation) []byte {
	if op.Inline != nil {
		dst = append(dst, "BI"...)
		for _, k := range op.Inline.Dict.Keys() {
			dst = append(dst, ' ')
			dst = raw.AppendName(dst, k)
			dst = append(dst, ' ')
			dst = raw.AppendObject(dst, op.Inline.Dict.KV[k])
		}
		dst = append(dst, " ID "...)
		dst = append(dst, op.Inline.Data...)
		return append(dst, "\nEI"...)
	}
	for _, o := range op.Operands {
		dst = raw.AppendObject(dst, o)
		dst = append(dst, ' ')
	}
	return append(dst, op.Operator...)
}

// markedContent lists the marked-content operators.
var markedContent = map[string]bool{"BDC": true, "BMC": true, "EMC": true, "MP": true, "DP": true}

// preserved are the sequence tags Strip keeps: optional content decides
// visibility and artifacts stay outside the logical structure.
var preserved = map[string]bool{"OC": true, "Artifact": true}

// tagOf returns the tag operand of a marked-content operator.
func tagOf(op Operation) string {
	if len(op.Operands) == 0 {
		return ""
	}
	if n, ok := op.Operands[0].(raw.NameObj); ok {
		return n.Val
	}
	return ""
}

// Strip removes marked-content operators so a stream can be tagged afresh.
// Optional-content and artifact sequences are kept with their operators;
// structure sequences nested inside them are still removed. An EMC without
// a matching opener is dropped.
func Strip(ops []Operation) []Operation {
	out := make([]Operation, 0, len(ops))
	var kept []bool
	for _, op := range ops {
		switch op.Operator {
		case "BDC", "BMC":
			keep := preserved[tagOf(op)]
			kept = append(kept, keep)
			if keep {
				out = append(out, op)
			}
		case "EMC":
			if len(kept) == 0 {
				continue
			}
			keep := kept[len(kept)-1]
			kept = kept[:len(kept)-1]
			if keep {
				out = append(out, op)
			}
		case "MP", "DP":
		default:
			out = append(out, op)
		}
	}
	// Close sequences the source left open so the stream stays balanced.
	for i := len(kept) - 1; i >= 0; i-- {
		if kept[i] {
			out = append(out, Op("EMC"))
		}
	}
	return out
}

// Artifacts reports for every operation whether it lies inside an
// /Artifact sequence, the opening and closing operators included.
func Artifacts(ops []Operation) []bool {
	out := make([]bool, len(ops))
	var stack []bool
	inside := func() bool { return len(stack) > 0 && stack[len(stack)-1] }
	for i, op := range ops {
		switch op.Operator {
		case "BDC", "BMC":
			stack = append(stack, inside() || tagOf(op) == "Artifact")
			out[i] = inside()
		case "EMC":
			out[i] = inside()
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			out[i] = inside()
		}
	}
	return out
}

// IsMarkedContent reports whether operator opens, closes or marks content.
func IsMarkedContent(operator string) bool { return markedContent[operator] }
