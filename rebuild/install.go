package rebuild

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfremedy/ir/raw"
)

// ErrPageMismatch is returned when the target document does not have the
// pages the output was built for.
var ErrPageMismatch = errors.New("rebuild: page count mismatch")

// Install points every page of dst at a new content stream holding the
// rebuilt content. dst must be a copy of the document the content model was
// extracted from; unparsed pages keep their original streams.
func Install(dst *raw.Document, out *Output) ([]raw.ObjectRef, error) {
	pages, err := dst.Pages()
	if err != nil {
		return nil, fmt.Errorf("rebuild: install: %w", err)
	}
	if len(pages) != len(out.Pages) {
		return nil, fmt.Errorf("%w: document has %d pages, output %d", ErrPageMismatch, len(pages), len(out.Pages))
	}
	refs := make([]raw.ObjectRef, len(pages))
	for i, p := range pages {
		refs[i] = p.Ref
		po := out.Pages[i]
		if po.Unparsed {
			continue
		}
		p.Dict.Set("Contents", dst.Add(raw.NewStream(raw.Dict(), po.Content)))
	}
	return refs, nil
}
