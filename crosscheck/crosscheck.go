// Package crosscheck re-reads written documents with an independent PDF
// reader, so a repaired file is known to open outside this module's own
// parser.
package crosscheck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/wudi/pdfremedy/observability"
)

// ErrUnreadable is returned when the second reader cannot open the bytes.
var ErrUnreadable = errors.New("crosscheck: document is unreadable")

// Expect describes what the repaired document must show.
type Expect struct {
	Pages int
	// Tagged requires /MarkInfo /Marked true and a /StructTreeRoot with a
	// /ParentTree.
	Tagged bool
	// Lang, when set, must equal the catalog /Lang.
	Lang string
}

// Result is what the second reader saw.
type Result struct {
	Pages int `json:"pages"`
	// Text holds the extracted plain text of each page.
	Text     []string `json:"-"`
	Findings []string `json:"findings,omitempty"`
}

// OK reports whether the document matched every expectation.
func (r Result) OK() bool { return len(r.Findings) == 0 }

func (r *Result) findf(format string, args ...any) {
	r.Findings = append(r.Findings, fmt.Sprintf(format, args...))
}

// Check opens data with github.com/ledongthuc/pdf and compares it with
// want. The reader panics on some malformed input; panics are returned as
// ErrUnreadable.
func Check(ctx context.Context, data []byte, want Expect, log observability.Logger) (res Result, err error) {
	log = observability.OrNop(log).Named("crosscheck")
	defer func() {
		if p := recover(); p != nil {
			res, err = Result{}, fmt.Errorf("%w: reader panic: %v", ErrUnreadable, p)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	res.Pages = r.NumPage()
	if want.Pages > 0 && res.Pages != want.Pages {
		res.findf("reader sees %d pages, want %d", res.Pages, want.Pages)
	}

	root := r.Trailer().Key("Root")
	if root.Kind() != pdf.Dict {
		res.findf("trailer /Root is not a dictionary")
		return res, nil
	}
	if want.Tagged {
		if !root.Key("MarkInfo").Key("Marked").Bool() {
			res.findf("/MarkInfo /Marked is not true")
		}
		st := root.Key("StructTreeRoot")
		switch {
		case st.Kind() != pdf.Dict:
			res.findf("no /StructTreeRoot")
		case st.Key("ParentTree").IsNull():
			res.findf("/StructTreeRoot has no /ParentTree")
		}
	}
	if want.Lang != "" {
		if got := root.Key("Lang").Text(); got != want.Lang {
			res.findf("/Lang is %q, want %q", got, want.Lang)
		}
	}

	res.Text = make([]string, res.Pages)
	for i := 1; i <= res.Pages; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		text, err := pageText(r.Page(i))
		if err != nil {
			res.findf("page %d: text extraction failed: %v", i, err)
			continue
		}
		res.Text[i-1] = text
	}

	if res.OK() {
		log.Debug("second reader agrees", observability.Int("pages", res.Pages))
	} else {
		log.Warn("second reader disagrees",
			observability.Int("pages", res.Pages),
			observability.String("findings", strings.Join(res.Findings, "; ")),
		)
	}
	return res, nil
}

func pageText(p pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reader panic: %v", r)
		}
	}()
	if p.V.IsNull() {
		return "", errors.New("page object is null")
	}
	return p.GetPlainText(nil)
}
