// Package extractor turns a parsed document into the layout-independent
// content model: units grouped from drawing operations, blocks grouped from
// units, and the page annotations links and form fields hang off.
package extractor

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wudi/pdfremedy/contentstream"
	"github.com/wudi/pdfremedy/coords"
	"github.com/wudi/pdfremedy/filters"
	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/ir/semantic"
	"github.com/wudi/pdfremedy/observability"
	"github.com/wudi/pdfremedy/parser"
	"github.com/wudi/pdfremedy/security"
	"github.com/wudi/pdfremedy/xmp"
)

// Options controls extraction and the block heuristics.
type Options struct {
	// PageWorkers bounds concurrent page extraction; <= 0 means one.
	PageWorkers int
	// SourceName is the file name of the input, used for defaulting titles.
	SourceName string

	TableMinColumns  int
	TableMinRows     int
	HeadingSizeRatio float64

	Limits security.Limits
	Logger observability.Logger
}

// DefaultOptions returns the documented heuristic thresholds.
func DefaultOptions() Options {
	return Options{
		PageWorkers:      4,
		TableMinColumns:  2,
		TableMinRows:     2,
		HeadingSizeRatio: 1.2,
		Limits:           security.DefaultLimits(),
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.PageWorkers <= 0 {
		o.PageWorkers = 1
	}
	if o.TableMinColumns <= 0 {
		o.TableMinColumns = def.TableMinColumns
	}
	if o.TableMinRows <= 0 {
		o.TableMinRows = def.TableMinRows
	}
	if o.HeadingSizeRatio <= 0 {
		o.HeadingSizeRatio = def.HeadingSizeRatio
	}
	if o.Limits == (security.Limits{}) {
		o.Limits = def.Limits
	}
	o.Logger = observability.OrNop(o.Logger)
	return o
}

// Extract builds the content model of doc. doc is only read. A document
// without a usable page tree is a fatal parse error; a page whose content
// cannot be parsed is kept as raw bytes and marked Unparsed.
func Extract(ctx context.Context, doc *raw.Document, opts Options) (*semantic.Document, error) {
	opts = opts.withDefaults()
	log := opts.Logger.Named("extractor")
	start := time.Now()

	pages, err := doc.Pages()
	if err != nil {
		return nil, &parser.FatalParseError{Reason: "page tree", Err: err}
	}
	out := &semantic.Document{
		Source:     doc,
		SourceName: opts.SourceName,
		Pages:      make([]*semantic.Page, len(pages)),
	}
	out.Lang, out.Title = documentLangTitle(doc)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.PageWorkers)
	for i := range pages {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p := &pageExtractor{doc: doc, src: pages[i], opts: opts, log: log}
			page, err := p.extract(gctx, i)
			out.Pages[i] = page
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	assignHeadingLevels(out)

	units := 0
	for _, p := range out.Pages {
		units += len(p.Units)
	}
	log.Info("extracted content",
		observability.Int("pages", len(out.Pages)),
		observability.Int("units", units),
		observability.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// documentLangTitle reads the original language and title. The Info title
// wins over the XMP title.
func documentLangTitle(doc *raw.Document) (lang, title string) {
	cat, err := doc.Catalog()
	if err != nil {
		return "", ""
	}
	if b, ok := doc.StringOf(doc.Get(cat, "Lang")); ok {
		lang = strings.TrimSpace(raw.DecodeText(b))
	}
	if b, ok := doc.StringOf(doc.Get(doc.Info(false), "Title")); ok {
		title = strings.TrimSpace(raw.DecodeText(b))
	}
	if title == "" || lang == "" {
		if s := doc.StreamOf(doc.Get(cat, "Metadata")); s != nil {
			if data, err := parser.DecodeStream(context.Background(), doc, s, nil); err == nil {
				if pkt, err := xmp.Parse(data); err == nil {
					if title == "" {
						title = pkt.Title
					}
					if lang == "" {
						lang = pkt.Language
					}
				}
			}
		}
	}
	return lang, title
}

// TitleFromSource returns the file name without directory and extension.
func TitleFromSource(name string) string {
	base := filepath.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

type pageExtractor struct {
	doc  *raw.Document
	src  raw.Page
	opts Options
	log  observability.Logger
}

func (e *pageExtractor) extract(ctx context.Context, index int) (*semantic.Page, error) {
	mb := e.src.MediaBox
	page := &semantic.Page{
		Index:    index,
		Ref:      e.src.Ref,
		MediaBox: coords.NewRect(mb[0], mb[1], mb[2], mb[3]),
	}
	page.Annotations = readAnnotations(e.doc, e.src.Dict)

	data, err := PageContent(ctx, e.doc, e.src, e.opts.Limits)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.markUnparsed(page, data, err)
		return page, nil
	}
	ops, err := contentstream.Parse(data, e.opts.Limits)
	if err != nil {
		e.markUnparsed(page, data, err)
		return page, nil
	}
	res := newResources(e.doc, e.src.Resources)
	page.Ops = contentstream.Strip(ops)
	page.Artifact = contentstream.Artifacts(page.Ops)
	page.Trace = newTracer(res, e.src).Trace(page.Ops)
	page.Units = groupUnits(page.Trace, page.Ops, page.Artifact, res)
	page.Blocks = buildBlocks(page, e.opts)
	e.log.Debug("page extracted",
		observability.Int("page", index),
		observability.Int("ops", len(page.Ops)),
		observability.Int("units", len(page.Units)),
		observability.Int("blocks", len(page.Blocks)),
	)
	return page, nil
}

func (e *pageExtractor) markUnparsed(page *semantic.Page, data []byte, err error) {
	page.Unparsed = true
	page.RawContent = data
	e.log.Warn("page content not parsed; kept verbatim",
		observability.Int("page", page.Index),
		observability.Error("error", err),
	)
}

// PageContent returns the content streams of page decoded and joined.
// On a decode error the bytes decoded so far are returned with the error.
func PageContent(ctx context.Context, doc *raw.Document, page raw.Page, limits security.Limits) ([]byte, error) {
	pipeline := filters.NewPipeline(limits)
	var streams []*raw.StreamObj
	switch v := doc.Get(page.Dict, "Contents").(type) {
	case *raw.StreamObj:
		streams = append(streams, v)
	case *raw.ArrayObj:
		for _, it := range v.Items {
			if s := doc.StreamOf(it); s != nil {
				streams = append(streams, s)
			}
		}
	}
	var buf bytes.Buffer
	for _, s := range streams {
		data, err := parser.DecodeStream(ctx, doc, s, pipeline)
		if err != nil {
			return buf.Bytes(), err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// NewTracer returns a tracer resolving the fonts and XObjects of page.
func NewTracer(doc *raw.Document, page raw.Page) *contentstream.Tracer {
	return newTracer(newResources(doc, page.Resources), page)
}

func newTracer(res *resources, page raw.Page) *contentstream.Tracer {
	mb := page.MediaBox
	return &contentstream.Tracer{
		Fonts:    res.font,
		XObjects: res.xobject,
		PageBox:  coords.NewRect(mb[0], mb[1], mb[2], mb[3]),
	}
}
