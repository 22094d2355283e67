package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/wudi/pdfremedy/filters"
	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/observability"
	"github.com/wudi/pdfremedy/recovery"
	"github.com/wudi/pdfremedy/scanner"
	"github.com/wudi/pdfremedy/security"
	"github.com/wudi/pdfremedy/xref"
)

var (
	// ErrFatalParse matches every FatalParseError via errors.Is.
	ErrFatalParse = errors.New("parser: document cannot be opened")
	// ErrNotPDF is returned when the %PDF- header is missing.
	ErrNotPDF = errors.New("parser: missing %PDF header")
	// ErrEncrypted is returned for documents protected by an /Encrypt dictionary.
	ErrEncrypted = errors.New("parser: encrypted documents are not supported")
)

// FatalParseError reports that a container cannot be opened at all.
// No partial document accompanies it.
type FatalParseError struct {
	Reason string
	Err    error
}

func (e *FatalParseError) Error() string {
	if e.Err == nil {
		return "fatal parse error: " + e.Reason
	}
	return fmt.Sprintf("fatal parse error: %s: %v", e.Reason, e.Err)
}

func (e *FatalParseError) Unwrap() error { return e.Err }

func (e *FatalParseError) Is(target error) bool { return target == ErrFatalParse }

func fatal(reason string, err error) error { return &FatalParseError{Reason: reason, Err: err} }

// Config controls xref resolution and object loading.
type Config struct {
	Recovery recovery.Strategy
	Limits   security.Limits
	Logger   observability.Logger
}

type Option func(*Config)

func WithRecovery(s recovery.Strategy) Option   { return func(c *Config) { c.Recovery = s } }
func WithLimits(l security.Limits) Option       { return func(c *Config) { c.Limits = l } }
func WithLogger(l observability.Logger) Option  { return func(c *Config) { c.Logger = l } }

// DocumentParser builds a raw.Document from file bytes.
type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.NewLenientStrategy()
	}
	if cfg.Limits == (security.Limits{}) {
		cfg.Limits = security.DefaultLimits()
	}
	cfg.Logger = observability.OrNop(cfg.Logger)
	return &DocumentParser{cfg: cfg}
}

// Parse is a convenience wrapper around NewDocumentParser.
func Parse(ctx context.Context, data []byte, opts ...Option) (*raw.Document, error) {
	var cfg Config
	for _, o := range opts {
		o(&cfg)
	}
	return NewDocumentParser(cfg).Parse(ctx, data)
}

func (p *DocumentParser) Parse(ctx context.Context, data []byte) (*raw.Document, error) {
	version, err := headerVersion(data)
	if err != nil {
		return nil, fatal("header", err)
	}
	table, err := xref.Resolve(ctx, data, p.cfg.Limits)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if p.cfg.Recovery.OnError(ctx, err, recovery.Location{Component: "xref"}) != recovery.ActionFix {
			return nil, fatal("cross-reference", err)
		}
		p.cfg.Logger.Warn("rebuilding cross-reference table", observability.Error("cause", err))
		if table, err = xref.Repair(data); err != nil {
			return nil, fatal("cross-reference repair", err)
		}
	}
	if _, enc := table.Trailer.Get("Encrypt"); enc {
		return nil, fatal("encryption", ErrEncrypted)
	}

	l := newLoader(data, table, p.cfg)
	doc, err := l.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	doc.Version = version

	if _, err := doc.Catalog(); err != nil && !table.Repaired {
		// The table may be stale; a repaired table might still find the catalog.
		if p.cfg.Recovery.OnError(ctx, err, recovery.Location{Component: "xref"}) == recovery.ActionFix {
			if repaired, rerr := xref.Repair(data); rerr == nil {
				doc, err = newLoader(data, repaired, p.cfg).loadAll(ctx)
				if err != nil {
					return nil, err
				}
				doc.Version = version
			}
		}
	}
	cat, err := doc.Catalog()
	if err != nil {
		return nil, fatal("catalog", err)
	}
	if v := cat.Name("Version"); v > doc.Version {
		doc.Version = v
	}
	if _, err := doc.Pages(); err != nil {
		return nil, fatal("page tree", err)
	}
	return doc, nil
}

func headerVersion(data []byte) (string, error) {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	i := bytes.Index(head, []byte("%PDF-"))
	if i < 0 {
		return "", ErrNotPDF
	}
	rest := head[i+5:]
	end := 0
	for end < len(rest) && end < 4 && (rest[end] == '.' || (rest[end] >= '0' && rest[end] <= '9')) {
		end++
	}
	v := strings.TrimSpace(string(rest[:end]))
	if v == "" {
		v = "1.4"
	}
	return v, nil
}

type loader struct {
	data     []byte
	table    *xref.Table
	cfg      Config
	pipeline *filters.Pipeline
	doc      *raw.Document
	loading  map[int]bool
}

func newLoader(data []byte, table *xref.Table, cfg Config) *loader {
	return &loader{
		data:     data,
		table:    table,
		cfg:      cfg,
		pipeline: filters.NewPipeline(cfg.Limits),
		doc:      &raw.Document{Objects: make(map[raw.ObjectRef]raw.Object), Trailer: table.Trailer},
		loading:  make(map[int]bool),
	}
}

func (l *loader) loadAll(ctx context.Context) (*raw.Document, error) {
	nums := l.table.Objects()
	if max := l.cfg.Limits.MaxObjects; max > 0 && len(nums) > max {
		return nil, fatal("object count", security.Exceeded("objects", int64(max)))
	}
	var streams []int
	for _, num := range nums {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, _ := l.table.Lookup(num)
		switch e.Type {
		case xref.EntryInUse:
			if _, err := l.load(ctx, num); err != nil {
				if act := l.cfg.Recovery.OnError(ctx, err, recovery.Location{Component: "object", ObjectNum: num, ByteOffset: e.Offset}); act == recovery.ActionFail {
					return nil, fatal(fmt.Sprintf("object %d", num), err)
				}
				l.cfg.Logger.Warn("skipping unreadable object", observability.Int("object", num), observability.Error("error", err))
			}
		case xref.EntryCompressed:
			streams = append(streams, e.Stream)
		}
	}
	// Repaired tables do not list compressed objects; expand every object
	// stream found among the loaded objects too.
	if l.table.Repaired {
		for ref, obj := range l.doc.Objects {
			if s, ok := obj.(*raw.StreamObj); ok && s.Dict.Name("Type") == "ObjStm" {
				streams = append(streams, ref.Num)
			}
		}
	}
	slices.Sort(streams)
	streams = slices.Compact(streams)
	for _, sn := range streams {
		if err := l.expandObjectStream(ctx, sn); err != nil {
			if act := l.cfg.Recovery.OnError(ctx, err, recovery.Location{Component: "stream", ObjectNum: sn}); act == recovery.ActionFail {
				return nil, fatal(fmt.Sprintf("object stream %d", sn), err)
			}
			l.cfg.Logger.Warn("skipping unreadable object stream", observability.Int("object", sn), observability.Error("error", err))
		}
	}
	return l.doc, nil
}

// load reads the in-use object num, caching the result.
func (l *loader) load(ctx context.Context, num int) (raw.Object, error) {
	e, ok := l.table.Lookup(num)
	if !ok || e.Type != xref.EntryInUse {
		return nil, fmt.Errorf("object %d not in use", num)
	}
	ref := raw.ObjectRef{Num: num, Gen: e.Gen}
	if o, ok := l.doc.Objects[ref]; ok {
		return o, nil
	}
	if l.loading[num] {
		return nil, fmt.Errorf("object %d: recursive /Length", num)
	}
	l.loading[num] = true
	defer delete(l.loading, num)

	s := scanner.New(l.data, scanner.Config{MaxStringLength: l.cfg.Limits.MaxStringLength})
	if err := s.Seek(e.Offset); err != nil {
		return nil, err
	}
	r := scanner.NewObjectReader(s)
	if l.cfg.Limits.MaxNesting > 0 {
		r.MaxDepth = l.cfg.Limits.MaxNesting
	}
	numTok, _ := r.Token()
	genTok, _ := r.Token()
	kw, err := r.Token()
	if err != nil || numTok.Type != scanner.TokenNumber || genTok.Type != scanner.TokenNumber || !kw.IsKeyword("obj") {
		return nil, fmt.Errorf("object %d: no header at offset %d", num, e.Offset)
	}
	if int(numTok.Int) != num {
		return nil, fmt.Errorf("object %d: header names object %d", num, numTok.Int)
	}
	obj, err := r.ReadObject()
	if err != nil {
		return nil, fmt.Errorf("object %d: %w", num, err)
	}
	if dict, ok := obj.(*raw.DictObj); ok {
		next, err := r.Token()
		if err == nil && next.IsKeyword("stream") && r.Pending() == 0 {
			length := l.streamLength(ctx, dict)
			body, err := r.Scanner().ReadStream(length)
			if err != nil {
				return nil, fmt.Errorf("object %d: %w", num, err)
			}
			data := make([]byte, len(body))
			copy(data, body)
			dict.Set("Length", raw.Int(int64(len(data))))
			obj = raw.NewStream(dict, data)
		}
	}
	l.doc.Objects[ref] = obj
	return obj, nil
}

func (l *loader) streamLength(ctx context.Context, dict *raw.DictObj) int {
	o, ok := dict.Get("Length")
	if !ok {
		return -1
	}
	if ref, isRef := o.(raw.RefObj); isRef {
		target, err := l.load(ctx, ref.R.Num)
		if err != nil {
			return -1
		}
		o = target
	}
	if n, ok := o.(raw.NumberObj); ok && n.Int() >= 0 {
		return int(n.Int())
	}
	return -1
}

func (l *loader) expandObjectStream(ctx context.Context, num int) error {
	obj, err := l.load(ctx, num)
	if err != nil {
		return err
	}
	stream, ok := obj.(*raw.StreamObj)
	if !ok || stream.Dict.Name("Type") != "ObjStm" {
		return fmt.Errorf("object %d is not an object stream", num)
	}
	data, err := DecodeStream(ctx, l.doc, stream, l.pipeline)
	if err != nil {
		return err
	}
	n, _ := l.doc.IntOf(l.doc.Get(stream.Dict, "N"))
	first, _ := l.doc.IntOf(l.doc.Get(stream.Dict, "First"))
	if first < 0 || first > len(data) {
		return fmt.Errorf("object stream %d: bad /First", num)
	}
	hs := scanner.New(data[:first], scanner.Config{})
	type slot struct{ num, off int }
	slots := make([]slot, 0, n)
	for i := 0; i < n; i++ {
		a, err1 := hs.Next()
		b, err2 := hs.Next()
		if err1 != nil || err2 != nil || a.Type != scanner.TokenNumber || b.Type != scanner.TokenNumber {
			break
		}
		slots = append(slots, slot{int(a.Int), int(b.Int)})
	}
	for _, sl := range slots {
		ref := raw.ObjectRef{Num: sl.num}
		if _, exists := l.doc.Objects[ref]; exists {
			continue
		}
		// Only objects the table assigns to this stream (or any, when repaired).
		if e, ok := l.table.Lookup(sl.num); ok && !l.table.Repaired && (e.Type != xref.EntryCompressed || e.Stream != num) {
			continue
		}
		s := scanner.New(data, scanner.Config{})
		if err := s.Seek(int64(first + sl.off)); err != nil {
			continue
		}
		o, err := scanner.NewObjectReader(s).ReadObject()
		if err != nil {
			l.cfg.Logger.Debug("unreadable compressed object", observability.Int("object", sl.num), observability.Error("error", err))
			continue
		}
		l.doc.Objects[ref] = o
	}
	return nil
}
