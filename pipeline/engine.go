// Package pipeline runs the repair stages over one document and drives the
// run state machine. Stages run strictly in sequence; the context is
// checked between stages only.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wudi/pdfremedy/compliance"
	"github.com/wudi/pdfremedy/compliance/pdfua"
	"github.com/wudi/pdfremedy/crosscheck"
	"github.com/wudi/pdfremedy/directive"
	"github.com/wudi/pdfremedy/extractor"
	"github.com/wudi/pdfremedy/ir/raw"
	"github.com/wudi/pdfremedy/metadata"
	"github.com/wudi/pdfremedy/observability"
	"github.com/wudi/pdfremedy/order"
	"github.com/wudi/pdfremedy/parser"
	"github.com/wudi/pdfremedy/rebuild"
	"github.com/wudi/pdfremedy/security"
	"github.com/wudi/pdfremedy/structure"
	"github.com/wudi/pdfremedy/writer"
)

// Status is the outcome reported to callers.
type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Input is one document to repair.
type Input struct {
	// Name is the source file name, used to default the title.
	Name       string
	Data       []byte
	Directives []directive.Directive
}

// RepairLog explains a run: what was applied, defaulted and dropped.
type RepairLog struct {
	Applied    []directive.Outcome `json:"applied"`
	Unresolved []directive.Outcome `json:"unresolved"`
	// Defaulted holds metadata values that fell back to built-in defaults
	// or the file name; Supplied holds directive and original values.
	Defaulted        []metadata.Decision `json:"defaulted"`
	Supplied         []metadata.Decision `json:"supplied"`
	Pruned           []string            `json:"pruned"`
	CoverageGaps     int                 `json:"coverageGaps"`
	OrphanParagraphs int                 `json:"orphanParagraphs"`
	HeadingSkips     []string            `json:"headingSkips"`
	HeadingFixes     []string            `json:"headingFixes"`
	// TabOrder counts annotations placed in structure (tab) order.
	TabOrder int `json:"tabOrder"`
	// CrossCheck holds findings of the independent reader.
	CrossCheck []string `json:"crossCheck,omitempty"`
}

// Result is the outcome of one run. Output holds the repaired bytes, or
// the original bytes when the run was cancelled.
type Result struct {
	RunID   string                 `json:"runId"`
	Name    string                 `json:"name,omitempty"`
	State   State                  `json:"state"`
	Status  Status                 `json:"status"`
	History []State                `json:"history"`
	Output  []byte                 `json:"-"`
	Report  *compliance.Comparison `json:"report,omitempty"`
	Log     RepairLog              `json:"log"`
	Elapsed time.Duration          `json:"elapsed"`
	// Err is set for failed runs.
	Err error `json:"-"`
}

// Options configures an Engine. Zero values take the documented defaults.
type Options struct {
	DefaultLanguage     string
	DefaultTitle        string
	HeadingPolicy       structure.HeadingPolicy
	PageWorkers         int
	BaseBudget          time.Duration
	PerPageBudget       time.Duration
	Compress            bool
	MaxCentroidDistance float64
	PDFUAPart           int
	// Extract carries the block heuristic thresholds; its worker, name,
	// limit and logger fields are set per run.
	Extract extractor.Options
	Limits  security.Limits
	// CrossCheck re-reads the repaired bytes with an independent reader.
	CrossCheck bool
	Validator  compliance.Validator
	Logger     observability.Logger
	Tracer     observability.Tracer
}

// Engine runs repairs. It holds no per-run state and may be shared by
// concurrent runs.
type Engine struct {
	opts Options
	log  observability.Logger
}

func New(opts Options) *Engine {
	if opts.PageWorkers <= 0 {
		opts.PageWorkers = 1
	}
	if opts.BaseBudget <= 0 {
		opts.BaseBudget = 30 * time.Second
	}
	if opts.PerPageBudget < 0 {
		opts.PerPageBudget = 0
	}
	if opts.Limits == (security.Limits{}) {
		opts.Limits = security.DefaultLimits()
	}
	if opts.HeadingPolicy == "" {
		opts.HeadingPolicy = structure.HeadingAutoInsert
	}
	opts.Logger = observability.OrNop(opts.Logger)
	if opts.Tracer == nil {
		opts.Tracer = observability.LogTracer{Logger: opts.Logger.Named("span")}
	}
	if opts.Validator == nil {
		opts.Validator = pdfua.New(pdfua.Options{Limits: opts.Limits, Logger: opts.Logger})
	}
	return &Engine{opts: opts, log: opts.Logger.Named("pipeline")}
}

// Budget is the wall-clock allowance for extraction and rebuilding.
func (e *Engine) Budget(pages int) time.Duration {
	return e.opts.BaseBudget + time.Duration(pages)*e.opts.PerPageBudget
}

// run carries the state of one Run call.
type run struct {
	e   *Engine
	in  Input
	m   *Machine
	log observability.Logger
	res *Result
	// cause is the context error that cancelled the run.
	cause error
}

// Run repairs one document. Cancellation, including an exhausted budget,
// returns the original bytes with StatusCancelled and no error. A
// document that cannot be parsed returns StatusFailed and the error. A
// run never retries.
func (e *Engine) Run(ctx context.Context, in Input) (*Result, error) {
	r := &run{
		e:  e,
		in: in,
		m:  NewMachine(),
		res: &Result{
			RunID: uuid.NewString(),
			Name:  in.Name,
		},
	}
	r.log = e.log.With(observability.String("run_id", r.res.RunID), observability.String("source", in.Name))
	start := time.Now()
	err := r.execute(ctx)
	r.res.Elapsed = time.Since(start)
	r.res.State = r.m.State()
	r.res.History = r.m.History()

	switch {
	case err == nil:
	case errors.Is(err, errCancelled):
		r.res.Status = StatusCancelled
		r.res.Output = in.Data
		r.res.Report = nil
		r.log.Warn("run cancelled", observability.String("state", string(r.res.State)), observability.Error("cause", r.cause))
		return r.res, nil
	default:
		r.res.Status = StatusFailed
		r.res.Output = nil
		r.res.Err = err
		r.log.Error("run failed", observability.Error("error", err))
		return r.res, err
	}
	r.log.Info("run finished",
		observability.String("status", string(r.res.Status)),
		observability.Int("passed", r.res.Report.AfterPassed),
		observability.Int("checks", r.res.Report.Total),
		observability.Duration("elapsed", r.res.Elapsed),
	)
	return r.res, nil
}

var errCancelled = errors.New("pipeline: run cancelled")

// cancelled moves the machine to Cancelled and records cause.
func (r *run) cancelled(cause error) error {
	_ = r.m.Advance(Cancelled)
	r.cause = cause
	return errCancelled
}

func (r *run) failed(err error) error {
	_ = r.m.Advance(Failed)
	return err
}

// checkpoint ends the run when ctx is done.
func (r *run) checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return r.cancelled(err)
	}
	return nil
}

// stageErr routes a stage error to the cancellation or failure path.
func (r *run) stageErr(ctx context.Context, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return r.cancelled(err)
	}
	return r.failed(err)
}

func (r *run) advance(next State) error {
	if err := r.m.Advance(next); err != nil {
		return r.failed(err)
	}
	r.log.Debug("state", observability.String("state", string(next)))
	return nil
}

func (r *run) execute(ctx context.Context) error {
	e := r.e
	opts := e.opts
	if err := r.checkpoint(ctx); err != nil {
		return err
	}

	doc, err := parser.Parse(ctx, r.in.Data, parser.WithLimits(opts.Limits), parser.WithLogger(opts.Logger))
	if err != nil {
		return r.stageErr(ctx, err)
	}
	pageCount := 0
	if pages, err := doc.Pages(); err == nil {
		pageCount = len(pages)
	}
	budget := e.Budget(pageCount)
	bctx, cancelBudget := context.WithTimeout(ctx, budget)
	defer cancelBudget()
	r.log.Info("run started", observability.Int("pages", pageCount), observability.Duration("budget", budget))

	// Extract
	sctx, span := opts.Tracer.StartSpan(bctx, "extract")
	xopts := opts.Extract
	xopts.PageWorkers = opts.PageWorkers
	xopts.SourceName = r.in.Name
	xopts.Limits = opts.Limits
	xopts.Logger = r.log
	sem, err := extractor.Extract(sctx, doc, xopts)
	span.SetTag("pages", pageCount)
	span.SetError(err)
	span.Finish()
	if err != nil {
		return r.stageErr(bctx, err)
	}
	if err := r.advance(Extracted); err != nil {
		return err
	}
	if err := r.checkpoint(bctx); err != nil {
		return err
	}

	// Resolve directives
	res := directive.Resolve(sem, r.in.Directives, directive.ResolveOptions{
		MaxCentroidDistance: opts.MaxCentroidDistance,
		Logger:              r.log,
	})
	r.res.Log.Applied = res.Applied
	r.res.Log.Unresolved = res.Unresolved
	if err := r.advance(DirectivesResolved); err != nil {
		return err
	}
	if err := r.checkpoint(bctx); err != nil {
		return err
	}

	// Rebuild content
	sctx, span = opts.Tracer.StartSpan(bctx, "rebuild")
	out, err := rebuild.Rebuild(sctx, sem, rebuild.Options{PageWorkers: opts.PageWorkers, Logger: r.log})
	span.SetError(err)
	span.Finish()
	if err != nil {
		return r.stageErr(bctx, err)
	}
	r.res.Log.CoverageGaps = out.CoverageGaps()
	if r.res.Log.CoverageGaps > 0 {
		r.log.Info("wrapped uncovered drawing operations", observability.Int("coverage_gaps", r.res.Log.CoverageGaps))
	}
	if err := r.advance(ContentRebuilt); err != nil {
		return err
	}
	if err := r.checkpoint(bctx); err != nil {
		return err
	}
	cancelBudget()

	repaired := doc.Clone()
	pageRefs, err := rebuild.Install(repaired, out)
	if err != nil {
		return r.failed(err)
	}

	// Build structure
	tree, blog := structure.Build(sem, out, structure.Options{HeadingPolicy: opts.HeadingPolicy, Logger: r.log})
	r.res.Log.Pruned = blog.Pruned
	r.res.Log.HeadingSkips = blog.HeadingSkips
	r.res.Log.HeadingFixes = blog.HeadingFixes
	r.res.Log.OrphanParagraphs = blog.OrphanParagraphs
	if err := r.advance(StructureBuilt); err != nil {
		return err
	}
	if err := r.checkpoint(ctx); err != nil {
		return err
	}

	// Sort by the geometry of the installed content, the same geometry
	// the validator measures.
	geo, err := pdfua.ContentGeometry(ctx, repaired, opts.Limits)
	if err != nil {
		return r.stageErr(ctx, err)
	}
	order.Sort(tree, geo)
	tabs := order.TabOrder(tree)
	r.res.Log.TabOrder = len(tabs)
	if len(tabs) > 0 {
		r.log.Debug("annotation tab order", observability.Int("annotations", len(tabs)))
	}
	if err := writer.BuildStructTree(repaired, tree, pageRefs); err != nil {
		return r.failed(err)
	}
	if err := r.advance(OrderSorted); err != nil {
		return err
	}
	if err := r.checkpoint(ctx); err != nil {
		return err
	}

	// Metadata
	decisions, err := metadata.Apply(repaired, metadata.InputsOf(sem), metadata.Options{
		DefaultLanguage: opts.DefaultLanguage,
		DefaultTitle:    opts.DefaultTitle,
		PDFUAPart:       opts.PDFUAPart,
		Logger:          r.log,
	})
	if err != nil {
		return r.failed(err)
	}
	for _, d := range decisions {
		if d.Source == metadata.SourceDefault {
			r.res.Log.Defaulted = append(r.res.Log.Defaulted, d)
		} else {
			r.res.Log.Supplied = append(r.res.Log.Supplied, d)
		}
	}
	data, err := writer.Bytes(ctx, repaired, writer.Config{Compress: opts.Compress})
	if err != nil {
		return r.stageErr(ctx, err)
	}
	if err := r.advance(MetadataSet); err != nil {
		return err
	}
	if err := r.checkpoint(ctx); err != nil {
		return err
	}

	// Validate both versions. The validator has no budget and is not
	// interrupted once started.
	vctx := context.WithoutCancel(ctx)
	_, span = opts.Tracer.StartSpan(vctx, "validate")
	before, err := opts.Validator.Validate(vctx, r.in.Data)
	if err == nil {
		var after compliance.Report
		after, err = opts.Validator.Validate(vctx, data)
		if err == nil {
			cmp := compliance.Compare(before, after)
			r.res.Report = &cmp
		}
	}
	span.SetError(err)
	span.Finish()
	if err != nil {
		return r.failed(fmt.Errorf("pipeline: validate: %w", err))
	}
	if opts.CrossCheck {
		lang, _ := repairedLang(repaired)
		cc, err := crosscheck.Check(vctx, data, crosscheck.Expect{Pages: pageCount, Tagged: true, Lang: lang}, r.log)
		if err != nil {
			r.res.Log.CrossCheck = []string{err.Error()}
		} else {
			r.res.Log.CrossCheck = cc.Findings
		}
	}
	if err := r.advance(Validated); err != nil {
		return err
	}

	r.res.Output = data
	if r.res.Report.Accepted {
		r.res.Status = StatusAccepted
		return r.advance(Accepted)
	}
	r.res.Status = StatusRejected
	for _, f := range r.res.Report.Entries {
		if !f.After {
			r.log.Warn("check failed after repair", observability.String("check", f.ID), observability.Strings("reasons", f.AfterReasons))
		}
	}
	return r.advance(Rejected)
}

func repairedLang(doc *raw.Document) (string, bool) {
	cat, err := doc.Catalog()
	if err != nil {
		return "", false
	}
	b, ok := doc.StringOf(doc.Get(cat, "Lang"))
	if !ok {
		return "", false
	}
	return raw.DecodeText(b), true
}
