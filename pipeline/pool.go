package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wudi/pdfremedy/config"
	"github.com/wudi/pdfremedy/extractor"
	"github.com/wudi/pdfremedy/observability"
	"github.com/wudi/pdfremedy/structure"
)

// Pool runs independent documents concurrently on a bounded number of
// workers. Runs share only the Engine, which holds no run state.
type Pool struct {
	Engine  *Engine
	Workers int
}

func NewPool(e *Engine, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{Engine: e, Workers: workers}
}

// RunAll runs every input and returns the results in input order. A failed
// run does not stop the others; its Result carries Err.
func (p *Pool) RunAll(ctx context.Context, inputs []Input) []Result {
	results := make([]Result, len(inputs))
	start := time.Now()
	var g errgroup.Group
	g.SetLimit(p.Workers)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			res, err := p.Engine.Run(ctx, in)
			if res == nil {
				res = &Result{Name: in.Name, Status: StatusFailed, Err: err}
			}
			results[i] = *res
			return nil
		})
	}
	_ = g.Wait()

	counts := map[Status]int{}
	for _, r := range results {
		counts[r.Status]++
	}
	p.Engine.log.Info("batch finished",
		observability.Int("documents", len(inputs)),
		observability.Int("accepted", counts[StatusAccepted]),
		observability.Int("rejected", counts[StatusRejected]),
		observability.Int("cancelled", counts[StatusCancelled]),
		observability.Int("failed", counts[StatusFailed]),
		observability.Duration("elapsed", time.Since(start)),
	)
	return results
}

// OptionsFromConfig maps the engine and extract sections of cfg onto
// engine options. cfg must have passed Validate.
func OptionsFromConfig(cfg *config.Config, log observability.Logger) Options {
	policy, _ := structure.ParseHeadingPolicy(cfg.Engine.HeadingPolicy)
	xopts := extractor.DefaultOptions()
	xopts.TableMinColumns = cfg.Extract.TableMinColumns
	xopts.TableMinRows = cfg.Extract.TableMinRows
	xopts.HeadingSizeRatio = cfg.Extract.HeadingSizeRatio
	return Options{
		DefaultLanguage:     cfg.Engine.DefaultLanguage,
		DefaultTitle:        cfg.Engine.DefaultTitle,
		HeadingPolicy:       policy,
		PageWorkers:         cfg.Engine.PageWorkers,
		BaseBudget:          cfg.Engine.BaseBudget,
		PerPageBudget:       cfg.Engine.PerPageBudget,
		Compress:            cfg.Engine.Compress,
		MaxCentroidDistance: cfg.Engine.MaxCentroidDistance,
		PDFUAPart:           cfg.Engine.PDFUAPart,
		Extract:             xopts,
		CrossCheck:          true,
		Logger:              log,
	}
}
