// Package batch runs the pipeline over many documents with bounded concurrency.
package batch

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zombor/invoice-extract/internal/invoice"
)

// Extractor is the single-document pipeline
type Extractor interface {
	Run(ctx context.Context, path string) (*invoice.Result, error)
}

// Outcome is the result of one document. Exactly one of Result and Err is set.
type Outcome struct {
	Path     string
	Result   *invoice.Result
	Err      error
	Duration time.Duration
}

// Sink receives each attempted outcome as soon as it completes. Calls may come from
// several goroutines at once.
type Sink func(ctx context.Context, o Outcome)

// Runner fans documents out to a fixed number of workers
type Runner struct {
	extractor Extractor
	workers   int
	sink      Sink
	logger    *slog.Logger
}

// NewRunner creates a new Runner. workers below 1 uses the CPU count.
func NewRunner(extractor Extractor, workers int, sink Sink, logger *slog.Logger) *Runner {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		extractor: extractor,
		workers:   workers,
		sink:      sink,
		logger:    logger,
	}
}

// Run processes every path and returns the outcomes in input order. A failed
// document does not stop the others. Documents not started before ctx is
// cancelled report ctx's error.
func (r *Runner) Run(ctx context.Context, paths []string) []Outcome {
	outcomes := make([]Outcome, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			outcomes[i] = r.one(gctx, path)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (r *Runner) one(ctx context.Context, path string) Outcome {
	o := Outcome{Path: path}
	if err := ctx.Err(); err != nil {
		o.Err = err
		return o
	}

	start := time.Now()
	o.Result, o.Err = r.extractor.Run(ctx, path)
	o.Duration = time.Since(start)

	if o.Err != nil {
		r.logger.Error("extraction failed", "path", path, "kind", string(invoice.KindOf(o.Err)), "error", o.Err)
	}
	if r.sink != nil {
		r.sink(ctx, o)
	}
	return o
}

// Failed counts outcomes with an error
func Failed(outcomes []Outcome) int {
	var n int
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}
