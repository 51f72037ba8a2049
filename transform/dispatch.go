package transform

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/robert-malhotra/go-vrbag/grid"
)

// Dispatch fans the blocks out over a bounded pool of goroutines running
// the worker. A block failure is recorded in the report and never stops
// the batch; only context cancellation aborts early. With workers <= 0 the
// pool size defaults to the core count; a worker advertising a
// ConcurrencyLimit always caps the pool at its limit.
func Dispatch(ctx context.Context, w Worker, blocks []grid.Subgrid, workers int, log *slog.Logger) (*BatchReport, error) {
	if log == nil {
		log = slog.Default()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if lim, ok := w.(Limiter); ok {
		if n := lim.ConcurrencyLimit(); n > 0 && workers > n {
			workers = n
		}
	}

	var (
		mu     sync.Mutex
		report BatchReport
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, sg := range blocks {
		sg := sg
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := w.Process(ctx, sg)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Error("block failed", "i", sg.I, "j", sg.J, "start", sg.Start, "err", err)
				report.Failures = append(report.Failures, Failure{I: sg.I, J: sg.J, Start: sg.Start, Err: err})
				return nil
			}
			report.Results = append(report.Results, res)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Info("batch dispatched",
		"blocks", len(blocks),
		"converted", len(report.Results),
		"failed", len(report.Failures))
	return &report, nil
}
