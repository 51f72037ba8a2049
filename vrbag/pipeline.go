package vrbag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robert-malhotra/go-vrbag/raster"
	"github.com/robert-malhotra/go-vrbag/transform"
)

// Mode selects how refinement blocks are converted.
type Mode int

const (
	// PointMode runs the resolved point operation over each block's
	// points directly.
	PointMode Mode = iota
	// RasterMode materializes each block as a scratch raster and hands it
	// to an external warper.
	RasterMode
)

var ErrNoWarper = errors.New("vrbag: raster mode requires a warper")

// Pipeline converts a grid file between vertical reference frames end to
// end: open and validate, index the refinement blocks, resolve the
// operation, fan the blocks out over workers, and fold the results back
// into the file.
type Pipeline struct {
	Path     string
	Spec     transform.Spec
	Provider transform.Provider

	Mode    Mode
	Warper  transform.Warper // required in RasterMode
	Workers int
	Scratch raster.Store // RasterMode scratch; defaults to an in-memory store

	// SerialWarp marks the warper as unsafe to invoke concurrently; the
	// dispatcher then runs one warp at a time regardless of Workers.
	SerialWarp bool

	// MaxFailureRatio bounds the tolerated fraction of failed blocks.
	MaxFailureRatio float64

	Log *slog.Logger
}

// Run executes the pipeline and returns the batch report. An unresolvable
// spec fails here, before any block is touched; individual block failures
// are tolerated up to MaxFailureRatio and reported, not raised.
func (p *Pipeline) Run(ctx context.Context) (*transform.BatchReport, error) {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	if err := p.Spec.Validate(); err != nil {
		return nil, err
	}
	if p.Mode == RasterMode && p.Warper == nil {
		return nil, ErrNoWarper
	}

	pt, err := p.Provider.Resolve(ctx, p.Spec)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", p.Spec, err)
	}

	f, err := Open(p.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	blocks, err := f.Subgrids()
	if err != nil {
		return nil, err
	}
	refs, err := f.Refinements()
	if err != nil {
		return nil, err
	}
	if err := ValidateDisjoint(blocks, uint64(len(refs))); err != nil {
		return nil, err
	}
	log.Info("indexed refinement blocks", "path", p.Path, "blocks", len(blocks), "spec", p.Spec.String())

	var worker transform.Worker
	switch p.Mode {
	case PointMode:
		worker = &transform.PointWorker{Source: f, Transformer: pt, NoData: float64(NoData)}
	case RasterMode:
		store := p.Scratch
		if store == nil {
			store = raster.NewMemStore()
		}
		worker = &transform.RasterWorker{
			Source:     f,
			Warper:     p.Warper,
			Store:      store,
			Spec:       p.Spec,
			NoData:     NoData,
			SerialWarp: p.SerialWarp,
			Log:        log,
		}
	default:
		return nil, fmt.Errorf("vrbag: unknown mode %d", p.Mode)
	}

	report, err := transform.Dispatch(ctx, worker, blocks, p.Workers, log)
	if err != nil {
		return nil, err
	}

	err = Reassemble(ctx, f, report, pt, ReassembleOptions{
		MaxFailureRatio: p.MaxFailureRatio,
		TargetFrame:     p.Spec.To,
		Log:             log,
	})
	if err != nil {
		return report, err
	}
	return report, nil
}
