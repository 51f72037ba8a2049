package transform

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robert-malhotra/go-vrbag/grid"
	"github.com/robert-malhotra/go-vrbag/raster"
)

// Source hands workers the data they read. Implementations must be safe
// for concurrent use, or hand each worker its own instance.
type Source interface {
	GeoTransform() grid.GeoTransform
	HorizontalCRS() string
	// RefinementDepths returns the depth band of one refinement block in
	// storage order.
	RefinementDepths(sg grid.Subgrid) ([]float32, error)
}

// Worker converts one refinement block and returns its new depth band.
// A failed block reports an error without touching any other block.
type Worker interface {
	Process(ctx context.Context, sg grid.Subgrid) (Result, error)
}

// PointWorker converts a block by enumerating its points and running the
// resolved point operation over them directly.
type PointWorker struct {
	Source      Source
	Transformer PointTransformer
	NoData      float64
}

func (w *PointWorker) Process(ctx context.Context, sg grid.Subgrid) (Result, error) {
	depths, err := w.Source.RefinementDepths(sg)
	if err != nil {
		return Result{}, fmt.Errorf("block (%d,%d): read depths: %w", sg.I, sg.J, err)
	}
	if len(depths) != sg.Count() {
		return Result{}, fmt.Errorf("block (%d,%d): %d depths for %dx%d block", sg.I, sg.J, len(depths), sg.Width, sg.Height)
	}

	x, y := sg.Points(w.Source.GeoTransform())
	z := make([]float64, len(depths))
	for i, d := range depths {
		z[i] = float64(d)
	}

	_, _, tz, err := ApplyPoints(ctx, w.Transformer, x, y, z, w.NoData)
	if err != nil {
		return Result{}, fmt.Errorf("block (%d,%d): %w", sg.I, sg.J, err)
	}

	out := make([]float32, len(tz))
	for i, v := range tz {
		out[i] = float32(v)
	}
	return Result{I: sg.I, J: sg.J, Start: sg.Start, Depths: out}, nil
}

// WarpOptions select which band a warp converts and whether the vertical
// shift is applied on top of any horizontal reprojection.
type WarpOptions struct {
	ApplyVertical bool
	Band          int
}

// Warper runs an external raster warp: it reads the named input raster
// from the store, converts the selected band between the spec's frames,
// and writes the result under the output name.
type Warper interface {
	Warp(ctx context.Context, store raster.Store, in, out string, spec Spec, opts WarpOptions) error
}

// Limiter is an optional Worker capability bounding how many blocks may
// run concurrently, for workers backed by tools that are not safe to
// invoke in parallel.
type Limiter interface {
	ConcurrencyLimit() int
}

// RasterWorker converts a block by materializing it as a scratch raster,
// handing it to a Warper, and reading the warped band back. Scratch files
// are removed as soon as the block is collected, success or failure.
type RasterWorker struct {
	Source Source
	Warper Warper
	Store  raster.Store
	Spec   Spec
	NoData float32

	// SerialWarp forces one warp at a time, for warp tools that cannot
	// run concurrently.
	SerialWarp bool

	Log *slog.Logger
}

// ConcurrencyLimit reports 1 when the warp tool demands serial use.
func (w *RasterWorker) ConcurrencyLimit() int {
	if w.SerialWarp {
		return 1
	}
	return 0
}

func (w *RasterWorker) logger() *slog.Logger {
	if w.Log != nil {
		return w.Log
	}
	return slog.Default()
}

func (w *RasterWorker) Process(ctx context.Context, sg grid.Subgrid) (Result, error) {
	depths, err := w.Source.RefinementDepths(sg)
	if err != nil {
		return Result{}, fmt.Errorf("block (%d,%d): read depths: %w", sg.I, sg.J, err)
	}

	in, err := raster.New(sg, w.Source.GeoTransform(), w.Source.HorizontalCRS(), w.NoData, depths)
	if err != nil {
		return Result{}, fmt.Errorf("block (%d,%d): %w", sg.I, sg.J, err)
	}
	encoded, err := in.Encode()
	if err != nil {
		return Result{}, fmt.Errorf("block (%d,%d): encode scratch: %w", sg.I, sg.J, err)
	}

	inName := fmt.Sprintf("block_%d_%d_in.ras", sg.I, sg.J)
	outName := fmt.Sprintf("block_%d_%d_out.ras", sg.I, sg.J)
	if err := w.Store.WriteFile(inName, encoded); err != nil {
		return Result{}, fmt.Errorf("block (%d,%d): write scratch: %w", sg.I, sg.J, err)
	}
	defer w.Store.Remove(inName)
	defer w.Store.Remove(outName)

	opts := WarpOptions{ApplyVertical: true, Band: 1}
	if err := w.Warper.Warp(ctx, w.Store, inName, outName, w.Spec, opts); err != nil {
		return Result{}, fmt.Errorf("block (%d,%d): warp: %w", sg.I, sg.J, err)
	}

	warped, err := w.Store.ReadFile(outName)
	if err != nil {
		return Result{}, fmt.Errorf("block (%d,%d): read warped: %w", sg.I, sg.J, err)
	}
	out, err := raster.Decode(warped)
	if err != nil {
		return Result{}, fmt.Errorf("block (%d,%d): decode warped: %w", sg.I, sg.J, err)
	}
	if len(out.Values) != sg.Count() {
		// The warper resampled. The block still flows through so the batch
		// keeps going; downstream consumers detect the drift by length.
		w.logger().Error("warped block size drifted",
			"i", sg.I, "j", sg.J,
			"want", sg.Count(), "got", len(out.Values))
		if len(out.Values) > sg.Count() {
			out.Values = out.Values[:sg.Count()]
		}
	}

	// Restore the sentinel wherever the source was unpopulated; a warp may
	// have smeared neighbors into those cells.
	for i := range out.Values {
		if depths[i] == w.NoData {
			out.Values[i] = w.NoData
		}
	}
	return Result{I: sg.I, J: sg.J, Start: sg.Start, Depths: out.Values}, nil
}
