package transform

import (
	"context"
	"fmt"

	"github.com/robert-malhotra/go-vrbag/raster"
)

// PointWarper is a Warper that applies a resolved point operation to every
// cell of the scratch raster in-process. It stands in wherever no external
// warp tool is wired, and keeps raster mode exercisable end to end.
type PointWarper struct {
	Transformer PointTransformer
}

func (w *PointWarper) Warp(ctx context.Context, store raster.Store, in, out string, _ Spec, opts WarpOptions) error {
	if opts.Band > 1 {
		return fmt.Errorf("scratch rasters carry one band, requested %d", opts.Band)
	}
	data, err := store.ReadFile(in)
	if err != nil {
		return fmt.Errorf("reading %s: %w", in, err)
	}
	g, err := raster.Decode(data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", in, err)
	}
	if !opts.ApplyVertical {
		// Horizontal-only warps leave the band values alone; the scratch
		// raster's georeferencing is consumed by the caller, not rewritten.
		return store.WriteFile(out, data)
	}

	n := g.Width * g.Height
	x := make([]float64, n)
	y := make([]float64, n)
	z := make([]float64, n)
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			k := row*g.Width + col
			x[k], y[k] = g.Transform.XY(row, col, 0, 0)
			z[k] = float64(g.Values[k])
		}
	}

	_, _, tz, err := ApplyPoints(ctx, w.Transformer, x, y, z, float64(g.NoData))
	if err != nil {
		return err
	}
	for k, v := range tz {
		g.Values[k] = float32(v)
	}

	encoded, err := g.Encode()
	if err != nil {
		return fmt.Errorf("encoding %s: %w", out, err)
	}
	return store.WriteFile(out, encoded)
}
