package vrbag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robert-malhotra/go-vrbag/transform"
)

// ErrTooManyFailures aborts reassembly when the batch lost more blocks
// than the caller tolerates.
var ErrTooManyFailures = errors.New("vrbag: too many failed blocks")

// ReassembleOptions tune how a batch is folded back into the file.
type ReassembleOptions struct {
	// MaxFailureRatio is the largest tolerated fraction of failed blocks,
	// inclusive. 0 demands a clean batch; 1 accepts any outcome.
	MaxFailureRatio float64

	// TargetFrame, when set, replaces the file's vertical CRS attribute.
	TargetFrame string

	Log *slog.Logger
}

// Reassemble folds a batch's converted depth bands back into the file.
//
// Each successful block overwrites its own slice of the refinement array's
// depth band; uncertainties are never touched. Failed blocks keep their
// pre-batch values, so the output stays structurally complete. The coarse
// elevation grid is converted with the same point operation, derived
// statistics are recomputed, and the new image replaces the file by atomic
// rename.
func Reassemble(ctx context.Context, f *File, report *transform.BatchReport, pt transform.PointTransformer, opts ReassembleOptions) error {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	if ratio := report.FailureRatio(); len(report.Failures) > 0 && ratio > opts.MaxFailureRatio {
		return fmt.Errorf("%w: %d of %d (ratio %.3f, tolerated %.3f)",
			ErrTooManyFailures, len(report.Failures),
			len(report.Results)+len(report.Failures), ratio, opts.MaxFailureRatio)
	}

	c, err := f.Content()
	if err != nil {
		return fmt.Errorf("reading file for reassembly: %w", err)
	}

	for _, res := range report.Results {
		end := int(res.Start) + len(res.Depths)
		if end > len(c.Refinements) {
			return fmt.Errorf("block (%d,%d) writes past refinement array: [%d,%d) of %d",
				res.I, res.J, res.Start, end, len(c.Refinements))
		}
		for i, d := range res.Depths {
			c.Refinements[int(res.Start)+i].Depth = d
		}
	}
	for _, fail := range report.Failures {
		log.Warn("block kept pre-batch values", "i", fail.I, "j", fail.J, "start", fail.Start, "err", fail.Err)
	}

	if err := convertElevation(ctx, c, pt); err != nil {
		return fmt.Errorf("converting elevation grid: %w", err)
	}

	if opts.TargetFrame != "" {
		c.VerticalCRS = opts.TargetFrame
	}

	if err := f.Replace(c); err != nil {
		return fmt.Errorf("replacing file: %w", err)
	}
	log.Info("file reassembled",
		"path", f.path,
		"blocks", len(report.Results),
		"kept", len(report.Failures),
		"frame", c.VerticalCRS)
	return nil
}

// convertElevation runs the point operation over every coarse grid node.
// Unlike refinement blocks the base grid has no failure isolation; an
// error here fails the whole reassembly.
func convertElevation(ctx context.Context, c *Content, pt transform.PointTransformer) error {
	n := c.Rows * c.Cols
	x := make([]float64, n)
	y := make([]float64, n)
	z := make([]float64, n)
	for i := 0; i < c.Rows; i++ {
		for j := 0; j < c.Cols; j++ {
			k := i*c.Cols + j
			x[k], y[k] = c.GeoTransform.XY(i, j, 0, 0)
			z[k] = float64(c.Elevation[k])
		}
	}

	_, _, tz, err := transform.ApplyPoints(ctx, pt, x, y, z, float64(NoData))
	if err != nil {
		return err
	}
	for k, v := range tz {
		c.Elevation[k] = float32(v)
	}
	return nil
}
