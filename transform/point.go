package transform

import (
	"context"
	"fmt"
)

// PointTransformer converts coordinate triplets between two reference
// frames. The three slices must have equal length; implementations return
// new slices and leave the inputs untouched.
type PointTransformer interface {
	Transform(ctx context.Context, x, y, z []float64) (tx, ty, tz []float64, err error)
}

// Provider resolves a Spec to a concrete point operation. Resolution
// happens once per batch, before any worker runs, so a missing operation
// fails the whole batch up front rather than once per block.
type Provider interface {
	Resolve(ctx context.Context, spec Spec) (PointTransformer, error)
}

// Identity passes every point through unchanged.
type Identity struct{}

func (Identity) Transform(_ context.Context, x, y, z []float64) ([]float64, []float64, []float64, error) {
	tx := make([]float64, len(x))
	ty := make([]float64, len(y))
	tz := make([]float64, len(z))
	copy(tx, x)
	copy(ty, y)
	copy(tz, z)
	return tx, ty, tz, nil
}

// Chain applies transformers in order, feeding each stage's output to the
// next.
type Chain []PointTransformer

func (c Chain) Transform(ctx context.Context, x, y, z []float64) ([]float64, []float64, []float64, error) {
	tx, ty, tz := x, y, z
	for i, pt := range c {
		var err error
		tx, ty, tz, err = pt.Transform(ctx, tx, ty, tz)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("chain stage %d: %w", i, err)
		}
	}
	return tx, ty, tz, nil
}

// Registry is a Provider backed by a table of single-hop operations keyed
// by frame pair. A multi-frame spec resolves to the chain of its hops.
type Registry struct {
	ops map[[2]string]PointTransformer
}

func NewRegistry() *Registry {
	return &Registry{ops: make(map[[2]string]PointTransformer)}
}

// Register installs the operation converting from one frame to another.
func (r *Registry) Register(from, to string, pt PointTransformer) {
	r.ops[[2]string{from, to}] = pt
}

// Resolve walks the spec's frame sequence and chains the registered hop
// for each adjacent pair. An identity spec resolves without any lookup;
// a missing hop returns ErrNoOperation.
func (r *Registry) Resolve(_ context.Context, spec Spec) (PointTransformer, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.IsIdentity() {
		return Identity{}, nil
	}

	frames := spec.Frames()
	chain := make(Chain, 0, len(frames)-1)
	for i := 0; i+1 < len(frames); i++ {
		pt, ok := r.ops[[2]string{frames[i], frames[i+1]}]
		if !ok {
			return nil, fmt.Errorf("%w: %s -> %s", ErrNoOperation, frames[i], frames[i+1])
		}
		chain = append(chain, pt)
	}
	if len(chain) == 1 {
		return chain[0], nil
	}
	return chain, nil
}

// ApplyPoints runs the transformer over the triplets and restores the
// original x, y, z wherever the input z carries the no-data sentinel.
// A sentinel marks an unpopulated cell, so none of its outputs may be
// reinterpreted as real data.
func ApplyPoints(ctx context.Context, pt PointTransformer, x, y, z []float64, nodata float64) ([]float64, []float64, []float64, error) {
	if len(x) != len(y) || len(y) != len(z) {
		return nil, nil, nil, fmt.Errorf("transform: mismatched inputs (%d, %d, %d)", len(x), len(y), len(z))
	}
	tx, ty, tz, err := pt.Transform(ctx, x, y, z)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(tx) != len(x) || len(ty) != len(y) || len(tz) != len(z) {
		return nil, nil, nil, fmt.Errorf("transform: output length mismatch (%d points in, %d out)", len(x), len(tx))
	}
	for i, v := range z {
		if v == nodata {
			tx[i] = x[i]
			ty[i] = y[i]
			tz[i] = z[i]
		}
	}
	return tx, ty, tz, nil
}
