// Package vrbag reads, transforms, and rewrites variable-resolution
// bathymetric grid files: a coarse elevation grid, a per-cell refinement
// descriptor grid, and a flat refinement array the descriptors index into.
package vrbag

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/robert-malhotra/go-vrbag/grid"
)

const (
	// NoRefinement marks a coarse cell with no refinement block.
	NoRefinement uint32 = 0xFFFFFFFF

	// NoData is the sentinel for unpopulated depth and elevation cells.
	NoData float32 = 1.0e6

	descriptorSize = 24
	refinementSize = 8
)

// Descriptor is one cell of the refinement descriptor grid. A populated
// cell points at Width*Height consecutive records in the refinement array,
// starting at Start, laid out row-major at the cell's own resolution.
// SWCornerX/Y offset the block's first point from the cell's origin corner.
type Descriptor struct {
	Start         uint32
	Width, Height uint16
	ResX, ResY    float32
	SWCornerX     float32
	SWCornerY     float32
}

// Populated reports whether the cell carries a refinement block.
func (d Descriptor) Populated() bool {
	return d.Start != NoRefinement && d.Width > 0 && d.Height > 0
}

// Subgrid converts the descriptor at coarse cell (i, j) into its sub-grid.
func (d Descriptor) Subgrid(i, j int) grid.Subgrid {
	return grid.Subgrid{
		I: i, J: j,
		Start:   d.Start,
		Width:   int(d.Width),
		Height:  int(d.Height),
		ResX:    float64(d.ResX),
		ResY:    float64(d.ResY),
		CornerX: float64(d.SWCornerX),
		CornerY: float64(d.SWCornerY),
	}
}

func encodeDescriptors(descs []Descriptor) []byte {
	out := make([]byte, descriptorSize*len(descs))
	for i, d := range descs {
		b := out[descriptorSize*i:]
		binary.LittleEndian.PutUint32(b[0:], d.Start)
		binary.LittleEndian.PutUint16(b[4:], d.Width)
		binary.LittleEndian.PutUint16(b[6:], d.Height)
		binary.LittleEndian.PutUint32(b[8:], math.Float32bits(d.ResX))
		binary.LittleEndian.PutUint32(b[12:], math.Float32bits(d.ResY))
		binary.LittleEndian.PutUint32(b[16:], math.Float32bits(d.SWCornerX))
		binary.LittleEndian.PutUint32(b[20:], math.Float32bits(d.SWCornerY))
	}
	return out
}

func decodeDescriptors(data []byte) ([]Descriptor, error) {
	if len(data)%descriptorSize != 0 {
		return nil, fmt.Errorf("descriptor payload %d bytes is not a multiple of %d", len(data), descriptorSize)
	}
	descs := make([]Descriptor, len(data)/descriptorSize)
	for i := range descs {
		b := data[descriptorSize*i:]
		descs[i] = Descriptor{
			Start:     binary.LittleEndian.Uint32(b[0:]),
			Width:     binary.LittleEndian.Uint16(b[4:]),
			Height:    binary.LittleEndian.Uint16(b[6:]),
			ResX:      math.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
			ResY:      math.Float32frombits(binary.LittleEndian.Uint32(b[12:])),
			SWCornerX: math.Float32frombits(binary.LittleEndian.Uint32(b[16:])),
			SWCornerY: math.Float32frombits(binary.LittleEndian.Uint32(b[20:])),
		}
	}
	return descs, nil
}

// Refinement is one record of the flat refinement array.
type Refinement struct {
	Depth       float32
	Uncertainty float32
}

func encodeRefinements(refs []Refinement) []byte {
	out := make([]byte, refinementSize*len(refs))
	for i, r := range refs {
		b := out[refinementSize*i:]
		binary.LittleEndian.PutUint32(b[0:], math.Float32bits(r.Depth))
		binary.LittleEndian.PutUint32(b[4:], math.Float32bits(r.Uncertainty))
	}
	return out
}

func decodeRefinements(data []byte) ([]Refinement, error) {
	if len(data)%refinementSize != 0 {
		return nil, fmt.Errorf("refinement payload %d bytes is not a multiple of %d", len(data), refinementSize)
	}
	refs := make([]Refinement, len(data)/refinementSize)
	for i := range refs {
		b := data[refinementSize*i:]
		refs[i] = Refinement{
			Depth:       math.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
			Uncertainty: math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		}
	}
	return refs, nil
}
