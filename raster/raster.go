// Package raster provides the single-band scratch raster that carries one
// refinement block through an external warp, and the stores that hold the
// scratch files for a batch.
package raster

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"

	"github.com/robert-malhotra/go-vrbag/grid"
)

// rasterMagic opens every encoded scratch raster.
var rasterMagic = [4]byte{'R', 'A', 'S', '1'}

var (
	ErrNotRaster = errors.New("raster: not a scratch raster")
	ErrBadShape  = errors.New("raster: payload length does not match shape")
)

// Grid is a single-band float32 raster with its georeferencing. The payload
// is row-major in storage order: Values[row*Width+col].
type Grid struct {
	Width     int
	Height    int
	Transform grid.GeoTransform
	CRS       string
	NoData    float32
	Values    []float32
}

// New builds a raster for one sub-grid block, anchored by the block's own
// geotransform within the parent grid.
func New(sg grid.Subgrid, parent grid.GeoTransform, crs string, nodata float32, values []float32) (*Grid, error) {
	if len(values) != sg.Count() {
		return nil, fmt.Errorf("%w: %d values for %dx%d block", ErrBadShape, len(values), sg.Width, sg.Height)
	}
	return &Grid{
		Width:     sg.Width,
		Height:    sg.Height,
		Transform: sg.GeoTransform(parent),
		CRS:       crs,
		NoData:    nodata,
		Values:    values,
	}, nil
}

// Encode serializes the raster. The payload is deflate-compressed; the
// header stays uncompressed so shape and georeferencing can be read without
// inflating the band.
func (g *Grid) Encode() ([]byte, error) {
	if len(g.Values) != g.Width*g.Height {
		return nil, fmt.Errorf("%w: %d values for %dx%d", ErrBadShape, len(g.Values), g.Width, g.Height)
	}

	var buf bytes.Buffer
	buf.Write(rasterMagic[:])
	hdr := make([]byte, 12)
	binary.LittleEndian.PutUint32(hdr[0:], uint32(g.Width))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(g.Height))
	binary.LittleEndian.PutUint32(hdr[8:], math.Float32bits(g.NoData))
	buf.Write(hdr)
	for _, v := range g.Transform.Slice() {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
		buf.Write(b[:])
	}
	var crsLen [2]byte
	binary.LittleEndian.PutUint16(crsLen[:], uint16(len(g.CRS)))
	buf.Write(crsLen[:])
	buf.WriteString(g.CRS)

	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, 4*len(g.Values))
	for i, v := range g.Values {
		binary.LittleEndian.PutUint32(payload[4*i:], math.Float32bits(v))
	}
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses an encoded scratch raster.
func Decode(data []byte) (*Grid, error) {
	if len(data) < 4 || !bytes.Equal(data[:4], rasterMagic[:]) {
		return nil, ErrNotRaster
	}
	rest := data[4:]
	if len(rest) < 12+48+2 {
		return nil, fmt.Errorf("%w: truncated header", ErrNotRaster)
	}

	g := &Grid{
		Width:  int(binary.LittleEndian.Uint32(rest[0:])),
		Height: int(binary.LittleEndian.Uint32(rest[4:])),
		NoData: math.Float32frombits(binary.LittleEndian.Uint32(rest[8:])),
	}
	rest = rest[12:]

	var gt [6]float64
	for i := range gt {
		gt[i] = math.Float64frombits(binary.LittleEndian.Uint64(rest[8*i:]))
	}
	g.Transform = grid.FromSlice(gt)
	rest = rest[48:]

	crsLen := int(binary.LittleEndian.Uint16(rest))
	rest = rest[2:]
	if len(rest) < crsLen {
		return nil, fmt.Errorf("%w: truncated CRS", ErrNotRaster)
	}
	g.CRS = string(rest[:crsLen])
	rest = rest[crsLen:]

	zr, err := zlib.NewReader(bytes.NewReader(rest))
	if err != nil {
		return nil, fmt.Errorf("raster: inflate payload: %w", err)
	}
	defer zr.Close()
	payload, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("raster: inflate payload: %w", err)
	}

	want := g.Width * g.Height
	if len(payload) != 4*want {
		return nil, fmt.Errorf("%w: %d payload bytes for %dx%d", ErrBadShape, len(payload), g.Width, g.Height)
	}
	g.Values = make([]float32, want)
	for i := range g.Values {
		g.Values[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[4*i:]))
	}
	return g, nil
}
