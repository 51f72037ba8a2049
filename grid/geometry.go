// Package grid provides the affine geometry mapping between grid indices
// and real-world coordinates, and the Subgrid value object describing one
// refinement block of a variable-resolution grid.
package grid

// GeoTransform is the affine transform of a north-up regular grid, in the
// conventional six-element order: x origin, x resolution, row rotation,
// y origin, column rotation, y resolution. ResY is negative for north-up
// grids: row indices grow southward from the top-left origin.
type GeoTransform struct {
	OriginX float64
	ResX    float64
	RotX    float64
	OriginY float64
	RotY    float64
	ResY    float64
}

// Slice returns the transform in GDAL's six-element order.
func (gt GeoTransform) Slice() [6]float64 {
	return [6]float64{gt.OriginX, gt.ResX, gt.RotX, gt.OriginY, gt.RotY, gt.ResY}
}

// FromSlice builds a GeoTransform from the six-element order.
func FromSlice(v [6]float64) GeoTransform {
	return GeoTransform{
		OriginX: v[0], ResX: v[1], RotX: v[2],
		OriginY: v[3], RotY: v[4], ResY: v[5],
	}
}

// XY maps the grid cell (i, j), row i and column j, to the real-world
// coordinate of the cell's origin corner, shifted by the given local offset.
func (gt GeoTransform) XY(i, j int, offsetX, offsetY float64) (x, y float64) {
	x = float64(j)*gt.ResX + gt.OriginX + offsetX
	y = float64(i)*gt.ResY + gt.OriginY + offsetY
	return x, y
}

// Subgrid describes one populated refinement block: where it anchors in the
// coarse grid, where its values start in the flat refinement array, its
// dimensions, its own resolution, and the corner offset of its first point
// relative to the anchor cell's origin.
type Subgrid struct {
	I, J       int
	Start      uint32
	Width      int
	Height     int
	ResX, ResY float64
	CornerX    float64
	CornerY    float64
}

// Count returns the number of points in the sub-grid.
func (sg Subgrid) Count() int { return sg.Width * sg.Height }

// End returns one past the last flat-array index owned by the sub-grid.
func (sg Subgrid) End() uint64 { return uint64(sg.Start) + uint64(sg.Count()) }

// Points enumerates the real-world coordinates of every sub-grid point in
// row-major order: point k sits at local row k/Width, local column k%Width,
// with the sub-grid's own resolution applied per local step.
func (sg Subgrid) Points(gt GeoTransform) (x, y []float64) {
	anchorX, anchorY := gt.XY(sg.I, sg.J, sg.CornerX, sg.CornerY)
	n := sg.Count()
	x = make([]float64, n)
	y = make([]float64, n)
	for k := 0; k < n; k++ {
		col := k % sg.Width
		row := k / sg.Width
		x[k] = anchorX + float64(col)*sg.ResX
		y[k] = anchorY + float64(row)*sg.ResY
	}
	return x, y
}

// GeoTransform returns the sub-grid's own affine transform, used when the
// block is materialized as a standalone raster. The origin is the block's
// first stored point and rows advance by the block's own y resolution, so
// the flattened raster payload keeps the storage order of the refinement
// array and reassembly never reorders rows.
func (sg Subgrid) GeoTransform(gt GeoTransform) GeoTransform {
	anchorX, anchorY := gt.XY(sg.I, sg.J, sg.CornerX, sg.CornerY)
	return GeoTransform{
		OriginX: anchorX,
		ResX:    sg.ResX,
		OriginY: anchorY,
		ResY:    sg.ResY,
	}
}
