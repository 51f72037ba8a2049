package grid

import (
	"math"
	"testing"
)

func TestXY(t *testing.T) {
	gt := GeoTransform{OriginX: 500000, ResX: 16, OriginY: 4000000, ResY: -16}

	tests := []struct {
		name               string
		i, j               int
		offX, offY         float64
		wantX, wantY       float64
	}{
		{"origin cell", 0, 0, 0, 0, 500000, 4000000},
		{"column advance", 0, 3, 0, 0, 500048, 4000000},
		{"row advances south", 2, 0, 0, 0, 500000, 3999968},
		{"corner offset", 1, 1, 2.5, 3.5, 500018.5, 3999987.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := gt.XY(tt.i, tt.j, tt.offX, tt.offY)
			if x != tt.wantX || y != tt.wantY {
				t.Errorf("XY(%d,%d) = (%v,%v), want (%v,%v)", tt.i, tt.j, x, y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestSliceRoundTrip(t *testing.T) {
	gt := GeoTransform{OriginX: 1, ResX: 2, RotX: 0, OriginY: 4, RotY: 0, ResY: -2}
	if got := FromSlice(gt.Slice()); got != gt {
		t.Errorf("FromSlice(Slice()) = %+v, want %+v", got, gt)
	}
}

func TestSubgridPointsRowMajor(t *testing.T) {
	gt := GeoTransform{OriginX: 100, ResX: 10, OriginY: 200, ResY: -10}
	sg := Subgrid{
		I: 1, J: 2,
		Width: 3, Height: 2,
		ResX: 2, ResY: 2,
		CornerX: 1, CornerY: 1,
	}

	x, y := sg.Points(gt)
	if len(x) != 6 || len(y) != 6 {
		t.Fatalf("got %d points, want 6", len(x))
	}

	anchorX := 100.0 + 2*10 + 1 // origin + j*resX + corner
	anchorY := 200.0 - 1*10 + 1 // origin + i*resY + corner

	// Point k maps to local column k%3, local row k/3; the resolution step
	// is per local row/column, never per coarse cell.
	for k := 0; k < 6; k++ {
		wantX := anchorX + float64(k%3)*2
		wantY := anchorY + float64(k/3)*2
		if x[k] != wantX || y[k] != wantY {
			t.Errorf("point %d = (%v,%v), want (%v,%v)", k, x[k], y[k], wantX, wantY)
		}
	}
}

func TestSubgridExtentAndDisjointness(t *testing.T) {
	a := Subgrid{Start: 0, Width: 4, Height: 4}
	b := Subgrid{Start: 16, Width: 2, Height: 3}

	if a.Count() != 16 || a.End() != 16 {
		t.Errorf("a: count=%d end=%d, want 16 16", a.Count(), a.End())
	}
	if b.Count() != 6 || b.End() != 22 {
		t.Errorf("b: count=%d end=%d, want 6 22", b.Count(), b.End())
	}
	if a.End() > uint64(b.Start) {
		t.Error("ranges overlap")
	}
}

func TestSubgridGeoTransform(t *testing.T) {
	gt := GeoTransform{OriginX: 100, ResX: 10, OriginY: 200, ResY: -10}
	sg := Subgrid{I: 1, J: 2, Width: 3, Height: 2, ResX: 2.5, ResY: 2.5, CornerX: 0.5, CornerY: 0.5}

	sub := sg.GeoTransform(gt)
	wantX, wantY := gt.XY(sg.I, sg.J, sg.CornerX, sg.CornerY)
	if sub.OriginX != wantX || sub.OriginY != wantY {
		t.Errorf("origin = (%v,%v), want (%v,%v)", sub.OriginX, sub.OriginY, wantX, wantY)
	}
	if sub.ResX != 2.5 || sub.ResY != 2.5 {
		t.Errorf("resolution = (%v,%v), want (2.5,2.5)", sub.ResX, sub.ResY)
	}

	// The first point of Points must coincide with the raster origin.
	x, y := sg.Points(gt)
	if math.Abs(x[0]-sub.OriginX) > 1e-12 || math.Abs(y[0]-sub.OriginY) > 1e-12 {
		t.Errorf("first point (%v,%v) != raster origin (%v,%v)", x[0], y[0], sub.OriginX, sub.OriginY)
	}
}
