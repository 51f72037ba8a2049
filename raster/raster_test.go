package raster

import (
	"errors"
	"os"
	"testing"

	"github.com/robert-malhotra/go-vrbag/grid"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	g := &Grid{
		Width:  3,
		Height: 2,
		Transform: grid.GeoTransform{
			OriginX: 500016, ResX: 4,
			OriginY: 3999984, ResY: 4,
		},
		CRS:    "EPSG:26919",
		NoData: 1.0e6,
		Values: []float32{1.5, 2.5, 1.0e6, -3.25, 4.0, 5.5},
	}

	data, err := g.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	back, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if back.Width != g.Width || back.Height != g.Height {
		t.Errorf("shape = %dx%d, want %dx%d", back.Width, back.Height, g.Width, g.Height)
	}
	if back.Transform != g.Transform {
		t.Errorf("transform = %+v, want %+v", back.Transform, g.Transform)
	}
	if back.CRS != g.CRS {
		t.Errorf("crs = %q, want %q", back.CRS, g.CRS)
	}
	if back.NoData != g.NoData {
		t.Errorf("nodata = %v, want %v", back.NoData, g.NoData)
	}
	for i, want := range g.Values {
		if back.Values[i] != want {
			t.Errorf("value[%d] = %v, want %v", i, back.Values[i], want)
		}
	}
}

func TestNewFromSubgrid(t *testing.T) {
	parent := grid.GeoTransform{OriginX: 100, ResX: 16, OriginY: 200, ResY: -16}
	sg := grid.Subgrid{I: 1, J: 1, Width: 2, Height: 2, ResX: 4, ResY: 4, CornerX: 2, CornerY: 2}

	g, err := New(sg, parent, "EPSG:4326", 1.0e6, []float32{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	want := sg.GeoTransform(parent)
	if g.Transform != want {
		t.Errorf("transform = %+v, want %+v", g.Transform, want)
	}

	if _, err := New(sg, parent, "EPSG:4326", 1.0e6, []float32{1, 2, 3}); !errors.Is(err, ErrBadShape) {
		t.Errorf("short payload: err = %v, want ErrBadShape", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not a raster at all")); !errors.Is(err, ErrNotRaster) {
		t.Errorf("err = %v, want ErrNotRaster", err)
	}
	if _, err := Decode([]byte{'R', 'A', 'S', '1', 0, 0}); !errors.Is(err, ErrNotRaster) {
		t.Errorf("truncated: err = %v, want ErrNotRaster", err)
	}
}

func TestMemStore(t *testing.T) {
	s := NewMemStore()
	if err := s.WriteFile("block_0_0.ras", []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	data, err := s.ReadFile("block_0_0.ras")
	if err != nil || len(data) != 3 {
		t.Fatalf("ReadFile = %v, %v", data, err)
	}
	if err := s.Remove("block_0_0.ras"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReadFile("block_0_0.ras"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("after remove: err = %v, want ErrNotExist", err)
	}
	if s.Len() != 0 {
		t.Errorf("store not empty after batch: %d files", s.Len())
	}
}

func TestDiskStoreIsolation(t *testing.T) {
	base := t.TempDir()
	a, err := NewDiskStore(base)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewDiskStore(base)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Destroy()
	defer b.Destroy()

	if a.Path("x") == b.Path("x") {
		t.Fatal("two batches share a scratch path")
	}

	if err := a.WriteFile("x", []byte("alpha")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.ReadFile("x"); err == nil {
		t.Error("batch b can see batch a's scratch file")
	}
	got, err := a.ReadFile("x")
	if err != nil || string(got) != "alpha" {
		t.Errorf("ReadFile = %q, %v", got, err)
	}
}
