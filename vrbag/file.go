package vrbag

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/robert-malhotra/go-vrbag/grid"
	"github.com/robert-malhotra/go-vrbag/internal/hfile"
)

// Dataset layout inside the container.
const (
	rootGroup      = "BAG_root"
	elevationDS    = "elevation"
	descriptorDS   = "varres_metadata"
	refinementDS   = "varres_refinements"
	attrGeoXform   = "geo_transform"
	attrHorizCRS   = "horizontal_crs"
	attrVertCRS    = "vertical_crs"
	attrMinElev    = "min_elevation"
	attrMaxElev    = "max_elevation"
	attrMinDepth   = "min_depth"
	attrMaxDepth   = "max_depth"
	attrMinUncrt   = "min_uncrt"
	attrMaxUncrt   = "max_uncrt"
	compressionLvl = 9
)

var ErrNotVRGrid = errors.New("vrbag: not a variable-resolution grid file")

func descriptorType() hfile.Datatype {
	return hfile.Compound(
		hfile.Member{Name: "index", Type: hfile.Uint32Type},
		hfile.Member{Name: "dimensions_x", Type: hfile.Uint16Type},
		hfile.Member{Name: "dimensions_y", Type: hfile.Uint16Type},
		hfile.Member{Name: "resolution_x", Type: hfile.Float32Type},
		hfile.Member{Name: "resolution_y", Type: hfile.Float32Type},
		hfile.Member{Name: "sw_corner_x", Type: hfile.Float32Type},
		hfile.Member{Name: "sw_corner_y", Type: hfile.Float32Type},
	)
}

func refinementType() hfile.Datatype {
	return hfile.Compound(
		hfile.Member{Name: "depth", Type: hfile.Float32Type},
		hfile.Member{Name: "depth_uncrt", Type: hfile.Float32Type},
	)
}

// Content is the full in-memory image of a variable-resolution grid file.
type Content struct {
	Rows, Cols    int
	GeoTransform  grid.GeoTransform
	HorizontalCRS string
	VerticalCRS   string
	Elevation     []float32
	Descriptors   []Descriptor
	Refinements   []Refinement
}

// Write creates a grid file at path from the content, recomputing the
// derived min/max attributes from the payloads. Elevation and refinement
// statistics always ignore the no-data sentinel.
func Write(path string, c *Content) error {
	if len(c.Elevation) != c.Rows*c.Cols {
		return fmt.Errorf("vrbag: %d elevation values for %dx%d grid", len(c.Elevation), c.Rows, c.Cols)
	}
	if len(c.Descriptors) != c.Rows*c.Cols {
		return fmt.Errorf("vrbag: %d descriptors for %dx%d grid", len(c.Descriptors), c.Rows, c.Cols)
	}

	f, err := hfile.Create(path)
	if err != nil {
		return err
	}
	root, err := f.Root().CreateGroup(rootGroup)
	if err != nil {
		f.Close()
		return err
	}

	gtv := c.GeoTransform.Slice()
	if err := root.PutAttr(attrGeoXform, gtv[:]); err != nil {
		f.Close()
		return err
	}
	if err := root.PutAttr(attrHorizCRS, c.HorizontalCRS); err != nil {
		f.Close()
		return err
	}
	if err := root.PutAttr(attrVertCRS, c.VerticalCRS); err != nil {
		f.Close()
		return err
	}

	dims := []uint64{uint64(c.Rows), uint64(c.Cols)}
	elev, err := root.CreateDataset(elevationDS, hfile.Float32Type, dims,
		hfile.EncodeFloat32(c.Elevation), hfile.WithDeflate(compressionLvl), hfile.WithShuffle())
	if err != nil {
		f.Close()
		return err
	}
	minE, maxE := MinMax(c.Elevation, NoData)
	if err := elev.PutAttr(attrMinElev, minE); err != nil {
		f.Close()
		return err
	}
	if err := elev.PutAttr(attrMaxElev, maxE); err != nil {
		f.Close()
		return err
	}

	if _, err := root.CreateDataset(descriptorDS, descriptorType(), dims,
		encodeDescriptors(c.Descriptors), hfile.WithDeflate(compressionLvl)); err != nil {
		f.Close()
		return err
	}

	refs, err := root.CreateDataset(refinementDS, refinementType(),
		[]uint64{1, uint64(len(c.Refinements))},
		encodeRefinements(c.Refinements), hfile.WithDeflate(compressionLvl))
	if err != nil {
		f.Close()
		return err
	}
	depths := make([]float32, len(c.Refinements))
	uncrts := make([]float32, len(c.Refinements))
	for i, r := range c.Refinements {
		depths[i] = r.Depth
		uncrts[i] = r.Uncertainty
	}
	minD, maxD := MinMax(depths, NoData)
	minU, maxU := MinMax(uncrts, NoData)
	for _, a := range []struct {
		name string
		val  float32
	}{
		{attrMinDepth, minD}, {attrMaxDepth, maxD},
		{attrMinUncrt, minU}, {attrMaxUncrt, maxU},
	} {
		if err := refs.PutAttr(a.name, a.val); err != nil {
			f.Close()
			return err
		}
	}

	return f.Close()
}

// File is an open variable-resolution grid file. All reads go through an
// io.ReaderAt, so one File is safe to share across workers.
type File struct {
	path string
	hf   *hfile.File
	root *hfile.Group

	rows, cols int
	gt         grid.GeoTransform
	crsH, crsV string

	refOnce sync.Once
	refs    []Refinement
	refErr  error
}

// Open opens a grid file read-only and validates that the three datasets
// and the georeferencing attributes are present and consistent.
func Open(path string) (*File, error) {
	hf, err := hfile.Open(path)
	if err != nil {
		return nil, err
	}
	f := &File{path: path, hf: hf}
	if err := f.validate(); err != nil {
		hf.Close()
		return nil, err
	}
	return f, nil
}

func (f *File) validate() error {
	root, err := f.hf.Root().OpenGroup(rootGroup)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotVRGrid, err)
	}
	f.root = root

	gtAttr := root.Attr(attrGeoXform)
	if gtAttr == nil {
		return fmt.Errorf("%w: missing %s", ErrNotVRGrid, attrGeoXform)
	}
	gtv, err := gtAttr.Float64s()
	if err != nil || len(gtv) != 6 {
		return fmt.Errorf("%w: malformed %s", ErrNotVRGrid, attrGeoXform)
	}
	f.gt = grid.FromSlice([6]float64(gtv))

	if a := root.Attr(attrHorizCRS); a != nil {
		f.crsH, _ = a.String()
	}
	if a := root.Attr(attrVertCRS); a != nil {
		f.crsV, _ = a.String()
	}

	elev, err := root.OpenDataset(elevationDS)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotVRGrid, err)
	}
	shape := elev.Shape()
	if len(shape) != 2 {
		return fmt.Errorf("%w: elevation is %d-dimensional", ErrNotVRGrid, len(shape))
	}
	f.rows, f.cols = int(shape[0]), int(shape[1])

	desc, err := root.OpenDataset(descriptorDS)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotVRGrid, err)
	}
	dshape := desc.Shape()
	if len(dshape) != 2 || int(dshape[0]) != f.rows || int(dshape[1]) != f.cols {
		return fmt.Errorf("%w: descriptor grid %v does not match elevation %dx%d",
			ErrNotVRGrid, dshape, f.rows, f.cols)
	}
	if got := desc.Dtype().Size; got != descriptorSize {
		return fmt.Errorf("%w: descriptor record is %d bytes, want %d", ErrNotVRGrid, got, descriptorSize)
	}

	refs, err := root.OpenDataset(refinementDS)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotVRGrid, err)
	}
	if got := refs.Dtype().Size; got != refinementSize {
		return fmt.Errorf("%w: refinement record is %d bytes, want %d", ErrNotVRGrid, got, refinementSize)
	}
	return nil
}

func (f *File) Close() error { return f.hf.Close() }

func (f *File) Path() string { return f.path }

// Shape returns the coarse grid dimensions.
func (f *File) Shape() (rows, cols int) { return f.rows, f.cols }

func (f *File) GeoTransform() grid.GeoTransform { return f.gt }

func (f *File) HorizontalCRS() string { return f.crsH }

func (f *File) VerticalCRS() string { return f.crsV }

// Elevation reads the coarse elevation grid, row-major.
func (f *File) Elevation() ([]float32, error) {
	ds, err := f.root.OpenDataset(elevationDS)
	if err != nil {
		return nil, err
	}
	return ds.ReadFloat32()
}

// Descriptors reads the refinement descriptor grid, row-major.
func (f *File) Descriptors() ([]Descriptor, error) {
	ds, err := f.root.OpenDataset(descriptorDS)
	if err != nil {
		return nil, err
	}
	raw, err := ds.ReadRaw()
	if err != nil {
		return nil, err
	}
	return decodeDescriptors(raw)
}

// Refinements reads the flat refinement array. The array is decoded once
// and cached; a File never sees its own file change underneath it.
func (f *File) Refinements() ([]Refinement, error) {
	f.refOnce.Do(func() {
		ds, err := f.root.OpenDataset(refinementDS)
		if err != nil {
			f.refErr = err
			return
		}
		raw, err := ds.ReadRaw()
		if err != nil {
			f.refErr = err
			return
		}
		f.refs, f.refErr = decodeRefinements(raw)
	})
	return f.refs, f.refErr
}

// RefinementDepths returns the depth band of one refinement block. It is
// the read half of the worker contract.
func (f *File) RefinementDepths(sg grid.Subgrid) ([]float32, error) {
	refs, err := f.Refinements()
	if err != nil {
		return nil, err
	}
	if sg.End() > uint64(len(refs)) {
		return nil, fmt.Errorf("vrbag: block [%d,%d) exceeds refinement array of %d", sg.Start, sg.End(), len(refs))
	}
	depths := make([]float32, sg.Count())
	for i := range depths {
		depths[i] = refs[int(sg.Start)+i].Depth
	}
	return depths, nil
}

// ElevationStats reads the derived min/max attributes of the elevation
// grid.
func (f *File) ElevationStats() (min, max float32, err error) {
	ds, err := f.root.OpenDataset(elevationDS)
	if err != nil {
		return 0, 0, err
	}
	return attrPair(ds, attrMinElev, attrMaxElev)
}

// DepthStats reads the derived min/max attributes of the refinement depth
// band.
func (f *File) DepthStats() (min, max float32, err error) {
	ds, err := f.root.OpenDataset(refinementDS)
	if err != nil {
		return 0, 0, err
	}
	return attrPair(ds, attrMinDepth, attrMaxDepth)
}

// UncertaintyStats reads the derived min/max attributes of the refinement
// uncertainty band.
func (f *File) UncertaintyStats() (min, max float32, err error) {
	ds, err := f.root.OpenDataset(refinementDS)
	if err != nil {
		return 0, 0, err
	}
	return attrPair(ds, attrMinUncrt, attrMaxUncrt)
}

func attrPair(ds *hfile.Dataset, minName, maxName string) (float32, float32, error) {
	minAttr, maxAttr := ds.Attr(minName), ds.Attr(maxName)
	if minAttr == nil || maxAttr == nil {
		return 0, 0, fmt.Errorf("vrbag: %s missing %s/%s", ds.Name(), minName, maxName)
	}
	min, err := minAttr.Float32()
	if err != nil {
		return 0, 0, err
	}
	max, err := maxAttr.Float32()
	if err != nil {
		return 0, 0, err
	}
	return min, max, nil
}

// Content reads the whole file into memory.
func (f *File) Content() (*Content, error) {
	elev, err := f.Elevation()
	if err != nil {
		return nil, err
	}
	descs, err := f.Descriptors()
	if err != nil {
		return nil, err
	}
	refs, err := f.Refinements()
	if err != nil {
		return nil, err
	}
	// Copy the cached array so callers can patch it freely.
	refCopy := make([]Refinement, len(refs))
	copy(refCopy, refs)
	return &Content{
		Rows: f.rows, Cols: f.cols,
		GeoTransform:  f.gt,
		HorizontalCRS: f.crsH,
		VerticalCRS:   f.crsV,
		Elevation:     elev,
		Descriptors:   descs,
		Refinements:   refCopy,
	}, nil
}

// Replace atomically swaps the file's on-disk bytes for the given content.
// The new image is written beside the original and renamed over it, so a
// crash mid-write leaves the original intact. The open handle keeps
// serving the old image until it is reopened.
func (f *File) Replace(c *Content) error {
	tmp := f.path + ".tmp"
	if err := Write(tmp, c); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
