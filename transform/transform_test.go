package transform

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/robert-malhotra/go-vrbag/grid"
	"github.com/robert-malhotra/go-vrbag/raster"
)

// shift adds a constant to z and leaves x, y alone.
type shift struct{ dz float64 }

func (s shift) Transform(_ context.Context, x, y, z []float64) ([]float64, []float64, []float64, error) {
	tz := make([]float64, len(z))
	for i, v := range z {
		tz[i] = v + s.dz
	}
	return x, y, tz, nil
}

func TestSpecValidate(t *testing.T) {
	if err := (Spec{From: "mllw", To: "navd88"}).Validate(); err != nil {
		t.Errorf("valid spec rejected: %v", err)
	}
	if err := (Spec{From: "mllw"}).Validate(); !errors.Is(err, ErrBadSpec) {
		t.Errorf("missing To: err = %v, want ErrBadSpec", err)
	}
	if err := (Spec{From: "a", To: "b", Steps: []string{""}}).Validate(); !errors.Is(err, ErrBadSpec) {
		t.Errorf("empty step: err = %v, want ErrBadSpec", err)
	}
	if !(Spec{From: "navd88", To: "navd88"}).IsIdentity() {
		t.Error("same-frame spec not identity")
	}
}

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry()
	reg.Register("mllw", "navd88", shift{dz: 1})
	reg.Register("navd88", "wgs84", shift{dz: 2})

	pt, err := reg.Resolve(context.Background(), Spec{From: "mllw", To: "wgs84", Steps: []string{"navd88"}})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	_, _, tz, err := pt.Transform(context.Background(), []float64{0}, []float64{0}, []float64{10})
	if err != nil {
		t.Fatal(err)
	}
	if tz[0] != 13 {
		t.Errorf("chained z = %v, want 13", tz[0])
	}

	if _, err := reg.Resolve(context.Background(), Spec{From: "mllw", To: "egm2008"}); !errors.Is(err, ErrNoOperation) {
		t.Errorf("unknown pair: err = %v, want ErrNoOperation", err)
	}

	pt, err = reg.Resolve(context.Background(), Spec{From: "mllw", To: "mllw"})
	if err != nil {
		t.Fatalf("identity spec failed: %v", err)
	}
	if _, ok := pt.(Identity); !ok {
		t.Errorf("identity spec resolved to %T", pt)
	}
}

func TestApplyPointsNoDataPassthrough(t *testing.T) {
	const nodata = 1.0e6
	x := []float64{10, 20, 30}
	y := []float64{1, 2, 3}
	z := []float64{5, nodata, 7}

	tx, ty, tz, err := ApplyPoints(context.Background(), shift{dz: 100}, x, y, z, nodata)
	if err != nil {
		t.Fatal(err)
	}
	if tz[0] != 105 || tz[2] != 107 {
		t.Errorf("real points not shifted: %v", tz)
	}
	if tx[1] != 20 || ty[1] != 2 || tz[1] != nodata {
		t.Errorf("sentinel point altered: (%v,%v,%v)", tx[1], ty[1], tz[1])
	}
}

func TestApplyPointsMismatchedInputs(t *testing.T) {
	_, _, _, err := ApplyPoints(context.Background(), Identity{}, []float64{1, 2}, []float64{1}, []float64{1}, 0)
	if err == nil {
		t.Error("expected error for mismatched input lengths")
	}
}

// memSource serves fixed depth bands keyed by block offset.
type memSource struct {
	gt     grid.GeoTransform
	crs    string
	depths map[uint32][]float32
	errAt  uint32
	hasErr bool
}

func (s *memSource) GeoTransform() grid.GeoTransform { return s.gt }
func (s *memSource) HorizontalCRS() string           { return s.crs }
func (s *memSource) RefinementDepths(sg grid.Subgrid) ([]float32, error) {
	if s.hasErr && sg.Start == s.errAt {
		return nil, fmt.Errorf("corrupt block at %d", sg.Start)
	}
	return s.depths[sg.Start], nil
}

func testBlocks() []grid.Subgrid {
	return []grid.Subgrid{
		{I: 0, J: 0, Start: 0, Width: 2, Height: 2, ResX: 4, ResY: 4, CornerX: 2, CornerY: 2},
		{I: 1, J: 2, Start: 4, Width: 3, Height: 1, ResX: 2, ResY: 2, CornerX: 1, CornerY: 1},
		{I: 3, J: 3, Start: 7, Width: 2, Height: 1, ResX: 8, ResY: 8, CornerX: 4, CornerY: 4},
	}
}

func testSource() *memSource {
	return &memSource{
		gt:  grid.GeoTransform{OriginX: 100, ResX: 16, OriginY: 400, ResY: -16},
		crs: "EPSG:26919",
		depths: map[uint32][]float32{
			0: {1, 2, 1.0e6, 4},
			4: {5, 6, 7},
			7: {8, 1.0e6},
		},
	}
}

func TestPointWorkerProcess(t *testing.T) {
	w := &PointWorker{Source: testSource(), Transformer: shift{dz: 10}, NoData: 1.0e6}

	res, err := w.Process(context.Background(), testBlocks()[0])
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	want := []float32{11, 12, 1.0e6, 14}
	for i, v := range want {
		if res.Depths[i] != v {
			t.Errorf("depth[%d] = %v, want %v", i, res.Depths[i], v)
		}
	}
	if res.Start != 0 || res.I != 0 || res.J != 0 {
		t.Errorf("result keyed wrong: %+v", res)
	}
}

func TestDispatchPartialFailure(t *testing.T) {
	src := testSource()
	src.hasErr = true
	src.errAt = 4 // the middle block fails

	w := &PointWorker{Source: src, Transformer: shift{dz: 10}, NoData: 1.0e6}
	report, err := Dispatch(context.Background(), w, testBlocks(), 2, nil)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if len(report.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(report.Results))
	}
	if len(report.Failures) != 1 {
		t.Fatalf("got %d failures, want 1", len(report.Failures))
	}
	f := report.Failures[0]
	if f.I != 1 || f.J != 2 || f.Start != 4 {
		t.Errorf("failure keyed wrong: %+v", f)
	}
	if got := report.FailureRatio(); got < 0.33 || got > 0.34 {
		t.Errorf("failure ratio = %v, want 1/3", got)
	}

	// The surviving results still carry their own offsets, regardless of
	// the order the pool finished them in.
	seen := map[uint32]bool{}
	for _, r := range report.Results {
		seen[r.Start] = true
	}
	if !seen[0] || !seen[7] {
		t.Errorf("unexpected result offsets: %v", seen)
	}
}

// gaugeWorker tracks how many Process calls run at once.
type gaugeWorker struct {
	mu   sync.Mutex
	cur  int
	peak int
}

func (w *gaugeWorker) Process(_ context.Context, sg grid.Subgrid) (Result, error) {
	w.mu.Lock()
	w.cur++
	if w.cur > w.peak {
		w.peak = w.cur
	}
	w.mu.Unlock()

	time.Sleep(time.Millisecond)

	w.mu.Lock()
	w.cur--
	w.mu.Unlock()
	return Result{I: sg.I, J: sg.J, Start: sg.Start}, nil
}

func TestDispatchDefaultPoolBounded(t *testing.T) {
	blocks := make([]grid.Subgrid, 64)
	for i := range blocks {
		blocks[i] = grid.Subgrid{I: i, Start: uint32(i), Width: 1, Height: 1}
	}

	w := &gaugeWorker{}
	report, err := Dispatch(context.Background(), w, blocks, 0, nil)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(report.Results) != len(blocks) {
		t.Fatalf("got %d results, want %d", len(report.Results), len(blocks))
	}
	if w.peak > runtime.NumCPU() {
		t.Errorf("peak concurrency %d exceeds core count %d", w.peak, runtime.NumCPU())
	}
}

func TestDispatchLimiterCapsPool(t *testing.T) {
	blocks := make([]grid.Subgrid, 8)
	for i := range blocks {
		blocks[i] = grid.Subgrid{I: i, Start: uint32(i), Width: 1, Height: 1}
	}

	w := &serialGauge{}
	report, err := Dispatch(context.Background(), w, blocks, 4, nil)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(report.Results) != len(blocks) {
		t.Fatalf("got %d results, want %d", len(report.Results), len(blocks))
	}
	if w.peak > 1 {
		t.Errorf("peak concurrency %d despite a serial worker", w.peak)
	}
}

// serialGauge is a gaugeWorker that demands serial dispatch.
type serialGauge struct {
	gaugeWorker
}

func (*serialGauge) ConcurrencyLimit() int { return 1 }

func TestDispatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := &PointWorker{Source: testSource(), Transformer: Identity{}, NoData: 1.0e6}
	if _, err := Dispatch(ctx, w, testBlocks(), 1, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// plusWarper decodes the input raster, adds a constant to every populated
// cell, and writes it back under the output name.
type plusWarper struct {
	dz     float32
	resize int // if > 0, emit this many values instead
}

func (p *plusWarper) Warp(_ context.Context, store raster.Store, in, out string, _ Spec, opts WarpOptions) error {
	if !opts.ApplyVertical {
		return fmt.Errorf("expected a vertical warp")
	}
	data, err := store.ReadFile(in)
	if err != nil {
		return err
	}
	g, err := raster.Decode(data)
	if err != nil {
		return err
	}
	for i, v := range g.Values {
		if v != g.NoData {
			g.Values[i] = v + p.dz
		}
	}
	if p.resize > 0 {
		g.Values = make([]float32, p.resize)
		g.Width, g.Height = p.resize, 1
	}
	encoded, err := g.Encode()
	if err != nil {
		return err
	}
	return store.WriteFile(out, encoded)
}

func TestRasterWorkerProcess(t *testing.T) {
	store := raster.NewMemStore()
	w := &RasterWorker{
		Source: testSource(),
		Warper: &plusWarper{dz: 10},
		Store:  store,
		Spec:   Spec{From: "mllw", To: "navd88"},
		NoData: 1.0e6,
	}

	res, err := w.Process(context.Background(), testBlocks()[0])
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	want := []float32{11, 12, 1.0e6, 14}
	for i, v := range want {
		if res.Depths[i] != v {
			t.Errorf("depth[%d] = %v, want %v", i, res.Depths[i], v)
		}
	}
	if store.Len() != 0 {
		t.Errorf("%d scratch files leaked", store.Len())
	}
}

func TestRasterWorkerShortBand(t *testing.T) {
	store := raster.NewMemStore()
	w := &RasterWorker{
		Source: testSource(),
		Warper: &plusWarper{dz: 10, resize: 2}, // 2 values for a 4-point block
		Store:  store,
		NoData: 1.0e6,
	}

	// A drifted band is logged and carried through, not raised; the result
	// simply covers fewer points than the block declares.
	res, err := w.Process(context.Background(), testBlocks()[0])
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(res.Depths) != 2 {
		t.Errorf("got %d depths, want the drifted 2", len(res.Depths))
	}
	if store.Len() != 0 {
		t.Errorf("%d scratch files leaked", store.Len())
	}
}

func TestRasterWorkerSerialCapability(t *testing.T) {
	w := &RasterWorker{SerialWarp: true}
	if w.ConcurrencyLimit() != 1 {
		t.Error("serial warp worker must cap the pool at 1")
	}
	w.SerialWarp = false
	if w.ConcurrencyLimit() != 0 {
		t.Error("concurrent warp worker must not cap the pool")
	}
}
