package hfile

import (
	"fmt"
	"path"
)

// Dataset is an n-dimensional array of fixed-size elements.
type Dataset struct {
	file *File
	path string

	// Read mode
	hdr *header

	// Both modes
	dataspace *dataspaceMsg
	datatype  Datatype
	layout    *layoutMsg
	filterSet *filtersMsg

	// Write mode
	pending bool
	attrs   []*attributeMsg
}

// DatasetOption configures dataset creation.
type DatasetOption func(*datasetOptions)

type datasetOptions struct {
	chunkBytes     uint64
	compressionLvl int
	shuffle        bool
}

func defaultDatasetOptions() *datasetOptions {
	return &datasetOptions{}
}

// WithChunking stores the payload in element-aligned blocks of at most n
// bytes each. Required for compression.
func WithChunking(n uint64) DatasetOption {
	return func(o *datasetOptions) { o.chunkBytes = n }
}

// WithDeflate enables DEFLATE compression at the given level (1-9).
// Implies chunking; if no chunk size was set, a default is chosen.
func WithDeflate(level int) DatasetOption {
	return func(o *datasetOptions) {
		if level >= 1 && level <= 9 {
			o.compressionLvl = level
		}
	}
}

// WithShuffle enables the byte-shuffle filter ahead of compression.
func WithShuffle() DatasetOption {
	return func(o *datasetOptions) { o.shuffle = true }
}

const defaultChunkBytes = 1 << 16

// CreateDataset creates a dataset and writes its payload immediately. The
// raw length must equal the element count implied by dims times the element
// size. The object header is flushed when the file is closed.
func (g *Group) CreateDataset(name string, dt Datatype, dims []uint64, raw []byte, opts ...DatasetOption) (*Dataset, error) {
	if !g.file.writable {
		return nil, ErrNotWritable
	}
	if name == "" {
		return nil, fmt.Errorf("dataset name cannot be empty")
	}

	options := defaultDatasetOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.compressionLvl > 0 && options.chunkBytes == 0 {
		options.chunkBytes = defaultChunkBytes
	}

	space := &dataspaceMsg{Dims: dims}
	if want := space.numElements() * uint64(dt.Size); uint64(len(raw)) != want {
		return nil, fmt.Errorf("dataset %q: payload is %d bytes, dims require %d", name, len(raw), want)
	}

	ds := &Dataset{
		file:      g.file,
		path:      g.childPath(name),
		pending:   true,
		dataspace: space,
		datatype:  dt,
	}

	if options.chunkBytes > 0 {
		if err := ds.writeChunked(raw, options); err != nil {
			return nil, fmt.Errorf("dataset %q: %w", name, err)
		}
	} else {
		addr := g.file.alloc.Alloc(uint64(len(raw)))
		if err := g.file.wr.At(int64(addr)).WriteBytes(raw); err != nil {
			return nil, fmt.Errorf("dataset %q: writing payload: %w", name, err)
		}
		ds.layout = &layoutMsg{Class: layoutContiguous, DataAddr: addr, DataSize: uint64(len(raw))}
	}

	g.children = append(g.children, pendingChild{name: name, dataset: ds})
	return ds, nil
}

// writeChunked splits the payload into element-aligned blocks, runs each
// through the filter pipeline, and writes a flat chunk index.
func (ds *Dataset) writeChunked(raw []byte, options *datasetOptions) error {
	elemSize := uint64(ds.datatype.Size)
	chunkBytes := options.chunkBytes - options.chunkBytes%elemSize
	if chunkBytes == 0 {
		chunkBytes = elemSize
	}

	var filters []filterInfo
	if options.shuffle {
		filters = append(filters, filterInfo{ID: FilterShuffle, ClientData: []uint32{ds.datatype.Size}})
	}
	if options.compressionLvl > 0 {
		filters = append(filters, filterInfo{ID: FilterDeflate, ClientData: []uint32{uint32(options.compressionLvl)}})
	}
	if len(filters) > 0 {
		ds.filterSet = &filtersMsg{Filters: filters}
	}
	pipe, err := newPipeline(ds.filterSet)
	if err != nil {
		return err
	}

	var entries []chunkEntry
	for off := uint64(0); off < uint64(len(raw)) || (len(raw) == 0 && off == 0); off += chunkBytes {
		end := off + chunkBytes
		if end > uint64(len(raw)) {
			end = uint64(len(raw))
		}
		encoded, err := pipe.Encode(raw[off:end])
		if err != nil {
			return err
		}
		addr := ds.file.alloc.Alloc(uint64(len(encoded)))
		if err := ds.file.wr.At(int64(addr)).WriteBytes(encoded); err != nil {
			return fmt.Errorf("writing chunk at 0x%x: %w", addr, err)
		}
		entries = append(entries, chunkEntry{addr: addr, stored: uint64(len(encoded))})
		if len(raw) == 0 {
			break
		}
	}

	indexAddr, err := ds.writeChunkIndex(entries)
	if err != nil {
		return err
	}
	ds.layout = &layoutMsg{
		Class:      layoutChunked,
		ChunkBytes: chunkBytes,
		NumChunks:  uint32(len(entries)),
		IndexAddr:  indexAddr,
	}
	return nil
}

var chunkIndexMagic = []byte{'C', 'I', 'D', 'X'}

// chunkEntry locates one stored (possibly compressed) chunk.
type chunkEntry struct {
	addr   uint64
	stored uint64
}

func (ds *Dataset) writeChunkIndex(entries []chunkEntry) (uint64, error) {
	mem := &memWriterAt{}
	w := newWriter(mem, ds.file.cfg)
	if err := w.WriteBytes(chunkIndexMagic); err != nil {
		return 0, err
	}
	if err := w.WriteUint32(uint32(len(entries))); err != nil {
		return 0, err
	}
	for _, e := range entries {
		if err := w.WriteOffset(e.addr); err != nil {
			return 0, err
		}
		if err := w.WriteLength(e.stored); err != nil {
			return 0, err
		}
	}
	if err := w.WriteUint32(checksum(mem.buf[:w.Pos()])); err != nil {
		return 0, err
	}

	addr := ds.file.alloc.Alloc(uint64(len(mem.buf)))
	if err := ds.file.wr.At(int64(addr)).WriteBytes(mem.buf); err != nil {
		return 0, fmt.Errorf("writing chunk index: %w", err)
	}
	return addr, nil
}

func (ds *Dataset) readChunkIndex() ([]chunkEntry, error) {
	r := ds.file.rd.At(int64(ds.layout.IndexAddr))
	magic, err := r.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	if string(magic) != string(chunkIndexMagic) {
		return nil, fmt.Errorf("invalid chunk index at 0x%x", ds.layout.IndexAddr)
	}
	count, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if count != ds.layout.NumChunks {
		return nil, fmt.Errorf("chunk index count %d disagrees with layout %d", count, ds.layout.NumChunks)
	}
	entries := make([]chunkEntry, count)
	for i := range entries {
		if entries[i].addr, err = r.ReadOffset(); err != nil {
			return nil, err
		}
		if entries[i].stored, err = r.ReadLength(); err != nil {
			return nil, err
		}
	}
	bodyLen := int(r.Pos() - int64(ds.layout.IndexAddr))
	raw, err := ds.file.rd.At(int64(ds.layout.IndexAddr)).ReadBytes(bodyLen)
	if err != nil {
		return nil, err
	}
	stored, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if stored != checksum(raw) {
		return nil, fmt.Errorf("chunk index at 0x%x: checksum mismatch", ds.layout.IndexAddr)
	}
	return entries, nil
}

// newDataset builds a read-mode Dataset from its object header.
func newDataset(f *File, dsPath string, hdr *header) (*Dataset, error) {
	ds := &Dataset{file: f, path: dsPath, hdr: hdr}

	ds.dataspace = hdr.dataspace()
	if ds.dataspace == nil {
		return nil, fmt.Errorf("dataset missing dataspace message")
	}
	dt := hdr.datatype()
	if dt == nil {
		return nil, fmt.Errorf("dataset missing datatype message")
	}
	ds.datatype = dt.Type
	ds.layout = hdr.layout()
	if ds.layout == nil {
		return nil, fmt.Errorf("dataset missing layout message")
	}
	ds.filterSet = hdr.filters()
	return ds, nil
}

// Name returns the dataset name (last path component).
func (ds *Dataset) Name() string { return path.Base(ds.path) }

// Path returns the dataset's absolute path.
func (ds *Dataset) Path() string { return ds.path }

// Shape returns the dataset dimensions.
func (ds *Dataset) Shape() []uint64 { return ds.dataspace.Dims }

// NumElements returns the total element count.
func (ds *Dataset) NumElements() uint64 { return ds.dataspace.numElements() }

// Dtype returns the element datatype.
func (ds *Dataset) Dtype() Datatype { return ds.datatype }

// ReadRaw reads the full payload as raw bytes, decoding chunks through the
// filter pipeline as needed.
func (ds *Dataset) ReadRaw() ([]byte, error) {
	if ds.hdr == nil {
		return nil, ErrUnflushed
	}
	want := ds.NumElements() * uint64(ds.datatype.Size)

	switch ds.layout.Class {
	case layoutContiguous:
		raw, err := ds.file.rd.At(int64(ds.layout.DataAddr)).ReadBytes(int(ds.layout.DataSize))
		if err != nil {
			return nil, fmt.Errorf("reading payload: %w", err)
		}
		return raw, nil
	case layoutChunked:
		pipe, err := newPipeline(ds.filterSet)
		if err != nil {
			return nil, err
		}
		entries, err := ds.readChunkIndex()
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, want)
		for i, e := range entries {
			raw, err := ds.file.rd.At(int64(e.addr)).ReadBytes(int(e.stored))
			if err != nil {
				return nil, fmt.Errorf("reading chunk %d: %w", i, err)
			}
			decoded, err := pipe.Decode(raw)
			if err != nil {
				return nil, fmt.Errorf("decoding chunk %d: %w", i, err)
			}
			out = append(out, decoded...)
		}
		if uint64(len(out)) != want {
			return nil, fmt.Errorf("payload is %d bytes after decode, want %d", len(out), want)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown layout class: %d", ds.layout.Class)
	}
}

// ReadFloat32 reads the dataset as float32 values.
func (ds *Dataset) ReadFloat32() ([]float32, error) {
	raw, err := ds.ReadRaw()
	if err != nil {
		return nil, err
	}
	return DecodeFloat32(raw)
}

// ReadFloat64 reads the dataset as float64 values.
func (ds *Dataset) ReadFloat64() ([]float64, error) {
	raw, err := ds.ReadRaw()
	if err != nil {
		return nil, err
	}
	return DecodeFloat64(raw)
}

// ReadUint32 reads the dataset as uint32 values.
func (ds *Dataset) ReadUint32() ([]uint32, error) {
	raw, err := ds.ReadRaw()
	if err != nil {
		return nil, err
	}
	return DecodeUint32(raw)
}

// PutAttr records an attribute on the dataset. Write mode only.
func (ds *Dataset) PutAttr(name string, value any) error {
	if !ds.pending {
		return ErrNotWritable
	}
	msg, err := encodeAttrValue(name, value)
	if err != nil {
		return err
	}
	ds.attrs = append(ds.attrs, msg)
	return nil
}

// Attr returns a dataset attribute by name, or nil.
func (ds *Dataset) Attr(name string) *Attribute {
	if ds.hdr == nil {
		return nil
	}
	return findAttr(ds.hdr, name)
}

// Attrs returns the dataset's attribute names.
func (ds *Dataset) Attrs() []string {
	if ds.hdr == nil {
		var names []string
		for _, a := range ds.attrs {
			names = append(names, a.Name)
		}
		return names
	}
	var names []string
	for _, a := range ds.hdr.attributes() {
		names = append(names, a.Name)
	}
	return names
}

// writeHeader flushes a pending dataset's object header.
func (ds *Dataset) writeHeader() (uint64, error) {
	msgs := []message{
		ds.dataspace,
		&datatypeMsg{Type: ds.datatype},
		ds.layout,
	}
	if ds.filterSet != nil {
		msgs = append(msgs, ds.filterSet)
	}
	for _, a := range ds.attrs {
		msgs = append(msgs, a)
	}

	block, err := encodeHeader(ds.file.cfg, msgs)
	if err != nil {
		return 0, fmt.Errorf("encoding dataset %s: %w", ds.path, err)
	}
	addr := ds.file.alloc.Alloc(uint64(len(block)))
	if err := ds.file.wr.At(int64(addr)).WriteBytes(block); err != nil {
		return 0, fmt.Errorf("writing dataset %s: %w", ds.path, err)
	}
	return addr, nil
}
