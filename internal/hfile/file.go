// Package hfile implements the hierarchical container format backing
// compound grid files: a checksummed superblock, object headers carrying
// typed messages (dataspace, datatype, data layout, filter pipeline,
// attributes, hard links), and dataset payloads stored contiguously or as
// deflate-compressed chunks.
//
// The container is self-describing and append-only. Files opened with Open
// are read-only; files produced with Create buffer their metadata in memory,
// write dataset payloads as they are created, and flush object headers and
// the superblock on Close. Replacing a dataset therefore means writing a new
// file, which callers pair with an atomic rename.
package hfile

import (
	"errors"
	"fmt"
	"os"
)

// Common errors.
var (
	ErrNotFound    = errors.New("object not found")
	ErrNotDataset  = errors.New("object is not a dataset")
	ErrNotGroup    = errors.New("object is not a group")
	ErrClosed      = errors.New("file is closed")
	ErrNotWritable = errors.New("file is not writable")
	ErrUnflushed   = errors.New("object is not readable until the file is closed")
)

// File is an open container file.
type File struct {
	path     string
	f        *os.File
	cfg      Config
	rd       *reader
	sb       *superblock
	root     *Group
	writable bool
	wr       *writer
	alloc    *allocator
	closed   bool
}

// Open opens a container file for reading.
func Open(path string) (*File, error) {
	osf, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}

	sb, err := readSuperblock(osf)
	if err != nil {
		osf.Close()
		return nil, fmt.Errorf("reading superblock: %w", err)
	}

	f := &File{
		path: path,
		f:    osf,
		cfg:  sb.Cfg,
		rd:   newReader(osf, sb.Cfg),
		sb:   sb,
	}

	hdr, err := readHeader(f.rd, sb.RootAddr)
	if err != nil {
		osf.Close()
		return nil, fmt.Errorf("opening root group: %w", err)
	}
	if !hdr.isGroup() {
		osf.Close()
		return nil, fmt.Errorf("root object: %w", ErrNotGroup)
	}
	f.root = &Group{file: f, path: "/", hdr: hdr}
	return f, nil
}

// Create creates a new container file. Dataset payloads are written as
// datasets are created; object headers and the superblock are written when
// the file is closed.
func Create(path string) (*File, error) {
	osf, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}

	sb := newSuperblock()
	f := &File{
		path:     path,
		f:        osf,
		cfg:      sb.Cfg,
		sb:       sb,
		writable: true,
		wr:       newWriter(osf, sb.Cfg),
		alloc:    newAllocator(uint64(sb.size())),
	}
	f.root = &Group{file: f, path: "/", pending: true}
	return f, nil
}

// Path returns the file path.
func (f *File) Path() string { return f.path }

// Root returns the root group.
func (f *File) Root() *Group { return f.root }

// IsWritable reports whether the file was opened for writing.
func (f *File) IsWritable() bool { return f.writable }

// Close finalizes a writable file (flushing all metadata) and closes the
// underlying descriptor.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	if f.writable {
		if err := f.flushMetadata(); err != nil {
			f.f.Close()
			return err
		}
		if err := f.f.Sync(); err != nil {
			f.f.Close()
			return err
		}
	}
	return f.f.Close()
}

// flushMetadata writes object headers bottom-up, then the superblock.
func (f *File) flushMetadata() error {
	rootAddr, err := f.root.writeHeader()
	if err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	f.sb.RootAddr = rootAddr
	f.sb.EOFAddr = f.alloc.EOF()
	if err := f.sb.write(f.wr.At(0)); err != nil {
		return fmt.Errorf("writing superblock: %w", err)
	}
	return nil
}

// Group is a named collection of datasets and sub-groups.
type Group struct {
	file *File
	path string

	// Read mode
	hdr *header

	// Write mode: children accumulate until Close flushes the tree.
	pending  bool
	children []pendingChild
	attrs    []*attributeMsg
}

// pendingChild is a not-yet-flushed group or dataset, in creation order.
type pendingChild struct {
	name    string
	group   *Group
	dataset *Dataset
}

// Path returns the group's absolute path.
func (g *Group) Path() string { return g.path }

func (g *Group) childPath(name string) string {
	if g.path == "/" {
		return "/" + name
	}
	return g.path + "/" + name
}

// CreateGroup creates a sub-group in a writable file.
func (g *Group) CreateGroup(name string) (*Group, error) {
	if !g.file.writable {
		return nil, ErrNotWritable
	}
	if name == "" {
		return nil, fmt.Errorf("group name cannot be empty")
	}
	child := &Group{file: g.file, path: g.childPath(name), pending: true}
	g.children = append(g.children, pendingChild{name: name, group: child})
	return child, nil
}

// OpenGroup opens a child group by name.
func (g *Group) OpenGroup(name string) (*Group, error) {
	addr, err := g.childAddr(name)
	if err != nil {
		return nil, err
	}
	hdr, err := readHeader(g.file.rd, addr)
	if err != nil {
		return nil, fmt.Errorf("opening group %q: %w", name, err)
	}
	if !hdr.isGroup() {
		return nil, fmt.Errorf("%q: %w", name, ErrNotGroup)
	}
	return &Group{file: g.file, path: g.childPath(name), hdr: hdr}, nil
}

// OpenDataset opens a child dataset by name.
func (g *Group) OpenDataset(name string) (*Dataset, error) {
	addr, err := g.childAddr(name)
	if err != nil {
		return nil, err
	}
	hdr, err := readHeader(g.file.rd, addr)
	if err != nil {
		return nil, fmt.Errorf("opening dataset %q: %w", name, err)
	}
	if hdr.isGroup() {
		return nil, fmt.Errorf("%q: %w", name, ErrNotDataset)
	}
	return newDataset(g.file, g.childPath(name), hdr)
}

// Children returns the names of the group's children.
func (g *Group) Children() []string {
	if g.pending {
		out := make([]string, len(g.children))
		for i, c := range g.children {
			out[i] = c.name
		}
		return out
	}
	var out []string
	for _, l := range g.hdr.links() {
		out = append(out, l.Name)
	}
	return out
}

func (g *Group) childAddr(name string) (uint64, error) {
	if g.hdr == nil {
		return 0, ErrUnflushed
	}
	for _, l := range g.hdr.links() {
		if l.Name == name {
			return l.Addr, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", name, ErrNotFound)
}

// PutAttr records an attribute on the group. Write mode only; attributes
// land in the object header when the file is closed.
func (g *Group) PutAttr(name string, value any) error {
	if !g.file.writable {
		return ErrNotWritable
	}
	msg, err := encodeAttrValue(name, value)
	if err != nil {
		return err
	}
	g.attrs = append(g.attrs, msg)
	return nil
}

// Attr returns a group attribute by name, or nil.
func (g *Group) Attr(name string) *Attribute {
	if g.hdr == nil {
		return nil
	}
	return findAttr(g.hdr, name)
}

// writeHeader flushes a pending group: children first (their headers must
// exist before the links that reference them), then this group's header.
func (g *Group) writeHeader() (uint64, error) {
	var msgs []message
	msgs = append(msgs, &groupInfoMsg{})

	for _, c := range g.children {
		var addr uint64
		var err error
		if c.group != nil {
			addr, err = c.group.writeHeader()
		} else {
			addr, err = c.dataset.writeHeader()
		}
		if err != nil {
			return 0, err
		}
		msgs = append(msgs, &linkMsg{Name: c.name, Addr: addr})
	}
	for _, a := range g.attrs {
		msgs = append(msgs, a)
	}

	block, err := encodeHeader(g.file.cfg, msgs)
	if err != nil {
		return 0, fmt.Errorf("encoding group %s: %w", g.path, err)
	}
	addr := g.file.alloc.Alloc(uint64(len(block)))
	if err := g.file.wr.At(int64(addr)).WriteBytes(block); err != nil {
		return 0, fmt.Errorf("writing group %s: %w", g.path, err)
	}
	return addr, nil
}
