package hfile

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrInvalidSize is returned when an invalid offset or length size is specified.
var ErrInvalidSize = errors.New("invalid offset/length size: must be 2, 4, or 8")

// Config holds the variable-width field sizes, derived from the superblock
// when reading and fixed by the write profile when creating.
type Config struct {
	OffsetSize int // 2, 4, or 8 bytes
	LengthSize int // 2, 4, or 8 bytes
}

// DefaultConfig returns the configuration used by the write profile:
// little-endian with 8-byte offsets and lengths.
func DefaultConfig() Config {
	return Config{OffsetSize: 8, LengthSize: 8}
}

func (c Config) validate() error {
	ok := func(n int) bool { return n == 2 || n == 4 || n == 8 }
	if !ok(c.OffsetSize) || !ok(c.LengthSize) {
		return ErrInvalidSize
	}
	return nil
}

// reader reads little-endian binary data with variable-width offset and
// length fields. Position is tracked per reader; At returns an independent
// reader over the same io.ReaderAt, so concurrent readers never share state.
type reader struct {
	r   io.ReaderAt
	cfg Config
	pos int64
}

func newReader(r io.ReaderAt, cfg Config) *reader {
	return &reader{r: r, cfg: cfg}
}

// At returns a new reader positioned at the given offset.
func (r *reader) At(offset int64) *reader {
	return &reader{r: r.r, cfg: r.cfg, pos: offset}
}

func (r *reader) Pos() int64 { return r.pos }

func (r *reader) ReadBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := r.r.ReadAt(buf, r.pos); err != nil {
		return nil, err
	}
	r.pos += int64(n)
	return buf, nil
}

func (r *reader) ReadUint8() (uint8, error) {
	buf, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (r *reader) ReadUint16() (uint16, error) {
	buf, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

func (r *reader) ReadUint32() (uint32, error) {
	buf, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func (r *reader) ReadUint64() (uint64, error) {
	buf, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// ReadUintN reads an unsigned integer of n bytes.
func (r *reader) ReadUintN(n int) (uint64, error) {
	buf, err := r.ReadBytes(n)
	if err != nil {
		return 0, err
	}
	return decodeUint(buf, n), nil
}

// ReadOffset reads a file offset using the configured offset size.
func (r *reader) ReadOffset() (uint64, error) {
	return r.ReadUintN(r.cfg.OffsetSize)
}

// ReadLength reads a length using the configured length size.
func (r *reader) ReadLength() (uint64, error) {
	return r.ReadUintN(r.cfg.LengthSize)
}

// ReadString reads a uint16 length prefix followed by that many bytes.
func (r *reader) ReadString() (string, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return "", err
	}
	buf, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// writer writes little-endian binary data with variable-width offset and
// length fields.
type writer struct {
	w   io.WriterAt
	cfg Config
	pos int64
}

func newWriter(w io.WriterAt, cfg Config) *writer {
	return &writer{w: w, cfg: cfg}
}

// At returns a new writer positioned at the given offset.
func (w *writer) At(offset int64) *writer {
	return &writer{w: w.w, cfg: w.cfg, pos: offset}
}

func (w *writer) Pos() int64 { return w.pos }

func (w *writer) WriteBytes(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	n, err := w.w.WriteAt(data, w.pos)
	w.pos += int64(n)
	return err
}

func (w *writer) WriteUint8(v uint8) error {
	return w.WriteBytes([]byte{v})
}

func (w *writer) WriteUint16(v uint16) error {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, v)
	return w.WriteBytes(buf)
}

func (w *writer) WriteUint32(v uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return w.WriteBytes(buf)
}

func (w *writer) WriteUint64(v uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return w.WriteBytes(buf)
}

func (w *writer) WriteUintN(v uint64, n int) error {
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	return w.WriteBytes(buf)
}

func (w *writer) WriteOffset(v uint64) error {
	return w.WriteUintN(v, w.cfg.OffsetSize)
}

func (w *writer) WriteLength(v uint64) error {
	return w.WriteUintN(v, w.cfg.LengthSize)
}

// WriteString writes a uint16 length prefix followed by the string bytes.
func (w *writer) WriteString(s string) error {
	if err := w.WriteUint16(uint16(len(s))); err != nil {
		return err
	}
	return w.WriteBytes([]byte(s))
}

// decodeUint decodes a variable-width little-endian unsigned integer.
func decodeUint(buf []byte, size int) uint64 {
	switch size {
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf))
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf))
	case 8:
		return binary.LittleEndian.Uint64(buf)
	default:
		var v uint64
		for i := size - 1; i >= 0; i-- {
			v = v<<8 | uint64(buf[i])
		}
		return v
	}
}

// memWriterAt is an in-memory io.WriterAt used to buffer metadata blocks
// before checksumming.
type memWriterAt struct {
	buf []byte
}

func (m *memWriterAt) WriteAt(p []byte, off int64) (int, error) {
	if int(off)+len(p) > len(m.buf) {
		grown := make([]byte, int(off)+len(p))
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[off:], p)
	return len(p), nil
}
