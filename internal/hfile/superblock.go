package hfile

import (
	"errors"
	"fmt"
	"io"
)

// File signature: 0x89 H S F \r \n 0x1a \n. The high-bit byte and mixed
// line endings expose text-mode corruption on the first read.
var signature = []byte{0x89, 'H', 'S', 'F', '\r', '\n', 0x1a, '\n'}

const superblockVersion = 1

var (
	// ErrNotHFile is returned when the file signature is missing.
	ErrNotHFile = errors.New("not a grid container file")
	// ErrInvalidSuperblock is returned when the superblock fails validation.
	ErrInvalidSuperblock = errors.New("invalid superblock")
)

/*
Superblock layout:

	Offset  Size  Description
	0       8     Signature
	8       1     Version
	9       1     Size of offsets (O)
	10      1     Size of lengths
	11      1     Flags (reserved)
	12      O     End-of-file address
	12+O    O     Root group object header address
	12+2O   4     Checksum (lookup3) over the preceding bytes
*/
type superblock struct {
	Version  uint8
	Cfg      Config
	EOFAddr  uint64
	RootAddr uint64
}

func newSuperblock() *superblock {
	return &superblock{Version: superblockVersion, Cfg: DefaultConfig()}
}

// size returns the encoded size of the superblock in bytes.
func (sb *superblock) size() int {
	return 12 + 2*sb.Cfg.OffsetSize + 4
}

func (sb *superblock) write(w *writer) error {
	mem := &memWriterAt{}
	bw := newWriter(mem, sb.Cfg)

	if err := bw.WriteBytes(signature); err != nil {
		return err
	}
	if err := bw.WriteUint8(sb.Version); err != nil {
		return err
	}
	if err := bw.WriteUint8(uint8(sb.Cfg.OffsetSize)); err != nil {
		return err
	}
	if err := bw.WriteUint8(uint8(sb.Cfg.LengthSize)); err != nil {
		return err
	}
	if err := bw.WriteUint8(0); err != nil { // flags
		return err
	}
	if err := bw.WriteOffset(sb.EOFAddr); err != nil {
		return err
	}
	if err := bw.WriteOffset(sb.RootAddr); err != nil {
		return err
	}
	if err := bw.WriteUint32(checksum(mem.buf[:bw.Pos()])); err != nil {
		return err
	}
	return w.WriteBytes(mem.buf[:bw.Pos()])
}

func readSuperblock(r io.ReaderAt) (*superblock, error) {
	head := make([]byte, 12)
	if _, err := r.ReadAt(head, 0); err != nil {
		if err == io.EOF {
			return nil, ErrNotHFile
		}
		return nil, err
	}
	if string(head[:8]) != string(signature) {
		return nil, ErrNotHFile
	}

	sb := &superblock{
		Version: head[8],
		Cfg:     Config{OffsetSize: int(head[9]), LengthSize: int(head[10])},
	}
	if sb.Version != superblockVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidSuperblock, sb.Version)
	}
	if err := sb.Cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSuperblock, err)
	}

	body := make([]byte, 2*sb.Cfg.OffsetSize+4)
	if _, err := r.ReadAt(body, 12); err != nil {
		return nil, fmt.Errorf("%w: truncated", ErrInvalidSuperblock)
	}
	o := sb.Cfg.OffsetSize
	sb.EOFAddr = decodeUint(body[:o], o)
	sb.RootAddr = decodeUint(body[o:2*o], o)

	stored := decodeUint(body[2*o:], 4)
	all := append(head, body[:2*o]...)
	if uint32(stored) != checksum(all) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidSuperblock)
	}
	return sb, nil
}
