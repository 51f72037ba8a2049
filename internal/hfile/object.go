package hfile

import (
	"errors"
	"fmt"
)

// Object header block: "OBJH" magic, version, flags, message count, the
// encoded messages, and a trailing lookup3 checksum over everything before
// it. Headers are immutable once written; replacing an object means writing
// a new header and relinking.

var objectMagic = []byte{'O', 'B', 'J', 'H'}

const objectVersion = 1

var errBadObjectHeader = errors.New("invalid object header")

// header is a decoded object header.
type header struct {
	addr     uint64
	messages []message
}

// encodeHeader serializes the messages into a checksummed header block.
func encodeHeader(cfg Config, msgs []message) ([]byte, error) {
	mem := &memWriterAt{}
	w := newWriter(mem, cfg)

	if err := w.WriteBytes(objectMagic); err != nil {
		return nil, err
	}
	if err := w.WriteUint8(objectVersion); err != nil {
		return nil, err
	}
	if err := w.WriteUint8(0); err != nil { // flags, reserved
		return nil, err
	}
	if err := w.WriteUint16(uint16(len(msgs))); err != nil {
		return nil, err
	}

	for _, m := range msgs {
		body := &memWriterAt{}
		bw := newWriter(body, cfg)
		if err := m.encodeBody(bw); err != nil {
			return nil, fmt.Errorf("encoding message type %d: %w", m.msgType(), err)
		}
		if len(body.buf) > 0xFFFF {
			return nil, errMessageTooLarge
		}
		if err := w.WriteUint8(m.msgType()); err != nil {
			return nil, err
		}
		if err := w.WriteUint8(0); err != nil { // message flags, reserved
			return nil, err
		}
		if err := w.WriteUint16(uint16(len(body.buf))); err != nil {
			return nil, err
		}
		if err := w.WriteBytes(body.buf); err != nil {
			return nil, err
		}
	}

	sum := checksum(mem.buf[:w.Pos()])
	if err := w.WriteUint32(sum); err != nil {
		return nil, err
	}
	return mem.buf[:w.Pos()], nil
}

// readHeader reads and verifies an object header at the given address.
func readHeader(r *reader, addr uint64) (*header, error) {
	hr := r.At(int64(addr))

	magic, err := hr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("reading object header at 0x%x: %w", addr, err)
	}
	if string(magic) != string(objectMagic) {
		return nil, errBadObjectHeader
	}
	version, err := hr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != objectVersion {
		return nil, fmt.Errorf("unsupported object header version: %d", version)
	}
	if _, err := hr.ReadUint8(); err != nil { // flags
		return nil, err
	}
	count, err := hr.ReadUint16()
	if err != nil {
		return nil, err
	}

	h := &header{addr: addr, messages: make([]message, 0, count)}
	for i := 0; i < int(count); i++ {
		typ, err := hr.ReadUint8()
		if err != nil {
			return nil, err
		}
		if _, err := hr.ReadUint8(); err != nil { // message flags
			return nil, err
		}
		size, err := hr.ReadUint16()
		if err != nil {
			return nil, err
		}
		bodyStart := hr.Pos()
		m, err := decodeMessage(typ, hr)
		if err != nil {
			return nil, fmt.Errorf("decoding message %d of header at 0x%x: %w", i, addr, err)
		}
		if hr.Pos()-bodyStart != int64(size) {
			return nil, fmt.Errorf("message %d size mismatch: declared %d, consumed %d",
				i, size, hr.Pos()-bodyStart)
		}
		h.messages = append(h.messages, m)
	}

	// Verify trailing checksum over the header bytes.
	headerLen := int(hr.Pos() - int64(addr))
	raw, err := r.At(int64(addr)).ReadBytes(headerLen)
	if err != nil {
		return nil, err
	}
	stored, err := hr.ReadUint32()
	if err != nil {
		return nil, err
	}
	if stored != checksum(raw) {
		return nil, fmt.Errorf("object header at 0x%x: %w: checksum mismatch", addr, errBadObjectHeader)
	}

	return h, nil
}

func (h *header) dataspace() *dataspaceMsg {
	for _, m := range h.messages {
		if ds, ok := m.(*dataspaceMsg); ok {
			return ds
		}
	}
	return nil
}

func (h *header) datatype() *datatypeMsg {
	for _, m := range h.messages {
		if dt, ok := m.(*datatypeMsg); ok {
			return dt
		}
	}
	return nil
}

func (h *header) layout() *layoutMsg {
	for _, m := range h.messages {
		if l, ok := m.(*layoutMsg); ok {
			return l
		}
	}
	return nil
}

func (h *header) filters() *filtersMsg {
	for _, m := range h.messages {
		if f, ok := m.(*filtersMsg); ok {
			return f
		}
	}
	return nil
}

func (h *header) isGroup() bool {
	for _, m := range h.messages {
		if _, ok := m.(*groupInfoMsg); ok {
			return true
		}
	}
	return false
}

func (h *header) links() []*linkMsg {
	var out []*linkMsg
	for _, m := range h.messages {
		if l, ok := m.(*linkMsg); ok {
			out = append(out, l)
		}
	}
	return out
}

func (h *header) attributes() []*attributeMsg {
	var out []*attributeMsg
	for _, m := range h.messages {
		if a, ok := m.(*attributeMsg); ok {
			out = append(out, a)
		}
	}
	return out
}
