package hfile

import (
	"errors"
	"fmt"
)

// Message types carried in object headers.
const (
	msgDataspace uint8 = 1
	msgDatatype  uint8 = 2
	msgLayout    uint8 = 3
	msgFilters   uint8 = 4
	msgAttribute uint8 = 5
	msgLink      uint8 = 6
	msgGroupInfo uint8 = 7
)

// Layout classes.
const (
	layoutContiguous uint8 = 1
	layoutChunked    uint8 = 2
)

// Filter identifiers.
const (
	FilterDeflate uint16 = 1
	FilterShuffle uint16 = 2
)

var errMessageTooLarge = errors.New("header message exceeds 64 KiB")

// message is a typed object-header message.
type message interface {
	msgType() uint8
	encodeBody(w *writer) error
}

// dataspaceMsg describes dataset or attribute dimensions. A nil Dims slice
// is a scalar dataspace.
type dataspaceMsg struct {
	Dims []uint64
}

func (m *dataspaceMsg) msgType() uint8 { return msgDataspace }

func (m *dataspaceMsg) numElements() uint64 {
	n := uint64(1)
	for _, d := range m.Dims {
		n *= d
	}
	return n
}

func (m *dataspaceMsg) encodeBody(w *writer) error {
	if err := w.WriteUint8(uint8(len(m.Dims))); err != nil {
		return err
	}
	for _, d := range m.Dims {
		if err := w.WriteLength(d); err != nil {
			return err
		}
	}
	return nil
}

func decodeDataspace(r *reader) (*dataspaceMsg, error) {
	rank, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	m := &dataspaceMsg{}
	if rank > 0 {
		m.Dims = make([]uint64, rank)
		for i := range m.Dims {
			if m.Dims[i], err = r.ReadLength(); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// datatypeMsg wraps a Datatype as a header message.
type datatypeMsg struct {
	Type Datatype
}

func (m *datatypeMsg) msgType() uint8            { return msgDatatype }
func (m *datatypeMsg) encodeBody(w *writer) error { return m.Type.encode(w) }

// layoutMsg records where and how the dataset payload is stored.
type layoutMsg struct {
	Class uint8

	// Contiguous
	DataAddr uint64
	DataSize uint64

	// Chunked: the payload is split into element-aligned byte blocks of
	// ChunkBytes each (last block short), each run through the filter
	// pipeline and indexed by a flat chunk index block at IndexAddr.
	ChunkBytes uint64
	NumChunks  uint32
	IndexAddr  uint64
}

func (m *layoutMsg) msgType() uint8 { return msgLayout }

func (m *layoutMsg) encodeBody(w *writer) error {
	if err := w.WriteUint8(m.Class); err != nil {
		return err
	}
	switch m.Class {
	case layoutContiguous:
		if err := w.WriteOffset(m.DataAddr); err != nil {
			return err
		}
		return w.WriteLength(m.DataSize)
	case layoutChunked:
		if err := w.WriteLength(m.ChunkBytes); err != nil {
			return err
		}
		if err := w.WriteUint32(m.NumChunks); err != nil {
			return err
		}
		return w.WriteOffset(m.IndexAddr)
	default:
		return fmt.Errorf("unknown layout class: %d", m.Class)
	}
}

func decodeLayout(r *reader) (*layoutMsg, error) {
	cls, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	m := &layoutMsg{Class: cls}
	switch cls {
	case layoutContiguous:
		if m.DataAddr, err = r.ReadOffset(); err != nil {
			return nil, err
		}
		if m.DataSize, err = r.ReadLength(); err != nil {
			return nil, err
		}
	case layoutChunked:
		if m.ChunkBytes, err = r.ReadLength(); err != nil {
			return nil, err
		}
		if m.NumChunks, err = r.ReadUint32(); err != nil {
			return nil, err
		}
		if m.IndexAddr, err = r.ReadOffset(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown layout class: %d", cls)
	}
	return m, nil
}

// filterInfo describes one filter in a pipeline.
type filterInfo struct {
	ID         uint16
	ClientData []uint32
}

// filtersMsg lists the filters applied to chunked data, in encode order.
type filtersMsg struct {
	Filters []filterInfo
}

func (m *filtersMsg) msgType() uint8 { return msgFilters }

func (m *filtersMsg) encodeBody(w *writer) error {
	if err := w.WriteUint8(uint8(len(m.Filters))); err != nil {
		return err
	}
	for _, f := range m.Filters {
		if err := w.WriteUint16(f.ID); err != nil {
			return err
		}
		if err := w.WriteUint8(uint8(len(f.ClientData))); err != nil {
			return err
		}
		for _, cd := range f.ClientData {
			if err := w.WriteUint32(cd); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeFilters(r *reader) (*filtersMsg, error) {
	n, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	m := &filtersMsg{Filters: make([]filterInfo, n)}
	for i := range m.Filters {
		if m.Filters[i].ID, err = r.ReadUint16(); err != nil {
			return nil, err
		}
		cn, err := r.ReadUint8()
		if err != nil {
			return nil, err
		}
		if cn > 0 {
			m.Filters[i].ClientData = make([]uint32, cn)
			for j := range m.Filters[i].ClientData {
				if m.Filters[i].ClientData[j], err = r.ReadUint32(); err != nil {
					return nil, err
				}
			}
		}
	}
	return m, nil
}

// attributeMsg stores a small named value inline in the object header.
type attributeMsg struct {
	Name      string
	Type      Datatype
	Dataspace dataspaceMsg
	Data      []byte
}

func (m *attributeMsg) msgType() uint8 { return msgAttribute }

func (m *attributeMsg) encodeBody(w *writer) error {
	if err := w.WriteString(m.Name); err != nil {
		return err
	}
	if err := m.Type.encode(w); err != nil {
		return err
	}
	if err := m.Dataspace.encodeBody(w); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(len(m.Data))); err != nil {
		return err
	}
	return w.WriteBytes(m.Data)
}

func decodeAttribute(r *reader) (*attributeMsg, error) {
	m := &attributeMsg{}
	var err error
	if m.Name, err = r.ReadString(); err != nil {
		return nil, err
	}
	if m.Type, err = decodeDatatype(r); err != nil {
		return nil, err
	}
	ds, err := decodeDataspace(r)
	if err != nil {
		return nil, err
	}
	m.Dataspace = *ds
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if m.Data, err = r.ReadBytes(int(n)); err != nil {
		return nil, err
	}
	return m, nil
}

// linkMsg is a hard link from a group to a child object header.
type linkMsg struct {
	Name string
	Addr uint64
}

func (m *linkMsg) msgType() uint8 { return msgLink }

func (m *linkMsg) encodeBody(w *writer) error {
	if err := w.WriteString(m.Name); err != nil {
		return err
	}
	return w.WriteOffset(m.Addr)
}

func decodeLink(r *reader) (*linkMsg, error) {
	m := &linkMsg{}
	var err error
	if m.Name, err = r.ReadString(); err != nil {
		return nil, err
	}
	if m.Addr, err = r.ReadOffset(); err != nil {
		return nil, err
	}
	return m, nil
}

// groupInfoMsg marks an object header as a group.
type groupInfoMsg struct{}

func (m *groupInfoMsg) msgType() uint8             { return msgGroupInfo }
func (m *groupInfoMsg) encodeBody(w *writer) error { return w.WriteUint16(0) }

func decodeGroupInfo(r *reader) (*groupInfoMsg, error) {
	if _, err := r.ReadUint16(); err != nil {
		return nil, err
	}
	return &groupInfoMsg{}, nil
}

// decodeMessage dispatches on the message type byte.
func decodeMessage(typ uint8, r *reader) (message, error) {
	switch typ {
	case msgDataspace:
		return decodeDataspace(r)
	case msgDatatype:
		dt, err := decodeDatatype(r)
		if err != nil {
			return nil, err
		}
		return &datatypeMsg{Type: dt}, nil
	case msgLayout:
		return decodeLayout(r)
	case msgFilters:
		return decodeFilters(r)
	case msgAttribute:
		return decodeAttribute(r)
	case msgLink:
		return decodeLink(r)
	case msgGroupInfo:
		return decodeGroupInfo(r)
	default:
		return nil, fmt.Errorf("unknown message type: %d", typ)
	}
}
