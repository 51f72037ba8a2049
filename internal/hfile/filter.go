package hfile

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// filter transforms chunk payloads. Encode order is declaration order;
// decode applies the filters in reverse.
type filter interface {
	ID() uint16
	Encode(input []byte) ([]byte, error)
	Decode(input []byte) ([]byte, error)
}

// deflateFilter is zlib-format DEFLATE compression.
// Client data: [0] = compression level (0-9).
type deflateFilter struct {
	level int
}

func newDeflate(clientData []uint32) *deflateFilter {
	level := zlib.DefaultCompression
	if len(clientData) > 0 {
		level = int(clientData[0])
	}
	return &deflateFilter{level: level}
}

func (f *deflateFilter) ID() uint16 { return FilterDeflate }

func (f *deflateFilter) Encode(input []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, f.level)
	if err != nil {
		return nil, fmt.Errorf("zlib writer: %w", err)
	}
	if _, err := zw.Write(input); err != nil {
		zw.Close()
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zlib flush: %w", err)
	}
	return buf.Bytes(), nil
}

func (f *deflateFilter) Decode(input []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("zlib decompress: %w", err)
	}
	return out, nil
}

// shuffleFilter groups the i-th byte of every element together, which helps
// DEFLATE on slowly varying numeric data.
// Client data: [0] = element size in bytes.
type shuffleFilter struct {
	elemSize int
}

func newShuffle(clientData []uint32) *shuffleFilter {
	size := 1
	if len(clientData) > 0 && clientData[0] > 0 {
		size = int(clientData[0])
	}
	return &shuffleFilter{elemSize: size}
}

func (f *shuffleFilter) ID() uint16 { return FilterShuffle }

func (f *shuffleFilter) Encode(input []byte) ([]byte, error) {
	return f.transpose(input, false), nil
}

func (f *shuffleFilter) Decode(input []byte) ([]byte, error) {
	return f.transpose(input, true), nil
}

func (f *shuffleFilter) transpose(input []byte, inverse bool) []byte {
	size := f.elemSize
	if size <= 1 || len(input)%size != 0 {
		// Misaligned payloads pass through untransposed.
		out := make([]byte, len(input))
		copy(out, input)
		return out
	}
	n := len(input) / size
	out := make([]byte, len(input))
	for i := 0; i < n; i++ {
		for b := 0; b < size; b++ {
			if inverse {
				out[i*size+b] = input[b*n+i]
			} else {
				out[b*n+i] = input[i*size+b]
			}
		}
	}
	return out
}

// pipeline is an ordered list of filters built from a filtersMsg.
type pipeline struct {
	filters []filter
}

func newPipeline(msg *filtersMsg) (*pipeline, error) {
	p := &pipeline{}
	if msg == nil {
		return p, nil
	}
	for _, info := range msg.Filters {
		switch info.ID {
		case FilterDeflate:
			p.filters = append(p.filters, newDeflate(info.ClientData))
		case FilterShuffle:
			p.filters = append(p.filters, newShuffle(info.ClientData))
		default:
			return nil, fmt.Errorf("unsupported filter ID: %d", info.ID)
		}
	}
	return p, nil
}

func (p *pipeline) Empty() bool { return len(p.filters) == 0 }

// Encode applies the filters in declaration order.
func (p *pipeline) Encode(input []byte) ([]byte, error) {
	data := input
	for _, f := range p.filters {
		var err error
		if data, err = f.Encode(data); err != nil {
			return nil, fmt.Errorf("filter %d encode: %w", f.ID(), err)
		}
	}
	return data, nil
}

// Decode applies the filters in reverse order.
func (p *pipeline) Decode(input []byte) ([]byte, error) {
	data := input
	for i := len(p.filters) - 1; i >= 0; i-- {
		var err error
		if data, err = p.filters[i].Decode(data); err != nil {
			return nil, fmt.Errorf("filter %d decode: %w", p.filters[i].ID(), err)
		}
	}
	return data, nil
}
