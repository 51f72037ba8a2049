package hfile

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Class identifies the element class of a datatype.
type Class uint8

const (
	// ClassFixed is a fixed-point (integer) type.
	ClassFixed Class = 1
	// ClassFloat is an IEEE floating-point type.
	ClassFloat Class = 2
	// ClassCompound is a record of named, typed members at fixed offsets.
	ClassCompound Class = 3
	// ClassString is a fixed-length byte string.
	ClassString Class = 4
)

// Datatype describes the element type of a dataset or attribute. It is
// stored in the object header so the container stays self-describing.
type Datatype struct {
	Class   Class
	Size    uint32 // element size in bytes
	Signed  bool   // fixed-point only
	Members []Member
}

// Member is one field of a compound datatype.
type Member struct {
	Name   string
	Offset uint32
	Type   Datatype
}

// Common scalar datatypes of the write profile.
var (
	Float32Type = Datatype{Class: ClassFloat, Size: 4}
	Float64Type = Datatype{Class: ClassFloat, Size: 8}
	Uint16Type  = Datatype{Class: ClassFixed, Size: 2}
	Uint32Type  = Datatype{Class: ClassFixed, Size: 4}
)

// StringType returns a fixed-length string datatype of n bytes.
func StringType(n int) Datatype {
	return Datatype{Class: ClassString, Size: uint32(n)}
}

// Compound builds a packed compound datatype from the given members, laying
// them out back to back in declaration order.
func Compound(members ...Member) Datatype {
	var off uint32
	out := make([]Member, len(members))
	for i, m := range members {
		m.Offset = off
		off += m.Type.Size
		out[i] = m
	}
	return Datatype{Class: ClassCompound, Size: off, Members: out}
}

func (dt Datatype) equal(other Datatype) bool {
	if dt.Class != other.Class || dt.Size != other.Size || dt.Signed != other.Signed {
		return false
	}
	if len(dt.Members) != len(other.Members) {
		return false
	}
	for i := range dt.Members {
		a, b := dt.Members[i], other.Members[i]
		if a.Name != b.Name || a.Offset != b.Offset || !a.Type.equal(b.Type) {
			return false
		}
	}
	return true
}

func (dt Datatype) encode(w *writer) error {
	if err := w.WriteUint8(uint8(dt.Class)); err != nil {
		return err
	}
	if err := w.WriteUint32(dt.Size); err != nil {
		return err
	}
	switch dt.Class {
	case ClassFixed:
		var signed uint8
		if dt.Signed {
			signed = 1
		}
		return w.WriteUint8(signed)
	case ClassFloat, ClassString:
		return nil
	case ClassCompound:
		if err := w.WriteUint16(uint16(len(dt.Members))); err != nil {
			return err
		}
		for _, m := range dt.Members {
			if err := w.WriteString(m.Name); err != nil {
				return err
			}
			if err := w.WriteUint32(m.Offset); err != nil {
				return err
			}
			if err := m.Type.encode(w); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported datatype class: %d", dt.Class)
	}
}

func decodeDatatype(r *reader) (Datatype, error) {
	var dt Datatype
	cls, err := r.ReadUint8()
	if err != nil {
		return dt, err
	}
	dt.Class = Class(cls)
	if dt.Size, err = r.ReadUint32(); err != nil {
		return dt, err
	}
	switch dt.Class {
	case ClassFixed:
		signed, err := r.ReadUint8()
		if err != nil {
			return dt, err
		}
		dt.Signed = signed != 0
		return dt, nil
	case ClassFloat, ClassString:
		return dt, nil
	case ClassCompound:
		n, err := r.ReadUint16()
		if err != nil {
			return dt, err
		}
		dt.Members = make([]Member, n)
		for i := range dt.Members {
			if dt.Members[i].Name, err = r.ReadString(); err != nil {
				return dt, err
			}
			if dt.Members[i].Offset, err = r.ReadUint32(); err != nil {
				return dt, err
			}
			if dt.Members[i].Type, err = decodeDatatype(r); err != nil {
				return dt, err
			}
		}
		return dt, nil
	default:
		return dt, fmt.Errorf("unsupported datatype class: %d", cls)
	}
}

// Value codecs. The container holds exactly the element kinds below, so
// each gets an explicit conversion instead of a reflection-driven one.

// EncodeFloat32 packs float32 values little-endian.
func EncodeFloat32(vals []float32) []byte {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// DecodeFloat32 unpacks little-endian float32 values.
func DecodeFloat32(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("float32 payload length %d not a multiple of 4", len(raw))
	}
	vals := make([]float32, len(raw)/4)
	for i := range vals {
		vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return vals, nil
}

// EncodeFloat64 packs float64 values little-endian.
func EncodeFloat64(vals []float64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

// DecodeFloat64 unpacks little-endian float64 values.
func DecodeFloat64(raw []byte) ([]float64, error) {
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("float64 payload length %d not a multiple of 8", len(raw))
	}
	vals := make([]float64, len(raw)/8)
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return vals, nil
}

// EncodeUint32 packs uint32 values little-endian.
func EncodeUint32(vals []uint32) []byte {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[4*i:], v)
	}
	return buf
}

// DecodeUint32 unpacks little-endian uint32 values.
func DecodeUint32(raw []byte) ([]uint32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("uint32 payload length %d not a multiple of 4", len(raw))
	}
	vals := make([]uint32, len(raw)/4)
	for i := range vals {
		vals[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	return vals, nil
}
