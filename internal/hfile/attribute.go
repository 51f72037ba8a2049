package hfile

import "fmt"

// Attribute is a small named value attached to a group or dataset.
type Attribute struct {
	msg *attributeMsg
}

func findAttr(h *header, name string) *Attribute {
	for _, a := range h.attributes() {
		if a.Name == name {
			return &Attribute{msg: a}
		}
	}
	return nil
}

// Name returns the attribute name.
func (a *Attribute) Name() string { return a.msg.Name }

// Value decodes the attribute into a Go value: float32, float64, uint32,
// string, or a slice of the numeric kinds for non-scalar dataspaces.
func (a *Attribute) Value() (any, error) {
	scalar := len(a.msg.Dataspace.Dims) == 0
	switch a.msg.Type.Class {
	case ClassFloat:
		switch a.msg.Type.Size {
		case 4:
			vals, err := DecodeFloat32(a.msg.Data)
			if err != nil {
				return nil, err
			}
			if scalar {
				return vals[0], nil
			}
			return vals, nil
		case 8:
			vals, err := DecodeFloat64(a.msg.Data)
			if err != nil {
				return nil, err
			}
			if scalar {
				return vals[0], nil
			}
			return vals, nil
		}
	case ClassFixed:
		if a.msg.Type.Size == 4 && !a.msg.Type.Signed {
			vals, err := DecodeUint32(a.msg.Data)
			if err != nil {
				return nil, err
			}
			if scalar {
				return vals[0], nil
			}
			return vals, nil
		}
	case ClassString:
		return string(a.msg.Data), nil
	}
	return nil, fmt.Errorf("attribute %q: unsupported type (class %d, size %d)",
		a.msg.Name, a.msg.Type.Class, a.msg.Type.Size)
}

// Float32 decodes a scalar float32 attribute.
func (a *Attribute) Float32() (float32, error) {
	v, err := a.Value()
	if err != nil {
		return 0, err
	}
	f, ok := v.(float32)
	if !ok {
		return 0, fmt.Errorf("attribute %q is not a scalar float32", a.msg.Name)
	}
	return f, nil
}

// Float64s decodes a float64 vector attribute.
func (a *Attribute) Float64s() ([]float64, error) {
	v, err := a.Value()
	if err != nil {
		return nil, err
	}
	f, ok := v.([]float64)
	if !ok {
		return nil, fmt.Errorf("attribute %q is not a float64 vector", a.msg.Name)
	}
	return f, nil
}

// String decodes a string attribute.
func (a *Attribute) String() (string, error) {
	v, err := a.Value()
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", a.msg.Name)
	}
	return s, nil
}

// encodeAttrValue builds an attribute message from a Go value.
func encodeAttrValue(name string, value any) (*attributeMsg, error) {
	switch v := value.(type) {
	case float32:
		return &attributeMsg{Name: name, Type: Float32Type, Data: EncodeFloat32([]float32{v})}, nil
	case float64:
		return &attributeMsg{Name: name, Type: Float64Type, Data: EncodeFloat64([]float64{v})}, nil
	case uint32:
		return &attributeMsg{Name: name, Type: Uint32Type, Data: EncodeUint32([]uint32{v})}, nil
	case []float32:
		return &attributeMsg{
			Name:      name,
			Type:      Float32Type,
			Dataspace: dataspaceMsg{Dims: []uint64{uint64(len(v))}},
			Data:      EncodeFloat32(v),
		}, nil
	case []float64:
		return &attributeMsg{
			Name:      name,
			Type:      Float64Type,
			Dataspace: dataspaceMsg{Dims: []uint64{uint64(len(v))}},
			Data:      EncodeFloat64(v),
		}, nil
	case string:
		return &attributeMsg{Name: name, Type: StringType(len(v)), Data: []byte(v)}, nil
	default:
		return nil, fmt.Errorf("unsupported attribute type %T", value)
	}
}
