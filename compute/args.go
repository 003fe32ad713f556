package compute

import (
	"github.com/kbiElude/Emerald-sub008/types"
	"github.com/pkg/errors"
)

// HostBuffer is implemented by buffers whose storage is directly
// addressable from host kernels.
type HostBuffer interface {
	Buffer
	Bytes() []byte
}

// Args is the slot-indexed argument list a host kernel is invoked with.
type Args []interface{}

func (a Args) get(slot int) (interface{}, error) {
	if slot < 0 || slot >= len(a) || a[slot] == nil {
		return nil, errors.Errorf("compute: kernel argument %d is not bound", slot)
	}
	return a[slot], nil
}

// Uint32 returns the uint32 bound to slot.
func (a Args) Uint32(slot int) (uint32, error) {
	v, err := a.get(slot)
	if err != nil {
		return 0, err
	}
	switch t := v.(type) {
	case uint32:
		return t, nil
	case int32:
		return uint32(t), nil
	}
	return 0, errors.Wrapf(ErrUnsupportedArg, "argument %d: expected uint32; got %T", slot, v)
}

// Vec4 returns the types.Vec4 bound to slot.
func (a Args) Vec4(slot int) (types.Vec4, error) {
	v, err := a.get(slot)
	if err != nil {
		return types.Vec4{}, err
	}
	vec, ok := v.(types.Vec4)
	if !ok {
		return types.Vec4{}, errors.Wrapf(ErrUnsupportedArg, "argument %d: expected Vec4; got %T", slot, v)
	}
	return vec, nil
}

// Bytes returns the host storage of the buffer bound to slot.
func (a Args) Bytes(slot int) ([]byte, error) {
	v, err := a.get(slot)
	if err != nil {
		return nil, err
	}
	buf, ok := v.(HostBuffer)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedArg, "argument %d: expected host buffer; got %T", slot, v)
	}
	return buf.Bytes(), nil
}
