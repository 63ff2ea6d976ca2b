package guest

import (
	"reflect"

	"github.com/wippyai/fp-bridge/abi"
	"github.com/wippyai/fp-bridge/codec"
	"github.com/wippyai/fp-bridge/errors"
)

// ExportValue serializes v into a buffer of exactly its encoded length and
// returns it. Ownership of the buffer passes to the receiver.
func ExportValue(rt *Runtime, v any) (abi.FatPtr, error) {
	data, err := codec.Serialize(v)
	if err != nil {
		return 0, err
	}
	return ExportRaw(rt, data), nil
}

// ExportRaw copies data into a new buffer. A buffer that does not fit a
// FatPtr length is a protocol violation.
func ExportRaw(rt *Runtime, data []byte) abi.FatPtr {
	if err := abi.CheckBufferLen(len(data)); err != nil {
		panic(err)
	}
	fp := rt.heap.Malloc(uint32(len(data)))
	copy(rt.heap.Bytes(fp.Ptr(), fp.Len()), data)
	return fp
}

// ImportRaw copies the buffer at fp out of the heap and frees it. The zero
// FatPtr is an empty result and yields no bytes.
func ImportRaw(rt *Runtime, fp abi.FatPtr) ([]byte, error) {
	if fp.IsZero() {
		return nil, nil
	}
	if err := fp.Validate(); err != nil {
		return nil, err
	}
	view := rt.heap.Bytes(fp.Ptr(), fp.Len())
	data := make([]byte, len(view))
	copy(data, view)
	rt.heap.Free(fp)
	return data, nil
}

// ImportValue takes ownership of the buffer at fp and decodes it into a T.
// The zero FatPtr decodes to the unit value when T carries no data and is
// an empty-result error otherwise.
func ImportValue[T any](rt *Runtime, fp abi.FatPtr) (T, error) {
	var out T
	if fp.IsZero() {
		if codec.IsUnit(reflect.TypeFor[T]()) {
			return out, nil
		}
		return out, errors.EmptyResult(errors.PhaseDecode, reflect.TypeFor[T]().String())
	}
	data, err := ImportRaw(rt, fp)
	if err != nil {
		return out, err
	}
	err = codec.Deserialize(data, &out)
	return out, err
}

func isUnitValue[T any](v T) bool {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Interface {
		rv := reflect.ValueOf(v)
		if !rv.IsValid() {
			return true
		}
		t = rv.Type()
	}
	return codec.IsUnit(t)
}
