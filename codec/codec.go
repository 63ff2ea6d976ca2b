package codec

import (
	"bytes"
	"reflect"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wippyai/fp-bridge/errors"
)

// Raw is a payload that is already encoded. It crosses the boundary as is.
type Raw []byte

// Unit is the value of functions without a result.
type Unit = struct{}

const (
	poolMaxBuf  = 64 << 10 // buffers above this size are not pooled
	poolInitBuf = 256
)

type encoderState struct {
	buf bytes.Buffer
	enc *msgpack.Encoder
}

var encoderPool = sync.Pool{
	New: func() any {
		s := &encoderState{}
		s.buf.Grow(poolInitBuf)
		s.enc = msgpack.NewEncoder(&s.buf)
		s.enc.SetCustomStructTag("json")
		s.enc.SetSortMapKeys(true)
		s.enc.UseCompactInts(true)
		return s
	},
}

// Serialize encodes v as a MessagePack map-based document. Struct fields are
// keyed by name (msgpack tag, then json tag, then Go field name).
// A Raw value is returned unchanged.
func Serialize(v any) ([]byte, error) {
	if raw, ok := v.(Raw); ok {
		return raw, nil
	}

	s := encoderPool.Get().(*encoderState)
	defer func() {
		if s.buf.Cap() <= poolMaxBuf {
			s.buf.Reset()
			encoderPool.Put(s)
		}
	}()

	if err := s.enc.Encode(v); err != nil {
		goType := "nil"
		if v != nil {
			goType = reflect.TypeOf(v).String()
		}
		return nil, errors.New(errors.PhaseEncode, errors.KindInvalidData).
			GoType(goType).
			Cause(err).
			Build()
	}

	out := make([]byte, s.buf.Len())
	copy(out, s.buf.Bytes())
	return out, nil
}

// Deserialize decodes data into out, which must be a non-nil pointer.
// Failures are *errors.Error values carrying the field path.
func Deserialize(data []byte, out any) error {
	return defaultDecoder.Decode(data, out)
}

// DeserializeValue decodes data into a new T.
func DeserializeValue[T any](data []byte) (T, error) {
	var v T
	err := defaultDecoder.Decode(data, &v)
	return v, err
}

// IsUnit reports whether t carries no data.
func IsUnit(t reflect.Type) bool {
	return t == nil || (t.Kind() == reflect.Struct && t.NumField() == 0)
}
