package host

import (
	"context"
	"fmt"
	"reflect"

	"github.com/wippyai/fp-bridge/abi"
	"github.com/wippyai/fp-bridge/codec"
	"github.com/wippyai/fp-bridge/errors"
)

// ExportToGuest serializes v into a new guest buffer. The guest owns the
// buffer once it receives the FatPtr.
func (i *Instance) ExportToGuest(ctx context.Context, v any) (abi.FatPtr, error) {
	var fp abi.FatPtr
	err := i.guarded(ctx, func(ctx context.Context) error {
		var err error
		fp, err = i.exportValue(ctx, v)
		return err
	})
	return fp, err
}

// ExportToGuestRaw copies already serialized bytes into a new guest buffer.
func (i *Instance) ExportToGuestRaw(ctx context.Context, data []byte) (abi.FatPtr, error) {
	var fp abi.FatPtr
	err := i.guarded(ctx, func(ctx context.Context) error {
		var err error
		fp, err = i.exportRaw(ctx, data)
		return err
	})
	return fp, err
}

// ImportFromGuest decodes the guest buffer fp into out and frees it. The
// zero FatPtr decodes into unit targets and is an error for any other.
func (i *Instance) ImportFromGuest(ctx context.Context, fp abi.FatPtr, out any) error {
	return i.guarded(ctx, func(ctx context.Context) error {
		return i.importValue(ctx, fp, out)
	})
}

// ImportFromGuestRaw copies the guest buffer fp out and frees it. The zero
// FatPtr yields nil.
func (i *Instance) ImportFromGuestRaw(ctx context.Context, fp abi.FatPtr) ([]byte, error) {
	var data []byte
	err := i.guarded(ctx, func(ctx context.Context) error {
		var err error
		data, err = i.importRaw(ctx, fp)
		return err
	})
	return data, err
}

func (i *Instance) exportValue(ctx context.Context, v any) (abi.FatPtr, error) {
	data, err := codec.Serialize(v)
	if err != nil {
		return 0, err
	}
	return i.exportRaw(ctx, data)
}

func (i *Instance) exportRaw(ctx context.Context, data []byte) (abi.FatPtr, error) {
	if err := abi.CheckBufferLen(len(data)); err != nil {
		return 0, err
	}
	fp, err := i.malloc(ctx, uint32(len(data)))
	if err != nil {
		return 0, err
	}
	if err := i.memory.Write(fp.Ptr(), data); err != nil {
		_ = i.free(ctx, fp)
		return 0, err
	}
	return fp, nil
}

func (i *Instance) importRaw(ctx context.Context, fp abi.FatPtr) ([]byte, error) {
	if fp.IsZero() {
		return nil, nil
	}
	if err := fp.Validate(); err != nil {
		return nil, err
	}
	data, err := i.memory.Read(fp.Ptr(), fp.Len())
	if err != nil {
		return nil, err
	}
	if err := i.free(ctx, fp); err != nil {
		return nil, err
	}
	return data, nil
}

func (i *Instance) importValue(ctx context.Context, fp abi.FatPtr, out any) error {
	data, err := i.importRaw(ctx, fp)
	if err != nil {
		return err
	}
	return decodeInto(data, out)
}

// decodeInto decodes data into out. Nil data is the empty value.
func decodeInto(data []byte, out any) error {
	if out == nil {
		return nil
	}
	if data != nil {
		return codec.Deserialize(data, out)
	}

	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.InvalidInput(errors.PhaseDecode, fmt.Sprintf("output must be a non-nil pointer, got %T", out))
	}
	if t := rv.Elem().Type(); !codec.IsUnit(t) {
		return errors.EmptyResult(errors.PhaseDecode, t.String())
	}
	return nil
}
