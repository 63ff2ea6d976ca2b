package host

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"

	fpbridge "github.com/wippyai/fp-bridge"
	"github.com/wippyai/fp-bridge/errors"
)

var (
	_ fpbridge.Memory      = (*Memory)(nil)
	_ fpbridge.MemorySizer = (*Memory)(nil)
)

// Memory is a view of an instance's linear memory. The guest memory is
// looked up on every access since it may be replaced when it grows.
type Memory struct {
	mod api.Module
}

func (m *Memory) mem() (api.Memory, error) {
	if m == nil || m.mod == nil {
		return nil, errors.NotInitialized(errors.PhaseRuntime, "memory")
	}
	mem := m.mod.Memory()
	if mem == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "memory", "guest memory export")
	}
	return mem, nil
}

// Read copies length bytes at offset out of guest memory.
func (m *Memory) Read(offset, length uint32) ([]byte, error) {
	view, err := m.View(offset, length)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}

// View returns length bytes at offset without copying. The slice aliases
// guest memory and is only valid until the next guest call.
func (m *Memory) View(offset, length uint32) ([]byte, error) {
	mem, err := m.mem()
	if err != nil {
		return nil, err
	}
	data, ok := mem.Read(offset, length)
	if !ok {
		return nil, outOfBounds("read", offset, uint64(length), mem.Size())
	}
	return data, nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	mem, err := m.mem()
	if err != nil {
		return err
	}
	if !mem.Write(offset, data) {
		return outOfBounds("write", offset, uint64(len(data)), mem.Size())
	}
	return nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	mem, err := m.mem()
	if err != nil {
		return 0, err
	}
	v, ok := mem.ReadUint32Le(offset)
	if !ok {
		return 0, outOfBounds("read", offset, 4, mem.Size())
	}
	return v, nil
}

func (m *Memory) WriteU32(offset, value uint32) error {
	mem, err := m.mem()
	if err != nil {
		return err
	}
	if !mem.WriteUint32Le(offset, value) {
		return outOfBounds("write", offset, 4, mem.Size())
	}
	return nil
}

// Size returns the current memory size in bytes, 0 when the guest has no
// memory.
func (m *Memory) Size() uint32 {
	mem, err := m.mem()
	if err != nil {
		return 0
	}
	return mem.Size()
}

func outOfBounds(op string, offset uint32, length uint64, size uint32) *errors.Error {
	e := errors.OutOfBounds(errors.PhaseRuntime, nil, int(uint64(offset)+length), int(size))
	e.Detail = fmt.Sprintf("%s out of bounds: offset=%d, length=%d", op, offset, length)
	return e
}
