package wasmgen

const (
	opUnreachable = 0x00
	opIf          = 0x04
	opElse        = 0x05
	opEnd         = 0x0b
	opReturn      = 0x0f
	opCall        = 0x10
	opDrop        = 0x1a
	opLocalGet    = 0x20
	opLocalSet    = 0x21
	opLocalTee    = 0x22
	opGlobalGet   = 0x23
	opGlobalSet   = 0x24
	opI32Load     = 0x28
	opI32Store    = 0x36
	opMemorySize  = 0x3f
	opMemoryGrow  = 0x40
	opI32Const    = 0x41
	opI64Const    = 0x42
	opI32Eqz      = 0x45
	opI32Eq       = 0x46
	opI64Eqz      = 0x50
	opI32Add      = 0x6a
	opI32Sub      = 0x6b
	opI32Mul      = 0x6c
	opI32And      = 0x71
	opI64Or       = 0x84
	opI64Shl      = 0x86
	opI64ShrU     = 0x88
	opI32WrapI64  = 0xa7
	opI64ExtendU  = 0xad
	opPrefixFC    = 0xfc

	fcMemoryCopy = 10
	fcMemoryFill = 11

	blockEmpty = 0x40
)

// Code is a function body under construction. Methods append one
// instruction and return the receiver so bodies read top to bottom.
// The closing end is added by Module.Bytes.
type Code struct {
	buf []byte
}

// Body starts an empty function body.
func Body() *Code { return &Code{} }

func (c *Code) op(b ...byte) *Code {
	c.buf = append(c.buf, b...)
	return c
}

func (c *Code) idx(op byte, i uint32) *Code {
	c.buf = appendU32(append(c.buf, op), i)
	return c
}

func (c *Code) mem(op byte, align, offset uint32) *Code {
	c.buf = appendU32(appendU32(append(c.buf, op), align), offset)
	return c
}

func (c *Code) Unreachable() *Code { return c.op(opUnreachable) }
func (c *Code) Return() *Code      { return c.op(opReturn) }
func (c *Code) Drop() *Code        { return c.op(opDrop) }

// If opens a block without results; close it with End.
func (c *Code) If() *Code   { return c.op(opIf, blockEmpty) }
func (c *Code) Else() *Code { return c.op(opElse) }
func (c *Code) End() *Code  { return c.op(opEnd) }

func (c *Code) Call(fn uint32) *Code        { return c.idx(opCall, fn) }
func (c *Code) LocalGet(i uint32) *Code     { return c.idx(opLocalGet, i) }
func (c *Code) LocalSet(i uint32) *Code     { return c.idx(opLocalSet, i) }
func (c *Code) LocalTee(i uint32) *Code     { return c.idx(opLocalTee, i) }
func (c *Code) GlobalGet(i uint32) *Code    { return c.idx(opGlobalGet, i) }
func (c *Code) GlobalSet(i uint32) *Code    { return c.idx(opGlobalSet, i) }
func (c *Code) I32Load(offset uint32) *Code { return c.mem(opI32Load, 2, offset) }

// I32Store stores the value on top of the stack at address+offset.
func (c *Code) I32Store(offset uint32) *Code { return c.mem(opI32Store, 2, offset) }

func (c *Code) I32Const(v int32) *Code {
	c.buf = appendS64(append(c.buf, opI32Const), int64(v))
	return c
}

func (c *Code) I64Const(v int64) *Code {
	c.buf = appendS64(append(c.buf, opI64Const), v)
	return c
}

func (c *Code) I32Eqz() *Code        { return c.op(opI32Eqz) }
func (c *Code) I32Eq() *Code         { return c.op(opI32Eq) }
func (c *Code) I64Eqz() *Code        { return c.op(opI64Eqz) }
func (c *Code) I32Add() *Code        { return c.op(opI32Add) }
func (c *Code) I32Sub() *Code        { return c.op(opI32Sub) }
func (c *Code) I32Mul() *Code        { return c.op(opI32Mul) }
func (c *Code) I32And() *Code        { return c.op(opI32And) }
func (c *Code) I64Or() *Code         { return c.op(opI64Or) }
func (c *Code) I64Shl() *Code        { return c.op(opI64Shl) }
func (c *Code) I64ShrU() *Code       { return c.op(opI64ShrU) }
func (c *Code) I32WrapI64() *Code    { return c.op(opI32WrapI64) }
func (c *Code) I64ExtendI32U() *Code { return c.op(opI64ExtendU) }
func (c *Code) MemorySize() *Code    { return c.op(opMemorySize, 0x00) }
func (c *Code) MemoryGrow() *Code    { return c.op(opMemoryGrow, 0x00) }

// MemoryCopy copies len bytes from src to dst, popping dst, src, len.
func (c *Code) MemoryCopy() *Code {
	c.buf = append(appendU32(append(c.buf, opPrefixFC), fcMemoryCopy), 0x00, 0x00)
	return c
}

// MemoryFill fills len bytes at dst with val, popping dst, val, len.
func (c *Code) MemoryFill() *Code {
	c.buf = append(appendU32(append(c.buf, opPrefixFC), fcMemoryFill), 0x00)
	return c
}

// FatPtr packs the i32 pointer in local ptr and the i32 length in local n
// into an i64 FatPtr left on the stack.
func (c *Code) FatPtr(ptr, n uint32) *Code {
	return c.LocalGet(ptr).I64ExtendI32U().I64Const(32).I64Shl().
		LocalGet(n).I64ExtendI32U().I64Or()
}

// SplitFatPtr unpacks the i64 FatPtr in local fp into the i32 locals ptr
// and n.
func (c *Code) SplitFatPtr(fp, ptr, n uint32) *Code {
	c.LocalGet(fp).I64Const(32).I64ShrU().I32WrapI64().LocalSet(ptr)
	return c.LocalGet(fp).I32WrapI64().LocalSet(n)
}
