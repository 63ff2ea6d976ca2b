// Package abi defines the binary contract shared by guest and host: the
// FatPtr encoding, the AsyncValue record layout, the boundary symbol names
// and the lowering of primitive values to core wasm stack values.
//
// A FatPtr references a buffer in guest linear memory:
//
//	63            32 31   24 23             0
//	+---------------+-------+---------------+
//	|    offset     |  ext  |    length     |
//	+---------------+-------+---------------+
//
// The ext byte is reserved and must be zero. The FatPtr 0 means "no result".
//
// An AsyncValue is a 12 byte record (status, ptr, len) of little-endian u32
// words. A status transition to ready publishes ptr and len first.
package abi
