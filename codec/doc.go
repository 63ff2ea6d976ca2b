// Package codec converts Go values to and from the bytes that travel
// through a FatPtr.
//
// The encoding is MessagePack with structs written as maps keyed by field
// name, so guests and hosts tolerate field reordering and unknown fields but
// not type changes. Field names come from the msgpack tag, then the json tag,
// then the Go field name.
//
//	type Point struct {
//	    X int32 `msgpack:"x"`
//	    Y int32 `msgpack:"y"`
//	}
//
//	data, err := codec.Serialize(Point{1, 2})
//	p, err := codec.DeserializeValue[Point](data)
//
// Decoding first parses the document into a generic tree and then assigns it
// into the target with reflection, tracking the field path. A failure
// reports where it happened:
//
//	[decode] type_mismatch at shapes[3].origin.x: Go type int32, wire type string
//
// Raw payloads skip both directions, letting callers defer (de)serialization.
package codec
