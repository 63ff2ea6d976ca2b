// Package schema describes the functions that cross the guest/host
// boundary. A Protocol is the table both sides dispatch on: for every
// function it records the parameter and result types (as WIT types), and
// whether the call is asynchronous.
//
// Primitive types (bool, integers, floats, char) pass through as core wasm
// values. Every other type is marshalled and passed as a FatPtr. Async
// functions always return the FatPtr of an AsyncValue.
package schema
