// Package errors provides structured error types for the fp-bridge library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: field path, Go/wire type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
//		Path("user", "age").
//		GoType("uint32").
//		WireType("string").
//		Detail("cannot convert string to integer").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.FunctionNotExported("fetch-data")
//	err := errors.Decode(path, "int32", "string", cause)
//
// Protocol violations (corrupt fat pointers, unknown async status, oversized
// buffers) are created with ProtocolViolation and raised with panic. Everything
// else is returned as a value.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
