package errors

import (
	"errors"
	"fmt"
)

// Boundary errors. Decode, missing-export and empty-result errors are
// returned to the caller. Protocol violations mean guest and host disagree
// on the ABI itself and are raised with panic.

// FunctionNotExported reports a call to a function the other side does not provide.
func FunctionNotExported(name string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindNotExported,
		Detail: fmt.Sprintf("function %q is not exported", name),
		Value:  name,
	}
}

// UnexpectedReturnType reports a boundary signature that does not match the protocol.
func UnexpectedReturnType(name, detail string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindUnexpectedReturn,
		Detail: fmt.Sprintf("%s: %s", name, detail),
		Value:  name,
	}
}

// EmptyResult reports a zero FatPtr where a value was required.
func EmptyResult(phase Phase, goType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindEmptyResult,
		GoType: goType,
		Detail: "empty result for non-unit value",
	}
}

// Decode wraps a deserialization failure at path.
func Decode(path []string, goType, wireType string, cause error) *Error {
	return &Error{
		Phase:    PhaseDecode,
		Kind:     KindTypeMismatch,
		Path:     path,
		GoType:   goType,
		WireType: wireType,
		Cause:    cause,
	}
}

// GuestTrap wraps a trap raised while executing guest code.
func GuestTrap(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindGuestTrap,
		Detail: fmt.Sprintf("call %s", name),
		Cause:  cause,
	}
}

// Closed reports use of a released instance.
func Closed(what string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindClosed,
		Detail: what + " is closed",
	}
}

// ProtocolViolation creates the value a broken ABI contract panics with.
func ProtocolViolation(kind Kind, detail string) *Error {
	return &Error{
		Phase:  PhaseProtocol,
		Kind:   kind,
		Detail: detail,
	}
}

// IsProtocolViolation reports whether err (or a recovered panic value) is a protocol violation.
func IsProtocolViolation(err any) bool {
	e, ok := err.(error)
	if !ok {
		return false
	}
	return find(e, func(t *Error) bool { return t.Phase == PhaseProtocol }) != nil
}

// IsDecode reports whether err carries a decode failure.
func IsDecode(err error) bool {
	return find(err, func(t *Error) bool { return t.Phase == PhaseDecode }) != nil
}

// IsNotExported reports whether err is a missing-export error.
func IsNotExported(err error) bool {
	return find(err, func(t *Error) bool { return t.Kind == KindNotExported }) != nil
}

// PathOf returns the field path of the first structured error in err's chain.
func PathOf(err error) []string {
	if t := find(err, func(t *Error) bool { return len(t.Path) > 0 }); t != nil {
		return t.Path
	}
	return nil
}

// find walks the chain of structured errors, following causes.
func find(err error, match func(*Error) bool) *Error {
	var target *Error
	for err != nil && errors.As(err, &target) {
		if match(target) {
			return target
		}
		err = target.Cause
	}
	return nil
}
